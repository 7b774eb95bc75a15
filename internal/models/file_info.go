package models

import "time"

// FileInfo describes one uploaded kernel log.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Kind       string    `json:"kind"` // "dmesg", "ftrace" or "unknown"
	UploadedAt time.Time `json:"uploadedAt"`
}
