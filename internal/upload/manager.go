// Package upload finalizes chunked log uploads in the background:
// assembly, optional gzip decompression and log kind detection.
package upload

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i72421/pm-graph/internal/models"
	"github.com/i72421/pm-graph/internal/parser"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusDetecting     Status = "detecting"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Job tracks one async upload finalization.
type Job struct {
	ID             string           `json:"id"`
	UploadID       string           `json:"uploadId"`
	FileName       string           `json:"fileName"`
	TotalChunks    int              `json:"totalChunks"`
	OriginalSize   int64            `json:"originalSize"`
	CompressedSize int64            `json:"compressedSize"`
	Encoding       string           `json:"encoding"`
	Status         Status           `json:"status"`
	Progress       float64          `json:"progress"`
	Stage          string           `json:"stage"`
	StageProgress  float64          `json:"stageProgress"`
	FileInfo       *models.FileInfo `json:"fileInfo,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}

// Store is the slice of the storage layer the manager needs.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	RegisterFile(info *models.FileInfo)
}

// Manager runs upload finalization jobs.
type Manager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	store Store
}

// NewManager creates an upload manager backed by the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		jobs:  make(map[string]*Job),
		store: store,
	}
}

// StartJob begins async finalization of a chunked upload.
func (m *Manager) StartJob(uploadID, fileName string, totalChunks int, originalSize, compressedSize int64, encoding string) *Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       uploadID,
		FileName:       fileName,
		TotalChunks:    totalChunks,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Encoding:       encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.processJob(job)

	return job
}

// GetJob retrieves a job by id.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

func (m *Manager) processJob(job *Job) {
	log := logrus.WithField("job", job.ID[:8])
	log.Debugf("finalizing upload %s", job.FileName)

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 0)

	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}
	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 100)

	if job.Encoding == "gzip" || job.Encoding == "binary-gzip" {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)

		if err := m.decompressFile(job, info.ID); err != nil {
			// The client may have lied about the encoding; keep the bytes
			// as uploaded and let detection decide what they are.
			log.Warnf("could not decompress %s: %v", info.ID, err)
		} else if job.OriginalSize > 0 {
			info.Size = job.OriginalSize
			m.store.RegisterFile(info)
		}
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
	}

	m.updateJobStatus(job, StatusDetecting, "detecting log type", 0)
	path, err := m.store.GetFilePath(info.ID)
	if err == nil {
		if kind, derr := parser.DetectKind(path); derr == nil {
			info.Kind = string(kind)
			m.store.RegisterFile(info)
		} else {
			log.Warnf("kind detection failed for %s: %v", info.ID, derr)
		}
	}
	m.updateJobStatus(job, StatusDetecting, "detecting log type", 100)

	job.FileInfo = info
	m.markJobComplete(job)
	log.Debugf("upload %s complete: %s (%d bytes, %s)", job.FileName, info.ID, info.Size, info.Kind)
}

// decompressFile streams a gzip file into a sibling temp file and swaps it
// into place, with progress against the declared original size.
func (m *Manager) decompressFile(job *Job, fileID string) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}

	compressed, err := os.Open(path)
	if err != nil {
		return err
	}
	defer compressed.Close()

	magic := make([]byte, 2)
	if _, err := io.ReadFull(compressed, magic); err != nil {
		return err
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return fmt.Errorf("not a gzip file")
	}
	if _, err := compressed.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader, err := gzip.NewReader(compressed)
	if err != nil {
		return err
	}
	defer reader.Close()

	tempPath := path + ".decompressing"
	out, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	buf := make([]byte, 1024*1024)
	var written int64
	lastUpdate := time.Now()

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(tempPath)
				return fmt.Errorf("write error: %w", writeErr)
			}
			written += int64(n)

			if job.OriginalSize > 0 && time.Since(lastUpdate) > 100*time.Millisecond {
				progress := float64(written) / float64(job.OriginalSize) * 100
				if progress > 99 {
					progress = 99
				}
				m.updateJobStatus(job, StatusDecompressing, "decompressing file", progress)
				lastUpdate = time.Now()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				out.Close()
				os.Remove(tempPath)
				return fmt.Errorf("read error: %w", readErr)
			}
			break
		}
	}

	out.Close()

	if job.OriginalSize > 0 && written != job.OriginalSize {
		os.Remove(tempPath)
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d", written, job.OriginalSize)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}

func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Assembling covers 0-40%, decompression 40-80%, detection 80-100%.
	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.4
	case StatusDecompressing:
		job.Progress = 40 + stageProgress*0.4
	case StatusDetecting:
		job.Progress = 80 + stageProgress*0.2
	case StatusComplete:
		job.Progress = 100
	}
}

func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	logrus.WithField("job", job.ID[:8]).Errorf("upload failed: %s", errMsg)
}

// CleanupOldJobs drops finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status != StatusComplete && job.Status != StatusError {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
