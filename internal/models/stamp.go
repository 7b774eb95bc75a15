package models

import "time"

// Stamp is the run metadata the capture tool writes as the first line of
// both log files.
type Stamp struct {
	Time time.Time `json:"time" msgpack:"time"`
	Host string    `json:"host" msgpack:"host"`
	Mode string    `json:"mode" msgpack:"mode"`
}

// Label formats the capture time the way the timeline header shows it.
func (s *Stamp) Label() string {
	return s.Time.Format("January 2 2006, 3:04:05 PM")
}
