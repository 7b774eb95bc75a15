package models

// Device is one recorded callback invocation within a phase. Start and End
// are seconds on the kernel log clock; Length is microseconds, parsed from
// the callback's return line when one was seen, derived from the window
// otherwise, and -1 while unknown.
type Device struct {
	ID     string     `json:"id" msgpack:"id"`
	Name   string     `json:"name" msgpack:"name"`
	Start  float64    `json:"start" msgpack:"start"`
	End    float64    `json:"end" msgpack:"end"`
	PID    int        `json:"pid" msgpack:"pid"`
	Parent string     `json:"parent" msgpack:"parent"`
	Length float64    `json:"length" msgpack:"length"`
	Row    int        `json:"row" msgpack:"row"`
	Graph  *CallGraph `json:"callGraph,omitempty" msgpack:"callGraph,omitempty"`
}

// Bounds returns the device's time window for row packing.
func (d *Device) Bounds() (start, end float64) {
	return d.Start, d.End
}

// SetRow assigns the device's display row.
func (d *Device) SetRow(row int) {
	d.Row = row
}

// Resolved reports whether the device's end was observed or clamped.
func (d *Device) Resolved() bool {
	return d.End >= 0
}
