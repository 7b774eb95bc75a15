package models

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Data is the complete reconstructed model of one suspend/resume cycle:
// the eight phases with their device callbacks, the global cycle window,
// and the run stamp. All mutable reconstruction state (the device id
// counter) lives on the instance.
type Data struct {
	Stamp  *Stamp   `json:"stamp,omitempty" msgpack:"stamp,omitempty"`
	Start  float64  `json:"start" msgpack:"start"`
	End    float64  `json:"end" msgpack:"end"`
	Phases []*Phase `json:"phases" msgpack:"phases"`

	byName map[string]*Phase
	nextID int
}

// NewData returns a Data with the eight phases initialized in execution
// order and every window unset.
func NewData() *Data {
	d := &Data{
		Start:  -1,
		End:    -1,
		byName: make(map[string]*Phase, len(phaseDefs)),
	}
	for i, def := range phaseDefs {
		p := &Phase{
			Name:    def.Name,
			Order:   i,
			Color:   def.Color,
			Start:   -1,
			End:     -1,
			Devices: make(map[string]*Device),
		}
		d.Phases = append(d.Phases, p)
		d.byName[def.Name] = p
	}
	return d
}

// Reindex rebuilds the phase name lookup. Deserialized instances must call
// it before any by-name access.
func (d *Data) Reindex() {
	d.byName = make(map[string]*Phase, len(d.Phases))
	for _, p := range d.Phases {
		d.byName[p.Name] = p
	}
}

// PhaseByName returns the named phase, or nil for an unknown name.
func (d *Data) PhaseByName(name string) *Phase {
	if d.byName != nil {
		return d.byName[name]
	}
	for _, p := range d.Phases {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// PhaseAt returns the first phase whose window contains t, or nil.
func (d *Data) PhaseAt(t float64) *Phase {
	for _, p := range d.Phases {
		if p.Contains(t) {
			return p
		}
	}
	return nil
}

// NewDevice records a callback invocation in the given phase. A repeated
// name replaces the earlier record under a fresh id.
func (d *Data) NewDevice(phase *Phase, name string, pid int, parent string, start, end float64) *Device {
	d.nextID++
	dev := &Device{
		ID:     fmt.Sprintf("dc%d", d.nextID),
		Name:   name,
		Start:  start,
		End:    end,
		PID:    pid,
		Parent: parent,
		Length: -1,
	}
	if start >= 0 && end >= 0 {
		dev.Length = (end - start) * 1e6
	}
	phase.Devices[name] = dev
	return dev
}

// FixupUnresolved clamps every device that never saw its return line to the
// end of resume, walking the phases in order. The clamp repairs only the
// window; the duration stays unknown.
func (d *Data) FixupUnresolved() {
	end := d.PhaseByName("resume_general").End
	for _, p := range d.Phases {
		for name, dev := range p.Devices {
			if dev.End < 0 {
				dev.End = end
				logrus.Debugf("%s (%s): callback didn't return", name, p.Name)
			}
		}
	}
}

// SuspendTime returns the suspend half of the cycle in milliseconds,
// entering suspend_general through the end of suspend_cpu.
func (d *Data) SuspendTime() float64 {
	return (d.PhaseByName("suspend_cpu").End - d.PhaseByName("suspend_general").Start) * 1000
}

// ResumeTime returns the resume half of the cycle in milliseconds, the
// start of resume_cpu through the end of resume_general.
func (d *Data) ResumeTime() float64 {
	return (d.PhaseByName("resume_general").End - d.PhaseByName("resume_cpu").Start) * 1000
}

// DeviceCount returns the number of device records across all phases.
func (d *Data) DeviceCount() int {
	n := 0
	for _, p := range d.Phases {
		n += len(p.Devices)
	}
	return n
}

// GraphCount returns the number of devices with an attached call graph.
func (d *Data) GraphCount() int {
	n := 0
	for _, p := range d.Phases {
		for _, dev := range p.Devices {
			if dev.Graph != nil {
				n++
			}
		}
	}
	return n
}
