package models

import (
	"sort"
	"strings"
)

// phaseDefs lists the eight suspend/resume phases in execution order with
// their timeline display colors.
var phaseDefs = []struct {
	Name  string
	Color string
}{
	{"suspend_general", "#CCFFCC"},
	{"suspend_early", "green"},
	{"suspend_noirq", "#00FFFF"},
	{"suspend_cpu", "blue"},
	{"resume_cpu", "red"},
	{"resume_noirq", "orange"},
	{"resume_early", "yellow"},
	{"resume_general", "#FFFFCC"},
}

// PhaseCount is the number of phases in a full suspend/resume cycle.
const PhaseCount = 8

// PhaseNames returns the phase names in execution order.
func PhaseNames() []string {
	names := make([]string, len(phaseDefs))
	for i, def := range phaseDefs {
		names[i] = def.Name
	}
	return names
}

// Phase is one stage of the suspend/resume cycle. Start and End are seconds
// on the kernel log clock and stay -1 until the parser sees the phase's
// boundary markers.
type Phase struct {
	Name    string             `json:"name" msgpack:"name"`
	Order   int                `json:"order" msgpack:"order"`
	Color   string             `json:"color" msgpack:"color"`
	Start   float64            `json:"start" msgpack:"start"`
	End     float64            `json:"end" msgpack:"end"`
	Rows    int                `json:"rows" msgpack:"rows"`
	Devices map[string]*Device `json:"devices" msgpack:"devices"`
}

// Contains reports whether t falls inside the phase window, boundaries
// included.
func (p *Phase) Contains(t float64) bool {
	return p.Start <= t && t <= p.End
}

// IsCPUPhase reports whether the phase tracks CPU offline/online transitions
// rather than device callbacks.
func (p *Phase) IsCPUPhase() bool {
	return strings.Contains(p.Name, "cpu")
}

// SuspendFamily reports whether the phase belongs to the suspend half of the
// cycle. Phases of the same family share the first character of their name.
func (p *Phase) SuspendFamily() bool {
	return strings.HasPrefix(p.Name, "s")
}

// SortedDevices returns the phase's devices ordered by start time, names
// breaking ties so the order is stable.
func (p *Phase) SortedDevices() []*Device {
	devs := make([]*Device, 0, len(p.Devices))
	for _, dev := range p.Devices {
		devs = append(devs, dev)
	}
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Start != devs[j].Start {
			return devs[i].Start < devs[j].Start
		}
		return devs[i].Name < devs[j].Name
	})
	return devs
}
