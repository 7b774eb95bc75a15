package models

// Ancestry queries walk the parent links recorded on devices. Parents are
// names, not references, so a malformed log could form a cycle; every walk
// carries a visited set to stay bounded.

// sameFamily reports whether two phase names belong to the same half of the
// cycle. Phases of one family share the first character of their name.
func sameFamily(a, b string) bool {
	return a != "" && b != "" && a[0] == b[0]
}

// familyDevice returns the device record for name in the first family phase
// that holds one, or nil.
func (d *Data) familyDevice(name, phase string) *Device {
	for _, p := range d.Phases {
		if !sameFamily(p.Name, phase) {
			continue
		}
		if dev, ok := p.Devices[name]; ok {
			return dev
		}
	}
	return nil
}

// DeviceChildren returns the transitive descendants of a device name within
// the phase family, in discovery order. The queried name is not included.
func (d *Data) DeviceChildren(name, phase string) []string {
	visited := map[string]bool{name: true}
	var out []string
	d.collectChildren(name, phase, visited, &out)
	return out
}

func (d *Data) collectChildren(name, phase string, visited map[string]bool, out *[]string) {
	for _, p := range d.Phases {
		if !sameFamily(p.Name, phase) {
			continue
		}
		for _, dev := range p.SortedDevices() {
			if dev.Parent != name || visited[dev.Name] {
				continue
			}
			visited[dev.Name] = true
			*out = append(*out, dev.Name)
			d.collectChildren(dev.Name, phase, visited, out)
		}
	}
}

// DeviceParents returns the ancestor chain of a device name within the
// phase family, nearest parent first. The chain includes the first name
// with no device record of its own (the empty name included when that is
// what the log recorded) and stops there.
func (d *Data) DeviceParents(name, phase string) []string {
	visited := map[string]bool{name: true}
	var out []string
	cur := name
	for {
		dev := d.familyDevice(cur, phase)
		if dev == nil || visited[dev.Parent] {
			break
		}
		visited[dev.Parent] = true
		out = append(out, dev.Parent)
		cur = dev.Parent
	}
	return out
}

// DeviceTree returns the device's full ancestry listing for display. For a
// suspend-family phase descendants come first, then the device, then its
// ancestors; for a resume-family phase ancestors come first, root outward,
// then the device, then descendants. Children suspend before their parents
// and parents resume before their children, so in both cases the causally
// earlier context leads. CPU phases have no tree.
func (d *Data) DeviceTree(name, phase string) []string {
	p := d.PhaseByName(phase)
	if p == nil || p.IsCPUPhase() {
		return nil
	}
	children := d.DeviceChildren(name, phase)
	parents := d.DeviceParents(name, phase)
	var out []string
	if p.SuspendFamily() {
		out = append(out, children...)
		out = append(out, name)
		out = append(out, parents...)
	} else {
		for i := len(parents) - 1; i >= 0; i-- {
			out = append(out, parents[i])
		}
		out = append(out, name)
		out = append(out, children...)
	}
	return out
}

// DeviceIDs maps a list of device names to the ids of every matching record
// in any phase, in phase then start order. Names with no record (including
// the empty name a root's parent slot holds) are skipped.
func (d *Data) DeviceIDs(names []string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var ids []string
	for _, p := range d.Phases {
		for _, dev := range p.SortedDevices() {
			if want[dev.Name] {
				ids = append(ids, dev.ID)
			}
		}
	}
	return ids
}
