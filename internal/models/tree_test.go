package models

import (
	"reflect"
	"testing"
)

// treeData builds a small topology mirrored across the suspend and resume
// families: root <- bridge <- leaf, with the bridge's child recorded in a
// later phase of the same family.
func treeData() *Data {
	d := NewData()
	sg := d.PhaseByName("suspend_general")
	se := d.PhaseByName("suspend_early")
	rg := d.PhaseByName("resume_general")
	re := d.PhaseByName("resume_early")
	d.NewDevice(sg, "root", 1, "", 1.0, 1.1)
	d.NewDevice(sg, "bridge", 1, "root", 1.2, 1.3)
	d.NewDevice(se, "leaf", 1, "bridge", 1.4, 1.5)
	d.NewDevice(rg, "root", 1, "", 3.0, 3.1)
	d.NewDevice(rg, "bridge", 1, "root", 3.2, 3.3)
	d.NewDevice(re, "leaf", 1, "bridge", 2.4, 2.5)
	return d
}

func TestDeviceChildrenTransitive(t *testing.T) {
	d := treeData()
	got := d.DeviceChildren("root", "suspend_general")
	want := []string{"bridge", "leaf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("children(root) = %v, want %v", got, want)
	}
	if got := d.DeviceChildren("leaf", "suspend_early"); len(got) != 0 {
		t.Errorf("children(leaf) = %v, want none", got)
	}
}

func TestDeviceChildrenStayInFamily(t *testing.T) {
	d := treeData()
	// resume records must not leak into a suspend-family query
	rg := d.PhaseByName("resume_general")
	d.NewDevice(rg, "resume_only", 1, "root", 3.4, 3.5)
	got := d.DeviceChildren("root", "suspend_general")
	for _, name := range got {
		if name == "resume_only" {
			t.Fatal("suspend-family query returned a resume device")
		}
	}
}

func TestDeviceParentsChain(t *testing.T) {
	d := treeData()
	got := d.DeviceParents("leaf", "suspend_early")
	// the chain ends at the recorded empty parent of the root
	want := []string{"bridge", "root", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parents(leaf) = %v, want %v", got, want)
	}
}

func TestDeviceParentsUnknownTerminal(t *testing.T) {
	d := NewData()
	sg := d.PhaseByName("suspend_general")
	d.NewDevice(sg, "eth0", 1, "pci0000:00", 1.0, 1.1)
	got := d.DeviceParents("eth0", "suspend_general")
	// a parent with no device record of its own still ends the chain
	want := []string{"pci0000:00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parents(eth0) = %v, want %v", got, want)
	}
}

func TestDeviceParentsCycleBounded(t *testing.T) {
	d := NewData()
	sg := d.PhaseByName("suspend_general")
	d.NewDevice(sg, "a", 1, "b", 1.0, 1.1)
	d.NewDevice(sg, "b", 1, "a", 1.2, 1.3)
	got := d.DeviceParents("a", "suspend_general")
	want := []string{"b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parents in a parent cycle = %v, want %v", got, want)
	}
}

func TestDeviceTreeOrdering(t *testing.T) {
	d := treeData()
	// suspend: descendants run first, then the device, then its ancestors
	got := d.DeviceTree("bridge", "suspend_general")
	want := []string{"leaf", "bridge", "root", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("suspend tree = %v, want %v", got, want)
	}
	// resume: ancestors from the root down, the device, then descendants
	got = d.DeviceTree("bridge", "resume_general")
	want = []string{"", "root", "bridge", "leaf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("resume tree = %v, want %v", got, want)
	}
}

func TestDeviceTreeCPUPhase(t *testing.T) {
	d := treeData()
	if got := d.DeviceTree("CPU1", "suspend_cpu"); got != nil {
		t.Errorf("cpu phase tree = %v, want nil", got)
	}
	if got := d.DeviceTree("CPU1", "resume_cpu"); got != nil {
		t.Errorf("cpu phase tree = %v, want nil", got)
	}
}

func TestDeviceIDs(t *testing.T) {
	d := treeData()
	ids := d.DeviceIDs([]string{"root", "leaf", "", "missing"})
	// root and leaf each have a record in both families
	if len(ids) != 4 {
		t.Fatalf("got %d ids, want 4: %v", len(ids), ids)
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
