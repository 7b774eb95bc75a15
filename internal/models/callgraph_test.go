package models

import "testing"

func call(t float64, name string) *CallGraphLine {
	return &CallGraphLine{Time: t, Name: name, IsCall: true}
}

func ret(t float64, length float64) *CallGraphLine {
	return &CallGraphLine{Time: t, IsReturn: true, Length: length}
}

func leaf(t float64, name string, length float64) *CallGraphLine {
	return &CallGraphLine{Time: t, Name: name, IsCall: true, IsReturn: true, Length: length}
}

func TestCallGraphBalancedNesting(t *testing.T) {
	const n = 24
	g := NewCallGraph()
	tm := 10.0
	for i := 0; i < n; i++ {
		if g.AddLine(call(tm, "fn")) {
			t.Fatalf("graph completed on call %d", i)
		}
		tm += 0.001
	}
	done := false
	for i := 0; i < n; i++ {
		done = g.AddLine(ret(tm, 1.5))
		if done != (i == n-1) {
			t.Fatalf("return %d: done = %v", i, done)
		}
		tm += 0.001
	}
	if !done {
		t.Fatal("graph never completed")
	}
	calls, rets := 0, 0
	for _, l := range g.Lines {
		if l.IsCall {
			calls++
		}
		if l.IsReturn {
			rets++
		}
	}
	if calls != n || rets != n {
		t.Errorf("got %d calls and %d returns, want %d of each", calls, rets, n)
	}
	if !g.SanityCheck() {
		t.Error("sanity check failed for balanced graph")
	}
	if g.Lines[0].Depth != 0 {
		t.Errorf("root depth = %d, want 0", g.Lines[0].Depth)
	}
	if g.Start != 10.0 || g.End != tm-0.001 {
		t.Errorf("graph window [%f - %f] does not span the input", g.Start, g.End)
	}
}

func TestCallGraphLeafDepth(t *testing.T) {
	g := NewCallGraph()
	g.AddLine(call(1.0, "dpm_run_callback"))
	g.AddLine(leaf(1.0005, "clk_enable", 12))
	done := g.AddLine(ret(1.002, 2000))
	if !done {
		t.Fatal("top-level return did not complete the graph")
	}
	wantDepths := []int{0, 1, 0}
	for i, l := range g.Lines {
		if l.Depth != wantDepths[i] {
			t.Errorf("line %d depth = %d, want %d", i, l.Depth, wantDepths[i])
		}
	}
	if !g.SanityCheck() {
		t.Fatal("sanity check failed")
	}
	// return duration transferred onto the opening call
	if g.Lines[0].Length != 2000 {
		t.Errorf("root length = %f, want 2000", g.Lines[0].Length)
	}
	if g.Lines[2].Length != 0 {
		t.Errorf("return kept length %f after transfer", g.Lines[2].Length)
	}
	if g.Lines[1].Length != 12 {
		t.Errorf("leaf length = %f, want 12", g.Lines[1].Length)
	}
}

func TestCallGraphOverflowRetainsFirstLine(t *testing.T) {
	g := NewCallGraph()
	first := call(1.0, "first")
	g.AddLine(first)
	filler := &CallGraphLine{IsCall: true}
	for len(g.Lines) < MaxGraphLines {
		g.AddLine(filler)
	}
	if g.Invalid {
		t.Fatal("graph invalid before the limit was crossed")
	}
	g.AddLine(&CallGraphLine{IsCall: true})
	if !g.Invalid {
		t.Fatal("graph not marked invalid past the line limit")
	}
	if len(g.Lines) != 1 || g.Lines[0] != first {
		t.Fatalf("retained %d lines, want exactly the first", len(g.Lines))
	}
	// an abandoned graph keeps consuming without completing
	if g.AddLine(ret(2.0, 0)) {
		t.Error("invalid graph completed")
	}
	if len(g.Lines) != 1 {
		t.Errorf("invalid graph buffered %d lines", len(g.Lines))
	}
}

func TestCallGraphUnderflowInvalid(t *testing.T) {
	g := NewCallGraph()
	l := ret(5.0, 0)
	if g.AddLine(l) {
		t.Fatal("stray return completed an empty graph")
	}
	if !g.Invalid {
		t.Fatal("negative depth did not invalidate the graph")
	}
	if len(g.Lines) != 0 {
		t.Errorf("retained %d lines from a stray return", len(g.Lines))
	}
}

func TestCallGraphLeafOnlyWindow(t *testing.T) {
	// a task whose first in-window line is a top-level leaf completes
	// immediately with no recorded start, which correlation then drops
	g := NewCallGraph()
	if !g.AddLine(leaf(3.0, "lone", 1)) {
		t.Fatal("top-level leaf did not complete the graph")
	}
	if g.Start != -1 {
		t.Errorf("start = %f, want -1", g.Start)
	}
	if g.End != 3.0 {
		t.Errorf("end = %f, want 3.0", g.End)
	}
	if !g.SanityCheck() {
		t.Error("leaf-only graph failed the sanity check")
	}
}

func TestSanityCheckUnbalanced(t *testing.T) {
	tests := []struct {
		name  string
		lines []*CallGraphLine
	}{
		{
			name:  "return with no open call",
			lines: []*CallGraphLine{{Depth: 1, IsReturn: true}},
		},
		{
			name: "call never returned",
			lines: []*CallGraphLine{
				{Depth: 0, IsCall: true},
				{Depth: 1, IsCall: true},
				{Depth: 1, IsReturn: true},
			},
		},
		{
			name: "return at the wrong depth",
			lines: []*CallGraphLine{
				{Depth: 0, IsCall: true},
				{Depth: 1, IsReturn: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &CallGraph{Lines: tt.lines}
			if g.SanityCheck() {
				t.Error("sanity check passed for unbalanced graph")
			}
		})
	}
}
