package models

// MaxGraphLines bounds the number of buffered lines in a single open call
// graph. A graph that grows past it is corrupt or unterminated and is
// abandoned rather than held in memory.
const MaxGraphLines = 1000000

// CallGraphLine is one parsed trace record. Time is seconds, Length is
// microseconds. IsCall and IsReturn are both set for a leaf call collapsed
// onto a single line. Depth is assigned while the graph is built, not taken
// from the trace text.
type CallGraphLine struct {
	Time     float64 `json:"time" msgpack:"time"`
	Msg      string  `json:"msg" msgpack:"msg"`
	Name     string  `json:"name" msgpack:"name"`
	Depth    int     `json:"depth" msgpack:"depth"`
	IsCall   bool    `json:"isCall" msgpack:"isCall"`
	IsReturn bool    `json:"isReturn" msgpack:"isReturn"`
	Length   float64 `json:"length" msgpack:"length"`
}

// IsLeaf reports a call and its return collapsed onto one line.
func (l *CallGraphLine) IsLeaf() bool {
	return l.IsCall && l.IsReturn
}

// CallGraph is the reconstructed call tree of one task across a single
// suspend/resume trace window. Depth is the running open-call counter used
// during construction.
type CallGraph struct {
	Start   float64          `json:"start" msgpack:"start"`
	End     float64          `json:"end" msgpack:"end"`
	Lines   []*CallGraphLine `json:"lines" msgpack:"lines"`
	Invalid bool             `json:"invalid,omitempty" msgpack:"invalid,omitempty"`
	Depth   int              `json:"-" msgpack:"-"`
}

// NewCallGraph returns an empty graph with its window unset.
func NewCallGraph() *CallGraph {
	return &CallGraph{Start: -1, End: -1}
}

// stampDepth assigns the line's nesting depth from the running counter: a
// call is stamped before the counter increments, a return after it
// decrements, and a leaf leaves the counter untouched.
func (g *CallGraph) stampDepth(l *CallGraphLine) {
	switch {
	case l.IsCall && !l.IsReturn:
		l.Depth = g.Depth
		g.Depth++
	case l.IsReturn && !l.IsCall:
		g.Depth--
		l.Depth = g.Depth
	default:
		l.Depth = g.Depth
	}
}

// AddLine feeds the task's next trace line into the graph and reports
// whether the graph just completed (its top-level call returned). An invalid
// graph consumes lines without buffering them and never completes. When the
// buffer reaches MaxGraphLines or depth goes negative, the graph turns
// invalid and retains only its first line.
func (g *CallGraph) AddLine(l *CallGraphLine) bool {
	if g.Invalid {
		return false
	}
	g.stampDepth(l)
	if l.Depth == 0 && l.IsReturn {
		g.End = l.Time
		g.Lines = append(g.Lines, l)
		return true
	}
	if len(g.Lines) >= MaxGraphLines || g.Depth < 0 {
		if len(g.Lines) > 1 {
			g.Lines = g.Lines[:1]
		}
		g.Invalid = true
		return false
	}
	g.Lines = append(g.Lines, l)
	if g.Start < 0 {
		g.Start = l.Time
	}
	return false
}

// SanityCheck verifies that every return in a completed graph pairs with a
// call at the same depth, back-filling each call's duration from its return
// line. It reports false for unbalanced graphs, which callers must discard.
func (g *CallGraph) SanityCheck() bool {
	open := make(map[int]*CallGraphLine)
	count := 0
	for _, l := range g.Lines {
		switch {
		case l.IsCall && !l.IsReturn:
			open[l.Depth] = l
			count++
		case l.IsReturn && !l.IsCall:
			call := open[l.Depth]
			if call == nil {
				return false
			}
			call.Length = l.Length
			l.Length = 0
			open[l.Depth] = nil
			count--
		}
	}
	return count == 0
}

// Span returns the graph's duration in seconds, 0 when the window is unset.
func (g *CallGraph) Span() float64 {
	if g.Start < 0 || g.End < g.Start {
		return 0
	}
	return g.End - g.Start
}
