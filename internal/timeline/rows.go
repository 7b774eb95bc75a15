// Package timeline packs overlapping time intervals into display rows.
package timeline

// Interval is any span that can be placed on a timeline row.
type Interval interface {
	Bounds() (start, end float64)
	SetRow(row int)
}

type span struct {
	start, end float64
}

// AssignRows places each interval, in the order given, into the first row
// where it overlaps nothing already placed, opening a new row when none
// fits, and returns the number of rows used. Two intervals overlap unless
// one lies entirely before or entirely after the other; touching endpoints
// do not overlap. Placement is greedy with no repacking; it is row-minimal
// when the caller feeds intervals in ascending start order.
func AssignRows(items []Interval) int {
	var rows [][]span
	for _, it := range items {
		s, e := it.Bounds()
		placed := false
		for r := range rows {
			if fits(rows[r], s, e) {
				rows[r] = append(rows[r], span{s, e})
				it.SetRow(r)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, []span{{s, e}})
			it.SetRow(len(rows) - 1)
		}
	}
	return len(rows)
}

func fits(row []span, s, e float64) bool {
	for _, sp := range row {
		before := s <= sp.start && e <= sp.start
		after := s >= sp.end && e >= sp.end
		if !before && !after {
			return false
		}
	}
	return true
}
