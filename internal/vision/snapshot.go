package vision

import "strings"

// Cell addresses a board cell in screen orientation (row 0 = top).
type Cell struct {
	Col int
	Row int
}

// Snapshot is one full occupancy observation. It is a value type; copies are
// independent.
type Snapshot struct {
	empty [Columns][Rows]bool
}

// EmptySnapshot returns a snapshot with every cell empty.
func EmptySnapshot() Snapshot {
	var s Snapshot
	for c := range s.empty {
		for r := range s.empty[c] {
			s.empty[c][r] = true
		}
	}
	return s
}

func (s Snapshot) IsEmpty(col, row int) bool { return s.empty[col][row] }

// WithOccupied returns a copy with one cell marked occupied.
func (s Snapshot) WithOccupied(col, row int) Snapshot {
	s.empty[col][row] = false
	return s
}

func (s Snapshot) OccupiedCount() int {
	n := 0
	for c := range s.empty {
		for r := range s.empty[c] {
			if !s.empty[c][r] {
				n++
			}
		}
	}
	return n
}

func (s Snapshot) Occupied() []Cell {
	var out []Cell
	for c := range s.empty {
		for r := Rows - 1; r >= 0; r-- {
			if !s.empty[c][r] {
				out = append(out, Cell{Col: c, Row: r})
			}
		}
	}
	return out
}

// LowestEmptyRow scans col from the bottom and returns the first empty row,
// or -1 if the column is full.
func (s Snapshot) LowestEmptyRow(col int) int {
	if col < 0 || col >= Columns {
		return -1
	}
	for r := Rows - 1; r >= 0; r-- {
		if s.empty[col][r] {
			return r
		}
	}
	return -1
}

// Diff lists every cell whose occupancy differs from prev.
func (s Snapshot) Diff(prev Snapshot) []Cell {
	var out []Cell
	for c := range s.empty {
		for r := range s.empty[c] {
			if s.empty[c][r] != prev.empty[c][r] {
				out = append(out, Cell{Col: c, Row: r})
			}
		}
	}
	return out
}

// String renders the snapshot top row first: '.' empty, '#' occupied.
func (s Snapshot) String() string {
	var b strings.Builder
	for r := 0; r < Rows; r++ {
		for c := 0; c < Columns; c++ {
			if s.empty[c][r] {
				b.WriteByte('.')
			} else {
				b.WriteByte('#')
			}
		}
		if r < Rows-1 {
			b.WriteByte('/')
		}
	}
	return b.String()
}

// ParseSnapshot is the inverse of String.
func ParseSnapshot(text string) (Snapshot, bool) {
	rows := strings.Split(text, "/")
	if len(rows) != Rows {
		return Snapshot{}, false
	}
	var s Snapshot
	for r, line := range rows {
		if len(line) != Columns {
			return Snapshot{}, false
		}
		for c := 0; c < Columns; c++ {
			switch line[c] {
			case '.':
				s.empty[c][r] = true
			case '#':
			default:
				return Snapshot{}, false
			}
		}
	}
	return s, true
}
