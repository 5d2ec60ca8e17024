package vision

import "context"

type ChangeKind int

const (
	NoChange ChangeKind = iota
	Move
	Ambiguous
)

func (k ChangeKind) String() string {
	switch k {
	case Move:
		return "move"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_change"
	}
}

// Change is the classification of one poll.
type Change struct {
	Kind ChangeKind
	// Column and Row are set for Move.
	Column  int
	Row     int
	Changed []Cell
	Fresh   Snapshot
}

// Detector diffs fresh samples against a baseline. A single new disc is a
// move; anything else that differs is ambiguous and leaves the baseline alone.
type Detector struct {
	sampler  *Sampler
	baseline Snapshot
}

func NewDetector(s *Sampler, baseline Snapshot) *Detector {
	return &Detector{sampler: s, baseline: baseline}
}

func (d *Detector) Baseline() Snapshot { return d.baseline }

// Reset replaces the baseline, e.g. after the bot's own move.
func (d *Detector) Reset(baseline Snapshot) { d.baseline = baseline }

func (d *Detector) Detect(ctx context.Context) (Change, error) {
	fresh, err := d.sampler.Sample(ctx)
	if err != nil {
		return Change{}, err
	}
	ch := Classify(d.baseline, fresh)
	if ch.Kind == Move {
		d.baseline = fresh
	}
	return ch, nil
}

// Classify compares two snapshots taken under the same calibration.
func Classify(prev, fresh Snapshot) Change {
	changed := fresh.Diff(prev)
	ch := Change{Kind: NoChange, Column: -1, Row: -1, Changed: changed, Fresh: fresh}
	switch {
	case len(changed) == 0:
	case len(changed) == 1 && !fresh.IsEmpty(changed[0].Col, changed[0].Row):
		ch.Kind = Move
		ch.Column = changed[0].Col
		ch.Row = changed[0].Row
	default:
		// 두 칸 이상 변화, 또는 돌이 사라짐
		ch.Kind = Ambiguous
	}
	return ch
}
