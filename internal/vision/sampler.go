package vision

import (
	"context"
	"fmt"

	"github.com/park285/Connect4-Screen-bot/internal/screen"
)

// Sampler turns pixel reads into snapshots. One Sample is one observation:
// callers must not move the pointer while it runs.
type Sampler struct {
	cal    *Calibration
	colors screen.ColorSampler
}

func NewSampler(cal *Calibration, colors screen.ColorSampler) *Sampler {
	return &Sampler{cal: cal, colors: colors}
}

func (s *Sampler) Calibration() *Calibration { return s.cal }

func (s *Sampler) Sample(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	for c := 0; c < Columns; c++ {
		for r := 0; r < Rows; r++ {
			p := s.cal.CellPosition(c, r)
			clr, err := s.colors.SampleColor(ctx, p)
			if err != nil {
				return Snapshot{}, fmt.Errorf("sample cell (%d,%d) at %s: %w", c, r, p, err)
			}
			snap.empty[c][r] = s.cal.IsEmptyColor(clr)
		}
	}
	return snap, nil
}
