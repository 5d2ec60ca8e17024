package vision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/screen"
)

// ErrCalibrationOccupied means the post-check saw more than one disc. The
// operator must redo both anchors.
var ErrCalibrationOccupied = errors.New("calibration post-check: more than one occupied cell")

type Anchor int

const (
	AnchorTopLeft Anchor = iota
	AnchorBottomRight
)

func (a Anchor) String() string {
	if a == AnchorBottomRight {
		return "bottom_right"
	}
	return "top_left"
}

// Prompter is the operator side of calibration.
type Prompter interface {
	// AwaitAnchor blocks until the operator has placed the pointer on the anchor.
	AwaitAnchor(ctx context.Context, a Anchor) error
	CalibrationRejected(ctx context.Context, attempt int, err error)
}

type Calibrator struct {
	screen    screen.Screen
	prompter  Prompter
	tolerance uint8
	logger    *zap.Logger
}

func NewCalibrator(s screen.Screen, p Prompter, tolerance uint8, logger *zap.Logger) *Calibrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calibrator{screen: s, prompter: p, tolerance: tolerance, logger: logger}
}

// Run repeats the two-point procedure until the post-check passes. Anchor
// errors are configuration errors and end the run.
func (c *Calibrator) Run(ctx context.Context, maxAttempts int) (*Calibration, Snapshot, error) {
	for attempt := 1; ; attempt++ {
		cal, snap, err := c.Once(ctx)
		if err == nil {
			return cal, snap, nil
		}
		if !errors.Is(err, ErrCalibrationOccupied) {
			return nil, Snapshot{}, err
		}
		c.logger.Warn("calibration_rejected", zap.Int("attempt", attempt), zap.Error(err))
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, Snapshot{}, fmt.Errorf("calibration failed after %d attempts: %w", attempt, err)
		}
		c.prompter.CalibrationRejected(ctx, attempt, err)
	}
}

// Once runs a single two-point calibration and its post-check.
func (c *Calibrator) Once(ctx context.Context) (*Calibration, Snapshot, error) {
	tl, err := c.anchor(ctx, AnchorTopLeft)
	if err != nil {
		return nil, Snapshot{}, err
	}
	br, err := c.anchor(ctx, AnchorBottomRight)
	if err != nil {
		return nil, Snapshot{}, err
	}
	cal, err := NewCalibration(tl, br)
	if err != nil {
		return nil, Snapshot{}, err
	}
	cal.Tolerance = c.tolerance

	// 커서는 현재 bottom-right 위: top-left 샘플을 가리지 않음
	cal.EmptyColor, err = c.screen.SampleColor(ctx, cal.TopLeft)
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("sample empty color: %w", err)
	}
	if err := c.screen.MovePointer(ctx, cal.ParkPosition()); err != nil {
		return nil, Snapshot{}, fmt.Errorf("park pointer: %w", err)
	}

	snap, err := NewSampler(cal, c.screen).Sample(ctx)
	if err != nil {
		return nil, Snapshot{}, err
	}
	if n := snap.OccupiedCount(); n > 1 {
		return nil, Snapshot{}, fmt.Errorf("%w: occupied=%d", ErrCalibrationOccupied, n)
	}
	c.logger.Info("calibration_ok",
		zap.Stringer("top_left", cal.TopLeft),
		zap.Stringer("bottom_right", cal.BottomRight),
		zap.Stringer("pitch", cal.Pitch),
		zap.Stringer("empty_color", cal.EmptyColor))
	return cal, snap, nil
}

func (c *Calibrator) anchor(ctx context.Context, a Anchor) (screen.Point, error) {
	if err := c.prompter.AwaitAnchor(ctx, a); err != nil {
		return screen.Point{}, fmt.Errorf("await %s anchor: %w", a, err)
	}
	p, err := c.screen.PointerPosition(ctx)
	if err != nil {
		return screen.Point{}, fmt.Errorf("read %s anchor: %w", a, err)
	}
	return p, nil
}
