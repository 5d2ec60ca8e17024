package actuator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/screen"
	"github.com/park285/Connect4-Screen-bot/internal/vision"
)

// ErrColumnFull means the caller asked for a column with no empty cell. The
// session treats it as a desync.
var ErrColumnFull = errors.New("column is full")

const (
	defaultSettleDelay = 120 * time.Millisecond
	defaultClickDelay  = 150 * time.Millisecond
)

type Config struct {
	// SettleDelay is waited after moving onto the cell, before the click.
	SettleDelay time.Duration
	// ClickDelay is waited after the click, before parking.
	ClickDelay time.Duration
	// Jitter adds up to this much random delay to each wait.
	Jitter time.Duration
}

// Placement describes a completed click sequence.
type Placement struct {
	Column int
	Row    int
	Target screen.Point
}

// Adapter turns a logical column into move, click and park.
type Adapter struct {
	cal     *vision.Calibration
	pointer screen.Pointer
	cfg     Config
	logger  *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cal *vision.Calibration, p screen.Pointer, cfg Config, logger *zap.Logger) *Adapter {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.ClickDelay <= 0 {
		cfg.ClickDelay = defaultClickDelay
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cal:     cal,
		pointer: p,
		cfg:     cfg,
		logger:  logger,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepWithContext,
	}
}

func (a *Adapter) SetRandomSeed(seed int64) {
	a.randMu.Lock()
	a.rand = rand.New(rand.NewSource(seed))
	a.randMu.Unlock()
}

// Target returns the drop cell of col in last: the first empty row from the
// bottom. Rows above it are unreachable.
func Target(last vision.Snapshot, col int) (int, error) {
	row := last.LowestEmptyRow(col)
	if row < 0 {
		return -1, fmt.Errorf("%w: column %d", ErrColumnFull, col)
	}
	return row, nil
}

// PlayColumn drives the pointer through move, settle, click, settle, park.
// The caller re-samples afterwards.
func (a *Adapter) PlayColumn(ctx context.Context, col int, last vision.Snapshot) (Placement, error) {
	row, err := Target(last, col)
	if err != nil {
		return Placement{}, err
	}
	target := a.cal.CellPosition(col, row)
	pl := Placement{Column: col, Row: row, Target: target}

	if err := a.pointer.MovePointer(ctx, target); err != nil {
		return pl, fmt.Errorf("move to %s: %w", target, err)
	}
	if err := a.wait(ctx, a.cfg.SettleDelay); err != nil {
		return pl, err
	}
	if err := a.pointer.Click(ctx); err != nil {
		return pl, fmt.Errorf("click at %s: %w", target, err)
	}
	if err := a.wait(ctx, a.cfg.ClickDelay); err != nil {
		return pl, err
	}
	if err := a.Park(ctx); err != nil {
		return pl, err
	}
	a.logger.Debug("actuator_click",
		zap.Int("column", col),
		zap.Int("row", row),
		zap.Stringer("target", target))
	return pl, nil
}

// Park moves the pointer off the board so it never covers a sampled pixel.
func (a *Adapter) Park(ctx context.Context) error {
	park := a.cal.ParkPosition()
	if err := a.pointer.MovePointer(ctx, park); err != nil {
		return fmt.Errorf("park at %s: %w", park, err)
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context, base time.Duration) error {
	d := base
	if a.cfg.Jitter > 0 {
		a.randMu.Lock()
		d += time.Duration(a.rand.Int63n(int64(a.cfg.Jitter) + 1))
		a.randMu.Unlock()
	}
	return a.sleep(ctx, d)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
