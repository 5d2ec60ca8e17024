// Package operator is the interactive console side of the bot: calibration
// prompts, the start signal and session results.
package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/term"
	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
	"github.com/park285/Connect4-Screen-bot/internal/msgcat"
	"github.com/park285/Connect4-Screen-bot/internal/vision"
)

// ErrQuit is returned by AwaitStart when the operator presses q.
var ErrQuit = errors.New("operator: quit")

// Console implements session.Operator on a terminal.
type Console struct {
	out    io.Writer
	outMu  sync.Mutex
	keys   chan byte
	msgs   *msgcat.Catalog
	remote <-chan struct{}
	logger *zap.Logger
}

// NewConsole reads single keypresses from in. msgs may be nil.
func NewConsole(in io.Reader, out io.Writer, msgs *msgcat.Catalog, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Console{out: out, keys: make(chan byte, 16), msgs: msgs, logger: logger}
	go c.readKeys(in)
	return c
}

// OpenTTY opens the controlling terminal in cbreak mode so a single key press
// is delivered without waiting for a line. Falls back to stdin when there is
// no tty.
func OpenTTY(path string) (io.Reader, func(), error) {
	if path == "" {
		path = "/dev/tty"
	}
	t, err := term.Open(path, term.CBreakMode)
	if err != nil {
		return os.Stdin, func() {}, fmt.Errorf("open %s: %w", path, err)
	}
	restore := func() {
		_ = t.Restore()
		_ = t.Close()
	}
	return t, restore, nil
}

// SetRemoteStarts lets a remote observer start sessions too.
func (c *Console) SetRemoteStarts(ch <-chan struct{}) { c.remote = ch }

func (c *Console) readKeys(in io.Reader) {
	defer close(c.keys)
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n == 1 {
			c.keys <- buf[0]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("console_read_failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Console) say(key string, data any, fallback string) {
	text := c.msgs.Text(key, data, fallback)
	c.outMu.Lock()
	fmt.Fprintln(c.out, text)
	c.outMu.Unlock()
}

// waitKey blocks for Enter (nil) or q (ErrQuit). Remote starts count as
// Enter when allowRemote is set.
func (c *Console) waitKey(ctx context.Context, allowRemote bool) error {
	var remote <-chan struct{}
	if allowRemote {
		remote = c.remote
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-remote:
			c.say("operator.remote_start", nil, "remote start")
			return nil
		case k, ok := <-c.keys:
			if !ok {
				return io.EOF
			}
			switch k {
			case '\n', '\r', ' ':
				return nil
			case 'q', 'Q':
				if allowRemote {
					return ErrQuit
				}
			}
		}
	}
}

func (c *Console) AwaitAnchor(ctx context.Context, a vision.Anchor) error {
	if a == vision.AnchorTopLeft {
		c.say("operator.anchor.top_left", nil, "Hover the top-left cell and press Enter.")
	} else {
		c.say("operator.anchor.bottom_right", nil, "Hover the bottom-right cell and press Enter.")
	}
	return c.waitKey(ctx, false)
}

func (c *Console) CalibrationRejected(_ context.Context, attempt int, err error) {
	c.logger.Warn("calibration_rejected", zap.Int("attempt", attempt), zap.Error(err))
	c.say("operator.calibration_rejected", map[string]any{"Attempt": attempt, "Reason": err.Error()},
		fmt.Sprintf("calibration rejected (attempt %d): %v", attempt, err))
}

func (c *Console) Calibrated(_ context.Context, cal *vision.Calibration) {
	e := cal.EmptyColor
	c.say("operator.calibration_ok", map[string]any{
		"PitchX": cal.Pitch.X,
		"PitchY": cal.Pitch.Y,
		"Empty":  fmt.Sprintf("#%02x%02x%02x", e.R, e.G, e.B),
	}, "calibrated")
}

func (c *Console) AwaitStart(ctx context.Context) error {
	c.say("operator.await_start", nil, "Set up a new game and press Enter (q to quit).")
	return c.waitKey(ctx, true)
}

func (c *Console) SessionEnded(_ context.Context, rec *domain.GameRecord) {
	key := "operator.session." + rec.Outcome
	if rec.Outcome == domain.OutcomeWin && !rec.BotWon() {
		key = "operator.session.loss"
	}
	c.say(key, map[string]any{
		"Ply":    rec.Ply,
		"Moves":  rec.Columns(),
		"Detail": rec.Detail,
	}, fmt.Sprintf("session %s: %s (%s)", rec.SessionUUID, rec.Outcome, rec.Columns()))
}
