package operator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
	"github.com/park285/Connect4-Screen-bot/internal/msgcat"
	"github.com/park285/Connect4-Screen-bot/internal/vision"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func newConsole(t *testing.T, in io.Reader) (*Console, *syncBuffer) {
	t.Helper()
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	out := &syncBuffer{}
	return NewConsole(in, out, msgs, nil), out
}

func timeoutCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestAwaitAnchorWaitsForEnter(t *testing.T) {
	// q는 보정 중에는 무시
	c, out := newConsole(t, strings.NewReader("xq\n"))
	if err := c.AwaitAnchor(timeoutCtx(t), vision.AnchorTopLeft); err != nil {
		t.Fatalf("AwaitAnchor: %v", err)
	}
	if !strings.Contains(out.String(), "왼쪽 위") {
		t.Fatalf("prompt = %q", out.String())
	}
}

func TestAwaitStartQuit(t *testing.T) {
	c, _ := newConsole(t, strings.NewReader("q"))
	if err := c.AwaitStart(timeoutCtx(t)); !errors.Is(err, ErrQuit) {
		t.Fatalf("AwaitStart: %v", err)
	}
}

func TestAwaitStartEOF(t *testing.T) {
	c, _ := newConsole(t, strings.NewReader(""))
	if err := c.AwaitStart(timeoutCtx(t)); !errors.Is(err, io.EOF) {
		t.Fatalf("AwaitStart: %v", err)
	}
}

func TestAwaitStartRemote(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	c, out := newConsole(t, pr)
	starts := make(chan struct{}, 1)
	starts <- struct{}{}
	c.SetRemoteStarts(starts)

	if err := c.AwaitStart(timeoutCtx(t)); err != nil {
		t.Fatalf("AwaitStart: %v", err)
	}
	if !strings.Contains(out.String(), "원격") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestAwaitStartCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	c, _ := newConsole(t, pr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.AwaitStart(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("AwaitStart: %v", err)
	}
}

func TestSessionEndedMessages(t *testing.T) {
	cases := []struct {
		rec  domain.GameRecord
		want string
	}{
		{domain.GameRecord{Outcome: domain.OutcomeWin, Winner: 0, BotPlayer: 0, Ply: 7, Moves: []domain.Move{{Column: 0}, {Column: 1}}}, "승리"},
		{domain.GameRecord{Outcome: domain.OutcomeWin, Winner: 1, BotPlayer: 0, Ply: 8}, "패배"},
		{domain.GameRecord{Outcome: domain.OutcomeDesync, Winner: -1, Detail: "2 cells changed"}, "2 cells changed"},
		{domain.GameRecord{Outcome: domain.OutcomeDraw, Winner: -1}, "무승부"},
	}
	for _, tc := range cases {
		c, out := newConsole(t, strings.NewReader(""))
		rec := tc.rec
		c.SessionEnded(context.Background(), &rec)
		if !strings.Contains(out.String(), tc.want) {
			t.Errorf("%s: output %q missing %q", rec.Outcome, out.String(), tc.want)
		}
	}
}

func TestCalibratedMessage(t *testing.T) {
	c, out := newConsole(t, strings.NewReader(""))
	cal := &vision.Calibration{}
	cal.Pitch.X, cal.Pitch.Y = 50, 40
	cal.EmptyColor.R, cal.EmptyColor.G, cal.EmptyColor.B = 0xf0, 0xf0, 0xf0
	c.Calibrated(context.Background(), cal)
	if !strings.Contains(out.String(), "50x40") || !strings.Contains(out.String(), "#f0f0f0") {
		t.Fatalf("output = %q", out.String())
	}
}
