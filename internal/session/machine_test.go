package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/Connect4-Screen-bot/internal/actuator"
	"github.com/park285/Connect4-Screen-bot/internal/domain"
	"github.com/park285/Connect4-Screen-bot/internal/engine"
	"github.com/park285/Connect4-Screen-bot/internal/engine/bitboard"
	"github.com/park285/Connect4-Screen-bot/internal/screen"
	"github.com/park285/Connect4-Screen-bot/internal/screen/screentest"
	"github.com/park285/Connect4-Screen-bot/internal/vision"
	"github.com/park285/Connect4-Screen-bot/pkg/eventdto"
)

type scriptedOperator struct {
	board    *screentest.Board
	starts   int
	rejected int
	ended    []*domain.GameRecord
}

func (o *scriptedOperator) AwaitAnchor(ctx context.Context, a vision.Anchor) error {
	if a == vision.AnchorTopLeft {
		return o.board.MovePointer(ctx, o.board.TopLeft())
	}
	return o.board.MovePointer(ctx, o.board.BottomRight())
}

func (o *scriptedOperator) CalibrationRejected(context.Context, int, error) { o.rejected++ }

func (o *scriptedOperator) AwaitStart(ctx context.Context) error {
	if o.starts <= 0 {
		return context.Canceled
	}
	o.starts--
	return ctx.Err()
}

func (o *scriptedOperator) SessionEnded(_ context.Context, rec *domain.GameRecord) {
	o.ended = append(o.ended, rec)
}

// spyEngine keeps the real board but answers searches from a script.
type spyEngine struct {
	*bitboard.Engine
	script      []int
	strengths   []engine.Strength
	tableResets int
	resets      int
}

func (s *spyEngine) Reset() error {
	s.resets++
	return s.Engine.Reset()
}

func (s *spyEngine) ResetTable() {
	s.tableResets++
	s.Engine.ResetTable()
}

func (s *spyEngine) BestMove(_ context.Context, _ int, strength engine.Strength) (int, error) {
	s.strengths = append(s.strengths, strength)
	legal := s.Engine.LegalMoves()
	for len(s.script) > 0 {
		c := s.script[0]
		s.script = s.script[1:]
		if engine.DropCell(legal, c) != 0 {
			return c, nil
		}
	}
	for c := 0; c < engine.Columns; c++ {
		if engine.DropCell(legal, c) != 0 {
			return c, nil
		}
	}
	return -1, engine.ErrNoMoves
}

type sliceRecorder struct{ recs []*domain.GameRecord }

func (r *sliceRecorder) Record(_ context.Context, rec *domain.GameRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

type sink struct {
	mu     sync.Mutex
	events []eventdto.Event
}

func (s *sink) Publish(ev eventdto.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

type desyncSpy struct{ calls int }

func (d *desyncSpy) Desync(context.Context, string, vision.Snapshot, vision.Snapshot) (string, error) {
	d.calls++
	return "desync.png", nil
}

type stubBook struct {
	cols    []int
	lookups int
}

func (b *stubBook) Lookup(context.Context, engine.Position) (int, bool, error) {
	b.lookups++
	if len(b.cols) == 0 {
		return -1, false, nil
	}
	c := b.cols[0]
	b.cols = b.cols[1:]
	return c, true, nil
}

type harness struct {
	m     *Machine
	board *screentest.Board
	spy   *spyEngine
	op    *scriptedOperator
	rec   *sliceRecorder
	sink  *sink
	diag  *desyncSpy
	clock time.Time
}

func newHarness(t *testing.T, book engine.Book) *harness {
	t.Helper()
	h := &harness{
		board: screentest.NewBoard(screen.Point{X: 100, Y: 100}, screen.Point{X: 50, Y: 50}),
		spy:   &spyEngine{Engine: bitboard.New(1)},
		rec:   &sliceRecorder{},
		sink:  &sink{},
		diag:  &desyncSpy{},
		clock: time.Unix(1700000000, 0),
	}
	h.op = &scriptedOperator{board: h.board}
	deps := Deps{
		Screen:      h.board,
		Engine:      h.spy,
		Operator:    h.op,
		Recorder:    h.rec,
		Publisher:   h.sink,
		Diagnostics: h.diag,
	}
	if book != nil {
		deps.Book = book
	}
	m, err := NewMachine(deps, Config{
		PollInterval:      10 * time.Millisecond,
		OpponentTimeout:   time.Second,
		PlacementAttempts: 3,
		Actuator:          actuator.Config{SettleDelay: time.Microsecond, ClickDelay: time.Microsecond},
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.now = func() time.Time { return h.clock }
	m.sleep = func(ctx context.Context, d time.Duration) error {
		h.clock = h.clock.Add(d)
		return ctx.Err()
	}
	m.pickRandom = func() int { return 3 }
	h.m = m
	if err := m.Calibrate(context.Background()); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	return h
}

func colorOf(player int) screen.RGB {
	if player == 0 {
		return screentest.Red
	}
	return screentest.Yellow
}

// place drops a disc on screen and in the engine without going through the bot.
func (h *harness) place(t *testing.T, col, player int) {
	t.Helper()
	mask := engine.DropCell(h.spy.LegalMoves(), col)
	if err := h.spy.ApplyMove(mask, player); err != nil {
		t.Fatalf("engine apply col %d: %v", col, err)
	}
	if err := h.board.DropColor(col, colorOf(player)); err != nil {
		t.Fatalf("board drop col %d: %v", col, err)
	}
}

// resync makes the session context match what is on screen.
func (h *harness) resync(t *testing.T, sc *Context) {
	t.Helper()
	snap, err := h.m.sampler.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	sc.Snapshot = snap
	sc.Detector.Reset(snap)
	sc.Ply = snap.OccupiedCount()
}

func (h *harness) reset(t *testing.T) (*Context, State) {
	t.Helper()
	sc, st, err := h.m.reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	return sc, st
}

func TestRandomFirstMoveThenOpponentColumnThree(t *testing.T) {
	h := newHarness(t, nil)
	h.m.pickRandom = h.m.randomColumn
	h.m.SetRandomSeed(42)
	ctx := context.Background()

	sc, st := h.reset(t)
	if st.Kind != BotTurn || sc.BotPlayer != 0 {
		t.Fatalf("reset: state=%s bot=%d", st, sc.BotPlayer)
	}
	st = h.m.botTurn(ctx, sc)
	if st.Kind != OpponentTurn {
		t.Fatalf("after bot move: %s (%v)", st, st.Err)
	}
	first := sc.Moves[0]
	if first.Source != domain.SourceRandom || first.Column < 0 || first.Column > 6 {
		t.Fatalf("first move = %+v", first)
	}
	if h.board.Cell(first.Column, vision.Rows-1) != screentest.Red {
		t.Fatalf("bot disc missing in column %d", first.Column)
	}
	if h.board.Pointer() != h.m.Calibration().ParkPosition() {
		t.Fatalf("pointer not parked: %v", h.board.Pointer())
	}

	if err := h.board.Drop(3); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	st = h.m.opponentTurn(ctx, sc)
	if st.Kind != BotTurn {
		t.Fatalf("after opponent move: %s (%v)", st, st.Err)
	}
	if got := sc.Moves[1]; got.Column != 3 || got.Source != domain.SourceOpponent || got.Player != 1 {
		t.Fatalf("opponent move = %+v", got)
	}
	if sc.Current != sc.BotPlayer {
		t.Fatalf("current player not flipped back to bot")
	}
}

func TestStrongSearchAfterSevenDiscs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sc, _ := h.reset(t)
	for i, col := range []int{3, 3, 2, 4, 2, 2, 4} {
		h.place(t, col, i%2)
	}
	h.resync(t, sc)
	sc.BotPlayer, sc.Current = 1, 1
	sc.FirstBotMove, sc.UsingBook = false, false

	st := h.m.botTurn(ctx, sc)
	if st.Kind != OpponentTurn {
		t.Fatalf("bot turn: %s (%v)", st, st.Err)
	}
	if len(h.spy.strengths) != 1 || h.spy.strengths[0] != engine.Strong {
		t.Fatalf("strengths = %v", h.spy.strengths)
	}
	if h.spy.tableResets != 1 || sc.TableResets != 1 || sc.StrongFrom != 7 {
		t.Fatalf("table resets spy=%d ctx=%d strongFrom=%d", h.spy.tableResets, sc.TableResets, sc.StrongFrom)
	}

	_ = h.board.Drop(5)
	if st = h.m.opponentTurn(ctx, sc); st.Kind != BotTurn {
		t.Fatalf("opponent turn: %s (%v)", st, st.Err)
	}
	if st = h.m.botTurn(ctx, sc); st.Kind != OpponentTurn {
		t.Fatalf("second bot turn: %s (%v)", st, st.Err)
	}
	if h.spy.tableResets != 1 || h.spy.strengths[1] != engine.Strong {
		t.Fatalf("switch must happen once: resets=%d strengths=%v", h.spy.tableResets, h.spy.strengths)
	}
}

func TestWeakSearchAtSixDiscs(t *testing.T) {
	h := newHarness(t, nil)
	sc, _ := h.reset(t)
	for i, col := range []int{3, 3, 2, 4, 2, 2} {
		h.place(t, col, i%2)
	}
	h.resync(t, sc)
	sc.FirstBotMove, sc.UsingBook = false, false

	if st := h.m.botTurn(context.Background(), sc); st.Kind != OpponentTurn {
		t.Fatalf("bot turn: %s (%v)", st, st.Err)
	}
	if h.spy.strengths[0] != engine.Weak || h.spy.tableResets != 0 {
		t.Fatalf("strengths=%v resets=%d", h.spy.strengths, h.spy.tableResets)
	}
}

func patternOwner(col, row int) int { return ((col / 2) % 2) ^ (row % 2) }

func TestFullBoardIsDrawThenFreshSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sc, _ := h.reset(t)
	for r := 0; r < engine.Rows; r++ {
		for c := 0; c < engine.Columns; c++ {
			if r == engine.Rows-1 && c == 0 {
				continue
			}
			h.place(t, c, patternOwner(c, r))
		}
	}
	h.resync(t, sc)
	if sc.Ply != 41 {
		t.Fatalf("ply = %d", sc.Ply)
	}
	sc.BotPlayer, sc.Current = 0, 1

	_ = h.board.Drop(0)
	st := h.m.opponentTurn(ctx, sc)
	if st.Kind != Terminal || st.Outcome != domain.OutcomeDraw {
		t.Fatalf("expected draw, got %s (%v)", st, st.Err)
	}
	rec := h.m.finish(ctx, sc, st)
	if rec.Outcome != domain.OutcomeDraw || rec.Ply != 42 || len(h.rec.recs) != 1 {
		t.Fatalf("record = %+v", rec)
	}

	h.board.Clear()
	sc2, st2 := h.reset(t)
	if st2.Kind != BotTurn || sc2.Ply != 0 || sc2.Snapshot.OccupiedCount() != 0 {
		t.Fatalf("fresh session: state=%s ply=%d", st2, sc2.Ply)
	}
	if h.spy.LegalMoves() != engine.BottomRow {
		t.Fatalf("engine not reset")
	}
	if !sc2.UsingBook || !sc2.FirstBotMove || sc2.Strength != engine.Weak {
		t.Fatalf("session flags not reset: %+v", sc2)
	}
}

func TestPlaySessionBotWinsVertically(t *testing.T) {
	h := newHarness(t, nil)
	h.m.pickRandom = func() int { return 0 }
	h.spy.script = []int{0, 0, 0}
	h.board.Reply(1, 1, 2)

	rec, err := h.m.PlaySession(context.Background())
	if err != nil {
		t.Fatalf("PlaySession: %v", err)
	}
	if rec.Outcome != domain.OutcomeWin || rec.Winner != 0 || !rec.BotWon() {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Columns() != "0101020" {
		t.Fatalf("moves = %s", rec.Columns())
	}
	if len(h.spy.strengths) != 3 || h.spy.tableResets != 0 {
		t.Fatalf("strengths=%v resets=%d", h.spy.strengths, h.spy.tableResets)
	}
	if len(h.rec.recs) != 1 || len(h.op.ended) != 1 {
		t.Fatalf("recorded=%d ended=%d", len(h.rec.recs), len(h.op.ended))
	}
	if h.m.State().Kind != Terminal {
		t.Fatalf("state = %s", h.m.State())
	}
}

func TestPlaySessionOpponentMovedFirst(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.board.Drop(3); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	h.m.pickRandom = func() int { return 2 }

	rec, err := h.m.PlaySession(context.Background())
	if err != nil {
		t.Fatalf("PlaySession: %v", err)
	}
	if rec.BotPlayer != 1 {
		t.Fatalf("bot player = %d", rec.BotPlayer)
	}
	want := []domain.Move{
		{Ply: 1, Player: 0, Column: 3, Source: domain.SourceOpponent},
		{Ply: 2, Player: 1, Column: 2, Source: domain.SourceRandom},
	}
	if len(rec.Moves) != len(want) {
		t.Fatalf("moves = %+v", rec.Moves)
	}
	for i := range want {
		if rec.Moves[i] != want[i] {
			t.Fatalf("move %d = %+v, want %+v", i, rec.Moves[i], want[i])
		}
	}
	// 상대 응수가 없으므로 시간 초과로 끝남
	if rec.Outcome != domain.OutcomeTimeout {
		t.Fatalf("outcome = %s", rec.Outcome)
	}
}

func TestWaitForOpponentOnEmptyBoard(t *testing.T) {
	h := newHarness(t, nil)
	h.m.cfg.WaitForOpponent = true
	sc, st := h.reset(t)
	if st.Kind != OpponentTurn || sc.BotPlayer != 1 {
		t.Fatalf("state=%s bot=%d", st, sc.BotPlayer)
	}
}

func TestAmbiguousChangeIsDesync(t *testing.T) {
	h := newHarness(t, nil)
	h.board.QueueAction(func(b *screentest.Board) {
		_ = b.DropLocked(0, screentest.Yellow)
		_ = b.DropLocked(6, screentest.Yellow)
	})
	rec, err := h.m.PlaySession(context.Background())
	if err != nil {
		t.Fatalf("PlaySession: %v", err)
	}
	if rec.Outcome != domain.OutcomeDesync {
		t.Fatalf("outcome = %s (%s)", rec.Outcome, rec.Detail)
	}
	if h.diag.calls != 1 {
		t.Fatalf("diagnostics calls = %d", h.diag.calls)
	}
	if rec.Ply != 1 {
		t.Fatalf("no opponent move may be registered, ply=%d", rec.Ply)
	}
}

func TestFloatingDiscIsDesync(t *testing.T) {
	h := newHarness(t, nil)
	h.board.QueueAction(func(b *screentest.Board) { b.SetLocked(5, 2, screentest.Yellow) })
	rec, err := h.m.PlaySession(context.Background())
	if err != nil {
		t.Fatalf("PlaySession: %v", err)
	}
	if rec.Outcome != domain.OutcomeDesync {
		t.Fatalf("outcome = %s (%s)", rec.Outcome, rec.Detail)
	}
}

func TestSwallowedClickIsDesync(t *testing.T) {
	h := newHarness(t, nil)
	h.board.SwallowClicks = true
	rec, err := h.m.PlaySession(context.Background())
	if err != nil {
		t.Fatalf("PlaySession: %v", err)
	}
	if rec.Outcome != domain.OutcomeDesync || rec.Ply != 0 {
		t.Fatalf("record = %+v", rec)
	}
	if len(h.board.Clicks()) != 1 {
		t.Fatalf("clicks = %d", len(h.board.Clicks()))
	}
}

func TestResetWithTwoDiscsIsDesync(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.board.Drop(1)
	_ = h.board.Drop(2)
	rec, err := h.m.PlaySession(context.Background())
	if err != nil {
		t.Fatalf("PlaySession: %v", err)
	}
	if rec.Outcome != domain.OutcomeDesync || len(h.board.Clicks()) != 0 {
		t.Fatalf("record = %+v clicks=%d", rec, len(h.board.Clicks()))
	}
}

func TestFullColumnRequestIsDesync(t *testing.T) {
	h := newHarness(t, nil)
	sc, _ := h.reset(t)
	for r := 0; r < engine.Rows; r++ {
		h.place(t, 0, r%2)
	}
	h.resync(t, sc)
	st := h.m.playBotMove(context.Background(), sc, 0, domain.SourceSolver)
	if st.Kind != Terminal || st.Outcome != domain.OutcomeDesync || !errors.Is(st.Err, actuator.ErrColumnFull) {
		t.Fatalf("state=%s err=%v", st, st.Err)
	}
}

func TestBookUsedUntilFirstMiss(t *testing.T) {
	book := &stubBook{cols: []int{4}}
	h := newHarness(t, book)
	h.board.Reply(3, 3)

	rec, err := h.m.PlaySession(context.Background())
	if err != nil {
		t.Fatalf("PlaySession: %v", err)
	}
	sources := make([]string, 0, len(rec.Moves))
	for _, mv := range rec.Moves {
		sources = append(sources, mv.Source)
	}
	want := []string{domain.SourceRandom, domain.SourceOpponent, domain.SourceBook, domain.SourceOpponent, domain.SourceSolver}
	if len(sources) != len(want) {
		t.Fatalf("sources = %v", sources)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Fatalf("sources = %v", sources)
		}
	}
	if book.lookups != 2 {
		t.Fatalf("book lookups = %d", book.lookups)
	}
}

func TestRunCalibratesOnceAndLoops(t *testing.T) {
	h := newHarness(t, nil)
	h.op.starts = 2
	err := h.m.Run(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
	if len(h.op.ended) != 2 {
		t.Fatalf("sessions ended = %d", len(h.op.ended))
	}
	if h.m.State().Kind != AwaitingStart {
		t.Fatalf("state = %s", h.m.State())
	}
	var sawTerminal bool
	for _, ev := range h.sink.events {
		if ev.Type == eventdto.TypeTerminal {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Fatalf("no terminal event published")
	}
}

func TestCancelledContextAborts(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.m.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	rec, err := h.m.PlaySession(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if rec == nil || rec.Outcome != domain.OutcomeAborted {
		t.Fatalf("record = %+v", rec)
	}
}
