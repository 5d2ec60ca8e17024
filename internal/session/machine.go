package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/actuator"
	"github.com/park285/Connect4-Screen-bot/internal/domain"
	"github.com/park285/Connect4-Screen-bot/internal/engine"
	"github.com/park285/Connect4-Screen-bot/internal/screen"
	"github.com/park285/Connect4-Screen-bot/internal/vision"
	"github.com/park285/Connect4-Screen-bot/pkg/eventdto"
)

const (
	defaultPollInterval      = 250 * time.Millisecond
	defaultStrongAfterPly    = 6
	defaultPlacementAttempts = 8
	recordTimeout            = 5 * time.Second
)

// Operator is the human side: calibration anchors, start signal, results.
type Operator interface {
	vision.Prompter
	AwaitStart(ctx context.Context) error
	SessionEnded(ctx context.Context, rec *domain.GameRecord)
}

// CalibrationNotifier is optionally implemented by an Operator that wants to
// show the accepted calibration.
type CalibrationNotifier interface {
	Calibrated(ctx context.Context, cal *vision.Calibration)
}

type Recorder interface {
	Record(ctx context.Context, rec *domain.GameRecord) error
}

type Publisher interface {
	Publish(ev eventdto.Event)
}

// Diagnostics stores evidence of a desync and returns where it went.
type Diagnostics interface {
	Desync(ctx context.Context, sessionID string, expected, observed vision.Snapshot) (string, error)
}

type Config struct {
	PollInterval time.Duration
	// OpponentTimeout bounds one opponent turn. 0 waits until ctx ends.
	OpponentTimeout time.Duration
	// Solver queries switch to strong once more than StrongAfterPly discs are down.
	StrongAfterPly    int
	PlacementAttempts int
	// WaitForOpponent makes the bot player 1 on an empty board.
	WaitForOpponent     bool
	CalibrationAttempts int
	ColorTolerance      uint8
	Actuator            actuator.Config
}

type Deps struct {
	Screen      screen.Screen
	Engine      engine.Engine
	Book        engine.Book
	Operator    Operator
	Recorder    Recorder
	Publisher   Publisher
	Diagnostics Diagnostics
	Logger      *zap.Logger
}

// Machine sequences calibration and game sessions. It is driven from a single
// goroutine; only State may be read concurrently.
type Machine struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	cal      *vision.Calibration
	sampler  *vision.Sampler
	actuator *actuator.Adapter

	mu    sync.Mutex
	state State

	randMu sync.Mutex
	rand   *rand.Rand
	seeded bool
	seed   int64

	engineClean bool
	pickRandom  func() int
	now         func() time.Time
	newID       func() string
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewMachine(deps Deps, cfg Config) (*Machine, error) {
	if deps.Screen == nil {
		return nil, errors.New("session: screen is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("session: engine is required")
	}
	if deps.Operator == nil {
		return nil, errors.New("session: operator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StrongAfterPly <= 0 {
		cfg.StrongAfterPly = defaultStrongAfterPly
	}
	if cfg.PlacementAttempts <= 0 {
		cfg.PlacementAttempts = defaultPlacementAttempts
	}
	if cfg.OpponentTimeout < 0 {
		cfg.OpponentTimeout = 0
	}

	m := &Machine{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
		state:  at(Calibrating),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		newID:  uuid.NewString,
		sleep:  sleepWithContext,
	}
	m.pickRandom = m.randomColumn
	return m, nil
}

func (m *Machine) SetRandomSeed(seed int64) {
	m.randMu.Lock()
	m.rand = rand.New(rand.NewSource(seed))
	m.seeded, m.seed = true, seed
	m.randMu.Unlock()
	if m.actuator != nil {
		m.actuator.SetRandomSeed(seed + 1)
	}
}

func (m *Machine) randomColumn() int {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return m.rand.Intn(vision.Columns)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Calibration() *vision.Calibration { return m.cal }

// Run calibrates if needed, then plays sessions until ctx ends or the
// operator stops signalling starts.
func (m *Machine) Run(ctx context.Context) error {
	if m.cal == nil {
		if err := m.Calibrate(ctx); err != nil {
			return err
		}
	}
	for {
		m.setState(nil, at(AwaitingStart))
		if err := m.deps.Operator.AwaitStart(ctx); err != nil {
			return err
		}
		if _, err := m.PlaySession(ctx); err != nil {
			return err
		}
	}
}

func (m *Machine) Calibrate(ctx context.Context) error {
	m.setState(nil, at(Calibrating))
	c := vision.NewCalibrator(m.deps.Screen, m.deps.Operator, m.cfg.ColorTolerance, m.logger)
	cal, _, err := c.Run(ctx, m.cfg.CalibrationAttempts)
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	m.UseCalibration(cal)
	if n, ok := m.deps.Operator.(CalibrationNotifier); ok {
		n.Calibrated(ctx, cal)
	}
	m.setState(nil, at(AwaitingStart))
	return nil
}

// UseCalibration installs a calibration and the components derived from it.
func (m *Machine) UseCalibration(cal *vision.Calibration) {
	m.cal = cal
	m.sampler = vision.NewSampler(cal, m.deps.Screen)
	m.actuator = actuator.New(cal, m.deps.Screen, m.cfg.Actuator, m.logger)
	if m.seeded {
		m.actuator.SetRandomSeed(m.seed + 1)
	}
}

// PlaySession runs one game from reset to its terminal state. The returned
// error is non-nil only when ctx ended or the session could not start.
func (m *Machine) PlaySession(ctx context.Context) (*domain.GameRecord, error) {
	sc, st, err := m.reset(ctx)
	if err != nil {
		return nil, err
	}
	for st.Kind != Terminal {
		m.setState(sc, st)
		switch st.Kind {
		case BotTurn:
			st = m.botTurn(ctx, sc)
		case OpponentTurn:
			st = m.opponentTurn(ctx, sc)
		default:
			st = failed(domain.OutcomeError, fmt.Errorf("unexpected state %s", st))
		}
	}
	rec := m.finish(ctx, sc, st)
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	return rec, nil
}

func (m *Machine) reset(ctx context.Context) (*Context, State, error) {
	if m.sampler == nil {
		return nil, State{}, errors.New("session: not calibrated")
	}
	if !m.engineClean {
		if err := m.deps.Engine.Reset(); err != nil {
			return nil, State{}, fmt.Errorf("engine reset: %w", err)
		}
	}
	m.engineClean = false

	snap, err := m.sampler.Sample(ctx)
	if err != nil {
		return nil, State{}, fmt.Errorf("reset sample: %w", err)
	}
	sc := &Context{
		ID:           m.newID(),
		UsingBook:    true,
		FirstBotMove: true,
		Strength:     engine.Weak,
		StrongFrom:   -1,
		Snapshot:     snap,
		Detector:     vision.NewDetector(m.sampler, snap),
		StartedAt:    m.now(),
	}

	var st State
	occ := snap.Occupied()
	switch {
	case len(occ) == 0 && m.cfg.WaitForOpponent:
		sc.BotPlayer, sc.Current = 1, 0
		st = at(OpponentTurn)
	case len(occ) == 0:
		sc.BotPlayer, sc.Current = 0, 0
		st = at(BotTurn)
	case len(occ) == 1:
		// 상대가 먼저 둠: 봇은 player 1
		sc.BotPlayer = 1
		if err := m.registerOpponent(sc, occ[0].Col, occ[0].Row); err != nil {
			st = m.fail(ctx, err)
			break
		}
		sc.Current = 1
		st = at(BotTurn)
	default:
		st = failed(domain.OutcomeDesync, fmt.Errorf("%w: %d discs on board at reset", ErrDesync, len(occ)))
	}

	m.logger.Info("session_reset",
		zap.String("session_id", sc.ID),
		zap.Int("bot_player", sc.BotPlayer),
		zap.Int("occupied", len(occ)),
		zap.Stringer("next", st))
	return sc, st, nil
}

func (m *Machine) botTurn(ctx context.Context, sc *Context) State {
	col, source, err := m.chooseColumn(ctx, sc)
	if err != nil {
		return m.fail(ctx, err)
	}
	return m.playBotMove(ctx, sc, col, source)
}

func (m *Machine) chooseColumn(ctx context.Context, sc *Context) (int, string, error) {
	if sc.FirstBotMove {
		sc.FirstBotMove = false
		return m.pickRandom(), domain.SourceRandom, nil
	}
	if sc.UsingBook {
		col, found, err := m.lookupBook(ctx)
		if err != nil {
			return -1, "", err
		}
		if found {
			return col, domain.SourceBook, nil
		}
		// 한 번 빠지면 이번 세션에서는 다시 보지 않음
		sc.UsingBook = false
		m.logger.Info("book_exhausted", zap.String("session_id", sc.ID), zap.Int("ply", sc.Ply))
	}
	m.applyStrengthPolicy(sc)
	col, err := m.deps.Engine.BestMove(ctx, sc.BotPlayer, sc.Strength)
	if err != nil {
		return -1, "", fmt.Errorf("engine best move: %w", err)
	}
	return col, domain.SourceSolver, nil
}

func (m *Machine) lookupBook(ctx context.Context) (int, bool, error) {
	if m.deps.Book == nil {
		return -1, false, nil
	}
	col, found, err := m.deps.Book.Lookup(ctx, m.deps.Engine.Position())
	if err != nil {
		return -1, false, fmt.Errorf("book lookup: %w", err)
	}
	return col, found, nil
}

// applyStrengthPolicy switches to strong search once per session and clears
// the table at the same moment.
func (m *Machine) applyStrengthPolicy(sc *Context) {
	if sc.Strength == engine.Strong || sc.Ply <= m.cfg.StrongAfterPly {
		return
	}
	sc.Strength = engine.Strong
	sc.StrongFrom = sc.Ply
	m.deps.Engine.ResetTable()
	sc.TableResets++
	m.logger.Info("strength_switch", zap.String("session_id", sc.ID), zap.Int("ply", sc.Ply))
	m.publish(eventdto.Event{Type: eventdto.TypeStrength, SessionID: sc.ID, Ply: sc.Ply, Strength: sc.Strength.String()})
}

func (m *Machine) playBotMove(ctx context.Context, sc *Context, col int, source string) State {
	mask := engine.DropCell(m.deps.Engine.LegalMoves(), col)
	if mask == 0 {
		return failed(domain.OutcomeDesync, fmt.Errorf("%w: column %d", actuator.ErrColumnFull, col))
	}
	row := screenRow(mask)
	expected := sc.Snapshot.WithOccupied(col, row)

	pl, err := m.actuator.PlayColumn(ctx, col, sc.Snapshot)
	if err != nil {
		return m.fail(ctx, err)
	}
	if pl.Row != row {
		m.dumpDesync(ctx, sc, expected, sc.Snapshot)
		return failed(domain.OutcomeDesync, fmt.Errorf("%w: screen row %d, engine row %d", ErrDesync, pl.Row, row))
	}
	if err := m.confirmPlacement(ctx, sc, col, row, expected); err != nil {
		return m.fail(ctx, err)
	}
	if err := m.deps.Engine.ApplyMove(mask, sc.BotPlayer); err != nil {
		return m.fail(ctx, fmt.Errorf("engine apply: %w", err))
	}

	// 기준 스냅샷은 새 샘플이 아니라 예상 보드: 그 사이 상대가 둔 수도 다음 폴링에서 잡힘
	sc.Snapshot = expected
	sc.Detector.Reset(expected)
	sc.record(sc.BotPlayer, col, source)
	m.logger.Info("bot_move",
		zap.String("session_id", sc.ID),
		zap.Int("column", col),
		zap.String("source", source),
		zap.Int("ply", sc.Ply),
		zap.Stringer("strength", sc.Strength))
	m.publishMove(sc, sc.BotPlayer, col, source)

	if st, done := m.terminalAfter(mask, sc.BotPlayer); done {
		return st
	}
	sc.Current = sc.opponent()
	return at(OpponentTurn)
}

// confirmPlacement re-samples until the clicked cell reads occupied.
func (m *Machine) confirmPlacement(ctx context.Context, sc *Context, col, row int, expected vision.Snapshot) error {
	var last vision.Snapshot
	for i := 0; i < m.cfg.PlacementAttempts; i++ {
		fresh, err := m.sampler.Sample(ctx)
		if err != nil {
			return err
		}
		if !fresh.IsEmpty(col, row) {
			return nil
		}
		last = fresh
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
	m.dumpDesync(ctx, sc, expected, last)
	return fmt.Errorf("%w: disc did not appear at (%d,%d)", ErrDesync, col, row)
}

func (m *Machine) opponentTurn(ctx context.Context, sc *Context) State {
	var deadline time.Time
	if m.cfg.OpponentTimeout > 0 {
		deadline = m.now().Add(m.cfg.OpponentTimeout)
	}
	for polls := 1; ; polls++ {
		ch, err := sc.Detector.Detect(ctx)
		if err != nil {
			return m.fail(ctx, err)
		}
		switch ch.Kind {
		case vision.Move:
			prev := sc.Snapshot
			sc.Snapshot = ch.Fresh
			if err := m.registerOpponent(sc, ch.Column, ch.Row); err != nil {
				m.dumpDesync(ctx, sc, prev, ch.Fresh)
				return m.fail(ctx, err)
			}
			if st, done := m.terminalAfter(engineCell(ch.Column, ch.Row), sc.opponent()); done {
				return st
			}
			sc.Current = sc.BotPlayer
			return at(BotTurn)
		case vision.Ambiguous:
			m.dumpDesync(ctx, sc, sc.Detector.Baseline(), ch.Fresh)
			return failed(domain.OutcomeDesync, fmt.Errorf("%w: %d cells changed", ErrDesync, len(ch.Changed)))
		}
		if !deadline.IsZero() && !m.now().Before(deadline) {
			return failed(domain.OutcomeTimeout, fmt.Errorf("%w after %d polls", ErrOpponentTimeout, polls))
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return m.fail(ctx, err)
		}
	}
}

// registerOpponent commits an observed opponent disc. The disc must sit on
// the engine's drop cell for its column.
func (m *Machine) registerOpponent(sc *Context, col, row int) error {
	mask := engineCell(col, row)
	if engine.DropCell(m.deps.Engine.LegalMoves(), col) != mask {
		return fmt.Errorf("%w: disc at (%d,%d) is not the drop cell", ErrDesync, col, row)
	}
	if err := m.deps.Engine.ApplyMove(mask, sc.opponent()); err != nil {
		return fmt.Errorf("engine apply: %w", err)
	}
	sc.record(sc.opponent(), col, domain.SourceOpponent)
	m.logger.Info("opponent_move",
		zap.String("session_id", sc.ID),
		zap.Int("column", col),
		zap.Int("ply", sc.Ply))
	m.publishMove(sc, sc.opponent(), col, domain.SourceOpponent)
	return nil
}

func (m *Machine) terminalAfter(placed uint64, player int) (State, bool) {
	if m.deps.Engine.IsWinningPlacement(placed, player) {
		return won(player), true
	}
	if m.deps.Engine.LegalMoves() == 0 {
		return drawn(), true
	}
	return State{}, false
}

func (m *Machine) fail(ctx context.Context, err error) State {
	switch {
	case ctx.Err() != nil:
		return failed(domain.OutcomeAborted, ctx.Err())
	case errors.Is(err, ErrDesync), errors.Is(err, actuator.ErrColumnFull), errors.Is(err, engine.ErrIllegalMove):
		return failed(domain.OutcomeDesync, err)
	case errors.Is(err, ErrOpponentTimeout):
		return failed(domain.OutcomeTimeout, err)
	default:
		return failed(domain.OutcomeError, err)
	}
}

func (m *Machine) finish(ctx context.Context, sc *Context, st State) *domain.GameRecord {
	end := m.now()
	rec := &domain.GameRecord{
		SessionUUID: sc.ID,
		BotPlayer:   sc.BotPlayer,
		Outcome:     st.Outcome,
		Winner:      st.Winner,
		Moves:       append([]domain.Move(nil), sc.Moves...),
		Ply:         sc.Ply,
		StrongFrom:  sc.StrongFrom,
		TableResets: sc.TableResets,
		StartedAt:   sc.StartedAt,
		EndedAt:     end,
		Duration:    end.Sub(sc.StartedAt),
	}
	if st.Err != nil {
		rec.Detail = st.Err.Error()
	}
	m.setState(sc, st)

	fields := []zap.Field{
		zap.String("session_id", sc.ID),
		zap.String("outcome", rec.Outcome),
		zap.Int("winner", rec.Winner),
		zap.Int("ply", rec.Ply),
		zap.String("moves", rec.Columns()),
	}
	if st.Err != nil {
		m.logger.Warn("session_terminal", append(fields, zap.Error(st.Err))...)
	} else {
		m.logger.Info("session_terminal", fields...)
	}
	m.publish(eventdto.Event{
		Type:      eventdto.TypeTerminal,
		SessionID: sc.ID,
		Ply:       sc.Ply,
		Outcome:   rec.Outcome,
		Winner:    eventdto.IntPtr(rec.Winner),
		Board:     sc.Snapshot.String(),
	})

	if m.deps.Recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if err := m.deps.Recorder.Record(rctx, rec); err != nil {
			m.logger.Warn("record_failed", zap.String("session_id", sc.ID), zap.Error(err))
		}
		cancel()
	}
	m.deps.Operator.SessionEnded(ctx, rec)

	if err := m.deps.Engine.Reset(); err != nil {
		m.logger.Warn("engine_reset_failed", zap.Error(err))
	} else {
		m.engineClean = true
	}
	return rec
}

func (m *Machine) dumpDesync(ctx context.Context, sc *Context, expected, observed vision.Snapshot) {
	if m.deps.Diagnostics == nil {
		return
	}
	path, err := m.deps.Diagnostics.Desync(ctx, sc.ID, expected, observed)
	if err != nil {
		m.logger.Warn("desync_dump_failed", zap.String("session_id", sc.ID), zap.Error(err))
		return
	}
	m.logger.Warn("desync_dumped",
		zap.String("session_id", sc.ID),
		zap.String("path", path),
		zap.String("expected", expected.String()),
		zap.String("observed", observed.String()))
}

func (m *Machine) setState(sc *Context, st State) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	ev := eventdto.Event{Type: eventdto.TypeState, State: st.Kind.String()}
	if sc != nil {
		ev.SessionID = sc.ID
		ev.Ply = sc.Ply
	}
	m.logger.Debug("state", zap.Stringer("state", st))
	m.publish(ev)
}

func (m *Machine) publishMove(sc *Context, player, col int, source string) {
	m.publish(eventdto.Event{
		Type:      eventdto.TypeMove,
		SessionID: sc.ID,
		Player:    eventdto.IntPtr(player),
		Column:    eventdto.IntPtr(col),
		Ply:       sc.Ply,
		Source:    source,
		Board:     sc.Snapshot.String(),
	})
}

func (m *Machine) publish(ev eventdto.Event) {
	if m.deps.Publisher == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = m.now()
	}
	m.deps.Publisher.Publish(ev)
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
