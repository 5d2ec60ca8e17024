package botbuilder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/actuator"
	"github.com/park285/Connect4-Screen-bot/internal/config"
	"github.com/park285/Connect4-Screen-bot/internal/engine"
	"github.com/park285/Connect4-Screen-bot/internal/engine/bitboard"
	"github.com/park285/Connect4-Screen-bot/internal/engine/book"
	"github.com/park285/Connect4-Screen-bot/internal/engine/solverproc"
	"github.com/park285/Connect4-Screen-bot/internal/events"
	"github.com/park285/Connect4-Screen-bot/internal/msgcat"
	"github.com/park285/Connect4-Screen-bot/internal/operator"
	"github.com/park285/Connect4-Screen-bot/internal/render"
	"github.com/park285/Connect4-Screen-bot/internal/screen"
	"github.com/park285/Connect4-Screen-bot/internal/session"
	"github.com/park285/Connect4-Screen-bot/internal/store"
)

type Deps struct {
	Machine  *session.Machine
	Console  *operator.Console
	Hub      *events.Hub
	Agent    *screen.AgentClient
	Screen   screen.Screen
	Engine   engine.Engine
	Book     *book.Book
	Recorder *store.Multi
	Repo     store.Repository

	closers []func() error
}

type Option func(*options)

type options struct {
	in     io.Reader
	out    io.Writer
	screen screen.Screen
}

// WithConsoleIO replaces the tty console with in/out.
func WithConsoleIO(in io.Reader, out io.Writer) Option {
	return func(o *options) { o.in, o.out = in, out }
}

// WithScreen replaces the configured screen backend.
func WithScreen(s screen.Screen) Option {
	return func(o *options) { o.screen = s }
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d := &Deps{}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	// Screen
	d.Agent = screen.NewAgentClient(cfg.ScreenAgentURL,
		screen.WithTimeout(cfg.ScreenAgentTimeout),
		screen.WithHeaderProvider(tokenHeaders(cfg.ScreenAgentToken)),
	)
	switch {
	case o.screen != nil:
		d.Screen = o.screen
	case cfg.ScreenBackend == config.ScreenLocal:
		// 픽셀은 로컬 캡처, 포인터는 에이전트
		d.Screen = screen.Combine(screen.NewLocalSampler(), d.Agent)
	default:
		d.Screen = d.Agent
	}

	// Engine
	d.Engine, err = newEngine(ctx, cfg, logger, d)
	if err != nil {
		return nil, err
	}

	// Book (empty path → always miss)
	d.Book, err = book.Open(cfg.BookPath)
	if err != nil {
		return nil, fmt.Errorf("open book: %w", err)
	}
	if cfg.BookPath != "" {
		logger.Info("book_loaded", zap.String("path", cfg.BookPath), zap.Int("entries", d.Book.Len()))
	}

	// Records
	recorders, err := newRecorders(ctx, cfg, logger, d)
	if err != nil {
		return nil, err
	}
	d.Recorder = store.NewMulti(logger, recorders...)

	d.Hub = events.NewHub(logger.Named("events"))

	in, out := o.in, o.out
	if in == nil {
		tty, restore, terr := operator.OpenTTY("")
		if terr != nil {
			logger.Warn("tty_unavailable", zap.Error(terr))
		}
		in = tty
		d.closers = append(d.closers, func() error { restore(); return nil })
	}
	if out == nil {
		out = os.Stdout
	}
	d.Console = operator.NewConsole(in, out, msgs, logger.Named("operator"))
	d.Console.SetRemoteStarts(d.Hub.Starts())

	d.Machine, err = session.NewMachine(session.Deps{
		Screen:      d.Screen,
		Engine:      d.Engine,
		Book:        d.Book,
		Operator:    d.Console,
		Recorder:    d.Recorder,
		Publisher:   d.Hub,
		Diagnostics: render.NewDiagnostics(cfg.DiagnosticsDir, logger.Named("render")),
		Logger:      logger.Named("session"),
	}, SessionConfig(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.RandomSeed != 0 {
		d.Machine.SetRandomSeed(cfg.RandomSeed)
	}
	return d, nil
}

// SessionConfig maps AppConfig onto the state machine's settings.
func SessionConfig(cfg *config.AppConfig) session.Config {
	return session.Config{
		PollInterval:        cfg.PollInterval,
		OpponentTimeout:     cfg.OpponentTimeout,
		StrongAfterPly:      cfg.StrongAfterPly,
		PlacementAttempts:   cfg.PlacementAttempts,
		WaitForOpponent:     cfg.WaitForOpponent,
		CalibrationAttempts: cfg.CalibrationAttempts,
		ColorTolerance:      uint8(cfg.ColorTolerance),
		Actuator: actuator.Config{
			SettleDelay: cfg.SettleDelay,
			ClickDelay:  cfg.ClickDelay,
			Jitter:      cfg.Jitter,
		},
	}
}

func newEngine(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, d *Deps) (engine.Engine, error) {
	if cfg.EngineBackend != config.EngineProcess {
		return bitboard.New(cfg.HashMB), nil
	}
	sess, err := solverproc.NewSession(ctx, cfg.SolverPath, solverproc.Options{
		Args:   cfg.SolverArgs,
		HashMB: cfg.HashMB,
	}, logger.Named("solver"))
	if err != nil {
		return nil, fmt.Errorf("init solver: %w", err)
	}
	eng := solverproc.NewEngine(sess, logger.Named("solver"))
	d.closers = append(d.closers, eng.Close)
	return eng, nil
}

func newRecorders(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, d *Deps) ([]store.Recorder, error) {
	var out []store.Recorder

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)
		if err := store.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		d.Repo = store.NewRepository(db)
	} else {
		logger.Info("database_not_configured", zap.String("fallback", "memory"))
		d.Repo = store.NewMemoryRepository()
	}
	out = append(out, store.RepositoryRecorder{Repo: d.Repo})

	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, rdb.Close)
		out = append(out, store.NewRedisRecorder(rdb, cfg.RecentGames))
	}
	return out, nil
}

func tokenHeaders(token string) screen.HeaderProvider {
	return func() map[string]string {
		if strings.TrimSpace(token) == "" {
			return nil
		}
		return map[string]string{"Authorization": "Bearer " + token}
	}
}

// Close releases everything New opened, in reverse order.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
