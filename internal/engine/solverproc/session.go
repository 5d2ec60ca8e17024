package solverproc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	defaultWeakTimeout   = 30 * time.Second
	defaultStrongTimeout = 5 * time.Minute
)

type Options struct {
	Args   []string
	Env    []string
	HashMB int
	// 0이면 기본값
	WeakTimeout   time.Duration
	StrongTimeout time.Duration
}

// Session speaks the line protocol of an external solver process:
//
//	c4 -> c4ok, isready -> readyok, newgame, clearhash,
//	position <p0> <p1>, go <player> <weak|strong> -> bestmove <col>
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	opt    Options
	logger *zap.Logger
	mu     sync.Mutex

	// search는 명령 단위 직렬화. pending도 이 락 아래에서만 접근.
	search sync.Mutex
	// 타임아웃으로 버려진 go 명령 수. 다음 명령 전에 그만큼 bestmove를 소진.
	pending         int
	pendingStrength engine.Strength

	// stdout은 readLoop 하나만 읽는다.
	lines     chan string
	readErr   error
	done      chan struct{}
	closeOnce sync.Once
}

type SearchResponse struct {
	Column int
	Score  int
	// Score가 info 줄로 보고됐는지
	Scored bool
}

func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if strings.TrimSpace(binaryPath) == "" {
		return nil, fmt.Errorf("solver path is empty")
	}
	if opt.HashMB < 0 {
		return nil, fmt.Errorf("hash size must be >= 0: %d", opt.HashMB)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, binaryPath, opt.Args...)
	if len(opt.Env) > 0 {
		cmd.Env = append(os.Environ(), opt.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start solver: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		opt:    opt,
		logger: logger,
		lines:  make(chan string, 16),
		done:   make(chan struct{}),
	}
	go s.readLoop(bufio.NewReader(stdoutPipe))
	if err := s.initialize(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) Search(ctx context.Context, pos engine.Position, player int, strength engine.Strength) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.drainPending(ctx); err != nil {
		return SearchResponse{}, err
	}

	positionCmd := buildPositionCommand(pos)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	goCmd := fmt.Sprintf("go %d %s\n", player, strength)
	if err := s.send(goCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout(strength))
	defer cancel()

	var resp SearchResponse
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			if searchCtx.Err() != nil {
				// 솔버는 결국 이 go에 대한 bestmove를 낸다
				s.pending++
				s.pendingStrength = strength
			}
			s.logger.Warn("solver_read_error",
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", strings.TrimSpace(goCmd)),
				zap.Error(err))
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "info "):
			if sc, ok := parseInfoScore(line); ok {
				resp.Score, resp.Scored = sc, true
			}
		case strings.HasPrefix(line, "bestmove"):
			col, err := parseBestMove(line)
			if err != nil {
				return SearchResponse{}, err
			}
			resp.Column = col
			return resp, nil
		}
	}
}

// drainPending discards the answers of searches that were abandoned on
// timeout, so the next command never reads a bestmove meant for an older
// position.
func (s *Session) drainPending(ctx context.Context) error {
	if s.pending == 0 {
		return nil
	}
	wait := s.searchTimeout(s.pendingStrength)
	if wait < defaultReadyTimeout {
		wait = defaultReadyTimeout
	}
	drainCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	for s.pending > 0 {
		line, err := s.readLine(drainCtx)
		if err != nil {
			return fmt.Errorf("drain stale search: %w", err)
		}
		if strings.HasPrefix(line, "bestmove") {
			s.pending--
			s.logger.Debug("solver_stale_bestmove_dropped", zap.String("line", line))
		}
	}
	return nil
}

func (s *Session) searchTimeout(strength engine.Strength) time.Duration {
	if strength == engine.Strong {
		if s.opt.StrongTimeout > 0 {
			return s.opt.StrongTimeout
		}
		return defaultStrongTimeout
	}
	if s.opt.WeakTimeout > 0 {
		return s.opt.WeakTimeout
	}
	return defaultWeakTimeout
}

func buildPositionCommand(pos engine.Position) string {
	return fmt.Sprintf("position %x %x\n", pos.Stones[0], pos.Stones[1])
}

func parseBestMove(line string) (int, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return -1, fmt.Errorf("malformed bestmove line %q", line)
	}
	col, err := strconv.Atoi(parts[1])
	if err != nil {
		return -1, fmt.Errorf("malformed bestmove column %q: %w", parts[1], err)
	}
	if col < 0 || col >= engine.Columns {
		return -1, fmt.Errorf("bestmove column %d out of range", col)
	}
	return col, nil
}

func parseInfoScore(line string) (int, bool) {
	parts := strings.Fields(line)
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "score" {
			v, err := strconv.Atoi(parts[i+1])
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

func (s *Session) EnsureReady(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.drainPending(ctx); err != nil {
		return err
	}
	return s.ensureReady(ctx)
}

func (s *Session) ensureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	return s.commandThenReady(ctx, "newgame\n")
}

func (s *Session) ClearHash(ctx context.Context) error {
	return s.commandThenReady(ctx, "clearhash\n")
}

func (s *Session) commandThenReady(ctx context.Context, cmd string) error {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.drainPending(ctx); err != nil {
		return err
	}
	if err := s.send(cmd); err != nil {
		return fmt.Errorf("send %s: %w", strings.TrimSpace(cmd), err)
	}
	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.ensureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts {
			return err
		}
		s.logger.Warn("solver_ready_retry",
			zap.String("after", strings.TrimSpace(cmd)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cmd != nil {
		return s.cmd.Wait()
	}
	return nil
}

func (s *Session) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("c4\n"); err != nil {
		return fmt.Errorf("send c4: %w", err)
	}
	if err := s.awaitToken(initCtx, "c4ok"); err != nil {
		return fmt.Errorf("wait c4ok: %w", err)
	}
	if s.opt.HashMB > 0 {
		if err := s.send(fmt.Sprintf("hash %d\n", s.opt.HashMB)); err != nil {
			return fmt.Errorf("send hash: %w", err)
		}
	}
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

// readLoop owns the stdout reader for the lifetime of the process.
func (s *Session) readLoop(r *bufio.Reader) {
	defer close(s.lines)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			select {
			case s.lines <- strings.TrimSpace(line):
			case <-s.done:
				return
			}
		}
		if err != nil {
			// close(s.lines) 이전에 기록되므로 수신 측에서 안전하게 읽힘
			s.readErr = err
			return
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			if s.readErr != nil {
				return "", s.readErr
			}
			return "", io.EOF
		}
		return line, nil
	}
}
