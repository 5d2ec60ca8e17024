package solverproc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
	"github.com/park285/Connect4-Screen-bot/internal/engine/bitboard"
)

const controlTimeout = 10 * time.Second

// Engine delegates search to an external solver process and keeps the board
// locally for legality and win checks.
type Engine struct {
	mu      sync.Mutex
	session *Session
	board   bitboard.Board
	logger  *zap.Logger
}

var _ engine.Engine = (*Engine)(nil)

func NewEngine(s *Session, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{session: s, logger: logger}
}

func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.board = bitboard.Board{}
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	if err := e.session.NewGame(ctx); err != nil {
		return fmt.Errorf("solver newgame: %w", err)
	}
	return nil
}

func (e *Engine) ResetTable() {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	if err := e.session.ClearHash(ctx); err != nil {
		e.logger.Warn("solver_clearhash_failed", zap.Error(err))
	}
}

func (e *Engine) ApplyMove(mask uint64, player int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Play(mask, player)
}

func (e *Engine) LegalMoves() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Legal()
}

func (e *Engine) BestMove(ctx context.Context, player int, strength engine.Strength) (int, error) {
	if player != 0 && player != 1 {
		return -1, engine.ErrBadPlayer
	}
	e.mu.Lock()
	pos := e.board.Position()
	legal := e.board.Legal()
	e.mu.Unlock()
	if legal == 0 {
		return -1, engine.ErrNoMoves
	}

	resp, err := e.session.Search(ctx, pos, player, strength)
	if err != nil {
		return -1, err
	}
	if engine.DropCell(legal, resp.Column) == 0 {
		return -1, fmt.Errorf("%w: solver chose full column %d", engine.ErrIllegalMove, resp.Column)
	}
	if resp.Scored {
		e.logger.Debug("solver_bestmove",
			zap.Int("column", resp.Column),
			zap.Int("score", resp.Score),
			zap.Stringer("strength", strength))
	}
	return resp.Column, nil
}

func (e *Engine) IsWinningPlacement(placed uint64, player int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return engine.Aligned(e.board.Stones(player) | placed)
}

func (e *Engine) Position() engine.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Position()
}

func (e *Engine) Close() error { return e.session.Close() }
