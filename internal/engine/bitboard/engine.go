package bitboard

import (
	"context"
	"sync"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

// Engine is the in-process engine.Engine. Safe for concurrent use, though the
// session only ever drives it from one goroutine.
type Engine struct {
	mu      sync.Mutex
	board   Board
	solver  *Solver
	tableMB int
}

var _ engine.Engine = (*Engine)(nil)

func New(tableMB int) *Engine {
	if tableMB <= 0 {
		tableMB = defaultTableMB
	}
	return &Engine{solver: NewSolver(tableMB), tableMB: tableMB}
}

// Reset rebuilds the board and the transposition table.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.board = Board{}
	e.solver = NewSolver(e.tableMB)
	return nil
}

func (e *Engine) ResetTable() {
	e.mu.Lock()
	e.solver.ResetTable()
	e.mu.Unlock()
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
	defer e.mu.Unlock()
	return e.solver.Best(ctx, &e.board, player, strength)
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

func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.String()
}
