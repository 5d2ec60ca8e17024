package session

import (
	"time"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
	"github.com/park285/Connect4-Screen-bot/internal/engine"
	"github.com/park285/Connect4-Screen-bot/internal/vision"
)

// Context is everything one session owns. It is created at reset and dropped
// at the terminal transition; nothing in it outlives the session.
type Context struct {
	ID        string
	BotPlayer int
	// Current is the player to move.
	Current int
	Ply     int

	UsingBook    bool
	FirstBotMove bool

	Strength    engine.Strength
	StrongFrom  int
	TableResets int

	// Snapshot is the last board the bot believes is on screen.
	Snapshot vision.Snapshot
	Detector *vision.Detector

	Moves     []domain.Move
	StartedAt time.Time
}

func (c *Context) opponent() int { return c.BotPlayer ^ 1 }

func (c *Context) record(player, col int, source string) {
	c.Ply++
	c.Moves = append(c.Moves, domain.Move{Ply: c.Ply, Player: player, Column: col, Source: source})
}

// engineCell converts a screen cell (row 0 = top) to its bitboard mask.
func engineCell(col, screenRow int) uint64 {
	return engine.CellMask(col, vision.Rows-1-screenRow)
}

func screenRow(mask uint64) int { return vision.Rows - 1 - engine.RowOf(mask) }
