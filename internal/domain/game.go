package domain

import "time"

// Outcome values of a finished session.
const (
	OutcomeWin     = "win"
	OutcomeDraw    = "draw"
	OutcomeDesync  = "desync"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
)

// Move sources.
const (
	SourceRandom   = "random"
	SourceBook     = "book"
	SourceSolver   = "solver"
	SourceOpponent = "opponent"
)

type Move struct {
	Ply    int    `json:"ply"`
	Player int    `json:"player"`
	Column int    `json:"column"`
	Source string `json:"source"`
}

type GameRecord struct {
	ID          int64  `json:"id,omitempty"`
	SessionUUID string `json:"session_uuid"`
	BotPlayer   int    `json:"bot_player"`
	Outcome     string `json:"outcome"`
	// Winner is -1 unless Outcome is win.
	Winner      int           `json:"winner"`
	Moves       []Move        `json:"moves"`
	Ply         int           `json:"ply"`
	StrongFrom  int           `json:"strong_from"`
	TableResets int           `json:"table_resets"`
	Detail      string        `json:"detail,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Duration    time.Duration `json:"duration_ns"`
}

func (g *GameRecord) BotWon() bool {
	return g.Outcome == OutcomeWin && g.Winner == g.BotPlayer
}

// Columns returns the move list as a column string, e.g. "3342".
func (g *GameRecord) Columns() string {
	b := make([]byte, len(g.Moves))
	for i, m := range g.Moves {
		b[i] = byte('0' + m.Column)
	}
	return string(b)
}
