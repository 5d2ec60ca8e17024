package eventdto

import "time"

// Event types pushed to observers.
const (
	TypeState    = "state"
	TypeMove     = "move"
	TypeStrength = "strength"
	TypeTerminal = "terminal"
)

// Event is the JSON envelope pushed to observers.
type Event struct {
	Type      string    `json:"t"`
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Player    *int      `json:"player,omitempty"`
	Column    *int      `json:"column,omitempty"`
	Ply       int       `json:"ply"`
	Source    string    `json:"source,omitempty"`
	Strength  string    `json:"strength,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Winner    *int      `json:"winner,omitempty"`
	Board     string    `json:"board,omitempty"`
	Time      time.Time `json:"time"`
}

// Command is what observers may send back.
type Command struct {
	Type string `json:"t"`
}

const CommandStart = "start"

func IntPtr(v int) *int { return &v }
