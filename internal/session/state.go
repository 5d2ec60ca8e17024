package session

import (
	"errors"
	"fmt"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
)

var (
	ErrDesync          = errors.New("board desynchronized")
	ErrOpponentTimeout = errors.New("opponent did not move in time")
)

type StateKind int

const (
	Calibrating StateKind = iota
	AwaitingStart
	BotTurn
	OpponentTurn
	Terminal
)

func (k StateKind) String() string {
	switch k {
	case Calibrating:
		return "calibrating"
	case AwaitingStart:
		return "awaiting_start"
	case BotTurn:
		return "bot_turn"
	case OpponentTurn:
		return "opponent_turn"
	case Terminal:
		return "terminal"
	}
	return fmt.Sprintf("state(%d)", int(k))
}

// State is a machine state. Outcome and Winner are set for Terminal only.
type State struct {
	Kind    StateKind
	Outcome string
	Winner  int
	Err     error
}

func at(k StateKind) State { return State{Kind: k, Winner: -1} }

func won(player int) State {
	return State{Kind: Terminal, Outcome: domain.OutcomeWin, Winner: player}
}

func drawn() State { return State{Kind: Terminal, Outcome: domain.OutcomeDraw, Winner: -1} }

func failed(outcome string, err error) State {
	return State{Kind: Terminal, Outcome: outcome, Winner: -1, Err: err}
}

func (s State) String() string {
	if s.Kind != Terminal {
		return s.Kind.String()
	}
	if s.Outcome == domain.OutcomeWin {
		return fmt.Sprintf("terminal(win:%d)", s.Winner)
	}
	return fmt.Sprintf("terminal(%s)", s.Outcome)
}
