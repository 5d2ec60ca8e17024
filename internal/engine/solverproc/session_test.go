package solverproc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

// TestHelperProcess는 테스트 바이너리를 가짜 솔버로 재실행할 때만 동작.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("C4_SOLVER_HELPER") != "1" {
		return
	}
	slow, _ := time.ParseDuration(os.Getenv("C4_SOLVER_SLOW_FIRST"))
	runFakeSolver(os.Stdin, os.Stdout, slow)
	os.Exit(0)
}

// runFakeSolver answers every go with the lowest legal column. With slowFirst
// set, the first go is answered late with column 6.
func runFakeSolver(in io.Reader, out io.Writer, slowFirst time.Duration) {
	var pos engine.Position
	searches := 0
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "c4":
			fmt.Fprintln(out, "id name fake")
			fmt.Fprintln(out, "c4ok")
		case "isready":
			fmt.Fprintln(out, "readyok")
		case "position":
			if len(f) == 3 {
				p0, _ := strconv.ParseUint(f[1], 16, 64)
				p1, _ := strconv.ParseUint(f[2], 16, 64)
				pos = engine.Position{Stones: [2]uint64{p0, p1}}
			}
		case "go":
			searches++
			if searches == 1 && slowFirst > 0 {
				time.Sleep(slowFirst)
				fmt.Fprintln(out, "bestmove 6")
				continue
			}
			legal := pos.Legal()
			for c := 0; c < engine.Columns; c++ {
				if engine.DropCell(legal, c) != 0 {
					fmt.Fprintln(out, "info score 0")
					fmt.Fprintf(out, "bestmove %d\n", c)
					break
				}
			}
		case "quit":
			return
		}
	}
}

func newHelperEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := NewSession(context.Background(), os.Args[0], Options{
		Args:   []string{"-test.run=TestHelperProcess"},
		Env:    []string{"C4_SOLVER_HELPER=1"},
		HashMB: 8,
	}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	e := NewEngine(s, nil)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestParseBestMove(t *testing.T) {
	cases := []struct {
		line    string
		want    int
		wantErr bool
	}{
		{"bestmove 3", 3, false},
		{"bestmove 0 ponder 4", 0, false},
		{"bestmove", -1, true},
		{"bestmove x", -1, true},
		{"bestmove 7", -1, true},
	}
	for _, tc := range cases {
		got, err := parseBestMove(tc.line)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: err=%v wantErr=%v", tc.line, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("%q: got %d want %d", tc.line, got, tc.want)
		}
	}
}

func TestParseInfoScore(t *testing.T) {
	if v, ok := parseInfoScore("info depth 12 score -3 nodes 100"); !ok || v != -3 {
		t.Fatalf("score = %d ok=%v", v, ok)
	}
	if _, ok := parseInfoScore("info nodes 100"); ok {
		t.Fatalf("expected no score")
	}
}

func TestBuildPositionCommand(t *testing.T) {
	pos := engine.Position{Stones: [2]uint64{engine.CellMask(3, 0), engine.CellMask(3, 1)}}
	if got := buildPositionCommand(pos); got != "position 8 800\n" {
		t.Fatalf("got %q", got)
	}
}

func TestEngineAgainstHelperProcess(t *testing.T) {
	e := newHelperEngine(t)
	if err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	ctx := context.Background()

	col, err := e.BestMove(ctx, 0, engine.Weak)
	if err != nil || col != 0 {
		t.Fatalf("BestMove: col=%d err=%v", col, err)
	}
	for r := 0; r < engine.Rows; r++ {
		if err := e.ApplyMove(engine.DropCell(e.LegalMoves(), 0), r%2); err != nil {
			t.Fatalf("ApplyMove: %v", err)
		}
	}
	e.ResetTable()
	col, err = e.BestMove(ctx, 0, engine.Strong)
	if err != nil || col != 1 {
		t.Fatalf("BestMove after full column: col=%d err=%v", col, err)
	}
	if e.IsWinningPlacement(engine.CellMask(1, 0), 0) {
		t.Fatalf("no four in a row expected")
	}
}

func TestSearchAfterTimeoutIgnoresLateAnswer(t *testing.T) {
	s, err := NewSession(context.Background(), os.Args[0], Options{
		Args:        []string{"-test.run=TestHelperProcess"},
		Env:         []string{"C4_SOLVER_HELPER=1", "C4_SOLVER_SLOW_FIRST=300ms"},
		WeakTimeout: 50 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	var empty engine.Position
	if _, err := s.Search(ctx, empty, 0, engine.Weak); err == nil {
		t.Fatalf("first search should time out")
	}

	resp, err := s.Search(ctx, empty, 0, engine.Weak)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if resp.Column != 0 {
		t.Fatalf("second search column = %d, want 0 (late answer 6 must be dropped)", resp.Column)
	}

	if err := s.NewGame(ctx); err != nil {
		t.Fatalf("NewGame after recovery: %v", err)
	}
}
