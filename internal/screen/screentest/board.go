// Package screentest provides an in-memory Connect-Four screen for tests.
package screentest

import (
	"context"
	"errors"
	"sync"

	"github.com/park285/Connect4-Screen-bot/internal/screen"
)

const (
	Columns = 7
	Rows    = 6
)

var (
	Background = screen.RGB{R: 30, G: 80, B: 200}
	Empty      = screen.RGB{R: 240, G: 240, B: 240}
	Red        = screen.RGB{R: 220, G: 30, B: 30}
	Yellow     = screen.RGB{R: 240, G: 210, B: 20}
	Cursor     = screen.RGB{R: 0, G: 0, B: 0}
)

var ErrColumnFull = errors.New("screentest: column full")

type Action func(b *Board)

// Board simulates a game window. Row 0 is the top row on screen. Clicks on a
// cell drop a BotColor disc into the lowest empty cell of that column.
type Board struct {
	mu sync.Mutex

	topLeft screen.Point
	pitch   screen.Point
	cells   [Columns][Rows]screen.RGB

	pointer screen.Point
	clicks  []screen.Point
	reads   int

	BotColor      screen.RGB
	OpponentColor screen.RGB
	// SwallowClicks drops clicks without placing a disc.
	SwallowClicks bool
	// ReplyAfterReads delays queued replies by this many pixel reads.
	ReplyAfterReads int

	queue     []Action
	armed     bool
	readsLeft int
}

var _ screen.Screen = (*Board)(nil)

func NewBoard(topLeft, pitch screen.Point) *Board {
	b := &Board{
		topLeft:       topLeft,
		pitch:         pitch,
		BotColor:      Red,
		OpponentColor: Yellow,
		pointer:       screen.Point{X: -100, Y: -100},
	}
	b.Clear()
	return b
}

func (b *Board) TopLeft() screen.Point { return b.topLeft }

func (b *Board) BottomRight() screen.Point {
	return screen.Point{X: b.topLeft.X + (Columns-1)*b.pitch.X, Y: b.topLeft.Y + (Rows-1)*b.pitch.Y}
}

func (b *Board) Center(col, row int) screen.Point {
	return screen.Point{X: b.topLeft.X + col*b.pitch.X, Y: b.topLeft.Y + row*b.pitch.Y}
}

func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.cells {
		for r := range b.cells[c] {
			b.cells[c][r] = Empty
		}
	}
}

// Set paints one cell directly, ignoring gravity.
func (b *Board) Set(col, row int, clr screen.RGB) {
	b.mu.Lock()
	b.cells[col][row] = clr
	b.mu.Unlock()
}

// Drop places an opponent disc now.
func (b *Board) Drop(col int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drop(col, b.OpponentColor)
}

// DropColor places a disc of any colour now.
func (b *Board) DropColor(col int, clr screen.RGB) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drop(col, clr)
}

// SetLocked is Set for use inside an Action.
func (b *Board) SetLocked(col, row int, clr screen.RGB) { b.cells[col][row] = clr }

// DropLocked is for use inside an Action, which already holds the lock.
func (b *Board) DropLocked(col int, clr screen.RGB) error { return b.drop(col, clr) }

func (b *Board) drop(col int, clr screen.RGB) error {
	if col < 0 || col >= Columns {
		return ErrColumnFull
	}
	for r := Rows - 1; r >= 0; r-- {
		if b.cells[col][r] == Empty {
			b.cells[col][r] = clr
			return nil
		}
	}
	return ErrColumnFull
}

// Reply queues opponent moves, one per bot click.
func (b *Board) Reply(cols ...int) {
	for _, c := range cols {
		col := c
		b.QueueAction(func(b *Board) { _ = b.drop(col, b.OpponentColor) })
	}
}

// QueueAction queues an arbitrary reply, run after the next bot click.
func (b *Board) QueueAction(a Action) {
	b.mu.Lock()
	b.queue = append(b.queue, a)
	b.mu.Unlock()
}

func (b *Board) Occupied() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.cells {
		for r := range b.cells[c] {
			if b.cells[c][r] != Empty {
				n++
			}
		}
	}
	return n
}

func (b *Board) Cell(col, row int) screen.RGB {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cells[col][row]
}

func (b *Board) Clicks() []screen.Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]screen.Point(nil), b.clicks...)
}

func (b *Board) Pointer() screen.Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pointer
}

func (b *Board) SampleColor(ctx context.Context, p screen.Point) (screen.RGB, error) {
	if err := ctx.Err(); err != nil {
		return screen.RGB{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	if b.armed {
		b.readsLeft--
		if b.readsLeft <= 0 {
			b.armed = false
			if len(b.queue) > 0 {
				a := b.queue[0]
				b.queue = b.queue[1:]
				a(b)
			}
		}
	}
	if near(p, b.pointer, 3) {
		return Cursor, nil
	}
	if col, row, ok := b.hit(p); ok {
		return b.cells[col][row], nil
	}
	return Background, nil
}

func (b *Board) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

func (b *Board) MovePointer(ctx context.Context, p screen.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.pointer = p
	b.mu.Unlock()
	return nil
}

func (b *Board) PointerPosition(ctx context.Context) (screen.Point, error) {
	if err := ctx.Err(); err != nil {
		return screen.Point{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pointer, nil
}

func (b *Board) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clicks = append(b.clicks, b.pointer)
	if b.SwallowClicks {
		return nil
	}
	col, _, ok := b.hit(b.pointer)
	if !ok {
		return nil
	}
	if err := b.drop(col, b.BotColor); err != nil {
		return nil
	}
	if len(b.queue) > 0 {
		b.armed = true
		b.readsLeft = b.ReplyAfterReads
	}
	return nil
}

func (b *Board) hit(p screen.Point) (int, int, bool) {
	tx, ty := b.pitch.X/3, b.pitch.Y/3
	for c := 0; c < Columns; c++ {
		for r := 0; r < Rows; r++ {
			ctr := screen.Point{X: b.topLeft.X + c*b.pitch.X, Y: b.topLeft.Y + r*b.pitch.Y}
			if abs(p.X-ctr.X) <= tx && abs(p.Y-ctr.Y) <= ty {
				return c, r, true
			}
		}
	}
	return 0, 0, false
}

func near(a, b screen.Point, d int) bool { return abs(a.X-b.X) <= d && abs(a.Y-b.Y) <= d }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
