package engine

import (
	"context"
	"errors"
	"math/bits"
)

// 보드 비트 레이아웃: 행마다 8비트(열 7개 + 센티넬 1비트), 행 0이 바닥.
const (
	Columns   = 7
	Rows      = 6
	Cells     = Columns * Rows
	RowStride = 8
)

const (
	// MoveMask는 0열의 모든 행 비트. MoveMask << c 가 c열 전체.
	MoveMask uint64 = 1<<0 | 1<<8 | 1<<16 | 1<<24 | 1<<32 | 1<<40
	// BottomRow는 바닥 행 7칸.
	BottomRow uint64 = 0x7f
	// BoardMask는 실제 칸 42개 (센티넬 제외).
	BoardMask uint64 = 0x7f7f7f7f7f7f
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrNoMoves     = errors.New("no legal moves")
	ErrBadPlayer   = errors.New("player must be 0 or 1")
)

type Strength int

const (
	Weak Strength = iota
	Strong
)

func (s Strength) String() string {
	if s == Strong {
		return "strong"
	}
	return "weak"
}

// Engine is the decision collaborator the session drives.
// Masks follow the layout above; player is 0 or 1.
type Engine interface {
	Reset() error
	ResetTable()
	ApplyMove(mask uint64, player int) error
	LegalMoves() uint64
	BestMove(ctx context.Context, player int, strength Strength) (int, error)
	IsWinningPlacement(placed uint64, player int) bool
	Position() Position
}

// Book returns a precomputed move for a position. found=false is the normal miss.
type Book interface {
	Lookup(ctx context.Context, pos Position) (col int, found bool, err error)
}

// Position is a plain copy of both players' stones.
type Position struct {
	Stones [2]uint64
}

func (p Position) Occupied() uint64 { return p.Stones[0] | p.Stones[1] }

func (p Position) Ply() int { return bits.OnesCount64(p.Occupied()) }

// Legal returns the droppable cell of every non-full column.
func (p Position) Legal() uint64 { return LegalFor(p.Occupied()) }

// Mirror flips the position left to right.
func (p Position) Mirror() Position {
	return Position{Stones: [2]uint64{MirrorMask(p.Stones[0]), MirrorMask(p.Stones[1])}}
}

func LegalFor(occupied uint64) uint64 {
	return ((occupied << RowStride) | BottomRow) &^ occupied & BoardMask
}

func ColumnMask(col int) uint64 { return MoveMask << uint(col) }

func CellMask(col, row int) uint64 { return 1 << uint(row*RowStride+col) }

// DropCell returns the droppable bit of col given a legal-moves mask, or 0.
func DropCell(legal uint64, col int) uint64 {
	if col < 0 || col >= Columns {
		return 0
	}
	return legal & ColumnMask(col)
}

// ColumnOf returns the column of a single-bit mask.
func ColumnOf(mask uint64) int { return bits.TrailingZeros64(mask) % RowStride }

// RowOf returns the row (0 = bottom) of a single-bit mask.
func RowOf(mask uint64) int { return bits.TrailingZeros64(mask) / RowStride }

func MirrorMask(m uint64) uint64 {
	var out uint64
	for c := 0; c < Columns; c++ {
		col := (m >> uint(c)) & MoveMask
		out |= col << uint(Columns-1-c)
	}
	return out
}

// Aligned reports whether stones contain four in a row.
func Aligned(stones uint64) bool {
	for _, s := range [...]uint{1, RowStride - 1, RowStride, RowStride + 1} {
		m := stones & (stones >> s)
		if m&(m>>(2*s)) != 0 {
			return true
		}
	}
	return false
}

// WinningCells returns the empty cells that would complete four for stones.
func WinningCells(stones, occupied uint64) uint64 {
	r := (stones << RowStride) & (stones << (2 * RowStride)) & (stones << (3 * RowStride))
	for _, s := range [...]uint{1, RowStride - 1, RowStride + 1} {
		p := (stones << s) & (stones << (2 * s))
		r |= p & (stones << (3 * s))
		r |= p & (stones >> s)
		p = (stones >> s) & (stones >> (2 * s))
		r |= p & (stones << s)
		r |= p & (stones >> (3 * s))
	}
	return r & (BoardMask ^ occupied)
}
