package bitboard

import (
	"fmt"
	"math/bits"
	"math/rand"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

// zobrist 키는 시드 고정. 같은 포지션은 프로세스가 달라도 같은 해시.
const zobristSeed = 0x4334

var zobrist [2][64]uint64

func init() {
	r := rand.New(rand.NewSource(zobristSeed))
	for p := 0; p < 2; p++ {
		for i := range zobrist[p] {
			zobrist[p][i] = r.Uint64()
		}
	}
}

// Board holds both players' stones and an incremental zobrist hash.
type Board struct {
	stones [2]uint64
	hash   uint64
}

func FromPosition(pos engine.Position) Board {
	b := Board{stones: pos.Stones}
	for p := 0; p < 2; p++ {
		m := pos.Stones[p]
		for m != 0 {
			i := bits.TrailingZeros64(m)
			b.hash ^= zobrist[p][i]
			m &= m - 1
		}
	}
	return b
}

func (b *Board) Position() engine.Position { return engine.Position{Stones: b.stones} }

func (b *Board) Occupied() uint64 { return b.stones[0] | b.stones[1] }

func (b *Board) Ply() int { return bits.OnesCount64(b.Occupied()) }

func (b *Board) Hash() uint64 { return b.hash }

func (b *Board) Stones(player int) uint64 { return b.stones[player&1] }

func (b *Board) Legal() uint64 { return engine.LegalFor(b.Occupied()) }

// Play places a single legal cell for player.
func (b *Board) Play(mask uint64, player int) error {
	if player != 0 && player != 1 {
		return engine.ErrBadPlayer
	}
	if mask == 0 || mask&(mask-1) != 0 || mask&b.Legal() == 0 {
		return fmt.Errorf("%w: mask=%#x", engine.ErrIllegalMove, mask)
	}
	b.play(mask, player)
	return nil
}

func (b *Board) play(mask uint64, player int) {
	b.stones[player] ^= mask
	b.hash ^= zobrist[player][bits.TrailingZeros64(mask)]
}

// String draws the board top row first, column 0 on the left.
func (b *Board) String() string {
	buf := make([]byte, 0, (engine.Columns+1)*engine.Rows)
	for r := engine.Rows - 1; r >= 0; r-- {
		for c := 0; c < engine.Columns; c++ {
			cell := engine.CellMask(c, r)
			switch {
			case b.stones[0]&cell != 0:
				buf = append(buf, 'X')
			case b.stones[1]&cell != 0:
				buf = append(buf, 'O')
			default:
				buf = append(buf, '.')
			}
		}
		buf = append(buf, '\n')
	}
	return string(buf)
}
