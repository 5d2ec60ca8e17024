package bitboard

import (
	"context"
	"math/bits"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

const (
	defaultTableMB = 64

	minScore = -(engine.Cells)/2 + 3
	maxScore = (engine.Cells+1)/2 - 3

	// 노드 이 개수마다 ctx 취소 확인
	cancelCheckNodes = 1 << 14
)

// 중앙부터 탐색
var columnOrder = [engine.Columns]int{3, 2, 4, 1, 5, 0, 6}

// Solver is a negamax searcher with a transposition table.
// Scores follow the usual convention: positive means the side to move wins,
// larger is sooner.
type Solver struct {
	tt    *table
	nodes uint64
	ctx   context.Context
	err   error
}

func NewSolver(tableMB int) *Solver {
	return &Solver{tt: newTable(tableMB)}
}

func (s *Solver) ResetTable() { s.tt.reset() }

func (s *Solver) Nodes() uint64 { return s.nodes }

type node struct {
	cur, opp uint64
	hash     uint64
	ply      int
}

func (n node) occupied() uint64 { return n.cur | n.opp }

func (n node) legal() uint64 { return engine.LegalFor(n.occupied()) }

func (n node) canWinNext() bool {
	return engine.WinningCells(n.cur, n.occupied())&n.legal() != 0
}

// nonLosing drops moves that hand the opponent an immediate win.
func (n node) nonLosing() uint64 {
	legal := n.legal()
	oppWin := engine.WinningCells(n.opp, n.occupied())
	forced := legal & oppWin
	if forced != 0 {
		if forced&(forced-1) != 0 {
			return 0
		}
		legal = forced
	}
	return legal &^ (oppWin >> engine.RowStride)
}

func (n node) moveScore(move uint64) int {
	return bits.OnesCount64(engine.WinningCells(n.cur|move, n.occupied()|move))
}

// play returns the child from the opponent's point of view.
func (n node) play(move uint64, player int) node {
	return node{
		cur:  n.opp,
		opp:  n.cur | move,
		hash: n.hash ^ zobrist[player][bits.TrailingZeros64(move)],
		ply:  n.ply + 1,
	}
}

func (s *Solver) negamax(n node, player int, alpha, beta int) int {
	s.nodes++
	if s.nodes%cancelCheckNodes == 0 && s.ctx != nil && s.err == nil {
		s.err = s.ctx.Err()
	}
	if s.err != nil {
		return 0
	}

	next := n.nonLosing()
	if next == 0 {
		return -(engine.Cells - n.ply) / 2
	}
	if n.ply >= engine.Cells-2 {
		return 0
	}

	lo := -(engine.Cells - 2 - n.ply) / 2
	if alpha < lo {
		alpha = lo
		if alpha >= beta {
			return alpha
		}
	}
	hi := (engine.Cells - 1 - n.ply) / 2
	if v := int(s.tt.get(n.hash)); v != 0 {
		if v > maxScore-minScore+1 {
			lo = v + 2*minScore - maxScore - 2
			if alpha < lo {
				alpha = lo
				if alpha >= beta {
					return alpha
				}
			}
		} else {
			hi = v + minScore - 1
			if beta > hi {
				beta = hi
				if alpha >= beta {
					return beta
				}
			}
		}
	}
	if beta > hi {
		beta = hi
		if alpha >= beta {
			return beta
		}
	}

	moves := sortMoves(n, next)
	for _, mv := range moves {
		score := -s.negamax(n.play(mv, player), player^1, -beta, -alpha)
		if s.err != nil {
			return 0
		}
		if score >= beta {
			s.tt.put(n.hash, int8(score+maxScore-2*minScore+2))
			return score
		}
		if score > alpha {
			alpha = score
		}
	}
	s.tt.put(n.hash, int8(alpha-minScore+1))
	return alpha
}

// sortMoves orders candidates by threats created, centre first on ties.
func sortMoves(n node, candidates uint64) []uint64 {
	var (
		moves  [engine.Columns]uint64
		scores [engine.Columns]int
		count  int
	)
	for _, c := range columnOrder {
		mv := candidates & engine.ColumnMask(c)
		if mv == 0 {
			continue
		}
		sc := n.moveScore(mv)
		i := count
		for ; i > 0 && scores[i-1] < sc; i-- {
			moves[i] = moves[i-1]
			scores[i] = scores[i-1]
		}
		moves[i] = mv
		scores[i] = sc
		count++
	}
	return moves[:count]
}

// solve scores n for the side to move. Weak only separates win, draw and loss.
func (s *Solver) solve(n node, player int, strength engine.Strength) int {
	if n.canWinNext() {
		return (engine.Cells + 1 - n.ply) / 2
	}
	lo := -(engine.Cells - n.ply) / 2
	hi := (engine.Cells + 1 - n.ply) / 2
	if strength == engine.Weak {
		lo, hi = -1, 1
	}
	for lo < hi {
		med := lo + (hi-lo)/2
		if med <= 0 && lo/2 < med {
			med = lo / 2
		} else if med >= 0 && hi/2 > med {
			med = hi / 2
		}
		r := s.negamax(n, player, med, med+1)
		if s.err != nil {
			return 0
		}
		if r <= med {
			hi = r
		} else {
			lo = r
		}
	}
	return lo
}

// Analyze returns the score of every legal column for player, indexed by
// column. ok[c] is false for full columns.
func (s *Solver) Analyze(ctx context.Context, b *Board, player int, strength engine.Strength) (scores [engine.Columns]int, ok [engine.Columns]bool, err error) {
	s.ctx = ctx
	s.err = nil
	defer func() { s.ctx = nil }()

	root := node{cur: b.Stones(player), opp: b.Stones(player ^ 1), hash: b.Hash(), ply: b.Ply()}
	legal := root.legal()
	win := engine.WinningCells(root.cur, root.occupied())
	for _, c := range columnOrder {
		mv := legal & engine.ColumnMask(c)
		if mv == 0 {
			continue
		}
		ok[c] = true
		if mv&win != 0 {
			scores[c] = (engine.Cells + 1 - root.ply) / 2
			continue
		}
		child := root.play(mv, player)
		if child.ply == engine.Cells {
			scores[c] = 0
			continue
		}
		scores[c] = -s.solve(child, player^1, strength)
		if s.err != nil {
			return scores, ok, s.err
		}
	}
	return scores, ok, nil
}

// Best picks the highest scoring column, preferring the centre on ties.
func (s *Solver) Best(ctx context.Context, b *Board, player int, strength engine.Strength) (int, error) {
	legal := b.Legal()
	if legal == 0 {
		return -1, engine.ErrNoMoves
	}
	cur, opp := b.Stones(player), b.Stones(player^1)
	occ := b.Occupied()
	if win := engine.WinningCells(cur, occ) & legal; win != 0 {
		return firstInOrder(win), nil
	}
	if forced := engine.WinningCells(opp, occ) & legal; forced != 0 && forced&(forced-1) == 0 {
		return engine.ColumnOf(forced), nil
	}

	scores, ok, err := s.Analyze(ctx, b, player, strength)
	if err != nil {
		return -1, err
	}
	best := -1
	for _, c := range columnOrder {
		if !ok[c] {
			continue
		}
		if best < 0 || scores[c] > scores[best] {
			best = c
		}
	}
	return best, nil
}

func firstInOrder(mask uint64) int {
	for _, c := range columnOrder {
		if mask&engine.ColumnMask(c) != 0 {
			return c
		}
	}
	return engine.ColumnOf(mask)
}
