package engine

import (
	"sync/atomic"
	"time"

	notnilchess "github.com/notnil/chess"

	"github.com/corvidchess/corvid/tree"
)

// Simulations returns the number of completed simulations in the current or
// most recently finished search, for a UCI `info nodes` line.
func (e *Engine) Simulations() uint64 { return atomic.LoadUint64(&e.simulations) }

// Elapsed returns the wall-clock time since the current search started, for
// a UCI `info time`/`info nps` line.
func (e *Engine) Elapsed() time.Duration {
	if e.startedAt.IsZero() {
		return 0
	}
	return time.Since(e.startedAt)
}

// Depth returns the average descent depth across every completed simulation
// this search, rounded down, and Seldepth returns the deepest descent
// reached. MCTS has no iterative-deepening notion of "the" search depth, so
// these are reported the way most UCI MCTS engines approximate it.
func (e *Engine) Depth() int {
	n := atomic.LoadUint64(&e.simulations)
	if n == 0 {
		return 0
	}
	return int(atomic.LoadUint64(&e.depthSum) / n)
}

// Seldepth returns the deepest descent path reached by any simulation this
// search.
func (e *Engine) Seldepth() int { return int(atomic.LoadUint32(&e.seldepth)) }

// RootQ returns the current root's win probability for the side to move,
// in [0, 1], for a UCI `info score` line. Zero if the root hasn't been
// visited yet.
func (e *Engine) RootQ() float32 {
	root := e.tree.Get(e.tree.Root())
	if root.Visits() == 0 {
		return 0
	}
	// The root's Q is stored from the perspective of the player who moved
	// into it, i.e. the opponent of the side to move.
	return 1 - root.Q()
}

// PV returns the principal variation: the chain of most-visited children
// starting at the root, up to maxLen moves or until a leaf/terminal node is
// reached. Ties break toward the lowest action index, matching bestMove.
func (e *Engine) PV(maxLen int) []*notnilchess.Move {
	if e.root == nil {
		return nil
	}
	state := e.root.Clone()
	pv := make([]*notnilchess.Move, 0, maxLen)

	cur := e.tree.Get(e.tree.Root())
	for len(pv) < maxLen {
		if cur.IsTerminal() {
			break
		}
		first, count := cur.Actions()
		if count == 0 {
			break
		}

		bestIdx := uint32(0)
		var bestVisits int32 = -1
		for i := uint32(0); i < count; i++ {
			child := e.tree.Get(first + tree.NodePtr(i))
			if v := child.Visits(); v > bestVisits {
				bestVisits = v
				bestIdx = i
			}
		}
		if bestVisits <= 0 {
			break
		}

		child := e.tree.Get(first + tree.NodePtr(bestIdx))
		move := findMoveByIndex(state, child.Move())
		if move == nil {
			break
		}
		state.Apply(move)
		pv = append(pv, move)
		cur = child
	}
	return pv
}
