package engine

import (
	"gonum.org/v1/gonum/stat/distmv"
	"gorgonia.org/vecf32"

	notnilchess "github.com/notnil/chess"

	"github.com/corvidchess/corvid/chess"
	"github.com/corvidchess/corvid/networks"
	"github.com/corvidchess/corvid/tree"
)

// frame is one stack entry of a simulation's descent path: the node visited
// and the tagged pointer it lives at, so back-propagation can re-dereference
// it without walking the tree a second time.
type frame struct {
	node *tree.Node
	ptr  tree.NodePtr
}

// simulate runs exactly one select/expand/evaluate/back-propagate cycle from
// the current root, returning the number of plies descended before the leaf
// was reached. It returns ErrArenaExhausted, without evaluating or
// back-propagating, if the active half had no room for the leaf's children;
// the caller (Engine.workerLoop) then attempts a half-swap.
func (e *Engine) simulate() (depth int, err error) {
	path := make([]frame, 0, 64)
	state := e.root.Clone()

	rootPtr := e.tree.Root()
	rootNode := e.tree.Get(rootPtr)
	path = append(path, frame{node: rootNode, ptr: rootPtr})

	cur := rootNode
	isRoot := true

	for {
		if cur.IsTerminal() {
			break
		}
		if cur.IsNotExpanded() {
			// Either we win the expansion race and install cur's children, or
			// another worker already has; either way cur is the leaf this
			// simulation evaluates, and the newly visible children wait for
			// the next simulation to select among them.
			if _, exhausted := e.expand(cur, state, isRoot); exhausted {
				// Release the virtual loss taken on every non-root node of the path.
				for _, f := range path[1:] {
					f.node.DecThreads()
				}
				return 0, ErrArenaExhausted
			}
			break
		}

		first, count := cur.Actions()
		if count == 0 {
			break
		}

		var corrBias float32
		if e.params.UseCorrHist {
			corrBias = e.corrHist.GetOrCreate(state.Hash()).Delta()
		}

		childPtr, _ := e.helpers.SelectChild(e.tree, cur, first, count, isRoot, corrBias)
		child := e.tree.Get(childPtr)
		child.IncThreads()

		move := findMoveByIndex(state, child.Move())
		if move == nil {
			// The stored action index no longer matches a legal move in this
			// position (should not happen outside of a corrupted arena); treat
			// the child as a dead end rather than panic mid-search.
			child.DecThreads()
			break
		}
		state.Apply(move)

		path = append(path, frame{node: child, ptr: childPtr})
		cur = child
		isRoot = false
	}

	value := e.evaluate(cur, state)
	e.backpropagate(path, value)
	return len(path) - 1, nil
}

// findMoveByIndex recovers the *notnilchess.Move a child node stands for by
// scanning state's legal moves for the one whose networks.MoveIndex matches
// the encoded value stashed on the node at expansion time. Returns nil if no
// legal move matches, which should only happen if the arena has been
// corrupted.
func findMoveByIndex(state *chess.State, encoded uint16) *notnilchess.Move {
	for _, m := range state.LegalMoves() {
		if uint16(networks.MoveIndex(m)) == encoded {
			return m
		}
	}
	return nil
}

// expand installs the child block for a freshly reached, unexpanded node. A
// position whose game has ended — checkmate, stalemate, insufficient
// material, repetition, the fifty-move rule, any result state.Result()
// reports as non-Ongoing — marks the node terminal instead of expanding,
// whether or not it still has legal moves. Returns ok=false, exhausted=true
// only when allocation failed AND no other worker had already won the
// expansion race. A lost race (Node.Expand reports installed=false without
// calling alloc) returns ok=true, exhausted=false, since the block installed
// by the winner is perfectly usable by this goroutine too.
func (e *Engine) expand(node *tree.Node, state *chess.State, isRoot bool) (ok bool, exhausted bool) {
	if r := state.Result(); r != tree.Ongoing {
		node.SetState(r)
		return true, false
	}

	legal := state.LegalMoves()
	if len(legal) == 0 {
		// Defensive: Result() should already have caught any position with no
		// legal continuation, but never expand against an empty move list.
		node.SetState(tree.Draw)
		return true, false
	}

	features := networks.Encode(state)
	rawPolicy := e.pool.EvaluatePolicy(features)

	priors := make([]float32, len(legal))
	var sum float32
	for i, m := range legal {
		idx := networks.MoveIndex(m)
		var p float32
		if idx >= 0 && idx < len(rawPolicy) {
			p = rawPolicy[idx]
		}
		if p < 0 {
			p = 0
		}
		priors[i] = p
		sum += p
	}
	if sum > 1e-8 {
		for i := range priors {
			priors[i] /= sum
		}
	} else {
		uniform := 1.0 / float32(len(priors))
		for i := range priors {
			priors[i] = uniform
		}
	}

	if isRoot && e.dirichletEpsilon > 0 {
		e.mixDirichletNoise(priors)
	}

	moves := make([]uint16, len(legal))
	for i, m := range legal {
		moves[i] = uint16(networks.MoveIndex(m))
	}

	var allocFailed bool
	installed, _, _ := node.Expand(func() (tree.NodePtr, uint32) {
		first := e.tree.PushChildren(moves, priors)
		if first.IsNull() {
			allocFailed = true
			return tree.NullNodePtr, 0
		}
		return first, uint32(len(moves))
	})

	if !installed && allocFailed {
		return false, true
	}
	return true, false
}

// mixDirichletNoise blends Dirichlet(alpha=0.3) root exploration noise into
// priors in place, epsilon-weighted against the network's own policy. Root
// noise is resampled fresh every time the root is expanded, which in
// practice means once per search: SetPosition clears the tree, so each
// search expands its root anew, while half-swaps within a search keep the
// root's children.
func (e *Engine) mixDirichletNoise(priors []float32) {
	alpha := make([]float64, len(priors))
	for i := range alpha {
		alpha[i] = rootDirichletAlpha
	}
	dist, ok := distmv.NewDirichlet(alpha, e.noiseSource)
	if !ok {
		return
	}
	sample := dist.Rand(nil)
	noise := make([]float32, len(sample))
	for i, v := range sample {
		noise[i] = float32(v)
	}

	vecf32.Scale(priors, 1-e.dirichletEpsilon)
	vecf32.Scale(noise, e.dirichletEpsilon)
	vecf32.Add(priors, noise)
}

// rootDirichletAlpha is the concentration parameter for root exploration
// noise, the standard AlphaZero-style chess value.
const rootDirichletAlpha = 0.3

// evaluate returns leaf's win probability in [0, 1] from the perspective of
// the side to move in state: a HashTable hit short-circuits the network
// call, a miss runs the value network (whose own output convention is
// [-1, 1]) and rescales it, optionally nudged by a correction-history bias
// before the result is cached.
func (e *Engine) evaluate(leaf *tree.Node, state *chess.State) float32 {
	if leaf.IsTerminal() {
		return terminalValue(leaf.State(), state.Turn())
	}

	h := state.Hash()
	if entry, ok := e.hash.Get(h); ok {
		return entry.Q()
	}

	features := networks.Encode(state)
	raw := e.pool.EvaluateValue(features)
	predicted := (raw + 1) / 2 // [-1, 1] -> [0, 1]

	observed := predicted
	if e.params.UseCorrHist {
		bias := e.corrHist.GetOrCreate(h).Delta()
		observed = clamp01(predicted + bias)
		e.corrHist.Update(h, observed-predicted, 1)
	}

	e.hash.Push(h, observed)
	return observed
}

func terminalValue(state tree.GameState, sideToMove notnilchess.Color) float32 {
	switch state {
	case tree.WhiteWin:
		if sideToMove == notnilchess.White {
			return 1.0
		}
		return 0.0
	case tree.BlackWin:
		if sideToMove == notnilchess.Black {
			return 1.0
		}
		return 0.0
	default: // Draw, or (defensively) Ongoing
		return 0.5
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// backpropagate walks path from leaf to root, updating each node's running
// statistics and releasing the virtual loss every descent step accumulated.
// value is the leaf's win probability from the perspective of the side to
// move at the leaf. Each node stores its Q from the perspective of the
// player who made the move leading to it (the side to move at its parent),
// so value is flipped before every update: the leaf receives 1-value, its
// parent value, and so on up to the root.
func (e *Engine) backpropagate(path []frame, value float32) {
	for i := len(path) - 1; i >= 0; i-- {
		f := path[i]
		value = 1 - value
		f.node.Update(value)
		if i != 0 {
			f.node.DecThreads()
		}
	}
}
