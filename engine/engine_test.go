package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidchess/corvid/chess"
	"github.com/corvidchess/corvid/eval"
	"github.com/corvidchess/corvid/internal/params"
	"github.com/corvidchess/corvid/networks"
	"github.com/corvidchess/corvid/tree"
)

// uniformNet is a deterministic stand-in for the real dual network: a flat
// value and a uniform policy over the whole action space, fast enough to run
// thousands of simulations in a unit test.
type uniformNet struct {
	value float32
}

func (n *uniformNet) InferValue(features []float32) (float32, error) {
	return n.value, nil
}

func (n *uniformNet) InferPolicy(features []float32) ([]float32, error) {
	policy := make([]float32, networks.ActionSpaceSize)
	uniform := float32(1) / float32(len(policy))
	for i := range policy {
		policy[i] = uniform
	}
	return policy, nil
}

func newTestEngine(treeCapacity int) *Engine {
	net := &uniformNet{value: 0}
	pool := eval.NewPool(net, net, 64)
	return New(Config{
		TreeCapacity: treeCapacity,
		Params:       params.DefaultMCTSParams(),
		Pool:         pool,
	})
}

func TestSearchReturnsLegalMove(t *testing.T) {
	e := newTestEngine(4096)
	e.SetPosition(chess.NewGame())

	best, err := e.SearchSimulations(context.Background(), 2, 200)
	require.NoError(t, err)
	require.NotNil(t, best)

	legal := chess.NewGame().LegalMoves()
	found := false
	for _, m := range legal {
		if m.String() == best.String() {
			found = true
			break
		}
	}
	assert.True(t, found, "bestMove %v must be one of the legal opening moves", best)
}

func TestSearchQuiescenceHasZeroThreads(t *testing.T) {
	e := newTestEngine(4096)
	e.SetPosition(chess.NewGame())

	_, err := e.SearchSimulations(context.Background(), 4, 500)
	require.NoError(t, err)

	root := e.tree.Get(e.tree.Root())
	assert.Equal(t, int32(0), root.Threads())

	first, count := root.Actions()
	for i := uint32(0); i < count; i++ {
		child := e.tree.Get(first + tree.NodePtr(i))
		assert.Equal(t, int32(0), child.Threads(), "child %d must have zero virtual loss at quiescence", i)
	}
}

func TestExpandedRootHasChildrenAndAtMostOnePerLegalMove(t *testing.T) {
	e := newTestEngine(4096)
	start := chess.NewGame()
	e.SetPosition(start)

	_, err := e.SearchSimulations(context.Background(), 1, 50)
	require.NoError(t, err)

	root := e.tree.Get(e.tree.Root())
	_, count := root.Actions()
	assert.GreaterOrEqual(t, count, uint32(1))
	assert.LessOrEqual(t, count, uint32(len(start.LegalMoves())))
}

func TestSearchSurvivesArenaExhaustionViaHalfSwap(t *testing.T) {
	// A tiny arena forces at least one half-swap well before 5000
	// simulations complete, across 2 workers.
	e := newTestEngine(128)
	e.SetPosition(chess.NewGame())

	best, err := e.SearchSimulations(context.Background(), 2, 5000)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Greater(t, e.tree.SwapsDone(), uint64(0))
}

// TestExpandMarksInsufficientMaterialDraw is the bare-kings case: the
// position still has legal king moves, so it can't be caught by an
// empty-LegalMoves check, but chess.State.Result() reports it as a draw.
// Expansion must mark the root Terminal=Draw on the first simulation and
// never install any children; every later simulation should just add a
// visit to the already-terminal root.
func TestExpandMarksInsufficientMaterialDraw(t *testing.T) {
	e := newTestEngine(4096)
	start, err := chess.FromFEN("8/8/8/8/8/8/k6K/8 w - - 0 1")
	require.NoError(t, err)
	require.NotEmpty(t, start.LegalMoves(), "bare kings still have legal king moves")

	e.SetPosition(start)
	_, err = e.SearchSimulations(context.Background(), 1, 10)
	require.NoError(t, err)

	root := e.tree.Get(e.tree.Root())
	assert.True(t, root.IsTerminal())
	assert.Equal(t, tree.Draw, root.State())
	_, count := root.Actions()
	assert.Zero(t, count, "a terminal root must never be expanded into children")
	assert.EqualValues(t, 10, root.Visits(), "every simulation against a terminal root still adds a visit")
}

func TestSearchOnTerminalPositionReturnsInvalidRoot(t *testing.T) {
	e := newTestEngine(1024)

	// Fool's mate: black delivers mate on move 2.
	start := chess.NewGame()
	for _, m := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		require.NoError(t, start.ApplyUCI(m))
	}
	require.True(t, start.IsTerminal())

	e.SetPosition(start)
	_, err := e.SearchSimulations(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrInvalidRoot)
}
