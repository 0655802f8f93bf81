package tree

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodePtrTagging(t *testing.T) {
	p := NewNodePtr(true, 42)
	assert.True(t, p.Half())
	assert.EqualValues(t, 42, p.Index())

	p2 := NewNodePtr(false, 7)
	assert.False(t, p2.Half())
	assert.EqualValues(t, 7, p2.Index())

	assert.True(t, NullNodePtr.IsNull())
	assert.False(t, p.IsNull())
}

func TestNodeSetNewClearsStats(t *testing.T) {
	var n Node
	n.Update(1)
	n.Update(0)
	require.EqualValues(t, 2, n.Visits())

	n.SetNew(1234, 0.5)
	assert.EqualValues(t, 0, n.Visits())
	assert.EqualValues(t, 1234, n.Move())
	assert.InDelta(t, 0.5, n.Policy(), 1e-4)
	assert.Equal(t, Ongoing, n.State())
	assert.False(t, n.HasChildren())
}

func TestNodeUpdateRunningMean(t *testing.T) {
	var n Node
	n.Update(1)
	n.Update(0)
	n.Update(1)
	assert.InDelta(t, 2.0/3.0, float64(n.Q()), 1e-3)
	assert.EqualValues(t, 3, n.Visits())
}

func TestNodeVarNonNegative(t *testing.T) {
	var n Node
	n.Update(1)
	n.Update(0)
	assert.GreaterOrEqual(t, n.Var(), float32(0))
}

func TestNodeThreadsPairWellUnderConcurrency(t *testing.T) {
	var n Node
	var wg sync.WaitGroup
	const workers = 64
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			n.IncThreads()
			n.DecThreads()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 0, n.Threads())
}

func TestNodeActionsRWLock(t *testing.T) {
	var n Node
	n.Clear()
	first, count := n.Actions()
	assert.True(t, first.IsNull())
	assert.EqualValues(t, 0, count)

	n.SetActions(NewNodePtr(false, 3), 5)
	first, count = n.Actions()
	assert.EqualValues(t, 3, first.Index())
	assert.EqualValues(t, 5, count)
	assert.True(t, n.HasChildren())
}

func TestNodeExpandFirstCallerInstallsBlock(t *testing.T) {
	var n Node
	n.Clear()

	first, count, installed := NewNodePtr(false, 10), uint32(3), false
	gotInstalled, gotFirst, gotCount := n.Expand(func() (NodePtr, uint32) {
		installed = true
		return first, count
	})

	assert.True(t, installed, "alloc callback must run for the first caller")
	assert.True(t, gotInstalled)
	assert.Equal(t, first, gotFirst)
	assert.EqualValues(t, count, gotCount)

	actualFirst, actualCount := n.Actions()
	assert.Equal(t, first, actualFirst)
	assert.EqualValues(t, count, actualCount)
}

func TestNodeExpandSecondCallerObservesFirstsBlock(t *testing.T) {
	var n Node
	n.Clear()

	winnerFirst, winnerCount := NewNodePtr(false, 10), uint32(3)
	_, _, _ = n.Expand(func() (NodePtr, uint32) {
		return winnerFirst, winnerCount
	})

	allocCalled := false
	installed, gotFirst, gotCount := n.Expand(func() (NodePtr, uint32) {
		allocCalled = true
		return NewNodePtr(false, 99), 7
	})

	assert.False(t, installed, "a node already expanded must not be expanded again")
	assert.False(t, allocCalled, "the second caller's alloc must never run once a block is installed")
	assert.Equal(t, winnerFirst, gotFirst)
	assert.EqualValues(t, winnerCount, gotCount)
}

func TestNodeExpandConcurrentCallersAgreeOnOneWinner(t *testing.T) {
	var n Node
	n.Clear()

	const workers = 32
	var wg sync.WaitGroup
	var allocCount int32
	results := make([]NodePtr, workers)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, first, _ := n.Expand(func() (NodePtr, uint32) {
				idx := atomic.AddInt32(&allocCount, 1)
				return NewNodePtr(false, uint32(idx)), 1
			})
			results[i] = first
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, allocCount, "exactly one caller's alloc callback must run")
	for i := 1; i < workers; i++ {
		assert.Equal(t, results[0], results[i], "every caller must observe the same installed block")
	}
}

func TestNodeCopyFrom(t *testing.T) {
	var src Node
	src.SetNew(99, 0.25)
	src.Update(0.75)
	src.SetState(WhiteWin)
	src.SetGiniImpurity(0.125)

	var dst Node
	dst.CopyFrom(&src)

	assert.Equal(t, src.Move(), dst.Move())
	assert.InDelta(t, src.Policy(), dst.Policy(), 1e-4)
	assert.Equal(t, src.State(), dst.State())
	assert.Equal(t, src.Visits(), dst.Visits())
	assert.InDelta(t, src.Q(), dst.Q(), 1e-4)
	assert.InDelta(t, src.GiniImpurity(), dst.GiniImpurity(), 1e-6)
}

func TestNodeConcurrentVisitsMonotonic(t *testing.T) {
	var n Node
	var wg sync.WaitGroup
	const updates = 500
	wg.Add(updates)
	for i := 0; i < updates; i++ {
		go func() {
			defer wg.Done()
			n.Update(0.5)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, updates, n.Visits())
	assert.GreaterOrEqual(t, n.Q(), float32(0))
	assert.LessOrEqual(t, n.Q(), float32(1))
}
