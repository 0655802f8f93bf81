// Package engine coordinates the worker goroutines that run MCTS
// simulations against a shared tree.Tree, driving the select/expand/
// evaluate/back-propagate loop defined in searcher.go and handling the
// two events that need cross-worker coordination: half-swap (arena
// exhaustion) and time-budget cancellation.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	notnilchess "github.com/notnil/chess"

	"github.com/corvidchess/corvid/chess"
	"github.com/corvidchess/corvid/eval"
	"github.com/corvidchess/corvid/internal/params"
	"github.com/corvidchess/corvid/networks"
	"github.com/corvidchess/corvid/search"
	"github.com/corvidchess/corvid/tree"
)

// Config bundles what a new Engine needs: tree capacity, tuning
// parameters, the pooled evaluators, and root exploration noise.
type Config struct {
	TreeCapacity     int
	Params           params.MCTSParams
	Pool             *eval.Pool
	DirichletEpsilon float32
	Seed             uint64
}

// Engine owns the shared search state (tree, transposition and
// correction-history tables, evaluator pool) and drives N worker
// goroutines through Search.
type Engine struct {
	tree     *tree.Tree
	hash     *tree.HashTable
	corrHist *tree.CorrHistTable
	pool     *eval.Pool
	helpers  search.Helpers
	params   params.MCTSParams

	dirichletEpsilon float32
	noiseSource      rand.Source

	root *chess.State

	quiesceMu sync.RWMutex // workers RLock per simulation; half-swap Locks for exclusivity
	swapMu    sync.Mutex   // elects a single half-swap attempt at a time

	stopped int32 // atomic bool, set once the time budget or an explicit Stop elapses

	simulations uint64 // atomic, total completed simulations this search
	depthSum    uint64 // atomic, sum of every completed simulation's descent depth
	seldepth    uint32 // atomic, deepest descent reached this search

	startedAt time.Time // wall-clock start of the current run, for `info time`/`info nps`
}

// New builds an Engine with a freshly allocated tree and empty tables.
// SetPosition must be called before the first Search.
func New(conf Config) *Engine {
	return &Engine{
		tree:             tree.New(conf.TreeCapacity),
		hash:             tree.NewHashTable(conf.TreeCapacity),
		corrHist:         tree.NewCorrHistTable(),
		pool:             conf.Pool,
		helpers:          search.NewHelpers(conf.Params),
		params:           conf.Params,
		dirichletEpsilon: conf.DirichletEpsilon,
		noiseSource:      rand.NewSource(conf.Seed),
	}
}

// Tree exposes the underlying arena, for diagnostics (e.g. a UCI `info`
// line reporting swaps or node counts).
func (e *Engine) Tree() *tree.Tree { return e.tree }

// SetParams overlays new tuning parameters, taking effect on the next
// Search call.
func (e *Engine) SetParams(p params.MCTSParams) {
	e.params = p
	e.helpers = search.NewHelpers(p)
}

// SetPosition resets the tree and installs state as a fresh, unexpanded
// root. Call this whenever the driver can't prove the new position is a
// descendant of the previously searched root (a new game, a FEN jump, or
// simply the simplest correct behavior when tree reuse isn't implemented).
func (e *Engine) SetPosition(state *chess.State) {
	e.tree.Clear()
	e.hash.Clear()
	e.root = state.Clone()

	root := e.tree.ActiveHalf().PushNew(0, 1.0)
	e.tree.SetRoot(root)
}

// Search runs simulations against the current root under tc's computed time
// budget (move overhead already applied), using numWorkers worker
// goroutines, and returns the most-visited root child's move. This is the
// path a UCI `go wtime/btime/...` command takes.
func (e *Engine) Search(ctx context.Context, numWorkers int, tc search.TimeControl) (*notnilchess.Move, error) {
	budgetMillis := e.helpers.ApplyMoveOverhead(e.helpers.GetTimeBudget(tc))
	deadline := time.Now().Add(time.Duration(budgetMillis) * time.Millisecond)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return e.run(runCtx, numWorkers, 0, 0)
}

// SearchMovetime runs for exactly movetimeMillis (minus move overhead),
// ignoring the clock-based time-budget formula entirely — the path a UCI
// `go movetime` command takes.
func (e *Engine) SearchMovetime(ctx context.Context, numWorkers int, movetimeMillis uint64) (*notnilchess.Move, error) {
	budgetMillis := e.helpers.ApplyMoveOverhead(movetimeMillis)
	deadline := time.Now().Add(time.Duration(budgetMillis) * time.Millisecond)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return e.run(runCtx, numWorkers, 0, 0)
}

// SearchSimulations runs exactly maxSimulations simulations (or until ctx is
// cancelled), bypassing time management entirely — the path a UCI `go nodes`
// command, or a benchmark harness, takes.
func (e *Engine) SearchSimulations(ctx context.Context, numWorkers int, maxSimulations uint64) (*notnilchess.Move, error) {
	return e.run(ctx, numWorkers, maxSimulations, 0)
}

// SearchDepth runs until the deepest completed simulation reaches maxDepth
// plies (or ctx is cancelled), bypassing time management — the path a UCI
// `go depth` command takes. MCTS has no native notion of search depth, so
// this bounds on the same Seldepth an `info` line reports.
func (e *Engine) SearchDepth(ctx context.Context, numWorkers int, maxDepth int) (*notnilchess.Move, error) {
	return e.run(ctx, numWorkers, 0, maxDepth)
}

// SearchInfinite runs until ctx is cancelled or Stop is called, with no
// simulation, time, or depth bound — the path a UCI `go infinite` command
// takes.
func (e *Engine) SearchInfinite(ctx context.Context, numWorkers int) (*notnilchess.Move, error) {
	return e.run(ctx, numWorkers, 0, 0)
}

func (e *Engine) run(ctx context.Context, numWorkers int, maxSimulations uint64, maxDepth int) (*notnilchess.Move, error) {
	if e.root == nil {
		return nil, ErrInvalidRoot
	}
	legal := e.root.LegalMoves()
	if len(legal) == 0 {
		return nil, ErrInvalidRoot
	}

	atomic.StoreInt32(&e.stopped, 0)
	atomic.StoreUint64(&e.simulations, 0)
	atomic.StoreUint64(&e.depthSum, 0)
	atomic.StoreUint32(&e.seldepth, 0)
	e.startedAt = time.Now()

	g, runCtx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			e.workerLoop(runCtx, maxSimulations, maxDepth)
			return nil
		})
	}
	_ = g.Wait()

	return e.bestMove(legal)
}

// Stop requests all workers exit after completing their current
// simulation's back-propagation, without waiting for the time budget.
func (e *Engine) Stop() {
	atomic.StoreInt32(&e.stopped, 1)
}

// workerLoop repeatedly calls simulate, holding quiesceMu for read for the
// duration of each simulation so a half-swap (which takes quiesceMu for
// write) only ever runs while every worker is between simulations —
// exactly the quiescent point the coordinator needs.
func (e *Engine) workerLoop(ctx context.Context, maxSimulations uint64, maxDepth int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if atomic.LoadInt32(&e.stopped) != 0 {
			return
		}
		if maxSimulations != 0 && atomic.LoadUint64(&e.simulations) >= maxSimulations {
			return
		}
		if maxDepth != 0 && int(atomic.LoadUint32(&e.seldepth)) >= maxDepth {
			return
		}

		e.quiesceMu.RLock()
		depth, err := e.simulate()
		e.quiesceMu.RUnlock()

		if err == ErrArenaExhausted {
			if swapErr := e.attemptHalfSwap(); swapErr != nil {
				klog.Warningf("engine: half-swap failed, stopping search: %v", swapErr)
				e.Stop()
				return
			}
			continue
		}

		atomic.AddUint64(&e.simulations, 1)
		atomic.AddUint64(&e.depthSum, uint64(depth))
		for {
			cur := atomic.LoadUint32(&e.seldepth)
			if uint32(depth) <= cur || atomic.CompareAndSwapUint32(&e.seldepth, cur, uint32(depth)) {
				break
			}
		}
	}
}

// attemptHalfSwap promotes the subtree rooted at the current root into the
// inactive half. swapMu serializes the attempts: when several workers hit
// arena exhaustion at once, each of them performs its own swap in turn; a
// later worker does not check whether an earlier swap already made room.
func (e *Engine) attemptHalfSwap() error {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()

	e.quiesceMu.Lock()
	defer e.quiesceMu.Unlock()

	newRoot, err := e.tree.HalfSwap(e.tree.Root())
	if err != nil {
		return ErrArenaExhausted
	}
	e.tree.SetRoot(newRoot)
	klog.V(2).Infof("engine: half-swap complete, swaps done=%d", e.tree.SwapsDone())
	return nil
}

// bestMove returns the root child with the most visits, breaking ties by
// lower index (matching SelectChild's tie-break so the reported move is
// reproducible for a fixed simulation count and seed).
func (e *Engine) bestMove(legal []*notnilchess.Move) (*notnilchess.Move, error) {
	rootPtr := e.tree.Root()
	root := e.tree.Get(rootPtr)
	first, count := root.Actions()
	if count == 0 {
		// No simulation ever got past expanding the root (a near-zero time
		// budget); fall back to the network's raw policy over legal moves.
		features := networks.Encode(e.root)
		policy := e.pool.EvaluatePolicy(features)
		best := legal[0]
		var bestP float32 = -1
		for _, m := range legal {
			idx := networks.MoveIndex(m)
			var p float32
			if idx >= 0 && idx < len(policy) {
				p = policy[idx]
			}
			if p > bestP {
				bestP = p
				best = m
			}
		}
		return best, nil
	}

	var bestChild *tree.Node
	var bestVisits int32 = -1
	for i := uint32(0); i < count; i++ {
		child := e.tree.Get(first + tree.NodePtr(i))
		if v := child.Visits(); v > bestVisits {
			bestVisits = v
			bestChild = child
		}
	}

	// Recover the move the same way the descent path does (searcher.go's
	// findMoveByIndex), rather than trusting bestChild's position-in-sibling
	// order to still line up with a fresh LegalMoves() call: the reported
	// bestmove must be the move that was actually searched.
	move := findMoveByIndex(e.root, bestChild.Move())
	if move == nil {
		return legal[0], nil
	}
	return move, nil
}
