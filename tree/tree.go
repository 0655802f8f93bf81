package tree

import (
	"sync"
	"sync/atomic"
)

// Tree is a pair of TreeHalf arenas plus an atomic root pointer and the
// currently-active-half bit. It is created once at engine start and lives
// for the process lifetime; Clear resets it between searches.
//
// Half-swap is the only mutation of the active-half bit, and happens under
// swapMu, which excludes concurrent swaps and Clear for the duration of the
// subtree copy; it does not pause worker goroutines, so callers coordinate
// quiescence externally (see engine.Engine's quiesceMu).
type Tree struct {
	halves   [2]*TreeHalf
	active   int32 // 0 or 1, indexes halves
	root     uint32
	swapMu   sync.Mutex
	swapsDone uint64
}

// New creates a Tree with the given total node capacity, split evenly
// between the two halves.
func New(totalCapacity int) *Tree {
	half := totalCapacity / 2
	return &Tree{
		halves: [2]*TreeHalf{
			NewTreeHalf(half, false),
			NewTreeHalf(half, true),
		},
		root: uint32(NullNodePtr),
	}
}

// ActiveHalf returns the TreeHalf currently accepting new allocations.
func (t *Tree) ActiveHalf() *TreeHalf {
	return t.halves[atomic.LoadInt32(&t.active)]
}

// InactiveHalf returns the other TreeHalf, the target of the next
// half-swap's subtree copy.
func (t *Tree) InactiveHalf() *TreeHalf {
	return t.halves[1-atomic.LoadInt32(&t.active)]
}

// Root returns the current root pointer.
func (t *Tree) Root() NodePtr {
	return NodePtr(atomic.LoadUint32(&t.root))
}

// SetRoot atomically installs a new root pointer.
func (t *Tree) SetRoot(p NodePtr) {
	atomic.StoreUint32(&t.root, uint32(p))
}

// Get dereferences p, routing to whichever half it's tagged with.
func (t *Tree) Get(p NodePtr) *Node {
	return t.halves[boolToIdx(p.Half())].At(p)
}

func boolToIdx(half bool) int32 {
	if half {
		return 1
	}
	return 0
}

// PushChildren allocates count consecutive child nodes in the active half,
// returning the pointer to the first one, or NullNodePtr if the half is
// exhausted (signaling the caller to request a half-swap).
func (t *Tree) PushChildren(moves []uint16, policies []float32) NodePtr {
	active := t.ActiveHalf()
	first := NullNodePtr
	for i := range moves {
		p := active.PushNew(moves[i], policies[i])
		if p.IsNull() {
			return NullNodePtr
		}
		if i == 0 {
			first = p
		}
	}
	return first
}

// Clear resets both halves and the root pointer, for reuse between searches
// within the same process.
func (t *Tree) Clear() {
	t.swapMu.Lock()
	defer t.swapMu.Unlock()
	t.halves[0].Reset()
	t.halves[1].Reset()
	atomic.StoreInt32(&t.active, 0)
	atomic.StoreUint32(&t.root, uint32(NullNodePtr))
}

// SwapsDone returns the number of half-swaps performed so far, for
// diagnostics/logging.
func (t *Tree) SwapsDone() uint64 { return atomic.LoadUint64(&t.swapsDone) }

// HalfSwap promotes the subtree rooted at newRoot into the inactive half in
// breadth-first order, remapping every internal NodePtr, then flips the
// active-half bit and resets the old half. Callers must have already
// brought all worker goroutines to a quiescent point; HalfSwap itself only
// guards against concurrent half-swaps via swapMu, it does not pause
// workers.
//
// Returns the new root's NodePtr in the now-active half, or an error if the
// new half is also exhausted while copying (a pathological case: the
// subtree being promoted alone doesn't fit in one half).
func (t *Tree) HalfSwap(newRoot NodePtr) (NodePtr, error) {
	t.swapMu.Lock()
	defer t.swapMu.Unlock()

	src := t.halves[boolToIdx(newRoot.Half())]
	dstIdx := 1 - boolToIdx(newRoot.Half())
	dst := t.halves[dstIdx]
	dst.Reset()

	remapped, err := copySubtreeBFS(src, dst, newRoot)
	if err != nil {
		return NullNodePtr, err
	}

	atomic.StoreInt32(&t.active, dstIdx)
	atomic.StoreUint32(&t.root, uint32(remapped))
	src.Reset()
	atomic.AddUint64(&t.swapsDone, 1)
	return remapped, nil
}

// ErrHalfExhausted is returned by HalfSwap when the subtree being promoted
// does not fit in a freshly reset half: a pathological, unrecoverable
// arena-exhaustion case (see spec.md §7 ArenaExhausted).
type ErrHalfExhausted struct{}

func (ErrHalfExhausted) Error() string {
	return "tree: subtree does not fit in a freshly reset half"
}

// copySubtreeBFS copies the subtree rooted at srcRoot (in src) into dst in
// breadth-first order, remapping every child NodePtr to point within dst.
func copySubtreeBFS(src, dst *TreeHalf, srcRoot NodePtr) (NodePtr, error) {
	type job struct {
		srcPtr NodePtr
		dstPtr NodePtr
	}

	dstRootIdx := atomic.AddInt64(&dst.used, 1) - 1
	if dstRootIdx >= int64(len(dst.nodes)) {
		return NullNodePtr, ErrHalfExhausted{}
	}
	dstRoot := NewNodePtr(dst.half, uint32(dstRootIdx))
	dst.nodes[dstRootIdx].CopyFrom(&src.nodes[srcRoot.Index()])

	queue := []job{{srcPtr: srcRoot, dstPtr: dstRoot}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		srcNode := src.At(cur.srcPtr)
		dstNode := dst.At(cur.dstPtr)

		firstChild, numChildren := srcNode.Actions()
		if numChildren == 0 {
			continue
		}

		dstFirstIdx := atomic.AddInt64(&dst.used, int64(numChildren)) - int64(numChildren)
		if dstFirstIdx+int64(numChildren) > int64(len(dst.nodes)) {
			return NullNodePtr, ErrHalfExhausted{}
		}
		dstFirst := NewNodePtr(dst.half, uint32(dstFirstIdx))
		dstNode.SetActions(dstFirst, numChildren)

		for i := uint32(0); i < numChildren; i++ {
			srcChildPtr := firstChild + NodePtr(i)
			dstChildPtr := dstFirst + NodePtr(i)
			dst.nodes[dstChildPtr.Index()].CopyFrom(src.At(srcChildPtr))
			queue = append(queue, job{srcPtr: srcChildPtr, dstPtr: dstChildPtr})
		}
	}

	return dstRoot, nil
}
