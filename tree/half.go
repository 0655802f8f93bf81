package tree

import "sync/atomic"

// TreeHalf is one of the two node arenas backing a Tree. Allocation is a
// single fetch-add on used; there is no deallocation primitive, storage is
// reclaimed only by resetting the whole half.
type TreeHalf struct {
	nodes []Node
	used  int64
	half  bool
}

// NewTreeHalf allocates a TreeHalf with the given node capacity.
func NewTreeHalf(capacity int, half bool) *TreeHalf {
	return &TreeHalf{
		nodes: make([]Node, capacity),
		half:  half,
	}
}

// Cap returns the half's total node capacity.
func (h *TreeHalf) Cap() int { return len(h.nodes) }

// Used returns the number of nodes currently allocated in this half.
func (h *TreeHalf) Used() int {
	u := atomic.LoadInt64(&h.used)
	if int(u) > len(h.nodes) {
		return len(h.nodes)
	}
	return int(u)
}

// At returns the node at the given tagged pointer. p must belong to this
// half; the Tree is responsible for routing by half-bit.
func (h *TreeHalf) At(p NodePtr) *Node {
	return &h.nodes[p.Index()]
}

// PushNew atomically bumps the allocator and initializes the new slot via
// Node.SetNew. Returns NullNodePtr if the half is exhausted; the caller
// (the engine's expand, via Tree.PushChildren) must then trigger a half-swap.
func (h *TreeHalf) PushNew(mov uint16, policy float32) NodePtr {
	idx := atomic.AddInt64(&h.used, 1) - 1
	if idx >= int64(len(h.nodes)) {
		return NullNodePtr
	}
	slot := &h.nodes[idx]
	slot.SetNew(mov, policy)
	return NewNodePtr(h.half, uint32(idx))
}

// Reset reclaims the whole half in one step: used goes back to 0. Existing
// Node slots are left as-is; PushNew will re-initialize them via SetNew
// before they are handed out again, so no per-node work is needed here.
func (h *TreeHalf) Reset() {
	atomic.StoreInt64(&h.used, 0)
}
