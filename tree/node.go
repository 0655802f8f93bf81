// Package tree implements the double-buffered node arena, the lock-free
// Node statistics block, and the transposition / correction-history tables
// that back the search (see package search) and engine (see package engine)
// packages.
package tree

import (
	"math"
	"sync"
	"sync/atomic"
)

// cacheLineSize is the padding unit used to isolate hot atomic fields onto
// their own cache line, avoiding false sharing between worker goroutines
// hammering different statistics on the same Node concurrently.
const cacheLineSize = 64

// GameState is the terminal/non-terminal status of a Node's position.
type GameState uint32

const (
	Ongoing GameState = iota
	WhiteWin
	BlackWin
	Draw
)

func (s GameState) String() string {
	switch s {
	case Ongoing:
		return "Ongoing"
	case WhiteWin:
		return "WhiteWin"
	case BlackWin:
		return "BlackWin"
	case Draw:
		return "Draw"
	default:
		return "Unknown"
	}
}

// NodePtr is a tagged index into one of the two TreeHalf arenas. The top bit
// selects the half; the remaining 31 bits index within it. NullNodePtr means
// "no node".
type NodePtr uint32

// NullNodePtr is the sentinel value for "no node".
const NullNodePtr NodePtr = 0xFFFFFFFF

// halfBit is the tag bit that selects which TreeHalf a NodePtr lives in.
const halfBit = uint32(1) << 31

// NewNodePtr tags idx with the given half.
func NewNodePtr(half bool, idx uint32) NodePtr {
	var h uint32
	if half {
		h = halfBit
	}
	return NodePtr(h | (idx &^ halfBit))
}

// IsNull reports whether p is the NULL sentinel.
func (p NodePtr) IsNull() bool { return p == NullNodePtr }

// Half reports which TreeHalf p indexes into.
func (p NodePtr) Half() bool { return uint32(p)&halfBit != 0 }

// Index returns the offset of p within its TreeHalf.
func (p NodePtr) Index() uint32 { return uint32(p) &^ halfBit }

// Node is the fundamental unit of the search tree. Every mutable field is an
// atomic so many worker goroutines can read and update one Node concurrently
// without locks, with the sole exception of actions/numActions, which are
// guarded by a reader-writer lock because allocating a whole child block
// must be atomic with respect to concurrent reads of the children.
//
// Each hot field sits on its own cache line; this is load-bearing for
// scaling past a handful of worker goroutines and should be re-checked with
// a false-sharing microbenchmark if the struct layout changes.
type Node struct {
	actionsMu sync.RWMutex
	actions   NodePtr
	_pad0     [cacheLineSize - 8]byte

	numActions uint32
	_pad1      [cacheLineSize - 4]byte

	state uint32 // GameState, encoded
	_pad2 [cacheLineSize - 4]byte

	threads int32
	_pad3   [cacheLineSize - 4]byte

	mov   uint32 // move that reached this node from its parent, encoded in 16 bits
	_pad4 [cacheLineSize - 4]byte

	policy uint32 // prior probability, u16 fixed-point over [0, 1]
	_pad5  [cacheLineSize - 4]byte

	visits int32
	_pad6  [cacheLineSize - 4]byte

	q     uint32 // running mean of leaf values, u32 fixed-point over [0, 1]
	_pad7 [cacheLineSize - 4]byte

	sqQ   uint32 // running mean of squared leaf values, same encoding
	_pad8 [cacheLineSize - 4]byte

	giniImpurity uint32 // f32 bit pattern
	_pad9        [cacheLineSize - 4]byte
}

// SetNew clears all statistics and stores the incoming move and prior. Safe
// to call on a slot freshly handed out by TreeHalf.PushNew.
func (n *Node) SetNew(mov uint16, policy float32) {
	n.Clear()
	atomic.StoreUint32(&n.mov, uint32(mov))
	n.SetPolicy(policy)
}

// Clear resets a Node to its Fresh state, dropping any children.
func (n *Node) Clear() {
	n.ClearActions()
	n.SetState(Ongoing)
	n.SetGiniImpurity(0)
	atomic.StoreInt32(&n.visits, 0)
	atomic.StoreUint32(&n.q, 0)
	atomic.StoreUint32(&n.sqQ, 0)
	atomic.StoreInt32(&n.threads, 0)
}

// ClearActions drops the child block pointer and resets NumActions to 0.
func (n *Node) ClearActions() {
	n.actionsMu.Lock()
	n.actions = NullNodePtr
	n.actionsMu.Unlock()
	atomic.StoreUint32(&n.numActions, 0)
}

// Actions returns the pointer to the first child and the number of
// children. A read lock is held only for the duration of the load.
func (n *Node) Actions() (first NodePtr, count uint32) {
	n.actionsMu.RLock()
	first = n.actions
	n.actionsMu.RUnlock()
	return first, atomic.LoadUint32(&n.numActions)
}

// SetActions installs the child block pointer and count under an exclusive
// lock. Called exactly once per expansion.
func (n *Node) SetActions(first NodePtr, count uint32) {
	n.actionsMu.Lock()
	n.actions = first
	n.actionsMu.Unlock()
	atomic.StoreUint32(&n.numActions, count)
}

// Expand installs a freshly allocated child block as n's children, but only
// if no other worker has already expanded n — the check and the install
// happen atomically under the same exclusive lock, so two workers racing to
// expand the same leaf never both succeed. alloc is called with the lock
// held and should return (NullNodePtr, 0) if allocation failed (e.g. the
// active half is full); in that case Expand reports installed = false with
// a NULL block, and the caller should trigger a half-swap rather than
// assume someone else won the race.
func (n *Node) Expand(alloc func() (NodePtr, uint32)) (installed bool, first NodePtr, count uint32) {
	n.actionsMu.Lock()
	defer n.actionsMu.Unlock()
	if n.actions != NullNodePtr && n.numActions != 0 {
		return false, n.actions, n.numActions
	}
	first, count = alloc()
	if first.IsNull() {
		return false, NullNodePtr, 0
	}
	n.actions = first
	atomic.StoreUint32(&n.numActions, count)
	return true, first, count
}

// NumActions returns the number of children (0 means unexpanded).
func (n *Node) NumActions() uint32 { return atomic.LoadUint32(&n.numActions) }

// HasChildren reports whether the node has been expanded.
func (n *Node) HasChildren() bool { return n.NumActions() != 0 }

// State returns the node's terminal/non-terminal status.
func (n *Node) State() GameState { return GameState(atomic.LoadUint32(&n.state)) }

// SetState stores the node's terminal/non-terminal status.
func (n *Node) SetState(s GameState) { atomic.StoreUint32(&n.state, uint32(s)) }

// IsTerminal reports whether the node's game has concluded.
func (n *Node) IsTerminal() bool { return n.State() != Ongoing }

// IsNotExpanded reports whether the node is Ongoing and has no children yet.
func (n *Node) IsNotExpanded() bool { return n.State() == Ongoing && n.NumActions() == 0 }

// Threads returns the current virtual-loss count: the number of worker
// goroutines presently descending through this node.
func (n *Node) Threads() int32 { return atomic.LoadInt32(&n.threads) }

// IncThreads increments the virtual-loss counter on descent.
func (n *Node) IncThreads() { atomic.AddInt32(&n.threads, 1) }

// DecThreads decrements the virtual-loss counter on back-propagation. Must
// be paired with exactly one IncThreads call along the same path.
func (n *Node) DecThreads() { atomic.AddInt32(&n.threads, -1) }

// Move returns the move (in the opaque 16-bit encoding chosen by the
// collaborator board module) that reached this node from its parent.
func (n *Node) Move() uint16 { return uint16(atomic.LoadUint32(&n.mov)) }

const fixedPointU16 = float32(65535) // u16::MAX, matches the fixed-point scale used throughout.
const fixedPointU32 = float64(4294967295) // u32::MAX

// Policy returns the prior probability of the move leading to this node.
func (n *Node) Policy() float32 {
	return float32(atomic.LoadUint32(&n.policy)) / fixedPointU16
}

// SetPolicy stores the prior probability as a u16 fixed-point value.
func (n *Node) SetPolicy(p float32) {
	atomic.StoreUint32(&n.policy, uint32(p*fixedPointU16))
}

// Visits returns the number of completed back-propagation events.
func (n *Node) Visits() int32 { return atomic.LoadInt32(&n.visits) }

func (n *Node) q64() float64 {
	return float64(atomic.LoadUint32(&n.q)) / fixedPointU32
}

func (n *Node) sqQ64() float64 {
	return float64(atomic.LoadUint32(&n.sqQ)) / fixedPointU32
}

// Q returns the running mean of leaf values observed through this node.
func (n *Node) Q() float32 { return float32(n.q64()) }

// SqQ returns the running mean of squared leaf values.
func (n *Node) SqQ() float32 { return float32(n.sqQ64()) }

// Var returns max(0, sq_q - q^2), the variance estimate used by CPUCT
// variance scaling (see package search).
func (n *Node) Var() float32 {
	v := n.sqQ64() - n.q64()*n.q64()
	if v < 0 {
		v = 0
	}
	return float32(v)
}

// GiniImpurity returns the stored policy-spread measure.
func (n *Node) GiniImpurity() float32 {
	return math.Float32frombits(atomic.LoadUint32(&n.giniImpurity))
}

// SetGiniImpurity stores the policy-spread measure.
func (n *Node) SetGiniImpurity(g float32) {
	atomic.StoreUint32(&n.giniImpurity, math.Float32bits(g))
}

// Update is the back-propagation primitive. It folds result into the
// running (q, sq_q) means and increments visits, returning the new q so
// callers can flip it for the next ply up without a second load.
//
// Updates are relaxed: occasional torn reads of (q, visits) by concurrent
// selectors are tolerated, since PUCT selection is self-correcting and a
// stale read only defers to the next simulation.
func (n *Node) Update(result float32) float32 {
	r := float64(result)
	v := float64(atomic.AddInt32(&n.visits, 1) - 1)

	q := (n.q64()*v + r) / (v + 1)
	sqQ := (n.sqQ64()*v + r*r) / (v + 1)

	atomic.StoreUint32(&n.q, uint32(q*fixedPointU32))
	atomic.StoreUint32(&n.sqQ, uint32(sqQ*fixedPointU32))

	return float32(q)
}

// CopyFrom performs a field-by-field relaxed atomic copy of other into n,
// used during subtree promotion across a half-swap. actions/numActions are
// copied by the caller (copySubtreeBFS), since the child pointers must
// be remapped to the destination half rather than copied verbatim.
func (n *Node) CopyFrom(other *Node) {
	atomic.StoreInt32(&n.threads, atomic.LoadInt32(&other.threads))
	atomic.StoreUint32(&n.mov, atomic.LoadUint32(&other.mov))
	atomic.StoreUint32(&n.policy, atomic.LoadUint32(&other.policy))
	n.SetState(other.State())
	atomic.StoreUint32(&n.giniImpurity, atomic.LoadUint32(&other.giniImpurity))
	atomic.StoreInt32(&n.visits, atomic.LoadInt32(&other.visits))
	atomic.StoreUint32(&n.q, atomic.LoadUint32(&other.q))
	atomic.StoreUint32(&n.sqQ, atomic.LoadUint32(&other.sqQ))
}
