package search

import (
	"github.com/chewxy/math32"

	"github.com/corvidchess/corvid/tree"
)

var negInf = math32.Inf(-1)

// SelectChild walks parent's children in the given tree half and returns the
// index (0-based, relative to parent's first child) of the one PUCT favors
// most. It assumes children is a non-empty, contiguous run of sibling
// pointers as returned by a Node's Actions().
//
// PUCT(child) = action_value(child, fpu) + cpuct * explore_scale * child.policy / (1 + child.visits + child.threads)
//
// child.threads (virtual loss) lowers both terms for a child other workers
// are already descending through, so concurrent workers diverge instead of
// repeatedly selecting the same leaf.
//
// Ties are broken in favor of the lower index, matching iteration order.
func (h Helpers) SelectChild(t *tree.Tree, parent *tree.Node, first tree.NodePtr, count uint32, isRoot bool, corrHistBias float32) (tree.NodePtr, uint32) {
	cpuct := h.GetCPUCT(parent, isRoot)
	exploreScale := h.GetExploreScaling(parent)
	fpu := GetFPUWithCorrection(parent, corrHistBias)

	bestIdx := uint32(0)
	bestPtr := first
	bestScore := negInf

	for i := uint32(0); i < count; i++ {
		childPtr := first + tree.NodePtr(i)
		child := t.Get(childPtr)

		actionValue := GetActionValue(child, fpu)
		effectiveVisits := float32(child.Visits()) + float32(child.Threads())
		explore := cpuct * exploreScale * child.Policy() / (1.0 + effectiveVisits)
		score := actionValue + explore

		if score > bestScore {
			bestScore = score
			bestIdx = i
			bestPtr = childPtr
		}
	}

	return bestPtr, bestIdx
}
