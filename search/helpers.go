// Package search holds the pure selection and time-management functions the
// engine's worker loop calls on every simulation: CPUCT, exploration
// scaling, first-play urgency, predicted action value, and per-move time
// budgeting. They read node statistics through *tree.Node's atomic
// accessors (SelectChild also walks a child block through *tree.Tree) and
// never modify the tree, which keeps them cheap to unit test and safe to
// call without holding any lock.
package search

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/corvidchess/corvid/internal/params"
	"github.com/corvidchess/corvid/tree"
)

// Helpers bundles the tuning constants the formulas below read. A fresh
// Helpers should be built once per search (or once per engine, if options
// aren't expected to change mid-game) from the current params.MCTSParams.
type Helpers struct {
	p params.MCTSParams
}

// NewHelpers builds a Helpers from the given tuning parameters.
func NewHelpers(p params.MCTSParams) Helpers {
	return Helpers{p: p}
}

// GetCPUCT returns the exploration constant for a parent node, scaled by its
// visit count and by the variance of its Q estimate.
func (h Helpers) GetCPUCT(parent *tree.Node, isRoot bool) float32 {
	cpuct := h.p.CPuct
	if isRoot {
		cpuct = h.p.RootCPuct
	}

	scale := h.p.CPuctVisitsScale * 128.0
	visits := float32(parent.Visits())
	cpuct *= 1.0 + math32.Log((visits+scale)/scale)

	if parent.Visits() > 1 {
		frac := math32.Sqrt(parent.Var()) / h.p.CPuctVarScale
		cpuct *= 1.0 + h.p.CPuctVarWeight*(frac-1.0)
	}

	return cpuct
}

// GetExploreScaling returns the multiplicative boost applied to the
// exploration term as the parent accumulates visits.
func (h Helpers) GetExploreScaling(parent *tree.Node) float32 {
	visits := float32(parent.Visits())
	if visits < 1 {
		visits = 1
	}
	return math32.Exp(h.p.ExplTau * math32.Log(visits))
}

// GetFPU returns the first-play urgency assigned to an as-yet-unvisited
// child of parent: always in [0, 1].
func GetFPU(parent *tree.Node) float32 {
	return 1.0 - parent.Q()
}

// GetFPUWithCorrection applies a correction-history bias to GetFPU, clamping
// the result back into [0, 1] since the bias can push it out of range.
func GetFPUWithCorrection(parent *tree.Node, correction float32) float32 {
	fpu := GetFPU(parent) + correction
	if fpu < 0 {
		return 0
	}
	if fpu > 1 {
		return 1
	}
	return fpu
}

// GetActionValue returns the predicted win probability for taking the move
// that leads to child: the child's own Q once it has been visited, else fpu.
// Every worker currently descending through child (Threads) is folded in as
// a provisional visit with a losing (0) result — virtual loss — so
// concurrent workers racing toward the same child see its action value drop
// as more of them pile in, and diverge toward other children instead of all
// selecting the same one.
func GetActionValue(child *tree.Node, fpu float32) float32 {
	visits := child.Visits()
	threads := child.Threads()
	if visits == 0 && threads == 0 {
		return fpu
	}
	effectiveVisits := float32(visits) + float32(threads)
	return child.Q() * float32(visits) / effectiveVisits
}

// TimeControl carries the UCI `go` clock fields relevant to time
// management. A zero IncMillis means no increment; MovesToGo is read only
// when HasMovesToGo is set.
type TimeControl struct {
	TimeMillis   uint64
	IncMillis    uint64
	Ply          uint16
	MovesToGo    uint64 // meaningful only when HasMovesToGo is true (cyclic mode)
	HasMovesToGo bool
}

// GetTimeBudget returns the maximum time, in milliseconds, the engine should
// spend on this move, before move-overhead is subtracted by the caller. A
// `go movetime` command bypasses this entirely; a `go nodes`/`go depth`
// search bypasses it too.
func (h Helpers) GetTimeBudget(tc TimeControl) uint64 {
	var mtg uint64
	tmMode := !tc.HasMovesToGo // true: no movestogo, log-time heuristic; false: cyclic mode, time/mtg
	if tc.HasMovesToGo {
		mtg = tc.MovesToGo
		if mtg > 30 {
			mtg = 30
		}
		if mtg < 1 {
			mtg = 1
		}
	} else {
		mtg = 30
	}

	// Under a second left, gradually reduce the assumed move horizon so the
	// engine doesn't try to stretch a near-flag position over 30 moves.
	if tc.TimeMillis < 1000 && tc.IncMillis > 0 && float64(mtg)/float64(tc.IncMillis) > 0.03 {
		reduced := uint64(float64(tc.TimeMillis) * 0.03)
		if reduced < 2 {
			reduced = 2
		}
		mtg = reduced
	}

	timeLeft := float64(tc.TimeMillis) + float64(tc.IncMillis)*float64(mtg-1) - 10*float64(2+mtg)
	if timeLeft < 1 {
		timeLeft = 1
	}

	var maxTime float64
	if tmMode {
		logTime := math.Log10(timeLeft / 1000.0)
		optConstant := 0.0048 + 0.00032*logTime
		if optConstant > 0.0060 {
			optConstant = 0.0060
		}
		optScale := 0.0125 + math.Sqrt(float64(tc.Ply)+2.5)*optConstant
		cap := 0.25 * float64(tc.TimeMillis) / timeLeft
		if optScale > cap {
			optScale = cap
		}
		// More time early in the game.
		bonus := 1.0
		if tc.Ply <= 10 {
			bonus = 1.0 + math.Log10(11.0-float64(tc.Ply))*0.5
		}
		maxTime = optScale * bonus * timeLeft
	} else {
		maxTime = float64(tc.TimeMillis) / float64(mtg)
	}

	overheadCap := float64(tc.TimeMillis) * 0.85
	if maxTime > overheadCap {
		maxTime = overheadCap
	}
	if maxTime < 0 {
		maxTime = 0
	}

	return uint64(maxTime)
}

// ApplyMoveOverhead subtracts the configured move-overhead reservation from
// a computed time budget, clamping at zero so a tiny budget can't go
// negative.
func (h Helpers) ApplyMoveOverhead(budgetMillis uint64) uint64 {
	overhead := uint64(h.p.MoveOverhead)
	if overhead >= budgetMillis {
		return 0
	}
	return budgetMillis - overhead
}
