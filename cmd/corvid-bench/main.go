// Command corvid-bench measures search throughput (simulations/sec) on a
// fixed position, for comparing tuning changes without a UCI GUI in the
// loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"
	"time"

	"k8s.io/klog/v2"

	"github.com/corvidchess/corvid/chess"
	"github.com/corvidchess/corvid/engine"
	"github.com/corvidchess/corvid/eval"
	"github.com/corvidchess/corvid/internal/params"
	"github.com/corvidchess/corvid/networks"
)

var (
	modelPath  = flag.String("model_path", "", "directory containing a trained network; empty uses an untrained network")
	fen        = flag.String("fen", "", "FEN of the position to search; empty uses the starting position")
	simulations = flag.Uint64("simulations", 50000, "number of simulations to run")
	numWorkers = flag.Int("workers", runtime.NumCPU(), "search goroutines")
	treeNodes  = flag.Int("tree_nodes", 1<<20, "total node capacity across both tree halves")
	paramsFlag = flag.String("params", "", "comma-separated key=value MCTS tuning overrides, e.g. CPuct=3.0,UseCorrHist=false")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	net, err := loadNetwork(*modelPath)
	if err != nil {
		klog.Fatalf("corvid-bench: loading network: %v", err)
	}
	defer net.Close()

	pool := eval.NewPool(net, net, 256)
	pool.Start(runtime.NumCPU())
	defer pool.Close()

	mp, err := params.FromParams(params.NewFromConfigString(*paramsFlag))
	if err != nil {
		klog.Fatalf("corvid-bench: parsing -params: %v", err)
	}

	eng := engine.New(engine.Config{
		TreeCapacity: *treeNodes,
		Params:       mp,
		Pool:         pool,
		Seed:         1,
	})

	state, err := startingState(*fen)
	if err != nil {
		klog.Fatalf("corvid-bench: %v", err)
	}
	eng.SetPosition(state)

	start := time.Now()
	best, err := eng.SearchSimulations(context.Background(), *numWorkers, *simulations)
	elapsed := time.Since(start)
	if err != nil {
		klog.Fatalf("corvid-bench: search failed: %v", err)
	}

	fmt.Printf("simulations: %d\n", eng.Simulations())
	fmt.Printf("elapsed:     %s\n", elapsed)
	fmt.Printf("sims/sec:    %.0f\n", float64(eng.Simulations())/elapsed.Seconds())
	fmt.Printf("avg depth:   %d\n", eng.Depth())
	fmt.Printf("seldepth:    %d\n", eng.Seldepth())
	fmt.Printf("root Q:      %.4f\n", eng.RootQ())
	fmt.Printf("half-swaps:  %d\n", eng.Tree().SwapsDone())
	fmt.Printf("best move:   %s\n", best.String())
}

func startingState(fen string) (*chess.State, error) {
	if fen == "" {
		return chess.NewGame(), nil
	}
	return chess.FromFEN(fen)
}

func loadNetwork(dir string) (*networks.DualNet, error) {
	if dir != "" {
		return networks.Load(dir)
	}
	net := networks.New(networks.DefaultConfig(networks.ActionSpaceSize))
	if err := net.Init(); err != nil {
		return nil, err
	}
	return net, nil
}
