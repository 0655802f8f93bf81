// Command corvid is a UCI chess engine: it wires uci.Driver to a pooled
// dual network and an engine.Engine, reading commands from stdin and
// writing replies to stdout.
package main

import (
	"flag"
	"os"
	"runtime"

	"k8s.io/klog/v2"

	"github.com/corvidchess/corvid/engine"
	"github.com/corvidchess/corvid/eval"
	"github.com/corvidchess/corvid/internal/params"
	"github.com/corvidchess/corvid/networks"
	"github.com/corvidchess/corvid/uci"
)

var (
	modelPath  = flag.String("model_path", "", "directory containing a trained network (networks.Save format); empty uses an untrained network")
	treeNodes  = flag.Int("tree_nodes", 1<<20, "total node capacity across both tree halves")
	numWorkers = flag.Int("workers", runtime.NumCPU(), "number of search goroutines per go command")
	evalQueue  = flag.Int("eval_queue", 256, "queue depth for the value/policy evaluator pool")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	net, err := loadOrInitNetwork(*modelPath)
	if err != nil {
		klog.Fatalf("corvid: loading network: %v", err)
	}
	defer net.Close()

	pool := eval.NewPool(net, net, *evalQueue)
	pool.Start(runtime.NumCPU())
	defer pool.Close()

	eng := engine.New(engine.Config{
		TreeCapacity:     *treeNodes,
		Params:           params.DefaultMCTSParams(),
		Pool:             pool,
		DirichletEpsilon: 0.25,
		Seed:             1,
	})

	driver := uci.New(eng, *numWorkers)
	if err := driver.Run(os.Stdin, os.Stdout); err != nil {
		klog.Fatalf("corvid: %v", err)
	}
}

func loadOrInitNetwork(dir string) (*networks.DualNet, error) {
	if dir != "" {
		return networks.Load(dir)
	}
	net := networks.New(networks.DefaultConfig(networks.ActionSpaceSize))
	if err := net.Init(); err != nil {
		return nil, err
	}
	return net, nil
}
