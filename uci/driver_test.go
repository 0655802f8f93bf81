package uci

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidchess/corvid/engine"
	"github.com/corvidchess/corvid/eval"
	"github.com/corvidchess/corvid/internal/params"
	"github.com/corvidchess/corvid/networks"
)

type flatNet struct{}

func (flatNet) InferValue(features []float32) (float32, error) { return 0, nil }

func (flatNet) InferPolicy(features []float32) ([]float32, error) {
	policy := make([]float32, networks.ActionSpaceSize)
	uniform := float32(1) / float32(len(policy))
	for i := range policy {
		policy[i] = uniform
	}
	return policy, nil
}

func newTestDriver() *Driver {
	net := flatNet{}
	pool := eval.NewPool(net, net, 64)
	eng := engine.New(engine.Config{
		TreeCapacity: 4096,
		Params:       params.DefaultMCTSParams(),
		Pool:         pool,
	})
	return New(eng, 2)
}

func runLines(d *Driver, lines ...string) string {
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	_ = d.Run(in, &out)
	return out.String()
}

func TestUCIHandshake(t *testing.T) {
	d := newTestDriver()
	out := runLines(d, "uci")
	assert.Contains(t, out, "id name corvid")
	assert.Contains(t, out, "uciok")
}

func TestIsReady(t *testing.T) {
	d := newTestDriver()
	out := runLines(d, "isready")
	assert.Contains(t, out, "readyok")
}

func TestGoNodesReturnsBestmove(t *testing.T) {
	d := newTestDriver()
	out := runLines(d, "position startpos", "go nodes 100")
	assert.Contains(t, out, "bestmove")
}

func TestGoEmitsInfoLines(t *testing.T) {
	d := newTestDriver()
	out := runLines(d, "position startpos", "go movetime 400")
	assert.Contains(t, out, "info depth")
	assert.Contains(t, out, "bestmove")
}

func TestSetOptionThreadsAppliesImmediately(t *testing.T) {
	d := newTestDriver()
	runLines(d, "setoption name Threads value 3")
	assert.Equal(t, 3, d.numWorkers)
}

func TestSetOptionCPuctStagesIntoParams(t *testing.T) {
	d := newTestDriver()
	runLines(d, "setoption name CPuct value 9.0")
	assert.Equal(t, "9.0", d.rawParams["CPuct"])
}

func TestPositionFenWithMoves(t *testing.T) {
	d := newTestDriver()
	runLines(d,
		"position fen rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1 moves e2e4 e7e5",
	)
	require.NotNil(t, d.position)
	assert.Contains(t, d.position.FEN(), " w ")
}

func TestQuitStopsTheLoop(t *testing.T) {
	d := newTestDriver()
	var out bytes.Buffer
	in := strings.NewReader("uci\nquit\nisready\n")
	err := d.Run(in, &out)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "readyok")
}
