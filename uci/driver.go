package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"

	notnilchess "github.com/notnil/chess"

	"github.com/corvidchess/corvid/chess"
	"github.com/corvidchess/corvid/engine"
	"github.com/corvidchess/corvid/internal/params"
)

const (
	engineName   = "corvid"
	engineAuthor = "corvidchess"

	infoInterval = 200 * time.Millisecond
)

// Driver reads UCI commands from in and writes replies to out, driving a
// single *engine.Engine. A Driver is not safe for concurrent use from more
// than one goroutine reading commands, matching the UCI protocol's
// single-client-per-process model.
type Driver struct {
	eng        *engine.Engine
	out        io.Writer
	mu         sync.Mutex // serializes writes to out
	numWorkers int

	rawParams params.Params
	position  *chess.State

	searching    bool
	cancelSearch context.CancelFunc
	searchDone   chan struct{}
}

// New builds a Driver around an already-constructed Engine (its Pool should
// already be Start-ed). numWorkers is the number of search goroutines
// passed to every Engine.Search* call.
func New(eng *engine.Engine, numWorkers int) *Driver {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}
	return &Driver{
		eng:        eng,
		numWorkers: numWorkers,
		rawParams:  make(params.Params),
		position:   chess.NewGame(),
	}
}

// Run reads commands from in until EOF or a `quit` command, writing replies
// to out. It returns any I/O error from the scanner; a clean `quit` or EOF
// returns nil.
func (d *Driver) Run(in io.Reader, out io.Writer) error {
	d.out = out
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !d.dispatch(line) {
			break
		}
	}
	return scanner.Err()
}

// dispatch handles one input line, returning false if the driver should
// stop reading further commands (a `quit`).
func (d *Driver) dispatch(line string) bool {
	f := fields(line)
	verb := f[0]
	rest := f[1:]

	switch verb {
	case "uci":
		d.handleUCI()
	case "isready":
		d.writeLine("readyok")
	case "ucinewgame":
		d.position = chess.NewGame()
	case "setoption":
		d.handleSetOption(rest)
	case "position":
		d.handlePosition(rest)
	case "go":
		d.handleGo(rest)
	case "stop":
		d.handleStop()
	case "quit":
		d.handleStop()
		return false
	default:
		klog.V(3).Infof("uci: ignoring unrecognized command %q", verb)
	}
	return true
}

func (d *Driver) handleUCI() {
	d.writeLine(fmt.Sprintf("id name %s", engineName))
	d.writeLine(fmt.Sprintf("id author %s", engineAuthor))
	d.writeLine("option name CPuct type string default 2.5")
	d.writeLine("option name RootCPuct type string default 2.5")
	d.writeLine("option name CPuctVisitsScale type string default 4.0")
	d.writeLine("option name CPuctVarScale type string default 0.15")
	d.writeLine("option name CPuctVarWeight type string default 1.0")
	d.writeLine("option name ExplTau type string default 0.5")
	d.writeLine("option name MoveOverhead type spin default 10 min 0 max 5000")
	d.writeLine("option name UseCorrHist type check default true")
	d.writeLine(fmt.Sprintf("option name Threads type spin default %d min 1 max 512", d.numWorkers))
	d.writeLine("uciok")
}

// handleSetOption stores "setoption name <Key> value <Value>" into the
// driver's raw params map; Threads is applied immediately since it governs
// Driver behavior rather than search tuning, everything else is re-parsed
// into params.MCTSParams on the next `go`.
func (d *Driver) handleSetOption(rest []string) {
	name, value, ok := parseSetOption(rest)
	if !ok {
		klog.Warningf("uci: malformed setoption: %v", rest)
		return
	}
	if strings.EqualFold(name, "Threads") {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			d.numWorkers = n
		}
		return
	}
	d.rawParams[name] = value
}

// parseSetOption extracts name and value from the tokens following
// `setoption`: "name <words...> value <words...>". The value clause is
// optional (a bare checkbox toggle with no explicit value means "true",
// handled by params.GetOr's bool convention).
func parseSetOption(fields []string) (name, value string, ok bool) {
	if len(fields) == 0 || fields[0] != "name" {
		return "", "", false
	}
	fields = fields[1:]
	var nameParts, valueParts []string
	inValue := false
	for _, f := range fields {
		if f == "value" && !inValue {
			inValue = true
			continue
		}
		if inValue {
			valueParts = append(valueParts, f)
		} else {
			nameParts = append(nameParts, f)
		}
	}
	if len(nameParts) == 0 {
		return "", "", false
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " "), true
}

// handlePosition applies a `position [startpos|fen <fen>] [moves m1 m2...]`
// command, replacing the driver's tracked position wholesale (tree reuse
// across positions isn't implemented; SetPosition always resets the arena).
func (d *Driver) handlePosition(rest []string) {
	if len(rest) == 0 {
		return
	}

	var state *chess.State
	var movesIdx int

	switch rest[0] {
	case "startpos":
		state = chess.NewGame()
		movesIdx = 1
	case "fen":
		fenParts := rest[1:]
		end := len(fenParts)
		for i, f := range fenParts {
			if f == "moves" {
				end = i
				break
			}
		}
		if end == 0 {
			klog.Warning("uci: position fen with no FEN string")
			return
		}
		s, err := chess.FromFEN(strings.Join(fenParts[:end], " "))
		if err != nil {
			klog.Warningf("uci: %v", err)
			return
		}
		state = s
		movesIdx = 1 + end
	default:
		klog.Warningf("uci: unrecognized position subcommand %q", rest[0])
		return
	}

	if movesIdx < len(rest) && rest[movesIdx] == "moves" {
		for _, m := range rest[movesIdx+1:] {
			if err := state.ApplyUCI(m); err != nil {
				klog.Warningf("uci: %v", err)
				return
			}
		}
	}

	d.position = state
}

// handleGo parses and launches a search. It blocks until the search
// completes (or is cancelled by a later `stop`), which is appropriate for a
// line-oriented driver run synchronously against one stdin stream;
// `info` lines are still emitted periodically via a background ticker.
func (d *Driver) handleGo(rest []string) {
	g, err := parseGo(rest)
	if err != nil {
		klog.Warningf("uci: %v", err)
		return
	}

	mp, err := params.FromParams(cloneParams(d.rawParams))
	if err != nil {
		klog.Warningf("uci: %v", err)
		return
	}
	d.eng.SetParams(mp)
	d.eng.SetPosition(d.position)

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.searching = true
	d.cancelSearch = cancel
	d.searchDone = make(chan struct{})
	d.mu.Unlock()

	stopTicker := d.startInfoTicker()
	defer stopTicker()

	best, searchErr := d.runSearch(ctx, g)

	d.mu.Lock()
	d.searching = false
	d.cancelSearch = nil
	close(d.searchDone)
	d.mu.Unlock()

	if searchErr != nil {
		klog.Warningf("uci: search failed: %v", searchErr)
		d.writeLine("bestmove 0000")
		return
	}
	d.writeLine("bestmove " + best.String())
}

// runSearch dispatches to the Engine entry point matching which `go`
// sub-command was given, in priority order: movetime, nodes, depth,
// infinite, then the default clock-based budget.
func (d *Driver) runSearch(ctx context.Context, g goCommand) (*notnilchess.Move, error) {
	switch {
	case g.movetimeMs > 0:
		return d.eng.SearchMovetime(ctx, d.numWorkers, g.movetimeMs)
	case g.nodes > 0:
		return d.eng.SearchSimulations(ctx, d.numWorkers, g.nodes)
	case g.depth > 0:
		return d.eng.SearchDepth(ctx, d.numWorkers, g.depth)
	case g.infinite:
		return d.eng.SearchInfinite(ctx, d.numWorkers)
	default:
		whiteToMove := d.position.Turn() == notnilchess.White
		tc := g.forSideToMove(whiteToMove, plyFromFEN(d.position.FEN()))
		return d.eng.Search(ctx, d.numWorkers, tc)
	}
}

// handleStop cancels the in-flight search, if any, and waits for it to
// finish so the bestmove line is emitted before stop returns.
func (d *Driver) handleStop() {
	d.mu.Lock()
	if !d.searching {
		d.mu.Unlock()
		return
	}
	d.eng.Stop()
	cancel := d.cancelSearch
	done := d.searchDone
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// startInfoTicker launches a goroutine that writes an `info` line every
// infoInterval while a search is running, returning a func to stop it.
func (d *Driver) startInfoTicker() func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(infoInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.writeLine(d.infoLine())
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

// infoLine formats the engine's current search statistics as a UCI `info`
// line: depth, seldepth, nodes, nps, time, score cp, and pv.
func (d *Driver) infoLine() string {
	elapsed := d.eng.Elapsed()
	nodes := d.eng.Simulations()
	nps := uint64(0)
	if elapsed > 0 {
		nps = uint64(float64(nodes) / elapsed.Seconds())
	}

	pv := d.eng.PV(64)
	pvStr := make([]string, len(pv))
	for i, m := range pv {
		pvStr[i] = m.String()
	}

	return fmt.Sprintf(
		"info depth %d seldepth %d nodes %d nps %d time %d score cp %d pv %s",
		d.eng.Depth(), d.eng.Seldepth(), nodes, nps, elapsed.Milliseconds(),
		scoreCP(d.eng.RootQ()), strings.Join(pvStr, " "),
	)
}

// scoreCP converts a [0, 1] win probability into the centipawn scale UCI
// `info score cp` expects, using the logistic curve common to UCI engines
// (cp = 0 at p = 0.5, diverging towards +-infinity at the extremes).
func scoreCP(winProb float32) int {
	p := float64(winProb)
	if p <= 0 {
		p = 1e-6
	}
	if p >= 1 {
		p = 1 - 1e-6
	}
	return int(math.Round(-400 * math.Log10(1/p-1)))
}

// plyFromFEN derives a half-move ply count from a FEN's trailing "turn ...
// fullmove" fields, the same value search.TimeControl.Ply expects for the
// early-game time bonus.
func plyFromFEN(fen string) uint16 {
	f := strings.Fields(fen)
	if len(f) < 6 {
		return 0
	}
	fullmove, err := strconv.Atoi(f[5])
	if err != nil || fullmove < 1 {
		return 0
	}
	ply := 2 * (fullmove - 1)
	if f[1] == "b" {
		ply++
	}
	return uint16(ply)
}

func cloneParams(p params.Params) params.Params {
	out := make(params.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (d *Driver) writeLine(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out, line)
}
