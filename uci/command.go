// Package uci implements a minimal UCI (Universal Chess Interface) text
// driver over stdin/stdout: it parses position/go/stop/setoption/quit
// commands, drives an *engine.Engine, and formats bestmove/info replies.
package uci

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/corvidchess/corvid/search"
)

// goCommand holds the parsed fields of a `go` line. Zero values mean
// "not specified".
type goCommand struct {
	wtime, btime uint64
	winc, binc   uint64
	movesToGo    uint64
	hasMovesToGo bool
	movetimeMs   uint64
	depth        int
	nodes        uint64
	infinite     bool
}

// parseGo parses the arguments following `go` (the verb itself already
// consumed). Unknown tokens are ignored, matching how most UCI engines
// tolerate protocol extensions they don't implement.
func parseGo(fields []string) (goCommand, error) {
	var g goCommand

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "wtime", "btime", "winc", "binc", "movestogo", "movetime", "depth", "nodes":
			if i+1 >= len(fields) {
				return g, errors.Errorf("uci: %q requires a value", fields[i])
			}
			v, err := strconv.ParseUint(fields[i+1], 10, 64)
			if err != nil {
				return g, errors.Wrapf(err, "uci: parsing %s value %q", fields[i], fields[i+1])
			}
			switch fields[i] {
			case "wtime":
				g.wtime = v
			case "btime":
				g.btime = v
			case "winc":
				g.winc = v
			case "binc":
				g.binc = v
			case "movestogo":
				g.hasMovesToGo = true
				g.movesToGo = v
			case "movetime":
				g.movetimeMs = v
			case "depth":
				g.depth = int(v)
			case "nodes":
				g.nodes = v
			}
			i++
		case "infinite":
			g.infinite = true
		}
	}
	return g, nil
}

// forSideToMove builds the search.TimeControl the clock-based fields
// describe, from the perspective of the side to move.
func (g goCommand) forSideToMove(whiteToMove bool, ply uint16) search.TimeControl {
	tc := search.TimeControl{
		Ply:          ply,
		MovesToGo:    g.movesToGo,
		HasMovesToGo: g.hasMovesToGo,
	}
	if whiteToMove {
		tc.TimeMillis, tc.IncMillis = g.wtime, g.winc
	} else {
		tc.TimeMillis, tc.IncMillis = g.btime, g.binc
	}
	return tc
}

// fields splits a UCI line on whitespace, discarding empty tokens.
func fields(line string) []string {
	return strings.Fields(line)
}
