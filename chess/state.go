// Package chess wraps github.com/notnil/chess with the thin surface the
// search engine actually needs: legal move generation, a 64-bit positional
// hash suitable for HashTable/CorrHistTable keys, and terminal-state
// detection mapped onto tree.GameState.
//
// Unlike a full game-history tracker, State holds exactly one position.
// The engine doesn't need undo/redo or move-list bookkeeping of its own —
// the tree is not kept across moves (engine.SetPosition resets it before
// each search), and a simulation replays moves forward on a clone, so State
// only ever needs to move forward.
package chess

import (
	"encoding/binary"
	"fmt"

	"github.com/notnil/chess"

	"github.com/corvidchess/corvid/tree"
)

// State is a single chess position.
type State struct {
	game *chess.Game
}

// NewGame returns a State at the standard starting position.
func NewGame() *State {
	return &State{game: chess.NewGame(chess.UseNotation(chess.UCINotation{}))}
}

// FromFEN builds a State from a FEN string, as accepted by a UCI
// `position fen ...` command.
func FromFEN(fen string) (*State, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parsing fen %q: %w", fen, err)
	}
	g := chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))
	return &State{game: g}, nil
}

// Clone returns an independent copy of s; mutating the clone never affects
// s.
func (s *State) Clone() *State {
	return &State{game: s.game.Clone()}
}

// Turn returns the color to move.
func (s *State) Turn() chess.Color {
	return s.game.Position().Turn()
}

// LegalMoves returns every legal move from the current position, in the
// order notnil/chess generates them. Callers identify a move by its
// networks.MoveIndex, not by its position in this slice.
func (s *State) LegalMoves() []*chess.Move {
	return s.game.ValidMoves()
}

// Apply plays m (rendered in UCI notation, since the underlying game was
// opened with chess.UCINotation{}), mutating s in place. It panics if m is
// not a legal move in the current position — callers are expected to only
// ever apply moves drawn from LegalMoves.
func (s *State) Apply(m *chess.Move) {
	if err := s.game.MoveStr(m.String()); err != nil {
		panic(fmt.Sprintf("chess: illegal move applied: %v", err))
	}
}

// ApplyUCI parses a move in UCI notation (e.g. "e2e4", "e7e8q") and applies
// it to s. It returns an error rather than panicking, since the string may
// come directly from a UCI `position moves ...` command.
func (s *State) ApplyUCI(uciMove string) error {
	if err := s.game.MoveStr(uciMove); err != nil {
		return fmt.Errorf("chess: %q is not a legal move in the current position: %w", uciMove, err)
	}
	return nil
}

// FEN returns the current position in Forsyth-Edwards notation.
func (s *State) FEN() string {
	return s.game.Position().String()
}

// Hash returns a 64-bit positional hash suitable as a HashTable or
// CorrHistTable key: the first 8 bytes (big-endian) of notnil/chess's
// 16-byte zobrist-style position hash.
func (s *State) Hash() uint64 {
	h := s.game.Position().Hash()
	return binary.BigEndian.Uint64(h[:8])
}

// Result reports the terminal state of the position, mapped onto
// tree.GameState. A non-terminal position reports tree.Ongoing.
func (s *State) Result() tree.GameState {
	switch s.game.Outcome() {
	case chess.NoOutcome:
		return tree.Ongoing
	case chess.WhiteWon:
		return tree.WhiteWin
	case chess.BlackWon:
		return tree.BlackWin
	default: // chess.Draw
		return tree.Draw
	}
}

// IsTerminal reports whether the game has ended: checkmate, stalemate, or
// a draw notnil/chess declares automatically.
func (s *State) IsTerminal() bool {
	return s.game.Outcome() != chess.NoOutcome
}

// Board returns the underlying board, for rendering or debugging.
func (s *State) Board() *chess.Board {
	return s.game.Position().Board()
}

// String renders the board for logging.
func (s *State) String() string {
	return s.game.Position().Board().Draw()
}
