package engine

import "github.com/pkg/errors"

// Sentinel error kinds of the engine. Only ErrInvalidRoot is ever returned
// from a Search call. ErrArenaExhausted is handled inside the worker loop:
// it triggers a half-swap, and if that swap fails the search stops and the
// call returns the current root's best move with a nil error; it is logged,
// not returned. Evaluator failures have no error kind: eval.Pool substitutes
// a zero value or a nil policy when a network call fails, and a request to a
// started pool waits for its reply with no inline fallback.
var (
	// ErrInvalidRoot means Search was called before SetPosition, or on a
	// position with no legal moves (checkmate or stalemate), so there is no
	// move to search or return.
	ErrInvalidRoot = errors.New("engine: invalid root position")

	// ErrArenaExhausted means a half-swap could not make room for the
	// subtree being promoted, even after copying into a fresh half. The
	// engine aborts the search and returns the current root's best move.
	ErrArenaExhausted = errors.New("engine: arena exhausted after half-swap")
)
