package networks

import notnilchess "github.com/notnil/chess"

// ActionSpaceSize is the policy head's output width: one logit per
// (from-square, to-square) pair. Under-promotions collapse onto the same
// index as a queen promotion to the same squares — the policy head always
// assumes promotion to queen, which covers the overwhelming majority of
// real games and keeps the action space a flat 64*64 instead of needing a
// separate plane per promotion piece.
const ActionSpaceSize = 64 * 64

// MoveIndex returns m's slot in the policy output, a flat encoding of
// (from, to) square pairs.
func MoveIndex(m *notnilchess.Move) int {
	return int(m.S1())*64 + int(m.S2())
}
