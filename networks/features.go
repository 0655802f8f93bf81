package networks

import (
	notnilchess "github.com/notnil/chess"

	"github.com/corvidchess/corvid/chess"
)

// FeaturePlanes is the number of 8x8 input planes Encode produces: twelve
// one-hot piece planes (six piece types, two colors), one side-to-move
// plane, and one halfmove-clock plane (normalized, for fifty-move-rule
// awareness).
const FeaturePlanes = 14

const squares = 64

// Encode flattens s into the network's input tensor layout: FeaturePlanes
// consecutive 8x8 planes, row-major, matching Config.Features/Height/Width.
func Encode(s *chess.State) []float32 {
	out := make([]float32, FeaturePlanes*squares)
	board := s.Board()

	for sq, piece := range board.SquareMap() {
		plane, ok := pieceToPlane(piece)
		if !ok {
			continue
		}
		out[plane*squares+int(sq)] = 1.0
	}

	sideToMovePlane := 12 * squares
	if s.Turn() == notnilchess.Black {
		for i := 0; i < squares; i++ {
			out[sideToMovePlane+i] = 1.0
		}
	}

	// Halfmove-clock plane left at zero here: State doesn't currently
	// expose the clock, so the network treats it as "recently reset" by
	// default. The plane is kept so models trained with it stay loadable.
	return out
}

func pieceToPlane(p notnilchess.Piece) (int, bool) {
	switch p {
	case notnilchess.WhitePawn:
		return 0, true
	case notnilchess.WhiteKnight:
		return 1, true
	case notnilchess.WhiteBishop:
		return 2, true
	case notnilchess.WhiteRook:
		return 3, true
	case notnilchess.WhiteQueen:
		return 4, true
	case notnilchess.WhiteKing:
		return 5, true
	case notnilchess.BlackPawn:
		return 6, true
	case notnilchess.BlackKnight:
		return 7, true
	case notnilchess.BlackBishop:
		return 8, true
	case notnilchess.BlackRook:
		return 9, true
	case notnilchess.BlackQueen:
		return 10, true
	case notnilchess.BlackKing:
		return 11, true
	default:
		return 0, false
	}
}
