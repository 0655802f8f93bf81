package networks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidchess/corvid/chess"
)

func TestEncodeShapeMatchesFeaturePlanes(t *testing.T) {
	s := chess.NewGame()
	enc := Encode(s)
	assert.Len(t, enc, FeaturePlanes*squares)
}

func TestEncodeWhiteToMoveHasEmptySideToMovePlane(t *testing.T) {
	s := chess.NewGame()
	enc := Encode(s)
	sideToMovePlane := 12 * squares
	for i := 0; i < squares; i++ {
		assert.Equal(t, float32(0), enc[sideToMovePlane+i])
	}
}

func TestEncodeBlackToMoveSetsSideToMovePlane(t *testing.T) {
	s := chess.NewGame()
	require.NoError(t, s.ApplyUCI("e2e4"))
	enc := Encode(s)
	sideToMovePlane := 12 * squares
	for i := 0; i < squares; i++ {
		assert.Equal(t, float32(1), enc[sideToMovePlane+i])
	}
}

func TestEncodeStartingPositionHasThirtyTwoPieces(t *testing.T) {
	s := chess.NewGame()
	enc := Encode(s)
	var count float32
	for plane := 0; plane < 12; plane++ {
		for sq := 0; sq < squares; sq++ {
			count += enc[plane*squares+sq]
		}
	}
	assert.Equal(t, float32(32), count)
}
