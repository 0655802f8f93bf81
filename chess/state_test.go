package chess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidchess/corvid/tree"
)

func TestNewGameHasTwentyLegalMoves(t *testing.T) {
	s := NewGame()
	assert.Len(t, s.LegalMoves(), 20)
	assert.False(t, s.IsTerminal())
	assert.Equal(t, tree.Ongoing, s.Result())
}

func TestApplyUCIAdvancesPosition(t *testing.T) {
	s := NewGame()
	require.NoError(t, s.ApplyUCI("e2e4"))
	require.NoError(t, s.ApplyUCI("e7e5"))
	assert.NotEmpty(t, s.FEN())
}

func TestApplyUCIRejectsIllegalMove(t *testing.T) {
	s := NewGame()
	err := s.ApplyUCI("e2e5")
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewGame()
	clone := s.Clone()
	require.NoError(t, clone.ApplyUCI("e2e4"))
	assert.NotEqual(t, s.Hash(), clone.Hash())
}

func TestHashIsStableForEqualPositions(t *testing.T) {
	a := NewGame()
	b := NewGame()
	require.NoError(t, a.ApplyUCI("e2e4"))
	require.NoError(t, b.ApplyUCI("e2e4"))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashDiffersAfterDifferentMoves(t *testing.T) {
	a := NewGame()
	b := NewGame()
	require.NoError(t, a.ApplyUCI("e2e4"))
	require.NoError(t, b.ApplyUCI("d2d4"))
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestFromFENRoundTrips(t *testing.T) {
	s := NewGame()
	require.NoError(t, s.ApplyUCI("e2e4"))
	fen := s.FEN()

	reloaded, err := FromFEN(fen)
	require.NoError(t, err)
	assert.Equal(t, s.Hash(), reloaded.Hash())
}

func TestFoolsMateIsTerminal(t *testing.T) {
	s := NewGame()
	for _, m := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		require.NoError(t, s.ApplyUCI(m))
	}
	assert.True(t, s.IsTerminal())
	assert.Equal(t, tree.BlackWin, s.Result())
}
