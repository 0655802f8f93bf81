package networks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf := DefaultConfig(1968)
	assert.True(t, conf.IsValid())
	assert.Equal(t, 8, conf.Width)
	assert.Equal(t, 8, conf.Height)
	assert.Equal(t, FeaturePlanes, conf.Features)
}

func TestConfigInvalidWhenActionSpaceMissing(t *testing.T) {
	conf := DefaultConfig(0)
	assert.False(t, conf.IsValid())
}

func TestValidateReportsEveryViolationAtOnce(t *testing.T) {
	var conf Config
	err := conf.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, field := range []string{"K", "ActionSpace", "SharedLayers", "FC", "BatchSize", "Features"} {
		assert.Contains(t, msg, field)
	}
}

func TestRoundToNearestPow2(t *testing.T) {
	assert.Equal(t, 16, roundToNearestPow2(21))
	assert.Equal(t, 32, roundToNearestPow2(24))
	assert.Equal(t, 1, roundToNearestPow2(0))
}
