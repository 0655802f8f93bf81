// Package networks provides the dual (policy + value) residual network
// used to evaluate leaf positions during search, plus the board encoder
// that turns a chess.State into the network's input planes.
package networks

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Config configures the dual network's architecture. Width/Height are fixed
// at 8 for chess; Features is the plane count produced by Encode.
type Config struct {
	K            int  `json:"k"`             // convolutional filter count
	SharedLayers int  `json:"shared_layers"` // residual tower depth
	FC           int  `json:"fc"`            // policy/value head width
	BatchSize    int  `json:"batch_size"`
	Width        int  `json:"width"`
	Height       int  `json:"height"`
	Features     int  `json:"features"`
	ActionSpace  int  `json:"action_space"`
	FwdOnly      bool `json:"fwd_only"` // true once loaded purely for inference, no training graph
}

// DefaultConfig returns the architecture used by the reference training
// run: a residual tower sized to the board and a filter count derived from
// it, mirroring the teacher's round-to-nearest-power-of-two heuristic.
func DefaultConfig(actionSpace int) Config {
	const width, height = 8, 8
	k := roundToNearestPow2((width * height) / 3)
	return Config{
		K:            k,
		SharedLayers: 10,
		FC:           2 * k,
		BatchSize:    64,
		Width:        width,
		Height:       height,
		Features:     FeaturePlanes,
		ActionSpace:  actionSpace,
	}
}

// IsValid reports whether conf describes a buildable graph.
func (conf Config) IsValid() bool {
	return conf.Validate() == nil
}

// Validate reports every problem with conf at once, rather than stopping at
// the first one, so a misconfigured model file surfaces all of its issues in
// a single error.
func (conf Config) Validate() error {
	var result *multierror.Error
	if conf.K < 1 {
		result = multierror.Append(result, errors.New("networks: K must be >= 1"))
	}
	if conf.ActionSpace < 1 {
		result = multierror.Append(result, errors.New("networks: ActionSpace must be >= 1"))
	}
	if conf.SharedLayers < 1 {
		result = multierror.Append(result, errors.New("networks: SharedLayers must be >= 1"))
	}
	if conf.FC <= 1 {
		result = multierror.Append(result, errors.New("networks: FC must be > 1"))
	}
	if conf.BatchSize < 1 {
		result = multierror.Append(result, errors.New("networks: BatchSize must be >= 1"))
	}
	if conf.Width <= 0 || conf.Height <= 0 {
		result = multierror.Append(result, errors.New("networks: Width and Height must be > 0"))
	}
	if conf.Features <= 0 {
		result = multierror.Append(result, errors.New("networks: Features must be > 0"))
	}
	return result.ErrorOrNil()
}

func roundToNearestPow2(a int) int {
	if a < 1 {
		return 1
	}
	n := a - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++

	lower := n / 2
	if (a - lower) < (n - a) {
		return lower
	}
	return n
}
