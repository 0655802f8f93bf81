// Package params handles generic engine configuration: a map[string]string
// that a UCI setoption command, a config file, or a benchmark harness can
// populate, with typed accessors layered on top.
package params

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Params represents generic named configuration values, keyed by UCI option
// name (e.g. "CPuct", "Threads", "Hash").
type Params map[string]string

// NewFromConfigString parses a comma-separated "key=value,key2=value2" string,
// as accepted by the corvid-bench harness's -params flag.
func NewFromConfigString(config string) Params {
	params := make(Params)
	if config == "" {
		return params
	}
	for _, part := range strings.Split(config, ",") {
		subParts := strings.SplitN(part, "=", 2)
		if len(subParts) == 1 {
			params[subParts[0]] = ""
		} else {
			params[subParts[0]] = subParts[1]
		}
	}
	return params
}

// PopOr is like GetOr, but also deletes the retrieved key from params. Used
// during option parsing so a final pass can detect unrecognized keys.
func PopOr[T interface {
	bool | int | float32 | float64 | string
}](params Params, key string, defaultValue T) (T, error) {
	value, err := GetOr(params, key, defaultValue)
	if err != nil {
		return value, err
	}
	delete(params, key)
	return value, nil
}

// GetOr parses the parameter named key to type T if present, or returns
// defaultValue if key is absent. For bool, a key present with no value is
// treated as true.
func GetOr[T interface {
	bool | int | float32 | float64 | string
}](params Params, key string, defaultValue T) (T, error) {
	vAny := (any)(defaultValue)
	var zero T
	toT := func(v any) T { return v.(T) }
	switch vAny.(type) {
	case string:
		if value, exists := params[key]; exists {
			return toT(value), nil
		}
	case int:
		if value, exists := params[key]; exists && value != "" {
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return zero, errors.Wrapf(err, "parsing %s=%q as int", key, value)
			}
			return toT(parsed), nil
		}
	case float32:
		if value, exists := params[key]; exists && value != "" {
			parsed, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return zero, errors.Wrapf(err, "parsing %s=%q as float32", key, value)
			}
			return toT(float32(parsed)), nil
		}
	case float64:
		if value, exists := params[key]; exists && value != "" {
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return zero, errors.Wrapf(err, "parsing %s=%q as float64", key, value)
			}
			return toT(parsed), nil
		}
	case bool:
		if value, exists := params[key]; exists {
			if value == "" || strings.EqualFold(value, "true") || value == "1" {
				return toT(true), nil
			}
			if strings.EqualFold(value, "false") || value == "0" {
				return toT(false), nil
			}
			return defaultValue, errors.Errorf("parsing %s=%q as bool", key, value)
		}
	}
	return defaultValue, nil
}

// MCTSParams holds the tuning constants SearchHelpers reads, with the
// defaults used when no UCI setoption overrides them.
type MCTSParams struct {
	CPuct            float32
	RootCPuct        float32
	CPuctVisitsScale float32
	CPuctVarScale    float32
	CPuctVarWeight   float32
	ExplTau          float32
	MoveOverhead     int
	UseCorrHist      bool
}

// DefaultMCTSParams returns the tuning constants used by the reference
// evaluation network training run.
func DefaultMCTSParams() MCTSParams {
	return MCTSParams{
		CPuct:            2.5,
		RootCPuct:        2.5,
		CPuctVisitsScale: 4.0,
		CPuctVarScale:    0.15,
		CPuctVarWeight:   1.0,
		ExplTau:          0.5,
		MoveOverhead:     10,
		UseCorrHist:      true,
	}
}

// FromParams overlays any keys present in p onto the defaults, popping each
// recognized key so the caller can flag leftovers as unknown options.
func FromParams(p Params) (MCTSParams, error) {
	mp := DefaultMCTSParams()
	var err error
	if mp.CPuct, err = PopOr(p, "CPuct", mp.CPuct); err != nil {
		return mp, err
	}
	if mp.RootCPuct, err = PopOr(p, "RootCPuct", mp.RootCPuct); err != nil {
		return mp, err
	}
	if mp.CPuctVisitsScale, err = PopOr(p, "CPuctVisitsScale", mp.CPuctVisitsScale); err != nil {
		return mp, err
	}
	if mp.CPuctVarScale, err = PopOr(p, "CPuctVarScale", mp.CPuctVarScale); err != nil {
		return mp, err
	}
	if mp.CPuctVarWeight, err = PopOr(p, "CPuctVarWeight", mp.CPuctVarWeight); err != nil {
		return mp, err
	}
	if mp.ExplTau, err = PopOr(p, "ExplTau", mp.ExplTau); err != nil {
		return mp, err
	}
	if mp.MoveOverhead, err = PopOr(p, "MoveOverhead", mp.MoveOverhead); err != nil {
		return mp, err
	}
	if mp.UseCorrHist, err = PopOr(p, "UseCorrHist", mp.UseCorrHist); err != nil {
		return mp, err
	}
	return mp, nil
}
