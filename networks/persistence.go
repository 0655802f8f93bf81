package networks

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	metaFile  = "meta.json"
	modelFile = "weights.gob"
)

// Save writes conf and the current weights to dirName, creating it if
// necessary.
func (d *DualNet) Save(dirName string) error {
	if err := os.MkdirAll(dirName, 0755); err != nil {
		return errors.Wrap(err, "creating model directory")
	}

	metaPath := filepath.Join(dirName, metaFile)
	jsonBytes, err := json.MarshalIndent(d.conf, "", "\t")
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}
	if err := os.WriteFile(metaPath, jsonBytes, 0644); err != nil {
		return errors.Wrap(err, "writing config")
	}

	modelPath := filepath.Join(dirName, modelFile)
	f, err := os.OpenFile(modelPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "opening weights file")
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	if err := enc.Encode(d.g); err != nil {
		return errors.Wrap(err, "encoding weights")
	}
	return nil
}

// Load reads a DualNet previously written by Save.
func Load(dirName string) (*DualNet, error) {
	metaPath := filepath.Join(dirName, metaFile)
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	var conf Config
	if err := json.Unmarshal(metaBytes, &conf); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	d := New(conf)
	if err := d.Init(); err != nil {
		return nil, errors.Wrap(err, "rebuilding graph")
	}

	modelPath := filepath.Join(dirName, modelFile)
	f, err := os.Open(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening weights file")
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	if err := dec.Decode(d.g); err != nil {
		return nil, errors.Wrap(err, "decoding weights")
	}
	return d, nil
}
