package asr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelState is the persisted selection and last-known-good model.
// Requested is the model settings asked for; Selected differs from it after
// a fallback.
type ModelState struct {
	Requested     Model     `yaml:"requested"`
	Selected      Model     `yaml:"selected"`
	LastKnownGood Model     `yaml:"last_known_good"`
	UpdatedAt     time.Time `yaml:"updated_at"`
}

// ModelStore persists ModelState across restarts.
type ModelStore interface {
	Load() (ModelState, error)
	Save(ModelState) error
}

// FileModelStore keeps ModelState in a YAML file.
type FileModelStore struct {
	Path string
}

// Load returns the zero state when the file does not exist yet.
func (s FileModelStore) Load() (ModelState, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return ModelState{}, nil
	}
	if err != nil {
		return ModelState{}, fmt.Errorf("read model state %s: %w", s.Path, err)
	}
	var state ModelState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return ModelState{}, fmt.Errorf("decode model state %s: %w", s.Path, err)
	}
	return state, nil
}

// Save replaces the file atomically.
func (s FileModelStore) Save(state ModelState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode model state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("prepare model state dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".models-*.yaml")
	if err != nil {
		return fmt.Errorf("create model state temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write model state: %w", errors.Join(writeErr, closeErr))
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod model state: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move model state into place: %w", err)
	}
	return nil
}
