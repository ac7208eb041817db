// Package asr manages the speech recognizer: which model is selected, which
// one last warmed successfully, and whether the engine is ready to serve a
// session. Backends plug in through Backend.
package asr

import (
	"context"
	"strings"
	"time"

	"github.com/rbright/quill/internal/config"
)

// Model identifies one loadable speech model.
type Model struct {
	ID        string `yaml:"id"`
	Backend   string `yaml:"backend"`
	Precision string `yaml:"precision,omitempty"`
	Language  string `yaml:"language,omitempty"`
}

// ModelFromConfig returns the model selected in settings.
func ModelFromConfig(cfg config.ASRConfig) Model {
	return Model{
		ID:        strings.TrimSpace(cfg.Model),
		Backend:   strings.TrimSpace(cfg.Backend),
		Precision: strings.TrimSpace(cfg.Precision),
		Language:  strings.TrimSpace(cfg.Language),
	}
}

// Key identifies the loaded weights. Language is a decode option and is not
// part of it.
func (m Model) Key() string {
	key := m.Backend + "/" + m.ID
	if m.Precision != "" {
		key += "@" + m.Precision
	}
	return key
}

func (m Model) IsZero() bool { return m.ID == "" }

func (m Model) String() string {
	if m.IsZero() {
		return "<none>"
	}
	return m.Key()
}

// State is the engine readiness.
type State string

const (
	StateWarming State = "warming"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Readiness is published on every transition.
type Readiness struct {
	State  State     `json:"state"`
	Model  Model     `json:"model"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since"`
}

func (r Readiness) Ready() bool { return r.State == StateReady }

// Recognizer transcribes 16 kHz mono float32 audio with one loaded model.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
	Close() error
}

// Backend loads model weights from a local path.
type Backend interface {
	Load(ctx context.Context, model Model, path string) (Recognizer, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model Model, path string) (Recognizer, error)

func (f BackendFunc) Load(ctx context.Context, model Model, path string) (Recognizer, error) {
	return f(ctx, model, path)
}
