package asr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrModelMissing reports that the catalog has no local copy of a model.
var ErrModelMissing = errors.New("model not present")

// Catalog makes a model available on disk and returns its path. Fetching
// and verifying weights is the catalog's business, not the engine's.
type Catalog interface {
	EnsurePresent(ctx context.Context, model Model) (string, error)
}

// DirCatalog resolves models already installed under Dir using whisper.cpp
// file naming (ggml-<id>.bin, ggml-<id>-<precision>.bin). Paths overrides
// the location per model id.
type DirCatalog struct {
	Dir   string
	Paths map[string]string
}

func (c DirCatalog) Path(model Model) string {
	if p, ok := c.Paths[model.ID]; ok && p != "" {
		return p
	}
	name := "ggml-" + model.ID
	if model.Precision != "" {
		name += "-" + model.Precision
	}
	return filepath.Join(c.Dir, name+".bin")
}

func (c DirCatalog) EnsurePresent(ctx context.Context, model Model) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if model.IsZero() {
		return "", errors.New("no model selected")
	}
	path := c.Path(model)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s (expected %s)", ErrModelMissing, model.ID, path)
	}
	if err != nil {
		return "", fmt.Errorf("stat model %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("model path %s is a directory", path)
	}
	return path, nil
}
