package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"time"
)

// Loaded is a parsed config together with where it came from.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool

	// ModTime and Digest identify the file content that produced Config.
	ModTime time.Time
	Digest  [sha256.Size]byte
}

// fileSnapshot is one read of the config file.
type fileSnapshot struct {
	data    []byte
	modTime time.Time
	digest  [sha256.Size]byte
}

func readSnapshot(path string) (fileSnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileSnapshot{}, err
	}
	return fileSnapshot{data: data, modTime: info.ModTime(), digest: sha256.Sum256(data)}, nil
}

// Load resolves the config path and parses it over Default. A missing file
// is not an error: defaults apply and a warning says so.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	snap, err := readSnapshot(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Loaded{
			Path:     path,
			Config:   Default(),
			Warnings: []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}},
		}, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(string(snap.data), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return Loaded{
		Path:     path,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
		ModTime:  snap.modTime,
		Digest:   snap.digest,
	}, nil
}
