package asr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirCatalogPathNaming(t *testing.T) {
	c := DirCatalog{Dir: "/models", Paths: map[string]string{"custom": "/opt/custom.bin"}}
	require.Equal(t, "/models/ggml-base.en.bin", c.Path(Model{ID: "base.en"}))
	require.Equal(t, "/models/ggml-small-q5_1.bin", c.Path(Model{ID: "small", Precision: "q5_1"}))
	require.Equal(t, "/opt/custom.bin", c.Path(Model{ID: "custom", Precision: "q8_0"}))
}

func TestDirCatalogEnsurePresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-tiny.bin"), []byte("weights"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ggml-odd.bin"), 0o700))
	c := DirCatalog{Dir: dir}

	path, err := c.EnsurePresent(context.Background(), Model{ID: "tiny"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ggml-tiny.bin"), path)

	_, err = c.EnsurePresent(context.Background(), Model{ID: "large-v3"})
	require.ErrorIs(t, err, ErrModelMissing)
	require.Contains(t, err.Error(), "ggml-large-v3.bin")

	_, err = c.EnsurePresent(context.Background(), Model{ID: "odd"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "is a directory")

	_, err = c.EnsurePresent(context.Background(), Model{})
	require.Error(t, err)
}
