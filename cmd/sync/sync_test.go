package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
)

func TestSyncAll(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("a"), 0644))

	okTarget := filepath.Join(dir, "dst")
	cfg := config.Config{
		Dirs: []config.Dir{
			{Watch: src, Target: okTarget},
			{Watch: filepath.Join(dir, "missing"), Target: filepath.Join(dir, "dst2")},
		},
	}

	err := syncAll(cfg)
	assert.Equal(t, errors.NewFriendlyError("%d of %d directories failed to copy. "+
		"Run with --verbose for more information.", 1, 2), err)

	// The failure of one directory doesn't stop the others from being copied.
	contents, err := os.ReadFile(filepath.Join(okTarget, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(contents))
}

func TestSyncAllPrune(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.txt"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("stale"), 0644))

	cfg := config.Config{Dirs: []config.Dir{{Watch: src, Target: dst, Prune: true}}}
	require.NoError(t, syncAll(cfg))

	_, err := os.Stat(filepath.Join(dst, "stale.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "keep.txt"))
	assert.NoError(t, err)
}
