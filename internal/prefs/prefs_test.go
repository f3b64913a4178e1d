package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_MissingFileDefaults(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "nested", "prefs.yaml"))

	skip, err := f.SkipDeleteWarning()
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")

	require.NoError(t, NewFile(path).SetSkipDeleteWarning(true))

	skip, err := NewFile(path).SkipDeleteWarning()
	require.NoError(t, err)
	assert.True(t, skip)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "skipDeleteWarning: true\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be cleaned up")

	require.NoError(t, NewFile(path).SetSkipDeleteWarning(false))
	v, err := NewFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Values{}, v)
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skipDeleteWarning: [oops"), 0o600))

	_, err := NewFile(path).SkipDeleteWarning()
	assert.Error(t, err)
	assert.Error(t, NewFile(path).SetSkipDeleteWarning(true))
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "ludexstore", "prefs.yaml"), DefaultPath())
}
