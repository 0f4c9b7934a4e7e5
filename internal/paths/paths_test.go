package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	got, err := AppDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	db, err := DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "media.db"), db)

	logPath, err := LogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs", "jellysort.log"), logPath)
}

func TestAppDir_DefaultsUnderHome(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv("SUDO_USER", "")

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := AppDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "jellysort"), got)

	cfg, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(got, "config.toml"), cfg)
}
