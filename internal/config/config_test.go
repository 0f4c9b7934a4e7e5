package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "emby", cfg.Rename.Standard)
	assert.Equal(t, 20, cfg.Rename.BatchSize)
	assert.Equal(t, 10, cfg.AI.HardTimeoutSeconds)
}

func TestAIConfig_CircuitBreakerDefaults(t *testing.T) {
	cfg := DefaultAIConfig()
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 120, cfg.CircuitBreaker.FailureWindowSeconds)
	assert.Equal(t, 30, cfg.CircuitBreaker.CooldownSeconds)
}

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Rename, cfg.Rename)
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[rename]
standard = "plex"
batch_size = 5

[[ai.providers]]
name = "remote"
kind = "openai"
endpoint = "https://llm.example"
api_key = "k"
`), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "plex", cfg.Rename.Standard)
	assert.Equal(t, 5, cfg.Rename.BatchSize)
	assert.Equal(t, "move", cfg.Rename.Operation)
	require.Len(t, cfg.AI.Providers, 1)
	assert.Equal(t, "openai", cfg.AI.Providers[0].Kind)
}

func TestLoadFrom_EnvSecret(t *testing.T) {
	t.Setenv("JELLYSORT_TMDB_API_KEY", "from-env")
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Catalog.TMDBAPIKey)
}

func TestLoadFrom_DotEnvBesideConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("JELLYSORT_JELLYFIN_API_KEY=from-dotenv\nJELLYSORT_TMDB_API_KEY=from-dotenv\n"), 0600))

	// Register cleanup for the variable godotenv will set, then clear it.
	t.Setenv("JELLYSORT_JELLYFIN_API_KEY", "")
	require.NoError(t, os.Unsetenv("JELLYSORT_JELLYFIN_API_KEY"))
	t.Setenv("JELLYSORT_TMDB_API_KEY", "from-env")

	cfg, err := LoadFrom(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Notify.JellyfinAPIKey)
	assert.Equal(t, "from-env", cfg.Catalog.TMDBAPIKey, "environment wins over .env")
}

func TestToTOML_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Library.AllowedRoots = []string{"/media/incoming", "/media/library"}
	cfg.Rename.Operation = "hardlink"
	cfg.Category.Enabled = true
	cfg.Permissions = PermissionsConfig{User: "1000", FileMode: "644"}

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Library, loaded.Library)
	assert.Equal(t, cfg.Rename, loaded.Rename)
	assert.Equal(t, cfg.Category, loaded.Category)
	assert.Equal(t, cfg.AI.Providers, loaded.AI.Providers)
	assert.Equal(t, cfg.Permissions, loaded.Permissions)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rename.Standard = "infuse"
	cfg.Rename.Operation = "teleport"
	cfg.Rename.BatchSize = 0
	cfg.Library.AllowedRoots = []string{"relative/dir"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"rename.standard", "rename.operation", "rename.batch_size", "allowed_roots"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestEffectiveAllowedRoots(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.EffectiveAllowedRoots())
	assert.Error(t, cfg.ValidateServe(), "serve needs an allow-list")

	cfg.Library.OutputRoot = "/media"
	cfg.Watch.Dirs = []string{"/downloads"}
	assert.Equal(t, []string{"/media", "/downloads"}, cfg.EffectiveAllowedRoots())
	assert.NoError(t, cfg.ValidateServe())

	cfg.Library.AllowedRoots = []string{"/srv"}
	assert.Equal(t, []string{"/srv"}, cfg.EffectiveAllowedRoots())

	cfg.Library.AllowedRoots = nil
	cfg.Library.OutputRoot = ""
	cfg.Watch.Dirs = []string{"downloads"}
	assert.Error(t, cfg.ValidateServe())
}

func TestPermissionsResolveNumeric(t *testing.T) {
	p := &PermissionsConfig{User: "0", Group: "0", FileMode: "0644", DirMode: "755"}

	uid, err := p.ResolveUID()
	require.NoError(t, err)
	assert.Equal(t, 0, uid)

	gid, err := p.ResolveGID()
	require.NoError(t, err)
	assert.Equal(t, 0, gid)

	fm, err := p.ParseFileMode()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), fm)

	dm, err := p.ParseDirMode()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), dm)
}
