package config

import (
	"fmt"
	"strings"
)

// ToTOML renders the configuration as a commented TOML document.
func (c *Config) ToTOML() string {
	var b strings.Builder

	fmt.Fprintf(&b, `# jellysort configuration
# Generated by: jellysort config init

# ============================================================================
# LIBRARY
# Every move/copy/link is checked against allowed_roots before it runs.
# When empty, output_root and [watch] dirs are the allowed roots. serve
# refuses to start without any.
# ============================================================================
[library]
allowed_roots = %s
output_root = %q

# ============================================================================
# RENAME
# standard:  emby | plex | kodi
# operation: move | copy | hardlink | softlink
# algorithm: standard | ai_enhanced | ai_only
# ============================================================================
[rename]
standard = %q
operation = %q
algorithm = %q
confidence_threshold = %.2f
batch_size = %d
parse_concurrency = %d
create_movie_folder = %v
specials_folder = %q
parse_cache_size = %d

[scrape]
write_nfo = %v
download_images = %v

# ============================================================================
# AI FILENAME CLASSIFIER
# Used when the local parser is unsure. Providers are tried in order and each
# call is capped at hard_timeout_seconds.
# ============================================================================
[ai]
enabled = %v
trigger_threshold = %.2f
hard_timeout_seconds = %d

[ai.circuit_breaker]
failure_threshold = %d
failure_window_seconds = %d
cooldown_seconds = %d
`,
		formatStringSlice(c.Library.AllowedRoots),
		c.Library.OutputRoot,
		c.Rename.Standard,
		c.Rename.Operation,
		c.Rename.Algorithm,
		c.Rename.ConfidenceThreshold,
		c.Rename.BatchSize,
		c.Rename.ParseConcurrency,
		c.Rename.CreateMovieFolder,
		c.Rename.SpecialsFolder,
		c.Rename.ParseCacheSize,
		c.Scrape.WriteNFO,
		c.Scrape.DownloadImages,
		c.AI.Enabled,
		c.AI.TriggerThreshold,
		c.AI.HardTimeoutSeconds,
		c.AI.CircuitBreaker.FailureThreshold,
		c.AI.CircuitBreaker.FailureWindowSeconds,
		c.AI.CircuitBreaker.CooldownSeconds,
	)

	for _, p := range c.AI.Providers {
		fmt.Fprintf(&b, `
[[ai.providers]]
name = %q
kind = %q
endpoint = %q
model = %q
api_key = %q
timeout_seconds = %d
`, p.Name, p.Kind, p.Endpoint, p.Model, p.APIKey, p.TimeoutSeconds)
	}

	fmt.Fprintf(&b, `
# ============================================================================
# CATALOG
# ============================================================================
[catalog]
provider = %q
tmdb_api_key = %q
tmdb_url = %q
image_url = %q
language = %q
timeout_seconds = %d

[category]
enabled = %v
anime_keywords = %s
anime_folder = %q
movie_folder = %q
tv_folder = %q

[jobs]
max_concurrent = %d

# ============================================================================
# NOTIFICATIONS
# Jellyfin/Emby library refresh and a generic JSON webhook.
# ============================================================================
[notify]
enabled = %v
jellyfin_url = %q
jellyfin_api_key = %q
webhook_url = %q
webhook_secret = %q
timeout_seconds = %d

[server]
addr = %q
cors_origins = %s

[database]
path = %q

[watch]
dirs = %s
debounce_seconds = %d

[logging]
level = %q
file = %q
console = %v
max_size_mb = %d
max_backups = %d
`,
		c.Catalog.Provider,
		c.Catalog.TMDBAPIKey,
		c.Catalog.TMDBURL,
		c.Catalog.ImageURL,
		c.Catalog.Language,
		c.Catalog.TimeoutSeconds,
		c.Category.Enabled,
		formatStringSlice(c.Category.AnimeKeywords),
		c.Category.AnimeFolder,
		c.Category.MovieFolder,
		c.Category.TVFolder,
		c.Jobs.MaxConcurrent,
		c.Notify.Enabled,
		c.Notify.JellyfinURL,
		c.Notify.JellyfinAPIKey,
		c.Notify.WebhookURL,
		c.Notify.WebhookSecret,
		c.Notify.TimeoutSeconds,
		c.Server.Addr,
		formatStringSlice(c.Server.CORSOrigins),
		c.Database.Path,
		formatStringSlice(c.Watch.Dirs),
		c.Watch.DebounceSeconds,
		c.Logging.Level,
		c.Logging.File,
		c.Logging.Console,
		c.Logging.MaxSizeMB,
		c.Logging.MaxBackups,
	)

	if c.Permissions.WantsOwnership() || c.Permissions.WantsMode() {
		b.WriteString("\n[permissions]\n")
		if c.Permissions.User != "" {
			fmt.Fprintf(&b, "user = %q\n", c.Permissions.User)
		}
		if c.Permissions.Group != "" {
			fmt.Fprintf(&b, "group = %q\n", c.Permissions.Group)
		}
		if c.Permissions.FileMode != "" {
			fmt.Fprintf(&b, "file_mode = %q\n", c.Permissions.FileMode)
		}
		if c.Permissions.DirMode != "" {
			fmt.Fprintf(&b, "dir_mode = %q\n", c.Permissions.DirMode)
		}
	}

	return b.String()
}

func formatStringSlice(s []string) string {
	if len(s) == 0 {
		return "[]"
	}
	quoted := make([]string, len(s))
	for i, v := range s {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
