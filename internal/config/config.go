package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/paths"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Library     LibraryConfig     `mapstructure:"library"`
	Rename      RenameConfig      `mapstructure:"rename"`
	Scrape      ScrapeConfig      `mapstructure:"scrape"`
	AI          AIConfig          `mapstructure:"ai"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Category    CategoryConfig    `mapstructure:"category"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Logging     logging.Config    `mapstructure:"logging"`
}

// LibraryConfig restricts where files may be read from or written to.
type LibraryConfig struct {
	// AllowedRoots is the allow-list every filesystem action is checked against.
	// When empty, the target directory of each batch is the only allowed root.
	AllowedRoots []string `mapstructure:"allowed_roots"`
	// OutputRoot receives organized files. Empty means organize in place.
	OutputRoot string `mapstructure:"output_root"`
}

// RenameConfig drives preview and execute.
type RenameConfig struct {
	Standard            string  `mapstructure:"standard"`  // emby, plex, kodi
	Operation           string  `mapstructure:"operation"` // move, copy, hardlink, softlink
	Algorithm           string  `mapstructure:"algorithm"` // standard, ai_enhanced, ai_only
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	BatchSize           int     `mapstructure:"batch_size"`
	ParseConcurrency    int     `mapstructure:"parse_concurrency"`
	CreateMovieFolder   bool    `mapstructure:"create_movie_folder"`
	SpecialsFolder      string  `mapstructure:"specials_folder"`
	ParseCacheSize      int     `mapstructure:"parse_cache_size"`
}

// ScrapeConfig controls sidecar generation in scrape jobs.
type ScrapeConfig struct {
	WriteNFO       bool `mapstructure:"write_nfo"`
	DownloadImages bool `mapstructure:"download_images"`
}

type CircuitBreakerConfig struct {
	FailureThreshold     int `mapstructure:"failure_threshold"`
	FailureWindowSeconds int `mapstructure:"failure_window_seconds"`
	CooldownSeconds      int `mapstructure:"cooldown_seconds"`
}

// ProviderConfig describes one text-completion backend. Providers are tried in
// the order they are listed.
type ProviderConfig struct {
	Name           string `mapstructure:"name"`
	Kind           string `mapstructure:"kind"` // ollama, openai
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AIConfig contains the filename classifier settings
type AIConfig struct {
	Enabled            bool                 `mapstructure:"enabled"`
	TriggerThreshold   float64              `mapstructure:"trigger_threshold"`
	HardTimeoutSeconds int                  `mapstructure:"hard_timeout_seconds"`
	Providers          []ProviderConfig     `mapstructure:"providers"`
	CircuitBreaker     CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CatalogConfig configures the metadata lookup service.
type CatalogConfig struct {
	Provider       string `mapstructure:"provider"` // tmdb, none
	TMDBAPIKey     string `mapstructure:"tmdb_api_key"`
	TMDBURL        string `mapstructure:"tmdb_url"`
	ImageURL       string `mapstructure:"image_url"`
	Language       string `mapstructure:"language"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CategoryConfig selects a secondary subfolder per media type.
type CategoryConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	AnimeKeywords []string `mapstructure:"anime_keywords"`
	AnimeFolder   string   `mapstructure:"anime_folder"`
	MovieFolder   string   `mapstructure:"movie_folder"`
	TVFolder      string   `mapstructure:"tv_folder"`
}

type JobsConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type NotifyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JellyfinURL    string `mapstructure:"jellyfin_url"`
	JellyfinAPIKey string `mapstructure:"jellyfin_api_key"`
	WebhookURL     string `mapstructure:"webhook_url"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WatchConfig lists directories that trigger scrape jobs when media lands.
type WatchConfig struct {
	Dirs            []string `mapstructure:"dirs"`
	DebounceSeconds int      `mapstructure:"debounce_seconds"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			AllowedRoots: []string{},
		},
		Rename: RenameConfig{
			Standard:            "emby",
			Operation:           "move",
			Algorithm:           "standard",
			ConfidenceThreshold: 0.7,
			BatchSize:           20,
			ParseConcurrency:    4,
			CreateMovieFolder:   true,
			SpecialsFolder:      "Specials",
			ParseCacheSize:      4096,
		},
		Scrape: ScrapeConfig{
			WriteNFO:       true,
			DownloadImages: true,
		},
		AI: DefaultAIConfig(),
		Catalog: CatalogConfig{
			Provider:       "tmdb",
			TMDBURL:        "https://api.themoviedb.org/3",
			ImageURL:       "https://image.tmdb.org/t/p/original",
			Language:       "en-US",
			TimeoutSeconds: 10,
		},
		Category: CategoryConfig{
			Enabled:       false,
			AnimeKeywords: []string{"anime", "动画", "アニメ"},
			AnimeFolder:   "Anime",
			MovieFolder:   "Movies",
			TVFolder:      "TV Shows",
		},
		Jobs: JobsConfig{
			MaxConcurrent: 2,
		},
		Notify: NotifyConfig{
			TimeoutSeconds: 10,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			CORSOrigins: []string{},
		},
		Watch: WatchConfig{
			Dirs:            []string{},
			DebounceSeconds: 10,
		},
		Logging: logging.DefaultConfig(),
	}
}

// DefaultAIConfig returns default AI configuration
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Enabled:            false,
		TriggerThreshold:   0.6,
		HardTimeoutSeconds: 10,
		Providers: []ProviderConfig{
			{
				Name:           "ollama",
				Kind:           "ollama",
				Endpoint:       "http://localhost:11434",
				Model:          "qwen2.5:7b",
				TimeoutSeconds: 30,
			},
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:     5,
			FailureWindowSeconds: 120,
			CooldownSeconds:      30,
		},
	}
}

// Load loads configuration from the default path, or returns defaults when
// the file does not exist.
func Load() (*Config, error) {
	configPath, err := paths.ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("unable to get config path: %w", err)
	}
	return LoadFrom(configPath)
}

// LoadFrom loads configuration from path. Secrets may also come from
// JELLYSORT_* environment variables, or from a .env file next to the config.
// Variables already set in the environment win over the .env file.
func LoadFrom(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("unable to read %s: %w", envPath, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	for key, env := range map[string]string{
		"catalog.tmdb_api_key":    "JELLYSORT_TMDB_API_KEY",
		"notify.jellyfin_api_key": "JELLYSORT_JELLYFIN_API_KEY",
		"notify.webhook_secret":   "JELLYSORT_WEBHOOK_SECRET",
		"database.path":           "JELLYSORT_DATABASE",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	configFile, err := paths.ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configFile)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("unable to create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0600)
}

// ConfigExists reports whether a config file is present at the default path.
func ConfigExists() bool {
	path, err := paths.ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// DatabasePath returns the configured database path or the default location.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	dbPath, err := paths.DatabasePath()
	if err != nil {
		return "./media.db"
	}
	return dbPath
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Rename.Standard) {
	case "emby", "jellyfin", "plex", "kodi":
	default:
		errs = append(errs, fmt.Errorf("rename.standard: unknown value %q", c.Rename.Standard))
	}
	switch strings.ToLower(c.Rename.Operation) {
	case "move", "copy", "hardlink", "softlink":
	default:
		errs = append(errs, fmt.Errorf("rename.operation: unknown value %q", c.Rename.Operation))
	}
	switch strings.ToLower(c.Rename.Algorithm) {
	case "standard", "ai_enhanced", "ai_only":
	default:
		errs = append(errs, fmt.Errorf("rename.algorithm: unknown value %q", c.Rename.Algorithm))
	}
	if c.Rename.ConfidenceThreshold < 0 || c.Rename.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("rename.confidence_threshold must be within [0,1]"))
	}
	if c.Rename.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("rename.batch_size must be positive"))
	}
	if c.Rename.ParseConcurrency < 1 {
		errs = append(errs, fmt.Errorf("rename.parse_concurrency must be positive"))
	}
	if c.Jobs.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("jobs.max_concurrent must be positive"))
	}
	if c.AI.HardTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("ai.hard_timeout_seconds must be positive"))
	}
	for i, p := range c.AI.Providers {
		switch strings.ToLower(p.Kind) {
		case "ollama", "openai":
		default:
			errs = append(errs, fmt.Errorf("ai.providers[%d]: unknown kind %q", i, p.Kind))
		}
	}
	for _, root := range c.Library.AllowedRoots {
		if !filepath.IsAbs(root) {
			errs = append(errs, fmt.Errorf("library.allowed_roots: %q is not absolute", root))
		}
	}
	return errors.Join(errs...)
}

// EffectiveAllowedRoots returns library.allowed_roots, or when that is empty
// the output root and watch directories. An empty result leaves each run
// confined to its own target and output root.
func (c *Config) EffectiveAllowedRoots() []string {
	if len(c.Library.AllowedRoots) > 0 {
		return append([]string(nil), c.Library.AllowedRoots...)
	}
	var roots []string
	if c.Library.OutputRoot != "" {
		roots = append(roots, c.Library.OutputRoot)
	}
	return append(roots, c.Watch.Dirs...)
}

// ValidateServe checks what the HTTP server needs on top of Validate. Remote
// callers pick target and output paths, so an allow-list is mandatory.
func (c *Config) ValidateServe() error {
	roots := c.EffectiveAllowedRoots()
	if len(roots) == 0 {
		return errors.New("serve requires library.allowed_roots (or library.output_root / watch.dirs)")
	}
	var errs []error
	for _, root := range roots {
		if !filepath.IsAbs(root) {
			errs = append(errs, fmt.Errorf("allowed root %q is not absolute", root))
		}
	}
	return errors.Join(errs...)
}
