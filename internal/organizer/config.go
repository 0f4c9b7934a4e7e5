package organizer

import (
	"fmt"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

// Config holds the engine settings resolved from the application config.
type Config struct {
	// Threshold is the overall confidence below which an item is parked in
	// needs_confirmation.
	Threshold float64
	// AITrigger is the local parse confidence below which ai_enhanced asks
	// the classifier.
	AITrigger float64
	// AIBudget bounds one Classify call across all providers.
	AIBudget time.Duration

	BatchSize        int
	ParseConcurrency int

	Algorithm Algorithm
	Action    transfer.Action
	Layout    naming.LayoutConfig

	// AllowedRoots is the path allow-list. Empty means the target and output
	// directory of each batch.
	AllowedRoots []string
	// OutputRoot receives organized files. Empty organizes in place.
	OutputRoot string

	Transfer transfer.Options
}

func DefaultConfig() Config {
	return Config{
		Threshold:        0.7,
		AITrigger:        0.6,
		AIBudget:         20 * time.Second,
		BatchSize:        20,
		ParseConcurrency: 4,
		Algorithm:        AlgorithmStandard,
		Action:           transfer.ActionMove,
		Layout:           naming.DefaultLayoutConfig(),
		Transfer:         transfer.DefaultOptions(),
	}
}

// ConfigFrom resolves the engine settings from cfg.
func ConfigFrom(cfg *config.Config) (Config, error) {
	c := DefaultConfig()
	if cfg == nil {
		return c, nil
	}

	std, err := naming.ParseStandard(cfg.Rename.Standard)
	if err != nil {
		return c, err
	}
	action, err := transfer.ParseAction(cfg.Rename.Operation)
	if err != nil {
		return c, err
	}
	algo, err := ParseAlgorithm(cfg.Rename.Algorithm)
	if err != nil {
		return c, err
	}

	c.Algorithm = algo
	c.Action = action
	c.Layout = naming.LayoutConfig{
		Standard:          std,
		CreateMovieFolder: cfg.Rename.CreateMovieFolder,
		SpecialsFolder:    cfg.Rename.SpecialsFolder,
	}
	if cfg.Rename.ConfidenceThreshold > 0 {
		c.Threshold = cfg.Rename.ConfidenceThreshold
	}
	if cfg.AI.TriggerThreshold > 0 {
		c.AITrigger = cfg.AI.TriggerThreshold
	}
	if cfg.AI.HardTimeoutSeconds > 0 {
		providers := len(cfg.AI.Providers)
		if providers == 0 {
			providers = 1
		}
		c.AIBudget = time.Duration(cfg.AI.HardTimeoutSeconds*providers) * time.Second
	}
	if cfg.Rename.BatchSize > 0 {
		c.BatchSize = cfg.Rename.BatchSize
	}
	if cfg.Rename.ParseConcurrency > 0 {
		c.ParseConcurrency = cfg.Rename.ParseConcurrency
	}
	if c.Threshold > 1 {
		return c, fmt.Errorf("confidence threshold %.2f is above 1", c.Threshold)
	}
	c.AllowedRoots = cfg.EffectiveAllowedRoots()
	c.OutputRoot = cfg.Library.OutputRoot
	c.Transfer = transfer.OptionsFromConfig(cfg)
	return c, nil
}
