package llm

import (
	"errors"
	"fmt"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/logging"
)

// FromConfig builds a registry from the configured providers, preserving their
// order. Entries missing an endpoint, model or key are skipped with a warning;
// an unknown kind is an error.
func FromConfig(providers []config.ProviderConfig, logger *logging.Logger) (*Registry, error) {
	reg := NewRegistry()
	for i, pc := range providers {
		id := pc.Name
		if id == "" {
			id = fmt.Sprintf("%s-%d", pc.Kind, i)
		}
		kind, ok := ParseProviderType(pc.Kind)
		if !ok {
			return nil, fmt.Errorf("provider %s: unknown kind %q", id, pc.Kind)
		}
		timeout := time.Duration(pc.TimeoutSeconds) * time.Second

		var (
			p   Provider
			err error
		)
		switch kind {
		case ProviderTypeOllama:
			p, err = NewOllamaAdapter(id, pc.Endpoint, pc.Model, timeout)
		case ProviderTypeOpenAI:
			p, err = NewOpenAIAdapter(id, pc.Endpoint, pc.Model, pc.APIKey, timeout)
		}
		if errors.Is(err, ErrNotConfigured) {
			logger.Warn("llm", "Skipping unconfigured provider", logging.F("provider", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		reg.Register(p)
	}
	return reg, nil
}
