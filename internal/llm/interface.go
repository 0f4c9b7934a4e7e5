package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned for a provider that lacks an endpoint or key.
var ErrNotConfigured = errors.New("provider not configured")

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Provider defines the interface for LLM provider integrations.
// Implementations wrap a specific backend (Ollama, OpenAI-compatible servers)
// behind a single completion call.
type Provider interface {
	ID() string
	Type() ProviderType
	Info() ProviderInfo

	Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error)
}

// Registry keeps providers in registration order, which is the order the
// classifier tries them in.
type Registry struct {
	order     []string
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Registering an existing id replaces it in place.
func (r *Registry) Register(provider Provider) {
	id := provider.ID()
	if _, ok := r.providers[id]; !ok {
		r.order = append(r.order, id)
	}
	r.providers[id] = provider
}

// Get returns a provider by ID
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// All returns the providers in registration order.
func (r *Registry) All() []Provider {
	result := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.providers[id])
	}
	return result
}

// AllInfo returns info for all registered providers
func (r *Registry) AllInfo() []ProviderInfo {
	result := make([]ProviderInfo, 0, len(r.order))
	for _, p := range r.All() {
		result = append(result, p.Info())
	}
	return result
}

// Len returns the number of registered providers.
func (r *Registry) Len() int { return len(r.order) }
