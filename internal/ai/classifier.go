// Package ai wraps text-completion providers as a filename classifier that is
// consulted when the local parser is unsure. Every failure mode (timeout,
// malformed output, missing credentials, open circuit) yields a nil result so
// callers keep the local parse.
package ai

import (
	"context"
	"errors"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/llm"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultHardCap bounds every provider call regardless of the budget a
	// caller passes in.
	DefaultHardCap   = 10 * time.Second
	defaultCacheSize = 1024
)

// Classifier tries its providers in order and returns the first validated
// result.
type Classifier struct {
	providers []llm.Provider
	hardCap   time.Duration
	breaker   *CircuitBreaker
	metrics   *Metrics
	cache     *lru.Cache[string, naming.ParsedInfo]
	logger    *logging.Logger
}

type Option func(*Classifier)

func WithHardCap(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.hardCap = d
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(c *Classifier) { c.breaker = cb }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithCacheSize sets how many validated results are remembered. Zero
// disables the cache.
func WithCacheSize(n int) Option {
	return func(c *Classifier) {
		if n <= 0 {
			c.cache = nil
			return
		}
		c.cache, _ = lru.New[string, naming.ParsedInfo](n)
	}
}

func NewClassifier(providers []llm.Provider, opts ...Option) *Classifier {
	c := &Classifier{
		providers: providers,
		hardCap:   DefaultHardCap,
		metrics:   &Metrics{},
	}
	c.cache, _ = lru.New[string, naming.ParsedInfo](defaultCacheSize)
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewCircuitBreakerFromConfig(config.CircuitBreakerConfig{})
	}
	return c
}

// FromConfig builds a classifier from the [ai] section. A disabled section
// yields a classifier with no providers, which always returns nil.
func FromConfig(cfg config.AIConfig, metrics *Metrics, logger *logging.Logger) (*Classifier, error) {
	var providers []llm.Provider
	if cfg.Enabled {
		reg, err := llm.FromConfig(cfg.Providers, logger)
		if err != nil {
			return nil, err
		}
		providers = reg.All()
		if len(providers) == 0 {
			logger.Warn("ai", "AI enabled but no provider is configured")
		}
		for _, info := range reg.AllInfo() {
			logger.Debug("ai", "Provider registered",
				logging.F("id", info.ID),
				logging.F("type", info.Type),
				logging.F("model", info.CurrentModel),
				logging.F("local", info.LocalOnly))
		}
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return NewClassifier(providers,
		WithHardCap(time.Duration(cfg.HardTimeoutSeconds)*time.Second),
		WithCircuitBreaker(NewCircuitBreakerFromConfig(cfg.CircuitBreaker)),
		WithMetrics(metrics),
		WithLogger(logger),
	), nil
}

// Available reports whether any provider is configured.
func (c *Classifier) Available() bool {
	return c != nil && len(c.providers) > 0
}

func (c *Classifier) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

func (c *Classifier) Breaker() *CircuitBreaker {
	if c == nil {
		return nil
	}
	return c.breaker
}

// Classify asks the providers about filename. budget bounds the whole call;
// each provider attempt is further capped at the hard cap. It returns nil
// when nothing usable came back.
func (c *Classifier) Classify(ctx context.Context, filename string, budget time.Duration) *naming.ParsedInfo {
	if !c.Available() {
		return nil
	}

	key := NormalizeForCache(filename)
	if c.cache != nil {
		if info, ok := c.cache.Get(key); ok {
			c.metrics.RecordParse(SourceCache, 0)
			return &info
		}
	}

	if !c.breaker.Allow() {
		c.metrics.RecordCircuitReject()
		c.logger.Debug("ai", "Circuit open, skipping classifier",
			logging.F("file", filename),
			logging.F("cooldown", c.breaker.CooldownRemaining()))
		return nil
	}

	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	opts := llm.CompletionOptions{
		System:      systemPrompt(),
		Temperature: 0.1,
		MaxTokens:   256,
		JSON:        true,
	}

	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		info, err := c.attempt(ctx, p, filename, opts)
		if err != nil {
			c.logger.Warn("ai", "Provider attempt failed",
				logging.F("provider", p.ID()),
				logging.F("file", filename),
				logging.F("error", err.Error()))
			continue
		}
		c.breaker.RecordSuccess()
		c.metrics.RecordParse(SourceAI, time.Since(start))
		if c.cache != nil {
			c.cache.Add(key, *info)
		}
		c.logger.Debug("ai", "Classified filename",
			logging.F("provider", p.ID()),
			logging.F("file", filename),
			logging.F("title", info.Title),
			logging.F("confidence", info.Confidence))
		return info
	}

	c.metrics.RecordAIFallback()
	return nil
}

var errMalformed = errors.New("malformed classifier response")

func (c *Classifier) attempt(ctx context.Context, p llm.Provider, filename string, opts llm.CompletionOptions) (*naming.ParsedInfo, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.hardCap)
	defer cancel()

	completion, err := p.Complete(callCtx, userPrompt(filename), opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			c.metrics.RecordAITimeout()
		} else {
			c.metrics.RecordAIError()
		}
		c.breaker.RecordFailure(err.Error())
		return nil, err
	}

	result, ok := Salvage(completion.Text)
	if !ok {
		c.metrics.RecordAIMalformed()
		c.breaker.RecordFailure(errMalformed.Error())
		return nil, errMalformed
	}
	info, ok := result.toParsed()
	if !ok {
		// The provider answered; it just did not know. Not a health failure.
		c.metrics.RecordAIMalformed()
		return nil, errMalformed
	}
	return info, nil
}
