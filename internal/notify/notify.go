// Package notify delivers fire-and-forget signals about finished batches and
// scrape jobs to media servers and webhooks. Delivery failures are logged and
// never reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/logging"
)

type EventType string

const (
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventLibraryRefresh EventType = "library_refresh"
)

// Counts mirrors the outcome counters of a batch or job.
type Counts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Event is what every notifier receives.
type Event struct {
	Type       EventType `json:"type"`
	Kind       string    `json:"kind,omitempty"` // batch or scrape
	ID         string    `json:"id,omitempty"`
	TargetPath string    `json:"target_path,omitempty"`
	Counts     Counts    `json:"counts"`
	Paths      []string  `json:"paths,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotifyResult represents the result of a notification attempt
type NotifyResult struct {
	Service  string
	Success  bool
	Error    error
	Duration time.Duration
}

// Notifier is the interface that notification providers must implement
type Notifier interface {
	Name() string
	Enabled() bool
	Notify(ctx context.Context, event Event) *NotifyResult
}

// Manager fans events out to the registered notifiers.
type Manager struct {
	notifiers []Notifier
	mu        sync.RWMutex
	async     bool
	timeout   time.Duration
	logger    *logging.Logger
	wg        sync.WaitGroup
}

// NewManager creates a manager. In async mode Notify returns immediately and
// delivery happens in the background.
func NewManager(async bool, timeout time.Duration, logger *logging.Logger) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{async: async, timeout: timeout, logger: logger}
}

// FromConfig registers the Jellyfin and webhook notifiers described by cfg.
func FromConfig(cfg config.NotifyConfig, logger *logging.Logger) *Manager {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	m := NewManager(true, timeout, logger)
	if !cfg.Enabled {
		return m
	}
	m.Register(NewJellyfinNotifier(cfg.JellyfinURL, cfg.JellyfinAPIKey, true))
	m.Register(NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret))
	return m
}

// Register adds a notifier to the manager. Disabled notifiers are dropped.
func (m *Manager) Register(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.Enabled() {
		m.notifiers = append(m.notifiers, n)
		m.logger.Info("notify", "Registered notifier", logging.F("name", n.Name()))
	}
}

// Notify sends event to every notifier. Results are only returned in sync mode.
func (m *Manager) Notify(event Event) []*NotifyResult {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.RUnlock()

	if len(notifiers) == 0 {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if m.async {
		for _, n := range notifiers {
			m.wg.Add(1)
			go func(n Notifier) {
				defer m.wg.Done()
				m.deliver(n, event)
			}(n)
		}
		return nil
	}

	results := make([]*NotifyResult, 0, len(notifiers))
	for _, n := range notifiers {
		results = append(results, m.deliver(n, event))
	}
	return results
}

func (m *Manager) deliver(n Notifier, event Event) *NotifyResult {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	result := n.Notify(ctx, event)
	if result.Success {
		m.logger.Debug("notify", "Notification sent",
			logging.F("service", n.Name()),
			logging.F("event", string(event.Type)),
			logging.F("duration", result.Duration))
	} else {
		m.logger.Warn("notify", "Notification failed",
			logging.F("service", n.Name()),
			logging.F("event", string(event.Type)),
			logging.F("error", errString(result.Error)))
	}
	return result
}

// JobCompleted signals a finished batch or job, followed by a library refresh
// for the paths that changed.
func (m *Manager) JobCompleted(kind, id, target string, counts Counts, paths []string) {
	m.Notify(Event{Type: EventJobCompleted, Kind: kind, ID: id, TargetPath: target, Counts: counts, Paths: paths})
}

func (m *Manager) JobFailed(kind, id, target string, err error) {
	m.Notify(Event{Type: EventJobFailed, Kind: kind, ID: id, TargetPath: target, Error: errString(err)})
}

func (m *Manager) LibraryRefresh(paths []string) {
	m.Notify(Event{Type: EventLibraryRefresh, Paths: paths})
}

// Wait blocks until background deliveries finish.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.wg.Wait()
}

// NotifierCount returns the number of registered notifiers
func (m *Manager) NotifierCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifiers)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
