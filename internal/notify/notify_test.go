package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Nomadcxx/jellysort/internal/config"
)

type mockNotifier struct {
	name      string
	enabled   bool
	notifyErr error

	mu     sync.Mutex
	events []Event
}

func (m *mockNotifier) Name() string  { return m.name }
func (m *mockNotifier) Enabled() bool { return m.enabled }
func (m *mockNotifier) Notify(ctx context.Context, event Event) *NotifyResult {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return &NotifyResult{Service: m.name, Success: m.notifyErr == nil, Error: m.notifyErr}
}

func (m *mockNotifier) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestManagerRegister(t *testing.T) {
	mgr := NewManager(false, 0, nil)

	mgr.Register(&mockNotifier{name: "enabled", enabled: true})
	mgr.Register(&mockNotifier{name: "disabled", enabled: false})

	if mgr.NotifierCount() != 1 {
		t.Errorf("expected 1 notifier, got %d", mgr.NotifierCount())
	}
}

func TestManagerNotifySync(t *testing.T) {
	mgr := NewManager(false, 0, nil)
	ok := &mockNotifier{name: "ok", enabled: true}
	broken := &mockNotifier{name: "broken", enabled: true, notifyErr: errors.New("down")}
	mgr.Register(ok)
	mgr.Register(broken)

	results := mgr.Notify(Event{Type: EventLibraryRefresh, Paths: []string{"/lib/a.mkv"}})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success {
		t.Errorf("unexpected results: %+v %+v", results[0], results[1])
	}
	if ok.events[0].Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
}

func TestManagerNotifyAsync(t *testing.T) {
	mgr := NewManager(true, 0, nil)
	n := &mockNotifier{name: "async", enabled: true}
	mgr.Register(n)

	mgr.JobCompleted("batch", "b1", "/dl", Counts{Total: 2, Success: 2}, []string{"/lib/x.mkv"})
	mgr.JobFailed("scrape", "j1", "/dl", errors.New("boom"))
	mgr.Wait()

	if n.calls() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n.calls())
	}
	var failed *Event
	for i := range n.events {
		if n.events[i].Type == EventJobFailed {
			failed = &n.events[i]
		}
	}
	if failed == nil || failed.Error != "boom" || failed.Kind != "scrape" {
		t.Errorf("job failed event not delivered correctly: %+v", failed)
	}
}

func TestManagerNil(t *testing.T) {
	var mgr *Manager
	mgr.LibraryRefresh([]string{"/x"})
	mgr.Wait()
}

func TestFromConfig(t *testing.T) {
	mgr := FromConfig(config.NotifyConfig{Enabled: false, WebhookURL: "http://example.com"}, nil)
	if mgr.NotifierCount() != 0 {
		t.Errorf("disabled config should register nothing, got %d", mgr.NotifierCount())
	}

	mgr = FromConfig(config.NotifyConfig{
		Enabled:     true,
		JellyfinURL: "http://jf.local",
		WebhookURL:  "http://example.com/hook",
	}, nil)
	// Jellyfin without an API key stays disabled.
	if mgr.NotifierCount() != 1 {
		t.Errorf("expected only the webhook notifier, got %d", mgr.NotifierCount())
	}
}
