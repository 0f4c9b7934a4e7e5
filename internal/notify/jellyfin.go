package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// JellyfinNotifier asks Jellyfin or Emby to pick up newly organized media.
type JellyfinNotifier struct {
	baseURL string
	apiKey  string
	enabled bool
	client  *http.Client
}

func NewJellyfinNotifier(baseURL, apiKey string, enabled bool) *JellyfinNotifier {
	return &JellyfinNotifier{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		enabled: enabled && strings.TrimSpace(baseURL) != "" && strings.TrimSpace(apiKey) != "",
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (n *JellyfinNotifier) Name() string {
	return "jellyfin"
}

func (n *JellyfinNotifier) Enabled() bool {
	return n.enabled
}

// Notify reports changed paths through /Library/Media/Updated and falls back
// to a full library refresh. Failed jobs are ignored.
func (n *JellyfinNotifier) Notify(ctx context.Context, event Event) *NotifyResult {
	start := time.Now()
	result := &NotifyResult{Service: n.Name(), Success: true}

	refresh := event.Type == EventLibraryRefresh ||
		(event.Type == EventJobCompleted && event.Counts.Success > 0)
	if !n.enabled || !refresh {
		result.Duration = time.Since(start)
		return result
	}

	var err error
	if len(event.Paths) > 0 {
		err = n.mediaUpdated(ctx, event.Paths)
	}
	if len(event.Paths) == 0 || err != nil {
		err = n.refreshLibrary(ctx)
	}

	result.Success = err == nil
	result.Error = err
	result.Duration = time.Since(start)
	return result
}

type mediaUpdate struct {
	Path       string `json:"Path"`
	UpdateType string `json:"UpdateType"`
}

func (n *JellyfinNotifier) mediaUpdated(ctx context.Context, paths []string) error {
	updates := make([]mediaUpdate, 0, len(paths))
	for _, p := range paths {
		updates = append(updates, mediaUpdate{Path: p, UpdateType: "Created"})
	}
	body, err := json.Marshal(map[string]interface{}{"Updates": updates})
	if err != nil {
		return err
	}
	return n.do(ctx, http.MethodPost, "/Library/Media/Updated", body)
}

func (n *JellyfinNotifier) refreshLibrary(ctx context.Context) error {
	return n.do(ctx, http.MethodPost, "/Library/Refresh", nil)
}

func (n *JellyfinNotifier) do(ctx context.Context, method, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.authHeader())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("jellyfin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("jellyfin returned status %d for %s %s", resp.StatusCode, method, path)
	}
	return nil
}

func (n *JellyfinNotifier) authHeader() string {
	return fmt.Sprintf(`MediaBrowser Token="%s", Client="jellysort", Device="jellysort", DeviceId="jellysort", Version="1.0.0"`, n.apiKey)
}
