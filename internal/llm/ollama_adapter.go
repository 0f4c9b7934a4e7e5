package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaAdapter talks to a local Ollama server through /api/generate.
type OllamaAdapter struct {
	id       string
	endpoint string
	model    string
	client   *http.Client
}

func NewOllamaAdapter(id, endpoint, model string, timeout time.Duration) (*OllamaAdapter, error) {
	if strings.TrimSpace(endpoint) == "" || strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("ollama %s: %w", id, ErrNotConfigured)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaAdapter{
		id:       id,
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (o *OllamaAdapter) ID() string         { return o.id }
func (o *OllamaAdapter) Type() ProviderType { return ProviderTypeOllama }

func (o *OllamaAdapter) Info() ProviderInfo {
	return ProviderInfo{
		ID:           o.id,
		Type:         o.Type(),
		Endpoint:     o.endpoint,
		CurrentModel: o.model,
		LocalOnly:    true,
	}
}

func (o *OllamaAdapter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	reqBody := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	}
	if opts.System != "" {
		reqBody["system"] = opts.System
	}
	if opts.JSON {
		reqBody["format"] = "json"
	}

	options := map[string]interface{}{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		reqBody["options"] = options
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to complete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(o.id, resp)
	}

	var result struct {
		Response   string `json:"response"`
		Model      string `json:"model"`
		Done       bool   `json:"done"`
		DoneReason string `json:"done_reason"`
		EvalCount  int    `json:"eval_count"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &Completion{
		Text:         result.Response,
		Model:        result.Model,
		UsedTokens:   result.EvalCount,
		FinishReason: result.DoneReason,
	}, nil
}

func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Provider: provider,
		Code:     resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}
