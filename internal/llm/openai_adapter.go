package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIAdapter talks to any server implementing /v1/chat/completions.
type OpenAIAdapter struct {
	id       string
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewOpenAIAdapter requires an endpoint, a model and an API key. Local servers
// that ignore authentication still need a placeholder key so that an
// unconfigured cloud entry is never called by accident.
func NewOpenAIAdapter(id, endpoint, model, apiKey string, timeout time.Duration) (*OpenAIAdapter, error) {
	if strings.TrimSpace(endpoint) == "" || strings.TrimSpace(model) == "" || strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai %s: %w", id, ErrNotConfigured)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	endpoint = strings.TrimRight(endpoint, "/")
	endpoint = strings.TrimSuffix(endpoint, "/v1")
	return &OpenAIAdapter{
		id:       id,
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (o *OpenAIAdapter) ID() string         { return o.id }
func (o *OpenAIAdapter) Type() ProviderType { return ProviderTypeOpenAI }

func (o *OpenAIAdapter) Info() ProviderInfo {
	return ProviderInfo{
		ID:           o.id,
		Type:         o.Type(),
		Endpoint:     o.endpoint,
		CurrentModel: o.model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAIAdapter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	chat := chatRequest{
		Model:       o.model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.System != "" {
		chat.Messages = append(chat.Messages, chatMessage{Role: "system", Content: opts.System})
	}
	chat.Messages = append(chat.Messages, chatMessage{Role: "user", Content: prompt})
	if opts.JSON {
		chat.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to complete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(o.id, resp)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%s: response has no choices", o.id)
	}

	return &Completion{
		Text:         result.Choices[0].Message.Content,
		Model:        result.Model,
		UsedTokens:   result.Usage.TotalTokens,
		FinishReason: result.Choices[0].FinishReason,
	}, nil
}
