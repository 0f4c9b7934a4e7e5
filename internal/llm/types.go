package llm

// ProviderType represents different LLM provider implementations
type ProviderType string

const (
	ProviderTypeOllama ProviderType = "ollama"
	ProviderTypeOpenAI ProviderType = "openai"
)

// ParseProviderType maps a configured kind to a ProviderType. LM Studio,
// vLLM and llama.cpp servers all speak the OpenAI chat API.
func ParseProviderType(kind string) (ProviderType, bool) {
	switch kind {
	case "ollama":
		return ProviderTypeOllama, true
	case "openai", "openai-compatible", "lmstudio", "vllm":
		return ProviderTypeOpenAI, true
	default:
		return "", false
	}
}

// CompletionOptions represents options for an LLM completion request
type CompletionOptions struct {
	// System is sent as the system prompt when the provider supports one.
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	// JSON asks the provider to constrain output to a JSON object.
	JSON bool `json:"json,omitempty"`
}

// Completion represents an LLM response
type Completion struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	UsedTokens   int    `json:"usedTokens"`
	FinishReason string `json:"finishReason,omitempty"`
}

// ProviderInfo represents summary info about an LLM provider
type ProviderInfo struct {
	ID           string       `json:"id"`
	Type         ProviderType `json:"type"`
	Endpoint     string       `json:"endpoint"`
	CurrentModel string       `json:"currentModel"`
	LocalOnly    bool         `json:"localOnly"`
}
