package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/zen-systems/taskgate/pkg/registry"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterAdapter implements the Adapter interface for OpenRouter's
// catalog, including its free-tier models. OpenRouter uses an
// OpenAI-compatible API format.
type OpenRouterAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// openRouterRequest represents the OpenAI-compatible request format.
type openRouterRequest struct {
	Model     string              `json:"model"`
	Messages  []openRouterMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// openRouterMessage represents a chat message.
type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openRouterResponse represents the OpenAI-compatible response format.
type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenRouterAdapter creates a new OpenRouter adapter.
func NewOpenRouterAdapter(apiKey string) (*OpenRouterAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}

	return &OpenRouterAdapter{
		apiKey:     apiKey,
		baseURL:    openRouterBaseURL,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the adapter identifier.
func (a *OpenRouterAdapter) Name() string {
	return registry.ProviderOpenRouter
}

// Models returns the supported OpenRouter models. The :free variants cost
// nothing and are the preferred synthesis targets.
func (a *OpenRouterAdapter) Models() []registry.Model {
	return []registry.Model{
		{ID: "deepseek/deepseek-chat:free", Provider: registry.ProviderOpenRouter, ContextWindow: 64000},
		{ID: "meta-llama/llama-3.3-70b:free", Provider: registry.ProviderOpenRouter, ContextWindow: 128000},
		{ID: "deepseek/deepseek-coder", Provider: registry.ProviderOpenRouter, ContextWindow: 64000,
			Cost: registry.TokenCost{Prompt: 0.00000014, Completion: 0.00000028}},
	}
}

// Generate sends a prompt to OpenRouter and returns the response text.
func (a *OpenRouterAdapter) Generate(ctx context.Context, model string, prompt string) (string, error) {
	reqBody := openRouterRequest{
		Model: model,
		Messages: []openRouterMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: 4096,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed openRouterResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Error != nil {
		return "", &ProviderError{Provider: registry.ProviderOpenRouter, Model: model, Status: parsed.Error.Code, Err: fmt.Errorf("API error: %s", parsed.Error.Message)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: registry.ProviderOpenRouter, Model: model, Status: resp.StatusCode, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
