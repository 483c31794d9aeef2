package adapter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/zen-systems/taskgate/pkg/registry"
)

// OpenAIAdapter implements the Adapter interface for OpenAI models.
type OpenAIAdapter struct {
	client openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := openai.NewClient()
	return &OpenAIAdapter{client: client}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return registry.ProviderOpenAI
}

// Models returns the supported OpenAI models.
func (a *OpenAIAdapter) Models() []registry.Model {
	return []registry.Model{
		{ID: "gpt-5.2-instant", Provider: registry.ProviderOpenAI, ContextWindow: 128000,
			Cost: registry.TokenCost{Prompt: 0.0000015, Completion: 0.000006}},
		{ID: "gpt-5.2-thinking", Provider: registry.ProviderOpenAI, ContextWindow: 200000,
			Cost: registry.TokenCost{Prompt: 0.000003, Completion: 0.000012}},
		{ID: "gpt-5.2-codex", Provider: registry.ProviderOpenAI, ContextWindow: 200000,
			Cost: registry.TokenCost{Prompt: 0.000005, Completion: 0.000015}},
	}
}

// Generate sends a prompt to OpenAI and returns the response text.
func (a *OpenAIAdapter) Generate(ctx context.Context, model string, prompt string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(4096),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
