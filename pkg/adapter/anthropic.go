package adapter

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/zen-systems/taskgate/pkg/registry"
)

// AnthropicAdapter implements the Adapter interface for Claude models.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(apiKey string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient()
	return &AnthropicAdapter{client: client}, nil
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return registry.ProviderAnthropic
}

// Models returns the supported Claude models.
func (a *AnthropicAdapter) Models() []registry.Model {
	return []registry.Model{
		{ID: "claude-sonnet-4-20250514", Provider: registry.ProviderAnthropic, ContextWindow: 200000,
			Cost: registry.TokenCost{Prompt: 0.000003, Completion: 0.000015}},
		{ID: "claude-opus-4-20250514", Provider: registry.ProviderAnthropic, ContextWindow: 200000,
			Cost: registry.TokenCost{Prompt: 0.000015, Completion: 0.000075}},
	}
}

// Generate sends a prompt to Claude and returns the response text.
func (a *AnthropicAdapter) Generate(ctx context.Context, model string, prompt string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return content, nil
}
