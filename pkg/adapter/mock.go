package adapter

import (
	"context"
	"fmt"

	"github.com/zen-systems/taskgate/pkg/registry"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	Catalog         []registry.Model
	Err             error
	Calls           []string // prompts received, in order
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
		Catalog: []registry.Model{
			{ID: "mock-1", Provider: registry.ProviderLocal, ContextWindow: 8192},
		},
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined
// responses keyed by prompt.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	m := NewMockAdapter()
	m.responses = responses
	if defaultResponse != "" {
		m.defaultResponse = defaultResponse
	}
	return m
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the mock catalog.
func (a *MockAdapter) Models() []registry.Model {
	return a.Catalog
}

// Generate returns a deterministic response for the prompt.
func (a *MockAdapter) Generate(_ context.Context, model string, prompt string) (string, error) {
	a.Calls = append(a.Calls, prompt)
	if a.Err != nil {
		return "", a.Err
	}
	if response, ok := a.responses[prompt]; ok {
		return response, nil
	}
	return fmt.Sprintf("%s\n%s", a.defaultResponse, prompt), nil
}
