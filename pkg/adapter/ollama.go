package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/zen-systems/taskgate/pkg/registry"
)

// defaultLocalContextWindow is assumed for local models that do not report
// their window.
const defaultLocalContextWindow = 8192

// OllamaAdapter implements the Adapter interface for a local Ollama
// server. Local models always cost zero.
type OllamaAdapter struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	catalog []registry.Model
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaAdapter creates a new Ollama adapter against baseURL.
func NewOllamaAdapter(baseURL string) (*OllamaAdapter, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama URL is required")
	}

	return &OllamaAdapter{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Name returns the adapter identifier.
func (a *OllamaAdapter) Name() string {
	return registry.ProviderLocal
}

// Models returns the last refreshed local catalog. Call Refresh first to
// probe the server; an unreachable server yields an empty catalog.
func (a *OllamaAdapter) Models() []registry.Model {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]registry.Model, len(a.catalog))
	copy(out, a.catalog)
	return out
}

// Refresh probes the server's tag list and caches it as the catalog.
func (a *OllamaAdapter) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama tags request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: registry.ProviderLocal, Status: resp.StatusCode, Err: fmt.Errorf("tag listing returned status %d", resp.StatusCode)}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to parse tags response: %w", err)
	}

	catalog := make([]registry.Model, 0, len(tags.Models))
	for _, m := range tags.Models {
		catalog = append(catalog, registry.Model{
			ID:            m.Name,
			Provider:      registry.ProviderLocal,
			ContextWindow: defaultLocalContextWindow,
		})
	}

	a.mu.Lock()
	a.catalog = catalog
	a.mu.Unlock()
	return nil
}

// Generate sends a prompt to the local server and returns the response
// text.
func (a *OllamaAdapter) Generate(ctx context.Context, model string, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &ProviderError{Provider: registry.ProviderLocal, Model: model, Status: resp.StatusCode, Err: fmt.Errorf("generate returned status %d: %s", resp.StatusCode, string(raw))}
	}

	var generated ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return generated.Response, nil
}
