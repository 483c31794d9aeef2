// Package registry supplies point-in-time snapshots of the models available
// for routing. Snapshots are read-only; callers must not assume consistency
// across two queries.
package registry

import "context"

// Local providers serve models at zero cost from local inference servers.
const (
	ProviderLocal      = "local"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderOpenRouter = "openrouter"
)

// TokenCost holds per-token pricing for a model.
type TokenCost struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// Model is an immutable snapshot of one routable model.
type Model struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	ContextWindow int       `json:"context_window,omitempty"` // 0 = unknown
	Cost          TokenCost `json:"cost_per_token"`
}

// IsLocal reports whether the model runs on a local inference server.
func (m Model) IsLocal() bool {
	return m.Provider == ProviderLocal
}

// IsFree reports whether using the model incurs no per-token cost.
func (m Model) IsFree() bool {
	return m.Cost.Prompt == 0 && m.Cost.Completion == 0
}

// Registry lists the models currently available for routing.
type Registry interface {
	// AvailableModels returns a snapshot of every routable model.
	AvailableModels(ctx context.Context) ([]Model, error)

	// FreeModels returns the subset of models with no per-token cost.
	FreeModels(ctx context.Context) ([]Model, error)
}

// Static is a fixed-catalog Registry, used for tests and config-declared
// model sets.
type Static struct {
	Models []Model
}

// NewStatic creates a registry over a fixed model list.
func NewStatic(models []Model) *Static {
	return &Static{Models: models}
}

// AvailableModels returns a copy of the catalog.
func (s *Static) AvailableModels(ctx context.Context) ([]Model, error) {
	out := make([]Model, len(s.Models))
	copy(out, s.Models)
	return out, nil
}

// FreeModels returns the free subset of the catalog.
func (s *Static) FreeModels(ctx context.Context) ([]Model, error) {
	var out []Model
	for _, m := range s.Models {
		if m.IsFree() {
			out = append(out, m)
		}
	}
	return out, nil
}
