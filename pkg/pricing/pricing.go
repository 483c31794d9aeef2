// Package pricing estimates the cost of serving a task locally versus on a
// paid provider.
package pricing

import (
	"fmt"

	"github.com/zen-systems/taskgate/pkg/config"
)

// Request describes the token shape of a task to be priced.
type Request struct {
	ContextLength int
	OutputLength  int
	Provider      string // optional; empty = cheapest configured paid provider
	Model         string // optional
}

// Estimate compares local and paid cost for a request.
type Estimate struct {
	Local          float64 `json:"local"`
	Paid           float64 `json:"paid"`
	Recommendation string  `json:"recommendation"` // "local" or "paid"
}

// Estimator produces cost estimates for routing decisions.
type Estimator interface {
	EstimateCost(req Request) (Estimate, error)
}

// Table is an Estimator backed by the per-1k-token pricing table from the
// routing config. Local inference is always priced at zero.
type Table struct {
	pricing config.PricingConfig
}

// NewTable creates a table estimator.
func NewTable(pricing config.PricingConfig) *Table {
	return &Table{pricing: pricing}
}

// EstimateCost prices the request. When no provider/model is named, the
// cheapest configured paid entry is used.
func (t *Table) EstimateCost(req Request) (Estimate, error) {
	if req.ContextLength < 0 || req.OutputLength < 0 {
		return Estimate{}, fmt.Errorf("negative token counts: context=%d output=%d", req.ContextLength, req.OutputLength)
	}

	entry, ok := t.lookup(req.Provider, req.Model)
	if !ok {
		return Estimate{}, fmt.Errorf("no pricing configured for provider %q model %q", req.Provider, req.Model)
	}

	paid := (float64(req.ContextLength)/1000.0)*entry.PromptPer1K +
		(float64(req.OutputLength)/1000.0)*entry.CompletionPer1K

	// Local is always free; recommend paid only when the paid cost is
	// negligible enough that the quality upside is effectively free.
	est := Estimate{Local: 0, Paid: paid, Recommendation: "local"}
	if paid < 0.01 {
		est.Recommendation = "paid"
	}
	return est, nil
}

func (t *Table) lookup(provider, model string) (config.ModelPricing, bool) {
	if t.pricing == nil {
		return config.ModelPricing{}, false
	}

	if provider != "" {
		providerPricing, ok := t.pricing[provider]
		if !ok {
			return config.ModelPricing{}, false
		}
		if model != "" {
			if entry, ok := providerPricing[model]; ok {
				return entry, true
			}
		}
		entry, ok := providerPricing["default"]
		return entry, ok
	}

	// No provider named: take the cheapest default entry across providers.
	var best config.ModelPricing
	found := false
	for _, providerPricing := range t.pricing {
		entry, ok := providerPricing["default"]
		if !ok {
			continue
		}
		if !found || entry.PromptPer1K+entry.CompletionPer1K < best.PromptPer1K+best.CompletionPer1K {
			best = entry
			found = true
		}
	}
	return best, found
}
