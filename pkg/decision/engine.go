// Package decision chooses between local and paid execution for a single
// task by weighing cost, complexity, token volume, and caller priority.
package decision

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/logging"
	"github.com/zen-systems/taskgate/pkg/metrics"
	"github.com/zen-systems/taskgate/pkg/perf"
	"github.com/zen-systems/taskgate/pkg/pricing"
	"github.com/zen-systems/taskgate/pkg/registry"
)

// ErrNoLocalModel is returned when the registry exposes no local model at
// all. Callers must handle it explicitly rather than have the engine guess.
var ErrNoLocalModel = errors.New("no local model available")

// providerPaid is the provider tag used on decisions that route to a paid
// remote model, regardless of which vendor serves it.
const providerPaid = "paid"

// Engine produces routing decisions.
type Engine struct {
	registry  registry.Registry
	estimator pricing.Estimator
	perf      *perf.Store
	cfg       *config.RoutingConfig
	log       zerolog.Logger
}

// NewEngine creates a decision engine. The perf store may be nil; ranking
// then falls back to registry order.
func NewEngine(reg registry.Registry, est pricing.Estimator, store *perf.Store, cfg *config.RoutingConfig) *Engine {
	if cfg == nil {
		cfg = config.DefaultRoutingConfig()
	}
	return &Engine{
		registry:  reg,
		estimator: est,
		perf:      store,
		cfg:       cfg,
		log:       logging.New("decision"),
	}
}

// RouteTask weighs the task parameters and returns a routing decision.
// Cost-estimator failures are propagated; there is no silent fallback here.
func (e *Engine) RouteTask(ctx context.Context, params Params) (*RoutingDecision, error) {
	estimate, err := e.estimator.EstimateCost(pricing.Request{
		ContextLength: params.ContextLength,
		OutputLength:  params.ExpectedOutputLength,
	})
	if err != nil {
		return nil, fmt.Errorf("cost estimate failed for task %q: %w", params.Task, err)
	}

	models, err := e.registry.AvailableModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models for task %q: %w", params.Task, err)
	}

	var localModels, paidModels []registry.Model
	for _, m := range models {
		if m.IsLocal() {
			localModels = append(localModels, m)
		} else {
			paidModels = append(paidModels, m)
		}
	}
	if len(localModels) == 0 {
		return nil, fmt.Errorf("task %q: %w", params.Task, ErrNoLocalModel)
	}

	w := e.cfg.FactorWeights
	t := e.cfg.Thresholds
	totalTokens := params.ContextLength + params.ExpectedOutputLength

	var scoreLocal, scorePaid float64
	d := &RoutingDecision{}

	// Cost: the larger the paid bill, the stronger the pull toward local.
	costAdvantage := math.Min(1, (estimate.Paid-estimate.Local)*10)
	if costAdvantage > 0 {
		scoreLocal += w.Cost * costAdvantage
		d.Factors.Cost = Factor{WasFactor: true, Weight: w.Cost}
	} else {
		d.Factors.Cost = Factor{Weight: w.Cost}
	}

	// Complexity: complex tasks favor paid, simple tasks favor local.
	d.Factors.Complexity = Factor{WasFactor: true, Weight: w.Complexity}
	switch {
	case params.Complexity >= t.ComplexityComplex:
		scorePaid += w.Complexity
	case params.Complexity >= t.ComplexityMedium:
		scorePaid += w.Complexity * 0.6
		scoreLocal += w.Complexity * 0.4
	case params.Complexity >= t.ComplexitySimple:
		scoreLocal += w.Complexity * 0.6
		scorePaid += w.Complexity * 0.4
	default:
		scoreLocal += w.Complexity
	}

	// Token volume: small jobs stay local, large jobs lean paid.
	d.Factors.TokenUsage = Factor{WasFactor: true, Weight: w.TokenUsage}
	switch {
	case totalTokens > t.TokensLarge:
		scorePaid += w.TokenUsage
	case totalTokens > t.TokensMedium:
		scorePaid += w.TokenUsage * 0.6
		scoreLocal += w.TokenUsage * 0.4
	case totalTokens > t.TokensSmall:
		scoreLocal += w.TokenUsage * 0.6
		scorePaid += w.TokenUsage * 0.4
	default:
		scoreLocal += w.TokenUsage
	}

	// Priority: cost pulls local, quality pulls paid, speed slightly paid.
	d.Factors.Priority = Factor{WasFactor: true, Weight: w.Priority}
	switch params.Priority {
	case PriorityCost:
		scoreLocal += w.Priority
	case PriorityQuality:
		scorePaid += w.Priority
	case PrioritySpeed:
		scorePaid += w.Priority * 0.7
		scoreLocal += w.Priority * 0.3
	default:
		d.Factors.Priority = Factor{Weight: w.Priority}
	}

	// Repeated failures push the task to a stronger paid model.
	d.Factors.PreviousAttempts = Factor{Weight: w.PreviousAttempts}
	if params.PreviousAttempts > 0 {
		scorePaid += w.PreviousAttempts * math.Min(1, float64(params.PreviousAttempts)/3.0)
		d.Factors.PreviousAttempts.WasFactor = true
	}

	totalWeight := w.Cost + w.Complexity + w.TokenUsage + w.Priority + w.PreviousAttempts
	scoreLocal = scoreLocal / totalWeight
	scorePaid = scorePaid / totalWeight

	d.Scores = Scores{Local: scoreLocal, Paid: scorePaid}
	d.Confidence = math.Min(1, math.Abs(scoreLocal-scorePaid))
	d.Factors.ContextWindow = Factor{Weight: w.ContextWindow}
	d.Factors.BenchmarkPerformance = Factor{Weight: 0}

	// Hard constraint: if no local context window can hold the task, the
	// soft scores do not matter.
	bestLocal, fits := largestFitting(localModels, totalTokens)
	if !fits {
		d.Provider = providerPaid
		d.Factors.ContextWindow.WasFactor = true
		d.Confidence = math.Max(d.Confidence, 0.75)
		d.Model = e.pickModel(paidModels, totalTokens)
		d.Explanation = fmt.Sprintf(
			"No local model's context window can hold %d tokens; forcing a paid model. %s",
			totalTokens, e.explain(params, d))
		e.log.Debug().Str("task", params.Task).Int("tokens", totalTokens).
			Msg("context window override to paid")
		metrics.RoutingDecisions.WithLabelValues(d.Provider).Inc()
		return d, nil
	}

	if scoreLocal >= scorePaid {
		d.Provider = registry.ProviderLocal
		d.Model = bestLocal.ID
		if best := e.bestByPerf(localModels, totalTokens); best != "" {
			d.Model = best
			d.Factors.BenchmarkPerformance = Factor{WasFactor: true, Weight: 1}
		}
	} else {
		d.Provider = providerPaid
		if best := e.bestByPerf(paidModels, totalTokens); best != "" {
			d.Model = best
			d.Factors.BenchmarkPerformance = Factor{WasFactor: true, Weight: 1}
		} else {
			d.Model = e.pickModel(paidModels, totalTokens)
		}
	}
	d.Explanation = e.explain(params, d)
	metrics.RoutingDecisions.WithLabelValues(d.Provider).Inc()

	return d, nil
}

// explain names the dominant factor behind the decision. The priority
// keyword appears verbatim when priority decided the outcome; downstream
// consumers match on it.
func (e *Engine) explain(params Params, d *RoutingDecision) string {
	dominant := e.dominantFactor(params, d)
	return fmt.Sprintf("%s favored the %s model (scores: local=%.2f, paid=%.2f)",
		dominant, d.Provider, d.Scores.Local, d.Scores.Paid)
}

func (e *Engine) dominantFactor(params Params, d *RoutingDecision) string {
	w := e.cfg.FactorWeights
	t := e.cfg.Thresholds
	totalTokens := params.ContextLength + params.ExpectedOutputLength

	// A stated priority with full weight dominates unless a heavier factor
	// pulled the opposite way harder.
	switch params.Priority {
	case PriorityCost:
		if d.Provider == registry.ProviderLocal {
			return "Cost priority"
		}
	case PriorityQuality:
		if d.Provider == providerPaid {
			return "Quality priority"
		}
	case PrioritySpeed:
		if d.Provider == providerPaid {
			return "Speed priority"
		}
	}

	if params.Complexity >= t.ComplexityComplex && d.Provider == providerPaid {
		return "Task complexity"
	}
	if totalTokens > t.TokensLarge && d.Provider == providerPaid {
		return "Token volume"
	}
	if d.Factors.Cost.WasFactor && d.Provider == registry.ProviderLocal && w.Cost >= w.Priority {
		return "Cost advantage"
	}
	return "Weighted scoring"
}

// pickModel selects a paid model that fits the token count.
func (e *Engine) pickModel(models []registry.Model, totalTokens int) string {
	if m, ok := largestFitting(models, totalTokens); ok {
		return m.ID
	}
	if len(models) > 0 {
		return models[0].ID
	}
	return ""
}

// bestByPerf returns the best-ranked model id among the given models whose
// context window fits, or "" when the perf store has nothing useful.
func (e *Engine) bestByPerf(models []registry.Model, totalTokens int) string {
	if e.perf == nil {
		return ""
	}
	eligible := make(map[string]bool, len(models))
	for _, m := range models {
		if m.ContextWindow == 0 || m.ContextWindow >= totalTokens {
			eligible[m.ID] = true
		}
	}
	for _, c := range e.perf.RankedCandidates(perf.Query{MaxResults: 0}) {
		if c.BenchmarkCount > 0 && eligible[c.ID] {
			return c.ID
		}
	}
	return ""
}

// largestFitting returns the model with the largest context window that can
// hold totalTokens. Models with unknown windows are treated as fitting.
func largestFitting(models []registry.Model, totalTokens int) (registry.Model, bool) {
	var best registry.Model
	found := false
	for _, m := range models {
		if m.ContextWindow != 0 && m.ContextWindow < totalTokens {
			continue
		}
		if !found || m.ContextWindow > best.ContextWindow {
			best = m
			found = true
		}
	}
	return best, found
}
