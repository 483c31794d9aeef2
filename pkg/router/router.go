// Package router dispatches tasks and decomposed subtasks to concrete
// models, balancing observed performance against current per-model load.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/depgraph"
	"github.com/zen-systems/taskgate/pkg/logging"
	"github.com/zen-systems/taskgate/pkg/metrics"
	"github.com/zen-systems/taskgate/pkg/perf"
	"github.com/zen-systems/taskgate/pkg/registry"
)

// ErrNoModelAvailable is returned when neither the ranked candidates nor
// the registry fallback produce a model that fits the task.
var ErrNoModelAvailable = errors.New("no model available for task")

// Task describes one routable unit of work.
type Task struct {
	ID              string
	Complexity      float64 // [0,1]
	EstimatedTokens int
	Priority        string // speed | cost | quality | efficiency
}

// Options selects the subtask routing mode.
type Options struct {
	// OptimizeResources groups similar subtasks and shares one model per
	// group to reduce model churn.
	OptimizeResources bool
	// BatchSimilarTasks buckets subtasks by complexity band and routes one
	// representative per bucket.
	BatchSimilarTasks bool
	// StrategyOverride forces a specific strategy for every subtask.
	StrategyOverride *Strategy
}

// Router selects models for tasks using performance rankings and
// load-aware tie-breaking.
type Router struct {
	registry registry.Registry
	perf     *perf.Store
	loads    *LoadTracker
	cfg      *config.RoutingConfig
	log      zerolog.Logger
}

// NewRouter creates a task router.
func NewRouter(reg registry.Registry, store *perf.Store, cfg *config.RoutingConfig) *Router {
	if cfg == nil {
		cfg = config.DefaultRoutingConfig()
	}
	return &Router{
		registry: reg,
		perf:     store,
		loads:    NewLoadTracker(),
		cfg:      cfg,
		log:      logging.New("router"),
	}
}

// Loads exposes the load tracker so callers holding a task id can signal
// completion instead of waiting for timer decay.
func (r *Router) Loads() *LoadTracker {
	return r.loads
}

// NotifyTaskCompletion releases the load held for a routed task.
func (r *Router) NotifyTaskCompletion(taskID string) bool {
	return r.loads.NotifyTaskCompletion(taskID)
}

// RouteTask selects a model for one task. Selecting a model increments its
// load; if task.ID is set the load decays on completion notification or,
// failing that, after the configured task decay interval.
func (r *Router) RouteTask(ctx context.Context, task Task) (*registry.Model, error) {
	strategy := r.SelectStrategy(task.Complexity, task.Priority)
	model, err := r.pickModel(ctx, strategy, task)
	if err != nil {
		return nil, err
	}

	decay := time.Duration(r.cfg.LoadBalancer.TaskDecaySec) * time.Second
	r.loads.Acquire(model.ID, 1, decay, task.ID)
	metrics.SubtaskAssignments.WithLabelValues("single").Inc()
	r.log.Debug().Str("model", model.ID).Str("task", task.ID).
		Str("strategy", string(strategy.Kind)).Msg("routed task")
	return model, nil
}

// pickModel runs candidate selection without touching load counters.
func (r *Router) pickModel(ctx context.Context, strategy Strategy, task Task) (*registry.Model, error) {
	candidates := r.perf.RankedCandidates(perf.Query{
		LocalOnly:         strategy.RequireLocalOnly,
		ResourceEfficient: strategy.MaximizeResourceEfficiency,
		MaxResults:        r.cfg.LoadBalancer.MaxCandidates,
	})

	// Drop candidates that cannot hold the task.
	fitting := candidates[:0]
	for _, c := range candidates {
		if c.ContextWindow != 0 && c.ContextWindow < task.EstimatedTokens {
			continue
		}
		fitting = append(fitting, c)
	}

	if len(fitting) == 0 {
		return r.fallbackModelSelection(ctx, strategy, task)
	}

	r.balanceByLoad(fitting)

	model := r.resolveModel(ctx, fitting[0])
	return &model, nil
}

// balanceByLoad reorders candidates ascending by load, but only when the
// spread matters: any pairwise load difference at or above the threshold.
// Otherwise the performance-based order stands.
func (r *Router) balanceByLoad(candidates []perf.ModelPerfData) {
	if len(candidates) < 2 {
		return
	}

	loads := make(map[string]int, len(candidates))
	minLoad, maxLoad := math.MaxInt, 0
	for _, c := range candidates {
		l := r.loads.Load(c.ID)
		loads[c.ID] = l
		if l < minLoad {
			minLoad = l
		}
		if l > maxLoad {
			maxLoad = l
		}
	}

	if maxLoad-minLoad < r.cfg.LoadBalancer.DiffThreshold {
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return loads[candidates[i].ID] < loads[candidates[j].ID]
	})
}

// fallbackModelSelection searches the full registry when no ranked
// candidate fits: same strategy filters, plus a preference for larger
// context windows on medium-or-harder tasks and for quantized builds under
// resource efficiency.
func (r *Router) fallbackModelSelection(ctx context.Context, strategy Strategy, task Task) (*registry.Model, error) {
	models, err := r.registry.AvailableModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("fallback selection failed: %w", err)
	}

	var fitting []registry.Model
	for _, m := range models {
		if strategy.RequireLocalOnly && !m.IsLocal() {
			continue
		}
		if m.ContextWindow != 0 && m.ContextWindow < task.EstimatedTokens {
			continue
		}
		fitting = append(fitting, m)
	}
	if len(fitting) == 0 {
		if strategy.RequireLocalOnly {
			r.log.Warn().Str("task", task.ID).Msg("no local model fits task")
		}
		return nil, fmt.Errorf("task %q (%d tokens): %w", task.ID, task.EstimatedTokens, ErrNoModelAvailable)
	}

	if task.Complexity >= r.cfg.Thresholds.ComplexityMedium {
		sort.SliceStable(fitting, func(i, j int) bool {
			return fitting[i].ContextWindow > fitting[j].ContextWindow
		})
	}
	if strategy.MaximizeResourceEfficiency {
		sort.SliceStable(fitting, func(i, j int) bool {
			return quantRank(fitting[i].ID) < quantRank(fitting[j].ID)
		})
	}

	metrics.FallbackSelections.Inc()
	r.log.Debug().Str("task", task.ID).Str("model", fitting[0].ID).Msg("fallback model selection")
	return &fitting[0], nil
}

func quantRank(id string) int {
	if perfHasQuantMarker(id) {
		return 0
	}
	return 1
}

// resolveModel maps a ranked candidate back to its registry snapshot,
// synthesizing one from the tracked data when the registry no longer lists
// it.
func (r *Router) resolveModel(ctx context.Context, c perf.ModelPerfData) registry.Model {
	if models, err := r.registry.AvailableModels(ctx); err == nil {
		for _, m := range models {
			if m.ID == c.ID {
				return m
			}
		}
	}
	return registry.Model{ID: c.ID, Provider: c.Provider, ContextWindow: c.ContextWindow}
}

// RouteSubtasks assigns a model to every subtask. The zero Options value
// routes each subtask independently in descending complexity order.
func (r *Router) RouteSubtasks(ctx context.Context, subtasks []depgraph.CodeSubtask, priority string, opts Options) (map[string]registry.Model, error) {
	switch {
	case opts.OptimizeResources:
		return r.routeGrouped(ctx, subtasks, priority, opts)
	case opts.BatchSimilarTasks:
		return r.routeBatched(ctx, subtasks, priority, opts)
	default:
		return r.routeIndividually(ctx, subtasks, priority, opts)
	}
}

func (r *Router) routeIndividually(ctx context.Context, subtasks []depgraph.CodeSubtask, priority string, opts Options) (map[string]registry.Model, error) {
	ordered := make([]depgraph.CodeSubtask, len(subtasks))
	copy(ordered, subtasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Complexity > ordered[j].Complexity
	})

	assignments := make(map[string]registry.Model, len(ordered))
	for _, st := range ordered {
		task := Task{ID: st.ID, Complexity: st.Complexity, EstimatedTokens: st.EstimatedTokens, Priority: priority}
		strategy := r.strategyFor(task, opts)
		model, err := r.pickModel(ctx, strategy, task)
		if err != nil {
			// Unroutable subtasks are recoverable: siblings still route.
			r.log.Warn().Err(err).Str("subtask", st.ID).Msg("subtask unroutable")
			continue
		}
		decay := time.Duration(r.cfg.LoadBalancer.TaskDecaySec) * time.Second
		r.loads.Acquire(model.ID, 1, decay, st.ID)
		assignments[st.ID] = *model
		metrics.SubtaskAssignments.WithLabelValues("default").Inc()
	}
	return assignments, nil
}

// routeGrouped groups subtasks by recommended model size and a 0.25-wide
// complexity bucket, routes each group's most complex member, and shares
// the chosen model across the group.
func (r *Router) routeGrouped(ctx context.Context, subtasks []depgraph.CodeSubtask, priority string, opts Options) (map[string]registry.Model, error) {
	type groupKey struct {
		size   depgraph.ModelSize
		bucket float64
	}

	groups := make(map[groupKey][]depgraph.CodeSubtask)
	var keys []groupKey
	for _, st := range subtasks {
		key := groupKey{size: st.RecommendedModelSize, bucket: math.Round(st.Complexity*4) / 4}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], st)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].size != keys[j].size {
			return keys[i].size < keys[j].size
		}
		return keys[i].bucket < keys[j].bucket
	})

	assignments := make(map[string]registry.Model, len(subtasks))
	decay := time.Duration(r.cfg.LoadBalancer.GroupDecaySec) * time.Second

	for _, key := range keys {
		group := groups[key]
		rep := group[0]
		for _, st := range group[1:] {
			if st.Complexity > rep.Complexity {
				rep = st
			}
		}

		task := Task{ID: rep.ID, Complexity: rep.Complexity, EstimatedTokens: rep.EstimatedTokens, Priority: priority}
		strategy := r.strategyFor(task, opts)
		model := r.bestScoredModel(ctx, strategy, task)
		if model == nil {
			r.log.Warn().Str("subtask", rep.ID).Int("group_size", len(group)).Msg("group unroutable")
			continue
		}

		amount := int(math.Ceil(float64(len(group)) / 2))
		r.loads.Acquire(model.ID, amount, decay, "group:"+rep.ID)
		for _, st := range group {
			assignments[st.ID] = *model
			metrics.SubtaskAssignments.WithLabelValues("grouped").Inc()
		}
	}
	return assignments, nil
}

// bestScoredModel ranks candidates by 5-load plus a resource-efficiency
// bonus and a small local-provider bonus, returning the top scorer.
func (r *Router) bestScoredModel(ctx context.Context, strategy Strategy, task Task) *registry.Model {
	candidates := r.perf.RankedCandidates(perf.Query{
		LocalOnly:         strategy.RequireLocalOnly,
		ResourceEfficient: strategy.MaximizeResourceEfficiency,
		MaxResults:        r.cfg.LoadBalancer.MaxCandidates,
	})

	var best *registry.Model
	bestScore := math.Inf(-1)
	for _, c := range candidates {
		if c.ContextWindow != 0 && c.ContextWindow < task.EstimatedTokens {
			continue
		}
		score := 5 - float64(r.loads.Load(c.ID))
		if perfHasQuantMarker(c.ID) {
			score += 1
		}
		if c.Provider == registry.ProviderLocal {
			score += 0.5
		}
		if score > bestScore {
			bestScore = score
			m := r.resolveModel(ctx, c)
			best = &m
		}
	}
	if best == nil {
		if m, err := r.fallbackModelSelection(ctx, strategy, task); err == nil {
			return m
		}
		return nil
	}
	return best
}

// routeBatched partitions subtasks into simple/medium/complex bands,
// routes each band's highest-token representative, and assigns its model
// to the whole band.
func (r *Router) routeBatched(ctx context.Context, subtasks []depgraph.CodeSubtask, priority string, opts Options) (map[string]registry.Model, error) {
	t := r.cfg.Thresholds
	buckets := map[string][]depgraph.CodeSubtask{}
	for _, st := range subtasks {
		switch {
		case st.Complexity < t.ComplexitySimple:
			buckets["simple"] = append(buckets["simple"], st)
		case st.Complexity < t.ComplexityComplex:
			buckets["medium"] = append(buckets["medium"], st)
		default:
			buckets["complex"] = append(buckets["complex"], st)
		}
	}

	assignments := make(map[string]registry.Model, len(subtasks))
	decay := time.Duration(r.cfg.LoadBalancer.BatchDecaySec) * time.Second

	for _, band := range []string{"simple", "medium", "complex"} {
		bucket := buckets[band]
		if len(bucket) == 0 {
			continue
		}
		rep := bucket[0]
		for _, st := range bucket[1:] {
			if st.EstimatedTokens > rep.EstimatedTokens {
				rep = st
			}
		}

		task := Task{ID: rep.ID, Complexity: rep.Complexity, EstimatedTokens: rep.EstimatedTokens, Priority: priority}
		strategy := r.strategyFor(task, opts)
		model, err := r.pickModel(ctx, strategy, task)
		if err != nil {
			r.log.Warn().Err(err).Str("band", band).Msg("batch unroutable")
			continue
		}

		amount := int(math.Min(3, math.Ceil(float64(len(bucket))/2)))
		r.loads.Acquire(model.ID, amount, decay, "batch:"+rep.ID)
		for _, st := range bucket {
			assignments[st.ID] = *model
			metrics.SubtaskAssignments.WithLabelValues("batched").Inc()
		}
	}
	return assignments, nil
}

func (r *Router) strategyFor(task Task, opts Options) Strategy {
	if opts.StrategyOverride != nil {
		return *opts.StrategyOverride
	}
	return r.SelectStrategy(task.Complexity, task.Priority)
}

// ResourceEfficientStrategy returns the resourceEfficient preset for
// callers that need to force it.
func ResourceEfficientStrategy() Strategy {
	return resourceEfficient
}

// perfHasQuantMarker reports whether a model id names a quantized build.
func perfHasQuantMarker(id string) bool {
	lower := strings.ToLower(id)
	for _, marker := range []string{"q4", "q5", "q8"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
