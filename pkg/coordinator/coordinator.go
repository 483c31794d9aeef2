// Package coordinator orchestrates decomposed coding tasks end to end:
// decomposition, dependency repair, scheduling, model assignment,
// execution, and result synthesis.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/depgraph"
	"github.com/zen-systems/taskgate/pkg/jobs"
	"github.com/zen-systems/taskgate/pkg/logging"
	"github.com/zen-systems/taskgate/pkg/pricing"
	"github.com/zen-systems/taskgate/pkg/registry"
	"github.com/zen-systems/taskgate/pkg/router"
)

// Decomposer splits a raw task into dependent subtasks.
type Decomposer interface {
	Decompose(ctx context.Context, task string, opts DecomposeOptions) (*depgraph.DecomposedCodeTask, error)
}

// DecomposeOptions tunes decomposition granularity.
type DecomposeOptions struct {
	Granularity string // "fine" | "coarse"
}

// ModelCaller invokes a model with a prompt and returns its text output.
type ModelCaller interface {
	CallModel(ctx context.Context, model registry.Model, prompt string) (string, error)
}

// ProcessOptions tunes one coordinator run.
type ProcessOptions struct {
	Granularity string // "coarse" biases assignment toward resource efficiency
	Priority    string
	Execute     bool
}

// ProcessResult is the outcome of ProcessCodeTask.
type ProcessResult struct {
	JobID                   string                       `json:"job_id"`
	DecomposedTask          *depgraph.DecomposedCodeTask `json:"decomposed_task"`
	ModelAssignments        map[string]registry.Model    `json:"model_assignments"`
	ExecutionOrder          []depgraph.CodeSubtask       `json:"execution_order"`
	CriticalPath            []depgraph.CodeSubtask       `json:"critical_path"`
	DependencyVisualization string                       `json:"dependency_visualization"`
	EstimatedCost           float64                      `json:"estimated_cost"`
	Results                 map[string]string            `json:"results,omitempty"`
	FinalResult             string                       `json:"final_result,omitempty"`
}

// Coordinator wires the mapper, router, and tracker into one pipeline.
type Coordinator struct {
	decomposer Decomposer
	mapper     *depgraph.Mapper
	router     *router.Router
	registry   registry.Registry
	estimator  pricing.Estimator
	caller     ModelCaller
	tracker    *jobs.Tracker
	cfg        *config.RoutingConfig
	log        zerolog.Logger
}

// New creates a coordinator. caller may be nil when execution is never
// requested.
func New(dec Decomposer, mapper *depgraph.Mapper, rt *router.Router, reg registry.Registry, est pricing.Estimator, caller ModelCaller, tracker *jobs.Tracker, cfg *config.RoutingConfig) *Coordinator {
	if cfg == nil {
		cfg = config.DefaultRoutingConfig()
	}
	return &Coordinator{
		decomposer: dec,
		mapper:     mapper,
		router:     rt,
		registry:   reg,
		estimator:  est,
		caller:     caller,
		tracker:    tracker,
		cfg:        cfg,
		log:        logging.New("coordinator"),
	}
}

// ProcessCodeTask runs the full pipeline for one raw task. Any stage
// failure aborts the pipeline, fails the tracked job, and surfaces a
// wrapped error naming the task.
func (c *Coordinator) ProcessCodeTask(ctx context.Context, task string, opts ProcessOptions) (*ProcessResult, error) {
	job := c.tracker.CreateJob(task)

	fail := func(stage string, err error) (*ProcessResult, error) {
		wrapped := fmt.Errorf("task %q: %s failed: %w", task, stage, err)
		c.tracker.FailJob(job.ID, wrapped.Error())
		return nil, wrapped
	}

	c.tracker.UpdateJobProgress(job.ID, "10%", "", "")
	decomposed, err := c.decomposer.Decompose(ctx, task, DecomposeOptions{Granularity: opts.Granularity})
	if err != nil {
		return fail("decomposition", err)
	}

	decomposed = c.mapper.ResolveCircularDependencies(decomposed)
	executionOrder := c.mapper.SortByExecutionOrder(decomposed)
	criticalPath := c.mapper.FindCriticalPath(decomposed)
	visualization := c.mapper.VisualizeDependencies(decomposed)
	c.tracker.UpdateJobProgress(job.ID, "40%", "", "")

	routeOpts := router.Options{}
	if opts.Granularity == "coarse" {
		strategy := router.ResourceEfficientStrategy()
		routeOpts.StrategyOverride = &strategy
	}
	assignments, err := c.router.RouteSubtasks(ctx, decomposed.Subtasks, opts.Priority, routeOpts)
	if err != nil {
		return fail("model assignment", err)
	}
	c.tracker.UpdateJobProgress(job.ID, "60%", "", "")

	cost, err := c.estimateTotalCost(decomposed, assignments)
	if err != nil {
		return fail("cost estimation", err)
	}

	result := &ProcessResult{
		JobID:                   job.ID,
		DecomposedTask:          decomposed,
		ModelAssignments:        assignments,
		ExecutionOrder:          executionOrder,
		CriticalPath:            criticalPath,
		DependencyVisualization: visualization,
		EstimatedCost:           cost,
	}

	if !opts.Execute {
		c.tracker.CompleteJob(job.ID)
		return result, nil
	}

	c.tracker.UpdateJobProgress(job.ID, "70%", "", "")
	results, err := c.ExecuteAllSubtasks(ctx, decomposed, assignments)
	if err != nil {
		return fail("execution", err)
	}
	result.Results = results

	final := c.SynthesizeFinalResult(ctx, task, decomposed, results)
	result.FinalResult = final
	c.tracker.CompleteJob(job.ID)
	return result, nil
}

// estimateTotalCost sums per-subtask cost estimates using a 70/30
// input/output split of each subtask's token estimate. Local assignments
// cost nothing.
func (c *Coordinator) estimateTotalCost(task *depgraph.DecomposedCodeTask, assignments map[string]registry.Model) (float64, error) {
	total := 0.0
	for _, st := range task.Subtasks {
		contextTokens := int(float64(st.EstimatedTokens) * 0.7)
		outputTokens := st.EstimatedTokens - contextTokens

		model, assigned := assignments[st.ID]
		req := pricing.Request{ContextLength: contextTokens, OutputLength: outputTokens}
		if assigned && !model.IsLocal() {
			req.Provider = model.Provider
			req.Model = model.ID
		}

		est, err := c.estimator.EstimateCost(req)
		if err != nil {
			return 0, fmt.Errorf("subtask %s: %w", st.ID, err)
		}
		if assigned && model.IsLocal() {
			total += est.Local
		} else {
			total += est.Paid
		}
	}
	return total, nil
}

// ExecuteAllSubtasks walks subtasks in execution order, feeding each the
// textual results of its direct dependencies. A subtask with no assigned
// model records an explicit error string rather than being skipped
// silently; external call failures abort the run.
func (c *Coordinator) ExecuteAllSubtasks(ctx context.Context, task *depgraph.DecomposedCodeTask, assignments map[string]registry.Model) (map[string]string, error) {
	if c.caller == nil {
		return nil, fmt.Errorf("no model caller configured")
	}

	results := make(map[string]string, len(task.Subtasks))
	for _, st := range c.mapper.SortByExecutionOrder(task) {
		model, ok := assignments[st.ID]
		if !ok {
			results[st.ID] = fmt.Sprintf("error: no model assigned to subtask %s", st.ID)
			c.log.Warn().Str("subtask", st.ID).Msg("executing with no model assignment")
			continue
		}

		prompt := c.buildSubtaskPrompt(task, st, results)
		text, err := c.caller.CallModel(ctx, model, prompt)
		if err != nil {
			results[st.ID] = fmt.Sprintf("error: %v", err)
			return results, fmt.Errorf("subtask %s on model %s: %w", st.ID, model.ID, err)
		}
		results[st.ID] = text
	}
	return results, nil
}

// buildSubtaskPrompt assembles the prompt for one subtask, including the
// results of its direct dependencies as context.
func (c *Coordinator) buildSubtaskPrompt(task *depgraph.DecomposedCodeTask, st depgraph.CodeSubtask, results map[string]string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Overall task: %s\n\n", task.OriginalTask))

	deps := task.DependencyMap[st.ID]
	if len(deps) > 0 {
		sb.WriteString("Results of completed dependencies:\n")
		sorted := append([]string(nil), deps...)
		sort.Strings(sorted)
		for _, dep := range sorted {
			if r, ok := results[dep]; ok {
				sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n", dep, r))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Your subtask (%s): %s\n", st.CodeType, st.Description))
	return sb.String()
}

// SynthesizeFinalResult merges per-subtask results into one answer. It
// prefers a free model whose context window holds the concatenation, then
// the configured paid fallback. Synthesis failure degrades to the raw
// concatenation with a note; it is never a hard error.
func (c *Coordinator) SynthesizeFinalResult(ctx context.Context, task string, decomposed *depgraph.DecomposedCodeTask, results map[string]string) string {
	var sb strings.Builder
	for _, st := range c.mapper.SortByExecutionOrder(decomposed) {
		if r, ok := results[st.ID]; ok {
			sb.WriteString(fmt.Sprintf("=== %s ===\n%s\n\n", st.ID, r))
		}
	}
	concatenated := sb.String()

	if c.caller == nil {
		return degradedSynthesis(concatenated)
	}

	model, ok := c.synthesisModel(ctx, len(concatenated)/4)
	if !ok {
		return degradedSynthesis(concatenated)
	}

	prompt := fmt.Sprintf(
		"Merge the following subtask results into one coherent final result for the task %q. Resolve inconsistencies between the parts.\n\n%s",
		task, concatenated)
	text, err := c.caller.CallModel(ctx, model, prompt)
	if err != nil {
		c.log.Warn().Err(err).Str("model", model.ID).Msg("synthesis failed; returning concatenation")
		return degradedSynthesis(concatenated)
	}
	return text
}

// synthesisModel picks a free model whose window fits the estimated token
// count, falling back to the configured paid model.
func (c *Coordinator) synthesisModel(ctx context.Context, estimatedTokens int) (registry.Model, bool) {
	if free, err := c.registry.FreeModels(ctx); err == nil {
		for _, m := range free {
			if m.ContextWindow == 0 || m.ContextWindow >= estimatedTokens {
				return m, true
			}
		}
	}

	fallback := registry.Model{
		ID:       c.cfg.Synthesis.FallbackModel,
		Provider: c.cfg.Synthesis.FallbackProvider,
	}
	if fallback.ID == "" {
		return registry.Model{}, false
	}
	return fallback, true
}

func degradedSynthesis(concatenated string) string {
	return concatenated + "\n[note: automatic synthesis unavailable; manual integration of the parts above is required]"
}
