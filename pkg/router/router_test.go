package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/depgraph"
	"github.com/zen-systems/taskgate/pkg/perf"
	"github.com/zen-systems/taskgate/pkg/registry"
)

func catalog() []registry.Model {
	return []registry.Model{
		{ID: "llama3:70b", Provider: registry.ProviderLocal, ContextWindow: 32768},
		{ID: "phi3:mini-q4", Provider: registry.ProviderLocal, ContextWindow: 8192},
		{ID: "gpt-5.2-instant", Provider: registry.ProviderOpenAI, ContextWindow: 200000,
			Cost: registry.TokenCost{Prompt: 0.000002, Completion: 0.000008}},
	}
}

// seededRouter tracks every catalog model with neutral stats so ranked
// selection has candidates.
func seededRouter() *Router {
	store := perf.NewStore()
	for _, m := range catalog() {
		store.Seed(m)
	}
	return NewRouter(registry.NewStatic(catalog()), store, config.DefaultRoutingConfig())
}

// emptyRouter has no tracked performance data, forcing fallback selection.
func emptyRouter(models []registry.Model) *Router {
	return NewRouter(registry.NewStatic(models), perf.NewStore(), config.DefaultRoutingConfig())
}

func TestSelectStrategy(t *testing.T) {
	r := seededRouter()

	tests := []struct {
		name       string
		complexity float64
		priority   string
		want       StrategyKind
	}{
		{"speed priority", 0.5, "speed", StrategySpeedFirst},
		{"speed beats complexity", 0.9, "speed", StrategySpeedFirst},
		{"quality priority", 0.2, "quality", StrategyQualityFirst},
		{"high complexity forces quality", 0.85, "cost", StrategyQualityFirst},
		{"efficiency priority", 0.5, "efficiency", StrategyResourceEfficient},
		{"cost priority", 0.5, "cost", StrategyCostEfficient},
		{"no priority", 0.2, "", StrategyCostEfficient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.SelectStrategy(tt.complexity, tt.priority)
			require.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestRouteTaskFitsContextWindow(t *testing.T) {
	r := seededRouter()

	model, err := r.RouteTask(context.Background(), Task{
		ID:              "big",
		Complexity:      0.5,
		EstimatedTokens: 50000,
		Priority:        "cost",
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-5.2-instant", model.ID)
	require.GreaterOrEqual(t, model.ContextWindow, 50000)
}

func TestRouteTaskTracksLoad(t *testing.T) {
	r := seededRouter()

	model, err := r.RouteTask(context.Background(), Task{ID: "t1", Complexity: 0.2, EstimatedTokens: 100})
	require.NoError(t, err)
	require.Equal(t, 1, r.Loads().Load(model.ID))

	require.True(t, r.NotifyTaskCompletion("t1"))
	require.Equal(t, 0, r.Loads().Load(model.ID))

	require.False(t, r.NotifyTaskCompletion("t1"), "second notification must be a no-op")
	require.False(t, r.NotifyTaskCompletion("never-routed"))
}

func TestBalanceByLoad(t *testing.T) {
	store := perf.NewStore()
	// a ranks above b on performance.
	require.NoError(t, store.RecordObservation("model-a", perf.Observation{Success: true, QualityScore: 0.9, ResponseTimeMS: 100}))
	require.NoError(t, store.RecordObservation("model-b", perf.Observation{Success: true, QualityScore: 0.5, ResponseTimeMS: 100}))

	models := []registry.Model{
		{ID: "model-a", Provider: registry.ProviderLocal, ContextWindow: 8192},
		{ID: "model-b", Provider: registry.ProviderLocal, ContextWindow: 8192},
	}
	r := NewRouter(registry.NewStatic(models), store, config.DefaultRoutingConfig())

	task := Task{Complexity: 0.2, EstimatedTokens: 100}

	// Below the diff threshold the performance order stands.
	r.Loads().Acquire("model-a", 1, 0, "")
	m, err := r.pickModel(context.Background(), costEfficient, task)
	require.NoError(t, err)
	require.Equal(t, "model-a", m.ID)

	// At the threshold the lightly loaded model wins despite worse stats.
	r.Loads().Acquire("model-a", 1, 0, "")
	m, err = r.pickModel(context.Background(), costEfficient, task)
	require.NoError(t, err)
	require.Equal(t, "model-b", m.ID)
}

func TestFallbackModelSelection(t *testing.T) {
	t.Run("prefers larger window for harder tasks", func(t *testing.T) {
		r := emptyRouter(catalog())
		m, err := r.fallbackModelSelection(context.Background(), costEfficient,
			Task{ID: "hard", Complexity: 0.7, EstimatedTokens: 1000})
		require.NoError(t, err)
		require.Equal(t, "gpt-5.2-instant", m.ID)
	})

	t.Run("prefers quantized builds under resource efficiency", func(t *testing.T) {
		r := emptyRouter(catalog())
		m, err := r.fallbackModelSelection(context.Background(), resourceEfficient,
			Task{ID: "small", Complexity: 0.2, EstimatedTokens: 500})
		require.NoError(t, err)
		require.Equal(t, "phi3:mini-q4", m.ID)
	})

	t.Run("local only with no local models fails", func(t *testing.T) {
		r := emptyRouter([]registry.Model{
			{ID: "gpt-5.2-instant", Provider: registry.ProviderOpenAI, ContextWindow: 200000,
				Cost: registry.TokenCost{Prompt: 0.000002, Completion: 0.000008}},
		})
		_, err := r.fallbackModelSelection(context.Background(), resourceEfficient,
			Task{ID: "small", EstimatedTokens: 500})
		require.ErrorIs(t, err, ErrNoModelAvailable)
	})

	t.Run("nothing fits", func(t *testing.T) {
		r := emptyRouter([]registry.Model{
			{ID: "tiny", Provider: registry.ProviderLocal, ContextWindow: 1000},
		})
		_, err := r.fallbackModelSelection(context.Background(), costEfficient,
			Task{ID: "big", EstimatedTokens: 100000})
		require.ErrorIs(t, err, ErrNoModelAvailable)
	})
}

func TestRouteSubtasksIndividually(t *testing.T) {
	r := seededRouter()

	subtasks := []depgraph.CodeSubtask{
		{ID: "types", Complexity: 0.2, EstimatedTokens: 400},
		{ID: "core", Complexity: 0.7, EstimatedTokens: 2000},
		{ID: "huge", Complexity: 0.5, EstimatedTokens: 999999999},
	}

	assignments, err := r.RouteSubtasks(context.Background(), subtasks, "cost", Options{})
	require.NoError(t, err)

	// The oversized subtask is skipped, not fatal.
	require.Len(t, assignments, 2)
	require.Contains(t, assignments, "types")
	require.Contains(t, assignments, "core")
	require.NotContains(t, assignments, "huge")
}

func TestRouteSubtasksGrouped(t *testing.T) {
	r := seededRouter()

	subtasks := []depgraph.CodeSubtask{
		{ID: "a", Complexity: 0.3, EstimatedTokens: 400, RecommendedModelSize: depgraph.ModelSizeSmall},
		{ID: "b", Complexity: 0.31, EstimatedTokens: 450, RecommendedModelSize: depgraph.ModelSizeSmall},
		{ID: "c", Complexity: 0.9, EstimatedTokens: 3000, RecommendedModelSize: depgraph.ModelSizeLarge},
	}

	assignments, err := r.RouteSubtasks(context.Background(), subtasks, "cost", Options{OptimizeResources: true})
	require.NoError(t, err)
	require.Len(t, assignments, 3)

	// a and b land in the same size/complexity bucket and share a model.
	require.Equal(t, assignments["a"].ID, assignments["b"].ID)
}

func TestRouteSubtasksBatched(t *testing.T) {
	r := seededRouter()

	subtasks := []depgraph.CodeSubtask{
		{ID: "s1", Complexity: 0.1, EstimatedTokens: 300},
		{ID: "s2", Complexity: 0.2, EstimatedTokens: 350},
		{ID: "m1", Complexity: 0.5, EstimatedTokens: 1500},
		{ID: "x1", Complexity: 0.9, EstimatedTokens: 4000},
	}

	assignments, err := r.RouteSubtasks(context.Background(), subtasks, "cost", Options{BatchSimilarTasks: true})
	require.NoError(t, err)
	require.Len(t, assignments, 4)

	// Same band, same model.
	require.Equal(t, assignments["s1"].ID, assignments["s2"].ID)
}

func TestStrategyOverride(t *testing.T) {
	r := seededRouter()
	override := ResourceEfficientStrategy()

	subtasks := []depgraph.CodeSubtask{
		{ID: "a", Complexity: 0.9, EstimatedTokens: 400},
	}
	assignments, err := r.RouteSubtasks(context.Background(), subtasks, "quality", Options{StrategyOverride: &override})
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	// Local-only override keeps even a complex task off paid models.
	require.Equal(t, registry.ProviderLocal, assignments["a"].Provider)
}
