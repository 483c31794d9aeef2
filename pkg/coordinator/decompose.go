package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/zen-systems/taskgate/pkg/depgraph"
)

// HeuristicDecomposer is a pattern-based Decomposer used when no LLM
// decomposition backend is wired. It produces a small typed plan: types and
// interfaces first, then implementation units, then tests.
type HeuristicDecomposer struct{}

// NewHeuristicDecomposer creates the fallback decomposer.
func NewHeuristicDecomposer() *HeuristicDecomposer {
	return &HeuristicDecomposer{}
}

type phase struct {
	suffix   string
	desc     string
	codeType depgraph.CodeType
	weight   float64 // share of the task's complexity
}

// Decompose splits the task into a dependency chain of typed subtasks.
// Coarse granularity folds implementation into a single unit.
func (d *HeuristicDecomposer) Decompose(ctx context.Context, task string, opts DecomposeOptions) (*depgraph.DecomposedCodeTask, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("empty task description")
	}

	complexity := estimateComplexity(task)
	baseTokens := 200 + len(task)/2

	phases := []phase{
		{suffix: "types", desc: "Define the data types and interfaces for: " + task, codeType: depgraph.CodeTypeType, weight: 0.6},
		{suffix: "impl", desc: "Implement the core logic for: " + task, codeType: depgraph.CodeTypeFunction, weight: 1.0},
	}
	if opts.Granularity != "coarse" && complexity >= 0.4 {
		phases = []phase{
			{suffix: "types", desc: "Define the data types and interfaces for: " + task, codeType: depgraph.CodeTypeType, weight: 0.6},
			{suffix: "core", desc: "Implement the core logic for: " + task, codeType: depgraph.CodeTypeFunction, weight: 1.0},
			{suffix: "api", desc: "Implement the public surface for: " + task, codeType: depgraph.CodeTypeModule, weight: 0.8},
		}
	}
	phases = append(phases, phase{suffix: "tests", desc: "Write tests for: " + task, codeType: depgraph.CodeTypeTest, weight: 0.7})

	decomposed := &depgraph.DecomposedCodeTask{
		OriginalTask:  task,
		DependencyMap: make(map[string][]string, len(phases)),
	}

	var prevID string
	for i, p := range phases {
		id := fmt.Sprintf("subtask-%d-%s", i+1, p.suffix)
		st := depgraph.CodeSubtask{
			ID:                   id,
			Description:          p.desc,
			Complexity:           clamp01(complexity * p.weight),
			EstimatedTokens:      int(float64(baseTokens) * p.weight),
			CodeType:             p.codeType,
			RecommendedModelSize: recommendedSize(complexity * p.weight),
		}
		if prevID != "" {
			st.Dependencies = []string{prevID}
			decomposed.DependencyMap[id] = []string{prevID}
		} else {
			decomposed.DependencyMap[id] = nil
		}
		decomposed.Subtasks = append(decomposed.Subtasks, st)
		decomposed.TotalEstimatedTokens += st.EstimatedTokens
		prevID = id
	}

	return decomposed, nil
}

// estimateComplexity scores a task description on crude textual signals.
func estimateComplexity(task string) float64 {
	lower := strings.ToLower(task)
	score := 0.3
	for _, marker := range []string{"concurrent", "distributed", "parse", "protocol", "optimize", "refactor", "database", "scheduler", "cache"} {
		if strings.Contains(lower, marker) {
			score += 0.1
		}
	}
	if len(task) > 300 {
		score += 0.1
	}
	return clamp01(score)
}

func recommendedSize(complexity float64) depgraph.ModelSize {
	switch {
	case complexity >= 0.8:
		return depgraph.ModelSizeRemote
	case complexity >= 0.6:
		return depgraph.ModelSizeLarge
	case complexity >= 0.3:
		return depgraph.ModelSizeMedium
	default:
		return depgraph.ModelSizeSmall
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
