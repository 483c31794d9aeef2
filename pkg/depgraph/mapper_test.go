package depgraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func task(subtasks []CodeSubtask) *DecomposedCodeTask {
	depMap := make(map[string][]string, len(subtasks))
	total := 0
	for _, st := range subtasks {
		depMap[st.ID] = append([]string(nil), st.Dependencies...)
		total += st.EstimatedTokens
	}
	return &DecomposedCodeTask{
		OriginalTask:         "test task",
		Subtasks:             subtasks,
		TotalEstimatedTokens: total,
		DependencyMap:        depMap,
	}
}

func ids(subtasks []CodeSubtask) []string {
	out := make([]string, len(subtasks))
	for i, st := range subtasks {
		out[i] = st.ID
	}
	return out
}

func TestSortByExecutionOrder(t *testing.T) {
	tests := []struct {
		name     string
		subtasks []CodeSubtask
	}{
		{
			name: "linear chain",
			subtasks: []CodeSubtask{
				{ID: "c", Dependencies: []string{"b"}},
				{ID: "b", Dependencies: []string{"a"}},
				{ID: "a"},
			},
		},
		{
			name: "diamond",
			subtasks: []CodeSubtask{
				{ID: "d", Dependencies: []string{"b", "c"}},
				{ID: "b", Dependencies: []string{"a"}},
				{ID: "c", Dependencies: []string{"a"}},
				{ID: "a"},
			},
		},
		{
			name: "disconnected",
			subtasks: []CodeSubtask{
				{ID: "a"},
				{ID: "b"},
				{ID: "c", Dependencies: []string{"a"}},
			},
		},
	}

	m := NewMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := m.SortByExecutionOrder(task(tt.subtasks))
			require.Len(t, order, len(tt.subtasks))

			position := make(map[string]int, len(order))
			for i, st := range order {
				position[st.ID] = i
			}
			for _, st := range tt.subtasks {
				for _, dep := range st.Dependencies {
					require.Less(t, position[dep], position[st.ID],
						"%s must run before %s", dep, st.ID)
				}
			}
		})
	}
}

func TestSortByExecutionOrderSkipsCycleReentry(t *testing.T) {
	m := NewMapper()
	order := m.SortByExecutionOrder(task([]CodeSubtask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}))

	// Every subtask still appears exactly once.
	require.ElementsMatch(t, []string{"a", "b"}, ids(order))
}

func TestResolveCircularDependencies(t *testing.T) {
	m := NewMapper()
	original := task([]CodeSubtask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"c"}},
		{ID: "c", Dependencies: []string{"a"}},
	})

	repaired := m.ResolveCircularDependencies(original)

	// All members have one outgoing edge, so the first in cycle order
	// loses its edge to its successor.
	require.Empty(t, repaired.DependencyMap["a"])
	require.Equal(t, []string{"c"}, repaired.DependencyMap["b"])
	require.Equal(t, []string{"a"}, repaired.DependencyMap["c"])

	// The input task is untouched.
	require.Equal(t, []string{"b"}, original.DependencyMap["a"])

	// Subtask Dependencies slices track the rewritten map.
	for _, st := range repaired.Subtasks {
		require.Equal(t, repaired.DependencyMap[st.ID], st.Dependencies, "subtask %s", st.ID)
	}

	require.Nil(t, findCycle(repaired.Subtasks, repaired.DependencyMap))
}

func TestResolveCircularDependenciesWeakestLink(t *testing.T) {
	// b is the weakest member of the a->b->a cycle: a has two outgoing
	// edges, b has one. b's edge to a is removed.
	m := NewMapper()
	repaired := m.ResolveCircularDependencies(task([]CodeSubtask{
		{ID: "a", Dependencies: []string{"b", "x"}},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "x"},
	}))

	require.Empty(t, repaired.DependencyMap["b"])
	require.ElementsMatch(t, []string{"b", "x"}, repaired.DependencyMap["a"])
}

func TestResolveCircularDependenciesMultipleCycles(t *testing.T) {
	m := NewMapper()
	repaired := m.ResolveCircularDependencies(task([]CodeSubtask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"d"}},
		{ID: "d", Dependencies: []string{"c"}},
	}))

	require.Nil(t, findCycle(repaired.Subtasks, repaired.DependencyMap))
}

func TestResolveAcyclicIsUnchanged(t *testing.T) {
	m := NewMapper()
	original := task([]CodeSubtask{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
	})

	repaired := m.ResolveCircularDependencies(original)
	require.Equal(t, original.DependencyMap, repaired.DependencyMap)
}

func TestFindCriticalPath(t *testing.T) {
	m := NewMapper()
	// a(100) -> b(200); c(150) is independent and has 150 slack.
	critical := m.FindCriticalPath(task([]CodeSubtask{
		{ID: "a", EstimatedTokens: 100},
		{ID: "b", EstimatedTokens: 200, Dependencies: []string{"a"}},
		{ID: "c", EstimatedTokens: 150},
	}))

	require.Equal(t, []string{"a", "b"}, ids(critical))
}

func TestFindCriticalPathSingleChain(t *testing.T) {
	m := NewMapper()
	critical := m.FindCriticalPath(task([]CodeSubtask{
		{ID: "a", EstimatedTokens: 10},
		{ID: "b", EstimatedTokens: 20, Dependencies: []string{"a"}},
		{ID: "c", EstimatedTokens: 30, Dependencies: []string{"b"}},
	}))

	// A single chain is entirely critical.
	require.Equal(t, []string{"a", "b", "c"}, ids(critical))
}

func TestFindCriticalPathEmpty(t *testing.T) {
	m := NewMapper()
	require.Nil(t, m.FindCriticalPath(task(nil)))
}

func TestFindIndependentPaths(t *testing.T) {
	m := NewMapper()

	t.Run("fully independent", func(t *testing.T) {
		got := m.FindIndependentPaths(task([]CodeSubtask{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
		}))
		// No edges at all collapses into one chain.
		require.Len(t, got.Paths, 1)
		require.InDelta(t, 0.5, got.Score, 1e-9)
	})

	t.Run("dependent chain", func(t *testing.T) {
		// Only direct edges count as related, so a/c and b/d pair up.
		got := m.FindIndependentPaths(task([]CodeSubtask{
			{ID: "a"},
			{ID: "b", Dependencies: []string{"a"}},
			{ID: "c", Dependencies: []string{"b"}},
			{ID: "d", Dependencies: []string{"c"}},
		}))
		require.Len(t, got.Paths, 2)
		require.InDelta(t, 1.0, got.Score, 1e-9)
	})

	t.Run("empty", func(t *testing.T) {
		got := m.FindIndependentPaths(task(nil))
		require.Empty(t, got.Paths)
		require.Zero(t, got.Score)
	})
}

func TestVisualizeDependencies(t *testing.T) {
	m := NewMapper()
	out := m.VisualizeDependencies(task([]CodeSubtask{
		{ID: "a", CodeType: CodeTypeType, EstimatedTokens: 100},
		{ID: "b", CodeType: CodeTypeFunction, EstimatedTokens: 200, Dependencies: []string{"a"}},
	}))

	require.Contains(t, out, "Execution order:")
	require.Contains(t, out, "b -> a")
	require.Contains(t, out, "a -> (none)")
	require.True(t, strings.Index(out, "1. a") < strings.Index(out, "2. b"))
}
