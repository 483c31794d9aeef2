package depgraph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zen-systems/taskgate/pkg/logging"
	"github.com/zen-systems/taskgate/pkg/metrics"
)

// Mapper analyzes and repairs the dependency graph of a decomposed task.
type Mapper struct {
	log zerolog.Logger
}

// NewMapper creates a dependency mapper.
func NewMapper() *Mapper {
	return &Mapper{log: logging.New("depgraph")}
}

// SortByExecutionOrder returns the subtasks ordered so that every dependency
// precedes its dependents. A node re-entered while still in progress marks a
// cycle; it is logged and skipped rather than failing the sort, since cycles
// are expected to have been repaired upstream.
func (m *Mapper) SortByExecutionOrder(task *DecomposedCodeTask) []CodeSubtask {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(task.Subtasks))
	var order []CodeSubtask

	var visit func(id string)
	visit = func(id string) {
		switch state[id] {
		case visiting:
			m.log.Warn().Str("subtask", id).Msg("cycle detected during sort; skipping re-entry")
			return
		case done:
			return
		}
		state[id] = visiting

		for _, dep := range task.DependencyMap[id] {
			visit(dep)
		}

		state[id] = done
		if st := task.SubtaskByID(id); st != nil {
			order = append(order, *st)
		}
	}

	for _, st := range task.Subtasks {
		visit(st.ID)
	}
	return order
}

// ResolveCircularDependencies detects every cycle in the task's dependency
// graph and breaks each by removing one edge: the outgoing edge of the
// cycle's weakest link, i.e. the member with the fewest outgoing
// dependencies, ties broken by earliest position in the cycle. The returned
// task has its DependencyMap and every subtask's Dependencies rewritten to
// match.
func (m *Mapper) ResolveCircularDependencies(task *DecomposedCodeTask) *DecomposedCodeTask {
	depMap := make(map[string][]string, len(task.DependencyMap))
	for id, deps := range task.DependencyMap {
		depMap[id] = append([]string(nil), deps...)
	}

	for {
		cycle := findCycle(task.Subtasks, depMap)
		if cycle == nil {
			break
		}

		weakest := weakestLink(cycle, depMap)
		successor := cycle[(indexOf(cycle, weakest)+1)%len(cycle)]
		depMap[weakest] = removeString(depMap[weakest], successor)
		m.log.Warn().
			Strs("cycle", cycle).
			Str("removed_from", weakest).
			Str("removed_dep", successor).
			Msg("repaired circular dependency")
		metrics.CycleRepairs.Inc()
	}

	repaired := &DecomposedCodeTask{
		OriginalTask:         task.OriginalTask,
		Subtasks:             make([]CodeSubtask, len(task.Subtasks)),
		TotalEstimatedTokens: task.TotalEstimatedTokens,
		DependencyMap:        depMap,
	}
	copy(repaired.Subtasks, task.Subtasks)
	for i := range repaired.Subtasks {
		repaired.Subtasks[i].Dependencies = append([]string(nil), depMap[repaired.Subtasks[i].ID]...)
	}
	return repaired
}

// findCycle returns the node ids of one cycle in graph order, or nil when
// the graph is acyclic.
func findCycle(subtasks []CodeSubtask, depMap map[string][]string) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(subtasks))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		if state[id] == done {
			return false
		}
		if state[id] == visiting {
			// Trim the path back to where the cycle starts.
			for i, p := range path {
				if p == id {
					cycle = append([]string(nil), path[i:]...)
					return true
				}
			}
			return true
		}

		state[id] = visiting
		path = append(path, id)
		for _, dep := range depMap[id] {
			if visit(dep) {
				return true
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return false
	}

	for _, st := range subtasks {
		if visit(st.ID) {
			return cycle
		}
	}
	return nil
}

// weakestLink picks the cycle member with the fewest outgoing dependencies,
// ties broken by earliest position in the cycle.
func weakestLink(cycle []string, depMap map[string][]string) string {
	weakest := cycle[0]
	minDeps := len(depMap[cycle[0]])
	for _, id := range cycle[1:] {
		if n := len(depMap[id]); n < minDeps {
			weakest = id
			minDeps = n
		}
	}
	return weakest
}

// FindCriticalPath runs the critical path method over the task using
// EstimatedTokens as duration. It returns every zero-slack subtask ordered
// by earliest start.
func (m *Mapper) FindCriticalPath(task *DecomposedCodeTask) []CodeSubtask {
	ordered := m.SortByExecutionOrder(task)
	if len(ordered) == 0 {
		return nil
	}

	duration := func(id string) int {
		if st := task.SubtaskByID(id); st != nil {
			return st.EstimatedTokens
		}
		return 0
	}

	// Forward pass.
	earliestStart := make(map[string]int, len(ordered))
	earliestFinish := make(map[string]int, len(ordered))
	projectDuration := 0
	for _, st := range ordered {
		start := 0
		for _, dep := range task.DependencyMap[st.ID] {
			if earliestFinish[dep] > start {
				start = earliestFinish[dep]
			}
		}
		earliestStart[st.ID] = start
		earliestFinish[st.ID] = start + duration(st.ID)
		if earliestFinish[st.ID] > projectDuration {
			projectDuration = earliestFinish[st.ID]
		}
	}

	// Dependents index for the backward pass.
	dependents := make(map[string][]string, len(ordered))
	for id, deps := range task.DependencyMap {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	// Backward pass in reverse topological order.
	latestStart := make(map[string]int, len(ordered))
	latestFinish := make(map[string]int, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		id := ordered[i].ID
		finish := projectDuration
		for _, dep := range dependents[id] {
			if latestStart[dep] < finish {
				finish = latestStart[dep]
			}
		}
		latestFinish[id] = finish
		latestStart[id] = finish - duration(id)
	}

	var critical []CodeSubtask
	for _, st := range ordered {
		if latestStart[st.ID]-earliestStart[st.ID] == 0 {
			critical = append(critical, st)
		}
	}
	sort.SliceStable(critical, func(i, j int) bool {
		return earliestStart[critical[i].ID] < earliestStart[critical[j].ID]
	})
	return critical
}

// IndependentPaths holds disjoint chains of mutually independent subtasks
// and the parallelization score derived from them.
type IndependentPaths struct {
	Paths [][]CodeSubtask
	Score float64 // [0,1]
}

// FindIndependentPaths greedily grows disjoint chains of subtasks with no
// dependency edge, in either direction, between any two chain members. The
// score estimates how much of the task could run in parallel.
func (m *Mapper) FindIndependentPaths(task *DecomposedCodeTask) IndependentPaths {
	if len(task.Subtasks) == 0 {
		return IndependentPaths{}
	}

	related := func(a, b string) bool {
		return containsString(task.DependencyMap[a], b) || containsString(task.DependencyMap[b], a)
	}

	assigned := make(map[string]bool, len(task.Subtasks))
	var paths [][]CodeSubtask

	for _, seed := range task.Subtasks {
		if assigned[seed.ID] {
			continue
		}
		chain := []CodeSubtask{seed}
		assigned[seed.ID] = true

		for _, candidate := range task.Subtasks {
			if assigned[candidate.ID] {
				continue
			}
			independent := true
			for _, member := range chain {
				if related(member.ID, candidate.ID) {
					independent = false
					break
				}
			}
			if independent {
				chain = append(chain, candidate)
				assigned[candidate.ID] = true
			}
		}
		paths = append(paths, chain)
	}

	denom := math.Ceil(math.Sqrt(float64(len(task.Subtasks))))
	score := math.Min(float64(len(paths))/denom, 1)
	return IndependentPaths{Paths: paths, Score: score}
}

// VisualizeDependencies renders a text report of the execution order and the
// per-node adjacency. Diagnostic only.
func (m *Mapper) VisualizeDependencies(task *DecomposedCodeTask) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Task: %s\n", task.OriginalTask))
	sb.WriteString(fmt.Sprintf("Subtasks: %d, estimated tokens: %d\n\n", len(task.Subtasks), task.TotalEstimatedTokens))

	sb.WriteString("Execution order:\n")
	for i, st := range m.SortByExecutionOrder(task) {
		sb.WriteString(fmt.Sprintf("  %d. %s (%s, complexity %.2f, ~%d tokens)\n",
			i+1, st.ID, st.CodeType, st.Complexity, st.EstimatedTokens))
	}

	sb.WriteString("\nDependencies:\n")
	for _, st := range task.Subtasks {
		deps := task.DependencyMap[st.ID]
		if len(deps) == 0 {
			sb.WriteString(fmt.Sprintf("  %s -> (none)\n", st.ID))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s -> %s\n", st.ID, strings.Join(deps, ", ")))
	}
	return sb.String()
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func containsString(list []string, s string) bool {
	return indexOf(list, s) >= 0
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
