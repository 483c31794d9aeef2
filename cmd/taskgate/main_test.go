package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/taskgate/pkg/coordinator"
	"github.com/zen-systems/taskgate/pkg/depgraph"
	"github.com/zen-systems/taskgate/pkg/jobs"
	"github.com/zen-systems/taskgate/pkg/registry"
)

func TestPrintProcessReport(t *testing.T) {
	tracker := jobs.NewTracker()
	job := tracker.CreateJob("add a parser")
	tracker.UpdateJobProgress(job.ID, "40%", "2m", "llama3:8b")

	subtasks := []depgraph.CodeSubtask{
		{ID: "types", CodeType: depgraph.CodeTypeType, EstimatedTokens: 400},
		{ID: "parser", CodeType: depgraph.CodeTypeFunction, EstimatedTokens: 900,
			Dependencies: []string{"types"}},
	}
	result := &coordinator.ProcessResult{
		JobID: job.ID,
		DecomposedTask: &depgraph.DecomposedCodeTask{
			OriginalTask: "add a parser",
			Subtasks:     subtasks,
		},
		ModelAssignments: map[string]registry.Model{
			"types":  {ID: "phi3:mini-q4", Provider: registry.ProviderLocal},
			"parser": {ID: "llama3:8b", Provider: registry.ProviderLocal},
		},
		ExecutionOrder:          subtasks,
		CriticalPath:            subtasks,
		DependencyVisualization: "types -> parser",
		EstimatedCost:           0,
	}

	var buf bytes.Buffer
	printProcessReport(&buf, result, tracker)
	out := buf.String()

	require.Contains(t, out, job.ID)
	require.Contains(t, out, "types -> parser")
	require.Contains(t, out, "type")
	require.Contains(t, out, "function")
	require.Contains(t, out, "llama3:8b")
	require.Contains(t, out, "InProgress")
	require.Contains(t, out, "40%")
}

func TestPrintJobsTable(t *testing.T) {
	var buf bytes.Buffer
	printJobsTable(&buf, nil)
	require.Equal(t, "No active jobs.\n", buf.String())

	tracker := jobs.NewTracker()
	job := tracker.CreateJob("long task")
	tracker.UpdateJobProgress(job.ID, "10%", "5m", "llama3:8b")

	buf.Reset()
	printJobsTable(&buf, tracker.GetActiveJobs())
	out := buf.String()
	require.Contains(t, out, job.ID)
	require.Contains(t, out, "InProgress")
	require.Contains(t, out, "llama3:8b")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "a long ...", truncate("a long task description", 10))
}
