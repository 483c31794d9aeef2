package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	tr := NewTracker()

	job := tr.CreateJob("implement parser")
	require.NotEmpty(t, job.ID)
	require.Equal(t, StatusQueued, job.Status)
	require.Equal(t, "0%", job.Progress)
	require.False(t, job.StartTime.IsZero())

	tr.UpdateJobProgress(job.ID, "40%", "2m", "llama3:8b")
	got, ok := tr.GetJob(job.ID)
	require.True(t, ok)
	require.Equal(t, StatusInProgress, got.Status)
	require.Equal(t, "40%", got.Progress)
	require.Equal(t, "2m", got.EstimatedTimeRemaining)
	require.Equal(t, "llama3:8b", got.Model)

	tr.CompleteJob(job.ID)
	got, _ = tr.GetJob(job.ID)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "100%", got.Progress)
	require.Empty(t, got.EstimatedTimeRemaining)
}

func TestTerminalStatesAbsorbTransitions(t *testing.T) {
	tests := []struct {
		name     string
		finish   func(tr *Tracker, id string)
		terminal Status
	}{
		{"completed", func(tr *Tracker, id string) { tr.CompleteJob(id) }, StatusCompleted},
		{"cancelled", func(tr *Tracker, id string) { tr.CancelJob(id) }, StatusCancelled},
		{"failed", func(tr *Tracker, id string) { tr.FailJob(id, "model refused") }, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			job := tr.CreateJob("task")
			tt.finish(tr, job.ID)

			// Every further transition is a no-op.
			tr.UpdateJobProgress(job.ID, "50%", "", "")
			tr.CompleteJob(job.ID)
			tr.CancelJob(job.ID)
			tr.FailJob(job.ID, "late failure")

			got, ok := tr.GetJob(job.ID)
			require.True(t, ok)
			require.Equal(t, tt.terminal, got.Status)
		})
	}
}

func TestFailJobRecordsError(t *testing.T) {
	tr := NewTracker()
	job := tr.CreateJob("task")
	tr.FailJob(job.ID, "context deadline exceeded")

	got, _ := tr.GetJob(job.ID)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "context deadline exceeded", got.Error)
}

func TestUnknownJobIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.UpdateJobProgress("missing", "10%", "", "")
	tr.CompleteJob("missing")

	_, ok := tr.GetJob("missing")
	require.False(t, ok)
}

func TestGetJobReturnsCopy(t *testing.T) {
	tr := NewTracker()
	job := tr.CreateJob("task")

	got, _ := tr.GetJob(job.ID)
	got.Status = StatusFailed
	got.Progress = "mutated"

	fresh, _ := tr.GetJob(job.ID)
	require.Equal(t, StatusQueued, fresh.Status)
	require.Equal(t, "0%", fresh.Progress)
}

func TestGetActiveJobs(t *testing.T) {
	tr := NewTracker()
	a := tr.CreateJob("a")
	b := tr.CreateJob("b")
	c := tr.CreateJob("c")

	tr.UpdateJobProgress(b.ID, "10%", "", "")
	tr.CompleteJob(c.ID)

	active := tr.GetActiveJobs()
	require.Len(t, active, 2)
	seen := map[string]bool{}
	for _, j := range active {
		seen[j.ID] = true
	}
	require.True(t, seen[a.ID])
	require.True(t, seen[b.ID])
	require.False(t, seen[c.ID])
}

func TestCleanupCompletedJobs(t *testing.T) {
	tr := NewTracker()

	oldDone := tr.CreateJob("old done")
	tr.CompleteJob(oldDone.ID)
	freshDone := tr.CreateJob("fresh done")
	tr.CompleteJob(freshDone.ID)
	oldActive := tr.CreateJob("old active")

	// Backdate the two old jobs past the cutoff.
	tr.mu.Lock()
	tr.jobs[oldDone.ID].StartTime = time.Now().Add(-48 * time.Hour)
	tr.jobs[oldActive.ID].StartTime = time.Now().Add(-48 * time.Hour)
	tr.mu.Unlock()

	removed := tr.CleanupCompletedJobs(24 * time.Hour)
	require.Equal(t, 1, removed)

	_, ok := tr.GetJob(oldDone.ID)
	require.False(t, ok, "old terminal job must be evicted")
	_, ok = tr.GetJob(freshDone.ID)
	require.True(t, ok, "recent terminal job stays")
	_, ok = tr.GetJob(oldActive.ID)
	require.True(t, ok, "active job is never evicted regardless of age")
}
