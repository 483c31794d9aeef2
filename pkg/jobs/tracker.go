// Package jobs tracks the lifecycle of submitted tasks from queueing to a
// terminal state.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zen-systems/taskgate/pkg/logging"
	"github.com/zen-systems/taskgate/pkg/metrics"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued     Status = "Queued"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether no further transitions are defined from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Job is one tracked unit of submitted work. Owned exclusively by the
// Tracker; callers receive copies.
type Job struct {
	ID                     string    `json:"id"`
	Task                   string    `json:"task"`
	Status                 Status    `json:"status"`
	Progress               string    `json:"progress"` // percent string, e.g. "40%"
	EstimatedTimeRemaining string    `json:"estimated_time_remaining,omitempty"`
	StartTime              time.Time `json:"start_time"`
	Model                  string    `json:"model,omitempty"`
	Error                  string    `json:"error,omitempty"`
}

// Tracker is the process-wide job registry. Construct one and pass it by
// reference; there is no package-level singleton.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	log  zerolog.Logger
}

// NewTracker creates an empty job tracker.
func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]*Job),
		log:  logging.New("jobs"),
	}
}

// CreateJob registers a new queued job and returns a copy of it.
func (t *Tracker) CreateJob(task string) Job {
	job := &Job{
		ID:        uuid.NewString(),
		Task:      task,
		Status:    StatusQueued,
		Progress:  "0%",
		StartTime: time.Now(),
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()

	metrics.ActiveJobs.Inc()
	t.log.Debug().Str("job", job.ID).Msg("job created")
	return *job
}

// UpdateJobProgress moves a job to InProgress and records its progress.
// Safe to call repeatedly; a terminal or unknown job is a logged no-op.
func (t *Tracker) UpdateJobProgress(id, progress, estimatedTimeRemaining, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Status.Terminal() {
		t.logNoop(id, ok, "progress update")
		return
	}
	job.Status = StatusInProgress
	job.Progress = progress
	job.EstimatedTimeRemaining = estimatedTimeRemaining
	if model != "" {
		job.Model = model
	}
}

// CompleteJob moves a job to Completed.
func (t *Tracker) CompleteJob(id string) {
	t.transition(id, StatusCompleted, "")
}

// CancelJob moves a job to Cancelled. It does not interrupt any in-flight
// model call; it only updates tracked state.
func (t *Tracker) CancelJob(id string) {
	t.transition(id, StatusCancelled, "")
}

// FailJob moves a job to Failed and records the error.
func (t *Tracker) FailJob(id string, errMsg string) {
	t.transition(id, StatusFailed, errMsg)
}

func (t *Tracker) transition(id string, to Status, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Status.Terminal() {
		t.logNoop(id, ok, string(to))
		return
	}
	job.Status = to
	if to == StatusCompleted {
		job.Progress = "100%"
		job.EstimatedTimeRemaining = ""
	}
	if errMsg != "" {
		job.Error = errMsg
	}
	metrics.ActiveJobs.Dec()
}

// GetJob returns a copy of the job with the given id.
func (t *Tracker) GetJob(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// GetActiveJobs returns copies of every non-terminal job.
func (t *Tracker) GetActiveJobs() []Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var active []Job
	for _, job := range t.jobs {
		if !job.Status.Terminal() {
			active = append(active, *job)
		}
	}
	return active
}

// CleanupCompletedJobs deletes terminal jobs whose start time is older than
// maxAge. Non-terminal jobs are never evicted. Returns the number removed.
func (t *Tracker) CleanupCompletedJobs(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, job := range t.jobs {
		if job.Status.Terminal() && job.StartTime.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		t.log.Debug().Int("removed", removed).Msg("cleaned up terminal jobs")
	}
	return removed
}

func (t *Tracker) logNoop(id string, known bool, op string) {
	if known {
		t.log.Debug().Str("job", id).Str("op", op).Msg("ignoring transition on terminal job")
	} else {
		t.log.Debug().Str("job", id).Str("op", op).Msg("ignoring transition on unknown job")
	}
}
