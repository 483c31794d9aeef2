package router

import (
	"sync"
	"time"
)

// ModelLoad tracks how much concurrent work is assigned to one model.
type ModelLoad struct {
	ActiveTaskCount    int
	LastAssignmentTime time.Time
}

type pendingDecay struct {
	model  string
	amount int
	timer  *time.Timer
}

// LoadTracker is the shared mutable load state of the router. All
// read-modify-write sequences hold the mutex.
//
// The timer-based decay is an approximation: it fires after a fixed delay
// whether or not the task actually finished. NotifyTaskCompletion is the
// accurate signal and cancels the pending timer when the task id is known.
type LoadTracker struct {
	mu      sync.Mutex
	loads   map[string]*ModelLoad
	pending map[string]*pendingDecay
}

// NewLoadTracker creates an empty load tracker.
func NewLoadTracker() *LoadTracker {
	return &LoadTracker{
		loads:   make(map[string]*ModelLoad),
		pending: make(map[string]*pendingDecay),
	}
}

// Acquire adds amount to a model's load. When taskID is non-empty the decay
// timer is registered under it so NotifyTaskCompletion can cancel it; an
// empty taskID gets a fire-and-forget timer. A zero decay disables the
// timer entirely.
func (lt *LoadTracker) Acquire(modelID string, amount int, decay time.Duration, taskID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	load, ok := lt.loads[modelID]
	if !ok {
		load = &ModelLoad{}
		lt.loads[modelID] = load
	}
	load.ActiveTaskCount += amount
	load.LastAssignmentTime = time.Now()

	if taskID == "" {
		if decay > 0 {
			time.AfterFunc(decay, func() { lt.release(modelID, amount) })
		}
		return
	}

	// A task re-routed before its previous decay fired releases the old
	// hold first.
	if prev, ok := lt.pending[taskID]; ok {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		lt.releaseLocked(prev.model, prev.amount)
		delete(lt.pending, taskID)
	}

	// A zero decay holds until completion is notified.
	p := &pendingDecay{model: modelID, amount: amount}
	if decay > 0 {
		p.timer = time.AfterFunc(decay, func() { lt.expire(taskID) })
	}
	lt.pending[taskID] = p
}

// NotifyTaskCompletion releases the load held for a task immediately and
// cancels its decay timer. It reports whether the task id was known.
func (lt *LoadTracker) NotifyTaskCompletion(taskID string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	p, ok := lt.pending[taskID]
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(lt.pending, taskID)
	lt.releaseLocked(p.model, p.amount)
	return true
}

// Load returns the current load count for a model.
func (lt *LoadTracker) Load(modelID string) int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if load, ok := lt.loads[modelID]; ok {
		return load.ActiveTaskCount
	}
	return 0
}

func (lt *LoadTracker) expire(taskID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	p, ok := lt.pending[taskID]
	if !ok {
		return
	}
	delete(lt.pending, taskID)
	lt.releaseLocked(p.model, p.amount)
}

func (lt *LoadTracker) release(modelID string, amount int) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.releaseLocked(modelID, amount)
}

func (lt *LoadTracker) releaseLocked(modelID string, amount int) {
	load, ok := lt.loads[modelID]
	if !ok {
		return
	}
	load.ActiveTaskCount -= amount
	if load.ActiveTaskCount < 0 {
		load.ActiveTaskCount = 0
	}
}
