// Package runner owns the bounded worker pool that executes whole pipeline
// runs concurrently: it accepts or rejects submissions against a fixed
// capacity and tracks the per-task cancellation handle a caller needs to
// stop one in flight.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Entry is one pipeline run, as handed to Runner by the orchestrator
// wiring: the Execute func receives a context that is cancelled if the
// caller invokes Cancel(taskID) or the parent context given to Submit is
// cancelled.
type Entry struct {
	TaskID  string
	Execute func(ctx context.Context)
}

// Runner is the TaskRunner (§4.2): a fixed-capacity pool of N concurrent
// pipeline executions. Submissions beyond capacity are rejected immediately
// rather than queued, matching semaphore.Weighted's TryAcquire semantics —
// the caller decides whether to retry later.
type Runner struct {
	sem      *semaphore.Weighted
	capacity int64
	logger   *slog.Logger

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	running int
}

// New builds a Runner with the given fixed capacity (TASK_WORKERS).
func New(capacity int, logger *slog.Logger) *Runner {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		logger:   logger,
		active:   make(map[string]context.CancelFunc),
	}
}

// CanAccept reports whether the pool currently has a free slot, without
// reserving it. Racy by nature (a concurrent Submit can still win or lose
// the slot) but cheap enough for the APIFacade to surface queue_status.
func (r *Runner) CanAccept() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.running) < r.capacity
}

// ErrAtCapacity is returned by Submit when no worker slot is free.
var ErrAtCapacity = fmt.Errorf("task runner is at capacity")

// Submit attempts to start entry immediately. If the pool is at capacity it
// returns ErrAtCapacity without blocking; the entry is not queued. The
// orchestrator's submission path then marks the task failed with
// "System at capacity".
func (r *Runner) Submit(parent context.Context, entry Entry) error {
	if !r.sem.TryAcquire(1) {
		return ErrAtCapacity
	}

	ctx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.active[entry.TaskID] = cancel
	r.running++
	r.mu.Unlock()

	go func() {
		defer func() {
			r.sem.Release(1)
			r.mu.Lock()
			delete(r.active, entry.TaskID)
			r.running--
			r.mu.Unlock()
			cancel()
		}()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("pipeline execution panicked", "task_id", entry.TaskID, "panic", rec)
			}
		}()

		entry.Execute(ctx)
	}()

	return nil
}

// Cancel requests cooperative cancellation of a running task. Returns false
// if taskID is not currently running (already finished, or never started);
// the caller should still mark the stored status cancelled if the task was
// merely queued.
func (r *Runner) Cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.active[taskID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Active returns the task IDs currently occupying a worker slot.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// QueueStatus summarises pool occupancy for the health/queue_status
// resource.
type QueueStatus struct {
	Capacity int `json:"capacity"`
	Running  int `json:"running"`
	Free     int `json:"free"`
}

func (r *Runner) QueueStatus() QueueStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return QueueStatus{
		Capacity: int(r.capacity),
		Running:  r.running,
		Free:     int(r.capacity) - r.running,
	}
}
