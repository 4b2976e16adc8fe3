package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/podcaster/internal/pipeline"
	"github.com/apresai/podcaster/internal/runner"
	"github.com/apresai/podcaster/internal/status"
)

// TaskManager is the APIFacade's submission path into the TaskRunner: it
// mints a task ID, records the initial StatusStore entry, and hands a
// pipeline.Pipeline run off to runner.Runner. Once Submit accepts an entry,
// all further lifecycle tracking (progress, cancellation, completion) lives
// in status.Store and runner.Runner; TaskManager holds no per-task state of
// its own.
type TaskManager struct {
	store    status.Store
	runner   *runner.Runner
	pipeline *pipeline.Pipeline
	log      *slog.Logger
	baseCtx  context.Context // cancelled on SIGTERM, outlives any single HTTP request
}

// NewTaskManager builds a TaskManager. baseCtx should be cancelled on
// SIGTERM so in-flight pipeline runs see cancellation even after the HTTP
// request that started them has completed.
func NewTaskManager(store status.Store, r *runner.Runner, p *pipeline.Pipeline, logger *slog.Logger, baseCtx context.Context) *TaskManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskManager{store: store, runner: r, pipeline: p, log: logger, baseCtx: baseCtx}
}

// StartTask creates the task's StatusStore record and submits it to the
// TaskRunner. It returns the new task ID immediately; the pipeline run
// itself proceeds asynchronously. If the runner is at capacity, §4.2
// requires the rejection be "surfaced to the client as failed with reason
// 'System at capacity'" rather than left to languish as queued forever (the
// Runner has no internal queue to ever dispatch it), so the task's record
// is transitioned straight to failed and ErrAtCapacity is returned.
func (tm *TaskManager) StartTask(ctx context.Context, req status.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	taskID, err := status.NewTaskID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}

	if _, err := tm.store.Create(ctx, taskID, req); err != nil {
		return "", fmt.Errorf("create task record: %w", err)
	}

	// Derive the run's context from baseCtx (cancelled on SIGTERM, not on
	// HTTP response) while still carrying the request's trace span so the
	// run's spans link back to the submission that started them.
	runCtx := withDetachedSpan(tm.baseCtx, ctx)

	entry := runner.Entry{
		TaskID: taskID,
		Execute: func(runCtx context.Context) {
			tm.runPipeline(runCtx, taskID, req)
		},
	}
	if err := tm.runner.Submit(runCtx, entry); err != nil {
		tm.log.WarnContext(ctx, "task rejected: runner at capacity", "task_id", taskID, "error", err)
		if setErr := tm.store.SetError(ctx, taskID, "System at capacity", "all worker slots are busy; resubmit the request later"); setErr != nil {
			tm.log.ErrorContext(ctx, "failed to record capacity failure", "task_id", taskID, "error", setErr)
		}
		return taskID, err
	}

	return taskID, nil
}

// CancelTask requests cooperative cancellation of a running task. Reports
// whether the task was actually running (as opposed to already finished or
// never started).
func (tm *TaskManager) CancelTask(taskID string) bool {
	return tm.runner.Cancel(taskID)
}

func (tm *TaskManager) runPipeline(ctx context.Context, taskID string, req status.Request) {
	ctx, span := tracer.Start(ctx, "task.run",
		trace.WithAttributes(attribute.String("task_id", taskID)),
	)
	defer span.End()

	log := tm.log.With("task_id", taskID)
	start := time.Now()
	log.InfoContext(ctx, "task starting")

	if err := tm.pipeline.Run(ctx, taskID, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline returned an error")
		log.ErrorContext(ctx, "pipeline run returned an error", "error", err, "elapsed", time.Since(start))
		return
	}

	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "task finished", "elapsed", time.Since(start))
}

// withDetachedSpan builds a context rooted at base (so it shares base's
// cancellation, not reqCtx's) but carrying reqCtx's trace span, matching
// observability.DetachTraceContext's linking behaviour against a caller-
// supplied root instead of always context.Background().
func withDetachedSpan(base, reqCtx context.Context) context.Context {
	sc := trace.SpanContextFromContext(reqCtx)
	if !sc.IsValid() {
		return base
	}
	return trace.ContextWithRemoteSpanContext(base, sc)
}
