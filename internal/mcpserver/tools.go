package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/podcaster/internal/cleanup"
	"github.com/apresai/podcaster/internal/config"
	"github.com/apresai/podcaster/internal/ingest"
	"github.com/apresai/podcaster/internal/outline"
	"github.com/apresai/podcaster/internal/runner"
	"github.com/apresai/podcaster/internal/status"
)

var tracer = otel.Tracer("github.com/apresai/podcaster/internal/mcpserver")

// Handlers implements the APIFacade's tool handlers, operating on the
// already-wired orchestrator (status.Store, TaskManager, runner.Runner,
// cleanup.Manager) rather than owning any state of its own.
type Handlers struct {
	tasks     *TaskManager
	store     status.Store
	authStore *Store
	runner    *runner.Runner
	cleanup   *cleanup.Manager
	cfg       config.Config
	log       *slog.Logger
}

// NewHandlers builds the tool handler set.
func NewHandlers(tasks *TaskManager, store status.Store, authStore *Store, r *runner.Runner, cleanupMgr *cleanup.Manager, cfg config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, store: store, authStore: authStore, runner: r, cleanup: cleanupMgr, cfg: cfg, log: logger}
}

// ToolDefs returns the MCP tool definitions, in the same order server.go
// registers their handlers in.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		submitPodcastTool(),
		getTaskStatusTool(),
		listTasksTool(),
		cancelTaskTool(),
		deleteTaskTool(),
		getTaskResourceTool(),
		applyCleanupTool(),
		getConfigTool(),
		healthTool(),
	}
}

func submitPodcastTool() mcp.Tool {
	return mcp.Tool{
		Name: "submit_podcast",
		Description: "Submit a new podcast generation task from one or more source URLs and/or a source PDF. " +
			"Starts the asynchronous pipeline (source ingestion, analysis, persona research, outline, dialogue, " +
			"audio synthesis and assembly) and returns a task_id immediately. Poll get_task_status until status " +
			"is 'completed', 'failed', or 'cancelled'.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"source_urls": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "URLs (articles, YouTube videos) to ingest as source material",
				},
				"source_pdf_path": map[string]any{
					"type":        "string",
					"description": "Filesystem path to a source PDF, as an alternative or addition to source_urls",
				},
				"prominent_persons": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Real names of people who should appear as researched personas in the dialogue",
				},
				"desired_podcast_length": map[string]any{
					"type":        "string",
					"description": "Target episode length as a duration like '10 minutes', '90 seconds' or '1.5 hours'; unparseable values fall back to 5 minutes",
				},
				"custom_outline_prompt": map[string]any{
					"type":        "string",
					"description": "Additional instructions steering outline generation",
				},
				"custom_dialogue_prompt": map[string]any{
					"type":        "string",
					"description": "Additional instructions steering dialogue generation",
				},
				"host_invented_name": map[string]any{
					"type":        "string",
					"description": "Invented name for the synthetic Host persona (auto-assigned if omitted)",
				},
				"host_gender": map[string]any{
					"type":        "string",
					"description": "Gender bucket for the Host voice: Male, Female, or Neutral (default Male)",
				},
				"webhook_url": map[string]any{
					"type":        "string",
					"description": "URL to POST a terminal-state notification to once the task completes, fails, or is cancelled",
				},
			},
		},
	}
}

func (h *Handlers) HandleSubmitPodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.submit_podcast")
	defer span.End()

	args := req.GetArguments()
	submission := status.Request{
		SourceURLs:       stringSlice(args["source_urls"]),
		SourcePDFPath:    mcp.ParseString(req, "source_pdf_path", ""),
		ProminentPersons: stringSlice(args["prominent_persons"]),
		DesiredLength:    mcp.ParseString(req, "desired_podcast_length", ""),
		OutlinePrompt:    mcp.ParseString(req, "custom_outline_prompt", ""),
		DialoguePrompt:   mcp.ParseString(req, "custom_dialogue_prompt", ""),
		HostInventedName: mcp.ParseString(req, "host_invented_name", ""),
		HostGender:       mcp.ParseString(req, "host_gender", ""),
		WebhookURL:       mcp.ParseString(req, "webhook_url", ""),
	}

	span.SetAttributes(
		attribute.Int("source_url_count", len(submission.SourceURLs)),
		attribute.Bool("has_pdf", submission.SourcePDFPath != ""),
	)

	taskID, err := h.tasks.StartTask(ctx, submission)
	if err != nil && taskID == "" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start task failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start generation: %v", err)), nil
	}
	if err != nil {
		// ErrAtCapacity: TaskManager.StartTask already transitioned the
		// record to failed (§4.2's "System at capacity"); report that
		// terminal state rather than a queued promise the runner can't keep.
		span.SetAttributes(attribute.String("task_id", taskID))
		span.RecordError(err)
		return jsonResult(map[string]any{
			"task_id": taskID,
			"status":  string(status.StateFailed),
			"message": "System at capacity: all worker slots are currently busy, resubmit later",
		})
	}

	span.SetAttributes(attribute.String("task_id", taskID))
	return jsonResult(map[string]any{
		"task_id": taskID,
		"status":  string(status.StateQueued),
		"message": "podcast generation started, use get_task_status to poll progress",
	})
}

func getTaskStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_task_status",
		Description: "Get the full lifecycle record for a podcast generation task: status, progress percentage, artifact flags, warnings, and the completed episode once available.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"task_id": map[string]any{"type": "string", "description": "The task ID returned from submit_podcast"},
			},
			Required: []string{"task_id"},
		},
	}
}

func (h *Handlers) HandleGetTaskStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_task_status")
	defer span.End()

	taskID := mcp.ParseString(req, "task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	span.SetAttributes(attribute.String("task_id", taskID))

	ts, err := h.store.Get(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		if err == status.ErrNotFound {
			return mcp.NewToolResultError(fmt.Sprintf("task %s not found", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
	}
	return jsonResult(ts)
}

func listTasksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_tasks",
		Description: "List podcast generation tasks, newest first, with pagination.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"limit":  map[string]any{"type": "integer", "description": "Maximum number of results (default 20)", "default": 20},
				"offset": map[string]any{"type": "integer", "description": "Number of results to skip (default 0)", "default": 0},
			},
		},
	}
}

func (h *Handlers) HandleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_tasks")
	defer span.End()

	limit := parseIntParam(req, "limit", 20)
	offset := parseIntParam(req, "offset", 0)
	span.SetAttributes(attribute.Int("limit", limit), attribute.Int("offset", offset))

	items, err := h.store.List(ctx, limit, offset)
	if err != nil {
		span.RecordError(err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	return jsonResult(map[string]any{"tasks": items, "count": len(items)})
}

func cancelTaskTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel_task",
		Description: "Request cooperative cancellation of a running or queued podcast generation task.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"task_id": map[string]any{"type": "string", "description": "The task ID to cancel"},
			},
			Required: []string{"task_id"},
		},
	}
}

func (h *Handlers) HandleCancelTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.cancel_task")
	defer span.End()

	taskID := mcp.ParseString(req, "task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	span.SetAttributes(attribute.String("task_id", taskID))

	wasRunning := h.tasks.CancelTask(taskID)
	if !wasRunning {
		// Not currently occupying a worker slot: still queued, already
		// finished, or unknown. Mark it cancelled if it exists and isn't
		// already terminal, so a merely-queued task doesn't run later.
		if ts, err := h.store.Get(ctx, taskID); err == nil && !ts.Status.IsTerminal() {
			_ = h.store.Update(ctx, taskID, status.StateCancelled, "cancelled before it started running", ts.ProgressPercentage)
		}
	}

	return jsonResult(map[string]any{"task_id": taskID, "was_running": wasRunning})
}

func deleteTaskTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_task",
		Description: "Delete a podcast generation task's lifecycle record. Does not remove the task's working directory; use apply_cleanup for that.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"task_id": map[string]any{"type": "string", "description": "The task ID to delete"},
			},
			Required: []string{"task_id"},
		},
	}
}

func (h *Handlers) HandleDeleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.delete_task")
	defer span.End()

	taskID := mcp.ParseString(req, "task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	span.SetAttributes(attribute.String("task_id", taskID))

	if err := h.store.Delete(ctx, taskID); err != nil {
		span.RecordError(err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}
	return jsonResult(map[string]any{"task_id": taskID, "deleted": true})
}

func getTaskResourceTool() mcp.Tool {
	return mcp.Tool{
		Name: "get_task_resource",
		Description: "Fetch one derived resource for a task: transcript, audio (path/URL), metadata (title/summary/attributions), " +
			"outline, research (per-person persona records), warnings, or logs (working-directory listing).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"task_id":  map[string]any{"type": "string", "description": "The task ID"},
				"resource": map[string]any{"type": "string", "description": "One of: transcript, audio, metadata, outline, research, warnings, logs"},
			},
			Required: []string{"task_id", "resource"},
		},
	}
}

func (h *Handlers) HandleGetTaskResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_task_resource")
	defer span.End()

	taskID := mcp.ParseString(req, "task_id", "")
	resource := mcp.ParseString(req, "resource", "")
	if taskID == "" || resource == "" {
		return mcp.NewToolResultError("task_id and resource are required"), nil
	}
	span.SetAttributes(attribute.String("task_id", taskID), attribute.String("resource", resource))

	ts, err := h.store.Get(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		if err == status.ErrNotFound {
			return mcp.NewToolResultError(fmt.Sprintf("task %s not found", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
	}

	switch resource {
	case "warnings":
		return jsonResult(map[string]any{"task_id": taskID, "warnings": ts.Warnings})
	case "metadata":
		if ts.ResultEpisode == nil {
			return mcp.NewToolResultError("episode metadata not available yet"), nil
		}
		return jsonResult(map[string]any{
			"task_id":             taskID,
			"title":               ts.ResultEpisode.Title,
			"summary":             ts.ResultEpisode.Summary,
			"source_attributions": ts.ResultEpisode.SourceAttributions,
			"personas":            ts.ResultEpisode.Personas,
		})
	case "transcript":
		if !ts.Artifacts.FinalPodcastTranscriptAvailable || ts.ResultEpisode == nil {
			return mcp.NewToolResultError("transcript not available yet"), nil
		}
		return jsonResult(map[string]any{"task_id": taskID, "transcript": ts.ResultEpisode.Transcript})
	case "audio":
		if !ts.Artifacts.FinalPodcastAudioAvailable || ts.ResultEpisode == nil {
			return mcp.NewToolResultError("audio not available yet"), nil
		}
		return jsonResult(map[string]any{"task_id": taskID, "audio_filepath": ts.ResultEpisode.AudioFilepath})
	case "research":
		if ts.ResultEpisode == nil {
			return mcp.NewToolResultError("persona research not available yet"), nil
		}
		return jsonResult(map[string]any{"task_id": taskID, "personas": ts.ResultEpisode.Personas})
	case "outline":
		if !ts.Artifacts.PodcastOutlineComplete {
			return mcp.NewToolResultError("outline not available yet"), nil
		}
		data, err := os.ReadFile(filepath.Join(h.cfg.OutputRoot, taskID, "podcast_outline.json"))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("outline artifact unavailable: %v", err)), nil
		}
		var o outline.Outline
		if err := json.Unmarshal(data, &o); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("outline artifact corrupt: %v", err)), nil
		}
		return jsonResult(map[string]any{"task_id": taskID, "outline": o})
	case "logs":
		entries, err := listWorkDir(filepath.Join(h.cfg.OutputRoot, taskID))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list working directory: %v", err)), nil
		}
		return jsonResult(map[string]any{"task_id": taskID, "files": entries})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource %q: must be transcript, audio, metadata, outline, research, warnings, or logs", resource)), nil
	}
}

func applyCleanupTool() mcp.Tool {
	return mcp.Tool{
		Name: "apply_cleanup",
		Description: "Apply retention policy to a task's working directory, removing artifact categories the policy does not retain. " +
			"There is no background sweeper; cleanup only happens when this tool (or the on-completion policy) is invoked.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"task_id": map[string]any{"type": "string", "description": "The task ID"},
				"policy": map[string]any{
					"type":        "string",
					"description": "Override the server default policy for this call only: manual, auto_after_hours, auto_after_days, retain_audio_only, on_completion",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

func (h *Handlers) HandleApplyCleanup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.apply_cleanup")
	defer span.End()

	taskID := mcp.ParseString(req, "task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	override := cleanup.Policy(mcp.ParseString(req, "policy", ""))
	span.SetAttributes(attribute.String("task_id", taskID), attribute.String("policy", string(override)))

	ts, err := h.store.Get(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		if err == status.ErrNotFound {
			return mcp.NewToolResultError(fmt.Sprintf("task %s not found", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
	}

	workDir := filepath.Join(h.cfg.OutputRoot, taskID)
	layout := cleanup.Layout{
		Root:             workDir,
		TranscriptPath:   filepath.Join(workDir, "transcript.txt"),
		LLMOutputsDir:    filepath.Join(workDir, "logs"),
		AudioSegmentsDir: filepath.Join(workDir, "audio_segments"),
	}
	if ts.ResultEpisode != nil {
		layout.FinalAudioPath = ts.ResultEpisode.IntermediateArtifacts["audio"]
	}

	report, err := h.cleanup.Apply(layout, override)
	if err != nil {
		span.RecordError(err)
		return mcp.NewToolResultError(fmt.Sprintf("cleanup failed: %v", err)), nil
	}
	return jsonResult(report)
}

func getConfigTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_config",
		Description: "Return server configuration: supported source input types, the default cleanup retention policy, and runtime concurrency limits.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}
}

func (h *Handlers) HandleGetConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"supported_input_types": []string{
			string(ingest.SourceURL), string(ingest.SourceYouTube), string(ingest.SourcePDF), string(ingest.SourceText),
		},
		"cleanup_default_policy": h.cfg.CleanupDefaultPolicy,
		"runtime_limits": map[string]any{
			"task_workers":            h.cfg.TaskWorkers,
			"tts_workers":             h.cfg.TTSWorkers,
			"llm_workers":             h.cfg.LLMWorkers,
			"voice_cache_ttl_seconds": int(h.cfg.VoiceCacheTTL.Seconds()),
			"webhook_max_retries":     h.cfg.WebhookMaxRetries,
		},
	})
}

func healthTool() mcp.Tool {
	return mcp.Tool{
		Name:        "health",
		Description: "Report overall server health: task runner queue occupancy and TTS worker concurrency.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}
}

func (h *Handlers) HandleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	qs := h.runner.QueueStatus()
	return jsonResult(map[string]any{
		"status":           "ok",
		"queue_status":     qs,
		"tts_worker_limit": h.cfg.TTSWorkers,
	})
}

func listWorkDir(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				rel = path
			}
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}
