// Package pipeline implements the Pipeline orchestrator (§4.3): the
// sequential, cancellable eight-phase run that turns a Request into a
// PodcastEpisode, reporting progress through the StatusStore at each
// anchor percentage and delegating every external concern (LLM calls, TTS
// synthesis, voice selection, notification, retention) to its collaborator
// packages.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"go.opentelemetry.io/otel"

	"github.com/apresai/podcaster/internal/audio"
	"github.com/apresai/podcaster/internal/cleanup"
	"github.com/apresai/podcaster/internal/dialogue"
	"github.com/apresai/podcaster/internal/ingest"
	"github.com/apresai/podcaster/internal/llm"
	"github.com/apresai/podcaster/internal/outline"
	"github.com/apresai/podcaster/internal/persona"
	"github.com/apresai/podcaster/internal/status"
	"github.com/apresai/podcaster/internal/voice"
	"github.com/apresai/podcaster/internal/webhook"
)

var tracer = otel.Tracer("github.com/apresai/podcaster/internal/pipeline")

// Anchor progress percentages, in phase order (§4.3).
const (
	pctPreprocessing = 5
	pctAnalyzing     = 15
	pctResearching   = 30
	pctOutline       = 45
	pctDialogue      = 60
	pctAudioStart    = 75
	pctAudioEnd      = 90
	pctStitching     = 90
	pctFinalizing    = 95
	pctCompleted     = 100
)

const defaultTargetSeconds = 300

// Uploader moves a task's final audio file to durable, publicly servable
// storage once synthesis completes, returning the URL that should replace
// the local working-directory path in the persisted episode. A nil
// Uploader on Deps leaves AudioFilepath as the local path, which is the
// right behaviour for the CLI's single-machine runs.
type Uploader interface {
	Upload(ctx context.Context, taskID, path string) (key, url string, err error)
}

// Deps bundles every collaborator the Pipeline depends on. None of these
// are constructed by the Pipeline itself; Deps is wired once at startup by
// cmd/mcp-server and shared across every run the TaskRunner schedules.
type Deps struct {
	LLM      llm.Client
	Voices   *voice.Catalog
	Audio    *audio.Assembler
	Store    status.Store
	Webhook  *webhook.Notifier
	Cleanup  *cleanup.Manager
	Uploader Uploader
	Logger   *slog.Logger

	// OutputRoot is the filesystem directory under which each task gets its
	// own working directory (§6 per-task layout).
	OutputRoot string

	// LLMConcurrency bounds concurrent persona-research and per-segment
	// dialogue-generation calls for a single run.
	LLMConcurrency int
}

// Pipeline runs one task end to end. It holds no per-run state; Run is
// safe to call concurrently for distinct task IDs (the TaskRunner is what
// bounds how many run at once).
type Pipeline struct {
	deps Deps
}

// New builds a Pipeline from its wired dependencies.
func New(deps Deps) *Pipeline {
	if deps.LLMConcurrency < 1 {
		deps.LLMConcurrency = 4
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{deps: deps}
}

// Run executes all eight phases for taskID against req, updating the
// StatusStore as it goes. It always returns nil: terminal failure is
// recorded via Store.SetError, so the TaskRunner's Entry always completes
// cleanly. A failing StatusStore is only logged.
func (p *Pipeline) Run(ctx context.Context, taskID string, req status.Request) (err error) {
	log := p.deps.Logger.With("task_id", taskID)

	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			if len(stack) > 4096 {
				stack = stack[:4096]
			}
			log.Error("pipeline panicked", "panic", r, "stack", stack)
			_ = p.deps.Store.SetError(context.Background(), taskID, "internal error", fmt.Sprintf("panic: %v", r))
			p.notifyTerminal(context.Background(), taskID, status.StateFailed, nil, fmt.Sprintf("panic: %v", r))
		}
	}()

	run := &runState{
		p:       p,
		taskID:  taskID,
		req:     req,
		log:     log,
		workDir: filepath.Join(p.deps.OutputRoot, taskID),
	}

	if cancelErr := run.checkCancel(ctx); cancelErr != nil {
		return nil
	}

	if err := os.MkdirAll(run.workDir, 0o755); err != nil {
		run.fail(ctx, "working directory error", err.Error())
		return nil
	}

	if err := run.phasePreprocess(ctx); err != nil {
		return nil
	}
	if err := run.phaseAnalyze(ctx); err != nil {
		return nil
	}
	if err := run.phaseResearchPersonas(ctx); err != nil {
		return nil
	}
	if err := run.phaseOutline(ctx); err != nil {
		return nil
	}
	if err := run.phaseDialogue(ctx); err != nil {
		return nil
	}
	if err := run.phaseAudio(ctx); err != nil {
		return nil
	}
	run.phaseFinalize(ctx)
	return nil
}

// runState carries one run's accumulated artifacts between phases. It is
// not shared across goroutines beyond the bounded worker pools each phase
// creates internally.
type runState struct {
	p      *Pipeline
	taskID string
	req    status.Request
	log    *slog.Logger

	workDir string

	sources      []sourceResult
	combinedText string
	analysis     llm.SourceAnalysis

	guests      []persona.Research
	host        persona.Research
	personaByID map[string]persona.Research

	outline outline.Outline
	turns   []dialogue.Turn

	warnings []string

	audioResult audio.Result

	// Paths to the per-task intermediate artifacts laid out under workDir
	// per §6, populated as each phase persists its output. Carried into
	// PodcastEpisode.IntermediateArtifacts at finalisation.
	sourceAnalysisPath   string
	personaResearchPaths map[string]string
	outlinePath          string
	dialogueTurnsPath    string
}

type sourceResult struct {
	index       int
	attribution string
	content     *ingest.Content
	err         error
}

// checkCancel reports ctx's error (if any) as a cancellation, recording it
// in the StatusStore and returning a non-nil error so the caller aborts.
func (r *runState) checkCancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		r.log.Info("run cancelled", "error", err)
		_ = r.p.deps.Store.Update(context.Background(), r.taskID, status.StateCancelled, "cancelled", 0)
		r.p.notifyTerminal(context.Background(), r.taskID, status.StateCancelled, nil, "task was cancelled")
		return err
	}
	return nil
}

func (r *runState) fail(ctx context.Context, title, detail string) {
	r.log.Error("run failed", "title", title, "detail", detail)
	_ = r.p.deps.Store.SetError(context.Background(), r.taskID, title, detail)
	r.p.notifyTerminal(context.Background(), r.taskID, status.StateFailed, nil, title+": "+detail)
}

func (r *runState) warn(msg string) {
	r.warnings = append(r.warnings, msg)
	_ = r.p.deps.Store.AppendWarning(context.Background(), r.taskID, msg)
}

func (r *runState) update(state status.State, description string, pct int) {
	if err := r.p.deps.Store.Update(context.Background(), r.taskID, state, description, pct); err != nil {
		r.log.Warn("status update failed", "state", state, "error", err)
	}
}

func (r *runState) setArtifact(set func(*status.ArtifactFlags)) {
	_ = r.p.deps.Store.SetArtifact(context.Background(), r.taskID, set)
}

// writeJSON persists v as an indented JSON file at <workDir>/name, per §6's
// per-task working directory layout. A write failure degrades to a
// warning rather than failing the phase — the in-memory result already
// computed by the phase still flows to the next one; only the derived
// resource backed by this file is unavailable.
func (r *runState) writeJSON(name string, v any) string {
	path := filepath.Join(r.workDir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.warn(fmt.Sprintf("failed to encode %s: %v", name, err))
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.warn(fmt.Sprintf("failed to write %s: %v", name, err))
		return ""
	}
	return path
}

// phasePreprocess is phase 1 (§4.3): classify and extract every source,
// concatenating surviving sources into attribution-prefixed blocks.
// Per-source extraction failures are recorded as warnings; only the
// all-sources-failed case is fatal.
func (r *runState) phasePreprocess(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline.preprocess")
	defer span.End()

	r.update(status.StatePreprocessingSources, "extracting source content", pctPreprocessing)
	if r.checkCancel(ctx) != nil {
		return ctx.Err()
	}

	var refs []string
	if len(r.req.SourceURLs) > 0 {
		refs = append(refs, r.req.SourceURLs...)
	}
	if r.req.SourcePDFPath != "" {
		refs = append(refs, r.req.SourcePDFPath)
	}

	results := make([]sourceResult, len(refs))
	for i, ref := range refs {
		ingester := ingest.NewIngester(ref)
		content, err := ingester.Ingest(ctx, ref)
		results[i] = sourceResult{index: i + 1, attribution: ref, content: content, err: err}
		if err != nil {
			r.warn(fmt.Sprintf("source %d (%s): extraction failed: %v", i+1, ref, err))
		}
	}
	r.sources = results

	var blocks []string
	var attributions []string
	for _, s := range results {
		if s.err != nil || s.content == nil {
			continue
		}
		attributions = append(attributions, s.attribution)
		blocks = append(blocks, fmt.Sprintf("--- SOURCE %d: %s ---\n%s", s.index, s.attribution, s.content.Text))
	}

	if len(blocks) == 0 {
		r.fail(ctx, "source extraction failed", "every source failed to extract; at least one usable source is required")
		return fmt.Errorf("all sources failed")
	}

	r.combinedText = strings.Join(blocks, "\n\n")
	r.setArtifact(func(f *status.ArtifactFlags) { f.SourceContentExtracted = true })
	return nil
}

// phaseAnalyze is phase 2: a single LLM call summarising the combined
// source text.
func (r *runState) phaseAnalyze(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline.analyze")
	defer span.End()

	r.update(status.StateAnalyzingSources, "analyzing source content", pctAnalyzing)
	if r.checkCancel(ctx) != nil {
		return ctx.Err()
	}

	callCtx, cancel := context.WithTimeout(ctx, llm.ShortCallTimeout)
	defer cancel()

	analysis, warn, err := r.p.deps.LLM.AnalyzeSource(callCtx, r.combinedText)
	if err != nil {
		r.fail(ctx, "source analysis failed", err.Error())
		return err
	}
	if warn != "" {
		r.warn(warn)
	}
	r.analysis = analysis
	r.sourceAnalysisPath = r.writeJSON("source_analysis.json", analysis)
	r.setArtifact(func(f *status.ArtifactFlags) { f.SourceAnalysisComplete = true })
	return nil
}

// phaseResearchPersonas is phase 3: one LLM call per prominent person,
// bounded by LLMConcurrency, followed by PersonaAllocator assignment
// (§4.4). A per-persona research failure degrades to a warning and a bare
// profile rather than aborting the run.
func (r *runState) phaseResearchPersonas(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline.research_personas")
	defer span.End()

	r.update(status.StateResearchingPersonas, "researching personas", pctResearching)
	if r.checkCancel(ctx) != nil {
		return ctx.Err()
	}

	inputs := make([]persona.Input, len(r.req.ProminentPersons))

	sem := semaphore.NewWeighted(int64(r.p.deps.LLMConcurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, name := range r.req.ProminentPersons {
		if ctx.Err() != nil {
			mu.Lock()
			r.warnings = append(r.warnings, "persona research cancelled before all personas were submitted")
			mu.Unlock()
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer sem.Release(1)

			snippet := persona.TruncateContext(contextWindow(r.combinedText, name, 280), 280)
			callCtx, cancel := context.WithTimeout(ctx, llm.LongCallTimeout)
			defer cancel()

			profile, warn, err := r.p.deps.LLM.ResearchPersona(callCtx, name, snippet)
			mu.Lock()
			defer mu.Unlock()
			if warn != "" {
				r.warnings = append(r.warnings, warn)
			}
			if err != nil {
				r.warnings = append(r.warnings, fmt.Sprintf("persona research for %q failed: %v; proceeding with a bare profile", name, err))
				profile = llm.PersonaProfile{DetailedProfile: fmt.Sprintf("%s, mentioned in the source material.", name)}
			}
			inputs[i] = persona.Input{
				Name:            name,
				DetailedProfile: profile.DetailedProfile,
				Gender:          persona.Gender(profile.Gender),
				SourceContext:   snippet,
			}
		}(i, name)
	}
	wg.Wait()

	if err := r.p.deps.Voices.Ensure(ctx); err != nil {
		r.warn(fmt.Sprintf("voice catalog unavailable, falling back to backup voices: %v", err))
	}

	guests, host, warns := persona.Allocate(inputs, r.req.HostInventedName, r.req.HostGender, r.p.deps.Voices)
	for _, w := range warns {
		r.warn(w)
	}
	r.guests = guests
	r.host = host

	r.personaByID = make(map[string]persona.Research, len(guests)+1)
	for _, g := range guests {
		r.personaByID[g.PersonID] = g
	}
	r.personaByID[persona.HostPersonaID] = host
	r.personaByID["Host"] = host

	r.personaResearchPaths = make(map[string]string, len(guests)+1)
	for _, g := range append(append([]persona.Research{}, guests...), host) {
		if path := r.writeJSON(fmt.Sprintf("persona_research_%s.json", g.PersonID), g); path != "" {
			r.personaResearchPaths[g.PersonID] = path
		}
	}

	r.setArtifact(func(f *status.ArtifactFlags) { f.PersonaResearchComplete = true })
	return nil
}

// phaseOutline is phase 4: one LLM call producing a candidate outline,
// normalised by DialoguePlanner.Normalize (§4.6).
func (r *runState) phaseOutline(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline.outline")
	defer span.End()

	r.update(status.StateGeneratingOutline, "generating outline", pctOutline)
	if r.checkCancel(ctx) != nil {
		return ctx.Err()
	}

	targetSeconds, ok := outline.ParseDuration(r.req.DesiredLength)
	if !ok {
		targetSeconds = defaultTargetSeconds
	}

	callCtx, cancel := context.WithTimeout(ctx, llm.LongCallTimeout)
	defer cancel()

	raw, warn, err := r.p.deps.LLM.GenerateOutline(callCtx, r.combinedText, r.analysis.DetailedAnalysis, targetSeconds, r.req.OutlinePrompt)
	if err != nil {
		r.fail(ctx, "outline generation failed", err.Error())
		return err
	}
	if warn != "" {
		r.warn(warn)
	}

	segments := make([]outline.Segment, len(raw.Segments))
	for i, s := range raw.Segments {
		segments[i] = outline.Segment{
			SegmentID:                s.SegmentID,
			SegmentTitle:             s.SegmentTitle,
			SpeakerID:                s.SpeakerID,
			ContentCue:               s.ContentCue,
			EstimatedDurationSeconds: s.EstimatedDurationSeconds,
		}
	}

	o, normWarns := outline.Normalize(outline.Outline{
		TitleSuggestion:   raw.TitleSuggestion,
		SummarySuggestion: raw.SummarySuggestion,
		Segments:          segments,
	}, targetSeconds)
	for _, w := range normWarns {
		r.warn(w)
	}
	r.outline = o
	r.outlinePath = r.writeJSON("podcast_outline.json", o)
	r.setArtifact(func(f *status.ArtifactFlags) { f.PodcastOutlineComplete = true })
	return nil
}

// phaseDialogue is phase 5: one LLM call per outline segment, bounded by
// LLMConcurrency, run through DialoguePlanner.PostProcess in outline order
// so turn_id stays globally monotonic (§4.3 phase 5, §4.6).
func (r *runState) phaseDialogue(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline.dialogue")
	defer span.End()

	r.update(status.StateGeneratingDialogue, "generating dialogue", pctDialogue)
	if r.checkCancel(ctx) != nil {
		return ctx.Err()
	}

	others := make([]outline.SpeakerRef, 0, len(r.guests)+1)
	for _, g := range r.guests {
		others = append(others, outline.SpeakerRef{PersonID: g.PersonID, InventedName: g.InventedName})
	}
	others = append(others, outline.SpeakerRef{PersonID: r.host.PersonID, InventedName: r.host.InventedName})

	rawBySegment := make([][]dialogue.RawTurn, len(r.outline.Segments))
	sem := semaphore.NewWeighted(int64(r.p.deps.LLMConcurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, seg := range r.outline.Segments {
		if ctx.Err() != nil {
			mu.Lock()
			r.warnings = append(r.warnings, "dialogue generation cancelled before all segments were submitted")
			mu.Unlock()
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, seg outline.Segment) {
			defer wg.Done()
			defer sem.Release(1)

			var speaker *persona.Research
			if p, ok := r.personaByID[seg.SpeakerID]; ok {
				sp := p
				speaker = &sp
			}
			prompt := outline.BuildSegmentPrompt(outline.SegmentPromptInput{
				Segment:       seg,
				Speaker:       speaker,
				OutlineTitle:  r.outline.TitleSuggestion,
				OutlineTheme:  r.outline.SummarySuggestion,
				OtherSpeakers: others,
				CustomPrompt:  r.req.DialoguePrompt,
			})

			callCtx, cancel := context.WithTimeout(ctx, llm.ShortCallTimeout)
			defer cancel()
			results, warn, err := r.p.deps.LLM.GenerateDialogueSegment(callCtx, prompt)

			mu.Lock()
			defer mu.Unlock()
			if warn != "" {
				r.warnings = append(r.warnings, warn)
			}
			if err != nil {
				r.warnings = append(r.warnings, fmt.Sprintf("segment %q dialogue generation failed: %v; a fallback turn will be used", seg.SegmentID, err))
				rawBySegment[i] = nil
				return
			}
			raw := make([]dialogue.RawTurn, len(results))
			for j, t := range results {
				raw[j] = dialogue.RawTurn{
					SpeakerID:      t.SpeakerID,
					SpeakerGender:  t.SpeakerGender,
					Text:           t.Text,
					SourceMentions: t.SourceMentions,
				}
			}
			rawBySegment[i] = raw
		}(i, seg)
	}
	wg.Wait()

	counter := dialogue.NewCounter()
	var turns []dialogue.Turn
	for i, seg := range r.outline.Segments {
		t, warns := dialogue.PostProcess(rawBySegment[i], seg, r.personaByID, counter)
		turns = append(turns, t...)
		for _, w := range warns {
			r.warn(w)
		}
	}
	r.turns = turns
	r.dialogueTurnsPath = r.writeJSON("dialogue_turns.json", turns)
	r.setArtifact(func(f *status.ArtifactFlags) { f.DialogueScriptComplete = true })
	return nil
}

// phaseAudio is phases 6-7: per-turn TTS synthesis and stitching, both
// implemented inside audio.Assembler.Synthesize. Progress is interpolated
// between pctAudioStart and pctAudioEnd as turns complete.
func (r *runState) phaseAudio(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline.audio")
	defer span.End()

	r.update(status.StateGeneratingAudioSegments, "synthesizing audio segments", pctAudioStart)
	if r.checkCancel(ctx) != nil {
		return ctx.Err()
	}

	backup := func(gender string) (string, float64, float64) {
		entries := voice.BackupVoices(voice.Gender(gender))
		if len(entries) == 0 {
			return "", 1.0, 0.0
		}
		return entries[0].VoiceID, entries[0].SpeakingRate, entries[0].Pitch
	}

	progressFn := audio.ProgressFunc(func(done, total int) {
		if total == 0 {
			return
		}
		pctSpan := pctAudioEnd - pctAudioStart
		pct := pctAudioStart + done*pctSpan/total
		r.update(status.StateGeneratingAudioSegments, fmt.Sprintf("synthesized %d/%d audio segments", done, total), pct)
	})

	result, err := r.p.deps.Audio.Synthesize(ctx, r.turns, r.personaByID, backup, r.workDir, "mp3", progressFn)
	for _, w := range result.Warnings {
		r.warn(w)
	}
	if err != nil {
		r.fail(ctx, "audio synthesis failed", err.Error())
		return err
	}
	r.audioResult = result
	r.setArtifact(func(f *status.ArtifactFlags) {
		f.IndividualAudioSegmentsComplete = true
		f.FinalPodcastAudioAvailable = true
	})

	r.update(status.StateStitchingAudio, "stitching final episode audio", pctStitching)
	return nil
}

// phaseFinalize is phase 8: build the transcript and PodcastEpisode,
// persist them, mark the task Completed, and fire the terminal webhook.
// Unlike the preceding phases, finalize has no fatal failure path of its
// own: once audio exists, a task completes even if transcript writing or
// webhook delivery degrades (recorded as warnings).
func (r *runState) phaseFinalize(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "pipeline.finalize")
	defer span.End()

	r.update(status.StatePostprocessingFinalEpisode, "finalizing episode", pctFinalizing)

	lines := make([]string, 0, len(r.turns))
	for _, t := range r.turns {
		lines = append(lines, dialogue.TranscriptLine(t))
	}
	transcript := strings.Join(lines, "\n")

	transcriptPath := filepath.Join(r.workDir, "transcript.txt")
	if err := os.WriteFile(transcriptPath, []byte(transcript), 0o644); err != nil {
		r.warn(fmt.Sprintf("failed to write transcript file: %v", err))
	} else {
		r.setArtifact(func(f *status.ArtifactFlags) { f.FinalPodcastTranscriptAvailable = true })
	}

	var attributions []string
	for _, s := range r.sources {
		if s.err == nil {
			attributions = append(attributions, s.attribution)
		}
	}

	audioPath := r.audioResult.FinalPath
	if r.p.deps.Uploader != nil {
		if _, url, err := r.p.deps.Uploader.Upload(ctx, r.taskID, r.audioResult.FinalPath); err != nil {
			r.warn(fmt.Sprintf("audio upload failed, episode will reference the local path: %v", err))
		} else {
			audioPath = url
		}
	}

	personas := make([]status.PersonaRecord, 0, len(r.guests)+1)
	for _, g := range append(append([]persona.Research{}, r.guests...), r.host) {
		personas = append(personas, status.PersonaRecord{
			PersonID:        g.PersonID,
			Name:            g.Name,
			InventedName:    g.InventedName,
			Gender:          string(g.Gender),
			DetailedProfile: g.DetailedProfile,
			TTSVoiceID:      g.TTSVoiceID,
			SpeakingRate:    g.TTSVoiceParams.SpeakingRate,
			Pitch:           g.TTSVoiceParams.Pitch,
		})
	}

	episode := status.PodcastEpisode{
		Title:                 r.outline.TitleSuggestion,
		Summary:               r.outline.SummarySuggestion,
		Transcript:            transcript,
		AudioFilepath:         audioPath,
		SourceAttributions:    attributions,
		Warnings:              append([]string{}, r.warnings...),
		Personas:              personas,
		IntermediateArtifacts: intermediateArtifacts(r, transcriptPath),
	}

	if err := r.p.deps.Store.SetEpisode(context.Background(), r.taskID, episode); err != nil {
		r.log.Error("failed to persist episode", "error", err)
	}
	if err := r.p.deps.Store.Update(context.Background(), r.taskID, status.StateCompleted, "completed", pctCompleted); err != nil {
		r.log.Error("failed to mark task completed", "error", err)
	}

	if r.p.deps.Cleanup != nil && r.p.deps.Cleanup.DefaultPolicy == cleanup.PolicyOnCompletion {
		layout := cleanup.Layout{
			Root:             r.workDir,
			FinalAudioPath:   r.audioResult.FinalPath,
			TranscriptPath:   transcriptPath,
			LLMOutputsDir:    filepath.Join(r.workDir, "logs"),
			AudioSegmentsDir: filepath.Join(r.workDir, "audio_segments"),
		}
		if _, err := r.p.deps.Cleanup.Apply(layout, cleanup.PolicyOnCompletion); err != nil {
			r.log.Warn("on-completion cleanup failed", "error", err)
		}
	}

	r.p.notifyTerminal(context.Background(), r.taskID, status.StateCompleted, &episode, "")
}

// intermediateArtifacts collects the paths of every §6 per-task artifact
// that was successfully persisted over the course of the run, keyed the
// way get_task_resource expects to look them up.
func intermediateArtifacts(r *runState, transcriptPath string) map[string]string {
	artifacts := map[string]string{
		"transcript": transcriptPath,
		"audio":      r.audioResult.FinalPath,
	}
	if r.sourceAnalysisPath != "" {
		artifacts["source_analysis"] = r.sourceAnalysisPath
	}
	if r.outlinePath != "" {
		artifacts["outline"] = r.outlinePath
	}
	if r.dialogueTurnsPath != "" {
		artifacts["dialogue_turns"] = r.dialogueTurnsPath
	}
	for personID, path := range r.personaResearchPaths {
		artifacts["persona_research_"+personID] = path
	}
	return artifacts
}

// notifyTerminal builds and fires the terminal-state webhook payload for a
// task, if the request carried a webhook_url (§4.8).
func (p *Pipeline) notifyTerminal(ctx context.Context, taskID string, state status.State, episode *status.PodcastEpisode, errMsg string) {
	if p.deps.Webhook == nil {
		return
	}
	ts, err := p.deps.Store.Get(ctx, taskID)
	if err != nil || ts.RequestData.WebhookURL == "" {
		return
	}

	payload := webhook.Payload{
		TaskID:    taskID,
		Status:    string(state),
		Timestamp: ts.LastUpdatedAt,
		Error:     errMsg,
	}
	if episode != nil {
		payload.Result = &webhook.Result{
			Title:         episode.Title,
			Summary:       episode.Summary,
			AudioFilepath: episode.AudioFilepath,
			HasTranscript: episode.Transcript != "",
			SourceCount:   len(episode.SourceAttributions),
			Warnings:      episode.Warnings,
		}
	}
	p.deps.Webhook.Notify(ctx, ts.RequestData.WebhookURL, payload)
}

// contextWindow returns a snippet of text centered on name's first
// occurrence in combinedText, or the text's head if name is not found.
func contextWindow(combinedText, name string, radius int) string {
	idx := strings.Index(strings.ToLower(combinedText), strings.ToLower(name))
	if idx < 0 {
		if len(combinedText) > radius {
			return combinedText[:radius]
		}
		return combinedText
	}
	start := idx - radius/2
	if start < 0 {
		start = 0
	}
	end := idx + len(name) + radius/2
	if end > len(combinedText) {
		end = len(combinedText)
	}
	return combinedText[start:end]
}
