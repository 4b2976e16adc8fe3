// Package llm wraps the LLM text-generation service the orchestrator treats
// as an external collaborator (§1): the core only specifies each call's
// prompt semantics and the validation of the structured result it returns.
// Every structured response is parsed through internal/llmparse's single
// lenient recovery parser rather than a bespoke cleaner per call site.
package llm

import (
	"context"
	"time"
)

// SourceAnalysis is the per-combined-source summary produced by one LLM
// call (§3 SourceAnalysis).
type SourceAnalysis struct {
	SummaryPoints    []string `json:"summary_points"`
	DetailedAnalysis string   `json:"detailed_analysis"`
}

// PersonaProfile is what one persona-research LLM call returns, prior to
// PersonaAllocator assigning an invented name and voice.
type PersonaProfile struct {
	DetailedProfile string `json:"detailed_profile"`
	Gender          string `json:"gender,omitempty"`
}

// OutlineResult is the raw shape an outline-generation call returns, before
// DialoguePlanner's Normalize pass.
type OutlineResult struct {
	TitleSuggestion   string          `json:"title_suggestion"`
	SummarySuggestion string          `json:"summary_suggestion"`
	Segments          []OutlineSeg    `json:"segments"`
}

// OutlineSeg mirrors outline.Segment's JSON shape; kept distinct here so
// this package has no dependency on internal/outline, matching the
// single-direction dependency the orchestrator package is free to wire.
type OutlineSeg struct {
	SegmentID                string `json:"segment_id"`
	SegmentTitle             string `json:"segment_title"`
	SpeakerID                string `json:"speaker_id"`
	ContentCue               string `json:"content_cue"`
	EstimatedDurationSeconds int    `json:"estimated_duration_seconds"`
}

// DialogueTurnResult mirrors dialogue.RawTurn's JSON shape.
type DialogueTurnResult struct {
	SpeakerID      string   `json:"speaker_id"`
	SpeakerGender  string   `json:"speaker_gender,omitempty"`
	Text           string   `json:"text"`
	SourceMentions []string `json:"source_mentions,omitempty"`
}

// Timeouts per §5: short analyses get 180s, persona research and outline
// generation (the two calls most likely to need large completions) get up
// to 420s. Dialogue-segment calls share the short-analysis timeout; segment
// prompts are bounded in size by DialoguePlanner's target_word_count.
const (
	ShortCallTimeout = 180 * time.Second
	LongCallTimeout  = 420 * time.Second
)

// Client is the LLM text-generation contract the Pipeline depends on. The
// orchestrator never talks to a specific provider SDK directly; only this
// package's AnthropicClient does.
type Client interface {
	// AnalyzeSource produces a SourceAnalysis from the combined,
	// attribution-prefixed source text.
	AnalyzeSource(ctx context.Context, combinedText string) (SourceAnalysis, string, error)

	// ResearchPersona produces a PersonaProfile for one real-world name,
	// given a snippet of source context it was mentioned in.
	ResearchPersona(ctx context.Context, name, sourceContext string) (PersonaProfile, string, error)

	// GenerateOutline produces a PodcastOutline candidate for DialoguePlanner
	// to validate and normalise.
	GenerateOutline(ctx context.Context, combinedText, analysisSummary string, targetSeconds int, customPrompt string) (OutlineResult, string, error)

	// GenerateDialogueSegment produces the ordered turns for one outline
	// segment, given a fully-built segment prompt (outline.BuildSegmentPrompt).
	GenerateDialogueSegment(ctx context.Context, prompt string) ([]DialogueTurnResult, string, error)
}
