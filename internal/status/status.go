// Package status owns the per-task lifecycle record: state machine,
// artifact-availability flags, warnings, and the final episode. The
// StatusStore is the single writer of a task's record during a run; all
// other components observe it through the read interface.
package status

import "time"

// State is a task's lifecycle state.
type State string

const (
	StateQueued                     State = "queued"
	StatePreprocessingSources       State = "preprocessing_sources"
	StateAnalyzingSources           State = "analyzing_sources"
	StateResearchingPersonas        State = "researching_personas"
	StateGeneratingOutline          State = "generating_outline"
	StateGeneratingDialogue         State = "generating_dialogue"
	StateGeneratingAudioSegments    State = "generating_audio_segments"
	StateStitchingAudio             State = "stitching_audio"
	StatePostprocessingFinalEpisode State = "postprocessing_final_episode"
	StateCompleted                  State = "completed"
	StateFailed                     State = "failed"
	StateCancelled                  State = "cancelled"
)

// order gives each non-terminal state its position in the forward chain,
// used to reject backward or skipping transitions other than to a terminal
// state.
var order = map[State]int{
	StateQueued:                     0,
	StatePreprocessingSources:       1,
	StateAnalyzingSources:           2,
	StateResearchingPersonas:        3,
	StateGeneratingOutline:          4,
	StateGeneratingDialogue:         5,
	StateGeneratingAudioSegments:    6,
	StateStitchingAudio:             7,
	StatePostprocessingFinalEpisode: 8,
	StateCompleted:                  9,
}

// IsTerminal reports whether a state is write-once terminal.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether moving from 'from' to 'to' is legal: one
// step forward through the ordered chain, a progress update that stays in
// the current state, or any non-terminal state to failed/cancelled. No
// transition out of a terminal state is ever legal.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	fromN, fromOK := order[from]
	toN, toOK := order[to]
	if !fromOK || !toOK {
		return false
	}
	return toN == fromN || toN == fromN+1
}

// ArtifactFlags tracks which intermediate outputs have been produced.
type ArtifactFlags struct {
	SourceContentExtracted        bool `json:"source_content_extracted"`
	SourceAnalysisComplete        bool `json:"source_analysis_complete"`
	PersonaResearchComplete       bool `json:"persona_research_complete"`
	PodcastOutlineComplete        bool `json:"podcast_outline_complete"`
	DialogueScriptComplete        bool `json:"dialogue_script_complete"`
	IndividualAudioSegmentsComplete bool `json:"individual_audio_segments_complete"`
	FinalPodcastAudioAvailable    bool `json:"final_podcast_audio_available"`
	FinalPodcastTranscriptAvailable bool `json:"final_podcast_transcript_available"`
}

// Request is the caller's submission payload.
type Request struct {
	SourceURLs          []string          `json:"source_urls,omitempty"`
	SourcePDFPath       string            `json:"source_pdf_path,omitempty"`
	ProminentPersons    []string          `json:"prominent_persons,omitempty"`
	DesiredLength       string            `json:"desired_podcast_length,omitempty"`
	OutlinePrompt       string            `json:"custom_outline_prompt,omitempty"`
	DialoguePrompt      string            `json:"custom_dialogue_prompt,omitempty"`
	HostInventedName    string            `json:"host_invented_name,omitempty"`
	HostGender          string            `json:"host_gender,omitempty"`
	WebhookURL          string            `json:"webhook_url,omitempty"`
}

// Validate enforces the submission invariant: at least one source.
func (r Request) Validate() error {
	if len(r.SourceURLs) == 0 && r.SourcePDFPath == "" {
		return ErrNoSource
	}
	return nil
}

// ErrNoSource is returned by Request.Validate when neither a URL nor a PDF
// path is present.
var ErrNoSource = errValidation{"at least one source_url or source_pdf_path is required"}

type errValidation struct{ msg string }

func (e errValidation) Error() string { return e.msg }

// ErrorDetails captures a fatal failure for a task.
type ErrorDetails struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// PersonaRecord is the derived-resource view of one persona's research and
// voice allocation (§4.10's "per-person research" resource), assembled from
// internal/persona.Research once dialogue generation has a full PersonaByID
// map to draw from.
type PersonaRecord struct {
	PersonID        string  `json:"person_id"`
	Name            string  `json:"name"`
	InventedName    string  `json:"invented_name"`
	Gender          string  `json:"gender"`
	DetailedProfile string  `json:"detailed_profile"`
	TTSVoiceID      string  `json:"tts_voice_id"`
	SpeakingRate    float64 `json:"speaking_rate"`
	Pitch           float64 `json:"pitch"`
}

// PodcastEpisode is the final produced artifact.
type PodcastEpisode struct {
	Title               string   `json:"title"`
	Summary              string   `json:"summary"`
	Transcript           string   `json:"transcript"`
	AudioFilepath        string   `json:"audio_filepath"`
	SourceAttributions   []string `json:"source_attributions"`
	Warnings             []string `json:"warnings"`
	Personas              []PersonaRecord   `json:"personas,omitempty"`
	IntermediateArtifacts map[string]string `json:"intermediate_artifacts,omitempty"`
}

// TaskStatus is the durable per-task record.
type TaskStatus struct {
	TaskID             string         `json:"task_id"`
	Status             State          `json:"status"`
	StatusDescription  string         `json:"status_description"`
	ProgressPercentage int            `json:"progress_percentage"`
	RequestData        Request        `json:"request_data"`
	CreatedAt          time.Time      `json:"created_at"`
	LastUpdatedAt      time.Time      `json:"last_updated_at"`
	Artifacts          ArtifactFlags  `json:"artifacts"`
	Warnings           []string       `json:"warnings"`
	ErrorDetails       *ErrorDetails  `json:"error_details"`
	ResultEpisode      *PodcastEpisode `json:"result_episode"`
}
