// Package dialogue holds the DialogueTurn data model and the
// post-processing logic that validates per-segment LLM output, defaults
// missing speaker genders, and renumbers turn_id to a single
// monotonically-increasing sequence across the whole episode.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/apresai/podcaster/internal/outline"
	"github.com/apresai/podcaster/internal/persona"
)

// Turn is one speaker's utterance (§3 DialogueTurn).
type Turn struct {
	TurnID        int      `json:"turn_id"`
	SpeakerID     string   `json:"speaker_id"`
	SpeakerGender string   `json:"speaker_gender"`
	Text          string   `json:"text"`
	SourceMentions []string `json:"source_mentions,omitempty"`
}

// RawTurn is the shape an LLM returns for one turn, before defaulting and
// renumbering — speaker_gender is frequently omitted by the model.
type RawTurn struct {
	SpeakerID      string   `json:"speaker_id"`
	SpeakerGender  string   `json:"speaker_gender,omitempty"`
	Text           string   `json:"text"`
	SourceMentions []string `json:"source_mentions,omitempty"`
}

// Counter is a running, shared turn_id sequence across the whole episode.
type Counter struct{ next int }

// NewCounter starts a Counter at 1, the first valid turn_id.
func NewCounter() *Counter { return &Counter{next: 1} }

// PostProcess validates raw per-segment turns, defaults missing
// speaker_gender from personaByID (when the speaker is absent there: Host ->
// Male, Narrator -> Neutral, else a warning and Neutral default), and assigns globally increasing turn_id
// values via counter. If raw is empty, a single fallback turn is produced
// per §4.3 phase 5.
func PostProcess(raw []RawTurn, seg outline.Segment, personaByID map[string]persona.Research, counter *Counter) ([]Turn, []string) {
	var warnings []string

	if len(raw) == 0 {
		raw = []RawTurn{{
			SpeakerID: "Host",
			Text:      fmt.Sprintf("Let's talk about %s", seg.ContentCue),
		}}
		warnings = append(warnings, fmt.Sprintf("segment %q produced zero turns; inserted fallback turn", seg.SegmentID))
	}

	out := make([]Turn, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Text) == "" {
			warnings = append(warnings, fmt.Sprintf("segment %q: dropped turn with empty text for speaker %q", seg.SegmentID, r.SpeakerID))
			continue
		}
		gender := r.SpeakerGender
		if gender == "" {
			gender, warnings = defaultGender(r.SpeakerID, personaByID, warnings)
		}
		out = append(out, Turn{
			TurnID:         counter.next,
			SpeakerID:      r.SpeakerID,
			SpeakerGender:  gender,
			Text:           r.Text,
			SourceMentions: r.SourceMentions,
		})
		counter.next++
	}

	if len(out) == 0 {
		out = append(out, Turn{
			TurnID:    counter.next,
			SpeakerID: "Host",
			Text:      fmt.Sprintf("Let's talk about %s", seg.ContentCue),
		})
		counter.next++
		warnings = append(warnings, fmt.Sprintf("segment %q: all turns had empty text; inserted fallback turn", seg.SegmentID))
	}

	return out, warnings
}

func defaultGender(speakerID string, personaByID map[string]persona.Research, warnings []string) (string, []string) {
	if p, ok := personaByID[speakerID]; ok {
		return string(p.Gender), warnings
	}
	if speakerID == "Host" {
		return string(persona.GenderMale), warnings
	}
	if speakerID == "Narrator" {
		return string(persona.GenderNeutral), warnings
	}
	warnings = append(warnings, fmt.Sprintf("unknown speaker_id %q with no gender; defaulted to Neutral", speakerID))
	return string(persona.GenderNeutral), warnings
}

// TranscriptLine renders a turn in the "speaker_id: text" transcript format.
func TranscriptLine(t Turn) string {
	return t.SpeakerID + ": " + t.Text
}
