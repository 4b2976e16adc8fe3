package outline

import (
	"fmt"
	"strings"

	"github.com/apresai/podcaster/internal/persona"
)

// SpeakerRef is a lightweight reference to an available speaker, used when
// listing "other available speakers" in a segment prompt.
type SpeakerRef struct {
	PersonID     string
	InventedName string
}

// SegmentPromptInput bundles everything BuildSegmentPrompt needs.
type SegmentPromptInput struct {
	Segment        Segment
	Speaker        *persona.Research // nil if speaker_id has no persona record (e.g. Narrator)
	OutlineTitle   string
	OutlineTheme   string
	OtherSpeakers  []SpeakerRef
	CustomPrompt   string
}

// BuildSegmentPrompt constructs the per-segment dialogue-generation prompt
// described in §4.6: speaker identity, profile, outline context, content
// cue, target word count, other available speakers, and any custom prompt.
func BuildSegmentPrompt(in SegmentPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "EPISODE: %q\n", in.OutlineTitle)
	if in.OutlineTheme != "" {
		fmt.Fprintf(&b, "THEME: %s\n", in.OutlineTheme)
	}
	b.WriteString("\n")

	if in.Speaker != nil {
		fmt.Fprintf(&b, "SPEAKER: %s (real name: %s)\n", in.Speaker.InventedName, in.Speaker.Name)
		fmt.Fprintf(&b, "PROFILE: %s\n", in.Speaker.DetailedProfile)
	} else {
		fmt.Fprintf(&b, "SPEAKER: %s\n", in.Segment.SpeakerID)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "SEGMENT: %s\n", in.Segment.SegmentTitle)
	fmt.Fprintf(&b, "CONTENT CUE: %s\n", in.Segment.ContentCue)
	fmt.Fprintf(&b, "TARGET WORD COUNT: ~%d words\n\n", in.Segment.TargetWordCount)

	if len(in.OtherSpeakers) > 0 {
		b.WriteString("OTHER AVAILABLE SPEAKERS:\n")
		for _, s := range in.OtherSpeakers {
			fmt.Fprintf(&b, "- %s (id: %s)\n", s.InventedName, s.PersonID)
		}
		b.WriteString("\n")
	}

	if in.CustomPrompt != "" {
		fmt.Fprintf(&b, "ADDITIONAL INSTRUCTIONS: %s\n\n", in.CustomPrompt)
	}

	b.WriteString("Write this segment's dialogue turns as a JSON array of {\"speaker_id\":...,\"text\":...} objects. Output raw JSON only, no markdown fences, no text before or after.")
	return b.String()
}
