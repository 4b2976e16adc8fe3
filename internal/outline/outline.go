// Package outline holds the PodcastOutline data model and the
// DialoguePlanner's outline-validation and normalisation logic: skeleton
// synthesis when empty, duplicate-ID renaming, minimum duration floor,
// proportional scaling, and target_word_count recomputation.
package outline

import "fmt"

// Segment is one block of the outline (§3 OutlineSegment).
type Segment struct {
	SegmentID               string `json:"segment_id"`
	SegmentTitle             string `json:"segment_title"`
	SpeakerID                string `json:"speaker_id"`
	ContentCue               string `json:"content_cue"`
	EstimatedDurationSeconds int    `json:"estimated_duration_seconds"`
	TargetWordCount          int    `json:"target_word_count"`
}

// Outline is the timed plan constraining dialogue generation.
type Outline struct {
	TitleSuggestion   string    `json:"title_suggestion"`
	SummarySuggestion string    `json:"summary_suggestion"`
	Segments          []Segment `json:"segments"`
}

const minSegmentDurationSeconds = 15

// wordsPerMinute is the fixed rate used to recompute target_word_count from
// a segment's duration.
const wordsPerMinute = 150

// Normalize applies §4.6's outline validation rules in order: skeleton
// synthesis when empty, duplicate segment-ID renaming, minimum-duration
// floor, proportional scaling against targetSeconds when off by more than
// 10%, and target_word_count recomputation. Returns the normalised outline
// and any warnings produced along the way.
func Normalize(o Outline, targetSeconds int) (Outline, []string) {
	var warnings []string

	if len(o.Segments) == 0 {
		o = synthesizeSkeleton(o, targetSeconds)
		warnings = append(warnings, "outline had zero segments; synthesized Intro/Body/Conclusion skeleton")
	}

	o.Segments, warnings = renameDuplicateIDs(o.Segments, warnings)

	for i := range o.Segments {
		if o.Segments[i].EstimatedDurationSeconds < minSegmentDurationSeconds {
			o.Segments[i].EstimatedDurationSeconds = minSegmentDurationSeconds
		}
	}

	total := sumDurations(o.Segments)
	tolerance := targetSeconds / 10
	if tolerance < 1 {
		tolerance = 1
	}
	if abs(total-targetSeconds) > tolerance {
		o.Segments = scaleProportionally(o.Segments, targetSeconds)
		if scaled := sumDurations(o.Segments); abs(scaled-targetSeconds) > tolerance {
			warnings = append(warnings, fmt.Sprintf("outline duration %ds still outside tolerance of target %ds after scaling (minimum segment floor of %ds prevented a closer fit)", scaled, targetSeconds, minSegmentDurationSeconds))
		}
	}

	for i := range o.Segments {
		o.Segments[i].TargetWordCount = o.Segments[i].EstimatedDurationSeconds * wordsPerMinute / 60
	}

	return o, warnings
}

func synthesizeSkeleton(o Outline, targetSeconds int) Outline {
	o.Segments = []Segment{
		{SegmentID: "intro", SegmentTitle: "Introduction", SpeakerID: "Host", ContentCue: "welcome and preview the topic", EstimatedDurationSeconds: scalePercent(targetSeconds, 15)},
		{SegmentID: "body", SegmentTitle: "Main Discussion", SpeakerID: "Host", ContentCue: "explore the source material in depth", EstimatedDurationSeconds: scalePercent(targetSeconds, 70)},
		{SegmentID: "conclusion", SegmentTitle: "Conclusion", SpeakerID: "Host", ContentCue: "wrap up and takeaways", EstimatedDurationSeconds: scalePercent(targetSeconds, 15)},
	}
	return o
}

func scalePercent(total, pct int) int {
	v := total * pct / 100
	if v < minSegmentDurationSeconds {
		v = minSegmentDurationSeconds
	}
	return v
}

func renameDuplicateIDs(segments []Segment, warnings []string) ([]Segment, []string) {
	seen := make(map[string]int)
	for i := range segments {
		id := segments[i].SegmentID
		if id == "" {
			id = fmt.Sprintf("segment_%d", i+1)
		}
		seen[id]++
		if seen[id] > 1 {
			renamed := fmt.Sprintf("%s_%d", id, seen[id])
			warnings = append(warnings, fmt.Sprintf("duplicate segment_id %q renamed to %q", id, renamed))
			id = renamed
		}
		segments[i].SegmentID = id
	}
	return segments, warnings
}

func sumDurations(segments []Segment) int {
	total := 0
	for _, s := range segments {
		total += s.EstimatedDurationSeconds
	}
	return total
}

func scaleProportionally(segments []Segment, targetSeconds int) []Segment {
	total := sumDurations(segments)
	if total == 0 {
		return segments
	}
	out := make([]Segment, len(segments))
	for i, s := range segments {
		scaled := s.EstimatedDurationSeconds * targetSeconds / total
		if scaled < minSegmentDurationSeconds {
			scaled = minSegmentDurationSeconds
		}
		s.EstimatedDurationSeconds = scaled
		out[i] = s
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
