package dialogue

import (
	"testing"

	"github.com/apresai/podcaster/internal/outline"
	"github.com/apresai/podcaster/internal/persona"
)

func TestPostProcessInsertsFallbackTurnWhenEmpty(t *testing.T) {
	counter := NewCounter()
	seg := outline.Segment{SegmentID: "s1", ContentCue: "the history of compilers"}
	turns, warnings := PostProcess(nil, seg, nil, counter)
	if len(turns) != 1 || turns[0].SpeakerID != "Host" {
		t.Fatalf("expected single fallback Host turn, got %+v", turns)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a fallback warning")
	}
}

func TestPostProcessRenumbersGloballyAcrossSegments(t *testing.T) {
	counter := NewCounter()
	seg1 := outline.Segment{SegmentID: "s1"}
	seg2 := outline.Segment{SegmentID: "s2"}

	turns1, _ := PostProcess([]RawTurn{{SpeakerID: "Host", Text: "a"}, {SpeakerID: "Host", Text: "b"}}, seg1, nil, counter)
	turns2, _ := PostProcess([]RawTurn{{SpeakerID: "Host", Text: "c"}}, seg2, nil, counter)

	ids := []int{turns1[0].TurnID, turns1[1].TurnID, turns2[0].TurnID}
	for i, want := range []int{1, 2, 3} {
		if ids[i] != want {
			t.Fatalf("expected turn_id sequence 1,2,3 got %v", ids)
		}
	}
}

func TestPostProcessDefaultsGender(t *testing.T) {
	counter := NewCounter()
	seg := outline.Segment{SegmentID: "s1"}
	personas := map[string]persona.Research{
		"Host": {PersonID: "Host", Gender: persona.GenderMale},
		"ada":  {PersonID: "ada", Gender: persona.GenderFemale},
	}
	turns, warnings := PostProcess([]RawTurn{
		{SpeakerID: "Host", Text: "welcome"},
		{SpeakerID: "Narrator", Text: "narration"},
		{SpeakerID: "ada", Text: "hi"},
		{SpeakerID: "unknown_person", Text: "mystery"},
	}, seg, personas, counter)

	want := map[string]string{
		"Host":          "Male",
		"Narrator":      "Neutral",
		"ada":           "Female",
		"unknown_person": "Neutral",
	}
	for _, turn := range turns {
		if turn.SpeakerGender != want[turn.SpeakerID] {
			t.Errorf("speaker %q: got gender %q, want %q", turn.SpeakerID, turn.SpeakerGender, want[turn.SpeakerID])
		}
	}
	foundUnknownWarning := false
	for _, w := range warnings {
		if w == `unknown speaker_id "unknown_person" with no gender; defaulted to Neutral` {
			foundUnknownWarning = true
		}
	}
	if !foundUnknownWarning {
		t.Fatalf("expected unknown-speaker warning, got %v", warnings)
	}
}

func TestPostProcessDropsEmptyTextTurns(t *testing.T) {
	counter := NewCounter()
	seg := outline.Segment{SegmentID: "s1"}
	turns, warnings := PostProcess([]RawTurn{
		{SpeakerID: "Host", Text: "  "},
		{SpeakerID: "Host", Text: "real line"},
	}, seg, nil, counter)
	if len(turns) != 1 || turns[0].Text != "real line" {
		t.Fatalf("expected empty-text turn dropped, got %+v", turns)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning about the dropped turn")
	}
}
