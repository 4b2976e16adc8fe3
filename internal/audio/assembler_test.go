package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apresai/podcaster/internal/dialogue"
	"github.com/apresai/podcaster/internal/persona"
	"github.com/apresai/podcaster/internal/tts"
)

type fakeProvider struct {
	failFor map[string]bool
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) DefaultVoices() tts.VoiceMap { return tts.VoiceMap{} }
func (f *fakeProvider) Close() error { return nil }
func (f *fakeProvider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.AudioResult, error) {
	if f.failFor[text] {
		return tts.AudioResult{}, errFail
	}
	return tts.AudioResult{Data: []byte("audio:" + text), Format: tts.FormatMP3}, nil
}

var errFail = &fakeErr{"synthesis failed"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

type fakeStitcher struct {
	gotSegments []string
}

func (f *fakeStitcher) Assemble(ctx context.Context, segments []string, tmpDir string, output string) error {
	f.gotSegments = append([]string{}, segments...)
	return os.WriteFile(output, []byte("final"), 0o644)
}

func TestSynthesizeStitchesInTurnOrder(t *testing.T) {
	provider := &fakeProvider{failFor: map[string]bool{}}
	stitcher := &fakeStitcher{}
	a := New(provider, stitcher, 4, nil)

	turns := []dialogue.Turn{
		{TurnID: 2, SpeakerID: "Host", Text: "second"},
		{TurnID: 1, SpeakerID: "Host", Text: "first"},
		{TurnID: 3, SpeakerID: "Host", Text: "third"},
	}
	personaByID := map[string]persona.Research{
		"Host": {PersonID: "host", TTSVoiceID: "voice-a", TTSVoiceParams: persona.VoiceParams{SpeakingRate: 1.0, Pitch: 0}},
	}
	backup := func(gender string) (string, float64, float64) { return "backup-voice", 1.0, 0 }

	dir := t.TempDir()
	res, err := a.Synthesize(context.Background(), turns, personaByID, backup, dir, "mp3", nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.FinalPath != filepath.Join(dir, "final.mp3") {
		t.Fatalf("unexpected final path: %s", res.FinalPath)
	}
	if len(stitcher.gotSegments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(stitcher.gotSegments))
	}
	for i, want := range []string{"turn_001_Host", "turn_002_Host", "turn_003_Host"} {
		if got := filepath.Base(stitcher.gotSegments[i]); len(got) < len(want) || got[:len(want)] != want {
			t.Fatalf("expected segment %d to be %s, got %v", i, want, stitcher.gotSegments)
		}
	}
}

func TestSynthesizePartialFailureIsWarningNotFatal(t *testing.T) {
	provider := &fakeProvider{failFor: map[string]bool{"bad": true}}
	stitcher := &fakeStitcher{}
	a := New(provider, stitcher, 2, nil)

	turns := []dialogue.Turn{
		{TurnID: 1, SpeakerID: "Host", Text: "good"},
		{TurnID: 2, SpeakerID: "Host", Text: "bad"},
	}
	backup := func(gender string) (string, float64, float64) { return "backup-voice", 1.0, 0 }

	dir := t.TempDir()
	res, err := a.Synthesize(context.Background(), turns, nil, backup, dir, "mp3", nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", res.Warnings)
	}
	if len(stitcher.gotSegments) != 1 {
		t.Fatalf("expected only the surviving segment to be stitched, got %v", stitcher.gotSegments)
	}
}

func TestSynthesizeAllFailuresIsFatal(t *testing.T) {
	provider := &fakeProvider{failFor: map[string]bool{"bad": true}}
	stitcher := &fakeStitcher{}
	a := New(provider, stitcher, 2, nil)

	turns := []dialogue.Turn{{TurnID: 1, SpeakerID: "Host", Text: "bad"}}
	backup := func(gender string) (string, float64, float64) { return "backup-voice", 1.0, 0 }

	dir := t.TempDir()
	_, err := a.Synthesize(context.Background(), turns, nil, backup, dir, "mp3", nil)
	if err == nil {
		t.Fatal("expected error when all turns fail")
	}
}
