package cleanup

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func testLayout(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()
	audio := filepath.Join(root, "final.mp3")
	transcript := filepath.Join(root, "transcript.txt")
	logs := filepath.Join(root, "logs")
	segments := filepath.Join(root, "audio_segments")

	writeFile(t, audio, "audio-bytes")
	writeFile(t, transcript, "transcript text")
	writeFile(t, filepath.Join(logs, "llm.log"), "log line")
	writeFile(t, filepath.Join(segments, "turn_001_Host.mp3"), "seg")

	return Layout{
		Root:             root,
		FinalAudioPath:   audio,
		TranscriptPath:   transcript,
		LLMOutputsDir:    logs,
		AudioSegmentsDir: segments,
	}
}

func TestApplyManualRetainsEverything(t *testing.T) {
	layout := testLayout(t)
	m := New(PolicyManual)

	report, err := m.Apply(layout, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.CleanedFiles) != 0 {
		t.Fatalf("expected nothing cleaned under manual policy, got %v", report.CleanedFiles)
	}
	for _, p := range []string{layout.FinalAudioPath, layout.TranscriptPath, layout.LLMOutputsDir, layout.AudioSegmentsDir} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to survive, stat error: %v", p, err)
		}
	}
}

func TestApplyRetainAudioOnlyDeletesOthers(t *testing.T) {
	layout := testLayout(t)
	m := New(PolicyManual)

	report, err := m.Apply(layout, PolicyRetainAudioOnly)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := os.Stat(layout.FinalAudioPath); err != nil {
		t.Errorf("expected audio to survive, got %v", err)
	}
	if _, err := os.Stat(layout.TranscriptPath); !os.IsNotExist(err) {
		t.Errorf("expected transcript to be removed, stat error: %v", err)
	}
	if _, err := os.Stat(layout.LLMOutputsDir); !os.IsNotExist(err) {
		t.Errorf("expected logs dir to be removed, stat error: %v", err)
	}
	if len(report.CleanedFiles) != 3 {
		t.Errorf("expected 3 cleaned paths, got %v", report.CleanedFiles)
	}
	if report.TotalSizeFreed <= 0 {
		t.Errorf("expected non-zero size freed, got %d", report.TotalSizeFreed)
	}
}

func TestApplyOnCompletionDeletesAll(t *testing.T) {
	layout := testLayout(t)
	m := New(PolicyOnCompletion)

	report, err := m.Apply(layout, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.CleanedFiles) != 4 {
		t.Fatalf("expected all 4 paths cleaned, got %v", report.CleanedFiles)
	}
	if len(report.FailedFiles) != 0 {
		t.Fatalf("expected no failures, got %v", report.FailedFiles)
	}
}

func TestApplyMissingPathIsNotAFailure(t *testing.T) {
	layout := testLayout(t)
	layout.LLMOutputsDir = filepath.Join(layout.Root, "does-not-exist")
	m := New(PolicyOnCompletion)

	report, err := m.Apply(layout, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.FailedFiles) != 0 {
		t.Fatalf("missing path should be skipped silently, got failures %v", report.FailedFiles)
	}
}
