package voice

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

type fakeLister struct{ voices []BackendVoice }

func (f fakeLister) ListVoices(ctx context.Context) ([]BackendVoice, error) {
	return f.voices, nil
}

func fakeVoices() []BackendVoice {
	var out []BackendVoice
	names := []string{"Charon", "Fenrir", "Orus", "Puck"}
	for i, n := range names {
		out = append(out, BackendVoice{Name: "en-US-Chirp3-HD-" + n, Gender: GenderMale, LanguageCode: "en-US"})
		_ = i
	}
	fnames := []string{"Leda", "Kore", "Aoede", "Zephyr"}
	for _, n := range fnames {
		out = append(out, BackendVoice{Name: "en-US-Chirp3-HD-" + n, Gender: GenderFemale, LanguageCode: "en-US"})
	}
	return out
}

func TestCatalogRefreshPartitionsAndAssignsCombinations(t *testing.T) {
	dir := t.TempDir()
	cat := New(fakeLister{voices: fakeVoices()}, filepath.Join(dir, "voices.json"), 24*time.Hour)
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	male := cat.VoicesFor(GenderMale)
	female := cat.VoicesFor(GenderFemale)
	neutral := cat.VoicesFor(GenderNeutral)

	if len(male) != 4 || len(female) != 4 {
		t.Fatalf("expected 4 male and 4 female voices, got %d/%d", len(male), len(female))
	}
	if len(neutral) != len(male)+len(female) {
		t.Fatalf("expected neutral bucket drawn evenly from male+female, got %d", len(neutral))
	}

	seen := make(map[string]bool)
	for _, e := range male {
		key := e.VoiceID
		if seen[key] {
			t.Fatalf("duplicate voice id in male bucket: %s", key)
		}
		seen[key] = true
	}
}

func TestCatalogCachePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voices.json")
	cat := New(fakeLister{voices: fakeVoices()}, path, 24*time.Hour)
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	cat2 := New(fakeLister{voices: nil}, path, 24*time.Hour)
	if err := cat2.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure from cache: %v", err)
	}
	if len(cat2.VoicesFor(GenderMale)) == 0 {
		t.Fatal("expected cached voices to load without hitting the backend")
	}
}

func TestBackupVoicesNonEmptyPerGender(t *testing.T) {
	for _, g := range []Gender{GenderMale, GenderFemale, GenderNeutral} {
		if len(BackupVoices(g)) == 0 {
			t.Fatalf("expected backup voices for %s", g)
		}
	}
}
