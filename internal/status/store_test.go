package status

import (
	"context"
	"testing"
)

func TestMemStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	req := Request{SourceURLs: []string{"https://example.com/a"}}
	ts, err := store.Create(ctx, "task-1", req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ts.Status != StateQueued {
		t.Fatalf("expected queued, got %s", ts.Status)
	}

	if err := store.Update(ctx, "task-1", StatePreprocessingSources, "extracting", 5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.AppendWarning(ctx, "task-1", "source 2 failed"); err != nil {
		t.Fatalf("append warning: %v", err)
	}
	if err := store.SetArtifact(ctx, "task-1", func(f *ArtifactFlags) { f.SourceContentExtracted = true }); err != nil {
		t.Fatalf("set artifact: %v", err)
	}

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProgressPercentage != 5 || len(got.Warnings) != 1 || !got.Artifacts.SourceContentExtracted {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	if err := store.SetEpisode(ctx, "task-1", PodcastEpisode{Title: "Ep"}); err != nil {
		t.Fatalf("set episode: %v", err)
	}
	if err := store.SetEpisode(ctx, "task-1", PodcastEpisode{Title: "Ep2"}); err == nil {
		t.Fatal("expected write-once error on second set_episode")
	}

	for _, s := range []State{StateAnalyzingSources, StateResearchingPersonas, StateGeneratingOutline, StateGeneratingDialogue, StateGeneratingAudioSegments, StateStitchingAudio, StatePostprocessingFinalEpisode} {
		if err := store.Update(ctx, "task-1", s, string(s), 50); err != nil {
			t.Fatalf("update to %s: %v", s, err)
		}
	}
	if err := store.Update(ctx, "task-1", StateCompleted, "done", 100); err != nil {
		t.Fatalf("update to completed: %v", err)
	}
	if err := store.Update(ctx, "task-1", StatePreprocessingSources, "nope", 0); err == nil {
		t.Fatal("expected rejection of transition out of terminal state")
	}
}

func TestMemStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	if _, err := store.Create(ctx, "task-1", Request{SourcePDFPath: "/tmp/a.pdf"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, "task-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "task-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemStoreSetErrorTransitionsToFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	if _, err := store.Create(ctx, "task-1", Request{SourcePDFPath: "/tmp/a.pdf"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SetError(ctx, "task-1", "No Content Extracted", "all sources failed"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StateFailed || got.ErrorDetails == nil || got.ErrorDetails.Title != "No Content Extracted" {
		t.Fatalf("unexpected status after set_error: %+v", got)
	}
}

func TestMemStoreListOrderAndPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := store.Create(ctx, id, Request{SourcePDFPath: "/tmp/a.pdf"}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	all, err := store.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].TaskID != "t3" {
		t.Fatalf("expected newest-first order, got %+v", all)
	}
	page, err := store.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list paginated: %v", err)
	}
	if len(page) != 1 || page[0].TaskID != "t2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
