package runner

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubmitRejectsAtCapacity(t *testing.T) {
	r := New(1, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	err := r.Submit(context.Background(), Entry{
		TaskID: "a",
		Execute: func(ctx context.Context) {
			close(started)
			<-release
		},
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started

	if err := r.Submit(context.Background(), Entry{TaskID: "b", Execute: func(ctx context.Context) {}}); err != ErrAtCapacity {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}

	close(release)
}

func TestCancelStopsRunningTask(t *testing.T) {
	r := New(2, nil)
	var wg sync.WaitGroup
	wg.Add(1)
	cancelled := make(chan struct{})

	err := r.Submit(context.Background(), Entry{
		TaskID: "a",
		Execute: func(ctx context.Context) {
			defer wg.Done()
			<-ctx.Done()
			close(cancelled)
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// give the goroutine a moment to register itself as active
	deadline := time.After(time.Second)
	for {
		if r.Cancel("a") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("task never became active")
		default:
		}
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel did not propagate")
	}
	wg.Wait()

	if r.Cancel("does-not-exist") {
		t.Fatal("expected Cancel to return false for unknown task")
	}
}

func TestQueueStatus(t *testing.T) {
	r := New(3, nil)
	if got := r.QueueStatus(); got.Capacity != 3 || got.Running != 0 || got.Free != 3 {
		t.Fatalf("unexpected initial queue status: %+v", got)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	if err := r.Submit(context.Background(), Entry{TaskID: "a", Execute: func(ctx context.Context) {
		close(started)
		<-release
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	if got := r.QueueStatus(); got.Running != 1 || got.Free != 2 {
		t.Fatalf("unexpected queue status while running: %+v", got)
	}
	close(release)
}
