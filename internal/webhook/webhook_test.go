package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifySucceedsOnFirstAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if p.TaskID != "task-1" {
			t.Errorf("unexpected task_id: %s", p.TaskID)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(nil)
	n.Notify(context.Background(), srv.URL, Payload{TaskID: "task-1", Status: "completed", Timestamp: time.Now()})

	if hits != 1 {
		t.Fatalf("expected exactly 1 request, got %d", hits)
	}
}

func TestNotifyRetriesOnNon2xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(nil)
	n.Notify(context.Background(), srv.URL, Payload{TaskID: "task-2", Status: "failed", Timestamp: time.Now()})

	if hits != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits)
	}
}

func TestNotifyGivesUpAfterMaxAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := New(nil)
	n.Notify(context.Background(), srv.URL, Payload{TaskID: "task-3", Status: "failed", Timestamp: time.Now()})

	if hits != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, hits)
	}
}

func TestNotifyNoopWithoutURL(t *testing.T) {
	n := New(nil)
	// Must not panic or block; there is nothing to assert beyond completion.
	n.Notify(context.Background(), "", Payload{TaskID: "task-4"})
}
