package status

import "testing"

func TestCanTransitionForwardOnly(t *testing.T) {
	if !CanTransition(StateQueued, StatePreprocessingSources) {
		t.Fatal("expected queued -> preprocessing_sources to be legal")
	}
	if CanTransition(StateGeneratingOutline, StateQueued) {
		t.Fatal("expected backward transition to be rejected")
	}
	if CanTransition(StateQueued, StateStitchingAudio) {
		t.Fatal("expected skipping transition to be rejected")
	}
}

func TestCanTransitionToTerminalFromAnyNonTerminal(t *testing.T) {
	for _, s := range []State{StateQueued, StateAnalyzingSources, StateGeneratingDialogue, StateStitchingAudio} {
		if !CanTransition(s, StateFailed) {
			t.Fatalf("expected %s -> failed to be legal", s)
		}
		if !CanTransition(s, StateCancelled) {
			t.Fatalf("expected %s -> cancelled to be legal", s)
		}
	}
}

func TestNoTransitionOutOfTerminal(t *testing.T) {
	for _, terminal := range []State{StateCompleted, StateFailed, StateCancelled} {
		if CanTransition(terminal, StatePreprocessingSources) {
			t.Fatalf("expected no transition out of terminal state %s", terminal)
		}
		if CanTransition(terminal, StateFailed) {
			t.Fatalf("expected terminal state %s to reject further failure transition", terminal)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	if err := (Request{}).Validate(); err == nil {
		t.Fatal("expected error for empty request")
	}
	if err := (Request{SourceURLs: []string{"https://example.com"}}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Request{SourcePDFPath: "/tmp/a.pdf"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
