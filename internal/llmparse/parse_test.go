package llmparse

import "testing"

type testOutline struct {
	Title    string `json:"title"`
	Segments []struct {
		Title string `json:"title"`
	} `json:"segments"`
}

func TestParseCleanJSON(t *testing.T) {
	var out testOutline
	res, err := Parse(`{"title":"Ep 1","segments":[{"title":"Intro"}]}`, &out, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Warning != "" {
		t.Fatalf("expected no warning for clean JSON, got %q", res.Warning)
	}
	if out.Title != "Ep 1" || len(out.Segments) != 1 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestParseStripsScratchpadAndFences(t *testing.T) {
	raw := "<scratchpad>thinking about it...</scratchpad>\n```json\n{\"title\":\"Ep 2\",\"segments\":[]}\n```"
	var out testOutline
	res, err := Parse(raw, &out, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected a recovery warning when stripping a markdown fence")
	}
	if out.Title != "Ep 2" {
		t.Fatalf("unexpected title: %q", out.Title)
	}
}

func TestParseExtractsFromSurroundingProse(t *testing.T) {
	raw := "Sure, here is the outline:\n\n{\"title\":\"Ep 3\",\"segments\":[{\"title\":\"A\"},{\"title\":\"B\"}]}\n\nLet me know if you'd like changes."
	var out testOutline
	res, err := Parse(raw, &out, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected a recovery warning when trimming surrounding prose")
	}
	if len(out.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(out.Segments))
	}
}

func TestParseDefaultsMissingField(t *testing.T) {
	var out testOutline
	res, err := Parse(`{"segments":[]}`, &out, map[string]any{"title": "Untitled"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Title != "Untitled" {
		t.Fatalf("expected default title, got %q", out.Title)
	}
	if res.Warning == "" {
		t.Fatal("expected a warning for defaulted field")
	}
}

func TestParseFailsOnUnrecoverableGarbage(t *testing.T) {
	var out testOutline
	if _, err := Parse("not json at all, no braces here", &out, nil); err == nil {
		t.Fatal("expected an error for text with no JSON span")
	}
}

func TestParseArrayTopLevel(t *testing.T) {
	var out []struct {
		TurnID int    `json:"turn_id"`
		Text   string `json:"text"`
	}
	_, err := Parse(`[{"turn_id":1,"text":"hi"},{"turn_id":2,"text":"there"}]`, &out, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(out))
	}
}
