package outline

import "testing"

func TestNormalizeSynthesizesSkeletonWhenEmpty(t *testing.T) {
	o, warnings := Normalize(Outline{TitleSuggestion: "Ep"}, 180)
	if len(o.Segments) != 3 {
		t.Fatalf("expected 3-segment skeleton, got %d", len(o.Segments))
	}
	foundSkeletonWarning := false
	for _, w := range warnings {
		if w == "outline had zero segments; synthesized Intro/Body/Conclusion skeleton" {
			foundSkeletonWarning = true
		}
	}
	if !foundSkeletonWarning {
		t.Fatalf("expected skeleton warning, got %v", warnings)
	}
}

func TestNormalizeKeepsSingleWellFormedSegment(t *testing.T) {
	o := Outline{Segments: []Segment{
		{SegmentID: "s1", SegmentTitle: "Whole show", EstimatedDurationSeconds: 180},
	}}
	out, _ := Normalize(o, 180)
	if len(out.Segments) != 1 {
		t.Fatalf("expected a single non-empty segment to be accepted as-is, got %d segments", len(out.Segments))
	}
}

func TestNormalizeRenamesDuplicateIDs(t *testing.T) {
	o := Outline{Segments: []Segment{
		{SegmentID: "a", EstimatedDurationSeconds: 60},
		{SegmentID: "a", EstimatedDurationSeconds: 60},
	}}
	out, warnings := Normalize(o, 120)
	if out.Segments[0].SegmentID == out.Segments[1].SegmentID {
		t.Fatalf("expected duplicate ids to be renamed, got %q twice", out.Segments[0].SegmentID)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning about the renamed duplicate")
	}
}

func TestNormalizeEnforcesMinimumDuration(t *testing.T) {
	o := Outline{Segments: []Segment{{SegmentID: "a", EstimatedDurationSeconds: 3}}}
	out, _ := Normalize(o, 15)
	if out.Segments[0].EstimatedDurationSeconds < minSegmentDurationSeconds {
		t.Fatalf("expected minimum duration floor, got %d", out.Segments[0].EstimatedDurationSeconds)
	}
}

func TestNormalizeScalesWhenOffByMoreThanTenPercent(t *testing.T) {
	o := Outline{Segments: []Segment{
		{SegmentID: "a", EstimatedDurationSeconds: 100},
		{SegmentID: "b", EstimatedDurationSeconds: 100},
	}}
	out, _ := Normalize(o, 400) // total 200, target 400: off by 100%
	total := 0
	for _, s := range out.Segments {
		total += s.EstimatedDurationSeconds
	}
	if abs(total-400) > 40 {
		t.Fatalf("expected scaled total near target, got %d", total)
	}
}

func TestNormalizeLeavesDurationWhenWithinTolerance(t *testing.T) {
	o := Outline{Segments: []Segment{
		{SegmentID: "a", EstimatedDurationSeconds: 95},
		{SegmentID: "b", EstimatedDurationSeconds: 95},
	}}
	out, warnings := Normalize(o, 190)
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when already within tolerance, got %v", warnings)
	}
	if out.Segments[0].EstimatedDurationSeconds != 95 || out.Segments[1].EstimatedDurationSeconds != 95 {
		t.Fatalf("expected durations unchanged, got %+v", out.Segments)
	}
}

func TestNormalizeRecomputesWordCount(t *testing.T) {
	o := Outline{Segments: []Segment{{SegmentID: "a", EstimatedDurationSeconds: 60}}}
	out, _ := Normalize(o, 60)
	if out.Segments[0].TargetWordCount != 150 {
		t.Fatalf("expected 150 words for 60s at 150wpm, got %d", out.Segments[0].TargetWordCount)
	}
}

func TestParseDurationVariants(t *testing.T) {
	cases := map[string]int{
		"5 minutes":  300,
		"2 mins":     120,
		"1.5 hours":  5400,
		"90 seconds": 90,
	}
	for in, want := range cases {
		got, ok := ParseDuration(in)
		if !ok {
			t.Errorf("ParseDuration(%q): expected ok=true", in)
		}
		if got != want {
			t.Errorf("ParseDuration(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseDurationFallsBackOnGarbage(t *testing.T) {
	got, ok := ParseDuration("a very long time")
	if ok {
		t.Fatal("expected ok=false for unparseable duration")
	}
	if got != defaultDurationSeconds {
		t.Fatalf("expected fallback %d, got %d", defaultDurationSeconds, got)
	}
}
