// Package llmparse implements the single lenient JSON-recovery parser
// described in the design notes: strip scratchpad/markdown wrapping,
// extract the first balanced object or array, validate against a schema,
// and emit a structured warning when recovery was needed. Every structured
// LLM output (SourceAnalysis, PersonaResearch, PodcastOutline,
// DialogueTurn lists) is parsed through this one function rather than a
// bespoke cleaner per call site.
package llmparse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Result carries a recovery warning, if any stripping or patching was needed
// to make the text valid JSON; the parsed value goes into the caller's dst.
type Result struct {
	Warning string
}

var scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)
var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")

// Parse extracts a JSON object or array from raw LLM text and unmarshals it
// into dst. defaults is a map of JSON-pointer-free top-level keys to patch
// in via sjson when gjson reports them missing, before unmarshalling —
// this recovers from a model omitting an optional field rather than
// failing the whole call.
func Parse(raw string, dst any, defaults map[string]any) (Result, error) {
	var res Result

	text := scratchpadRe.ReplaceAllString(raw, "")
	if m := fenceRe.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
		res.Warning = "recovered JSON from markdown code fence"
	}
	text = strings.TrimSpace(text)

	span, spanErr := extractBalancedSpan(text)
	if spanErr != nil {
		return res, fmt.Errorf("no JSON object or array found: %w", spanErr)
	}
	if span != text && res.Warning == "" {
		res.Warning = "recovered JSON by trimming surrounding text"
	}
	text = span

	if !gjson.Valid(text) {
		return res, fmt.Errorf("extracted span is not valid JSON: %s", truncate(text, 300))
	}

	for key, def := range defaults {
		if !gjson.Get(text, key).Exists() {
			defJSON, err := json.Marshal(def)
			if err != nil {
				return res, fmt.Errorf("marshal default for %q: %w", key, err)
			}
			patched, err := sjson.SetRaw(text, key, string(defJSON))
			if err != nil {
				return res, fmt.Errorf("patch missing %q: %w", key, err)
			}
			text = patched
			if res.Warning == "" {
				res.Warning = fmt.Sprintf("defaulted missing field %q", key)
			} else {
				res.Warning += fmt.Sprintf("; defaulted missing field %q", key)
			}
		}
	}

	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return res, fmt.Errorf("invalid JSON: %w (first 300 chars: %s)", err, truncate(text, 300))
	}
	return res, nil
}

// extractBalancedSpan finds the first top-level JSON object or array in
// text using jsonparser to confirm the span parses, preferring whichever of
// '{' / '[' appears first.
func extractBalancedSpan(text string) (string, error) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start := -1
	isObject := true
	switch {
	case objStart < 0 && arrStart < 0:
		return "", fmt.Errorf("no opening brace or bracket")
	case objStart < 0:
		start, isObject = arrStart, false
	case arrStart < 0:
		start, isObject = objStart, true
	case objStart < arrStart:
		start, isObject = objStart, true
	default:
		start, isObject = arrStart, false
	}

	candidate := text[start:]
	span, err := trimToBalanced(candidate, isObject)
	if err != nil {
		return lastBraceFallback(candidate, closeFor(isObject))
	}

	// Confirm the span is actually iterable as the claimed shape before
	// handing it to gjson/json.Unmarshal; catches malformed spans that
	// happened to balance braces inside a string literal boundary error.
	if isObject {
		if err := jsonparser.ObjectEach([]byte(span), func(_ []byte, _ []byte, _ jsonparser.ValueType, _ int) error {
			return nil
		}); err != nil {
			return lastBraceFallback(candidate, closeFor(isObject))
		}
	} else {
		if _, err := jsonparser.ArrayEach([]byte(span), func(_ []byte, _ jsonparser.ValueType, _ int, _ error) {}); err != nil {
			return lastBraceFallback(candidate, closeFor(isObject))
		}
	}
	return span, nil
}

func closeFor(isObject bool) byte {
	if isObject {
		return '}'
	}
	return ']'
}

// trimToBalanced walks candidate counting brace/bracket depth to find the
// matching close, ignoring braces inside string literals.
func trimToBalanced(candidate string, isObject bool) (string, error) {
	open, close := byte('{'), byte('}')
	if !isObject {
		open, close = '[', ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return candidate[:i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced %c%c", open, close)
}

func lastBraceFallback(candidate string, close byte) (string, error) {
	end := strings.LastIndexByte(candidate, rune(close))
	if end < 0 {
		return "", fmt.Errorf("no closing %c found", close)
	}
	return candidate[:end+1], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
