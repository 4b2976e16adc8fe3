package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/apresai/podcaster/internal/llmparse"
)

// anthropicModels maps short model aliases to concrete model IDs. A client
// uses the one model it was constructed with for every call.
var anthropicModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	backoffMult    = 2
	temperature    = 0.7
)

// AnthropicClient implements Client against the Anthropic Messages API:
// per-attempt retry with exponential backoff, scratchpad/markdown-fence
// stripping via llmparse instead of a bespoke cleaner, and an optional
// per-request API key override (BYOK).
type AnthropicClient struct {
	model   string
	apiKey  string
	limiter *rate.Limiter
}

// NewAnthropicClient constructs a Client. model is one of "haiku"/"sonnet";
// apiKey empty means use the ambient ANTHROPIC_API_KEY. limiter paces calls
// ahead of the LLM_WORKERS-bounded semaphore in internal/pipeline, smoothing
// bursts of concurrent phase starts across independent tasks; nil disables
// pacing (used by tests that stub the client directly).
func NewAnthropicClient(model, apiKey string, limiter *rate.Limiter) *AnthropicClient {
	return &AnthropicClient{model: model, apiKey: apiKey, limiter: limiter}
}

func (c *AnthropicClient) client() anthropic.Client {
	if c.apiKey != "" {
		return anthropic.NewClient(option.WithAPIKey(c.apiKey))
	}
	return anthropic.NewClient()
}

func (c *AnthropicClient) modelID() anthropic.Model {
	id := anthropicModels[c.model]
	if id == "" {
		id = anthropicModels["haiku"]
	}
	return anthropic.Model(id)
}

// call runs one prompt through the Messages API with retry, returning the
// raw text response.
func (c *AnthropicClient) call(ctx context.Context, timeout time.Duration, system, user string, maxTokens int64) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	client := c.client()
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if callCtx.Err() != nil {
			return "", callCtx.Err()
		}

		msg, err := client.Messages.New(callCtx, anthropic.MessageNewParams{
			Model:       c.modelID(),
			MaxTokens:   maxTokens,
			Temperature: anthropic.Float(temperature),
			System:      []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("anthropic API error (attempt %d/%d): %w", attempt, maxRetries, err)
		} else if text := extractText(msg); text == "" {
			lastErr = fmt.Errorf("empty response from anthropic (attempt %d/%d)", attempt, maxRetries)
		} else {
			return text, nil
		}

		if attempt < maxRetries {
			select {
			case <-callCtx.Done():
				return "", callCtx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}
	}
	return "", lastErr
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

func (c *AnthropicClient) AnalyzeSource(ctx context.Context, combinedText string) (SourceAnalysis, string, error) {
	system := "You analyse podcast source material. Respond with raw JSON only: " +
		`{"summary_points": ["..."], "detailed_analysis": "..."}`
	user := fmt.Sprintf("Analyse this source material and extract the key points:\n\n%s", truncate(combinedText, 60000))

	text, err := c.call(ctx, ShortCallTimeout, system, user, 4096)
	if err != nil {
		return SourceAnalysis{}, "", err
	}
	var out SourceAnalysis
	res, err := llmparse.Parse(text, &out, map[string]any{"summary_points": []string{}})
	if err != nil {
		return SourceAnalysis{}, "", fmt.Errorf("parse source analysis: %w", err)
	}
	return out, res.Warning, nil
}

func (c *AnthropicClient) ResearchPersona(ctx context.Context, name, sourceContext string) (PersonaProfile, string, error) {
	system := "You research a real, publicly known person for a podcast persona profile. Respond with raw JSON only: " +
		`{"detailed_profile": "...", "gender": "Male|Female|Neutral"}`
	user := fmt.Sprintf("Person: %s\n\nMentioned in this source context:\n%s\n\nWrite a multi-section profile covering background, notable work, and a distinctive speaking style to imitate in dialogue.", name, truncate(sourceContext, 4000))

	text, err := c.call(ctx, LongCallTimeout, system, user, 4096)
	if err != nil {
		return PersonaProfile{}, "", err
	}
	var out PersonaProfile
	res, err := llmparse.Parse(text, &out, map[string]any{"gender": ""})
	if err != nil {
		return PersonaProfile{}, "", fmt.Errorf("parse persona profile for %s: %w", name, err)
	}
	return out, res.Warning, nil
}

func (c *AnthropicClient) GenerateOutline(ctx context.Context, combinedText, analysisSummary string, targetSeconds int, customPrompt string) (OutlineResult, string, error) {
	system := "You plan a timed multi-speaker podcast outline. Respond with raw JSON only: " +
		`{"title_suggestion": "...", "summary_suggestion": "...", "segments": [{"segment_id": "...", "segment_title": "...", "speaker_id": "...", "content_cue": "...", "estimated_duration_seconds": 0}]}`
	var b strings.Builder
	fmt.Fprintf(&b, "Target total duration: %d seconds\n\n", targetSeconds)
	if analysisSummary != "" {
		fmt.Fprintf(&b, "Source analysis:\n%s\n\n", analysisSummary)
	}
	fmt.Fprintf(&b, "Source material:\n%s\n", truncate(combinedText, 40000))
	if customPrompt != "" {
		fmt.Fprintf(&b, "\nAdditional instructions: %s\n", customPrompt)
	}

	text, err := c.call(ctx, LongCallTimeout, system, b.String(), 8192)
	if err != nil {
		return OutlineResult{}, "", err
	}
	var out OutlineResult
	res, err := llmparse.Parse(text, &out, map[string]any{"segments": []OutlineSeg{}})
	if err != nil {
		return OutlineResult{}, "", fmt.Errorf("parse outline: %w", err)
	}
	return out, res.Warning, nil
}

func (c *AnthropicClient) GenerateDialogueSegment(ctx context.Context, prompt string) ([]DialogueTurnResult, string, error) {
	system := "You write natural, speaker-attributed podcast dialogue. Respond with raw JSON only: " +
		`[{"speaker_id": "...", "text": "..."}]`

	text, err := c.call(ctx, ShortCallTimeout, system, prompt, 4096)
	if err != nil {
		return nil, "", err
	}
	var out []DialogueTurnResult
	res, err := llmparse.Parse(text, &out, nil)
	if err != nil {
		return nil, "", fmt.Errorf("parse dialogue segment: %w", err)
	}
	return out, res.Warning, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}

var _ Client = (*AnthropicClient)(nil)
