package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	elevenLabsDefaultVoice1 = "JBFqnCBsd6RMkjVDRZzb" // George
	elevenLabsDefaultVoice2 = "EXAVITQu4vr4xnSDxMaL" // Sarah
	elevenLabsDefaultVoice3 = "onwK4e9ZLuTAKqWW03F9" // Daniel

	elevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	elevenLabsOutputFormat = "mp3_44100_128"
)

type elevenLabsRequest struct {
	Text          string                 `json:"text"`
	ModelID       string                 `json:"model_id"`
	VoiceSettings *elevenLabsVoiceTuning `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceTuning struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// ElevenLabsProvider implements Provider against ElevenLabs' per-segment
// text-to-speech endpoint. Unlike a fixed two-host client, it resolves a
// voice ID per call, since AudioAssembler assigns one per persona rather
// than per a hardcoded host slot.
type ElevenLabsProvider struct {
	voices     VoiceMap
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewElevenLabsProvider builds an ElevenLabs-backed Provider. voice1-3 seed
// the legacy VoiceMap returned by DefaultVoices; AudioAssembler resolves
// its own per-turn voice IDs independently of that map.
func NewElevenLabsProvider(voice1, voice2, voice3 string, cfg ProviderConfig) *ElevenLabsProvider {
	v1, v2, v3 := elevenLabsDefaultVoice1, elevenLabsDefaultVoice2, elevenLabsDefaultVoice3
	if voice1 != "" {
		v1 = voice1
	}
	if voice2 != "" {
		v2 = voice2
	}
	if voice3 != "" {
		v3 = voice3
	}

	model := elevenLabsDefaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return &ElevenLabsProvider{
		voices: VoiceMap{
			Host1: Voice{ID: v1, Name: "George", Provider: "elevenlabs"},
			Host2: Voice{ID: v2, Name: "Sarah", Provider: "elevenlabs"},
			Host3: Voice{ID: v3, Name: "Daniel", Provider: "elevenlabs"},
		},
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) DefaultVoices() VoiceMap { return p.voices }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	data, err := p.synthesize(ctx, text, voice.ID, 1.0)
	if err != nil {
		return AudioResult{}, err
	}
	return AudioResult{Data: data, Format: FormatMP3}, nil
}

// SynthesizeParams lets AudioAssembler pass a persona's VoiceCatalog
// (speaking_rate, pitch) combination; ElevenLabs has no pitch control, so
// only speed is honoured.
func (p *ElevenLabsProvider) SynthesizeParams(ctx context.Context, text, voiceID string, rate, _ float64) (AudioResult, error) {
	if rate == 0 {
		rate = 1.0
	}
	data, err := p.synthesize(ctx, text, voiceID, rate)
	if err != nil {
		return AudioResult{}, err
	}
	return AudioResult{Data: data, Format: FormatMP3}, nil
}

func (p *ElevenLabsProvider) synthesize(ctx context.Context, text, voiceID string, speed float64) ([]byte, error) {
	var data []byte
	err := WithRetry(ctx, func() error {
		out, err := p.doSynthesize(ctx, text, voiceID, speed)
		if err != nil {
			return err
		}
		data = out
		return nil
	})
	return data, err
}

func (p *ElevenLabsProvider) doSynthesize(ctx context.Context, text, voiceID string, speed float64) ([]byte, error) {
	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &elevenLabsVoiceTuning{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			UseSpeakerBoost: true,
			Speed:           speed,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s?output_format=%s", elevenLabsAPIBaseURL, voiceID, elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		errBody, _ := io.ReadAll(res.Body)
		return nil, &RetryableError{StatusCode: res.StatusCode, Body: string(errBody)}
	}
	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("ElevenLabs API error (status %d): %s", res.StatusCode, string(errBody))
	}

	return io.ReadAll(res.Body)
}

func (p *ElevenLabsProvider) Close() error { return nil }

func elevenLabsAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: elevenLabsDefaultVoice1, Name: "George", Gender: "male", Description: "Warm, resonant narrator", DefaultFor: "Voice 1"},
		{ID: elevenLabsDefaultVoice2, Name: "Sarah", Gender: "female", Description: "Clear, professional", DefaultFor: "Voice 2"},
		{ID: elevenLabsDefaultVoice3, Name: "Daniel", Gender: "male", Description: "Deep, authoritative", DefaultFor: "Voice 3"},
	}
}
