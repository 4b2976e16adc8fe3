package tts

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/apresai/podcaster/internal/voice"
)

const (
	googleDefaultVoice1 = "en-US-Chirp3-HD-Charon"
	googleDefaultVoice2 = "en-US-Chirp3-HD-Leda"
	googleDefaultVoice3 = "en-US-Chirp3-HD-Fenrir"
)

// GoogleProvider implements Provider using Google Cloud TTS (Chirp 3 HD).
type GoogleProvider struct {
	voices VoiceMap
	client *texttospeech.Client
	speed  float64
	pitch  float64
}

func NewGoogleProvider(voice1, voice2, voice3 string, cfg ProviderConfig) (*GoogleProvider, error) {
	v1 := googleDefaultVoice1
	v2 := googleDefaultVoice2
	v3 := googleDefaultVoice3
	if voice1 != "" {
		v1 = voice1
	}
	if voice2 != "" {
		v2 = voice2
	}
	if voice3 != "" {
		v3 = voice3
	}

	client, err := texttospeech.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("create Google TTS client: %w", err)
	}

	return &GoogleProvider{
		voices: VoiceMap{
			Host1: Voice{ID: v1, Name: "Charon"},
			Host2: Voice{ID: v2, Name: "Leda"},
			Host3: Voice{ID: v3, Name: "Fenrir"},
		},
		client: client,
		speed:  cfg.Speed,
		pitch:  cfg.Pitch,
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) DefaultVoices() VoiceMap {
	return VoiceMap{
		Host1: Voice{ID: googleDefaultVoice1, Name: "Charon"},
		Host2: Voice{ID: googleDefaultVoice2, Name: "Leda"},
		Host3: Voice{ID: googleDefaultVoice3, Name: "Fenrir"},
	}
}

func (p *GoogleProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	start := time.Now()
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
			Name:         voice.ID,
		},
		AudioConfig: p.audioConfig(),
	}

	resp, err := p.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return AudioResult{}, fmt.Errorf("Google TTS synthesize: %w", err)
	}

	fmt.Fprintf(os.Stderr, "    Google TTS: %d chars → %d bytes (%s)\n", len(text), len(resp.AudioContent), time.Since(start).Round(time.Millisecond))
	return AudioResult{Data: resp.AudioContent, Format: FormatMP3}, nil
}

func (p *GoogleProvider) audioConfig() *texttospeechpb.AudioConfig {
	cfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	if p.speed != 0 {
		cfg.SpeakingRate = p.speed
	}
	if p.pitch != 0 {
		cfg.Pitch = p.pitch
	}
	return cfg
}

func (p *GoogleProvider) Close() error { return p.client.Close() }

// SynthesizeParams synthesizes text with an explicit voice ID and
// (speaking_rate, pitch) pair, overriding the provider's fixed defaults.
// This is the path the podcast orchestrator's AudioAssembler uses: each
// persona carries its own VoiceCatalog-assigned combination rather than the
// provider-wide speed/pitch used by the one-shot two-host CLI flow.
func (p *GoogleProvider) SynthesizeParams(ctx context.Context, text, voiceID string, rate, pitch float64) (AudioResult, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageCodeForVoice(voiceID),
			Name:         voiceID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  rate,
			Pitch:         pitch,
		},
	}
	resp, err := p.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return AudioResult{}, fmt.Errorf("Google TTS synthesize: %w", err)
	}
	return AudioResult{Data: resp.AudioContent, Format: FormatMP3}, nil
}

// ListVoices implements voice.Lister, querying the TTS backend for all
// English-family voices so VoiceCatalog.Refresh can partition and select
// from the live inventory rather than a hardcoded list.
func (p *GoogleProvider) ListVoices(ctx context.Context) ([]voice.BackendVoice, error) {
	resp, err := p.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: "en"})
	if err != nil {
		return nil, fmt.Errorf("list Google TTS voices: %w", err)
	}

	var out []voice.BackendVoice
	for _, v := range resp.Voices {
		gender := ssmlGenderToCatalog(v.SsmlGender)
		if gender == "" {
			continue
		}
		for _, lc := range v.LanguageCodes {
			if !strings.HasPrefix(lc, "en-") {
				continue
			}
			out = append(out, voice.BackendVoice{
				Name:         v.Name,
				Gender:       gender,
				LanguageCode: lc,
			})
		}
	}
	return out, nil
}

func ssmlGenderToCatalog(g texttospeechpb.SsmlVoiceGender) voice.Gender {
	switch g {
	case texttospeechpb.SsmlVoiceGender_MALE:
		return voice.GenderMale
	case texttospeechpb.SsmlVoiceGender_FEMALE:
		return voice.GenderFemale
	default:
		return ""
	}
}

// languageCodeForVoice derives the BCP-47 language code a Google TTS voice
// name is scoped to (e.g. "en-US-Chirp3-HD-Charon" -> "en-US"); falls back
// to en-US for names that don't follow the convention.
func languageCodeForVoice(voiceID string) string {
	parts := strings.SplitN(voiceID, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

func googleAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "en-US-Chirp3-HD-Charon", Name: "Charon", Gender: "male", Description: "Informative, clear male narrator", DefaultFor: "Voice 1"},
		{ID: "en-US-Chirp3-HD-Leda", Name: "Leda", Gender: "female", Description: "Youthful, bright female voice", DefaultFor: "Voice 2"},
		{ID: "en-US-Chirp3-HD-Fenrir", Name: "Fenrir", Gender: "male", Description: "Deep, resonant male voice", DefaultFor: "Voice 3"},
		{ID: "en-US-Chirp3-HD-Kore", Name: "Kore", Gender: "female", Description: "Firm, confident female voice"},
		{ID: "en-US-Chirp3-HD-Aoede", Name: "Aoede", Gender: "female", Description: "Bright, expressive female voice"},
		{ID: "en-US-Chirp3-HD-Puck", Name: "Puck", Gender: "male", Description: "Upbeat, energetic male voice"},
		{ID: "en-US-Chirp3-HD-Orus", Name: "Orus", Gender: "male", Description: "Warm, steady male narrator"},
		{ID: "en-US-Chirp3-HD-Zephyr", Name: "Zephyr", Gender: "female", Description: "Breezy, relaxed female voice"},
	}
}
