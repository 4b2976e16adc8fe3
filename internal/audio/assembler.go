// Package audio implements the AudioAssembler: per-turn TTS synthesis under
// a bounded worker pool, failure isolation per turn, and final stitching of
// the successfully synthesized segments into one episode file.
package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/apresai/podcaster/internal/assembly"
	"github.com/apresai/podcaster/internal/dialogue"
	"github.com/apresai/podcaster/internal/persona"
	"github.com/apresai/podcaster/internal/tts"
)

// ParamSynthesizer is implemented by TTS providers (e.g. GoogleProvider)
// that accept an explicit voice ID and (speaking_rate, pitch) override
// instead of the provider's fixed defaults. AudioAssembler prefers this
// path and falls back to the plain Provider.Synthesize otherwise.
type ParamSynthesizer interface {
	SynthesizeParams(ctx context.Context, text, voiceID string, rate, pitch float64) (tts.AudioResult, error)
}

// ProgressFunc is called as each turn finishes with the number of finished
// turns and the total, so the caller can interpolate the 75%→90% status range.
type ProgressFunc func(done, total int)

// Assembler is the AudioAssembler (§4.7).
type Assembler struct {
	Provider    tts.Provider
	Stitcher    assembly.Assembler
	Concurrency int // K, default 16
	Limiter     *rate.Limiter
}

// New builds an Assembler with the given TTS provider, stitching backend,
// and per-turn concurrency bound. limiter, if non-nil, paces synthesis
// calls ahead of the K-bounded semaphore below, smoothing bursts when
// several turns acquire a slot in the same instant; nil disables pacing.
func New(provider tts.Provider, stitcher assembly.Assembler, concurrency int, limiter *rate.Limiter) *Assembler {
	if concurrency < 1 {
		concurrency = 16
	}
	return &Assembler{Provider: provider, Stitcher: stitcher, Concurrency: concurrency, Limiter: limiter}
}

// Result is what Synthesize returns: the final stitched file and any
// per-turn warnings accumulated along the way.
type Result struct {
	FinalPath string
	Warnings  []string
}

// resolveVoice picks (voice_id, rate, pitch) for one turn per §4.7 step 1:
// persona-specific voice/params if the persona has one, else a gender-based
// fallback drawn from backupVoices, else Neutral.
func resolveVoice(t dialogue.Turn, personaByID map[string]persona.Research, backup func(gender string) (voiceID string, rate, pitch float64)) (string, float64, float64) {
	if p, ok := personaByID[t.SpeakerID]; ok && p.TTSVoiceID != "" {
		return p.TTSVoiceID, p.TTSVoiceParams.SpeakingRate, p.TTSVoiceParams.Pitch
	}
	gender := t.SpeakerGender
	if gender == "" {
		gender = string(persona.GenderNeutral)
	}
	return backup(gender)
}

// Synthesize runs the per-turn synthesis/stitch pipeline described in §4.7.
// personaByID maps a persona_id (including "Host") to its PersonaResearch
// record. backupVoice supplies a (voice_id, rate, pitch) fallback for turns
// whose speaker has no persona record (e.g. "Narrator").
func (a *Assembler) Synthesize(ctx context.Context, turns []dialogue.Turn, personaByID map[string]persona.Research, backupVoice func(gender string) (string, float64, float64), workDir string, ext string, progress ProgressFunc) (Result, error) {
	if len(turns) == 0 {
		return Result{}, fmt.Errorf("no dialogue turns to synthesize")
	}

	segDir := filepath.Join(workDir, "audio_segments")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create segment directory: %w", err)
	}

	sem := semaphore.NewWeighted(int64(a.Concurrency))
	var (
		mu        sync.Mutex
		warnings  []string
		completed int
		pathByID  = make(map[int]string)
		wg        sync.WaitGroup
	)

	total := len(turns)
	for _, t := range turns {
		if ctx.Err() != nil {
			mu.Lock()
			warnings = append(warnings, "audio synthesis cancelled before all turns were submitted")
			mu.Unlock()
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			warnings = append(warnings, fmt.Sprintf("turn %d: %v", t.TurnID, err))
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(t dialogue.Turn) {
			defer wg.Done()
			defer sem.Release(1)

			if a.Limiter != nil {
				if err := a.Limiter.Wait(ctx); err != nil {
					mu.Lock()
					warnings = append(warnings, fmt.Sprintf("turn %d (%s): rate limit wait failed: %v", t.TurnID, t.SpeakerID, err))
					completed++
					if progress != nil {
						progress(completed, total)
					}
					mu.Unlock()
					return
				}
			}

			voiceID, speakingRate, pitch := resolveVoice(t, personaByID, backupVoice)
			result, err := a.synthesizeOne(ctx, t.Text, voiceID, speakingRate, pitch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("turn %d (%s): synthesis failed: %v", t.TurnID, t.SpeakerID, err))
			} else {
				segPath := filepath.Join(segDir, fmt.Sprintf("turn_%03d_%s.%s", t.TurnID, t.SpeakerID, extFor(result.Format)))
				if writeErr := os.WriteFile(segPath, result.Data, 0o644); writeErr != nil {
					warnings = append(warnings, fmt.Sprintf("turn %d (%s): write segment failed: %v", t.TurnID, t.SpeakerID, writeErr))
				} else {
					pathByID[t.TurnID] = segPath
				}
			}
			completed++
			if progress != nil {
				progress(completed, total)
			}
		}(t)
	}
	wg.Wait()

	if len(pathByID) == 0 {
		return Result{Warnings: warnings}, fmt.Errorf("all %d turns failed synthesis", total)
	}

	ids := make([]int, 0, len(pathByID))
	for id := range pathByID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ordered := make([]string, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, pathByID[id])
	}

	finalPath := filepath.Join(workDir, "final."+ext)
	if err := a.Stitcher.Assemble(ctx, ordered, segDir, finalPath); err != nil {
		return Result{Warnings: warnings}, fmt.Errorf("stitch final episode: %w", err)
	}

	return Result{FinalPath: finalPath, Warnings: warnings}, nil
}

func (a *Assembler) synthesizeOne(ctx context.Context, text, voiceID string, rate, pitch float64) (tts.AudioResult, error) {
	if ps, ok := a.Provider.(ParamSynthesizer); ok {
		return ps.SynthesizeParams(ctx, text, voiceID, rate, pitch)
	}
	return a.Provider.Synthesize(ctx, text, tts.Voice{ID: voiceID})
}

func extFor(f tts.AudioFormat) string {
	switch f {
	case tts.FormatWAV:
		return "wav"
	case tts.FormatPCM:
		return "pcm"
	default:
		return "mp3"
	}
}
