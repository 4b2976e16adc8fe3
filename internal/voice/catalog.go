// Package voice maintains the TTS voice inventory used to assign distinct
// speaking voices to personas: a gender-bucketed list of voice entries with
// an on-disk JSON cache and a 24-hour TTL, refreshed from the TTS backend.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Gender is the SSML-style gender bucket a voice is catalogued under.
type Gender string

const (
	GenderMale    Gender = "Male"
	GenderFemale  Gender = "Female"
	GenderNeutral Gender = "Neutral"
)

// Entry is one catalogued voice with its assigned speaking parameters.
type Entry struct {
	VoiceID       string  `json:"voice_id"`
	LanguageCodes []string `json:"language_codes"`
	SpeakingRate  float64 `json:"speaking_rate"`
	Pitch         float64 `json:"pitch"`
}

// cacheFile is the on-disk schema, matching §4.5's documented cache schema.
type cacheFile struct {
	LastUpdated time.Time            `json:"last_updated"`
	Voices      map[Gender][]Entry   `json:"voices"`
}

// BackendVoice is what the TTS backend's voice-listing call returns, prior
// to selection and (rate,pitch) assignment.
type BackendVoice struct {
	Name         string
	Gender       Gender
	LanguageCode string
}

// Lister fetches all available English-family voices from a TTS backend.
// Implemented by the google TTS provider adapter.
type Lister interface {
	ListVoices(ctx context.Context) ([]BackendVoice, error)
}

// languageTarget is the distribution target from §4.5.
var languageTarget = map[string]int{
	"en-US": 36,
	"en-GB": 12,
	"en-AU": 12,
}

const qualityFamilyA = "Chirp3-HD"
const qualityFamilyB = "Chirp-HD"

// rateStart, rateEnd, rateStep bound the (speaking_rate) half of each
// assigned combination.
const (
	rateStart = 0.85
	rateEnd   = 1.15
	rateStep  = 0.03
)

// pitchRanges bounds the pitch half of each combination, per gender, plus a
// distinct Neutral range so the drawn-from-Male/Female neutral bucket still
// reads as tonally distinct.
var pitchRanges = map[Gender][2]float64{
	GenderMale:    {-6, 0},
	GenderFemale:  {0, 6},
	GenderNeutral: {-2, 2},
}

// Catalog is the process-wide voice inventory with RW-locked atomic refresh.
type Catalog struct {
	mu        sync.RWMutex
	voices    map[Gender][]Entry
	lastLoad  time.Time
	ttl       time.Duration
	cachePath string
	lister    Lister
}

// New constructs a Catalog backed by the given TTS voice lister and on-disk
// cache path, with the given refresh TTL.
func New(lister Lister, cachePath string, ttl time.Duration) *Catalog {
	return &Catalog{
		voices:    make(map[Gender][]Entry),
		ttl:       ttl,
		cachePath: cachePath,
		lister:    lister,
	}
}

// Ensure loads the cache from disk if fresh, or refreshes from the backend
// if stale or absent. A stale read during a concurrent refresh is
// acceptable; a torn read is not — the swap is atomic under the write lock.
func (c *Catalog) Ensure(ctx context.Context) error {
	if c.loadFromDiskIfFresh() {
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Catalog) loadFromDiskIfFresh() bool {
	c.mu.RLock()
	fresh := !c.lastLoad.IsZero() && time.Since(c.lastLoad) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return true
	}

	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return false
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err == nil && len(cf.Voices) > 0 {
		if time.Since(cf.LastUpdated) < c.ttl {
			c.mu.Lock()
			c.voices = cf.Voices
			c.lastLoad = cf.LastUpdated
			c.mu.Unlock()
			return true
		}
		return false
	}

	// Old schema: a direct gender -> []Entry map with no last_updated
	// envelope, kept for backward compatibility.
	var legacy map[Gender][]Entry
	if err := json.Unmarshal(data, &legacy); err == nil && len(legacy) > 0 {
		c.mu.Lock()
		c.voices = legacy
		c.lastLoad = time.Now()
		c.mu.Unlock()
		return true
	}
	return false
}

// Refresh queries the TTS backend, partitions by gender, selects voices
// against the language distribution target, and assigns (rate,pitch)
// combinations, writing the result to a temp file and renaming atomically.
func (c *Catalog) Refresh(ctx context.Context) error {
	all, err := c.lister.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("list tts voices: %w", err)
	}

	male := selectByTarget(filterGender(all, GenderMale))
	female := selectByTarget(filterGender(all, GenderFemale))

	voices := map[Gender][]Entry{
		GenderMale:   assignCombinations(male, GenderMale),
		GenderFemale: assignCombinations(female, GenderFemale),
	}
	voices[GenderNeutral] = buildNeutralBucket(voices[GenderMale], voices[GenderFemale])

	cf := cacheFile{LastUpdated: time.Now().UTC(), Voices: voices}
	if err := c.writeCacheAtomic(cf); err != nil {
		return err
	}

	c.mu.Lock()
	c.voices = voices
	c.lastLoad = cf.LastUpdated
	c.mu.Unlock()
	return nil
}

func (c *Catalog) writeCacheAtomic(cf cacheFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal voice cache: %w", err)
	}
	dir := filepath.Dir(c.cachePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := c.cachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := os.Rename(tmp, c.cachePath); err != nil {
		return fmt.Errorf("rename cache into place: %w", err)
	}
	return nil
}

func filterGender(all []BackendVoice, g Gender) []BackendVoice {
	out := make([]BackendVoice, 0, len(all))
	for _, v := range all {
		if v.Gender == g {
			out = append(out, v)
		}
	}
	return out
}

// selectByTarget prefers high-quality Chirp3-HD/Chirp-HD families and caps
// the count drawn from each language per languageTarget.
func selectByTarget(voices []BackendVoice) []BackendVoice {
	sort.SliceStable(voices, func(i, j int) bool {
		iq, jq := isQualityFamily(voices[i].Name), isQualityFamily(voices[j].Name)
		if iq != jq {
			return iq
		}
		return voices[i].Name < voices[j].Name
	})

	counts := make(map[string]int)
	var out []BackendVoice
	for _, v := range voices {
		target, ok := languageTarget[v.LanguageCode]
		if !ok {
			continue
		}
		if counts[v.LanguageCode] >= target {
			continue
		}
		counts[v.LanguageCode]++
		out = append(out, v)
	}
	return out
}

func isQualityFamily(name string) bool {
	return strings.Contains(name, qualityFamilyA) || strings.Contains(name, qualityFamilyB)
}

// assignCombinations consumes (rate,pitch) combinations round-robin across
// the selected voices to maximize distinctness, aiming for >=30 unique
// combinations in aggregate (bounded by the rate/pitch ranges' product).
func assignCombinations(voices []BackendVoice, gender Gender) []Entry {
	rates := stepRange(rateStart, rateEnd, rateStep)
	pr := pitchRanges[gender]
	pitches := stepRange(pr[0], pr[1], (pr[1]-pr[0])/6)

	out := make([]Entry, 0, len(voices))
	combIdx := 0
	for _, v := range voices {
		rate := rates[combIdx%len(rates)]
		pitch := pitches[(combIdx/len(rates))%len(pitches)]
		out = append(out, Entry{
			VoiceID:       v.Name,
			LanguageCodes: []string{v.LanguageCode},
			SpeakingRate:  rate,
			Pitch:         pitch,
		})
		combIdx++
	}
	return out
}

func stepRange(start, end, step float64) []float64 {
	if step <= 0 {
		return []float64{start}
	}
	n := int(math.Round((end-start)/step)) + 1
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, math.Round((start+float64(i)*step)*100)/100)
	}
	return out
}

// buildNeutralBucket draws evenly from already-selected Male and Female
// voices, reassigning each to the Neutral pitch range so it reads as
// distinct from its source bucket.
func buildNeutralBucket(male, female []Entry) []Entry {
	var out []Entry
	pr := pitchRanges[GenderNeutral]
	pitches := stepRange(pr[0], pr[1], (pr[1]-pr[0])/4)
	i := 0
	draw := func(src []Entry) {
		for _, e := range src {
			cp := e
			cp.Pitch = pitches[i%len(pitches)]
			out = append(out, cp)
			i++
		}
	}
	// Alternate so the bucket isn't front-loaded with one gender's voices.
	maxLen := len(male)
	if len(female) > maxLen {
		maxLen = len(female)
	}
	for idx := 0; idx < maxLen; idx++ {
		if idx < len(male) {
			draw(male[idx : idx+1])
		}
		if idx < len(female) {
			draw(female[idx : idx+1])
		}
	}
	return out
}

// VoicesFor returns a copy of the catalogued entries for a gender.
func (c *Catalog) VoicesFor(gender Gender) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.voices[gender]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// BackupVoices returns a small per-gender Chirp3-HD fallback list used when
// the catalog itself is exhausted.
func BackupVoices(gender Gender) []Entry {
	switch gender {
	case GenderMale:
		return []Entry{
			{VoiceID: "en-US-Chirp3-HD-Charon", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.0, Pitch: -2},
			{VoiceID: "en-US-Chirp3-HD-Fenrir", LanguageCodes: []string{"en-US"}, SpeakingRate: 0.97, Pitch: -4},
			{VoiceID: "en-US-Chirp3-HD-Orus", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.03, Pitch: 0},
			{VoiceID: "en-US-Chirp3-HD-Puck", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.06, Pitch: -1},
		}
	case GenderFemale:
		return []Entry{
			{VoiceID: "en-US-Chirp3-HD-Leda", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.0, Pitch: 2},
			{VoiceID: "en-US-Chirp3-HD-Kore", LanguageCodes: []string{"en-US"}, SpeakingRate: 0.97, Pitch: 4},
			{VoiceID: "en-US-Chirp3-HD-Aoede", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.03, Pitch: 1},
			{VoiceID: "en-US-Chirp3-HD-Zephyr", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.06, Pitch: 3},
		}
	default:
		return []Entry{
			{VoiceID: "en-US-Chirp3-HD-Kore", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.0, Pitch: 0},
			{VoiceID: "en-US-Chirp3-HD-Orus", LanguageCodes: []string{"en-US"}, SpeakingRate: 1.0, Pitch: 0},
		}
	}
}
