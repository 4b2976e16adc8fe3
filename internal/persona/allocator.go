package persona

import (
	"time"

	"github.com/apresai/podcaster/internal/voice"
)

// VoiceSource is the subset of voice.Catalog the allocator needs, satisfied
// by *voice.Catalog.
type VoiceSource interface {
	VoicesFor(gender voice.Gender) []voice.Entry
}

// Input is one unassigned persona prior to allocation: a real name and
// optional source context, as produced by persona research.
type Input struct {
	Name            string
	DetailedProfile string
	Gender          Gender // empty means "assign by round-robin fallback"
	SourceContext   string
}

// Allocate implements §4.4: gender assignment, invented-name assignment,
// voice assignment, with the Host always assigned last so it cannot clash
// with any guest voice.
func Allocate(inputs []Input, hostName, hostGender string, catalog VoiceSource) (guests []Research, host Research, warnings []string) {
	names := newNameAllocator()
	usedVoices := make(map[string]bool)
	now := time.Now().UTC()

	roundRobin := []Gender{GenderMale, GenderFemale, GenderNeutral}

	for i, in := range inputs {
		gender := in.Gender
		if gender == "" {
			gender = roundRobin[i%len(roundRobin)]
		}
		invented := names.next(gender)
		voiceID, params, w := assignVoice(gender, usedVoices, catalog)
		if w != "" {
			warnings = append(warnings, w)
		}
		guests = append(guests, Research{
			PersonID:          SlugifyPersonID(in.Name),
			Name:              in.Name,
			DetailedProfile:   in.DetailedProfile,
			Gender:            gender,
			InventedName:      invented,
			TTSVoiceID:        voiceID,
			TTSVoiceParams:    params,
			CreationTimestamp: now,
			SourceContext:     TruncateContext(in.SourceContext, 280),
		})
	}

	hg := Gender(hostGender)
	switch hostGender {
	case "", "male":
		hg = GenderMale
	case "female":
		hg = GenderFemale
	case "neutral":
		hg = GenderNeutral
	}
	hn := hostName
	if hn == "" {
		hn = names.next(hg)
	}
	hostVoiceID, hostParams, w := assignVoice(hg, usedVoices, catalog)
	if w != "" {
		warnings = append(warnings, w)
	}
	host = Research{
		PersonID:          HostPersonaID,
		Name:              "Host",
		Gender:            hg,
		InventedName:      hn,
		TTSVoiceID:        hostVoiceID,
		TTSVoiceParams:    hostParams,
		CreationTimestamp: now,
	}

	if w := verifyUniqueness(append(append([]Research{}, guests...), host)); w != "" {
		warnings = append(warnings, w)
	}

	return guests, host, warnings
}

// assignVoice picks the next unused voice for gender from the catalog,
// falling back to the backup Chirp3-HD list, and as a last resort allows a
// duplicate (the caller records a warning via verifyUniqueness).
func assignVoice(gender Gender, used map[string]bool, catalog VoiceSource) (string, VoiceParams, string) {
	candidates := catalog.VoicesFor(voice.Gender(gender))
	if id, params, ok := firstUnused(candidates, used); ok {
		used[id] = true
		return id, params, ""
	}
	backup := voice.BackupVoices(voice.Gender(gender))
	if id, params, ok := firstUnused(backup, used); ok {
		used[id] = true
		return id, params, ""
	}
	// Exhausted even the backup list: reuse the first backup entry and let
	// the post-hoc uniqueness check surface the collision.
	if len(backup) > 0 {
		used[backup[0].VoiceID] = true
		return backup[0].VoiceID, VoiceParams{SpeakingRate: backup[0].SpeakingRate, Pitch: backup[0].Pitch}, ""
	}
	return "", VoiceParams{}, ""
}

func firstUnused(entries []voice.Entry, used map[string]bool) (string, VoiceParams, bool) {
	for _, e := range entries {
		if !used[e.VoiceID] {
			return e.VoiceID, VoiceParams{SpeakingRate: e.SpeakingRate, Pitch: e.Pitch}, true
		}
	}
	return "", VoiceParams{}, false
}

// verifyUniqueness is the post-hoc check from §4.4 point 5: returns a
// warning string if any voice_id repeats across all personas + Host.
func verifyUniqueness(all []Research) string {
	seen := make(map[string]bool)
	for _, p := range all {
		if p.TTSVoiceID == "" {
			continue
		}
		if seen[p.TTSVoiceID] {
			return "voice pool exhausted: duplicate voice_id " + p.TTSVoiceID + " assigned to multiple personas"
		}
		seen[p.TTSVoiceID] = true
	}
	return ""
}
