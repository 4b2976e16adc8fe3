package persona

import (
	"testing"

	"github.com/apresai/podcaster/internal/voice"
)

type fakeCatalog struct {
	byGender map[voice.Gender][]voice.Entry
}

func (f fakeCatalog) VoicesFor(g voice.Gender) []voice.Entry {
	return f.byGender[g]
}

func newFakeCatalog() fakeCatalog {
	return fakeCatalog{byGender: map[voice.Gender][]voice.Entry{
		voice.GenderMale: {
			{VoiceID: "m1", SpeakingRate: 1.0, Pitch: -2},
			{VoiceID: "m2", SpeakingRate: 1.03, Pitch: -1},
		},
		voice.GenderFemale: {
			{VoiceID: "f1", SpeakingRate: 1.0, Pitch: 2},
			{VoiceID: "f2", SpeakingRate: 1.03, Pitch: 1},
		},
		voice.GenderNeutral: {
			{VoiceID: "n1", SpeakingRate: 1.0, Pitch: 0},
		},
	}}
}

func TestAllocateUniqueVoicesAndHostLast(t *testing.T) {
	inputs := []Input{
		{Name: "Alan Turing", Gender: GenderMale},
		{Name: "Ada Lovelace", Gender: GenderFemale},
	}
	guests, host, warnings := Allocate(inputs, "", "", newFakeCatalog())

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if len(guests) != 2 {
		t.Fatalf("expected 2 guests, got %d", len(guests))
	}

	ids := map[string]bool{guests[0].TTSVoiceID: true, guests[1].TTSVoiceID: true, host.TTSVoiceID: true}
	if len(ids) != 3 {
		t.Fatalf("expected 3 distinct voice ids, got %v", ids)
	}
	if host.PersonID != HostPersonaID {
		t.Fatalf("expected host person_id %q, got %q", HostPersonaID, host.PersonID)
	}
	if guests[0].InventedName == guests[1].InventedName {
		t.Fatal("expected distinct invented names")
	}
}

func TestAllocateRoundRobinGenderFallback(t *testing.T) {
	inputs := []Input{{Name: "A"}, {Name: "B"}, {Name: "C"}}
	guests, _, _ := Allocate(inputs, "", "", newFakeCatalog())
	genders := map[Gender]bool{}
	for _, g := range guests {
		genders[g.Gender] = true
	}
	if len(genders) < 2 {
		t.Fatalf("expected round-robin to span multiple genders, got %v", genders)
	}
}

func TestAllocateWarnsOnVoicePoolExhaustion(t *testing.T) {
	tinyCatalog := fakeCatalog{byGender: map[voice.Gender][]voice.Entry{
		voice.GenderMale: {{VoiceID: "m1", SpeakingRate: 1.0, Pitch: 0}},
	}}
	inputs := []Input{
		{Name: "A", Gender: GenderMale},
		{Name: "B", Gender: GenderMale},
		{Name: "C", Gender: GenderMale},
		{Name: "D", Gender: GenderMale},
		{Name: "E", Gender: GenderMale},
	}
	_, _, warnings := Allocate(inputs, "", "Male", tinyCatalog)
	if len(warnings) == 0 {
		t.Fatal("expected a voice pool exhaustion warning")
	}
}

func TestSlugifyPersonID(t *testing.T) {
	cases := map[string]string{
		"Alan Turing":  "alan_turing",
		"Ada Lovelace": "ada_lovelace",
		"  Trim Me  ":  "trim_me",
	}
	for in, want := range cases {
		if got := SlugifyPersonID(in); got != want {
			t.Errorf("SlugifyPersonID(%q) = %q, want %q", in, got, want)
		}
	}
}
