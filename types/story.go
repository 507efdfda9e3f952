package types

import "strings"

// Story tones as they appear in the card files.
const (
	ToneCalmo       = "calmo"
	ToneAvventuroso = "avventuroso"
	ToneDivertente  = "divertente"
	ToneMisterioso  = "misterioso"
	ToneTenero      = "tenero"
)

// StoryRecord is one narration entry of a card file. Immutable, owned
// by the catalog; read-only to the core.
type StoryRecord struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	AudioRef        string `json:"audio"`
	Tone            string `json:"tone"`
	BedtimeSuitable bool   `json:"bedtime_suitable"`
}

// CalmTone reports whether a tone counts as calm for the nightly
// window. Both the Italian tag and the English alias qualify.
func CalmTone(tone string) bool {
	switch strings.ToLower(tone) {
	case ToneCalmo, "calm":
		return true
	}
	return false
}
