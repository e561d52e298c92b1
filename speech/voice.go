package speech

import "strings"

// ScreenReaderPrefix marks sessions that originate from an accessibility
// screen reader. The suffix names the sub-kind, e.g. "screenreader:voiceover".
const ScreenReaderPrefix = "screenreader:"

// DefaultVoiceID is used when no other tier yields a voice.
const DefaultVoiceID = "en-US-neutral-1"

// IsScreenReaderSession reports whether a session belongs to a screen reader.
func IsScreenReaderSession(sessionID string) bool {
	return strings.HasPrefix(sessionID, ScreenReaderPrefix)
}

// ScreenReaderKind returns the screen reader sub-kind ("voiceover", "nvda",
// ...) or "" for ordinary sessions.
func ScreenReaderKind(sessionID string) string {
	if !IsScreenReaderSession(sessionID) {
		return ""
	}
	return strings.TrimPrefix(sessionID, ScreenReaderPrefix)
}

// VoiceInputs carries the already-gathered inputs for voice resolution so the
// resolution itself stays pure.
type VoiceInputs struct {
	ItemVoice         string // explicit per-item override from the enqueuer
	ScreenReaderVoice string // voice pinned in accessibility settings
	CachedVoice       string // voice cached against the owning session
	AssignedVoice     string // voice the user assigned to the session
	DefaultVoice      string // persisted default
}

// ResolveVoice computes the effective voice for an item. Precedence, highest
// first: per-item override, session-cache voice, user assignment, persisted
// default, hardcoded default. For screen-reader sessions the pinned
// accessibility voice outranks everything, including the per-item override:
// screen-reader intelligibility takes precedence over arbitrary caller
// overrides. Missing tiers are skipped; the result is never empty.
func ResolveVoice(sessionID string, in VoiceInputs) string {
	tiers := []string{in.ItemVoice, in.CachedVoice, in.AssignedVoice, in.DefaultVoice}
	if IsScreenReaderSession(sessionID) {
		tiers = append([]string{in.ScreenReaderVoice}, tiers...)
	}
	for _, voice := range tiers {
		if voice != "" {
			return voice
		}
	}
	return DefaultVoiceID
}
