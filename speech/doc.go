// Package speech coordinates the voicedeck text-to-speech playback queue: a
// canonical observable queue store, a single-audio-session playback
// controller, voice resolution and session enrichment. Cross-surface
// synchronization lives in speech/bridge and the platform audio primitive in
// speech/audio.
package speech
