// Package settings persists speech preferences with viper. Missing or
// corrupt config files degrade to defaults; reads never fail.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config keys.
const (
	keyEnabled           = "speech.enabled"
	keyAutoPlay          = "speech.autoPlay"
	keyDefaultVoice      = "speech.defaultVoice"
	keyScreenReaderVoice = "speech.screenReaderVoice"
	keyUniqueVoices      = "speech.uniqueVoices"
	keyAnnounceSession   = "speech.announceSession"
	keySessionVoices     = "speech.voices.sessions"
)

// DefaultVoice is used when no voice preference is configured anywhere.
const DefaultVoice = "en-US-neutral-1"

// Manager is a viper-backed implementation of speech.Settings. It owns a
// private viper instance so it never collides with other config consumers.
type Manager struct {
	mu     sync.RWMutex
	v      *viper.Viper
	path   string
	logger *log.Logger
}

// Load reads settings from the given file, creating defaults when the file
// is missing or unreadable.
func Load(path string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault(keyEnabled, true)
	v.SetDefault(keyAutoPlay, true)
	v.SetDefault(keyDefaultVoice, DefaultVoice)
	v.SetDefault(keyScreenReaderVoice, "")
	v.SetDefault(keyUniqueVoices, false)
	v.SetDefault(keyAnnounceSession, false)
	v.SetDefault(keySessionVoices, map[string]string{})

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("could not read settings, using defaults", "path", path, "error", err)
		}
	}

	return &Manager{v: v, path: path, logger: logger}
}

// Enabled reports whether speech playback is enabled at all.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetBool(keyEnabled)
}

// AutoPlay reports whether the queue advances on its own.
func (m *Manager) AutoPlay() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetBool(keyAutoPlay)
}

// SetAutoPlay persists the auto-play preference.
func (m *Manager) SetAutoPlay(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Set(keyAutoPlay, enabled)
	return m.writeLocked()
}

// DefaultVoice returns the fallback voice id.
func (m *Manager) DefaultVoice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if voice := m.v.GetString(keyDefaultVoice); voice != "" {
		return voice
	}
	return DefaultVoice
}

// ScreenReaderVoice returns the voice pinned for screen reader sessions, or
// empty when none is pinned.
func (m *Manager) ScreenReaderVoice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetString(keyScreenReaderVoice)
}

// VoiceForSession returns the voice assigned to a session, or empty.
func (m *Manager) VoiceForSession(sessionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	voices := m.v.GetStringMapString(keySessionVoices)
	return voices[sessionID]
}

// SetVoiceForSession persists a per-session voice assignment.
func (m *Manager) SetVoiceForSession(sessionID, voiceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	voices := m.v.GetStringMapString(keySessionVoices)
	if voices == nil {
		voices = make(map[string]string)
	}
	voices[sessionID] = voiceID
	m.v.Set(keySessionVoices, voices)
	return m.writeLocked()
}

// UniqueVoices reports whether each session should get a distinct voice.
func (m *Manager) UniqueVoices() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetBool(keyUniqueVoices)
}

// AnnounceSession reports whether spoken text is prefixed with the session
// name.
func (m *Manager) AnnounceSession() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetBool(keyAnnounceSession)
}

// SetEnabled persists the master enable flag.
func (m *Manager) SetEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Set(keyEnabled, enabled)
	return m.writeLocked()
}

func (m *Manager) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if err := m.v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
