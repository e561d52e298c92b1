package audio

import (
	"sync"
	"time"

	"github.com/voicedeck/voicedeck/speech"
)

// MockPlayer implements speech.AudioPlayer for tests. It never touches an
// audio device; tests drive the lifecycle hooks explicitly through the Fire
// methods and inspect the recorded event history.
type MockPlayer struct {
	mu       sync.Mutex
	playing  bool
	paused   bool
	started  bool
	position time.Duration
	total    time.Duration
	volume   float64
	hooks    speech.PlayerHooks
	events   []string

	// Error injection
	PlayErr   error
	PauseErr  error
	ResumeErr error
	StopErr   error
	SeekErr   error
}

// NewMockPlayer creates a mock bound to the given total duration.
func NewMockPlayer(total time.Duration, hooks speech.PlayerHooks) *MockPlayer {
	return &MockPlayer{total: total, volume: 1.0, hooks: hooks}
}

// Play starts simulated playback.
func (m *MockPlayer) Play() error {
	if m.PlayErr != nil {
		return m.PlayErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = true
	m.paused = false
	m.started = true
	m.events = append(m.events, "play")
	return nil
}

// Pause suspends simulated playback, keeping the position.
func (m *MockPlayer) Pause() error {
	if m.PauseErr != nil {
		return m.PauseErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.paused = true
	m.events = append(m.events, "pause")
	return nil
}

// Resume continues playback; like the real player it also starts a player
// that never played.
func (m *MockPlayer) Resume() error {
	if m.ResumeErr != nil {
		return m.ResumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = true
	m.paused = false
	m.started = true
	m.events = append(m.events, "resume")
	return nil
}

// Stop halts playback.
func (m *MockPlayer) Stop() error {
	if m.StopErr != nil {
		return m.StopErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.paused = false
	m.events = append(m.events, "stop")
	return nil
}

// Seek repositions simulated playback.
func (m *MockPlayer) Seek(offset time.Duration) error {
	if m.SeekErr != nil {
		return m.SeekErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if offset > m.total {
		offset = m.total
	}
	m.position = offset
	m.events = append(m.events, "seek")
	return nil
}

// Position returns the simulated elapsed time.
func (m *MockPlayer) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SetPosition lets tests move the simulated clock.
func (m *MockPlayer) SetPosition(position time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = position
}

// Duration returns the simulated total duration.
func (m *MockPlayer) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// SetVolume records the requested volume.
func (m *MockPlayer) SetVolume(volume float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = volume
}

// Volume returns the last volume set.
func (m *MockPlayer) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Playing reports the simulated transport state.
func (m *MockPlayer) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Events returns the recorded transport calls, in order.
func (m *MockPlayer) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

// FireReady invokes the ready hook with the mock's duration.
func (m *MockPlayer) FireReady() {
	if m.hooks.OnReady != nil {
		m.hooks.OnReady(m.Duration())
	}
}

// FireProgress moves the clock and invokes the progress hook.
func (m *MockPlayer) FireProgress(position time.Duration) {
	m.SetPosition(position)
	if m.hooks.OnProgress != nil {
		m.hooks.OnProgress(position)
	}
}

// FireEnded invokes the ended hook.
func (m *MockPlayer) FireEnded() {
	m.mu.Lock()
	m.playing = false
	m.mu.Unlock()
	if m.hooks.OnEnded != nil {
		m.hooks.OnEnded()
	}
}

// FireError invokes the error hook.
func (m *MockPlayer) FireError(err error) {
	m.mu.Lock()
	m.playing = false
	m.mu.Unlock()
	if m.hooks.OnError != nil {
		m.hooks.OnError(err)
	}
}

// MockDeck is a speech.PlayerFactory for tests that records every player it
// creates so tests can drive their hooks.
type MockDeck struct {
	mu      sync.Mutex
	players []*MockPlayer

	// NewErr, when set, makes the factory fail.
	NewErr error
	// Total is the duration given to created players.
	Total time.Duration
}

// Factory returns the speech.PlayerFactory backed by this deck.
func (d *MockDeck) Factory() speech.PlayerFactory {
	return func(pcm []byte, hooks speech.PlayerHooks) (speech.AudioPlayer, error) {
		if d.NewErr != nil {
			return nil, d.NewErr
		}
		total := d.Total
		if total == 0 {
			total = time.Second
		}
		player := NewMockPlayer(total, hooks)
		d.mu.Lock()
		d.players = append(d.players, player)
		d.mu.Unlock()
		return player, nil
	}
}

// Last returns the most recently created player, or nil.
func (d *MockDeck) Last() *MockPlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.players) == 0 {
		return nil
	}
	return d.players[len(d.players)-1]
}

// Count returns how many players the deck created.
func (d *MockDeck) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.players)
}
