package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Controller owns the single platform audio primitive and drives items
// through pending → playing → completed/failed. All shared mutable state
// (current player, start mutex, deferred-pause latch, finalization set) lives
// on the controller instance and is only touched through its methods.
type Controller struct {
	store     *Store
	items     ItemStore
	synth     Synthesizer
	settings  Settings
	newPlayer PlayerFactory
	cache     *EnrichmentCache
	logger    *log.Logger
	positions PositionBroadcaster

	mu            sync.Mutex
	machine       *StateMachine
	player        AudioPlayer
	currentUUID   string
	deferredPause bool
	finalized     map[string]struct{}
	positionMs    int64
	durationMs    int64
}

// NewController wires a controller against its collaborators. The store is
// passed in so surfaces can subscribe before the controller starts mutating
// it. A nil logger falls back to the package default.
func NewController(store *Store, items ItemStore, synth Synthesizer, settings Settings, newPlayer PlayerFactory, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		store:     store,
		items:     items,
		synth:     synth,
		settings:  settings,
		newPlayer: newPlayer,
		cache:     NewEnrichmentCache(),
		logger:    logger,
		machine:   NewStateMachine(),
		finalized: make(map[string]struct{}),
	}
}

// SetPositionBroadcaster registers the sink for throttled position updates.
func (c *Controller) SetPositionBroadcaster(b PositionBroadcaster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions = b
}

// Store returns the queue store this controller mutates.
func (c *Controller) Store() *Store {
	return c.store
}

// Phase returns the current transport phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Initialize reconciles stuck items from a prior process lifetime, loads the
// queue and, with auto-play on, starts playback. Reconciliation happens
// before any new playback so no item is left playing forever.
func (c *Controller) Initialize(ctx context.Context) {
	c.store.Update(func(st *QueueState) {
		st.AutoPlay = c.settings.AutoPlay()
	})
	if n := c.ResetStuckItems(ctx); n > 0 {
		c.logger.Warn("reconciled stuck items from previous run", "count", n)
	}
	c.LoadItems(ctx)
	if c.store.State().AutoPlay {
		c.PlayNext(ctx)
	}
}

// PlayNext selects the lowest-position pending item and starts it. It is a
// no-op when voice output is disabled, a start is already in flight, or an
// item is already playing. With no pending item it settles into idle.
func (c *Controller) PlayNext(ctx context.Context) {
	c.mu.Lock()
	if !c.settings.Enabled() {
		c.mu.Unlock()
		c.logger.Debug("voice output disabled, ignoring play request")
		return
	}
	if !c.machine.Transition(PhaseStarting) {
		c.mu.Unlock()
		return
	}
	state := c.store.State()
	item, ok := state.NextPending()
	if !ok {
		c.machine.Transition(PhaseIdle)
		c.currentUUID = ""
		c.store.Update(func(st *QueueState) {
			st.Current = nil
			st.IsPlaying = false
			st.IsPaused = false
		})
		c.mu.Unlock()
		return
	}
	delete(c.finalized, item.UUID)
	c.mu.Unlock()

	c.startItem(ctx, item)
}

// PlayItem starts a specific item, stopping the current one first. A start
// already in flight wins over the request.
func (c *Controller) PlayItem(ctx context.Context, uuid string) {
	c.mu.Lock()
	if !c.settings.Enabled() || c.machine.Current() == PhaseStarting {
		c.mu.Unlock()
		return
	}
	if c.currentUUID == uuid {
		c.mu.Unlock()
		return
	}
	state := c.store.State()
	item := state.Item(uuid)
	if item == nil {
		c.mu.Unlock()
		c.logger.Warn("play requested for unknown item", "uuid", uuid)
		return
	}
	target := *item
	current := c.currentUUID
	c.mu.Unlock()

	if current != "" {
		c.StopPlayback(ctx)
	}

	c.mu.Lock()
	if !c.machine.Transition(PhaseStarting) {
		c.mu.Unlock()
		return
	}
	delete(c.finalized, target.UUID)
	c.mu.Unlock()

	c.startItem(ctx, target)
}

// startItem runs the start sequence for one item. The machine must already be
// in PhaseStarting; that phase is the mutex that keeps a second start
// sequence out until the local playing-state commit has happened. Synthesis
// runs outside the lock so pause requests can latch meanwhile.
func (c *Controller) startItem(ctx context.Context, item QueueItem) {
	c.mu.Lock()
	c.currentUUID = item.UUID
	c.deferredPause = false
	c.positionMs = 0
	c.durationMs = 0

	now := time.Now()
	c.store.Update(func(st *QueueState) {
		st.setStatus(item.UUID, StatusPlaying, func(it *QueueItem) {
			it.StartedAt = &now
			it.ErrorMessage = ""
		})
		if live := st.Item(item.UUID); live != nil {
			current := *live
			st.Current = &current
		}
		st.IsPlaying = true
		st.IsPaused = false
		st.PositionMs = 0
	})
	// Best effort: playback proceeds even when the persistence write fails.
	if err := c.items.UpdateStatus(ctx, item.UUID, StatusPlaying, 0, ""); err != nil {
		c.logger.Warn("failed to persist playing status", "uuid", item.UUID, "error", err)
	}

	voice := ResolveVoice(item.SessionID, VoiceInputs{
		ItemVoice:         item.VoiceID,
		ScreenReaderVoice: c.settings.ScreenReaderVoice(),
		CachedVoice:       c.cache.Voice(item.SessionID),
		AssignedVoice:     c.settings.VoiceForSession(item.SessionID),
		DefaultVoice:      c.settings.DefaultVoice(),
	})
	text := item.Text
	if c.settings.AnnounceSession() && item.SessionName != "" {
		text = item.SessionName + ". " + text
	}
	c.mu.Unlock()

	payload, err := c.synth.Synthesize(ctx, text, item.SessionID, voice)
	if err == nil && len(payload) == 0 {
		err = ErrEmptyAudio
	}

	c.mu.Lock()
	if c.currentUUID != item.UUID || c.machine.Current() != PhaseStarting {
		// A stop or skip won the race while synthesis was outstanding; the
		// finalization guard has already closed this item out.
		c.mu.Unlock()
		c.logger.Debug("discarding stale synthesis response", "uuid", item.UUID)
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.failItem(ctx, item.UUID, synthesisErrorMessage(err))
		return
	}

	uuid := item.UUID
	player, err := c.newPlayer(payload, PlayerHooks{
		OnReady:    func(total time.Duration) { c.handlePlayerReady(uuid, total) },
		OnProgress: func(position time.Duration) { c.handlePlayerProgress(uuid, position) },
		OnEnded:    func() { c.handlePlayerEnded(uuid) },
		OnError:    func(err error) { c.handlePlayerError(uuid, err) },
	})
	if err != nil {
		c.mu.Unlock()
		c.failItem(ctx, uuid, playbackErrorMessage(err))
		return
	}

	c.player = player
	player.SetVolume(c.store.State().Volume)
	c.machine.Transition(PhasePlaying)

	if c.deferredPause {
		// A pause arrived while synthesis was outstanding. Honor it before
		// playback audibly begins.
		c.deferredPause = false
		c.machine.Transition(PhasePaused)
		c.store.Update(func(st *QueueState) {
			st.setStatus(uuid, StatusPaused, nil)
			st.IsPlaying = false
			st.IsPaused = true
			st.PositionMs = 0
		})
		c.mu.Unlock()
		c.logger.Debug("honoring deferred pause", "uuid", uuid)
		return
	}

	if err := player.Play(); err != nil {
		c.teardownPlayerLocked()
		c.mu.Unlock()
		c.failItem(ctx, uuid, playbackErrorMessage(err))
		return
	}
	c.mu.Unlock()
}

// Pause stops playback, capturing the elapsed time for resume. While a start
// is in flight the request is latched instead of dropped. With nothing
// playing it is a no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.machine.Current() {
	case PhaseStarting:
		if c.currentUUID != "" {
			c.deferredPause = true
			c.logger.Debug("latching pause during synthesis", "uuid", c.currentUUID)
		}
	case PhasePlaying:
		if c.player == nil {
			return
		}
		position := c.player.Position()
		if err := c.player.Pause(); err != nil {
			c.logger.Error("pause failed", "error", err)
			return
		}
		c.machine.Transition(PhasePaused)
		c.positionMs = position.Milliseconds()
		uuid := c.currentUUID
		c.store.Update(func(st *QueueState) {
			st.setStatus(uuid, StatusPaused, nil)
			st.IsPlaying = false
			st.IsPaused = true
			st.PositionMs = position.Milliseconds()
		})
	}
}

// Resume continues paused playback from the captured position. It also
// clears a latched pause that has not been honored yet.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.machine.Current() {
	case PhaseStarting:
		c.deferredPause = false
	case PhasePaused:
		if c.player == nil {
			return
		}
		if err := c.player.Resume(); err != nil {
			c.logger.Error("resume failed", "error", err)
			return
		}
		c.machine.Transition(PhasePlaying)
		uuid := c.currentUUID
		c.store.Update(func(st *QueueState) {
			st.setStatus(uuid, StatusPlaying, nil)
			st.IsPlaying = true
			st.IsPaused = false
		})
	}
}

// TogglePlayPause pauses when playing, resumes when paused, and otherwise
// starts the next pending item.
func (c *Controller) TogglePlayPause(ctx context.Context) {
	c.mu.Lock()
	phase := c.machine.Current()
	deferred := c.deferredPause
	c.mu.Unlock()

	switch {
	case phase == PhasePlaying:
		c.Pause()
	case phase == PhasePaused:
		c.Resume()
	case phase == PhaseStarting && deferred:
		c.Resume()
	case phase == PhaseStarting:
		c.Pause()
	default:
		c.PlayNext(ctx)
	}
}

// StopPlayback finalizes the current item as completed without advancing.
// Completed rather than pending, so the item does not auto-replay on the
// next load.
func (c *Controller) StopPlayback(ctx context.Context) {
	c.mu.Lock()
	uuid := c.currentUUID
	elapsed := c.positionMs
	c.deferredPause = false
	c.mu.Unlock()

	if uuid == "" {
		return
	}
	c.finalizeItem(ctx, uuid, StatusCompleted, elapsed, "")
}

// SkipNext finalizes the current item as completed and starts the next
// pending one.
func (c *Controller) SkipNext(ctx context.Context) {
	c.StopPlayback(ctx)
	c.PlayNext(ctx)
}

// SkipPrevious replays the most recently completed item: its status is reset
// to pending and it starts immediately. "Previous" means "replay last
// finished", not rewind.
func (c *Controller) SkipPrevious(ctx context.Context) {
	state := c.store.State()
	previous, ok := state.LastCompleted()
	if !ok {
		return
	}

	c.StopPlayback(ctx)

	c.mu.Lock()
	delete(c.finalized, previous.UUID)
	c.store.Update(func(st *QueueState) {
		st.setStatus(previous.UUID, StatusPending, func(it *QueueItem) {
			it.CompletedAt = nil
			it.DurationMs = 0
			it.ErrorMessage = ""
		})
	})
	c.mu.Unlock()
	if err := c.items.UpdateStatus(ctx, previous.UUID, StatusPending, 0, ""); err != nil {
		c.logger.Warn("failed to persist replay reset", "uuid", previous.UUID, "error", err)
	}

	c.PlayItem(ctx, previous.UUID)
}

// Seek repositions playback, clamped to [0, duration]. No-op when nothing is
// loaded.
func (c *Controller) Seek(offsetMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.player == nil {
		return
	}
	offset := time.Duration(offsetMs) * time.Millisecond
	if offset < 0 {
		offset = 0
	}
	if total := c.player.Duration(); total > 0 && offset > total {
		offset = total
	}
	if err := c.player.Seek(offset); err != nil {
		c.logger.Error("seek failed", "error", err)
		return
	}
	c.positionMs = offset.Milliseconds()
	c.store.Update(func(st *QueueState) {
		st.PositionMs = offset.Milliseconds()
	})
}

// SetVolume clamps the volume to [0, 1] and applies it to any live player.
func (c *Controller) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	c.mu.Lock()
	if c.player != nil {
		c.player.SetVolume(volume)
	}
	c.store.Update(func(st *QueueState) {
		st.Volume = volume
	})
	c.mu.Unlock()
}

// SetPlaybackSpeed clamps the rate multiplier to [0.5, 2.0].
func (c *Controller) SetPlaybackSpeed(speed float64) {
	if speed < 0.5 {
		speed = 0.5
	}
	if speed > 2.0 {
		speed = 2.0
	}
	c.store.Update(func(st *QueueState) {
		st.PlaybackSpeed = speed
	})
}

// SetAutoPlay persists the auto-play flag. Turning it on while idle starts
// playback.
func (c *Controller) SetAutoPlay(ctx context.Context, enabled bool) {
	if err := c.settings.SetAutoPlay(enabled); err != nil {
		c.logger.Warn("failed to persist auto-play flag", "error", err)
	}
	c.store.Update(func(st *QueueState) {
		st.AutoPlay = enabled
	})
	if enabled && c.Phase() == PhaseIdle {
		c.PlayNext(ctx)
	}
}

// SetInterrupted pauses playback while an external consumer (typically the
// dictation recorder) holds the audio device, and resumes when it releases.
func (c *Controller) SetInterrupted(interrupted bool) {
	if interrupted {
		wasPlaying := c.Phase() == PhasePlaying
		if wasPlaying {
			c.Pause()
		}
		c.store.Update(func(st *QueueState) {
			st.Interrupted = true
		})
		return
	}

	state := c.store.State()
	if !state.Interrupted {
		return
	}
	c.store.Update(func(st *QueueState) {
		st.Interrupted = false
	})
	if c.Phase() == PhasePaused {
		c.Resume()
	}
}

// PlaybackInfo reports elapsed and total milliseconds for the current item.
func (c *Controller) PlaybackInfo() PlaybackInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PlaybackInfo{CurrentTimeMs: c.positionMs, DurationMs: c.durationMs}
}

// UpdateSessionCache merges a batch of session records and re-enriches every
// queued item, without overwriting fields an item already carries.
func (c *Controller) UpdateSessionCache(sessions []SessionInfo) {
	c.cache.Update(sessions)
	c.store.Update(func(st *QueueState) {
		for i := range st.Items {
			c.cache.Enrich(&st.Items[i])
		}
		if st.Current != nil {
			c.cache.Enrich(st.Current)
		}
	})
}

// Player lifecycle hooks. All re-enter the controller through the state lock
// and are bound to the item that created the player, so late callbacks from a
// superseded player are discarded.

func (c *Controller) handlePlayerReady(uuid string, total time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentUUID != uuid {
		return
	}
	c.durationMs = total.Milliseconds()
}

func (c *Controller) handlePlayerProgress(uuid string, position time.Duration) {
	c.mu.Lock()
	if c.currentUUID != uuid || c.machine.Current() != PhasePlaying {
		c.mu.Unlock()
		return
	}
	c.positionMs = position.Milliseconds()
	broadcaster := c.positions
	durationMs := c.durationMs
	c.mu.Unlock()

	if broadcaster != nil {
		broadcaster.BroadcastPosition(position.Milliseconds(), durationMs)
	}
}

func (c *Controller) handlePlayerEnded(uuid string) {
	c.mu.Lock()
	durationMs := c.durationMs
	if durationMs == 0 {
		durationMs = c.positionMs
	}
	c.mu.Unlock()

	done, autoPlay := c.finalizeItem(context.Background(), uuid, StatusCompleted, durationMs, "")
	if done && autoPlay {
		c.PlayNext(context.Background())
	}
}

func (c *Controller) handlePlayerError(uuid string, err error) {
	c.failItem(context.Background(), uuid, playbackErrorMessage(err))
}

// failItem routes any per-item failure to the failed transition and, with
// auto-play on, advances past it. Failures advance the queue rather than
// halting it.
func (c *Controller) failItem(ctx context.Context, uuid, message string) {
	c.logger.Error("item playback failed", "uuid", uuid, "cause", message)
	done, autoPlay := c.finalizeItem(ctx, uuid, StatusFailed, 0, message)
	if done && autoPlay {
		c.PlayNext(ctx)
	}
}

// finalizeItem performs the terminal bookkeeping for an item exactly once.
// Both the ended and error hooks can fire for the same item under platform
// races; the finalization set makes the duplicate harmless. It reports
// whether this call did the finalization and whether auto-play is on.
func (c *Controller) finalizeItem(ctx context.Context, uuid string, status Status, durationMs int64, errorMessage string) (bool, bool) {
	c.mu.Lock()
	if uuid == "" {
		c.mu.Unlock()
		return false, false
	}
	if _, done := c.finalized[uuid]; done {
		c.mu.Unlock()
		return false, false
	}
	c.finalized[uuid] = struct{}{}

	wasCurrent := c.currentUUID == uuid
	if wasCurrent {
		c.teardownPlayerLocked()
		c.currentUUID = ""
		c.deferredPause = false
		switch c.machine.Current() {
		case PhaseStarting, PhasePlaying, PhasePaused:
			c.machine.Transition(PhaseIdle)
		}
	}

	now := time.Now()
	c.store.Update(func(st *QueueState) {
		st.setStatus(uuid, status, func(it *QueueItem) {
			it.CompletedAt = &now
			it.DurationMs = durationMs
			it.ErrorMessage = errorMessage
		})
		if wasCurrent {
			st.Current = nil
			st.IsPlaying = false
			st.IsPaused = false
			st.PositionMs = 0
		}
	})
	if err := c.items.UpdateStatus(ctx, uuid, status, durationMs, errorMessage); err != nil {
		c.logger.Error("failed to persist terminal status", "uuid", uuid, "status", status, "error", err)
	}
	autoPlay := c.store.State().AutoPlay
	c.mu.Unlock()
	return true, autoPlay
}

// teardownPlayerLocked releases the audio primitive. Caller holds the lock.
func (c *Controller) teardownPlayerLocked() {
	if c.player == nil {
		return
	}
	if err := c.player.Stop(); err != nil {
		c.logger.Debug("player stop failed during teardown", "error", err)
	}
	c.player = nil
	c.positionMs = 0
	c.durationMs = 0
}

// synthesisErrorMessage maps synthesis failures to distinct human-readable
// causes: network failure, non-success status and empty payload each read
// differently in the item history.
func synthesisErrorMessage(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrEmptyAudio):
		return "Synthesis returned no audio"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Synthesis failed with status %d: %s", statusErr.Code, statusErr.Message)
	default:
		return "Synthesis request failed: " + err.Error()
	}
}

// playbackErrorMessage maps audio-primitive failures to diagnostics.
func playbackErrorMessage(err error) string {
	if errors.Is(err, ErrInvalidAudioFormat) {
		return "Audio decode failed: " + err.Error()
	}
	return "Audio playback failed: " + err.Error()
}
