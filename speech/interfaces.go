package speech

import (
	"context"
	"time"
)

// ItemStore is the persistence collaborator. All operations may fail; the
// controller logs failures and leaves in-memory state unchanged.
type ItemStore interface {
	// Add creates a new pending item for the given session and returns it
	// with a server-assigned ID and UUID.
	Add(ctx context.Context, text, sessionID string) (*QueueItem, error)

	// List returns items, optionally filtered by status. With no filter it
	// returns everything ordered by position.
	List(ctx context.Context, statuses ...Status) ([]QueueItem, error)

	// UpdateStatus persists a status transition. DurationMs applies to
	// completed items, errorMessage to failed ones.
	UpdateStatus(ctx context.Context, uuid string, status Status, durationMs int64, errorMessage string) error

	// Remove deletes a single item.
	Remove(ctx context.Context, uuid string) error

	// Reorder moves an item to a new position among pending items.
	Reorder(ctx context.Context, uuid string, newPosition int) error

	// ClearCompleted removes completed items older than the given number of
	// days (zero means all) and reports how many were removed.
	ClearCompleted(ctx context.Context, olderThanDays int) (int64, error)
}

// Synthesizer converts text into a binary audio payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, sessionID, voiceID string) ([]byte, error)
}

// Settings is the persistent key-value store for simple flags. Implementations
// return safe defaults when a key is absent or the backing file is corrupt.
type Settings interface {
	Enabled() bool
	AutoPlay() bool
	SetAutoPlay(enabled bool) error
	DefaultVoice() string
	ScreenReaderVoice() string
	VoiceForSession(sessionID string) string
	UniqueVoices() bool
	AnnounceSession() bool
}

// AudioPlayer is the platform audio primitive for a single payload. A player
// is bound to one payload; the controller constructs a fresh one per item.
type AudioPlayer interface {
	Play() error
	Pause() error
	Resume() error
	Stop() error
	Seek(offset time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	SetVolume(volume float64)
	Playing() bool
}

// PlayerHooks carries the asynchronous lifecycle callbacks for a player.
// Ended and error may both fire for the same item under platform races; the
// controller's finalization guard absorbs the duplicate.
type PlayerHooks struct {
	// OnReady fires once the payload is decoded and the total duration is
	// known.
	OnReady func(total time.Duration)
	// OnProgress fires periodically with the elapsed playback time.
	OnProgress func(position time.Duration)
	// OnEnded fires when the payload has played to completion.
	OnEnded func()
	// OnError fires when decoding or playback fails.
	OnError func(err error)
}

// PlayerFactory constructs an audio player bound to a PCM payload. The
// returned player has not started playing yet.
type PlayerFactory func(pcm []byte, hooks PlayerHooks) (AudioPlayer, error)

// PositionBroadcaster receives playback position updates for fan-out to
// secondary surfaces. Implementations throttle as they see fit.
type PositionBroadcaster interface {
	BroadcastPosition(positionMs, durationMs int64)
}
