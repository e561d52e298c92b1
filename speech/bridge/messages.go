package bridge

import (
	"fmt"

	"github.com/voicedeck/voicedeck/speech"
)

// FrameType discriminates the closed set of wire frames.
type FrameType string

const (
	// FrameCommand carries a transport intent from a secondary surface.
	FrameCommand FrameType = "command"
	// FrameState carries a full queue snapshot from the primary surface.
	FrameState FrameType = "state"
	// FramePosition carries a throttled playback position update.
	FramePosition FrameType = "position"
)

// CommandKind names the transport intents a secondary surface may send.
type CommandKind string

const (
	CommandPause        CommandKind = "pause"
	CommandResume       CommandKind = "resume"
	CommandToggle       CommandKind = "toggle"
	CommandSkipNext     CommandKind = "skip_next"
	CommandSkipPrevious CommandKind = "skip_previous"
	CommandStop         CommandKind = "stop"
	CommandSeek         CommandKind = "seek"
	// CommandSync asks the primary to rebroadcast its state to the sender.
	// Secondaries use it to self-heal after missing a broadcast.
	CommandSync CommandKind = "sync"
)

// Command is a one-way transport intent. Delivery is at-most-once with no
// acknowledgement.
type Command struct {
	Kind     CommandKind `json:"kind"`
	OffsetMs int64       `json:"offset_ms,omitempty"`
}

// Validate rejects command kinds outside the closed set. Frames failing
// validation are logged and dropped at the receiving boundary.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandPause, CommandResume, CommandToggle, CommandSkipNext,
		CommandSkipPrevious, CommandStop, CommandSeek, CommandSync:
		return nil
	}
	return fmt.Errorf("unknown command kind %q", c.Kind)
}

// Position is the throttled playback position payload.
type Position struct {
	PositionMs int64 `json:"position_ms"`
	DurationMs int64 `json:"duration_ms"`
}

// Frame is the tagged variant carried on the wire. Exactly the payload
// matching Type must be present; the audio primitive itself is never
// transferred.
type Frame struct {
	Type     FrameType          `json:"type"`
	Command  *Command           `json:"command,omitempty"`
	State    *speech.QueueState `json:"state,omitempty"`
	Position *Position          `json:"position,omitempty"`
}

// Validate checks the tag/payload pairing.
func (f Frame) Validate() error {
	switch f.Type {
	case FrameCommand:
		if f.Command == nil {
			return fmt.Errorf("command frame without command payload")
		}
		return f.Command.Validate()
	case FrameState:
		if f.State == nil {
			return fmt.Errorf("state frame without state payload")
		}
		return nil
	case FramePosition:
		if f.Position == nil {
			return fmt.Errorf("position frame without position payload")
		}
		return nil
	}
	return fmt.Errorf("unknown frame type %q", f.Type)
}
