package speech

import (
	"errors"
	"fmt"
)

// Common errors for the speech queue system.
var (
	// Synthesis errors
	ErrEmptyAudio = errors.New("synthesis returned an empty audio payload")

	// Audio primitive errors
	ErrInvalidAudioFormat = errors.New("invalid audio payload format")

	// Item errors
	ErrItemNotFound = errors.New("queue item not found")
)

// InterruptedMessage is the failure cause recorded for items left in the
// playing status by a previous process lifetime.
const InterruptedMessage = "Playback interrupted by application restart"

// StatusError reports a synthesis request that was answered with a
// non-success HTTP status.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("synthesis request failed with status %d", e.Code)
	}
	return fmt.Sprintf("synthesis request failed with status %d: %s", e.Code, e.Message)
}
