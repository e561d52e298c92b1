package speech

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Messages for Bubble Tea communication between the speech queue and a UI
// adapter. The adapter itself lives outside this module; it subscribes via
// Relay and re-renders on every snapshot.

// StateChangedMsg carries a fresh queue snapshot after a committed mutation.
type StateChangedMsg struct {
	State QueueState
}

// PositionMsg carries a throttled playback position update.
type PositionMsg struct {
	PositionMs int64
	DurationMs int64
}

// ItemFinishedMsg announces a terminal transition for one item.
type ItemFinishedMsg struct {
	UUID   string
	Status Status
}

// Relay subscribes to the store and forwards messages, typically into
// tea.Program.Send: a StateChangedMsg for every committed mutation, a
// PositionMsg when the playback position moved, and an ItemFinishedMsg for
// each item that reached a terminal status since the previous snapshot. It
// returns the unsubscribe function.
func Relay(store *Store, send func(tea.Msg)) func() {
	var mu sync.Mutex
	prev := store.State()

	return store.Subscribe(func() {
		state := store.State()

		mu.Lock()
		last := prev
		prev = state
		mu.Unlock()

		send(StateChangedMsg{State: state})

		if state.PositionMs != last.PositionMs {
			var durationMs int64
			if state.Current != nil {
				durationMs = state.Current.DurationMs
			}
			send(PositionMsg{PositionMs: state.PositionMs, DurationMs: durationMs})
		}

		for i := range state.Items {
			item := &state.Items[i]
			if item.Status != StatusCompleted && item.Status != StatusFailed {
				continue
			}
			before := last.Item(item.UUID)
			if before == nil || before.Status != item.Status {
				send(ItemFinishedMsg{UUID: item.UUID, Status: item.Status})
			}
		}
	})
}
