package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/voicedeck/voicedeck/speech"
)

func TestMockPlayerTransport(t *testing.T) {
	player := NewMockPlayer(time.Second, speech.PlayerHooks{})

	if err := player.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !player.Playing() {
		t.Error("Playing() = false after Play")
	}

	if err := player.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if player.Playing() {
		t.Error("Playing() = true after Pause")
	}

	if err := player.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := player.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	events := player.Events()
	want := []string{"play", "pause", "resume", "stop"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestMockPlayerSeekClamps(t *testing.T) {
	player := NewMockPlayer(time.Second, speech.PlayerHooks{})

	if err := player.Seek(5 * time.Second); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if got := player.Position(); got != time.Second {
		t.Errorf("Position() = %v, want clamp to 1s", got)
	}

	if err := player.Seek(-time.Second); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if got := player.Position(); got != 0 {
		t.Errorf("Position() = %v, want 0", got)
	}
}

func TestMockPlayerErrorInjection(t *testing.T) {
	player := NewMockPlayer(time.Second, speech.PlayerHooks{})
	injected := errors.New("device busy")
	player.PlayErr = injected

	if err := player.Play(); !errors.Is(err, injected) {
		t.Errorf("Play() error = %v, want %v", err, injected)
	}
	if len(player.Events()) != 0 {
		t.Errorf("events = %v, failed call must not be recorded", player.Events())
	}
}

func TestMockPlayerHooks(t *testing.T) {
	var readyTotal time.Duration
	var progress time.Duration
	ended := false
	var hookErr error

	player := NewMockPlayer(2*time.Second, speech.PlayerHooks{
		OnReady:    func(total time.Duration) { readyTotal = total },
		OnProgress: func(position time.Duration) { progress = position },
		OnEnded:    func() { ended = true },
		OnError:    func(err error) { hookErr = err },
	})

	player.FireReady()
	player.FireProgress(500 * time.Millisecond)
	player.FireEnded()
	player.FireError(errors.New("late"))

	if readyTotal != 2*time.Second {
		t.Errorf("ready total = %v, want 2s", readyTotal)
	}
	if progress != 500*time.Millisecond {
		t.Errorf("progress = %v, want 500ms", progress)
	}
	if !ended {
		t.Error("ended hook did not fire")
	}
	if hookErr == nil {
		t.Error("error hook did not fire")
	}
}

func TestMockDeckRecordsPlayers(t *testing.T) {
	deck := &MockDeck{Total: 3 * time.Second}
	factory := deck.Factory()

	player, err := factory([]byte{1, 0}, speech.PlayerHooks{})
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	if deck.Count() != 1 {
		t.Errorf("Count() = %d, want 1", deck.Count())
	}
	if deck.Last() != player {
		t.Error("Last() does not return the created player")
	}
	if got := player.Duration(); got != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got)
	}
}

func TestMockDeckFactoryError(t *testing.T) {
	deck := &MockDeck{NewErr: errors.New("no device")}
	if _, err := deck.Factory()([]byte{1, 0}, speech.PlayerHooks{}); err == nil {
		t.Fatal("factory error = nil, want injected error")
	}
	if deck.Count() != 0 {
		t.Errorf("Count() = %d, want 0", deck.Count())
	}
}
