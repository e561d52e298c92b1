package synth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/voicedeck/voicedeck/speech"
)

func TestSynthesizeSendsRequestAndReturnsPCM(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	var gotReq synthesizeRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/synthesize" {
			t.Errorf("request = %s %s, want POST /v1/synthesize", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		_, _ = w.Write(pcm)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithAPIKey("secret"), WithLogger(log.New(io.Discard)))
	got, err := client.Synthesize(context.Background(), "hello", "session-1", "voice-1")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if len(got) != len(pcm) {
		t.Errorf("payload = %d bytes, want %d", len(got), len(pcm))
	}
	if gotReq.Text != "hello" || gotReq.SessionID != "session-1" || gotReq.VoiceID != "voice-1" {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.SampleRate != 22050 || gotReq.Format != "pcm_s16le" {
		t.Errorf("audio params = %d %q, want 22050 pcm_s16le", gotReq.SampleRate, gotReq.Format)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestSynthesizeNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(log.New(io.Discard)))
	_, err := client.Synthesize(context.Background(), "hello", "s", "v")

	var statusErr *speech.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *speech.StatusError", err)
	}
	if statusErr.Code != http.StatusTooManyRequests || statusErr.Message != "slow down" {
		t.Errorf("status error = %+v", statusErr)
	}
}

func TestSynthesizeEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(log.New(io.Discard)))
	_, err := client.Synthesize(context.Background(), "hello", "s", "v")
	if !errors.Is(err, speech.ErrEmptyAudio) {
		t.Errorf("error = %v, want ErrEmptyAudio", err)
	}
}

func TestSynthesizeNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // immediately, so the dial fails

	client := NewClient(server.URL, WithLogger(log.New(io.Discard)))
	_, err := client.Synthesize(context.Background(), "hello", "s", "v")
	if err == nil {
		t.Fatal("Synthesize() succeeded against a closed server")
	}
	var statusErr *speech.StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("network failure surfaced as StatusError: %v", err)
	}
}

func TestSynthesizeNoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization header sent without an API key")
		}
		_, _ = w.Write([]byte{1, 0})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(log.New(io.Discard)))
	if _, err := client.Synthesize(context.Background(), "hello", "s", "v"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
}

func TestSynthesizeHonorsCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{1, 0})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, WithLogger(log.New(io.Discard)))
	if _, err := client.Synthesize(ctx, "hello", "s", "v"); err == nil {
		t.Fatal("Synthesize() succeeded with a canceled context")
	}
}
