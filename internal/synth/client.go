// Package synth provides the HTTP client for the speech synthesis service.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/voicedeck/voicedeck/speech"
)

const (
	// DefaultTimeout bounds a single synthesis round trip.
	DefaultTimeout = 30 * time.Second

	// requestsPerSecond caps outbound synthesis calls so rapid queue
	// advancement cannot hammer the service.
	requestsPerSecond = 4
	burstSize         = 2
)

// Client implements speech.Synthesizer against an HTTP synthesis endpoint.
// The service accepts a JSON request and answers with raw 16-bit PCM.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithLogger sets the client logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a synthesis client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type synthesizeRequest struct {
	Text       string `json:"text"`
	SessionID  string `json:"session_id"`
	VoiceID    string `json:"voice_id"`
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
}

// Synthesize converts text to a PCM payload. Non-2xx responses surface as
// *speech.StatusError; an empty body surfaces as speech.ErrEmptyAudio.
func (c *Client) Synthesize(ctx context.Context, text, sessionID, voiceID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("synthesis rate limit: %w", err)
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:       text,
		SessionID:  sessionID,
		VoiceID:    voiceID,
		SampleRate: 22050,
		Format:     "pcm_s16le",
	})
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &speech.StatusError{Code: resp.StatusCode, Message: string(bytes.TrimSpace(detail))}
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, speech.ErrEmptyAudio
	}

	c.logger.Debug("synthesized audio",
		"voice", voiceID,
		"chars", len(text),
		"bytes", len(pcm),
		"took", time.Since(start))
	return pcm, nil
}
