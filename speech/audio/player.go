// Package audio provides the platform audio primitive for the speech queue,
// backed by oto. Payloads are 16-bit little-endian PCM.
package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/voicedeck/voicedeck/speech"
)

const (
	// DefaultSampleRate matches what the synthesis service emits.
	DefaultSampleRate = 22050
	// DefaultChannels is mono speech audio.
	DefaultChannels = 1

	bytesPerSample = 2
	watchInterval  = 50 * time.Millisecond
)

// Context wraps the process-wide oto context. Only one may exist per
// process; the primary surface creates it once at startup.
type Context struct {
	otoCtx     *oto.Context
	sampleRate int
	channels   int
	logger     *log.Logger
}

// NewContext initializes the audio device and blocks until it is ready.
func NewContext(sampleRate, channels int, logger *log.Logger) (*Context, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	if logger == nil {
		logger = log.Default()
	}

	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	otoCtx, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("initialize audio context: %w", err)
	}
	<-ready

	logger.Debug("audio context ready", "sample_rate", sampleRate, "channels", channels)
	return &Context{
		otoCtx:     otoCtx,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
	}, nil
}

// NewPlayer constructs a player bound to one PCM payload. Lifecycle hooks
// fire from the player's watch goroutine, never synchronously from here.
func (c *Context) NewPlayer(pcm []byte, hooks speech.PlayerHooks) (speech.AudioPlayer, error) {
	frameSize := c.channels * bytesPerSample
	if len(pcm) == 0 || len(pcm)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte frames",
			speech.ErrInvalidAudioFormat, len(pcm), frameSize)
	}

	src := bytes.NewReader(pcm)
	player := &Player{
		oto:         c.otoCtx.NewPlayer(src),
		src:         src,
		totalBytes:  len(pcm),
		frameSize:   frameSize,
		bytesPerSec: c.sampleRate * frameSize,
		hooks:       hooks,
		logger:      c.logger,
		done:        make(chan struct{}),
	}
	go player.watch()
	return player, nil
}

// Player plays a single PCM payload through oto. Safe for concurrent use.
type Player struct {
	oto         *oto.Player
	src         *bytes.Reader
	totalBytes  int
	frameSize   int
	bytesPerSec int
	hooks       speech.PlayerHooks
	logger      *log.Logger

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	endOnce  sync.Once
	errOnce  sync.Once
	done     chan struct{}
}

// Play starts playback from the current position.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.oto.Play()
	p.started = true
	return nil
}

// Pause suspends playback, keeping the position.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.oto.Pause()
	return nil
}

// Resume continues playback. On a player that never started it behaves like
// Play, which is what the deferred-pause path relies on.
func (p *Player) Resume() error {
	return p.Play()
}

// Stop halts playback and releases the underlying device player.
func (p *Player) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.done)
		p.oto.Pause()
		err = p.oto.Close()
	})
	return err
}

// Seek repositions playback, aligned down to a whole frame.
func (p *Player) Seek(offset time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	byteOffset := int64(offset.Seconds() * float64(p.bytesPerSec))
	byteOffset -= byteOffset % int64(p.frameSize)
	if byteOffset < 0 {
		byteOffset = 0
	}
	if byteOffset > int64(p.totalBytes) {
		byteOffset = int64(p.totalBytes)
	}
	if _, err := p.oto.Seek(byteOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seek audio: %w", err)
	}
	return nil
}

// Position returns elapsed playback time, derived from how much of the
// payload has actually been consumed by the device.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	consumed := p.totalBytes - p.src.Len() - p.oto.UnplayedBufferSize()
	if consumed < 0 {
		consumed = 0
	}
	if p.bytesPerSec == 0 {
		return 0
	}
	return time.Duration(consumed) * time.Second / time.Duration(p.bytesPerSec)
}

// Duration returns the total payload duration.
func (p *Player) Duration() time.Duration {
	if p.bytesPerSec == 0 {
		return 0
	}
	return time.Duration(p.totalBytes) * time.Second / time.Duration(p.bytesPerSec)
}

// SetVolume sets playback volume in [0, 1].
func (p *Player) SetVolume(volume float64) {
	p.oto.SetVolume(volume)
}

// Playing reports whether the device is consuming the payload.
func (p *Player) Playing() bool {
	return p.oto.IsPlaying()
}

// watch drives the asynchronous lifecycle hooks: ready with the decoded
// duration, periodic progress, then exactly one of ended or error.
func (p *Player) watch() {
	if p.hooks.OnReady != nil {
		p.hooks.OnReady(p.Duration())
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		if err := p.oto.Err(); err != nil {
			p.errOnce.Do(func() {
				if p.hooks.OnError != nil {
					p.hooks.OnError(fmt.Errorf("audio device: %w", err))
				}
			})
			return
		}

		p.mu.Lock()
		started := p.started
		drained := p.src.Len() == 0 && p.oto.UnplayedBufferSize() == 0
		playing := p.oto.IsPlaying()
		position := p.positionLocked()
		p.mu.Unlock()

		if started && drained && !playing {
			p.endOnce.Do(func() {
				if p.hooks.OnEnded != nil {
					p.hooks.OnEnded()
				}
			})
			return
		}
		if playing && p.hooks.OnProgress != nil {
			p.hooks.OnProgress(position)
		}
	}
}
