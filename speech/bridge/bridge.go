// Package bridge synchronizes playback state between application surfaces.
// Exactly one surface, the primary, owns the audio primitive; secondaries
// mirror its state read-only and forward transport commands. Frames travel
// as JSON over a unix domain socket with at-most-once, most-recent-wins
// semantics: no retries, no ordering guarantee, and a periodic sync pull for
// self-healing.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"github.com/voicedeck/voicedeck/speech"
)

// PositionInterval caps position broadcasts to one per interval. Position
// changes far more often than discrete state transitions, so it gets its own
// throttled channel.
const PositionInterval = 200 * time.Millisecond

// reconcileInterval is how often a secondary pulls a fresh snapshot.
const reconcileInterval = 2 * time.Second

// writeTimeout bounds a single frame write. Delivery is best effort; a peer
// that stops reading gets dropped instead of stalling the broadcast path,
// which runs synchronously inside store mutations.
const writeTimeout = 250 * time.Millisecond

// Role identifies which side of the bridge this surface runs.
type Role int

const (
	// RolePrimary owns the audio primitive and performs synthesis calls.
	RolePrimary Role = iota
	// RoleSecondary mirrors state and forwards transport commands.
	RoleSecondary
)

// String returns the role name.
func (r Role) String() string {
	if r == RolePrimary {
		return "primary"
	}
	return "secondary"
}

// DetectRole decides the surface role once at startup: whoever holds the
// lock file is primary. The lock is held for the process lifetime; callers
// must not unlock it while serving.
func DetectRole(lockPath string) (Role, *flock.Flock, error) {
	lock := flock.New(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return RoleSecondary, nil, fmt.Errorf("acquire surface lock: %w", err)
	}
	if acquired {
		return RolePrimary, lock, nil
	}
	return RoleSecondary, nil, nil
}

// Transport is the subset of controller operations a secondary surface may
// drive remotely.
type Transport interface {
	Pause()
	Resume()
	TogglePlayPause(ctx context.Context)
	StopPlayback(ctx context.Context)
	SkipNext(ctx context.Context)
	SkipPrevious(ctx context.Context)
	Seek(offsetMs int64)
}

// Primary accepts secondary connections, dispatches their commands to the
// transport, and broadcasts state after every committed store mutation plus
// throttled position frames.
type Primary struct {
	path      string
	transport Transport
	store     *speech.Store
	logger    *log.Logger
	limiter   *rate.Limiter

	listener    net.Listener
	unsubscribe func()

	mu    sync.Mutex
	conns map[net.Conn]*json.Encoder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrimary binds the primary side of the bridge to a socket path.
func NewPrimary(socketPath string, transport Transport, store *speech.Store, logger *log.Logger) (*Primary, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	return &Primary{
		path:      socketPath,
		transport: transport,
		store:     store,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Every(PositionInterval), 1),
		listener:  listener,
		conns:     make(map[net.Conn]*json.Encoder),
	}, nil
}

// Serve starts accepting secondary connections and broadcasting store
// mutations until the context is canceled.
func (p *Primary) Serve(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.unsubscribe = p.store.Subscribe(func() {
		p.broadcastState()
	})

	p.logger.Debug("sync bridge listening", "socket", p.path)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			conn, err := p.listener.Accept()
			if err != nil {
				select {
				case <-p.ctx.Done():
					return
				default:
				}
				p.logger.Warn("bridge accept failed", "error", err)
				continue
			}
			p.addConn(conn)
			p.wg.Add(1)
			go func(c net.Conn) {
				defer p.wg.Done()
				p.handleConn(c)
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (p *Primary) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	_ = p.listener.Close()
	p.mu.Lock()
	for conn := range p.conns {
		_ = conn.Close()
	}
	p.conns = make(map[net.Conn]*json.Encoder)
	p.mu.Unlock()
	p.wg.Wait()
	if err := os.RemoveAll(p.path); err != nil {
		p.logger.Warn("failed to remove bridge socket", "socket", p.path, "error", err)
	}
}

// BroadcastPosition fans a position frame out to all secondaries, at most
// once per PositionInterval. Implements speech.PositionBroadcaster.
func (p *Primary) BroadcastPosition(positionMs, durationMs int64) {
	if !p.limiter.Allow() {
		return
	}
	p.broadcast(Frame{
		Type:     FramePosition,
		Position: &Position{PositionMs: positionMs, DurationMs: durationMs},
	})
}

func (p *Primary) broadcastState() {
	state := p.store.State()
	p.broadcast(Frame{Type: FrameState, State: &state})
}

// broadcast writes a frame to every connection, dropping those that fail or
// exceed the write deadline. Best effort: a secondary that misses a frame
// heals on its next sync pull.
func (p *Primary) broadcast(frame Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn, enc := range p.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := enc.Encode(frame); err != nil {
			p.logger.Debug("dropping bridge connection", "error", err)
			_ = conn.Close()
			delete(p.conns, conn)
		}
	}
}

func (p *Primary) addConn(conn net.Conn) {
	p.mu.Lock()
	p.conns[conn] = json.NewEncoder(conn)
	p.mu.Unlock()
}

func (p *Primary) removeConn(conn net.Conn) {
	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
	_ = conn.Close()
}

func (p *Primary) handleConn(conn net.Conn) {
	defer p.removeConn(conn)

	dec := json.NewDecoder(conn)
	for {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				p.logger.Debug("bridge connection closed", "error", err)
			}
			return
		}
		if err := frame.Validate(); err != nil {
			p.logger.Warn("dropping invalid bridge frame", "error", err)
			continue
		}
		if frame.Type != FrameCommand {
			// Secondaries only send commands; anything else is dropped.
			p.logger.Warn("dropping unexpected bridge frame", "type", frame.Type)
			continue
		}
		p.dispatch(*frame.Command, conn)
	}
}

// dispatch maps a validated command onto the transport. Sync replies only to
// the requesting connection.
func (p *Primary) dispatch(cmd Command, conn net.Conn) {
	switch cmd.Kind {
	case CommandPause:
		p.transport.Pause()
	case CommandResume:
		p.transport.Resume()
	case CommandToggle:
		p.transport.TogglePlayPause(p.ctx)
	case CommandSkipNext:
		p.transport.SkipNext(p.ctx)
	case CommandSkipPrevious:
		p.transport.SkipPrevious(p.ctx)
	case CommandStop:
		p.transport.StopPlayback(p.ctx)
	case CommandSeek:
		p.transport.Seek(cmd.OffsetMs)
	case CommandSync:
		state := p.store.State()
		p.mu.Lock()
		if enc, ok := p.conns[conn]; ok {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := enc.Encode(Frame{Type: FrameState, State: &state}); err != nil {
				p.logger.Debug("sync reply failed", "error", err)
				_ = conn.Close()
				delete(p.conns, conn)
			}
		}
		p.mu.Unlock()
	}
}

// Secondary mirrors the primary's state into a local store and forwards
// transport commands. The mirror is best effort, not ground truth.
type Secondary struct {
	conn   net.Conn
	store  *speech.Store
	logger *log.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

// Connect dials the primary's socket.
func Connect(socketPath string, store *speech.Store, logger *log.Logger) (*Secondary, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial sync bridge: %w", err)
	}
	return &Secondary{
		conn:   conn,
		store:  store,
		logger: logger,
		enc:    json.NewEncoder(conn),
	}, nil
}

// Run pulls an initial snapshot, then applies incoming frames to the mirror
// store until the context is canceled or the connection drops. A periodic
// sync pull self-heals missed broadcasts.
func (s *Secondary) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Send(Command{Kind: CommandSync}); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				_ = s.conn.Close()
				return
			case <-ticker.C:
				if err := s.Send(Command{Kind: CommandSync}); err != nil {
					s.logger.Debug("reconciliation pull failed", "error", err)
				}
			}
		}
	}()

	dec := json.NewDecoder(s.conn)
	for {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge connection lost: %w", err)
		}
		if err := frame.Validate(); err != nil {
			s.logger.Warn("dropping invalid bridge frame", "error", err)
			continue
		}
		switch frame.Type {
		case FrameState:
			s.store.Replace(*frame.State)
		case FramePosition:
			position := *frame.Position
			s.store.Update(func(st *speech.QueueState) {
				st.PositionMs = position.PositionMs
			})
		default:
			s.logger.Warn("dropping unexpected bridge frame", "type", frame.Type)
		}
	}
}

// Send forwards a transport command to the primary. For pause, resume and
// toggle the local isPaused flag flips optimistically so controls feel
// responsive before the next broadcast confirms.
func (s *Secondary) Send(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	err := s.enc.Encode(Frame{Type: FrameCommand, Command: &cmd})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("send bridge command: %w", err)
	}

	switch cmd.Kind {
	case CommandPause:
		s.store.Update(func(st *speech.QueueState) {
			st.IsPaused = true
			st.IsPlaying = false
		})
	case CommandResume:
		s.store.Update(func(st *speech.QueueState) {
			st.IsPaused = false
			st.IsPlaying = true
		})
	case CommandToggle:
		s.store.Update(func(st *speech.QueueState) {
			st.IsPaused, st.IsPlaying = st.IsPlaying, st.IsPaused
		})
	}
	return nil
}
