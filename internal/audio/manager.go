package audio

import (
	"context"
	"errors"
	"log"
	"sync"
)

var (
	// ErrBusy rejects an operation that overlaps one still in flight.
	ErrBusy = errors.New("audio: operation in flight")
	// ErrNotPlaying rejects Pause when nothing is audible.
	ErrNotPlaying = errors.New("audio: not playing")
	// ErrNoSession rejects Resume with no loaded session.
	ErrNoSession = errors.New("audio: no session")
)

// Player loads a narration clip into a playable session. Implementations
// wrap the actual media primitive (see BeepPlayer).
type Player interface {
	Load(ctx context.Context, url string) (Session, error)
}

// Session is one loaded narration clip. done is invoked exactly once when
// playback finishes naturally or dies; it is never invoked after Stop.
type Session interface {
	Play(done func(err error)) error
	Pause() (posMs int64)
	Resume(posMs int64) error
	Stop()
}

// Callbacks surface playback lifecycle to the workflow.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(reason string)
}

// Manager owns at most one live narration session. A single non-reentrant
// operation guard serializes Play/Pause/Resume so overlapping calls are
// rejected with ErrBusy instead of corrupting playback state. Errors
// returned synchronously are left to the caller; only asynchronous session
// failures fire OnError.
type Manager struct {
	mu      sync.Mutex
	player  Player
	cb      Callbacks
	sess    Session
	busy    bool
	playing bool
	gen     uint64
}

func NewManager(player Player) *Manager {
	return &Manager{player: player}
}

// SetCallbacks binds the lifecycle sinks. Must be called before playback
// starts. Callbacks fire outside the manager lock.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// IsPlaying reports whether narration is currently audible.
func (m *Manager) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Play loads url and starts it. A prior session is stopped and discarded
// first; no two sessions ever coexist.
func (m *Manager) Play(ctx context.Context, url string) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	m.busy = true
	gen := m.gen
	old := m.sess
	m.sess = nil
	m.playing = false
	m.mu.Unlock()

	if old != nil {
		old.Pause()
		old.Stop()
	}

	s, err := m.player.Load(ctx, url)

	m.mu.Lock()
	if m.gen != gen {
		// Stopped or reset while loading; discard quietly.
		m.busy = false
		m.mu.Unlock()
		if s != nil {
			s.Stop()
		}
		return nil
	}
	if err != nil {
		m.busy = false
		m.mu.Unlock()
		return err
	}
	m.sess = s
	m.mu.Unlock()

	if err := s.Play(func(perr error) { m.sessionDone(s, perr) }); err != nil {
		m.mu.Lock()
		if m.sess == s {
			m.sess = nil
		}
		m.busy = false
		m.mu.Unlock()
		s.Stop()
		return err
	}

	m.mu.Lock()
	m.playing = true
	m.busy = false
	onStart := m.cb.OnStart
	m.mu.Unlock()
	if onStart != nil {
		onStart()
	}
	return nil
}

// Pause halts playback and returns the exact position in milliseconds as
// reported by the session, not rounded to any tick granularity.
func (m *Manager) Pause() (int64, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return 0, ErrBusy
	}
	if m.sess == nil || !m.playing {
		m.mu.Unlock()
		return 0, ErrNotPlaying
	}
	m.busy = true
	s := m.sess
	m.mu.Unlock()

	pos := s.Pause()

	m.mu.Lock()
	m.playing = false
	m.busy = false
	m.mu.Unlock()
	return pos, nil
}

// Resume continues the current session from posMs.
func (m *Manager) Resume(ctx context.Context, posMs int64) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.busy = true
	s := m.sess
	m.mu.Unlock()

	err := s.Resume(posMs)

	m.mu.Lock()
	if err == nil {
		m.playing = true
	}
	m.busy = false
	m.mu.Unlock()
	return err
}

// Stop discards any live session, pausing and zeroing position first. It is
// safe on every exit path and never fires callbacks; in-flight operations
// become stale and discard their results.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.gen++
	s := m.sess
	m.sess = nil
	m.playing = false
	m.busy = false
	m.mu.Unlock()

	if s != nil {
		s.Pause()
		s.Stop()
	}
}

// sessionDone handles natural completion or asynchronous failure. A done
// signal from a session that is no longer current is ignored.
func (m *Manager) sessionDone(s Session, err error) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.playing = false
	onEnd := m.cb.OnEnd
	onError := m.cb.OnError
	m.mu.Unlock()

	if err != nil {
		log.Printf("[audio] session failed: %v", err)
		if onError != nil {
			onError(err.Error())
		}
		return
	}
	if onEnd != nil {
		onEnd()
	}
}
