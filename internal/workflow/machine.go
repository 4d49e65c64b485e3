package workflow

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"readalong/companion/internal/audio"
	"readalong/companion/internal/timer"
)

// Timers is the countdown-timer collaborator. The machine only starts and
// cancels timers by name; it never touches the handles.
type Timers interface {
	Start(name timer.Name, d time.Duration)
	Cancel(name timer.Name)
	CancelAll()
	Active(name timer.Name) bool
}

// Audio is the playback collaborator. At most one narration session is live
// behind it at any time.
type Audio interface {
	Play(ctx context.Context, url string) error
	Pause() (int64, error)
	Resume(ctx context.Context, posMs int64) error
	Stop()
	IsPlaying() bool
}

// Navigator turns pages. A nil page with a nil error means there is no page
// in that direction.
type Navigator interface {
	Next(ctx context.Context) (*PageRef, bool, error)
	Previous(ctx context.Context) (*PageRef, bool, error)
}

// Source resolves a page to a playable narration URL.
type Source interface {
	ResolveAudioURL(ctx context.Context, page PageRef) (string, error)
}

// Listener receives a state and context snapshot on every observable change.
type Listener func(state State, ctx Context)

// Options configures a machine. Zero durations fall back to the defaults
// from the reading flow: 1s pre-roll, 3s silence window.
type Options struct {
	PreRoll       time.Duration
	SilenceWindow time.Duration
	Policy        InterruptPolicy
	SessionID     string
	// Journal, when set, receives one entry per transition and notable event.
	Journal func(typ string, payload map[string]any)
}

const (
	DefaultPreRoll       = 1000 * time.Millisecond
	DefaultSilenceWindow = 3000 * time.Millisecond

	navigateTimeout = 10 * time.Second
)

type notification struct {
	state     State
	ctx       Context
	listeners []Listener
}

// Machine is the narration/auto-advance orchestration core. All handlers
// serialize on one mutex and run to completion; collaborators are injected
// at construction and their callbacks re-enter through the typed handlers.
type Machine struct {
	mu      sync.Mutex
	state   State
	ctxRec  Context
	enabled bool

	// gen invalidates in-flight async work (play, resume, navigate) on
	// Reset/SetEnabled(false) so stale results cannot be observed.
	gen uint64

	playRequested bool
	// playToken identifies the outstanding narration-play request; every
	// transition invalidates it so a stale resolution can never start
	// playback for a superseded run.
	playToken    uint64
	rearmPending bool

	preRoll       time.Duration
	silenceWindow time.Duration
	policy        InterruptPolicy
	sessionID     string
	journal       func(typ string, payload map[string]any)

	timers Timers
	audio  Audio
	nav    Navigator
	source Source

	subs    map[int]Listener
	nextSub int
	pending []notification
}

func NewMachine(timers Timers, aud Audio, nav Navigator, source Source, opts Options) *Machine {
	if opts.PreRoll <= 0 {
		opts.PreRoll = DefaultPreRoll
	}
	if opts.SilenceWindow <= 0 {
		opts.SilenceWindow = DefaultSilenceWindow
	}
	if opts.Policy == "" {
		opts.Policy = PolicyReset
	}
	return &Machine{
		state:         StateIdle,
		preRoll:       opts.PreRoll,
		silenceWindow: opts.SilenceWindow,
		policy:        opts.Policy,
		sessionID:     opts.SessionID,
		journal:       opts.Journal,
		timers:        timers,
		audio:         aud,
		nav:           nav,
		source:        source,
		subs:          make(map[int]Listener),
	}
}

// State returns the current state and a context snapshot.
func (m *Machine) State() (State, Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.ctxRec.snapshot()
}

// Enabled reports whether event handlers are live.
func (m *Machine) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Subscribe registers a listener and delivers the current snapshot
// immediately. The returned function unsubscribes.
func (m *Machine) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = l
	st, snap := m.state, m.ctxRec.snapshot()
	m.mu.Unlock()
	l(st, snap)
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// dispatch runs fn under the lock and flushes queued notifications after
// releasing it, so listeners can safely call back into the machine.
func (m *Machine) dispatch(fn func()) {
	m.mu.Lock()
	fn()
	notes := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, n := range notes {
		for _, l := range n.listeners {
			l(n.state, n.ctx)
		}
	}
}

func (m *Machine) notifyLocked() {
	ls := make([]Listener, 0, len(m.subs))
	for _, l := range m.subs {
		ls = append(ls, l)
	}
	m.pending = append(m.pending, notification{state: m.state, ctx: m.ctxRec.snapshot(), listeners: ls})
}

func (m *Machine) journalLocked(typ string, payload map[string]any) {
	if m.journal != nil {
		m.journal(typ, payload)
	}
}

// transitionLocked moves to a new state and notifies subscribers. Re-entering
// the same state is a no-op, except ERROR which always re-notifies.
func (m *Machine) transitionLocked(to State) {
	from := m.state
	if from == to && to != StateError {
		return
	}
	m.state = to
	m.playRequested = false
	m.playToken++
	if to != StateWaitingForNarration {
		m.rearmPending = false
	}
	metricStateTransitions.WithLabelValues(string(from), string(to)).Inc()
	m.journalLocked("state_changed", map[string]any{"from": string(from), "to": string(to)})
	m.notifyLocked()
}

func (m *Machine) armPreRollLocked() {
	metricPreRollArms.Inc()
	m.timers.Start(timer.PreRoll, m.preRoll)
}

func (m *Machine) armSilenceLocked() {
	metricSilenceArms.Inc()
	m.timers.Start(timer.Silence, m.silenceWindow)
}

// enterErrorLocked records the failure, tears down timers and audio, and
// transitions to ERROR. ERROR is always re-notified even if already active.
func (m *Machine) enterErrorLocked(reason string) {
	log.Printf("[workflow] sid=%s error: %s", m.sessionID, reason)
	m.ctxRec.LastError = &ErrorInfo{Reason: reason}
	m.ctxRec.PausePositionMs = nil
	m.timers.CancelAll()
	m.audio.Stop()
	m.journalLocked("workflow_error", map[string]any{"reason": reason})
	m.transitionLocked(StateError)
}

// fail enters ERROR from async work, unless the work was invalidated by a
// Reset or disable in the meantime.
func (m *Machine) fail(reason string, gen uint64) {
	m.dispatch(func() {
		if m.gen != gen || !m.enabled {
			return
		}
		m.enterErrorLocked(reason)
	})
}

// SetEnabled toggles event handling. Disabling forces IDLE and synchronously
// cancels every timer and stops any live audio before returning.
func (m *Machine) SetEnabled(enabled bool) {
	m.dispatch(func() {
		if m.enabled == enabled {
			return
		}
		m.enabled = enabled
		m.journalLocked("enabled_changed", map[string]any{"enabled": enabled})
		if enabled {
			return
		}
		m.gen++
		m.timers.CancelAll()
		m.audio.Stop()
		m.ctxRec.PausePositionMs = nil
		m.transitionLocked(StateIdle)
	})
}

// Reset unconditionally returns to IDLE with an empty context. It is the
// only way out of ERROR.
func (m *Machine) Reset() {
	m.dispatch(func() {
		m.gen++
		m.timers.CancelAll()
		m.audio.Stop()
		hadContext := m.ctxRec.CurrentPage != nil || m.ctxRec.LastError != nil || m.ctxRec.PausePositionMs != nil
		m.ctxRec.clear()
		m.playRequested = false
		m.rearmPending = false
		m.journalLocked("reset", nil)
		if m.state != StateIdle {
			m.transitionLocked(StateIdle)
		} else if hadContext {
			m.notifyLocked()
		}
	})
}

// SetCurrentPage seeds the active page, typically right after the session is
// started and before the assistant's first turn.
func (m *Machine) SetCurrentPage(page PageRef, isLast bool) {
	m.dispatch(func() {
		if !m.enabled {
			return
		}
		p := page
		m.ctxRec.CurrentPage = &p
		m.ctxRec.IsLastPage = isLast
		m.journalLocked("page_set", map[string]any{"page_id": page.ID, "index": page.Index, "is_last": isLast})
		m.notifyLocked()
	})
}

// HandleAssistantSpeechStart marks the assistant persona as talking. During
// silence timing it also cancels the window: the silence timer is cancelled
// by either speaker.
func (m *Machine) HandleAssistantSpeechStart() {
	m.dispatch(func() {
		if !m.enabled {
			return
		}
		switch m.state {
		case StateIdle:
			m.transitionLocked(StateAssistantSpeaking)
		case StateSilenceTiming:
			m.timers.Cancel(timer.Silence)
			m.transitionLocked(StateAssistantSpeaking)
		}
	})
}

// HandleAssistantSpeechStop arms the pre-roll, or joins narration already in
// flight without restarting it.
func (m *Machine) HandleAssistantSpeechStop() {
	m.dispatch(func() {
		if !m.enabled || m.state != StateAssistantSpeaking {
			return
		}
		if m.audio.IsPlaying() {
			// Narration kept playing under the assistant's turn; no restart.
			m.transitionLocked(StateNarrationPlaying)
			return
		}
		m.transitionLocked(StateWaitingForNarration)
		m.armPreRollLocked()
	})
}

// HandleChildSpeechStart is the interruption path: it cancels pending timers
// or pauses narration, capturing the exact playback position.
func (m *Machine) HandleChildSpeechStart() {
	m.dispatch(func() {
		if !m.enabled {
			return
		}
		switch m.state {
		case StateWaitingForNarration:
			metricInterruptions.Inc()
			m.timers.Cancel(timer.PreRoll)
			if m.policy == PolicyRearm {
				m.rearmPending = true
				m.journalLocked("pre_roll_suspended", nil)
				return
			}
			m.transitionLocked(StateIdle)
		case StateSilenceTiming:
			metricInterruptions.Inc()
			m.timers.Cancel(timer.Silence)
			m.transitionLocked(StateIdle)
		case StateNarrationPlaying:
			metricInterruptions.Inc()
			pos, err := m.audio.Pause()
			if err != nil {
				// Overlapping audio op; drop the signal rather than corrupt
				// playback state.
				log.Printf("[workflow] sid=%s pause rejected: %v", m.sessionID, err)
				return
			}
			m.ctxRec.PausePositionMs = &pos
			m.transitionLocked(StateNarrationPaused)
		}
	})
}

// HandleChildSpeechStop resumes paused narration from the captured position,
// or re-arms the pre-roll under the rearm policy.
func (m *Machine) HandleChildSpeechStop() {
	m.dispatch(func() {
		if !m.enabled {
			return
		}
		switch m.state {
		case StateNarrationPaused:
			var pos int64
			if m.ctxRec.PausePositionMs != nil {
				pos = *m.ctxRec.PausePositionMs
			}
			m.ctxRec.PausePositionMs = nil
			m.transitionLocked(StateNarrationPlaying)
			gen := m.gen
			go m.resumeNarration(pos, gen)
		case StateWaitingForNarration:
			if m.rearmPending {
				m.rearmPending = false
				m.journalLocked("pre_roll_rearmed", nil)
				m.armPreRollLocked()
			}
		}
	})
}

// HandleNarrationPlaybackStart is fed by the audio manager once playback is
// actually audible. Playback that surfaces on a disabled machine lost its
// teardown race and is stopped here.
func (m *Machine) HandleNarrationPlaybackStart() {
	m.dispatch(func() {
		if !m.enabled {
			m.audio.Stop()
			return
		}
		if m.state == StateNarrationPlaying {
			return
		}
		m.ctxRec.PausePositionMs = nil
		m.transitionLocked(StateNarrationPlaying)
	})
}

// HandleNarrationPlaybackEnd arms the silence window that precedes an
// auto-advance.
func (m *Machine) HandleNarrationPlaybackEnd() {
	m.dispatch(func() {
		if !m.enabled || m.state != StateNarrationPlaying {
			return
		}
		m.transitionLocked(StateSilenceTiming)
		m.armSilenceLocked()
	})
}

// HandleNarrationError records a playback failure and enters ERROR.
func (m *Machine) HandleNarrationError(reason string) {
	m.dispatch(func() {
		if !m.enabled {
			return
		}
		metricPlaybackErrors.Inc()
		m.enterErrorLocked("playback: " + reason)
	})
}

// HandlePreRollElapsed invokes the narration-play command exactly once. The
// state does not change until the playback-start event fires.
func (m *Machine) HandlePreRollElapsed() {
	m.dispatch(func() {
		if !m.enabled || m.state != StateWaitingForNarration || m.playRequested {
			return
		}
		m.playRequested = true
		m.playToken++
		m.journalLocked("narration_requested", nil)
		gen, tok := m.gen, m.playToken
		go m.startNarration(gen, tok)
	})
}

// HandleSilenceElapsed auto-advances, or winds down on the last page.
func (m *Machine) HandleSilenceElapsed() {
	m.dispatch(func() {
		if !m.enabled || m.state != StateSilenceTiming {
			return
		}
		if m.ctxRec.IsLastPage {
			m.journalLocked("book_finished", nil)
			m.transitionLocked(StateIdle)
			return
		}
		metricAutoAdvances.Inc()
		m.transitionLocked(StateTurningPage)
		gen := m.gen
		go m.navigate(true, gen)
	})
}

// HandlePageTurnComplete lands a finished page turn and arms the next
// pre-roll.
func (m *Machine) HandlePageTurnComplete(page PageRef, isLast bool) {
	m.dispatch(func() {
		if !m.enabled || m.state != StateTurningPage {
			return
		}
		p := page
		m.ctxRec.CurrentPage = &p
		m.ctxRec.IsLastPage = isLast
		m.ctxRec.PausePositionMs = nil
		m.journalLocked("page_turned", map[string]any{"page_id": page.ID, "index": page.Index, "is_last": isLast})
		m.transitionLocked(StateWaitingForNarration)
		m.armPreRollLocked()
	})
}

// SkipToNextPage behaves like an interruption: timers cancelled, audio
// stopped, navigation invoked immediately, silence timing bypassed.
func (m *Machine) SkipToNextPage() { m.skip(true) }

// SkipToPreviousPage is the backward counterpart of SkipToNextPage.
func (m *Machine) SkipToPreviousPage() { m.skip(false) }

func (m *Machine) skip(forward bool) {
	m.dispatch(func() {
		if !m.enabled || m.state == StateError {
			return
		}
		dir := "previous"
		if forward {
			dir = "next"
		}
		metricManualSkips.WithLabelValues(dir).Inc()
		// Invalidate any in-flight play/resume so a skip behaves like a full
		// interruption of the pending narration, not just the audible one.
		m.gen++
		m.timers.CancelAll()
		m.audio.Stop()
		m.ctxRec.PausePositionMs = nil
		m.journalLocked("manual_skip", map[string]any{"direction": dir})
		m.transitionLocked(StateTurningPage)
		gen := m.gen
		go m.navigate(forward, gen)
	})
}

// startNarration resolves the current page's narration URL and starts
// playback. Runs off the handler goroutine; results are guarded by the
// machine generation and the play token captured at request time.
func (m *Machine) startNarration(gen, tok uint64) {
	m.mu.Lock()
	if m.gen != gen || !m.enabled || m.playToken != tok || m.ctxRec.CurrentPage == nil {
		stale := m.gen != gen || !m.enabled || m.playToken != tok
		m.mu.Unlock()
		if !stale {
			m.fail("no current page to narrate", gen)
		}
		return
	}
	page := *m.ctxRec.CurrentPage
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), navigateTimeout)
	defer cancel()
	url, err := m.source.ResolveAudioURL(ctx, page)
	if err != nil {
		metricPlaybackErrors.Inc()
		m.fail("resolve narration: "+err.Error(), gen)
		return
	}

	// Teardown, reset or a skip may have landed while the URL was resolving;
	// starting playback then would leak audio past the invalidated run.
	m.mu.Lock()
	if m.gen != gen || !m.enabled || m.state != StateWaitingForNarration || m.playToken != tok {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.audio.Play(ctx, url); err != nil {
		if errors.Is(err, audio.ErrBusy) {
			log.Printf("[workflow] sid=%s play rejected busy", m.sessionID)
			return
		}
		metricPlaybackErrors.Inc()
		m.fail("playback: "+err.Error(), gen)
	}
}

func (m *Machine) resumeNarration(posMs int64, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), navigateTimeout)
	defer cancel()
	if err := m.audio.Resume(ctx, posMs); err != nil {
		if errors.Is(err, audio.ErrBusy) {
			log.Printf("[workflow] sid=%s resume rejected busy", m.sessionID)
			return
		}
		metricPlaybackErrors.Inc()
		m.fail("resume: "+err.Error(), gen)
	}
}

// navigate asks the collaborator for the adjacent page and lands the result
// through HandlePageTurnComplete semantics.
func (m *Machine) navigate(forward bool, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), navigateTimeout)
	defer cancel()

	var (
		page *PageRef
		last bool
		err  error
	)
	if forward {
		page, last, err = m.nav.Next(ctx)
	} else {
		page, last, err = m.nav.Previous(ctx)
	}
	if err != nil {
		metricNavigationErrors.Inc()
		m.fail("navigation: "+err.Error(), gen)
		return
	}
	if page == nil {
		// No page in that direction; wind down rather than error.
		m.dispatch(func() {
			if m.gen != gen || !m.enabled || m.state != StateTurningPage {
				return
			}
			m.journalLocked("navigation_exhausted", nil)
			m.transitionLocked(StateIdle)
		})
		return
	}
	m.dispatch(func() {
		if m.gen != gen || !m.enabled || m.state != StateTurningPage {
			return
		}
		p := *page
		m.ctxRec.CurrentPage = &p
		m.ctxRec.IsLastPage = last
		m.ctxRec.PausePositionMs = nil
		m.journalLocked("page_turned", map[string]any{"page_id": p.ID, "index": p.Index, "is_last": last})
		m.transitionLocked(StateWaitingForNarration)
		m.armPreRollLocked()
	})
}
