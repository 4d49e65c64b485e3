package timer

import (
	"sync"
	"time"
)

// Name identifies one of the two countdown timers the reader workflow arms.
type Name string

const (
	PreRoll Name = "pre_roll"
	Silence Name = "silence"
)

const DefaultTick = 100 * time.Millisecond

// TickFunc receives the remaining duration on every cadence tick.
type TickFunc func(name Name, remaining time.Duration)

// ElapsedFunc fires exactly once when a timer counts down to zero.
type ElapsedFunc func(name Name)

type run struct {
	gen       uint64
	total     time.Duration
	remaining time.Duration
	active    bool
}

// Engine owns the two named countdown timers. Starting an already-active
// timer cancels the prior run first; cancelling an inactive timer is a no-op.
// A generation counter guards against ticks or completions from a superseded
// run racing a restart.
type Engine struct {
	mu   sync.Mutex
	tick time.Duration
	runs map[Name]*run

	onTick    TickFunc
	onElapsed ElapsedFunc
}

func NewEngine(tick time.Duration) *Engine {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Engine{
		tick: tick,
		runs: map[Name]*run{
			PreRoll: {},
			Silence: {},
		},
	}
}

// SetCallbacks binds the tick/elapsed sinks. Must be called before Start.
// Callbacks fire outside the engine lock and may call back into the engine.
func (e *Engine) SetCallbacks(onTick TickFunc, onElapsed ElapsedFunc) {
	e.mu.Lock()
	e.onTick = onTick
	e.onElapsed = onElapsed
	e.mu.Unlock()
}

// Start arms the named timer for d. Any prior run of the same timer is
// cancelled; its pending ticks will never be observed.
func (e *Engine) Start(name Name, d time.Duration) {
	e.mu.Lock()
	r := e.runs[name]
	if r == nil {
		r = &run{}
		e.runs[name] = r
	}
	r.gen++
	r.total = d
	r.remaining = d
	r.active = true
	gen := r.gen
	tick := e.tick
	e.mu.Unlock()

	go e.loop(name, gen, tick)
}

// Cancel stops the named timer. No tick or completion from the cancelled run
// fires after Cancel returns. The generation is bumped even when the run has
// already counted down, so a completion committed but not yet delivered is
// suppressed too.
func (e *Engine) Cancel(name Name) {
	e.mu.Lock()
	if r := e.runs[name]; r != nil {
		r.gen++
		r.active = false
		r.remaining = 0
	}
	e.mu.Unlock()
}

// CancelAll cancels both timers.
func (e *Engine) CancelAll() {
	e.Cancel(PreRoll)
	e.Cancel(Silence)
}

// Active reports whether the named timer is currently counting down.
func (e *Engine) Active(name Name) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.runs[name]
	return r != nil && r.active
}

// Remaining returns the time left on the named timer, zero if inactive.
func (e *Engine) Remaining(name Name) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.runs[name]
	if r == nil || !r.active {
		return 0
	}
	return r.remaining
}

func (e *Engine) loop(name Name, gen uint64, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for range t.C {
		e.mu.Lock()
		r := e.runs[name]
		if r == nil || r.gen != gen || !r.active {
			e.mu.Unlock()
			return
		}
		r.remaining -= tick
		elapsed := r.remaining <= 0
		if elapsed {
			r.remaining = 0
			r.active = false
		}
		remaining := r.remaining
		onTick := e.onTick
		onElapsed := e.onElapsed
		e.mu.Unlock()

		// Re-check right before firing so a Cancel that raced the bookkeeping
		// above still suppresses the callback.
		e.mu.Lock()
		stale := r.gen != gen
		e.mu.Unlock()
		if stale {
			return
		}

		if elapsed {
			if onElapsed != nil {
				onElapsed(name)
			}
			return
		}
		if onTick != nil {
			onTick(name, remaining)
		}
	}
}
