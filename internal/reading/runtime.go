package reading

import (
	"log"
	"time"

	"readalong/companion/internal/audio"
	"readalong/companion/internal/book"
	"readalong/companion/internal/speechgate"
	"readalong/companion/internal/timer"
	"readalong/companion/internal/workflow"
)

// RuntimeOptions carries the per-session tunables from config.
type RuntimeOptions struct {
	PreRoll       time.Duration
	SilenceWindow time.Duration
	Tick          time.Duration
	Policy        workflow.InterruptPolicy
}

// Runtime bundles one session's live orchestration components: the timer
// engine, the audio manager, the speech gate and the workflow machine, wired
// to each other and to the book being read.
type Runtime struct {
	SessionID string
	Machine   *workflow.Machine
	Gate      *speechgate.Gate
	Timers    *timer.Engine
	Audio     *audio.Manager
	Navigator *book.Navigator
}

// NewRuntime builds and wires a runtime for one session. Wiring is circular
// (timers and audio call back into the machine), so the machine is built
// first and the callbacks bound afterwards.
func NewRuntime(sessionID string, b *book.Book, player audio.Player, source workflow.Source, journal func(typ string, payload map[string]any), opts RuntimeOptions) *Runtime {
	eng := timer.NewEngine(opts.Tick)
	mgr := audio.NewManager(player)
	nav := book.NewNavigator(b)

	m := workflow.NewMachine(eng, mgr, nav, source, workflow.Options{
		PreRoll:       opts.PreRoll,
		SilenceWindow: opts.SilenceWindow,
		Policy:        opts.Policy,
		SessionID:     sessionID,
		Journal:       journal,
	})

	eng.SetCallbacks(nil, func(name timer.Name) {
		switch name {
		case timer.PreRoll:
			m.HandlePreRollElapsed()
		case timer.Silence:
			m.HandleSilenceElapsed()
		}
	})

	mgr.SetCallbacks(audio.Callbacks{
		OnStart: m.HandleNarrationPlaybackStart,
		OnEnd:   m.HandleNarrationPlaybackEnd,
		OnError: m.HandleNarrationError,
	})

	g := speechgate.New(m, nil)

	return &Runtime{
		SessionID: sessionID,
		Machine:   m,
		Gate:      g,
		Timers:    eng,
		Audio:     mgr,
		Navigator: nav,
	}
}

// Start enables the machine and seeds the book's first page.
func (r *Runtime) Start() {
	r.Machine.SetEnabled(true)
	if page, last := r.Navigator.Current(); page != nil {
		r.Machine.SetCurrentPage(*page, last)
	}
	log.Printf("[reading] sid=%s runtime started", r.SessionID)
}

// Stop synchronously disables the machine, cancelling timers and stopping
// any live narration.
func (r *Runtime) Stop() {
	r.Machine.SetEnabled(false)
	log.Printf("[reading] sid=%s runtime stopped", r.SessionID)
}
