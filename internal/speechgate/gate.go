package speechgate

import "sync"

// Sink receives per-speaker speech edges, typically the workflow machine.
type Sink interface {
	HandleAssistantSpeechStart()
	HandleAssistantSpeechStop()
	HandleChildSpeechStart()
	HandleChildSpeechStop()
}

// Gate tracks the two speaker channels and derives a single "true silence"
// signal. Edges are forwarded only on real change: setting a flag to its
// current value is a no-op, and the silence callback fires only when the
// derived value flips.
type Gate struct {
	mu        sync.Mutex
	assistant bool
	child     bool

	sink      Sink
	onSilence func(silent bool)
}

func New(sink Sink, onSilence func(silent bool)) *Gate {
	return &Gate{sink: sink, onSilence: onSilence}
}

// Silent reports the derived value: nobody is talking.
func (g *Gate) Silent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.assistant && !g.child
}

// Speaking returns the two raw channels (assistant, child).
func (g *Gate) Speaking() (assistant, child bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.assistant, g.child
}

func (g *Gate) AssistantStarted() {
	g.set(&g.assistant, true, g.sink.HandleAssistantSpeechStart)
}

func (g *Gate) AssistantStopped() {
	g.set(&g.assistant, false, g.sink.HandleAssistantSpeechStop)
}

func (g *Gate) ChildStarted() {
	g.set(&g.child, true, g.sink.HandleChildSpeechStart)
}

func (g *Gate) ChildStopped() {
	g.set(&g.child, false, g.sink.HandleChildSpeechStop)
}

// set applies one speaker edge. forward and the silence callback run outside
// the lock so they may re-enter the gate or the machine.
func (g *Gate) set(flag *bool, value bool, forward func()) {
	g.mu.Lock()
	if *flag == value {
		g.mu.Unlock()
		return
	}
	before := !g.assistant && !g.child
	*flag = value
	after := !g.assistant && !g.child
	onSilence := g.onSilence
	g.mu.Unlock()

	if forward != nil {
		forward()
	}
	if onSilence != nil && before != after {
		onSilence(after)
	}
}
