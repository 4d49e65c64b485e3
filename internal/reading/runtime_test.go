package reading

import (
	"context"
	"sync"
	"testing"
	"time"

	"readalong/companion/internal/audio"
	"readalong/companion/internal/book"
	"readalong/companion/internal/narration"
	"readalong/companion/internal/workflow"
)

// scriptSession is a narration clip the test finishes by hand.
type scriptSession struct {
	mu   sync.Mutex
	done func(error)
	url  string
}

func (s *scriptSession) Play(done func(error)) error {
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()
	return nil
}

func (s *scriptSession) Pause() int64       { return 1200 }
func (s *scriptSession) Resume(int64) error { return nil }
func (s *scriptSession) Stop()              {}

func (s *scriptSession) finish() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		done(nil)
	}
}

type scriptPlayer struct {
	mu       sync.Mutex
	sessions []*scriptSession
}

func (p *scriptPlayer) Load(ctx context.Context, url string) (audio.Session, error) {
	s := &scriptSession{url: url}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

func (p *scriptPlayer) last() *scriptSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

func testBook() *book.Book {
	return &book.Book{
		ID:    "b1",
		Title: "The Quiet Fox",
		Pages: []book.Page{
			{ID: "p1", Index: 0, AudioURL: "http://audio/p1.mp3"},
			{ID: "p2", Index: 1, AudioURL: "http://audio/p2.mp3"},
		},
	}
}

func waitState(t *testing.T, m *workflow.Machine, want workflow.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := m.State(); st == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	st, _ := m.State()
	t.Fatalf("state = %s, want %s", st, want)
}

// Drives the fully wired runtime through one page of the reading flow with
// real timers at a short cadence.
func TestRuntimeFullPageFlow(t *testing.T) {
	b := testBook()
	store := book.NewStore()
	store.Put(b)
	player := &scriptPlayer{}
	src := &narration.StaticSource{Lookup: store.PageAudioURL}

	sessions := New()
	sessions.CreateSession(&Session{ID: "s1", BookID: "b1", Status: "created"})
	journal := func(typ string, payload map[string]any) {
		sessions.AppendEvent("s1", typ, payload)
	}

	rt := NewRuntime("s1", b, player, src, journal, RuntimeOptions{
		PreRoll:       20 * time.Millisecond,
		SilenceWindow: 20 * time.Millisecond,
		Tick:          5 * time.Millisecond,
	})
	rt.Start()
	defer rt.Stop()

	_, snap := rt.Machine.State()
	if snap.CurrentPage == nil || snap.CurrentPage.ID != "p1" {
		t.Fatalf("first page not seeded: %+v", snap.CurrentPage)
	}

	// Assistant takes a turn, then yields; pre-roll elapses and narration
	// comes up through the audio manager callback.
	rt.Gate.AssistantStarted()
	rt.Gate.AssistantStopped()
	waitState(t, rt.Machine, workflow.StateNarrationPlaying)

	if s := player.last(); s == nil || s.url != "http://audio/p1.mp3" {
		t.Fatalf("unexpected narration session: %+v", player.last())
	}

	// Clip ends, the silence window runs out, the page turns and the next
	// pre-roll starts narration for page two.
	player.last().finish()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := player.last(); s != nil && s.url == "http://audio/p2.mp3" {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if s := player.last(); s == nil || s.url != "http://audio/p2.mp3" {
		t.Fatalf("auto-advance did not start page two narration")
	}
	waitState(t, rt.Machine, workflow.StateNarrationPlaying)

	_, snap = rt.Machine.State()
	if snap.CurrentPage.ID != "p2" || !snap.IsLastPage {
		t.Fatalf("context after advance: %+v last=%v", snap.CurrentPage, snap.IsLastPage)
	}

	// Journal captured the ride.
	evts := sessions.ListEvents("s1")
	if len(evts) == 0 {
		t.Fatalf("journal empty")
	}
	seen := map[string]bool{}
	for _, e := range evts {
		seen[e.Type] = true
	}
	for _, want := range []string{"state_changed", "page_turned", "narration_requested"} {
		if !seen[want] {
			t.Fatalf("journal missing %q; got %v", want, evts)
		}
	}
}

func TestRuntimeChildInterruptPausesAndResumes(t *testing.T) {
	b := testBook()
	store := book.NewStore()
	store.Put(b)
	player := &scriptPlayer{}
	src := &narration.StaticSource{Lookup: store.PageAudioURL}

	rt := NewRuntime("s2", b, player, src, nil, RuntimeOptions{
		PreRoll:       20 * time.Millisecond,
		SilenceWindow: time.Hour, // keep the tail quiet
		Tick:          5 * time.Millisecond,
	})
	rt.Start()
	defer rt.Stop()

	rt.Gate.AssistantStarted()
	rt.Gate.AssistantStopped()
	waitState(t, rt.Machine, workflow.StateNarrationPlaying)

	rt.Gate.ChildStarted()
	waitState(t, rt.Machine, workflow.StateNarrationPaused)
	_, snap := rt.Machine.State()
	if snap.PausePositionMs == nil || *snap.PausePositionMs != 1200 {
		t.Fatalf("pause position not captured: %+v", snap.PausePositionMs)
	}

	rt.Gate.ChildStopped()
	waitState(t, rt.Machine, workflow.StateNarrationPlaying)
	_, snap = rt.Machine.State()
	if snap.PausePositionMs != nil {
		t.Fatalf("pause position should clear on resume")
	}
}

func TestRuntimeStopIsSynchronous(t *testing.T) {
	b := testBook()
	player := &scriptPlayer{}
	src := &narration.StaticSource{Lookup: func(string) (string, bool) { return "http://audio/x.mp3", true }}

	rt := NewRuntime("s3", b, player, src, nil, RuntimeOptions{
		PreRoll: 20 * time.Millisecond,
		Tick:    5 * time.Millisecond,
	})
	rt.Start()
	rt.Gate.AssistantStarted()
	rt.Gate.AssistantStopped()
	waitState(t, rt.Machine, workflow.StateNarrationPlaying)

	rt.Stop()
	if st, _ := rt.Machine.State(); st != workflow.StateIdle {
		t.Fatalf("state after stop = %s, want IDLE", st)
	}
	if rt.Audio.IsPlaying() {
		t.Fatalf("audio still playing after stop")
	}
}
