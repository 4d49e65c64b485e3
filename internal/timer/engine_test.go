package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestTimerElapsesOnce(t *testing.T) {
	e := NewEngine(5 * time.Millisecond)
	var fired int64
	e.SetCallbacks(nil, func(name Name) {
		if name != PreRoll {
			t.Errorf("unexpected timer name %q", name)
		}
		atomic.AddInt64(&fired, 1)
	})

	e.Start(PreRoll, 25*time.Millisecond)
	if !e.Active(PreRoll) {
		t.Fatal("timer should be active after Start")
	}

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&fired) == 1 })
	if e.Active(PreRoll) {
		t.Error("timer should be inactive after completion")
	}

	// No second completion for one arm.
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt64(&fired); n != 1 {
		t.Fatalf("completion fired %d times, want 1", n)
	}
}

func TestCancelSuppressesCompletion(t *testing.T) {
	e := NewEngine(5 * time.Millisecond)
	var fired int64
	e.SetCallbacks(nil, func(Name) { atomic.AddInt64(&fired, 1) })

	e.Start(Silence, 30*time.Millisecond)
	e.Cancel(Silence)
	if e.Active(Silence) {
		t.Fatal("timer should be inactive after Cancel")
	}

	time.Sleep(80 * time.Millisecond)
	if n := atomic.LoadInt64(&fired); n != 0 {
		t.Fatalf("completion fired %d times after cancel, want 0", n)
	}
}

func TestCancelInactiveIsNoop(t *testing.T) {
	e := NewEngine(5 * time.Millisecond)
	e.Cancel(PreRoll)
	e.CancelAll()
	if e.Active(PreRoll) || e.Active(Silence) {
		t.Fatal("nothing should be active")
	}
}

func TestCancelInsideTickSuppressesCompletion(t *testing.T) {
	e := NewEngine(2 * time.Millisecond)
	var fired int64
	var ticked int64
	e.SetCallbacks(func(name Name, _ time.Duration) {
		if atomic.AddInt64(&ticked, 1) == 1 {
			e.Cancel(name)
		}
	}, func(Name) { atomic.AddInt64(&fired, 1) })

	e.Start(PreRoll, 20*time.Millisecond)
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&ticked) >= 1 })

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt64(&fired); n != 0 {
		t.Fatalf("completion fired %d times after mid-countdown cancel, want 0", n)
	}
	if e.Active(PreRoll) {
		t.Fatal("timer should be inactive after cancel")
	}
}

func TestRestartCancelsPriorRun(t *testing.T) {
	e := NewEngine(5 * time.Millisecond)
	var fired int64
	e.SetCallbacks(nil, func(Name) { atomic.AddInt64(&fired, 1) })

	e.Start(PreRoll, 20*time.Millisecond)
	e.Start(PreRoll, 40*time.Millisecond) // supersedes the first arm

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&fired) >= 1 })
	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt64(&fired); n != 1 {
		t.Fatalf("completion fired %d times, want exactly 1 for the restarted arm", n)
	}
}

func TestTicksCarryRemaining(t *testing.T) {
	e := NewEngine(5 * time.Millisecond)
	var mu sync.Mutex
	var seen []time.Duration
	done := make(chan struct{})
	e.SetCallbacks(func(_ Name, remaining time.Duration) {
		mu.Lock()
		seen = append(seen, remaining)
		mu.Unlock()
	}, func(Name) { close(done) })

	e.Start(Silence, 30*time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("expected at least one tick before completion")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] >= seen[i-1] {
			t.Fatalf("remaining not monotonically decreasing: %v", seen)
		}
	}
	for _, r := range seen {
		if r <= 0 || r >= 30*time.Millisecond {
			t.Fatalf("tick remaining out of range: %v", r)
		}
	}
}

func TestTimersIndependent(t *testing.T) {
	e := NewEngine(5 * time.Millisecond)
	var preRoll, silence int64
	e.SetCallbacks(nil, func(name Name) {
		switch name {
		case PreRoll:
			atomic.AddInt64(&preRoll, 1)
		case Silence:
			atomic.AddInt64(&silence, 1)
		}
	})

	e.Start(PreRoll, 20*time.Millisecond)
	e.Start(Silence, 20*time.Millisecond)
	e.Cancel(PreRoll)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&silence) == 1 })
	if n := atomic.LoadInt64(&preRoll); n != 0 {
		t.Fatalf("cancelled pre-roll fired %d times", n)
	}
}
