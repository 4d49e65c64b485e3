package reading

import (
	"testing"
	"time"
)

func TestCreateAndGetSession(t *testing.T) {
	s := New()
	sess := &Session{ID: "s1", BookID: "b1", BookTitle: "The Quiet Fox", CreatedAt: time.Now().UTC(), Status: "created"}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := s.GetSession("s1"); got == nil || got.BookTitle != "The Quiet Fox" {
		t.Fatalf("get returned %+v", got)
	}
	if err := s.CreateSession(sess); err != ErrSessionExists {
		t.Fatalf("duplicate create err = %v, want ErrSessionExists", err)
	}
}

func TestGetMissingSession(t *testing.T) {
	s := New()
	if got := s.GetSession("nope"); got != nil {
		t.Fatalf("expected nil for missing session, got %+v", got)
	}
}

func TestSetStatus(t *testing.T) {
	s := New()
	s.CreateSession(&Session{ID: "s1", Status: "created"})
	s.SetStatus("s1", "reading")
	if got := s.GetSession("s1").Status; got != "reading" {
		t.Fatalf("status = %q, want reading", got)
	}
	// unknown id is a no-op
	s.SetStatus("ghost", "reading")
}

func TestAppendAndListEvents(t *testing.T) {
	s := New()
	s.CreateSession(&Session{ID: "s1"})

	s.AppendEvent("s1", "state_changed", map[string]any{"from": "IDLE", "to": "ASSISTANT_SPEAKING"})
	s.AppendEvent("s1", "page_turned", map[string]any{"page_id": "p2"})

	evts := s.ListEvents("s1")
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].Type != "state_changed" || evts[1].Type != "page_turned" {
		t.Fatalf("unexpected order: %s, %s", evts[0].Type, evts[1].Type)
	}
}

func TestEventLogCapped(t *testing.T) {
	s := New()
	s.CreateSession(&Session{ID: "s1"})

	for i := 0; i < 600; i++ {
		s.AppendEvent("s1", "tick", nil)
	}

	evts := s.ListEvents("s1")
	if len(evts) > 500 {
		t.Fatalf("event log grew past cap: %d", len(evts))
	}
	last := evts[len(evts)-1]
	if last.Type != "events_truncated" {
		t.Fatalf("expected truncation marker last, got %q", last.Type)
	}
	if last.Payload["dropped"].(int) <= 0 {
		t.Fatalf("truncation marker missing dropped count: %+v", last.Payload)
	}
}

func TestListEventsReturnsCopy(t *testing.T) {
	s := New()
	s.CreateSession(&Session{ID: "s1"})
	s.AppendEvent("s1", "a", nil)

	evts := s.ListEvents("s1")
	evts[0].Type = "mutated"

	if s.ListEvents("s1")[0].Type != "a" {
		t.Fatalf("ListEvents exposed internal slice")
	}
}
