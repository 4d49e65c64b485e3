package narration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"readalong/companion/internal/workflow"
)

func TestStaticSource(t *testing.T) {
	s := &StaticSource{Lookup: func(pageID string) (string, bool) {
		if pageID == "p1" {
			return "http://narration/p1.mp3", true
		}
		return "", false
	}}

	url, err := s.ResolveAudioURL(context.Background(), workflow.PageRef{ID: "p1"})
	if err != nil || url != "http://narration/p1.mp3" {
		t.Fatalf("resolve: %q %v", url, err)
	}
	if _, err := s.ResolveAudioURL(context.Background(), workflow.PageRef{ID: "p9"}); err == nil {
		t.Fatal("unknown page must fail")
	}
}

func TestHTTPClientResolves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pages/p1/audio" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"http://cdn/narration/p1.mp3"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	url, err := c.ResolveAudioURL(context.Background(), workflow.PageRef{ID: "p1"})
	if err != nil || url != "http://cdn/narration/p1.mp3" {
		t.Fatalf("resolve: %q %v", url, err)
	}

	if _, err := c.ResolveAudioURL(context.Background(), workflow.PageRef{ID: "p2"}); err == nil {
		t.Fatal("missing page must surface an error")
	}
}

func TestHTTPClientEmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	if _, err := c.ResolveAudioURL(context.Background(), workflow.PageRef{ID: "p1"}); err == nil {
		t.Fatal("empty url must surface an error")
	}
}
