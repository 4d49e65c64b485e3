package book

import (
	"context"
	"testing"
)

func testBook() *Book {
	return &Book{
		ID:    "goodnight-moon",
		Title: "Goodnight Moon",
		Pages: []Page{
			{ID: "p1", AudioURL: "http://narration/p1.mp3"},
			{ID: "p2", AudioURL: "http://narration/p2.mp3"},
			{ID: "p3", AudioURL: "http://narration/p3.mp3"},
		},
	}
}

func TestNavigatorWalksForward(t *testing.T) {
	st := NewStore()
	b := testBook()
	st.Put(b)
	n := NewNavigator(b)

	cur, last := n.Current()
	if cur == nil || cur.ID != "p1" || last {
		t.Fatalf("current = %+v last=%v, want p1/false", cur, last)
	}

	p, last, err := n.Next(context.Background())
	if err != nil || p == nil || p.ID != "p2" || last {
		t.Fatalf("next = %+v last=%v err=%v", p, last, err)
	}
	p, last, err = n.Next(context.Background())
	if err != nil || p == nil || p.ID != "p3" || !last {
		t.Fatalf("next = %+v last=%v err=%v, want p3/true", p, last, err)
	}

	// Past the last page there is nothing.
	p, _, err = n.Next(context.Background())
	if err != nil || p != nil {
		t.Fatalf("past end = %+v err=%v, want nil/nil", p, err)
	}
}

func TestNavigatorWalksBackward(t *testing.T) {
	n := NewNavigator(testBook())
	_, _, _ = n.Next(context.Background())

	p, last, err := n.Previous(context.Background())
	if err != nil || p == nil || p.ID != "p1" || last {
		t.Fatalf("previous = %+v last=%v err=%v, want p1/false", p, last, err)
	}
	p, _, err = n.Previous(context.Background())
	if err != nil || p != nil {
		t.Fatalf("before start = %+v err=%v, want nil/nil", p, err)
	}
}

func TestPageRefCarriesTotal(t *testing.T) {
	n := NewNavigator(testBook())
	cur, _ := n.Current()
	if cur.Total != 3 || cur.Index != 0 {
		t.Fatalf("ref = %+v, want index 0 of 3", cur)
	}
}

func TestStoreLookup(t *testing.T) {
	st := NewStore()
	st.Put(testBook())

	if _, err := st.Get("missing"); err == nil {
		t.Fatal("expected ErrNotFound")
	}
	b, err := st.Get("goodnight-moon")
	if err != nil || b.Title != "Goodnight Moon" {
		t.Fatalf("get: %+v %v", b, err)
	}

	url, ok := st.PageAudioURL("p2")
	if !ok || url != "http://narration/p2.mp3" {
		t.Fatalf("audio url = %q ok=%v", url, ok)
	}
	if _, ok := st.PageAudioURL("nope"); ok {
		t.Fatal("unknown page must not resolve")
	}
}
