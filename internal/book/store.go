package book

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrNotFound = errors.New("book not found")

// Page is one narratable page of a book.
type Page struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Text     string `json:"text,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

type Book struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Pages []Page `json:"pages"`
}

// Store holds the books available to reading sessions.
type Store struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewStore() *Store {
	return &Store{books: make(map[string]*Book)}
}

// LoadFile reads a JSON array of books from path.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read books: %w", err)
	}
	var books []*Book
	if err := json.Unmarshal(data, &books); err != nil {
		return fmt.Errorf("parse books: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range books {
		for i := range b.Pages {
			b.Pages[i].Index = i
		}
		s.books[b.ID] = b
	}
	return nil
}

func (s *Store) Put(b *Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range b.Pages {
		b.Pages[i].Index = i
	}
	s.books[b.ID] = b
}

func (s *Store) Get(id string) (*Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.books[id]
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// PageAudioURL looks a page up across all books, for static narration URLs.
func (s *Store) PageAudioURL(pageID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.books {
		for i := range b.Pages {
			if b.Pages[i].ID == pageID {
				return b.Pages[i].AudioURL, b.Pages[i].AudioURL != ""
			}
		}
	}
	return "", false
}

func (s *Store) List() []*Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b)
	}
	return out
}
