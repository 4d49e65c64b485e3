package narration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"readalong/companion/internal/workflow"
)

// Source resolves a page to a playable narration audio URL. Generation and
// storage of the audio itself happen outside this system.
type Source interface {
	ResolveAudioURL(ctx context.Context, page workflow.PageRef) (string, error)
}

// StaticSource serves URLs already recorded on the page, via a lookup into
// the book store.
type StaticSource struct {
	Lookup func(pageID string) (string, bool)
}

func (s *StaticSource) ResolveAudioURL(ctx context.Context, page workflow.PageRef) (string, error) {
	url, ok := s.Lookup(page.ID)
	if !ok {
		return "", fmt.Errorf("no narration audio for page %s", page.ID)
	}
	return url, nil
}

// HTTPClient asks the narration service for a page's audio URL.
type HTTPClient struct {
	http *http.Client
	base string
}

func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		http: &http.Client{Timeout: 10 * time.Second},
		base: base,
	}
}

func (c *HTTPClient) ResolveAudioURL(ctx context.Context, page workflow.PageRef) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/pages/"+page.ID+"/audio", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("narration ResolveAudioURL: %s: %s", resp.Status, string(b))
	}
	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("narration ResolveAudioURL: empty url for page %s", page.ID)
	}
	return parsed.URL, nil
}
