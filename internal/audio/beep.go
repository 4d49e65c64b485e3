package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	playbackRate    = beep.SampleRate(44100)
	resampleQuality = 4
	maxClipBytes    = 32 << 20
)

// BeepPlayer fetches narration mp3 clips over HTTP and plays them through
// the beep speaker. The speaker is initialized once at the playback rate;
// clips at other rates are resampled.
type BeepPlayer struct {
	http     *http.Client
	initOnce sync.Once
	initErr  error
}

func NewBeepPlayer() *BeepPlayer {
	return &BeepPlayer{http: &http.Client{Timeout: 30 * time.Second}}
}

func (p *BeepPlayer) Load(ctx context.Context, url string) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch narration: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch narration: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("read narration: %w", err)
	}

	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("decode narration: %w", err)
	}

	p.initOnce.Do(func() {
		p.initErr = speaker.Init(playbackRate, playbackRate.N(100*time.Millisecond))
	})
	if p.initErr != nil {
		streamer.Close()
		return nil, fmt.Errorf("speaker init: %w", p.initErr)
	}

	return &beepSession{streamer: streamer, format: format}, nil
}

type beepSession struct {
	streamer beep.StreamSeekCloser
	format   beep.Format

	mu       sync.Mutex
	ctrl     *beep.Ctrl
	done     func(error)
	finished bool
	stopped  bool
}

func (s *beepSession) Play(done func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrNoSession
	}
	s.done = done

	var src beep.Streamer = s.streamer
	if s.format.SampleRate != playbackRate {
		src = beep.Resample(resampleQuality, s.format.SampleRate, playbackRate, s.streamer)
	}
	s.ctrl = &beep.Ctrl{Streamer: beep.Seq(src, beep.Callback(s.finish))}
	speaker.Play(s.ctrl)
	return nil
}

// finish runs on the speaker loop with the speaker locked; hand the result
// off so the done callback can drive further audio operations.
func (s *beepSession) finish() {
	s.mu.Lock()
	if s.finished || s.stopped || s.done == nil {
		s.mu.Unlock()
		return
	}
	s.finished = true
	done := s.done
	s.mu.Unlock()

	err := s.streamer.Err()
	go done(err)
}

func (s *beepSession) Pause() int64 {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		return 0
	}
	speaker.Lock()
	ctrl.Paused = true
	pos := s.streamer.Position()
	speaker.Unlock()
	return s.format.SampleRate.D(pos).Milliseconds()
}

func (s *beepSession) Resume(posMs int64) error {
	s.mu.Lock()
	ctrl := s.ctrl
	stopped := s.stopped
	s.mu.Unlock()
	if ctrl == nil || stopped {
		return ErrNoSession
	}
	target := s.format.SampleRate.N(time.Duration(posMs) * time.Millisecond)
	if n := s.streamer.Len(); target > n {
		target = n
	}
	speaker.Lock()
	err := s.streamer.Seek(target)
	ctrl.Paused = false
	speaker.Unlock()
	return err
}

func (s *beepSession) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	ctrl := s.ctrl
	s.ctrl = nil
	s.mu.Unlock()

	if ctrl != nil {
		speaker.Lock()
		ctrl.Paused = true
		ctrl.Streamer = nil
		speaker.Unlock()
	}
	_ = s.streamer.Seek(0)
	s.streamer.Close()
}
