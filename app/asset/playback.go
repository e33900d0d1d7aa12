package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

var (
	ErrPlaybackFailed     = errors.New("narration playback failed")
	ErrPlaybackSuperseded = errors.New("narration playback superseded")
)

// Playback is a handle on one running narration.
type Playback interface {
	Stop()
	Done() <-chan struct{}
}

// Player starts a narration from a URL. Start fails when the audio cannot be
// opened; it does not retry.
type Player interface {
	Start(ctx context.Context, url string) (Playback, error)
}

// PlaybackController owns at most one active playback. Starting a new one
// always stops the previous one first. The lock is not held while a player
// opens audio; a start that is overtaken by a newer Play or by Stop is
// canceled and never installed.
type PlaybackController struct {
	player Player
	notify func(error)

	mu         sync.Mutex
	current    Playback
	cancel     context.CancelFunc // cancels the pending start or the current playback
	generation uint64
}

// NewPlaybackController wires a player. notify, if set, is called once for
// every Play that fails.
func NewPlaybackController(player Player, notify func(error)) *PlaybackController {
	return &PlaybackController{
		player: player,
		notify: notify,
	}
}

// Play stops the current playback and starts the pair's primary URL, then its
// secondary URL if the primary cannot be opened. It returns
// ErrPlaybackSuperseded when a newer Play or a Stop arrives first.
func (c *PlaybackController) Play(ctx context.Context, pair Pair) (Playback, error) {
	startCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.stopLocked()
	c.generation++
	generation := c.generation
	c.cancel = cancel
	c.mu.Unlock()

	playback, err := c.start(startCtx, pair)

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		cancel()
		if playback != nil {
			playback.Stop()
		}
		return nil, ErrPlaybackSuperseded
	}
	if err != nil {
		c.cancel = nil
		c.mu.Unlock()
		cancel()

		err = fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		if c.notify != nil {
			c.notify(err)
		}
		return nil, err
	}
	c.current = playback
	c.mu.Unlock()

	return playback, nil
}

func (c *PlaybackController) start(ctx context.Context, pair Pair) (Playback, error) {
	lastErr := ErrNoLocation
	for _, url := range pair.Candidates() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		playback, err := c.player.Start(ctx, url)
		if err == nil {
			return playback, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Stop ends the current playback and cancels a start still in flight.
func (c *PlaybackController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.generation++
}

// Active reports whether a playback is running.
func (c *PlaybackController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return false
	}
	select {
	case <-c.current.Done():
		return false
	default:
		return true
	}
}

func (c *PlaybackController) stopLocked() {
	if c.current != nil {
		c.current.Stop()
		c.current = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// StreamPlayer plays narration by relaying the audio object from storage to
// an HTTP client.
type StreamPlayer struct {
	httpClient *http.Client
	userAgent  string
}

func NewStreamPlayer(httpClient *http.Client, userAgent string) *StreamPlayer {
	return &StreamPlayer{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

func (p *StreamPlayer) Start(ctx context.Context, url string) (Playback, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open narration: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	return &Stream{
		URL:           url,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		body:          resp.Body,
		cancel:        cancel,
		done:          make(chan struct{}),
	}, nil
}

// Stream is a narration being relayed. It ends when the audio is fully
// written, when Stop is called, or when the request context ends.
type Stream struct {
	URL           string
	ContentType   string
	ContentLength int64

	body   io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// WriteTo relays the audio to w and stops the stream afterwards.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	defer s.Stop()
	return io.Copy(w, s.body)
}

func (s *Stream) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.body.Close()
		close(s.done)
	})
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}
