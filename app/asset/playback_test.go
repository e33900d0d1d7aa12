package asset

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type fakePlayback struct {
	url     string
	done    chan struct{}
	stopped int
	once    sync.Once
}

func (p *fakePlayback) Stop() {
	p.stopped++
	p.once.Do(func() { close(p.done) })
}

func (p *fakePlayback) Done() <-chan struct{} {
	return p.done
}

type fakePlayer struct {
	playable map[string]bool
	started  []string
}

func (p *fakePlayer) Start(ctx context.Context, url string) (Playback, error) {
	p.started = append(p.started, url)
	if !p.playable[url] {
		return nil, ErrNotFound
	}
	return &fakePlayback{url: url, done: make(chan struct{})}, nil
}

func TestPlaybackControllerStopsPrevious(t *testing.T) {
	first := Pair{PrimaryURL: "https://s/tts/2025-06-01/1.mp3", SecondaryURL: "https://s/tts/2025-06-02/1.mp3"}
	second := Pair{PrimaryURL: "https://s/tts/2025-06-01/2.mp3", SecondaryURL: "https://s/tts/2025-06-02/2.mp3"}
	player := &fakePlayer{playable: map[string]bool{first.PrimaryURL: true, second.PrimaryURL: true}}
	controller := NewPlaybackController(player, nil)

	a, err := controller.Play(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, controller.Active())

	b, err := controller.Play(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, 1, a.(*fakePlayback).stopped)
	assert.Equal(t, 0, b.(*fakePlayback).stopped)
	assert.True(t, controller.Active())

	controller.Stop()
	assert.False(t, controller.Active())
	assert.Equal(t, 1, b.(*fakePlayback).stopped)
}

func TestPlaybackControllerFallsBackToSecondary(t *testing.T) {
	pair := Pair{PrimaryURL: "https://s/tts/2025-06-01/1.mp3", SecondaryURL: "https://s/tts/2025-06-02/1.mp3"}
	player := &fakePlayer{playable: map[string]bool{pair.SecondaryURL: true}}
	controller := NewPlaybackController(player, nil)

	playback, err := controller.Play(context.Background(), pair)
	require.NoError(t, err)

	assert.Equal(t, pair.SecondaryURL, playback.(*fakePlayback).url)
	assert.Equal(t, []string{pair.PrimaryURL, pair.SecondaryURL}, player.started)
}

func TestPlaybackControllerNotifiesOnFailure(t *testing.T) {
	pair := Pair{PrimaryURL: "https://s/tts/2025-06-01/1.mp3", SecondaryURL: "https://s/tts/2025-06-02/1.mp3"}
	var notified []error
	controller := NewPlaybackController(&fakePlayer{}, func(err error) { notified = append(notified, err) })

	_, err := controller.Play(context.Background(), pair)

	assert.ErrorIs(t, err, ErrPlaybackFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, notified, 1)
	assert.False(t, controller.Active())
}

func TestPlaybackControllerFailureStillStopsPrevious(t *testing.T) {
	good := Pair{PrimaryURL: "https://s/tts/2025-06-01/1.mp3"}
	player := &fakePlayer{playable: map[string]bool{good.PrimaryURL: true}}
	controller := NewPlaybackController(player, nil)

	first, err := controller.Play(context.Background(), good)
	require.NoError(t, err)

	_, err = controller.Play(context.Background(), Pair{})
	assert.ErrorIs(t, err, ErrNoLocation)
	assert.Equal(t, 1, first.(*fakePlayback).stopped)
	assert.False(t, controller.Active())
}

// blockingPlayer holds Start open for slow URLs until its context ends.
type blockingPlayer struct {
	slow    map[string]bool
	started chan string
}

func (p *blockingPlayer) Start(ctx context.Context, url string) (Playback, error) {
	if p.slow[url] {
		p.started <- url
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &fakePlayback{url: url, done: make(chan struct{})}, nil
}

type playResult struct {
	playback Playback
	err      error
}

func playAsync(controller *PlaybackController, pair Pair) <-chan playResult {
	result := make(chan playResult, 1)
	go func() {
		playback, err := controller.Play(context.Background(), pair)
		result <- playResult{playback, err}
	}()
	return result
}

func TestPlaybackControllerStopDuringStart(t *testing.T) {
	slow := Pair{PrimaryURL: "https://s/tts/2025-06-01/1.mp3"}
	player := &blockingPlayer{slow: map[string]bool{slow.PrimaryURL: true}, started: make(chan string, 1)}
	var notified int
	controller := NewPlaybackController(player, func(error) { notified++ })

	result := playAsync(controller, slow)
	<-player.started

	returned := make(chan struct{})
	go func() {
		controller.Active()
		controller.Stop()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Active and Stop blocked while a start was in flight")
	}

	select {
	case res := <-result:
		assert.ErrorIs(t, res.err, ErrPlaybackSuperseded)
		assert.Nil(t, res.playback)
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the pending start")
	}

	assert.False(t, controller.Active())
	assert.Equal(t, 0, notified)
}

func TestPlaybackControllerNewerPlayWins(t *testing.T) {
	slow := Pair{PrimaryURL: "https://s/tts/2025-06-01/1.mp3"}
	fast := Pair{PrimaryURL: "https://s/tts/2025-06-01/2.mp3"}
	player := &blockingPlayer{slow: map[string]bool{slow.PrimaryURL: true}, started: make(chan string, 1)}
	controller := NewPlaybackController(player, nil)

	result := playAsync(controller, slow)
	<-player.started

	playback, err := controller.Play(context.Background(), fast)
	require.NoError(t, err)

	res := <-result
	assert.ErrorIs(t, res.err, ErrPlaybackSuperseded)

	assert.True(t, controller.Active())
	assert.Equal(t, 0, playback.(*fakePlayback).stopped)
	assert.Equal(t, fast.PrimaryURL, playback.(*fakePlayback).url)
}

func TestStreamPlayerRelaysAudio(t *testing.T) {
	audio := []byte("ID3-fake-mp3-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/news/tts/2025-06-02/1.mp3" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer server.Close()

	controller := NewPlaybackController(NewStreamPlayer(server.Client(), "Newsreel/test"), nil)
	pair := NewLocator(server.URL, "news/images", "news/tts").Locate(KindAudio, "2025-06-01", "1")

	playback, err := controller.Play(context.Background(), pair)
	require.NoError(t, err)

	stream, ok := playback.(*Stream)
	require.True(t, ok)
	assert.Equal(t, "audio/mpeg", stream.ContentType)
	assert.Equal(t, pair.SecondaryURL, stream.URL)

	var buf bytes.Buffer
	_, err = stream.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, audio, buf.Bytes())

	<-stream.Done()
	assert.False(t, controller.Active())
	server.Client().CloseIdleConnections()
}

func TestStreamPlayerMissingAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewStreamPlayer(server.Client(), "Newsreel/test").Start(context.Background(), server.URL+"/x.mp3")
	assert.True(t, errors.Is(err, ErrNotFound))
	server.Client().CloseIdleConnections()
}
