package asset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorageServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestProberFoundIsCached(t *testing.T) {
	server, hits := newStorageServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "Newsreel/test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})
	prober := NewProber(server.Client(), "Newsreel/test", 16, time.Minute)

	require.NoError(t, prober.Load(context.Background(), server.URL+"/news/images/2025-06-01/7.png"))
	require.NoError(t, prober.Load(context.Background(), server.URL+"/news/images/2025-06-01/7.png"))

	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestProberMissingIsCached(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden} {
		server, hits := newStorageServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		prober := NewProber(server.Client(), "Newsreel/test", 16, time.Minute)

		assert.ErrorIs(t, prober.Load(context.Background(), server.URL+"/a.png"), ErrNotFound)
		assert.ErrorIs(t, prober.Load(context.Background(), server.URL+"/a.png"), ErrNotFound)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits), "status %d", status)
	}
}

func TestProberServerErrorIsNotCached(t *testing.T) {
	server, hits := newStorageServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	prober := NewProber(server.Client(), "Newsreel/test", 16, time.Minute)

	err := prober.Load(context.Background(), server.URL+"/a.png")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_ = prober.Load(context.Background(), server.URL+"/a.png")
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestProberPurge(t *testing.T) {
	server, hits := newStorageServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	prober := NewProber(server.Client(), "Newsreel/test", 16, time.Minute)

	require.NoError(t, prober.Load(context.Background(), server.URL+"/a.png"))
	prober.Purge()
	require.NoError(t, prober.Load(context.Background(), server.URL+"/a.png"))

	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestProberDrivesFallback(t *testing.T) {
	server, _ := newStorageServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/news/images/2025-02-01/7.png" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	})
	prober := NewProber(server.Client(), "Newsreel/test", 16, time.Minute)
	pair := NewLocator(server.URL, "news/images", "news/tts").Locate(KindImage, "2025-01-31", "7")

	result := ResolveWithFallback(context.Background(), pair, prober.Load)

	assert.Equal(t, StateLoadedSecondary, result.State)
	assert.Equal(t, server.URL+"/news/images/2025-02-01/7.png", result.URL)
}
