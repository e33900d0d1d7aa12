package asset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrNotFound = errors.New("asset not found in storage")

// Prober checks asset existence in object storage with HEAD requests.
// Definite answers (found, or 403/404) are cached per URL; transport errors
// and server errors are not.
type Prober struct {
	httpClient *http.Client
	userAgent  string
	cache      *expirable.LRU[string, bool]
}

func NewProber(httpClient *http.Client, userAgent string, cacheSize int, ttl time.Duration) *Prober {
	return &Prober{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      expirable.NewLRU[string, bool](cacheSize, nil, ttl),
	}
}

// Load satisfies LoadFunc.
func (p *Prober) Load(ctx context.Context, url string) error {
	if found, ok := p.cache.Get(url); ok {
		if found {
			return nil
		}
		return ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to probe asset: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		p.cache.Add(url, true)
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		// S3 answers 403 for missing keys when listing is not allowed.
		p.cache.Add(url, false)
		return ErrNotFound
	default:
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}
}

// Purge drops every cached probe result.
func (p *Prober) Purge() {
	p.cache.Purge()
}
