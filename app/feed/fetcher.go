package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrEmptyQuery = errors.New("search query is empty")

// maxBodySize bounds feed and search documents read into memory.
const maxBodySize = 16 << 20

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

func NewFetcher(httpClient *http.Client, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		now:        time.Now,
	}
}

// FetchFeed downloads the daily feed document. A t=<unix ms> parameter is
// appended so CDN-cached copies of the document are bypassed.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}

	query := u.Query()
	query.Set("t", strconv.FormatInt(f.now().UnixMilli(), 10))
	u.RawQuery = query.Encode()

	return f.get(ctx, u.String())
}

// Search forwards a keyword to the search endpoint as ?q=<keyword>.
func (f *Fetcher) Search(ctx context.Context, searchURL, keyword string) ([]byte, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrEmptyQuery
	}

	u, err := url.Parse(searchURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search URL: %w", err)
	}

	query := u.Query()
	query.Set("q", keyword)
	u.RawQuery = query.Encode()

	return f.get(ctx, u.String())
}

// Page downloads an article page for summary extraction.
func (f *Fetcher) Page(ctx context.Context, pageURL string) ([]byte, error) {
	return f.get(ctx, pageURL)
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
