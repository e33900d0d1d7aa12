package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "codeberg.org/readeck/go-readability"
	"github.com/PuerkitoBio/goquery"
)

// maxSummaryLength caps an extracted summary, counted in runes.
const maxSummaryLength = 600

type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Run extracts the readable text of an article page and returns it cut to a
// summary-sized excerpt.
func (e *ContentExtractor) Run(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	var parsedURL *url.URL
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			parsedURL = u
		}
	}

	article, err := readability.FromReader(bytes.NewReader(data), parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return "", fmt.Errorf("failed to read extracted content: %w", err)
	}

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(text))

	return excerpt(text, maxSummaryLength), nil
}

func excerpt(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, ".!?"); i >= 0 && utf8.RuneCountInString(cut[:i]) > limit/2 {
		return cut[:i+1]
	}
	return strings.TrimSpace(cut) + "…"
}
