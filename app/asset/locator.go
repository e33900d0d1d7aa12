package asset

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// ParseKind maps a route segment to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindImage:
		return KindImage, nil
	case KindAudio:
		return KindAudio, nil
	default:
		return "", fmt.Errorf("unknown asset kind '%s'", s)
	}
}

func (k Kind) extension() string {
	if k == KindAudio {
		return ".mp3"
	}
	return ".png"
}

// Pair holds the two candidate locations of one asset. SecondaryURL points at
// the folder one calendar day after the display date.
type Pair struct {
	PrimaryURL   string `json:"primaryUrl"`
	SecondaryURL string `json:"secondaryUrl"`
}

// Candidates returns the non-empty URLs in attempt order.
func (p Pair) Candidates() []string {
	candidates := make([]string, 0, 2)
	for _, u := range []string{p.PrimaryURL, p.SecondaryURL} {
		if u != "" {
			candidates = append(candidates, u)
		}
	}
	return candidates
}

// Locator addresses assets in date-foldered object storage:
// {base}/{prefix}/{date}/{id}.png for images and .mp3 for audio.
type Locator struct {
	baseURL     string
	imagePrefix string
	audioPrefix string
}

func NewLocator(baseURL, imagePrefix, audioPrefix string) *Locator {
	return &Locator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		imagePrefix: strings.Trim(imagePrefix, "/"),
		audioPrefix: strings.Trim(audioPrefix, "/"),
	}
}

// Locate is pure: the same inputs always give the same pair. An empty display
// date yields an empty pair, and a date that is not YYYY-MM-DD has no
// secondary location.
func (l *Locator) Locate(kind Kind, displayDate, articleID string) Pair {
	if displayDate == "" || articleID == "" {
		return Pair{}
	}

	pair := Pair{PrimaryURL: l.url(kind, displayDate, articleID)}
	if next, ok := nextDay(displayDate); ok {
		pair.SecondaryURL = l.url(kind, next, articleID)
	}
	return pair
}

func (l *Locator) url(kind Kind, date, articleID string) string {
	prefix := l.imagePrefix
	if kind == KindAudio {
		prefix = l.audioPrefix
	}

	segments := make([]string, 0, 4)
	if l.baseURL != "" {
		segments = append(segments, l.baseURL)
	}
	if prefix != "" {
		segments = append(segments, prefix)
	}
	segments = append(segments, url.PathEscape(date), url.PathEscape(articleID)+kind.extension())
	return strings.Join(segments, "/")
}

func nextDay(date string) (string, bool) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", false
	}
	return t.AddDate(0, 0, 1).Format(dateLayout), true
}
