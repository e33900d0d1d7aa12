package database

import (
	"time"
)

type Source struct {
	Name          string // Configuration source identifier derived from filename
	FeedURL       string
	FeedDate      string // Feed-level date of the stored snapshot
	LastFetchedAt *time.Time
	NextFetchAt   *time.Time
	LastError     string // Empty after a successful refresh
	ArticleCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time // Tracks last successful snapshot replacement
}

// Article is one stored record of a source's latest feed snapshot. Payload
// is the record exactly as decoded, re-encoded as JSON.
type Article struct {
	SourceName string
	Position   int // Feed order
	RecordID   string
	Title      string
	URL        string
	Payload    []byte
	CreatedAt  time.Time
}

type ArticleExtract struct {
	SourceName  string
	ArticleID   string
	Content     string
	Status      string // success, failed
	Error       string
	Attempts    int
	ExtractedAt *time.Time
}

const (
	ExtractStatusSuccess = "success"
	ExtractStatusFailed  = "failed"
)
