package database

import (
	"time"
)

// SnapshotArticle is an article handed to ReplaceSnapshot. Its position is
// its index in the slice.
type SnapshotArticle struct {
	RecordID string
	Title    string
	URL      string
	Payload  []byte
}

type SourceRepository interface {
	GetSource(sourceName string) (*Source, error)
	GetSources() ([]Source, error)
	GetSourceCount() (int, error)

	UpsertSource(sourceName, feedURL string) error
	RecordFetchFailure(sourceName string, fetchErr string, nextFetch time.Time) error
}

type ArticleRepository interface {
	GetArticles(sourceName string) ([]Article, error)
	GetArticleCount(sourceName string) (int, error)

	ReplaceSnapshot(sourceName, feedDate string, articles []SnapshotArticle, nextFetch time.Time) error

	GetExtracts(sourceName string) (map[string]ArticleExtract, error)
	UpsertExtract(sourceName, articleID, content, status, errorMsg string) error
}
