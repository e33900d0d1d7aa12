package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "newsreel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)

	return db
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestSourceRepoUpsertAndGet(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))

	source, err := repo.GetSource("daily")
	require.NoError(t, err)
	assert.Nil(t, source)

	require.NoError(t, repo.UpsertSource("daily", "https://news.example.com/a.json"))
	require.NoError(t, repo.UpsertSource("daily", "https://news.example.com/b.json"))

	source, err = repo.GetSource("daily")
	require.NoError(t, err)
	require.NotNil(t, source)
	assert.Equal(t, "https://news.example.com/b.json", source.FeedURL)
	assert.Empty(t, source.FeedDate)
	assert.Nil(t, source.LastFetchedAt)
	assert.Nil(t, source.NextFetchAt)
	assert.False(t, source.CreatedAt.IsZero())

	count, err := repo.GetSourceCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSourceRepoRecordFetchFailure(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))
	require.NoError(t, repo.UpsertSource("daily", "https://news.example.com/a.json"))

	next := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, repo.RecordFetchFailure("daily", "HTTP error: 503", next))

	source, err := repo.GetSource("daily")
	require.NoError(t, err)
	assert.Equal(t, "HTTP error: 503", source.LastError)
	require.NotNil(t, source.NextFetchAt)
	assert.True(t, source.NextFetchAt.Equal(next))
	assert.NotNil(t, source.LastFetchedAt)

	assert.Error(t, repo.RecordFetchFailure("missing", "boom", next))
}

func TestArticleRepoReplaceSnapshot(t *testing.T) {
	db := newTestDB(t)
	sources := NewSourceRepository(db)
	articles := NewArticleRepository(db)
	require.NoError(t, sources.UpsertSource("daily", "https://news.example.com/a.json"))
	require.NoError(t, sources.RecordFetchFailure("daily", "earlier failure", time.Now()))

	first := []SnapshotArticle{
		{RecordID: "1", Title: "One", Payload: []byte(`{"id":"1"}`)},
		{RecordID: "2", Title: "Two", Payload: []byte(`{"id":"2"}`)},
		{RecordID: "3", Title: "Three", Payload: []byte(`{"id":"3"}`)},
	}
	require.NoError(t, articles.ReplaceSnapshot("daily", "2025-06-01", first, time.Now().Add(time.Hour)))

	second := []SnapshotArticle{
		{RecordID: "9", Title: "Nine", URL: "https://news.example.com/9", Payload: []byte(`{"id":"9"}`)},
		{RecordID: "", Title: "No id", Payload: []byte(`{"title":"No id"}`)},
	}
	require.NoError(t, articles.ReplaceSnapshot("daily", "2025-06-02", second, time.Now().Add(time.Hour)))

	stored, err := articles.GetArticles("daily")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 0, stored[0].Position)
	assert.Equal(t, "9", stored[0].RecordID)
	assert.Equal(t, "https://news.example.com/9", stored[0].URL)
	assert.JSONEq(t, `{"id":"9"}`, string(stored[0].Payload))
	assert.Equal(t, 1, stored[1].Position)
	assert.Equal(t, "No id", stored[1].Title)

	count, err := articles.GetArticleCount("daily")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	source, err := sources.GetSource("daily")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", source.FeedDate)
	assert.Equal(t, 2, source.ArticleCount)
	assert.Empty(t, source.LastError)
}

func TestArticleRepoReplaceSnapshotUnknownSource(t *testing.T) {
	articles := NewArticleRepository(newTestDB(t))

	err := articles.ReplaceSnapshot("missing", "2025-06-01", []SnapshotArticle{{Payload: []byte(`{}`)}}, time.Now())
	assert.Error(t, err)

	stored, err := articles.GetArticles("missing")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestArticleRepoExtracts(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, NewSourceRepository(db).UpsertSource("daily", "https://news.example.com/a.json"))
	articles := NewArticleRepository(db)

	require.NoError(t, articles.UpsertExtract("daily", "7", "", ExtractStatusFailed, "HTTP error: 500"))
	require.NoError(t, articles.UpsertExtract("daily", "7", "Extracted text.", ExtractStatusSuccess, ""))
	require.NoError(t, articles.UpsertExtract("daily", "8", "", ExtractStatusFailed, "no content"))

	extracts, err := articles.GetExtracts("daily")
	require.NoError(t, err)
	require.Len(t, extracts, 2)

	assert.Equal(t, "Extracted text.", extracts["7"].Content)
	assert.Equal(t, ExtractStatusSuccess, extracts["7"].Status)
	assert.Equal(t, 2, extracts["7"].Attempts)
	assert.NotNil(t, extracts["7"].ExtractedAt)
	assert.Equal(t, ExtractStatusFailed, extracts["8"].Status)
	assert.Equal(t, "no content", extracts["8"].Error)
}

func TestExtractsSurviveSnapshotReplacement(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, NewSourceRepository(db).UpsertSource("daily", "https://news.example.com/a.json"))
	articles := NewArticleRepository(db)

	require.NoError(t, articles.UpsertExtract("daily", "7", "Kept.", ExtractStatusSuccess, ""))
	require.NoError(t, articles.ReplaceSnapshot("daily", "2025-06-01", nil, time.Now()))

	extracts, err := articles.GetExtracts("daily")
	require.NoError(t, err)
	assert.Equal(t, "Kept.", extracts["7"].Content)
}
