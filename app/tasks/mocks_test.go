package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/newsreel/app/database"
)

// mockStore keeps sources, snapshots and extracts in memory and implements
// both repository interfaces.
type mockStore struct {
	mu       sync.Mutex
	sources  map[string]*database.Source
	articles map[string][]database.Article
	extracts map[string]map[string]database.ArticleExtract
}

var (
	_ database.SourceRepository  = (*mockStore)(nil)
	_ database.ArticleRepository = (*mockStore)(nil)
)

func newMockStore() *mockStore {
	return &mockStore{
		sources:  make(map[string]*database.Source),
		articles: make(map[string][]database.Article),
		extracts: make(map[string]map[string]database.ArticleExtract),
	}
}

func (m *mockStore) GetSource(sourceName string) (*database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.sources[sourceName]
	if !ok {
		return nil, nil
	}
	copied := *source
	return &copied, nil
}

func (m *mockStore) GetSources() ([]database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sources []database.Source
	for _, source := range m.sources {
		sources = append(sources, *source)
	}
	return sources, nil
}

func (m *mockStore) GetSourceCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources), nil
}

func (m *mockStore) UpsertSource(sourceName, feedURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if source, ok := m.sources[sourceName]; ok {
		source.FeedURL = feedURL
		return nil
	}
	now := time.Now().UTC()
	m.sources[sourceName] = &database.Source{Name: sourceName, FeedURL: feedURL, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *mockStore) RecordFetchFailure(sourceName string, fetchErr string, nextFetch time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.sources[sourceName]
	if !ok {
		return fmt.Errorf("source '%s' not found", sourceName)
	}
	now := time.Now().UTC()
	source.LastError = fetchErr
	source.LastFetchedAt = &now
	source.NextFetchAt = &nextFetch
	return nil
}

func (m *mockStore) GetArticles(sourceName string) ([]database.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.Article(nil), m.articles[sourceName]...), nil
}

func (m *mockStore) GetArticleCount(sourceName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.articles[sourceName]), nil
}

func (m *mockStore) ReplaceSnapshot(sourceName, feedDate string, articles []database.SnapshotArticle, nextFetch time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.sources[sourceName]
	if !ok {
		return fmt.Errorf("source '%s' not found", sourceName)
	}

	stored := make([]database.Article, 0, len(articles))
	for i, article := range articles {
		stored = append(stored, database.Article{
			SourceName: sourceName,
			Position:   i,
			RecordID:   article.RecordID,
			Title:      article.Title,
			URL:        article.URL,
			Payload:    article.Payload,
		})
	}
	m.articles[sourceName] = stored

	now := time.Now().UTC()
	source.FeedDate = feedDate
	source.ArticleCount = len(articles)
	source.LastError = ""
	source.LastFetchedAt = &now
	source.NextFetchAt = &nextFetch
	source.UpdatedAt = now
	return nil
}

func (m *mockStore) GetExtracts(sourceName string) (map[string]database.ArticleExtract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	extracts := make(map[string]database.ArticleExtract)
	for id, extract := range m.extracts[sourceName] {
		extracts[id] = extract
	}
	return extracts, nil
}

func (m *mockStore) UpsertExtract(sourceName, articleID, content, status, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.extracts[sourceName] == nil {
		m.extracts[sourceName] = make(map[string]database.ArticleExtract)
	}
	previous := m.extracts[sourceName][articleID]
	now := time.Now().UTC()
	m.extracts[sourceName][articleID] = database.ArticleExtract{
		SourceName:  sourceName,
		ArticleID:   articleID,
		Content:     content,
		Status:      status,
		Error:       errorMsg,
		Attempts:    previous.Attempts + 1,
		ExtractedAt: &now,
	}
	return nil
}
