package database

import (
	"fmt"
	"time"
)

var _ ArticleRepository = (*ArticleRepo)(nil)

type ArticleRepo struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

// GetArticles returns the stored snapshot of a source in feed order.
func (r *ArticleRepo) GetArticles(sourceName string) ([]Article, error) {
	rows, err := r.db.Query(`
		SELECT source_name, position, record_id, title, url, payload, created_at
		FROM articles
		WHERE source_name = ?
		ORDER BY position
	`, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var article Article
		var payload string
		err := rows.Scan(&article.SourceName, &article.Position, &article.RecordID, &article.Title,
			&article.URL, &payload, &article.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		article.Payload = []byte(payload)
		articles = append(articles, article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) GetArticleCount(sourceName string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM articles WHERE source_name = ?", sourceName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get article count: %w", err)
	}
	return count, nil
}

// ReplaceSnapshot swaps the stored articles of a source for a fresh feed and
// marks the refresh successful, all in one transaction. Readers see either
// the old snapshot or the new one.
func (r *ArticleRepo) ReplaceSnapshot(sourceName, feedDate string, articles []SnapshotArticle, nextFetch time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.Exec(`
		UPDATE sources
		SET feed_date = ?, article_count = ?, last_error = '', last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
		WHERE name = ?
	`, feedDate, len(articles), now, nextFetch.UTC(), now, sourceName)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("source '%s' not found", sourceName)
	}

	if _, err := tx.Exec(`DELETE FROM articles WHERE source_name = ?`, sourceName); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO articles (source_name, position, record_id, title, url, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, article := range articles {
		if _, err := stmt.Exec(sourceName, i, article.RecordID, article.Title, article.URL, string(article.Payload), now); err != nil {
			return fmt.Errorf("failed to insert article %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

func (r *ArticleRepo) GetExtracts(sourceName string) (map[string]ArticleExtract, error) {
	rows, err := r.db.Query(`
		SELECT source_name, article_id, content, status, error, attempts, extracted_at
		FROM article_extracts
		WHERE source_name = ?
	`, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to get extracts: %w", err)
	}
	defer rows.Close()

	extracts := make(map[string]ArticleExtract)
	for rows.Next() {
		var extract ArticleExtract
		err := rows.Scan(&extract.SourceName, &extract.ArticleID, &extract.Content, &extract.Status,
			&extract.Error, &extract.Attempts, &extract.ExtractedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extract row: %w", err)
		}
		extracts[extract.ArticleID] = extract
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extract rows: %w", err)
	}

	return extracts, nil
}

// UpsertExtract stores the outcome of a summary extraction. Attempts count
// every call for the same article.
func (r *ArticleRepo) UpsertExtract(sourceName, articleID, content, status, errorMsg string) error {
	now := time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO article_extracts (source_name, article_id, content, status, error, attempts, extracted_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (source_name, article_id) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			error = excluded.error,
			attempts = article_extracts.attempts + 1,
			extracted_at = excluded.extracted_at
	`, sourceName, articleID, content, status, errorMsg, now)
	if err != nil {
		return fmt.Errorf("failed to upsert extract: %w", err)
	}

	return nil
}
