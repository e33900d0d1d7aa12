package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ SourceRepository = (*SourceRepo)(nil)

type SourceRepo struct {
	db *DB
}

func NewSourceRepository(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

const sourceColumns = `name, feed_url, feed_date, last_fetched_at, next_fetch_at, last_error,
	       article_count, created_at, updated_at`

func scanSource(scanner interface{ Scan(...any) error }) (*Source, error) {
	var source Source
	err := scanner.Scan(
		&source.Name, &source.FeedURL, &source.FeedDate, &source.LastFetchedAt, &source.NextFetchAt,
		&source.LastError, &source.ArticleCount, &source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *SourceRepo) GetSource(sourceName string) (*Source, error) {
	row := r.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE name = ?`, sourceName)

	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return source, nil
}

func (r *SourceRepo) GetSources() ([]Source, error) {
	rows, err := r.db.Query(`SELECT ` + sourceColumns + ` FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func (r *SourceRepo) GetSourceCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

// UpsertSource registers a source or updates its feed URL. Snapshot fields
// are left alone.
func (r *SourceRepo) UpsertSource(sourceName, feedURL string) error {
	now := time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO sources (name, feed_url, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			feed_url = excluded.feed_url,
			updated_at = CASE WHEN sources.feed_url = excluded.feed_url THEN sources.updated_at ELSE excluded.updated_at END
	`, sourceName, feedURL, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	return nil
}

// RecordFetchFailure keeps the previous snapshot and stores the error.
func (r *SourceRepo) RecordFetchFailure(sourceName string, fetchErr string, nextFetch time.Time) error {
	now := time.Now().UTC()

	result, err := r.db.Exec(`
		UPDATE sources
		SET last_error = ?, last_fetched_at = ?, next_fetch_at = ?
		WHERE name = ?
	`, fetchErr, now, nextFetch.UTC(), sourceName)
	if err != nil {
		return fmt.Errorf("failed to record fetch failure: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("source '%s' not found", sourceName)
	}

	return nil
}
