package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/newsreel/app/database"
	"github.com/lysyi3m/newsreel/app/feed"
	"github.com/lysyi3m/newsreel/app/metrics"
)

var ErrSourceNotRegistered = errors.New("source not registered")

// RefreshFeedTask downloads a source's daily feed and replaces its stored
// snapshot. A failed refresh leaves the previous snapshot in place.
type RefreshFeedTask struct {
	Task
	SourceConfig *feed.Config
	fetcher      *feed.Fetcher
	parser       *feed.Parser
	sourceRepo   database.SourceRepository
	articleRepo  database.ArticleRepository
	now          func() time.Time
}

func NewRefreshFeedTask(sourceName string, sourceConfig *feed.Config, fetcher *feed.Fetcher, parser *feed.Parser,
	sourceRepo database.SourceRepository, articleRepo database.ArticleRepository) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:         NewTask(TaskTypeRefreshFeed, sourceName),
		SourceConfig: sourceConfig,
		fetcher:      fetcher,
		parser:       parser,
		sourceRepo:   sourceRepo,
		articleRepo:  articleRepo,
		now:          time.Now,
	}
}

func (t *RefreshFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.Enabled {
		slog.Debug("Source disabled, skipping", "source", t.SourceName)
		return nil
	}

	source, err := t.sourceRepo.GetSource(t.SourceName)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}
	if source == nil {
		return ErrSourceNotRegistered
	}

	started := t.now()
	nextFetch := started.Add(time.Duration(t.SourceConfig.Settings.RefreshInterval) * time.Second)

	count, feedDate, err := t.refresh(ctx, nextFetch)
	if err != nil {
		metrics.RecordFeedRefresh(t.SourceName, "error", time.Since(started).Seconds())
		if recordErr := t.sourceRepo.RecordFetchFailure(t.SourceName, err.Error(), nextFetch); recordErr != nil {
			slog.Error("Failed to record fetch failure", "source", t.SourceName, "error", recordErr)
		}
		return err
	}

	metrics.RecordFeedRefresh(t.SourceName, "success", time.Since(started).Seconds())
	metrics.SetSnapshotSize(t.SourceName, count)

	slog.Info("Task completed",
		"type", t.GetType(),
		"source", t.SourceName,
		"duration", t.GetDuration(),
		"feed_date", feedDate,
		"articles", count)

	return nil
}

func (t *RefreshFeedTask) refresh(ctx context.Context, nextFetch time.Time) (int, string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(t.SourceConfig.Settings.Timeout)*time.Second)
	defer cancel()

	data, err := t.fetcher.FetchFeed(timeoutCtx, t.SourceConfig.FeedURL)
	if err != nil {
		return 0, "", fmt.Errorf("failed to fetch feed: %w", err)
	}

	raw, err := t.parser.Run(data)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse feed: %w", err)
	}

	articles := make([]database.SnapshotArticle, 0, len(raw.Articles))
	for _, record := range raw.Articles {
		payload, err := feed.EncodeRecord(record)
		if err != nil {
			return 0, "", err
		}
		articles = append(articles, database.SnapshotArticle{
			RecordID: record.ID.String(),
			Title:    record.Title.String(),
			URL:      record.URL.String(),
			Payload:  payload,
		})
	}

	feedDate := raw.Date.String()
	if err := t.articleRepo.ReplaceSnapshot(t.SourceName, feedDate, articles, nextFetch); err != nil {
		return 0, "", fmt.Errorf("failed to store snapshot: %w", err)
	}

	return len(articles), feedDate, nil
}
