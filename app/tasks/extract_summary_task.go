package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/newsreel/app/database"
	"github.com/lysyi3m/newsreel/app/feed"
)

const (
	// extractBatchSize bounds the pages fetched by one task run.
	extractBatchSize = 20
	// maxExtractAttempts stops retrying pages that keep failing.
	maxExtractAttempts = 3
)

// ExtractSummaryTask fills in summaries for stored articles that have none by
// extracting the readable text of their source page.
type ExtractSummaryTask struct {
	Task
	SourceConfig     *feed.Config
	fetcher          *feed.Fetcher
	resolver         *feed.Resolver
	contentExtractor *feed.ContentExtractor
	sourceRepo       database.SourceRepository
	articleRepo      database.ArticleRepository
}

func NewExtractSummaryTask(sourceName string, sourceConfig *feed.Config, fetcher *feed.Fetcher, resolver *feed.Resolver,
	contentExtractor *feed.ContentExtractor, sourceRepo database.SourceRepository, articleRepo database.ArticleRepository) *ExtractSummaryTask {
	return &ExtractSummaryTask{
		Task:             NewTask(TaskTypeExtractSummary, sourceName),
		SourceConfig:     sourceConfig,
		fetcher:          fetcher,
		resolver:         resolver,
		contentExtractor: contentExtractor,
		sourceRepo:       sourceRepo,
		articleRepo:      articleRepo,
	}
}

func (t *ExtractSummaryTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.ExtractSummaries {
		slog.Debug("Summary extraction disabled for source", "source", t.SourceName)
		return nil
	}

	candidates, err := t.candidates()
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		slog.Debug("No articles need summary extraction", "source", t.SourceName)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, article := range candidates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		extractCtx, cancel := context.WithTimeout(ctx, time.Duration(t.SourceConfig.Settings.Timeout)*time.Second)
		summary, err := t.extract(extractCtx, article.SourceURL)
		cancel()

		if err != nil {
			slog.Warn("Failed to extract summary", "source", t.SourceName, "article_id", article.ID, "url", article.SourceURL, "error", err)
			errorCount++
			if err := t.articleRepo.UpsertExtract(t.SourceName, article.ID, "", database.ExtractStatusFailed, err.Error()); err != nil {
				slog.Error("Failed to update extraction status", "source", t.SourceName, "article_id", article.ID, "error", err)
			}
			continue
		}

		if err := t.articleRepo.UpsertExtract(t.SourceName, article.ID, summary, database.ExtractStatusSuccess, ""); err != nil {
			return fmt.Errorf("failed to store extracted summary: %w", err)
		}
		successCount++
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"source", t.SourceName,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

// candidates returns stored articles with a page URL, no summary, and no
// finished extraction, in feed order.
func (t *ExtractSummaryTask) candidates() ([]feed.ResolvedArticle, error) {
	source, err := t.sourceRepo.GetSource(t.SourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	if source == nil {
		return nil, nil
	}

	stored, err := t.articleRepo.GetArticles(t.SourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}

	extracts, err := t.articleRepo.GetExtracts(t.SourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to get extracts: %w", err)
	}

	raw := make([]feed.RawArticle, 0, len(stored))
	for _, article := range stored {
		record, err := feed.DecodeRecord(article.Payload)
		if err != nil {
			slog.Warn("Skipping undecodable stored article", "source", t.SourceName, "position", article.Position, "error", err)
			continue
		}
		raw = append(raw, record)
	}

	var candidates []feed.ResolvedArticle
	for _, article := range t.resolver.Run(raw, source.FeedDate) {
		if article.Summary != "" || article.SourceURL == "" {
			continue
		}
		if extract, ok := extracts[article.ID]; ok {
			if extract.Status == database.ExtractStatusSuccess || extract.Attempts >= maxExtractAttempts {
				continue
			}
		}
		candidates = append(candidates, article)
		if len(candidates) == extractBatchSize {
			break
		}
	}

	return candidates, nil
}

func (t *ExtractSummaryTask) extract(ctx context.Context, pageURL string) (string, error) {
	data, err := t.fetcher.Page(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article page: %w", err)
	}

	summary, err := t.contentExtractor.Run(data, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	return summary, nil
}
