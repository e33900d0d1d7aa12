package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/newsreel/app/asset"
	"github.com/lysyi3m/newsreel/app/database"
	"github.com/lysyi3m/newsreel/app/feed"
)

const (
	messageNoRecent     = "No news for today."
	messageNoOlder      = "No previous news."
	messageNotLoaded    = "News could not be loaded."
	messageSearchFailed = "Search failed."
	messageNoQuery      = "No search query."
	messageNoResults    = "No results found."
)

var errNotLoaded = errors.New("gallery has not been loaded")

// snapshot is the resolved content of a source's latest stored feed, before
// filtering and partitioning.
type snapshot struct {
	source   *database.Source
	articles []feed.ResolvedArticle
}

// loadSnapshot resolves the stored snapshot of a source. Extracted page text
// fills in missing summaries. errNotLoaded means no successful refresh has
// produced articles yet.
func (h *Handler) loadSnapshot(sourceConfig *feed.Config) (*snapshot, error) {
	source, err := h.sourceRepo.GetSource(sourceConfig.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	if source == nil || source.LastFetchedAt == nil || (source.LastError != "" && source.ArticleCount == 0) {
		return &snapshot{source: source}, errNotLoaded
	}

	stored, err := h.articleRepo.GetArticles(sourceConfig.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}

	extracts, err := h.articleRepo.GetExtracts(sourceConfig.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get extracts: %w", err)
	}

	raw := make([]feed.RawArticle, 0, len(stored))
	for _, article := range stored {
		record, err := feed.DecodeRecord(article.Payload)
		if err != nil {
			slog.Warn("Skipping undecodable stored article", "source", sourceConfig.Name, "position", article.Position, "error", err)
			continue
		}
		raw = append(raw, record)
	}

	articles := h.resolver.Run(raw, source.FeedDate)
	for i := range articles {
		if articles[i].Summary != "" {
			continue
		}
		if extract, ok := extracts[articles[i].ID]; ok && extract.Status == database.ExtractStatusSuccess {
			articles[i].Summary = extract.Content
		}
	}

	return &snapshot{source: source, articles: articles}, nil
}

// buildGallery filters and partitions a snapshot around now's calendar day.
func (h *Handler) buildGallery(sourceConfig *feed.Config, snap *snapshot, now time.Time) GalleryView {
	view := GalleryView{
		Name:   sourceConfig.Name,
		Today:  now.Format(feed.DateLayout),
		Recent: Section{Articles: []Card{}, Message: messageNoRecent},
		Older:  Section{Articles: []Card{}, Message: messageNoOlder},
	}

	if snap.source != nil {
		view.FeedDate = snap.source.FeedDate
		view.LastFetchedAt = snap.source.LastFetchedAt
	}

	filtered := h.filterer.Run(snap.articles, sourceConfig)
	partition := h.resolver.Partition(filtered, now, sourceConfig.Settings.RecentLimit, sourceConfig.Settings.OlderLimit)

	locator := newLocator(sourceConfig)
	if len(partition.Recent) > 0 {
		view.Recent = Section{Articles: cards(locator, partition.Recent)}
	}
	if len(partition.Older) > 0 {
		view.Older = Section{Articles: cards(locator, partition.Older)}
	}

	return view
}

// notLoadedGallery is the placeholder view of a source without a snapshot.
func notLoadedGallery(sourceConfig *feed.Config, source *database.Source, now time.Time) GalleryView {
	view := GalleryView{
		Name:    sourceConfig.Name,
		Today:   now.Format(feed.DateLayout),
		Recent:  Section{Articles: []Card{}},
		Older:   Section{Articles: []Card{}},
		Message: messageNotLoaded,
	}
	if source != nil {
		view.LastFetchedAt = source.LastFetchedAt
	}
	return view
}

func newLocator(sourceConfig *feed.Config) *asset.Locator {
	return asset.NewLocator(sourceConfig.Assets.BaseURL, sourceConfig.Assets.ImagePrefix, sourceConfig.Assets.AudioPrefix)
}

func cards(locator *asset.Locator, articles []feed.ResolvedArticle) []Card {
	result := make([]Card, 0, len(articles))
	for _, article := range articles {
		result = append(result, newCard(locator, article))
	}
	return result
}

func newCard(locator *asset.Locator, article feed.ResolvedArticle) Card {
	return Card{
		ResolvedArticle: article,
		Image:           locator.Locate(asset.KindImage, article.DisplayDate, article.ID),
		Audio:           locator.Locate(asset.KindAudio, article.DisplayDate, article.ID),
	}
}

func findArticle(articles []feed.ResolvedArticle, id string) (feed.ResolvedArticle, bool) {
	for _, article := range articles {
		if article.ID == id {
			return article, true
		}
	}
	return feed.ResolvedArticle{}, false
}

// resolutionOutcome names where a resolution ended, for metrics.
func resolutionOutcome(resolution asset.Resolution) string {
	switch resolution.State {
	case asset.StateLoadedPrimary:
		return "primary"
	case asset.StateLoadedSecondary:
		return "secondary"
	default:
		return "unavailable"
	}
}
