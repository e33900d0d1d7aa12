package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/newsreel/app/asset"
	"github.com/lysyi3m/newsreel/app/database"
	"github.com/lysyi3m/newsreel/app/feed"
	"github.com/lysyi3m/newsreel/app/metrics"
	"github.com/lysyi3m/newsreel/app/tasks"
)

func NewHandler(configCache *feed.ConfigCache, sourceRepo database.SourceRepository,
	articleRepo database.ArticleRepository, fetcher *feed.Fetcher, parser *feed.Parser,
	resolver *feed.Resolver, filterer *feed.Filterer, prober AssetProber,
	playback *asset.PlaybackController, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		configCache: configCache,
		sourceRepo:  sourceRepo,
		articleRepo: articleRepo,
		fetcher:     fetcher,
		parser:      parser,
		resolver:    resolver,
		filterer:    filterer,
		generator:   feed.NewGenerator(),
		prober:      prober,
		playback:    playback,
		scheduler:   scheduler,
		now:         time.Now,
	}
}

// sourceConfig looks up the gallery named in the route and answers 404 when
// it is not configured.
func (h *Handler) sourceConfig(c *gin.Context) (*feed.Config, bool) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing gallery name parameter"})
		return nil, false
	}

	sourceConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Debug("Gallery configuration not found", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Gallery not found"})
		return nil, false
	}

	return sourceConfig, true
}

func (h *Handler) GetGallery(c *gin.Context) {
	sourceConfig, ok := h.sourceConfig(c)
	if !ok {
		return
	}

	now := h.now().In(time.Local)

	snap, err := h.loadSnapshot(sourceConfig)
	if errors.Is(err, errNotLoaded) {
		c.JSON(http.StatusOK, notLoadedGallery(sourceConfig, snap.source, now))
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "load_snapshot", "source", sourceConfig.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, h.buildGallery(sourceConfig, snap, now))
}

func (h *Handler) GetArticle(c *gin.Context) {
	sourceConfig, ok := h.sourceConfig(c)
	if !ok {
		return
	}

	snap, err := h.loadSnapshot(sourceConfig)
	if err != nil && !errors.Is(err, errNotLoaded) {
		slog.Error("Database error", "operation", "load_snapshot", "source", sourceConfig.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	article, found := findArticle(snap.articles, c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	card := newCard(newLocator(sourceConfig), article)
	detail := ArticleDetail{Card: card}

	imageSlot := asset.NewSlot(card.Image, func() { detail.ImageHidden = true })
	audioSlot := asset.NewSlot(card.Audio, nil)

	resolutions := asset.ResolveAll(c.Request.Context(), h.prober.Load, imageSlot, audioSlot)
	image, audio := resolutions[0], resolutions[1]

	metrics.RecordAssetResolution(string(asset.KindImage), resolutionOutcome(image))
	metrics.RecordAssetResolution(string(asset.KindAudio), resolutionOutcome(audio))

	if image.Loaded() {
		detail.ImageURL = image.URL
	}
	if audio.Loaded() {
		detail.AudioURL = audio.URL
		detail.AudioAvailable = true
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) Search(c *gin.Context) {
	sourceConfig, ok := h.sourceConfig(c)
	if !ok {
		return
	}

	if sourceConfig.SearchURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search is not configured for this gallery"})
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	view := SearchView{Query: query, Results: []Card{}}

	if query == "" {
		view.Message = messageNoQuery
		c.JSON(http.StatusOK, view)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(sourceConfig.Settings.Timeout)*time.Second)
	defer cancel()

	raw, err := h.search(ctx, sourceConfig, query)
	if err != nil {
		slog.Warn("Search failed", "source", sourceConfig.Name, "query", query, "error", err)
		metrics.RecordSearch("error")
		view.Message = messageSearchFailed
		c.JSON(http.StatusOK, view)
		return
	}

	if len(raw) == 0 {
		metrics.RecordSearch("empty")
		view.Message = messageNoResults
		c.JSON(http.StatusOK, view)
		return
	}

	metrics.RecordSearch("success")
	view.Results = cards(newLocator(sourceConfig), h.resolver.Run(raw, ""))
	c.JSON(http.StatusOK, view)
}

// search forwards a query and decodes the results. Responses of an
// unrecognized shape count as no results.
func (h *Handler) search(ctx context.Context, sourceConfig *feed.Config, query string) ([]feed.RawArticle, error) {
	data, err := h.fetcher.Search(ctx, sourceConfig.SearchURL, query)
	if err != nil {
		return nil, err
	}

	raw, err := h.parser.RunSearch(data)
	if errors.Is(err, feed.ErrUnsupportedSearchResponse) {
		slog.Debug("Unsupported search response shape", "source", sourceConfig.Name)
		return nil, nil
	}
	return raw, err
}

// GetAsset redirects to the first location of an asset that exists in
// storage, trying the article's display date first and the next day second.
func (h *Handler) GetAsset(c *gin.Context) {
	sourceConfig, ok := h.sourceConfig(c)
	if !ok {
		return
	}

	kind, err := asset.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, ok := h.assetPair(c, sourceConfig, kind)
	if !ok {
		return
	}

	resolution := asset.ResolveWithFallback(c.Request.Context(), pair, h.prober.Load)
	metrics.RecordAssetResolution(string(kind), resolutionOutcome(resolution))

	if !resolution.Loaded() {
		slog.Debug("Asset unavailable", "source", sourceConfig.Name, "kind", kind, "id", c.Param("id"), "error", resolution.Err())
		c.JSON(http.StatusNotFound, gin.H{"error": "Asset unavailable"})
		return
	}

	c.Redirect(http.StatusFound, resolution.URL)
}

// GetNarration streams an article's narration. Starting a narration stops
// the one that is currently playing.
func (h *Handler) GetNarration(c *gin.Context) {
	sourceConfig, ok := h.sourceConfig(c)
	if !ok {
		return
	}

	pair, ok := h.assetPair(c, sourceConfig, asset.KindAudio)
	if !ok {
		return
	}

	playback, err := h.playback.Play(c.Request.Context(), pair)
	if errors.Is(err, asset.ErrPlaybackSuperseded) {
		c.JSON(http.StatusConflict, gin.H{"error": "Narration superseded"})
		return
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Narration unavailable"})
		return
	}
	metrics.RecordPlayback("started")

	stream, ok := playback.(*asset.Stream)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"playing": true})
		return
	}

	contentType := stream.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.Header("Content-Type", contentType)
	if stream.ContentLength >= 0 {
		c.Header("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	}
	c.Header("X-Narration-Url", stream.URL)
	c.Status(http.StatusOK)

	if _, err := stream.WriteTo(c.Writer); err != nil {
		slog.Debug("Narration stream ended", "source", sourceConfig.Name, "url", stream.URL, "error", err)
	}
}

func (h *Handler) StopNarration(c *gin.Context) {
	h.playback.Stop()
	c.Status(http.StatusNoContent)
}

// assetPair locates an asset of the article in the route. The display date
// comes from the date query parameter or, without one, from the stored
// snapshot.
func (h *Handler) assetPair(c *gin.Context, sourceConfig *feed.Config, kind asset.Kind) (asset.Pair, bool) {
	id := c.Param("id")
	date := c.Query("date")

	if date == "" {
		snap, err := h.loadSnapshot(sourceConfig)
		if err != nil && !errors.Is(err, errNotLoaded) {
			slog.Error("Database error", "operation", "load_snapshot", "source", sourceConfig.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return asset.Pair{}, false
		}
		article, found := findArticle(snap.articles, id)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
			return asset.Pair{}, false
		}
		date = article.DisplayDate
	}

	return newLocator(sourceConfig).Locate(kind, date, id), true
}

func (h *Handler) GetGalleryFeed(c *gin.Context) {
	sourceConfig, ok := h.sourceConfig(c)
	if !ok {
		return
	}

	snap, err := h.loadSnapshot(sourceConfig)
	if errors.Is(err, errNotLoaded) {
		c.JSON(http.StatusNotFound, gin.H{"error": messageNotLoaded})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "load_snapshot", "source", sourceConfig.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	view := h.buildGallery(sourceConfig, snap, h.now().In(time.Local))
	items := h.galleryItems(c.Request.Context(), append(view.Recent.Articles, view.Older.Articles...))

	rss, err := h.generator.Run(sourceConfig, view.FeedDate, items)
	if err != nil {
		slog.Error("RSS generation error", "source", sourceConfig.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-Name", sourceConfig.Name)
	if view.LastFetchedAt != nil {
		c.Header("X-Last-Updated", view.LastFetchedAt.Format(time.RFC3339))
	}

	c.String(http.StatusOK, rss)
}

// galleryItems resolves the image and narration of every card concurrently.
func (h *Handler) galleryItems(ctx context.Context, galleryCards []Card) []feed.GalleryItem {
	slots := make([]*asset.Slot, 0, 2*len(galleryCards))
	for _, card := range galleryCards {
		slots = append(slots, asset.NewSlot(card.Image, nil), asset.NewSlot(card.Audio, nil))
	}

	resolutions := asset.ResolveAll(ctx, h.prober.Load, slots...)

	items := make([]feed.GalleryItem, 0, len(galleryCards))
	for i, card := range galleryCards {
		item := feed.GalleryItem{Article: card.ResolvedArticle}
		if image := resolutions[2*i]; image.Loaded() {
			item.ImageURL = image.URL
		}
		if audio := resolutions[2*i+1]; audio.Loaded() {
			item.AudioURL = audio.URL
		}
		items = append(items, item)
	}
	return items
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(); err == nil {
		health["sources"] = sourceCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()
	health["narration_playing"] = h.playback.Active()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListGalleries(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	galleries := make([]map[string]interface{}, 0, len(configs))

	for _, sourceConfig := range configs {
		galleryInfo := map[string]interface{}{
			"name":              sourceConfig.Name,
			"feed_url":          sourceConfig.FeedURL,
			"search_url":        sourceConfig.SearchURL,
			"enabled":           sourceConfig.Settings.Enabled,
			"recent_limit":      sourceConfig.Settings.RecentLimit,
			"older_limit":       sourceConfig.Settings.OlderLimit,
			"refresh_interval":  (time.Duration(sourceConfig.Settings.RefreshInterval) * time.Second).String(),
			"extract_summaries": sourceConfig.Settings.ExtractSummaries,
			"filters":           len(sourceConfig.Filters),
		}

		if source, err := h.sourceRepo.GetSource(sourceConfig.Name); err == nil && source != nil {
			galleryInfo["feed_date"] = source.FeedDate
			galleryInfo["last_fetched_at"] = source.LastFetchedAt
			galleryInfo["next_fetch_at"] = source.NextFetchAt
			galleryInfo["last_error"] = source.LastError
			galleryInfo["updated_at"] = source.UpdatedAt
		}

		if articleCount, err := h.articleRepo.GetArticleCount(sourceConfig.Name); err == nil {
			galleryInfo["article_count"] = articleCount
		}

		galleries = append(galleries, galleryInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"galleries": galleries,
		"total":     len(galleries),
	})
}

// APIReloadGallery rereads a gallery's YAML, drops cached asset probes and
// queues a config sync followed by a feed refresh.
func (h *Handler) APIReloadGallery(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing gallery name parameter"})
		return
	}

	if _, err := h.configCache.GetConfig(name); err != nil {
		slog.Error("Gallery configuration not found", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Gallery configuration not found"})
		return
	}

	sourceConfig, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	h.prober.Purge()

	syncTask := tasks.NewSyncSourceConfigTask(name, sourceConfig, h.sourceRepo)
	if err := h.scheduler.EnqueueTask(syncTask); err != nil {
		slog.Error("Error enqueueing sync task", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	refreshTask := tasks.NewRefreshFeedTask(name, sourceConfig, h.fetcher, h.parser, h.sourceRepo, h.articleRepo)
	if err := h.scheduler.EnqueueTask(refreshTask); err != nil {
		slog.Error("Error enqueueing refresh task", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue refresh task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and tasks enqueued successfully",
		"gallery": gin.H{
			"name":     name,
			"feed_url": sourceConfig.FeedURL,
			"enabled":  sourceConfig.Settings.Enabled,
		},
		"tasks": []gin.H{
			{
				"id":   syncTask.ID,
				"type": syncTask.Type,
			},
			{
				"id":   refreshTask.ID,
				"type": refreshTask.Type,
			},
		},
	})
}
