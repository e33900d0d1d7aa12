package api

import (
	"context"
	"time"

	"github.com/lysyi3m/newsreel/app/asset"
	"github.com/lysyi3m/newsreel/app/database"
	"github.com/lysyi3m/newsreel/app/feed"
	"github.com/lysyi3m/newsreel/app/tasks"
)

type GeneratorInterface interface {
	Run(sourceConfig *feed.Config, feedDate string, items []feed.GalleryItem) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// AssetProber checks whether an asset exists in storage.
type AssetProber interface {
	Load(ctx context.Context, url string) error
	Purge()
}

var _ AssetProber = (*asset.Prober)(nil)

type Handler struct {
	configCache *feed.ConfigCache
	sourceRepo  database.SourceRepository
	articleRepo database.ArticleRepository
	fetcher     *feed.Fetcher
	parser      *feed.Parser
	resolver    *feed.Resolver
	filterer    *feed.Filterer
	generator   GeneratorInterface
	prober      AssetProber
	playback    *asset.PlaybackController
	scheduler   tasks.TaskSchedulerInterface
	now         func() time.Time
}

// Card is one article of a gallery or a search result list, with the
// candidate locations of its image and narration.
type Card struct {
	feed.ResolvedArticle
	Image asset.Pair `json:"image"`
	Audio asset.Pair `json:"audio"`
}

type Section struct {
	Articles []Card `json:"articles"`
	Message  string `json:"message,omitempty"`
}

type GalleryView struct {
	Name          string     `json:"name"`
	FeedDate      string     `json:"feedDate"`
	Today         string     `json:"today"`
	Recent        Section    `json:"recent"`
	Older         Section    `json:"older"`
	Message       string     `json:"message,omitempty"`
	LastFetchedAt *time.Time `json:"lastFetchedAt,omitempty"`
}

// ArticleDetail is the modal view of one article. Assets are resolved
// through the primary/secondary fallback; an unavailable image is hidden.
type ArticleDetail struct {
	Card
	ImageURL       string `json:"imageUrl,omitempty"`
	ImageHidden    bool   `json:"imageHidden"`
	AudioURL       string `json:"audioUrl,omitempty"`
	AudioAvailable bool   `json:"audioAvailable"`
}

type SearchView struct {
	Query   string `json:"query"`
	Results []Card `json:"results"`
	Message string `json:"message,omitempty"`
}
