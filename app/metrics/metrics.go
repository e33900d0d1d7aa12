// Package metrics provides Prometheus metrics for newsreel.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedRefreshTotal counts feed refreshes by source and outcome.
	FeedRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsreel",
			Name:      "feed_refresh_total",
			Help:      "Total number of feed refreshes",
		},
		[]string{"source", "status"},
	)

	// FeedRefreshDuration measures fetch, decode and store of one refresh.
	FeedRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsreel",
			Name:      "feed_refresh_duration_seconds",
			Help:      "Duration of feed refreshes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// SnapshotArticles tracks the size of the stored snapshot per source.
	SnapshotArticles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "newsreel",
			Name:      "snapshot_articles",
			Help:      "Number of articles in the latest stored snapshot",
		},
		[]string{"source"},
	)

	// AssetResolutionsTotal counts asset resolutions by kind and where they
	// ended: primary, secondary or unavailable.
	AssetResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsreel",
			Name:      "asset_resolutions_total",
			Help:      "Total number of asset resolutions",
		},
		[]string{"kind", "outcome"},
	)

	// SearchRequestsTotal counts forwarded searches by outcome.
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsreel",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"status"},
	)

	// PlaybackStartsTotal counts narration playback attempts by outcome.
	PlaybackStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsreel",
			Name:      "playback_starts_total",
			Help:      "Total number of narration playback starts",
		},
		[]string{"outcome"},
	)
)

// RecordFeedRefresh records a finished feed refresh.
func RecordFeedRefresh(source, status string, duration float64) {
	FeedRefreshTotal.WithLabelValues(source, status).Inc()
	FeedRefreshDuration.WithLabelValues(source).Observe(duration)
}

// SetSnapshotSize records the article count of a stored snapshot.
func SetSnapshotSize(source string, count int) {
	SnapshotArticles.WithLabelValues(source).Set(float64(count))
}

// RecordAssetResolution records where an asset resolution ended.
func RecordAssetResolution(kind, outcome string) {
	AssetResolutionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSearch records a search request.
func RecordSearch(status string) {
	SearchRequestsTotal.WithLabelValues(status).Inc()
}

// RecordPlayback records a narration playback attempt.
func RecordPlayback(outcome string) {
	PlaybackStartsTotal.WithLabelValues(outcome).Inc()
}
