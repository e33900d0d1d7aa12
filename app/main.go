package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/newsreel/app/api"
	"github.com/lysyi3m/newsreel/app/asset"
	"github.com/lysyi3m/newsreel/app/cfg"
	"github.com/lysyi3m/newsreel/app/database"
	"github.com/lysyi3m/newsreel/app/feed"
	"github.com/lysyi3m/newsreel/app/metrics"
	"github.com/lysyi3m/newsreel/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Newsreel server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "dir", appCfg.SourcesDir, "count", configCache.GetConfigCount())

	sourceRepo := database.NewSourceRepository(db)
	articleRepo := database.NewArticleRepository(db)

	// Per-request deadlines come from contexts; this only bounds dialing.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	fetcher := feed.NewFetcher(httpClient, appCfg.UserAgent)
	parser := feed.NewParser()
	resolver := feed.NewResolver()
	filterer := feed.NewFilterer()
	contentExtractor := feed.NewContentExtractor()

	prober := asset.NewProber(httpClient, appCfg.UserAgent, appCfg.AssetCacheSize, time.Duration(appCfg.AssetCacheTTL)*time.Second)
	playback := asset.NewPlaybackController(asset.NewStreamPlayer(httpClient, appCfg.UserAgent), func(err error) {
		slog.Warn("Narration playback failed", "error", err)
		metrics.RecordPlayback("failed")
	})

	scheduler := tasks.NewScheduler(configCache, sourceRepo, articleRepo, fetcher, parser, resolver, contentExtractor)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)

	handler := api.NewHandler(configCache, sourceRepo, articleRepo, fetcher, parser, resolver, filterer, prober, playback, scheduler)
	router := api.NewServer(handler)

	// No write timeout: narration streams last as long as the audio.
	httpServer := &http.Server{
		Addr:        ":" + appCfg.Port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	playback.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Newsreel server shutdown complete")
}
