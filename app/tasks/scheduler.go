package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/newsreel/app/cfg"
	"github.com/lysyi3m/newsreel/app/database"
	"github.com/lysyi3m/newsreel/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskQueueSize = 300
	taskTimeout   = 5 * time.Minute
	maxRetryDelay = 30 * time.Second
)

type Scheduler struct {
	configCache      *feed.ConfigCache
	sourceRepo       database.SourceRepository
	articleRepo      database.ArticleRepository
	fetcher          *feed.Fetcher
	parser           *feed.Parser
	resolver         *feed.Resolver
	contentExtractor *feed.ContentExtractor
	interval         time.Duration
	workerCount      int
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	taskQueue        chan TaskInterface
}

func NewScheduler(configCache *feed.ConfigCache, sourceRepo database.SourceRepository,
	articleRepo database.ArticleRepository, fetcher *feed.Fetcher, parser *feed.Parser,
	resolver *feed.Resolver, contentExtractor *feed.ContentExtractor) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		configCache:      configCache,
		sourceRepo:       sourceRepo,
		articleRepo:      articleRepo,
		fetcher:          fetcher,
		parser:           parser,
		resolver:         resolver,
		contentExtractor: contentExtractor,
		interval:         time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:      cfg.WorkerCount,
		ctx:              ctx,
		cancel:           cancel,
		taskQueue:        make(chan TaskInterface, taskQueueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// RefreshTask builds the refresh task of a source.
func (s *Scheduler) RefreshTask(sourceConfig *feed.Config) *RefreshFeedTask {
	return NewRefreshFeedTask(sourceConfig.Name, sourceConfig, s.fetcher, s.parser, s.sourceRepo, s.articleRepo)
}

// SyncTask builds the config sync task of a source.
func (s *Scheduler) SyncTask(sourceConfig *feed.Config) *SyncSourceConfigTask {
	return NewSyncSourceConfigTask(sourceConfig.Name, sourceConfig, s.sourceRepo)
}

func (s *Scheduler) extractTask(sourceConfig *feed.Config) *ExtractSummaryTask {
	return NewExtractSummaryTask(sourceConfig.Name, sourceConfig, s.fetcher, s.resolver, s.contentExtractor, s.sourceRepo, s.articleRepo)
}

func (s *Scheduler) enqueueStartupTasks() {
	sourceConfigs := s.configCache.GetConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Processing source configurations", "count", len(sourceConfigs))

	for _, sourceConfig := range sourceConfigs {
		if err := s.EnqueueTask(s.SyncTask(sourceConfig)); err != nil {
			slog.Warn("Failed to enqueue SyncSourceConfigTask", "source", sourceConfig.Name, "error", err)
			continue
		}

		if !sourceConfig.Settings.Enabled {
			slog.Debug("Source disabled, skipping RefreshFeedTask", "source", sourceConfig.Name)
			continue
		}

		if err := s.EnqueueTask(s.RefreshTask(sourceConfig)); err != nil {
			slog.Warn("Failed to enqueue RefreshFeedTask", "source", sourceConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	sourceConfigs := s.configCache.GetEnabledConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No enabled source configurations found")
		return
	}

	slog.Debug("Processing enabled source configurations for task scheduling", "count", len(sourceConfigs))

	now := time.Now().UTC()
	for _, sourceConfig := range sourceConfigs {
		source, err := s.sourceRepo.GetSource(sourceConfig.Name)
		if err != nil {
			slog.Warn("Failed to get source from database, skipping", "source", sourceConfig.Name, "error", err)
			continue
		}
		if source == nil {
			slog.Debug("Source not registered yet, enqueueing SyncSourceConfigTask", "source", sourceConfig.Name)
			if err := s.EnqueueTask(s.SyncTask(sourceConfig)); err != nil {
				slog.Warn("Failed to enqueue SyncSourceConfigTask", "source", sourceConfig.Name, "error", err)
			}
			continue
		}

		if source.NextFetchAt != nil && source.NextFetchAt.After(now) {
			slog.Debug("Source not due for refresh yet", "source", sourceConfig.Name, "next_fetch_at", source.NextFetchAt)
		} else if err := s.EnqueueTask(s.RefreshTask(sourceConfig)); err != nil {
			slog.Warn("Failed to enqueue RefreshFeedTask", "source", sourceConfig.Name, "error", err)
		}

		if sourceConfig.Settings.ExtractSummaries && source.ArticleCount > 0 {
			if err := s.EnqueueTask(s.extractTask(sourceConfig)); err != nil {
				slog.Warn("Failed to enqueue ExtractSummaryTask", "source", sourceConfig.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// retryDelay doubles from one second per retry, capped at maxRetryDelay.
func retryDelay(retryCount int) time.Duration {
	delay := time.Duration(1<<uint(retryCount-1)) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
