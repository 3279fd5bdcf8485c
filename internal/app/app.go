package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"CommentTrends/internal/cache"
	"CommentTrends/internal/clustering"
	"CommentTrends/internal/collector"
	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/httpapi"
	"CommentTrends/internal/infrastructure/ml"
	"CommentTrends/internal/infrastructure/scheduler"
	"CommentTrends/internal/infrastructure/storage"
	"CommentTrends/internal/infrastructure/youtube"
	"CommentTrends/internal/logging"
	"CommentTrends/internal/textclean"
	"CommentTrends/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	redis    *redis.Client
	pipeline *usecase.Pipeline
	trends   *usecase.TrendService
}

// New builds the application. Collector settings are only required by
// Refresh and Serve, so read-only commands work without API credentials.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.ValidateClustering(); err != nil {
		return nil, err
	}

	mode, err := textclean.ParseMode(cfg.Cleaning.Mode)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "cleaning.mode", Reason: err.Error()}
	}

	registry := clustering.NewRegistry()
	registry.Register(clustering.NewTFIDF(cfg.Clustering))
	if cfg.Embedding.Endpoint != "" {
		registry.Register(clustering.NewEmbedding(ml.NewClient(cfg.Embedding), cfg.Embedding.BatchSize, cfg.Clustering))
	}
	strategy, err := registry.Resolve(cfg.Clustering.Strategy)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "clustering.strategy", Reason: err.Error()}
	}

	repo := storage.NewCSVRepository(cfg.Storage.RawCachePath, cfg.Storage.SnapshotPath)
	runs := storage.NewRunRepository(cfg.Storage.RunsDir)

	rdb := cache.ConnectRedis(ctx, cfg.Cache.RedisURL, baseLogger.With("component", "cache"))
	snapshots := cache.NewSnapshotCache(repo, cfg.Cache, rdb, baseLogger.With("component", "cache"))

	platform := youtube.NewClient(cfg.YouTube, nil, baseLogger.With("component", "youtube"))
	source := collector.New(platform, cfg.YouTube, baseLogger.With("component", "collector"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Repository: repo,
		Runs:       runs,
		Strategy:   strategy,
		Cleaner:    textclean.New(mode, cfg.Cleaning.MinLengthFor(cfg.Clustering.Strategy)),
		Cache:      snapshots,
		Logger:     baseLogger.With("component", "pipeline"),
		NClusters:  cfg.Clustering.NClusters,
		Examples:   cfg.Clustering.Examples,
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		redis:    rdb,
		pipeline: pipeline,
		trends:   usecase.NewTrendService(snapshots, runs, repo.SnapshotPath(), baseLogger.With("component", "trends")),
	}, nil
}

// Close releases external connections.
func (a *Application) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

// Trends exposes the read side for CLI commands.
func (a *Application) Trends() *usecase.TrendService {
	return a.trends
}

// Refresh runs the batch pipeline once.
func (a *Application) Refresh(ctx context.Context, refetch bool) (domain.Run, error) {
	if err := a.cfg.ValidateCollector(); err != nil {
		return domain.Run{}, err
	}
	return a.pipeline.Refresh(ctx, usecase.RefreshOptions{Refetch: refetch})
}

// Serve runs the HTTP API and the optional cron refresh until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.cfg.ValidateCollector(); err != nil {
		return err
	}

	if spec := a.cfg.Scheduler.CronExpression; spec != "" {
		driver, err := scheduler.NewCronScheduler(spec, a.cfg.Scheduler.Location())
		if err != nil {
			return &domain.ConfigurationError{Field: "scheduler.cronExpression", Reason: err.Error()}
		}
		sched := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = sched.Stop(stopCtx)
		}()
		a.logger.Info("scheduled refresh enabled", "cron", spec, "next", driver.Next())
	}

	api := httpapi.NewServer(a.trends, a.pipeline, a.logger.With("component", "http"))
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
