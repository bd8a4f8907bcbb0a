package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lysyi3m/content-forge/app/api"
	"github.com/lysyi3m/content-forge/app/cache"
	"github.com/lysyi3m/content-forge/app/cfg"
	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/enrich"
	"github.com/lysyi3m/content-forge/app/feed"
	"github.com/lysyi3m/content-forge/app/filter"
	"github.com/lysyi3m/content-forge/app/fingerprint"
	"github.com/lysyi3m/content-forge/app/media"
	"github.com/lysyi3m/content-forge/app/pipeline"
	"github.com/lysyi3m/content-forge/app/rewrite"
	"github.com/lysyi3m/content-forge/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appConfig.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Content Forge", "version", appConfig.Version)

	if err := run(appConfig); err != nil {
		slog.Error("Content Forge stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appConfig *cfg.Cfg) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := cfg.LoadPipeline(appConfig.PipelineFile)
	if err != nil {
		return err
	}

	slog.Info("Connecting to database", "host", appConfig.DBHost, "name", appConfig.DBName)
	db, err := database.NewConnection(ctx, appConfig.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)

	siteRepo := database.NewSiteRepository(db)
	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)
	categoryRepo := database.NewCategoryRepository(db)
	backlinkRepo := database.NewBacklinkRepository(db)
	jobRepo := database.NewJobRepository(db)

	locker, closeLocker, err := newLocker(ctx, appConfig.RedisAddr)
	if err != nil {
		return err
	}
	defer closeLocker()

	imageStore, err := newImageStore(ctx, appConfig, settings.Images)
	if err != nil {
		return err
	}

	completer := rewrite.NewAnthropicClient(appConfig.AnthropicAPIKey, appConfig.AnthropicModel,
		appConfig.GenerativeTimeout, appConfig.GenerativeRPS)
	fetcher := feed.NewFetcher(nil, appConfig.UserAgent, settings.Extraction.Timeout)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := pipeline.New(pipeline.Deps{
		Sources:     sourceRepo,
		Items:       itemRepo,
		Backlinks:   backlinkRepo,
		Reader:      feed.NewReader(fetcher),
		Extractor:   feed.NewContentExtractor(fetcher, settings.Extraction.MinBodySize),
		Filter:      filter.NewFilterer(settings.Filter, filter.NewModelClassifier(completer)),
		Rewriter:    rewrite.NewRewriter(completer, settings.Rewrite),
		Categories:  enrich.NewCategoryResolver(categoryRepo),
		Images:      imageStore,
		Fingerprint: fingerprint.New(settings.Fingerprint.Threshold),
		Metrics:     pipeline.NewMetrics(registry),
	})
	runner := pipeline.NewRunner(p, siteRepo, jobRepo, locker, pipeline.DefaultLockTTL)

	if appConfig.RunOnce {
		job, err := runner.RunAll(ctx, appConfig.RewriteBatchSize)
		if err != nil {
			return err
		}
		slog.Info("Run finished", "status", job.Status,
			"fetched", job.ArticlesFetched, "published", job.ArticlesPublished)
		return nil
	}

	if appConfig.SchedulerInterval > 0 {
		slog.Info("Starting background scheduler",
			"workers", appConfig.WorkerCount, "interval", time.Duration(appConfig.SchedulerInterval)*time.Second)
		scheduler := tasks.NewScheduler(siteRepo, runner,
			time.Duration(appConfig.SchedulerInterval)*time.Second, appConfig.WorkerCount, appConfig.RewriteBatchSize)
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		slog.Info("Background scheduler disabled")
	}

	handler := api.NewHandler(siteRepo, sourceRepo, itemRepo, jobRepo, runner,
		api.NewGenerator(fmt.Sprintf("http://localhost:%s", appConfig.Port), appConfig.Version),
		appConfig.RewriteBatchSize, appConfig.Version)

	// Trigger endpoints run a whole site synchronously
	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      api.NewServer(handler, appConfig.APIAccessKey, registry),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	slog.Info("Content Forge started")

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case serveErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}

func newLocker(ctx context.Context, redisAddr string) (cache.Locker, func(), error) {
	if redisAddr == "" {
		slog.Info("Using in-process site locks")
		return cache.NewLocalLocker(), func() {}, nil
	}

	locker, err := cache.NewRedisLocker(ctx, redisAddr)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using Redis site locks", "addr", redisAddr)

	return locker, func() {
		if err := locker.Close(); err != nil {
			slog.Error("Failed to close Redis client", "error", err)
		}
	}, nil
}

// newImageStore returns nil when object storage is not configured; items
// then publish without an image.
func newImageStore(ctx context.Context, appConfig *cfg.Cfg, settings cfg.ImageSettings) (pipeline.ImageStore, error) {
	if appConfig.S3Endpoint == "" {
		slog.Warn("Image hosting disabled (S3_ENDPOINT not set)")
		return nil, nil
	}

	store, err := media.NewS3Store(ctx, media.S3Config{
		Endpoint:      appConfig.S3Endpoint,
		Bucket:        appConfig.S3Bucket,
		AccessKey:     appConfig.S3AccessKey,
		SecretKey:     appConfig.S3SecretKey,
		UseSSL:        appConfig.S3UseSSL,
		PublicBaseURL: appConfig.S3PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}

	return media.NewImagePipeline(nil, store, settings, appConfig.UserAgent), nil
}
