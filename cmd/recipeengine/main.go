// Package main wires together the recipe enrichment service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/api"
	"github.com/woktalk/recipe-engine/internal/cache"
	"github.com/woktalk/recipe-engine/internal/clock/system"
	"github.com/woktalk/recipe-engine/internal/config"
	"github.com/woktalk/recipe-engine/internal/dispatcher"
	"github.com/woktalk/recipe-engine/internal/enrichment"
	"github.com/woktalk/recipe-engine/internal/executor"
	"github.com/woktalk/recipe-engine/internal/jobtable"
	"github.com/woktalk/recipe-engine/internal/logging"
	"github.com/woktalk/recipe-engine/internal/metrics"
	"github.com/woktalk/recipe-engine/internal/progress"
	"github.com/woktalk/recipe-engine/internal/progress/sinks"
	memorypublisher "github.com/woktalk/recipe-engine/internal/publisher/memory"
	pubsubpublisher "github.com/woktalk/recipe-engine/internal/publisher/pubsub"
	queueMemory "github.com/woktalk/recipe-engine/internal/queue/memory"
	"github.com/woktalk/recipe-engine/internal/recipe"
	"github.com/woktalk/recipe-engine/internal/retrieval"
	"github.com/woktalk/recipe-engine/internal/scheduler"
	"github.com/woktalk/recipe-engine/internal/storage"
	gcsstorage "github.com/woktalk/recipe-engine/internal/storage/gcs"
	localstorage "github.com/woktalk/recipe-engine/internal/storage/local"
	"github.com/woktalk/recipe-engine/internal/storage/postgres"
	"github.com/woktalk/recipe-engine/internal/store"
	"github.com/woktalk/recipe-engine/internal/stream"
	"github.com/woktalk/recipe-engine/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, "recipe-engine")
	if err != nil {
		logger.Fatal("tracer init failed", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown error", zap.Error(err))
		}
	}()

	clock := system.New()
	table := jobtable.New(clock)
	queue := queueMemory.NewQueue(cfg.Jobs.QueueDepth)

	var remote recipe.RemoteCache
	if cfg.Cache.Remote.Enabled {
		cacheStore, err := postgres.NewCacheStore(ctx, postgres.CacheStoreConfig{
			DSN:      cfg.Cache.Remote.DSN,
			Table:    cfg.Cache.Remote.Table,
			MaxConns: cfg.Cache.Remote.MaxConns,
		})
		if err != nil {
			logger.Fatal("remote cache init failed", zap.Error(err))
		}
		defer cacheStore.Close()
		remote = cacheStore
	}
	resultCache := cache.New(cache.NewLocalStore(nil), remote, logger.Named("cache"))

	var history store.HistoryRepository
	if cfg.Cache.Remote.Enabled {
		historyStore, err := postgres.NewHistoryStore(ctx, cfg.Cache.Remote.DSN)
		if err != nil {
			logger.Fatal("history store init failed", zap.Error(err))
		}
		defer historyStore.Close()
		history = historyStore
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hubSinks = append(hubSinks, promSink)
	if history != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(history, logger.Named("history")))
	}
	hub := progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      logger.Named("progress"),
	}, hubSinks...)

	retrievalClient, err := retrieval.New(retrieval.Config{
		UserAgent: cfg.Retrieval.UserAgent,
		Timeout:   time.Duration(cfg.Retrieval.TimeoutSeconds) * time.Second,
		Languages: cfg.Retrieval.Languages,
	}, logger.Named("retrieval"))
	if err != nil {
		logger.Fatal("retrieval client init failed", zap.Error(err))
	}

	enrichmentClient, err := enrichment.New(enrichment.Config{
		APIKey:     cfg.Enrichment.APIKey,
		Model:      cfg.Enrichment.Model,
		Timeout:    time.Duration(cfg.Enrichment.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Enrichment.MaxRetries,
	}, logger.Named("enrichment"))
	if err != nil {
		logger.Fatal("enrichment client init failed", zap.Error(err))
	}

	blobStore := newBlobStore(ctx, cfg, logger)
	publisher := newPublisher(ctx, cfg, logger)

	executorCfg := executor.Config{
		CacheTTL:   cfg.CacheTTL(),
		Topic:      cfg.PubSub.TopicName,
		BlobPrefix: cfg.Storage.Prefix,
	}
	var executors []*executor.Executor
	for i := 0; i < cfg.Jobs.Workers; i++ {
		executors = append(executors, executor.New(
			queue,
			table,
			resultCache,
			retrievalClient,
			enrichmentClient,
			blobStore,
			publisher,
			hub,
			clock,
			executorCfg,
			logger.Named("executor").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, executors)

	sched := scheduler.New(table, resultCache, queue, cfg.EnqueueTimeout(), logger.Named("scheduler"))
	watcher := stream.New(table, resultCache, cfg.PollInterval(), logger.Named("stream"))
	apiServer := api.NewServer(sched, table, resultCache, watcher, history, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("executors", cfg.Jobs.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) recipe.BlobStore {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		blobStore, err := gcsstorage.New(ctx, client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
		return blobStore
	case "local":
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
		return blobStore
	default:
		logger.Info("artifact storage disabled")
		return storage.NoOpStore{}
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) recipe.Publisher {
	if cfg.PubSub.Provider != "pubsub" {
		return memorypublisher.New()
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("pubsub client init failed", zap.Error(err))
	}
	return pubsubpublisher.New(client)
}
