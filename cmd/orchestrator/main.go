// Command orchestrator is the thoth ingestion control plane: it serves
// the HTTP API and, when a task queue is configured, runs the Kafka
// batch-task consumer that executes batches out of process from the
// request that triggered ingestion.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"thoth/internal/config"
	"thoth/internal/httpapi"
	"thoth/internal/ingest/batchworker"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/merger"
	"thoth/internal/ingest/metrics"
	"thoth/internal/ingest/orchestrator"
	"thoth/internal/ingest/snapshot"
	"thoth/internal/ingest/state"
	"thoth/internal/ingest/taskqueue"
	"thoth/internal/objectstore"
	"thoth/internal/observability"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("orchestrator")
	}
}

func run() error {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load(getenv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()

	if cfg.OTel.Enabled {
		shutdown, err := observability.InitOTel(baseCtx, cfg.OTel.ServiceName, cfg.OTel.Endpoint, cfg.OTel.Insecure)
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	registry, err := config.NewRegistry(cfg.Sources)
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}

	if cfg.Storage.BaseURI == "" {
		return fmt.Errorf("storage.base_uri is required")
	}
	storageBackend, err := objectstore.OpenURI(baseCtx, cfg.Storage.BaseURI, cfg.Storage.S3)
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}

	jobs, err := jobstore.Open(baseCtx, cfg.JobStore)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}

	metricsSink, err := metrics.Open(baseCtx, cfg.ClickHouse)
	if err != nil {
		log.Warn().Err(err).Msg("metrics sink unavailable, continuing without ingestion metrics")
		metricsSink = metrics.NoopSink{}
	}
	defer func() {
		if cerr := metricsSink.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("error closing metrics sink")
		}
	}()

	cfg.TaskQueue.WorkerCount = getenvInt("WORKER_COUNT", cfg.TaskQueue.WorkerCount)

	emb := embedder.New(cfg.Embedding)
	queue := taskqueue.Open(baseCtx, cfg.TaskQueue)
	snapProvider := snapshot.NewGitSnapshotProvider()
	stateStore := state.NewStore(storageBackend)

	orch := &orchestrator.Orchestrator{
		Registry:   registry,
		JobStore:   jobs,
		Queue:      queue,
		Snapshot:   snapProvider,
		Embedder:   emb,
		BatchSize:  cfg.BatchSize,
		S3Config:   cfg.Storage.S3,
		Qdrant:     cfg.Qdrant,
		BaseURI:    cfg.Storage.BaseURI,
		StateStore: stateStore,
	}

	mrg := &merger.Merger{
		BaseURI:  cfg.Storage.BaseURI,
		S3Config: cfg.Storage.S3,
		Qdrant:   cfg.Qdrant,
		Embedder: emb,
	}

	var verifier *taskqueue.Verifier
	if cfg.TaskQueue.BatchWorkerURL != "" {
		audience, aerr := taskqueue.AudienceFor(cfg.TaskQueue.BatchWorkerURL)
		if aerr != nil {
			log.Warn().Err(aerr).Msg("could not derive OIDC audience, /ingest-batch will not verify callers")
		} else if v, verr := taskqueue.NewVerifier(baseCtx, audience); verr != nil {
			log.Warn().Err(verr).Msg("OIDC verifier unavailable, /ingest-batch will not verify callers")
		} else {
			verifier = v
		}
	}

	server := httpapi.NewServer(&httpapi.Server{
		Orchestrator: orch,
		JobStore:     jobs,
		Merger:       mrg,
		Registry:     registry,
		Embedder:     emb,
		S3Config:     cfg.Storage.S3,
		Qdrant:       cfg.Qdrant,
		BaseURI:      cfg.Storage.BaseURI,
		Metrics:      metricsSink,
		Storage:      storageBackend,
		Verifier:     verifier,
	})

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if retentionDays := getenvInt("JOB_RETENTION_DAYS", cfg.JobStore.RetentionDays); retentionDays > 0 {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				if n, err := jobs.CleanupOld(ctx, time.Duration(retentionDays)*24*time.Hour); err != nil {
					log.Warn().Err(err).Msg("job cleanup failed")
				} else if n > 0 {
					log.Info().Int("deleted", n).Msg("cleaned up old ingestion jobs")
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}

	if queue.IsConfigured() && len(cfg.TaskQueue.Brokers) > 0 {
		if err := taskqueue.EnsureQueueTopics(ctx, cfg.TaskQueue); err != nil {
			return fmt.Errorf("provision batch topic: %w", err)
		}
		go func() {
			handler := func(hctx context.Context, task taskqueue.BatchTask) error {
				src, ok := registry.ByCollection(task.CollectionName)
				if !ok {
					return fmt.Errorf("unknown collection_name %q", task.CollectionName)
				}
				_, err := batchworker.ProcessBatch(hctx, batchworker.ProcessBatchInput{
					Task:       task,
					Source:     src,
					BaseURI:    cfg.Storage.BaseURI,
					S3Config:   cfg.Storage.S3,
					Qdrant:     cfg.Qdrant,
					Embedder:   emb,
					JobStore:   jobs,
					Metrics:    metricsSink,
					ChunkerCfg: batchworker.DefaultChunkerConfig(),
				})
				return err
			}
			if err := taskqueue.StartKafkaConsumer(ctx, cfg.TaskQueue, handler); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("kafka batch consumer terminated unexpectedly")
			}
		}()
		log.Info().Strs("brokers", cfg.TaskQueue.Brokers).Str("topic", cfg.TaskQueue.CommandsTopic).Msg("kafka batch consumer started")
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", getenv("HOST", cfg.Host), cfg.Port),
		Handler: server,
	}

	shutdownTimeout := getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down http server")
		}
	}()

	log.Info().Str("addr", httpSrv.Addr).Msg("thoth ingestion control plane listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info().Msg("orchestrator stopped")
	return nil
}
