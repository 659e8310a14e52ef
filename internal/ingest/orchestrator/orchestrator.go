// Package orchestrator is the ingestion entry point that
// discovers files for a source, creates the tracking Job, and either
// processes them directly or fans them out to the task queue.
package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"thoth/internal/config"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/errs"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/snapshot"
	"thoth/internal/ingest/state"
	"thoth/internal/ingest/taskqueue"
	"thoth/internal/observability"
)

const defaultBatchSize = 100

// Orchestrator wires the snapshot provider, job store, and task queue
// together to drive ingestion runs.
type Orchestrator struct {
	Registry  *config.Registry
	JobStore  jobstore.JobStore
	Queue     taskqueue.TaskQueue
	Snapshot  snapshot.Provider
	Embedder  embedder.Embedder
	BatchSize int
	S3Config  config.S3Config
	Qdrant    config.QdrantConfig
	BaseURI   string

	// StateStore persists per-source IngestionState across runs. When nil,
	// every run is treated as a full ingest: there is no prior commit to
	// diff against, so the incremental update path never triggers.
	StateStore *state.Store
}

// AcceptedJob is the immediate response contract for POST /ingest.
type AcceptedJob struct {
	JobID          string
	Source         string
	CollectionName string
}

// Ingest validates sourceName, creates the parent Job, and kicks off
// ingestion work in a detached goroutine, returning immediately with the
// job's identity before any work begins.
func (o *Orchestrator) Ingest(ctx context.Context, sourceName string, force bool) (AcceptedJob, error) {
	src, ok := o.Registry.Get(sourceName)
	if !ok {
		return AcceptedJob{}, errs.New(errs.BadSource, fmt.Sprintf("unknown source %q; known sources: %v", sourceName, o.Registry.ListNames()), nil)
	}

	job, err := o.JobStore.CreateJob(ctx, src.Name, src.CollectionName)
	if err != nil {
		return AcceptedJob{}, err
	}

	runCtx := observability.DetachedTraceContext(ctx, job.JobID)
	go o.run(runCtx, job.JobID, src, force)

	return AcceptedJob{JobID: job.JobID, Source: src.Name, CollectionName: src.CollectionName}, nil
}

func (o *Orchestrator) run(ctx context.Context, jobID string, src config.SourceConfig, force bool) {
	logger := observability.LoggerWithTrace(ctx).With().Str("job_id", jobID).Str("source", src.Name).Str("collection_name", src.CollectionName).Logger()

	if err := o.JobStore.MarkRunning(ctx, jobID); err != nil {
		logger.Error().Err(err).Msg("failed to mark job running")
		return
	}

	if o.Snapshot != nil && src.RepoURL != "" && !o.Snapshot.IsLocallySynced(src) {
		if err := o.Snapshot.SyncLocally(ctx, src); err != nil {
			logger.Warn().Err(err).Msg("local sync failed, discovering against existing clone")
		}
	}

	if !force {
		if done := o.tryIncremental(ctx, jobID, src, logger); done {
			return
		}
	}

	files, err := o.discoverFiles(ctx, src)
	if err != nil {
		logger.Error().Err(err).Msg("file discovery failed")
		_ = o.JobStore.MarkFailed(ctx, jobID, err.Error())
		return
	}

	if len(files) == 0 {
		logger.Info().Msg("no files discovered, completing job with zero stats")
		_ = o.JobStore.MarkCompleted(ctx, jobID, jobstore.Stats{})
		return
	}

	batchSize := o.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	if o.Queue == nil || !o.Queue.IsConfigured() {
		o.runDirectPath(ctx, jobID, src, files, logger)
		return
	}

	numBatches := (len(files) + batchSize - 1) / batchSize
	if err := o.JobStore.SetTotalBatches(ctx, jobID, numBatches); err != nil {
		logger.Error().Err(err).Msg("failed to record total batches")
	}
	if err := o.JobStore.UpdateStats(ctx, jobID, jobstore.Stats{TotalFiles: len(files)}); err != nil {
		logger.Error().Err(err).Msg("failed to record total files")
	}

	tasks := taskqueue.PlanBatches(jobID, files, src.CollectionName, src.Name, batchSize)
	for i, t := range tasks {
		if _, err := o.JobStore.CreateSubJob(ctx, jobID, i, len(t.FileList)); err != nil {
			logger.Error().Err(err).Str("batch_id", t.BatchID).Msg("failed to create sub-job")
		}
	}

	if _, err := o.Queue.EnqueueBatches(ctx, jobID, files, src.CollectionName, src.Name, batchSize); err != nil {
		logger.Error().Err(err).Msg("failed to enqueue batches")
		_ = o.JobStore.MarkFailed(ctx, jobID, err.Error())
		return
	}

	logger.Info().Int("num_batches", numBatches).Msg("batches enqueued, job remains running until merge")
}

// discoverFiles prefers the snapshot provider, falling back to a plain
// local-directory walk.
func (o *Orchestrator) discoverFiles(ctx context.Context, src config.SourceConfig) ([]string, error) {
	if o.Snapshot != nil {
		files, err := o.Snapshot.ListFiles(ctx, src)
		if err == nil {
			return files, nil
		}
		log.Warn().Err(err).Str("source", src.Name).Msg("snapshot provider could not list files, falling back to local discovery")
	}
	if src.LocalClonePath == "" {
		return nil, errs.New(errs.BadSource, "source "+src.Name+" has no local_clone_path for fallback discovery", nil)
	}
	if _, statErr := os.Stat(src.LocalClonePath); statErr != nil {
		return nil, errs.New(errs.BadSource, "source "+src.Name+" local path is unavailable: "+statErr.Error(), statErr)
	}
	return snapshot.LocalDiscovery(src.LocalClonePath, src.SupportedFormats)
}
