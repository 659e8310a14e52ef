package orchestrator

import (
	"context"

	"github.com/rs/zerolog"

	"thoth/internal/config"
	"thoth/internal/ingest/batchworker"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/state"
	"thoth/internal/ingest/vectorstore"
)

// runDirectPath runs when the task queue is
// unconfigured, process every file locally against the canonical store in
// one pass.
func (o *Orchestrator) runDirectPath(ctx context.Context, jobID string, src config.SourceConfig, files []string, logger zerolog.Logger) {
	uri := vectorstore.CanonicalURI(o.BaseURI, src.CollectionName)
	store, err := vectorstore.OpenAssisted(ctx, uri, o.S3Config, o.Qdrant, src.CollectionName, o.Embedder.Dimension(), o.Embedder)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open canonical vector store")
		_ = o.JobStore.MarkFailed(ctx, jobID, err.Error())
		return
	}

	result := batchworker.ProcessFiles(ctx, batchworker.ProcessFilesInput{
		Source:     src,
		FilePath:   src.LocalClonePath,
		Files:      files,
		Store:      store,
		Embedder:   o.Embedder,
		ChunkerCfg: batchworker.DefaultChunkerConfig(),
	})

	stats := jobstore.Stats{
		TotalFiles:     len(files),
		ProcessedFiles: len(result.Processed),
		FailedFiles:    len(result.Failures),
		TotalChunks:    result.TotalChunks,
		TotalDocuments: result.TotalChunks,
	}

	for f, errMsg := range result.Failures {
		logger.Warn().Str("file", f).Str("error", errMsg).Msg("file failed during direct ingestion")
	}

	o.saveStateAfterFullIngest(ctx, src, files, result, logger)

	if err := o.JobStore.MarkCompleted(ctx, jobID, stats); err != nil {
		logger.Error().Err(err).Msg("failed to mark job completed")
	}
}

// saveStateAfterFullIngest records the post-run IngestionState so a later
// non-forced run can diff against this commit instead of re-discovering
// and re-embedding every file. A missing
// StateStore or Snapshot (no commit to record) is not an error: the next
// run simply falls back to full discovery again.
func (o *Orchestrator) saveStateAfterFullIngest(ctx context.Context, src config.SourceConfig, files []string, result batchworker.ProcessFilesResult, logger zerolog.Logger) {
	if o.StateStore == nil || o.Snapshot == nil {
		return
	}
	commit, err := o.Snapshot.CurrentCommit(ctx, src)
	if err != nil || commit == "" {
		return
	}
	st := state.NewIngestionState(src.Name)
	st.LastCommit = commit
	for _, f := range files {
		st.ProcessedFiles[f] = true
	}
	for f := range result.Failures {
		delete(st.ProcessedFiles, f)
	}
	for f, msg := range result.Failures {
		st.FailedFiles[f] = msg
	}
	st.TotalChunks = result.TotalChunks
	st.TotalDocuments = result.TotalChunks
	st.Completed = true
	if err := o.StateStore.Save(ctx, st); err != nil {
		logger.Warn().Err(err).Msg("failed to persist ingestion state after direct ingest")
	}
}
