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

// tryIncremental checks whether enough prior state exists to run the
// incremental update engine instead of a full ingest, and runs it if so.
// It reports whether the job was fully handled (either by an incremental
// update or by a no-op "nothing changed" completion); false means the
// caller should fall through to the full-discovery path.
func (o *Orchestrator) tryIncremental(ctx context.Context, jobID string, src config.SourceConfig, logger zerolog.Logger) bool {
	if o.StateStore == nil || o.Snapshot == nil {
		return false
	}
	st, err := o.StateStore.Load(ctx, src.Name)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load ingestion state, falling back to full ingest")
		return false
	}
	if st == nil || st.LastCommit == "" {
		return false
	}

	nowCommit, err := o.Snapshot.CurrentCommit(ctx, src)
	if err != nil || nowCommit == "" {
		logger.Warn().Err(err).Msg("failed to resolve current commit, falling back to full ingest")
		return false
	}
	if nowCommit == st.LastCommit {
		logger.Info().Msg("source unchanged since last ingest, completing with no-op stats")
		_ = o.JobStore.MarkCompleted(ctx, jobID, jobstore.Stats{
			TotalChunks:    st.TotalChunks,
			TotalDocuments: st.TotalDocuments,
		})
		return true
	}

	o.runIncremental(ctx, jobID, src, st, nowCommit, logger)
	return true
}

// runIncremental applies a snapshot delta: given the (added, modified,
// deleted) sets between the source's last recorded commit and its current
// commit, reflect each class of change into the canonical VectorStore and
// update the persisted IngestionState's counters. Unlike a full ingest this
// always runs against the canonical store directly; a rename/copy/delta on
// an already-ingested corpus is small enough that per-batch fan-out buys
// nothing and would only complicate the counter arithmetic.
func (o *Orchestrator) runIncremental(ctx context.Context, jobID string, src config.SourceConfig, st *state.IngestionState, nowCommit string, logger zerolog.Logger) {
	uri := vectorstore.CanonicalURI(o.BaseURI, src.CollectionName)
	store, err := vectorstore.OpenAssisted(ctx, uri, o.S3Config, o.Qdrant, src.CollectionName, o.Embedder.Dimension(), o.Embedder)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open canonical vector store for incremental update")
		_ = o.JobStore.MarkFailed(ctx, jobID, err.Error())
		return
	}

	changes, err := o.Snapshot.FileChanges(ctx, src, st.LastCommit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to compute file changes")
		_ = o.JobStore.MarkFailed(ctx, jobID, err.Error())
		return
	}

	stats := jobstore.Stats{}

	for _, f := range changes.Deleted {
		n, derr := store.DeleteByFilePath(ctx, f)
		if derr != nil {
			st.FailedFiles[f] = derr.Error()
			stats.FailedFiles++
			logger.Warn().Err(derr).Str("file", f).Msg("failed to delete rows for removed file")
			continue
		}
		st.RemoveChunks(n)
		delete(st.ProcessedFiles, f)
		stats.ProcessedFiles++
	}

	for _, f := range changes.Modified {
		deletedCount, derr := store.DeleteByFilePath(ctx, f)
		if derr != nil {
			st.FailedFiles[f] = derr.Error()
			stats.FailedFiles++
			logger.Warn().Err(derr).Str("file", f).Msg("failed to delete existing rows for modified file")
			continue
		}
		n, perr := o.ingestOneFile(ctx, src, store, f)
		if perr != nil {
			st.FailedFiles[f] = perr.Error()
			stats.FailedFiles++
			st.RemoveChunks(deletedCount)
			logger.Warn().Err(perr).Str("file", f).Msg("failed to re-ingest modified file")
			continue
		}
		st.RemoveChunks(deletedCount)
		st.AddChunks(n)
		delete(st.FailedFiles, f)
		st.ProcessedFiles[f] = true
		stats.ProcessedFiles++
		stats.TotalChunks += n
		stats.TotalDocuments += n
	}

	for _, f := range changes.Added {
		n, perr := o.ingestOneFile(ctx, src, store, f)
		if perr != nil {
			st.FailedFiles[f] = perr.Error()
			stats.FailedFiles++
			logger.Warn().Err(perr).Str("file", f).Msg("failed to ingest added file")
			continue
		}
		st.AddChunks(n)
		delete(st.FailedFiles, f)
		st.ProcessedFiles[f] = true
		stats.ProcessedFiles++
		stats.TotalChunks += n
		stats.TotalDocuments += n
	}

	stats.TotalFiles = len(changes.Added) + len(changes.Modified) + len(changes.Deleted)
	st.LastCommit = nowCommit
	st.Completed = true
	if o.StateStore != nil {
		if serr := o.StateStore.Save(ctx, st); serr != nil {
			logger.Warn().Err(serr).Msg("failed to persist ingestion state after incremental update")
		}
	}

	if err := o.JobStore.MarkCompleted(ctx, jobID, stats); err != nil {
		logger.Error().Err(err).Msg("failed to mark incremental job completed")
	}
}

// ingestOneFile parses, chunks, embeds, and upserts a single file, returning
// the number of chunks written.
func (o *Orchestrator) ingestOneFile(ctx context.Context, src config.SourceConfig, store vectorstore.Store, relPath string) (int, error) {
	result := batchworker.ProcessFiles(ctx, batchworker.ProcessFilesInput{
		Source:     src,
		FilePath:   src.LocalClonePath,
		Files:      []string{relPath},
		Store:      store,
		Embedder:   o.Embedder,
		ChunkerCfg: batchworker.DefaultChunkerConfig(),
	})
	if errMsg, failed := result.Failures[relPath]; failed {
		return 0, errStr(errMsg)
	}
	return result.TotalChunks, nil
}

type errStr string

func (e errStr) Error() string { return string(e) }
