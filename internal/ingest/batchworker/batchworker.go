// Package batchworker implements per-batch file processing (parse,
// chunk, embed, upsert) against an isolated VectorStore, with an
// idempotency probe so at-least-once task redelivery is safe.
package batchworker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"thoth/internal/config"
	"thoth/internal/ingest/chunker"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/errs"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/metrics"
	"thoth/internal/ingest/parser"
	"thoth/internal/ingest/taskqueue"
	"thoth/internal/ingest/vectorstore"
	"thoth/internal/objectstore"
)

// DefaultChunkerConfig is the chunk budget used when a deployment does
// not override it.
func DefaultChunkerConfig() chunker.Config {
	return chunker.Config{MinTokens: 500, MaxTokens: 1000, OverlapTokens: 150}
}

var factory = parser.NewFactory()

// ProcessFilesInput bundles everything ProcessFiles needs to ingest a set
// of files into a VectorStore.
type ProcessFilesInput struct {
	Source     config.SourceConfig
	FilePath   string // local root the relative Files are read from
	Files      []string
	Store      vectorstore.Store
	Embedder   embedder.Embedder
	ChunkerCfg chunker.Config
}

// ProcessFilesResult reports per-file outcomes for one batch.
type ProcessFilesResult struct {
	Processed   []string
	Failures    map[string]string
	TotalChunks int
}

// ProcessFiles parses, chunks, embeds, and upserts every file in in.Files,
// continuing past individual file failures. Shared by the direct-path
// Orchestrator and ProcessBatch.
func ProcessFiles(ctx context.Context, in ProcessFilesInput) ProcessFilesResult {
	result := ProcessFilesResult{Failures: make(map[string]string)}

	for _, relPath := range in.Files {
		n, err := processOneFile(ctx, in, relPath)
		if err != nil {
			result.Failures[relPath] = err.Error()
			log.Warn().Err(err).Str("file", relPath).Str("source", in.Source.Name).Msg("failed to process file")
			continue
		}
		result.Processed = append(result.Processed, relPath)
		result.TotalChunks += n
	}
	return result
}

func processOneFile(ctx context.Context, in ProcessFilesInput, relPath string) (int, error) {
	fullPath := filepath.Join(in.FilePath, relPath)
	doc, err := factory.Parse(fullPath)
	if err != nil {
		return 0, err
	}

	chunks, err := chunker.ChunkText(doc.Content, relPath, relPath, in.ChunkerCfg)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := in.Embedder.Embed(ctx, texts, true, false)
	if err != nil {
		return 0, errs.New(errs.FatalInternal, "embed chunks of "+relPath, err)
	}

	ids := make([]string, len(chunks))
	docs := make([]string, len(chunks))
	metas := make([]map[string]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
		docs[i] = c.Content
		metas[i] = map[string]string{
			"file_path":    c.FilePath,
			"section":      joinHeaders(c.Headers),
			"chunk_index":  fmt.Sprintf("%d", c.ChunkIndex),
			"total_chunks": fmt.Sprintf("%d", c.TotalChunks),
			"source":       in.Source.Name,
			"format":       doc.Format,
			"timestamp":    c.Timestamp,
		}
	}

	if _, err := in.Store.AddDocuments(ctx, vectorstore.AddDocumentsInput{
		Docs:       docs,
		Metadatas:  metas,
		Ids:        ids,
		Embeddings: vectors,
	}); err != nil {
		return 0, errs.New(errs.ObjectStoreError, "upsert chunks of "+relPath, err)
	}

	return len(chunks), nil
}

func joinHeaders(headers []string) string {
	out := ""
	for i, h := range headers {
		if i > 0 {
			out += " > "
		}
		out += h
	}
	return out
}

// ProcessBatchInput is everything ProcessBatch needs beyond the wire
// payload: the shared config/dependencies for this process.
type ProcessBatchInput struct {
	Task       taskqueue.BatchTask
	Source     config.SourceConfig
	BaseURI    string
	S3Config   config.S3Config
	Qdrant     config.QdrantConfig
	Embedder   embedder.Embedder
	JobStore   jobstore.JobStore
	Metrics    metrics.Sink
	ChunkerCfg chunker.Config
}

// ProcessBatchResult is the /ingest-batch response shape.
type ProcessBatchResult struct {
	Status     string `json:"status"`
	BatchID    string `json:"batch_id"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// ProcessBatch idempotently processes one batch of files into its
// isolated table.
func ProcessBatch(ctx context.Context, in ProcessBatchInput) (ProcessBatchResult, error) {
	start := time.Now()
	task := in.Task
	if task.BatchID == "" {
		task.BatchID = fmt.Sprintf("%d_%d_%s", task.StartIndex, task.EndIndex, randomHex(4))
	}

	// The Orchestrator forms both batch_id and sub_job_id as
	// "{job_id}_{batch_index:04}", so they coincide.
	subJobID := task.BatchID
	if in.JobStore != nil {
		if sj, err := in.JobStore.GetSubJob(ctx, subJobID); err == nil && sj != nil {
			_ = in.JobStore.MarkSubJobRunning(ctx, subJobID)
		}
	}

	isolatedURI := vectorstore.IsolatedURI(in.BaseURI, task.CollectionName, task.BatchID)

	alreadyProcessed, err := isolatedURIOccupied(ctx, isolatedURI, in.S3Config)
	if err != nil {
		return ProcessBatchResult{}, err
	}
	if alreadyProcessed {
		if in.JobStore != nil {
			_ = in.JobStore.MarkSubJobCompleted(ctx, subJobID, jobstore.Stats{
				TotalFiles:     len(task.FileList),
				ProcessedFiles: len(task.FileList),
			})
		}
		recordBatchEvent(ctx, in, task, jobstore.Stats{}, "skipped", start)
		return ProcessBatchResult{Status: "success", BatchID: task.BatchID, Skipped: true}, nil
	}

	store, err := vectorstore.OpenAt(ctx, isolatedURI, in.S3Config, in.Embedder)
	if err != nil {
		if in.JobStore != nil {
			_ = in.JobStore.MarkSubJobFailed(ctx, subJobID, err.Error())
		}
		return ProcessBatchResult{}, err
	}

	result := ProcessFiles(ctx, ProcessFilesInput{
		Source:     in.Source,
		FilePath:   in.Source.LocalClonePath,
		Files:      task.FileList,
		Store:      store,
		Embedder:   in.Embedder,
		ChunkerCfg: in.ChunkerCfg,
	})

	stats := jobstore.Stats{
		TotalFiles:     len(task.FileList),
		ProcessedFiles: len(result.Processed),
		FailedFiles:    len(result.Failures),
		TotalChunks:    result.TotalChunks,
		TotalDocuments: result.TotalChunks,
	}
	if in.JobStore != nil {
		_ = in.JobStore.MarkSubJobCompleted(ctx, subJobID, stats)
	}
	recordBatchEvent(ctx, in, task, stats, "success", start)

	return ProcessBatchResult{
		Status:     "success",
		BatchID:    task.BatchID,
		Successful: len(result.Processed),
		Failed:     len(result.Failures),
	}, nil
}

// recordBatchEvent reports one batch completion to the metrics sink, when
// one is configured. Failures here never affect the batch outcome.
func recordBatchEvent(ctx context.Context, in ProcessBatchInput, task taskqueue.BatchTask, stats jobstore.Stats, status string, start time.Time) {
	if in.Metrics == nil {
		return
	}
	if err := in.Metrics.RecordBatch(ctx, metrics.BatchEvent{
		JobID:          task.JobID,
		BatchID:        task.BatchID,
		Source:         task.Source,
		CollectionName: task.CollectionName,
		FilesProcessed: stats.ProcessedFiles,
		FilesFailed:    stats.FailedFiles,
		ChunksTotal:    stats.TotalChunks,
		DocumentsTotal: stats.TotalDocuments,
		DurationMS:     time.Since(start).Milliseconds(),
		Status:         status,
		RecordedAt:     time.Now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("batch_id", task.BatchID).Msg("failed to record batch metrics")
	}
}

// isolatedURIOccupied is the idempotency probe: the batch is already
// processed iff its isolated URI contains any objects.
func isolatedURIOccupied(ctx context.Context, isolatedURI string, s3cfg config.S3Config) (bool, error) {
	store, err := objectstore.OpenURI(ctx, isolatedURI, s3cfg)
	if err != nil {
		return false, err
	}
	result, err := store.List(ctx, objectstore.ListOptions{MaxKeys: 1})
	if err != nil {
		return false, err
	}
	return len(result.Objects) > 0, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
