package batchworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/config"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/taskqueue"
	"thoth/internal/ingest/vectorstore"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestProcessFilesParsesChunksAndEmbeds(t *testing.T) {
	ctx := context.Background()
	clonePath := t.TempDir()
	writeFile(t, clonePath, "a.md", "# Title\n\nSome handbook body text about onboarding new engineers.\n")
	writeFile(t, clonePath, "b.txt", "plain notes about the release process\n")

	emb := embedder.NewDeterministic(8, 0)
	store, err := vectorstore.OpenAt(ctx, t.TempDir(), config.S3Config{}, emb)
	require.NoError(t, err)

	result := ProcessFiles(ctx, ProcessFilesInput{
		Source:     config.SourceConfig{Name: "handbook"},
		FilePath:   clonePath,
		Files:      []string{"a.md", "b.txt"},
		Store:      store,
		Embedder:   emb,
		ChunkerCfg: DefaultChunkerConfig(),
	})

	require.Len(t, result.Processed, 2)
	require.Empty(t, result.Failures)
	require.Greater(t, result.TotalChunks, 0)

	count, err := store.GetDocumentCount(ctx)
	require.NoError(t, err)
	require.Equal(t, result.TotalChunks, count)
}

func TestProcessFilesContinuesPastMissingFile(t *testing.T) {
	ctx := context.Background()
	clonePath := t.TempDir()
	writeFile(t, clonePath, "a.md", "# Title\n\nSome content here about the topic at hand.\n")

	emb := embedder.NewDeterministic(8, 0)
	store, err := vectorstore.OpenAt(ctx, t.TempDir(), config.S3Config{}, emb)
	require.NoError(t, err)

	result := ProcessFiles(ctx, ProcessFilesInput{
		Source:     config.SourceConfig{Name: "handbook"},
		FilePath:   clonePath,
		Files:      []string{"a.md", "missing.md"},
		Store:      store,
		Embedder:   emb,
		ChunkerCfg: DefaultChunkerConfig(),
	})

	require.Len(t, result.Processed, 1)
	require.Contains(t, result.Failures, "missing.md")
}

func TestProcessBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clonePath := t.TempDir()
	writeFile(t, clonePath, "a.md", "# Title\n\nBody content about the handbook topic.\n")

	baseURI := t.TempDir()
	emb := embedder.NewDeterministic(8, 0)
	store := jobstore.NewMemoryStore()

	job, err := store.CreateJob(ctx, "handbook", "handbook")
	require.NoError(t, err)
	_, err = store.CreateSubJob(ctx, job.JobID, 0, 1)
	require.NoError(t, err)

	in := ProcessBatchInput{
		Task: taskqueue.BatchTask{
			JobID:          job.JobID,
			BatchID:        job.JobID + "_0000",
			CollectionName: "handbook",
			Source:         "handbook",
			FileList:       []string{"a.md"},
		},
		Source:     config.SourceConfig{Name: "handbook", LocalClonePath: clonePath},
		BaseURI:    baseURI,
		Embedder:   emb,
		JobStore:   store,
		ChunkerCfg: DefaultChunkerConfig(),
	}

	first, err := ProcessBatch(ctx, in)
	require.NoError(t, err)
	require.False(t, first.Skipped)
	require.Equal(t, 1, first.Successful)

	second, err := ProcessBatch(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Skipped)
}
