package merger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/config"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/vectorstore"
	"thoth/internal/objectstore"
)

func newTestMerger(t *testing.T) (*Merger, string) {
	t.Helper()
	base := t.TempDir()
	return &Merger{
		BaseURI:  base,
		Embedder: embedder.NewDeterministic(8, 0),
	}, base
}

func seedBatch(t *testing.T, baseURI, collectionName, batchID string, emb embedder.Embedder, docs []string) {
	t.Helper()
	ctx := context.Background()
	uri := vectorstore.IsolatedURI(baseURI, collectionName, batchID)
	store, err := vectorstore.OpenAt(ctx, uri, config.S3Config{}, emb)
	require.NoError(t, err)

	ids := make([]string, len(docs))
	metas := make([]map[string]string, len(docs))
	for i, d := range docs {
		ids[i] = batchID + "_" + d
		metas[i] = map[string]string{"file_path": d + ".md"}
	}
	vecs, err := emb.Embed(ctx, docs, true, false)
	require.NoError(t, err)

	_, err = store.AddDocuments(ctx, vectorstore.AddDocumentsInput{
		Docs:       docs,
		Metadatas:  metas,
		Ids:        ids,
		Embeddings: vecs,
	})
	require.NoError(t, err)
}

func TestMergeBatchesFoldsIntoCanonical(t *testing.T) {
	ctx := context.Background()
	m, base := newTestMerger(t)

	seedBatch(t, base, "handbook", "job1_0000", m.Embedder, []string{"alpha", "beta"})
	seedBatch(t, base, "handbook", "job1_0001", m.Embedder, []string{"gamma"})

	result, err := m.MergeBatches(ctx, "handbook", false)
	require.NoError(t, err)
	require.Equal(t, 2, result.BatchesMerged)
	require.Equal(t, 3, result.TotalDocuments)
	require.Equal(t, 0, result.BatchesCleaned)

	canonical, err := vectorstore.OpenAt(ctx, vectorstore.CanonicalURI(base, "handbook"), config.S3Config{}, m.Embedder)
	require.NoError(t, err)
	count, err := canonical.GetDocumentCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestMergeBatchesNoBatchesIsNoop(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMerger(t)

	result, err := m.MergeBatches(ctx, "empty-collection", false)
	require.NoError(t, err)
	require.Equal(t, 0, result.BatchesMerged)
	require.Equal(t, 0, result.TotalDocuments)
}

func TestMergeBatchesCleanupRemovesBatchDirs(t *testing.T) {
	ctx := context.Background()
	m, base := newTestMerger(t)

	seedBatch(t, base, "handbook", "job2_0000", m.Embedder, []string{"delta"})

	result, err := m.MergeBatches(ctx, "handbook", true)
	require.NoError(t, err)
	require.Equal(t, 1, result.BatchesMerged)
	require.Equal(t, 1, result.BatchesCleaned)

	root, err := objectstore.OpenURI(ctx, base, config.S3Config{})
	require.NoError(t, err)
	dirs, err := listBatchDirs(ctx, root, "handbook")
	require.NoError(t, err)
	require.Empty(t, dirs)
}
