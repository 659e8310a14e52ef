package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/ingest/embedder"
	"thoth/internal/objectstore"
)

func newTestStore(t *testing.T) *ColumnarStore {
	t.Helper()
	store, err := Open(context.Background(), objectstore.NewMemoryStore(), embedder.NewDeterministic(32, 0))
	require.NoError(t, err)
	return store
}

func TestAddDocumentsIdempotent(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore(t)

	in := AddDocumentsInput{
		Docs:       []string{"alpha", "beta", "gamma"},
		Ids:        []string{"x", "y", "z"},
		Embeddings: [][]float32{{1, 0}, {0, 1}, {1, 1}},
	}
	_, err := cs.AddDocuments(ctx, in)
	require.NoError(t, err)
	_, err = cs.AddDocuments(ctx, in)
	require.NoError(t, err)

	count, err := cs.GetDocumentCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	rows, err := cs.GetDocuments(ctx, []string{"x", "y", "z"}, nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestDeleteByFilePath(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore(t)

	metasA := make([]map[string]string, 5)
	docsA := make([]string, 5)
	idsA := make([]string, 5)
	for i := range metasA {
		metasA[i] = map[string]string{"file_path": "a.md"}
		docsA[i] = "doc"
		idsA[i] = "a" + string(rune('0'+i))
	}
	_, err := cs.AddDocuments(ctx, AddDocumentsInput{Docs: docsA, Metadatas: metasA, Ids: idsA, Embeddings: makeVecs(5)})
	require.NoError(t, err)

	_, err = cs.AddDocuments(ctx, AddDocumentsInput{
		Docs:       []string{"doc", "doc"},
		Metadatas:  []map[string]string{{"file_path": "b.md"}, {"file_path": "b.md"}},
		Ids:        []string{"b0", "b1"},
		Embeddings: makeVecs(2),
	})
	require.NoError(t, err)

	n, err := cs.DeleteByFilePath(ctx, "a.md")
	require.NoError(t, err)
	require.Equal(t, 5, n)

	count, err := cs.GetDocumentCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	rows, err := cs.GetDocuments(ctx, nil, Where{"file_path": "a.md"}, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSearchSimilarOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore(t)

	_, err := cs.AddDocuments(ctx, AddDocumentsInput{
		Docs:       []string{"close", "far"},
		Ids:        []string{"close", "far"},
		Embeddings: [][]float32{{1, 0}, {0, 1}},
	})
	require.NoError(t, err)

	results, err := cs.SearchSimilar(ctx, "", 2, nil, []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close", results[0].Record.ID)
	require.True(t, results[0].Distance <= results[1].Distance)
}

func TestDeleteDocumentsRequiresIDsOrWhere(t *testing.T) {
	ctx := context.Background()
	cs := newTestStore(t)
	_, err := cs.DeleteDocuments(ctx, nil, nil)
	require.Error(t, err)
}

func makeVecs(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out
}
