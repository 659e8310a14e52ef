package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/objectstore"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemoryStore())

	got, err := s.Load(ctx, "handbook")
	require.NoError(t, err)
	require.Nil(t, got)

	st := NewIngestionState("handbook")
	st.LastCommit = "abc123"
	st.ProcessedFiles["intro.md"] = true
	st.AddChunks(5)
	require.NoError(t, s.Save(ctx, st))

	loaded, err := s.Load(ctx, "handbook")
	require.NoError(t, err)
	require.Equal(t, "abc123", loaded.LastCommit)
	require.True(t, loaded.ProcessedFiles["intro.md"])
	require.Equal(t, 5, loaded.TotalChunks)
}

func TestRemoveChunksSaturatesAtZero(t *testing.T) {
	st := NewIngestionState("handbook")
	st.AddChunks(3)
	st.RemoveChunks(10)
	require.Equal(t, 0, st.TotalChunks)
	require.Equal(t, 0, st.TotalDocuments)
}
