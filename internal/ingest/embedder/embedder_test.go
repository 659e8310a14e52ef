package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoth/internal/ingest/errs"
)

func TestDeterministic_RejectsEmptyInput(t *testing.T) {
	e := NewDeterministic(32, 0)
	_, err := e.Embed(context.Background(), nil, true, false)
	assert.True(t, errs.Is(err, errs.InvalidInput))
}

func TestDeterministic_RejectsWhitespaceEntry(t *testing.T) {
	e := NewDeterministic(32, 0)
	_, err := e.Embed(context.Background(), []string{"hello", "   "}, true, false)
	assert.True(t, errs.Is(err, errs.InvalidInput))
}

func TestDeterministic_NormalizeYieldsUnitNorm(t *testing.T) {
	e := NewDeterministic(32, 0)
	vecs, err := e.Embed(context.Background(), []string{"the quick brown fox"}, true, false)
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	var sumSq float64
	for _, x := range vecs[0] {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestDeterministic_DeterministicAcrossCalls(t *testing.T) {
	e := NewDeterministic(32, 7)
	a, err := e.EmbedSingle(context.Background(), "repeatable text", true)
	require.NoError(t, err)
	b, err := e.EmbedSingle(context.Background(), "repeatable text", true)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeterministic_DimensionStable(t *testing.T) {
	e := NewDeterministic(64, 0)
	assert.Equal(t, 64, e.Dimension())
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"}, false, false)
	require.NoError(t, err)
	for _, v := range vecs {
		assert.Len(t, v, 64)
	}
}

func TestDeterministic_EmbedSingleMatchesEmbedBatch(t *testing.T) {
	e := NewDeterministic(16, 3)
	single, err := e.EmbedSingle(context.Background(), "hello world", true)
	require.NoError(t, err)
	batch, err := e.Embed(context.Background(), []string{"hello world"}, true, false)
	require.NoError(t, err)
	assert.Equal(t, batch[0], single)
}
