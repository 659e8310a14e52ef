package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/config"
)

func TestOpenWithoutAddrReturnsNoop(t *testing.T) {
	sink, err := Open(context.Background(), config.ClickHouseConfig{})
	require.NoError(t, err)
	_, ok := sink.(NoopSink)
	require.True(t, ok)
}

func TestNoopSinkDiscardsEvents(t *testing.T) {
	var sink Sink = NoopSink{}
	require.NoError(t, sink.RecordBatch(context.Background(), BatchEvent{JobID: "job1"}))
	require.NoError(t, sink.Close())
}
