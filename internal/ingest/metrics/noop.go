package metrics

import "context"

// NoopSink discards every event; it backs Open when no ClickHouse address
// is configured.
type NoopSink struct{}

func (NoopSink) RecordBatch(ctx context.Context, ev BatchEvent) error { return nil }
func (NoopSink) Close() error                                        { return nil }

var _ Sink = NoopSink{}
