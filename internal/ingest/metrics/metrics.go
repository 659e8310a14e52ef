// Package metrics records per-batch ingestion counters to ClickHouse:
// one row per batch completion, for operational dashboards. The sink is
// optional; an unset address degrades to a no-op.
package metrics

import (
	"context"
	"time"
)

// BatchEvent is one ProcessBatch completion (processed or skipped),
// recorded as a single ClickHouse row. The direct path records none.
type BatchEvent struct {
	JobID          string
	BatchID        string
	Source         string
	CollectionName string
	FilesProcessed int
	FilesFailed    int
	ChunksTotal    int
	DocumentsTotal int
	DurationMS     int64
	Status         string
	RecordedAt     time.Time
}

// Sink records BatchEvents. A nil-backed Sink (NoopSink) is used whenever
// ClickHouseConfig.Addr is unset, so callers never need to branch on
// whether metrics are enabled.
type Sink interface {
	RecordBatch(ctx context.Context, ev BatchEvent) error
	Close() error
}
