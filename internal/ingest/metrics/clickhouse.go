package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"thoth/internal/config"
)

type clickhouseSink struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// Open connects to ClickHouse and ensures the ingestion-metrics table
// exists. It returns a NoopSink when cfg.Addr is empty, so callers never
// branch on whether metrics are enabled.
func Open(ctx context.Context, cfg config.ClickHouseConfig) (Sink, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return NoopSink{}, nil
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	const timeout = 5 * time.Second
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	table := "ingestion_batch_events"
	if err := ensureTable(ctx, conn, table, timeout); err != nil {
		return nil, err
	}

	return &clickhouseSink{conn: conn, table: table, timeout: timeout}, nil
}

func ensureTable(ctx context.Context, conn clickhouse.Conn, table string, timeout time.Duration) error {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id String,
	batch_id String,
	source String,
	collection_name String,
	files_processed Int32,
	files_failed Int32,
	chunks_total Int32,
	documents_total Int32,
	duration_ms Int64,
	status String,
	recorded_at DateTime
) ENGINE = MergeTree()
ORDER BY (collection_name, recorded_at)
`, table)
	return conn.Exec(execCtx, ddl)
}

// RecordBatch inserts one row per completed batch. A write failure is
// logged by the caller, never fatal to ingestion.
func (c *clickhouseSink) RecordBatch(ctx context.Context, ev BatchEvent) error {
	if c.conn == nil {
		return errors.New("clickhouse connection is nil")
	}
	recordedAt := ev.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		job_id, batch_id, source, collection_name,
		files_processed, files_failed, chunks_total, documents_total,
		duration_ms, status, recorded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, c.table)
	return c.conn.Exec(execCtx, query,
		ev.JobID, ev.BatchID, ev.Source, ev.CollectionName,
		ev.FilesProcessed, ev.FilesFailed, ev.ChunksTotal, ev.DocumentsTotal,
		ev.DurationMS, ev.Status, recordedAt)
}

func (c *clickhouseSink) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

var _ Sink = (*clickhouseSink)(nil)
