package jobstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"thoth/internal/config"
	"thoth/internal/ingest/errs"
)

// Open selects a backend from cfg: Postgres when a DSN is configured,
// otherwise an in-memory store (suitable for single-process/direct-path
// deployments and tests).
func Open(ctx context.Context, cfg config.JobStoreConfig) (JobStore, error) {
	if cfg.PostgresDSN == "" {
		return NewMemoryStore(), nil
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, errs.New(errs.JobStoreError, "connect to job store database", err)
	}
	store := NewPostgresStore(pool)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
