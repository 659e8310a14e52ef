package taskqueue

import (
	"context"

	"github.com/rs/zerolog/log"

	"thoth/internal/config"
)

// Open constructs the process-wide TaskQueue from cfg. When the queue is
// not configured, the orchestrator's direct path is used instead and this still returns
// a usable (but IsConfigured()==false) TaskQueue so callers never need a
// nil check.
func Open(ctx context.Context, cfg config.TaskQueueConfig) TaskQueue {
	var dedupe DedupeStore
	if cfg.DedupeRedisAddr != "" {
		store, err := NewRedisDedupeStore(cfg.DedupeRedisAddr)
		if err != nil {
			log.Warn().Err(err).Msg("dedupe store unavailable, continuing without redelivery guard")
		} else {
			dedupe = store
		}
	}

	var minter TokenMinter
	if cfg.ServiceAccountEmail != "" {
		minter = NewMetadataServerMinter()
	}

	return NewKafkaQueue(cfg, minter, dedupe)
}
