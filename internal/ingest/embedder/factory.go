package embedder

import "thoth/internal/config"

// New selects the process-wide embedder implementation: an HTTP-backed
// embedder when an endpoint is configured, otherwise the deterministic
// local embedder. Construct once and hold for process lifetime.
func New(cfg config.EmbeddingConfig) Embedder {
	if cfg.Endpoint != "" {
		return NewHTTP(cfg)
	}
	return NewDeterministic(cfg.Dimension, 0)
}
