// Package embedder is a pure function from ordered text
// sequences to ordered, fixed-dimension, unit-L2-norm float32 vectors.
package embedder

import (
	"context"
	"fmt"
	"strings"

	"thoth/internal/ingest/errs"
)

// Embedder is the texts-to-vectors contract. Implementations are safe
// for concurrent use.
type Embedder interface {
	// Embed converts texts to vectors. When normalize is true, every
	// returned vector has unit L2 norm. showProgress is advisory and may
	// be ignored by implementations with no meaningful notion of it.
	Embed(ctx context.Context, texts []string, normalize, showProgress bool) ([][]float32, error)
	// EmbedSingle is Embed([]string{s}, normalize, false)[0].
	EmbedSingle(ctx context.Context, s string, normalize bool) ([]float32, error)
	// Dimension reports the stable output width D for the life of the
	// process.
	Dimension() int
}

// validateTexts rejects an empty sequence and any empty/whitespace-only
// entry; there is no silent coercion.
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return errs.New(errs.InvalidInput, "embed: input sequence is empty", nil)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return errs.New(errs.InvalidInput, fmt.Sprintf("embed: entry at index %d is empty or whitespace-only", i), nil)
		}
	}
	return nil
}
