package observability

import (
	"context"
	"crypto/sha256"

	"go.opentelemetry.io/otel/trace"
)

// DetachedTraceContext returns a context safe to hand to a background
// goroutine that must outlive the originating request: it carries no
// cancellation from ctx, but preserves ctx's trace correlation when
// present. When ctx carries no trace, one is synthesized deterministically
// from seed (e.g. a job_id) so every log line for that job shares a trace
// ID across process restarts.
func DetachedTraceContext(ctx context.Context, seed string) context.Context {
	detached := context.WithoutCancel(ctx)

	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return detached
	}

	traceID := traceIDFromSeed(seed)
	spanID := spanIDFromSeed(seed)
	synthesized := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(detached, synthesized)
}

func traceIDFromSeed(seed string) trace.TraceID {
	sum := sha256.Sum256([]byte("trace:" + seed))
	var id trace.TraceID
	copy(id[:], sum[:16])
	return id
}

func spanIDFromSeed(seed string) trace.SpanID {
	sum := sha256.Sum256([]byte("span:" + seed))
	var id trace.SpanID
	copy(id[:], sum[:8])
	return id
}
