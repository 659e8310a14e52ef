package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"thoth/internal/config"
	"thoth/internal/ingest/errs"
	"thoth/internal/observability"
)

// httpEmbedder calls a remote embedding endpoint (an OpenAI-compatible
// `/embeddings` route), one request per call. Dimension is fixed at
// construction time from configuration since the remote model's output
// width cannot change mid-process.
type httpEmbedder struct {
	cfg    config.EmbeddingConfig
	dim    int
	client *http.Client
}

// NewHTTP constructs an embedder backed by a remote HTTP embedding
// service, as the domain's process-wide embedder when Endpoint is set. The
// client is wrapped with the otel-instrumented transport shared by the rest
// of the control plane's outbound calls.
func NewHTTP(cfg config.EmbeddingConfig) Embedder {
	client := observability.NewHTTPClient(&http.Client{Timeout: 30 * time.Second})
	if len(cfg.ExtraHeaders) > 0 {
		client = observability.WithHeaders(client, cfg.ExtraHeaders)
	}
	return &httpEmbedder{
		cfg:    cfg,
		dim:    cfg.Dimension,
		client: client,
	}
}

func (h *httpEmbedder) Dimension() int { return h.dim }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (h *httpEmbedder) Embed(ctx context.Context, texts []string, normalize, showProgress bool) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embeddingRequest{Model: h.cfg.Model, Input: texts})
	if err != nil {
		return nil, errs.New(errs.FatalInternal, "encode embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.FatalInternal, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	log.Debug().Str("endpoint", h.cfg.Endpoint).RawJSON("request", observability.RedactJSON(body)).Int("texts", len(texts)).Msg("embedding request")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errs.New(errs.FatalInternal, "call embedding endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.FatalInternal, fmt.Sprintf("embedding endpoint returned status %d", resp.StatusCode), nil)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.New(errs.FatalInternal, "decode embedding response", err)
	}
	if len(out.Data) != len(texts) {
		return nil, errs.New(errs.FatalInternal, fmt.Sprintf("embedding endpoint returned %d vectors for %d inputs", len(out.Data), len(texts)), nil)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}
	if normalize {
		for _, v := range vectors {
			l2Normalize(v)
		}
	}
	return vectors, nil
}

func (h *httpEmbedder) EmbedSingle(ctx context.Context, s string, normalize bool) ([]float32, error) {
	vecs, err := h.Embed(ctx, []string{s}, normalize, false)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
