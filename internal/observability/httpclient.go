package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns an http.Client instrumented with otelhttp transport.
// The embedder's HTTP backend (internal/ingest/embedder/http.go) uses this
// instead of http.DefaultClient so embedding calls show up as spans under
// the ingestion job that triggered them.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt)
	return base
}

// headerInjectingTransport sets a fixed set of headers on every outbound
// request, without clobbering a header the caller already set explicitly.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range t.headers {
		if cloned.Header.Get(k) == "" {
			cloned.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(cloned)
}

// WithHeaders wraps client so every outbound request carries the given
// static headers. Used for an embedding endpoint's non-standard auth
// headers (configured via EmbeddingConfig.ExtraHeaders) that don't fit the
// single Authorization/Bearer case NewHTTP already sets directly.
func WithHeaders(client *http.Client, headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return client
	}
	if client == nil {
		client = &http.Client{}
	}
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	client.Transport = &headerInjectingTransport{base: rt, headers: headers}
	return client
}
