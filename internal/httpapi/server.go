// Package httpapi is the ingestion control plane's HTTP surface over the
// Orchestrator, BatchWorker, Merger, and JobStore.
package httpapi

import (
	"net/http"

	"thoth/internal/config"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/merger"
	"thoth/internal/ingest/metrics"
	"thoth/internal/ingest/orchestrator"
	"thoth/internal/ingest/taskqueue"
	"thoth/internal/objectstore"
)

// Server exposes the ingestion control plane's HTTP endpoints.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	JobStore     jobstore.JobStore
	Merger       *merger.Merger
	Registry     *config.Registry
	Embedder     embedder.Embedder
	S3Config     config.S3Config
	Qdrant       config.QdrantConfig
	BaseURI      string
	Metrics      metrics.Sink
	Storage      objectstore.ObjectStore

	// Verifier, when set, requires POST /ingest-batch to carry a valid
	// "Authorization: Bearer <OIDC id_token>" minted by the side that
	// enqueued the batch (the callback-style deployment). Nil
	// skips verification, the right default for the Kafka-consumer path
	// and for local development.
	Verifier *taskqueue.Verifier

	mux *http.ServeMux
}

// NewServer wires the control plane's dependencies into an http.Handler.
func NewServer(s *Server) *Server {
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /ingest", s.handleIngest)
	s.mux.HandleFunc("POST /ingest-batch", s.handleIngestBatch)
	s.mux.HandleFunc("POST /merge-batches", s.handleMergeBatches)
	s.mux.HandleFunc("GET /jobs/{jobID}", s.handleGetJob)
	s.mux.HandleFunc("GET /jobs", s.handleListJobs)
	s.mux.HandleFunc("POST /clone-handbook", s.handleCloneHandbook)
}
