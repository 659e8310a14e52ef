package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"thoth/internal/ingest/batchworker"
	"thoth/internal/ingest/errs"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/snapshot"
	"thoth/internal/ingest/taskqueue"
)

// handleHealth implements GET /health: reports ok only if the storage
// backend backing every VectorStore table and job record is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Storage != nil {
		if err := s.Storage.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleIngest implements POST /ingest: kicks off a full or
// incremental ingestion run for a configured source and returns 202 with
// the tracking job's identity.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Force  bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadRequest, "decode request body", err))
		return
	}
	if req.Source == "" {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadRequest, "source is required", nil))
		return
	}

	accepted, err := s.Orchestrator.Ingest(r.Context(), req.Source, req.Force)
	if err != nil {
		respondError(w, errs.HTTPStatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":          "accepted",
		"job_id":          accepted.JobID,
		"source":          accepted.Source,
		"collection_name": accepted.CollectionName,
	})
}

// handleIngestBatch implements POST /ingest-batch: the callback invoked by
// the task queue (or, in the local-HTTP-callback deployment, by the batch
// worker process itself) to process one isolated batch of files.
func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	if s.Verifier != nil {
		if _, err := s.Verifier.Verify(r.Context(), bearerToken(r)); err != nil {
			respondError(w, http.StatusUnauthorized, errs.New(errs.Unauthorized, "verify batch task caller", err))
			return
		}
	}

	var task taskqueue.BatchTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadRequest, "decode batch task", err))
		return
	}

	src, ok := s.Registry.ByCollection(task.CollectionName)
	if !ok {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadSource, "unknown collection_name "+task.CollectionName, nil))
		return
	}

	result, err := batchworker.ProcessBatch(r.Context(), batchworker.ProcessBatchInput{
		Task:       task,
		Source:     src,
		BaseURI:    s.BaseURI,
		S3Config:   s.S3Config,
		Qdrant:     s.Qdrant,
		Embedder:   s.Embedder,
		JobStore:   s.JobStore,
		Metrics:    s.Metrics,
		ChunkerCfg: batchworker.DefaultChunkerConfig(),
	})
	if err != nil {
		respondError(w, errs.HTTPStatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleMergeBatches implements POST /merge-batches.
func (s *Server) handleMergeBatches(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionName string `json:"collection_name"`
		Cleanup        bool   `json:"cleanup"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadRequest, "decode request body", err))
		return
	}
	if req.CollectionName == "" {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadRequest, "collection_name is required", nil))
		return
	}

	result, err := s.Merger.MergeBatches(r.Context(), req.CollectionName, req.Cleanup)
	if err != nil {
		respondError(w, errs.HTTPStatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleGetJob implements GET /jobs/{job_id}?include_sub_jobs=bool.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	includeSubJobs, _ := strconv.ParseBool(r.URL.Query().Get("include_sub_jobs"))

	if includeSubJobs {
		withSubJobs, err := s.JobStore.GetJobWithSubJobs(r.Context(), jobID)
		if err != nil {
			respondError(w, errs.HTTPStatusFor(err), err)
			return
		}
		if withSubJobs == nil {
			respondError(w, http.StatusNotFound, errs.New(errs.FileNotFound, "job "+jobID+" not found", nil))
			return
		}
		respondJSON(w, http.StatusOK, withSubJobs)
		return
	}

	job, err := s.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		respondError(w, errs.HTTPStatusFor(err), err)
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, errs.New(errs.FileNotFound, "job "+jobID+" not found", nil))
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleListJobs implements GET /jobs?source=&status=&limit=.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := jobstore.ListFilter{
		Source: r.URL.Query().Get("source"),
		Status: jobstore.Status(r.URL.Query().Get("status")),
		Limit:  limit,
	}
	jobs, err := s.JobStore.ListJobs(r.Context(), filter)
	if err != nil {
		respondError(w, errs.HTTPStatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleCloneHandbook implements POST /clone-handbook: one-time seeding of
// the local clone for any configured source carrying a repo_url.
func (s *Server) handleCloneHandbook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Force  bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadRequest, "decode request body", err))
		return
	}
	if req.Source == "" {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadRequest, "source is required", nil))
		return
	}
	src, ok := s.Registry.Get(req.Source)
	if !ok {
		respondError(w, http.StatusBadRequest, errs.New(errs.BadSource, "unknown source "+req.Source, nil))
		return
	}

	status, commit, err := snapshot.CloneSource(r.Context(), src, req.Force)
	if err != nil {
		respondError(w, errs.HTTPStatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"source": req.Source,
		"commit": commit,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// bearerToken extracts the raw token from an "Authorization: Bearer <token>"
// header, returning "" if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}
