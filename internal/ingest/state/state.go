// Package state persists per-source IngestionState: the last-seen commit,
// the set of successfully processed files, per-file failures, and the
// running counters the incremental update engine needs to decide between a
// full ingest and a diff-based one.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"thoth/internal/objectstore"
)

// IngestionState is the per-source record carried across ingestion runs.
type IngestionState struct {
	Source         string          `json:"source"`
	LastCommit     string          `json:"last_commit,omitempty"`
	ProcessedFiles map[string]bool `json:"processed_files"`
	FailedFiles    map[string]string `json:"failed_files"`
	TotalChunks    int             `json:"total_chunks"`
	TotalDocuments int             `json:"total_documents"`
	Completed      bool            `json:"completed"`
	StartTime      time.Time       `json:"start_time"`
	LastUpdateTime time.Time       `json:"last_update_time"`
}

// NewIngestionState returns a freshly initialized state for source, as
// created the first time it is ingested.
func NewIngestionState(source string) *IngestionState {
	now := time.Now().UTC()
	return &IngestionState{
		Source:         source,
		ProcessedFiles: make(map[string]bool),
		FailedFiles:    make(map[string]string),
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// AddChunks adds a chunk/document delta, used after ingesting
// added or modified files.
func (s *IngestionState) AddChunks(n int) {
	s.TotalChunks += n
	s.TotalDocuments += n
}

// RemoveChunks saturating-subtracts a chunk/document delta, used after
// deleting rows for a removed or modified file. Counters never go
// negative.
func (s *IngestionState) RemoveChunks(n int) {
	s.TotalChunks = saturatingSub(s.TotalChunks, n)
	s.TotalDocuments = saturatingSub(s.TotalDocuments, n)
}

func saturatingSub(a, b int) int {
	r := a - b
	if r < 0 {
		return 0
	}
	return r
}

func key(source string) string {
	return "ingestion-state/" + source + ".json"
}

// Store persists IngestionState documents, one per source, as a JSON blob
// on any backend ObjectStore (local directory or object-storage URI).
type Store struct {
	backing objectstore.ObjectStore
}

// NewStore constructs a Store backed by the given ObjectStore root.
func NewStore(backing objectstore.ObjectStore) *Store {
	return &Store{backing: backing}
}

// Load reads back the state for source, or returns (nil, nil) if none has
// been persisted yet.
func (s *Store) Load(ctx context.Context, source string) (*IngestionState, error) {
	r, _, err := s.backing.Get(ctx, key(source))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var st IngestionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	if st.ProcessedFiles == nil {
		st.ProcessedFiles = make(map[string]bool)
	}
	if st.FailedFiles == nil {
		st.FailedFiles = make(map[string]string)
	}
	return &st, nil
}

// Save persists st, bumping LastUpdateTime.
func (s *Store) Save(ctx context.Context, st *IngestionState) error {
	st.LastUpdateTime = time.Now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.backing.Put(ctx, key(st.Source), bytes.NewReader(data), objectstore.PutOptions{ContentType: "application/json"})
	return err
}
