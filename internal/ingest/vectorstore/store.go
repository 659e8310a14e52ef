// Package vectorstore is an upsert-capable, filterable columnar store whose
// physical layout is a collection of per-collection tables under either a
// local path or an object-storage URI.
//
// Tables are stored directly on internal/objectstore: one row per object,
// plus a manifest listing row ids for fast counting. Reads materialize the
// table and filter in memory; an optional Qdrant index can accelerate
// similarity search without changing the system of record.
package vectorstore

import (
	"context"
)

// BatchPrefix is the fixed, reserved prefix for isolated per-batch table
// URIs. It must not be used as a canonical collection name.
const BatchPrefix = "lancedb_batch_"

// Record is one row of the canonical table schema. Metadata columns are
// always non-null: empty string or zero when absent.
type Record struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Vector      []float32 `json:"vector"`
	FilePath    string    `json:"file_path"`
	Section     string    `json:"section"`
	ChunkIndex  int64     `json:"chunk_index"`
	TotalChunks int64     `json:"total_chunks"`
	Source      string    `json:"source"`
	Format      string    `json:"format"`
	Timestamp   string    `json:"timestamp"`
}

// Where expresses an equality or comparison filter over the Record's
// scalar metadata columns. A plain scalar value means equality; a map with
// a single "$eq"/"$ne"/"$gt"/"$gte"/"$lt"/"$lte" key expresses a comparison.
type Where map[string]any

// Op is one of the recognized comparison operators.
type Op struct {
	Name  string
	Value any
}

// SearchResult pairs a Record with its cosine distance from the query.
type SearchResult struct {
	Record   Record
	Distance float32
}

// AddDocumentsInput is the length-matched payload of AddDocuments.
// Metadatas, Ids, and Embeddings may each be nil, in which
// case they are derived: ids as "doc_{existing_count+i}", embeddings via
// the store's embedder.
type AddDocumentsInput struct {
	Docs       []string
	Metadatas  []map[string]string
	Ids        []string
	Embeddings [][]float32
}

// Store is the vector-store contract shared by the canonical table and the
// isolated per-batch tables.
type Store interface {
	// AddDocuments upserts by id: existing rows are replaced, new rows
	// inserted. A no-op for an empty Docs slice.
	AddDocuments(ctx context.Context, in AddDocumentsInput) ([]string, error)

	// SearchSimilar returns at most n rows ordered by ascending cosine
	// distance, honoring an optional Where filter. queryEmbedding may be
	// nil, in which case the store embeds query itself.
	SearchSimilar(ctx context.Context, query string, n int, where Where, queryEmbedding []float32) ([]SearchResult, error)

	// GetDocuments performs a full scan, then filters by id set membership
	// and/or Where, then truncates to limit (limit <= 0 means unlimited).
	GetDocuments(ctx context.Context, ids []string, where Where, limit int) ([]Record, error)

	// DeleteDocuments requires at least one of ids/where to be non-empty.
	DeleteDocuments(ctx context.Context, ids []string, where Where) (int, error)

	// DeleteByFilePath deletes every row whose file_path equals p and
	// returns the count of deleted rows.
	DeleteByFilePath(ctx context.Context, p string) (int, error)

	// GetDocumentCount returns the table's row count.
	GetDocumentCount(ctx context.Context) (int, error)

	// Reset drops and recreates the table.
	Reset(ctx context.Context) error
}
