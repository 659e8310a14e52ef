package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/errs"
	"thoth/internal/objectstore"
)

// manifest lists every row id currently present in a table, so
// GetDocumentCount and full-scan operations don't need a List call that
// could race with concurrent writers under object-store eventual
// consistency.
type manifest struct {
	IDs []string `json:"ids"`
}

const manifestKey = "_manifest.json"

func rowKey(id string) string {
	return "rows/" + id + ".json"
}

// ColumnarStore implements Store directly on top of an ObjectStore prefix:
// one JSON object per row plus a manifest of row ids. A table IS an
// ObjectStore prefix, and every store operation is a List/Get/Put/Delete
// against it.
type ColumnarStore struct {
	store  objectstore.ObjectStore
	embed  embedder.Embedder
	mu     sync.Mutex
}

// Open opens (or, if absent, creates) a table at the given ObjectStore
// root. Creation is idempotent: writing the manifest only if it is not
// already present means a creation that races with another opener
// degrades to an open, since Put is itself idempotent for the same key.
func Open(ctx context.Context, store objectstore.ObjectStore, embed embedder.Embedder) (*ColumnarStore, error) {
	cs := &ColumnarStore{store: store, embed: embed}
	if _, err := cs.loadManifest(ctx); err != nil {
		if err := cs.writeManifest(ctx, manifest{IDs: []string{}}); err != nil {
			return nil, errs.New(errs.ObjectStoreError, "create table manifest", err)
		}
	}
	return cs, nil
}

func (cs *ColumnarStore) loadManifest(ctx context.Context) (manifest, error) {
	r, _, err := cs.store.Get(ctx, manifestKey)
	if err != nil {
		return manifest{}, err
	}
	defer r.Close()
	var m manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return manifest{}, err
	}
	return m, nil
}

func (cs *ColumnarStore) writeManifest(ctx context.Context, m manifest) error {
	sort.Strings(m.IDs)
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = cs.store.Put(ctx, manifestKey, bytes.NewReader(data), objectstore.PutOptions{ContentType: "application/json"})
	return err
}

func (cs *ColumnarStore) getRow(ctx context.Context, id string) (Record, bool, error) {
	r, _, err := cs.store.Get(ctx, rowKey(id))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	defer r.Close()
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (cs *ColumnarStore) putRow(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = cs.store.Put(ctx, rowKey(rec.ID), bytes.NewReader(data), objectstore.PutOptions{ContentType: "application/json"})
	return err
}

// scanAll loads every row listed in the manifest.
func (cs *ColumnarStore) scanAll(ctx context.Context) ([]Record, error) {
	m, err := cs.loadManifest(ctx)
	if err != nil {
		return nil, errs.New(errs.ObjectStoreError, "load table manifest", err)
	}
	out := make([]Record, 0, len(m.IDs))
	for _, id := range m.IDs {
		rec, ok, err := cs.getRow(ctx, id)
		if err != nil {
			return nil, errs.New(errs.ObjectStoreError, "read row "+id, err)
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func sanitizeMetadataValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	default:
		return fmt.Sprint(t)
	}
}

// AddDocuments upserts rows by id.
func (cs *ColumnarStore) AddDocuments(ctx context.Context, in AddDocumentsInput) ([]string, error) {
	if len(in.Docs) == 0 {
		return nil, nil
	}
	if in.Metadatas != nil && len(in.Metadatas) != len(in.Docs) {
		return nil, errs.New(errs.BadRequest, "metadatas length does not match docs length", nil)
	}
	if in.Ids != nil && len(in.Ids) != len(in.Docs) {
		return nil, errs.New(errs.BadRequest, "ids length does not match docs length", nil)
	}
	if in.Embeddings != nil && len(in.Embeddings) != len(in.Docs) {
		return nil, errs.New(errs.BadRequest, "embeddings length does not match docs length", nil)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	m, err := cs.loadManifest(ctx)
	if err != nil {
		return nil, errs.New(errs.ObjectStoreError, "load table manifest", err)
	}
	existing := make(map[string]bool, len(m.IDs))
	for _, id := range m.IDs {
		existing[id] = true
	}

	ids := in.Ids
	if ids == nil {
		ids = make([]string, len(in.Docs))
		for i := range in.Docs {
			ids[i] = fmt.Sprintf("doc_%d", len(m.IDs)+i)
		}
	}

	vectors := in.Embeddings
	if vectors == nil {
		if cs.embed == nil {
			return nil, errs.New(errs.FatalInternal, "add_documents: no embeddings supplied and no embedder configured", nil)
		}
		vectors, err = cs.embed.Embed(ctx, in.Docs, true, false)
		if err != nil {
			return nil, err
		}
	}

	for i, doc := range in.Docs {
		var meta map[string]string
		if in.Metadatas != nil {
			meta = in.Metadatas[i]
		}
		rec := Record{
			ID:          ids[i],
			Text:        doc,
			Vector:      vectors[i],
			FilePath:    meta["file_path"],
			Section:     meta["section"],
			ChunkIndex:  atoiOrZero(meta["chunk_index"]),
			TotalChunks: atoiOrZero(meta["total_chunks"]),
			Source:      meta["source"],
			Format:      meta["format"],
			Timestamp:   meta["timestamp"],
		}
		if err := cs.putRow(ctx, rec); err != nil {
			return nil, errs.New(errs.ObjectStoreError, "write row "+rec.ID, err)
		}
		if !existing[rec.ID] {
			m.IDs = append(m.IDs, rec.ID)
			existing[rec.ID] = true
		}
	}
	if err := cs.writeManifest(ctx, m); err != nil {
		return nil, errs.New(errs.ObjectStoreError, "write table manifest", err)
	}
	return ids, nil
}

func atoiOrZero(s string) int64 {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0
	}
	return n
}

// SearchSimilar returns at most n rows ordered by ascending cosine
// distance, honoring an optional Where filter.
func (cs *ColumnarStore) SearchSimilar(ctx context.Context, query string, n int, where Where, queryEmbedding []float32) ([]SearchResult, error) {
	qv := queryEmbedding
	if qv == nil {
		if cs.embed == nil {
			return nil, errs.New(errs.FatalInternal, "search_similar: no query embedding supplied and no embedder configured", nil)
		}
		v, err := cs.embed.EmbedSingle(ctx, query, true)
		if err != nil {
			return nil, err
		}
		qv = v
	}

	rows, err := cs.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		if len(where) > 0 && !matches(r, where) {
			continue
		}
		results = append(results, SearchResult{Record: r, Distance: cosineDistance(qv, r.Vector)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results, nil
}

func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// GetDocuments performs a full scan, then filters by id membership and/or
// Where, then truncates to limit.
func (cs *ColumnarStore) GetDocuments(ctx context.Context, ids []string, where Where, limit int) ([]Record, error) {
	rows, err := cs.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	var idSet map[string]bool
	if len(ids) > 0 {
		idSet = make(map[string]bool, len(ids))
		for _, id := range ids {
			idSet[id] = true
		}
	}

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if idSet != nil && !idSet[r.ID] {
			continue
		}
		if len(where) > 0 && !matches(r, where) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteDocuments deletes by id set membership and/or Where match; at
// least one must be non-empty.
func (cs *ColumnarStore) DeleteDocuments(ctx context.Context, ids []string, where Where) (int, error) {
	deleted, err := cs.DeleteDocumentsIDs(ctx, ids, where)
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

// DeleteDocumentsIDs is DeleteDocuments but returns the ids actually
// deleted, so a secondary index (e.g. Qdrant) can be kept in sync.
func (cs *ColumnarStore) DeleteDocumentsIDs(ctx context.Context, ids []string, where Where) ([]string, error) {
	if len(ids) == 0 && len(where) == 0 {
		return nil, errs.New(errs.BadRequest, "delete_documents requires ids or where", nil)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	m, err := cs.loadManifest(ctx)
	if err != nil {
		return nil, errs.New(errs.ObjectStoreError, "load table manifest", err)
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	remaining := m.IDs[:0:0]
	var deleted []string
	for _, id := range m.IDs {
		rec, ok, err := cs.getRow(ctx, id)
		if err != nil {
			return nil, errs.New(errs.ObjectStoreError, "read row "+id, err)
		}
		del := ok && idSet[id]
		if ok && len(where) > 0 && matches(rec, where) {
			del = true
		}
		if del {
			if err := cs.store.Delete(ctx, rowKey(id)); err != nil {
				return nil, errs.New(errs.ObjectStoreError, "delete row "+id, err)
			}
			deleted = append(deleted, id)
			continue
		}
		remaining = append(remaining, id)
	}
	m.IDs = remaining
	if err := cs.writeManifest(ctx, m); err != nil {
		return nil, errs.New(errs.ObjectStoreError, "write table manifest", err)
	}
	return deleted, nil
}

// DeleteByFilePath deletes every row whose file_path equals p and returns
// the count deleted.
func (cs *ColumnarStore) DeleteByFilePath(ctx context.Context, p string) (int, error) {
	deleted, err := cs.DeleteDocumentsIDs(ctx, nil, Where{"file_path": p})
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

// GetDocumentCount returns the table's row count.
func (cs *ColumnarStore) GetDocumentCount(ctx context.Context) (int, error) {
	m, err := cs.loadManifest(ctx)
	if err != nil {
		return 0, errs.New(errs.ObjectStoreError, "load table manifest", err)
	}
	return len(m.IDs), nil
}

// Reset drops and recreates the table.
func (cs *ColumnarStore) Reset(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	m, err := cs.loadManifest(ctx)
	if err == nil {
		for _, id := range m.IDs {
			_ = cs.store.Delete(ctx, rowKey(id))
		}
	}
	return cs.writeManifest(ctx, manifest{IDs: []string{}})
}

var _ Store = (*ColumnarStore)(nil)
