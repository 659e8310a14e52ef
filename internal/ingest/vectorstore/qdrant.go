package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"thoth/internal/config"
	"thoth/internal/ingest/errs"
)

// PayloadIDField stores a row's real chunk_id in the Qdrant payload, since
// Qdrant point ids must be a UUID or a positive integer while chunk ids
// are arbitrary strings.
const PayloadIDField = "_original_id"

// QdrantIndex is a real ANN index kept alongside the columnar store of
// record. The columnar store stays the system of record for
// get/delete/count; similarity search delegates kNN to the index, which
// gives the
// Qdrant client a concrete home, grounded on
// internal/persistence/databases/qdrant_vector.go's connection and
// point-id handling.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantIndex connects to Qdrant and ensures the named collection
// exists with a cosine-distance vector config of the given dimension.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, collection string, dimension int) (*QdrantIndex, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errs.New(errs.FatalInternal, "parse qdrant url", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	qcfg := &qdrant.Config{Host: host, Port: port, UseTLS: parsed.Scheme == "https"}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		qcfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, errs.New(errs.FatalInternal, "create qdrant client", err)
	}
	idx := &QdrantIndex{client: client, collection: collection, dimension: dimension}
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return errs.New(errs.FatalInternal, "check qdrant collection exists", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return errs.New(errs.FatalInternal, "create qdrant collection", err)
	}
	return nil
}

func pointIDFor(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

// Upsert indexes one vector under its original chunk id.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32) error {
	pointUUID, renamed := pointIDFor(id)
	payload := map[string]any{}
	if renamed {
		payload[PayloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointUUID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return errs.New(errs.FatalInternal, "qdrant upsert", err)
	}
	return nil
}

// Delete removes a vector by its original chunk id.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	pointUUID, _ := pointIDFor(id)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID)),
	})
	if err != nil {
		return errs.New(errs.FatalInternal, "qdrant delete", err)
	}
	return nil
}

// Search returns the n nearest chunk ids to vector, ordered by ascending
// distance (Qdrant reports similarity score; cosine distance = 1 - score).
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, n int) ([]SearchResult, error) {
	if n <= 0 {
		n = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(n)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errs.New(errs.FatalInternal, "qdrant query", err)
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			if v, ok := hit.Payload[PayloadIDField]; ok {
				id = v.GetStringValue()
			}
		}
		out = append(out, SearchResult{Record: Record{ID: id}, Distance: 1 - hit.Score})
	}
	return out, nil
}

// Close releases the Qdrant connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// QdrantAssistedStore wraps a ColumnarStore, keeping a QdrantIndex in sync
// on every write and delegating SearchSimilar's kNN to Qdrant, then
// hydrating full rows (and re-applying the Where filter, since Qdrant
// payload filters are not wired to the full scalar schema) from the
// columnar store by id.
type QdrantAssistedStore struct {
	columnar *ColumnarStore
	index    *QdrantIndex
}

// NewQdrantAssisted pairs a columnar store of record with a Qdrant index.
func NewQdrantAssisted(columnar *ColumnarStore, index *QdrantIndex) *QdrantAssistedStore {
	return &QdrantAssistedStore{columnar: columnar, index: index}
}

func (q *QdrantAssistedStore) AddDocuments(ctx context.Context, in AddDocumentsInput) ([]string, error) {
	ids, err := q.columnar.AddDocuments(ctx, in)
	if err != nil {
		return nil, err
	}
	rows, err := q.columnar.GetDocuments(ctx, ids, nil, 0)
	if err != nil {
		return ids, nil // columnar write already succeeded; index sync is best-effort
	}
	for _, r := range rows {
		if err := q.index.Upsert(ctx, r.ID, r.Vector); err != nil {
			return ids, fmt.Errorf("sync qdrant index: %w", err)
		}
	}
	return ids, nil
}

func (q *QdrantAssistedStore) SearchSimilar(ctx context.Context, query string, n int, where Where, queryEmbedding []float32) ([]SearchResult, error) {
	qv := queryEmbedding
	if qv == nil {
		return q.columnar.SearchSimilar(ctx, query, n, where, nil)
	}
	hits, err := q.index.Search(ctx, qv, n*4+n) // over-fetch to survive post-filtering
	if err != nil || len(hits) == 0 {
		return q.columnar.SearchSimilar(ctx, query, n, where, qv)
	}
	ids := make([]string, len(hits))
	distanceByID := make(map[string]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.Record.ID
		distanceByID[h.Record.ID] = h.Distance
	}
	rows, err := q.columnar.GetDocuments(ctx, ids, where, 0)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, SearchResult{Record: r, Distance: distanceByID[r.ID]})
	}
	sortResults(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func sortResults(r []SearchResult) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j].Distance < r[j-1].Distance; j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}

func (q *QdrantAssistedStore) GetDocuments(ctx context.Context, ids []string, where Where, limit int) ([]Record, error) {
	return q.columnar.GetDocuments(ctx, ids, where, limit)
}

func (q *QdrantAssistedStore) DeleteDocuments(ctx context.Context, ids []string, where Where) (int, error) {
	deleted, err := q.columnar.DeleteDocumentsIDs(ctx, ids, where)
	if err != nil {
		return 0, err
	}
	for _, id := range deleted {
		_ = q.index.Delete(ctx, id)
	}
	return len(deleted), nil
}

func (q *QdrantAssistedStore) DeleteByFilePath(ctx context.Context, p string) (int, error) {
	return q.DeleteDocuments(ctx, nil, Where{"file_path": p})
}

func (q *QdrantAssistedStore) GetDocumentCount(ctx context.Context) (int, error) {
	return q.columnar.GetDocumentCount(ctx)
}

func (q *QdrantAssistedStore) Reset(ctx context.Context) error {
	return q.columnar.Reset(ctx)
}

var _ Store = (*QdrantAssistedStore)(nil)
