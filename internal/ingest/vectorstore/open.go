package vectorstore

import (
	"context"
	"fmt"

	"thoth/internal/config"
	"thoth/internal/ingest/embedder"
	"thoth/internal/objectstore"
)

// CanonicalURI returns the canonical table location for a collection:
// "{base_uri}/{collection_name}".
func CanonicalURI(baseURI, collectionName string) string {
	return joinURI(baseURI, collectionName)
}

// IsolatedURI returns a per-batch isolated table location:
// "{base}/{batch_prefix}{collection_name}_{batch_id}/{collection_name}".
func IsolatedURI(baseURI, collectionName, batchID string) string {
	dir := fmt.Sprintf("%s%s_%s", BatchPrefix, collectionName, batchID)
	return joinURI(joinURI(baseURI, dir), collectionName)
}

// IsolatedDir returns the isolated batch directory (one level above the
// table itself), used by the Merger to enumerate and clean up batch URIs.
func IsolatedDir(baseURI, collectionName, batchID string) string {
	dir := fmt.Sprintf("%s%s_%s", BatchPrefix, collectionName, batchID)
	return joinURI(baseURI, dir)
}

// IsolatedDirPrefix is the key prefix identifying every isolated batch
// directory for a given collection, used to enumerate them during merge.
func IsolatedDirPrefix(collectionName string) string {
	return BatchPrefix + collectionName + "_"
}

func joinURI(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "/" + b
}

// OpenAt opens (creating if absent) a columnar Store at the given URI,
// backed by the object store selected by objectstore.OpenURI and wired to
// embed for embedding-on-write / embedding-on-query.
func OpenAt(ctx context.Context, uri string, s3cfg config.S3Config, embed embedder.Embedder) (*ColumnarStore, error) {
	os, err := objectstore.OpenURI(ctx, uri, s3cfg)
	if err != nil {
		return nil, err
	}
	return Open(ctx, os, embed)
}

// OpenAssisted opens the canonical Store at uri, wrapping it with a
// QdrantIndex-backed search path when qcfg.URL is set. collectionName
// names the Qdrant collection; dimension must be the embedder's stable
// output width.
func OpenAssisted(ctx context.Context, uri string, s3cfg config.S3Config, qcfg config.QdrantConfig, collectionName string, dimension int, embed embedder.Embedder) (Store, error) {
	columnar, err := OpenAt(ctx, uri, s3cfg, embed)
	if err != nil {
		return nil, err
	}
	if qcfg.URL == "" {
		return columnar, nil
	}
	index, err := NewQdrantIndex(ctx, qcfg, collectionName, dimension)
	if err != nil {
		return nil, err
	}
	return NewQdrantAssisted(columnar, index), nil
}
