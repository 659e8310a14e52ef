// Package merger folds isolated per-batch tables back
// into their collection's canonical table.
package merger

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"thoth/internal/config"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/vectorstore"
	"thoth/internal/objectstore"
)

// Result summarizes one merge run.
type Result struct {
	BatchesMerged  int    `json:"batches_merged"`
	TotalDocuments int    `json:"total_documents"`
	BatchesCleaned int    `json:"batches_cleaned"`
	FinalURI       string `json:"final_uri"`
}

// Merger folds isolated batch tables for one collection into its
// canonical table.
type Merger struct {
	BaseURI  string
	S3Config config.S3Config
	Qdrant   config.QdrantConfig
	Embedder embedder.Embedder
}

// MergeBatches upserts every isolated batch table's rows into the
// canonical collection table. A failure merging one batch does not abort
// the remaining batches.
func (m *Merger) MergeBatches(ctx context.Context, collectionName string, cleanup bool) (Result, error) {
	finalURI := vectorstore.CanonicalURI(m.BaseURI, collectionName)
	canonical, err := vectorstore.OpenAssisted(ctx, finalURI, m.S3Config, m.Qdrant, collectionName, m.Embedder.Dimension(), m.Embedder)
	if err != nil {
		return Result{}, err
	}

	root, err := objectstore.OpenURI(ctx, m.BaseURI, m.S3Config)
	if err != nil {
		return Result{}, err
	}

	batchDirs, err := listBatchDirs(ctx, root, collectionName)
	if err != nil {
		return Result{}, err
	}
	sort.Strings(batchDirs)

	result := Result{FinalURI: finalURI}
	for _, dir := range batchDirs {
		batchURI := joinURI(joinURI(m.BaseURI, dir), collectionName)
		n, err := m.mergeOneBatch(ctx, batchURI, collectionName, canonical)
		if err != nil {
			log.Error().Err(err).Str("batch_uri", batchURI).Msg("failed to merge batch, continuing")
			continue
		}
		if n == 0 {
			continue
		}
		result.BatchesMerged++
		result.TotalDocuments += n

		if cleanup {
			if err := deleteAllUnder(ctx, root, dir); err != nil {
				log.Warn().Err(err).Str("batch_uri", batchURI).Msg("failed to clean up batch directory")
				continue
			}
			result.BatchesCleaned++
		}
	}
	return result, nil
}

func (m *Merger) mergeOneBatch(ctx context.Context, batchURI, collectionName string, canonical vectorstore.Store) (int, error) {
	batchStore, err := vectorstore.OpenAt(ctx, batchURI, m.S3Config, m.Embedder)
	if err != nil {
		return 0, err
	}
	rows, err := batchStore.GetDocuments(ctx, nil, nil, 0)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	docs := make([]string, len(rows))
	ids := make([]string, len(rows))
	vecs := make([][]float32, len(rows))
	metas := make([]map[string]string, len(rows))
	for i, r := range rows {
		docs[i] = r.Text
		ids[i] = r.ID
		vecs[i] = r.Vector
		metas[i] = map[string]string{
			"file_path":    r.FilePath,
			"section":      r.Section,
			"chunk_index":  strconv.FormatInt(r.ChunkIndex, 10),
			"total_chunks": strconv.FormatInt(r.TotalChunks, 10),
			"source":       r.Source,
			"format":       r.Format,
			"timestamp":    r.Timestamp,
		}
	}

	if _, err := canonical.AddDocuments(ctx, vectorstore.AddDocumentsInput{
		Docs:       docs,
		Metadatas:  metas,
		Ids:        ids,
		Embeddings: vecs,
	}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func listBatchDirs(ctx context.Context, root objectstore.ObjectStore, collectionName string) ([]string, error) {
	prefix := vectorstore.IsolatedDirPrefix(collectionName)
	result, err := root.List(ctx, objectstore.ListOptions{Prefix: prefix, Delimiter: "/"})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var dirs []string
	for _, cp := range result.CommonPrefixes {
		dir := strings.TrimSuffix(cp, "/")
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	// If a backend returns no CommonPrefixes for a delimited listing, fall
	// back to deriving directories from full object keys under the prefix.
	if len(dirs) == 0 {
		objs, err := root.List(ctx, objectstore.ListOptions{Prefix: prefix})
		if err != nil {
			return nil, err
		}
		for _, o := range objs.Objects {
			idx := strings.Index(o.Key, "/")
			if idx < 0 {
				continue
			}
			dir := o.Key[:idx]
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs, nil
}

func deleteAllUnder(ctx context.Context, root objectstore.ObjectStore, dir string) error {
	result, err := root.List(ctx, objectstore.ListOptions{Prefix: dir + "/"})
	if err != nil {
		return err
	}
	for _, o := range result.Objects {
		if err := root.Delete(ctx, o.Key); err != nil {
			return err
		}
	}
	return nil
}

func joinURI(a, b string) string {
	if a == "" {
		return b
	}
	return a + "/" + b
}
