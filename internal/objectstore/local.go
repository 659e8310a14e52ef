package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalStore implements ObjectStore on top of a local filesystem directory.
// It is the backend selected for a VectorStore base URI that carries no
// "scheme://" prefix. The key space mirrors S3Store's: keys are '/'-
// separated and map directly onto nested directories under Root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if absent.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

func (l *LocalStore) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Get retrieves an object by key.
func (l *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error) {
	p := l.path(key)
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectAttrs{}, ErrNotFound
		}
		return nil, ObjectAttrs{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectAttrs{}, err
	}
	return f, ObjectAttrs{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()}, nil
}

// Put stores an object with the given key, creating parent directories.
func (l *LocalStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (string, error) {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", err
	}
	return etagFor(key, size), nil
}

// Delete removes an object by key. Not an error if it is already absent.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	pruneEmptyParents(l.root, filepath.Dir(l.path(key)))
	return nil
}

// pruneEmptyParents removes now-empty directories up to (not including)
// root, so repeated batch deletes don't leave a forest of empty dirs behind.
func pruneEmptyParents(root, dir string) {
	for dir != root && strings.HasPrefix(dir, root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// List returns objects matching the given options.
func (l *LocalStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	var objects []ObjectAttrs
	prefixSet := make(map[string]bool)

	err := filepath.Walk(l.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := filepath.ToSlash(strings.TrimPrefix(p, l.root+string(filepath.Separator)))
		if strings.HasSuffix(rel, ".tmp") {
			return nil
		}
		if opts.Prefix != "" && !strings.HasPrefix(rel, opts.Prefix) {
			return nil
		}
		if opts.Delimiter != "" {
			suffix := strings.TrimPrefix(rel, opts.Prefix)
			if idx := strings.Index(suffix, opts.Delimiter); idx >= 0 {
				prefixSet[opts.Prefix+suffix[:idx+1]] = true
				return nil
			}
		}
		objects = append(objects, ObjectAttrs{
			Key:          rel,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return ListResult{}, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	prefixes := make([]string, 0, len(prefixSet))
	for p := range prefixSet {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	if opts.MaxKeys > 0 && len(objects) > opts.MaxKeys {
		return ListResult{Objects: objects[:opts.MaxKeys], CommonPrefixes: prefixes, IsTruncated: true}, nil
	}
	return ListResult{Objects: objects, CommonPrefixes: prefixes}, nil
}

// Head returns object metadata without reading content.
func (l *LocalStore) Head(ctx context.Context, key string) (ObjectAttrs, error) {
	info, err := os.Stat(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectAttrs{}, ErrNotFound
		}
		return ObjectAttrs{}, err
	}
	return ObjectAttrs{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()}, nil
}

// Copy duplicates an object to a new key.
func (l *LocalStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	r, _, err := l.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = l.Put(ctx, dstKey, r, PutOptions{})
	return err
}

// Exists checks if an object exists at the given key.
func (l *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ping always succeeds for a reachable local directory.
func (l *LocalStore) Ping(ctx context.Context) error {
	_, err := os.Stat(l.root)
	return err
}

func etagFor(key string, size int64) string {
	return "\"" + key + "-" + time.Now().UTC().Format("20060102150405") + "\""
}

var _ ObjectStore = (*LocalStore)(nil)
