package objectstore

import (
	"context"
	"fmt"
	"strings"

	"thoth/internal/config"
)

// OpenURI opens an ObjectStore rooted at uri, which is either a plain local
// directory path or an object-storage URI "scheme://bucket/path".
// s3cfg supplies credentials/region/endpoint for the object-storage
// case; its Bucket field is ignored in favor of the URI's host component.
func OpenURI(ctx context.Context, uri string, s3cfg config.S3Config) (ObjectStore, error) {
	if scheme, rest, ok := splitScheme(uri); ok {
		switch scheme {
		case "s3", "gs":
			bucket, prefix := splitBucketPath(rest)
			cfg := s3cfg
			cfg.Bucket = bucket
			cfg.Prefix = joinPrefix(cfg.Prefix, prefix)
			return NewS3Store(ctx, cfg)
		default:
			return nil, fmt.Errorf("unsupported object-store scheme %q", scheme)
		}
	}
	return NewLocalStore(uri)
}

func splitScheme(uri string) (scheme, rest string, ok bool) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return "", uri, false
	}
	return uri[:idx], uri[idx+3:], true
}

func splitBucketPath(rest string) (bucket, prefix string) {
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix
}

func joinPrefix(a, b string) string {
	a = strings.Trim(a, "/")
	b = strings.Trim(b, "/")
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "/" + b
	}
}
