package snapshot

import (
	"os"
	"path/filepath"
)

// walkDir visits every regular file under root, calling fn with its path
// relative to root (slash-separated).
func walkDir(root string, fn func(relPath string)) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fn(filepath.ToSlash(rel))
		return nil
	})
}
