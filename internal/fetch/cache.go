// Package fetch implements the crawler's external collaborators:
// the archive downloader, the ZIP archive reader, the persistent
// archive cache, and the dataset search-index client.
package fetch

import (
	"fmt"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Cache is the persistent archive-cache directory: a safe filename is
// derived from a dataset id, and archives are written into it through
// an osfs-backed billy.Filesystem. The pipeline reads a cached archive
// back by its on-disk path (Filesystem().Root() joined with the
// filename).
type Cache struct {
	fs billy.Filesystem
}

// NewCache returns a Cache rooted at dir, creating it if necessary.
func NewCache(dir string) (*Cache, error) {
	fs := osfs.New(dir)
	if err := fs.MkdirAll(".", 0o755); err != nil {
		return nil, fmt.Errorf("fetch: create cache dir %s: %w", dir, err)
	}
	return &Cache{fs: fs}, nil
}

// Filesystem exposes the underlying billy.Filesystem, e.g. for a
// temporary working directory scoped under the same root.
func (c *Cache) Filesystem() billy.Filesystem { return c.fs }

// SafeFilename derives a filesystem-safe cache filename from a dataset
// id: letters and '-' pass through unchanged, everything else becomes
// '_'. This mirrors the archive naming scheme datasets are persisted
// under so a later run can recover a failed download from cache.
func SafeFilename(datasetID string) string {
	out := make([]byte, 0, len(datasetID)+4)
	for _, r := range datasetID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			out = append(out, byte(r))
		default:
			out = append(out, '_')
		}
	}
	return string(out) + ".zip"
}
