package fetch

import (
	"archive/zip"
	"fmt"
	"io"
)

// Archive is a ZIP archive whose members can be iterated as raw
// bytes, one at a time, in declaration order.
type Archive interface {
	Len() int
	Next() ([]byte, error)
	Close() error
}

// zipArchive is the default Archive, backed by stdlib archive/zip.
type zipArchive struct {
	reader *zip.ReadCloser
	index  int
}

// OpenArchive opens the ZIP archive at path.
func OpenArchive(path string) (Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: open archive %s: %w", path, err)
	}
	return &zipArchive{reader: r}, nil
}

func (a *zipArchive) Len() int { return len(a.reader.File) }

// Next returns the raw bytes of the next member, or io.EOF once every
// member has been returned.
func (a *zipArchive) Next() ([]byte, error) {
	if a.index >= len(a.reader.File) {
		return nil, io.EOF
	}
	f := a.reader.File[a.index]
	a.index++

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("fetch: open archive member %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetch: read archive member %s: %w", f.Name, err)
	}
	return data, nil
}

func (a *zipArchive) Close() error { return a.reader.Close() }
