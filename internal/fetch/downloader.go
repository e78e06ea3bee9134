package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	billy "github.com/go-git/go-billy/v5"
)

// Downloader fetches a remote archive into a billy.File.
type Downloader interface {
	Download(ctx context.Context, url string, dest billy.File) error
}

// httpDownloader is the default Downloader, backed by net/http.
type httpDownloader struct {
	client *http.Client
}

// NewHTTPDownloader returns a Downloader using client, or
// http.DefaultClient if client is nil.
func NewHTTPDownloader(client *http.Client) Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpDownloader{client: client}
}

func (d *httpDownloader) Download(ctx context.Context, url string, dest billy.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fetch: build request for %s: %w", url, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch: download %s: unexpected status %s", url, resp.Status)
	}

	if _, err := io.Copy(dest, resp.Body); err != nil {
		return fmt.Errorf("fetch: write archive from %s: %w", url, err)
	}
	return nil
}
