// Package fetcher downloads remote stable lists and portal pages.
package fetcher

import (
	"context"
	"io"
	"strings"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download returns the body of url. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged sends etag as If-None-Match. When the server
	// reports no change, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}

// IsRemote reports whether src is an http or https URL.
func IsRemote(src string) bool {
	lower := strings.ToLower(strings.TrimSpace(src))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
