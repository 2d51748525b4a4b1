package fetcher

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const etagSuffix = ".etag"

// Localize returns a local path for src. Local paths are returned as-is.
// URLs are downloaded to cachePath; the ETag is kept next to it so an
// unchanged list is not downloaded again.
func Localize(ctx context.Context, f Fetcher, src, cachePath string) (string, error) {
	if !IsRemote(src) {
		return src, nil
	}
	log := zap.L().With(zap.String("url", src), zap.String("path", cachePath))

	var etag string
	if _, err := os.Stat(cachePath); err == nil {
		if data, err := os.ReadFile(cachePath + etagSuffix); err == nil {
			etag = strings.TrimSpace(string(data))
		}
	}

	body, newETag, changed, err := f.DownloadIfChanged(ctx, src, etag)
	if err != nil {
		return "", err
	}
	if !changed {
		log.Info("input unchanged, using cached copy", zap.String("etag", etag))
		return cachePath, nil
	}
	defer body.Close() //nolint:errcheck

	n, err := writeFile(cachePath, body)
	if err != nil {
		return "", err
	}

	if newETag != "" {
		if err := os.WriteFile(cachePath+etagSuffix, []byte(newETag), 0o644); err != nil {
			return "", eris.Wrap(err, "fetcher: write etag")
		}
	} else {
		_ = os.Remove(cachePath + etagSuffix)
	}

	log.Info("input downloaded", zap.Int64("bytes", n))
	return cachePath, nil
}
