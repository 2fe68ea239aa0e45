// Package fetcher downloads and decodes the bulk files the sync engine
// consumes: rate-limited HTTP with retry for the agency download hosts,
// anonymous FTP for the Census mirror, zip extraction, and CSV/XLSX readers
// that tolerate the encodings and layout quirks of statistical exports.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote files. HTTPFetcher and FTPFetcher both satisfy
// it; sources take the interface so tests can substitute fixtures.
type Fetcher interface {
	// Download fetches the URL and returns the response body. The caller
	// owns the ReadCloser.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and reports bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
