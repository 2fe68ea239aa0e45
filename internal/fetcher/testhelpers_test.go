package fetcher

import (
	"archive/zip"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// failingReader serves its data up to failAt bytes, then fails with failErr.
type failingReader struct {
	data    string
	pos     int
	failAt  int
	failErr error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos >= r.failAt {
		return 0, r.failErr
	}
	limit := r.failAt
	if limit > len(r.data) {
		limit = len(r.data)
	}
	n := copy(p, r.data[r.pos:limit])
	r.pos += n
	if n == 0 {
		return 0, r.failErr
	}
	return n, nil
}

// buildZip writes a zip archive containing the given name -> content entries.
func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
