package source

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// fakeFetcher serves canned fixture files keyed by URL substring. URLs
// matching no fixture get a 404-shaped error, which the year-probing
// sources treat as a missing vintage.
type fakeFetcher struct {
	files map[string]string // URL substring -> fixture path
	calls []string
}

func (f *fakeFetcher) lookup(url string) (string, bool) {
	for sub, path := range f.files {
		if strings.Contains(url, sub) {
			return path, true
		}
	}
	return "", false
}

func (f *fakeFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	path, ok := f.lookup(url)
	if !ok {
		return nil, fmt.Errorf("download: unexpected status 404 from %s", url)
	}
	return os.Open(path)
}

func (f *fakeFetcher) DownloadToFile(_ context.Context, url, dest string) (int64, error) {
	f.calls = append(f.calls, url)
	path, ok := f.lookup(url)
	if !ok {
		return 0, fmt.Errorf("download: unexpected status 404 from %s", url)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

var _ fetcher.Fetcher = (*fakeFetcher)(nil)

// createTestZip writes a ZIP holding the given files (name -> raw bytes)
// and returns its path.
func createTestZip(t *testing.T, dir, zipName string, files map[string][]byte) string {
	t.Helper()
	zipPath := filepath.Join(dir, zipName)
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(zf)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, zf.Close())
	return zipPath
}

// fakeSource implements Source for registry and engine tests.
type fakeSource struct {
	name      string
	domain    string
	policy    rollup.DomainPolicy
	shouldRun bool
	syncErr   error
	syncRows  int64

	synced      bool
	gotFull     bool
	gotLastSync *time.Time
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Domain() string {
	if f.domain == "" {
		return f.name
	}
	return f.domain
}

func (f *fakeSource) Cadence() Cadence { return Annual }

func (f *fakeSource) ShouldRun(_ time.Time, lastSync *time.Time) bool {
	f.gotLastSync = lastSync
	return f.shouldRun
}

func (f *fakeSource) Policy() rollup.DomainPolicy { return f.policy }

func (f *fakeSource) Sync(_ context.Context, _ store.Store, _ fetcher.Fetcher, _ string, full bool) (*SyncResult, error) {
	f.synced = true
	f.gotFull = full
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &SyncResult{RowsSynced: f.syncRows}, nil
}
