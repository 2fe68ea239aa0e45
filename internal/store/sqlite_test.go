package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Connection ---

func TestNewSQLite_InvalidPath(t *testing.T) {
	_, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestNewSQLite_EnablesWAL(t *testing.T) {
	st := newTestSQLiteStore(t)

	var mode string
	require.NoError(t, st.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_CloseAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	id, err := st.StartSync(ctx, "acs", "2023")
	require.NoError(t, err)
	require.NoError(t, st.FinishSync(ctx, id, model.RunStatusComplete, 42, ""))
	require.NoError(t, st.Close())

	// Data written before the close survives a reopen.
	st2, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st2.Close() }) //nolint:errcheck

	rec, err := st2.LastSync(ctx, "acs")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, int64(42), rec.Rows)
}

// --- Migration ---

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// The helper already migrated once; a second pass must not fail.
	require.NoError(t, st.Migrate(ctx))

	_, err := st.CreateRun(ctx, "2023")
	require.NoError(t, err)
}

// --- Corrupt payloads ---

func TestSQLite_LoadMarkets_CorruptPayload(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "2023")
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx,
		`INSERT INTO markets (run_id, cbsa, rank, payload) VALUES (?, ?, ?, ?)`,
		run.ID, "41860", 1, "{not valid json",
	)
	require.NoError(t, err)

	_, err = st.LoadMarkets(ctx, run.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal market")
}

// --- checkRowsAffected ---

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

func TestCheckRowsAffected_Success(t *testing.T) {
	err := checkRowsAffected(fakeResult{rowsAffected: 1}, "run", "abc")
	assert.NoError(t, err)
}

func TestCheckRowsAffected_ZeroRows(t *testing.T) {
	err := checkRowsAffected(fakeResult{rowsAffected: 0}, "run", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: abc")
}

func TestCheckRowsAffected_Error(t *testing.T) {
	err := checkRowsAffected(fakeResult{err: errors.New("driver exploded")}, "run", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows affected")
}
