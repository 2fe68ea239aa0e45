package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS crosswalk_entries (
	year        INTEGER NOT NULL,
	county_fips TEXT NOT NULL,
	cbsa_code   TEXT NOT NULL,
	title       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	loaded_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (year, county_fips)
);

CREATE INDEX IF NOT EXISTS idx_crosswalk_cbsa ON crosswalk_entries(year, cbsa_code);

CREATE TABLE IF NOT EXISTS county_values (
	domain    TEXT NOT NULL,
	period    TEXT NOT NULL,
	fips      TEXT NOT NULL,
	field     TEXT NOT NULL,
	value     REAL NOT NULL,
	synced_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (domain, period, fips, field)
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id           TEXT PRIMARY KEY,
	period       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status_started ON analysis_runs(status, started_at DESC);

CREATE TABLE IF NOT EXISTS cbsa_values (
	run_id   TEXT NOT NULL REFERENCES analysis_runs(id),
	domain   TEXT NOT NULL,
	period   TEXT NOT NULL,
	cbsa     TEXT NOT NULL,
	field    TEXT NOT NULL,
	amount   REAL NOT NULL,
	status   TEXT NOT NULL,
	coverage REAL NOT NULL,
	PRIMARY KEY (run_id, domain, cbsa, field)
);

CREATE TABLE IF NOT EXISTS metric_series (
	run_id   TEXT NOT NULL REFERENCES analysis_runs(id),
	metric   TEXT NOT NULL,
	period   TEXT NOT NULL,
	cbsa     TEXT NOT NULL,
	amount   REAL NOT NULL,
	status   TEXT NOT NULL,
	coverage REAL NOT NULL,
	PRIMARY KEY (run_id, metric, cbsa)
);

CREATE TABLE IF NOT EXISTS rankings (
	run_id   TEXT NOT NULL REFERENCES analysis_runs(id),
	metric   TEXT NOT NULL,
	cbsa     TEXT NOT NULL,
	period   TEXT NOT NULL,
	rank     INTEGER,
	score    REAL NOT NULL,
	status   TEXT NOT NULL,
	coverage REAL NOT NULL,
	label    TEXT NOT NULL,
	PRIMARY KEY (run_id, metric, cbsa)
);

CREATE TABLE IF NOT EXISTS markets (
	run_id  TEXT NOT NULL REFERENCES analysis_runs(id),
	cbsa    TEXT NOT NULL,
	rank    INTEGER,
	payload TEXT NOT NULL,
	PRIMARY KEY (run_id, cbsa)
);

CREATE TABLE IF NOT EXISTS gap_entries (
	run_id TEXT NOT NULL REFERENCES analysis_runs(id),
	cbsa   TEXT NOT NULL,
	metric TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_gap_entries_run ON gap_entries(run_id);

CREATE TABLE IF NOT EXISTS sync_log (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	period      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	rows_synced INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sync_log_source ON sync_log(source, started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Crosswalk

func (s *SQLiteStore) SaveCrosswalk(ctx context.Context, year int, rows []crosswalk.Row) error {
	if year <= 0 {
		return eris.Errorf("sqlite: crosswalk year %d out of range", year)
	}
	if len(rows) == 0 {
		return eris.New("sqlite: crosswalk has no rows")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin crosswalk save")
	}
	defer tx.Rollback() //nolint:errcheck

	// Replace the vintage wholesale so delisted counties disappear.
	if _, err := tx.ExecContext(ctx, `DELETE FROM crosswalk_entries WHERE year = ?`, year); err != nil {
		return eris.Wrapf(err, "sqlite: clear crosswalk %d", year)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO crosswalk_entries (year, county_fips, cbsa_code, title, kind, loaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare crosswalk insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, year, r.CountyFIPS, r.CbsaCode, r.Title, string(r.Kind), now); err != nil {
			return eris.Wrapf(err, "sqlite: insert crosswalk county %s", r.CountyFIPS)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit crosswalk save")
}

func (s *SQLiteStore) LoadCrosswalk(ctx context.Context, year int) (*crosswalk.Store, error) {
	if year == 0 {
		var latest sql.NullInt64
		if err := s.db.QueryRowContext(ctx, `SELECT MAX(year) FROM crosswalk_entries`).Scan(&latest); err != nil {
			return nil, eris.Wrap(err, "sqlite: latest crosswalk year")
		}
		if !latest.Valid {
			return nil, nil
		}
		year = int(latest.Int64)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT county_fips, cbsa_code, title, kind FROM crosswalk_entries WHERE year = ? ORDER BY county_fips`,
		year,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load crosswalk %d", year)
	}
	defer rows.Close()

	b := crosswalk.NewBuilder()
	for rows.Next() {
		var r crosswalk.Row
		var kind string
		if err := rows.Scan(&r.CountyFIPS, &r.CbsaCode, &r.Title, &kind); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan crosswalk row")
		}
		r.Kind = crosswalk.Kind(kind)
		b.Add(r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: load crosswalk %d iterate", year)
	}
	if b.Len() == 0 {
		return nil, nil
	}

	cw, err := b.Build()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: rebuild crosswalk %d", year)
	}
	return cw, nil
}

func (s *SQLiteStore) ListCrosswalks(ctx context.Context) ([]CrosswalkInfo, error) {
	// A vintage is written in one transaction, so loaded_at is uniform
	// within a year and the bare column is equivalent to MAX(loaded_at).
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, COUNT(*), COUNT(DISTINCT cbsa_code), loaded_at
		 FROM crosswalk_entries GROUP BY year ORDER BY year DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list crosswalks")
	}
	defer rows.Close()

	var infos []CrosswalkInfo
	for rows.Next() {
		var info CrosswalkInfo
		if err := rows.Scan(&info.Year, &info.Counties, &info.Cbsas, &info.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan crosswalk info")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "sqlite: list crosswalks iterate")
}

// County tables

func (s *SQLiteStore) SaveCountyTable(ctx context.Context, tbl *model.CountyTable) error {
	if tbl == nil || len(tbl.Records) == 0 {
		return eris.New("sqlite: county table has no records")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin county save")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO county_values (domain, period, fips, field, value, synced_at) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare county upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, rec := range tbl.Records {
		for field, value := range rec.Fields {
			if _, err := stmt.ExecContext(ctx, tbl.Domain, tbl.Period, rec.FIPS, field, value, now); err != nil {
				return eris.Wrapf(err, "sqlite: upsert county value %s/%s", rec.FIPS, field)
			}
		}
	}

	return eris.Wrapf(tx.Commit(), "sqlite: commit county table %s/%s", tbl.Domain, tbl.Period)
}

func (s *SQLiteStore) LoadCountyTable(ctx context.Context, domain, period string) (*model.CountyTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fips, field, value FROM county_values
		 WHERE domain = ? AND period = ? ORDER BY fips, field`,
		domain, period,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load county table %s/%s", domain, period)
	}
	defer rows.Close()

	tbl := &model.CountyTable{Domain: domain, Period: period}
	index := make(map[string]int)
	for rows.Next() {
		var fips, field string
		var value float64
		if err := rows.Scan(&fips, &field, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan county value")
		}
		i, ok := index[fips]
		if !ok {
			i = len(tbl.Records)
			index[fips] = i
			tbl.Records = append(tbl.Records, model.CountyRecord{
				FIPS:   fips,
				Period: period,
				Fields: make(map[string]float64),
			})
		}
		tbl.Records[i].Fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: load county table %s/%s iterate", domain, period)
	}
	if len(tbl.Records) == 0 {
		return nil, nil
	}
	return tbl, nil
}

func (s *SQLiteStore) ListDomains(ctx context.Context) ([]DomainInfo, error) {
	// synced_at is rewritten for every row on each save, so the bare
	// column is uniform within a (domain, period) group.
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, period, COUNT(DISTINCT fips), COUNT(DISTINCT field), synced_at
		 FROM county_values GROUP BY domain, period ORDER BY domain, period DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list domains")
	}
	defer rows.Close()

	var infos []DomainInfo
	for rows.Next() {
		var info DomainInfo
		if err := rows.Scan(&info.Domain, &info.Period, &info.Counties, &info.Fields, &info.SyncedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain info")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "sqlite: list domains iterate")
}

// Analysis runs

func (s *SQLiteStore) CreateRun(ctx context.Context, period string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, period, status, started_at) VALUES (?, ?, ?, ?)`,
		id, period, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Period:    period,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) LatestRun(ctx context.Context, status model.RunStatus) (*model.Run, error) {
	query := `SELECT id, period, status, error, started_at, completed_at FROM analysis_runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	var r model.Run
	var errStr sql.NullString
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&r.ID, &r.Period, &r.Status, &errStr, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	if errStr.Valid {
		r.Error = errStr.String
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, period, status, error, started_at, completed_at
		 FROM analysis_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errStr sql.NullString
		if err := rows.Scan(&r.ID, &r.Period, &r.Status, &errStr, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if errStr.Valid {
			r.Error = errStr.String
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// Derived tables

func (s *SQLiteStore) SaveCbsaTable(ctx context.Context, runID string, tbl *model.CbsaTable) error {
	return s.insertBatch(ctx, "sqlite: save cbsa table",
		`INSERT INTO cbsa_values (run_id, domain, period, cbsa, field, amount, status, coverage) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		func(add func(args ...any) error) error {
			for _, code := range tbl.Codes() {
				rec := tbl.Rows[code]
				for field, v := range rec.Fields {
					if err := add(runID, tbl.Domain, tbl.Period, code, field, v.Amount, string(v.Status), v.Coverage); err != nil {
						return err
					}
				}
			}
			return nil
		})
}

func (s *SQLiteStore) LoadCbsaTable(ctx context.Context, runID, domain string) (*model.CbsaTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, cbsa, field, amount, status, coverage FROM cbsa_values
		 WHERE run_id = ? AND domain = ? ORDER BY cbsa, field`,
		runID, domain,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load cbsa table %s", domain)
	}
	defer rows.Close()

	var tbl *model.CbsaTable
	for rows.Next() {
		var period, cbsa, field string
		var v model.Value
		if err := rows.Scan(&period, &cbsa, &field, &v.Amount, &v.Status, &v.Coverage); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cbsa value")
		}
		if tbl == nil {
			tbl = model.NewCbsaTable(domain, period)
		}
		tbl.Row(cbsa).Set(field, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: load cbsa table %s iterate", domain)
	}
	return tbl, nil
}

func (s *SQLiteStore) SaveSeries(ctx context.Context, runID string, series []*metrics.Series) error {
	return s.insertBatch(ctx, "sqlite: save series",
		`INSERT INTO metric_series (run_id, metric, period, cbsa, amount, status, coverage) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		func(add func(args ...any) error) error {
			for _, sr := range series {
				if sr == nil {
					continue
				}
				for _, cbsa := range sr.Codes() {
					v := sr.Points[cbsa]
					if err := add(runID, sr.Name, sr.Period, cbsa, v.Amount, string(v.Status), v.Coverage); err != nil {
						return err
					}
				}
			}
			return nil
		})
}

func (s *SQLiteStore) LoadSeries(ctx context.Context, runID, metric string) (*metrics.Series, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, cbsa, amount, status, coverage FROM metric_series
		 WHERE run_id = ? AND metric = ? ORDER BY cbsa`,
		runID, metric,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load series %s", metric)
	}
	defer rows.Close()

	var sr *metrics.Series
	for rows.Next() {
		var period, cbsa string
		var v model.Value
		if err := rows.Scan(&period, &cbsa, &v.Amount, &v.Status, &v.Coverage); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan series point")
		}
		if sr == nil {
			sr = metrics.NewSeries(metric, period)
		}
		sr.Set(cbsa, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: load series %s iterate", metric)
	}
	return sr, nil
}

func (s *SQLiteStore) SaveRanking(ctx context.Context, runID string, r metrics.Ranking) error {
	return s.insertBatch(ctx, "sqlite: save ranking",
		`INSERT INTO rankings (run_id, metric, cbsa, period, rank, score, status, coverage, label) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(add func(args ...any) error) error {
			for _, e := range r.Entries {
				if err := add(runID, r.Metric, e.CBSA, r.Period, e.Rank, e.Score, string(e.Status), e.Coverage, e.Label); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *SQLiteStore) LoadRanking(ctx context.Context, runID, metric string) (*metrics.Ranking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cbsa, period, rank, score, status, coverage, label FROM rankings
		 WHERE run_id = ? AND metric = ? ORDER BY rank IS NULL, rank, cbsa`,
		runID, metric,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load ranking %s", metric)
	}
	defer rows.Close()

	var ranking *metrics.Ranking
	for rows.Next() {
		var e metrics.RankedEntry
		var period string
		if err := rows.Scan(&e.CBSA, &period, &e.Rank, &e.Score, &e.Status, &e.Coverage, &e.Label); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ranking entry")
		}
		if ranking == nil {
			ranking = &metrics.Ranking{Metric: metric, Period: period}
		}
		ranking.Entries = append(ranking.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: load ranking %s iterate", metric)
	}
	return ranking, nil
}

func (s *SQLiteStore) SaveMarkets(ctx context.Context, runID string, markets []market.Market) error {
	return s.insertBatch(ctx, "sqlite: save markets",
		`INSERT INTO markets (run_id, cbsa, rank, payload) VALUES (?, ?, ?, ?)`,
		func(add func(args ...any) error) error {
			for _, m := range markets {
				payload, err := json.Marshal(m)
				if err != nil {
					return eris.Wrapf(err, "sqlite: marshal market %s", m.CBSA)
				}
				if err := add(runID, m.CBSA, m.Rank, string(payload)); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *SQLiteStore) LoadMarkets(ctx context.Context, runID string) ([]market.Market, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM markets WHERE run_id = ? ORDER BY rank IS NULL, rank, cbsa`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load markets")
	}
	defer rows.Close()

	var markets []market.Market
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan market payload")
		}
		var m market.Market
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal market")
		}
		markets = append(markets, m)
	}
	return markets, eris.Wrap(rows.Err(), "sqlite: load markets iterate")
}

func (s *SQLiteStore) SaveGapEntries(ctx context.Context, runID string, entries []gaps.Entry) error {
	return s.insertBatch(ctx, "sqlite: save gap entries",
		`INSERT INTO gap_entries (run_id, cbsa, metric, status, reason) VALUES (?, ?, ?, ?, ?)`,
		func(add func(args ...any) error) error {
			for _, e := range entries {
				if err := add(runID, e.CBSA, e.Metric, string(e.Status), e.Reason); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *SQLiteStore) LoadGapEntries(ctx context.Context, runID string) ([]gaps.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cbsa, metric, status, reason FROM gap_entries
		 WHERE run_id = ? ORDER BY metric, cbsa`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load gap entries")
	}
	defer rows.Close()

	var entries []gaps.Entry
	for rows.Next() {
		var e gaps.Entry
		if err := rows.Scan(&e.CBSA, &e.Metric, &e.Status, &e.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gap entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: load gap entries iterate")
}

// Sync log

func (s *SQLiteStore) StartSync(ctx context.Context, source, period string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, source, period, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, period, string(model.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start sync for %s", source)
	}
	return id, nil
}

func (s *SQLiteStore) FinishSync(ctx context.Context, syncID string, status model.RunStatus, rows int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, rows_synced = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), rows, errMsg, time.Now().UTC(), syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish sync %s", syncID)
	}
	return checkRowsAffected(res, "sync", syncID)
}

func (s *SQLiteStore) LastSync(ctx context.Context, source string) (*model.SyncRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, period, status, rows_synced, error, started_at, finished_at
		 FROM sync_log WHERE source = ? AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	)
	rec, err := scanSyncRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: last sync for %s", source)
	}
	return rec, nil
}

func (s *SQLiteStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, period, status, rows_synced, error, started_at, finished_at
		 FROM sync_log ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close()

	var recs []model.SyncRecord
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list syncs iterate")
}

// helpers

// insertBatch runs one prepared insert for every row the fill callback
// adds, inside a single transaction.
func (s *SQLiteStore) insertBatch(ctx context.Context, op, query string, fill func(add func(args ...any) error) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: begin", op)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "%s: prepare", op)
	}
	defer stmt.Close() //nolint:errcheck

	inserted := false
	add := func(args ...any) error {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "%s: insert", op)
		}
		inserted = true
		return nil
	}
	if err := fill(add); err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	return eris.Wrapf(tx.Commit(), "%s: commit", op)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSyncRecord(row scannable) (*model.SyncRecord, error) {
	var rec model.SyncRecord
	var errStr sql.NullString
	err := row.Scan(&rec.ID, &rec.Source, &rec.Period, &rec.Status, &rec.Rows, &errStr, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		return nil, err
	}
	if errStr.Valid {
		rec.Error = errStr.String
	}
	return &rec, nil
}
