package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/db"
	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"latest_run":   `SELECT id, period, status, error, started_at, completed_at FROM analysis_runs WHERE status = $1 ORDER BY started_at DESC LIMIT 1`,
	"last_sync":    `SELECT id, source, period, status, rows_synced, error, started_at, finished_at FROM sync_log WHERE source = $1 AND status = 'complete' ORDER BY started_at DESC LIMIT 1`,
	"load_markets": `SELECT payload FROM markets WHERE run_id = $1 ORDER BY rank NULLS LAST, cbsa`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS crosswalk_entries (
	year        INTEGER NOT NULL,
	county_fips TEXT NOT NULL,
	cbsa_code   TEXT NOT NULL,
	title       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	loaded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (year, county_fips)
);

CREATE INDEX IF NOT EXISTS idx_crosswalk_cbsa ON crosswalk_entries(year, cbsa_code);

CREATE TABLE IF NOT EXISTS county_values (
	domain    TEXT NOT NULL,
	period    TEXT NOT NULL,
	fips      TEXT NOT NULL,
	field     TEXT NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	synced_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (domain, period, fips, field)
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id           TEXT PRIMARY KEY,
	period       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_status_started ON analysis_runs(status, started_at DESC);

CREATE TABLE IF NOT EXISTS cbsa_values (
	run_id   TEXT NOT NULL REFERENCES analysis_runs(id),
	domain   TEXT NOT NULL,
	period   TEXT NOT NULL,
	cbsa     TEXT NOT NULL,
	field    TEXT NOT NULL,
	amount   DOUBLE PRECISION NOT NULL,
	status   TEXT NOT NULL,
	coverage DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, domain, cbsa, field)
);

CREATE TABLE IF NOT EXISTS metric_series (
	run_id   TEXT NOT NULL REFERENCES analysis_runs(id),
	metric   TEXT NOT NULL,
	period   TEXT NOT NULL,
	cbsa     TEXT NOT NULL,
	amount   DOUBLE PRECISION NOT NULL,
	status   TEXT NOT NULL,
	coverage DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, metric, cbsa)
);

CREATE TABLE IF NOT EXISTS rankings (
	run_id   TEXT NOT NULL REFERENCES analysis_runs(id),
	metric   TEXT NOT NULL,
	cbsa     TEXT NOT NULL,
	period   TEXT NOT NULL,
	rank     INTEGER,
	score    DOUBLE PRECISION NOT NULL,
	status   TEXT NOT NULL,
	coverage DOUBLE PRECISION NOT NULL,
	label    TEXT NOT NULL,
	PRIMARY KEY (run_id, metric, cbsa)
);

CREATE TABLE IF NOT EXISTS markets (
	run_id  TEXT NOT NULL REFERENCES analysis_runs(id),
	cbsa    TEXT NOT NULL,
	rank    INTEGER,
	payload JSONB NOT NULL,
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
	rows_synced BIGINT NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sync_log_source ON sync_log(source, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	// Advisory lock prevents concurrent migration runs (e.g. overlapping deploys).
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock(7215001)"); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock(7215001)"); err != nil {
			log.Warn("failed to release migration advisory lock", zap.Error(err))
		}
	}()

	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Crosswalk

func (s *PostgresStore) SaveCrosswalk(ctx context.Context, year int, rows []crosswalk.Row) error {
	if year <= 0 {
		return eris.Errorf("postgres: crosswalk year %d out of range", year)
	}
	if len(rows) == 0 {
		return eris.New("postgres: crosswalk has no rows")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin crosswalk save")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Replace the vintage wholesale so delisted counties disappear.
	if _, err := tx.Exec(ctx, `DELETE FROM crosswalk_entries WHERE year = $1`, year); err != nil {
		return eris.Wrapf(err, "postgres: clear crosswalk %d", year)
	}

	now := time.Now().UTC()
	src := make([][]any, len(rows))
	for i, r := range rows {
		src[i] = []any{year, r.CountyFIPS, r.CbsaCode, r.Title, string(r.Kind), now}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"crosswalk_entries"},
		[]string{"year", "county_fips", "cbsa_code", "title", "kind", "loaded_at"},
		pgx.CopyFromRows(src),
	); err != nil {
		return eris.Wrapf(err, "postgres: copy crosswalk %d", year)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit crosswalk save")
}

func (s *PostgresStore) LoadCrosswalk(ctx context.Context, year int) (*crosswalk.Store, error) {
	if year == 0 {
		var latest *int
		if err := s.pool.QueryRow(ctx, `SELECT MAX(year) FROM crosswalk_entries`).Scan(&latest); err != nil {
			return nil, eris.Wrap(err, "postgres: latest crosswalk year")
		}
		if latest == nil {
			return nil, nil
		}
		year = *latest
	}

	rows, err := s.pool.Query(ctx,
		`SELECT county_fips, cbsa_code, title, kind FROM crosswalk_entries WHERE year = $1 ORDER BY county_fips`,
		year,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load crosswalk %d", year)
	}
	defer rows.Close()

	b := crosswalk.NewBuilder()
	for rows.Next() {
		var r crosswalk.Row
		var kind string
		if err := rows.Scan(&r.CountyFIPS, &r.CbsaCode, &r.Title, &kind); err != nil {
			return nil, eris.Wrap(err, "postgres: scan crosswalk row")
		}
		r.Kind = crosswalk.Kind(kind)
		b.Add(r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: load crosswalk %d iterate", year)
	}
	if b.Len() == 0 {
		return nil, nil
	}

	cw, err := b.Build()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: rebuild crosswalk %d", year)
	}
	return cw, nil
}

func (s *PostgresStore) ListCrosswalks(ctx context.Context) ([]CrosswalkInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT year, COUNT(*), COUNT(DISTINCT cbsa_code), MAX(loaded_at)
		 FROM crosswalk_entries GROUP BY year ORDER BY year DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list crosswalks")
	}
	defer rows.Close()

	var infos []CrosswalkInfo
	for rows.Next() {
		var info CrosswalkInfo
		if err := rows.Scan(&info.Year, &info.Counties, &info.Cbsas, &info.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan crosswalk info")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "postgres: list crosswalks iterate")
}

// County tables

func (s *PostgresStore) SaveCountyTable(ctx context.Context, tbl *model.CountyTable) error {
	if tbl == nil || len(tbl.Records) == 0 {
		return eris.New("postgres: county table has no records")
	}

	now := time.Now().UTC()
	var rows [][]any
	for _, rec := range tbl.Records {
		for field, value := range rec.Fields {
			rows = append(rows, []any{tbl.Domain, tbl.Period, rec.FIPS, field, value, now})
		}
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "county_values",
		Columns:      []string{"domain", "period", "fips", "field", "value", "synced_at"},
		ConflictKeys: []string{"domain", "period", "fips", "field"},
	}, rows)
	return eris.Wrapf(err, "postgres: save county table %s/%s", tbl.Domain, tbl.Period)
}

func (s *PostgresStore) LoadCountyTable(ctx context.Context, domain, period string) (*model.CountyTable, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fips, field, value FROM county_values
		 WHERE domain = $1 AND period = $2 ORDER BY fips, field`,
		domain, period,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load county table %s/%s", domain, period)
	}
	defer rows.Close()

	tbl := &model.CountyTable{Domain: domain, Period: period}
	index := make(map[string]int)
	for rows.Next() {
		var fips, field string
		var value float64
		if err := rows.Scan(&fips, &field, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan county value")
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
		return nil, eris.Wrapf(err, "postgres: load county table %s/%s iterate", domain, period)
	}
	if len(tbl.Records) == 0 {
		return nil, nil
	}
	return tbl, nil
}

func (s *PostgresStore) ListDomains(ctx context.Context) ([]DomainInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, period, COUNT(DISTINCT fips), COUNT(DISTINCT field), MAX(synced_at)
		 FROM county_values GROUP BY domain, period ORDER BY domain, period DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list domains")
	}
	defer rows.Close()

	var infos []DomainInfo
	for rows.Next() {
		var info DomainInfo
		if err := rows.Scan(&info.Domain, &info.Period, &info.Counties, &info.Fields, &info.SyncedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain info")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "postgres: list domains iterate")
}

// Analysis runs

func (s *PostgresStore) CreateRun(ctx context.Context, period string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, period, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, period, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Period:    period,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) LatestRun(ctx context.Context, status model.RunStatus) (*model.Run, error) {
	query := `SELECT id, period, status, error, started_at, completed_at FROM analysis_runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	var r model.Run
	var errStr *string
	err := s.pool.QueryRow(ctx, query, args...).
		Scan(&r.ID, &r.Period, &r.Status, &errStr, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	if errStr != nil {
		r.Error = *errStr
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, period, status, error, started_at, completed_at
		 FROM analysis_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errStr *string
		if err := rows.Scan(&r.ID, &r.Period, &r.Status, &errStr, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errStr != nil {
			r.Error = *errStr
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// Derived tables

func (s *PostgresStore) SaveCbsaTable(ctx context.Context, runID string, tbl *model.CbsaTable) error {
	var rows [][]any
	for _, code := range tbl.Codes() {
		rec := tbl.Rows[code]
		for field, v := range rec.Fields {
			rows = append(rows, []any{runID, tbl.Domain, tbl.Period, code, field, v.Amount, string(v.Status), v.Coverage})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := db.CopyFrom(ctx, s.pool, "cbsa_values",
		[]string{"run_id", "domain", "period", "cbsa", "field", "amount", "status", "coverage"},
		rows,
	)
	return eris.Wrapf(err, "postgres: save cbsa table %s/%s", tbl.Domain, tbl.Period)
}

func (s *PostgresStore) LoadCbsaTable(ctx context.Context, runID, domain string) (*model.CbsaTable, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT period, cbsa, field, amount, status, coverage FROM cbsa_values
		 WHERE run_id = $1 AND domain = $2 ORDER BY cbsa, field`,
		runID, domain,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load cbsa table %s", domain)
	}
	defer rows.Close()

	var tbl *model.CbsaTable
	for rows.Next() {
		var period, cbsa, field string
		var v model.Value
		if err := rows.Scan(&period, &cbsa, &field, &v.Amount, &v.Status, &v.Coverage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cbsa value")
		}
		if tbl == nil {
			tbl = model.NewCbsaTable(domain, period)
		}
		tbl.Row(cbsa).Set(field, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: load cbsa table %s iterate", domain)
	}
	return tbl, nil
}

func (s *PostgresStore) SaveSeries(ctx context.Context, runID string, series []*metrics.Series) error {
	var rows [][]any
	for _, sr := range series {
		if sr == nil {
			continue
		}
		for _, cbsa := range sr.Codes() {
			v := sr.Points[cbsa]
			rows = append(rows, []any{runID, sr.Name, sr.Period, cbsa, v.Amount, string(v.Status), v.Coverage})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := db.CopyFrom(ctx, s.pool, "metric_series",
		[]string{"run_id", "metric", "period", "cbsa", "amount", "status", "coverage"},
		rows,
	)
	return eris.Wrap(err, "postgres: save series")
}

func (s *PostgresStore) LoadSeries(ctx context.Context, runID, metric string) (*metrics.Series, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT period, cbsa, amount, status, coverage FROM metric_series
		 WHERE run_id = $1 AND metric = $2 ORDER BY cbsa`,
		runID, metric,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load series %s", metric)
	}
	defer rows.Close()

	var sr *metrics.Series
	for rows.Next() {
		var period, cbsa string
		var v model.Value
		if err := rows.Scan(&period, &cbsa, &v.Amount, &v.Status, &v.Coverage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan series point")
		}
		if sr == nil {
			sr = metrics.NewSeries(metric, period)
		}
		sr.Set(cbsa, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: load series %s iterate", metric)
	}
	return sr, nil
}

func (s *PostgresStore) SaveRanking(ctx context.Context, runID string, r metrics.Ranking) error {
	rows := make([][]any, 0, len(r.Entries))
	for _, e := range r.Entries {
		rows = append(rows, []any{runID, r.Metric, e.CBSA, r.Period, e.Rank, e.Score, string(e.Status), e.Coverage, e.Label})
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := db.CopyFrom(ctx, s.pool, "rankings",
		[]string{"run_id", "metric", "cbsa", "period", "rank", "score", "status", "coverage", "label"},
		rows,
	)
	return eris.Wrapf(err, "postgres: save ranking %s", r.Metric)
}

func (s *PostgresStore) LoadRanking(ctx context.Context, runID, metric string) (*metrics.Ranking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cbsa, period, rank, score, status, coverage, label FROM rankings
		 WHERE run_id = $1 AND metric = $2 ORDER BY rank NULLS LAST, cbsa`,
		runID, metric,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load ranking %s", metric)
	}
	defer rows.Close()

	var ranking *metrics.Ranking
	for rows.Next() {
		var e metrics.RankedEntry
		var period string
		if err := rows.Scan(&e.CBSA, &period, &e.Rank, &e.Score, &e.Status, &e.Coverage, &e.Label); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ranking entry")
		}
		if ranking == nil {
			ranking = &metrics.Ranking{Metric: metric, Period: period}
		}
		ranking.Entries = append(ranking.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: load ranking %s iterate", metric)
	}
	return ranking, nil
}

func (s *PostgresStore) SaveMarkets(ctx context.Context, runID string, markets []market.Market) error {
	rows := make([][]any, 0, len(markets))
	for _, m := range markets {
		payload, err := json.Marshal(m)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal market %s", m.CBSA)
		}
		rows = append(rows, []any{runID, m.CBSA, m.Rank, payload})
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := db.CopyFrom(ctx, s.pool, "markets",
		[]string{"run_id", "cbsa", "rank", "payload"},
		rows,
	)
	return eris.Wrap(err, "postgres: save markets")
}

func (s *PostgresStore) LoadMarkets(ctx context.Context, runID string) ([]market.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM markets WHERE run_id = $1 ORDER BY rank NULLS LAST, cbsa`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load markets")
	}
	defer rows.Close()

	var markets []market.Market
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan market payload")
		}
		var m market.Market
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal market")
		}
		markets = append(markets, m)
	}
	return markets, eris.Wrap(rows.Err(), "postgres: load markets iterate")
}

func (s *PostgresStore) SaveGapEntries(ctx context.Context, runID string, entries []gaps.Entry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{runID, e.CBSA, e.Metric, string(e.Status), e.Reason})
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := db.CopyFrom(ctx, s.pool, "gap_entries",
		[]string{"run_id", "cbsa", "metric", "status", "reason"},
		rows,
	)
	return eris.Wrap(err, "postgres: save gap entries")
}

func (s *PostgresStore) LoadGapEntries(ctx context.Context, runID string) ([]gaps.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cbsa, metric, status, reason FROM gap_entries
		 WHERE run_id = $1 ORDER BY metric, cbsa`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load gap entries")
	}
	defer rows.Close()

	var entries []gaps.Entry
	for rows.Next() {
		var e gaps.Entry
		if err := rows.Scan(&e.CBSA, &e.Metric, &e.Status, &e.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gap entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: load gap entries iterate")
}

// Sync log

func (s *PostgresStore) StartSync(ctx context.Context, source, period string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_log (id, source, period, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, source, period, string(model.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: start sync for %s", source)
	}
	return id, nil
}

func (s *PostgresStore) FinishSync(ctx context.Context, syncID string, status model.RunStatus, rows int64, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = $1, rows_synced = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), rows, errMsg, time.Now().UTC(), syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish sync %s", syncID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync not found: %s", syncID)
	}
	return nil
}

func (s *PostgresStore) LastSync(ctx context.Context, source string) (*model.SyncRecord, error) {
	var rec model.SyncRecord
	var errStr *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, period, status, rows_synced, error, started_at, finished_at
		 FROM sync_log WHERE source = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	).Scan(&rec.ID, &rec.Source, &rec.Period, &rec.Status, &rec.Rows, &errStr, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: last sync for %s", source)
	}
	if errStr != nil {
		rec.Error = *errStr
	}
	return &rec, nil
}

func (s *PostgresStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, period, status, rows_synced, error, started_at, finished_at
		 FROM sync_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var recs []model.SyncRecord
	for rows.Next() {
		var rec model.SyncRecord
		var errStr *string
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Period, &rec.Status, &rec.Rows, &errStr, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync record")
		}
		if errStr != nil {
			rec.Error = *errStr
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list syncs iterate")
}
