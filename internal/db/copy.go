// Package db provides the shared pgx helpers the Postgres store is built
// on: a mockable pool interface, COPY-protocol bulk inserts, and batched
// upserts for the staging tables.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table over the COPY protocol. The
// run-scoped derived tables (CBSA values, series, rankings, markets, gap
// entries) are append-only, so COPY needs no conflict handling there.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}
