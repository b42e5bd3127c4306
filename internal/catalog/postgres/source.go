// Package postgres loads the category catalog from a PostgreSQL table.
//
// The table needs three text columns (id, name, icon) and an integer
// position column that fixes catalog order:
//
//	CREATE TABLE categories (
//	    id       TEXT PRIMARY KEY,
//	    name     TEXT NOT NULL,
//	    icon     TEXT NOT NULL DEFAULT '',
//	    position INT  NOT NULL
//	);
//
// The catalog is read once at startup; the pool is closed before Load
// returns. Runtime mutation of the table is invisible to a running engine.
package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okarinen/voicepick/internal/catalog"
)

// identPattern restricts the configurable table name to a plain identifier,
// since it is interpolated into the query text.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Load connects to the database at dsn, reads all category rows from table in
// position order, and returns the validated catalog.
func Load(ctx context.Context, dsn, table string) (*catalog.Catalog, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("catalog postgres: invalid table name %q", table)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog postgres: create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("catalog postgres: ping: %w", err)
	}

	query := fmt.Sprintf("SELECT id, name, icon FROM %s ORDER BY position, id", table)
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog postgres: query %s: %w", table, err)
	}
	defer rows.Close()

	var records []catalog.Record
	for rows.Next() {
		var r catalog.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Icon); err != nil {
			return nil, fmt.Errorf("catalog postgres: scan row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog postgres: iterate rows: %w", err)
	}

	return catalog.New(records)
}
