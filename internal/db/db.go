package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"transit-sim/internal/transit"
)

// Dialect selects the SQL flavour used for introspection and placeholders.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) driver() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// Store is a stop source backed by a GTFS `stops` table.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

func Open(d Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.driver(), dsn)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		// a single writer keeps modernc from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db, Dialect: d}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.DB.PingContext(ctx)
}

// FetchStops loads every stop with a position. Both the plain GTFS layout
// (stop_lat/stop_lon) and the PostGIS importer layout (stop_loc geography)
// are supported.
func (s *Store) FetchStops(ctx context.Context) ([]transit.StopRecord, error) {
	cols, err := s.hasColumns(ctx, "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	switch {
	case cols["stop_lat"] && cols["stop_lon"]:
		q = `SELECT stop_id, COALESCE(stop_name, ''), stop_lat, stop_lon
             FROM stops
             WHERE stop_lat IS NOT NULL AND stop_lon IS NOT NULL
             ORDER BY stop_id`
	case cols["stop_loc"] && s.Dialect == Postgres:
		q = `SELECT stop_id, COALESCE(stop_name, ''),
                    ST_Y(stop_loc::geometry) AS lat,
                    ST_X(stop_loc::geometry) AS lon
             FROM stops
             WHERE stop_loc IS NOT NULL
             ORDER BY stop_id`
	default:
		return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()

	var out []transit.StopRecord
	for rows.Next() {
		var r transit.StopRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Lat, &r.Lon); err != nil {
			return nil, err
		}
		if r.Name == "" {
			r.Name = string(r.ID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveStops creates the stops table if needed and upserts records into it.
// Only the SQLite store is writable; Postgres data comes from the importer.
func (s *Store) SaveStops(ctx context.Context, records []transit.StopRecord) error {
	if s.Dialect != SQLite {
		return fmt.Errorf("save stops: read-only dialect")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS stops (
        stop_id   TEXT PRIMARY KEY,
        stop_name TEXT,
        stop_lat  REAL NOT NULL,
        stop_lon  REAL NOT NULL
    )`); err != nil {
		return fmt.Errorf("create stops: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(stop_id) DO UPDATE SET stop_name = excluded.stop_name,
            stop_lat = excluded.stop_lat, stop_lon = excluded.stop_lon`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, string(r.ID), r.Name, r.Lat, r.Lon); err != nil {
			return fmt.Errorf("insert stop %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// hasColumns returns a map of requested column names to existence for the given table.
func (s *Store) hasColumns(ctx context.Context, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	for _, c := range cols {
		res[c] = false
	}
	if len(cols) == 0 {
		return res, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	if s.Dialect == SQLite {
		rows, err = s.DB.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT column_name FROM information_schema.columns
          WHERE table_schema = 'public' AND table_name = $1 AND column_name = ANY($2)`, table, cols)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if _, ok := res[name]; ok {
			res[name] = true
		}
	}
	return res, rows.Err()
}
