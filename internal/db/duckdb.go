// Package db mirrors loaded campus features into DuckDB for ad-hoc SQL.
// The mirror is read-side only: features are never loaded back from it.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/joeblew999/plat-campus/internal/features"
)

// Config holds database configuration.
type Config struct {
	DataDir    string   // empty for an in-memory database
	DBName     string
	Extensions []string // e.g. "spatial"; failures to load are ignored
}

// DB is a DuckDB connection holding the features mirror.
type DB struct {
	*sql.DB
	path string
}

// Result is the outcome of an ad-hoc query.
type Result struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

const schema = `CREATE TABLE IF NOT EXISTS features (
	layer      VARCHAR NOT NULL,
	id         VARCHAR NOT NULL,
	name       VARCHAR,
	category   VARCHAR,
	wkt        VARCHAR,
	properties VARCHAR
)`

// Open opens (creating if needed) the database and its features table.
func Open(cfg Config) (*DB, error) {
	path := ""
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "campus"
		}
		path = filepath.Join(dir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	for _, ext := range cfg.Extensions {
		// Extensions might be unavailable offline; the mirror works without them.
		_, _ = conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating features table: %w", err)
	}
	// Query runs client SQL, which must not reach files or the network.
	if _, err := conn.Exec("SET enable_external_access = false; SET lock_configuration = true;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("restricting duckdb access: %w", err)
	}
	return &DB{DB: conn, path: path}, nil
}

// Path returns the database file, or "" when in memory.
func (d *DB) Path() string { return d.path }

// Mirror replaces the rows of one layer with feats. Geometry is stored as
// WGS84 WKT and properties as JSON text.
func (d *DB) Mirror(ctx context.Context, layer string, feats []*features.Feature) (int, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM features WHERE layer = ?", layer); err != nil {
		return 0, fmt.Errorf("clearing layer %s: %w", layer, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO features (layer, id, name, category, wkt, properties) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, f := range feats {
		props, err := json.Marshal(f.Props.Map())
		if err != nil {
			return 0, fmt.Errorf("feature %s/%s: %w", layer, f.ID, err)
		}
		geom := wkt.MarshalString(f.GeoJSON().Geometry)
		if _, err := stmt.ExecContext(ctx, layer, f.ID, f.Name(), string(f.Category), geom, string(props)); err != nil {
			return 0, fmt.Errorf("feature %s/%s: %w", layer, f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(feats), nil
}

// Tables lists the tables of the database.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

// Query runs an ad-hoc statement and collects every row.
func (d *DB) Query(ctx context.Context, query string) (Result, error) {
	rows, err := d.QueryContext(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	res := Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	res.Count = len(res.Rows)
	return res, rows.Err()
}
