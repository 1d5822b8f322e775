// Package warehouse wraps the DuckDB analytical store.
//
// It owns the single database handle for a run, applies the configured
// resource settings, and provides the catalog probes (Exists, RowCount)
// that the tracker and materializers rely on. All writes are
// create-or-replace on named relations; callers are responsible for
// ordering, not locking.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/seismolab/quakemart/internal/catalog"
	"github.com/seismolab/quakemart/internal/config"
	qerrors "github.com/seismolab/quakemart/internal/errors"
	"github.com/seismolab/quakemart/internal/logging"
)

// Store is a handle to the analytical store.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// Open opens (or creates) the DuckDB database at path and applies the
// configured resource settings. path may be ":memory:" for tests; the
// settings string values are passed through to DuckDB unvalidated.
func Open(path string, cfg config.WarehouseConfig) (*Store, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}

	dsn := path
	if path == ":memory:" {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{
		db:   db,
		path: path,
		log:  logging.Component("warehouse"),
	}

	if err := s.applySettings(cfg); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Info("opened warehouse", "path", path)
	return s, nil
}

func (s *Store) applySettings(cfg config.WarehouseConfig) error {
	settings := []struct {
		name  string
		value string
	}{
		{"memory_limit", cfg.MemoryLimit},
		{"temp_directory", cfg.TempDirectory},
		{"max_temp_directory_size", cfg.MaxTempDirectorySize},
	}

	for _, set := range settings {
		if set.value == "" {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf("SET %s='%s'", set.name, set.value)); err != nil {
			return fmt.Errorf("set %s: %w", set.name, err)
		}
	}
	if cfg.Threads > 0 {
		if _, err := s.db.Exec(fmt.Sprintf("SET threads=%d", cfg.Threads)); err != nil {
			return fmt.Errorf("set threads: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("SET preserve_insertion_order=%t", cfg.PreserveInsertionOrder)); err != nil {
		return fmt.Errorf("set preserve_insertion_order: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for read-only query layers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a table exists in the main schema. It never
// returns an error: probe failures read as absent.
func (s *Store) Exists(ctx context.Context, table string) bool {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = 'main' AND table_name = ?`,
		table).Scan(&n)
	if err != nil {
		return false
	}
	return n > 0
}

// RowCount returns the number of rows in a table. A missing table is
// reported as ErrTableNotFound rather than a driver error.
func (s *Store) RowCount(ctx context.Context, table string) (int64, error) {
	if !s.Exists(ctx, table) {
		return 0, fmt.Errorf("%s: %w", table, qerrors.ErrTableNotFound)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return 0, qerrors.NewStorage("count "+table, err)
	}
	return n, nil
}

// PartitionRows counts the unified raw rows belonging to one partition
// year. An absent unified table reads as zero rows.
func (s *Store) PartitionRows(ctx context.Context, year int) (int64, error) {
	if !s.Exists(ctx, catalog.RawEvents.Name()) {
		return 0, nil
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM "+quoteIdent(catalog.RawEvents.Name())+" WHERE year = ?",
		year).Scan(&n)
	if err != nil {
		return 0, qerrors.NewStorage("count partition rows", err)
	}
	return n, nil
}

// Exec runs a statement, classifying failures as storage errors.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return qerrors.NewStorage("exec", err)
	}
	return nil
}

// LoadParquet creates (or replaces) table from a staged parquet file and
// returns the loaded row count.
func (s *Store) LoadParquet(ctx context.Context, table, parquetPath string) (int64, error) {
	stmt := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet('%s')",
		quoteIdent(table), escapeLiteral(parquetPath))
	if err := s.Exec(ctx, stmt); err != nil {
		return 0, err
	}
	n, err := s.RowCount(ctx, table)
	if err != nil {
		return 0, err
	}
	s.log.Info("loaded staging file", "table", table, "rows", n, "file", filepath.Base(parquetPath))
	return n, nil
}

// ExportParquet copies a table to a parquet file.
func (s *Store) ExportParquet(ctx context.Context, table, outPath string) error {
	stmt := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET)",
		quoteIdent(table), escapeLiteral(outPath))
	if err := s.Exec(ctx, stmt); err != nil {
		return err
	}
	s.log.Info("exported table", "table", table, "file", outPath)
	return nil
}

// Drop removes a table if present.
func (s *Store) Drop(ctx context.Context, table string) error {
	return s.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table))
}

// TableNames lists the tables in the main schema.
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, qerrors.NewStorage("list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, qerrors.NewStorage("scan table name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// escapeLiteral escapes a string literal for inline SQL.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
