// Package sqlite provides a SQLite-backed implementation of core.Store,
// for single-node deployments and the salesctl CLI.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlitedrv "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/salesboard/internal/core"
)

//go:embed schema.sql
var schema string

// Ensure Store implements core.Store
var _ core.Store = (*Store)(nil)

// Store implements core.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath, creating parent directories, and runs
// migrations.
//
// SQLite allows one writer at a time, so the pool holds a single
// connection; a reader arriving during an import waits for it to commit.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every connection the pool opens.
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// ChartRows runs the revenue aggregation.
func (s *Store) ChartRows(ctx context.Context) ([]core.ChartRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.code,
		       COALESCE(c.code, ''),
		       b.created_at,
		       p.code,
		       p.name,
		       cat.code,
		       cat.name,
		       SUM(bl.quantity),
		       SUM(bl.quantity * p.price)
		FROM bill_lines bl
		JOIN bills b          ON b.id = bl.bill_id
		LEFT JOIN customers c ON c.id = b.customer_id
		JOIN products p       ON p.id = bl.product_id
		JOIN categories cat   ON cat.id = p.category_id
		GROUP BY b.code, c.code, b.created_at, p.code, p.name, cat.code, cat.name
		ORDER BY b.code, p.code`)
	if err != nil {
		return nil, fmt.Errorf("query chart rows: %w", err)
	}
	defer rows.Close()

	var out []core.ChartRow
	for rows.Next() {
		var (
			r       core.ChartRow
			created int64
		)
		if err := rows.Scan(&r.BillCode, &r.CustomerCode, &created, &r.ProductCode,
			&r.ProductName, &r.CategoryCode, &r.CategoryName, &r.Quantity, &r.Revenue); err != nil {
			return nil, fmt.Errorf("scan chart row: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats counts rows per table.
func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	var st core.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM segments),
		       (SELECT COUNT(*) FROM customers),
		       (SELECT COUNT(*) FROM categories),
		       (SELECT COUNT(*) FROM products),
		       (SELECT COUNT(*) FROM bills),
		       (SELECT COUNT(*) FROM bill_lines)`,
	).Scan(&st.Segments, &st.Customers, &st.Categories, &st.Products, &st.Bills, &st.BillLines)
	if err != nil {
		return core.Stats{}, fmt.Errorf("count rows: %w", err)
	}
	return st, nil
}

// RecordImport appends one import history entry.
func (s *Store) RecordImport(ctx context.Context, rec core.ImportRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_history (id, file_name, status, rows_read, rows_skipped,
			lines_written, lines_skipped, error, started_at, duration_ms, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FileName, rec.Status, rec.RowsRead, rec.RowsSkipped,
		rec.LinesWritten, rec.LinesSkipped, rec.Error,
		rec.StartedAt.UnixMilli(), rec.Duration.Milliseconds(), rec.IPAddress, rec.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert import history: %w", err)
	}
	return nil
}

// ListImports returns the newest entries first.
func (s *Store) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, status, rows_read, rows_skipped, lines_written,
		       lines_skipped, error, started_at, duration_ms, ip_address, user_agent
		FROM import_history
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import history: %w", err)
	}
	defer rows.Close()

	var out []core.ImportRecord
	for rows.Next() {
		var (
			rec       core.ImportRecord
			startedMS int64
			durMS     int64
		)
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.Status, &rec.RowsRead, &rec.RowsSkipped,
			&rec.LinesWritten, &rec.LinesSkipped, &rec.Error, &startedMS, &durMS,
			&rec.IPAddress, &rec.UserAgent); err != nil {
			return nil, fmt.Errorf("scan import history: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedMS).UTC()
		rec.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// isUniqueViolation reports SQLITE_CONSTRAINT_UNIQUE.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
