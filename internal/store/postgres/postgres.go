// Package postgres implements core.Store on PostgreSQL through pgx.
//
// Bulk phases use server-side arrays (unnest, = ANY) so the number of round
// trips per import does not grow with the number of distinct codes; bill
// lines go out as pgx batches.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/salesboard/internal/config"
	"github.com/JonMunkholm/salesboard/internal/core"
)

//go:embed schema.sql
var schema string

var _ core.Store = (*Store)(nil)

// Store is a core.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects with the pool settings from cfg, pings, and migrates.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The schema is not touched.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Begin starts the transaction an import runs in.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

const chartQuery = `
SELECT b.code,
       COALESCE(c.code, ''),
       b.created_at,
       p.code,
       p.name,
       cat.code,
       cat.name,
       SUM(bl.quantity)::BIGINT,
       SUM(bl.quantity * p.price)::BIGINT
FROM bill_lines bl
JOIN bills b        ON b.id = bl.bill_id
LEFT JOIN customers c ON c.id = b.customer_id
JOIN products p     ON p.id = bl.product_id
JOIN categories cat ON cat.id = p.category_id
GROUP BY b.code, c.code, b.created_at, p.code, p.name, cat.code, cat.name
ORDER BY b.code, p.code`

// ChartRows runs the revenue aggregation.
func (s *Store) ChartRows(ctx context.Context) ([]core.ChartRow, error) {
	rows, err := s.pool.Query(ctx, chartQuery)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ChartRow, error) {
		var r core.ChartRow
		err := row.Scan(&r.BillCode, &r.CustomerCode, &r.CreatedAt, &r.ProductCode,
			&r.ProductName, &r.CategoryCode, &r.CategoryName, &r.Quantity, &r.Revenue)
		return r, err
	})
}

// Stats counts rows per table.
func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	var st core.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM segments),
		       (SELECT COUNT(*) FROM customers),
		       (SELECT COUNT(*) FROM categories),
		       (SELECT COUNT(*) FROM products),
		       (SELECT COUNT(*) FROM bills),
		       (SELECT COUNT(*) FROM bill_lines)`,
	).Scan(&st.Segments, &st.Customers, &st.Categories, &st.Products, &st.Bills, &st.BillLines)
	return st, err
}

// RecordImport appends one import history entry.
func (s *Store) RecordImport(ctx context.Context, rec core.ImportRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("import id %q: %w", rec.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_history (id, file_name, status, rows_read, rows_skipped,
			lines_written, lines_skipped, error, started_at, duration_ms, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pgtype.UUID{Bytes: id, Valid: true},
		rec.FileName, rec.Status, rec.RowsRead, rec.RowsSkipped,
		rec.LinesWritten, rec.LinesSkipped, rec.Error,
		rec.StartedAt, rec.Duration.Milliseconds(), rec.IPAddress, rec.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert import history: %w", err)
	}
	return nil
}

// ListImports returns the newest entries first.
func (s *Store) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, file_name, status, rows_read, rows_skipped, lines_written,
		       lines_skipped, error, started_at, duration_ms, ip_address, user_agent
		FROM import_history
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportRecord, error) {
		var (
			rec core.ImportRecord
			id  pgtype.UUID
			ms  int64
		)
		err := row.Scan(&id, &rec.FileName, &rec.Status, &rec.RowsRead, &rec.RowsSkipped,
			&rec.LinesWritten, &rec.LinesSkipped, &rec.Error, &rec.StartedAt, &ms,
			&rec.IPAddress, &rec.UserAgent)
		rec.ID = uuid.UUID(id.Bytes).String()
		rec.Duration = time.Duration(ms) * time.Millisecond
		return rec, err
	})
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
