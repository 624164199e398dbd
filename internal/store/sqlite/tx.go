package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/salesboard/internal/core"
)

// lookupChunk bounds the number of ? placeholders in one IN list.
const lookupChunk = 500

var _ core.Tx = (*Tx)(nil)

// Tx adapts *sql.Tx to core.Tx.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit(context.Context) error {
	return t.tx.Commit()
}

// Rollback rolls back; after Commit it is a no-op.
func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// codeIDs maps codes to ids. table is always a package constant.
func (t *Tx) codeIDs(ctx context.Context, table string, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))

	for start := 0; start < len(codes); start += lookupChunk {
		chunk := codes[start:min(start+lookupChunk, len(codes))]
		args := make([]any, len(chunk))
		for i, c := range chunk {
			args[i] = c
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := t.tx.QueryContext(ctx,
			"SELECT code, id FROM "+table+" WHERE code IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("look up %s: %w", table, err)
		}
		for rows.Next() {
			var (
				code string
				id   int64
			)
			if err := rows.Scan(&code, &id); err != nil {
				rows.Close()
				return nil, err
			}
			out[code] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// execEach runs one prepared statement per element.
func execEach[T any](ctx context.Context, tx *sql.Tx, query string, items []T, args func(T) []any) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, args(it)...); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) InsertSegments(ctx context.Context, segments []core.Segment) error {
	return execEach(ctx, t.tx,
		`INSERT INTO segments (code, info) VALUES (?, ?) ON CONFLICT (code) DO NOTHING`,
		segments, func(s core.Segment) []any { return []any{s.Code, s.Info} })
}

func (t *Tx) SegmentIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "segments", codes)
}

func (t *Tx) UpsertCustomer(ctx context.Context, c core.Customer, segmentID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO customers (code, name, segment_id) VALUES (?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name, segment_id = excluded.segment_id
		RETURNING id`, c.Code, c.Name, segmentID).Scan(&id)
	return id, err
}

func (t *Tx) CustomerByCode(ctx context.Context, code string) (core.StoredCustomer, bool, error) {
	var c core.StoredCustomer
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, code, name, segment_id FROM customers WHERE code = ?`, code,
	).Scan(&c.ID, &c.Code, &c.Name, &c.SegmentID)
	if err == sql.ErrNoRows {
		return core.StoredCustomer{}, false, nil
	}
	if err != nil {
		return core.StoredCustomer{}, false, err
	}
	return c, true, nil
}

func (t *Tx) InsertCategories(ctx context.Context, categories []core.Category) error {
	return execEach(ctx, t.tx,
		`INSERT INTO categories (code, name) VALUES (?, ?) ON CONFLICT (code) DO NOTHING`,
		categories, func(c core.Category) []any { return []any{c.Code, c.Name} })
}

func (t *Tx) CategoryIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "categories", codes)
}

func (t *Tx) UpsertProduct(ctx context.Context, p core.Product, categoryID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO products (code, name, price, category_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE
		SET name = excluded.name, price = excluded.price, category_id = excluded.category_id
		RETURNING id`, p.Code, p.Name, p.Price, categoryID).Scan(&id)
	return id, err
}

func (t *Tx) InsertProductIfAbsent(ctx context.Context, p core.Product, categoryID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO products (code, name, price, category_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (code) DO NOTHING`, p.Code, p.Name, p.Price, categoryID)
	return err
}

func (t *Tx) ProductIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "products", codes)
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (t *Tx) UpsertBill(ctx context.Context, b core.Bill, customerID *int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO bills (code, created_at, customer_id) VALUES (?, ?, ?)
		ON CONFLICT (code) DO UPDATE
		SET created_at = excluded.created_at, customer_id = excluded.customer_id
		RETURNING id`, b.Code, b.CreatedAt.Unix(), nullableID(customerID)).Scan(&id)
	return id, err
}

func (t *Tx) CreateBill(ctx context.Context, b core.Bill, customerID *int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO bills (code, created_at, customer_id) VALUES (?, ?, ?)
		RETURNING id`, b.Code, b.CreatedAt.Unix(), nullableID(customerID)).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("bill %q: %w", b.Code, core.ErrDuplicateCode)
	}
	return id, err
}

func (t *Tx) BillIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "bills", codes)
}

// UpsertBillLines applies lines in order, so the last quantity for a
// repeated (bill, product) wins.
func (t *Tx) UpsertBillLines(ctx context.Context, lines []core.LineRef) error {
	return execEach(ctx, t.tx, `
		INSERT INTO bill_lines (bill_id, product_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT (bill_id, product_id) DO UPDATE SET quantity = excluded.quantity`,
		lines, func(l core.LineRef) []any { return []any{l.BillID, l.ProductID, l.Quantity} })
}

func (t *Tx) CreateBillLine(ctx context.Context, l core.LineRef) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bill_lines (bill_id, product_id, quantity) VALUES (?, ?, ?)`,
		l.BillID, l.ProductID, l.Quantity)
	if isUniqueViolation(err) {
		return fmt.Errorf("bill line: %w", core.ErrDuplicateCode)
	}
	return err
}
