package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/salesboard/internal/core"
)

// lineBatchSize bounds the statements queued in one pgx.Batch.
const lineBatchSize = 1000

var _ core.Tx = (*Tx)(nil)

// Tx adapts pgx.Tx to core.Tx.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls back; after Commit it is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// codeIDs maps codes to ids. table is always a package constant.
func (t *Tx) codeIDs(ctx context.Context, table string, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	rows, err := t.tx.Query(ctx, "SELECT code, id FROM "+table+" WHERE code = ANY($1)", codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			code string
			id   int64
		)
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		out[code] = id
	}
	return out, rows.Err()
}

// InsertSegments inserts all segments in one statement; existing codes are kept.
func (t *Tx) InsertSegments(ctx context.Context, segments []core.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	codes := make([]string, len(segments))
	infos := make([]string, len(segments))
	for i, s := range segments {
		codes[i], infos[i] = s.Code, s.Info
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO segments (code, info)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (code) DO NOTHING`, codes, infos)
	return err
}

func (t *Tx) SegmentIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "segments", codes)
}

// UpsertCustomer inserts or updates name and segment.
func (t *Tx) UpsertCustomer(ctx context.Context, c core.Customer, segmentID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO customers (code, name, segment_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, segment_id = EXCLUDED.segment_id
		RETURNING id`, c.Code, c.Name, segmentID).Scan(&id)
	return id, err
}

func (t *Tx) CustomerByCode(ctx context.Context, code string) (core.StoredCustomer, bool, error) {
	var c core.StoredCustomer
	err := t.tx.QueryRow(ctx,
		`SELECT id, code, name, segment_id FROM customers WHERE code = $1`, code,
	).Scan(&c.ID, &c.Code, &c.Name, &c.SegmentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StoredCustomer{}, false, nil
	}
	if err != nil {
		return core.StoredCustomer{}, false, err
	}
	return c, true, nil
}

// InsertCategories inserts all categories in one statement; existing codes are kept.
func (t *Tx) InsertCategories(ctx context.Context, categories []core.Category) error {
	if len(categories) == 0 {
		return nil
	}
	codes := make([]string, len(categories))
	names := make([]string, len(categories))
	for i, c := range categories {
		codes[i], names[i] = c.Code, c.Name
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO categories (code, name)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (code) DO NOTHING`, codes, names)
	return err
}

func (t *Tx) CategoryIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "categories", codes)
}

// UpsertProduct inserts or updates name, price and category.
func (t *Tx) UpsertProduct(ctx context.Context, p core.Product, categoryID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO products (code, name, price, category_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, category_id = EXCLUDED.category_id
		RETURNING id`, p.Code, p.Name, p.Price, categoryID).Scan(&id)
	return id, err
}

func (t *Tx) InsertProductIfAbsent(ctx context.Context, p core.Product, categoryID int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products (code, name, price, category_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING`, p.Code, p.Name, p.Price, categoryID)
	return err
}

func (t *Tx) ProductIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "products", codes)
}

// UpsertBill inserts or updates creation time and customer.
func (t *Tx) UpsertBill(ctx context.Context, b core.Bill, customerID *int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bills (code, created_at, customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE
		SET created_at = EXCLUDED.created_at, customer_id = EXCLUDED.customer_id
		RETURNING id`, b.Code, b.CreatedAt, customerID).Scan(&id)
	return id, err
}

// CreateBill inserts a new bill and fails on an existing code.
func (t *Tx) CreateBill(ctx context.Context, b core.Bill, customerID *int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bills (code, created_at, customer_id)
		VALUES ($1, $2, $3)
		RETURNING id`, b.Code, b.CreatedAt, customerID).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("bill %q: %w", b.Code, core.ErrDuplicateCode)
	}
	return id, err
}

func (t *Tx) BillIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	return t.codeIDs(ctx, "bills", codes)
}

const upsertLineSQL = `
	INSERT INTO bill_lines (bill_id, product_id, quantity)
	VALUES ($1, $2, $3)
	ON CONFLICT (bill_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

// UpsertBillLines sends lines in order as batches. Statements in a batch
// run sequentially, so a repeated (bill, product) ends with the last quantity.
func (t *Tx) UpsertBillLines(ctx context.Context, lines []core.LineRef) error {
	for start := 0; start < len(lines); start += lineBatchSize {
		end := min(start+lineBatchSize, len(lines))

		batch := &pgx.Batch{}
		for _, l := range lines[start:end] {
			batch.Queue(upsertLineSQL, l.BillID, l.ProductID, l.Quantity)
		}

		br := t.tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("line %d (bill %d, product %d): %w", i, lines[i].BillID, lines[i].ProductID, err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) CreateBillLine(ctx context.Context, l core.LineRef) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bill_lines (bill_id, product_id, quantity)
		VALUES ($1, $2, $3)`, l.BillID, l.ProductID, l.Quantity)
	if isUniqueViolation(err) {
		return fmt.Errorf("bill line: %w", core.ErrDuplicateCode)
	}
	return err
}
