package core

import (
	"context"
	"time"
)

// UnknownCode replaces a blank segment, category or product code.
const UnknownCode = "UNKNOWN"

// UnknownCustomerName is used when a row names a customer code but no name.
const UnknownCustomerName = "Unknown"

// Segment is a customer segment keyed by its business code.
type Segment struct {
	Code string
	Info string
}

// Customer belongs to exactly one segment, referenced by code until the
// segment is persisted.
type Customer struct {
	Code        string
	Name        string
	SegmentCode string
}

// Category groups products.
type Category struct {
	Code string
	Name string
}

// Product has an integer unit price and belongs to one category.
type Product struct {
	Code         string
	Name         string
	Price        int64
	CategoryCode string
}

// Bill is one order. CustomerCode is empty when the order has no customer.
type Bill struct {
	Code         string
	CreatedAt    time.Time
	CustomerCode string
}

// BillLine is a product quantity within a bill, identified by (bill, product).
type BillLine struct {
	BillCode    string
	ProductCode string
	Quantity    int64
}

// LineRef is a bill line with its references resolved to store ids.
type LineRef struct {
	BillID    int64
	ProductID int64
	Quantity  int64
}

// StoredCustomer is a persisted customer as read back from the store.
type StoredCustomer struct {
	ID        int64
	Code      string
	Name      string
	SegmentID int64
}

// ChartRow is one aggregated (bill, customer, product, category) group.
// CreatedAt is zero and CustomerCode empty when the bill lacks them.
type ChartRow struct {
	BillCode     string
	CustomerCode string
	CreatedAt    time.Time
	ProductCode  string
	ProductName  string
	CategoryCode string
	CategoryName string
	Quantity     int64
	Revenue      int64
}

// Stats holds per-entity row counts.
type Stats struct {
	Segments   int64 `json:"segments"`
	Customers  int64 `json:"customers"`
	Categories int64 `json:"categories"`
	Products   int64 `json:"products"`
	Bills      int64 `json:"bills"`
	BillLines  int64 `json:"bill_lines"`
}

// Import statuses stored in the import history.
const (
	ImportSucceeded = "success"
	ImportFailed    = "failed"
	ImportRejected  = "rejected"
)

// ImportRecord is one row of the import history.
type ImportRecord struct {
	ID           string        `json:"id"`
	FileName     string        `json:"file_name"`
	Status       string        `json:"status"`
	RowsRead     int           `json:"rows_read"`
	RowsSkipped  int           `json:"rows_skipped"`
	LinesWritten int           `json:"lines_written"`
	LinesSkipped int           `json:"lines_skipped"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	IPAddress    string        `json:"ip_address,omitempty"`
	UserAgent    string        `json:"user_agent,omitempty"`
}

// Store is the durable relational store behind the service.
//
// There is no application-level locking. Two imports racing on the same
// business codes are resolved entirely by the store: segment and category
// inserts ignore conflicts on the code, and every Upsert method is an
// insert-or-update keyed on the natural code (bill lines on bill+product).
// Callers that need stronger isolation must add it around Begin.
type Store interface {
	// Begin opens the transaction an import or manual entry runs in.
	Begin(ctx context.Context) (Tx, error)

	// ChartRows runs the read-only revenue aggregation.
	ChartRows(ctx context.Context) ([]ChartRow, error)

	// Stats counts rows per entity.
	Stats(ctx context.Context) (Stats, error)

	// RecordImport appends to the import history.
	RecordImport(ctx context.Context, rec ImportRecord) error

	// ListImports returns the newest history entries first.
	ListImports(ctx context.Context, limit int) ([]ImportRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the unit of work used by reconciliation and manual entry.
// Nothing written through a Tx is visible to readers before Commit.
type Tx interface {
	// InsertSegments bulk-inserts segments, leaving existing codes untouched.
	InsertSegments(ctx context.Context, segments []Segment) error
	SegmentIDs(ctx context.Context, codes []string) (map[string]int64, error)

	// UpsertCustomer creates or updates the customer with c.Code.
	UpsertCustomer(ctx context.Context, c Customer, segmentID int64) (int64, error)
	CustomerByCode(ctx context.Context, code string) (StoredCustomer, bool, error)

	// InsertCategories bulk-inserts categories, leaving existing codes untouched.
	InsertCategories(ctx context.Context, categories []Category) error
	CategoryIDs(ctx context.Context, codes []string) (map[string]int64, error)

	UpsertProduct(ctx context.Context, p Product, categoryID int64) (int64, error)
	// InsertProductIfAbsent creates the product only when its code is new.
	InsertProductIfAbsent(ctx context.Context, p Product, categoryID int64) error
	ProductIDs(ctx context.Context, codes []string) (map[string]int64, error)

	// UpsertBill creates or updates a bill; customerID nil stores no customer.
	UpsertBill(ctx context.Context, b Bill, customerID *int64) (int64, error)
	// CreateBill fails with ErrDuplicateCode when the code already exists.
	CreateBill(ctx context.Context, b Bill, customerID *int64) (int64, error)
	BillIDs(ctx context.Context, codes []string) (map[string]int64, error)

	// UpsertBillLines applies lines in order keyed by (bill, product), so a
	// later line for the same pair overwrites the quantity of an earlier one.
	UpsertBillLines(ctx context.Context, lines []LineRef) error
	CreateBillLine(ctx context.Context, line LineRef) error

	Commit(ctx context.Context) error
	// Rollback is safe to call after Commit.
	Rollback(ctx context.Context) error
}

// Recorder receives import outcomes for instrumentation.
type Recorder interface {
	ImportFinished(status string, result *ImportResult, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ImportFinished(string, *ImportResult, time.Duration) {}
