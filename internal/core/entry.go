package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entry form field names.
const (
	FieldBillCode     = "ma_don_hang"
	FieldCustomerCode = "ma_khach_hang"
	FieldCustomerName = "ten_khach_hang"
	FieldSegmentCode  = "ma_pkkh"
	FieldSegmentInfo  = "mo_ta_pkkh"
	FieldCreatedAt    = "thoi_gian_tao_don"
	FieldCategoryCode = "ma_nhom_hang"
	FieldCategoryName = "ten_nhom_hang"
	FieldProductCode  = "ma_mat_hang"
	FieldProductName  = "ten_mat_hang"
	FieldQuantity     = "so_luong"
	FieldPrice        = "thanh_tien"
)

// Entry is one manually entered sale: a single bill with a single line.
type Entry struct {
	BillCode  string
	CreatedAt time.Time // zero means now

	CustomerCode string
	CustomerName string
	SegmentCode  string
	SegmentInfo  string

	CategoryCode string
	CategoryName string
	ProductCode  string
	ProductName  string

	Quantity int64
	Price    int64
}

// ParseEntryForm reads an Entry from form values. Unlike the bulk import,
// a bad number or timestamp is reported instead of defaulted, since a
// person is there to correct it.
func ParseEntryForm(get func(string) string, loc *time.Location) (Entry, error) {
	field := func(name string) string { return strings.TrimSpace(get(name)) }

	e := Entry{
		BillCode:     field(FieldBillCode),
		CustomerCode: field(FieldCustomerCode),
		CustomerName: field(FieldCustomerName),
		SegmentCode:  field(FieldSegmentCode),
		SegmentInfo:  field(FieldSegmentInfo),
		CategoryCode: field(FieldCategoryCode),
		CategoryName: field(FieldCategoryName),
		ProductCode:  field(FieldProductCode),
		ProductName:  field(FieldProductName),
	}

	var problems []string
	if e.BillCode == "" {
		problems = append(problems, FieldBillCode+" is required")
	}
	if e.ProductCode == "" {
		problems = append(problems, FieldProductCode+" is required")
	}

	var err error
	if e.Quantity, err = entryInt(field(FieldQuantity)); err != nil {
		problems = append(problems, FieldQuantity+" must be an integer")
	}
	if e.Price, err = entryInt(field(FieldPrice)); err != nil {
		problems = append(problems, FieldPrice+" must be an integer")
	}

	if ts := field(FieldCreatedAt); ts != "" {
		if e.CreatedAt, err = parseEntryTimestamp(ts, loc); err != nil {
			problems = append(problems, FieldCreatedAt+" must look like "+TimestampLayout)
		}
	}

	if len(problems) > 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(problems, "; "))
	}
	return e, nil
}

func entryInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// CreateEntry records one sale in its own transaction.
//
// Segment, category and product are created when their code is new and left
// alone otherwise; the product price is only set on creation. An existing
// customer whose name differs takes the entered name and segment. The bill
// must be new: a repeated bill code fails with ErrDuplicateCode.
func (s *Service) CreateEntry(ctx context.Context, e Entry) error {
	if e.BillCode == "" || e.ProductCode == "" {
		return fmt.Errorf("%w: bill and product codes are required", ErrInvalidEntry)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CustomerName = orDefault(e.CustomerName, UnknownCustomerName)
	segmentCode := orDefault(e.SegmentCode, UnknownCode)
	categoryCode := orDefault(e.CategoryCode, UnknownCode)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.InsertSegments(ctx, []Segment{{Code: segmentCode, Info: e.SegmentInfo}}); err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	segmentIDs, err := tx.SegmentIDs(ctx, []string{segmentCode})
	if err != nil {
		return fmt.Errorf("resolve segment: %w", err)
	}

	var customerID *int64
	if e.CustomerCode != "" {
		id, err := s.entryCustomer(ctx, tx, e, segmentCode, segmentIDs[segmentCode])
		if err != nil {
			return err
		}
		customerID = &id
	}

	if err := tx.InsertCategories(ctx, []Category{{Code: categoryCode, Name: e.CategoryName}}); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	categoryIDs, err := tx.CategoryIDs(ctx, []string{categoryCode})
	if err != nil {
		return fmt.Errorf("resolve category: %w", err)
	}

	product := Product{Code: e.ProductCode, Name: e.ProductName, Price: e.Price, CategoryCode: categoryCode}
	if err := tx.InsertProductIfAbsent(ctx, product, categoryIDs[categoryCode]); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	productIDs, err := tx.ProductIDs(ctx, []string{e.ProductCode})
	if err != nil {
		return fmt.Errorf("resolve product: %w", err)
	}

	billID, err := tx.CreateBill(ctx, Bill{Code: e.BillCode, CreatedAt: e.CreatedAt, CustomerCode: e.CustomerCode}, customerID)
	if err != nil {
		return fmt.Errorf("create bill %q: %w", e.BillCode, err)
	}

	line := LineRef{BillID: billID, ProductID: productIDs[e.ProductCode], Quantity: e.Quantity}
	if err := tx.CreateBillLine(ctx, line); err != nil {
		return fmt.Errorf("create bill line: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit entry: %w", err)
	}
	return nil
}

// entryCustomer returns the id of the entry's customer, creating it or
// refreshing its name and segment as needed.
func (s *Service) entryCustomer(ctx context.Context, tx Tx, e Entry, segmentCode string, segmentID int64) (int64, error) {
	existing, found, err := tx.CustomerByCode(ctx, e.CustomerCode)
	if err != nil {
		return 0, fmt.Errorf("look up customer %q: %w", e.CustomerCode, err)
	}
	if found && existing.Name == e.CustomerName {
		return existing.ID, nil
	}

	c := Customer{Code: e.CustomerCode, Name: e.CustomerName, SegmentCode: segmentCode}
	id, err := tx.UpsertCustomer(ctx, c, segmentID)
	if err != nil {
		return 0, fmt.Errorf("upsert customer %q: %w", e.CustomerCode, err)
	}
	return id, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
