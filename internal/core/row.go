package core

import (
	"time"
)

// Column labels of the sales export. Header cells are matched against these
// after NormalizeLabel.
const (
	ColBillCode     = "Mã đơn hàng"
	ColCustomerCode = "Mã khách hàng"
	ColCustomerName = "Tên khách hàng"
	ColSegmentCode  = "Mã PKKH"
	ColSegmentInfo  = "Mô tả Phân Khúc Khách hàng"
	ColCreatedAt    = "Thời gian tạo đơn"
	ColCategoryCode = "Mã nhóm hàng"
	ColCategoryName = "Tên nhóm hàng"
	ColProductCode  = "Mã mặt hàng"
	ColProductName  = "Tên mặt hàng"
	ColQuantity     = "SL"
	ColPrice        = "Đơn giá"
)

// Columns lists every label the parser reads, in export order.
var Columns = []string{
	ColBillCode, ColCustomerCode, ColCustomerName, ColSegmentCode, ColSegmentInfo,
	ColCreatedAt, ColCategoryCode, ColCategoryName, ColProductCode, ColProductName,
	ColQuantity, ColPrice,
}

// HeaderIndex maps a normalized column label to its position.
type HeaderIndex map[string]int

// MakeHeaderIndex indexes a header row. When a label repeats, the last
// occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[NormalizeLabel(h)] = i
	}
	return idx
}

// Known returns how many of Columns the header contains.
func (h HeaderIndex) Known() int {
	n := 0
	for _, c := range Columns {
		if _, ok := h[c]; ok {
			n++
		}
	}
	return n
}

// Missing returns the labels of Columns the header lacks.
func (h HeaderIndex) Missing() []string {
	var missing []string
	for _, c := range Columns {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Record is one CSV data row addressed by column label.
type Record struct {
	cells []string
	index HeaderIndex
}

// NewRecord binds cells to a header index.
func NewRecord(index HeaderIndex, cells []string) Record {
	return Record{cells: cells, index: index}
}

// Get returns the cell under label. A label missing from the header, or a
// row too short to reach it, reports absent.
func (r Record) Get(label string) (string, bool) {
	pos, ok := r.index[label]
	if !ok || pos >= len(r.cells) {
		return "", false
	}
	return r.cells[pos], true
}

func (r Record) text(label, def string) string {
	v, ok := r.Get(label)
	return TextOr(v, ok, def)
}

// SaleRow is one parsed export row with every default applied.
type SaleRow struct {
	Line int

	SegmentCode  string
	SegmentInfo  string
	CustomerCode string
	CustomerName string
	CategoryCode string
	CategoryName string
	ProductCode  string
	ProductName  string
	Price        int64
	BillCode     string
	Quantity     int64

	// CreatedAt is valid only when TimestampErr is nil.
	CreatedAt    time.Time
	TimestampErr error

	// Defaulted counts numeric cells that were present but unparseable.
	Defaulted int
}

// HasBill reports whether the row names a bill.
func (r SaleRow) HasBill() bool { return r.BillCode != "" }

// HasCustomer reports whether the row names a customer.
func (r SaleRow) HasCustomer() bool { return r.CustomerCode != "" }

// ParseRecord extracts a SaleRow. It never fails; a bad timestamp is
// reported through TimestampErr so the caller can skip the bill part.
func ParseRecord(rec Record, line int, loc *time.Location) SaleRow {
	row := SaleRow{
		Line:         line,
		SegmentCode:  rec.text(ColSegmentCode, UnknownCode),
		SegmentInfo:  rec.text(ColSegmentInfo, ""),
		CustomerCode: rec.text(ColCustomerCode, ""),
		CustomerName: rec.text(ColCustomerName, UnknownCustomerName),
		CategoryCode: rec.text(ColCategoryCode, UnknownCode),
		CategoryName: rec.text(ColCategoryName, ""),
		ProductCode:  rec.text(ColProductCode, UnknownCode),
		ProductName:  rec.text(ColProductName, ""),
		BillCode:     rec.text(ColBillCode, ""),
	}

	var defaulted bool
	v, ok := rec.Get(ColPrice)
	if row.Price, defaulted = IntOrZero(v, ok); defaulted {
		row.Defaulted++
	}
	v, ok = rec.Get(ColQuantity)
	if row.Quantity, defaulted = IntOrZero(v, ok); defaulted {
		row.Defaulted++
	}

	v, _ = rec.Get(ColCreatedAt)
	row.CreatedAt, row.TimestampErr = ParseTimestamp(v, loc)
	return row
}
