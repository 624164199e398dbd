package core

// staging.go accumulates one import's provisional entities in memory.
//
// Every registry is keyed by business code and keeps first-seen order, so
// the first row carrying a code decides that entity's attributes for this
// import and persistence happens in file order.

// registry is an insertion-ordered set of entities keyed by code.
type registry[T any] struct {
	byCode map[string]T
	order  []string
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{byCode: make(map[string]T)}
}

// add registers v under code unless the code is already known.
func (r *registry[T]) add(code string, v T) {
	if _, ok := r.byCode[code]; ok {
		return
	}
	r.byCode[code] = v
	r.order = append(r.order, code)
}

func (r *registry[T]) has(code string) bool {
	_, ok := r.byCode[code]
	return ok
}

// values returns the entities in first-seen order.
func (r *registry[T]) values() []T {
	out := make([]T, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.byCode[code])
	}
	return out
}

func (r *registry[T]) codes() []string {
	return append([]string(nil), r.order...)
}

func (r *registry[T]) len() int { return len(r.order) }

// staging is the in-memory result of the staging pass.
type staging struct {
	segments   *registry[Segment]
	customers  *registry[Customer]
	categories *registry[Category]
	products   *registry[Product]
	bills      *registry[Bill]

	// lines keeps every registered line in file order, duplicates included;
	// the store resolves repeats of the same (bill, product).
	lines []BillLine
}

func newStaging() *staging {
	return &staging{
		segments:   newRegistry[Segment](),
		customers:  newRegistry[Customer](),
		categories: newRegistry[Category](),
		products:   newRegistry[Product](),
		bills:      newRegistry[Bill](),
	}
}

// add stages one row and reports whether its bill part was kept. A row
// with an unparseable timestamp still contributes its segment, customer,
// category and product.
func (s *staging) add(row SaleRow) bool {
	s.segments.add(row.SegmentCode, Segment{Code: row.SegmentCode, Info: row.SegmentInfo})

	if row.HasCustomer() {
		s.customers.add(row.CustomerCode, Customer{
			Code:        row.CustomerCode,
			Name:        row.CustomerName,
			SegmentCode: row.SegmentCode,
		})
	}

	s.categories.add(row.CategoryCode, Category{Code: row.CategoryCode, Name: row.CategoryName})

	s.products.add(row.ProductCode, Product{
		Code:         row.ProductCode,
		Name:         row.ProductName,
		Price:        row.Price,
		CategoryCode: row.CategoryCode,
	})

	if row.TimestampErr != nil {
		return false
	}

	if row.HasBill() {
		bill := Bill{Code: row.BillCode, CreatedAt: row.CreatedAt}
		if row.HasCustomer() {
			bill.CustomerCode = row.CustomerCode
		}
		s.bills.add(row.BillCode, bill)
	}

	if s.bills.has(row.BillCode) && s.products.has(row.ProductCode) {
		s.lines = append(s.lines, BillLine{
			BillCode:    row.BillCode,
			ProductCode: row.ProductCode,
			Quantity:    row.Quantity,
		})
	}
	return true
}

// lineProductCodes returns the distinct product codes referenced by lines.
func (s *staging) lineProductCodes() []string {
	seen := make(map[string]bool, len(s.lines))
	var codes []string
	for _, l := range s.lines {
		if !seen[l.ProductCode] {
			seen[l.ProductCode] = true
			codes = append(codes, l.ProductCode)
		}
	}
	return codes
}
