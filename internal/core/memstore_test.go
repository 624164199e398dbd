package core

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store. A Tx works on a copy of the data that
// replaces the committed data on Commit, so rollback semantics hold.
type memStore struct {
	mu      sync.Mutex
	data    *memData
	imports []ImportRecord

	// failOn names a Tx method that returns errInjected.
	failOn string
}

var errInjected = errors.New("injected store failure")

type memRow struct {
	id     int64
	code   string
	name   string
	price  int64
	parent int64
	hasRef bool
	at     time.Time
}

type memData struct {
	nextID     int64
	segments   map[string]memRow
	customers  map[string]memRow
	categories map[string]memRow
	products   map[string]memRow
	bills      map[string]memRow
	lines      map[[2]int64]int64
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		segments:   map[string]memRow{},
		customers:  map[string]memRow{},
		categories: map[string]memRow{},
		products:   map[string]memRow{},
		bills:      map[string]memRow{},
		lines:      map[[2]int64]int64{},
	}}
}

func (d *memData) clone() *memData {
	return &memData{
		nextID:     d.nextID,
		segments:   maps.Clone(d.segments),
		customers:  maps.Clone(d.customers),
		categories: maps.Clone(d.categories),
		products:   maps.Clone(d.products),
		bills:      maps.Clone(d.bills),
		lines:      maps.Clone(d.lines),
	}
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

func (s *memStore) Begin(context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memTx{store: s, data: s.data.clone(), failOn: s.failOn}, nil
}

func (s *memStore) snapshot() *memData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (s *memStore) ChartRows(context.Context) ([]ChartRow, error) {
	d := s.snapshot()
	byID := func(m map[string]memRow) map[int64]memRow {
		out := make(map[int64]memRow, len(m))
		for _, r := range m {
			out[r.id] = r
		}
		return out
	}
	bills, products, categories, customers := byID(d.bills), byID(d.products), byID(d.categories), byID(d.customers)

	var rows []ChartRow
	for key, qty := range d.lines {
		b, p := bills[key[0]], products[key[1]]
		row := ChartRow{
			BillCode:     b.code,
			CreatedAt:    b.at,
			ProductCode:  p.code,
			ProductName:  p.name,
			CategoryCode: categories[p.parent].code,
			CategoryName: categories[p.parent].name,
			Quantity:     qty,
			Revenue:      qty * p.price,
		}
		if b.hasRef {
			row.CustomerCode = customers[b.parent].code
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BillCode != rows[j].BillCode {
			return rows[i].BillCode < rows[j].BillCode
		}
		return rows[i].ProductCode < rows[j].ProductCode
	})
	return rows, nil
}

func (s *memStore) Stats(context.Context) (Stats, error) {
	d := s.snapshot()
	return Stats{
		Segments:   int64(len(d.segments)),
		Customers:  int64(len(d.customers)),
		Categories: int64(len(d.categories)),
		Products:   int64(len(d.products)),
		Bills:      int64(len(d.bills)),
		BillLines:  int64(len(d.lines)),
	}, nil
}

func (s *memStore) RecordImport(_ context.Context, rec ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = append(s.imports, rec)
	return nil
}

func (s *memStore) ListImports(_ context.Context, limit int) ([]ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ImportRecord
	for i := len(s.imports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.imports[i])
	}
	return out, nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

type memTx struct {
	store  *memStore
	data   *memData
	failOn string
	done   bool
}

func (tx *memTx) fail(op string) error {
	if tx.failOn == op {
		return errInjected
	}
	return nil
}

func idsOf(m map[string]memRow, codes []string) map[string]int64 {
	out := make(map[string]int64, len(codes))
	for _, c := range codes {
		if r, ok := m[c]; ok {
			out[c] = r.id
		}
	}
	return out
}

func (tx *memTx) InsertSegments(_ context.Context, segments []Segment) error {
	if err := tx.fail("InsertSegments"); err != nil {
		return err
	}
	for _, s := range segments {
		if _, ok := tx.data.segments[s.Code]; !ok {
			tx.data.segments[s.Code] = memRow{id: tx.data.id(), code: s.Code, name: s.Info}
		}
	}
	return nil
}

func (tx *memTx) SegmentIDs(_ context.Context, codes []string) (map[string]int64, error) {
	return idsOf(tx.data.segments, codes), nil
}

func (tx *memTx) UpsertCustomer(_ context.Context, c Customer, segmentID int64) (int64, error) {
	if err := tx.fail("UpsertCustomer"); err != nil {
		return 0, err
	}
	r, ok := tx.data.customers[c.Code]
	if !ok {
		r = memRow{id: tx.data.id(), code: c.Code}
	}
	r.name, r.parent = c.Name, segmentID
	tx.data.customers[c.Code] = r
	return r.id, nil
}

func (tx *memTx) CustomerByCode(_ context.Context, code string) (StoredCustomer, bool, error) {
	r, ok := tx.data.customers[code]
	if !ok {
		return StoredCustomer{}, false, nil
	}
	return StoredCustomer{ID: r.id, Code: r.code, Name: r.name, SegmentID: r.parent}, true, nil
}

func (tx *memTx) InsertCategories(_ context.Context, categories []Category) error {
	for _, c := range categories {
		if _, ok := tx.data.categories[c.Code]; !ok {
			tx.data.categories[c.Code] = memRow{id: tx.data.id(), code: c.Code, name: c.Name}
		}
	}
	return nil
}

func (tx *memTx) CategoryIDs(_ context.Context, codes []string) (map[string]int64, error) {
	return idsOf(tx.data.categories, codes), nil
}

func (tx *memTx) UpsertProduct(_ context.Context, p Product, categoryID int64) (int64, error) {
	if err := tx.fail("UpsertProduct"); err != nil {
		return 0, err
	}
	r, ok := tx.data.products[p.Code]
	if !ok {
		r = memRow{id: tx.data.id(), code: p.Code}
	}
	r.name, r.price, r.parent = p.Name, p.Price, categoryID
	tx.data.products[p.Code] = r
	return r.id, nil
}

func (tx *memTx) InsertProductIfAbsent(_ context.Context, p Product, categoryID int64) error {
	if _, ok := tx.data.products[p.Code]; !ok {
		tx.data.products[p.Code] = memRow{id: tx.data.id(), code: p.Code, name: p.Name, price: p.Price, parent: categoryID}
	}
	return nil
}

func (tx *memTx) ProductIDs(_ context.Context, codes []string) (map[string]int64, error) {
	if tx.failOn == "ProductIDsEmpty" {
		return map[string]int64{}, nil
	}
	return idsOf(tx.data.products, codes), nil
}

func (tx *memTx) putBill(b Bill, customerID *int64, r memRow) int64 {
	r.code, r.at = b.Code, b.CreatedAt
	r.hasRef = customerID != nil
	r.parent = 0
	if customerID != nil {
		r.parent = *customerID
	}
	tx.data.bills[b.Code] = r
	return r.id
}

func (tx *memTx) UpsertBill(_ context.Context, b Bill, customerID *int64) (int64, error) {
	if err := tx.fail("UpsertBill"); err != nil {
		return 0, err
	}
	r, ok := tx.data.bills[b.Code]
	if !ok {
		r = memRow{id: tx.data.id()}
	}
	return tx.putBill(b, customerID, r), nil
}

func (tx *memTx) CreateBill(_ context.Context, b Bill, customerID *int64) (int64, error) {
	if _, ok := tx.data.bills[b.Code]; ok {
		return 0, ErrDuplicateCode
	}
	return tx.putBill(b, customerID, memRow{id: tx.data.id()}), nil
}

func (tx *memTx) BillIDs(_ context.Context, codes []string) (map[string]int64, error) {
	return idsOf(tx.data.bills, codes), nil
}

func (tx *memTx) UpsertBillLines(_ context.Context, lines []LineRef) error {
	if err := tx.fail("UpsertBillLines"); err != nil {
		return err
	}
	for _, l := range lines {
		tx.data.lines[[2]int64{l.BillID, l.ProductID}] = l.Quantity
	}
	return nil
}

func (tx *memTx) CreateBillLine(_ context.Context, l LineRef) error {
	key := [2]int64{l.BillID, l.ProductID}
	if _, ok := tx.data.lines[key]; ok {
		return ErrDuplicateCode
	}
	tx.data.lines[key] = l.Quantity
	return nil
}

func (tx *memTx) Commit(context.Context) error {
	if tx.done {
		return errors.New("tx closed")
	}
	tx.done = true
	tx.store.mu.Lock()
	tx.store.data = tx.data
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	tx.done = true
	return nil
}
