package core

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryForm(overrides map[string]string) url.Values {
	v := url.Values{
		FieldBillCode:     {"DH9"},
		FieldCustomerCode: {"KH1"},
		FieldCustomerName: {"An"},
		FieldSegmentCode:  {"S1"},
		FieldSegmentInfo:  {"Retail"},
		FieldCreatedAt:    {"2024-03-01T09:30"},
		FieldCategoryCode: {"C1"},
		FieldCategoryName: {"Drinks"},
		FieldProductCode:  {"SP1"},
		FieldProductName:  {"Tea"},
		FieldQuantity:     {"3"},
		FieldPrice:        {"1000"},
	}
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestParseEntryForm(t *testing.T) {
	e, err := ParseEntryForm(entryForm(nil).Get, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "DH9", e.BillCode)
	assert.Equal(t, int64(3), e.Quantity)
	assert.Equal(t, int64(1000), e.Price)
	assert.True(t, e.CreatedAt.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)))
}

func TestParseEntryForm_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		wantField string
	}{
		{"missing bill", map[string]string{FieldBillCode: " "}, FieldBillCode},
		{"missing product", map[string]string{FieldProductCode: ""}, FieldProductCode},
		{"bad quantity", map[string]string{FieldQuantity: "two"}, FieldQuantity},
		{"bad price", map[string]string{FieldPrice: "1.5"}, FieldPrice},
		{"bad timestamp", map[string]string{FieldCreatedAt: "tomorrow"}, FieldCreatedAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEntryForm(entryForm(tt.overrides).Get, time.UTC)
			require.ErrorIs(t, err, ErrInvalidEntry)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestParseEntryForm_BlankNumbersAndTime(t *testing.T) {
	e, err := ParseEntryForm(entryForm(map[string]string{FieldQuantity: "", FieldPrice: "", FieldCreatedAt: ""}).Get, time.UTC)
	require.NoError(t, err)
	assert.Zero(t, e.Quantity)
	assert.Zero(t, e.Price)
	assert.True(t, e.CreatedAt.IsZero())
}

func TestCreateEntry(t *testing.T) {
	fixed := time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	svc := NewService(store, testConfig(), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	e, err := ParseEntryForm(entryForm(map[string]string{FieldCreatedAt: ""}).Get, time.UTC)
	require.NoError(t, err)
	require.NoError(t, svc.CreateEntry(ctx, e))

	chart, err := svc.ChartData(ctx)
	require.NoError(t, err)
	require.Len(t, chart, 1)
	assert.Equal(t, "2024-05-05 12:00:00", chart[0].CreatedAt, "blank time means now")
	assert.Equal(t, int64(3000), chart[0].Revenue)
	assert.Equal(t, "KH1", chart[0].CustomerCode)
}

func TestCreateEntry_DuplicateBill(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testConfig())
	ctx := context.Background()

	e, err := ParseEntryForm(entryForm(nil).Get, time.UTC)
	require.NoError(t, err)
	require.NoError(t, svc.CreateEntry(ctx, e))

	e.ProductCode = "SP2"
	err = svc.CreateEntry(ctx, e)
	require.ErrorIs(t, err, ErrDuplicateCode)

	stats, _ := store.Stats(ctx)
	assert.Equal(t, int64(1), stats.Products, "failed entry rolled back its product")
	assert.Equal(t, int64(1), stats.BillLines)
}

func TestCreateEntry_RenamesExistingCustomer(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testConfig())
	ctx := context.Background()

	first, _ := ParseEntryForm(entryForm(nil).Get, time.UTC)
	require.NoError(t, svc.CreateEntry(ctx, first))

	second, _ := ParseEntryForm(entryForm(map[string]string{
		FieldBillCode:     "DH10",
		FieldCustomerName: "An Nguyen",
		FieldSegmentCode:  "S2",
	}).Get, time.UTC)
	require.NoError(t, svc.CreateEntry(ctx, second))

	d := store.snapshot()
	assert.Equal(t, "An Nguyen", d.customers["KH1"].name)
	assert.Equal(t, d.segments["S2"].id, d.customers["KH1"].parent)
}

func TestCreateEntry_KeepsExistingProductPrice(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testConfig())
	ctx := context.Background()

	first, _ := ParseEntryForm(entryForm(nil).Get, time.UTC)
	require.NoError(t, svc.CreateEntry(ctx, first))

	second, _ := ParseEntryForm(entryForm(map[string]string{FieldBillCode: "DH10", FieldPrice: "5"}).Get, time.UTC)
	require.NoError(t, svc.CreateEntry(ctx, second))

	assert.Equal(t, int64(1000), store.snapshot().products["SP1"].price)
}

func TestCreateEntry_DefaultsCodes(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testConfig())

	err := svc.CreateEntry(context.Background(), Entry{BillCode: "DH1", ProductCode: "SP1", CreatedAt: t0})
	require.NoError(t, err)

	d := store.snapshot()
	assert.Contains(t, d.segments, UnknownCode)
	assert.Contains(t, d.categories, UnknownCode)
	assert.Empty(t, d.customers)
}

func TestCreateEntry_RequiresCodes(t *testing.T) {
	svc := NewService(newMemStore(), testConfig())
	err := svc.CreateEntry(context.Background(), Entry{ProductCode: "SP1"})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}
