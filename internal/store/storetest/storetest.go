// Package storetest holds the behavior every core.Store implementation must
// share. Each store package runs it from its own tests.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/salesboard/internal/config"
	"github.com/JonMunkholm/salesboard/internal/core"
)

// Header is the full column header with a UTF-8 BOM.
const Header = "\uFEFFMã đơn hàng,Mã khách hàng,Tên khách hàng,Mã PKKH,Mô tả Phân Khúc Khách hàng,Thời gian tạo đơn,Mã nhóm hàng,Tên nhóm hàng,Mã mặt hàng,Tên mặt hàng,SL,Đơn giá\n"

// Factory returns an empty store. The caller closes it through t.Cleanup.
type Factory func(t *testing.T) core.Store

func serviceConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{MaxConcurrent: 2, MaxWaitTime: time.Second, Timeout: time.Minute},
		Import: config.ImportConfig{Timezone: "UTC", DefaultCharset: "utf-8", HistoryLimit: 50},
	}
}

func importBody(t *testing.T, svc *core.Service, body string) *core.ImportResult {
	t.Helper()
	res, err := svc.Import(context.Background(), "sales.csv", strings.NewReader(body), "")
	require.NoError(t, err)
	return res
}

// Run exercises newStore against the shared contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("SingleRow", func(t *testing.T) { testSingleRow(t, newStore(t)) })
	t.Run("Idempotent", func(t *testing.T) { testIdempotent(t, newStore(t)) })
	t.Run("LastQuantityWins", func(t *testing.T) { testLastQuantityWins(t, newStore(t)) })
	t.Run("UpdatesExisting", func(t *testing.T) { testUpdatesExisting(t, newStore(t)) })
	t.Run("BillWithoutCustomer", func(t *testing.T) { testBillWithoutCustomer(t, newStore(t)) })
	t.Run("RollbackOnFailure", func(t *testing.T) { testRollbackOnFailure(t, newStore(t)) })
	t.Run("CreateEntry", func(t *testing.T) { testCreateEntry(t, newStore(t)) })
	t.Run("ImportHistory", func(t *testing.T) { testImportHistory(t, newStore(t)) })
	t.Run("ManyCodes", func(t *testing.T) { testManyCodes(t, newStore(t)) })
}

func testSingleRow(t *testing.T, store core.Store) {
	svc := core.NewService(store, serviceConfig())
	ctx := context.Background()

	importBody(t, svc, Header+"DH1,KH1,An,S1,Retail,2024-01-01 10:00:00,C1,Drinks,SP1,Tea,2,100000\n")

	chart, err := svc.ChartData(ctx)
	require.NoError(t, err)
	require.Len(t, chart, 1)
	assert.Equal(t, core.ChartRecord{
		BillCode:     "DH1",
		CustomerCode: "KH1",
		CreatedAt:    "2024-01-01 10:00:00",
		ProductCode:  "SP1",
		ProductName:  "Tea",
		CategoryCode: "C1",
		CategoryName: "Drinks",
		Quantity:     2,
		Revenue:      200000,
	}, chart[0])

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Segments: 1, Customers: 1, Categories: 1, Products: 1, Bills: 1, BillLines: 1}, stats)
}

func testIdempotent(t *testing.T, store core.Store) {
	svc := core.NewService(store, serviceConfig())
	ctx := context.Background()
	body := Header +
		"DH1,KH1,An,S1,,2024-01-01 10:00:00,C1,,SP1,,2,100\n" +
		"DH1,KH1,An,S1,,2024-01-01 10:00:00,C1,,SP2,,1,50\n" +
		"DH2,,,S2,,2024-01-02 11:00:00,C2,,SP3,,4,10\n"

	importBody(t, svc, body)
	first, err := store.Stats(ctx)
	require.NoError(t, err)
	firstChart, err := svc.ChartData(ctx)
	require.NoError(t, err)

	importBody(t, svc, body)
	second, err := store.Stats(ctx)
	require.NoError(t, err)
	secondChart, err := svc.ChartData(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstChart, secondChart)
	assert.Equal(t, int64(3), second.BillLines)
}

func testLastQuantityWins(t *testing.T, store core.Store) {
	svc := core.NewService(store, serviceConfig())

	res := importBody(t, svc, Header+
		"DH1,KH1,An,S1,,2024-01-01 10:00:00,C1,,SP1,,2,100\n"+
		"DH1,KH1,An,S1,,2024-01-01 10:00:00,C1,,SP1,,7,100\n")
	assert.Equal(t, 2, res.LinesWritten)

	chart, err := svc.ChartData(context.Background())
	require.NoError(t, err)
	require.Len(t, chart, 1)
	assert.Equal(t, int64(7), chart[0].Quantity)
	assert.Equal(t, int64(700), chart[0].Revenue)
}

func testUpdatesExisting(t *testing.T, store core.Store) {
	svc := core.NewService(store, serviceConfig())
	ctx := context.Background()

	importBody(t, svc, Header+"DH1,KH1,An,S1,,2024-01-01 10:00:00,C1,Drinks,SP1,Tea,2,100\n")
	importBody(t, svc, Header+"DH1,KH1,An,S1,,2024-02-02 08:00:00,C1,Food,SP1,Green tea,3,150\n")

	chart, err := svc.ChartData(ctx)
	require.NoError(t, err)
	require.Len(t, chart, 1)
	assert.Equal(t, "2024-02-02 08:00:00", chart[0].CreatedAt)
	assert.Equal(t, "Green tea", chart[0].ProductName)
	assert.Equal(t, "Drinks", chart[0].CategoryName, "existing category keeps its name")
	assert.Equal(t, int64(450), chart[0].Revenue)
}

func testBillWithoutCustomer(t *testing.T, store core.Store) {
	svc := core.NewService(store, serviceConfig())

	importBody(t, svc, Header+"DH1,,,S1,,2024-01-01 10:00:00,C1,,SP1,,1,5\n")

	chart, err := svc.ChartData(context.Background())
	require.NoError(t, err)
	require.Len(t, chart, 1)
	assert.Equal(t, "", chart[0].CustomerCode)
}

// failingStore fails the bill line phase after the other phases have written.
type failingStore struct {
	core.Store
}

type failingTx struct {
	core.Tx
}

var errLineWrite = errors.New("line write failed")

func (s failingStore) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingTx{tx}, nil
}

func (failingTx) UpsertBillLines(context.Context, []core.LineRef) error {
	return errLineWrite
}

func testRollbackOnFailure(t *testing.T, store core.Store) {
	ctx := context.Background()
	svc := core.NewService(failingStore{store}, serviceConfig())

	_, err := svc.Import(ctx, "sales.csv", strings.NewReader(Header+
		"DH1,KH1,An,S1,,2024-01-01 10:00:00,C1,,SP1,,2,100\n"), "")
	require.ErrorIs(t, err, errLineWrite)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{}, stats)

	history, err := store.ListImports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.ImportFailed, history[0].Status)
}

func testCreateEntry(t *testing.T, store core.Store) {
	ctx := context.Background()
	svc := core.NewService(store, serviceConfig())

	entry := core.Entry{
		BillCode:     "DH9",
		CustomerCode: "KH1",
		CustomerName: "An",
		SegmentCode:  "S1",
		CreatedAt:    time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		CategoryCode: "C1",
		ProductCode:  "SP1",
		Quantity:     3,
		Price:        1000,
	}
	require.NoError(t, svc.CreateEntry(ctx, entry))

	entry.ProductCode = "SP2"
	require.ErrorIs(t, svc.CreateEntry(ctx, entry), core.ErrDuplicateCode)

	chart, err := svc.ChartData(ctx)
	require.NoError(t, err)
	require.Len(t, chart, 1)
	assert.Equal(t, "2024-03-01 09:30:00", chart[0].CreatedAt)
	assert.Equal(t, int64(3000), chart[0].Revenue)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Products, "duplicate entry left no product behind")
}

func testImportHistory(t *testing.T, store core.Store) {
	ctx := context.Background()
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{"a.csv", "b.csv", "c.csv"} {
		require.NoError(t, store.RecordImport(ctx, core.ImportRecord{
			ID:           uuid.NewString(),
			FileName:     name,
			Status:       core.ImportSucceeded,
			RowsRead:     10,
			LinesWritten: 9,
			LinesSkipped: 1,
			StartedAt:    started.Add(time.Duration(i) * time.Minute),
			Duration:     1500 * time.Millisecond,
			IPAddress:    "10.0.0.1",
			UserAgent:    "test",
		}))
	}

	got, err := store.ListImports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c.csv", got[0].FileName)
	assert.Equal(t, "b.csv", got[1].FileName)
	assert.True(t, got[0].StartedAt.Equal(started.Add(2*time.Minute)))
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.Equal(t, 1, got[0].LinesSkipped)
	assert.Equal(t, "10.0.0.1", got[0].IPAddress)
}

// testManyCodes crosses the lookup and batch chunk sizes of both stores.
func testManyCodes(t *testing.T, store core.Store) {
	svc := core.NewService(store, serviceConfig())

	var b strings.Builder
	b.WriteString(Header)
	const n = 1205
	for i := range n {
		b.WriteString("DH")
		b.WriteString(strconv.Itoa(i / 10))
		b.WriteString(",KH1,An,S1,,2024-01-01 10:00:00,C1,,SP")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(",,1,1\n")
	}

	res := importBody(t, svc, b.String())
	assert.Equal(t, n, res.LinesWritten)
	assert.Zero(t, res.LinesSkipped)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.Products)
	assert.Equal(t, int64(n), stats.BillLines)
	assert.Equal(t, int64(n/10+1), stats.Bills)
}
