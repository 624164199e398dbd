package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/salesboard/internal/config"
	"github.com/JonMunkholm/salesboard/internal/core"
	"github.com/JonMunkholm/salesboard/internal/store/sqlite"
	"github.com/JonMunkholm/salesboard/internal/store/storetest"
)

func testConfig() *config.Config {
	return &config.Config{
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: 100 * time.Millisecond, Timeout: time.Minute},
		Import:   config.ImportConfig{Timezone: "UTC", DefaultCharset: "utf-8", HistoryLimit: 50},
		Security: config.SecurityConfig{EnableCSP: true},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := NewServer(core.NewService(store, cfg), cfg, opts...)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, name, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func entryRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/inputform/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const sampleCSV = storetest.Header + "DH1,KH1,An,S1,Retail,2024-01-01 10:00:00,C1,Drinks,SP1,Tea,2,100000\n"

func TestImport_Success(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, uploadRequest(t, "sales.csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success string            `json:"success"`
		Summary core.ImportResult `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, successMessage, resp.Success)
	assert.Equal(t, 1, resp.Summary.RowsRead)
	assert.Equal(t, 1, resp.Summary.LinesWritten)
	assert.NotEmpty(t, resp.Summary.ImportID)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/get_chart_data/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var chart []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	require.Len(t, chart, 1)
	assert.Equal(t, "DH1", chart[0]["Mã đơn hàng"])
	assert.Equal(t, "2024-01-01 10:00:00", chart[0]["Thời gian tạo đơn"])
	assert.Equal(t, float64(200000), chart[0]["Thành tiền"])
	assert.Equal(t, float64(2), chart[0]["SL"])
}

func TestImport_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 2048

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not csv",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "sales.xlsx", sampleCSV) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE001",
		},
		{
			name:       "empty file",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "sales.csv", "") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE005",
		},
		{
			name:       "unknown header",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "sales.csv", "a,b,c\n1,2,3\n") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL001",
		},
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				var buf bytes.Buffer
				mw := multipart.NewWriter(&buf)
				require.NoError(t, mw.WriteField("charset", "utf-8"))
				require.NoError(t, mw.Close())
				req := httptest.NewRequest(http.MethodPost, "/import/", &buf)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "sales.csv", sampleCSV+strings.Repeat("x", 4096))
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE007",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, cfg)
			rec := serve(s, tt.req(t))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestEntry(t *testing.T) {
	s := newTestServer(t, testConfig())
	form := url.Values{
		core.FieldBillCode:     {"DH9"},
		core.FieldCustomerCode: {"KH1"},
		core.FieldCustomerName: {"An"},
		core.FieldCreatedAt:    {"2024-03-01T09:30"},
		core.FieldProductCode:  {"SP1"},
		core.FieldQuantity:     {"3"},
		core.FieldPrice:        {"1000"},
	}

	rec := serve(s, entryRequest(form))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, fmt.Sprintf(`{"success": %q}`, successMessage), rec.Body.String())

	rec = serve(s, entryRequest(form))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DB001", decodeError(t, rec).Code)

	form.Set(core.FieldQuantity, "many")
	form.Set(core.FieldBillCode, "DH10")
	rec = serve(s, entryRequest(form))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL002", decodeError(t, rec).Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats core.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Bills)
	assert.Equal(t, int64(1), stats.BillLines)
}

func TestChartData_Empty(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/get_chart_data/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestImportHistory(t *testing.T) {
	s := newTestServer(t, testConfig())

	serve(s, uploadRequest(t, "first.csv", sampleCSV))
	serve(s, uploadRequest(t, "second.txt", sampleCSV))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var history []core.ImportRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)

	statuses := map[string]string{}
	for _, h := range history {
		statuses[h.FileName] = h.Status
	}
	assert.Equal(t, core.ImportSucceeded, statuses["first.csv"])
	assert.Equal(t, core.ImportRejected, statuses["second.txt"])
}

func TestPagesAndHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/", "/nhapdulieu/", "/inputform/"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsMounted(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("metrics")) })

	s := newTestServer(t, testConfig(), WithMetricsHandler(h))
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "metrics", rec.Body.String())

	cfg := testConfig()
	cfg.Metrics.Enabled = false
	s = newTestServer(t, cfg, WithMetricsHandler(h))
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 1}
	s := newTestServer(t, cfg)

	rec := serve(s, uploadRequest(t, "sales.csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, uploadRequest(t, "sales.csv", sampleCSV))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Reads draw on the general budget.
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/get_chart_data/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := &rateLimiter{visitors: map[string]*visitor{}, rate: 2, window: time.Minute, now: func() time.Time { return now }}

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "budgets are per client")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("a"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNotCSV, http.StatusBadRequest},
		{fmt.Errorf("line 3: %w", core.ErrMalformedCSV), http.StatusBadRequest},
		{core.ErrInvalidEntry, http.StatusBadRequest},
		{fmt.Errorf("bill %q: %w", "DH1", core.ErrDuplicateCode), http.StatusConflict},
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("upsert bills: boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
