package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/salesboard/internal/config"
)

// Service provides the sales import, manual entry and chart operations.
// It is safe for concurrent use; all shared state lives in the Store.
type Service struct {
	store    Store
	limiter  *ImportLimiter
	recorder Recorder

	loc            *time.Location
	defaultCharset string
	importTimeout  time.Duration
	historyLimit   int

	now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder reports import outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock replaces time.Now, used for manual entries without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		store:          store,
		limiter:        NewImportLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		recorder:       nopRecorder{},
		loc:            cfg.Import.Location(),
		defaultCharset: cfg.Import.DefaultCharset,
		importTimeout:  cfg.Upload.Timeout,
		historyLimit:   cfg.Import.HistoryLimit,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limiter exposes the import limiter for status reporting and shutdown.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// Location is the zone timestamps are parsed and rendered in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ChartData returns every (bill, customer, product, category) group with
// its summed quantity and revenue, ordered by bill code then product code.
func (s *Service) ChartData(ctx context.Context) ([]ChartRecord, error) {
	rows, err := s.store.ChartRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chart rows: %w", err)
	}

	out := make([]ChartRecord, len(rows))
	for i, r := range rows {
		out[i] = newChartRecord(r, s.loc)
	}
	return out, nil
}

// Stats returns entity counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count entities: %w", err)
	}
	return st, nil
}

// History returns recent imports, newest first. A non-positive limit uses
// the configured default.
func (s *Service) History(ctx context.Context, limit int) ([]ImportRecord, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	recs, err := s.store.ListImports(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return recs, nil
}

// Ping checks the store connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// IsCSVFileName reports whether name carries a .csv extension, in any case.
func IsCSVFileName(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".csv")
}
