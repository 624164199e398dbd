package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/salesboard/internal/logging"
)

// MaxReportedSkips caps the skipped-row details kept in an ImportResult.
// RowsSkipped still counts every skipped row.
const MaxReportedSkips = 100

// SkippedRow describes one row whose bill part was dropped.
type SkippedRow struct {
	Line     int    `json:"line"`
	BillCode string `json:"bill_code,omitempty"`
	Reason   string `json:"reason"`
}

// ImportResult summarizes a committed import.
type ImportResult struct {
	ImportID        string       `json:"import_id"`
	FileName        string       `json:"file_name"`
	RowsRead        int          `json:"rows_read"`
	RowsSkipped     int          `json:"rows_skipped"`
	Skipped         []SkippedRow `json:"skipped,omitempty"`
	DefaultedFields int          `json:"defaulted_fields"`
	MissingColumns  []string     `json:"missing_columns,omitempty"`

	Segments   int `json:"segments"`
	Customers  int `json:"customers"`
	Categories int `json:"categories"`
	Products   int `json:"products"`
	Bills      int `json:"bills"`

	LinesWritten int `json:"lines_written"`
	LinesSkipped int `json:"lines_skipped"`

	BytesRead int64         `json:"bytes_read"`
	Duration  time.Duration `json:"-"`
}

// Import parses a sales export and reconciles it into the store in a single
// transaction. Either every entity of the file is committed or none is.
//
// charset names the file encoding; empty uses the configured default.
// Rows with an unparseable timestamp are skipped and reported in the result.
// Input problems return one of the input errors (see IsInputError); a busy
// service returns ErrTooManyImports.
func (s *Service) Import(ctx context.Context, fileName string, r io.Reader, charset string) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{ImportID: uuid.NewString(), FileName: fileName}
	log := logging.WithFields(ctx, "import_id", result.ImportID, "file", fileName)

	if !IsCSVFileName(fileName) {
		s.finish(ctx, log, result, start, ErrNotCSV)
		return nil, ErrNotCSV
	}
	if charset == "" {
		charset = s.defaultCharset
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		log.Warn("import rejected, no free slot", "error", err)
		return nil, err
	}
	defer s.limiter.Release()

	log.Info("import started", "charset", charset)

	importCtx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	err := s.runImport(importCtx, log, r, charset, result)
	s.finish(ctx, log, result, start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) runImport(ctx context.Context, log *slog.Logger, r io.Reader, charset string, result *ImportResult) error {
	src, err := WrapForImport(r, charset)
	if err != nil {
		return err
	}

	st, err := s.stage(src, log, result)
	if err != nil {
		return err
	}
	result.BytesRead = src.BytesRead
	result.Segments = st.segments.len()
	result.Customers = st.customers.len()
	result.Categories = st.categories.len()
	result.Products = st.products.len()
	result.Bills = st.bills.len()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	counts, err := reconcile(ctx, tx, st, log)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	result.LinesWritten = counts.LinesWritten
	result.LinesSkipped = counts.LinesSkipped
	return nil
}

// stage reads every row of the file into a staging snapshot.
func (s *Service) stage(src io.Reader, log *slog.Logger, result *ImportResult) (*staging, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, readError(err)
	}

	idx := MakeHeaderIndex(header)
	if idx.Known() == 0 {
		return nil, ErrHeaderNotFound
	}
	result.MissingColumns = idx.Missing()
	if len(result.MissingColumns) > 0 {
		log.Warn("header is missing columns, defaults apply", "missing", result.MissingColumns)
	}

	st := newStaging()
	for {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(err)
		}
		if isBlankRow(cells) {
			continue
		}

		line, _ := cr.FieldPos(0)
		row := ParseRecord(NewRecord(idx, cells), line, s.loc)
		result.RowsRead++
		result.DefaultedFields += row.Defaulted

		if !st.add(row) {
			result.RowsSkipped++
			if len(result.Skipped) < MaxReportedSkips {
				result.Skipped = append(result.Skipped, SkippedRow{
					Line:     line,
					BillCode: row.BillCode,
					Reason:   "invalid timestamp: " + row.TimestampErr.Error(),
				})
			}
			log.Debug("row skipped, invalid timestamp", "line", line, "bill_code", row.BillCode)
		}
	}
	return st, nil
}

// readError classifies a csv.Reader failure.
func readError(err error) error {
	if errors.Is(err, ErrInvalidEncoding) {
		return err
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: line %d: %v", ErrMalformedCSV, pe.Line, pe.Err)
	}
	return fmt.Errorf("read upload: %w", err)
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// finish logs the outcome, appends the history entry and reports metrics.
func (s *Service) finish(ctx context.Context, log *slog.Logger, result *ImportResult, start time.Time, err error) {
	result.Duration = time.Since(start)

	status := ImportSucceeded
	switch {
	case err == nil:
		log.Info("import committed",
			"rows_read", result.RowsRead,
			"rows_skipped", result.RowsSkipped,
			"lines_written", result.LinesWritten,
			"lines_skipped", result.LinesSkipped,
			"duration", result.Duration,
		)
	case IsInputError(err):
		status = ImportRejected
		log.Warn("import rejected", "error", err)
	default:
		status = ImportFailed
		log.Error("import failed, rolled back", "error", err, "duration", result.Duration)
	}

	rec := ImportRecord{
		ID:           result.ImportID,
		FileName:     result.FileName,
		Status:       status,
		RowsRead:     result.RowsRead,
		RowsSkipped:  result.RowsSkipped,
		LinesWritten: result.LinesWritten,
		LinesSkipped: result.LinesSkipped,
		StartedAt:    start,
		Duration:     result.Duration,
		IPAddress:    IPAddressFromContext(ctx),
		UserAgent:    UserAgentFromContext(ctx),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	// The history entry is written even when the request context is gone.
	histCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if herr := s.store.RecordImport(histCtx, rec); herr != nil {
		log.Error("failed to record import history", "error", herr)
	}

	s.recorder.ImportFinished(status, result, result.Duration)
}
