package core

// convert.go turns raw CSV cells into typed values.
//
// Nothing here fails a row: text falls back to a caller default, numbers
// fall back to zero. Only the bill timestamp reports an error, because the
// caller decides to skip the row on it.

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TimestampLayout is the only accepted format of the creation-time column.
const TimestampLayout = "2006-01-02 15:04:05"

// entryTimestampLayouts are accepted from the manual entry form, which may
// be filled by an HTML datetime-local input.
var entryTimestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// TextOr returns the trimmed value, or def when it is absent or blank.
func TextOr(value string, present bool, def string) string {
	if !present {
		return def
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	return value
}

// IntOrZero parses a trimmed integer. Blank input yields 0 quietly; any
// other parse failure yields 0 with defaulted set.
func IntOrZero(value string, present bool) (n int64, defaulted bool) {
	value = strings.TrimSpace(value)
	if !present || value == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, true
	}
	return n, false
}

// ParseTimestamp parses a bill creation time in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(value), loc)
}

// parseEntryTimestamp accepts the looser layouts of the entry form.
func parseEntryTimestamp(value string, loc *time.Location) (time.Time, error) {
	var firstErr error
	for _, layout := range entryTimestampLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// FormatTimestamp renders t in loc using TimestampLayout; zero renders "".
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(TimestampLayout)
}

// NormalizeLabel cleans a header cell for exact matching: a leading BOM,
// surrounding whitespace and quotes are removed and the text is put in NFC,
// so precomposed and decomposed Vietnamese diacritics compare equal.
func NormalizeLabel(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	return norm.NFC.String(s)
}
