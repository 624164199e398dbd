package core

import "errors"

// Input errors. An import failing with one of these wrote nothing and the
// caller sent something unusable; transport layers map them to 4xx.
var (
	ErrNotCSV             = errors.New("uploaded file is not a .csv file")
	ErrEmptyFile          = errors.New("uploaded file is empty")
	ErrInvalidEncoding    = errors.New("file is not valid UTF-8")
	ErrUnsupportedCharset = errors.New("unsupported charset")
	ErrHeaderNotFound     = errors.New("header row has none of the expected columns")
	ErrMalformedCSV       = errors.New("malformed CSV")
	ErrInvalidEntry       = errors.New("invalid entry")
)

// ErrDuplicateCode is returned by the store when a create collides with an
// existing business code.
var ErrDuplicateCode = errors.New("code already exists")

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// IsInputError reports whether err was caused by the submitted data rather
// than by the store.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrNotCSV, ErrEmptyFile, ErrInvalidEncoding, ErrUnsupportedCharset,
		ErrHeaderNotFound, ErrMalformedCSV, ErrInvalidEntry,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
