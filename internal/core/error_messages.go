package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Users quote the code; support looks it up here.
//
// # File errors (FILE001-FILE099)
//
//	FILE001 - not a .csv file
//	FILE002 - malformed CSV (unbalanced quotes and the like)
//	FILE003 - invalid UTF-8 in the file
//	FILE004 - no file in the request
//	FILE005 - empty file
//	FILE006 - unsupported charset
//	FILE007 - file too large
//
// # Validation errors (VAL001-VAL099)
//
//	VAL001 - header has none of the expected columns
//	VAL002 - manual entry form is invalid
//
// # Database errors (DB001-DB099)
//
//	DB001 - business code already exists
//	DB002 - referenced record does not exist
//	DB003 - cannot reach the database
//	DB004 - connection interrupted
//	DB005 - database busy (deadlock, serialization failure)
//
// # Import errors (IMP001-IMP099)
//
//	IMP001 - all import slots busy
//	IMP002 - request cancelled
//	IMP003 - import timed out
//
// # Rate limiting (RATE001)
//
// # Default (ERR000)
//
// Known sentinel errors are matched with errors.Is first. Anything else is
// matched case-insensitively by message pattern; the first match wins. If
// ERR000 is reported, the original error is in the application log under
// the same request_id.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrNotCSV, UserMessage{"Only .csv files can be imported", "Export the sheet as CSV and upload it again", "FILE001"}},
	{ErrMalformedCSV, UserMessage{"File is not a valid CSV", "Check for unbalanced quotes in the file", "FILE002"}},
	{ErrInvalidEncoding, UserMessage{"File contains invalid characters", "Save the file as UTF-8 or pick its charset", "FILE003"}},
	{ErrEmptyFile, UserMessage{"The uploaded file is empty", "Upload a CSV file with a header and data rows", "FILE005"}},
	{ErrUnsupportedCharset, UserMessage{"The selected charset is not supported", "Use utf-8, utf-16, windows-1252, windows-1258 or iso-8859-1", "FILE006"}},
	{ErrHeaderNotFound, UserMessage{"No known column was found in the header row", "Make sure the first row holds the sales export column names", "VAL001"}},
	{ErrInvalidEntry, UserMessage{"Some fields of the entry are invalid", "Correct the highlighted fields and submit again", "VAL002"}},
	{ErrDuplicateCode, UserMessage{"A record with this code already exists", "Use a new bill code or import the file instead", "DB001"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP001"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "IMP002"}},
	{context.DeadlineExceeded, UserMessage{"Import timed out", "Try a smaller file or try again later", "IMP003"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns match driver errors that carry no sentinel.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this code already exists", "Review your data for duplicate codes", "DB001"}},
	{"unique constraint", UserMessage{"A record with this code already exists", "Review your data for duplicate codes", "DB001"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Please try the import again", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"database is locked", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"could not serialize", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to upload", "FILE004"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE007"}},
	{"request body too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE007"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(fmt.Errorf("create bill: %w", ErrDuplicateCode))
//	// msg.Code == "DB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
