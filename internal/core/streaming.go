package core

// streaming.go provides the reader chain an import file passes through
// before it reaches the CSV parser:
//
//   - charset decoding for legacy Windows exports (golang.org/x/text)
//   - BOMSkippingReader: removes a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - UTF8Validator: fails the import on the first invalid UTF-8 sequence
//   - CountingReader: tracks bytes read for the import log
//
// Use WrapForImport to apply all of them in the correct order. Memory use
// is bounded by the csv.Reader buffer, not by the file size.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader skips a UTF-8 BOM at the start of the stream.
type BOMSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{br: bufio.NewReader(r)}
}

// Read implements io.Reader. The BOM check happens on the first call.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		// Peek fails on streams shorter than a BOM; those pass through.
		if b, err := r.br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
			if _, err := r.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.br.Read(p)
}

// UTF8Validator passes bytes through unchanged and fails with
// ErrInvalidEncoding as soon as the stream stops being valid UTF-8.
// Multi-byte sequences split across reads are carried over, not rejected.
type UTF8Validator struct {
	reader io.Reader

	// Tail of the previous read that may start a multi-byte sequence.
	pending []byte
	offset  int64
	err     error
}

// NewUTF8Validator creates a new streaming validator.
func NewUTF8Validator(r io.Reader) *UTF8Validator {
	return &UTF8Validator{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (v *UTF8Validator) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}

	n, err := v.reader.Read(p)
	if n > 0 {
		chunk := append(v.pending, p[:n]...)
		tail := 0
		if err == nil {
			tail = incompleteTrailingBytes(chunk)
		}
		body := chunk[:len(chunk)-tail]
		if !isAllASCII(body) && !utf8.Valid(body) {
			return 0, v.fail(body)
		}
		v.offset += int64(len(body))
		v.pending = append(v.pending[:0], chunk[len(chunk)-tail:]...)
	}

	if err == io.EOF && len(v.pending) > 0 {
		v.err = fmt.Errorf("%w: truncated sequence at byte %d", ErrInvalidEncoding, v.offset)
		return 0, v.err
	}
	return n, err
}

func (v *UTF8Validator) fail(body []byte) error {
	pos := 0
	for pos < len(body) {
		r, size := utf8.DecodeRune(body[pos:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		pos += size
	}
	v.err = fmt.Errorf("%w: invalid sequence at byte %d", ErrInvalidEncoding, v.offset+int64(pos))
	return v.err
}

// isAllASCII returns true if all bytes are ASCII (< 128).
// Most CSV data is ASCII, so this skips the full validation.
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything but a continuation byte (10xxxxxx) ends the search.
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with byte b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// CountingReader tracks bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// charsetDecoder maps a charset name to its decoder. A nil decoder means
// the input is already UTF-8.
func charsetDecoder(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "windows-1258", "cp1258":
		return charmap.Windows1258.NewDecoder(), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCharset, name)
	}
}

// SupportedCharset reports whether name is accepted by WrapForImport.
func SupportedCharset(name string) bool {
	_, err := charsetDecoder(name)
	return err == nil
}

// WrapForImport builds the reader chain for an uploaded file.
//
// The order matters:
//  1. Legacy charsets are transcoded to UTF-8
//  2. The BOM is stripped before any parsing
//  3. UTF-8 validation rejects anything that is still not text
//  4. Counting wraps everything
func WrapForImport(r io.Reader, charset string) (*CountingReader, error) {
	dec, err := charsetDecoder(charset)
	if err != nil {
		return nil, err
	}

	src := r
	if dec != nil {
		src = transform.NewReader(r, dec)
	}
	return NewCountingReader(NewUTF8Validator(NewBOMSkippingReader(src))), nil
}
