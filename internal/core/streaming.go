package core

// streaming.go provides the reader chain placed in front of encoding/csv.
//
// Reference files are commonly exported from spreadsheets, so the chain:
//
//   - drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - replaces invalid UTF-8 bytes with '?' without growing the buffer
//   - counts bytes for progress logging
//
// Use wrapSource to apply all three in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newBOMSkippingReader returns a reader that omits a leading UTF-8 BOM.
func newBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams through.
// A multi-byte rune split across two reads is carried over in pending.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	atEOF := err == io.EOF
	w := 0
	for i := 0; i < n; {
		if p[i] < utf8.RuneSelf {
			p[w] = p[i]
			w++
			i++
			continue
		}

		if !atEOF && !utf8.FullRune(p[i:n]) {
			s.pending = append(s.pending, p[i:n]...)
			break
		}

		r, size := utf8.DecodeRune(p[i:n])
		if r == utf8.RuneError && size == 1 {
			p[w] = '?'
			w++
			i++
			continue
		}
		copy(p[w:], p[i:i+size])
		w += size
		i += size
	}

	// Everything read so far was a split rune; ask the caller to read again.
	if w == 0 && err == nil {
		return s.Read(p)
	}
	return w, err
}

// countingReader tracks the number of bytes handed to the CSV reader.
type countingReader struct {
	r     io.Reader
	bytes int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.bytes += int64(n)
	return n, err
}

// wrapSource applies BOM skipping, UTF-8 sanitizing and byte counting.
// The BOM must be stripped before sanitizing, or its bytes would be kept.
func wrapSource(r io.Reader) *countingReader {
	return &countingReader{r: newUTF8Sanitizer(newBOMSkippingReader(r))}
}
