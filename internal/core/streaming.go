package core

// streaming.go provides reader wrappers applied to every CSV source before
// parsing:
//
//   - skipBOM: drops the UTF-8 BOM (0xEF 0xBB 0xBF) written by Windows tools
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?' without buffering the file
//   - CountingReader: tracks bytes read for metrics
//
// Use WrapForStreaming to apply all of them in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after a leading UTF-8 BOM, if any.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams
// through. A multi-byte sequence split across two reads is held back until
// the next read completes it.
type UTF8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax && len(s.pending) == 0 {
		// Too small to guarantee progress with a held-back sequence.
		n, err := s.r.Read(p)
		return sanitizeInPlace(p[:n]), err
	}

	n := copy(p, s.pending)
	s.pending = append(s.pending[:0], s.pending[n:]...)
	if n == len(p) {
		return n, nil
	}

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	atEOF := err == io.EOF

	// Hold back an incomplete trailing sequence for the next call.
	if !atEOF {
		if tail := incompleteTail(data); tail > 0 {
			s.pending = append(s.pending, data[len(data)-tail:]...)
			data = data[:len(data)-tail]
		}
	}

	return sanitizeInPlace(data), err
}

// incompleteTail returns how many trailing bytes start a multi-byte rune
// that is not yet complete.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if utf8.RuneStart(b) {
			if b < utf8.RuneSelf {
				return 0
			}
			if !utf8.FullRune(data[len(data)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}

// sanitizeInPlace rewrites invalid bytes as '?' and returns the new length.
// Replacements never grow the data.
func sanitizeInPlace(data []byte) int {
	if utf8.Valid(data) {
		return len(data)
	}

	w := 0
	for r := 0; r < len(data); {
		ru, size := utf8.DecodeRune(data[r:])
		if ru == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

// CountingReader tracks bytes read.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// WrapForStreaming applies BOM skipping, UTF-8 sanitization and byte counting.
//
// The order matters:
// 1. BOM must be stripped first (before any processing)
// 2. UTF-8 sanitization happens next
// 3. Counting wraps everything
func WrapForStreaming(r io.Reader) *CountingReader {
	return &CountingReader{r: NewUTF8Sanitizer(skipBOM(r))}
}
