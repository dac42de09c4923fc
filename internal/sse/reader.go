package sse

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

// LineReader splits a byte stream into lines regardless of how the bytes
// were chunked by the network. Lines are assembled from raw bytes and only
// converted to text once the newline is seen, so a multi-byte character split
// across two reads is never corrupted.
//
// A trailing fragment without a newline is discarded at end of stream.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader returns a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// Next returns the next complete line with trailing whitespace (including
// any CR of a CRLF pair) removed. It returns io.EOF when the stream ends.
func (l *LineReader) Next() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRightFunc(line, unicode.IsSpace), nil
}
