package core

// streaming.go provides the reader wrappers applied to uploaded files:
//
//   - BOMSkippingReader: drops a leading UTF-8 BOM written by Excel on Windows
//   - CountingReader: tracks bytes read for logging and size limits
//
// and toUTF8, which re-decodes CSV text saved in a legacy Windows code page.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReader(r)}
}

// Read implements io.Reader. The first call discards a BOM at the head of the stream.
func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			if _, err := b.r.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return b.r.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// toUTF8 returns data unchanged when it is valid UTF-8. Otherwise it is
// decoded as Windows-1252, the code page Excel uses for "CSV" exports on
// Portuguese Windows installs. The second value names the detected encoding.
func toUTF8(data []byte) ([]byte, string) {
	if utf8.Valid(data) {
		return data, "utf-8"
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return bytes.ToValidUTF8(data, []byte("�")), "utf-8-lossy"
	}
	return decoded, "windows-1252"
}
