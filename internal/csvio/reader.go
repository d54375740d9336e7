// Package csvio builds tolerant, streaming CSV readers for operator exports.
// It layers charset transcoding, UTF-8 BOM stripping, and delimiter sniffing
// under a standard encoding/csv reader configured for dirty input
// (LazyQuotes, variable field counts, reused record buffers).
//
// Nothing here materializes the file: every layer wraps the underlying
// stream, so memory stays bounded regardless of input size.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const utf8BOM = "\ufeff"

// Options tunes reader construction. The zero value sniffs the delimiter,
// assumes UTF-8, trims leading space, and tolerates lazy quotes.
type Options struct {
	// Delimiter forces a field separator; 0 means sniff from the first line
	// among comma, semicolon, tab, and pipe.
	Delimiter rune

	// Encoding names the source charset: "", "utf-8", "latin1" /
	// "iso-8859-1", or "windows-1252". Unknown names are an error.
	Encoding string

	// StrictQuotes disables LazyQuotes; most operator exports need it off.
	StrictQuotes bool
}

// NewReader wraps src in a csv.Reader per opt. The returned reader uses
// ReuseRecord; callers must copy cells they keep across Read calls.
func NewReader(src io.Reader, opt Options) (*csv.Reader, error) {
	decoded, err := decode(src, opt.Encoding)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(decoded, 64*1024)
	stripBOM(br)

	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.ReuseRecord = true
	cr.LazyQuotes = !opt.StrictQuotes
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // tolerate ragged rows; the normalizer copes
	return cr, nil
}

func decode(src io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return src, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(src), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(src), nil
	default:
		return nil, fmt.Errorf("csvio: unsupported encoding %q", encoding)
	}
}

// stripBOM consumes a leading UTF-8 byte order mark if present.
func stripBOM(br *bufio.Reader) {
	bom, err := br.Peek(len(utf8BOM))
	if err == nil && string(bom) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
}

// sniffDelimiter picks the candidate separator occurring most often outside
// quotes in the first line. Ties and empty lines fall back to comma.
func sniffDelimiter(br *bufio.Reader) rune {
	const peekMax = 8 * 1024
	buf, _ := br.Peek(peekMax)
	if ix := bytes.IndexByte(buf, '\n'); ix >= 0 {
		buf = buf[:ix]
	}

	counts := map[rune]int{',': 0, ';': 0, '\t': 0, '|': 0}
	inQuotes := false
	for _, b := range buf {
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case !inQuotes:
			if _, ok := counts[rune(b)]; ok {
				counts[rune(b)]++
			}
		}
	}

	best, bestN := ',', 0
	// Deterministic order so ties resolve the same way every run.
	for _, c := range []rune{',', ';', '\t', '|'} {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return best
}
