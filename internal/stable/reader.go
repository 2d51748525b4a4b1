package stable

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Delimiter names the column separator of the input file.
type Delimiter string

const (
	DelimiterTab   Delimiter = "tab"
	DelimiterComma Delimiter = "comma"
	DelimiterAuto  Delimiter = "auto" // sniffed from the header line
)

// ParseDelimiter validates a delimiter name from config or flags.
func ParseDelimiter(s string) (Delimiter, error) {
	switch d := Delimiter(strings.ToLower(strings.TrimSpace(s))); d {
	case DelimiterTab, DelimiterComma, DelimiterAuto:
		return d, nil
	case "":
		return DelimiterTab, nil
	default:
		return "", eris.Errorf("stable: unknown delimiter %q (want tab, comma or auto)", s)
	}
}

// Reader streams raw rows from a delimited licensed-stables file. The
// header row is skipped. Column counts are not enforced here so that
// Normalize reports them as invalid rows.
type Reader struct {
	csv        *csv.Reader
	closer     io.Closer
	headerSeen bool
	line       int
}

// NewReader wraps r. With DelimiterAuto the header line decides: a tab
// anywhere in it selects tab, otherwise comma.
func NewReader(r io.Reader, delim Delimiter) (*Reader, error) {
	br := bufio.NewReader(r)

	comma := '\t'
	switch delim {
	case DelimiterComma:
		comma = ','
	case DelimiterAuto:
		head, err := br.Peek(br.Size())
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, eris.Wrap(err, "stable: sniff delimiter")
		}
		if i := bytes.IndexByte(head, '\n'); i >= 0 {
			head = head[:i]
		}
		if !bytes.Contains(head, []byte{'\t'}) {
			comma = ','
		}
	case DelimiterTab, "":
	default:
		return nil, eris.Errorf("stable: unknown delimiter %q", delim)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	return &Reader{csv: cr}, nil
}

// Open opens path for streaming.
func Open(path string, delim Delimiter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "stable: open input")
	}
	r, err := NewReader(f, delim)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next data row and its 1-based line number. It returns
// io.EOF after the last row.
func (r *Reader) Next() ([]string, int, error) {
	for {
		row, err := r.csv.Read()
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		if err != nil {
			return nil, 0, eris.Wrap(err, "stable: read row")
		}
		r.line, _ = r.csv.FieldPos(0)

		if !r.headerSeen {
			r.headerSeen = true
			continue
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		return row, r.line, nil
	}
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
