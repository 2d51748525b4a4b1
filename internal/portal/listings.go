package portal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmmap/internal/model"
	"github.com/sells-group/farmmap/internal/stable"
)

// Stable converts l for geocoding. The portal publishes the address as a
// single line and no county.
func (l Listing) Stable() (*model.Stable, error) {
	row := []string{l.ID, l.Name, l.Address, l.Phone}
	switch {
	case strings.TrimSpace(l.ID) == "":
		return nil, &stable.InvalidRowError{Row: row, Reason: "empty id"}
	case strings.TrimSpace(l.Address) == "":
		return nil, &stable.InvalidRowError{Row: row, Reason: "empty address"}
	}
	return &model.Stable{
		ID:      strings.TrimSpace(l.ID),
		Name:    strings.TrimSpace(l.Name),
		Address: []string{strings.TrimSpace(l.Address)},
		Phone:   strings.TrimSpace(l.Phone),
	}, nil
}

// ListingReader streams a listings file, one JSON object per line.
type ListingReader struct {
	sc     *bufio.Scanner
	closer io.Closer
	line   int
}

// NewListingReader wraps r.
func NewListingReader(r io.Reader) *ListingReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &ListingReader{sc: sc}
}

// OpenListings opens path for streaming.
func OpenListings(path string) (*ListingReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "portal: open listings")
	}
	r := NewListingReader(f)
	r.closer = f
	return r, nil
}

// NextStable returns the next listing as a stable and io.EOF after the
// last one. Blank lines are skipped and a trailing comma is tolerated.
// A line that cannot be used yields a *stable.InvalidRowError.
func (r *ListingReader) NextStable() (*model.Stable, error) {
	for r.sc.Scan() {
		r.line++
		text := bytes.TrimSuffix(bytes.TrimSpace(r.sc.Bytes()), []byte(","))
		if len(text) == 0 {
			continue
		}

		var l Listing
		if err := json.Unmarshal(text, &l); err != nil {
			return nil, &stable.InvalidRowError{Line: r.line, Row: []string{string(text)}, Reason: "malformed listing"}
		}
		st, err := l.Stable()
		if err != nil {
			var rowErr *stable.InvalidRowError
			if errors.As(err, &rowErr) {
				rowErr.Line = r.line
			}
			return nil, err
		}
		return st, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, eris.Wrap(err, "portal: read listings")
	}
	return nil, io.EOF
}

// Close releases the underlying file, if any.
func (r *ListingReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// WriteListings replaces path with one JSON object per listing.
func WriteListings(path string, ls []Listing) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for i := range ls {
			if err := enc.Encode(&ls[i]); err != nil {
				return eris.Wrapf(err, "portal: encode %s", ls[i].ID)
			}
		}
		return nil
	})
}

// WriteIDs replaces path with one id per line.
func WriteIDs(path string, ids []string) error {
	return writeAtomic(path, func(w io.Writer) error {
		for _, id := range ids {
			if _, err := io.WriteString(w, id+"\n"); err != nil {
				return eris.Wrap(err, "portal: write id")
			}
		}
		return nil
	})
}

// ReadIDs reads a file written by WriteIDs. Blank lines are ignored.
func ReadIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "portal: read ids")
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "portal: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "portal: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "portal: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "portal: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "portal: rename to %s", path)
	}
	return nil
}
