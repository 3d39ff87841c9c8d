// Package dataset holds the immutable tabular snapshot the assistant retrieves
// from, the sources that produce it and a time-bounded store in front of them.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoHeader is returned when a source yields no records at all.
	ErrNoHeader = errors.New("dataset has no header row")

	// ErrUnavailable wraps every failure to obtain a snapshot: timeouts,
	// non-2xx responses, unreadable files.
	ErrUnavailable = errors.New("dataset unavailable")
)

// Row is one data record. Rows may be shorter than the header.
type Row []string

// Cell returns the value at column i, or "" when the row is short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Cells returns exactly n cells, padding short rows with empty strings.
func (r Row) Cells(n int) []string {
	out := make([]string, n)
	copy(out, r)
	return out
}

// Dataset is a snapshot of a sheet. Rows exclude the header: Rows[i] is
// presented to users as row i+1.
type Dataset struct {
	Header    []string  `json:"header"`
	Rows      []Row     `json:"rows"`
	FetchedAt time.Time `json:"fetched_at"`
	SourceID  string    `json:"source_id"`

	fingerprint string
}

// New builds a dataset from raw records whose first record is the header.
func New(sourceID string, records [][]string, fetchedAt time.Time) (*Dataset, error) {
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(name)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, Row(rec))
	}

	ds := &Dataset{
		Header:    header,
		Rows:      rows,
		FetchedAt: fetchedAt,
		SourceID:  sourceID,
	}
	ds.seal()
	return ds, nil
}

// seal records the fingerprint of a snapshot that will not change again.
func (d *Dataset) seal() {
	d.fingerprint = d.hash()
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Columns returns the number of header columns.
func (d *Dataset) Columns() int {
	if d == nil {
		return 0
	}
	return len(d.Header)
}

// Width is the widest of the header and every row, so short headers do not
// hide trailing cells.
func (d *Dataset) Width() int {
	w := d.Columns()
	if d == nil {
		return w
	}
	for _, r := range d.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// ColumnName returns the header name for column i, falling back to a
// positional name for cells beyond the header.
func (d *Dataset) ColumnName(i int) string {
	if d != nil && i >= 0 && i < len(d.Header) && d.Header[i] != "" {
		return d.Header[i]
	}
	return "column_" + strconv.Itoa(i+1)
}

// FreshAt reports whether the snapshot is still within ttl at instant now.
func (d *Dataset) FreshAt(now time.Time, ttl time.Duration) bool {
	return d != nil && now.Sub(d.FetchedAt) < ttl
}

// Fingerprint is a content hash of header and rows. Two snapshots with the
// same cells share a fingerprint regardless of fetch time.
func (d *Dataset) Fingerprint() string {
	if d.fingerprint != "" {
		return d.fingerprint
	}
	return d.hash()
}

func (d *Dataset) hash() string {
	h := sha256.New()
	write := func(cells []string) {
		for _, c := range cells {
			h.Write([]byte(c))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	write(d.Header)
	for _, r := range d.Rows {
		write(r)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
