// Package table provides row-oriented access to a job's working table: a
// header-carrying CSV whose first column is row_id. Readers stream records;
// writers build a temporary sibling file and atomically rename it over the
// original, so the table is never observable half-written.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Reader streams the working table. The header row is consumed on open.
type Reader struct {
	file   *os.File
	csv    *csv.Reader
	Header []string
}

// OpenReader opens the working table and reads its header row.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open working table: %w", err)
	}
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("working table has no header")
		}
		return nil, fmt.Errorf("read working header: %w", err)
	}
	return &Reader{file: file, csv: r, Header: header}, nil
}

// Next returns the next data row, or io.EOF when the table is exhausted.
func (r *Reader) Next() ([]string, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read working row: %w", err)
	}
	return record, nil
}

func (r *Reader) Close() error { return r.file.Close() }

// Index returns the position of column in the header, or -1.
func (r *Reader) Index(column string) int {
	for i, name := range r.Header {
		if name == column {
			return i
		}
	}
	return -1
}

// Cell returns the record's value for the given header index, treating short
// rows as empty.
func Cell(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return record[index]
}

// Writer accumulates a replacement working table in a temporary sibling
// file. Commit renames it over the target; Discard leaves the target
// untouched.
type Writer struct {
	path     string
	tempPath string
	file     *os.File
	csv      *csv.Writer
}

// NewWriter creates the temporary sibling file for path.
func NewWriter(path string) (*Writer, error) {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("create temp table: %w", err)
	}
	return &Writer{path: path, tempPath: tempPath, file: file, csv: csv.NewWriter(file)}, nil
}

func (w *Writer) Write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write temp row: %w", err)
	}
	return nil
}

// Commit flushes the temporary file and renames it over the original.
func (w *Writer) Commit() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.Discard()
		return fmt.Errorf("flush temp table: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("close temp table: %w", err)
	}
	if err := os.Rename(w.tempPath, w.path); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("replace working table: %w", err)
	}
	return nil
}

// Discard abandons the temporary file.
func (w *Writer) Discard() {
	w.file.Close()
	os.Remove(w.tempPath)
}
