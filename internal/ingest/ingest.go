// Package ingest turns an uploaded source file into the canonical working
// table: a comma-separated UTF-8 file whose first column is a generated
// row_id and whose remaining columns are the matched canonical columns in
// canonical order.
//
// Ingestion streams rows one at a time and writes the working table through a
// temporary sibling file, renamed into place only on success. A failed ingest
// never leaves a partial working table behind.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/databuddy/hrimport/internal/apperr"
	"github.com/databuddy/hrimport/internal/schema"
)

// DefaultMaxRows is the hard cap on data rows per upload.
const DefaultMaxRows = 50000

// Descriptor is the dataset metadata derived once at ingest time. The column
// set is immutable for the life of the job; only values change afterward.
type Descriptor struct {
	TotalRows        int      `json:"total_rows"`
	TotalColumns     int      `json:"total_columns"`
	CanonicalColumns []string `json:"canonical_columns"`
	UnknownColumns   []string `json:"unknown_columns"`
	RowIDColumn      string   `json:"row_id_column"`
}

// rowFunc yields the next data row as cells, or io.EOF when exhausted.
type rowFunc func() ([]Cell, error)

// File ingests originalPath into a working table at workingPath. Dispatch is
// by file extension; anything other than .csv or .xlsx is rejected.
func File(originalPath, workingPath string, maxRows int) (*Descriptor, error) {
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".csv":
		return fromCSV(originalPath, workingPath, maxRows)
	case ".xlsx":
		return fromXLSX(originalPath, workingPath, maxRows)
	default:
		return nil, apperr.New(apperr.UnsupportedFile, "Upload rejected: unsupported file type.").
			WithDetail("extension", filepath.Ext(originalPath))
	}
}

func fromCSV(originalPath, workingPath string, maxRows int) (*Descriptor, error) {
	in, err := os.Open(originalPath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	// Windows exports routinely carry a UTF-8 BOM; decode it away before the
	// CSV reader sees the first header byte.
	reader := csv.NewReader(transform.NewReader(in, unicode.UTF8BOM.NewDecoder()))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, emptyFileErr()
	}
	if err != nil {
		return nil, parseErr(err)
	}

	mapping := schema.MapHeader(header)
	next := func() ([]Cell, error) {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, parseErr(err)
		}
		cells := make([]Cell, len(record))
		for i, v := range record {
			cells[i] = TextCell(v)
		}
		return cells, nil
	}

	rowCount, err := writeWorking(workingPath, next, mapping, maxRows)
	if err != nil {
		return nil, err
	}
	return describe(rowCount, mapping), nil
}

// writeWorking streams rows into a temporary sibling of workingPath and
// renames it into place on success. Exceeding maxRows aborts immediately and
// removes the temporary file.
func writeWorking(workingPath string, next rowFunc, mapping schema.Mapping, maxRows int) (int, error) {
	if err := os.MkdirAll(filepath.Dir(workingPath), 0o755); err != nil {
		return 0, fmt.Errorf("create working dir: %w", err)
	}

	tempPath := workingPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("create working temp: %w", err)
	}
	discard := func() {
		out.Close()
		os.Remove(tempPath)
	}

	writer := csv.NewWriter(out)
	headerRow := append([]string{schema.RowIDColumn}, mapping.CanonicalColumns...)
	if err := writer.Write(headerRow); err != nil {
		discard()
		return 0, fmt.Errorf("write working header: %w", err)
	}

	rowCount := 0
	for {
		cells, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			discard()
			return 0, err
		}

		rowCount++
		if rowCount > maxRows {
			discard()
			return 0, apperr.New(apperr.UploadRejected,
				fmt.Sprintf("Upload rejected: dataset exceeds the %d row limit.", maxRows)).
				WithDetail("reason", apperr.ReasonTooManyRows).
				WithDetail("max_rows", maxRows).
				WithDetail("received_rows", rowCount)
		}

		record := make([]string, 0, len(headerRow))
		record = append(record, uuid.NewString())
		for _, column := range mapping.CanonicalColumns {
			index := mapping.ColumnIndex[column]
			cell := MissingCell()
			if index < len(cells) {
				cell = cells[index]
			}
			record = append(record, cell.Canonical())
		}
		if err := writer.Write(record); err != nil {
			discard()
			return 0, fmt.Errorf("write working row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		discard()
		return 0, fmt.Errorf("flush working table: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("close working temp: %w", err)
	}
	if err := os.Rename(tempPath, workingPath); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("replace working table: %w", err)
	}
	return rowCount, nil
}

func describe(rowCount int, mapping schema.Mapping) *Descriptor {
	return &Descriptor{
		TotalRows:        rowCount,
		TotalColumns:     len(mapping.CanonicalColumns),
		CanonicalColumns: mapping.CanonicalColumns,
		UnknownColumns:   mapping.UnknownColumns,
		RowIDColumn:      schema.RowIDColumn,
	}
}

func emptyFileErr() error {
	return apperr.New(apperr.UploadRejected, "Upload rejected: empty file.").
		WithDetail("reason", apperr.ReasonEmptyFile)
}

func parseErr(cause error) error {
	var appErr *apperr.Error
	if errors.As(cause, &appErr) {
		return appErr
	}
	return apperr.New(apperr.UploadRejected, "Upload rejected: failed to parse file.").
		WithDetail("reason", apperr.ReasonParseError).
		WithDetail("cause", cause.Error())
}
