// Package edit applies mutations to a working table. Both operations rewrite
// the whole file through a temporary sibling and atomic rename, so a crash
// mid-write leaves the original untouched and a failed edit discards the
// temporary without side effects.
//
// Column validity is the caller's concern: callers check the target column
// against the dataset's canonical columns before invoking either operation.
package edit

import (
	"io"
	"strings"

	"github.com/databuddy/hrimport/internal/schema"
	"github.com/databuddy/hrimport/internal/table"
)

// ApplyTo selects which rows a bulk remap touches.
type ApplyTo string

const (
	ApplyAll     ApplyTo = "all"
	ApplyMissing ApplyTo = "missing"
	ApplyErrors  ApplyTo = "errors"
)

// Valid reports whether a is a recognized filter.
func (a ApplyTo) Valid() bool {
	return a == ApplyAll || a == ApplyMissing || a == ApplyErrors
}

// Cell sets one cell identified by row id and column. A nil value clears the
// cell to empty string. Returns false, leaving the original file untouched,
// when no row matches.
func Cell(workingPath, rowID, column string, value *string) (bool, error) {
	reader, err := table.OpenReader(workingPath)
	if err != nil {
		return false, err
	}
	defer reader.Close()

	writer, err := table.NewWriter(workingPath)
	if err != nil {
		return false, err
	}

	rowIDIdx := reader.Index(schema.RowIDColumn)
	columnIdx := reader.Index(column)
	newValue := ""
	if value != nil {
		newValue = *value
	}

	if err := writer.Write(reader.Header); err != nil {
		writer.Discard()
		return false, err
	}

	found := false
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			writer.Discard()
			return false, err
		}
		if table.Cell(record, rowIDIdx) == rowID && columnIdx >= 0 {
			record = padTo(record, len(reader.Header))
			record[columnIdx] = newValue
			found = true
		}
		if err := writer.Write(record); err != nil {
			writer.Discard()
			return false, err
		}
	}

	if !found {
		writer.Discard()
		return false, nil
	}
	return true, writer.Commit()
}

// BulkMap describes a column-wide value substitution.
type BulkMap struct {
	Column string

	// Mapping replaces a row's current value with the mapped value; a nil
	// mapped value clears the cell. Values not in the mapping are left as-is
	// unless Default is set.
	Mapping map[string]*string

	// Default, when non-nil, replaces values the mapping does not cover.
	Default *string

	// ApplyTo limits eligible rows; defaults to every row.
	ApplyTo ApplyTo

	// ErrorRows is the row-id set consulted by ApplyErrors.
	ErrorRows map[string]struct{}

	// CaseInsensitive lowercases the current value before mapping lookup.
	CaseInsensitive bool
}

// Bulk applies op across the working table. Unmatched, non-defaulted values
// pass through unchanged; an empty mapping degrades to a pure default fill.
// The operation itself never fails on values, only on I/O.
func Bulk(workingPath string, op BulkMap) error {
	reader, err := table.OpenReader(workingPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	writer, err := table.NewWriter(workingPath)
	if err != nil {
		return err
	}

	rowIDIdx := reader.Index(schema.RowIDColumn)
	columnIdx := reader.Index(op.Column)
	mapping := op.Mapping
	if op.CaseInsensitive {
		mapping = make(map[string]*string, len(op.Mapping))
		for key, mapped := range op.Mapping {
			mapping[strings.ToLower(key)] = mapped
		}
	}

	if err := writer.Write(reader.Header); err != nil {
		writer.Discard()
		return err
	}

	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			writer.Discard()
			return err
		}

		current := table.Cell(record, columnIdx)
		if columnIdx >= 0 && eligible(op, table.Cell(record, rowIDIdx), current) {
			lookup := current
			if op.CaseInsensitive {
				lookup = strings.ToLower(current)
			}
			if mapped, ok := mapping[lookup]; ok {
				record = padTo(record, len(reader.Header))
				if mapped == nil {
					record[columnIdx] = ""
				} else {
					record[columnIdx] = *mapped
				}
			} else if op.Default != nil {
				record = padTo(record, len(reader.Header))
				record[columnIdx] = *op.Default
			}
		}

		if err := writer.Write(record); err != nil {
			writer.Discard()
			return err
		}
	}
	return writer.Commit()
}

func eligible(op BulkMap, rowID, current string) bool {
	switch op.ApplyTo {
	case ApplyAll, "":
		return true
	case ApplyMissing:
		return strings.TrimSpace(current) == ""
	case ApplyErrors:
		if len(op.ErrorRows) == 0 || rowID == "" {
			return false
		}
		_, ok := op.ErrorRows[rowID]
		return ok
	default:
		return false
	}
}

func padTo(record []string, size int) []string {
	for len(record) < size {
		record = append(record, "")
	}
	return record
}
