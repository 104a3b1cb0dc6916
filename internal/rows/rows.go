// Package rows serves paginated, filtered views over a working table.
// Filters are applied before pagination: offset and limit index into the
// filtered sequence, and the reported total counts every matching row in the
// file, not just the page.
package rows

import (
	"io"
	"strings"

	"github.com/databuddy/hrimport/internal/schema"
	"github.com/databuddy/hrimport/internal/table"
)

// Operator is a filter comparison. An operator outside this set matches
// nothing: filters fail closed rather than passing rows through.
type Operator string

const (
	OpEquals    Operator = "eq"
	OpNotEquals Operator = "neq"
	OpContains  Operator = "contains"
	OpIsNull    Operator = "is_null"
)

// Filter is one (column, operator, value) condition. Filters combine with
// logical AND.
type Filter struct {
	Column string   `json:"column"`
	Op     Operator `json:"op"`
	Value  *string  `json:"value"`
}

// Row is one result record: row_id plus the canonical columns, with empty
// strings surfaced as null for display.
type Row map[string]*string

// Page is one slice of the filtered dataset.
type Page struct {
	Rows          []Row
	TotalFiltered int
}

// Read returns the page at offset/limit over the filtered working table,
// along with the total number of rows matching the filters.
func Read(workingPath string, canonicalColumns []string, offset, limit int, filters []Filter) (*Page, error) {
	reader, err := table.OpenReader(workingPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	indexOf := make(map[string]int, len(reader.Header))
	for i, name := range reader.Header {
		indexOf[name] = i
	}

	page := &Page{Rows: []Row{}}
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !matches(record, indexOf, filters) {
			continue
		}
		if page.TotalFiltered >= offset && len(page.Rows) < limit {
			page.Rows = append(page.Rows, payload(record, indexOf, canonicalColumns))
		}
		page.TotalFiltered++
	}
	return page, nil
}

func payload(record []string, indexOf map[string]int, canonicalColumns []string) Row {
	row := make(Row, len(canonicalColumns)+1)
	row[schema.RowIDColumn] = nullable(cellByName(record, indexOf, schema.RowIDColumn))
	for _, column := range canonicalColumns {
		row[column] = nullable(cellByName(record, indexOf, column))
	}
	return row
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func cellByName(record []string, indexOf map[string]int, column string) string {
	index, ok := indexOf[column]
	if !ok {
		return ""
	}
	return table.Cell(record, index)
}

func matches(record []string, indexOf map[string]int, filters []Filter) bool {
	for _, f := range filters {
		value := cellByName(record, indexOf, f.Column)
		target := ""
		if f.Value != nil {
			target = *f.Value
		}
		switch f.Op {
		case OpEquals:
			if value != target {
				return false
			}
		case OpNotEquals:
			if value == target {
				return false
			}
		case OpContains:
			if !strings.Contains(value, target) {
				return false
			}
		case OpIsNull:
			if strings.TrimSpace(value) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
