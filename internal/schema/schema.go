// Package schema defines the canonical HR column set and the mapping from
// arbitrary uploaded headers onto it. The schema is fixed: nine columns, in a
// fixed order that also dictates working-table and export column order.
package schema

import "strings"

// Version tags the canonical schema carried in job metadata.
const Version = "v1"

// RowIDColumn is the synthetic identifier column prepended to every working
// table. It is never part of the canonical set.
const RowIDColumn = "row_id"

// CanonicalColumns lists the recognized HR fields in output order.
var CanonicalColumns = []string{
	"employee_id",
	"first_name",
	"last_name",
	"date_of_birth",
	"hire_date",
	"employment_status",
	"job_title",
	"work_email",
	"department",
}

// NormalizeHeader reduces a header to its comparison form: surrounding
// whitespace trimmed, lowercased. Canonical names and source headers go
// through the same function so matching is exact equality.
func NormalizeHeader(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Mapping is the result of matching an uploaded header row against the
// canonical schema.
type Mapping struct {
	// ColumnIndex maps each matched canonical column to the index of its
	// source column in the uploaded header.
	ColumnIndex map[string]int

	// CanonicalColumns holds the matched columns in canonical order, not
	// source order.
	CanonicalColumns []string

	// UnknownColumns holds source headers, in source order, that matched no
	// canonical column. Duplicate matches beyond the first land here too.
	UnknownColumns []string
}

// MapHeader matches source headers against the canonical schema. A canonical
// column is claimed by at most one source column; when several headers
// normalize to the same canonical name, the lowest index wins and the rest
// are reported as unknown.
func MapHeader(header []string) Mapping {
	canonicalByNorm := make(map[string]string, len(CanonicalColumns))
	for _, name := range CanonicalColumns {
		canonicalByNorm[NormalizeHeader(name)] = name
	}

	m := Mapping{
		ColumnIndex:    make(map[string]int, len(header)),
		UnknownColumns: []string{},
	}
	for i, column := range header {
		canonical, ok := canonicalByNorm[NormalizeHeader(column)]
		if !ok {
			m.UnknownColumns = append(m.UnknownColumns, column)
			continue
		}
		if _, taken := m.ColumnIndex[canonical]; taken {
			m.UnknownColumns = append(m.UnknownColumns, column)
			continue
		}
		m.ColumnIndex[canonical] = i
	}

	m.CanonicalColumns = make([]string, 0, len(m.ColumnIndex))
	for _, name := range CanonicalColumns {
		if _, ok := m.ColumnIndex[name]; ok {
			m.CanonicalColumns = append(m.CanonicalColumns, name)
		}
	}
	return m
}

// IsCanonical reports whether name is one of the canonical columns.
func IsCanonical(name string) bool {
	for _, c := range CanonicalColumns {
		if c == name {
			return true
		}
	}
	return false
}
