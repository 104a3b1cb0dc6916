// Package validate scans a working table and reports structured issues. The
// validator is a pure function of the file contents: no external state, safe
// to re-run, and total over any well-formed working table. Issues and the
// summary are always produced by the same pass so they cannot disagree.
package validate

import (
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/databuddy/hrimport/internal/schema"
	"github.com/databuddy/hrimport/internal/table"
)

// Severity tiers. No rule currently produces warnings; the tier is reserved.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue type tags.
const (
	TypeMissingRequired = "missing_required"
	TypeInvalidEmail    = "invalid_email"
	TypeInvalidEnum     = "invalid_enum"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var allowedEmploymentStatus = map[string]struct{}{
	"active":     {},
	"terminated": {},
}

// requiredFields lists the must-be-present columns with their user-facing
// messaging, in a fixed order so issue output is deterministic.
var requiredFields = []struct {
	column     string
	message    string
	suggestion string
}{
	{"employee_id", "Employee ID is required.", "Enter a unique employee ID."},
	{"first_name", "First name is required.", "Enter a first name."},
	{"last_name", "Last name is required.", "Enter a last name."},
}

// Issue is a single validation finding tied to one row and column.
type Issue struct {
	Severity   string `json:"severity"`
	Type       string `json:"type"`
	RowID      string `json:"row_id"`
	Column     string `json:"column"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// Summary aggregates one validation pass.
type Summary struct {
	ErrorCount      int    `json:"error_count"`
	WarningCount    int    `json:"warning_count"`
	LastValidatedAt string `json:"last_validated_at"`
}

// Result pairs the issues with their summary.
type Result struct {
	Summary Summary `json:"validation"`
	Issues  []Issue `json:"issues"`
}

// row is one working-table record with its column positions resolved.
type row struct {
	record  []string
	indexOf map[string]int
}

func (r row) value(column string) string {
	index, ok := r.indexOf[column]
	if !ok {
		return ""
	}
	return strings.TrimSpace(table.Cell(r.record, index))
}

// WorkingTable validates every row of the working table at path. Rows may
// accumulate multiple issues; each rule is evaluated independently.
func WorkingTable(path string) (*Result, error) {
	reader, err := table.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	indexOf := make(map[string]int, len(reader.Header))
	for i, name := range reader.Header {
		indexOf[name] = i
	}

	issues := []Issue{}
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		r := row{record: record, indexOf: indexOf}
		rowID := r.value(schema.RowIDColumn)
		issues = append(issues, checkRequired(r, rowID)...)
		if issue := checkEmail(r, rowID); issue != nil {
			issues = append(issues, *issue)
		}
		if issue := checkEmploymentStatus(r, rowID); issue != nil {
			issues = append(issues, *issue)
		}
	}

	return &Result{
		Summary: Summary{
			ErrorCount:      len(issues),
			WarningCount:    0,
			LastValidatedAt: nowUTC(),
		},
		Issues: issues,
	}, nil
}

func checkRequired(r row, rowID string) []Issue {
	var issues []Issue
	for _, field := range requiredFields {
		if r.value(field.column) == "" {
			issues = append(issues, Issue{
				Severity:   SeverityError,
				Type:       TypeMissingRequired,
				RowID:      rowID,
				Column:     field.column,
				Message:    field.message,
				Suggestion: field.suggestion,
			})
		}
	}
	return issues
}

func checkEmail(r row, rowID string) *Issue {
	value := r.value("work_email")
	if value == "" || emailRe.MatchString(value) {
		return nil
	}
	return &Issue{
		Severity:   SeverityError,
		Type:       TypeInvalidEmail,
		RowID:      rowID,
		Column:     "work_email",
		Message:    "Work email is not a valid email address.",
		Suggestion: "Fix the email format (e.g., name@company.com).",
	}
}

func checkEmploymentStatus(r row, rowID string) *Issue {
	value := r.value("employment_status")
	if value == "" {
		return nil
	}
	if _, ok := allowedEmploymentStatus[strings.ToLower(value)]; ok {
		return nil
	}
	return &Issue{
		Severity:   SeverityError,
		Type:       TypeInvalidEnum,
		RowID:      rowID,
		Column:     "employment_status",
		Message:    "Employment status must be 'active' or 'terminated'.",
		Suggestion: "Use bulk map to normalize values.",
	}
}

func nowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}
