package schema

import (
	"reflect"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"employee_id", "employee_id"},
		{"Employee_ID", "employee_id"},
		{"  Work_Email  ", "work_email"},
		{"DEPARTMENT", "department"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapHeader_CanonicalOrder(t *testing.T) {
	// Source order deliberately scrambled; output must follow canonical order.
	header := []string{"Department", "employee_id", "Work_Email", "first_name"}

	m := MapHeader(header)

	want := []string{"employee_id", "first_name", "work_email", "department"}
	if !reflect.DeepEqual(m.CanonicalColumns, want) {
		t.Errorf("CanonicalColumns = %v, want %v", m.CanonicalColumns, want)
	}
	if len(m.UnknownColumns) != 0 {
		t.Errorf("UnknownColumns = %v, want none", m.UnknownColumns)
	}
	if m.ColumnIndex["department"] != 0 || m.ColumnIndex["employee_id"] != 1 {
		t.Errorf("ColumnIndex = %v, source positions wrong", m.ColumnIndex)
	}
}

func TestMapHeader_DuplicateFirstWins(t *testing.T) {
	header := []string{"employee_id", "Employee_ID", "first_name"}

	m := MapHeader(header)

	if m.ColumnIndex["employee_id"] != 0 {
		t.Errorf("employee_id index = %d, want 0 (first occurrence)", m.ColumnIndex["employee_id"])
	}
	if !reflect.DeepEqual(m.UnknownColumns, []string{"Employee_ID"}) {
		t.Errorf("UnknownColumns = %v, want [Employee_ID]", m.UnknownColumns)
	}
}

func TestMapHeader_UnknownPreservesSourceOrder(t *testing.T) {
	header := []string{"zeta", "employee_id", "alpha"}

	m := MapHeader(header)

	if !reflect.DeepEqual(m.UnknownColumns, []string{"zeta", "alpha"}) {
		t.Errorf("UnknownColumns = %v, want source order [zeta alpha]", m.UnknownColumns)
	}
	if !reflect.DeepEqual(m.CanonicalColumns, []string{"employee_id"}) {
		t.Errorf("CanonicalColumns = %v, want [employee_id]", m.CanonicalColumns)
	}
}

func TestMapHeader_NoMatches(t *testing.T) {
	m := MapHeader([]string{"a", "b"})

	if len(m.CanonicalColumns) != 0 {
		t.Errorf("CanonicalColumns = %v, want empty", m.CanonicalColumns)
	}
	if len(m.UnknownColumns) != 2 {
		t.Errorf("UnknownColumns = %v, want both headers", m.UnknownColumns)
	}
}

func TestIsCanonical(t *testing.T) {
	if !IsCanonical("work_email") {
		t.Error("work_email should be canonical")
	}
	if IsCanonical("row_id") {
		t.Error("row_id is synthetic, not canonical")
	}
	if IsCanonical("Employee_ID") {
		t.Error("IsCanonical matches exact names only")
	}
}
