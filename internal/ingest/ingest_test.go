package ingest

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/databuddy/hrimport/internal/apperr"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func readWorking(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open working table: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read working table: %v", err)
	}
	return records
}

func TestFile_CSV(t *testing.T) {
	src := writeSource(t, "people.csv",
		"Employee_ID,First_Name,Last_Name,Work_Email,Badge\n"+
			"E001,Ada,Lovelace,ada@example.com,1\n"+
			"E002,Grace,Hopper,grace@example.com,2\n")
	working := filepath.Join(t.TempDir(), "working.csv")

	desc, err := File(src, working, DefaultMaxRows)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}

	if desc.TotalRows != 2 {
		t.Errorf("TotalRows = %d, want 2", desc.TotalRows)
	}
	wantCols := []string{"employee_id", "first_name", "last_name", "work_email"}
	if !reflect.DeepEqual(desc.CanonicalColumns, wantCols) {
		t.Errorf("CanonicalColumns = %v, want %v", desc.CanonicalColumns, wantCols)
	}
	if !reflect.DeepEqual(desc.UnknownColumns, []string{"Badge"}) {
		t.Errorf("UnknownColumns = %v, want [Badge]", desc.UnknownColumns)
	}
	if desc.RowIDColumn != "row_id" {
		t.Errorf("RowIDColumn = %q, want row_id", desc.RowIDColumn)
	}

	records := readWorking(t, working)
	if len(records) != 3 {
		t.Fatalf("working table has %d records, want header + 2", len(records))
	}
	wantHeader := []string{"row_id", "employee_id", "first_name", "last_name", "work_email"}
	if !reflect.DeepEqual(records[0], wantHeader) {
		t.Errorf("header = %v, want %v", records[0], wantHeader)
	}
	if records[1][0] == "" || records[1][0] == records[2][0] {
		t.Error("row ids must be non-empty and unique")
	}
	if records[1][1] != "E001" || records[1][4] != "ada@example.com" {
		t.Errorf("row 1 = %v, values out of place", records[1])
	}
}

func TestFile_CSVWithBOM(t *testing.T) {
	src := writeSource(t, "bom.csv",
		"\uFEFFemployee_id,first_name\nE001,Ada\n")
	working := filepath.Join(t.TempDir(), "working.csv")

	desc, err := File(src, working, DefaultMaxRows)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if !reflect.DeepEqual(desc.CanonicalColumns, []string{"employee_id", "first_name"}) {
		t.Errorf("BOM not stripped from first header: %v", desc.CanonicalColumns)
	}
}

func TestFile_EmptyCSV(t *testing.T) {
	src := writeSource(t, "empty.csv", "")
	working := filepath.Join(t.TempDir(), "working.csv")

	_, err := File(src, working, DefaultMaxRows)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("File() error = %v, want *apperr.Error", err)
	}
	if appErr.Code != apperr.UploadRejected || appErr.Reason() != apperr.ReasonEmptyFile {
		t.Errorf("got code %q reason %q, want upload_rejected/empty_file", appErr.Code, appErr.Reason())
	}
}

func TestFile_TooManyRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("employee_id\n")
	for i := 0; i < 5; i++ {
		b.WriteString("E\n")
	}
	src := writeSource(t, "big.csv", b.String())
	working := filepath.Join(t.TempDir(), "working.csv")

	_, err := File(src, working, 3)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("File() error = %v, want *apperr.Error", err)
	}
	if appErr.Reason() != apperr.ReasonTooManyRows {
		t.Errorf("reason = %q, want too_many_rows", appErr.Reason())
	}
	if appErr.Details["max_rows"] != 3 {
		t.Errorf("max_rows detail = %v, want 3", appErr.Details["max_rows"])
	}
	if _, statErr := os.Stat(working); !os.IsNotExist(statErr) {
		t.Error("failed ingest must not leave a working table behind")
	}
	if _, statErr := os.Stat(working + ".tmp"); !os.IsNotExist(statErr) {
		t.Error("failed ingest must not leave a temp file behind")
	}
}

func TestFile_UnsupportedExtension(t *testing.T) {
	src := writeSource(t, "notes.txt", "employee_id\nE001\n")
	working := filepath.Join(t.TempDir(), "working.csv")

	_, err := File(src, working, DefaultMaxRows)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("File() error = %v, want *apperr.Error", err)
	}
	if appErr.Code != apperr.UnsupportedFile {
		t.Errorf("code = %q, want unsupported_file", appErr.Code)
	}
}

func TestFile_ShortRowsPadToMissing(t *testing.T) {
	src := writeSource(t, "short.csv",
		"employee_id,first_name,last_name\nE001,Ada\n")
	working := filepath.Join(t.TempDir(), "working.csv")

	if _, err := File(src, working, DefaultMaxRows); err != nil {
		t.Fatalf("File() error = %v", err)
	}

	records := readWorking(t, working)
	if records[1][3] != "" {
		t.Errorf("missing trailing cell = %q, want empty", records[1][3])
	}
}

func TestFile_XLSX(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "people.xlsx")

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	if err := wb.SetSheetRow(sheet, "A1", &[]any{"Employee_ID", "First_Name", "Hire_Date"}); err != nil {
		t.Fatalf("set header: %v", err)
	}
	hire := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	if err := wb.SetSheetRow(sheet, "A2", &[]any{"E001", "Ada", hire}); err != nil {
		t.Fatalf("set row: %v", err)
	}
	style, err := wb.NewStyle(&excelize.Style{NumFmt: 14}) // m/d/yy
	if err != nil {
		t.Fatalf("new style: %v", err)
	}
	if err := wb.SetCellStyle(sheet, "C2", "C2", style); err != nil {
		t.Fatalf("set style: %v", err)
	}
	if err := wb.SaveAs(src); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	wb.Close()

	working := filepath.Join(dir, "working.csv")
	desc, err := File(src, working, DefaultMaxRows)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}

	if desc.TotalRows != 1 {
		t.Errorf("TotalRows = %d, want 1", desc.TotalRows)
	}
	records := readWorking(t, working)
	if records[1][3] != "2021-03-15" {
		t.Errorf("date cell = %q, want 2021-03-15", records[1][3])
	}
}

func TestFile_XLSXGarbage(t *testing.T) {
	src := writeSource(t, "mangled.xlsx", "this is not a zip archive")
	working := filepath.Join(t.TempDir(), "working.csv")

	_, err := File(src, working, DefaultMaxRows)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("File() error = %v, want *apperr.Error", err)
	}
	if appErr.Reason() != apperr.ReasonParseError {
		t.Errorf("reason = %q, want parse_error", appErr.Reason())
	}
}

func TestCellCanonical(t *testing.T) {
	tests := []struct {
		cell Cell
		want string
	}{
		{MissingCell(), ""},
		{TextCell("  Ada "), "  Ada "},
		{DateCell(time.Date(1999, 12, 31, 8, 30, 0, 0, time.UTC)), "1999-12-31"},
	}

	for _, tt := range tests {
		if got := tt.cell.Canonical(); got != tt.want {
			t.Errorf("Canonical() = %q, want %q", got, tt.want)
		}
	}
}
