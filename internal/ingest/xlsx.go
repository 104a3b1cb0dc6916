package ingest

// XLSX ingestion reads the first worksheet, values only. Spreadsheet cells
// are the one place date-typed values appear: a cell whose raw content is an
// Excel serial number but renders as a date is converted through the serial
// so the working table gets an exact YYYY-MM-DD regardless of the workbook's
// display format.

import (
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/databuddy/hrimport/internal/apperr"
	"github.com/databuddy/hrimport/internal/schema"
)

// dateRenderLayouts are the display shapes Excel's builtin date and datetime
// number formats produce. A formatted value matching one of these, backed by
// a numeric serial, marks the cell as date-typed.
var dateRenderLayouts = []string{
	"1/2/06", "01/02/06", "1/2/2006", "01/02/2006",
	"1-2-06", "01-02-06", "2-Jan-06", "02-Jan-06",
	"2006-01-02", "2006/01/02",
	"Jan-06", "January-06", "2-Jan", "Jan 2, 2006",
	"1/2/06 15:04", "01/02/2006 15:04", "2006-01-02 15:04:05",
}

func fromXLSX(originalPath, workingPath string, maxRows int) (*Descriptor, error) {
	workbook, err := excelize.OpenFile(originalPath)
	if err != nil {
		return nil, xlsxParseErr(err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, emptyFileErr()
	}
	sheet := sheets[0]

	formatted, err := workbook.GetRows(sheet)
	if err != nil {
		return nil, xlsxParseErr(err)
	}
	raw, err := workbook.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, xlsxParseErr(err)
	}
	if len(formatted) == 0 || len(formatted[0]) == 0 {
		return nil, emptyFileErr()
	}

	mapping := schema.MapHeader(formatted[0])

	rowIndex := 1
	next := func() ([]Cell, error) {
		if rowIndex >= len(formatted) {
			return nil, io.EOF
		}
		frow := formatted[rowIndex]
		var rrow []string
		if rowIndex < len(raw) {
			rrow = raw[rowIndex]
		}
		rowIndex++

		cells := make([]Cell, len(frow))
		for i, value := range frow {
			rawValue := ""
			if i < len(rrow) {
				rawValue = rrow[i]
			}
			cells[i] = xlsxCell(value, rawValue)
		}
		return cells, nil
	}

	rowCount, err := writeWorking(workingPath, next, mapping, maxRows)
	if err != nil {
		return nil, err
	}
	return describe(rowCount, mapping), nil
}

// xlsxCell classifies one cell from its formatted and raw renderings.
func xlsxCell(formatted, raw string) Cell {
	if formatted == "" {
		return MissingCell()
	}
	if raw != "" && raw != formatted {
		if serial, err := strconv.ParseFloat(raw, 64); err == nil && rendersAsDate(formatted) {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return DateCell(t)
			}
		}
	}
	return TextCell(formatted)
}

func rendersAsDate(value string) bool {
	for _, layout := range dateRenderLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

func xlsxParseErr(cause error) error {
	return apperr.New(apperr.UploadRejected, "Upload rejected: failed to parse XLSX.").
		WithDetail("reason", apperr.ReasonParseError).
		WithDetail("cause", cause.Error())
}
