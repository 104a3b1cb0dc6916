package ingest

import "time"

// CellKind discriminates the three value shapes a source cell can take.
// Delimited text only ever produces text and missing cells; spreadsheet
// sources add date-typed cells.
type CellKind int

const (
	CellMissing CellKind = iota
	CellText
	CellDate
)

// Cell is a tagged union of the value shapes, with one canonicalization rule
// per case. Keeping the shape explicit avoids ad hoc runtime type sniffing in
// the write path.
type Cell struct {
	Kind CellKind
	Text string
	Date time.Time
}

func MissingCell() Cell        { return Cell{Kind: CellMissing} }
func TextCell(s string) Cell   { return Cell{Kind: CellText, Text: s} }
func DateCell(t time.Time) Cell { return Cell{Kind: CellDate, Date: t} }

// Canonical renders the cell as its working-table string: empty for missing,
// ISO calendar date for dates, the text itself otherwise.
func (c Cell) Canonical() string {
	switch c.Kind {
	case CellDate:
		return c.Date.Format("2006-01-02")
	case CellText:
		return c.Text
	default:
		return ""
	}
}
