// Package export converts grids to and from Excel workbooks.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"docsheet/internal/sheet"
)

const (
	// XLSXFileName is the file name offered for workbook downloads.
	XLSXFileName = "spreadsheet.xlsx"

	// XLSXContentType is the MIME type of workbook downloads.
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// DefaultSheetName is used when no sheet name is given.
	DefaultSheetName = "Sheet1"

	maxSheetNameLength = 31
)

var (
	// ErrEmptyWorkbook is returned when a workbook has no sheets.
	ErrEmptyWorkbook = errors.New("workbook contains no sheets")

	// ErrInvalidSheetName is returned for names Excel does not accept.
	ErrInvalidSheetName = errors.New("invalid sheet name")
)

// WriteXLSX writes g as a single-sheet workbook. Cell A1 of the workbook
// holds grid cell A1, so the column letters are not repeated as a header row.
func WriteXLSX(w io.Writer, g *sheet.Grid, sheetName string) error {
	const op = "WriteXLSX"

	if g.Columns > sheet.MaxColumns {
		return fmt.Errorf("%s: grid has %d columns: %w", op, g.Columns, sheet.ErrInvalidColumn)
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	if err := checkSheetName(sheetName); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if sheetName != DefaultSheetName {
		if err := f.SetSheetName(DefaultSheetName, sheetName); err != nil {
			return fmt.Errorf("%s: %w %q: %w", op, ErrInvalidSheetName, sheetName, err)
		}
	}

	for id, cell := range g.Cells {
		if cell.Value == "" {
			continue
		}
		if err := f.SetCellStr(sheetName, id, cell.Value); err != nil {
			return fmt.Errorf("%s: failed to set %s: %w", op, id, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("%s: failed to write workbook: %w", op, err)
	}
	return nil
}

// checkSheetName applies Excel's worksheet naming rules.
func checkSheetName(name string) error {
	if utf8.RuneCountInString(name) > maxSheetNameLength {
		return fmt.Errorf("%w %q: longer than %d characters", ErrInvalidSheetName, name, maxSheetNameLength)
	}
	if strings.ContainsAny(name, `:\/?*[]`) {
		return fmt.Errorf("%w %q: contains one of : \\ / ? * [ ]", ErrInvalidSheetName, name)
	}
	if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
		return fmt.Errorf("%w %q: starts or ends with an apostrophe", ErrInvalidSheetName, name)
	}
	return nil
}

// ReadXLSX imports the first sheet of a workbook as a grid. Columns past Z
// are dropped.
func ReadXLSX(r io.Reader) (*sheet.Grid, error) {
	const op = "ReadXLSX"

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open workbook: %w", op, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyWorkbook)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read sheet %q: %w", op, sheets[0], err)
	}

	return gridFromRows(rows), nil
}

// gridFromRows builds a grid from ragged rows. The column count is the
// longest row, capped at sheet.MaxColumns.
func gridFromRows(rows [][]string) *sheet.Grid {
	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}

	g := sheet.NewGrid(len(rows), min(cols, sheet.MaxColumns))
	for r, row := range rows {
		for c, value := range row {
			if c >= g.Columns {
				break
			}
			if value == "" {
				continue
			}
			_ = g.Set(r, c, value)
		}
	}
	return g
}
