// Package sheet is the spreadsheet core: cell addressing, the Grid model,
// conversion of OCR recognition results into grids and CSV serialization.
//
// Everything in this package is pure and synchronous. A Grid is a plain
// value; callers that share one across goroutines must not mutate it
// concurrently.
//
// Cell identifiers use a single letter for the column followed by the
// 1-based row number ("A1" … "Z99"), so at most MaxColumns columns are
// addressable.
package sheet

import (
	"fmt"
)

// Cell is the content of one grid cell.
type Cell struct {
	Value   string `json:"value"`
	Formula string `json:"formula,omitempty"` // reserved, never set by the converter
}

// Grid is a rectangular sheet of text cells keyed by cell identifier.
type Grid struct {
	Rows    int             `json:"rows"`
	Columns int             `json:"cols"`
	Cells   map[string]Cell `json:"cells"`
}

// NewGrid returns an empty grid with the given dimensions.
// Negative dimensions are treated as zero.
func NewGrid(rows, cols int) *Grid {
	return &Grid{
		Rows:    max(rows, 0),
		Columns: max(cols, 0),
		Cells:   make(map[string]Cell),
	}
}

// ValueAt returns the value stored under id, or "" when the cell is unset.
func (g *Grid) ValueAt(id string) string {
	return g.Cells[id].Value
}

// SetValueAt inserts or overwrites the value stored under id. The id is not
// checked against the grid dimensions.
func (g *Grid) SetValueAt(id, value string) {
	if g.Cells == nil {
		g.Cells = make(map[string]Cell)
	}
	cell := g.Cells[id]
	cell.Value = value
	g.Cells[id] = cell
}

// Value returns the value at row/col, or "" when unset or unaddressable.
func (g *Grid) Value(row, col int) string {
	id, err := CellID(row, col)
	if err != nil {
		return ""
	}
	return g.ValueAt(id)
}

// Set stores value at row/col.
func (g *Grid) Set(row, col int, value string) error {
	id, err := CellID(row, col)
	if err != nil {
		return err
	}
	g.SetValueAt(id, value)
	return nil
}

// AddRow appends an empty row.
func (g *Grid) AddRow() {
	g.Rows++
}

// AddColumn appends an empty column. Grids are limited to MaxColumns columns.
func (g *Grid) AddColumn() error {
	if g.Columns >= MaxColumns {
		return &AddressError{Op: "AddColumn", Row: -1, Col: g.Columns, Err: ErrInvalidColumn}
	}
	g.Columns++
	return nil
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	out := NewGrid(g.Rows, g.Columns)
	for id, cell := range g.Cells {
		out.Cells[id] = cell
	}
	return out
}

// Matrix returns the grid as Rows slices of Columns values. Columns beyond
// the addressable range are returned as empty strings.
func (g *Grid) Matrix() [][]string {
	out := make([][]string, g.Rows)
	for r := range out {
		row := make([]string, g.Columns)
		for c := range row {
			row[c] = g.Value(r, c)
		}
		out[r] = row
	}
	return out
}

// Validate reports the first populated cell whose identifier is not in
// canonical form ("B3", not "b3" or "B03") or lies outside the grid
// dimensions. Lookups only ever use the canonical form.
func (g *Grid) Validate() error {
	const op = "Validate"

	if g.Rows < 0 || g.Columns < 0 {
		return fmt.Errorf("%s: negative dimensions %dx%d: %w", op, g.Rows, g.Columns, ErrOutOfRange)
	}
	for id := range g.Cells {
		row, col, err := ParseCellID(id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if canonical := MustCellID(row, col); id != canonical {
			return fmt.Errorf("%s: %w", op, &AddressError{Op: op, ID: id, Row: row, Col: col,
				Err: fmt.Errorf("%w: use %s", ErrInvalidCellID, canonical)})
		}
		if row >= g.Rows || col >= g.Columns {
			return fmt.Errorf("%s: %w", op, &AddressError{Op: op, ID: id, Row: row, Col: col, Err: ErrOutOfRange})
		}
	}
	return nil
}
