package sheet

import (
	"errors"
	"fmt"
)

// Addressing errors
var (
	// ErrInvalidColumn is returned when a column index cannot be expressed in
	// the single-letter addressing scheme (A-Z).
	ErrInvalidColumn = errors.New("column outside addressable range A-Z")

	// ErrInvalidCellID is returned when a cell identifier cannot be parsed.
	ErrInvalidCellID = errors.New("invalid cell identifier")

	// ErrOutOfRange is returned when a row index is negative or a cell lies
	// outside the grid's dimensions.
	ErrOutOfRange = errors.New("cell outside grid range")
)

// AddressError carries the address that failed together with the operation.
type AddressError struct {
	// Op is the operation that failed (e.g., "CellID", "ParseCellID").
	Op string

	// ID is the textual cell identifier, when one was involved.
	ID string

	// Row and Col are the numeric coordinates, when known.
	Row, Col int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *AddressError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("sheet: %s %q: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("sheet: %s (row %d, col %d): %v", e.Op, e.Row, e.Col, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *AddressError) Unwrap() error {
	return e.Err
}
