package sheet

import (
	"strconv"
	"strings"
)

// MaxColumns is the number of columns the single-letter scheme can address.
const MaxColumns = 26

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ColumnLetter returns the letter naming column col (0 → "A").
func ColumnLetter(col int) (string, error) {
	if col < 0 || col >= MaxColumns {
		return "", &AddressError{Op: "ColumnLetter", Row: -1, Col: col, Err: ErrInvalidColumn}
	}
	return alphabet[col : col+1], nil
}

// CellID returns the identifier of the cell at row/col, e.g. (0, 0) → "A1".
func CellID(row, col int) (string, error) {
	const op = "CellID"

	if row < 0 {
		return "", &AddressError{Op: op, Row: row, Col: col, Err: ErrOutOfRange}
	}
	letter, err := ColumnLetter(col)
	if err != nil {
		return "", &AddressError{Op: op, Row: row, Col: col, Err: ErrInvalidColumn}
	}
	return letter + strconv.Itoa(row+1), nil
}

// MustCellID is like CellID but panics on an unaddressable cell.
// It is meant for constant addresses.
func MustCellID(row, col int) string {
	id, err := CellID(row, col)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseCellID is the inverse of CellID. Letters are matched case-insensitively.
func ParseCellID(id string) (row, col int, err error) {
	const op = "ParseCellID"

	fail := func(cause error) (int, int, error) {
		return 0, 0, &AddressError{Op: op, ID: id, Err: cause}
	}

	split := strings.IndexFunc(id, func(r rune) bool { return r < 'A' || (r > 'Z' && r < 'a') || r > 'z' })
	if split <= 0 {
		return fail(ErrInvalidCellID)
	}
	letters, digits := id[:split], id[split:]
	if len(letters) != 1 {
		// Multi-letter codes (AA, AB, ...) are well-formed but not addressable.
		return fail(ErrInvalidColumn)
	}
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return fail(ErrInvalidCellID)
	}

	n, convErr := strconv.Atoi(digits)
	if convErr != nil || n < 1 {
		return fail(ErrInvalidCellID)
	}

	col = strings.IndexByte(alphabet, strings.ToUpper(letters)[0])
	return n - 1, col, nil
}
