package sheet

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	// CSVFileName is the file name offered for CSV downloads.
	CSVFileName = "spreadsheet.csv"

	// CSVContentType is the MIME type of CSV downloads.
	CSVContentType = "text/csv;charset=utf-8;"
)

// ToCSV serializes g as CSV text.
//
// The first line holds the column letters. Each following line holds one
// grid row. Commas inside values are removed rather than quoted, so the
// output cannot be parsed back into the original values when they contain
// commas. Every line, the last one included, ends with "\n".
func ToCSV(g *Grid) (string, error) {
	var b strings.Builder
	if err := WriteCSV(&b, g); err != nil {
		return "", err
	}
	return b.String(), nil
}

// WriteCSV writes the CSV form of g to w. It fails with ErrInvalidColumn when
// g has more than MaxColumns columns.
func WriteCSV(w io.Writer, g *Grid) error {
	const op = "WriteCSV"

	if g.Columns > MaxColumns {
		return fmt.Errorf("%s: grid has %d columns: %w", op, g.Columns, ErrInvalidColumn)
	}

	bw := bufio.NewWriter(w)
	fields := make([]string, g.Columns)

	for c := range fields {
		fields[c] = alphabet[c : c+1]
	}
	writeLine(bw, fields)

	for r := 0; r < g.Rows; r++ {
		for c := range fields {
			fields[c] = strings.ReplaceAll(g.Value(r, c), ",", "")
		}
		writeLine(bw, fields)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%s: failed to write CSV: %w", op, err)
	}
	return nil
}

func writeLine(w *bufio.Writer, fields []string) {
	w.WriteString(strings.Join(fields, ","))
	w.WriteByte('\n')
}
