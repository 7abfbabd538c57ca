package sheet

import (
	"regexp"
	"strings"

	"docsheet/pkg/models"
)

// Delimiter is the column separator chosen for a text import.
type Delimiter struct {
	// Sep is the literal separator. It is empty when Whitespace is set.
	Sep string

	// Whitespace marks the fallback that splits on runs of whitespace.
	Whitespace bool
}

// candidateDelimiters are tried in order; on equal part counts the earlier one wins.
var candidateDelimiters = []string{",", "\t", ";", "|"}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Split splits line by the delimiter.
func (d Delimiter) Split(line string) []string {
	if d.Whitespace {
		return whitespaceRun.Split(line, -1)
	}
	return strings.Split(line, d.Sep)
}

// String names the delimiter for logs and previews.
func (d Delimiter) String() string {
	switch {
	case d.Whitespace:
		return "whitespace"
	case d.Sep == "\t":
		return "tab"
	default:
		return d.Sep
	}
}

// DetectDelimiter picks the delimiter for a text import from its first line.
func DetectDelimiter(line string) Delimiter {
	best, bestCount := candidateDelimiters[0], 0
	for _, sep := range candidateDelimiters {
		if n := strings.Count(line, sep) + 1; n > bestCount {
			best, bestCount = sep, n
		}
	}
	if bestCount <= 1 {
		return Delimiter{Whitespace: true}
	}
	return Delimiter{Sep: best}
}

// FromRecognition converts an OCR result into a fresh Grid.
//
// When the result carries tables, the first table is authoritative and all
// others are ignored. Otherwise rows and columns are inferred from the text:
// blank lines are dropped, the delimiter and column count come from the
// first remaining line, and surplus parts on later lines are discarded.
// Cells that fall outside the A-Z columns are skipped, while Columns keeps
// the inferred count.
func FromRecognition(result *models.RecognitionResult) *Grid {
	if result == nil {
		return NewGrid(0, 0)
	}
	if len(result.Tables) > 0 {
		return fromTable(&result.Tables[0])
	}
	return fromText(result.Text)
}

func fromTable(t *models.Table) *Grid {
	g := NewGrid(t.Rows, t.Columns)
	for _, c := range t.Cells {
		// Unaddressable cells are dropped; the table dimensions stay as reported.
		if err := g.Set(c.RowIndex, c.ColumnIndex, c.Text); err != nil {
			continue
		}
	}
	return g
}

func fromText(text string) *Grid {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return NewGrid(0, 0)
	}

	delim := DetectDelimiter(lines[0])
	cols := len(delim.Split(lines[0]))

	g := NewGrid(len(lines), cols)
	for r, line := range lines {
		for c, part := range delim.Split(line) {
			if c >= cols {
				break
			}
			// Parts past Z are dropped; Columns keeps the inferred count.
			if err := g.Set(r, c, strings.TrimSpace(part)); err != nil {
				continue
			}
		}
	}
	return g
}
