package models

import (
	"encoding/json"
	"fmt"
	"io"
)

// RecognitionResult is the output of one OCR run. It is produced once and
// treated as immutable by every consumer.
type RecognitionResult struct {
	Text       string     `json:"text"`             // Full text, lines separated by "\n"
	Confidence float64    `json:"confidence"`       // Overall confidence in [0,1]
	Areas      []TextArea `json:"areas,omitempty"`  // Text regions with bounding boxes
	Tables     []Table    `json:"tables,omitempty"` // Structured tables, if the engine found any
	Pages      []Page     `json:"pages,omitempty"`  // Block/paragraph/word/symbol hierarchy
}

// TextArea is a recognized region of text on a page.
type TextArea struct {
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"boundingBox"`
}

// BoundingBox is an axis-aligned rectangle in page pixels.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Table is a recognized table. Cells are sparse: not every row/column pair
// has to be present.
type Table struct {
	Rows    int         `json:"rows"`
	Columns int         `json:"columns"`
	Cells   []TableCell `json:"cells"`
}

// TableCell is a single cell of a Table. Indices are 0-based.
type TableCell struct {
	Text        string `json:"text"`
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
}

// CellText returns the text at row/col, or "" when the table has no such cell.
func (t *Table) CellText(row, col int) string {
	for _, c := range t.Cells {
		if c.RowIndex == row && c.ColumnIndex == col {
			return c.Text
		}
	}
	return ""
}

// Page is one page of the recognition hierarchy.
type Page struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

type Paragraph struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

type Word struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Symbols    []Symbol `json:"symbols"`
}

type Symbol struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DecodeRecognitionResult reads a RecognitionResult in its JSON form.
func DecodeRecognitionResult(r io.Reader) (*RecognitionResult, error) {
	const op = "DecodeRecognitionResult"

	var result RecognitionResult
	dec := json.NewDecoder(r)
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: failed to decode recognition result: %w", op, err)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("%s: confidence %v outside [0,1]", op, result.Confidence)
	}
	return &result, nil
}
