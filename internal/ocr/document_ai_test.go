package ocr

import (
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anchor returns a layout pointing at the first occurrence of s in text.
func anchor(text, s string) *documentaipb.Document_Page_Layout {
	start := strings.Index(text, s)
	return &documentaipb.Document_Page_Layout{
		Confidence: 0.9,
		TextAnchor: &documentaipb.Document_TextAnchor{
			TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
				{StartIndex: int64(start), EndIndex: int64(start + len(s))},
			},
		},
	}
}

func tableRow(text string, cells ...string) *documentaipb.Document_Page_Table_TableRow {
	row := &documentaipb.Document_Page_Table_TableRow{}
	for _, c := range cells {
		row.Cells = append(row.Cells, &documentaipb.Document_Page_Table_TableCell{Layout: anchor(text, c), ColSpan: 1, RowSpan: 1})
	}
	return row
}

func TestResultFromDocument(t *testing.T) {
	text := "Price list\nItem Price\nTea 2.80\n"
	doc := &documentaipb.Document{
		Text: text,
		Pages: []*documentaipb.Document_Page{{
			Dimension: &documentaipb.Document_Page_Dimension{Width: 612, Height: 792},
			Layout:    &documentaipb.Document_Page_Layout{Confidence: 0.75},
			Blocks: []*documentaipb.Document_Page_Block{{
				Layout: &documentaipb.Document_Page_Layout{
					Confidence: 0.9,
					TextAnchor: anchor(text, "Price list\n").TextAnchor,
					BoundingPoly: &documentaipb.BoundingPoly{NormalizedVertices: []*documentaipb.NormalizedVertex{
						{X: 0.1, Y: 0.1}, {X: 0.5, Y: 0.1}, {X: 0.5, Y: 0.2}, {X: 0.1, Y: 0.2},
					}},
				},
			}},
			Tables: []*documentaipb.Document_Page_Table{{
				HeaderRows: []*documentaipb.Document_Page_Table_TableRow{tableRow(text, "Item", "Price")},
				BodyRows:   []*documentaipb.Document_Page_Table_TableRow{tableRow(text, "Tea", "2.80")},
			}},
		}},
	}

	result := resultFromDocument(doc)

	assert.Equal(t, text, result.Text)
	assert.InDelta(t, 0.75, result.Confidence, 1e-6)

	require.Len(t, result.Pages, 1)
	assert.Equal(t, 612, result.Pages[0].Width)
	require.Len(t, result.Pages[0].Blocks, 1)
	assert.Equal(t, "Price list", result.Pages[0].Blocks[0].Text)

	require.Len(t, result.Areas, 1)
	box := result.Areas[0].BoundingBox
	assert.InDelta(t, 61, box.X, 1)
	assert.InDelta(t, 79, box.Y, 1)
	assert.InDelta(t, 244, box.Width, 1)

	require.Len(t, result.Tables, 1)
	table := result.Tables[0]
	assert.Equal(t, 2, table.Rows)
	assert.Equal(t, 2, table.Columns)
	assert.Equal(t, "Item", table.CellText(0, 0))
	assert.Equal(t, "Price", table.CellText(0, 1))
	assert.Equal(t, "Tea", table.CellText(1, 0))
	assert.Equal(t, "2.80", table.CellText(1, 1))
}

func TestConvertTable_ColSpan(t *testing.T) {
	text := "Total 9.99"
	row := &documentaipb.Document_Page_Table_TableRow{Cells: []*documentaipb.Document_Page_Table_TableCell{
		{Layout: anchor(text, "Total"), ColSpan: 2},
		{Layout: anchor(text, "9.99"), ColSpan: 1},
	}}

	table := convertTable(text, &documentaipb.Document_Page_Table{BodyRows: []*documentaipb.Document_Page_Table_TableRow{row}})

	assert.Equal(t, 1, table.Rows)
	assert.Equal(t, 3, table.Columns)
	assert.Equal(t, "Total", table.CellText(0, 0))
	assert.Equal(t, "", table.CellText(0, 1))
	assert.Equal(t, "9.99", table.CellText(0, 2))
}

func TestLayoutText_OutOfBounds(t *testing.T) {
	layout := &documentaipb.Document_Page_Layout{TextAnchor: &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 0, EndIndex: 2},
			{StartIndex: 5, EndIndex: 50},
		},
	}}

	assert.Equal(t, "ab", layoutText("abcdef", layout))
	assert.Equal(t, "", layoutText("abc", nil))
}

func TestDocumentAIConfig_ProcessorName(t *testing.T) {
	cfg := DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "abc"}
	assert.Equal(t, "projects/p/locations/eu/processors/abc", cfg.ProcessorName())

	cfg.ProcessorVersion = "v2"
	assert.Equal(t, "projects/p/locations/eu/processors/abc/processorVersions/v2", cfg.ProcessorName())
}

func TestHandleProcessingError(t *testing.T) {
	p := &DocumentAIRecognizer{config: DocumentAIConfig{ProcessorID: "abc"}}

	assert.ErrorIs(t, p.handleProcessingError("op", errors.New("rpc error: code = NotFound")), ErrInvalidConfiguration)
	assert.ErrorIs(t, p.handleProcessingError("op", errors.New("rpc error: code = InvalidArgument")), ErrInvalidDocument)
	assert.ErrorIs(t, p.handleProcessingError("op", errors.New("boom")), ErrOCRFailed)
}
