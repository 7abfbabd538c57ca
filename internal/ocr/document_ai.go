package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"docsheet/internal/logger"
	"docsheet/pkg/models"
)

// DocumentAIConfig holds configuration for Google Document AI processing.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	// Should match where your Document AI processor is created.
	Location string

	// ProcessorID is the ID of a form parser (or any processor that emits tables).
	ProcessorID string

	// ProcessorVersion specifies a particular processor version.
	// If empty, uses the default version.
	ProcessorVersion string

	// Timeout is the maximum time to wait for processing.
	Timeout time.Duration
}

// DefaultDocumentAIConfig returns a DocumentAIConfig with sensible defaults.
func DefaultDocumentAIConfig() DocumentAIConfig {
	return DocumentAIConfig{
		Location: "us",
		Timeout:  60 * time.Second,
	}
}

// ProcessorName is the full resource name of the configured processor.
func (c DocumentAIConfig) ProcessorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
	if c.ProcessorVersion != "" {
		name += "/processorVersions/" + c.ProcessorVersion
	}
	return name
}

// DocumentAIRecognizer implements Recognizer using Google Document AI. Unlike
// Cloud Vision it reports detected tables.
type DocumentAIRecognizer struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIRecognizer creates a recognizer with credentials from environment.
// Expects: GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
func NewDocumentAIRecognizer(ctx context.Context, config DocumentAIConfig) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDocumentAIConfig().Timeout
	}

	var clientOptions []option.ClientOption

	// Regional endpoint for everything but the default multi-region
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIRecognizerWithClient(config, client), nil
}

// NewDocumentAIRecognizerWithClient creates a recognizer with an explicit config and client.
func NewDocumentAIRecognizerWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIRecognizer {
	return &DocumentAIRecognizer{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// Recognize sends the document to the configured Document AI processor.
func (p *DocumentAIRecognizer) Recognize(ctx context.Context, name string, data io.Reader) (*models.RecognitionResult, error) {
	const op = "Recognize"

	content, err := readLimited(data)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read document")
	}
	if len(content) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "file is empty")
	}

	mimeType := sniffMIME(content)
	if DetectKind(name, mimeType) == KindPDF && mimeType != "application/pdf" {
		return nil, WrapOCRError(op, ErrInvalidDocument, "missing PDF header")
	}
	if mimeType != "application/pdf" && !strings.HasPrefix(mimeType, "image/") {
		return nil, WrapOCRError(op, ErrUnsupportedFormat, fmt.Sprintf("cannot recognize %s content", mimeType))
	}

	processCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: p.config.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	}

	p.log.Debug().
		Str("file", name).
		Str("mime", mimeType).
		Str("processor", req.Name).
		Msg("Sending document to Document AI")

	resp, err := p.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	result := resultFromDocument(resp.Document)
	if strings.TrimSpace(result.Text) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "")
	}

	p.log.Info().
		Str("file", name).
		Int("pages", len(result.Pages)).
		Int("tables", len(result.Tables)).
		Float64("confidence", result.Confidence).
		Msg("Document AI recognition completed")

	return result, nil
}

// handleProcessingError converts Document AI errors to OCR errors.
func (p *DocumentAIRecognizer) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"), strings.Contains(errStr, "PermissionDenied"):
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "NOT_FOUND"), strings.Contains(errStr, "NotFound"):
		return WrapOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"), strings.Contains(errStr, "InvalidArgument"):
		return WrapOCRError(op, ErrInvalidDocument, "document format not supported or corrupted")
	case strings.Contains(errStr, "context deadline exceeded"), strings.Contains(errStr, "DeadlineExceeded"):
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "context canceled"), strings.Contains(errStr, "Canceled"):
		return WrapOCRError(op, context.Canceled, "processing was canceled")
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close closes the underlying Document AI client.
func (p *DocumentAIRecognizer) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// resultFromDocument maps a Document AI document onto a recognition result.
func resultFromDocument(doc *documentaipb.Document) *models.RecognitionResult {
	result := &models.RecognitionResult{Text: doc.Text}

	var confidenceSum float64
	var confidenceCount int

	for _, page := range doc.Pages {
		var width, height float32
		if page.Dimension != nil {
			width, height = page.Dimension.Width, page.Dimension.Height
		}
		p := models.Page{Width: int(width), Height: int(height)}

		for _, block := range page.Blocks {
			text := strings.TrimSpace(layoutText(doc.Text, block.Layout))
			var conf float64
			var box models.BoundingBox
			if block.Layout != nil {
				conf = float64(block.Layout.Confidence)
				box = docBoundingBox(block.Layout.BoundingPoly, width, height)
			}
			p.Blocks = append(p.Blocks, models.Block{
				Text:       text,
				Confidence: conf,
				Paragraphs: []models.Paragraph{{Text: text, Confidence: conf}},
			})
			result.Areas = append(result.Areas, models.TextArea{Text: text, BoundingBox: box})
		}
		result.Pages = append(result.Pages, p)

		if page.Layout != nil && page.Layout.Confidence > 0 {
			confidenceSum += float64(page.Layout.Confidence)
			confidenceCount++
		}

		for _, table := range page.Tables {
			result.Tables = append(result.Tables, convertTable(doc.Text, table))
		}
	}

	if confidenceCount > 0 {
		result.Confidence = confidenceSum / float64(confidenceCount)
	}
	return result
}

// convertTable flattens header and body rows into one table. A cell that
// spans several columns occupies its first column; the spanned columns stay
// empty. Row spans are not expanded.
func convertTable(text string, table *documentaipb.Document_Page_Table) models.Table {
	rows := append(append([]*documentaipb.Document_Page_Table_TableRow{}, table.HeaderRows...), table.BodyRows...)

	out := models.Table{Rows: len(rows)}
	for r, row := range rows {
		col := 0
		for _, cell := range row.Cells {
			out.Cells = append(out.Cells, models.TableCell{
				Text:        strings.TrimSpace(layoutText(text, cell.Layout)),
				RowIndex:    r,
				ColumnIndex: col,
			})
			col += max(int(cell.ColSpan), 1)
		}
		out.Columns = max(out.Columns, col)
	}
	return out
}

// layoutText resolves the text anchor of a layout against the document text.
func layoutText(text string, layout *documentaipb.Document_Page_Layout) string {
	if layout == nil || layout.TextAnchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range layout.TextAnchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

// docBoundingBox prefers pixel vertices and falls back to normalized ones
// scaled by the page dimensions.
func docBoundingBox(poly *documentaipb.BoundingPoly, width, height float32) models.BoundingBox {
	if poly == nil {
		return models.BoundingBox{}
	}

	var xs, ys []float32
	if len(poly.Vertices) > 0 {
		for _, v := range poly.Vertices {
			xs = append(xs, float32(v.X))
			ys = append(ys, float32(v.Y))
		}
	} else {
		for _, v := range poly.NormalizedVertices {
			xs = append(xs, v.X*width)
			ys = append(ys, v.Y*height)
		}
	}
	if len(xs) == 0 {
		return models.BoundingBox{}
	}

	minX, maxX, minY, maxY := xs[0], xs[0], ys[0], ys[0]
	for i := range xs {
		minX, maxX = min(minX, xs[i]), max(maxX, xs[i])
		minY, maxY = min(minY, ys[i]), max(maxY, ys[i])
	}
	return models.BoundingBox{
		X:      int(minX),
		Y:      int(minY),
		Width:  int(maxX - minX),
		Height: int(maxY - minY),
	}
}
