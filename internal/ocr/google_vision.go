package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"docsheet/internal/logger"
	"docsheet/pkg/models"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing
	MaxPagesSync = 5
)

// GoogleVisionRecognizer implements Recognizer using Google Cloud Vision API.
type GoogleVisionRecognizer struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGoogleVisionRecognizer creates a recognizer with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionRecognizer(ctx context.Context) (*GoogleVisionRecognizer, error) {
	const op = "NewGoogleVisionRecognizer"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Application Default Credentials
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return NewGoogleVisionRecognizerWithClient(client), nil
}

// NewGoogleVisionRecognizerWithClient creates a recognizer with an explicit client.
func NewGoogleVisionRecognizerWithClient(client *vision.ImageAnnotatorClient) *GoogleVisionRecognizer {
	return &GoogleVisionRecognizer{
		client: client,
		log:    logger.WithComponent("vision"),
	}
}

// Recognize sends the document to Cloud Vision. PDFs and TIFFs go through
// file annotation, everything else through image annotation.
func (g *GoogleVisionRecognizer) Recognize(ctx context.Context, name string, data io.Reader) (*models.RecognitionResult, error) {
	const op = "Recognize"

	content, err := readLimited(data)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read document")
	}
	if len(content) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "file is empty")
	}

	mimeType := sniffMIME(content)
	kind := DetectKind(name, mimeType)

	g.log.Debug().
		Str("file", name).
		Str("mime", mimeType).
		Str("kind", kind.String()).
		Int("size", len(content)).
		Msg("Sending document to Cloud Vision")

	var responses []*visionpb.AnnotateImageResponse
	switch {
	case kind == KindPDF:
		if mimeType != "application/pdf" {
			return nil, WrapOCRError(op, ErrInvalidDocument, "missing PDF header")
		}
		responses, err = g.annotateFile(ctx, content, mimeType)
	case mimeType == "image/tiff":
		responses, err = g.annotateFile(ctx, content, mimeType)
	case strings.HasPrefix(mimeType, "image/"):
		feature := visionpb.Feature_TEXT_DETECTION
		if kind == KindDocument {
			feature = visionpb.Feature_DOCUMENT_TEXT_DETECTION
		}
		responses, err = g.annotateImage(ctx, content, feature)
	default:
		return nil, WrapOCRError(op, ErrUnsupportedFormat, fmt.Sprintf("cannot recognize %s content", mimeType))
	}
	if err != nil {
		return nil, WrapOCRError(op, err, "Vision API request failed")
	}

	result, err := resultFromVision(responses)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision API response")
	}

	g.log.Info().
		Str("file", name).
		Int("pages", len(result.Pages)).
		Float64("confidence", result.Confidence).
		Int("text_length", len(result.Text)).
		Msg("Cloud Vision recognition completed")

	return result, nil
}

func (g *GoogleVisionRecognizer) annotateImage(ctx context.Context, content []byte, feature visionpb.Feature_Type) ([]*visionpb.AnnotateImageResponse, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{{Type: feature}},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}
	return resp.Responses, nil
}

func (g *GoogleVisionRecognizer) annotateFile(ctx context.Context, content []byte, mimeType string) ([]*visionpb.AnnotateImageResponse, error) {
	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  content,
					MimeType: mimeType,
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, fmt.Errorf("%w: Vision API error: %s", ErrOCRFailed, fileResp.Error.Message)
	}
	if fileResp.TotalPages > MaxPagesSync {
		g.log.Warn().
			Int32("total_pages", fileResp.TotalPages).
			Int("max_pages", MaxPagesSync).
			Msg("Only the first pages were recognized")
	}
	return fileResp.Responses, nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionRecognizer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// resultFromVision merges per-page Vision responses into one result.
func resultFromVision(responses []*visionpb.AnnotateImageResponse) (*models.RecognitionResult, error) {
	if len(responses) == 0 {
		return nil, ErrEmptyDocument
	}
	if len(responses) > MaxPagesSync {
		return nil, fmt.Errorf("%w: got %d pages", ErrTooManyPages, len(responses))
	}

	result := &models.RecognitionResult{}
	var texts []string
	var confidenceSum float64
	var confidenceCount int

	for pageIdx, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: page %d: %s", ErrOCRFailed, pageIdx+1, resp.Error.Message)
		}

		ann := resp.FullTextAnnotation
		if ann == nil {
			// TEXT_DETECTION without a full annotation: the first entity is the whole text.
			if len(resp.TextAnnotations) > 0 {
				texts = append(texts, resp.TextAnnotations[0].Description)
			}
			continue
		}

		texts = append(texts, strings.TrimRight(ann.Text, "\n"))
		for _, page := range ann.Pages {
			p, areas := convertVisionPage(page)
			result.Pages = append(result.Pages, p)
			result.Areas = append(result.Areas, areas...)
			if page.Confidence > 0 {
				confidenceSum += float64(page.Confidence)
				confidenceCount++
			}
		}
	}

	result.Text = strings.Join(texts, "\n")
	if strings.TrimSpace(result.Text) == "" {
		return nil, ErrEmptyDocument
	}
	if confidenceCount > 0 {
		result.Confidence = confidenceSum / float64(confidenceCount)
	}
	return result, nil
}

func convertVisionPage(page *visionpb.Page) (models.Page, []models.TextArea) {
	p := models.Page{
		Width:  int(page.Width),
		Height: int(page.Height),
	}
	var areas []models.TextArea

	for _, block := range page.Blocks {
		b := models.Block{Confidence: float64(block.Confidence)}
		var paragraphTexts []string

		for _, para := range block.Paragraphs {
			pr := models.Paragraph{Confidence: float64(para.Confidence)}
			var text strings.Builder

			for _, word := range para.Words {
				w := models.Word{Confidence: float64(word.Confidence)}
				for _, sym := range word.Symbols {
					w.Symbols = append(w.Symbols, models.Symbol{
						Text:       sym.Text,
						Confidence: float64(sym.Confidence),
					})
					w.Text += sym.Text
					text.WriteString(sym.Text)
					text.WriteString(breakText(sym.Property))
				}
				pr.Words = append(pr.Words, w)
			}

			pr.Text = strings.TrimSpace(text.String())
			paragraphTexts = append(paragraphTexts, pr.Text)
			b.Paragraphs = append(b.Paragraphs, pr)
		}

		b.Text = strings.Join(paragraphTexts, "\n")
		p.Blocks = append(p.Blocks, b)
		areas = append(areas, models.TextArea{
			Text:        b.Text,
			BoundingBox: boundingBox(block.BoundingBox),
		})
	}
	return p, areas
}

// breakText renders the break Vision detected after a symbol.
func breakText(prop *visionpb.TextAnnotation_TextProperty) string {
	if prop == nil || prop.DetectedBreak == nil {
		return ""
	}
	switch prop.DetectedBreak.Type {
	case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
		return " "
	case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
		return "\n"
	case visionpb.TextAnnotation_DetectedBreak_HYPHEN:
		return "-\n"
	}
	return ""
}

func boundingBox(poly *visionpb.BoundingPoly) models.BoundingBox {
	if poly == nil || len(poly.Vertices) == 0 {
		return models.BoundingBox{}
	}
	minX, minY := poly.Vertices[0].X, poly.Vertices[0].Y
	maxX, maxY := minX, minY
	for _, v := range poly.Vertices[1:] {
		minX, maxX = min(minX, v.X), max(maxX, v.X)
		minY, maxY = min(minY, v.Y), max(maxY, v.Y)
	}
	return models.BoundingBox{
		X:      int(minX),
		Y:      int(minY),
		Width:  int(maxX - minX),
		Height: int(maxY - minY),
	}
}

// sniffMIME detects the content type, including TIFF which net/http does not know.
func sniffMIME(content []byte) string {
	if bytes.HasPrefix(content, []byte("II*\x00")) || bytes.HasPrefix(content, []byte("MM\x00*")) {
		return "image/tiff"
	}
	mimeType := http.DetectContentType(content)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType
}
