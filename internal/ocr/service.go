// Package ocr provides text recognition for uploaded documents using Google
// Cloud Vision and Google Document AI.
//
// Both engines return a models.RecognitionResult: the full text, an overall
// confidence, the page/block/paragraph/word/symbol hierarchy and text areas.
// Document AI additionally reports tables, which the spreadsheet converter
// prefers over free-text inference.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT: Google Cloud project ID (Document AI)
//   - DOCUMENT_AI_PROCESSOR_ID: Form parser processor ID (Document AI)
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Maximum pages: 5 pages for synchronous PDF/TIFF processing
package ocr

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"docsheet/pkg/models"
)

// Recognizer turns a document into a recognition result.
type Recognizer interface {
	// Recognize reads the whole document from data. The name is used to
	// decide how the document is sent to the engine (see DetectKind).
	Recognize(ctx context.Context, name string, data io.Reader) (*models.RecognitionResult, error)
}

// Kind selects the recognition mode for a document.
type Kind int

const (
	// KindImage is a photo or screenshot; plain text detection is used.
	KindImage Kind = iota

	// KindDocument is a dense scanned document (TIFF, Word exports).
	KindDocument

	// KindPDF is a PDF, sent to the file annotation endpoint.
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindPDF:
		return "pdf"
	default:
		return "image"
	}
}

// DetectKind picks the recognition mode from a MIME type and file name.
// Unknown types fall back to image recognition.
func DetectKind(name, mimeType string) Kind {
	mimeType = strings.ToLower(mimeType)
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case mimeType == "application/pdf" || ext == ".pdf":
		return KindPDF
	case mimeType == "image/tiff" || ext == ".tiff" || ext == ".tif":
		return KindDocument
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.Contains(mimeType, "document") || ext == ".doc" || ext == ".docx":
		return KindDocument
	default:
		return KindImage
	}
}

// FileType is the coarse category of an upload.
type FileType string

const (
	FileTypeImage       FileType = "image"
	FileTypeDocument    FileType = "document"
	FileTypeSpreadsheet FileType = "spreadsheet"
	FileTypeOther       FileType = "other"
)

// SupportedExtensions lists the upload extensions per category.
var SupportedExtensions = map[FileType][]string{
	FileTypeImage:       {".jpg", ".jpeg", ".png", ".gif", ".bmp"},
	FileTypeDocument:    {".pdf", ".doc", ".docx", ".txt", ".rtf"},
	FileTypeSpreadsheet: {".xlsx", ".xls", ".csv"},
}

// ClassifyFile returns the category of a file by its extension.
func ClassifyFile(name string) FileType {
	ext := strings.ToLower(filepath.Ext(name))
	for _, ft := range []FileType{FileTypeImage, FileTypeDocument, FileTypeSpreadsheet} {
		for _, e := range SupportedExtensions[ft] {
			if e == ext {
				return ft
			}
		}
	}
	return FileTypeOther
}

// IsPlainText reports whether a file carries its text directly and needs no OCR.
func IsPlainText(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".csv":
		return true
	}
	return false
}

// TextResult wraps already-readable text as a recognition result with full
// confidence. It is used for .txt and .csv uploads.
func TextResult(data io.Reader) (*models.RecognitionResult, error) {
	b, err := readLimited(data)
	if err != nil {
		return nil, WrapOCRError("TextResult", err, "failed to read text")
	}
	return &models.RecognitionResult{Text: string(b), Confidence: 1}, nil
}

// readLimited reads at most MaxFileSizeBytes and fails when data is larger.
func readLimited(data io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(data, MaxFileSizeBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxFileSizeBytes {
		return nil, ErrFileTooLarge
	}
	return b, nil
}

// Engine names accepted by NewRecognizer.
const (
	EngineVision     = "vision"
	EngineDocumentAI = "documentai"
)

// RecognizerCloser is a Recognizer holding a client connection.
type RecognizerCloser interface {
	Recognizer
	Close() error
}

// NewRecognizer creates the recognizer for the named engine.
func NewRecognizer(ctx context.Context, engine string, documentAI DocumentAIConfig) (RecognizerCloser, error) {
	switch engine {
	case EngineVision, "":
		r, err := NewGoogleVisionRecognizer(ctx)
		if err != nil {
			return nil, err
		}
		return r, nil
	case EngineDocumentAI:
		r, err := NewDocumentAIRecognizer(ctx, documentAI)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, WrapOCRError("NewRecognizer", ErrInvalidConfiguration, "unknown engine "+engine)
	}
}

// WithPlainText returns a Recognizer that reads .txt and .csv files directly
// and sends everything else to engine. engine may be nil, in which case only
// plain text files are accepted.
func WithPlainText(engine Recognizer) Recognizer {
	return plainTextRecognizer{engine: engine}
}

type plainTextRecognizer struct {
	engine Recognizer
}

func (p plainTextRecognizer) Recognize(ctx context.Context, name string, data io.Reader) (*models.RecognitionResult, error) {
	if IsPlainText(name) {
		return TextResult(data)
	}
	if p.engine == nil {
		return nil, WrapOCRError("Recognize", ErrInvalidConfiguration, "no OCR engine configured")
	}
	return p.engine.Recognize(ctx, name, data)
}
