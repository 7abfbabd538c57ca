package ocr

import (
	"errors"
	"fmt"
)

// Upload and recognition errors. The HTTP API maps each of them to a status
// code and the CLI to a hint; see web.classify and cmd.handleOCRError.
var (
	// ErrFileTooLarge is returned for uploads over MaxFileSizeBytes, the
	// synchronous request limit of both Vision and Document AI. Plain text
	// uploads are held to the same limit.
	ErrFileTooLarge = errors.New("file is larger than 20MB")

	// ErrInvalidDocument is returned when the bytes contradict the upload's
	// extension, e.g. scan.pdf without a PDF header or a broken .xlsx.
	ErrInvalidDocument = errors.New("file content does not match its type")

	// ErrOCRFailed is returned when Vision or Document AI rejects the request
	// or answers without a result.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when no service account is available,
	// or when the account may not call the processor.
	ErrMissingCredentials = errors.New("Google Cloud credentials missing or not authorized: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS")

	// ErrTooManyPages is returned for PDF and TIFF scans longer than
	// MaxPagesSync; longer documents need a batch job.
	ErrTooManyPages = errors.New("document has more than 5 pages")

	// ErrEmptyDocument is returned for empty uploads and for scans in which
	// no text was found, so there is nothing to turn into rows.
	ErrEmptyDocument = errors.New("document contains no readable text")

	// ErrUnsupportedFormat is returned for extensions outside the image,
	// document and spreadsheet lists (and for legacy .xls workbooks).
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrInvalidConfiguration is returned when OCR_ENGINE or the Document AI
	// settings do not name a usable engine.
	ErrInvalidConfiguration = errors.New("OCR engine not configured")
)

// OCRError records which step of an upload failed.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "NewGoogleVisionRecognizer").
	Op string

	// Err is the underlying error.
	Err error

	// Details names the file problem, e.g. "missing PDF header".
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}
