package ocr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapOCRError(t *testing.T) {
	assert.NoError(t, WrapOCRError("Recognize", nil, "ignored"))

	err := WrapOCRError("Recognize", ErrInvalidDocument, "missing PDF header")
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Equal(t, "ocr: Recognize failed: missing PDF header: file content does not match its type", err.Error())

	// An error that already carries an upload step keeps it.
	outer := WrapOCRError("process", fmt.Errorf("scan.pdf: %w", err), "other")
	var ocrErr *OCRError
	require.True(t, errors.As(outer, &ocrErr))
	assert.Equal(t, "Recognize", ocrErr.Op)
	assert.Equal(t, "missing PDF header", ocrErr.Details)
}

func TestOCRError_WithoutDetails(t *testing.T) {
	err := NewOCRError("annotateFile", ErrTooManyPages, "")
	assert.Equal(t, "ocr: annotateFile failed: document has more than 5 pages", err.Error())
	assert.ErrorIs(t, err, ErrTooManyPages)
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrFileTooLarge, ErrInvalidDocument, ErrOCRFailed, ErrMissingCredentials,
		ErrTooManyPages, ErrEmptyDocument, ErrUnsupportedFormat, ErrInvalidConfiguration,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
