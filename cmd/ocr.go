package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docsheet/internal/logger"
	"docsheet/internal/ocr"
	"docsheet/pkg/models"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [file]",
	Short: "Recognize text in an image, PDF or scan",
	Long: `Run OCR on a document and print the recognized text.

Images use Google Cloud Vision text detection, PDFs and TIFFs use document
text detection (up to 5 pages, 20MB). With OCR_ENGINE=documentai the file
is sent to a Document AI processor instead, which also reports tables.
Plain .txt and .csv files are read as they are.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT, DOCUMENT_AI_PROCESSOR_ID - for the documentai engine`,
	Example: `  # Print the text of a receipt
  docsheet ocr receipt.jpg

  # Save the full recognition result (pages, areas, tables) as JSON
  docsheet ocr scan.pdf --json -o result.json

  # Use Document AI with a longer timeout
  docsheet ocr statement.pdf --engine documentai --timeout 600`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is the JSON written by --json.
type OCROutput struct {
	*models.RecognitionResult
	FileName           string    `json:"file_name"`
	FileSize           int64     `json:"file_size"`
	ProcessedAt        time.Time `json:"processed_at"`
	ProcessingDuration string    `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output the full recognition result as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	ocrCmd.Flags().String("engine", "", "OCR engine: vision or documentai (default: $OCR_ENGINE)")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	engine, _ := cmd.Flags().GetString("engine")

	path := args[0]

	log.Info().
		Str("file", path).
		Str("output", outputPath).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	fileInfo, err := validateInputFile(path, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	recognizer, release, err := openEngine(ctx, engine, !ocr.IsPlainText(path), log)
	if err != nil {
		return err
	}
	defer release()

	startTime := time.Now()
	result, err := recognizeFile(ctx, path, recognizer, log)
	if err != nil {
		return err
	}
	duration := time.Since(startTime)

	log.Info().
		Int("page_count", len(result.Pages)).
		Int("table_count", len(result.Tables)).
		Float64("confidence", result.Confidence).
		Dur("duration", duration).
		Int("text_length", len(result.Text)).
		Msg("OCR processing completed successfully")

	var data []byte
	if jsonOutput {
		data, err = json.MarshalIndent(OCROutput{
			RecognitionResult:  result,
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
			ProcessedAt:        time.Now(),
			ProcessingDuration: duration.String(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	} else {
		data = []byte(result.Text)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	return writeOutput(cmd, outputPath, data, log)
}

// openEngine creates the OCR engine when needed is true. The returned
// release func closes it; with needed false the recognizer is nil and only
// plain text files can be recognized.
func openEngine(ctx context.Context, engine string, needed bool, log zerolog.Logger) (ocr.Recognizer, func(), error) {
	if !needed {
		return nil, func() {}, nil
	}
	rc, err := createRecognizer(ctx, engine, log)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR client")
		}
	}
	return rc, release, nil
}

// needsEngine reports whether path has to go through OCR.
func needsEngine(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".xlsx":
		return false
	}
	return !ocr.IsPlainText(path)
}

// recognizeFile runs recognizer on path. Plain text files are read directly.
func recognizeFile(ctx context.Context, path string, recognizer ocr.Recognizer, log zerolog.Logger) (*models.RecognitionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", path).
			Msg("Failed to open file")
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close file")
		}
	}()

	result, err := ocr.WithPlainText(recognizer).Recognize(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, handleOCRError(err, log)
	}
	return result, nil
}

// validateInputFile checks that path is a readable, non-empty regular file
// within the synchronous processing limit.
func validateInputFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", path).
				Msg("File not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", path).
				Msg("Permission denied accessing file")
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", path).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	if ocr.ClassifyFile(path) == ocr.FileTypeOther && !strings.EqualFold(filepath.Ext(path), ".json") {
		log.Warn().
			Str("file", path).
			Msg("Unrecognized file extension, sending to OCR as an image")
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", path).
			Msg("File is empty")
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("File exceeds maximum size limit")
		return nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxFileSizeBytes)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// createRecognizer creates the OCR engine named by engine, or by OCR_ENGINE
// when engine is empty.
func createRecognizer(ctx context.Context, engine string, log zerolog.Logger) (ocr.RecognizerCloser, error) {
	if engine == "" {
		engine = appConfig.OCREngine
	}

	hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
	if !hasCredentials {
		log.Error().Msg("Google Cloud credentials not configured")
		return nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON:\n" +
			"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
			"3. Check that your .env file contains the credentials variables")
	}

	recognizer, err := ocr.NewRecognizer(ctx, strings.ToLower(engine), appConfig.GetDocumentAIConfig())
	if err != nil {
		switch {
		case errors.Is(err, ocr.ErrMissingCredentials):
			log.Error().
				Err(err).
				Msg("Google Cloud credentials validation failed")
			return nil, fmt.Errorf("Google Cloud credentials validation failed. Please verify:\n\n"+
				"1. Credentials file exists and is readable\n"+
				"2. JSON format is valid\n"+
				"3. Service account has proper permissions\n\n"+
				"Original error: %w", err)
		case errors.Is(err, ocr.ErrInvalidConfiguration):
			log.Error().
				Err(err).
				Str("engine", engine).
				Msg("Invalid OCR configuration")
			return nil, fmt.Errorf("invalid OCR configuration. Use --engine vision or set GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID for documentai: %w", err)
		}
		log.Error().
			Err(err).
			Msg("Failed to create OCR engine")
		return nil, fmt.Errorf("failed to create OCR engine: %w", err)
	}

	log.Debug().Str("engine", engine).Msg("OCR engine created successfully")
	return recognizer, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrFileTooLarge):
		return fmt.Errorf("file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("document has too many pages (maximum 5 pages). Try splitting into smaller files")
	case errors.Is(err, ocr.ErrInvalidDocument):
		return fmt.Errorf("invalid or corrupted document. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document")
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported document format: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "auth:") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.\n\n"+
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "forbidden"):
		return fmt.Errorf("permission denied. Please ensure your service account has the 'Cloud Vision API User' or 'Document AI API User' role")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "quota"):
		return fmt.Errorf("Google Cloud API quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// writeOutput writes data to outputPath, or to the command's stdout when
// outputPath is empty or "-".
func writeOutput(cmd *cobra.Command, outputPath string, data []byte, log zerolog.Logger) error {
	if outputPath == "" || outputPath == "-" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(data)).
		Msg("Output written to file")
	return nil
}
