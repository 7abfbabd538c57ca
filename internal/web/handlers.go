package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docsheet/internal/export"
	"docsheet/internal/logger"
	"docsheet/internal/ocr"
	"docsheet/internal/sheet"
	"docsheet/pkg/models"
)

// OCRResponse is returned by POST /api/ocr.
type OCRResponse struct {
	Upload  models.FileMetadata       `json:"upload"`
	Result  *models.RecognitionResult `json:"result,omitempty"`
	Grid    *sheet.Grid               `json:"grid"`
	Warning string                    `json:"warning,omitempty"`
}

// ConvertResponse is returned by POST /api/convert.
type ConvertResponse struct {
	Grid      *sheet.Grid `json:"grid"`
	Delimiter string      `json:"delimiter,omitempty"`
	Warning   string      `json:"warning,omitempty"`
}

// CellResponse describes one cell address.
type CellResponse struct {
	ID  string `json:"id"`
	Row int    `json:"row"`
	Col int    `json:"col"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}

// handleOCR accepts a multipart upload in the "file" field, recognizes it and
// converts the result into a grid. Workbooks are imported without OCR.
func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadBytes {
		respondError(w, r, fmt.Errorf("upload of %d bytes: %w", r.ContentLength, ocr.ErrFileTooLarge))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid multipart form: %w", errBadRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: no file provided", errBadRequest))
		return
	}
	defer file.Close()

	meta := models.FileMetadata{
		ID:         uuid.NewString(),
		Name:       filepath.Base(header.Filename),
		Type:       string(ocr.ClassifyFile(header.Filename)),
		Size:       header.Size,
		UploadedAt: s.now(),
		Status:     models.UploadStatusProcessing,
	}
	s.uploads.put(meta)

	log := logger.FromContext(r.Context()).With().
		Str("upload_id", meta.ID).
		Str("file", meta.Name).
		Logger()
	log.Info().Str("type", meta.Type).Int64("size", meta.Size).Msg("Processing upload")

	result, grid, err := s.process(r.Context(), meta.Name, file)
	meta.Finish(s.now(), err)
	s.uploads.put(meta)
	if err != nil {
		respondError(w, r, err)
		return
	}

	log.Info().
		Int("rows", grid.Rows).
		Int("columns", grid.Columns).
		Msg("Upload converted")

	writeJSON(w, r, OCRResponse{
		Upload:  meta,
		Result:  result,
		Grid:    grid,
		Warning: columnWarning(grid),
	})
}

// process turns one uploaded file into a grid. The recognition result is nil
// for imported workbooks.
func (s *Server) process(ctx context.Context, name string, file multipart.File) (*models.RecognitionResult, *sheet.Grid, error) {
	const op = "process"

	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ocr.ClassifyFile(name) == ocr.FileTypeOther, ext == ".xls":
		return nil, nil, ocr.WrapOCRError(op, ocr.ErrUnsupportedFormat, "extension "+ext)
	case ext == ".xlsx":
		grid, err := export.ReadXLSX(file)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ocr.ErrInvalidDocument, err)
		}
		s.metrics.grids.WithLabelValues(sourceWorkbook).Inc()
		return nil, grid, nil
	}

	source := sourceText
	start := time.Now()
	result, err := s.recognizer.Recognize(ctx, name, file)
	if !ocr.IsPlainText(name) {
		source = sourceOCR
		s.metrics.ocrDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, nil, err
	}
	s.metrics.grids.WithLabelValues(source).Inc()
	return result, sheet.FromRecognition(result), nil
}

// handleConvert converts a RecognitionResult JSON body into a grid.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	result, err := models.DecodeRecognitionResult(r.Body)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	grid := sheet.FromRecognition(result)
	s.metrics.grids.WithLabelValues(sourceRecognition).Inc()

	resp := ConvertResponse{Grid: grid, Warning: columnWarning(grid)}
	if len(result.Tables) == 0 {
		if line := firstLine(result.Text); line != "" {
			resp.Delimiter = sheet.DetectDelimiter(line).String()
		}
	}
	writeJSON(w, r, resp)
}

// handleExportCSV renders a grid JSON body as a spreadsheet.csv download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	grid, err := s.decodeGrid(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := sheet.WriteCSV(&buf, grid); err != nil {
		respondError(w, r, err)
		return
	}

	writeDownload(w, sheet.CSVContentType, sheet.CSVFileName, buf.Bytes())
}

// handleExportXLSX renders a grid JSON body as a workbook download. The
// optional "sheet" query parameter names the worksheet.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	grid, err := s.decodeGrid(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, grid, r.URL.Query().Get("sheet")); err != nil {
		respondError(w, r, err)
		return
	}

	writeDownload(w, export.XLSXContentType, export.XLSXFileName, buf.Bytes())
}

// handleCellID returns the identifier for the row and col query parameters.
func (s *Server) handleCellID(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(r.URL.Query().Get("row"))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: row must be an integer", errBadRequest))
		return
	}
	col, err := strconv.Atoi(r.URL.Query().Get("col"))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: col must be an integer", errBadRequest))
		return
	}

	id, err := sheet.CellID(row, col)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, CellResponse{ID: id, Row: row, Col: col})
}

// handleParseCell returns the row and column of a cell identifier.
func (s *Server) handleParseCell(w http.ResponseWriter, r *http.Request) {
	row, col, err := sheet.ParseCellID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, CellResponse{ID: sheet.MustCellID(row, col), Row: row, Col: col})
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{"uploads": s.uploads.list()})
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	meta, ok := s.uploads.get(id)
	if !ok {
		respondError(w, r, fmt.Errorf("upload %s: %w", id, errNotFound))
		return
	}
	writeJSON(w, r, meta)
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	if !s.uploads.remove(id) {
		respondError(w, r, fmt.Errorf("upload %s: %w", id, errNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeGrid reads and validates a grid JSON body. Grids whose export would
// exceed the upload limit are refused before anything is rendered.
func (s *Server) decodeGrid(w http.ResponseWriter, r *http.Request) (*sheet.Grid, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var grid sheet.Grid
	if err := json.NewDecoder(r.Body).Decode(&grid); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invalid grid JSON: %w", errBadRequest, err)
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if err := checkGridSize(&grid, s.opts.MaxUploadBytes); err != nil {
		return nil, err
	}
	return &grid, nil
}

// checkGridSize rejects grids whose rendering needs more than limit bytes.
// Every row takes at least one byte per column (separators and newline),
// so Rows*Columns is a lower bound on the output size.
func checkGridSize(g *sheet.Grid, limit int64) error {
	const op = "checkGridSize"

	cols := int64(max(g.Columns, 1))
	if rows := int64(g.Rows); rows > limit/cols {
		return fmt.Errorf("%s: grid of %dx%d cells exceeds the %d byte limit: %w",
			op, g.Rows, g.Columns, limit, sheet.ErrOutOfRange)
	}
	return nil
}

func writeDownload(w http.ResponseWriter, contentType, fileName string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = io.Copy(w, bytes.NewReader(body))
}

// columnWarning explains why a grid wider than Z cannot be exported.
func columnWarning(g *sheet.Grid) string {
	if g.Columns <= sheet.MaxColumns {
		return ""
	}
	return fmt.Sprintf("grid has %d columns; only the first %d are addressable and it cannot be exported", g.Columns, sheet.MaxColumns)
}

// firstLine returns the first line of text that is not blank.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
