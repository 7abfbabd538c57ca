package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"docsheet/internal/export"
	"docsheet/internal/ocr"
	"docsheet/internal/sheet"
	"docsheet/pkg/models"
)

// stubRecognizer returns a fixed result or error and records the file name.
type stubRecognizer struct {
	result *models.RecognitionResult
	err    error
	names  []string
}

func (s *stubRecognizer) Recognize(_ context.Context, name string, data io.Reader) (*models.RecognitionResult, error) {
	s.names = append(s.names, name)
	_, _ = io.Copy(io.Discard, data)
	return s.result, s.err
}

func newTestServer(rec ocr.Recognizer) *Server {
	s := NewServer(rec, Options{MaxUploadBytes: 1 << 20})
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func upload(t *testing.T, s *Server, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "file", name, content)
	req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOCR_Image(t *testing.T) {
	stub := &stubRecognizer{result: &models.RecognitionResult{
		Text:       "Item;Price\nTea;2,80",
		Confidence: 0.9,
	}}
	s := newTestServer(stub)

	rec := upload(t, s, "receipt.png", []byte("\x89PNG fake"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OCRResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, []string{"receipt.png"}, stub.names)
	assert.Equal(t, "image", resp.Upload.Type)
	assert.Equal(t, models.UploadStatusCompleted, resp.Upload.Status)
	assert.NotEmpty(t, resp.Upload.ID)
	require.NotNil(t, resp.Upload.ProcessedAt)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 0.9, resp.Result.Confidence)

	assert.Equal(t, 2, resp.Grid.Rows)
	assert.Equal(t, 2, resp.Grid.Columns)
	assert.Equal(t, "2,80", resp.Grid.ValueAt("B2"))
	assert.Empty(t, resp.Warning)

	stored, ok := s.uploads.get(resp.Upload.ID)
	require.True(t, ok)
	assert.Equal(t, models.UploadStatusCompleted, stored.Status)
}

func TestOCR_PlainTextSkipsEngine(t *testing.T) {
	stub := &stubRecognizer{err: errors.New("must not be called")}
	s := newTestServer(stub)

	rec := upload(t, s, "prices.csv", []byte("a,b,c\n1,2,3\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OCRResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, stub.names)
	assert.Equal(t, "spreadsheet", resp.Upload.Type)
	assert.Equal(t, 3, resp.Grid.Columns)
	assert.Equal(t, "3", resp.Grid.ValueAt("C2"))
}

func TestOCR_Workbook(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellStr("Sheet1", "A1", "Item"))
	require.NoError(t, f.SetCellStr("Sheet1", "B2", "2.80"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	stub := &stubRecognizer{}
	rec := upload(t, newTestServer(stub), "book.xlsx", buf.Bytes())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OCRResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, stub.names)
	assert.Nil(t, resp.Result)
	assert.Equal(t, 2, resp.Grid.Rows)
	assert.Equal(t, "Item", resp.Grid.ValueAt("A1"))
	assert.Equal(t, "2.80", resp.Grid.ValueAt("B2"))
}

func TestOCR_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  []byte
		stubErr  error
		wantCode int
		wantErr  string
	}{
		{
			name:     "unsupported extension",
			file:     "archive.zip",
			content:  []byte("PK"),
			wantCode: http.StatusUnsupportedMediaType,
			wantErr:  "unsupported_format",
		},
		{
			name:     "legacy workbook",
			file:     "old.xls",
			content:  []byte("x"),
			wantCode: http.StatusUnsupportedMediaType,
			wantErr:  "unsupported_format",
		},
		{
			name:     "broken workbook",
			file:     "book.xlsx",
			content:  []byte("not a zip"),
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_document",
		},
		{
			name:     "engine failure",
			file:     "scan.png",
			content:  []byte("x"),
			stubErr:  ocr.WrapOCRError("Recognize", ocr.ErrOCRFailed, "quota"),
			wantCode: http.StatusBadGateway,
			wantErr:  "ocr_failed",
		},
		{
			name:     "empty document",
			file:     "scan.pdf",
			content:  []byte("x"),
			stubErr:  ocr.WrapOCRError("Recognize", ocr.ErrEmptyDocument, ""),
			wantCode: http.StatusBadRequest,
			wantErr:  "empty_document",
		},
		{
			name:     "too large",
			file:     "big.png",
			content:  bytes.Repeat([]byte("x"), 2<<20),
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "file_too_large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, newTestServer(&stubRecognizer{err: tt.stubErr}), tt.file, tt.content)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
		})
	}
}

func TestOCR_FailedUploadIsRecorded(t *testing.T) {
	s := newTestServer(&stubRecognizer{err: ocr.WrapOCRError("Recognize", ocr.ErrOCRFailed, "")})
	rec := upload(t, s, "scan.png", []byte("x"))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	uploads := s.uploads.list()
	require.Len(t, uploads, 1)
	assert.Equal(t, models.UploadStatusError, uploads[0].Status)
	assert.Contains(t, uploads[0].Error, "OCR processing failed")
}

func TestOCR_MissingFile(t *testing.T) {
	body, contentType := multipartBody(t, "other", "a.png", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Code)
}

func TestConvert(t *testing.T) {
	s := newTestServer(nil)

	t.Run("text", func(t *testing.T) {
		body := `{"text":"\nName\tQty\nWidget\t4\n","confidence":0.8}`
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ConvertResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "tab", resp.Delimiter)
		assert.Equal(t, 2, resp.Grid.Rows)
		assert.Equal(t, "4", resp.Grid.ValueAt("B2"))
	})

	t.Run("table", func(t *testing.T) {
		body := `{"text":"ignored","confidence":1,"tables":[{"rows":1,"columns":2,"cells":[
			{"text":"X","rowIndex":0,"columnIndex":0},{"text":"Y","rowIndex":0,"columnIndex":1}]}]}`
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ConvertResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Delimiter)
		assert.Equal(t, "Y", resp.Grid.ValueAt("B1"))
	})

	t.Run("wide", func(t *testing.T) {
		line := strings.Repeat("x,", 29) + "x"
		payload, err := json.Marshal(models.RecognitionResult{Text: line, Confidence: 1})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/convert", bytes.NewReader(payload)))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ConvertResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 30, resp.Grid.Columns)
		assert.Contains(t, resp.Warning, "30 columns")
	})

	t.Run("invalid", func(t *testing.T) {
		for _, body := range []string{`not json`, `{"text":"a","confidence":1.5}`} {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})
}

func gridJSON(t *testing.T, g *sheet.Grid) io.Reader {
	t.Helper()
	b, err := json.Marshal(g)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestExportCSV(t *testing.T) {
	g := sheet.NewGrid(2, 2)
	g.SetValueAt("A1", "Item")
	g.SetValueAt("B1", "Price")
	g.SetValueAt("A2", "Coffee")
	g.SetValueAt("B2", "3,50")

	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/export/csv", gridJSON(t, g)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv;charset=utf-8;", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="spreadsheet.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "A,B\nItem,Price\nCoffee,350\n", rec.Body.String())
}

func TestExportCSV_Errors(t *testing.T) {
	s := newTestServer(nil)

	tests := []struct {
		name     string
		body     io.Reader
		wantCode string
	}{
		{"malformed", strings.NewReader("{"), "bad_request"},
		{"too wide", gridJSON(t, sheet.NewGrid(1, 27)), "invalid_column"},
		{"cell outside grid", strings.NewReader(`{"rows":1,"cols":1,"cells":{"C9":{"value":"x"}}}`), "out_of_range"},
		{"bad key", strings.NewReader(`{"rows":1,"cols":1,"cells":{"??":{"value":"x"}}}`), "invalid_cell_id"},
		{"lowercase key", strings.NewReader(`{"rows":1,"cols":1,"cells":{"a1":{"value":"kept?"}}}`), "invalid_cell_id"},
		{"zero padded key", strings.NewReader(`{"rows":1,"cols":1,"cells":{"A01":{"value":"x"}}}`), "invalid_cell_id"},
		{"too many rows", strings.NewReader(`{"rows":5000000,"cols":26,"cells":{}}`), "out_of_range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/export/csv", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestExportXLSX(t *testing.T) {
	g := sheet.NewGrid(1, 2)
	g.SetValueAt("A1", "Tea")
	g.SetValueAt("B1", "2,80")

	s := newTestServer(nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/export/xlsx?sheet=Prices", gridJSON(t, g)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="spreadsheet.xlsx"`, rec.Header().Get("Content-Disposition"))

	back, err := export.ReadXLSX(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "2,80", back.ValueAt("B1"))

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/export/xlsx?sheet=a:b", gridJSON(t, g)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCellEndpoints(t *testing.T) {
	s := newTestServer(nil)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/api/cell/b3", http.StatusOK, `{"id":"B3","row":2,"col":1}`},
		{"/api/cell/Z1", http.StatusOK, `{"id":"Z1","row":0,"col":25}`},
		{"/api/cell/AA1", http.StatusBadRequest, ""},
		{"/api/cell/A0", http.StatusBadRequest, ""},
		{"/api/cell?row=0&col=0", http.StatusOK, `{"id":"A1","row":0,"col":0}`},
		{"/api/cell?row=4&col=26", http.StatusBadRequest, ""},
		{"/api/cell?row=x&col=1", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestUploadHistory(t *testing.T) {
	s := newTestServer(&stubRecognizer{result: &models.RecognitionResult{Text: "a b", Confidence: 1}})

	require.Equal(t, http.StatusOK, upload(t, s, "one.png", []byte("1")).Code)
	require.Equal(t, http.StatusOK, upload(t, s, "two.png", []byte("2")).Code)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Uploads []models.FileMetadata `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Uploads, 2)
	assert.Equal(t, "two.png", list.Uploads[0].Name)

	id := list.Uploads[1].ID

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"one.png"`)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRegistry_Evicts(t *testing.T) {
	reg := newUploadRegistry(2)
	reg.put(models.FileMetadata{ID: "a"})
	reg.put(models.FileMetadata{ID: "b"})
	reg.put(models.FileMetadata{ID: "c"})

	_, ok := reg.get("a")
	assert.False(t, ok)
	assert.Len(t, reg.list(), 2)
	assert.Equal(t, "c", reg.list()[0].ID)
}

func TestMetrics(t *testing.T) {
	stub := &stubRecognizer{result: &models.RecognitionResult{Text: "a b", Confidence: 0.8}}
	s := newTestServer(stub)

	require.Equal(t, http.StatusOK, upload(t, s, "receipt.png", []byte("\x89PNG fake")).Code)
	require.Equal(t, http.StatusOK, upload(t, s, "prices.csv", []byte("a,b\n")).Code)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(`{"text":"a,b\n1,2","confidence":1}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cell/ZZ", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `docsheet_grids_total{source="ocr"} 1`)
	assert.Contains(t, body, `docsheet_grids_total{source="text"} 1`)
	assert.Contains(t, body, `docsheet_grids_total{source="recognition"} 1`)
	assert.Contains(t, body, `docsheet_http_requests_total{method="POST",route="/api/ocr",status="200"} 2`)
	assert.Contains(t, body, `docsheet_http_requests_total{method="GET",route="/api/cell/{id}",status="400"} 1`)
	assert.Contains(t, body, `docsheet_ocr_duration_seconds_count 1`)
}

func TestExportXLSX_RejectsHugeGrid(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/export/xlsx",
		strings.NewReader(`{"rows":2147483647,"cols":1,"cells":{}}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "out_of_range", decodeError(t, rec).Code)
}

func TestCheckGridSize(t *testing.T) {
	assert.NoError(t, checkGridSize(sheet.NewGrid(1024, 1), 1024))
	assert.NoError(t, checkGridSize(sheet.NewGrid(0, 0), 1))
	assert.ErrorIs(t, checkGridSize(sheet.NewGrid(1025, 1), 1024), sheet.ErrOutOfRange)
	assert.ErrorIs(t, checkGridSize(sheet.NewGrid(40, 26), 1024), sheet.ErrOutOfRange)
}
