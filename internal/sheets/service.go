package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"docsheet/internal/logger"
	"docsheet/internal/sheet"
)

// Service pushes grids to and pulls grids from one Google spreadsheet.
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

var (
	spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	plainSheetName       = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// NewSheetsService creates a new Google Sheets service
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return NewSheetsServiceWithClient(sheetsService, spreadsheetID), nil
}

// NewSheetsServiceWithClient wraps an existing Sheets API client.
func NewSheetsServiceWithClient(sheetsService *sheets.Service, spreadsheetID string) *Service {
	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           logger.WithComponent("sheets"),
	}
}

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// WriteGrid replaces the contents of sheetName with g, creating the sheet
// when it does not exist. Grid cell A1 lands in sheet cell A1.
func (s *Service) WriteGrid(ctx context.Context, g *sheet.Grid, sheetName string) error {
	const op = "WriteGrid"

	if g.Columns > sheet.MaxColumns {
		return fmt.Errorf("%s: grid has %d columns: %w", op, g.Columns, sheet.ErrInvalidColumn)
	}

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", g.Rows).
		Int("columns", g.Columns).
		Msg("Writing grid to Google Sheet")

	sheetID, err := s.ensureSheet(ctx, sheetName)
	if err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	_, err = s.sheetsService.Spreadsheets.Values.Clear(
		s.spreadsheetID,
		quoteSheetName(sheetName),
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to clear sheet: %w", op, err)
	}

	if g.Rows == 0 || g.Columns == 0 {
		s.log.Info().Str("sheet", sheetName).Msg("Grid is empty, sheet cleared")
		return nil
	}

	valueRange := &sheets.ValueRange{Values: gridToValues(g)}
	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		gridRange(sheetName, g),
		valueRange,
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to update values: %w", op, err)
	}

	if err := s.resizeColumns(ctx, sheetID, g.Columns); err != nil {
		s.log.Warn().Err(err).Msg("Failed to resize columns, continuing anyway")
	}

	s.log.Info().
		Int("rows_written", g.Rows).
		Msg("Successfully wrote grid to Google Sheet")

	return nil
}

// ReadGrid reads rangeSpec ("Sheet!A1:D20" or just a sheet name) into a grid.
// Columns past Z are dropped.
func (s *Service) ReadGrid(ctx context.Context, rangeSpec string) (*sheet.Grid, error) {
	values, err := s.ReadRange(ctx, rangeSpec)
	if err != nil {
		return nil, err
	}
	return valuesToGrid(values), nil
}

// ReadRange reads values from a specified range in the spreadsheet
func (s *Service) ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error) {
	const op = "ReadRange"

	s.log.Debug().
		Str("range", rangeSpec).
		Msg("Reading range from spreadsheet")

	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read range %s: %w", op, rangeSpec, err)
	}

	s.log.Debug().
		Int("rows", len(resp.Values)).
		Str("range", rangeSpec).
		Msg("Successfully read range from spreadsheet")

	return resp.Values, nil
}

// ensureSheet returns the id of sheetName, adding the sheet when missing.
func (s *Service) ensureSheet(ctx context.Context, sheetName string) (int64, error) {
	const op = "ensureSheet"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil && sh.Properties.Title == sheetName {
			return sh.Properties.SheetId, nil
		}
	}

	s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

	batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: sheetName},
			}},
		},
	}

	resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to create sheet: %w", op, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("%s: empty reply when creating sheet %q", op, sheetName)
	}

	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// resizeColumns fits the first cols columns to their content.
func (s *Service) resizeColumns(ctx context.Context, sheetID int64, cols int) error {
	const op = "resizeColumns"

	batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(cols),
				},
			},
		}},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// gridRange returns the A1 range covering g on sheetName, e.g. "Data!A1:C4".
func gridRange(sheetName string, g *sheet.Grid) string {
	last := sheet.MustCellID(g.Rows-1, g.Columns-1)
	return fmt.Sprintf("%s!A1:%s", quoteSheetName(sheetName), last)
}

// quoteSheetName quotes names that A1 notation would otherwise misread.
func quoteSheetName(name string) string {
	if plainSheetName.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// gridToValues converts g to the row-major value matrix the API expects.
func gridToValues(g *sheet.Grid) [][]interface{} {
	matrix := g.Matrix()
	values := make([][]interface{}, len(matrix))
	for r, row := range matrix {
		out := make([]interface{}, len(row))
		for c, v := range row {
			out[c] = v
		}
		values[r] = out
	}
	return values
}

// valuesToGrid converts API values to a grid, keeping at most
// sheet.MaxColumns columns.
func valuesToGrid(values [][]interface{}) *sheet.Grid {
	cols := 0
	for _, row := range values {
		cols = max(cols, len(row))
	}

	g := sheet.NewGrid(len(values), min(cols, sheet.MaxColumns))
	for r, row := range values {
		for c := 0; c < len(row) && c < g.Columns; c++ {
			if v := getString(row, c); v != "" {
				_ = g.Set(r, c, v)
			}
		}
	}
	return g
}

// getString safely extracts a string value from a row slice
func getString(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	if s, ok := row[index].(string); ok {
		return s
	}
	return fmt.Sprintf("%v", row[index])
}
