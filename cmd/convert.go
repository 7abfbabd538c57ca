package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docsheet/internal/export"
	"docsheet/internal/logger"
	"docsheet/internal/ocr"
	"docsheet/internal/sheet"
	"docsheet/internal/sheets"
	"docsheet/pkg/models"
)

const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"
	formatJSON = "json"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file | google-sheet-url]",
	Short: "Convert a document into a spreadsheet",
	Long: `Convert a document into a spreadsheet grid and export it.

The input may be:
  - a recognition result saved with 'docsheet ocr --json' (.json)
  - an Excel workbook (.xlsx), imported from its first sheet
  - a Google Sheets URL, read from --worksheet
  - any other document, which is sent through OCR first

The grid uses the first recognized table when there is one. Otherwise every
non-blank text line becomes a row and the delimiter is inferred from the
first line. Only columns A to Z can be exported.

CSV output starts with a header of column letters. Commas inside values are
removed, not quoted.`,
	Example: `  # OCR a receipt and write spreadsheet.csv
  docsheet convert receipt.jpg

  # Convert a saved recognition result to CSV on stdout
  docsheet convert result.json -o -

  # Write an Excel workbook
  docsheet convert scan.pdf --format xlsx -o prices.xlsx --sheet Prices

  # Push the grid to Google Sheets as well
  docsheet convert scan.pdf --sheet-url https://docs.google.com/spreadsheets/d/ID/edit --worksheet Import`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("format", "f", formatCSV, "Output format: csv, xlsx or json")
	convertCmd.Flags().StringP("output", "o", "", "Output file, - for stdout (default: spreadsheet.<format>)")
	convertCmd.Flags().String("sheet", export.DefaultSheetName, "Worksheet name for xlsx output")
	convertCmd.Flags().String("sheet-url", "", "Google Sheets URL to push the grid to")
	convertCmd.Flags().Bool("push", false, "Push the grid to $GOOGLE_SHEET_URL")
	convertCmd.Flags().String("worksheet", "", "Google Sheets worksheet (default: $GOOGLE_SHEET_WORKSHEET)")
	convertCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	convertCmd.Flags().String("engine", "", "OCR engine: vision or documentai (default: $OCR_ENGINE)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("convert")

	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	sheetName, _ := cmd.Flags().GetString("sheet")
	sheetURL, _ := cmd.Flags().GetString("sheet-url")
	push, _ := cmd.Flags().GetBool("push")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	engine, _ := cmd.Flags().GetString("engine")

	format = strings.ToLower(format)
	if format != formatCSV && format != formatXLSX && format != formatJSON {
		return fmt.Errorf("unknown format %q: use csv, xlsx or json", format)
	}
	if outputPath == "" {
		outputPath = defaultOutputPath(format)
	}
	if sheetURL == "" && push {
		sheetURL = appConfig.GoogleSheetURL
		if sheetURL == "" {
			return fmt.Errorf("--push needs GOOGLE_SHEET_URL to be set")
		}
	}
	if worksheet == "" {
		worksheet = appConfig.GoogleSheetWorksheet
	}

	input := args[0]

	log.Info().
		Str("input", input).
		Str("format", format).
		Str("output", outputPath).
		Msg("Starting conversion")

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	grid, err := loadGrid(ctx, input, engine, worksheet, log)
	if err != nil {
		return err
	}

	log.Info().
		Int("rows", grid.Rows).
		Int("columns", grid.Columns).
		Msg("Grid created")

	if grid.Columns > sheet.MaxColumns {
		log.Warn().
			Int("columns", grid.Columns).
			Int("max_columns", sheet.MaxColumns).
			Msg("Grid is wider than Z; cells past Z were dropped and export will fail")
	}

	data, err := encodeGrid(grid, format, sheetName)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, outputPath, data, log); err != nil {
		return err
	}

	if sheetURL != "" {
		svc, err := sheets.NewSheetsService(ctx, sheetURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Google Sheets: %w", err)
		}
		if err := svc.WriteGrid(ctx, grid, worksheet); err != nil {
			return fmt.Errorf("failed to push grid to Google Sheets: %w", err)
		}
		log.Info().
			Str("worksheet", worksheet).
			Msg("Grid pushed to Google Sheets")
	}

	return nil
}

// loadGrid builds a grid from a Google Sheets URL or a local file.
func loadGrid(ctx context.Context, input, engine, worksheet string, log zerolog.Logger) (*sheet.Grid, error) {
	if isSheetsURL(input) {
		svc, err := sheets.NewSheetsService(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Google Sheets: %w", err)
		}
		return svc.ReadGrid(ctx, worksheet)
	}

	if _, err := validateInputFile(input, log); err != nil {
		return nil, err
	}

	recognizer, release, err := openEngine(ctx, engine, needsEngine(input), log)
	if err != nil {
		return nil, err
	}
	defer release()

	return gridFromFile(ctx, input, recognizer, log)
}

// gridFromFile builds a grid from a recognition result file (.json), a
// workbook (.xlsx) or a document recognized by recognizer.
func gridFromFile(ctx context.Context, path string, recognizer ocr.Recognizer, log zerolog.Logger) (*sheet.Grid, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()

		result, err := models.DecodeRecognitionResult(f)
		if err != nil {
			return nil, err
		}
		return sheet.FromRecognition(result), nil
	case ".xlsx":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()

		return export.ReadXLSX(f)
	}

	result, err := recognizeFile(ctx, path, recognizer, log)
	if err != nil {
		return nil, err
	}
	return sheet.FromRecognition(result), nil
}

// encodeGrid renders grid in the requested output format.
func encodeGrid(grid *sheet.Grid, format, sheetName string) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case formatXLSX:
		if err := export.WriteXLSX(&buf, grid, sheetName); err != nil {
			return nil, err
		}
	case formatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(grid); err != nil {
			return nil, fmt.Errorf("failed to create JSON output: %w", err)
		}
	default:
		if err := sheet.WriteCSV(&buf, grid); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func defaultOutputPath(format string) string {
	switch format {
	case formatXLSX:
		return export.XLSXFileName
	case formatJSON:
		return "-"
	default:
		return sheet.CSVFileName
	}
}

func isSheetsURL(s string) bool {
	return strings.HasPrefix(s, "https://docs.google.com/spreadsheets/")
}
