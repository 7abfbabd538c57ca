package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docsheet/internal/export"
	"docsheet/internal/logger"
	"docsheet/internal/ocr"
	"docsheet/internal/sheet"
	"docsheet/internal/sheets"
)

const (
	statusSuccess = "success"
	statusWarning = "warning"
	statusError   = "error"
)

// maxWorksheetTitle is the longest worksheet title Google Sheets accepts.
const maxWorksheetTitle = 100

var batchCmd = &cobra.Command{
	Use:   "batch [folder]",
	Short: "Convert every document in a folder into a spreadsheet",
	Long: `Convert every supported document in a folder, including subfolders.

Images, PDFs and other documents go through OCR. Text, CSV, XLSX and saved
recognition results (.json) are converted without OCR. Each input produces
one output file under --out-dir, named after the input with the format
extension appended (receipt.jpg -> receipt.jpg.csv). Subfolders are mirrored.

With --push every converted grid is also written to the Google Sheet in
$GOOGLE_SHEET_URL, one worksheet per file named after the file.

Optional environment variables:
  BATCH_WORKERS - Number of parallel workers (default: 4)`,
	Example: `  # Convert all scans to CSV next to them in ./scans/converted
  docsheet batch ./scans

  # Write workbooks to another folder with 8 workers
  docsheet batch ./scans --format xlsx --out-dir ./out --workers 8

  # Check which files convert without writing anything
  docsheet batch ./scans --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// BatchResult is the outcome of converting one file.
type BatchResult struct {
	File   string
	Output string
	Grid   *sheet.Grid
	Err    error
	Status string
	Index  int
}

// batchJob is one file queued for a worker.
type batchJob struct {
	Path  string
	Index int
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("format", "f", formatCSV, "Output format: csv, xlsx or json")
	batchCmd.Flags().String("out-dir", "", "Output folder (default: <folder>/converted)")
	batchCmd.Flags().String("sheet", "", "Worksheet name for xlsx output (default: Sheet1)")
	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (default: $BATCH_WORKERS)")
	batchCmd.Flags().Bool("dry-run", false, "Convert files but write nothing")
	batchCmd.Flags().Bool("push", false, "Push every grid to $GOOGLE_SHEET_URL")
	batchCmd.Flags().Int("timeout", 1800, "Timeout for the whole batch in seconds")
	batchCmd.Flags().String("engine", "", "OCR engine: vision or documentai (default: $OCR_ENGINE)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folder := args[0]
	format, _ := cmd.Flags().GetString("format")
	outDir, _ := cmd.Flags().GetString("out-dir")
	sheetName, _ := cmd.Flags().GetString("sheet")
	numWorkers, _ := cmd.Flags().GetInt("workers")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	push, _ := cmd.Flags().GetBool("push")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	engine, _ := cmd.Flags().GetString("engine")

	format = strings.ToLower(format)
	if format != formatCSV && format != formatXLSX && format != formatJSON {
		return fmt.Errorf("unknown format %q: use csv, xlsx or json", format)
	}
	if sheetName == "" {
		sheetName = export.DefaultSheetName
	}
	if numWorkers <= 0 {
		numWorkers = appConfig.BatchWorkers
	}
	if push && appConfig.GoogleSheetURL == "" {
		return fmt.Errorf("--push needs GOOGLE_SHEET_URL to be set")
	}

	folderInfo, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folder)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folder)
	}
	if outDir == "" {
		outDir = filepath.Join(folder, "converted")
	}

	log.Info().
		Str("folder", folder).
		Str("out_dir", outDir).
		Str("format", format).
		Int("workers", numWorkers).
		Bool("dry_run", dryRun).
		Bool("push", push).
		Msg("Starting batch conversion")

	files, err := findDocuments(folder, outDir)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No supported documents found.")
		return nil
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	needed := false
	for _, f := range files {
		if needsEngine(f) {
			needed = true
			break
		}
	}
	recognizer, release, err := openEngine(ctx, engine, needed, log)
	if err != nil {
		return err
	}
	defer release()

	fmt.Fprintf(out, "Converting %d files with %d workers...\n", len(files), numWorkers)

	conv := batchConverter{
		folder:     folder,
		outDir:     outDir,
		format:     format,
		sheetName:  sheetName,
		dryRun:     dryRun,
		recognizer: recognizer,
		log:        log,
	}
	results := conv.run(ctx, files, numWorkers, out)

	var successCount, warningCount, errorCount int
	for _, r := range results {
		switch r.Status {
		case statusSuccess:
			successCount++
		case statusWarning:
			warningCount++
		case statusError:
			errorCount++
		}
	}

	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Converted: %d\n", successCount)
	if warningCount > 0 {
		fmt.Fprintf(out, "Empty: %d\n", warningCount)
	}
	if errorCount > 0 {
		fmt.Fprintf(out, "Failed: %d\n", errorCount)
	}

	if push && !dryRun {
		if err := pushResults(ctx, results, log); err != nil {
			return err
		}
		fmt.Fprintf(out, "Pushed to: %s\n", appConfig.GoogleSheetURL)
	}

	log.Info().
		Int("total", len(files)).
		Int("success", successCount).
		Int("warnings", warningCount).
		Int("errors", errorCount).
		Msg("Batch conversion completed")

	if errorCount > 0 {
		return fmt.Errorf("%d of %d files failed", errorCount, len(files))
	}
	return nil
}

// findDocuments lists the convertible files under folder, skipping outDir and
// hidden entries.
func findDocuments(folder, outDir string) ([]string, error) {
	var files []string
	absOut, _ := filepath.Abs(outDir)

	err := filepath.Walk(folder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if abs, _ := filepath.Abs(path); abs == absOut {
				return filepath.SkipDir
			}
			if path != folder && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasPrefix(info.Name(), ".") && isBatchDocument(info.Name()) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func isBatchDocument(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".json" {
		return true
	}
	return ocr.ClassifyFile(name) != ocr.FileTypeOther && ext != ".xls"
}

type batchConverter struct {
	folder     string
	outDir     string
	format     string
	sheetName  string
	dryRun     bool
	recognizer ocr.Recognizer
	log        zerolog.Logger
}

// run converts files with a pool of workers. Results keep the order of files.
func (c batchConverter) run(ctx context.Context, files []string, numWorkers int, progress io.Writer) []BatchResult {
	jobs := make(chan batchJob, len(files))
	results := make([]BatchResult, len(files))

	var processed int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				c.log.Debug().
					Int("worker", workerID).
					Str("file", job.Path).
					Int("index", job.Index+1).
					Msg("Worker converting file")

				result := c.convert(ctx, job.Path)
				result.Index = job.Index
				results[job.Index] = result

				mu.Lock()
				processed++
				fmt.Fprintf(progress, "[%d/%d] %s - %s", processed, len(files), result.File, getStatusEmoji(result.Status))
				if result.Err != nil {
					fmt.Fprintf(progress, " (%s)", result.Err)
				} else {
					fmt.Fprintf(progress, " (%dx%d)", result.Grid.Rows, result.Grid.Columns)
				}
				fmt.Fprintln(progress)
				mu.Unlock()
			}
		}(w)
	}

	for i, f := range files {
		jobs <- batchJob{Path: f, Index: i}
	}
	close(jobs)

	wg.Wait()

	return results
}

// convert turns one file into a grid and writes it under outDir.
func (c batchConverter) convert(ctx context.Context, path string) BatchResult {
	rel, err := filepath.Rel(c.folder, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	result := BatchResult{File: rel, Status: statusError}

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	if _, err := validateInputFile(path, c.log); err != nil {
		result.Err = err
		return result
	}

	grid, err := gridFromFile(ctx, path, c.recognizer, c.log)
	if err != nil {
		result.Err = err
		return result
	}
	result.Grid = grid

	data, err := encodeGrid(grid, c.format, c.sheetName)
	if err != nil {
		result.Err = err
		return result
	}

	result.Output = filepath.Join(c.outDir, rel+"."+c.format)
	if !c.dryRun {
		if err := os.MkdirAll(filepath.Dir(result.Output), 0o755); err != nil {
			result.Err = fmt.Errorf("failed to create output folder: %w", err)
			return result
		}
		if err := os.WriteFile(result.Output, data, 0o644); err != nil {
			result.Err = fmt.Errorf("failed to write output file: %w", err)
			return result
		}
	}

	result.Status = statusSuccess
	if grid.Rows == 0 {
		result.Status = statusWarning
	}
	return result
}

// pushResults writes every converted grid to its own worksheet.
func pushResults(ctx context.Context, results []BatchResult, log zerolog.Logger) error {
	svc, err := sheets.NewSheetsService(ctx, appConfig.GoogleSheetURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Google Sheets: %w", err)
	}

	for _, r := range results {
		if r.Status != statusSuccess {
			continue
		}
		title := worksheetTitle(r.File)
		if err := svc.WriteGrid(ctx, r.Grid, title); err != nil {
			return fmt.Errorf("failed to push %s to Google Sheets: %w", r.File, err)
		}
		log.Debug().
			Str("file", r.File).
			Str("worksheet", title).
			Msg("Grid pushed")
	}
	return nil
}

// worksheetTitle derives a worksheet title from a relative file path.
func worksheetTitle(rel string) string {
	title := strings.TrimSuffix(rel, filepath.Ext(rel))
	title = strings.ReplaceAll(filepath.ToSlash(title), "/", "_")
	if r := []rune(title); len(r) > maxWorksheetTitle {
		title = string(r[:maxWorksheetTitle])
	}
	if title == "" {
		title = time.Now().Format("20060102_150405")
	}
	return title
}

// getStatusEmoji returns an emoji for the conversion status
func getStatusEmoji(status string) string {
	switch status {
	case statusSuccess:
		return "✅"
	case statusWarning:
		return "⚠️"
	case statusError:
		return "❌"
	default:
		return "❓"
	}
}
