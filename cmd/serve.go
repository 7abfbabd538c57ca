package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docsheet/internal/logger"
	"docsheet/internal/ocr"
	"docsheet/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  POST   /api/ocr            multipart upload (field "file") -> recognition result and grid
  POST   /api/convert        recognition result JSON -> grid
  POST   /api/export/csv     grid JSON -> spreadsheet.csv
  POST   /api/export/xlsx    grid JSON -> spreadsheet.xlsx (?sheet=name)
  GET    /api/cell/{id}      identifier -> row and column
  GET    /api/cell?row=&col= row and column -> identifier
  GET    /api/uploads        recent uploads (GET/DELETE /api/uploads/{id})
  GET    /healthz
  GET    /metrics            Prometheus metrics

When no OCR engine can be created, text, CSV and XLSX uploads still work.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: $HTTP_ADDR)")
	serveCmd.Flags().String("engine", "", "OCR engine: vision or documentai (default: $OCR_ENGINE)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	engine, _ := cmd.Flags().GetString("engine")
	if addr == "" {
		addr = appConfig.HTTPAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recognizer ocr.Recognizer
	rc, err := createRecognizer(ctx, engine, log)
	if err != nil {
		log.Warn().Err(err).Msg("OCR engine unavailable; only text, CSV and XLSX uploads are accepted")
	} else {
		defer rc.Close()
		recognizer = rc
	}

	server := web.NewServer(recognizer, web.Options{
		MaxUploadBytes: appConfig.MaxUploadBytes,
		RequestTimeout: appConfig.OCRTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
