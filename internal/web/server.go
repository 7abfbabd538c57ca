// Package web provides the HTTP API: document upload and OCR, conversion of
// recognition results into grids, CSV and XLSX export, and cell addressing.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"docsheet/internal/logger"
	"docsheet/internal/ocr"
)

// DefaultMaxUploadBytes limits multipart uploads when Options leaves it unset.
const DefaultMaxUploadBytes = ocr.MaxFileSizeBytes

// Options configures a Server.
type Options struct {
	// MaxUploadBytes caps request bodies for uploads.
	MaxUploadBytes int64

	// RequestTimeout bounds each request, OCR included. Zero means 2 minutes.
	RequestTimeout time.Duration
}

// Server is the HTTP server.
type Server struct {
	recognizer ocr.Recognizer
	uploads    *uploadRegistry
	metrics    *metrics
	opts       Options
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	now        func() time.Time
}

// NewServer creates a new Server. recognizer handles uploads that need OCR;
// plain text uploads never reach it.
func NewServer(recognizer ocr.Recognizer, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}

	s := &Server{
		recognizer: ocr.WithPlainText(recognizer),
		uploads:    newUploadRegistry(maxTrackedUploads),
		metrics:    newMetrics(),
		opts:       opts,
		router:     chi.NewRouter(),
		log:        logger.WithComponent("web"),
		now:        time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(s.metrics.instrument)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.handler())

	s.router.Route("/api", func(r chi.Router) {
		// Recognition
		r.Post("/ocr", s.handleOCR)
		r.Post("/convert", s.handleConvert)

		// Export
		r.Post("/export/csv", s.handleExportCSV)
		r.Post("/export/xlsx", s.handleExportXLSX)

		// Addressing
		r.Get("/cell", s.handleCellID)
		r.Get("/cell/{id}", s.handleParseCell)

		// Upload history
		r.Get("/uploads", s.handleListUploads)
		r.Get("/uploads/{uploadID}", s.handleGetUpload)
		r.Delete("/uploads/{uploadID}", s.handleDeleteUpload)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("Starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
