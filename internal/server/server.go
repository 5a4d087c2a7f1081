// Package server wires the HTTP handlers into a mux behind the common
// middleware chain.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/strdash/internal/handlers"
	"github.com/rumor-ml/commons.systems/strdash/internal/middleware"
	"github.com/rumor-ml/commons.systems/strdash/internal/pipeline"
	"github.com/rumor-ml/commons.systems/strdash/internal/streaming"
)

// Deps are the services behind the routes. QuickBooks and Hostaway fields
// may be nil when those integrations are not configured.
type Deps struct {
	Summaries      handlers.SummaryService
	Quoter         handlers.Quoter
	Inquiries      handlers.InquirySubmitter
	QuickBooksAuth handlers.QuickBooksAuth
	QuickBooksSync handlers.QuickBooksSyncer
	HostawaySync   handlers.HostawaySyncer

	// Import and ImportOptions configure uploads; a nil Import.Registry
	// disables the import routes
	Import        pipeline.Deps
	ImportOptions pipeline.Options

	Log         zerolog.Logger
	CORSOrigins []string
	// StaticDir serves the built frontend; empty disables it
	StaticDir string
	UploadDir string

	// Closers are released by Close, in order
	Closers []io.Closer
}

// Server represents the dashboard API server
type Server struct {
	deps    Deps
	mux     *http.ServeMux
	tracker *streaming.Tracker
}

// New creates a new server instance. ctx bounds background imports.
func New(ctx context.Context, deps Deps) (*Server, error) {
	if deps.Summaries == nil || deps.Quoter == nil || deps.Inquiries == nil {
		return nil, fmt.Errorf("summary, quote and inquiry services are required")
	}

	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		tracker: streaming.NewTracker(streaming.NewStreamHub(deps.Log)),
	}
	s.setupRoutes(ctx)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(ctx context.Context) {
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	api := handlers.NewAPIHandler(s.deps.Summaries)
	s.mux.HandleFunc("GET /api/summary", api.GetSummary)

	booking := handlers.NewBookingHandler(s.deps.Quoter, s.deps.Inquiries)
	s.mux.HandleFunc("POST /api/pricing", booking.Pricing)
	s.mux.HandleFunc("POST /api/inquiries", booking.Inquiry)

	sync := handlers.NewSyncHandler(s.deps.QuickBooksAuth, s.deps.QuickBooksSync, s.deps.HostawaySync)
	s.mux.HandleFunc("GET /api/quickbooks/connect", sync.ConnectQuickBooks)
	s.mux.HandleFunc("GET /api/quickbooks/callback", sync.QuickBooksCallback)
	s.mux.HandleFunc("POST /api/quickbooks/sync", sync.SyncQuickBooks)
	s.mux.HandleFunc("POST /api/hostaway/sync", sync.SyncHostaway)

	if s.deps.Import.Registry != nil {
		imports := handlers.NewImportHandler(ctx, s.deps.Import, s.deps.ImportOptions, s.tracker, s.deps.UploadDir)
		s.mux.HandleFunc("POST /api/imports", imports.StartImport)
		s.mux.HandleFunc("GET /api/imports/{id}", imports.GetImport)
		s.mux.HandleFunc("GET /api/imports/{id}/events", imports.StreamImport)
	}

	// Static files for frontend (when deployed together)
	if s.deps.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.deps.StaticDir)))
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux,
		middleware.Logger(s.deps.Log),
		middleware.Recovery,
		middleware.CORS(s.deps.CORSOrigins),
	)
}

// Close closes the server resources
func (s *Server) Close() error {
	var first error
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
