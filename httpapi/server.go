// Package httpapi exposes the invoice analytics service over HTTP. Routes
// live under /api/v1 and every handler answers JSON except the chart
// endpoint, which serves the rendered HTML directly.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/calebmoss/invoiceflow/analyst"
	"github.com/calebmoss/invoiceflow/invoice"
	"github.com/calebmoss/invoiceflow/report"
	"github.com/calebmoss/invoiceflow/session"
	"github.com/calebmoss/invoiceflow/viz"
)

const apiPrefix = "/api/v1"

// Options carries the request-handling knobs sourced from configuration.
type Options struct {
	AppName           string
	Version           string
	MaxUploadBytes    int64
	AllowedExtensions []string
	CORSOrigins       []string
}

// Server routes HTTP traffic to the pipeline components.
type Server struct {
	store    *session.Store
	invoices *invoice.Processor
	reports  *report.Generator
	charts   *viz.Service
	analysts *analyst.Service
	opts     Options
	logger   *slog.Logger
}

func NewServer(store *session.Store, invoices *invoice.Processor, reports *report.Generator, charts *viz.Service, analysts *analyst.Service, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AppName == "" {
		opts.AppName = "invoiceflow"
	}
	return &Server{
		store:    store,
		invoices: invoices,
		reports:  reports,
		charts:   charts,
		analysts: analysts,
		opts:     opts,
		logger:   logger,
	}
}

// Handler builds the full route table wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET "+apiPrefix+"/health", s.handleHealth)

	mux.HandleFunc("POST "+apiPrefix+"/invoices/upload", s.handleInvoiceUpload)
	mux.HandleFunc("POST "+apiPrefix+"/invoices/process/{session}", s.handleInvoiceProcess)
	mux.HandleFunc("GET "+apiPrefix+"/invoices/{session}", s.handleInvoiceGet)

	mux.HandleFunc("POST "+apiPrefix+"/reports/generate/{session}", s.handleReportGenerate)
	mux.HandleFunc("GET "+apiPrefix+"/reports/{session}", s.handleReportGet)

	mux.HandleFunc("GET "+apiPrefix+"/visualizations/columns/{session}", s.handleVizColumns)
	mux.HandleFunc("GET "+apiPrefix+"/visualizations/{session}", s.handleVizGenerate)

	mux.HandleFunc("POST "+apiPrefix+"/analytics/upload-csv", s.handleCSVUpload)
	mux.HandleFunc("POST "+apiPrefix+"/analytics/ask/{session}", s.handleAsk)
	mux.HandleFunc("GET "+apiPrefix+"/analytics/insights/{session}", s.handleInsights)
	mux.HandleFunc("GET "+apiPrefix+"/analytics/chart/{session}", s.handleChart)

	mux.HandleFunc("GET "+apiPrefix+"/sessions", s.handleSessionList)
	mux.HandleFunc("DELETE "+apiPrefix+"/sessions", s.handleSessionDeleteAll)
	mux.HandleFunc("GET "+apiPrefix+"/sessions/{session}", s.handleSessionGet)
	mux.HandleFunc("DELETE "+apiPrefix+"/sessions/{session}", s.handleSessionDelete)

	return withCORS(s.opts.CORSOrigins, withLogging(s.logger, mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    s.opts.AppName,
		"version": s.opts.Version,
		"health":  apiPrefix + "/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"message": s.opts.AppName + " is running",
	})
}
