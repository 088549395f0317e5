// Package api exposes the cascade over HTTP: the synchronous Ingest API,
// the chunked Streaming API, the asynchronous Agentic job API, and a
// single-transaction convenience endpoint. Grounded directly on the
// teacher's Server type (router/server fields, CORS + logging middleware,
// dev-only error detail exposure, graceful Stop) with the transaction
// explainer's routes replaced by the cascade's own.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/banklens/enrichcascade/internal/jobs"
	"github.com/banklens/enrichcascade/internal/models"
	"github.com/banklens/enrichcascade/internal/orchestrator"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the HTTP surface over one Orchestrator and one job tracker.
type Server struct {
	router       *mux.Router
	orchestrator *orchestrator.Orchestrator
	jobs         *jobs.Tracker
	address      string
	server       *http.Server
	log          zerolog.Logger
}

// NewServer builds a Server bound to address, wired to orch for cascade
// runs and tracker for the asynchronous Agentic job API.
func NewServer(address string, orch *orchestrator.Orchestrator, tracker *jobs.Tracker, logger zerolog.Logger) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		orchestrator: orch,
		jobs:         tracker,
		address:      address,
		log:          logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/enrich-transactions", s.handleEnrichTransactions).Methods("POST")
	s.router.HandleFunc("/enrich-transactions-stream", s.handleEnrichTransactionsStream).Methods("POST")

	s.router.HandleFunc("/api/enrich", s.handleCreateAgenticJob).Methods("POST")
	s.router.HandleFunc("/api/enrich/{job_id}", s.handleGetAgenticJob).Methods("GET")
	s.router.HandleFunc("/api/enrich/single", s.handleEnrichSingle).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "enrichcascade",
	})
}

type enrichRequest struct {
	Transactions []models.RawTx `json:"transactions"`

	UserID         string `json:"user_id"`
	ConnectionID   string `json:"connection_id"`
	AnalysisMonths int    `json:"analysis_months,omitempty"`
	HolderName     string `json:"holder_name,omitempty"`
	Country        string `json:"country,omitempty"`
	MailGrant      string `json:"mail_grant,omitempty"`
}

func (r enrichRequest) toOrchestratorRequest() orchestrator.Request {
	return orchestrator.Request{
		Transactions:   r.Transactions,
		UserID:         r.UserID,
		ConnectionID:   r.ConnectionID,
		HolderName:     r.HolderName,
		Country:        r.Country,
		MailGrant:      r.MailGrant,
		AnalysisMonths: r.AnalysisMonths,
	}
}

// handleEnrichTransactions runs the cascade to completion and returns the
// full result in one response (the Ingest API).
func (s *Server) handleEnrichTransactions(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Transactions) == 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, "transactions must be non-empty", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var result models.EnrichResult
	for ev := range s.orchestrator.Run(ctx, req.toOrchestratorRequest()) {
		if ev.Type == "complete" && ev.Result != nil {
			result = *ev.Result
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":               true,
		"enriched_transactions": result.EnrichedTransactions,
		"budget_analysis":       result.BudgetAnalysis,
		"detected_debts":        result.DetectedDebts,
		"message":               fmt.Sprintf("enriched %d transactions", len(result.EnrichedTransactions)),
	})
}

// handleEnrichTransactionsStream runs the cascade, writing each progress
// event as it occurs using "data: <json>\n\n" chunked framing (the
// Streaming API).
func (s *Server) handleEnrichTransactionsStream(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeErrorResponse(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	for ev := range s.orchestrator.Run(ctx, req.toOrchestratorRequest()) {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// handleCreateAgenticJob starts an asynchronous cascade run and returns its
// job id immediately (the Agentic job API).
func (s *Server) handleCreateAgenticJob(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	job := s.jobs.Create(req.Transactions)
	go s.jobs.Run(context.Background(), s.orchestrator, job.ID, req.toOrchestratorRequest())

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": fmt.Sprintf("enrichment job created for %d transactions", job.Total),
	})
}

func (s *Server) handleGetAgenticJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, ok := s.jobs.Get(jobID)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "job not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":       job.ID,
		"status":       job.Status,
		"completed":    job.Completed,
		"total":        job.Total,
		"results":      job.Results,
		"created_at":   job.CreatedAt,
		"started_at":   job.StartedAt,
		"completed_at": job.CompletedAt,
		"created":      humanize.Time(job.CreatedAt),
		"progress":     fmt.Sprintf("%s of %s complete", humanize.Comma(int64(job.Completed)), humanize.Comma(int64(job.Total))),
	})
}

// handleEnrichSingle runs the cascade over exactly one transaction, for
// callers that do not want to build a batch.
func (s *Server) handleEnrichSingle(w http.ResponseWriter, r *http.Request) {
	var raw models.RawTx
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	var result models.EnrichResult
	for ev := range s.orchestrator.Run(ctx, orchestrator.Request{Transactions: []models.RawTx{raw}}) {
		if ev.Type == "complete" && ev.Result != nil {
			result = *ev.Result
		}
	}
	if len(result.EnrichedTransactions) == 0 {
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "transaction could not be enriched", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, result.EnrichedTransactions[0])
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	}
	if err != nil {
		if os.Getenv("ENV") == "development" {
			response["details"] = err.Error()
		}
		s.log.Error().Err(err).Str("message", message).Msg("api error")
	}
	s.writeJSON(w, statusCode, response)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.RequestURI).
			Str("remote", r.RemoteAddr).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10*time.Minute + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info().Str("address", s.address).Msg("starting enrichment cascade API")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("shutting down enrichment cascade API")
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
