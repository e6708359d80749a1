// Package server exposes the alert pipeline and budget management over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 10 * time.Second
)

// Processor runs user-triggered alert runs.
type Processor interface {
	RunManual(ctx context.Context, req tracker.ManualRequest, userID string) (*model.RunSummary, error)
}

// BudgetService is the budget persistence used by the API.
type BudgetService interface {
	ListUserBudgets(ctx context.Context, userID string) ([]model.BudgetRecord, error)
	GetBudget(ctx context.Context, userID, budgetID string) (*model.BudgetRecord, error)
	SetBudget(ctx context.Context, budget *model.BudgetRecord) error
	DeleteBudget(ctx context.Context, userID, budgetID string) error
}

// CostReporter builds spend-by-service reports.
type CostReporter interface {
	CostReport(ctx context.Context, months int) (*tracker.CostReport, error)
}

// Server provides health, metrics, alert trigger and budget endpoints.
type Server struct {
	processor Processor
	budgets   BudgetService
	tokens    TokenVerifier
	reporter  CostReporter
	mux       *http.ServeMux
	logger    *slog.Logger
}

// NewServer creates an API server.
func NewServer(p Processor, budgets BudgetService, tokens TokenVerifier, logger *slog.Logger) *Server {
	s := &Server{
		processor: p,
		budgets:   budgets,
		tokens:    tokens,
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /api/v1/alerts/trigger", s.authenticated(s.handleTrigger))
	s.mux.Handle("GET /api/v1/budgets", s.authenticated(s.handleListBudgets))
	s.mux.Handle("PUT /api/v1/budgets", s.authenticated(s.handlePutBudget))
	s.mux.Handle("DELETE /api/v1/budgets/{id}", s.authenticated(s.handleDeleteBudget))
}

// WithMetrics serves h on GET path without authentication.
func (s *Server) WithMetrics(path string, h http.Handler) *Server {
	s.mux.Handle("GET "+path, h)
	return s
}

// WithCostReport serves the account cost report on GET /api/v1/costs.
func (s *Server) WithCostReport(r CostReporter) *Server {
	s.reporter = r
	s.mux.Handle("GET /api/v1/costs", s.authenticated(s.handleCostReport))
	return s
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request, userID string) {
	var req tracker.ManualRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// No request timeout here: cost queries carry their own.
	summary, err := s.processor.RunManual(r.Context(), req, userID)
	if err != nil {
		s.fail(w, "trigger alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCostReport(w http.ResponseWriter, r *http.Request, _ string) {
	var months int
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid months %q", v))
			return
		}
		months = n
	}

	report, err := s.reporter.CostReport(r.Context(), months)
	if err != nil {
		s.fail(w, "cost report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request, userID string) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	budgets, err := s.budgets.ListUserBudgets(ctx, userID)
	if err != nil {
		s.fail(w, "list budgets", err)
		return
	}
	if budgets == nil {
		budgets = []model.BudgetRecord{}
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handlePutBudget(w http.ResponseWriter, r *http.Request, userID string) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req budgetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	budget := &model.BudgetRecord{UserID: userID, IsActive: true}
	status := http.StatusCreated
	if req.ID != "" {
		existing, err := s.budgets.GetBudget(ctx, userID, req.ID)
		if err != nil {
			s.fail(w, "load budget", err)
			return
		}
		budget = existing
		status = http.StatusOK
	}
	req.apply(budget)

	if err := s.budgets.SetBudget(ctx, budget); err != nil {
		s.fail(w, "save budget", err)
		return
	}
	writeJSON(w, status, budget)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request, userID string) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.budgets.DeleteBudget(ctx, userID, r.PathValue("id")); err != nil {
		s.fail(w, "delete budget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps err to a status code. Internal errors are logged, not returned.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
