// Package chi is the HTTP transport: request parsing, claims
// extraction and the mapping from domain sentinels to status codes.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/domain/query"
	healthuc "github.com/lumen-kb/knolens/internal/usecase/health"
	invalidateuc "github.com/lumen-kb/knolens/internal/usecase/invalidate"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Searcher is the transport's view of the query orchestrator.
type Searcher interface {
	Search(ctx context.Context, q *query.Query, p principal.Principal) (candidate.RankedResults, error)
}

// Server hosts the HTTP handlers.
type Server struct {
	search        Searcher
	invalidate    *invalidateuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	limits        query.Limits
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	invalidate *invalidateuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:     search,
		invalidate: invalidate,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrItemNotFound, http.StatusNotFound, codeItemNotFound),
		sentinelHandler(domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, codeUpstreamTimeout),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, codeUpstreamUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// WithLimits overrides the default and maximum result sizes applied to
// incoming search requests.
func (s *Server) WithLimits(lim query.Limits) *Server {
	s.limits = lim
	return s
}

// Routes mounts all handlers on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/search", s.handleSearch)
	r.Post("/v1/invalidate/{itemID}", s.handleInvalidate)
	r.Put("/v1/content/{itemID}", s.handleContentChanged)
	r.Delete("/v1/content/{itemID}", s.handleRetire)
	r.Get("/health", s.handleHealth)
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromRequest(r)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := query.NewWithLimits(
		req.Query,
		query.Filters{Category: req.Filters.Category, Tags: req.Filters.Tags},
		query.Page{Offset: req.Page.Offset, Size: req.Page.Size},
		req.TopK,
		req.AsOf,
		s.limits,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	res, err := s.search.Search(r.Context(), &q, p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleInvalidate handles POST /v1/invalidate/{itemID}: the
// administrative cache eviction called by the ingestion service.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "item id is required")
		return
	}

	n, err := s.invalidate.Invalidate(r.Context(), itemID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invalidateResponse{ItemID: itemID, Evicted: n})
}

// handleContentChanged handles PUT /v1/content/{itemID}: the content
// creation/update event emitted by the ingestion collaborator.
func (s *Server) handleContentChanged(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	var req contentChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ev := invalidateuc.ChangeEvent{
		ItemID:     itemID,
		Text:       req.Text,
		Summary:    req.Summary,
		OwnerID:    req.OwnerID,
		CategoryID: req.CategoryID,
		Tags:       req.Tags,
		Scope:      req.Scope.toDomain(),
	}
	if req.At != nil {
		ev.At = *req.At
	}

	if err := s.invalidate.ContentChanged(r.Context(), ev); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRetire handles DELETE /v1/content/{itemID}.
func (s *Server) handleRetire(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "item id is required")
		return
	}

	if err := s.invalidate.Retire(r.Context(), itemID, time.Time{}); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrUnauthorized,
		domain.ErrItemNotFound,
		domain.ErrUpstreamTimeout,
		domain.ErrUpstreamUnavailable,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
