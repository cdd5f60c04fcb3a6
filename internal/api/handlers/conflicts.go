package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/api/response"
	"lerian-mcp-conflicts/internal/conflict"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/pkg/types"
)

// ConflictHandler exposes the conflict service and analytics over HTTP
type ConflictHandler struct {
	service    *conflict.Service
	aggregator *analytics.Aggregator
	renderer   *analytics.Renderer
	logger     logging.Logger
}

// NewConflictHandler creates a new conflict handler
func NewConflictHandler(service *conflict.Service, aggregator *analytics.Aggregator, logger logging.Logger) *ConflictHandler {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &ConflictHandler{
		service:    service,
		aggregator: aggregator,
		renderer:   analytics.NewRenderer(),
		logger:     logger.WithComponent("conflict-handler"),
	}
}

// ResolveBody is the body of POST /conflicts/{id}/resolve
type ResolveBody struct {
	Strategy   types.ResolutionStrategy `json:"strategy"`
	Content    string                   `json:"content"`
	ResolvedBy string                   `json:"resolved_by"`
	Reasoning  string                   `json:"reasoning,omitempty"`
}

// RecordEditBody is the body of POST /users/{id}/edits
type RecordEditBody struct {
	DocumentType string `json:"document_type"`
}

func traceID(r *http.Request) string {
	return logging.GetTraceID(r.Context())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.WriteBadRequest(w, "body", "invalid JSON: "+err.Error(), traceID(r))
		return false
	}
	return true
}

// Detect handles POST /api/v1/conflicts/detect
func (h *ConflictHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req conflict.DetectRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.service.DetectConflict(r.Context(), req)
	if err != nil {
		response.WriteError(w, err, traceID(r))
		return
	}
	if c == nil {
		response.WriteSuccess(w, nil, "no conflict")
		return
	}
	response.WriteSuccessStatus(w, http.StatusCreated, c, "conflict detected")
}

// Get handles GET /api/v1/conflicts/{id}
func (h *ConflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := h.service.GetConflict(r.Context(), id)
	if c == nil {
		response.WriteError(w, apperrors.NewNotFoundError("conflict", id), traceID(r))
		return
	}
	response.WriteSuccess(w, c)
}

// Suggestion handles GET /api/v1/conflicts/{id}/suggestion?user_id=
func (h *ConflictHandler) Suggestion(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		response.WriteError(w, apperrors.NewRequiredFieldError("user_id"), traceID(r))
		return
	}
	response.WriteSuccess(w, h.service.Suggest(r.Context(), chi.URLParam(r, "id"), userID))
}

// Resolve handles POST /api/v1/conflicts/{id}/resolve
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var body ResolveBody
	if !decode(w, r, &body) {
		return
	}

	c, err := h.service.Resolve(r.Context(), conflict.ResolveRequest{
		ConflictID: chi.URLParam(r, "id"),
		Strategy:   body.Strategy,
		Content:    body.Content,
		ResolvedBy: body.ResolvedBy,
		Reasoning:  body.Reasoning,
	})
	if err != nil {
		response.WriteError(w, err, traceID(r))
		return
	}
	response.WriteSuccess(w, c, "conflict resolved")
}

// DocumentConflicts handles GET /api/v1/documents/{id}/conflicts
func (h *ConflictHandler) DocumentConflicts(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, h.service.GetDocumentConflicts(r.Context(), chi.URLParam(r, "id")))
}

// DocumentStats handles GET /api/v1/documents/{id}/stats
func (h *ConflictHandler) DocumentStats(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, h.service.GetDocumentStats(r.Context(), chi.URLParam(r, "id")))
}

// UserStats handles GET /api/v1/users/{id}/stats
func (h *ConflictHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, h.service.GetUserStats(r.Context(), chi.URLParam(r, "id")))
}

// RecordEdit handles POST /api/v1/users/{id}/edits
func (h *ConflictHandler) RecordEdit(w http.ResponseWriter, r *http.Request) {
	var body RecordEditBody
	if !decode(w, r, &body) {
		return
	}

	userID := chi.URLParam(r, "id")
	pattern, err := h.service.RecordEdit(r.Context(), userID, body.DocumentType)
	if err != nil {
		response.WriteError(w, err, traceID(r))
		return
	}
	if pattern == nil {
		response.WriteError(w, apperrors.NewBackendUnavailableError("record edit", nil), traceID(r))
		return
	}
	response.WriteSuccess(w, pattern)
}

func (h *ConflictHandler) analyticsQuery(r *http.Request) analytics.Query {
	q := r.URL.Query()
	timeRange := types.TimeRange(q.Get("range"))
	if timeRange == "" {
		timeRange = types.TimeRangeWeek
	}
	return analytics.Query{
		TimeRange:  timeRange,
		UserID:     q.Get("user_id"),
		DocumentID: q.Get("document_id"),
	}
}

// Analytics handles GET /api/v1/analytics
func (h *ConflictHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	result, err := h.aggregator.Analyze(r.Context(), h.analyticsQuery(r))
	if err != nil {
		response.WriteError(w, err, traceID(r))
		return
	}
	response.WriteSuccess(w, result)
}

// Report handles GET /api/v1/analytics/report?format=markdown|html
func (h *ConflictHandler) Report(w http.ResponseWriter, r *http.Request) {
	result, err := h.aggregator.Analyze(r.Context(), h.analyticsQuery(r))
	if err != nil {
		response.WriteError(w, err, traceID(r))
		return
	}

	format := r.URL.Query().Get("format")
	body, err := h.renderer.Render(result, format)
	if err != nil {
		response.WriteBadRequest(w, "format", err.Error(), traceID(r))
		return
	}

	contentType := "text/markdown; charset=utf-8"
	if strings.EqualFold(format, analytics.FormatHTML) {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
