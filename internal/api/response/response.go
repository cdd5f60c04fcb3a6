// Package response provides the JSON envelopes written by the conflict HTTP API.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "lerian-mcp-conflicts/internal/errors"
)

// SuccessResponse represents a standardized success response
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// WriteJSON writes v with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a standardized 200 response
func WriteSuccess(w http.ResponseWriter, data interface{}, message ...string) {
	WriteSuccessStatus(w, http.StatusOK, data, message...)
}

// WriteSuccessStatus writes a standardized success response with an explicit status
func WriteSuccessStatus(w http.ResponseWriter, statusCode int, data interface{}, message ...string) {
	resp := SuccessResponse{
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if len(message) > 0 {
		resp.Message = message[0]
	}
	WriteJSON(w, statusCode, resp)
}

// WriteError writes err as a StandardError body. Foreign errors become INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, err error, traceID string) {
	se, ok := apperrors.AsStandard(err)
	if !ok {
		se = apperrors.NewInternalError("internal server error", err)
	}
	// copy so shared sentinels are never mutated
	out := *se
	if traceID != "" && out.ErrorInfo.TraceID == "" {
		out.WithTraceID(traceID)
	}
	out.WithProtocol("http").WriteHTTPError(w)
}

// WriteBadRequest writes a 400 validation error
func WriteBadRequest(w http.ResponseWriter, field, reason string, traceID string) {
	WriteError(w, apperrors.NewValidationError(field, reason, nil), traceID)
}
