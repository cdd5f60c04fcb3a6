// Package handlers provides the HTTP handlers of the conflict API.
package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"lerian-mcp-conflicts/internal/api/response"
)

// HealthChecker is implemented by anything whose dependencies can be probed
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler provides health check functionality
type HealthHandler struct {
	checker   HealthChecker
	backend   string
	version   string
	startTime time.Time
}

// HealthStatus represents the health check response structure
type HealthStatus struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Backend      string `json:"backend"`
	Error        string `json:"error,omitempty"`
	Uptime       string `json:"uptime"`
	NumGoroutine int    `json:"num_goroutine"`
	Timestamp    string `json:"timestamp"`
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(checker HealthChecker, backend, version string) *HealthHandler {
	return &HealthHandler{
		checker:   checker,
		backend:   backend,
		version:   version,
		startTime: time.Now(),
	}
}

// Handle reports healthy when the memory backend answers within the timeout
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:       "healthy",
		Version:      h.version,
		Backend:      h.backend,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		NumGoroutine: runtime.NumGoroutine(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if err := h.checker.HealthCheck(ctx); err != nil {
		status.Status = "unhealthy"
		status.Error = err.Error()
		code = http.StatusServiceUnavailable
	}
	response.WriteJSON(w, code, status)
}
