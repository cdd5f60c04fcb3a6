// Package api provides the HTTP API layer of the conflict service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/api/handlers"
	"lerian-mcp-conflicts/internal/api/middleware"
	"lerian-mcp-conflicts/internal/api/response"
	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/conflict"
	"lerian-mcp-conflicts/internal/docs"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/websocket"
)

// Version is reported by /health and the OpenAPI document
const Version = "1.0.0"

// Router represents the main API router
type Router struct {
	config     *config.Config
	mux        *chi.Mux
	service    *conflict.Service
	aggregator *analytics.Aggregator
	ws         *websocket.Server
	openapi    *docs.OpenAPIGenerator
	logger     logging.Logger
}

// NewRouter creates a new API router with middleware and routes. ws may be nil
// when event streaming is disabled.
func NewRouter(cfg *config.Config, service *conflict.Service, aggregator *analytics.Aggregator, ws *websocket.Server, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	r := &Router{
		config:     cfg,
		mux:        chi.NewRouter(),
		service:    service,
		aggregator: aggregator,
		ws:         ws,
		openapi:    docs.NewOpenAPIGenerator(Version, ""),
		logger:     logger,
	}

	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.mux
}

// Handle mounts an extra handler, such as the MCP JSON-RPC endpoint, behind the shared middleware
func (r *Router) Handle(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

// setupMiddleware configures the middleware stack
func (r *Router) setupMiddleware() {
	// Recovery middleware (should be first)
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(r.timeoutMiddleware())
	r.mux.Use(middleware.NewLoggingMiddleware(r.logger).Handler())
	r.mux.Use(middleware.NewCORSMiddlewareForOrigins(r.config.Server.AllowedOrigins).Handler())

	// Request size limit (10MB)
	r.mux.Use(chimiddleware.RequestSize(10 * 1024 * 1024))

	// Heartbeat for load balancer health checks
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

// timeoutMiddleware applies the configured write timeout to everything except WebSocket upgrades
func (r *Router) timeoutMiddleware() func(http.Handler) http.Handler {
	timeout := time.Duration(r.config.Server.WriteTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return func(next http.Handler) http.Handler {
		withTimeout := chimiddleware.Timeout(timeout)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/ws") {
				next.ServeHTTP(w, req)
				return
			}
			withTimeout.ServeHTTP(w, req)
		})
	}
}

// setupRoutes configures API routes
func (r *Router) setupRoutes() {
	health := handlers.NewHealthHandler(r.service, r.config.Memory.Backend, Version)
	r.mux.Get("/health", health.Handle)

	if r.ws != nil {
		r.mux.Get("/ws", r.ws.HandleUpgrade)
	}

	h := handlers.NewConflictHandler(r.service, r.aggregator, r.logger)
	r.mux.Route("/api/v1", func(rtr chi.Router) {
		rtr.Get("/health", health.Handle)
		rtr.Get("/openapi.json", r.handleOpenAPI)

		rtr.Route("/conflicts", func(c chi.Router) {
			c.Post("/detect", h.Detect)
			c.Get("/{id}", h.Get)
			c.Get("/{id}/suggestion", h.Suggestion)
			c.Post("/{id}/resolve", h.Resolve)
		})

		rtr.Route("/documents/{id}", func(d chi.Router) {
			d.Get("/conflicts", h.DocumentConflicts)
			d.Get("/stats", h.DocumentStats)
		})

		rtr.Route("/users/{id}", func(u chi.Router) {
			u.Get("/stats", h.UserStats)
			u.Post("/edits", h.RecordEdit)
		})

		rtr.Get("/analytics", h.Analytics)
		rtr.Get("/analytics/report", h.Report)
	})

	r.mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.WriteJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{"code": "NOT_FOUND", "message": "route not found: " + req.URL.Path},
		})
	})
}

func (r *Router) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	data, err := r.openapi.GenerateJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
