// server is the conflict service binary. It exposes the conflict engine as MCP tools
// over stdio, or as MCP-over-HTTP plus the REST API and WebSocket event stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/api"
	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/conflict"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/mcp"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/internal/websocket"
)

const serverName = "lerian-mcp-conflicts"

func main() {
	var (
		mode = flag.String("mode", "", "Server mode: stdio or http (defaults to MCP_CONFLICT_MODE)")
		addr = flag.String("addr", "", "HTTP server address when mode=http (defaults to host:port from config)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mode != "" {
		cfg.Server.Mode = *mode
	}
	if *addr == "" {
		*addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}

	logger := logging.NewWithOptions(logging.Options{
		Level:  logging.ParseLogLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	logging.SetDefaultLogger(logger)

	// Set up graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *addr, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped with error", "error", err)
		cancel()
		log.Fatalf("server failed: %v", err)
	}
	logger.Info("Server stopped")
}

// run builds the backend and serves in the configured mode until ctx is done
func run(ctx context.Context, cfg *config.Config, addr string, logger logging.Logger) error {
	backend, err := memory.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create memory backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("Error closing memory backend", "error", err)
		}
	}()

	switch cfg.Server.Mode {
	case "stdio":
		return runStdio(ctx, cfg, backend, logger)
	case "http":
		return runHTTP(ctx, cfg, backend, addr, logger)
	default:
		return fmt.Errorf("invalid mode %q: use stdio or http", cfg.Server.Mode)
	}
}

func runStdio(ctx context.Context, cfg *config.Config, backend memory.Backend, logger logging.Logger) error {
	svc := conflict.NewService(backend, cfg, logger)
	cs, err := mcp.NewConflictServer(serverName, api.Version, svc, analytics.NewAggregator(svc.Store(), cfg.Analytics, logger), logger)
	if err != nil {
		return err
	}

	logger.Info("Starting MCP conflict server in stdio mode", "backend", cfg.Memory.Backend)
	mcpServer := cs.GetMCPServer()
	mcpServer.SetTransport(transport.NewStdioTransport())
	return mcpServer.Start(ctx)
}

func runHTTP(ctx context.Context, cfg *config.Config, backend memory.Backend, addr string, logger logging.Logger) error {
	handler, hub, err := newHTTPHandler(cfg, backend, logger)
	if err != nil {
		return err
	}
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting MCP conflict server in HTTP mode", "addr", addr, "backend", cfg.Memory.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	<-hub.Done()
	return nil
}

// newHTTPHandler wires the REST API, WebSocket stream and /mcp endpoint over one service.
// The caller runs the returned hub.
func newHTTPHandler(cfg *config.Config, backend memory.Backend, logger logging.Logger) (http.Handler, *websocket.Hub, error) {
	hub := websocket.NewHub(logger)
	svc := conflict.NewService(backend, cfg, logger, conflict.WithEventPublisher(hub))
	aggregator := analytics.NewAggregator(svc.Store(), cfg.Analytics, logger)

	cs, err := mcp.NewConflictServer(serverName, api.Version, svc, aggregator, logger)
	if err != nil {
		return nil, nil, err
	}

	wsConfig := websocket.DefaultServerConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		wsConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	}

	router := api.NewRouter(cfg, svc, aggregator, websocket.NewServer(wsConfig, hub, logger), logger)
	router.Handle("/mcp", mcpHandler(cs.GetMCPServer(), logger))
	return router.Handler(), hub, nil
}

// mcpHandler serves MCP JSON-RPC requests posted over HTTP
func mcpHandler(mcpServer *server.Server, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req protocol.JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		resp := mcpServer.HandleRequest(r.Context(), &req)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.ErrorContext(r.Context(), "Error encoding MCP response", "error", err)
		}
	}
}
