package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lerian-mcp-conflicts/internal/logging"
)

// ServerConfig represents WebSocket server configuration
type ServerConfig struct {
	MaxConnections  int           `json:"max_connections"`
	ReadBufferSize  int           `json:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size"`
	PingInterval    time.Duration `json:"ping_interval"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	MaxMessageSize  int64         `json:"max_message_size"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxConnections:  1000,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingInterval:    54 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageSize:  512,
		AllowedOrigins:  []string{"*"},
	}
}

// Server upgrades HTTP requests and attaches the connections to a hub
type Server struct {
	config   *ServerConfig
	upgrader websocket.Upgrader
	hub      *Hub
	logger   logging.Logger
}

// NewServer creates a WebSocket endpoint feeding from hub
func NewServer(config *ServerConfig, hub *Hub, logger logging.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, config.AllowedOrigins)
			},
		},
		hub:    hub,
		logger: logger.WithComponent("websocket-server"),
	}
}

// HandleUpgrade handles WebSocket upgrade requests. Clients may pass ?document_id= to filter events.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxConnections > 0 && s.hub.GetClientCount() >= s.config.MaxConnections {
		http.Error(w, "Connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(uuid.New().String(), conn, s.hub, r.URL.Query().Get("document_id"))
	if !s.hub.RegisterClient(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump(s.config.PingInterval, s.config.WriteTimeout)
	go client.ReadPump(s.config.MaxMessageSize, s.config.ReadTimeout)

	s.logger.Info("WebSocket client connected", "client_id", client.ID, "remote_addr", r.RemoteAddr)
}

// checkOrigin validates the request origin
func checkOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")

	// Allow requests without origin (e.g., from command line tools)
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
