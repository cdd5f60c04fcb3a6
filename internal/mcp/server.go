// Package mcp exposes the conflict service as Model Context Protocol tools and resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/conflict"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/pkg/types"
)

const (
	resourceDocumentPrefix  = "conflicts://document/"
	resourceAnalyticsPrefix = "conflicts://analytics/"
)

// ConflictServer implements the MCP server for conflict intelligence
type ConflictServer struct {
	service    *conflict.Service
	aggregator *analytics.Aggregator
	renderer   *analytics.Renderer
	mcpServer  *server.Server
	logger     logging.Logger
}

// NewConflictServer creates the MCP server and registers every tool and resource
func NewConflictServer(name, version string, service *conflict.Service, aggregator *analytics.Aggregator, logger logging.Logger) (*ConflictServer, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	mcpServer := mcp.NewServer(name, version)
	if mcpServer == nil {
		return nil, errors.New("failed to create MCP server instance")
	}

	cs := &ConflictServer{
		service:    service,
		aggregator: aggregator,
		renderer:   analytics.NewRenderer(),
		mcpServer:  mcpServer,
		logger:     logger.WithComponent("mcp"),
	}
	cs.registerTools()
	cs.registerResources()
	return cs, nil
}

// GetMCPServer returns the underlying MCP server
func (cs *ConflictServer) GetMCPServer() *server.Server {
	return cs.mcpServer
}

// registerResources registers browsable conflict resources
func (cs *ConflictServer) registerResources() {
	resources := []struct {
		uri         string
		name        string
		description string
	}{
		{
			uri:         resourceDocumentPrefix + "{document_id}",
			name:        "Document Conflicts",
			description: "Every conflict recorded for a document, oldest first",
		},
		{
			uri:         resourceAnalyticsPrefix + "{time_range}",
			name:        "Conflict Analytics",
			description: "Aggregated conflict analytics for week, month or year",
		},
	}

	for _, res := range resources {
		resource := mcp.NewResource(res.uri, res.name, res.description, "application/json")
		cs.mcpServer.AddResource(resource, mcp.ResourceHandlerFunc(cs.handleResourceRead))
	}
	cs.logger.Info("MCP resources registered", "count", len(resources))
}

// handleResourceRead routes resource reads by URI prefix
func (cs *ConflictServer) handleResourceRead(ctx context.Context, uri string) ([]protocol.Content, error) {
	var (
		result interface{}
		err    error
	)
	switch {
	case strings.HasPrefix(uri, resourceDocumentPrefix):
		docID := strings.TrimPrefix(uri, resourceDocumentPrefix)
		if docID == "" {
			return nil, errors.New("document id is required")
		}
		result = cs.service.GetDocumentConflicts(ctx, docID)
	case strings.HasPrefix(uri, resourceAnalyticsPrefix):
		result, err = cs.aggregator.Analyze(ctx, analytics.Query{
			TimeRange: types.TimeRange(strings.TrimPrefix(uri, resourceAnalyticsPrefix)),
		})
	default:
		return nil, fmt.Errorf("unknown resource URI: %s", uri)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource: %w", err)
	}
	return []protocol.Content{protocol.NewContent(string(data))}, nil
}
