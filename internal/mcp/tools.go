package mcp

import (
	"context"
	"fmt"
	"time"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/go-viper/mapstructure/v2"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/conflict"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/pkg/types"
)

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func strategyNames() []string {
	names := make([]string, 0, len(types.AllStrategies()))
	for _, s := range types.AllStrategies() {
		names = append(names, string(s))
	}
	return names
}

// registerTools registers the conflict tools
func (cs *ConflictServer) registerTools() {
	edit := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":        stringProp("User id of the editor"),
			"name":      stringProp("Display name of the editor"),
			"content":   stringProp("Text the user wrote for the region"),
			"timestamp": stringProp("RFC3339 time of the edit"),
		},
		"required": []string{"id", "content", "timestamp"},
	}

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_detect",
		"Record an editing conflict between two or more concurrent edits of the same document region. USE THIS WHEN: several users changed overlapping text at the same time. Returns the stored conflict with its severity, or a 'no conflict' result for a single edit.",
		mcp.ObjectSchema("Conflict detection parameters", map[string]interface{}{
			"document_id":   stringProp("Document that was edited"),
			"document_type": stringProp("Kind of document, e.g. markdown or code"),
			"section":       stringProp("Section or heading containing the region"),
			"position": map[string]interface{}{
				"type":        "object",
				"description": "Character range of the conflicting region",
				"properties": map[string]interface{}{
					"start": map[string]interface{}{"type": "integer", "minimum": 0},
					"end":   map[string]interface{}{"type": "integer", "minimum": 0},
				},
				"required": []string{"start", "end"},
			},
			"edits": map[string]interface{}{
				"type":        "array",
				"description": "The concurrent edits",
				"items":       edit,
			},
			"context": map[string]interface{}{
				"type":        "object",
				"description": "Unchanged text around the region",
				"properties": map[string]interface{}{
					"before": stringProp("Text before the region"),
					"after":  stringProp("Text after the region"),
				},
			},
		}, []string{"document_id", "position", "edits"}),
	), mcp.ToolHandlerFunc(cs.handleDetect))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_get",
		"Fetch one conflict by id, including its resolution when resolved.",
		mcp.ObjectSchema("Conflict lookup parameters", map[string]interface{}{
			"conflict_id": stringProp("Conflict id returned by conflict_detect"),
		}, []string{"conflict_id"}),
	), mcp.ToolHandlerFunc(cs.handleGet))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_list_document",
		"List every conflict recorded for a document, oldest first.",
		mcp.ObjectSchema("Document conflict parameters", map[string]interface{}{
			"document_id": stringProp("Document id"),
		}, []string{"document_id"}),
	), mcp.ToolHandlerFunc(cs.handleListDocument))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_suggest",
		"Suggest how a user should resolve a conflict, based on their resolution history and collaborators. Always returns a suggestion with a confidence between 0 and 1.",
		mcp.ObjectSchema("Suggestion parameters", map[string]interface{}{
			"conflict_id": stringProp("Conflict to resolve"),
			"user_id":     stringProp("User who will resolve it"),
		}, []string{"conflict_id", "user_id"}),
	), mcp.ToolHandlerFunc(cs.handleSuggest))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_resolve",
		"Resolve a conflict with a strategy and final content. The resolving user's preferences are updated.",
		mcp.ObjectSchema("Resolution parameters", map[string]interface{}{
			"conflict_id": stringProp("Conflict to resolve"),
			"strategy": map[string]interface{}{
				"type":        "string",
				"enum":        strategyNames(),
				"description": "Resolution strategy",
			},
			"content":     stringProp("Final text of the region"),
			"resolved_by": stringProp("User resolving the conflict; defaults to the system owner"),
			"reasoning":   stringProp("Why this resolution was chosen"),
		}, []string{"conflict_id", "strategy", "content"}),
	), mcp.ToolHandlerFunc(cs.handleResolve))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_record_edit",
		"Record a plain edit by a user so their editing pattern stays current.",
		mcp.ObjectSchema("Edit parameters", map[string]interface{}{
			"user_id":       stringProp("Editing user"),
			"document_type": stringProp("Kind of document edited"),
		}, []string{"user_id"}),
	), mcp.ToolHandlerFunc(cs.handleRecordEdit))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_analytics",
		"Aggregate conflicts over a time range by day, user, document and strategy. Set format to markdown or html for a rendered report.",
		mcp.ObjectSchema("Analytics parameters", map[string]interface{}{
			"time_range": map[string]interface{}{
				"type":    "string",
				"enum":    []string{string(types.TimeRangeWeek), string(types.TimeRangeMonth), string(types.TimeRangeYear)},
				"default": string(types.TimeRangeWeek),
			},
			"user_id":     stringProp("Only conflicts this user took part in or resolved"),
			"document_id": stringProp("Only conflicts in this document"),
			"format": map[string]interface{}{
				"type":    "string",
				"enum":    []string{"json", analytics.FormatMarkdown, analytics.FormatHTML},
				"default": "json",
			},
		}, nil),
	), mcp.ToolHandlerFunc(cs.handleAnalytics))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_user_stats",
		"Summarise a user's editing pattern: edits, conflict frequency, favourite strategy and collaborators.",
		mcp.ObjectSchema("User stats parameters", map[string]interface{}{
			"user_id": stringProp("User id"),
		}, []string{"user_id"}),
	), mcp.ToolHandlerFunc(cs.handleUserStats))

	cs.mcpServer.AddTool(mcp.NewTool(
		"conflict_document_stats",
		"Summarise a document's conflicts: totals, severities, hotspot sections and participants.",
		mcp.ObjectSchema("Document stats parameters", map[string]interface{}{
			"document_id": stringProp("Document id"),
		}, []string{"document_id"}),
	), mcp.ToolHandlerFunc(cs.handleDocumentStats))

	cs.logger.Info("MCP tools registered", "count", 9)
}

// decodeArgs maps loosely typed tool arguments onto a request struct via its json tags
func decodeArgs(args map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return apperrors.NewValidationError("arguments", err.Error(), nil)
	}
	return nil
}

func requiredString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", apperrors.NewRequiredFieldError(key).WithProtocol("mcp")
	}
	return v, nil
}

func optionalString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func (cs *ConflictServer) handleDetect(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req conflict.DetectRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	c, err := cs.service.DetectConflict(ctx, req)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return map[string]interface{}{"conflict": nil, "message": "no conflict: fewer than two edits"}, nil
	}
	return c, nil
}

func (cs *ConflictServer) handleGet(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requiredString(args, "conflict_id")
	if err != nil {
		return nil, err
	}
	c := cs.service.GetConflict(ctx, id)
	if c == nil {
		return nil, apperrors.NewNotFoundError("conflict", id).WithProtocol("mcp")
	}
	return c, nil
}

func (cs *ConflictServer) handleListDocument(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	docID, err := requiredString(args, "document_id")
	if err != nil {
		return nil, err
	}
	conflicts := cs.service.GetDocumentConflicts(ctx, docID)
	return map[string]interface{}{
		"document_id": docID,
		"conflicts":   conflicts,
		"total":       len(conflicts),
	}, nil
}

func (cs *ConflictServer) handleSuggest(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requiredString(args, "conflict_id")
	if err != nil {
		return nil, err
	}
	userID, err := requiredString(args, "user_id")
	if err != nil {
		return nil, err
	}
	return cs.service.Suggest(ctx, id, userID), nil
}

func (cs *ConflictServer) handleResolve(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req conflict.ResolveRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return cs.service.Resolve(ctx, req)
}

func (cs *ConflictServer) handleRecordEdit(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	userID, err := requiredString(args, "user_id")
	if err != nil {
		return nil, err
	}
	pattern, err := cs.service.RecordEdit(ctx, userID, optionalString(args, "document_type"))
	if err != nil {
		return nil, err
	}
	if pattern == nil {
		return nil, apperrors.NewBackendUnavailableError("record edit", nil).WithProtocol("mcp")
	}
	return pattern, nil
}

func (cs *ConflictServer) handleAnalytics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	timeRange := types.TimeRange(optionalString(args, "time_range"))
	if timeRange == "" {
		timeRange = types.TimeRangeWeek
	}
	result, err := cs.aggregator.Analyze(ctx, analytics.Query{
		TimeRange:  timeRange,
		UserID:     optionalString(args, "user_id"),
		DocumentID: optionalString(args, "document_id"),
	})
	if err != nil {
		return nil, err
	}

	format := optionalString(args, "format")
	if format == "" || format == "json" {
		return result, nil
	}
	report, err := cs.renderer.Render(result, format)
	if err != nil {
		return nil, fmt.Errorf("conflict_analytics: %w", err)
	}
	return map[string]interface{}{"format": format, "report": report}, nil
}

func (cs *ConflictServer) handleUserStats(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	userID, err := requiredString(args, "user_id")
	if err != nil {
		return nil, err
	}
	return cs.service.GetUserStats(ctx, userID), nil
}

func (cs *ConflictServer) handleDocumentStats(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	docID, err := requiredString(args, "document_id")
	if err != nil {
		return nil, err
	}
	return cs.service.GetDocumentStats(ctx, docID), nil
}
