package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/conflict"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

func setupTestConflictServer(t *testing.T) *ConflictServer {
	t.Helper()
	cfg := config.DefaultConfig()
	svc := conflict.NewService(memory.NewInMemoryBackend(), cfg, logging.NewNoOpLogger())
	cs, err := NewConflictServer("conflicts-test", "0.0.1", svc, analytics.NewAggregator(svc.Store(), cfg.Analytics, nil), nil)
	require.NoError(t, err)
	require.NotNil(t, cs.GetMCPServer())
	return cs
}

// detectArgs mirrors what an MCP client sends: JSON numbers and RFC3339 strings
func detectArgs(docID string) map[string]interface{} {
	now := time.Now().UTC()
	return map[string]interface{}{
		"document_id":   docID,
		"document_type": "markdown",
		"section":       "setup",
		"position":      map[string]interface{}{"start": float64(10), "end": float64(40)},
		"edits": []interface{}{
			map[string]interface{}{"id": "alice", "content": "install with make", "timestamp": now.Add(-time.Minute).Format(time.RFC3339)},
			map[string]interface{}{"id": "bob", "content": "install with go", "timestamp": now.Format(time.RFC3339)},
		},
	}
}

func TestConflictTools_Lifecycle(t *testing.T) {
	cs := setupTestConflictServer(t)
	ctx := context.Background()

	result, err := cs.handleDetect(ctx, detectArgs("readme"))
	require.NoError(t, err)
	detected, ok := result.(*types.EditingConflict)
	require.True(t, ok)
	assert.Equal(t, types.Position{Start: 10, End: 40}, detected.Position)
	require.Len(t, detected.Users, 2)
	assert.False(t, detected.Users[0].Timestamp.IsZero())

	result, err = cs.handleGet(ctx, map[string]interface{}{"conflict_id": detected.ID})
	require.NoError(t, err)
	assert.Equal(t, detected.ID, result.(*types.EditingConflict).ID)

	result, err = cs.handleSuggest(ctx, map[string]interface{}{"conflict_id": detected.ID, "user_id": "bob"})
	require.NoError(t, err)
	suggestion := result.(*types.ResolutionSuggestion)
	assert.InDelta(t, 0.5, suggestion.Confidence, 1e-9)

	result, err = cs.handleResolve(ctx, map[string]interface{}{
		"conflict_id": detected.ID,
		"strategy":    "prefer-user",
		"content":     "install with go",
		"resolved_by": "bob",
	})
	require.NoError(t, err)
	resolved := result.(*types.EditingConflict)
	require.NotNil(t, resolved.Resolved)
	assert.Equal(t, types.StrategyPreferUser, resolved.Resolved.Strategy)

	result, err = cs.handleListDocument(ctx, map[string]interface{}{"document_id": "readme"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(map[string]interface{})["total"])

	result, err = cs.handleDocumentStats(ctx, map[string]interface{}{"document_id": "readme"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(*types.DocumentStats).Resolved)

	result, err = cs.handleUserStats(ctx, map[string]interface{}{"user_id": "bob"})
	require.NoError(t, err)
	assert.Equal(t, types.StrategyPreferUser, result.(*types.UserStats).TopStrategy)

	result, err = cs.handleAnalytics(ctx, map[string]interface{}{"time_range": "month"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(*types.ConflictAnalytics).Summary.ResolvedConflicts)

	result, err = cs.handleAnalytics(ctx, map[string]interface{}{"format": "markdown"})
	require.NoError(t, err)
	report := result.(map[string]interface{})["report"].(string)
	assert.Contains(t, report, "Prefer User")
}

func TestConflictTools_Errors(t *testing.T) {
	cs := setupTestConflictServer(t)
	ctx := context.Background()

	_, err := cs.handleGet(ctx, map[string]interface{}{})
	assert.Equal(t, apperrors.ErrorCodeRequiredField, apperrors.CodeOf(err))

	_, err = cs.handleGet(ctx, map[string]interface{}{"conflict_id": "missing"})
	assert.Equal(t, apperrors.ErrorCodeNotFound, apperrors.CodeOf(err))

	_, err = cs.handleSuggest(ctx, map[string]interface{}{"conflict_id": "missing"})
	assert.Equal(t, apperrors.ErrorCodeRequiredField, apperrors.CodeOf(err))

	_, err = cs.handleResolve(ctx, map[string]interface{}{"conflict_id": "missing", "strategy": "rock-paper", "content": "x"})
	assert.Equal(t, apperrors.ErrorCodeInvalidStrategy, apperrors.CodeOf(err))

	_, err = cs.handleAnalytics(ctx, map[string]interface{}{"time_range": "century"})
	assert.Equal(t, apperrors.ErrorCodeInvalidTimeRange, apperrors.CodeOf(err))

	_, err = cs.handleAnalytics(ctx, map[string]interface{}{"format": "pdf"})
	assert.Error(t, err)

	args := detectArgs("readme")
	args["position"] = "not an object"
	_, err = cs.handleDetect(ctx, args)
	assert.Equal(t, apperrors.ErrorCodeValidationError, apperrors.CodeOf(err))
}

func TestConflictTools_SingleEditAndRecordEdit(t *testing.T) {
	cs := setupTestConflictServer(t)
	ctx := context.Background()

	args := detectArgs("readme")
	args["edits"] = args["edits"].([]interface{})[:1]
	result, err := cs.handleDetect(ctx, args)
	require.NoError(t, err)
	assert.Nil(t, result.(map[string]interface{})["conflict"])

	result, err = cs.handleRecordEdit(ctx, map[string]interface{}{"user_id": "carol", "document_type": "code"})
	require.NoError(t, err)
	pattern := result.(*types.UserEditingPattern)
	assert.Equal(t, 1, pattern.DocumentTypes["code"])
}

func TestConflictServer_ResourceRead(t *testing.T) {
	cs := setupTestConflictServer(t)
	ctx := context.Background()

	_, err := cs.handleDetect(ctx, detectArgs("guide"))
	require.NoError(t, err)

	contents, err := cs.handleResourceRead(ctx, resourceDocumentPrefix+"guide")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	raw, err := json.Marshal(contents[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "guide")

	_, err = cs.handleResourceRead(ctx, resourceAnalyticsPrefix+"week")
	assert.NoError(t, err)

	_, err = cs.handleResourceRead(ctx, resourceAnalyticsPrefix+"forever")
	assert.Error(t, err)

	_, err = cs.handleResourceRead(ctx, "conflicts://nothing")
	assert.Error(t, err)
}
