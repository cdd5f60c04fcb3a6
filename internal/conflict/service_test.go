package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-mcp-conflicts/internal/config"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

func TestDetectConflict_SingleEditIsNotAConflict(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()

	for _, edits := range [][]types.ConflictEdit{nil, {edit("alice", "x", baseTime)}} {
		c, err := env.service.DetectConflict(ctx, DetectRequest{
			DocumentID: "doc-1",
			Position:   types.Position{Start: 0, End: 10},
			Edits:      edits,
		})
		assert.NoError(t, err)
		assert.Nil(t, c)
	}
	assert.Empty(t, env.events)
}

func TestDetectConflict_HighSeverityScenario(t *testing.T) {
	backend := memory.NewInMemoryBackend()
	env := newTestEnv(t, backend)
	ctx := context.Background()

	c, err := env.service.DetectConflict(ctx, twoEditRequest("doc-1", "intro", 120,
		edit("alice", "A", baseTime),
		edit("bob", "B", baseTime.Add(time.Second)),
	))
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, types.SeverityHigh, c.Severity)
	assert.True(t, c.Detected.Equal(baseTime))
	assert.False(t, c.IsResolved())
	assert.Equal(t, types.ConflictContext{Before: "intro", After: "outro"}, c.Context)

	stored := env.service.GetConflict(ctx, "c1")
	require.NotNil(t, stored)
	assert.Equal(t, c.Severity, stored.Severity)

	for _, user := range []string{"alice", "bob"} {
		p, err := env.service.patterns.Get(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, p, user)
		assert.InDelta(t, 0.1, p.ConflictFrequency, 1e-9)
		assert.Equal(t, 1, p.DocumentTypes["markdown"])
	}

	require.Len(t, env.events, 1)
	assert.Equal(t, types.EventConflictDetected, env.events[0].Type)
	assert.Equal(t, []string{"alice", "bob"}, env.events[0].Users)
	assert.Len(t, backend.Notes("system"), 1)
}

func TestDetectConflict_Validation(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()
	a, b := edit("alice", "A", baseTime), edit("bob", "B", baseTime)

	tests := []struct {
		name string
		req  DetectRequest
	}{
		{"missing document", DetectRequest{Position: types.Position{End: 1}, Edits: []types.ConflictEdit{a, b}}},
		{"inverted position", DetectRequest{DocumentID: "doc-1", Position: types.Position{Start: 5, End: 1}, Edits: []types.ConflictEdit{a, b}}},
		{"negative start", DetectRequest{DocumentID: "doc-1", Position: types.Position{Start: -1, End: 1}, Edits: []types.ConflictEdit{a, b}}},
		{"anonymous edit", DetectRequest{DocumentID: "doc-1", Position: types.Position{End: 1}, Edits: []types.ConflictEdit{a, {Content: "?"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := env.service.DetectConflict(ctx, tt.req)
			assert.Nil(t, c)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidationError(err))
		})
	}
}

func TestDetectConflict_SurvivesPersistenceFailure(t *testing.T) {
	env := newTestEnv(t, &faultyBackend{Backend: memory.NewInMemoryBackend(), failPut: true})

	c, err := env.service.DetectConflict(context.Background(), twoEditRequest("doc-1", "intro", 10,
		edit("alice", "A", baseTime), edit("bob", "B", baseTime)))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, env.events, 1)
}

func TestDetectConflict_RepeatedParticipantCountsOnce(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()

	req := twoEditRequest("doc-1", "intro", 10, edit("alice", "A", baseTime), edit("alice", "B", baseTime))
	_, err := env.service.DetectConflict(ctx, req)
	require.NoError(t, err)

	p, err := env.service.patterns.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, p.EditingTimes, 1)
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()
	c := seedConflict(t, env)

	env.clock.Advance(30 * time.Minute)
	resolved, err := env.service.Resolve(ctx, ResolveRequest{
		ConflictID: c.ID,
		Strategy:   types.StrategyAcceptNewest,
		Content:    "bob text",
		ResolvedBy: "alice",
		Reasoning:  "bob's wording is clearer",
	})
	require.NoError(t, err)
	require.NotNil(t, resolved.Resolved)
	assert.Equal(t, types.StrategyAcceptNewest, resolved.Resolved.Strategy)
	assert.Equal(t, "alice", resolved.Resolved.ResolvedBy)
	assert.True(t, resolved.Resolved.Timestamp.Equal(baseTime.Add(30*time.Minute)))

	d, ok := resolved.ResolutionTime()
	assert.True(t, ok)
	assert.Equal(t, 30*time.Minute, d)

	stored := env.service.GetConflict(ctx, c.ID)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Resolved)
	assert.Equal(t, "bob's wording is clearer", stored.Resolved.Reasoning)

	p, err := env.service.patterns.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, p.PreferredResolutions[types.StrategyAcceptNewest])

	require.Len(t, env.events, 2)
	assert.Equal(t, types.EventConflictResolved, env.events[1].Type)
	assert.Equal(t, types.StrategyAcceptNewest, env.events[1].Strategy)
}

func TestResolve_OverwritesByDefault(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()
	c := seedConflict(t, env)

	for _, s := range []types.ResolutionStrategy{types.StrategyAcceptNewest, types.StrategyManual} {
		_, err := env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: s, Content: "x", ResolvedBy: "alice"})
		require.NoError(t, err)
	}

	stored := env.service.GetConflict(ctx, c.ID)
	require.NotNil(t, stored.Resolved)
	assert.Equal(t, types.StrategyManual, stored.Resolved.Strategy)
	assert.Empty(t, stored.ResolutionHistory)
}

func TestResolve_AppendHistoryPolicy(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend(), func(cfg *config.Config) {
		cfg.Conflict.ResolutionPolicy = config.PolicyAppendHistory
	})
	ctx := context.Background()
	c := seedConflict(t, env)

	for _, s := range []types.ResolutionStrategy{types.StrategyAcceptNewest, types.StrategyManual, types.StrategySmartMerge} {
		_, err := env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: s, ResolvedBy: "alice"})
		require.NoError(t, err)
	}

	stored := env.service.GetConflict(ctx, c.ID)
	assert.Equal(t, types.StrategySmartMerge, stored.Resolved.Strategy)
	require.Len(t, stored.ResolutionHistory, 2)
	assert.Equal(t, types.StrategyAcceptNewest, stored.ResolutionHistory[0].Strategy)
	assert.Equal(t, types.StrategyManual, stored.ResolutionHistory[1].Strategy)
}

func TestResolve_RejectPolicyKeepsFirstResolution(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend(), func(cfg *config.Config) {
		cfg.Conflict.ResolutionPolicy = config.PolicyReject
	})
	ctx := context.Background()
	c := seedConflict(t, env)

	_, err := env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: types.StrategyAcceptNewest, ResolvedBy: "alice"})
	require.NoError(t, err)

	_, err = env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: types.StrategyManual, ResolvedBy: "bob"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeInvalidState, apperrors.CodeOf(err))

	stored := env.service.GetConflict(ctx, c.ID)
	assert.Equal(t, types.StrategyAcceptNewest, stored.Resolved.Strategy)
	assert.Equal(t, "alice", stored.Resolved.ResolvedBy)
	assert.Empty(t, stored.ResolutionHistory)
}

func TestResolve_Errors(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()
	c := seedConflict(t, env)

	_, err := env.service.Resolve(ctx, ResolveRequest{ConflictID: "missing", Strategy: types.StrategyManual})
	assert.True(t, errors.Is(err, apperrors.ErrConflictNotFound))

	_, err = env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: "coin-flip"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidStrategy))

	_, err = env.service.Resolve(ctx, ResolveRequest{Strategy: types.StrategyManual})
	assert.True(t, apperrors.IsValidationError(err))

	assert.False(t, env.service.GetConflict(ctx, c.ID).IsResolved())
}

func TestResolve_UnattributedGoesToSystemOwner(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()
	c := seedConflict(t, env)

	resolved, err := env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: types.StrategyAcceptOldest})
	require.NoError(t, err)
	assert.Equal(t, "system", resolved.Resolved.ResolvedBy)
}

func TestResolve_RefreshesDocumentCache(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()
	c := seedConflict(t, env)

	require.Len(t, env.service.GetDocumentConflicts(ctx, "doc-1"), 1)
	_, err := env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: types.StrategyManual, ResolvedBy: "bob"})
	require.NoError(t, err)

	conflicts := env.service.GetDocumentConflicts(ctx, "doc-1")
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].IsResolved())
}

func TestRecordEdit(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()

	p, err := env.service.RecordEdit(ctx, "alice", "code")
	require.NoError(t, err)
	assert.Equal(t, 1, p.DocumentTypes["code"])
	assert.Zero(t, p.ConflictFrequency)

	_, err = env.service.RecordEdit(ctx, "", "code")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestGetUserStats_TotalEditsBeyondTimeCap(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		_, err := env.service.RecordEdit(ctx, "alice", "markdown")
		require.NoError(t, err)
	}
	_, err := env.service.RecordEdit(ctx, "alice", "code")
	require.NoError(t, err)

	stats := env.service.GetUserStats(ctx, "alice")
	assert.Equal(t, 151, stats.TotalEdits)
	assert.Len(t, stats.Pattern.EditingTimes, config.DefaultConfig().Conflict.MaxEditingTimes)
	assert.Equal(t, "markdown", stats.TopDocumentType)
}

func TestGetUserStats(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()

	unknown := env.service.GetUserStats(ctx, "nobody")
	assert.Nil(t, unknown.Pattern)
	assert.Zero(t, unknown.TotalEdits)

	c := seedConflict(t, env)
	_, err := env.service.RecordEdit(ctx, "alice", "code")
	require.NoError(t, err)
	_, err = env.service.RecordEdit(ctx, "alice", "code")
	require.NoError(t, err)
	_, err = env.service.Resolve(ctx, ResolveRequest{ConflictID: c.ID, Strategy: types.StrategyPreferUser, ResolvedBy: "alice"})
	require.NoError(t, err)
	env.service.Suggest(ctx, c.ID, "alice")

	stats := env.service.GetUserStats(ctx, "alice")
	require.NotNil(t, stats.Pattern)
	assert.Equal(t, 3, stats.TotalEdits)
	assert.Equal(t, "code", stats.TopDocumentType)
	assert.Equal(t, types.StrategyPreferUser, stats.TopStrategy)
	assert.Equal(t, 1, stats.CollaboratorCount)
	assert.InDelta(t, 0.1, stats.ConflictFrequency, 1e-9)
}

func TestGetDocumentStats(t *testing.T) {
	env := newTestEnv(t, memory.NewInMemoryBackend())
	ctx := context.Background()

	empty := env.service.GetDocumentStats(ctx, "doc-1")
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Hotspots)
	assert.Nil(t, empty.LastDetected)

	first := seedConflict(t, env)
	env.clock.Advance(time.Hour)
	_, err := env.service.DetectConflict(ctx, twoEditRequest("doc-1", "body", 120,
		edit("carol", "A", baseTime), edit("bob", "B", baseTime)))
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	seedConflict(t, env)

	_, err = env.service.Resolve(ctx, ResolveRequest{ConflictID: first.ID, Strategy: types.StrategyManual, ResolvedBy: "alice"})
	require.NoError(t, err)

	stats := env.service.GetDocumentStats(ctx, "doc-1")
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 2, stats.Open)
	assert.Equal(t, 1, stats.BySeverity[types.SeverityHigh])
	assert.Equal(t, []types.SectionHotspot{{Section: "intro", Conflicts: 2}, {Section: "body", Conflicts: 1}}, stats.Hotspots)
	assert.Equal(t, []string{"alice", "bob", "carol"}, stats.Participants)
	require.NotNil(t, stats.LastDetected)
	assert.True(t, stats.LastDetected.Equal(baseTime.Add(2*time.Hour)))
}

func TestTopSections(t *testing.T) {
	order := []string{"a", "b", "c", "d", "e", "f"}
	counts := map[string]int{"a": 1, "b": 3, "c": 3, "d": 2, "e": 1, "f": 5}

	got := TopSections(order, counts, 5)
	assert.Equal(t, []types.SectionHotspot{
		{Section: "f", Conflicts: 5},
		{Section: "b", Conflicts: 3},
		{Section: "c", Conflicts: 3},
		{Section: "d", Conflicts: 2},
		{Section: "a", Conflicts: 1},
	}, got)
}
