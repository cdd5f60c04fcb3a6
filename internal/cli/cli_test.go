package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/conflict"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

type fixture struct {
	service    *conflict.Service
	aggregator *analytics.Aggregator
	conflictID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	svc := conflict.NewService(memory.NewInMemoryBackend(), cfg, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	detected, err := svc.DetectConflict(ctx, conflict.DetectRequest{
		DocumentID:   "handbook",
		DocumentType: "markdown",
		Section:      "onboarding",
		Position:     types.Position{Start: 0, End: 20},
		Edits: []types.ConflictEdit{
			{ID: "alice", Content: "welcome aboard", Timestamp: now.Add(-time.Minute)},
			{ID: "bob", Content: "welcome onboard", Timestamp: now},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, detected)

	_, err = svc.Resolve(ctx, conflict.ResolveRequest{
		ConflictID: detected.ID,
		Strategy:   types.StrategyAcceptNewest,
		Content:    "welcome onboard",
		ResolvedBy: "alice",
	})
	require.NoError(t, err)

	return &fixture{
		service:    svc,
		aggregator: analytics.NewAggregator(svc.Store(), cfg.Analytics, nil),
		conflictID: detected.ID,
	}
}

// run executes a fresh command tree so flag values never leak between cases
func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := NewCLI(f.service, f.aggregator)
	var out bytes.Buffer
	c.RootCmd.SetOut(&out)
	c.RootCmd.SetErr(&out)
	c.RootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := c.Execute(context.Background())
	return out.String(), err
}

func TestNewCLI_Commands(t *testing.T) {
	c := NewCLI(nil, nil)
	require.NotNil(t, c.RootCmd)
	assert.Equal(t, "conflictctl", c.RootCmd.Use)

	names := make([]string, 0)
	for _, cmd := range c.RootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"analyze", "user-stats", "document-stats", "suggest", "report"}, names)

	output := c.RootCmd.PersistentFlags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "o", output.Shorthand)
	assert.Equal(t, OutputTable, output.DefValue)
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "analyze", "-o", "json")
	require.NoError(t, err)
	var result types.ConflictAnalytics
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, types.TimeRangeWeek, result.TimeRange)
	assert.Equal(t, 1, result.Summary.TotalConflicts)
	assert.Equal(t, 1, result.Summary.ResolvedConflicts)
	require.Len(t, result.ByStrategy, 1)
	assert.Equal(t, types.StrategyAcceptNewest, result.ByStrategy[0].Strategy)

	out, err = f.run(t, "analyze", "--range", "month", "--document", "handbook")
	require.NoError(t, err)
	assert.Contains(t, out, "Conflict analytics (month, document handbook)")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "accept-newest")

	out, err = f.run(t, "analyze", "--document", "elsewhere", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Zero(t, result.Summary.TotalConflicts)
}

func TestAnalyze_InvalidRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "analyze", "--range", "decade")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeInvalidTimeRange, apperrors.CodeOf(err))
}

func TestUnsupportedOutput(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "analyze", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestUserStats(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "user-stats", "alice", "-o", "json")
	require.NoError(t, err)
	var stats types.UserStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "alice", stats.UserID)
	assert.Equal(t, types.StrategyAcceptNewest, stats.TopStrategy)

	out, err = f.run(t, "user-stats", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "User alice")
	assert.Contains(t, out, "accept-newest")

	_, err = f.run(t, "user-stats")
	require.Error(t, err)
}

func TestDocumentStats(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "document-stats", "handbook", "-o", "json")
	require.NoError(t, err)
	var stats types.DocumentStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Resolved)
	assert.Zero(t, stats.Open)

	out, err = f.run(t, "document-stats", "handbook", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "Document handbook")
	assert.Contains(t, out, "onboarding")
	assert.Contains(t, out, "resolved")
	assert.Contains(t, out, truncateID(f.conflictID))

	out, err = f.run(t, "document-stats", "empty", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "No conflicts found.")
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)

	cmd, _, err := NewCLI(f.service, f.aggregator).RootCmd.Find([]string{"suggest"})
	require.NoError(t, err)
	assert.Contains(t, cmd.Long, "Not read-only")

	out, err := f.run(t, "suggest", f.conflictID, "bob", "-o", "json")
	require.NoError(t, err)
	var s types.ResolutionSuggestion
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, f.conflictID, s.ConflictID)
	assert.True(t, s.SuggestedStrategy.Valid())
	assert.NotEmpty(t, s.Reasoning)

	out, err = f.run(t, "suggest", "missing", "bob", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.InDelta(t, 0.3, s.Confidence, 1e-9)

	out, err = f.run(t, "suggest", f.conflictID, "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Suggestion for "+f.conflictID)
}

func TestReport(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "# Conflict Report: Week")

	path := filepath.Join(t.TempDir(), "report.html")
	out, err = f.run(t, "report", "--format", "html", "--file", path, "--range", "year")
	require.NoError(t, err)
	assert.Contains(t, out, "report written to")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<table>")

	_, err = f.run(t, "report", "--format", "pdf")
	require.Error(t, err)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("12345678-aaaa-bbbb"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "50.0%", percent(0.5))
	assert.Equal(t, "2.5 min", minutes(2.5))
	assert.Equal(t, "intro (3), setup (1)", hotspots([]types.SectionHotspot{{Section: "intro", Conflicts: 3}, {Section: "setup", Conflicts: 1}}))
}
