package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-mcp-conflicts/pkg/types"
)

func sampleAnalytics() *types.ConflictAnalytics {
	return &types.ConflictAnalytics{
		TimeRange:   types.TimeRangeMonth,
		DocumentID:  "doc-1",
		GeneratedAt: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Summary: types.AnalyticsSummary{
			TotalConflicts:           4,
			ResolvedConflicts:        3,
			ResolutionRate:           0.75,
			AverageResolutionMinutes: 12.5,
		},
		ByTime: []types.TimeBucket{{Date: "2024-06-14", Count: 4, Resolved: 3}},
		ByUser: []types.UserConflictStats{
			{UserID: "alice", ConflictsCreated: 4, ConflictsResolved: 3, AverageResolutionMinutes: 12.5, PreferredStrategy: types.StrategyAcceptNewest},
		},
		ByDocument: []types.DocumentConflictStats{
			{DocumentID: "doc-1", TotalConflicts: 4, ResolvedConflicts: 3, Hotspots: []types.SectionHotspot{{Section: "a|b", Conflicts: 4}}},
		},
		ByStrategy: []types.StrategyStats{
			{Strategy: types.StrategyAcceptNewest, Uses: 3, AverageResolutionMinutes: 12.5, SuccessRate: 2.0 / 3.0},
		},
	}
}

func TestRenderer_Markdown(t *testing.T) {
	md := NewRenderer().Markdown(sampleAnalytics())

	assert.Contains(t, md, "# Conflict Report: Month")
	assert.Contains(t, md, "Document: `doc-1`")
	assert.Contains(t, md, "- Resolved: 3 (75%)")
	assert.Contains(t, md, "| 2024-06-14 | 4 | 3 |")
	assert.Contains(t, md, "| alice | 4 | 3 | 12.5 | Accept Newest |")
	assert.Contains(t, md, `a\|b (4)`)
	assert.Contains(t, md, "| Accept Newest | 3 | 12.5 | 67% |")
	assert.NotContains(t, md, "No conflicts")
}

func TestRenderer_EmptyMarkdown(t *testing.T) {
	md := NewRenderer().Markdown(&types.ConflictAnalytics{TimeRange: types.TimeRangeWeek})

	assert.Contains(t, md, "# Conflict Report: Week")
	assert.Contains(t, md, "_No conflicts in this period._")
	assert.NotContains(t, md, "## Timeline")
}

func TestRenderer_HTML(t *testing.T) {
	html, err := NewRenderer().Render(sampleAnalytics(), FormatHTML)
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Conflict Report: Month</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>Accept Newest</td>")
}

func TestRenderer_UnknownFormat(t *testing.T) {
	_, err := NewRenderer().Render(sampleAnalytics(), "pdf")
	assert.Error(t, err)
}
