package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/pkg/types"
)

func TestDifference(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"equal", "hello", "hello", 0},
		{"both empty", "", "", 0},
		{"one empty", "hello", "", 1},
		{"other empty", "", "hello", 1},
		{"single mismatch", "abc", "abd", 1.0 / 3.0},
		{"length difference counts as mismatch", "ab", "abcd", 0.5},
		{"full mismatch", "A", "B", 1},
		{"canonically equivalent", "caf\u00e9", "cafe\u0301", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Difference(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestDifference_Boundaries(t *testing.T) {
	for _, s := range []string{"a", "some text", "ünïcödé", "  "} {
		assert.Zero(t, Difference(s, s), s)
		assert.Equal(t, 1.0, Difference(s, ""), s)
	}
}

func TestAverageDifference(t *testing.T) {
	edits := []types.ConflictEdit{
		{ID: "a", Content: "abcd"},
		{ID: "b", Content: "abcd"},
		{ID: "c", Content: "wxyz"},
	}
	// pairs: (a,b)=0 (a,c)=1 (b,c)=1
	assert.InDelta(t, 2.0/3.0, AverageDifference(edits), 1e-9)
	assert.Zero(t, AverageDifference(edits[:1]))
}

func TestScorer_Classify(t *testing.T) {
	scorer := NewScorer(config.DefaultConfig().Conflict)
	different := []types.ConflictEdit{{ID: "a", Content: "A"}, {ID: "b", Content: "B"}}
	similar := []types.ConflictEdit{{ID: "a", Content: "abcdefghij"}, {ID: "b", Content: "abcdefghiX"}}

	tests := []struct {
		name  string
		end   int
		edits []types.ConflictEdit
		want  types.Severity
	}{
		{"large and divergent", 120, different, types.SeverityHigh},
		{"large but similar", 120, similar, types.SeverityMedium},
		{"small but divergent", 10, different, types.SeverityMedium},
		{"small and similar", 10, similar, types.SeverityLow},
		{"exactly at medium size", 50, similar, types.SeverityLow},
		{"exactly at high size", 100, different, types.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Classify(types.Position{Start: 0, End: tt.end}, tt.edits)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScorer_SeverityMonotonicInSize(t *testing.T) {
	scorer := NewScorer(config.DefaultConfig().Conflict)
	rank := map[types.Severity]int{types.SeverityLow: 0, types.SeverityMedium: 1, types.SeverityHigh: 2}

	for _, diff := range []float64{0, 0.2, 0.4, 0.41, 0.7, 0.71, 1} {
		prev := -1
		for size := 0; size <= 200; size++ {
			got := rank[scorer.severity(size, diff)]
			assert.GreaterOrEqual(t, got, prev, "diff=%v size=%d", diff, size)
			prev = got
		}
	}
}
