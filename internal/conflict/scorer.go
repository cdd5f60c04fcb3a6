package conflict

import (
	"golang.org/x/text/unicode/norm"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/pkg/types"
)

// Scorer classifies conflicts by size and by how far the competing edits diverge
type Scorer struct {
	highSize       int
	highDifference float64
	medSize        int
	medDifference  float64
}

// NewScorer creates a scorer from the configured severity thresholds
func NewScorer(cfg config.ConflictConfig) *Scorer {
	return &Scorer{
		highSize:       cfg.HighSeveritySize,
		highDifference: cfg.HighSeverityDifference,
		medSize:        cfg.MediumSeveritySize,
		medDifference:  cfg.MediumSeverityDifference,
	}
}

// Difference returns a divergence score in [0, 1]: 0 for equal strings, 1 when either is empty,
// otherwise the share of rune positions that differ over the longer of the two.
// It is a positional proxy for edit distance, not Levenshtein.
func Difference(a, b string) float64 {
	if a == b {
		return 0
	}
	if a == "" || b == "" {
		return 1
	}

	ra := []rune(norm.NFC.String(a))
	rb := []rune(norm.NFC.String(b))
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}

	mismatches := 0
	for i := 0; i < longest; i++ {
		if i >= len(ra) || i >= len(rb) || ra[i] != rb[i] {
			mismatches++
		}
	}
	return float64(mismatches) / float64(longest)
}

// AverageDifference is the mean Difference over every unordered pair of edits
func AverageDifference(edits []types.ConflictEdit) float64 {
	pairs := 0
	total := 0.0
	for i := 0; i < len(edits); i++ {
		for j := i + 1; j < len(edits); j++ {
			total += Difference(edits[i].Content, edits[j].Content)
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

// Classify returns the severity for a conflict covering position between the given edits
func (s *Scorer) Classify(position types.Position, edits []types.ConflictEdit) types.Severity {
	return s.severity(position.Size(), AverageDifference(edits))
}

func (s *Scorer) severity(size int, avgDiff float64) types.Severity {
	switch {
	case size > s.highSize && avgDiff > s.highDifference:
		return types.SeverityHigh
	case size > s.medSize || avgDiff > s.medDifference:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}
