// Package analytics aggregates the stored conflict history into summary statistics,
// time series and per-user, per-document and per-strategy breakdowns.
package analytics

import (
	"context"
	"sort"
	"time"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/conflict"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/pkg/types"
)

const (
	dayBucketLayout   = "2006-01-02"
	monthBucketLayout = "2006-01"
)

// ConflictSource supplies the stored conflicts matching every qualifier
type ConflictSource interface {
	All(ctx context.Context, limit int, qualifiers ...string) []*types.EditingConflict
}

// Query selects the conflicts to analyse
type Query struct {
	TimeRange  types.TimeRange `json:"time_range"`
	UserID     string          `json:"user_id,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
}

// Aggregator builds ConflictAnalytics reports
type Aggregator struct {
	source       ConflictSource
	searchLimit  int
	successGap   time.Duration
	hotspotLimit int
	logger       logging.Logger
	now          func() time.Time
}

// NewAggregator creates an aggregator reading from source
func NewAggregator(source ConflictSource, cfg config.AnalyticsConfig, logger logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Aggregator{
		source:       source,
		searchLimit:  cfg.SearchLimit,
		successGap:   time.Duration(cfg.SuccessGapHours) * time.Hour,
		hotspotLimit: cfg.HotspotLimit,
		logger:       logger.WithComponent("conflict-analytics"),
		now:          time.Now,
	}
}

// WithClock replaces time.Now, for tests
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Analyze returns the analytics for q. Only an unknown time range is an error;
// an empty history yields zeroed totals and empty breakdowns.
func (a *Aggregator) Analyze(ctx context.Context, q Query) (*types.ConflictAnalytics, error) {
	window, ok := q.TimeRange.Window()
	if !ok {
		return nil, apperrors.NewInvalidTimeRangeError(string(q.TimeRange))
	}
	now := a.now()
	start := now.Add(-window)

	var qualifiers []string
	if q.DocumentID != "" {
		qualifiers = append(qualifiers, q.DocumentID)
	}
	if q.UserID != "" {
		qualifiers = append(qualifiers, q.UserID)
	}

	var conflicts []*types.EditingConflict
	for _, c := range a.source.All(ctx, a.searchLimit, qualifiers...) {
		if c.Detected.Before(start) {
			continue
		}
		if q.DocumentID != "" && c.DocumentID != q.DocumentID {
			continue
		}
		if q.UserID != "" && !involves(c, q.UserID) {
			continue
		}
		conflicts = append(conflicts, c)
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Detected.Before(conflicts[j].Detected)
	})

	layout := dayBucketLayout
	if q.TimeRange == types.TimeRangeYear {
		layout = monthBucketLayout
	}

	result := &types.ConflictAnalytics{
		TimeRange:   q.TimeRange,
		UserID:      q.UserID,
		DocumentID:  q.DocumentID,
		GeneratedAt: now,
		Summary:     summarize(conflicts),
		ByTime:      byTime(conflicts, layout),
		ByUser:      byUser(conflicts),
		ByDocument:  byDocument(conflicts, a.hotspotLimit),
		ByStrategy:  byStrategy(conflicts, a.successGap),
	}
	a.logger.DebugContext(ctx, "Conflict analytics generated",
		"time_range", string(q.TimeRange),
		"conflicts", len(conflicts))
	return result, nil
}

func involves(c *types.EditingConflict, userID string) bool {
	if c.HasParticipant(userID) {
		return true
	}
	return c.Resolved != nil && c.Resolved.ResolvedBy == userID
}

func resolutionMinutes(c *types.EditingConflict) (float64, bool) {
	d, ok := c.ResolutionTime()
	if !ok {
		return 0, false
	}
	return d.Minutes(), true
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func summarize(conflicts []*types.EditingConflict) types.AnalyticsSummary {
	s := types.AnalyticsSummary{TotalConflicts: len(conflicts)}
	total := 0.0
	for _, c := range conflicts {
		if minutes, ok := resolutionMinutes(c); ok {
			s.ResolvedConflicts++
			total += minutes
		}
	}
	if s.TotalConflicts > 0 {
		s.ResolutionRate = float64(s.ResolvedConflicts) / float64(s.TotalConflicts)
	}
	s.AverageResolutionMinutes = mean(total, s.ResolvedConflicts)
	return s
}

func byTime(conflicts []*types.EditingConflict, layout string) []types.TimeBucket {
	index := make(map[string]int)
	buckets := []types.TimeBucket{}
	for _, c := range conflicts {
		key := c.Detected.UTC().Format(layout)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, types.TimeBucket{Date: key})
		}
		buckets[i].Count++
		if c.IsResolved() {
			buckets[i].Resolved++
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Date < buckets[j].Date })
	return buckets
}

type userAccumulator struct {
	stats      types.UserConflictStats
	minutes    float64
	strategies map[types.ResolutionStrategy]int
	order      []types.ResolutionStrategy
}

func byUser(conflicts []*types.EditingConflict) []types.UserConflictStats {
	index := make(map[string]*userAccumulator)
	var order []string
	get := func(id string) *userAccumulator {
		acc, ok := index[id]
		if !ok {
			acc = &userAccumulator{
				stats:      types.UserConflictStats{UserID: id},
				strategies: make(map[types.ResolutionStrategy]int),
			}
			index[id] = acc
			order = append(order, id)
		}
		return acc
	}

	for _, c := range conflicts {
		counted := make(map[string]struct{}, len(c.Users))
		for _, u := range c.Users {
			if _, dup := counted[u.ID]; dup {
				continue
			}
			counted[u.ID] = struct{}{}
			get(u.ID).stats.ConflictsCreated++
		}

		minutes, ok := resolutionMinutes(c)
		if !ok {
			continue
		}
		acc := get(c.Resolved.ResolvedBy)
		acc.stats.ConflictsResolved++
		acc.minutes += minutes
		if _, seen := acc.strategies[c.Resolved.Strategy]; !seen {
			acc.order = append(acc.order, c.Resolved.Strategy)
		}
		acc.strategies[c.Resolved.Strategy]++
	}

	out := make([]types.UserConflictStats, 0, len(order))
	for _, id := range order {
		acc := index[id]
		acc.stats.AverageResolutionMinutes = mean(acc.minutes, acc.stats.ConflictsResolved)
		best := 0
		for _, s := range acc.order {
			if acc.strategies[s] > best {
				best = acc.strategies[s]
				acc.stats.PreferredStrategy = s
			}
		}
		out = append(out, acc.stats)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConflictsCreated > out[j].ConflictsCreated
	})
	return out
}

func byDocument(conflicts []*types.EditingConflict, hotspotLimit int) []types.DocumentConflictStats {
	type docAccumulator struct {
		stats    types.DocumentConflictStats
		sections map[string]int
		order    []string
	}
	index := make(map[string]*docAccumulator)
	var order []string

	for _, c := range conflicts {
		acc, ok := index[c.DocumentID]
		if !ok {
			acc = &docAccumulator{
				stats:    types.DocumentConflictStats{DocumentID: c.DocumentID},
				sections: make(map[string]int),
			}
			index[c.DocumentID] = acc
			order = append(order, c.DocumentID)
		}
		acc.stats.TotalConflicts++
		if c.IsResolved() {
			acc.stats.ResolvedConflicts++
		}
		if _, seen := acc.sections[c.Section]; !seen {
			acc.order = append(acc.order, c.Section)
		}
		acc.sections[c.Section]++
	}

	out := make([]types.DocumentConflictStats, 0, len(order))
	for _, id := range order {
		acc := index[id]
		acc.stats.Hotspots = conflict.TopSections(acc.order, acc.sections, hotspotLimit)
		out = append(out, acc.stats)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalConflicts > out[j].TotalConflicts
	})
	return out
}

// byStrategy expects conflicts in ascending detection order. A use counts as a success when
// the same document section stays conflict-free for longer than gap after the resolution.
func byStrategy(conflicts []*types.EditingConflict, gap time.Duration) []types.StrategyStats {
	type strategyAccumulator struct {
		uses, successes int
		minutes         float64
	}
	acc := make(map[types.ResolutionStrategy]*strategyAccumulator)

	for i, c := range conflicts {
		minutes, ok := resolutionMinutes(c)
		if !ok {
			continue
		}
		a, exists := acc[c.Resolved.Strategy]
		if !exists {
			a = &strategyAccumulator{}
			acc[c.Resolved.Strategy] = a
		}
		a.uses++
		a.minutes += minutes

		next := nextInSection(conflicts, i)
		if next == nil || next.Detected.Sub(c.Resolved.Timestamp) > gap {
			a.successes++
		}
	}

	out := []types.StrategyStats{}
	for _, s := range types.AllStrategies() {
		a, ok := acc[s]
		if !ok {
			continue
		}
		out = append(out, types.StrategyStats{
			Strategy:                 s,
			Uses:                     a.uses,
			AverageResolutionMinutes: mean(a.minutes, a.uses),
			SuccessRate:              float64(a.successes) / float64(a.uses),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Uses > out[j].Uses })
	return out
}

func nextInSection(conflicts []*types.EditingConflict, i int) *types.EditingConflict {
	c := conflicts[i]
	for _, candidate := range conflicts[i+1:] {
		if candidate.DocumentID == c.DocumentID && candidate.Section == c.Section {
			return candidate
		}
	}
	return nil
}
