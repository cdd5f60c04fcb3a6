package types

import "time"

// TimeRange selects the analytics window
type TimeRange string

const (
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
)

// Window returns the length of the range, or false for an unknown range
func (r TimeRange) Window() (time.Duration, bool) {
	switch r {
	case TimeRangeWeek:
		return 7 * 24 * time.Hour, true
	case TimeRangeMonth:
		return 30 * 24 * time.Hour, true
	case TimeRangeYear:
		return 365 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// AnalyticsSummary holds the headline numbers of an analytics run
type AnalyticsSummary struct {
	TotalConflicts           int     `json:"total_conflicts"`
	ResolvedConflicts        int     `json:"resolved_conflicts"`
	ResolutionRate           float64 `json:"resolution_rate"`
	AverageResolutionMinutes float64 `json:"average_resolution_minutes"`
}

// TimeBucket counts conflicts detected in one day or month
type TimeBucket struct {
	Date     string `json:"date"`
	Count    int    `json:"count"`
	Resolved int    `json:"resolved"`
}

// UserConflictStats aggregates one user's participation and resolutions
type UserConflictStats struct {
	UserID                   string             `json:"user_id"`
	ConflictsCreated         int                `json:"conflicts_created"`
	ConflictsResolved        int                `json:"conflicts_resolved"`
	AverageResolutionMinutes float64            `json:"average_resolution_minutes"`
	PreferredStrategy        ResolutionStrategy `json:"preferred_strategy,omitempty"`
}

// SectionHotspot is a document section ranked by conflict count
type SectionHotspot struct {
	Section   string `json:"section"`
	Conflicts int    `json:"conflicts"`
}

// DocumentConflictStats aggregates conflicts for one document
type DocumentConflictStats struct {
	DocumentID        string           `json:"document_id"`
	TotalConflicts    int              `json:"total_conflicts"`
	ResolvedConflicts int              `json:"resolved_conflicts"`
	Hotspots          []SectionHotspot `json:"hotspots"`
}

// StrategyStats aggregates how one strategy performed
type StrategyStats struct {
	Strategy                 ResolutionStrategy `json:"strategy"`
	Uses                     int                `json:"uses"`
	AverageResolutionMinutes float64            `json:"average_resolution_minutes"`
	SuccessRate              float64            `json:"success_rate"`
}

// ConflictAnalytics is the full report produced by the analytics aggregator
type ConflictAnalytics struct {
	TimeRange   TimeRange               `json:"time_range"`
	UserID      string                  `json:"user_id,omitempty"`
	DocumentID  string                  `json:"document_id,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
	Summary     AnalyticsSummary        `json:"summary"`
	ByTime      []TimeBucket            `json:"by_time"`
	ByUser      []UserConflictStats     `json:"by_user"`
	ByDocument  []DocumentConflictStats `json:"by_document"`
	ByStrategy  []StrategyStats         `json:"by_strategy"`
}
