// Package types holds the public data model of the conflict service: conflicts,
// resolutions, editing patterns, analytics and lifecycle events.
package types

import (
	"time"
)

// ResolutionStrategy is the policy used to collapse conflicting edits into one
type ResolutionStrategy string

const (
	StrategyAcceptNewest ResolutionStrategy = "accept-newest"
	StrategyAcceptOldest ResolutionStrategy = "accept-oldest"
	StrategyPreferUser   ResolutionStrategy = "prefer-user"
	StrategyMergeChanges ResolutionStrategy = "merge-changes"
	StrategySmartMerge   ResolutionStrategy = "smart-merge"
	StrategyManual       ResolutionStrategy = "manual"
)

// AllStrategies returns every resolution strategy in declaration order
func AllStrategies() []ResolutionStrategy {
	return []ResolutionStrategy{
		StrategyAcceptNewest,
		StrategyAcceptOldest,
		StrategyPreferUser,
		StrategyMergeChanges,
		StrategySmartMerge,
		StrategyManual,
	}
}

// Valid reports whether s is one of the known strategies
func (s ResolutionStrategy) Valid() bool {
	for _, known := range AllStrategies() {
		if s == known {
			return true
		}
	}
	return false
}

// Severity is the coarse classification of how disruptive a conflict is
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Position is a character-offset range inside a document
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Size returns the number of characters covered by the range
func (p Position) Size() int {
	return p.End - p.Start
}

// ConflictEdit is one user's concurrent edit that took part in a conflict
type ConflictEdit struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConflictContext holds the unmodified text surrounding the conflicting region
type ConflictContext struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Resolution records how and by whom a conflict was resolved
type Resolution struct {
	Content    string             `json:"content"`
	Strategy   ResolutionStrategy `json:"strategy"`
	ResolvedBy string             `json:"resolved_by"`
	Timestamp  time.Time          `json:"timestamp"`
	Reasoning  string             `json:"reasoning,omitempty"`
}

// EditingConflict is a detected set of two or more overlapping concurrent edits.
// Resolved is nil while the conflict is open.
type EditingConflict struct {
	ID           string          `json:"id"`
	DocumentID   string          `json:"document_id"`
	DocumentType string          `json:"document_type"`
	Section      string          `json:"section"`
	Position     Position        `json:"position"`
	Users        []ConflictEdit  `json:"users"`
	Context      ConflictContext `json:"context"`
	Severity     Severity        `json:"severity"`
	Detected     time.Time       `json:"detected"`
	Resolved     *Resolution     `json:"resolved,omitempty"`

	// ResolutionHistory is only populated under the append-history resolution policy
	ResolutionHistory []Resolution `json:"resolution_history,omitempty"`
}

// IsResolved reports whether the conflict carries a resolution
func (c *EditingConflict) IsResolved() bool {
	return c.Resolved != nil
}

// Participant returns the edit made by userID, if that user took part
func (c *EditingConflict) Participant(userID string) (ConflictEdit, bool) {
	for _, u := range c.Users {
		if u.ID == userID {
			return u, true
		}
	}
	return ConflictEdit{}, false
}

// HasParticipant reports whether userID made one of the conflicting edits
func (c *EditingConflict) HasParticipant(userID string) bool {
	_, ok := c.Participant(userID)
	return ok
}

// ResolutionTime returns the time between detection and resolution
func (c *EditingConflict) ResolutionTime() (time.Duration, bool) {
	if c.Resolved == nil {
		return 0, false
	}
	return c.Resolved.Timestamp.Sub(c.Detected), true
}

// Clone returns a deep copy so cached conflicts are never mutated in place
func (c *EditingConflict) Clone() *EditingConflict {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Users = append([]ConflictEdit(nil), c.Users...)
	if c.Resolved != nil {
		r := *c.Resolved
		cp.Resolved = &r
	}
	if c.ResolutionHistory != nil {
		cp.ResolutionHistory = append([]Resolution(nil), c.ResolutionHistory...)
	}
	return &cp
}

// ResolutionSuggestion is the engine's recommendation for resolving a conflict
type ResolutionSuggestion struct {
	ConflictID            string               `json:"conflict_id"`
	SuggestedStrategy     ResolutionStrategy   `json:"suggested_strategy"`
	SuggestedContent      string               `json:"suggested_content"`
	Confidence            float64              `json:"confidence"`
	Reasoning             string               `json:"reasoning"`
	AlternativeStrategies []ResolutionStrategy `json:"alternative_strategies"`
}
