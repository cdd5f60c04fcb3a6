package types

import "time"

// ConflictEventType names a conflict lifecycle event
type ConflictEventType string

const (
	EventConflictDetected ConflictEventType = "conflict.detected"
	EventConflictResolved ConflictEventType = "conflict.resolved"
)

// ConflictEvent is published whenever a conflict is detected or resolved
type ConflictEvent struct {
	Type       ConflictEventType  `json:"type"`
	Action     string             `json:"action"`
	ConflictID string             `json:"conflict_id"`
	DocumentID string             `json:"document_id"`
	Section    string             `json:"section,omitempty"`
	Severity   Severity           `json:"severity,omitempty"`
	Strategy   ResolutionStrategy `json:"strategy,omitempty"`
	Users      []string           `json:"users,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}
