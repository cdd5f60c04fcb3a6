package types

import "time"

// CollaboratorPattern describes how a user tends to interact with one other user
type CollaboratorPattern struct {
	UserID              string             `json:"user_id"`
	Frequency           int                `json:"frequency"`
	Conflicts           int                `json:"conflicts"`
	PreferredResolution ResolutionStrategy `json:"preferred_resolution,omitempty"`
}

// UserEditingPattern is the evolving editing profile of a single user
type UserEditingPattern struct {
	UserID               string                          `json:"user_id"`
	DocumentTypes        map[string]int                  `json:"document_types"`
	EditingTimes         []time.Time                     `json:"editing_times"`
	EditingDurations     []time.Duration                 `json:"editing_durations"`
	ConflictFrequency    float64                         `json:"conflict_frequency"`
	PreferredResolutions map[ResolutionStrategy]int      `json:"preferred_resolutions"`
	Collaborators        map[string]*CollaboratorPattern `json:"collaborators"`
	LastUpdated          time.Time                       `json:"last_updated"`
}

// NewUserEditingPattern returns a zeroed pattern with every strategy count present
func NewUserEditingPattern(userID string) *UserEditingPattern {
	preferred := make(map[ResolutionStrategy]int, len(AllStrategies()))
	for _, s := range AllStrategies() {
		preferred[s] = 0
	}
	return &UserEditingPattern{
		UserID:               userID,
		DocumentTypes:        make(map[string]int),
		EditingTimes:         []time.Time{},
		EditingDurations:     []time.Duration{},
		PreferredResolutions: preferred,
		Collaborators:        make(map[string]*CollaboratorPattern),
	}
}

// Normalize fills nil maps left behind by older or partial records
func (p *UserEditingPattern) Normalize() {
	if p.DocumentTypes == nil {
		p.DocumentTypes = make(map[string]int)
	}
	if p.PreferredResolutions == nil {
		p.PreferredResolutions = make(map[ResolutionStrategy]int)
	}
	for _, s := range AllStrategies() {
		if _, ok := p.PreferredResolutions[s]; !ok {
			p.PreferredResolutions[s] = 0
		}
	}
	if p.Collaborators == nil {
		p.Collaborators = make(map[string]*CollaboratorPattern)
	}
	if p.EditingTimes == nil {
		p.EditingTimes = []time.Time{}
	}
	if p.EditingDurations == nil {
		p.EditingDurations = []time.Duration{}
	}
}

// UserStats summarises a user's editing pattern for dashboards
type UserStats struct {
	UserID            string              `json:"user_id"`
	Pattern           *UserEditingPattern `json:"pattern,omitempty"`
	TotalEdits        int                 `json:"total_edits"`
	TopDocumentType   string              `json:"top_document_type,omitempty"`
	TopStrategy       ResolutionStrategy  `json:"top_strategy,omitempty"`
	CollaboratorCount int                 `json:"collaborator_count"`
	ConflictFrequency float64             `json:"conflict_frequency"`
}

// DocumentStats summarises the conflict history of one document
type DocumentStats struct {
	DocumentID   string           `json:"document_id"`
	Total        int              `json:"total"`
	Resolved     int              `json:"resolved"`
	Open         int              `json:"open"`
	BySeverity   map[Severity]int `json:"by_severity"`
	Hotspots     []SectionHotspot `json:"hotspots"`
	Participants []string         `json:"participants"`
	LastDetected *time.Time       `json:"last_detected,omitempty"`
}
