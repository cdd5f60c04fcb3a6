// Package conflict detects collaborative editing conflicts, learns how users resolve them
// and suggests resolutions from that history.
package conflict

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"lerian-mcp-conflicts/internal/config"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

// EventPublisher receives conflict lifecycle events
type EventPublisher interface {
	Publish(event types.ConflictEvent)
}

// EventPublisherFunc adapts a function to EventPublisher
type EventPublisherFunc func(event types.ConflictEvent)

// Publish calls f(event)
func (f EventPublisherFunc) Publish(event types.ConflictEvent) {
	f(event)
}

// DetectRequest is an already-grouped set of concurrent edits to one document region
type DetectRequest struct {
	DocumentID   string                `json:"document_id"`
	DocumentType string                `json:"document_type"`
	Section      string                `json:"section"`
	Position     types.Position        `json:"position"`
	Edits        []types.ConflictEdit  `json:"edits"`
	Context      types.ConflictContext `json:"context"`
}

// Option configures a Service
type Option func(*Service)

// WithEventPublisher sends detection and resolution events to p
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces time.Now in every component
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the random conflict id source
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// Service is the entry point of the conflict engine, constructed once and shared by handlers
type Service struct {
	scorer      *Scorer
	store       *Store
	patterns    *PatternTracker
	suggestions *SuggestionEngine
	resolver    *Resolver
	publisher   EventPublisher
	logger      logging.Logger
	now         func() time.Time
	newID       func() string
	hotspots    int
}

// NewService wires the engine components over backend
func NewService(backend memory.Backend, cfg *config.Config, logger logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	store := NewStore(backend, cfg.Memory.SystemOwner, cfg.Memory.SearchLimit, cfg.Conflict.DocumentCacheSize, logger)
	patterns := NewPatternTracker(backend, cfg.Conflict, logger)
	s := &Service{
		scorer:      NewScorer(cfg.Conflict),
		store:       store,
		patterns:    patterns,
		suggestions: NewSuggestionEngine(store, patterns, cfg.Conflict, logger),
		resolver:    NewResolver(store, patterns, cfg.Conflict, cfg.Memory.SystemOwner, logger),
		logger:      logger.WithComponent("conflict-service"),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		hotspots:    cfg.Analytics.HotspotLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.patterns.now = s.now
	s.resolver.now = s.now
	return s
}

// Store exposes the conflict store to read-side collaborators such as analytics
func (s *Service) Store() *Store {
	return s.store
}

// DetectConflict builds, scores and records a conflict from req.Edits.
// Fewer than two edits is not a conflict and yields nil, nil.
func (s *Service) DetectConflict(ctx context.Context, req DetectRequest) (*types.EditingConflict, error) {
	if len(req.Edits) <= 1 {
		return nil, nil
	}
	if err := validateDetect(req); err != nil {
		return nil, err
	}

	c := &types.EditingConflict{
		ID:           s.newID(),
		DocumentID:   req.DocumentID,
		DocumentType: req.DocumentType,
		Section:      req.Section,
		Position:     req.Position,
		Users:        append([]types.ConflictEdit(nil), req.Edits...),
		Context:      req.Context,
		Severity:     s.scorer.Classify(req.Position, req.Edits),
		Detected:     s.now(),
	}

	// the edit is not gated on persistence
	_ = s.store.Save(ctx, c)

	seen := make(map[string]struct{}, len(c.Users))
	for _, u := range c.Users {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		if _, err := s.patterns.UpdatePattern(ctx, u.ID, c.DocumentType, c.ID); err != nil {
			s.logger.WarnContext(ctx, "Participant pattern not updated", "user_id", u.ID, "conflict_id", c.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Conflict detected",
		"conflict_id", c.ID,
		"document_id", c.DocumentID,
		"section", c.Section,
		"severity", string(c.Severity),
		"users", len(c.Users))
	s.publish(types.ConflictEvent{
		Type:       types.EventConflictDetected,
		Action:     "detected",
		ConflictID: c.ID,
		DocumentID: c.DocumentID,
		Section:    c.Section,
		Severity:   c.Severity,
		Users:      participantIDs(c),
		Timestamp:  c.Detected,
	})
	return c, nil
}

func validateDetect(req DetectRequest) error {
	if req.DocumentID == "" {
		return apperrors.NewRequiredFieldError("document_id")
	}
	if req.Position.Start < 0 || req.Position.End < req.Position.Start {
		return apperrors.NewValidationError("position", "end must not precede start", req.Position)
	}
	for _, e := range req.Edits {
		if e.ID == "" {
			return apperrors.NewRequiredFieldError("edits.id")
		}
	}
	return nil
}

// RecordEdit tracks a plain, non-conflicting edit
func (s *Service) RecordEdit(ctx context.Context, userID, documentType string) (*types.UserEditingPattern, error) {
	if userID == "" {
		return nil, apperrors.NewRequiredFieldError("user_id")
	}
	p, err := s.patterns.UpdatePattern(ctx, userID, documentType, "")
	if err != nil && p == nil {
		// backend failure: the edit simply is not remembered
		return nil, nil
	}
	return p, nil
}

// GetConflict returns nil when the conflict is unknown or the backend is unavailable
func (s *Service) GetConflict(ctx context.Context, id string) *types.EditingConflict {
	if id == "" {
		return nil
	}
	return s.store.Get(ctx, id)
}

// GetDocumentConflicts returns the document's conflicts, oldest first
func (s *Service) GetDocumentConflicts(ctx context.Context, documentID string) []*types.EditingConflict {
	return s.store.ForDocument(ctx, documentID)
}

// Suggest recommends a resolution for conflictID on behalf of userID
func (s *Service) Suggest(ctx context.Context, conflictID, userID string) *types.ResolutionSuggestion {
	return s.suggestions.Suggest(ctx, conflictID, userID)
}

// Resolve applies a resolution and publishes it
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*types.EditingConflict, error) {
	c, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(types.ConflictEvent{
		Type:       types.EventConflictResolved,
		Action:     "resolved",
		ConflictID: c.ID,
		DocumentID: c.DocumentID,
		Section:    c.Section,
		Severity:   c.Severity,
		Strategy:   c.Resolved.Strategy,
		Users:      participantIDs(c),
		Timestamp:  c.Resolved.Timestamp,
	})
	return c, nil
}

// GetUserStats summarises a user's pattern; Pattern is nil for unknown users
func (s *Service) GetUserStats(ctx context.Context, userID string) *types.UserStats {
	stats := &types.UserStats{UserID: userID}
	p, err := s.patterns.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "User stats unavailable", "user_id", userID, "error", err)
		return stats
	}
	if p == nil {
		return stats
	}

	stats.Pattern = p
	// EditingTimes is capped; the per-type counters are not
	for _, n := range p.DocumentTypes {
		stats.TotalEdits += n
	}
	stats.TopDocumentType = topKey(p.DocumentTypes)
	if ranked := rankStrategies(p.PreferredResolutions); len(ranked) > 0 {
		stats.TopStrategy = ranked[0]
	}
	stats.CollaboratorCount = len(p.Collaborators)
	stats.ConflictFrequency = p.ConflictFrequency
	return stats
}

// GetDocumentStats summarises a document's conflict history
func (s *Service) GetDocumentStats(ctx context.Context, documentID string) *types.DocumentStats {
	conflicts := s.store.ForDocument(ctx, documentID)
	stats := &types.DocumentStats{
		DocumentID: documentID,
		BySeverity: map[types.Severity]int{
			types.SeverityLow:    0,
			types.SeverityMedium: 0,
			types.SeverityHigh:   0,
		},
		Hotspots:     []types.SectionHotspot{},
		Participants: []string{},
	}

	sections := make(map[string]int)
	var sectionOrder []string
	seen := make(map[string]struct{})
	for _, c := range conflicts {
		stats.Total++
		if c.IsResolved() {
			stats.Resolved++
		}
		stats.BySeverity[c.Severity]++
		if _, ok := sections[c.Section]; !ok {
			sectionOrder = append(sectionOrder, c.Section)
		}
		sections[c.Section]++
		for _, u := range c.Users {
			if _, ok := seen[u.ID]; !ok {
				seen[u.ID] = struct{}{}
				stats.Participants = append(stats.Participants, u.ID)
			}
		}
		if stats.LastDetected == nil || c.Detected.After(*stats.LastDetected) {
			detected := c.Detected
			stats.LastDetected = &detected
		}
	}
	stats.Open = stats.Total - stats.Resolved
	stats.Hotspots = TopSections(sectionOrder, sections, s.hotspots)
	return stats
}

// TopSections ranks sections by count, descending, keeping first-seen order on ties
func TopSections(order []string, counts map[string]int, limit int) []types.SectionHotspot {
	hotspots := make([]types.SectionHotspot, 0, len(order))
	for _, section := range order {
		hotspots = append(hotspots, types.SectionHotspot{Section: section, Conflicts: counts[section]})
	}
	sort.SliceStable(hotspots, func(i, j int) bool {
		return hotspots[i].Conflicts > hotspots[j].Conflicts
	})
	if limit > 0 && len(hotspots) > limit {
		hotspots = hotspots[:limit]
	}
	return hotspots
}

func (s *Service) publish(event types.ConflictEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

// HealthCheck reports whether the memory backend is reachable
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.backend.HealthCheck(ctx)
}

func participantIDs(c *types.EditingConflict) []string {
	ids := make([]string, 0, len(c.Users))
	for _, u := range c.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

func topKey(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	top, best := "", 0
	for _, k := range keys {
		if counts[k] > best {
			top, best = k, counts[k]
		}
	}
	return top
}
