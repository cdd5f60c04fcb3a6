package conflict

import (
	"context"
	"time"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

const patternKeyPrefix = "editing-pattern-"

// PatternKey returns the backend key of a user's editing pattern
func PatternKey(userID string) string {
	return patternKeyPrefix + userID
}

// PatternTracker maintains one editing profile per user, stored under that user's own namespace
type PatternTracker struct {
	backend         memory.Backend
	alpha           float64
	maxEditingTimes int
	logger          logging.Logger
	now             func() time.Time
}

// NewPatternTracker creates a tracker using the EMA weight and ring size from cfg
func NewPatternTracker(backend memory.Backend, cfg config.ConflictConfig, logger logging.Logger) *PatternTracker {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &PatternTracker{
		backend:         backend,
		alpha:           cfg.FrequencyAlpha,
		maxEditingTimes: cfg.MaxEditingTimes,
		logger:          logger.WithComponent("pattern-tracker"),
		now:             time.Now,
	}
}

// Get loads a user's pattern. It returns nil, nil for a user with no pattern yet.
func (t *PatternTracker) Get(ctx context.Context, userID string) (*types.UserEditingPattern, error) {
	raw, err := t.backend.Get(ctx, PatternKey(userID), userID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var p types.UserEditingPattern
	if err := decodeRecord(raw, kindPattern, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

// Save persists the full pattern
func (t *PatternTracker) Save(ctx context.Context, p *types.UserEditingPattern) error {
	value, err := encodeRecord(kindPattern, p)
	if err != nil {
		return err
	}
	if err := t.backend.Put(ctx, PatternKey(p.UserID), value, p.UserID); err != nil {
		t.logger.WarnContext(ctx, "Failed to persist editing pattern",
			"operation", "put",
			"key", PatternKey(p.UserID),
			"error", err)
		return err
	}
	return nil
}

// UpdatePattern records an edit of documentType by userID. A non-empty conflictID marks the
// edit as part of a conflict and moves the conflict frequency toward 1.
func (t *PatternTracker) UpdatePattern(ctx context.Context, userID, documentType, conflictID string) (*types.UserEditingPattern, error) {
	p, err := t.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	p.DocumentTypes[documentType]++
	p.EditingTimes = append(p.EditingTimes, now)
	if t.maxEditingTimes > 0 && len(p.EditingTimes) > t.maxEditingTimes {
		p.EditingTimes = append([]time.Time(nil), p.EditingTimes[len(p.EditingTimes)-t.maxEditingTimes:]...)
	}
	if conflictID != "" {
		p.ConflictFrequency = p.ConflictFrequency*(1-t.alpha) + t.alpha
	}
	p.LastUpdated = now

	return p, t.Save(ctx, p)
}

// RecordResolution counts one more use of strategy by userID
func (t *PatternTracker) RecordResolution(ctx context.Context, userID string, strategy types.ResolutionStrategy) (*types.UserEditingPattern, error) {
	p, err := t.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.PreferredResolutions[strategy]++
	p.LastUpdated = t.now()
	return p, t.Save(ctx, p)
}

// loadOrCreate never replaces a stored pattern it failed to read
func (t *PatternTracker) loadOrCreate(ctx context.Context, userID string) (*types.UserEditingPattern, error) {
	p, err := t.Get(ctx, userID)
	if err != nil {
		t.logger.WarnContext(ctx, "Failed to load editing pattern", "operation", "get", "key", PatternKey(userID), "error", err)
		return nil, err
	}
	if p == nil {
		p = types.NewUserEditingPattern(userID)
	}
	return p, nil
}
