package conflict

import (
	"context"
	"time"

	"lerian-mcp-conflicts/internal/config"
	apperrors "lerian-mcp-conflicts/internal/errors"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/pkg/types"
)

// ResolveRequest carries a resolution chosen by a user or an automated process
type ResolveRequest struct {
	ConflictID string                   `json:"conflict_id"`
	Strategy   types.ResolutionStrategy `json:"strategy"`
	Content    string                   `json:"content"`
	ResolvedBy string                   `json:"resolved_by"`
	Reasoning  string                   `json:"reasoning,omitempty"`
}

// Resolver stamps conflicts as resolved
type Resolver struct {
	store        *Store
	patterns     *PatternTracker
	policy       string
	defaultActor string
	logger       logging.Logger
	now          func() time.Time
}

// NewResolver creates a resolver. Unattributed resolutions are credited to systemOwner.
func NewResolver(store *Store, patterns *PatternTracker, cfg config.ConflictConfig, systemOwner string, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	policy := cfg.ResolutionPolicy
	if policy == "" {
		policy = config.PolicyOverwrite
	}
	return &Resolver{
		store:        store,
		patterns:     patterns,
		policy:       policy,
		defaultActor: systemOwner,
		logger:       logger.WithComponent("conflict-resolver"),
		now:          time.Now,
	}
}

// Resolve applies req. It returns ErrInvalidStrategy for an unknown strategy, a
// not-found error when the conflict does not exist and an invalid-state error when the
// reject policy meets an already resolved conflict; persistence failures are logged only.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*types.EditingConflict, error) {
	if req.ConflictID == "" {
		return nil, apperrors.NewRequiredFieldError("conflict_id")
	}
	if !req.Strategy.Valid() {
		return nil, apperrors.NewInvalidStrategyError(string(req.Strategy))
	}

	c := r.store.Get(ctx, req.ConflictID)
	if c == nil {
		return nil, apperrors.NewNotFoundError("conflict", req.ConflictID)
	}

	if c.Resolved != nil && r.policy == config.PolicyReject {
		return nil, apperrors.NewInvalidStateError("conflict " + c.ID + " is already resolved")
	}

	actor := req.ResolvedBy
	if actor == "" {
		actor = r.defaultActor
	}
	if c.Resolved != nil && r.policy == config.PolicyAppendHistory {
		c.ResolutionHistory = append(c.ResolutionHistory, *c.Resolved)
	}
	c.Resolved = &types.Resolution{
		Content:    req.Content,
		Strategy:   req.Strategy,
		ResolvedBy: actor,
		Timestamp:  r.now(),
		Reasoning:  req.Reasoning,
	}

	if err := r.store.Update(ctx, c); err != nil {
		r.logger.WarnContext(ctx, "Resolution not persisted", "conflict_id", c.ID, "error", err)
	}
	r.store.note(ctx, resolutionNote(c))

	if _, err := r.patterns.RecordResolution(ctx, actor, req.Strategy); err != nil {
		r.logger.WarnContext(ctx, "Resolver pattern not updated", "user_id", actor, "error", err)
	}

	r.logger.InfoContext(ctx, "Conflict resolved",
		"conflict_id", c.ID,
		"document_id", c.DocumentID,
		"strategy", string(req.Strategy),
		"resolved_by", actor)
	return c, nil
}
