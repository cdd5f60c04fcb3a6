package conflict

import (
	"context"
	"fmt"
	"sort"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/pkg/types"
)

// Confidence levels reported by the suggestion engine
const (
	confidenceFailure             = 0.3
	confidenceDefault             = 0.5
	confidenceCollaboratorMerge   = 0.7
	confidenceCollaboratorNewest  = 0.75
	confidenceCollaboratorOwnEdit = 0.8
	confidenceHistoryEdge         = 0.8
	confidenceHistoryOwnEdit      = 0.85
	confidenceHistoryMerge        = 0.75
	confidenceHistoryOther        = 0.6
)

var backfillStrategies = []types.ResolutionStrategy{
	types.StrategyManual,
	types.StrategySmartMerge,
	types.StrategyAcceptNewest,
}

// SuggestionEngine recommends a resolution from the requesting user's history
// and the habits of the people they usually collide with
type SuggestionEngine struct {
	store             *Store
	patterns          *PatternTracker
	collaboratorFloor int
	historyFloor      int
	logger            logging.Logger
}

// NewSuggestionEngine creates an engine with the thresholds from cfg
func NewSuggestionEngine(store *Store, patterns *PatternTracker, cfg config.ConflictConfig, logger logging.Logger) *SuggestionEngine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &SuggestionEngine{
		store:             store,
		patterns:          patterns,
		collaboratorFloor: cfg.PreferredCollaboratorFrequency,
		historyFloor:      cfg.StrategyHistoryThreshold,
		logger:            logger.WithComponent("suggestion-engine"),
	}
}

// Suggest never fails: missing data or backend errors yield a low-confidence suggestion
func (e *SuggestionEngine) Suggest(ctx context.Context, conflictID, userID string) *types.ResolutionSuggestion {
	c := e.store.Get(ctx, conflictID)
	if c == nil {
		return fallbackSuggestion(conflictID, "conflict not found, manual review recommended")
	}

	pattern, err := e.patterns.Get(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "Suggestion degraded after backend failure", "conflict_id", conflictID, "user_id", userID, "error", err)
		return fallbackSuggestion(conflictID, "history unavailable, manual review recommended")
	}
	if pattern == nil {
		return defaultSuggestion(c)
	}

	ranked := rankStrategies(pattern.PreferredResolutions)
	e.refreshCollaborators(ctx, pattern)

	if s := e.fromCollaborator(c, pattern, ranked); s != nil {
		return s
	}
	if s := e.fromHistory(c, pattern, ranked); s != nil {
		return s
	}
	return defaultSuggestion(c)
}

func (e *SuggestionEngine) fromCollaborator(c *types.EditingConflict, pattern *types.UserEditingPattern, ranked []types.ResolutionStrategy) *types.ResolutionSuggestion {
	for _, other := range c.Users {
		if other.ID == pattern.UserID {
			continue
		}
		collab, ok := pattern.Collaborators[other.ID]
		if !ok || collab.Frequency <= e.collaboratorFloor {
			continue
		}

		s := &types.ResolutionSuggestion{ConflictID: c.ID}
		switch collab.PreferredResolution {
		case types.StrategyPreferUser:
			s.SuggestedStrategy = types.StrategyPreferUser
			s.SuggestedContent = ownContent(c, pattern.UserID)
			s.Confidence = confidenceCollaboratorOwnEdit
			s.Reasoning = fmt.Sprintf("conflicts with %s are usually settled by keeping one author's version", other.ID)
		case types.StrategyAcceptNewest:
			s.SuggestedStrategy = types.StrategyAcceptNewest
			s.SuggestedContent = newestContent(c.Users)
			s.Confidence = confidenceCollaboratorNewest
			s.Reasoning = fmt.Sprintf("conflicts with %s are usually settled by accepting the newest edit", other.ID)
		default:
			s.SuggestedStrategy = types.StrategySmartMerge
			s.SuggestedContent = MergedContent(c)
			s.Confidence = confidenceCollaboratorMerge
			s.Reasoning = fmt.Sprintf("frequent collaborator %s, smart merge recommended", other.ID)
		}
		s.AlternativeStrategies = alternatives(ranked, s.SuggestedStrategy)
		return s
	}
	return nil
}

func (e *SuggestionEngine) fromHistory(c *types.EditingConflict, pattern *types.UserEditingPattern, ranked []types.ResolutionStrategy) *types.ResolutionSuggestion {
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]
	uses := pattern.PreferredResolutions[top]
	if uses <= e.historyFloor {
		return nil
	}

	s := &types.ResolutionSuggestion{
		ConflictID:        c.ID,
		SuggestedStrategy: top,
		Reasoning:         fmt.Sprintf("you resolved %d conflicts with %s", uses, top),
	}
	switch top {
	case types.StrategyAcceptNewest:
		s.SuggestedContent = newestContent(c.Users)
		s.Confidence = confidenceHistoryEdge
	case types.StrategyAcceptOldest:
		s.SuggestedContent = oldestContent(c.Users)
		s.Confidence = confidenceHistoryEdge
	case types.StrategyPreferUser:
		s.SuggestedContent = ownContent(c, pattern.UserID)
		s.Confidence = confidenceHistoryOwnEdit
	case types.StrategyMergeChanges, types.StrategySmartMerge:
		s.SuggestedContent = MergedContent(c)
		s.Confidence = confidenceHistoryMerge
	default:
		s.SuggestedContent = MergedContent(c)
		s.Confidence = confidenceHistoryOther
	}
	s.AlternativeStrategies = alternatives(ranked, top)
	return s
}

// refreshCollaborators rebuilds the user's collaborator entries from every conflict the
// user took part in, across documents, and persists them best-effort
func (e *SuggestionEngine) refreshCollaborators(ctx context.Context, pattern *types.UserEditingPattern) {
	history := e.store.All(ctx, e.store.searchLimit, pattern.UserID)
	rebuilt := BuildCollaborators(pattern.UserID, history)
	if len(rebuilt) == 0 {
		return
	}
	for id, collab := range rebuilt {
		pattern.Collaborators[id] = collab
	}
	if err := e.patterns.Save(ctx, pattern); err != nil {
		e.logger.DebugContext(ctx, "Collaborator refresh not persisted", "user_id", pattern.UserID, "error", err)
	}
}

// BuildCollaborators derives collaborator entries for userID from conflicts they took part in.
// Frequency counts shared conflicts, Conflicts counts the shared ones still open, and
// PreferredResolution is the strategy the collaborator used most when resolving them.
func BuildCollaborators(userID string, history []*types.EditingConflict) map[string]*types.CollaboratorPattern {
	out := make(map[string]*types.CollaboratorPattern)
	used := make(map[string]map[types.ResolutionStrategy]int)

	for _, c := range history {
		if !c.HasParticipant(userID) {
			continue
		}
		for _, u := range c.Users {
			if u.ID == userID {
				continue
			}
			collab, ok := out[u.ID]
			if !ok {
				collab = &types.CollaboratorPattern{UserID: u.ID}
				out[u.ID] = collab
				used[u.ID] = make(map[types.ResolutionStrategy]int)
			}
			collab.Frequency++
			if !c.IsResolved() {
				collab.Conflicts++
			} else if c.Resolved.ResolvedBy == u.ID {
				used[u.ID][c.Resolved.Strategy]++
			}
		}
	}

	for id, collab := range out {
		if ranked := rankStrategies(used[id]); len(ranked) > 0 {
			collab.PreferredResolution = ranked[0]
		}
	}
	return out
}

// MergedContent is the newest participant's content. It stands in for a real text merge.
func MergedContent(c *types.EditingConflict) string {
	if c == nil {
		return ""
	}
	return newestContent(c.Users)
}

func newestContent(edits []types.ConflictEdit) string {
	if len(edits) == 0 {
		return ""
	}
	newest := edits[0]
	for _, e := range edits[1:] {
		if e.Timestamp.After(newest.Timestamp) {
			newest = e
		}
	}
	return newest.Content
}

func oldestContent(edits []types.ConflictEdit) string {
	if len(edits) == 0 {
		return ""
	}
	oldest := edits[0]
	for _, e := range edits[1:] {
		if e.Timestamp.Before(oldest.Timestamp) {
			oldest = e
		}
	}
	return oldest.Content
}

// ownContent falls back to the merged content when the user made none of the edits
func ownContent(c *types.EditingConflict, userID string) string {
	if edit, ok := c.Participant(userID); ok {
		return edit.Content
	}
	return MergedContent(c)
}

// rankStrategies orders used strategies by count, descending; ties keep declaration order
func rankStrategies(counts map[types.ResolutionStrategy]int) []types.ResolutionStrategy {
	ranked := make([]types.ResolutionStrategy, 0, len(counts))
	for _, s := range types.AllStrategies() {
		if counts[s] > 0 {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})
	return ranked
}

// alternatives returns two strategies other than chosen, from history first and then the backfill list
func alternatives(ranked []types.ResolutionStrategy, chosen types.ResolutionStrategy) []types.ResolutionStrategy {
	out := make([]types.ResolutionStrategy, 0, 2)
	add := func(s types.ResolutionStrategy) {
		if len(out) == 2 || s == chosen {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}
	for _, s := range ranked {
		add(s)
	}
	for _, s := range backfillStrategies {
		add(s)
	}
	return out
}

func defaultSuggestion(c *types.EditingConflict) *types.ResolutionSuggestion {
	return &types.ResolutionSuggestion{
		ConflictID:            c.ID,
		SuggestedStrategy:     types.StrategySmartMerge,
		SuggestedContent:      MergedContent(c),
		Confidence:            confidenceDefault,
		Reasoning:             "smart merge recommended",
		AlternativeStrategies: []types.ResolutionStrategy{types.StrategyAcceptNewest, types.StrategyManual},
	}
}

func fallbackSuggestion(conflictID, reasoning string) *types.ResolutionSuggestion {
	return &types.ResolutionSuggestion{
		ConflictID:            conflictID,
		SuggestedStrategy:     types.StrategySmartMerge,
		SuggestedContent:      "",
		Confidence:            confidenceFailure,
		Reasoning:             reasoning,
		AlternativeStrategies: []types.ResolutionStrategy{types.StrategyManual, types.StrategyAcceptNewest},
	}
}
