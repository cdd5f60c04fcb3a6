package conflict

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

const (
	conflictKeyPrefix       = "conflict-"
	defaultDocumentCacheLen = 1024
)

var conflictIDPattern = regexp.MustCompile(`conflict-([a-zA-Z0-9-]+)`)

// ConflictKey returns the backend key of a conflict
func ConflictKey(id string) string {
	return conflictKeyPrefix + id
}

// Store persists conflicts under the system owner and keeps a per-document LRU of what it has seen
type Store struct {
	backend     memory.Backend
	owner       string
	searchLimit int
	logger      logging.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, []*types.EditingConflict]
}

// NewStore creates a conflict store. cacheSize <= 0 selects the default size.
func NewStore(backend memory.Backend, owner string, searchLimit, cacheSize int, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if cacheSize <= 0 {
		cacheSize = defaultDocumentCacheLen
	}
	cache, err := lru.New[string, []*types.EditingConflict](cacheSize)
	if err != nil {
		// only returned for a non-positive size
		panic(fmt.Sprintf("conflict store cache: %v", err))
	}
	return &Store{
		backend:     backend,
		owner:       owner,
		searchLimit: searchLimit,
		logger:      logger.WithComponent("conflict-store"),
		cache:       cache,
	}
}

// Save persists a newly detected conflict, appends it to the document cache
// and writes a learning note. The put error is returned after logging; the note is best-effort.
func (s *Store) Save(ctx context.Context, c *types.EditingConflict) error {
	err := s.put(ctx, c)

	s.mu.Lock()
	if cached, ok := s.cache.Get(c.DocumentID); ok {
		s.cache.Add(c.DocumentID, append(cached, c.Clone()))
	}
	s.mu.Unlock()

	s.note(ctx, detectionNote(c))
	return err
}

// Update overwrites a stored conflict and refreshes its cache entry if present
func (s *Store) Update(ctx context.Context, c *types.EditingConflict) error {
	err := s.put(ctx, c)

	s.mu.Lock()
	if cached, ok := s.cache.Get(c.DocumentID); ok {
		next := make([]*types.EditingConflict, len(cached))
		copy(next, cached)
		for i, existing := range next {
			if existing.ID == c.ID {
				next[i] = c.Clone()
			}
		}
		s.cache.Add(c.DocumentID, next)
	}
	s.mu.Unlock()

	return err
}

func (s *Store) put(ctx context.Context, c *types.EditingConflict) error {
	value, err := encodeRecord(kindConflict, c)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, ConflictKey(c.ID), value, s.owner); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist conflict",
			"operation", "put",
			"key", ConflictKey(c.ID),
			"error", err)
		return err
	}
	return nil
}

// Note appends free text to the learning sink, logging failures
func (s *Store) note(ctx context.Context, text string) {
	if err := s.backend.AppendNote(ctx, text, s.owner); err != nil {
		s.logger.WarnContext(ctx, "Failed to append learning note", "operation", "append_note", "error", err)
	}
}

// Get returns the conflict with id, or nil when it is missing or the backend fails
func (s *Store) Get(ctx context.Context, id string) *types.EditingConflict {
	raw, err := s.backend.Get(ctx, ConflictKey(id), s.owner)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load conflict", "operation", "get", "key", ConflictKey(id), "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var c types.EditingConflict
	if err := decodeRecord(raw, kindConflict, &c); err != nil {
		s.logger.WarnContext(ctx, "Discarding unreadable conflict record", "key", ConflictKey(id), "error", err)
		return nil
	}
	return &c
}

// ForDocument returns every stored conflict of a document, oldest first
func (s *Store) ForDocument(ctx context.Context, documentID string) []*types.EditingConflict {
	if cached, ok := s.cache.Get(documentID); ok {
		return cloneAll(cached)
	}

	conflicts := s.fetch(ctx, s.conflictIDs(ctx, s.searchLimit, documentID), func(c *types.EditingConflict) bool {
		return c.DocumentID == documentID
	})

	s.mu.Lock()
	s.cache.Add(documentID, cloneAll(conflicts))
	s.mu.Unlock()
	return conflicts
}

// All returns the stored conflicts whose searchable text matches every qualifier, oldest first.
// The cache is bypassed.
func (s *Store) All(ctx context.Context, limit int, qualifiers ...string) []*types.EditingConflict {
	return s.fetch(ctx, s.conflictIDs(ctx, limit, qualifiers...), nil)
}

// Invalidate drops the cached conflicts of a document
func (s *Store) Invalidate(documentID string) {
	s.cache.Remove(documentID)
}

func (s *Store) fetch(ctx context.Context, ids []string, keep func(*types.EditingConflict) bool) []*types.EditingConflict {
	conflicts := make([]*types.EditingConflict, 0, len(ids))
	for _, id := range ids {
		c := s.Get(ctx, id)
		if c == nil || (keep != nil && !keep(c)) {
			continue
		}
		conflicts = append(conflicts, c)
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Detected.Before(conflicts[j].Detected)
	})
	return conflicts
}

// conflictIDs lists conflict ids through the backend key index when it has one,
// otherwise by parsing them out of a free-text search
func (s *Store) conflictIDs(ctx context.Context, limit int, qualifiers ...string) []string {
	if lister, ok := s.backend.(memory.KeyLister); ok {
		keys, err := lister.ListKeys(ctx, conflictKeyPrefix, s.owner)
		if err == nil {
			ids := make([]string, 0, len(keys))
			for _, k := range keys {
				ids = append(ids, strings.TrimPrefix(k, conflictKeyPrefix))
			}
			return ids
		}
		if !errors.Is(err, memory.ErrListUnsupported) {
			s.logger.WarnContext(ctx, "Key listing failed, falling back to search", "error", err)
		}
	}

	query := strings.Join(append([]string{"conflict"}, qualifiers...), " ")
	results, err := s.backend.Search(ctx, query, s.owner, limit)
	if err != nil {
		s.logger.WarnContext(ctx, "Conflict search failed", "operation", "search", "query", query, "error", err)
		return nil
	}
	return ParseConflictIDs(results.Texts())
}

// ParseConflictIDs extracts the distinct conflict ids referenced in texts, in first-seen order
func ParseConflictIDs(texts []string) []string {
	seen := make(map[string]struct{})
	ids := []string{}
	for _, text := range texts {
		for _, m := range conflictIDPattern.FindAllStringSubmatch(text, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			ids = append(ids, m[1])
		}
	}
	return ids
}

func cloneAll(in []*types.EditingConflict) []*types.EditingConflict {
	out := make([]*types.EditingConflict, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func detectionNote(c *types.EditingConflict) string {
	return fmt.Sprintf("Conflict %s detected in document %s (%s) section %q: severity %s, users %s",
		ConflictKey(c.ID), c.DocumentID, c.DocumentType, c.Section, c.Severity, strings.Join(participantIDs(c), ", "))
}

func resolutionNote(c *types.EditingConflict) string {
	return fmt.Sprintf("Conflict %s in document %s resolved by %s with strategy %s",
		ConflictKey(c.ID), c.DocumentID, c.Resolved.ResolvedBy, c.Resolved.Strategy)
}
