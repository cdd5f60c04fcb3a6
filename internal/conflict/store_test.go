package conflict

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

func sampleConflict(id, documentID, section string, detected time.Time) *types.EditingConflict {
	return &types.EditingConflict{
		ID:           id,
		DocumentID:   documentID,
		DocumentType: "markdown",
		Section:      section,
		Position:     types.Position{Start: 0, End: 10},
		Users: []types.ConflictEdit{
			edit("alice", "one", detected),
			edit("bob", "two", detected.Add(time.Second)),
		},
		Severity: types.SeverityLow,
		Detected: detected,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	backend := memory.NewInMemoryBackend()
	store := NewStore(backend, "system", 100, 0, nil)
	ctx := context.Background()

	c := sampleConflict("abc", "doc-1", "intro", baseTime)
	require.NoError(t, store.Save(ctx, c))

	got := store.Get(ctx, "abc")
	require.NotNil(t, got)
	assert.Equal(t, c.DocumentID, got.DocumentID)
	assert.Len(t, got.Users, 2)
	assert.True(t, got.Detected.Equal(baseTime))

	assert.Nil(t, store.Get(ctx, "missing"))

	notes := backend.Notes("system")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "conflict-abc")
	assert.Contains(t, notes[0], "doc-1")
}

func TestStore_GetSwallowsBackendErrors(t *testing.T) {
	backend := &faultyBackend{Backend: memory.NewInMemoryBackend(), failGetPrefix: "conflict-"}
	store := NewStore(backend, "system", 100, 0, nil)

	assert.Nil(t, store.Get(context.Background(), "abc"))
}

func TestStore_GetReadsRecordsWithoutEnvelope(t *testing.T) {
	backend := memory.NewInMemoryBackend()
	store := NewStore(backend, "system", 100, 0, nil)
	ctx := context.Background()

	raw, err := json.Marshal(sampleConflict("legacy", "doc-1", "intro", baseTime))
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, "conflict-legacy", raw, "system"))

	got := store.Get(ctx, "legacy")
	require.NotNil(t, got)
	assert.Equal(t, "doc-1", got.DocumentID)
}

func TestStore_RejectsForeignKinds(t *testing.T) {
	backend := memory.NewInMemoryBackend()
	store := NewStore(backend, "system", 100, 0, nil)
	ctx := context.Background()

	value, err := encodeRecord(kindPattern, types.NewUserEditingPattern("alice"))
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, "conflict-odd", value, "system"))

	assert.Nil(t, store.Get(ctx, "odd"))
}

func TestStore_ForDocument(t *testing.T) {
	backends := map[string]memory.Backend{
		"key index": memory.NewInMemoryBackend(),
		"search":    &faultyBackend{Backend: memory.NewInMemoryBackend()},
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			writer := NewStore(backend, "system", 100, 0, nil)
			require.NoError(t, writer.Save(ctx, sampleConflict("c2", "doc-1", "body", baseTime.Add(time.Hour))))
			require.NoError(t, writer.Save(ctx, sampleConflict("c1", "doc-1", "intro", baseTime)))
			require.NoError(t, writer.Save(ctx, sampleConflict("c3", "doc-2", "intro", baseTime)))

			// a fresh store has a cold cache and must rebuild from the backend
			reader := NewStore(backend, "system", 100, 0, nil)
			got := reader.ForDocument(ctx, "doc-1")
			require.Len(t, got, 2)
			assert.Equal(t, "c1", got[0].ID)
			assert.Equal(t, "c2", got[1].ID)

			assert.Empty(t, reader.ForDocument(ctx, "doc-unknown"))
		})
	}
}

func TestStore_ForDocumentSearchFailure(t *testing.T) {
	backend := &faultyBackend{Backend: memory.NewInMemoryBackend(), failSearch: true}
	store := NewStore(backend, "system", 100, 0, nil)

	got := store.ForDocument(context.Background(), "doc-1")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_CacheFollowsSavesAndUpdates(t *testing.T) {
	backend := memory.NewInMemoryBackend()
	store := NewStore(backend, "system", 100, 0, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleConflict("c1", "doc-1", "intro", baseTime)))
	require.Len(t, store.ForDocument(ctx, "doc-1"), 1)

	require.NoError(t, store.Save(ctx, sampleConflict("c2", "doc-1", "intro", baseTime.Add(time.Minute))))
	cached := store.ForDocument(ctx, "doc-1")
	require.Len(t, cached, 2)

	// mutating a returned conflict must not leak into the cache
	cached[0].Section = "mutated"

	updated := sampleConflict("c1", "doc-1", "intro", baseTime)
	updated.Resolved = &types.Resolution{Strategy: types.StrategyManual, ResolvedBy: "alice", Timestamp: baseTime.Add(time.Hour)}
	require.NoError(t, store.Update(ctx, updated))

	got := store.ForDocument(ctx, "doc-1")
	require.Len(t, got, 2)
	assert.Equal(t, "intro", got[0].Section)
	require.NotNil(t, got[0].Resolved)
	assert.Equal(t, types.StrategyManual, got[0].Resolved.Strategy)

	store.Invalidate("doc-1")
	assert.Len(t, store.ForDocument(ctx, "doc-1"), 2)
}

func TestStore_SaveReportsPutFailure(t *testing.T) {
	backend := &faultyBackend{Backend: memory.NewInMemoryBackend(), failPut: true}
	store := NewStore(backend, "system", 100, 0, nil)

	err := store.Save(context.Background(), sampleConflict("c1", "doc-1", "intro", baseTime))
	assert.ErrorIs(t, err, errBackendDown)
}

func TestParseConflictIDs(t *testing.T) {
	texts := []string{
		`conflict-abc-123 {"id":"abc-123"}`,
		"Conflict conflict-abc-123 resolved by bob",
		"Conflict conflict-def detected, see also conflict-ghi",
		"no ids here",
	}
	assert.Equal(t, []string{"abc-123", "def", "ghi"}, ParseConflictIDs(texts))
	assert.Empty(t, ParseConflictIDs(nil))
}
