package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/memory"
	"lerian-mcp-conflicts/pkg/types"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("c%d", n)
	}
}

var errBackendDown = errors.New("backend down")

// faultyBackend hides ListKeys and fails selected operations
type faultyBackend struct {
	memory.Backend
	failPut       bool
	failGetPrefix string
	failSearch    bool
}

func (f *faultyBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	if f.failPut {
		return errBackendDown
	}
	return f.Backend.Put(ctx, key, value, owner)
}

func (f *faultyBackend) Get(ctx context.Context, key, owner string) (json.RawMessage, error) {
	if f.failGetPrefix != "" && strings.HasPrefix(key, f.failGetPrefix) {
		return nil, errBackendDown
	}
	return f.Backend.Get(ctx, key, owner)
}

func (f *faultyBackend) Search(ctx context.Context, query, owner string, limit int) (*memory.SearchResults, error) {
	if f.failSearch {
		return nil, errBackendDown
	}
	return f.Backend.Search(ctx, query, owner, limit)
}

type testEnv struct {
	backend memory.Backend
	clock   *fakeClock
	service *Service
	events  []types.ConflictEvent
}

func newTestEnv(t *testing.T, backend memory.Backend, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}
	env := &testEnv{backend: backend, clock: newFakeClock()}
	env.service = NewService(backend, cfg, nil,
		WithClock(env.clock.Now),
		WithIDGenerator(sequentialIDs()),
		WithEventPublisher(EventPublisherFunc(func(e types.ConflictEvent) {
			env.events = append(env.events, e)
		})),
	)
	return env
}

func edit(userID, content string, at time.Time) types.ConflictEdit {
	return types.ConflictEdit{ID: userID, Name: strings.ToUpper(userID[:1]) + userID[1:], Content: content, Timestamp: at}
}

func twoEditRequest(documentID, section string, end int, a, b types.ConflictEdit) DetectRequest {
	return DetectRequest{
		DocumentID:   documentID,
		DocumentType: "markdown",
		Section:      section,
		Position:     types.Position{Start: 0, End: end},
		Edits:        []types.ConflictEdit{a, b},
		Context:      types.ConflictContext{Before: "intro", After: "outro"},
	}
}
