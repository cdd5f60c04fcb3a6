package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// InMemoryBackend keeps everything in process memory. It backs tests and single-node demos.
type InMemoryBackend struct {
	mu      sync.RWMutex
	records map[string]map[string]json.RawMessage
	notes   map[string][]string
	closed  bool
}

// NewInMemoryBackend creates an empty in-process backend
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		records: make(map[string]map[string]json.RawMessage),
		notes:   make(map[string][]string),
	}
}

func (m *InMemoryBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	bucket, ok := m.records[owner]
	if !ok {
		bucket = make(map[string]json.RawMessage)
		m.records[owner] = bucket
	}
	bucket[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (m *InMemoryBackend) Get(ctx context.Context, key, owner string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	value, ok := m.records[owner][key]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), value...), nil
}

// Search scans records in key order, then notes in insertion order
func (m *InMemoryBackend) Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	terms := queryTerms(query)
	results := emptyResults()
	full := func() bool { return limit > 0 && len(results.Results) >= limit }

	bucket := m.records[owner]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if full() {
			return results, nil
		}
		text := searchableText(k, bucket[k])
		if matchesTerms(text, terms) {
			results.Results = append(results.Results, SearchResult{Text: text})
		}
	}
	for _, note := range m.notes[owner] {
		if full() {
			break
		}
		if matchesTerms(note, terms) {
			results.Results = append(results.Results, SearchResult{Text: note})
		}
	}
	return results, nil
}

func (m *InMemoryBackend) AppendNote(ctx context.Context, text, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.notes[owner] = append(m.notes[owner], text)
	return nil
}

// ListKeys returns the keys under owner starting with prefix, sorted
func (m *InMemoryBackend) ListKeys(ctx context.Context, prefix, owner string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	keys := []string{}
	for k := range m.records[owner] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Notes returns a copy of the notes appended for owner
func (m *InMemoryBackend) Notes(owner string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.notes[owner]...)
}

func (m *InMemoryBackend) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *InMemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
