// Package memory defines the key/value/search backend the conflict engine persists through,
// together with its Redis, SQL, Qdrant and in-process implementations.
package memory

import (
	"context"
	"encoding/json"
	"strings"
)

// Backend is the minimal contract of a namespaced memory store addressed by (key, owner)
type Backend interface {
	// Put stores value under key with overwrite semantics
	Put(ctx context.Context, key string, value json.RawMessage, owner string) error
	// Get returns nil, nil when the key is absent
	Get(ctx context.Context, key, owner string) (json.RawMessage, error)
	// Search runs a free-text match over stored values and notes
	Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error)
	// AppendNote writes a free-text record to the learning sink
	AppendNote(ctx context.Context, text, owner string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// KeyLister is implemented by backends that can enumerate keys by prefix without a text search
type KeyLister interface {
	ListKeys(ctx context.Context, prefix, owner string) ([]string, error)
}

// SearchResult is one matched record
type SearchResult struct {
	Text string `json:"text"`
}

// SearchResults wraps the matches of a search
type SearchResults struct {
	Results []SearchResult `json:"results"`
}

// Texts returns the text of every result
func (r *SearchResults) Texts() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Text)
	}
	return out
}

func emptyResults() *SearchResults {
	return &SearchResults{Results: []SearchResult{}}
}

// searchableText is how a stored value is exposed to search
func searchableText(key string, value json.RawMessage) string {
	return key + " " + string(value)
}

// queryTerms lowercases and splits a query on whitespace
func queryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// matchesTerms reports whether every term occurs in text, case-insensitively
func matchesTerms(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if !strings.Contains(lower, term) {
			return false
		}
	}
	return true
}
