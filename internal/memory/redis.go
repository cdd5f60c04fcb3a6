package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/logging"
)

const redisScanCount = 200

// RedisBackend stores records as plain string keys and notes as a capped list per owner
type RedisBackend struct {
	client   *redis.Client
	prefix   string
	maxNotes int64
	logger   logging.Logger
}

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(ctx context.Context, cfg config.RedisConfig, logger logging.Logger) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisBackendWithClient(client, cfg.KeyPrefix, cfg.MaxNotes, logger), nil
}

// NewRedisBackendWithClient wraps an existing client
func NewRedisBackendWithClient(client *redis.Client, prefix string, maxNotes int, logger logging.Logger) *RedisBackend {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if prefix == "" {
		prefix = "conflicts"
	}
	return &RedisBackend{
		client:   client,
		prefix:   prefix,
		maxNotes: int64(maxNotes),
		logger:   logger.WithComponent("redis-backend"),
	}
}

func (r *RedisBackend) recordKey(owner, key string) string {
	return fmt.Sprintf("%s:%s:rec:%s", r.prefix, owner, key)
}

func (r *RedisBackend) notesKey(owner string) string {
	return fmt.Sprintf("%s:%s:notes", r.prefix, owner)
}

func (r *RedisBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	if err := r.client.Set(ctx, r.recordKey(owner, key), []byte(value), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, key, owner string) (json.RawMessage, error) {
	data, err := r.client.Get(ctx, r.recordKey(owner, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return json.RawMessage(data), nil
}

// Search scans the owner's records and notes; Redis has no text index so matching happens client side
func (r *RedisBackend) Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error) {
	terms := queryTerms(query)
	results := emptyResults()
	full := func() bool { return limit > 0 && len(results.Results) >= limit }

	keys, err := r.ListKeys(ctx, "", owner)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if full() {
			return results, nil
		}
		value, err := r.Get(ctx, key, owner)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue // expired between scan and get
		}
		text := searchableText(key, value)
		if matchesTerms(text, terms) {
			results.Results = append(results.Results, SearchResult{Text: text})
		}
	}

	notes, err := r.client.LRange(ctx, r.notesKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange notes: %w", err)
	}
	for _, note := range notes {
		if full() {
			break
		}
		if matchesTerms(note, terms) {
			results.Results = append(results.Results, SearchResult{Text: note})
		}
	}
	return results, nil
}

func (r *RedisBackend) AppendNote(ctx context.Context, text, owner string) error {
	key := r.notesKey(owner)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, text)
	if r.maxNotes > 0 {
		pipe.LTrim(ctx, key, -r.maxNotes, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append note: %w", err)
	}
	return nil
}

// ListKeys walks the owner's keyspace with SCAN
func (r *RedisBackend) ListKeys(ctx context.Context, prefix, owner string) ([]string, error) {
	base := r.recordKey(owner, "")
	pattern := escapeGlob(base) + escapeGlob(prefix) + "*"

	keys := []string{}
	iter := r.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), base))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisBackend) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	r.logger.Info("Closing redis connection")
	return r.client.Close()
}

func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(s)
}
