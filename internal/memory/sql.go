package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/logging"
)

// Dialect captures the SQL differences between the supported databases
type Dialect struct {
	Name          string
	Driver        string
	LikeOperator  string
	NoteIDColumn  string
	placeholderFn func(n int) string
}

// Placeholder returns the n-th (1-based) bind parameter
func (d Dialect) Placeholder(n int) string {
	return d.placeholderFn(n)
}

// PostgresDialect uses $N parameters and case-insensitive ILIKE
var PostgresDialect = Dialect{
	Name:          "postgres",
	Driver:        "postgres",
	LikeOperator:  "ILIKE",
	NoteIDColumn:  "id BIGSERIAL PRIMARY KEY",
	placeholderFn: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// SQLiteDialect uses ? parameters; LIKE is case-insensitive for ASCII in SQLite
var SQLiteDialect = Dialect{
	Name:          "sqlite",
	Driver:        "sqlite3",
	LikeOperator:  "LIKE",
	NoteIDColumn:  "id INTEGER PRIMARY KEY AUTOINCREMENT",
	placeholderFn: func(int) string { return "?" },
}

// SQLBackend persists records and notes in two tables
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
	logger  logging.Logger
	now     func() time.Time
}

// NewPostgresBackend opens a Postgres connection pool and creates the schema
func NewPostgresBackend(ctx context.Context, cfg config.PostgresConfig, logger logging.Logger) (*SQLBackend, error) {
	db, err := sql.Open(PostgresDialect.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return openSQLBackend(ctx, db, PostgresDialect, logger)
}

// NewSQLiteBackend opens an embedded SQLite file and creates the schema
func NewSQLiteBackend(ctx context.Context, cfg config.SQLiteConfig, logger logging.Logger) (*SQLBackend, error) {
	db, err := sql.Open(SQLiteDialect.Driver, cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.Path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY storms
	db.SetMaxOpenConns(1)
	return openSQLBackend(ctx, db, SQLiteDialect, logger)
}

func openSQLBackend(ctx context.Context, db *sql.DB, dialect Dialect, logger logging.Logger) (*SQLBackend, error) {
	backend := NewSQLBackend(db, dialect, logger)
	if err := backend.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

// NewSQLBackend wraps an open database handle without touching the schema
func NewSQLBackend(db *sql.DB, dialect Dialect, logger logging.Logger) *SQLBackend {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &SQLBackend{
		db:      db,
		dialect: dialect,
		logger:  logger.WithComponent(dialect.Name + "-backend"),
		now:     time.Now,
	}
}

// Initialize creates the tables if they do not exist
func (s *SQLBackend) Initialize(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memory_records (
			owner TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			searchable TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (owner, key)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_notes (
			%s,
			owner TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, s.dialect.NoteIDColumn),
		`CREATE INDEX IF NOT EXISTS memory_notes_owner_idx ON memory_notes (owner)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize %s schema: %w", s.dialect.Name, err)
		}
	}
	s.logger.Info("Memory schema ready", "dialect", s.dialect.Name)
	return nil
}

func (s *SQLBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	p := s.dialect.Placeholder
	query := fmt.Sprintf(`INSERT INTO memory_records (owner, key, value, searchable, updated_at)
		VALUES (%s, %s, %s, %s, %s)
		ON CONFLICT (owner, key) DO UPDATE SET value = excluded.value, searchable = excluded.searchable, updated_at = excluded.updated_at`,
		p(1), p(2), p(3), p(4), p(5))

	if _, err := s.db.ExecContext(ctx, query, owner, key, string(value), searchableText(key, value), s.now().UTC()); err != nil {
		return fmt.Errorf("%s put %s: %w", s.dialect.Name, key, err)
	}
	return nil
}

func (s *SQLBackend) Get(ctx context.Context, key, owner string) (json.RawMessage, error) {
	p := s.dialect.Placeholder
	query := fmt.Sprintf(`SELECT value FROM memory_records WHERE owner = %s AND key = %s`, p(1), p(2))

	var value string
	err := s.db.QueryRowContext(ctx, query, owner, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s get %s: %w", s.dialect.Name, key, err)
	}
	return json.RawMessage(value), nil
}

// termClause builds "<column> LIKE ? AND ..." for every term, starting at parameter index start
func (s *SQLBackend) termClause(column string, terms []string, start int) (string, []interface{}) {
	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms))
	for i, term := range terms {
		clauses = append(clauses, fmt.Sprintf("%s %s %s ESCAPE '\\'", column, s.dialect.LikeOperator, s.dialect.Placeholder(start+i)))
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func (s *SQLBackend) Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error) {
	terms := queryTerms(query)
	if limit <= 0 {
		limit = 1000
	}
	results := emptyResults()

	clause, termArgs := s.termClause("searchable", terms, 2)
	recordQuery := fmt.Sprintf(`SELECT searchable FROM memory_records WHERE owner = %s%s ORDER BY key LIMIT %d`,
		s.dialect.Placeholder(1), clause, limit)
	if err := s.collect(ctx, recordQuery, append([]interface{}{owner}, termArgs...), results); err != nil {
		return nil, err
	}

	remaining := limit - len(results.Results)
	if remaining <= 0 {
		return results, nil
	}
	clause, termArgs = s.termClause("text", terms, 2)
	noteQuery := fmt.Sprintf(`SELECT text FROM memory_notes WHERE owner = %s%s ORDER BY id LIMIT %d`,
		s.dialect.Placeholder(1), clause, remaining)
	if err := s.collect(ctx, noteQuery, append([]interface{}{owner}, termArgs...), results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SQLBackend) collect(ctx context.Context, query string, args []interface{}, into *SearchResults) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s search: %w", s.dialect.Name, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return fmt.Errorf("%s search scan: %w", s.dialect.Name, err)
		}
		into.Results = append(into.Results, SearchResult{Text: text})
	}
	return rows.Err()
}

func (s *SQLBackend) AppendNote(ctx context.Context, text, owner string) error {
	p := s.dialect.Placeholder
	query := fmt.Sprintf(`INSERT INTO memory_notes (owner, text, created_at) VALUES (%s, %s, %s)`, p(1), p(2), p(3))
	if _, err := s.db.ExecContext(ctx, query, owner, text, s.now().UTC()); err != nil {
		return fmt.Errorf("%s append note: %w", s.dialect.Name, err)
	}
	return nil
}

// ListKeys uses the primary key index for prefix lookups
func (s *SQLBackend) ListKeys(ctx context.Context, prefix, owner string) ([]string, error) {
	p := s.dialect.Placeholder
	query := fmt.Sprintf(`SELECT key FROM memory_records WHERE owner = %s AND key LIKE %s ESCAPE '\' ORDER BY key`, p(1), p(2))

	rows, err := s.db.QueryContext(ctx, query, owner, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("%s list keys: %w", s.dialect.Name, err)
	}
	defer func() { _ = rows.Close() }()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%s list keys scan: %w", s.dialect.Name, err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLBackend) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLBackend) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
