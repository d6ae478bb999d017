package matchcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"rorsync/internal/logging"
	"rorsync/internal/records"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the cache database was written by another version.
var ErrSchemaMismatch = errors.New("match cache schema version mismatch")

// Entry is one cached matcher answer.
type Entry struct {
	Key      string
	Name     string
	Result   records.MatchResult
	CachedAt time.Time
}

// Cache persists matcher answers keyed by normalized organization name.
type Cache struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the cache database at path.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("match cache path required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	cache := &Cache{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "matchcache"),
		now:    time.Now,
	}
	if err := cache.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path returns the database location.
func (c *Cache) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Key normalizes an organization name for lookup: surrounding and repeated
// whitespace is collapsed, the text is case-folded, then NFC-composed.
func Key(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	if collapsed == "" {
		return ""
	}
	return norm.NFC.String(cases.Fold().String(collapsed))
}

// Lookup returns the cached result for name.
func (c *Cache) Lookup(ctx context.Context, name string) (records.MatchResult, bool, error) {
	key := Key(name)
	if c == nil || key == "" {
		return records.MatchResult{}, false, nil
	}
	var res records.MatchResult
	err := c.db.QueryRowContext(ctx,
		`SELECT score, ror_id, ror_name, substring, chosen, matching_type FROM matches WHERE key = ?`,
		key,
	).Scan(&res.Score, &res.RORID, &res.RORName, &res.Substring, &res.Chosen, &res.MatchingType)
	if errors.Is(err, sql.ErrNoRows) {
		return records.MatchResult{}, false, nil
	}
	if err != nil {
		return records.MatchResult{}, false, fmt.Errorf("lookup %q: %w", key, err)
	}
	return res, true, nil
}

// Store records the matcher answer for name, replacing any earlier entry.
func (c *Cache) Store(ctx context.Context, name string, result records.MatchResult) error {
	key := Key(name)
	if key == "" {
		return errors.New("name cannot be empty")
	}
	if c == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO matches (key, name, score, ror_id, ror_name, substring, chosen, matching_type, cached_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    name = excluded.name,
    score = excluded.score,
    ror_id = excluded.ror_id,
    ror_name = excluded.ror_name,
    substring = excluded.substring,
    chosen = excluded.chosen,
    matching_type = excluded.matching_type,
    cached_at = excluded.cached_at`,
		key, strings.TrimSpace(name),
		result.Score, result.RORID, result.RORName, result.Substring, result.Chosen, result.MatchingType,
		c.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store %q: %w", key, err)
	}
	c.logger.Debug("cached match",
		logging.String("name", name),
		logging.String(logging.FieldRORID, result.RORID))
	return nil
}

// Remove deletes the entry for name.
func (c *Cache) Remove(ctx context.Context, name string) error {
	key := Key(name)
	if key == "" {
		return errors.New("name cannot be empty")
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM matches WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("name %q not found in cache", name)
	}
	return nil
}

// List returns every entry, newest first.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT key, name, score, ror_id, ror_name, substring, chosen, matching_type, cached_at
FROM matches ORDER BY cached_at DESC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			cachedAt int64
		)
		r := &entry.Result
		if err := rows.Scan(&entry.Key, &entry.Name, &r.Score, &r.RORID, &r.RORName, &r.Substring, &r.Chosen, &r.MatchingType, &cachedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		entry.CachedAt = time.Unix(cachedAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of cached entries.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return n, nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM matches`); err != nil {
		return fmt.Errorf("clear matches: %w", err)
	}
	c.logger.Debug("cleared match cache")
	return nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	var tableExists int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return c.createSchema(ctx)
	}

	var version int
	if err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'rorsync cache clear' or delete %s)",
			ErrSchemaMismatch, version, schemaVersion, c.path)
	}
	return nil
}

func (c *Cache) createSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
