// Package store is the daemon's single embedded relational persistence
// layer: SQLite in WAL mode with a dual read/write connection pool, typed
// CRUD per entity, and exported raw parameterized query execution (Exec,
// Query, QueryRow) that the typed methods are built on; no package outside
// store calls those three directly.
//
// Grounded on hugo-lorenzo-mato-quorum-ai's internal/adapters/state/sqlite.go:
// a single write *sql.DB capped at one open connection (SQLite only
// supports one writer), a separate read-only *sql.DB with a larger pool,
// busy-timeout pragmas, and exponential-backoff retry on SQLITE_BUSY.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clawd-io/clawd/internal/logging"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the daemon's persistence layer.
type Store struct {
	dbPath string
	db     *sql.DB // single writer
	readDB *sql.DB // many readers

	mu            sync.Mutex
	maxRetries    int
	baseRetryWait time.Duration

	slowQueryThreshold time.Duration
}

// Open opens (creating if necessary) the SQLite store at dbPath, runs
// pending migrations, and performs a startup integrity check.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=cache_size(-32000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	roDSN := dbPath + "?_pragma=journal_mode(WAL)&mode=ro&_pragma=busy_timeout(1000)&_pragma=foreign_keys(1)"
	readDB, err := sql.Open("sqlite", roDSN)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		dbPath:             dbPath,
		db:                 db,
		readDB:             readDB,
		maxRetries:         5,
		baseRetryWait:      100 * time.Millisecond,
		slowQueryThreshold: 200 * time.Millisecond,
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.integrityCheck(ctx); err != nil {
		logging.Warn().Err(err).Msg("store: startup integrity check reported problems")
	}

	return s, nil
}

// Close checkpoints the WAL and closes both connections. Called during
// graceful shutdown, after in-flight turns have drained and before exit.
func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logging.Warn().Err(err).Msg("store: wal checkpoint on shutdown failed")
	}
	var errs []error
	if err := s.readDB.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (s *Store) integrityCheck(ctx context.Context) error {
	var result string
	if err := s.readDB.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// migrate applies any migration embedded under migrations/ with a version
// higher than the one recorded in schema_migrations, in filename order.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	_ = s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version, ok := migrationVersion(name)
		if !ok || version <= current {
			continue
		}
		sqlText, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, string(sqlText)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func migrationVersion(filename string) (int, bool) {
	underscore := strings.IndexByte(filename, '_')
	if underscore <= 0 {
		return 0, false
	}
	v, err := strconv.Atoi(filename[:underscore])
	if err != nil {
		return 0, false
	}
	return v, true
}

// execWrite runs fn against the write connection, retrying with exponential
// backoff on SQLITE_BUSY, and logs slow queries.
func (s *Store) execWrite(ctx context.Context, label string, fn func() error) error {
	start := time.Now()
	defer func() {
		if d := time.Since(start); d > s.slowQueryThreshold {
			logging.Warn().Str("query", label).Dur("duration", d).Msg("store: slow write")
		}
	}()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		if attempt == s.maxRetries {
			break
		}
		wait := s.baseRetryWait * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last: %v)", label, ctx.Err(), lastErr)
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: max retries exceeded: %w", label, lastErr)
}

func (s *Store) queryRead(ctx context.Context, label string, fn func() error) error {
	start := time.Now()
	err := fn()
	if d := time.Since(start); d > s.slowQueryThreshold {
		logging.Warn().Str("query", label).Dur("duration", d).Msg("store: slow read")
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// Exec runs a raw parameterized write statement through the retry wrapper.
// Every call site must use placeholders; never interpolate SQL strings.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.execWrite(ctx, query, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// Query runs a raw parameterized read query against the read connection.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.queryRead(ctx, query, func() error {
		var qerr error
		rows, qerr = s.readDB.QueryContext(ctx, query, args...)
		return qerr
	})
	return rows, err
}

// QueryRow runs a raw parameterized single-row read query.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.readDB.QueryRowContext(ctx, query, args...)
}
