// Package store persists log entries in a SQL database.
//
// Idempotence rests on the UNIQUE constraint on log_entries.event_id. Inserts
// use ON CONFLICT (event_id) DO NOTHING, so a repeated event id is skipped
// rather than failing the transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"logqueue/internal/model"
)

// Dialect selects the SQL flavor and database/sql driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect validates a configured driver name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case Postgres, SQLite:
		return d, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "pgx"
}

func (d Dialect) placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// Options tunes the connection pool. Zero values keep the driver defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *slog.Logger
}

// Store reads and writes log entries.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// New wraps an open database handle.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, logger: slog.Default()}
}

// Open connects to the database described by dsn and verifies the connection.
func Open(ctx context.Context, d Dialect, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d == SQLite {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := New(db, d)
	if opts.Logger != nil {
		s.logger = opts.Logger
	}
	return s, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dialect reports the SQL flavor of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// EnsureSchema creates the log_entries table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// ExistingEventIDs returns which of ids are already stored.
func (s *Store) ExistingEventIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT event_id FROM log_entries WHERE event_id IN (" + s.placeholders(1, len(ids)) + ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select event ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select event ids: %w", err)
	}
	return found, nil
}

// maxInsertRows bounds the rows of one INSERT statement. Four parameters per
// row stay well below the bind limits of SQLite (32766) and Postgres (65535).
const maxInsertRows = 1000

// InsertEntries writes entries in one transaction and returns the number of
// rows actually inserted. Large inputs are split into several statements
// within that transaction. The whole transaction is rolled back on any error.
// A unique violation is reported as model.ErrDuplicate.
func (s *Store) InsertEntries(ctx context.Context, entries []model.LogEntry) (inserted int64, err error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("error during transaction rollback", "original_error", err, "rollback_error", rbErr)
		}
		if IsUniqueViolation(err) {
			err = fmt.Errorf("%w: %w", model.ErrDuplicate, err)
		}
	}()

	for chunk := range slices.Chunk(entries, maxInsertRows) {
		query, args := s.insertQuery(chunk)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert log entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert log entries: %w", err)
		}
		inserted += n
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit log entries: %w", err)
	}
	return inserted, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, message, level, timestamp FROM log_entries ORDER BY id DESC LIMIT "+s.dialect.placeholder(1),
		limit)
	if err != nil {
		return nil, fmt.Errorf("select log entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var (
			e     model.LogEntry
			level string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Message, &level, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Level = model.Level(level)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select log entries: %w", err)
	}
	return entries, nil
}

func (s *Store) insertQuery(entries []model.LogEntry) (string, []any) {
	const cols = 4
	var b strings.Builder
	b.WriteString("INSERT INTO log_entries (event_id, message, level, timestamp) VALUES ")
	args := make([]any, 0, len(entries)*cols)
	for i, e := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.WriteString(s.placeholders(i*cols+1, cols))
		b.WriteString(")")
		args = append(args, e.EventID, e.Message, string(e.Level), e.Timestamp)
	}
	b.WriteString(" ON CONFLICT (event_id) DO NOTHING")
	return b.String(), args
}

// placeholders renders count bind parameters starting at position first.
func (s *Store) placeholders(first, count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = s.dialect.placeholder(first + i)
	}
	return strings.Join(ps, ", ")
}
