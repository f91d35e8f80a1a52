package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"logqueue/internal/model"
)

var ts = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func entries(ids ...string) []model.LogEntry {
	es := make([]model.LogEntry, len(ids))
	for i, id := range ids {
		es[i] = model.LogEntry{EventID: id, Message: "msg " + id, Level: model.LevelInfo, Timestamp: ts}
	}
	return es
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres), mock
}

const insertSQL = "INSERT INTO log_entries (event_id, message, level, timestamp) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8) ON CONFLICT (event_id) DO NOTHING"

func TestInsertEntriesCommits(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs("a", "msg a", "INFO", ts, "b", "msg b", "INFO", ts).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := s.InsertEntries(context.Background(), entries("a", "b"))
	if err != nil {
		t.Fatalf("insert returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestInsertEntriesSplitsLargeInputWithinOneTransaction(t *testing.T) {
	s, mock := newMock(t)
	ids := make([]string, maxInsertRows+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO log_entries").WillReturnResult(sqlmock.NewResult(0, maxInsertRows))
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4) ON CONFLICT")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := s.InsertEntries(context.Background(), entries(ids...))
	if err != nil {
		t.Fatalf("insert returned error: %v", err)
	}
	if n != int64(len(ids)) {
		t.Fatalf("expected %d inserted rows, got %d", len(ids), n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestInsertEntriesReportsConflictSkips(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := s.InsertEntries(context.Background(), entries("a", "b"))
	if err != nil {
		t.Fatalf("insert returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted row, got %d", n)
	}
}

func TestInsertEntriesRollsBackOnError(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO log_entries").WillReturnError(fmt.Errorf("insert failed"))
	mock.ExpectRollback()

	if _, err := s.InsertEntries(context.Background(), entries("a", "b")); err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestInsertEntriesCommitFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO log_entries").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit().WillReturnError(fmt.Errorf("connection lost"))

	_, err := s.InsertEntries(context.Background(), entries("a", "b"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("commit failure must not look like a duplicate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestInsertEntriesClassifiesUniqueViolation(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO log_entries").WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	_, err := s.InsertEntries(context.Background(), entries("a", "b"))
	if !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("underlying cause lost: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestInsertEntriesEmptyOpensNoTransaction(t *testing.T) {
	s, mock := newMock(t)

	n, err := s.InsertEntries(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestExistingEventIDs(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_id FROM log_entries WHERE event_id IN ($1, $2, $3)")).
		WithArgs("a", "b", "c").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow("c").AddRow("a").AddRow("a"))

	found, err := s.ExistingEventIDs(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("lookup returned error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 ids, got %v", found)
	}
	for _, id := range []string{"a", "c"} {
		if _, ok := found[id]; !ok {
			t.Fatalf("missing %q in %v", id, found)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestExistingEventIDsEmptySkipsQuery(t *testing.T) {
	s, mock := newMock(t)

	found, err := s.ExistingEventIDs(context.Background(), nil)
	if err != nil || len(found) != 0 {
		t.Fatalf("expected empty result, got %v, %v", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}

func TestExistingEventIDsQueryError(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("SELECT event_id").WillReturnError(fmt.Errorf("store unavailable"))

	if _, err := s.ExistingEventIDs(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSQLitePlaceholders(t *testing.T) {
	s := &Store{dialect: SQLite}
	q, args := s.insertQuery(entries("a"))
	want := "INSERT INTO log_entries (event_id, message, level, timestamp) VALUES (?, ?, ?, ?) ON CONFLICT (event_id) DO NOTHING"
	if q != want {
		t.Fatalf("query = %q, want %q", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"postgres": Postgres, "SQLite": SQLite} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("clickhouse"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
