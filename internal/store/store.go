// Package store persists the sync core's state in an embedded SQLite
// database: check-in records, the idempotency cache, and the minimal habit
// ownership table. Schema changes ship as embedded goose migrations.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// Store is the SQLite-backed implementation of the sync core's storage
// collaborators (checkin.Store, checkin.FeedStore).
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by domain.
	recordStmts  recordStatements
	requestStmts requestStatements
	habitStmts   habitStatements
}

type recordStatements struct {
	get, upsert, listChanges *sql.Stmt
}

type requestStatements struct {
	get, put, prune *sql.Stmt
}

type habitStatements struct {
	owner, put *sql.Stmt
}

// Open opens (or creates) the database at dbPath, applies pending
// migrations, and prepares all repeated statements. Use ":memory:" for
// tests. A nil logger falls back to slog.Default().
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening sync database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// SQLite allows one writer; the sole-writer pattern avoids SQLITE_BUSY
	// churn under concurrent push batches.
	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	logger.Info("sync database ready", slog.String("path", dbPath))

	return s, nil
}

// Close releases prepared statements and the underlying database handle.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.recordStmts.get, s.recordStmts.upsert, s.recordStmts.listChanges,
		s.requestStmts.get, s.requestStmts.put, s.requestStmts.prune,
		s.habitStmts.owner, s.habitStmts.put,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}

	return nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// --- SQL query constants, grouped by domain ---

const (
	sqlRecordColumns = `id, habit_id, day_key, completed_at, deleted,
		version, created_at, updated_at`

	sqlGetRecord = `SELECT ` + sqlRecordColumns + ` FROM completions WHERE id = ?`

	sqlUpsertRecord = `INSERT INTO completions (` + sqlRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			day_key      = excluded.day_key,
			completed_at = excluded.completed_at,
			deleted      = excluded.deleted,
			version      = excluded.version,
			updated_at   = excluded.updated_at`

	// Without an afterID the cursor is strictly timestamp-based; the OR
	// branch only engages for clients that echo the compound cursor.
	sqlListChanges = `SELECT c.id, c.habit_id, c.day_key, c.completed_at,
			c.deleted, c.version, c.created_at, c.updated_at
		FROM completions c
		JOIN habits h ON h.id = c.habit_id
		WHERE h.user_id = ?
		  AND (c.updated_at > ? OR (? != '' AND c.updated_at = ? AND c.id > ?))
		ORDER BY c.updated_at, c.id
		LIMIT ?`
)

const (
	sqlGetRequestResult = `SELECT result_json FROM request_log
		WHERE user_id = ? AND request_id = ?`

	sqlPutRequestResult = `INSERT INTO request_log
		(user_id, request_id, result_json, created_at)
		VALUES (?, ?, ?, ?)`

	sqlPruneRequestLog = `DELETE FROM request_log WHERE created_at < ?`
)

const (
	sqlHabitOwner = `SELECT user_id FROM habits WHERE id = ?`

	sqlPutHabit = `INSERT INTO habits (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`
)

// stmtDef maps a SQL string to the prepared statement pointer it populates.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func (s *Store) prepareStatements(ctx context.Context) error {
	defs := []stmtDef{
		{&s.recordStmts.get, sqlGetRecord, "get record"},
		{&s.recordStmts.upsert, sqlUpsertRecord, "upsert record"},
		{&s.recordStmts.listChanges, sqlListChanges, "list changes"},
		{&s.requestStmts.get, sqlGetRequestResult, "get request result"},
		{&s.requestStmts.put, sqlPutRequestResult, "put request result"},
		{&s.requestStmts.prune, sqlPruneRequestLog, "prune request log"},
		{&s.habitStmts.owner, sqlHabitOwner, "habit owner"},
		{&s.habitStmts.put, sqlPutHabit, "put habit"},
	}

	for i := range defs {
		stmt, err := s.db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}
