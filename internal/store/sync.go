package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/summitlabs/summit-api/internal/checkin"
)

// Compile-time checks that the store satisfies the sync core's collaborator
// interfaces.
var (
	_ checkin.Store     = (*Store)(nil)
	_ checkin.Tx        = (*sqlTx)(nil)
	_ checkin.FeedStore = (*Store)(nil)
)

// InTx runs fn inside one SQL transaction. Record mutations and idempotency
// entries written by fn commit together or not at all; any error from fn
// (including per-call aborts like ownership violations) rolls everything
// back.
func (s *Store) InTx(ctx context.Context, fn func(checkin.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}

	return nil
}

// sqlTx is the transaction-scoped view handed to the reconciler. It reuses
// the store's prepared statements bound to the transaction.
type sqlTx struct {
	tx    *sql.Tx
	store *Store
}

// CachedResult returns the cached outcome for (user, requestID), or nil if
// this request has never reached a terminal outcome.
func (t *sqlTx) CachedResult(ctx context.Context, user checkin.UserID, requestID string) (*checkin.PushResult, error) {
	var resultJSON string

	err := t.tx.StmtContext(ctx, t.store.requestStmts.get).
		QueryRowContext(ctx, user.String(), requestID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading request log: %w", err)
	}

	var res checkin.PushResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return nil, fmt.Errorf("store: decoding cached result %s: %w", requestID, err)
	}

	return &res, nil
}

// SaveResult records the terminal outcome for (user, requestID). Entries
// are immutable: a duplicate insert is a bug upstream and surfaces as a
// constraint error.
func (t *sqlTx) SaveResult(ctx context.Context, user checkin.UserID, requestID string, res checkin.PushResult) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("store: encoding result %s: %w", requestID, err)
	}

	_, err = t.tx.StmtContext(ctx, t.store.requestStmts.put).
		ExecContext(ctx, user.String(), requestID, string(resultJSON), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("store: writing request log %s: %w", requestID, err)
	}

	return nil
}

// Record loads a check-in record by its client-generated id, or (nil, nil)
// when none exists.
func (t *sqlTx) Record(ctx context.Context, id string) (*checkin.Record, error) {
	row := t.tx.StmtContext(ctx, t.store.recordStmts.get).QueryRowContext(ctx, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading record %s: %w", id, err)
	}

	return rec, nil
}

// PutRecord creates or updates a record. habit_id and created_at are only
// written on insert; updates can never move a record across habits.
func (t *sqlTx) PutRecord(ctx context.Context, rec *checkin.Record) error {
	_, err := t.tx.StmtContext(ctx, t.store.recordStmts.upsert).ExecContext(ctx,
		rec.ID, rec.HabitID, rec.DayKey, rec.CompletedAt.UnixNano(),
		boolToInt(rec.Deleted), rec.Version,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store: upserting record %s: %w", rec.ID, err)
	}

	return nil
}

// HabitOwner resolves a habit to its owning user within the transaction.
func (t *sqlTx) HabitOwner(ctx context.Context, habitID string) (checkin.UserID, error) {
	var raw string

	err := t.tx.StmtContext(ctx, t.store.habitStmts.owner).
		QueryRowContext(ctx, habitID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, checkin.ErrHabitNotFound
	}

	if err != nil {
		return uuid.Nil, fmt.Errorf("store: reading habit %s: %w", habitID, err)
	}

	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: habit %s has malformed owner %q: %w", habitID, raw, err)
	}

	return owner, nil
}

// ListChanges returns up to limit records owned by user strictly after the
// (since, afterID) cursor, ordered by (updated_at, id), plus whether more
// matching records exist beyond the page. An empty afterID means a plain
// strict timestamp cursor: records tied at exactly since are excluded.
func (s *Store) ListChanges(
	ctx context.Context, user checkin.UserID, since time.Time, afterID string, limit int,
) ([]checkin.Record, bool, error) {
	sinceNanos := int64(0)
	if !since.IsZero() {
		sinceNanos = since.UnixNano()
	}

	// Fetch one extra row to learn whether another page exists.
	rows, err := s.recordStmts.listChanges.QueryContext(ctx,
		user.String(), sinceNanos, afterID, sinceNanos, afterID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("store: listing changes: %w", err)
	}
	defer rows.Close()

	var records []checkin.Record

	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, false, fmt.Errorf("store: scanning change row: %w", scanErr)
		}

		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("store: iterating change rows: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	return records, hasMore, nil
}

// PutHabit creates (or renames) a habit owned by user. The sync core only
// reads this table; writes come from fixtures and the habit CLI command.
func (s *Store) PutHabit(ctx context.Context, habitID string, owner checkin.UserID, name string) error {
	_, err := s.habitStmts.put.ExecContext(ctx,
		habitID, owner.String(), name, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("store: putting habit %s: %w", habitID, err)
	}

	return nil
}

// PruneRequestLog deletes idempotency entries created before cutoff and
// returns the number removed. Retries older than the retention window are
// re-evaluated from scratch, which is safe: the version guard still rejects
// anything stale.
func (s *Store) PruneRequestLog(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.requestStmts.prune.ExecContext(ctx, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: pruning request log: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune rows affected: %w", err)
	}

	if n > 0 {
		s.logger.Info("pruned idempotency entries",
			slog.Int64("count", n),
			slog.Time("cutoff", cutoff),
		)
	}

	return n, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*checkin.Record, error) {
	var (
		rec                               checkin.Record
		completedAt, createdAt, updatedAt int64
		deleted                           int
	)

	err := row.Scan(&rec.ID, &rec.HabitID, &rec.DayKey, &completedAt,
		&deleted, &rec.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.CompletedAt = time.Unix(0, completedAt).UTC()
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	rec.Deleted = deleted != 0

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
