package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store is the transactional record store the reconciler commits through.
// InTx runs fn inside one storage transaction: every record mutation and
// idempotency entry written by fn persists atomically, or none do.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the per-transaction view of the store. Record returns (nil, nil)
// when no record exists with the given id. HabitOwner is the one window the
// sync core has into the rest of the habit API; it reads through the same
// transaction so ownership and record state are judged against one
// consistent snapshot.
type Tx interface {
	CachedResult(ctx context.Context, user UserID, requestID string) (*PushResult, error)
	SaveResult(ctx context.Context, user UserID, requestID string, res PushResult) error
	Record(ctx context.Context, id string) (*Record, error)
	PutRecord(ctx context.Context, rec *Record) error
	HabitOwner(ctx context.Context, habitID string) (UserID, error)
}

// Reconciler applies push batches: one logical transaction per call, one
// outcome per item in input order. A single item's business conflict never
// fails the batch; only ownership violations, unidentifiable items, and
// systemic storage failures abort the whole call (and roll everything back).
type Reconciler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler. A nil logger falls back to
// slog.Default().
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Push reconciles a batch of client mutations for user. Results preserve
// input order and are committed together with their idempotency entries.
func (r *Reconciler) Push(ctx context.Context, user UserID, items []PushItem) ([]PushResult, error) {
	results := make([]PushResult, 0, len(items))

	// Habit ownership resolved once per distinct habit within the batch.
	owners := make(map[string]UserID)

	err := r.store.InTx(ctx, func(tx Tx) error {
		for i := range items {
			res, itemErr := r.pushOne(ctx, tx, user, &items[i], owners)
			if itemErr != nil {
				return itemErr
			}

			results = append(results, *res)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("push batch reconciled",
		slog.String("user_id", user.String()),
		slog.Int("items", len(items)),
	)

	return results, nil
}

// pushOne processes a single batch item. The returned error is always
// call-wide: per-item conflicts come back as a PushResult.
func (r *Reconciler) pushOne(
	ctx context.Context, tx Tx, user UserID, item *PushItem, owners map[string]UserID,
) (*PushResult, error) {
	if item.RequestID == "" || item.ID == "" {
		return nil, ErrInvalidItem
	}

	// Replay guard: a retried request gets its cached outcome verbatim,
	// with no side effects.
	if cached, err := tx.CachedResult(ctx, user, item.RequestID); err != nil {
		return nil, fmt.Errorf("checkin: idempotency lookup %s: %w", item.RequestID, err)
	} else if cached != nil {
		return cached, nil
	}

	if err := r.checkOwner(ctx, tx, user, item.HabitID, owners); err != nil {
		return nil, err
	}

	cur, err := tx.Record(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("checkin: loading record %s: %w", item.ID, err)
	}

	// Updates must never move a record across habits, and the habit the
	// record already belongs to must itself be the caller's.
	if cur != nil && cur.HabitID != item.HabitID {
		if err := r.checkOwner(ctx, tx, user, cur.HabitID, owners); err != nil {
			return nil, err
		}
	}

	res := r.decide(item, cur)

	if res.Status == StatusApplied {
		rec := applyMutation(item, cur, r.now().UTC())
		if err := tx.PutRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("checkin: writing record %s: %w", rec.ID, err)
		}

		res.UpdatedAt = rec.UpdatedAt
		res.Version = rec.VersionToken()
	}

	if err := tx.SaveResult(ctx, user, item.RequestID, *res); err != nil {
		return nil, fmt.Errorf("checkin: caching result %s: %w", item.RequestID, err)
	}

	return res, nil
}

// checkOwner resolves the habit's owner (memoized per batch) and rejects
// the whole call if it is missing or belongs to someone else.
func (r *Reconciler) checkOwner(ctx context.Context, tx Tx, user UserID, habitID string, owners map[string]UserID) error {
	owner, seen := owners[habitID]
	if !seen {
		var err error

		owner, err = tx.HabitOwner(ctx, habitID)
		if errors.Is(err, ErrHabitNotFound) {
			// Indistinguishable from "not yours" on purpose: the caller
			// learns nothing about other users' habit ids.
			return ErrForbidden
		}

		if err != nil {
			return fmt.Errorf("checkin: resolving habit %s: %w", habitID, err)
		}

		owners[habitID] = owner
	}

	if owner != user {
		r.logger.Warn("push rejected: habit not owned by caller",
			slog.String("habit_id", habitID),
			slog.String("user_id", user.String()),
		)

		return ErrForbidden
	}

	return nil
}

// decide computes the per-item outcome without touching storage. Version
// conflicts are detected by explicit compare-and-set against the loaded
// record, never by driver-level concurrency exceptions.
func (r *Reconciler) decide(item *PushItem, cur *Record) *PushResult {
	res := &PushResult{ID: item.ID, Status: StatusApplied}

	switch {
	case !validDayKey(item.DayKey):
		res.Status = StatusConflict
		res.ConflictReason = ReasonInvalidDayKey
	case cur != nil && item.BaseVersion == "":
		// Same id reused for what the client believes is a create.
		res.Status = StatusConflict
		res.ConflictReason = ReasonIDReused
	case cur != nil && item.BaseVersion != cur.VersionToken():
		res.Status = StatusConflict
		res.ConflictReason = ReasonStaleVersion
	}

	// Conflicts report the current server-side state so the client can
	// re-base and retry.
	if res.Status == StatusConflict && cur != nil {
		res.UpdatedAt = cur.UpdatedAt
		res.Version = cur.VersionToken()
	}

	return res
}

// applyMutation builds the new record state. UpdatedAt is strictly
// increasing per record even when the wall clock stalls, and the version
// counter advances unconditionally.
func applyMutation(item *PushItem, cur *Record, now time.Time) *Record {
	rec := &Record{
		ID:          item.ID,
		HabitID:     item.HabitID,
		DayKey:      item.DayKey,
		CompletedAt: item.CompletedAt.UTC(),
		Deleted:     item.Deleted,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	if cur != nil {
		rec.HabitID = cur.HabitID
		rec.CreatedAt = cur.CreatedAt
		rec.Version = cur.Version + 1

		if !rec.UpdatedAt.After(cur.UpdatedAt) {
			rec.UpdatedAt = cur.UpdatedAt.Add(time.Nanosecond)
		}
	}

	return rec
}

// validDayKey reports whether s is a canonical YYYY-MM-DD calendar day.
func validDayKey(s string) bool {
	if len(s) != len("2006-01-02") {
		return false
	}

	_, err := time.Parse("2006-01-02", s)

	return err == nil
}
