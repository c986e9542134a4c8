package checkin

import "errors"

// Sentinel errors separating call-wide failures from per-item outcomes.
// Per-item business conflicts are PushResult values, never errors; only
// identity, authorization, and systemic problems abort a call.
var (
	// ErrHabitNotFound is returned by Tx.HabitOwner when no habit exists
	// with the given id.
	ErrHabitNotFound = errors.New("checkin: habit not found")

	// ErrForbidden aborts an entire push when an item references a habit
	// the caller does not own. Call-wide rather than per-item: it indicates
	// a malicious or buggy client, not a legitimate sync conflict.
	ErrForbidden = errors.New("checkin: habit not owned by caller")

	// ErrInvalidItem aborts an entire push when an item cannot be
	// identified at all (missing clientRequestId or record id).
	ErrInvalidItem = errors.New("checkin: item cannot be identified")
)
