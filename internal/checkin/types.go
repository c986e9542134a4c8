// Package checkin implements the offline-sync core for habit check-ins:
// the push reconciler that applies batches of client mutations with
// idempotent replay and optimistic-concurrency conflict detection, and the
// change feed that streams authoritative record mutations back to clients.
//
// Everything else in the habit API (user registration, habit CRUD, goals,
// uploads) is an external collaborator as far as this package is concerned.
// The package depends only on an authenticated user identity, a habit
// ownership lookup, and a transactional record store.
package checkin

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Push outcome statuses.
const (
	StatusApplied  = "applied"
	StatusConflict = "conflict"
)

// Conflict reasons reported in PushResult.ConflictReason.
const (
	// ReasonStaleVersion: the client's baseVersion no longer matches the
	// record's current version. The client must re-base and retry.
	ReasonStaleVersion = "stale_version"

	// ReasonIDReused: the client pushed without a baseVersion (a create)
	// but a record with that id already exists. Signals a client bug;
	// never silently overwritten.
	ReasonIDReused = "id_reused"

	// ReasonInvalidDayKey: dayKey is not a canonical YYYY-MM-DD string.
	ReasonInvalidDayKey = "invalid_day_key"
)

// Record is one habit check-in row. It is identified by a client-generated
// stable id (not by the natural (habit, day) key) so creation is idempotent
// across retries without server coordination.
//
// Invariants: ID and HabitID are immutable once created; UpdatedAt is
// strictly increasing across mutations of the same record; Version advances
// on every successful mutation and is never reused. Deletions are soft:
// Deleted is a tombstone that still flows through the change feed so peers
// converge.
type Record struct {
	ID          string
	HabitID     string
	DayKey      string
	CompletedAt time.Time
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// VersionToken renders the record's version counter as the opaque token
// clients echo back as baseVersion.
func (r *Record) VersionToken() string {
	return strconv.FormatInt(r.Version, 10)
}

// PushItem is one client mutation in a push batch.
type PushItem struct {
	RequestID   string    `json:"clientRequestId"`
	ID          string    `json:"id"`
	HabitID     string    `json:"habitId"`
	DayKey      string    `json:"dayKey"`
	CompletedAt time.Time `json:"completedAt"`
	Deleted     bool      `json:"deleted"`
	// BaseVersion is the version token the client last observed for this
	// record. Empty for a brand-new record the client believes it is creating.
	BaseVersion string `json:"baseVersion,omitempty"`
}

// PushResult is the per-item outcome of a push. Conflicts are first-class
// response values, never errors: for a conflict the UpdatedAt and Version
// fields carry the current server-side state so the client can re-base.
type PushResult struct {
	ID             string    `json:"id"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Version        string    `json:"version"`
	Status         string    `json:"status"`
	ConflictReason string    `json:"conflictReason,omitempty"`
}

// Change is one record mutation in a change feed page. Tombstoned records
// appear like any other mutation.
type Change struct {
	ID          string    `json:"id"`
	HabitID     string    `json:"habitId"`
	DayKey      string    `json:"dayKey"`
	CompletedAt time.Time `json:"completedAt"`
	Deleted     bool      `json:"deleted"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Version     string    `json:"version"`
}

// ChangesPage is one page of the change feed. NextSince/NextAfterID form a
// compound cursor: pass both back to Changes to resume without skipping
// records that share the boundary timestamp. Clients that only track
// NextSince fall back to strict timestamp continuation.
type ChangesPage struct {
	Items       []Change   `json:"items"`
	HasMore     bool       `json:"hasMore"`
	NextSince   *time.Time `json:"nextSince,omitempty"`
	NextAfterID string     `json:"nextAfterId,omitempty"`
}

// changeFromRecord converts a stored record to its feed representation.
func changeFromRecord(r *Record) Change {
	return Change{
		ID:          r.ID,
		HabitID:     r.HabitID,
		DayKey:      r.DayKey,
		CompletedAt: r.CompletedAt,
		Deleted:     r.Deleted,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.VersionToken(),
	}
}

// UserID identifies an authenticated caller. Resolved by the auth
// collaborator before any checkin operation runs.
type UserID = uuid.UUID
