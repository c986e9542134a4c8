package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FeedStore lists record mutations for the change feed. Records are ordered
// by (updated_at, id) ascending; with a non-empty afterID the predicate is
//
//	updated_at > since OR (updated_at = since AND id > afterID)
//
// so that records tied at the boundary timestamp are never skipped across a
// page break. An empty afterID means a plain strict timestamp cursor,
// updated_at > since, for clients that only track nextSince. A zero since
// with empty afterID selects everything the user owns (full resync). The
// second return value reports whether strictly more matching records exist
// beyond the returned page.
type FeedStore interface {
	ListChanges(ctx context.Context, user UserID, since time.Time, afterID string, limit int) ([]Record, bool, error)
}

// Feed produces ordered, paginated, resumable pages of record mutations.
// Deleted records flow through like any other mutation: the receiving
// client needs the tombstone to retract its local copy.
type Feed struct {
	store           FeedStore
	logger          *slog.Logger
	defaultPageSize int
	maxPageSize     int
}

// NewFeed creates a Feed with the given page size bounds. Non-positive
// bounds fall back to 200/500. A nil logger falls back to slog.Default().
func NewFeed(store FeedStore, defaultPageSize, maxPageSize int, logger *slog.Logger) *Feed {
	if defaultPageSize <= 0 {
		defaultPageSize = 200
	}

	if maxPageSize < defaultPageSize {
		maxPageSize = 500
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Feed{
		store:           store,
		logger:          logger,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// Changes returns one page of mutations for user strictly after the
// (since, afterID) cursor. A nil since means full resync. pageSize <= 0
// selects the default; oversized requests are clamped to the maximum.
//
// The returned cursor guarantees forward progress: for an empty page it is
// the input cursor unchanged, otherwise it points at the last item of the
// page, id included, so a follow-up call resumes mid-timestamp if needed.
func (f *Feed) Changes(
	ctx context.Context, user UserID, since *time.Time, afterID string, pageSize int,
) (*ChangesPage, error) {
	if pageSize <= 0 {
		pageSize = f.defaultPageSize
	}

	if pageSize > f.maxPageSize {
		pageSize = f.maxPageSize
	}

	var sinceVal time.Time
	if since != nil {
		sinceVal = since.UTC()
	}

	records, hasMore, err := f.store.ListChanges(ctx, user, sinceVal, afterID, pageSize)
	if err != nil {
		return nil, fmt.Errorf("checkin: listing changes: %w", err)
	}

	page := &ChangesPage{
		Items:       make([]Change, 0, len(records)),
		HasMore:     hasMore,
		NextSince:   since,
		NextAfterID: afterID,
	}

	for i := range records {
		page.Items = append(page.Items, changeFromRecord(&records[i]))
	}

	if n := len(records); n > 0 {
		last := records[n-1].UpdatedAt
		page.NextSince = &last
		page.NextAfterID = records[n-1].ID
	}

	f.logger.Debug("change feed page served",
		slog.String("user_id", user.String()),
		slog.Int("items", len(page.Items)),
		slog.Bool("has_more", page.HasMore),
	)

	return page, nil
}
