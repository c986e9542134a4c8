package checkin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(t *testing.T) (*Feed, *memStore) {
	t.Helper()

	store := newMemStore()
	store.habits["h1"] = testUser
	store.habits["h2"] = otherUser

	return NewFeed(store, 200, 500, nil), store
}

func seedRecord(store *memStore, id, habitID string, updatedAt time.Time, deleted bool) {
	store.records[id] = Record{
		ID:          id,
		HabitID:     habitID,
		DayKey:      updatedAt.Format("2006-01-02"),
		CompletedAt: updatedAt,
		Deleted:     deleted,
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
		Version:     1,
	}
}

func TestChanges_FullResyncWhenSinceAbsent(t *testing.T) {
	feed, store := newTestFeed(t)
	base := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	seedRecord(store, "c1", "h1", base, false)
	seedRecord(store, "c2", "h1", base.Add(time.Minute), false)
	seedRecord(store, "x1", "h2", base, false) // other user's

	page, err := feed.Changes(context.Background(), testUser, nil, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, "c1", page.Items[0].ID)
	assert.Equal(t, "c2", page.Items[1].ID)
	require.NotNil(t, page.NextSince)
	assert.Equal(t, base.Add(time.Minute), *page.NextSince)
	assert.Equal(t, "c2", page.NextAfterID)
}

func TestChanges_StrictlyAfterSince(t *testing.T) {
	feed, store := newTestFeed(t)
	base := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	seedRecord(store, "c1", "h1", base, false)
	seedRecord(store, "c2", "h1", base.Add(time.Second), false)

	page, err := feed.Changes(context.Background(), testUser, &base, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c2", page.Items[0].ID)
}

func TestChanges_EmptyPageEchoesCursor(t *testing.T) {
	feed, _ := newTestFeed(t)
	since := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	page, err := feed.Changes(context.Background(), testUser, &since, "c7", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	require.NotNil(t, page.NextSince)
	assert.Equal(t, since, *page.NextSince)
	assert.Equal(t, "c7", page.NextAfterID)
}

func TestChanges_TombstonesIncluded(t *testing.T) {
	feed, store := newTestFeed(t)
	base := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	seedRecord(store, "c1", "h1", base, true)

	page, err := feed.Changes(context.Background(), testUser, nil, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].Deleted)
}

func TestChanges_PageSizeClampedToMax(t *testing.T) {
	store := newMemStore()
	store.habits["h1"] = testUser
	feed := NewFeed(store, 2, 3, nil)
	base := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seedRecord(store, fmt.Sprintf("c%d", i), "h1", base.Add(time.Duration(i)*time.Second), false)
	}

	page, err := feed.Changes(context.Background(), testUser, nil, "", 999)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.True(t, page.HasMore)
}

// Records tied at the exact boundary timestamp must not be skipped when a
// page break lands between them; the id half of the cursor resumes
// mid-timestamp.
func TestChanges_BoundaryTimestampTiesNotSkipped(t *testing.T) {
	store := newMemStore()
	store.habits["h1"] = testUser
	feed := NewFeed(store, 2, 2, nil)
	tied := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	seedRecord(store, "a", "h1", tied, false)
	seedRecord(store, "b", "h1", tied, false)
	seedRecord(store, "c", "h1", tied, false)

	first, err := feed.Changes(context.Background(), testUser, nil, "", 2)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.True(t, first.HasMore)
	assert.Equal(t, "b", first.NextAfterID)

	second, err := feed.Changes(context.Background(), testUser, first.NextSince, first.NextAfterID, 2)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "c", second.Items[0].ID)
	assert.False(t, second.HasMore)
}

// Clients that only echo nextSince get a strict timestamp cursor: following
// it terminates and never re-delivers a record, even when records tied at
// the boundary timestamp span a page break.
func TestChanges_SinceOnlyCursorConverges(t *testing.T) {
	store := newMemStore()
	store.habits["h1"] = testUser
	feed := NewFeed(store, 2, 2, nil)
	tied := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	seedRecord(store, "a", "h1", tied, false)
	seedRecord(store, "b", "h1", tied, false)
	seedRecord(store, "c", "h1", tied, false)

	delivered := make(map[string]int)

	var since *time.Time

	for pages := 0; ; pages++ {
		require.Less(t, pages, 10, "since-only cursor failed to converge")

		page, err := feed.Changes(context.Background(), testUser, since, "", 2)
		require.NoError(t, err)

		for _, item := range page.Items {
			delivered[item.ID]++
			require.Equal(t, 1, delivered[item.ID], "record %s re-delivered", item.ID)
		}

		since = page.NextSince

		if !page.HasMore {
			break
		}
	}

	// Boundary-tied stragglers may be deferred past a strict timestamp
	// cursor; the compound cursor exists for clients that cannot accept
	// that. What a since-only client must get is termination without
	// duplicates.
	assert.NotEmpty(t, delivered)
}

// Feed monotonicity: repeatedly following the cursor drains exactly the set
// of records newer than the starting watermark.
func TestChanges_CursorConverges(t *testing.T) {
	store := newMemStore()
	store.habits["h1"] = testUser
	feed := NewFeed(store, 3, 3, nil)
	base := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	want := make(map[string]bool)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%02d", i)
		// Three records share each timestamp to stress tie handling.
		seedRecord(store, id, "h1", base.Add(time.Duration(i/3)*time.Second), false)
		want[id] = true
	}

	got := make(map[string]bool)

	var (
		since   *time.Time
		afterID string
	)

	for pages := 0; ; pages++ {
		require.Less(t, pages, 20, "cursor failed to converge")

		page, err := feed.Changes(context.Background(), testUser, since, afterID, 3)
		require.NoError(t, err)

		for _, item := range page.Items {
			require.False(t, got[item.ID], "record %s served twice", item.ID)
			got[item.ID] = true
		}

		since = page.NextSince
		afterID = page.NextAfterID

		if !page.HasMore {
			break
		}
	}

	assert.Equal(t, want, got)
}
