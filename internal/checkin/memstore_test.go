package checkin

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store/FeedStore used by the package tests.
// InTx stages writes and only merges them on success, so rollback behavior
// matches the SQLite store.
type memStore struct {
	records map[string]Record
	results map[string]PushResult // key: user|requestID
	habits  map[string]UserID
	failTx  error // when set, InTx fails after fn runs (systemic failure)
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]Record),
		results: make(map[string]PushResult),
		habits:  make(map[string]UserID),
	}
}

type memTx struct {
	parent  *memStore
	records map[string]Record
	results map[string]PushResult
}

func (m *memStore) InTx(_ context.Context, fn func(Tx) error) error {
	tx := &memTx{
		parent:  m,
		records: make(map[string]Record),
		results: make(map[string]PushResult),
	}

	if err := fn(tx); err != nil {
		return err
	}

	if m.failTx != nil {
		return m.failTx
	}

	for k, v := range tx.records {
		m.records[k] = v
	}

	for k, v := range tx.results {
		m.results[k] = v
	}

	return nil
}

func (t *memTx) HabitOwner(_ context.Context, habitID string) (UserID, error) {
	owner, ok := t.parent.habits[habitID]
	if !ok {
		return uuid.Nil, ErrHabitNotFound
	}

	return owner, nil
}

func (m *memStore) ListChanges(
	_ context.Context, user UserID, since time.Time, afterID string, limit int,
) ([]Record, bool, error) {
	var matched []Record

	for _, rec := range m.records {
		if m.habits[rec.HabitID] != user {
			continue
		}

		if rec.UpdatedAt.After(since) || (afterID != "" && rec.UpdatedAt.Equal(since) && rec.ID > afterID) {
			matched = append(matched, rec)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
		}

		return matched[i].ID < matched[j].ID
	})

	hasMore := len(matched) > limit
	if hasMore {
		matched = matched[:limit]
	}

	return matched, hasMore, nil
}

func (t *memTx) CachedResult(_ context.Context, user UserID, requestID string) (*PushResult, error) {
	for _, results := range []map[string]PushResult{t.results, t.parent.results} {
		if res, ok := results[resultKey(user, requestID)]; ok {
			out := res
			return &out, nil
		}
	}

	return nil, nil
}

func (t *memTx) SaveResult(_ context.Context, user UserID, requestID string, res PushResult) error {
	key := resultKey(user, requestID)
	if _, ok := t.parent.results[key]; ok {
		return errors.New("duplicate idempotency entry")
	}

	t.results[key] = res

	return nil
}

func (t *memTx) Record(_ context.Context, id string) (*Record, error) {
	for _, records := range []map[string]Record{t.records, t.parent.records} {
		if rec, ok := records[id]; ok {
			out := rec
			return &out, nil
		}
	}

	return nil, nil
}

func (t *memTx) PutRecord(_ context.Context, rec *Record) error {
	t.records[rec.ID] = *rec

	return nil
}

func resultKey(user UserID, requestID string) string {
	return strings.Join([]string{user.String(), requestID}, "|")
}
