// Package notify fans out in-process "something changed" nudges to a
// user's connected devices. It is strictly best-effort: a dropped nudge is
// harmless because clients converge through the change feed, the hub only
// saves them a polling round-trip.
package notify

import (
	"sync"

	"github.com/summitlabs/summit-api/internal/checkin"
)

// Hub routes nudges by user. The zero value is not usable; call NewHub.
type Hub struct {
	mu     sync.Mutex
	subs   map[checkin.UserID]map[uint64]chan struct{}
	nextID uint64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[checkin.UserID]map[uint64]chan struct{})}
}

// Subscribe registers interest in changes to user's records. The returned
// channel carries coalesced nudges (buffer of one); the cancel func must be
// called when the subscriber goes away.
func (h *Hub) Subscribe(user checkin.UserID) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan struct{}, 1)

	if h.subs[user] == nil {
		h.subs[user] = make(map[uint64]chan struct{})
	}

	h.subs[user][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if userSubs, ok := h.subs[user]; ok {
			delete(userSubs, id)

			if len(userSubs) == 0 {
				delete(h.subs, user)
			}
		}
	}

	return ch, cancel
}

// Publish nudges every subscriber of user without blocking. A subscriber
// with a nudge already pending is skipped; one pending nudge is enough to
// trigger a pull.
func (h *Hub) Publish(user checkin.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[user] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports the current number of subscriptions for user.
func (h *Hub) Subscribers(user checkin.UserID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs[user])
}
