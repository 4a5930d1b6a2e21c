// Package stream fans in-app notifications out to the realtime subscribers of
// each user (SSE clients).
package stream

import (
	"context"
	"sync"

	"procuredata.io/internal/dataspace"
)

const bufferSize = 16

// Hub keeps the live subscriptions per user.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan dataspace.Notification
	next int
}

func New() *Hub {
	return &Hub{subs: make(map[string]map[int]chan dataspace.Notification)}
}

// Subscribe registers a subscriber for userID and returns a channel receiving
// that user's notifications. The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, userID string) <-chan dataspace.Notification {
	ch := make(chan dataspace.Notification, bufferSize)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan dataspace.Notification)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[userID], id)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers n to every subscriber of n.UserID.
func (h *Hub) Publish(n dataspace.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
		default:
			// slow subscriber, drop
		}
	}
}

// Subscribers reports how many live subscriptions userID has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
