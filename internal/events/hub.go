// Package events fans turn events out to observers of a case.
package events

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/google/uuid"
)

// Subscription receives the events of one case until it is removed.
type Subscription struct {
	CaseID uuid.UUID
	C      <-chan domain.CaseEvent

	ch chan domain.CaseEvent
}

// Hub is an in-process broadcaster. A subscriber that falls behind misses
// events rather than blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(caseID uuid.UUID, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.CaseEvent, buffer)
	sub := &Subscription{CaseID: caseID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[caseID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[caseID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.CaseID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, sub.CaseID)
	}
}

// Publish delivers evt to current subscribers of its case. It never blocks.
func (h *Hub) Publish(_ context.Context, evt domain.CaseEvent) error {
	h.deliver(evt)
	return nil
}

func (h *Hub) deliver(evt domain.CaseEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[evt.CaseID] {
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for a case.
func (h *Hub) Subscribers(caseID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[caseID])
}
