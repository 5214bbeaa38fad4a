package stream

import (
	"context"
	"sync"
	"time"
)

// Op labels what happened to a record.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one change to a record, scoped to the tenant and
// category it happened in. Only the public id is carried; subscribers
// fetch the document through the normal read path so access control is
// never bypassed by the feed.
type Event struct {
	Category  string    `json:"category"`
	ID        int64     `json:"id"`
	Op        Op        `json:"op"`
	Timestamp time.Time `json:"timestamp"`

	tenant string
}

// Stream fan-outs record change events to active subscribers (SSE clients).
// Subscriptions are tenant- and category-scoped so one tenant never sees
// another tenant's traffic.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	tenant   string
	category string
	ch       chan Event
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber for one tenant+category and returns a
// channel which will receive events. The channel is closed when the
// provided context ends.
func (s *Stream) Subscribe(ctx context.Context, tenant, category string) <-chan Event {
	sub := &subscriber{tenant: tenant, category: category, ch: make(chan Event, 16)}

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(sub.ch)
		s.mu.Unlock()
	}()

	return sub.ch
}

// Publish fan-outs the event to all subscribers of its tenant+category.
func (s *Stream) Publish(tenant, category string, id int64, op Op) {
	evt := Event{
		Category:  category,
		ID:        id,
		Op:        op,
		Timestamp: time.Now().UTC(),
		tenant:    tenant,
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.tenant != tenant || sub.category != category {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
