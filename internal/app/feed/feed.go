// Package feed provides the change-feed abstraction the notification layer
// consumes. A Feed delivers row-level insert/update events filtered by table
// and optional predicate; subscribing returns a cancellation handle.
package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a row-level change.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Tables the notification layer subscribes to.
const (
	TableFriendships = "friendships"
	TableReactions   = "reactions"
	TableComments    = "comments"
	TableDonations   = "donations"
)

// Event is a single row-level change delivered by the feed.
type Event struct {
	ID        string
	Table     string
	Kind      Kind
	Timestamp time.Time

	// ActorID is the user who authored the row: the requester for
	// friendships, the reactor, the commenter, or the donor.
	ActorID string
	// RecipientID is the user targeted by the row, when the table has one.
	RecipientID string
	// Status and OldStatus carry the row status on insert/update so handlers
	// can detect transitions without refetching the row.
	Status    string
	OldStatus string

	Metadata map[string]string
}

// Filter decides whether an event should be delivered to a handler.
type Filter func(Event) bool

// Handler processes delivered events.
type Handler func(Event)

// Feed is a source of change events. Subscribe registers a handler and
// returns its cancellation handle; cancelling is idempotent.
type Feed interface {
	Subscribe(filter Filter, handler Handler) (cancel func())
}

// Publisher accepts change events for delivery. The write path of services
// that emit row changes depends on this rather than on a concrete bus.
type Publisher interface {
	Publish(Event)
}

// ForTables returns a filter accepting events from any of the given tables.
func ForTables(tables ...string) Filter {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}
	return func(ev Event) bool {
		_, ok := set[ev.Table]
		return ok
	}
}

// Bus is a thread-safe in-process feed with a bounded replay buffer. It backs
// tests and single-node deployments, and the realtime client publishes
// decoded remote events through it.
type Bus struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

var _ Feed = (*Bus)(nil)

// NewBus creates a bus retaining up to size recent events for inspection.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 1000
	}
	return &Bus{
		events: make([]Event, size),
		size:   size,
	}
}

// Publish records the event and delivers it to matching subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	b.events[b.head] = ev
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}

	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	// Deliver outside the lock so handlers may subscribe or publish.
	for _, h := range handlers {
		if h.filter == nil || h.filter(ev) {
			h.handler(ev)
		}
	}
}

// Subscribe registers a handler for events matching the filter. A nil filter
// matches everything. The returned cancel function removes the handler and is
// safe to call more than once.
func (b *Bus) Subscribe(filter Filter, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{
		id:      id,
		filter:  filter,
		handler: handler,
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, h := range b.handlers {
			if h.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent n events in reverse chronological order.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		result[i] = b.events[idx]
	}
	return result
}

// RecentByTable returns recent events for one table.
func (b *Bus) RecentByTable(table string, n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < b.count && len(result) < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		if b.events[idx].Table == table {
			result = append(result, b.events[idx])
		}
	}
	return result
}

// Count returns the number of retained events.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
