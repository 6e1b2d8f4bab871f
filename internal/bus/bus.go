// Package bus is a small in-process notification bus for storage mutations.
// The ledger publishes an event for every successful create, update, and
// delete so interested parties (request log, counters) can react without
// being coupled to the ledger itself.
package bus

import (
	"log/slog"
	"sync"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event describes one storage mutation.
type Event struct {
	Action      Action
	Identity    string
	Fingerprint string
}

type Listener func(Event)

// Bus delivers published events to listeners synchronously, in subscription
// order. The listener list is owned by the Bus instance; there is no global
// singleton and no unsubscribe.
type Bus struct {
	mu        sync.Mutex
	listeners []Listener
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Publish invokes every listener in subscription order. A panicking listener
// is recovered and logged so it cannot prevent later listeners from running.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, fn := range listeners {
		b.deliver(fn, evt)
	}
}

func (b *Bus) deliver(fn Listener, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("bus listener panic", "action", evt.Action, "recover", rec)
		}
	}()
	fn(evt)
}
