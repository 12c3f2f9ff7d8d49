// Package events is a small in-process publish/subscribe bus used to
// announce memory lifecycle changes.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event names published by the memory store.
const (
	MemorySystemInitialized = "memory-system-initialized"
	MemoryCleared           = "memory-cleared"
	MemoryImported          = "memory-imported"
	MemorySwept             = "memory-swept"
)

// Event is a single published message.
type Event struct {
	ID      string
	Name    string
	Payload any
	At      time.Time
}

// Handler receives published events.
type Handler func(Event)

// Publisher is the side of the bus the store depends on.
type Publisher interface {
	Publish(name string, payload any)
}

// Bus delivers events to subscribers asynchronously. Publish never waits on
// handlers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler
	wg   sync.WaitGroup
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[string]Handler)}
}

// Subscribe registers h for events named name and returns a function that
// removes it. Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(name string, h Handler) func() {
	id := uuid.NewString()

	b.mu.Lock()
	if b.subs[name] == nil {
		b.subs[name] = make(map[string]Handler)
	}
	b.subs[name][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[name], id)
			if len(b.subs[name]) == 0 {
				delete(b.subs, name)
			}
			b.mu.Unlock()
		})
	}
}

// Publish sends payload to every current subscriber of name, each on its own
// goroutine.
func (b *Bus) Publish(name string, payload any) {
	ev := Event{
		ID:      uuid.NewString(),
		Name:    name,
		Payload: payload,
		At:      time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[name]))
	for _, h := range b.subs[name] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(ev)
		}(h)
	}
}

// Wait blocks until every handler started so far has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, any) {}

// Payloads carried by the lifecycle events.
type (
	Initialized struct {
		Success  bool   `json:"success"`
		Degraded bool   `json:"degraded"`
		Backend  string `json:"backend"`
	}
	Cleared struct {
		Tier string `json:"tier"`
	}
	Imported struct {
		Timestamp time.Time `json:"timestamp"`
		Count     int       `json:"count"`
	}
	Swept struct {
		Expired int `json:"expired"`
		Failed  int `json:"failed"`
	}
)
