// Package events publishes task, comment and reminder lifecycle events to live subscribers.
//
// Delivery is fire-and-forget: handlers registered at publish time receive the
// event once, nothing is queued or replayed for later subscribers.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Event names.
const (
	TaskCreated    = "task:created"
	TaskUpdated    = "task:updated"
	TaskDeleted    = "task:deleted"
	CommentCreated = "comment:created"
	ReminderSent   = "reminder:sent"
)

// Scope addresses a channel of subscribers.
type Scope string

// Global is the scope every client listens on.
const Global Scope = "global"

// TaskScope returns the per-task scope.
func TaskScope(id string) Scope { return Scope("task:" + id) }

// UserScope returns the per-user scope.
func UserScope(id string) Scope { return Scope("user:" + id) }

// Event is a single published notification.
type Event struct {
	Scope   Scope  `json:"scope"`
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Handler receives events. It must not block.
type Handler func(Event)

// Publisher is the sink used by services.
type Publisher interface {
	Publish(scope Scope, name string, payload any)
}

// Bus is an in-process Publisher with per-scope subscriber lists.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Scope]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Scope]map[int]Handler)}
}

// Subscribe registers h for scope and returns a func that removes it.
func (b *Bus) Subscribe(scope Scope, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[scope] == nil {
		b.subs[scope] = make(map[int]Handler)
	}
	b.subs[scope][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[scope], id)
		if len(b.subs[scope]) == 0 {
			delete(b.subs, scope)
		}
	}
}

// Publish hands the event to every handler currently subscribed to scope.
func (b *Bus) Publish(scope Scope, name string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[scope]))
	for _, h := range b.subs[scope] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	ev := Event{Scope: scope, Name: name, Payload: payload}
	for _, h := range handlers {
		dispatch(h, ev)
	}
	log.Debug().Str("scope", string(scope)).Str("event", name).Int("subscribers", len(handlers)).Msg("event published")
}

func dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", ev.Name).Msg("event handler panicked")
		}
	}()
	h(ev)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Scope, string, any) {}
