package task

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/metalagman/taskflow/internal/db"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(scope events.Scope, name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events.Event{Scope: scope, Name: name, Payload: payload})
}

func (r *recorder) named(scope events.Scope, name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Scope == scope && ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("t%d", n)
	}
}

func newTestService(t *testing.T) (*Service, *fixedClock, *recorder) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "taskflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	clock := &fixedClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	svc := NewService(database, rec, WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
	return svc, clock, rec
}

func ptr[T any](v T) *T { return &v }
