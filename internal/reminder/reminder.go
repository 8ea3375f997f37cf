// Package reminder stores time-boxed reminders and delivers them when due.
package reminder

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/metalagman/taskflow/internal/keylock"
)

// Reminder describes a reminder record. Sent only ever moves from false to true.
type Reminder struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	UserID       string     `json:"user_id"`
	RemindAt     *time.Time `json:"remind_at,omitempty"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	Sent         bool       `json:"sent"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Eligible reports whether the reminder should fire at now.
func (r Reminder) Eligible(now time.Time) bool {
	if r.Sent || r.RemindAt == nil || r.RemindAt.After(now) {
		return false
	}
	return !r.Snoozed(now)
}

// Snoozed reports whether delivery is suppressed at now.
func (r Reminder) Snoozed(now time.Time) bool {
	return r.SnoozedUntil != nil && r.SnoozedUntil.After(now)
}

// NewReminder is the input for Create.
type NewReminder struct {
	TaskID   string    `json:"task_id"`
	UserID   string    `json:"user_id"`
	RemindAt time.Time `json:"remind_at"`
}

// Validate checks required fields.
func (n NewReminder) Validate() error {
	errs := map[string]string{}
	if strings.TrimSpace(n.TaskID) == "" {
		errs["task_id"] = "is required"
	}
	if strings.TrimSpace(n.UserID) == "" {
		errs["user_id"] = "is required"
	}
	if n.RemindAt.IsZero() {
		errs["remind_at"] = "is required"
	}
	if len(errs) > 0 {
		return &apperr.ValidationError{Fields: errs}
	}
	return nil
}

// Service manages reminder records. Mutations hold the per-reminder lock that
// the Scheduler also takes around delivery.
type Service struct {
	store *Store
	locks *keylock.Locker
	bus   events.Publisher
	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a reminder service.
func NewService(database *sql.DB, bus events.Publisher, opts ...Option) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	s := &Service{
		store: NewStore(database),
		locks: keylock.New(),
		bus:   bus,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new unsent reminder.
func (s *Service) Create(ctx context.Context, in NewReminder) (Reminder, error) {
	if err := in.Validate(); err != nil {
		return Reminder{}, err
	}
	at := in.RemindAt.UTC()
	r := Reminder{
		ID:        s.newID(),
		TaskID:    strings.TrimSpace(in.TaskID),
		UserID:    strings.TrimSpace(in.UserID),
		RemindAt:  &at,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

// Get fetches a reminder.
func (s *Service) Get(ctx context.Context, id string) (Reminder, error) {
	return s.store.Get(ctx, id)
}

// ListForUser returns a user's reminders ordered by fire time.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Reminder, error) {
	return s.store.ListForUser(ctx, userID)
}

// Snooze suppresses delivery until the given time. The sent flag is untouched.
func (s *Service) Snooze(ctx context.Context, id string, until time.Time) (Reminder, error) {
	if until.IsZero() {
		return Reminder{}, apperr.Invalid("snoozed_until", "is required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return Reminder{}, err
	}
	u := until.UTC()
	r.SnoozedUntil = &u
	if err := s.store.SetSnooze(ctx, id, &u); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

// Delete removes a reminder.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.store.Delete(ctx, id)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
