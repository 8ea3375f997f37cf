package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/db"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/metalagman/taskflow/internal/keylock"
	"github.com/rs/zerolog/log"
)

// Tracker is the task operation surface shared by the HTTP boundary, the CLI
// and the sync reconciler.
type Tracker interface {
	Create(ctx context.Context, f Fields) (Task, error)
	Put(ctx context.Context, id string, f Fields) (Task, bool, error)
	Get(ctx context.Context, id string) (Task, error)
	List(ctx context.Context) ([]Task, error)
	Ready(ctx context.Context) ([]Task, error)
	Update(ctx context.Context, id string, p Patch) (UpdateResult, error)
	Delete(ctx context.Context, id string) error
	AddDependency(ctx context.Context, taskID, dependsOnID string) error
	RemoveDependency(ctx context.Context, taskID, dependsOnID string) error
	Dependencies(ctx context.Context, taskID string) ([]string, error)
	CanComplete(ctx context.Context, taskID string) (Decision, error)
}

// Service serializes mutations per task id and publishes lifecycle events.
type Service struct {
	db    *sql.DB
	store *Store
	locks *keylock.Locker
	bus   events.Publisher
	now   func() time.Time
	newID func() string
}

var _ Tracker = (*Service)(nil)

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

// NewService creates a task service.
func NewService(database *sql.DB, bus events.Publisher, opts ...Option) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	s := &Service{
		db:    database,
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

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Create inserts a task. A task created already completed goes through the
// same completion rules as Update, so a recurring one gets its successor.
func (s *Service) Create(ctx context.Context, f Fields) (Task, error) {
	if err := f.Validate(); err != nil {
		return Task{}, err
	}
	now := s.clock()
	t := f.task(s.newID(), now)
	var successor *Task
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		if err := store.Insert(ctx, t); err != nil {
			return err
		}
		if !t.Completed {
			return nil
		}
		var err error
		successor, err = s.completeIn(ctx, store, t, now)
		return err
	})
	if err != nil {
		return Task{}, err
	}
	log.Debug().Str("task_id", t.ID).Msg("task created")
	s.publish(events.TaskCreated, t)
	s.publishSuccessor(t.ID, successor)
	return t, nil
}

// Put writes a task under a client-chosen id, replacing every field of an
// existing record except its creation time. The bool result reports whether
// the record was newly created. Writing completed=true over an incomplete or
// absent record is a completion: prerequisites are checked and a recurring
// task is regenerated, exactly as in Update.
func (s *Service) Put(ctx context.Context, id string, f Fields) (Task, bool, error) {
	if id == "" {
		return Task{}, false, apperr.Invalid("id", "is required")
	}
	if err := f.Validate(); err != nil {
		return Task{}, false, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.clock()
	out := f.task(id, now)
	created := false
	var successor *Task
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		existing, err := store.Get(ctx, id)
		wasCompleted := false
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			created = true
			err = store.Insert(ctx, out)
		case err != nil:
			return err
		default:
			wasCompleted = existing.Completed
			out.CreatedAt = existing.CreatedAt
			err = store.Update(ctx, out)
		}
		if err != nil {
			return err
		}
		if wasCompleted || !out.Completed {
			return nil
		}
		successor, err = s.completeIn(ctx, store, out, now)
		return err
	})
	if err != nil {
		logBlocked(id, err)
		return Task{}, false, err
	}
	if created {
		s.publish(events.TaskCreated, out)
	} else {
		s.publish(events.TaskUpdated, out)
	}
	s.publishSuccessor(id, successor)
	return out, created, nil
}

// Get fetches a task by id.
func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	return s.store.Get(ctx, id)
}

// List returns every task.
func (s *Service) List(ctx context.Context) ([]Task, error) {
	return s.store.List(ctx)
}

// Ready returns actionable tasks ordered by SortReady.
func (s *Service) Ready(ctx context.Context) ([]Task, error) {
	items, err := s.store.Ready(ctx)
	if err != nil {
		return nil, err
	}
	SortReady(items)
	return items, nil
}

// Update applies a patch. A patch that moves the task from incomplete to
// completed is checked against its prerequisites first and rejected as a
// whole when any is incomplete; on success a recurring task's successor is
// written in the same transaction.
func (s *Service) Update(ctx context.Context, id string, p Patch) (UpdateResult, error) {
	if err := p.Validate(); err != nil {
		return UpdateResult{}, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.clock()
	var res UpdateResult
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		before, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		after := p.Apply(before)
		after.UpdatedAt = now
		if err := store.Update(ctx, after); err != nil {
			return err
		}
		res.Task = after
		if before.Completed || !after.Completed {
			return nil
		}
		res.Successor, err = s.completeIn(ctx, store, after, now)
		return err
	})
	if err != nil {
		logBlocked(id, err)
		return UpdateResult{}, err
	}

	s.publish(events.TaskUpdated, res.Task)
	s.publishSuccessor(id, res.Successor)
	return res, nil
}

// completeIn applies the completion rules to t, which the caller has just
// written as completed inside the transaction behind store. Incomplete
// prerequisites fail with DependencyBlockedError so the caller's transaction
// rolls back; otherwise a recurring task's successor is inserted and returned.
func (s *Service) completeIn(ctx context.Context, store *Store, t Task, now time.Time) (*Task, error) {
	decision, err := CanComplete(ctx, store, t.ID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &apperr.DependencyBlockedError{TaskID: t.ID, Blocking: decision.Blocking}
	}
	next, ok := NextInstance(t, s.newID(), now)
	if !ok {
		return nil, nil
	}
	if err := store.Insert(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

func logBlocked(id string, err error) {
	if blocking, ok := apperr.Blocking(err); ok {
		log.Info().Str("task_id", id).Strs("blocking", blocking).Msg("completion blocked")
	}
}

func (s *Service) publishSuccessor(id string, successor *Task) {
	if successor == nil {
		return
	}
	log.Info().Str("task_id", id).Str("successor_id", successor.ID).
		Str("recurrence", string(successor.Recurrence)).Msg("recurring task regenerated")
	s.publish(events.TaskCreated, *successor)
}

// Complete marks a task completed.
func (s *Service) Complete(ctx context.Context, id string) (UpdateResult, error) {
	done := true
	return s.Update(ctx, id, Patch{Completed: &done})
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(events.Global, events.TaskDeleted, map[string]string{"id": id})
	s.bus.Publish(events.TaskScope(id), events.TaskDeleted, map[string]string{"id": id})
	return nil
}

// AddDependency records that taskID requires dependsOnID. Neither task has to
// exist yet.
func (s *Service) AddDependency(ctx context.Context, taskID, dependsOnID string) error {
	if taskID == "" || dependsOnID == "" {
		return apperr.Invalid("depends_on", "task and prerequisite ids are required")
	}
	unlock := s.locks.Lock(taskID)
	defer unlock()
	return s.store.AddDependency(ctx, taskID, dependsOnID)
}

// RemoveDependency drops an edge.
func (s *Service) RemoveDependency(ctx context.Context, taskID, dependsOnID string) error {
	unlock := s.locks.Lock(taskID)
	defer unlock()
	return s.store.RemoveDependency(ctx, taskID, dependsOnID)
}

// Dependencies lists prerequisite ids.
func (s *Service) Dependencies(ctx context.Context, taskID string) ([]string, error) {
	return s.store.Dependencies(ctx, taskID)
}

// CanComplete evaluates the prerequisites of taskID against current state.
func (s *Service) CanComplete(ctx context.Context, taskID string) (Decision, error) {
	return CanComplete(ctx, s.store, taskID)
}

func (s *Service) publish(name string, t Task) {
	s.bus.Publish(events.Global, name, t)
	s.bus.Publish(events.TaskScope(t.ID), name, t)
}
