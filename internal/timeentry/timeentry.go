// Package timeentry tracks time spent on tasks.
package timeentry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/db"
	"github.com/metalagman/taskflow/internal/keylock"
)

// Entry is a single tracked interval. DurationSeconds stays nil until the
// entry is stopped and never changes afterwards.
type Entry struct {
	ID              string     `json:"id"`
	TaskID          string     `json:"task_id"`
	UserID          string     `json:"user_id"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
}

// Running reports whether the entry has not been stopped.
func (e Entry) Running() bool {
	return e.StoppedAt == nil
}

// Duration returns whole seconds between start and stop, floored at zero.
func Duration(start, stop time.Time) int64 {
	d := int64(stop.Sub(start) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// Service starts and stops time entries.
type Service struct {
	db    *sql.DB
	locks *keylock.Locker
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

// NewService creates a time entry service.
func NewService(database *sql.DB, opts ...Option) *Service {
	s := &Service{db: database, locks: keylock.New(), now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const entryColumns = `id, task_id, user_id, started_at, stopped_at, duration_seconds`

// Start opens a new entry for the user on the task.
func (s *Service) Start(ctx context.Context, taskID, userID string) (Entry, error) {
	errs := map[string]string{}
	if strings.TrimSpace(taskID) == "" {
		errs["task_id"] = "is required"
	}
	if strings.TrimSpace(userID) == "" {
		errs["user_id"] = "is required"
	}
	if len(errs) > 0 {
		return Entry{}, &apperr.ValidationError{Fields: errs}
	}
	e := Entry{ID: s.newID(), TaskID: taskID, UserID: userID, StartedAt: s.now().UTC()}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO time_entries(`+entryColumns+`) VALUES(?, ?, ?, ?, NULL, NULL)`,
		e.ID, e.TaskID, e.UserID, db.FormatTime(e.StartedAt)); err != nil {
		return Entry{}, apperr.Unavailable("insert time entry", err)
	}
	return e, nil
}

// Stop records the stop time and duration. Stopping twice is rejected.
func (s *Service) Stop(ctx context.Context, id string) (Entry, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var out Entry
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !e.Running() {
			return apperr.Invalid("stopped_at", "time entry already stopped")
		}
		stop := s.now().UTC()
		dur := Duration(e.StartedAt, stop)
		if _, err := tx.ExecContext(ctx, `UPDATE time_entries SET stopped_at=?, duration_seconds=? WHERE id=? AND stopped_at IS NULL`,
			db.FormatTime(stop), dur, id); err != nil {
			return apperr.Unavailable("stop time entry", err)
		}
		e.StoppedAt = &stop
		e.DurationSeconds = &dur
		out = e
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return out, nil
}

// Get fetches an entry.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	return get(ctx, s.db, id)
}

// ListForTask returns entries for a task ordered by start time.
func (s *Service) ListForTask(ctx context.Context, taskID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE task_id=? ORDER BY started_at, id`, taskID)
	if err != nil {
		return nil, apperr.Unavailable("list time entries", err)
	}
	defer func() { _ = rows.Close() }()
	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperr.Unavailable("list time entries", fmt.Errorf("scan time entry: %w", err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("list time entries", err)
	}
	return out, nil
}

func get(ctx context.Context, q db.Querier, id string) (Entry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id=?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, apperr.NotFound("time entry", id)
		}
		return Entry{}, apperr.Unavailable("read time entry", err)
	}
	return e, nil
}

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var startedAt string
	var stoppedAt sql.NullString
	var duration sql.NullInt64
	if err := row.Scan(&e.ID, &e.TaskID, &e.UserID, &startedAt, &stoppedAt, &duration); err != nil {
		return Entry{}, err
	}
	var err error
	if e.StartedAt, err = db.ParseTime(startedAt); err != nil {
		return Entry{}, err
	}
	if e.StoppedAt, err = db.ScanTime(stoppedAt); err != nil {
		return Entry{}, err
	}
	if duration.Valid {
		d := duration.Int64
		e.DurationSeconds = &d
	}
	return e, nil
}
