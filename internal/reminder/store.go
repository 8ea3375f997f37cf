package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/db"
)

// Store manages reminder persistence.
type Store struct {
	q db.Querier
}

// NewStore creates a reminder store.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

const reminderColumns = `id, task_id, user_id, remind_at, snoozed_until, sent, created_at`

func scanReminder(row interface{ Scan(...any) error }) (Reminder, error) {
	var r Reminder
	var remindAt, snoozed sql.NullString
	var createdAt string
	if err := row.Scan(&r.ID, &r.TaskID, &r.UserID, &remindAt, &snoozed, &r.Sent, &createdAt); err != nil {
		return Reminder{}, err
	}
	var err error
	if r.RemindAt, err = db.ScanTime(remindAt); err != nil {
		return Reminder{}, err
	}
	if r.SnoozedUntil, err = db.ScanTime(snoozed); err != nil {
		return Reminder{}, err
	}
	if r.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

// Insert writes a reminder.
func (s *Store) Insert(ctx context.Context, r Reminder) error {
	sent := 0
	if r.Sent {
		sent = 1
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO reminders(`+reminderColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.UserID, db.NullableTime(r.RemindAt), db.NullableTime(r.SnoozedUntil), sent,
		db.FormatTime(r.CreatedAt)); err != nil {
		return apperr.Unavailable("insert reminder", err)
	}
	return nil
}

// Get fetches a reminder by id.
func (s *Store) Get(ctx context.Context, id string) (Reminder, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id=?`, id)
	r, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Reminder{}, apperr.NotFound("reminder", id)
		}
		return Reminder{}, apperr.Unavailable("read reminder", err)
	}
	return r, nil
}

// ListForUser returns a user's reminders.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]Reminder, error) {
	return s.query(ctx, "list reminders",
		`SELECT `+reminderColumns+` FROM reminders WHERE user_id=? ORDER BY remind_at, id`, userID)
}

// Due returns unsent reminders whose fire time is at or before now,
// regardless of snooze.
func (s *Store) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	return s.query(ctx, "list due reminders",
		`SELECT `+reminderColumns+` FROM reminders
		WHERE sent = 0 AND remind_at IS NOT NULL AND remind_at <= ?
		ORDER BY remind_at, id`, db.FormatTime(now))
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]Reminder, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	defer func() { _ = rows.Close() }()
	out := []Reminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, apperr.Unavailable(op, fmt.Errorf("scan reminder: %w", err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	return out, nil
}

// SetSnooze updates snoozed_until.
func (s *Store) SetSnooze(ctx context.Context, id string, until *time.Time) error {
	res, err := s.q.ExecContext(ctx, `UPDATE reminders SET snoozed_until=? WHERE id=?`, db.NullableTime(until), id)
	if err != nil {
		return apperr.Unavailable("snooze reminder", err)
	}
	return affected(res, "snooze reminder", id)
}

// MarkSent flips the sent flag. It never clears it.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE reminders SET sent=1 WHERE id=?`, id)
	if err != nil {
		return apperr.Unavailable("mark reminder sent", err)
	}
	return affected(res, "mark reminder sent", id)
}

// Delete removes a reminder.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM reminders WHERE id=?`, id)
	if err != nil {
		return apperr.Unavailable("delete reminder", err)
	}
	return affected(res, "delete reminder", id)
}

func affected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Unavailable(op, fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return apperr.NotFound("reminder", id)
	}
	return nil
}
