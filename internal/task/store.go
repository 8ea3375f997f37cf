package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/db"
)

// Store manages task and dependency edge persistence.
type Store struct {
	q db.Querier
}

// NewStore creates a task store over a database handle or transaction.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

const taskColumns = `id, title, description, priority, completed, due_at, creator_id, assignee_id, recurrence, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var dueAt, assignee sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Completed, &dueAt,
		&t.CreatorID, &assignee, &t.Recurrence, &createdAt, &updatedAt); err != nil {
		return Task{}, err
	}
	var err error
	if t.DueAt, err = db.ScanTime(dueAt); err != nil {
		return Task{}, err
	}
	if t.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return Task{}, err
	}
	if t.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return Task{}, err
	}
	t.AssigneeID = assignee.String
	return t, nil
}

// Insert writes a new task record.
func (s *Store) Insert(ctx context.Context, t Task) error {
	if _, err := s.q.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Priority), boolInt(t.Completed), db.NullableTime(t.DueAt),
		t.CreatorID, db.NullableString(t.AssigneeID), string(t.Recurrence),
		db.FormatTime(t.CreatedAt), db.FormatTime(t.UpdatedAt)); err != nil {
		return apperr.Unavailable("insert task", err)
	}
	return nil
}

// Get fetches a task by id.
func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, apperr.NotFound("task", id)
		}
		return Task{}, apperr.Unavailable("read task", err)
	}
	return t, nil
}

// List returns every task ordered by creation time.
func (s *Store) List(ctx context.Context) ([]Task, error) {
	return s.query(ctx, "list tasks", `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
}

// Ready returns incomplete tasks whose prerequisites all exist and are complete.
func (s *Store) Ready(ctx context.Context) ([]Task, error) {
	query := `
SELECT ` + taskColumns + `
FROM tasks t
WHERE t.completed = 0
AND NOT EXISTS (
  SELECT 1 FROM task_edges e
  LEFT JOIN tasks d ON d.id = e.depends_on_id
  WHERE e.task_id = t.id AND (d.id IS NULL OR d.completed = 0)
)
ORDER BY t.created_at, t.id`
	return s.query(ctx, "list ready tasks", query)
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]Task, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	defer func() { _ = rows.Close() }()
	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.Unavailable(op, fmt.Errorf("scan task: %w", err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	return out, nil
}

// Update overwrites every mutable field of an existing task.
func (s *Store) Update(ctx context.Context, t Task) error {
	res, err := s.q.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, priority=?, completed=?, due_at=?,
		creator_id=?, assignee_id=?, recurrence=?, updated_at=? WHERE id=?`,
		t.Title, t.Description, string(t.Priority), boolInt(t.Completed), db.NullableTime(t.DueAt),
		t.CreatorID, db.NullableString(t.AssigneeID), string(t.Recurrence), db.FormatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return apperr.Unavailable("update task", err)
	}
	return requireAffected(res, "update task", t.ID)
}

// Delete removes a task record. Edges and reminders referencing it are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return apperr.Unavailable("delete task", err)
	}
	return requireAffected(res, "delete task", id)
}

// AddDependency links task->dependsOn. Duplicate edges are ignored.
func (s *Store) AddDependency(ctx context.Context, taskID, dependsOnID string) error {
	if _, err := s.q.ExecContext(ctx, `INSERT OR IGNORE INTO task_edges(task_id, depends_on_id) VALUES(?, ?)`, taskID, dependsOnID); err != nil {
		return apperr.Unavailable("insert dependency", err)
	}
	return nil
}

// RemoveDependency drops the task->dependsOn edge.
func (s *Store) RemoveDependency(ctx context.Context, taskID, dependsOnID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM task_edges WHERE task_id=? AND depends_on_id=?`, taskID, dependsOnID)
	if err != nil {
		return apperr.Unavailable("delete dependency", err)
	}
	return requireAffected(res, "delete dependency", taskID+"->"+dependsOnID)
}

// Dependencies returns the prerequisite ids of a task.
func (s *Store) Dependencies(ctx context.Context, taskID string) ([]string, error) {
	return s.ids(ctx, "list dependencies", `SELECT depends_on_id FROM task_edges WHERE task_id=? ORDER BY depends_on_id`, taskID)
}

// IncompletePrerequisites returns prerequisite ids that are missing or not completed.
func (s *Store) IncompletePrerequisites(ctx context.Context, taskID string) ([]string, error) {
	query := `
SELECT e.depends_on_id
FROM task_edges e
LEFT JOIN tasks d ON d.id = e.depends_on_id
WHERE e.task_id = ? AND (d.id IS NULL OR d.completed = 0)
ORDER BY e.depends_on_id`
	return s.ids(ctx, "check prerequisites", query, taskID)
}

func (s *Store) ids(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	defer func() { _ = rows.Close() }()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Unavailable(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	return out, nil
}

func requireAffected(res sql.Result, op, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Unavailable(op, fmt.Errorf("rows affected: %w", err))
	}
	if rows == 0 {
		return apperr.NotFound("task", id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
