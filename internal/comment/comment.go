// Package comment stores task comments and announces them on the task scope.
package comment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/db"
	"github.com/metalagman/taskflow/internal/events"
)

// Comment is a note left on a task.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Service creates and lists comments.
type Service struct {
	db    *sql.DB
	bus   events.Publisher
	now   func() time.Time
	newID func() string
}

// NewService creates a comment service.
func NewService(database *sql.DB, bus events.Publisher) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Service{db: database, bus: bus, now: time.Now, newID: uuid.NewString}
}

// Create stores a comment and publishes comment:created to the task scope.
func (s *Service) Create(ctx context.Context, taskID, userID, body string) (Comment, error) {
	errs := map[string]string{}
	if strings.TrimSpace(taskID) == "" {
		errs["task_id"] = "is required"
	}
	if strings.TrimSpace(userID) == "" {
		errs["user_id"] = "is required"
	}
	if strings.TrimSpace(body) == "" {
		errs["body"] = "is required"
	}
	if len(errs) > 0 {
		return Comment{}, &apperr.ValidationError{Fields: errs}
	}
	c := Comment{ID: s.newID(), TaskID: taskID, UserID: userID, Body: body, CreatedAt: s.now().UTC()}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO comments(id, task_id, user_id, body, created_at) VALUES(?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.UserID, c.Body, db.FormatTime(c.CreatedAt)); err != nil {
		return Comment{}, apperr.Unavailable("insert comment", err)
	}
	s.bus.Publish(events.TaskScope(taskID), events.CommentCreated, c)
	return c, nil
}

// List returns the comments of a task, oldest first.
func (s *Service) List(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, user_id, body, created_at FROM comments WHERE task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, apperr.Unavailable("list comments", err)
	}
	defer func() { _ = rows.Close() }()
	out := []Comment{}
	for rows.Next() {
		var c Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Body, &createdAt); err != nil {
			return nil, apperr.Unavailable("list comments", fmt.Errorf("scan comment: %w", err))
		}
		if c.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, apperr.Unavailable("list comments", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("list comments", err)
	}
	return out, nil
}
