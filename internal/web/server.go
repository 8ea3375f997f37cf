// Package web exposes the task lifecycle engine over HTTP.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metalagman/taskflow/internal/comment"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/metalagman/taskflow/internal/reconcile"
	"github.com/metalagman/taskflow/internal/reminder"
	"github.com/metalagman/taskflow/internal/task"
	"github.com/metalagman/taskflow/internal/timeentry"
	"github.com/rs/zerolog/log"
)

// UserHeader carries the caller's identity, established by the auth layer in
// front of this server.
const UserHeader = "X-User-ID"

// Comments is the comment surface used by the handlers.
type Comments interface {
	Create(ctx context.Context, taskID, userID, body string) (comment.Comment, error)
	List(ctx context.Context, taskID string) ([]comment.Comment, error)
}

// TimeEntries is the time tracking surface used by the handlers.
type TimeEntries interface {
	Start(ctx context.Context, taskID, userID string) (timeentry.Entry, error)
	Stop(ctx context.Context, id string) (timeentry.Entry, error)
	ListForTask(ctx context.Context, taskID string) ([]timeentry.Entry, error)
}

// Reminders is the reminder surface used by the handlers.
type Reminders interface {
	Create(ctx context.Context, in reminder.NewReminder) (reminder.Reminder, error)
	ListForUser(ctx context.Context, userID string) ([]reminder.Reminder, error)
	Snooze(ctx context.Context, id string, until time.Time) (reminder.Reminder, error)
	Delete(ctx context.Context, id string) error
}

// Syncer replays client batches.
type Syncer interface {
	Apply(ctx context.Context, userID string, ops []reconcile.Operation) []reconcile.Result
}

// Subscriber registers live event handlers.
type Subscriber interface {
	Subscribe(scope events.Scope, h events.Handler) func()
}

// Deps bundles the collaborators of Server.
type Deps struct {
	Tasks       task.Tracker
	Comments    Comments
	TimeEntries TimeEntries
	Reminders   Reminders
	Sync        Syncer
	Events      Subscriber
}

// Server is the HTTP boundary.
type Server struct {
	deps   Deps
	router *gin.Engine
}

// NewServer creates a server and registers its routes.
func NewServer(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{deps: deps, router: router}

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) })

	api := router.Group("/api")
	{
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/ready", s.handleReadyTasks)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		api.GET("/tasks/:id/dependencies", s.handleListDependencies)
		api.POST("/tasks/:id/dependencies", s.handleAddDependency)
		api.DELETE("/tasks/:id/dependencies/:dep", s.handleRemoveDependency)
		api.GET("/tasks/:id/can-complete", s.handleCanComplete)

		api.GET("/tasks/:id/comments", s.handleListComments)
		api.POST("/tasks/:id/comments", s.handleCreateComment)

		api.GET("/tasks/:id/time-entries", s.handleListTimeEntries)
		api.POST("/tasks/:id/time-entries", s.handleStartTimeEntry)
		api.POST("/time-entries/:id/stop", s.handleStopTimeEntry)

		api.GET("/reminders", s.handleListReminders)
		api.POST("/reminders", s.handleCreateReminder)
		api.POST("/reminders/:id/snooze", s.handleSnoozeReminder)
		api.DELETE("/reminders/:id", s.handleDeleteReminder)

		api.POST("/sync", s.handleSync)
		api.GET("/events", s.handleEvents)
	}

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
