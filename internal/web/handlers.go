package web

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/metalagman/taskflow/internal/reconcile"
	"github.com/metalagman/taskflow/internal/reminder"
	"github.com/metalagman/taskflow/internal/task"
)

const maxSyncOps = 1000

func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(UserHeader))
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	body := gin.H{"success": false, "error": err.Error(), "code": apperr.Code(err)}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			body["fields"] = verr.Fields
		}
	case errors.Is(err, apperr.ErrDependencyBlocked):
		status = http.StatusConflict
		blocking, _ := apperr.Blocking(err)
		body["blocking"] = blocking
	case errors.Is(err, apperr.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}

func bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		fail(c, apperr.Invalid("body", err.Error()))
		return false
	}
	return true
}

// Tasks

func (s *Server) handleListTasks(c *gin.Context) {
	items, err := s.deps.Tasks.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

func (s *Server) handleReadyTasks(c *gin.Context) {
	items, err := s.deps.Tasks.Ready(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var fields task.Fields
	if !bind(c, &fields) {
		return
	}
	if fields.CreatorID == "" {
		fields.CreatorID = userID(c)
	}
	created, err := s.deps.Tasks.Create(c.Request.Context(), fields)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

func (s *Server) handleGetTask(c *gin.Context) {
	item, err := s.deps.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, item)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var patch task.Patch
	if !bind(c, &patch) {
		return
	}
	res, err := s.deps.Tasks.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Tasks.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id})
}

// Dependencies

type dependencyRequest struct {
	DependsOn string `json:"depends_on"`
}

func (s *Server) handleListDependencies(c *gin.Context) {
	ids, err := s.deps.Tasks.Dependencies(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, ids)
}

func (s *Server) handleAddDependency(c *gin.Context) {
	var req dependencyRequest
	if !bind(c, &req) {
		return
	}
	if err := s.deps.Tasks.AddDependency(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.DependsOn)); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"task_id": c.Param("id"), "depends_on": req.DependsOn})
}

func (s *Server) handleRemoveDependency(c *gin.Context) {
	if err := s.deps.Tasks.RemoveDependency(c.Request.Context(), c.Param("id"), c.Param("dep")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"task_id": c.Param("id"), "depends_on": c.Param("dep")})
}

func (s *Server) handleCanComplete(c *gin.Context) {
	decision, err := s.deps.Tasks.CanComplete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, decision)
}

// Comments

type commentRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleListComments(c *gin.Context) {
	items, err := s.deps.Comments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

func (s *Server) handleCreateComment(c *gin.Context) {
	var req commentRequest
	if !bind(c, &req) {
		return
	}
	created, err := s.deps.Comments.Create(c.Request.Context(), c.Param("id"), userID(c), req.Body)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

// Time entries

func (s *Server) handleListTimeEntries(c *gin.Context) {
	items, err := s.deps.TimeEntries.ListForTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

func (s *Server) handleStartTimeEntry(c *gin.Context) {
	entry, err := s.deps.TimeEntries.Start(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, entry)
}

func (s *Server) handleStopTimeEntry(c *gin.Context) {
	entry, err := s.deps.TimeEntries.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, entry)
}

// Reminders

type snoozeRequest struct {
	Until time.Time `json:"snoozed_until"`
}

func (s *Server) handleListReminders(c *gin.Context) {
	user := userID(c)
	if user == "" {
		fail(c, apperr.Invalid(UserHeader, "is required"))
		return
	}
	items, err := s.deps.Reminders.ListForUser(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

func (s *Server) handleCreateReminder(c *gin.Context) {
	var req reminder.NewReminder
	if !bind(c, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = userID(c)
	}
	created, err := s.deps.Reminders.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

func (s *Server) handleSnoozeReminder(c *gin.Context) {
	var req snoozeRequest
	if !bind(c, &req) {
		return
	}
	updated, err := s.deps.Reminders.Snooze(c.Request.Context(), c.Param("id"), req.Until)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, updated)
}

func (s *Server) handleDeleteReminder(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Reminders.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id})
}

// Sync

type syncRequest struct {
	Operations []reconcile.Operation `json:"operations"`
}

func (s *Server) handleSync(c *gin.Context) {
	var req syncRequest
	if !bind(c, &req) {
		return
	}
	if len(req.Operations) > maxSyncOps {
		fail(c, apperr.Invalid("operations", "batch too large"))
		return
	}
	results := s.deps.Sync.Apply(c.Request.Context(), userID(c), req.Operations)
	ok(c, http.StatusOK, gin.H{"results": results})
}

// Events

// handleEvents streams live events as server-sent events. Without a task
// query it follows the global and caller scopes; with ?task=<id> it follows
// that task and the caller.
func (s *Server) handleEvents(c *gin.Context) {
	ch := make(chan events.Event, 64)
	handler := func(ev events.Event) {
		select {
		case ch <- ev:
		default:
		}
	}

	scopes := []events.Scope{events.Global}
	if id := c.Query("task"); id != "" {
		scopes = []events.Scope{events.TaskScope(id)}
	}
	if user := userID(c); user != "" {
		scopes = append(scopes, events.UserScope(user))
	}
	for _, scope := range scopes {
		unsubscribe := s.deps.Events.Subscribe(scope, handler)
		defer unsubscribe()
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev := <-ch:
			c.SSEvent(ev.Name, ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
