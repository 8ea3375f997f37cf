package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/metalagman/taskflow/internal/db"
	"github.com/metalagman/taskflow/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*Reconciler, *task.Service) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "taskflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	n := 0
	svc := task.NewService(database, nil,
		task.WithClock(func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }),
		task.WithIDGenerator(func() string { n++; return fmt.Sprintf("srv-%d", n) }))
	return New(svc), svc
}

func TestApplyCreateThenUpdateIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, svc := newTestReconciler(t)

	batch := []Operation{
		{Op: KindCreate, ID: "A", Data: map[string]any{"title": "draft", "priority": "high"}},
		{Op: KindUpdate, ID: "A", Data: map[string]any{"title": "x"}},
	}

	for round := 0; round < 2; round++ {
		results := rec.Apply(ctx, "u1", batch)
		require.Len(t, results, 2)
		assert.Equal(t, Result{OK: true, ID: "A"}, results[0])
		assert.Equal(t, Result{OK: true, ID: "A"}, results[1])

		all, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "x", all[0].Title)
		assert.Equal(t, task.PriorityHigh, all[0].Priority)
		assert.Equal(t, "u1", all[0].CreatorID)
	}
}

func TestApplyIsolatesFailuresAndKeepsOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, svc := newTestReconciler(t)

	prereq, err := svc.Create(ctx, task.Fields{Title: "prereq"})
	require.NoError(t, err)
	main, err := svc.Create(ctx, task.Fields{Title: "main"})
	require.NoError(t, err)
	require.NoError(t, svc.AddDependency(ctx, main.ID, prereq.ID))

	results := rec.Apply(ctx, "u1", []Operation{
		{Op: KindUpdate, ID: prereq.ID, Data: map[string]any{"completed": true}},
		{Op: KindUpdate, ID: "missing", Data: map[string]any{"title": "nope"}},
		{Op: KindUpdate, ID: main.ID, Data: map[string]any{"completed": true}},
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, "not_found", results[1].Code)
	assert.True(t, results[2].OK, results[2].Error)

	got, err := svc.Get(ctx, main.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
}

func TestApplyReportsBlockedCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, svc := newTestReconciler(t)

	main, err := svc.Create(ctx, task.Fields{Title: "main"})
	require.NoError(t, err)
	require.NoError(t, svc.AddDependency(ctx, main.ID, "later"))

	results := rec.Apply(ctx, "u1", []Operation{
		{Op: KindUpdate, ID: main.ID, Data: map[string]any{"completed": true}},
		{Op: KindCreate, ID: "later", Data: map[string]any{"title": "later", "completed": true}},
		{Op: KindUpdate, ID: main.ID, Data: map[string]any{"completed": true}},
	})
	require.Len(t, results, 3)
	assert.False(t, results[0].OK)
	assert.Equal(t, "dependency_blocked", results[0].Code)
	assert.Equal(t, []string{"later"}, results[0].Blocking)
	assert.True(t, results[1].OK)
	assert.True(t, results[2].OK)
}

func TestApplyCreateOverwriteGoesThroughCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, svc := newTestReconciler(t)

	results := rec.Apply(ctx, "u1", []Operation{
		{Op: KindCreate, ID: "A", Data: map[string]any{"title": "stretch", "recurrence": "daily"}},
	})
	require.True(t, results[0].OK, results[0].Error)
	prereq, err := svc.Create(ctx, task.Fields{Title: "warm up"})
	require.NoError(t, err)
	require.NoError(t, svc.AddDependency(ctx, "A", prereq.ID))

	complete := Operation{Op: KindCreate, ID: "A", Data: map[string]any{"title": "stretch", "recurrence": "daily", "completed": true}}
	results = rec.Apply(ctx, "u1", []Operation{
		complete,
		{Op: KindUpdate, ID: prereq.ID, Data: map[string]any{"completed": true}},
		complete,
	})
	require.Len(t, results, 3)
	assert.False(t, results[0].OK)
	assert.Equal(t, "dependency_blocked", results[0].Code)
	assert.Equal(t, []string{prereq.ID}, results[0].Blocking)
	assert.True(t, results[1].OK, results[1].Error)
	assert.True(t, results[2].OK, results[2].Error)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	var successors int
	for _, item := range all {
		if item.Title == "stretch" && item.ID != "A" {
			successors++
			assert.False(t, item.Completed)
		}
	}
	assert.Equal(t, 1, successors)
}

func TestApplyRejectsInvalidOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, svc := newTestReconciler(t)

	results := rec.Apply(ctx, "u1", []Operation{
		{Op: "delete", ID: "A"},
		{Op: KindCreate, Data: map[string]any{"title": "t", "priority": "urgent"}},
		{Op: KindCreate, Data: map[string]any{"title": "t", "colour": "red"}},
		{Op: KindUpdate, Data: map[string]any{"title": "t"}},
		{Op: KindCreate, Data: map[string]any{"description": "no title"}},
		{Op: KindCreate, Data: map[string]any{"title": "ok", "due_at": "2024-06-01T10:00:00Z"}},
	})
	require.Len(t, results, 6)
	for i := 0; i < 5; i++ {
		assert.False(t, results[i].OK, "op %d", i)
		assert.Equal(t, "validation_failed", results[i].Code, "op %d", i)
	}
	require.True(t, results[5].OK, results[5].Error)
	assert.Equal(t, "srv-1", results[5].ID)

	created, err := svc.Get(ctx, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, created.DueAt)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), *created.DueAt)
}

func TestApplyUpdateClearsNullableFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, svc := newTestReconciler(t)

	results := rec.Apply(ctx, "u1", []Operation{
		{Op: KindCreate, ID: "A", Data: map[string]any{
			"title": "t", "due_at": "2024-06-01T10:00:00Z", "assignee_id": "u2", "recurrence": "weekly",
		}},
		{Op: KindUpdate, ID: "A", Data: map[string]any{"due_at": nil, "assignee_id": nil, "recurrence": nil}},
	})
	require.True(t, results[0].OK, results[0].Error)
	require.True(t, results[1].OK, results[1].Error)

	got, err := svc.Get(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, got.DueAt)
	assert.Empty(t, got.AssigneeID)
	assert.Equal(t, task.RecurrenceNone, got.Recurrence)
}

func TestApplyEmptyBatch(t *testing.T) {
	t.Parallel()
	rec, _ := newTestReconciler(t)
	assert.Empty(t, rec.Apply(context.Background(), "u1", nil))
}
