package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAssignsIDAndPublishes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock, rec := newTestService(t)

	created, err := svc.Create(ctx, Fields{Title: "  write report ", CreatorID: "u1", AssigneeID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "t1", created.ID)
	assert.Equal(t, "write report", created.Title)
	assert.Equal(t, PriorityMedium, created.Priority)
	assert.Equal(t, clock.Now(), created.CreatedAt)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	assert.Len(t, rec.named(events.Global, events.TaskCreated), 1)
	assert.Len(t, rec.named(events.TaskScope("t1"), events.TaskCreated), 1)
}

func TestCreateRejectsInvalidFields(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), Fields{Title: " ", Priority: "urgent", Recurrence: "yearly"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "priority")
	assert.Contains(t, verr.Fields, "recurrence")
}

func TestGetUpdateDeleteMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Update(ctx, "nope", Patch{Title: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "nope"), apperr.ErrNotFound)
}

func TestDeletePublishesIDOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, rec := newTestService(t)

	created, err := svc.Create(ctx, Fields{Title: "a"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	deleted := rec.named(events.Global, events.TaskDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, map[string]string{"id": created.ID}, deleted[0].Payload)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCanCompleteReportsExactlyIncompletePrerequisites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	main := mustCreate(t, svc, "main")
	done := mustCreate(t, svc, "done")
	open := mustCreate(t, svc, "open")
	_, err := svc.Complete(ctx, done.ID)
	require.NoError(t, err)

	require.NoError(t, svc.AddDependency(ctx, main.ID, done.ID))
	require.NoError(t, svc.AddDependency(ctx, main.ID, open.ID))
	require.NoError(t, svc.AddDependency(ctx, main.ID, open.ID))
	require.NoError(t, svc.AddDependency(ctx, main.ID, "ghost"))

	deps, err := svc.Dependencies(ctx, main.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{done.ID, open.ID, "ghost"}, deps)

	decision, err := svc.CanComplete(ctx, main.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.ElementsMatch(t, []string{open.ID, "ghost"}, decision.Blocking)

	solo := mustCreate(t, svc, "solo")
	decision, err = svc.CanComplete(ctx, solo.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Blocking)
}

func TestCompletionBlockedIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, rec := newTestService(t)

	main := mustCreate(t, svc, "main")
	prereq := mustCreate(t, svc, "prereq")
	require.NoError(t, svc.AddDependency(ctx, main.ID, prereq.ID))

	_, err := svc.Update(ctx, main.ID, Patch{Title: ptr("renamed"), Completed: ptr(true)})
	require.ErrorIs(t, err, apperr.ErrDependencyBlocked)
	blocking, ok := apperr.Blocking(err)
	require.True(t, ok)
	assert.Equal(t, []string{prereq.ID}, blocking)

	got, err := svc.Get(ctx, main.ID)
	require.NoError(t, err)
	assert.Equal(t, "main", got.Title)
	assert.False(t, got.Completed)
	assert.Empty(t, rec.named(events.Global, events.TaskUpdated))

	_, err = svc.Complete(ctx, prereq.ID)
	require.NoError(t, err)
	res, err := svc.Complete(ctx, main.ID)
	require.NoError(t, err)
	assert.True(t, res.Task.Completed)
	assert.Nil(t, res.Successor)
}

func TestDependencyCycleBlocksEveryMember(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	a := mustCreate(t, svc, "a")
	b := mustCreate(t, svc, "b")
	require.NoError(t, svc.AddDependency(ctx, a.ID, b.ID))
	require.NoError(t, svc.AddDependency(ctx, b.ID, a.ID))

	_, err := svc.Complete(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrDependencyBlocked)
	_, err = svc.Complete(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrDependencyBlocked)

	self := mustCreate(t, svc, "self")
	require.NoError(t, svc.AddDependency(ctx, self.ID, self.ID))
	_, err = svc.Complete(ctx, self.ID)
	assert.ErrorIs(t, err, apperr.ErrDependencyBlocked)
}

func TestCompletingDailyTaskCreatesOneSuccessor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, rec := newTestService(t)

	due := date(2024, 1, 31, 10)
	orig, err := svc.Create(ctx, Fields{
		Title: "standup", Description: "notes", Priority: PriorityHigh,
		DueAt: &due, AssigneeID: "u2", Recurrence: RecurrenceDaily,
	})
	require.NoError(t, err)

	res, err := svc.Complete(ctx, orig.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Successor)

	next := *res.Successor
	assert.NotEqual(t, orig.ID, next.ID)
	assert.False(t, next.Completed)
	assert.Equal(t, date(2024, 2, 1, 10), *next.DueAt)
	assert.Equal(t, "standup", next.Title)
	assert.Equal(t, "notes", next.Description)
	assert.Equal(t, PriorityHigh, next.Priority)
	assert.Equal(t, "u2", next.AssigneeID)
	assert.Equal(t, RecurrenceDaily, next.Recurrence)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stored, err := svc.Get(ctx, orig.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Equal(t, due, *stored.DueAt)

	assert.Len(t, rec.named(events.Global, events.TaskCreated), 2)

	// Updating an already completed task never regenerates again.
	_, err = svc.Update(ctx, orig.ID, Patch{Completed: ptr(true), Title: ptr("standup!")})
	require.NoError(t, err)
	all, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCompletingMonthlyTaskClamps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	for _, tc := range []struct {
		due, want string
	}{
		{"2024-01-31T00:00:00Z", "2024-02-29T00:00:00Z"},
		{"2023-01-31T00:00:00Z", "2023-02-28T00:00:00Z"},
	} {
		due := mustParse(t, tc.due)
		orig, err := svc.Create(ctx, Fields{Title: "rent", DueAt: &due, Recurrence: RecurrenceMonthly})
		require.NoError(t, err)
		res, err := svc.Complete(ctx, orig.ID)
		require.NoError(t, err)
		require.NotNil(t, res.Successor)
		assert.Equal(t, mustParse(t, tc.want), *res.Successor.DueAt)
	}
}

func TestCompletingRecurringTaskWithoutDueUsesNow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock, _ := newTestService(t)

	orig, err := svc.Create(ctx, Fields{Title: "review", Recurrence: RecurrenceWeekly})
	require.NoError(t, err)
	res, err := svc.Complete(ctx, orig.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Successor)
	assert.Equal(t, clock.Now().AddDate(0, 0, 7), *res.Successor.DueAt)
}

func TestConcurrentCompletionRegeneratesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	orig, err := svc.Create(ctx, Fields{Title: "daily", Recurrence: RecurrenceDaily})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Complete(ctx, orig.ID)
		}()
	}
	wg.Wait()

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPutOverwritesInsteadOfDuplicating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock, rec := newTestService(t)

	first, created, err := svc.Put(ctx, "client-1", Fields{Title: "draft", Priority: PriorityLow})
	require.NoError(t, err)
	assert.True(t, created)

	clock.Set(clock.Now().Add(time.Hour))
	second, created, err := svc.Put(ctx, "client-1", Fields{Title: "final"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "final", second.Title)
	assert.Equal(t, PriorityMedium, second.Priority)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, rec.named(events.Global, events.TaskCreated), 1)
	assert.Len(t, rec.named(events.Global, events.TaskUpdated), 1)
}

func TestPutCompletionHonorsPrerequisites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, rec := newTestService(t)

	due := date(2024, 1, 20, 8)
	_, _, err := svc.Put(ctx, "A", Fields{Title: "water plants", DueAt: &due, Recurrence: RecurrenceDaily})
	require.NoError(t, err)
	prereq := mustCreate(t, svc, "buy can")
	require.NoError(t, svc.AddDependency(ctx, "A", prereq.ID))

	overwrite := Fields{Title: "water plants", DueAt: &due, Recurrence: RecurrenceDaily, Completed: true}
	_, _, err = svc.Put(ctx, "A", overwrite)
	require.ErrorIs(t, err, apperr.ErrDependencyBlocked)
	blocking, ok := apperr.Blocking(err)
	require.True(t, ok)
	assert.Equal(t, []string{prereq.ID}, blocking)

	got, err := svc.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, got.Completed)
	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Complete(ctx, prereq.ID)
	require.NoError(t, err)
	created := len(rec.named(events.Global, events.TaskCreated))

	out, isNew, err := svc.Put(ctx, "A", overwrite)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.True(t, out.Completed)
	all, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	successors := rec.named(events.Global, events.TaskCreated)[created:]
	require.Len(t, successors, 1)
	next := successors[0].Payload.(Task)
	assert.Equal(t, date(2024, 1, 21, 8), *next.DueAt)
	assert.False(t, next.Completed)

	// Replaying the same completed record is not a second completion.
	_, _, err = svc.Put(ctx, "A", overwrite)
	require.NoError(t, err)
	all, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreateCompletedRecurringTaskRegenerates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, rec := newTestService(t)

	due := date(2024, 1, 31, 10)
	done, err := svc.Create(ctx, Fields{Title: "invoice", DueAt: &due, Recurrence: RecurrenceMonthly, Completed: true})
	require.NoError(t, err)
	assert.True(t, done.Completed)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	created := rec.named(events.Global, events.TaskCreated)
	require.Len(t, created, 2)
	next := created[1].Payload.(Task)
	assert.NotEqual(t, done.ID, next.ID)
	assert.Equal(t, date(2024, 2, 29, 10), *next.DueAt)
}

func TestReadyOrdersActionableTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	low, err := svc.Create(ctx, Fields{Title: "low", Priority: PriorityLow})
	require.NoError(t, err)
	high, err := svc.Create(ctx, Fields{Title: "high", Priority: PriorityHigh})
	require.NoError(t, err)
	blocked, err := svc.Create(ctx, Fields{Title: "blocked", Priority: PriorityHigh})
	require.NoError(t, err)
	require.NoError(t, svc.AddDependency(ctx, blocked.ID, low.ID))

	ready, err := svc.Ready(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, high.ID, ready[0].ID)
	assert.Equal(t, low.ID, ready[1].ID)

	require.NoError(t, svc.RemoveDependency(ctx, blocked.ID, low.ID))
	assert.ErrorIs(t, svc.RemoveDependency(ctx, blocked.ID, low.ID), apperr.ErrNotFound)
	ready, err = svc.Ready(ctx)
	require.NoError(t, err)
	assert.Len(t, ready, 3)
}

func TestUpdateClearsDueAndAssignee(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	due := date(2024, 6, 1, 0)
	orig, err := svc.Create(ctx, Fields{Title: "x", DueAt: &due, AssigneeID: "u1"})
	require.NoError(t, err)

	res, err := svc.Update(ctx, orig.ID, Patch{ClearDueAt: true, AssigneeID: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, res.Task.DueAt)
	assert.Empty(t, res.Task.AssigneeID)

	_, err = svc.Update(ctx, orig.ID, Patch{ClearDueAt: true, DueAt: &due})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func mustCreate(t *testing.T, svc *Service, title string) Task {
	t.Helper()
	created, err := svc.Create(context.Background(), Fields{Title: title})
	require.NoError(t, err)
	return created
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
