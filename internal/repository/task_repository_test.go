package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
)

func TestTaskRepository_LoadMissingIsEmpty(t *testing.T) {
	repo := NewTaskRepository(newFileStore(t))
	list, err := repo.Load(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), list.OwnerID)
	assert.Empty(t, list.Tasks)
	assert.Equal(t, 1, list.NextTaskID)
}

func TestTaskRepository_MutateRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newGormStore(t))
	created := time.Date(2025, 6, 15, 16, 0, 0, 0, time.UTC)

	_, err := repo.Mutate(ctx, 1, func(list *model.TaskList) error {
		list.Tasks = append(list.Tasks, model.Task{TaskID: list.NextTaskID, Description: "Buy wood", CreatedAt: created})
		list.NextTaskID++
		return nil
	})
	require.NoError(t, err)

	list, err := repo.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Buy wood", list.Tasks[0].Description)
	assert.True(t, list.Tasks[0].CreatedAt.Equal(created))
	assert.Equal(t, 2, list.NextTaskID)

	abort := errors.New("abort")
	_, err = repo.Mutate(ctx, 1, func(list *model.TaskList) error {
		list.Tasks = nil
		return abort
	})
	assert.ErrorIs(t, err, abort)

	list, err = repo.Load(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list.Tasks, 1)
}

func TestTaskRepository_ListAssignedTo(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newFileStore(t))

	seed := func(owner int64, tasks ...model.Task) {
		_, err := repo.Mutate(ctx, owner, func(list *model.TaskList) error {
			list.Tasks = tasks
			list.Renumber()
			return nil
		})
		require.NoError(t, err)
	}
	seed(1, model.Task{Description: "a", AssignedTo: 3}, model.Task{Description: "b"})
	seed(2, model.Task{Description: "c", AssignedTo: 3, Completed: true}, model.Task{Description: "d", AssignedTo: 3})

	got, err := repo.ListAssignedTo(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].OwnerID)
	assert.Equal(t, "a", got[0].Task.Description)
	assert.Equal(t, int64(2), got[1].OwnerID)
	assert.Equal(t, "d", got[1].Task.Description)
	assert.Equal(t, 2, got[1].Task.TaskID)
}

func TestReminderRepository_OrderedByFireTime(t *testing.T) {
	ctx := context.Background()
	repo := NewReminderRepository(newFileStore(t))
	base := time.Date(2025, 6, 15, 16, 0, 0, 0, time.UTC)

	for _, r := range []model.Reminder{
		{OwnerID: 1, TaskID: 1, FireAt: base.Add(2 * time.Hour)},
		{OwnerID: 1, TaskID: 2, FireAt: base.Add(time.Hour)},
		{OwnerID: 2, TaskID: 1, FireAt: base},
	} {
		r.ReminderID = model.ReminderID(r.OwnerID, r.TaskID, r.FireAt)
		r.CreatedAt = base
		require.NoError(t, repo.Save(ctx, r))
	}

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(2), all[0].OwnerID)
	assert.Equal(t, 2, all[1].TaskID)

	mine, err := repo.ListByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	byTask, err := repo.ListByTask(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, byTask, 1)

	got, err := repo.Get(ctx, byTask[0].ReminderID)
	require.NoError(t, err)
	assert.True(t, got.FireAt.Equal(base.Add(time.Hour)))

	require.NoError(t, repo.Delete(ctx, got.ReminderID))
	_, err = repo.Get(ctx, got.ReminderID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileRepository_FindOrCreateKeepsExisting(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository(newGormStore(t))

	_, err := repo.Find(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := repo.FindOrCreate(ctx, model.Profile{UserID: 5, DisplayName: "User 5", Timezone: "America/New_York"})
	require.NoError(t, err)
	assert.Equal(t, "User 5", p.DisplayName)

	_, err = repo.Mutate(ctx, 5, model.Profile{}, func(p *model.Profile) error {
		p.Timezone = "Europe/Paris"
		return nil
	})
	require.NoError(t, err)

	p, err = repo.FindOrCreate(ctx, model.Profile{UserID: 5, DisplayName: "other", Timezone: "UTC"})
	require.NoError(t, err)
	assert.Equal(t, "User 5", p.DisplayName)
	assert.Equal(t, "Europe/Paris", p.Timezone)
}
