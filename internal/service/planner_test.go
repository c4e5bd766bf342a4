package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
)

func TestPlanner_OverviewCreatesProfileLazily(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)

	_, err := e.profiles.Find(ctx, userC)
	require.ErrorIs(t, err, ErrNotFound)

	ov, err := e.planner.Overview(ctx, userC)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", ov.Profile.Timezone)
	assert.Equal(t, DefaultMaxTasks, ov.MaxTasks)
	assert.Empty(t, ov.Tasks)

	known, err := e.profiles.Exists(ctx, userC)
	require.NoError(t, err)
	assert.True(t, known)
}

func TestPlanner_Overview(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)

	_, err := e.planner.AddTask(ctx, ownerA, "Buy wood")
	require.NoError(t, err)
	_, err = e.planner.AddTask(ctx, ownerA, "Buy stone")
	require.NoError(t, err)
	_, err = e.planner.AssignTask(ctx, ownerA, 2, userB, "")
	require.NoError(t, err)
	_, err = e.planner.SetReminder(ctx, ownerA, 1, "tomorrow at 8am")
	require.NoError(t, err)
	_, err = e.planner.AddTask(ctx, userB, "Return the cart")
	require.NoError(t, err)
	_, err = e.planner.AssignTask(ctx, userB, 1, ownerA, "")
	require.NoError(t, err)

	ov, err := e.planner.Overview(ctx, ownerA)
	require.NoError(t, err)
	assert.Len(t, ov.Tasks, 2)
	require.Len(t, ov.Delegated, 1)
	assert.Equal(t, 2, ov.Delegated[0].TaskID)
	require.Len(t, ov.Assigned, 1)
	assert.Equal(t, userB, ov.Assigned[0].OwnerID)
	require.Len(t, ov.Reminders, 1)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.True(t, ov.Reminders[0].FireAt.Equal(time.Date(2025, time.June, 16, 8, 0, 0, 0, loc)))
}

func TestPlanner_SnoozeOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	_, err := e.planner.AddTask(ctx, ownerA, "Buy wood")
	require.NoError(t, err)
	rem, err := e.planner.SetReminder(ctx, ownerA, 1, "5m")
	require.NoError(t, err)

	_, err = e.planner.Snooze(ctx, userB, rem.ReminderID, "1h")
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = e.planner.Snooze(ctx, ownerA, "not-an-id", "1h")
	assert.ErrorIs(t, err, ErrNotFound)

	snoozed, err := e.planner.Snooze(ctx, ownerA, rem.ReminderID, "1h")
	require.NoError(t, err)
	assert.True(t, snoozed.FireAt.Equal(referenceNow.Add(time.Hour)))
}

func TestPlanner_SetProfile(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)

	name := "  Builder Bob  "
	p, err := e.planner.SetProfile(ctx, ownerA, model.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Builder Bob", p.DisplayName)
	assert.Equal(t, "America/New_York", p.Timezone)

	bad := "Mars/Olympus"
	_, err = e.planner.SetProfile(ctx, ownerA, model.ProfileUpdate{Timezone: &bad})
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	empty := " "
	_, err = e.planner.SetProfile(ctx, ownerA, model.ProfileUpdate{DisplayName: &empty})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestPlanner_ClearAll(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	_, err := e.planner.AddTask(ctx, ownerA, "Buy wood")
	require.NoError(t, err)

	n, err := e.planner.ClearAll(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
