package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
)

func TestDelegation_AssigneeCompletesNotifiesOwner(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	e.add(t, ownerA, "Buy wood", "Buy stone")

	name := "Alice"
	_, err := e.profiles.Update(ctx, ownerA, model.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)

	_, err = e.delegation.Assign(ctx, ownerA, 2, userB, "the grey kind")
	require.NoError(t, err)

	assigned := e.notifier.OfKind(KindAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, userB, assigned[0].UserID)
	assert.Contains(t, assigned[0].Note.Body, "Alice")
	assert.Contains(t, assigned[0].Note.Body, "Buy stone")
	assert.Contains(t, assigned[0].Note.Body, "the grey kind")

	mine, err := e.planner.AssignedToMe(ctx, userB)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 2, mine[0].Task.TaskID)

	_, err = e.delegation.Complete(ctx, userB, ownerA, 2)
	require.NoError(t, err)

	completed := e.notifier.OfKind(KindCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, ownerA, completed[0].UserID)
	assert.Equal(t, 2, completed[0].Note.Task.TaskID)

	mine, err = e.planner.AssignedToMe(ctx, userB)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = e.delegation.Complete(ctx, userB, ownerA, 2)
	require.NoError(t, err)
	assert.Len(t, e.notifier.OfKind(KindCompleted), 1, "repeat completion is silent")
}

func TestDelegation_OwnerCompletesNotifiesAssignee(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	e.add(t, ownerA, "Buy wood")
	_, err := e.delegation.Assign(ctx, ownerA, 1, userB, "")
	require.NoError(t, err)

	_, err = e.delegation.Complete(ctx, ownerA, ownerA, 1)
	require.NoError(t, err)

	completed := e.notifier.OfKind(KindCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, userB, completed[0].UserID)
}

func TestDelegation_OutsiderCannotComplete(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	e.add(t, ownerA, "Buy wood")

	_, err := e.delegation.Complete(ctx, userB, ownerA, 1)
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Empty(t, e.notifier.Sent())

	task, err := e.tasks.Get(ctx, ownerA, 1)
	require.NoError(t, err)
	assert.False(t, task.Completed)
}

func TestDelegation_UnassignDeleteAndEditNotify(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	e.add(t, ownerA, "Buy wood", "Buy stone")
	_, err := e.delegation.Assign(ctx, ownerA, 1, userB, "")
	require.NoError(t, err)
	_, err = e.delegation.Assign(ctx, ownerA, 2, userB, "")
	require.NoError(t, err)

	_, err = e.delegation.Edit(ctx, ownerA, 2, "Buy granite")
	require.NoError(t, err)
	edited := e.notifier.OfKind(KindEdited)
	require.Len(t, edited, 1)
	assert.Contains(t, edited[0].Note.Body, "Buy granite")

	cleared, err := e.delegation.Unassign(ctx, ownerA, 1)
	require.NoError(t, err)
	assert.False(t, cleared.IsAssigned())
	unassigned := e.notifier.OfKind(KindUnassigned)
	require.Len(t, unassigned, 1)
	assert.Equal(t, userB, unassigned[0].UserID)

	deleted, err := e.delegation.Delete(ctx, ownerA, 2)
	require.NoError(t, err)
	assert.Equal(t, userB, deleted.AssignedTo)
	gone := e.notifier.OfKind(KindDeleted)
	require.Len(t, gone, 1)
	assert.Equal(t, userB, gone[0].UserID)

	_, err = e.delegation.Delete(ctx, ownerA, 1)
	require.NoError(t, err)
	assert.Len(t, e.notifier.OfKind(KindDeleted), 1, "unassigned task deletes quietly")
}

func TestDelegation_NotificationFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	e.notifier.fail = errors.Join(ErrDeliveryFailed, errors.New("blocked by user"))
	e.add(t, ownerA, "Buy wood")

	task, err := e.delegation.Assign(ctx, ownerA, 1, userB, "")
	require.NoError(t, err)
	assert.Equal(t, userB, task.AssignedTo)

	stored, err := e.tasks.Get(ctx, ownerA, 1)
	require.NoError(t, err)
	assert.Equal(t, userB, stored.AssignedTo)
}

func TestDelegation_DuplicateAssignSendsOnce(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	e.add(t, ownerA, "Buy wood")

	_, err := e.delegation.Assign(ctx, ownerA, 1, userB, "")
	require.NoError(t, err)
	_, err = e.delegation.Assign(ctx, ownerA, 1, userB, "")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
	assert.Len(t, e.notifier.OfKind(KindAssigned), 1)
}

func TestDelegation_ReassignTellsFormerDelegate(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	_, err := e.profiles.Ensure(ctx, userC, "")
	require.NoError(t, err)
	e.add(t, ownerA, "Buy wood")

	_, err = e.delegation.Assign(ctx, ownerA, 1, userB, "")
	require.NoError(t, err)
	assert.Empty(t, e.notifier.OfKind(KindUnassigned), "first assignment replaces nobody")

	task, err := e.delegation.Assign(ctx, ownerA, 1, userC, "")
	require.NoError(t, err)
	assert.Equal(t, userC, task.AssignedTo)

	former := e.notifier.OfKind(KindUnassigned)
	require.Len(t, former, 1)
	assert.Equal(t, userB, former[0].UserID)
	assert.Contains(t, former[0].Note.Body, "Buy wood")

	assigned := e.notifier.OfKind(KindAssigned)
	require.Len(t, assigned, 2)
	assert.Equal(t, userC, assigned[1].UserID)

	mine, err := e.planner.AssignedToMe(ctx, userB)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestDelegation_ClearAllTellsPendingDelegates(t *testing.T) {
	ctx := context.Background()
	e := newDefaultEnv(t)
	e.add(t, ownerA, "Buy wood", "Buy stone", "Buy glass")
	for _, id := range []int{1, 2} {
		_, err := e.delegation.Assign(ctx, ownerA, id, userB, "")
		require.NoError(t, err)
	}
	_, err := e.delegation.Complete(ctx, userB, ownerA, 1)
	require.NoError(t, err)

	n, err := e.planner.ClearAll(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	deleted := e.notifier.OfKind(KindDeleted)
	require.Len(t, deleted, 1, "completed and unassigned tasks are cleared quietly")
	assert.Equal(t, userB, deleted[0].UserID)
	assert.Contains(t, deleted[0].Note.Body, "Buy stone")

	mine, err := e.planner.AssignedToMe(ctx, userB)
	require.NoError(t, err)
	assert.Empty(t, mine)
}
