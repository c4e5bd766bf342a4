package service

import (
	"context"
	"fmt"

	"task-planner/internal/logging"
	"task-planner/internal/metrics"
	"task-planner/internal/model"
)

// NameResolver returns a user-facing name for a user id.
type NameResolver interface {
	DisplayName(ctx context.Context, userID int64) string
}

// DelegationService wraps task mutations that involve a second user and
// tells the other party about them. Delivery failures never undo a write.
type DelegationService struct {
	tasks    *TaskService
	names    NameResolver
	notifier Notifier
	metrics  *metrics.Metrics
	logger   logging.Logger
}

func NewDelegationService(tasks *TaskService, names NameResolver, notifier Notifier, m *metrics.Metrics, logger logging.Logger) *DelegationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &DelegationService{
		tasks:    tasks,
		names:    names,
		notifier: notifier,
		metrics:  m,
		logger:   logging.OrNop(logger),
	}
}

// Assign delegates the task and notifies the assignee. A delegate being
// replaced is told the task moved on.
func (s *DelegationService) Assign(ctx context.Context, ownerID int64, taskID int, assigneeID int64, note string) (model.Task, error) {
	task, previous, err := s.tasks.reassign(ctx, ownerID, taskID, assigneeID, note)
	if err != nil {
		return model.Task{}, err
	}
	if previous != 0 {
		s.notify(ctx, previous, Notification{
			Kind:  KindUnassigned,
			Title: "Task reassigned",
			Body:  fmt.Sprintf("%s gave a task to someone else: %s", s.names.DisplayName(ctx, ownerID), task.Description),
			Task:  ref(ownerID, task),
		})
	}
	body := fmt.Sprintf("%s assigned you a task: %s", s.names.DisplayName(ctx, ownerID), task.Description)
	if task.AssignmentNote != "" {
		body += "\nNote: " + task.AssignmentNote
	}
	s.notify(ctx, assigneeID, Notification{
		Kind:  KindAssigned,
		Title: "New task assigned",
		Body:  body,
		Task:  ref(ownerID, task),
	})
	return task, nil
}

// Unassign removes the delegate and tells them.
func (s *DelegationService) Unassign(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	former, err := s.tasks.Unassign(ctx, ownerID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	s.notify(ctx, former.AssignedTo, Notification{
		Kind:  KindUnassigned,
		Title: "Task unassigned",
		Body:  fmt.Sprintf("%s took back a task: %s", s.names.DisplayName(ctx, ownerID), former.Description),
		Task:  ref(ownerID, former),
	})
	cleared := former
	cleared.ClearAssignment()
	return cleared, nil
}

// Complete lets the owner or the assignee finish a task; the other one is
// notified when the task actually changed state.
func (s *DelegationService) Complete(ctx context.Context, actorID, ownerID int64, taskID int) (model.Task, error) {
	task, changed, err := s.tasks.CompleteBy(ctx, actorID, ownerID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if !changed || !task.IsAssigned() {
		return task, nil
	}
	other := task.AssignedTo
	if actorID != ownerID {
		other = ownerID
	}
	s.notify(ctx, other, Notification{
		Kind:  KindCompleted,
		Title: "Task completed",
		Body:  fmt.Sprintf("%s completed: %s", s.names.DisplayName(ctx, actorID), task.Description),
		Task:  ref(ownerID, task),
	})
	return task, nil
}

// Delete removes the task and tells a former assignee.
func (s *DelegationService) Delete(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	deleted, err := s.tasks.Delete(ctx, ownerID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if deleted.IsAssigned() && !deleted.Completed {
		s.notify(ctx, deleted.AssignedTo, Notification{
			Kind:  KindDeleted,
			Title: "Task deleted",
			Body:  fmt.Sprintf("%s deleted a task assigned to you: %s", s.names.DisplayName(ctx, ownerID), deleted.Description),
		})
	}
	return deleted, nil
}

// ClearAll empties the owner's list and tells every delegate of a pending
// task that it is gone.
func (s *DelegationService) ClearAll(ctx context.Context, ownerID int64) (int, error) {
	removed, err := s.tasks.clearAll(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	for _, t := range removed {
		if !t.IsAssigned() || t.Completed {
			continue
		}
		s.notify(ctx, t.AssignedTo, Notification{
			Kind:  KindDeleted,
			Title: "Task deleted",
			Body:  fmt.Sprintf("%s cleared their list, including a task assigned to you: %s", s.names.DisplayName(ctx, ownerID), t.Description),
		})
	}
	return len(removed), nil
}

// Edit changes the description and tells the assignee.
func (s *DelegationService) Edit(ctx context.Context, ownerID int64, taskID int, description string) (model.Task, error) {
	task, err := s.tasks.Edit(ctx, ownerID, taskID, description)
	if err != nil {
		return model.Task{}, err
	}
	if task.IsAssigned() && !task.Completed {
		s.notify(ctx, task.AssignedTo, Notification{
			Kind:  KindEdited,
			Title: "Task updated",
			Body:  fmt.Sprintf("%s changed a task assigned to you: %s", s.names.DisplayName(ctx, ownerID), task.Description),
			Task:  ref(ownerID, task),
		})
	}
	return task, nil
}

func (s *DelegationService) notify(ctx context.Context, userID int64, n Notification) {
	dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	err := s.notifier.Deliver(dctx, userID, n)
	s.metrics.Delivery(string(n.Kind), err)
	if err != nil {
		s.logger.Warn("delegation: notify %d (%s): %v", userID, n.Kind, err)
	}
}

func ref(ownerID int64, t model.Task) *TaskRef {
	return &TaskRef{OwnerID: ownerID, TaskID: t.TaskID, Description: t.Description}
}
