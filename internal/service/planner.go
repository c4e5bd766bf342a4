package service

import (
	"context"

	"task-planner/internal/model"
)

// Overview is everything a user sees for their own list.
type Overview struct {
	Profile   model.Profile
	Tasks     []model.Task
	Delegated []model.Task
	Assigned  []model.AssignedTask
	Reminders []model.Reminder
	MaxTasks  int
}

// Planner is the command surface consumed by chat routers and the CLI.
// Every call first makes sure the acting user has a profile.
type Planner struct {
	Tasks      *TaskService
	Delegation *DelegationService
	Reminders  *ReminderService
	Profiles   *ProfileService
}

func NewPlanner(tasks *TaskService, delegation *DelegationService, reminders *ReminderService, profiles *ProfileService) *Planner {
	return &Planner{Tasks: tasks, Delegation: delegation, Reminders: reminders, Profiles: profiles}
}

// Touch records the user's first interaction. name seeds a new profile.
func (p *Planner) Touch(ctx context.Context, userID int64, name string) (model.Profile, error) {
	return p.Profiles.Ensure(ctx, userID, name)
}

func (p *Planner) AddTask(ctx context.Context, ownerID int64, description string) (model.Task, error) {
	if _, err := p.Touch(ctx, ownerID, ""); err != nil {
		return model.Task{}, err
	}
	return p.Tasks.Add(ctx, ownerID, description)
}

func (p *Planner) DeleteTask(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	return p.Delegation.Delete(ctx, ownerID, taskID)
}

// CompleteTask completes a task of ownerID on behalf of actorID.
func (p *Planner) CompleteTask(ctx context.Context, actorID, ownerID int64, taskID int) (model.Task, error) {
	return p.Delegation.Complete(ctx, actorID, ownerID, taskID)
}

func (p *Planner) EditTask(ctx context.Context, ownerID int64, taskID int, description string) (model.Task, error) {
	return p.Delegation.Edit(ctx, ownerID, taskID, description)
}

func (p *Planner) AssignTask(ctx context.Context, ownerID int64, taskID int, assigneeID int64, note string) (model.Task, error) {
	if _, err := p.Touch(ctx, ownerID, ""); err != nil {
		return model.Task{}, err
	}
	return p.Delegation.Assign(ctx, ownerID, taskID, assigneeID, note)
}

func (p *Planner) UnassignTask(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	return p.Delegation.Unassign(ctx, ownerID, taskID)
}

func (p *Planner) SetReminder(ctx context.Context, ownerID int64, taskID int, expression string) (model.Reminder, error) {
	if _, err := p.Touch(ctx, ownerID, ""); err != nil {
		return model.Reminder{}, err
	}
	return p.Reminders.SetReminder(ctx, ownerID, taskID, expression)
}

// Snooze is only allowed for the reminder's owner.
func (p *Planner) Snooze(ctx context.Context, actorID int64, reminderID, expression string) (model.Reminder, error) {
	ownerID, _, _, err := model.ParseReminderID(reminderID)
	if err != nil {
		return model.Reminder{}, ErrNotFound
	}
	if ownerID != actorID {
		return model.Reminder{}, ErrNotParticipant
	}
	return p.Reminders.Snooze(ctx, reminderID, expression)
}

func (p *Planner) SetProfile(ctx context.Context, userID int64, upd model.ProfileUpdate) (model.Profile, error) {
	return p.Profiles.Update(ctx, userID, upd)
}

func (p *Planner) Overview(ctx context.Context, ownerID int64) (Overview, error) {
	profile, err := p.Touch(ctx, ownerID, "")
	if err != nil {
		return Overview{}, err
	}
	tasks, err := p.Tasks.ListOwned(ctx, ownerID)
	if err != nil {
		return Overview{}, err
	}
	assigned, err := p.Tasks.ListAssignedTo(ctx, ownerID)
	if err != nil {
		return Overview{}, err
	}
	reminders, err := p.Reminders.ListPending(ctx, ownerID)
	if err != nil {
		return Overview{}, err
	}
	var delegated []model.Task
	for _, t := range tasks {
		if t.IsAssigned() {
			delegated = append(delegated, t)
		}
	}
	return Overview{
		Profile:   profile,
		Tasks:     tasks,
		Delegated: delegated,
		Assigned:  assigned,
		Reminders: reminders,
		MaxTasks:  p.Tasks.MaxTasks(),
	}, nil
}

func (p *Planner) AssignedToMe(ctx context.Context, userID int64) ([]model.AssignedTask, error) {
	return p.Tasks.ListAssignedTo(ctx, userID)
}

func (p *Planner) ClearAll(ctx context.Context, ownerID int64) (int, error) {
	return p.Delegation.ClearAll(ctx, ownerID)
}
