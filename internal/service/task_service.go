package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"task-planner/internal/logging"
	"task-planner/internal/metrics"
	"task-planner/internal/model"
	"task-planner/internal/repository"
)

const (
	DefaultMaxTasks      = 50
	MaxDescriptionLength = 500
	MaxNoteLength        = 500
)

// UserDirectory answers whether a user id belongs to someone the engine knows.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// TaskObserver is told about mutations that invalidate reminders. Hooks run
// inside the owner's critical section, after the write succeeded, and must
// not call back into TaskService.
type TaskObserver interface {
	TaskDeleted(ctx context.Context, ownerID int64, deleted model.Task)
	TaskCompleted(ctx context.Context, ownerID int64, taskID int)
	TasksCleared(ctx context.Context, ownerID int64)
}

// TaskService owns per-owner task lists and their invariants.
type TaskService struct {
	repo     *repository.TaskRepository
	users    UserDirectory
	clock    Clock
	maxTasks int
	metrics  *metrics.Metrics
	logger   logging.Logger

	locks    ownerLocks
	observer TaskObserver
}

type TaskOption func(*TaskService)

func WithMaxTasks(n int) TaskOption {
	return func(s *TaskService) {
		if n > 0 {
			s.maxTasks = n
		}
	}
}

func WithTaskClock(c Clock) TaskOption {
	return func(s *TaskService) { s.clock = c }
}

func WithTaskMetrics(m *metrics.Metrics) TaskOption {
	return func(s *TaskService) { s.metrics = m }
}

func WithTaskLogger(l logging.Logger) TaskOption {
	return func(s *TaskService) { s.logger = logging.OrNop(l) }
}

func NewTaskService(repo *repository.TaskRepository, users UserDirectory, opts ...TaskOption) *TaskService {
	s := &TaskService{
		repo:     repo,
		users:    users,
		clock:    SystemClock{},
		maxTasks: DefaultMaxTasks,
		logger:   logging.Nop(),
		locks:    ownerLocks{locks: make(map[int64]*ownerLock)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetObserver registers the reminder side of task mutations.
func (s *TaskService) SetObserver(o TaskObserver) {
	s.observer = o
}

func (s *TaskService) MaxTasks() int {
	return s.maxTasks
}

// Add appends a task with the next dense id.
func (s *TaskService) Add(ctx context.Context, ownerID int64, description string) (model.Task, error) {
	description = clip(strings.TrimSpace(description), MaxDescriptionLength)
	if description == "" {
		return model.Task{}, ErrEmptyDescription
	}
	var added model.Task
	err := s.mutate(ctx, "add", ownerID, func(list *model.TaskList) error {
		if len(list.Tasks) >= s.maxTasks {
			return ErrLimitExceeded
		}
		added = model.Task{
			TaskID:      len(list.Tasks) + 1,
			Description: description,
			CreatedAt:   s.clock.Now().UTC(),
		}
		list.Tasks = append(list.Tasks, added)
		list.NextTaskID = added.TaskID + 1
		return nil
	}, nil)
	return added, err
}

// Delete removes a task and renumbers the remaining ones densely. The
// returned task still carries its delegation block.
func (s *TaskService) Delete(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	var deleted model.Task
	err := s.mutate(ctx, "delete", ownerID, func(list *model.TaskList) error {
		idx := list.Find(taskID)
		if idx < 0 {
			return ErrNotFound
		}
		deleted = list.Tasks[idx]
		list.Tasks = append(list.Tasks[:idx], list.Tasks[idx+1:]...)
		list.Renumber()
		return nil
	}, func() {
		if s.observer != nil {
			s.observer.TaskDeleted(ctx, ownerID, deleted)
		}
	})
	return deleted, err
}

// Complete marks a task done. Completing a completed task returns it as is.
func (s *TaskService) Complete(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	task, _, err := s.CompleteBy(ctx, ownerID, ownerID, taskID)
	return task, err
}

// CompleteBy completes a task on behalf of actor, who must be the owner or
// the current assignee. changed is false when the task was already done.
func (s *TaskService) CompleteBy(ctx context.Context, actorID, ownerID int64, taskID int) (task model.Task, changed bool, err error) {
	err = s.mutate(ctx, "complete", ownerID, func(list *model.TaskList) error {
		idx := list.Find(taskID)
		if idx < 0 {
			return ErrNotFound
		}
		t := &list.Tasks[idx]
		if actorID != ownerID && t.AssignedTo != actorID {
			return ErrNotParticipant
		}
		changed = !t.Completed
		if changed {
			completedAt := s.clock.Now().UTC()
			t.Completed = true
			t.CompletedAt = &completedAt
		}
		task = *t
		return nil
	}, func() {
		if changed && s.observer != nil {
			s.observer.TaskCompleted(ctx, ownerID, taskID)
		}
	})
	return task, changed, err
}

// Edit replaces a task description.
func (s *TaskService) Edit(ctx context.Context, ownerID int64, taskID int, description string) (model.Task, error) {
	description = clip(strings.TrimSpace(description), MaxDescriptionLength)
	if description == "" {
		return model.Task{}, ErrEmptyDescription
	}
	var task model.Task
	err := s.mutate(ctx, "edit", ownerID, func(list *model.TaskList) error {
		idx := list.Find(taskID)
		if idx < 0 {
			return ErrNotFound
		}
		list.Tasks[idx].Description = description
		task = list.Tasks[idx]
		return nil
	}, nil)
	return task, err
}

// Assign delegates a task. Rejections are checked in order: self
// assignment, missing task, completed task, unknown assignee, duplicate.
func (s *TaskService) Assign(ctx context.Context, ownerID int64, taskID int, assigneeID int64, note string) (model.Task, error) {
	task, _, err := s.reassign(ctx, ownerID, taskID, assigneeID, note)
	return task, err
}

// reassign is Assign that also reports the delegate it replaced, zero when
// the task was unassigned.
func (s *TaskService) reassign(ctx context.Context, ownerID int64, taskID int, assigneeID int64, note string) (model.Task, int64, error) {
	if assigneeID == ownerID {
		return model.Task{}, 0, ErrSelfAssign
	}
	known, err := s.users.Exists(ctx, assigneeID)
	if err != nil {
		return model.Task{}, 0, persistence("lookup assignee", err)
	}
	note = clip(strings.TrimSpace(note), MaxNoteLength)
	var (
		task     model.Task
		previous int64
	)
	err = s.mutate(ctx, "assign", ownerID, func(list *model.TaskList) error {
		idx := list.Find(taskID)
		if idx < 0 {
			return ErrNotFound
		}
		t := &list.Tasks[idx]
		if t.Completed {
			return ErrAssignCompleted
		}
		if !known {
			return ErrUnknownAssignee
		}
		if t.AssignedTo == assigneeID {
			return ErrAlreadyAssigned
		}
		previous = t.AssignedTo
		assignedAt := s.clock.Now().UTC()
		t.AssignedTo = assigneeID
		t.AssignedBy = ownerID
		t.AssignedAt = &assignedAt
		t.AssignmentNote = note
		task = *t
		return nil
	}, nil)
	return task, previous, err
}

// Unassign drops the delegation block. The returned task still names the
// former assignee.
func (s *TaskService) Unassign(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	var former model.Task
	err := s.mutate(ctx, "unassign", ownerID, func(list *model.TaskList) error {
		idx := list.Find(taskID)
		if idx < 0 {
			return ErrNotFound
		}
		t := &list.Tasks[idx]
		if !t.IsAssigned() {
			return ErrNotAssigned
		}
		former = *t
		t.ClearAssignment()
		return nil
	}, nil)
	return former, err
}

// ClearAll empties the owner's list and resets numbering.
func (s *TaskService) ClearAll(ctx context.Context, ownerID int64) (int, error) {
	removed, err := s.clearAll(ctx, ownerID)
	return len(removed), err
}

// clearAll empties the list and returns the tasks it held.
func (s *TaskService) clearAll(ctx context.Context, ownerID int64) ([]model.Task, error) {
	var removed []model.Task
	err := s.mutate(ctx, "clear", ownerID, func(list *model.TaskList) error {
		removed = list.Tasks
		list.Tasks = []model.Task{}
		list.NextTaskID = 1
		return nil
	}, func() {
		if s.observer != nil {
			s.observer.TasksCleared(ctx, ownerID)
		}
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *TaskService) Get(ctx context.Context, ownerID int64, taskID int) (model.Task, error) {
	list, err := s.repo.Load(ctx, ownerID)
	if err != nil {
		return model.Task{}, persistence("get task", err)
	}
	idx := list.Find(taskID)
	if idx < 0 {
		return model.Task{}, ErrNotFound
	}
	return list.Tasks[idx], nil
}

func (s *TaskService) ListOwned(ctx context.Context, ownerID int64) ([]model.Task, error) {
	list, err := s.repo.Load(ctx, ownerID)
	if err != nil {
		return nil, persistence("list tasks", err)
	}
	return list.Tasks, nil
}

// ListAssignedTo scans every owner for pending tasks delegated to userID.
func (s *TaskService) ListAssignedTo(ctx context.Context, userID int64) ([]model.AssignedTask, error) {
	tasks, err := s.repo.ListAssignedTo(ctx, userID)
	if err != nil {
		return nil, persistence("list assigned", err)
	}
	return tasks, nil
}

// ListDelegatedBy returns the owner's tasks that currently have an assignee.
func (s *TaskService) ListDelegatedBy(ctx context.Context, ownerID int64) ([]model.Task, error) {
	tasks, err := s.ListOwned(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var out []model.Task
	for _, t := range tasks {
		if t.IsAssigned() {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListOwners returns every stored task list.
func (s *TaskService) ListOwners(ctx context.Context) ([]model.TaskList, error) {
	lists, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, persistence("list owners", err)
	}
	return lists, nil
}

// WithOwner runs fn with the owner's lock held and a fresh copy of the list.
// Reminder scheduling and firing use it to serialize with renumbering.
func (s *TaskService) WithOwner(ctx context.Context, ownerID int64, fn func(list *model.TaskList) error) error {
	unlock := s.locks.lock(ownerID)
	defer unlock()

	list, err := s.repo.Load(ctx, ownerID)
	if err != nil {
		return persistence("load tasks", err)
	}
	return fn(list)
}

// mutate performs one atomic write under the owner's lock and runs after,
// still under the lock, when the write succeeded.
func (s *TaskService) mutate(ctx context.Context, op string, ownerID int64, fn func(*model.TaskList) error, after func()) error {
	unlock := s.locks.lock(ownerID)
	defer unlock()

	_, err := s.repo.Mutate(ctx, ownerID, fn)
	if err != nil && !isDomainError(err) {
		err = persistence(op+" task", err)
	}
	s.metrics.TaskOp(op, err)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			s.logger.Error("task %s for %d failed: %v", op, ownerID, err)
		}
		return err
	}
	if after != nil {
		after()
	}
	return nil
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRejected) || errors.Is(err, ErrPersistence)
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// ownerLocks hands out one mutex per owner and forgets idle ones.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[int64]*ownerLock
}

func (l *ownerLocks) lock(ownerID int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[ownerID]
	if !ok {
		entry = &ownerLock{}
		l.locks[ownerID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, ownerID)
		}
		l.mu.Unlock()
	}
}
