package model

import "time"

// Task represents a single item in an owner's list. TaskID is only unique
// within the owner's list and is kept dense (1..N).
type Task struct {
	TaskID         int        `json:"task_id" bson:"task_id" yaml:"task_id"`
	Description    string     `json:"description" bson:"description" yaml:"description"`
	Completed      bool       `json:"completed" bson:"completed" yaml:"completed"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at" yaml:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	AssignedTo     int64      `json:"assigned_to,omitempty" bson:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	AssignedBy     int64      `json:"assigned_by,omitempty" bson:"assigned_by,omitempty" yaml:"assigned_by,omitempty"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty" bson:"assigned_at,omitempty" yaml:"assigned_at,omitempty"`
	AssignmentNote string     `json:"assignment_note,omitempty" bson:"assignment_note,omitempty" yaml:"assignment_note,omitempty"`
}

// IsAssigned reports whether the task currently has a delegate.
func (t Task) IsAssigned() bool {
	return t.AssignedTo != 0
}

// ClearAssignment drops the delegation block.
func (t *Task) ClearAssignment() {
	t.AssignedTo = 0
	t.AssignedBy = 0
	t.AssignedAt = nil
	t.AssignmentNote = ""
}

// TaskList is the per-owner document holding the dense task array.
type TaskList struct {
	OwnerID    int64  `json:"owner_id" bson:"owner_id" yaml:"owner_id"`
	Tasks      []Task `json:"tasks" bson:"tasks" yaml:"tasks"`
	NextTaskID int    `json:"next_task_id" bson:"next_task_id" yaml:"next_task_id"`
}

// Find returns the index of the task with the given id, or -1.
func (l *TaskList) Find(taskID int) int {
	for i := range l.Tasks {
		if l.Tasks[i].TaskID == taskID {
			return i
		}
	}
	return -1
}

// Renumber reassigns ids 1..N in the current order and resets the counter.
func (l *TaskList) Renumber() {
	for i := range l.Tasks {
		l.Tasks[i].TaskID = i + 1
	}
	l.NextTaskID = len(l.Tasks) + 1
}

// AssignedTask pairs a delegated task with the owner of the list it lives in.
type AssignedTask struct {
	OwnerID int64
	Task    Task
}
