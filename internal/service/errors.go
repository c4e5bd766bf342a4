package service

import (
	"errors"
	"fmt"

	"task-planner/internal/timeparse"
)

var (
	// ErrParse marks user-correctable time expression failures.
	ErrParse = timeparse.ErrParse
	// ErrNotFound is returned for unknown task, reminder or user ids.
	ErrNotFound = errors.New("not found")
	// ErrRejected is wrapped by every business-rule rejection.
	ErrRejected = errors.New("rejected")
	// ErrDeliveryFailed wraps notification transport failures.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrPersistence wraps document store failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrInPast is a parse-class error for reminder instants not in the future.
	ErrInPast = fmt.Errorf("%w: time is in the past", timeparse.ErrParse)
	// ErrNotStarted is returned by scheduling calls before reconciliation ran.
	ErrNotStarted = errors.New("reminder scheduler not started")
)

// Reason codes carried by RejectedError.
const (
	ReasonSelfAssign       = "self_assign"
	ReasonAlreadyAssigned  = "already_assigned"
	ReasonAssignCompleted  = "assign_completed"
	ReasonUnknownAssignee  = "unknown_assignee"
	ReasonNotAssigned      = "not_assigned"
	ReasonLimitExceeded    = "limit_exceeded"
	ReasonTaskCompleted    = "task_completed"
	ReasonNotParticipant   = "not_participant"
	ReasonEmptyDescription = "empty_description"
	ReasonInvalidTimezone  = "invalid_timezone"
	ReasonEmptyName        = "empty_name"
)

// RejectedError is a business invariant violation with a machine reason.
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Is matches any RejectedError carrying the same reason.
func (e *RejectedError) Is(target error) bool {
	other, ok := target.(*RejectedError)
	return ok && other.Reason == e.Reason
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

func rejected(reason, message string) *RejectedError {
	return &RejectedError{Reason: reason, Message: message}
}

var (
	ErrSelfAssign       = rejected(ReasonSelfAssign, "you cannot assign a task to yourself")
	ErrAlreadyAssigned  = rejected(ReasonAlreadyAssigned, "task is already assigned to this user")
	ErrAssignCompleted  = rejected(ReasonAssignCompleted, "cannot assign a completed task")
	ErrUnknownAssignee  = rejected(ReasonUnknownAssignee, "assignee is not a known user")
	ErrNotAssigned      = rejected(ReasonNotAssigned, "task is not assigned to anyone")
	ErrLimitExceeded    = rejected(ReasonLimitExceeded, "task list is full")
	ErrTaskCompleted    = rejected(ReasonTaskCompleted, "task is already completed")
	ErrNotParticipant   = rejected(ReasonNotParticipant, "only the owner or the assignee can do that")
	ErrEmptyDescription = rejected(ReasonEmptyDescription, "task description is empty")
	ErrInvalidTimezone  = rejected(ReasonInvalidTimezone, "unknown timezone")
	ErrEmptyName        = rejected(ReasonEmptyName, "display name is empty")
)

// ReasonOf returns the rejection reason code, or "" for other errors.
func ReasonOf(err error) string {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
