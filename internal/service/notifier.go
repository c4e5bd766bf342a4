package service

import (
	"context"
	"fmt"
	"strings"

	"task-planner/internal/logging"
)

// NotificationKind classifies outgoing messages.
type NotificationKind string

const (
	KindReminder   NotificationKind = "reminder"
	KindAssigned   NotificationKind = "assigned"
	KindUnassigned NotificationKind = "unassigned"
	KindCompleted  NotificationKind = "completed"
	KindDeleted    NotificationKind = "deleted"
	KindEdited     NotificationKind = "edited"
	KindDigest     NotificationKind = "digest"
)

// Follow-up actions attached to reminder notifications.
const (
	ActionComplete = "complete"
	ActionSnooze   = "snooze:1h"
)

// TaskRef points at a task in an owner's list.
type TaskRef struct {
	OwnerID     int64
	TaskID      int
	Description string
}

// Notification is the structured payload handed to a Notifier.
type Notification struct {
	Kind       NotificationKind
	Title      string
	Body       string
	Task       *TaskRef
	ReminderID string
	Actions    []string
}

// Notifier delivers a notification to a user. Failures are advisory and
// must wrap ErrDeliveryFailed.
type Notifier interface {
	Deliver(ctx context.Context, userID int64, n Notification) error
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) Deliver(context.Context, int64, Notification) error { return nil }

// LogNotifier writes notifications to the log instead of a chat transport.
type LogNotifier struct {
	Logger logging.Logger
}

func (n LogNotifier) Deliver(_ context.Context, userID int64, note Notification) error {
	logger := logging.OrNop(n.Logger)
	text := strings.TrimSpace(note.Title + " " + note.Body)
	if note.Task != nil {
		text = fmt.Sprintf("%s [task #%d of %d]", text, note.Task.TaskID, note.Task.OwnerID)
	}
	logger.Info("notify %d (%s): %s actions=%v", userID, note.Kind, text, note.Actions)
	return nil
}
