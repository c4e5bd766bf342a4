package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reminder is the durable record of a pending reminder for one task.
type Reminder struct {
	ReminderID string    `json:"reminder_id" bson:"reminder_id" yaml:"reminder_id"`
	OwnerID    int64     `json:"owner_id" bson:"owner_id" yaml:"owner_id"`
	TaskID     int       `json:"task_id" bson:"task_id" yaml:"task_id"`
	FireAt     time.Time `json:"fire_at" bson:"fire_at" yaml:"fire_at"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" yaml:"created_at"`
}

// ReminderID derives the id for an (owner, task, fire instant) tuple.
func ReminderID(ownerID int64, taskID int, fireAt time.Time) string {
	return fmt.Sprintf("%d_%d_%d", ownerID, taskID, fireAt.Unix())
}

// ParseReminderID splits an id produced by ReminderID.
func ParseReminderID(id string) (ownerID int64, taskID int, fireAt time.Time, err error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return 0, 0, time.Time{}, fmt.Errorf("malformed reminder id %q", id)
	}
	ownerID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed reminder id %q: %w", id, err)
	}
	taskID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed reminder id %q: %w", id, err)
	}
	unix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed reminder id %q: %w", id, err)
	}
	return ownerID, taskID, time.Unix(unix, 0).UTC(), nil
}
