package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"task-planner/internal/model"
)

// ReminderRepository is the durable reminder ledger, one document per id.
type ReminderRepository struct {
	store DocumentStore
}

func NewReminderRepository(store DocumentStore) *ReminderRepository {
	return &ReminderRepository{store: store}
}

func (r *ReminderRepository) Save(ctx context.Context, reminder model.Reminder) error {
	body, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}
	if err := r.store.Upsert(ctx, CollectionReminders, reminder.ReminderID, body); err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}
	return nil
}

// Get returns ErrNotFound when the reminder is absent.
func (r *ReminderRepository) Get(ctx context.Context, id string) (*model.Reminder, error) {
	body, err := r.store.Get(ctx, CollectionReminders, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	var reminder model.Reminder
	if err := json.Unmarshal(body, &reminder); err != nil {
		return nil, fmt.Errorf("decode reminder %s: %w", id, err)
	}
	return &reminder, nil
}

func (r *ReminderRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, CollectionReminders, id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// ListAll returns every stored reminder ordered by fire time.
func (r *ReminderRepository) ListAll(ctx context.Context) ([]model.Reminder, error) {
	return r.list(ctx, func(model.Reminder) bool { return true })
}

func (r *ReminderRepository) ListByOwner(ctx context.Context, ownerID int64) ([]model.Reminder, error) {
	return r.list(ctx, func(rem model.Reminder) bool { return rem.OwnerID == ownerID })
}

func (r *ReminderRepository) ListByTask(ctx context.Context, ownerID int64, taskID int) ([]model.Reminder, error) {
	return r.list(ctx, func(rem model.Reminder) bool { return rem.OwnerID == ownerID && rem.TaskID == taskID })
}

func (r *ReminderRepository) list(ctx context.Context, keep func(model.Reminder) bool) ([]model.Reminder, error) {
	var out []model.Reminder
	_, err := r.store.Scan(ctx, CollectionReminders, func(key string, body []byte) bool {
		var rem model.Reminder
		if err := json.Unmarshal(body, &rem); err != nil {
			return false
		}
		if rem.ReminderID == "" {
			rem.ReminderID = key
		}
		if keep(rem) {
			out = append(out, rem)
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("scan reminders: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ReminderID < out[j].ReminderID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out, nil
}
