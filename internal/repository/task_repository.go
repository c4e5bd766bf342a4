package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"task-planner/internal/model"
)

// TaskRepository stores one TaskList document per owner.
type TaskRepository struct {
	store DocumentStore
}

func NewTaskRepository(store DocumentStore) *TaskRepository {
	return &TaskRepository{store: store}
}

// Load returns the owner's list, or an empty one when nothing is stored yet.
func (r *TaskRepository) Load(ctx context.Context, ownerID int64) (*model.TaskList, error) {
	body, err := r.store.Get(ctx, CollectionTasks, ownerKey(ownerID))
	if errors.Is(err, ErrNotFound) {
		return emptyList(ownerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return decodeList(ownerID, body)
}

// Mutate applies fn to the owner's list as one atomic read-modify-write.
// An error from fn aborts the write and is returned unchanged.
func (r *TaskRepository) Mutate(ctx context.Context, ownerID int64, fn func(*model.TaskList) error) (*model.TaskList, error) {
	var result *model.TaskList
	_, err := r.store.Update(ctx, CollectionTasks, ownerKey(ownerID), func(current []byte) ([]byte, error) {
		list := emptyList(ownerID)
		if current != nil {
			decoded, err := decodeList(ownerID, current)
			if err != nil {
				return nil, err
			}
			list = decoded
		}
		if err := fn(list); err != nil {
			return nil, err
		}
		body, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("encode tasks: %w", err)
		}
		result = list
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAll scans every owner's list.
func (r *TaskRepository) ListAll(ctx context.Context) ([]model.TaskList, error) {
	docs, err := r.store.Scan(ctx, CollectionTasks, nil)
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	lists := make([]model.TaskList, 0, len(docs))
	for _, doc := range docs {
		ownerID, err := strconv.ParseInt(doc.Key, 10, 64)
		if err != nil {
			continue
		}
		list, err := decodeList(ownerID, doc.Body)
		if err != nil {
			continue
		}
		lists = append(lists, *list)
	}
	return lists, nil
}

// ListAssignedTo returns pending tasks delegated to userID across all owners.
func (r *TaskRepository) ListAssignedTo(ctx context.Context, userID int64) ([]model.AssignedTask, error) {
	lists, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.AssignedTask
	for _, list := range lists {
		for _, task := range list.Tasks {
			if task.AssignedTo == userID && !task.Completed {
				out = append(out, model.AssignedTask{OwnerID: list.OwnerID, Task: task})
			}
		}
	}
	return out, nil
}

func ownerKey(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10)
}

func emptyList(ownerID int64) *model.TaskList {
	return &model.TaskList{OwnerID: ownerID, Tasks: []model.Task{}, NextTaskID: 1}
}

func decodeList(ownerID int64, body []byte) (*model.TaskList, error) {
	var list model.TaskList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode tasks for %d: %w", ownerID, err)
	}
	list.OwnerID = ownerID
	if list.Tasks == nil {
		list.Tasks = []model.Task{}
	}
	if list.NextTaskID < 1 {
		list.NextTaskID = len(list.Tasks) + 1
	}
	return &list, nil
}
