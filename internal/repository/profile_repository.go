package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"task-planner/internal/model"
)

// ProfileRepository stores per-user preferences.
type ProfileRepository struct {
	store DocumentStore
}

func NewProfileRepository(store DocumentStore) *ProfileRepository {
	return &ProfileRepository{store: store}
}

// Find returns ErrNotFound for users that never interacted.
func (r *ProfileRepository) Find(ctx context.Context, userID int64) (*model.Profile, error) {
	body, err := r.store.Get(ctx, CollectionProfiles, ownerKey(userID))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	var profile model.Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %d: %w", userID, err)
	}
	profile.UserID = userID
	return &profile, nil
}

// FindOrCreate returns the stored profile or atomically creates def.
func (r *ProfileRepository) FindOrCreate(ctx context.Context, def model.Profile) (*model.Profile, error) {
	return r.Mutate(ctx, def.UserID, def, func(*model.Profile) error { return nil })
}

// Mutate atomically updates a profile, starting from def when absent.
func (r *ProfileRepository) Mutate(ctx context.Context, userID int64, def model.Profile, fn func(*model.Profile) error) (*model.Profile, error) {
	var result model.Profile
	_, err := r.store.Update(ctx, CollectionProfiles, ownerKey(userID), func(current []byte) ([]byte, error) {
		profile := def
		if current != nil {
			if err := json.Unmarshal(current, &profile); err != nil {
				return nil, fmt.Errorf("decode profile %d: %w", userID, err)
			}
		}
		profile.UserID = userID
		if err := fn(&profile); err != nil {
			return nil, err
		}
		result = profile
		return json.Marshal(profile)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
