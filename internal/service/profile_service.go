package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"task-planner/internal/logging"
	"task-planner/internal/model"
	"task-planner/internal/repository"
)

const (
	DefaultTimezone   = "America/New_York"
	MaxDisplayNameLen = 50
	profileCacheSize  = 1024
)

// ProfileService manages lazily created user profiles with an LRU read cache.
type ProfileService struct {
	repo      *repository.ProfileRepository
	cache     *lru.Cache[int64, model.Profile]
	defaultTZ string
	logger    logging.Logger
}

// NewProfileService validates the deployment default timezone.
func NewProfileService(repo *repository.ProfileRepository, defaultTZ string, logger logging.Logger) (*ProfileService, error) {
	if defaultTZ == "" {
		defaultTZ = DefaultTimezone
	}
	if _, err := time.LoadLocation(defaultTZ); err != nil {
		return nil, fmt.Errorf("default timezone %q: %w", defaultTZ, err)
	}
	cache, err := lru.New[int64, model.Profile](profileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	return &ProfileService{
		repo:      repo,
		cache:     cache,
		defaultTZ: defaultTZ,
		logger:    logging.OrNop(logger),
	}, nil
}

// Ensure returns the user's profile, creating it on first interaction.
// name seeds the display name of a new profile.
func (s *ProfileService) Ensure(ctx context.Context, userID int64, name string) (model.Profile, error) {
	if p, ok := s.cache.Get(userID); ok {
		return p, nil
	}
	name = clip(strings.TrimSpace(name), MaxDisplayNameLen)
	if name == "" {
		name = fmt.Sprintf("User %d", userID)
	}
	p, err := s.repo.FindOrCreate(ctx, model.Profile{UserID: userID, DisplayName: name, Timezone: s.defaultTZ})
	if err != nil {
		return model.Profile{}, persistence("ensure profile", err)
	}
	s.cache.Add(userID, *p)
	return *p, nil
}

// Find returns ErrNotFound for users that never interacted.
func (s *ProfileService) Find(ctx context.Context, userID int64) (model.Profile, error) {
	if p, ok := s.cache.Get(userID); ok {
		return p, nil
	}
	p, err := s.repo.Find(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Profile{}, ErrNotFound
	}
	if err != nil {
		return model.Profile{}, persistence("find profile", err)
	}
	s.cache.Add(userID, *p)
	return *p, nil
}

// Update applies the optional fields of upd.
func (s *ProfileService) Update(ctx context.Context, userID int64, upd model.ProfileUpdate) (model.Profile, error) {
	var name, tz string
	if upd.DisplayName != nil {
		name = clip(strings.TrimSpace(*upd.DisplayName), MaxDisplayNameLen)
		if name == "" {
			return model.Profile{}, ErrEmptyName
		}
	}
	if upd.Timezone != nil {
		tz = strings.TrimSpace(*upd.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" || strings.EqualFold(tz, "local") {
			return model.Profile{}, ErrInvalidTimezone
		}
	}

	def := model.Profile{UserID: userID, DisplayName: fmt.Sprintf("User %d", userID), Timezone: s.defaultTZ}
	p, err := s.repo.Mutate(ctx, userID, def, func(p *model.Profile) error {
		if name != "" {
			p.DisplayName = name
		}
		if tz != "" {
			p.Timezone = tz
		}
		return nil
	})
	if err != nil {
		s.cache.Remove(userID)
		return model.Profile{}, persistence("update profile", err)
	}
	s.cache.Add(userID, *p)
	return *p, nil
}

// Location resolves the user's timezone, falling back to the default.
func (s *ProfileService) Location(ctx context.Context, userID int64) (*time.Location, error) {
	tz := s.defaultTZ
	p, err := s.Find(ctx, userID)
	switch {
	case err == nil:
		if p.Timezone != "" {
			tz = p.Timezone
		}
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.Warn("profile %d has invalid timezone %q, using %s", userID, tz, s.defaultTZ)
		return time.LoadLocation(s.defaultTZ)
	}
	return loc, nil
}

// DisplayName never fails; unknown users get a generic label.
func (s *ProfileService) DisplayName(ctx context.Context, userID int64) string {
	p, err := s.Find(ctx, userID)
	if err != nil || p.DisplayName == "" {
		return fmt.Sprintf("User %d", userID)
	}
	return p.DisplayName
}

// Exists reports whether the user has a profile.
func (s *ProfileService) Exists(ctx context.Context, userID int64) (bool, error) {
	_, err := s.Find(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
