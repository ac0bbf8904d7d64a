package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
)

// ProfileService lets students read and edit their own profile.
type ProfileService struct {
	users    repository.UserRepository
	progress *ProgressService
	cache    cache.Invalidator
	logger   *zap.Logger
}

// NewProfileService builds the service.
func NewProfileService(users repository.UserRepository, progress *ProgressService, invalidator cache.Invalidator, logger *zap.Logger) *ProfileService {
	return &ProfileService{users: users, progress: progress, cache: invalidator, logger: logger}
}

// Get returns the caller's account.
func (s *ProfileService) Get(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user", actor.UserID)
	}
	return user, nil
}

// Update merges changes into the caller's profile and recomputes profile completion.
func (s *ProfileService) Update(ctx context.Context, actor domain.Actor, changes domain.Profile) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user", actor.UserID)
	}
	user.Profile.Merge(changes)
	if err := s.users.UpdateProfile(ctx, user.ID, user.Profile); err != nil {
		return nil, notFoundOr(err, "user", user.ID)
	}

	completed, err := s.progress.UpdateProfileCompletion(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.ProfileCompleted = completed
	s.cache.InvalidateAggregates(ctx)
	return user, nil
}
