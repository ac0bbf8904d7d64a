package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/events"
	"github.com/spec-kit/enrollment-portal/internal/repository"
)

// ProgressService derives and stores the completion flags that gate the
// profile → documents → payments pipeline.
type ProgressService struct {
	users      repository.UserRepository
	documents  repository.DocumentRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewProgressService constructs the service.
func NewProgressService(users repository.UserRepository, documents repository.DocumentRepository, dispatcher events.Dispatcher, logger *zap.Logger) *ProgressService {
	return &ProgressService{users: users, documents: documents, dispatcher: dispatcher, logger: logger}
}

// IsProfileComplete reports whether every required profile field is filled in.
// A missing user is simply incomplete.
func (s *ProgressService) IsProfileComplete(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return user.Profile.IsComplete(), nil
}

// AreDocumentsComplete reports whether the user has uploaded every required type,
// whatever the review status of those uploads.
func (s *ProgressService) AreDocumentsComplete(ctx context.Context, userID string) (bool, error) {
	types, err := s.documents.DistinctTypes(ctx, userID)
	if err != nil {
		return false, err
	}
	return domain.CoversRequiredTypes(types), nil
}

// UpdateProfileCompletion recomputes and stores profileCompleted.
func (s *ProgressService) UpdateProfileCompletion(ctx context.Context, userID string) (bool, error) {
	complete, err := s.IsProfileComplete(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := s.users.SetProfileCompleted(ctx, userID, complete); err != nil {
		return false, err
	}
	return complete, nil
}

// UpdateDocumentsCompletion recomputes and stores documentsCompleted. Only a
// false → true transition announces the completed file to the reviewers.
func (s *ProgressService) UpdateDocumentsCompletion(ctx context.Context, userID string) (bool, error) {
	complete, err := s.AreDocumentsComplete(ctx, userID)
	if err != nil {
		return false, err
	}
	changed, err := s.users.SetDocumentsCompleted(ctx, userID, complete)
	if err != nil {
		return false, err
	}
	if changed && complete {
		s.announceCompletion(ctx, userID)
	}
	return complete, nil
}

func (s *ProgressService) announceCompletion(ctx context.Context, userID string) {
	name := "Alumno"
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		name = user.DisplayName()
	} else {
		s.logger.Warn("load student for completion notice", zap.String("user_id", userID), zap.Error(err))
	}
	payload := events.DocumentsCompletedPayload{UserID: userID, StudentName: name}
	_ = s.dispatcher.Publish(ctx, events.New(events.EventDocumentsCompleted, userID, userID, payload))
}

// GetUserProgress returns the stored flags and the access rules derived from them.
// A missing user yields all-false progress.
func (s *ProgressService) GetUserProgress(ctx context.Context, userID string) (domain.UserProgress, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProgress{}, nil
		}
		return domain.UserProgress{}, err
	}
	return domain.NewUserProgress(user.ProfileCompleted, user.DocumentsCompleted), nil
}
