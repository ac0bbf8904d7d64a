package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/storage"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// FileUpload is a file received from a multipart form.
type FileUpload struct {
	FileName string
	Data     []byte
}

// DocumentService handles student document uploads and listings.
type DocumentService struct {
	documents repository.DocumentRepository
	users     repository.UserRepository
	progress  *ProgressService
	store     storage.ObjectStore
	cache     cache.Invalidator
	folder    string
	logger    *zap.Logger
	now       func() time.Time
}

// NewDocumentService builds the service. Files are stored under folder.
func NewDocumentService(
	documents repository.DocumentRepository,
	users repository.UserRepository,
	progress *ProgressService,
	store storage.ObjectStore,
	invalidator cache.Invalidator,
	folder string,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		documents: documents,
		users:     users,
		progress:  progress,
		store:     store,
		cache:     invalidator,
		folder:    folder,
		logger:    logger,
		now:       time.Now,
	}
}

// Upload stores a document of the given type for the caller. The profile must be
// complete first.
func (s *DocumentService) Upload(ctx context.Context, actor domain.Actor, docType domain.DocumentType, file FileUpload) (*domain.Document, error) {
	if !docType.Valid() {
		return nil, apperrors.NewValidationError("unknown document type", map[string]any{"type": docType})
	}
	if len(file.Data) == 0 {
		return nil, apperrors.NewValidationError("file is required", nil)
	}

	progress, err := s.progress.GetUserProgress(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !progress.CanAccessDocuments {
		return nil, apperrors.NewForbidden("complete your profile before uploading documents")
	}

	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user", actor.UserID)
	}

	url, err := storeFile(ctx, s.store, s.folder, string(docType), user.DisplayName(), file, s.now())
	if err != nil {
		return nil, err
	}

	doc := &domain.Document{UserID: actor.UserID, Type: docType, URL: &url, Status: domain.ReviewPending}
	if err := s.documents.Create(ctx, doc); err != nil {
		if delErr := s.store.Delete(ctx, url); delErr != nil {
			s.logger.Warn("remove orphaned upload", zap.String("url", url), zap.Error(delErr))
		}
		return nil, err
	}

	if _, err := s.progress.UpdateDocumentsCompletion(ctx, actor.UserID); err != nil {
		s.logger.Warn("re-evaluate documents completion", zap.String("user_id", actor.UserID), zap.Error(err))
	}
	s.cache.InvalidateAggregates(ctx)
	return doc, nil
}

// storeFile sniffs and uploads a file, translating storage failures into API errors.
func storeFile(ctx context.Context, store storage.ObjectStore, folder, kind, owner string, file FileUpload, now time.Time) (string, error) {
	contentType, err := storage.DetectContentType(file.Data)
	if err != nil {
		return "", apperrors.NewValidationError("file must be a PDF or an image", map[string]any{"file": file.FileName})
	}
	url, err := store.Upload(ctx, storage.Object{
		Folder:      folder,
		Name:        storage.ObjectName(kind, owner, now),
		ContentType: contentType,
		Data:        file.Data,
	})
	if err != nil {
		return "", apperrors.NewInternalError(fmt.Errorf("upload %s: %w", kind, err))
	}
	return url, nil
}

// ListOwn returns the caller's documents, newest first.
func (s *DocumentService) ListOwn(ctx context.Context, actor domain.Actor) ([]domain.Document, error) {
	return s.documents.ListByUser(ctx, actor.UserID)
}

// List returns documents across students for reviewers.
func (s *DocumentService) List(ctx context.Context, filter repository.DocumentFilter) ([]repository.DocumentWithOwner, error) {
	if filter.Status != nil && *filter.Status != domain.ReviewPending && !filter.Status.IsTerminalDecision() {
		return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": *filter.Status})
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperrors.NewValidationError("invalid document type filter", map[string]any{"type": *filter.Type})
	}
	return s.documents.List(ctx, filter)
}

// DeleteOwn removes one of the caller's documents that has not been approved yet,
// then re-evaluates the documents flag.
func (s *DocumentService) DeleteOwn(ctx context.Context, actor domain.Actor, id string) error {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "document", id)
	}
	if doc.UserID != actor.UserID {
		return apperrors.NewForbidden("document belongs to another user")
	}
	if doc.Status == domain.ReviewApproved {
		return apperrors.NewValidationError("approved documents cannot be deleted", map[string]any{"id": id})
	}

	if doc.FileAvailable() {
		if err := s.store.Delete(ctx, *doc.URL); err != nil {
			s.logger.Warn("delete document blob", zap.String("document_id", id), zap.Error(err))
		}
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return notFoundOr(err, "document", id)
	}

	if _, err := s.progress.UpdateDocumentsCompletion(ctx, actor.UserID); err != nil {
		s.logger.Warn("re-evaluate documents completion", zap.String("user_id", actor.UserID), zap.Error(err))
	}
	s.cache.InvalidateAggregates(ctx)
	return nil
}
