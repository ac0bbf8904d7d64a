package service

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/events"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/storage"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

const blobDeleteConcurrency = 8

// ReviewRecorder counts review decisions and failed best-effort effects.
type ReviewRecorder interface {
	RecordReview(subject, status string)
	RecordSideEffectFailure(effect string)
}

// ReviewService applies reviewer decisions to documents and payments.
type ReviewService struct {
	documents  repository.DocumentRepository
	payments   repository.PaymentRepository
	users      repository.UserRepository
	progress   *ProgressService
	store      storage.ObjectStore
	dispatcher events.Dispatcher
	cache      cache.Invalidator
	metrics    ReviewRecorder
	logger     *zap.Logger
}

// ReviewDependencies bundles collaborators for the review service.
type ReviewDependencies struct {
	Documents  repository.DocumentRepository
	Payments   repository.PaymentRepository
	Users      repository.UserRepository
	Progress   *ProgressService
	Store      storage.ObjectStore
	Dispatcher events.Dispatcher
	Cache      cache.Invalidator
	Metrics    ReviewRecorder
	Logger     *zap.Logger
}

// NewReviewService builds the service.
func NewReviewService(deps ReviewDependencies) *ReviewService {
	return &ReviewService{
		documents:  deps.Documents,
		payments:   deps.Payments,
		users:      deps.Users,
		progress:   deps.Progress,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

func validateDecision(status domain.ReviewStatus, reason string) (string, error) {
	if !status.IsTerminalDecision() {
		return "", apperrors.NewValidationError("status must be APPROVED or REJECTED", map[string]any{"status": status})
	}
	reason = strings.TrimSpace(reason)
	if status == domain.ReviewRejected && reason == "" {
		return "", apperrors.NewValidationError("rejection reason is required", nil)
	}
	return reason, nil
}

// ReviewDocument approves or rejects a document. Approval removes the stored file.
func (s *ReviewService) ReviewDocument(ctx context.Context, actor domain.Actor, id string, status domain.ReviewStatus, reason string) (*domain.Document, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	reason, err := validateDecision(status, reason)
	if err != nil {
		return nil, err
	}

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "document", id)
	}

	var updated *domain.Document
	if status == domain.ReviewApproved {
		if doc.FileAvailable() {
			s.deleteBlob(ctx, *doc.URL, "document_blob_delete")
		}
		updated, err = s.documents.UpdateReview(ctx, id, domain.ReviewApproved, nil, nil)
	} else {
		updated, err = s.documents.UpdateReview(ctx, id, domain.ReviewRejected, &reason, doc.URL)
	}
	if err != nil {
		return nil, notFoundOr(err, "document", id)
	}

	s.metrics.RecordReview("document", string(status))
	_ = s.dispatcher.Publish(ctx, events.New(events.EventDocumentReviewed, updated.ID, actor.UserID, events.DocumentReviewedPayload{
		DocumentID:   updated.ID,
		OwnerID:      updated.UserID,
		DocumentType: updated.Type,
		Status:       updated.Status,
		Reason:       reason,
	}))
	s.cache.InvalidateAggregates(ctx)
	return updated, nil
}

// ReviewPayment approves or rejects a payment. Approval removes the stored proof
// and e-mails the owner.
func (s *ReviewService) ReviewPayment(ctx context.Context, actor domain.Actor, id string, status domain.ReviewStatus, reason string) (*domain.Payment, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	reason, err := validateDecision(status, reason)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "payment", id)
	}

	var updated *domain.Payment
	if status == domain.ReviewApproved {
		if payment.FileAvailable() {
			s.deleteBlob(ctx, *payment.URL, "payment_blob_delete")
		}
		updated, err = s.payments.UpdateReview(ctx, id, domain.ReviewApproved, nil, nil)
	} else {
		updated, err = s.payments.UpdateReview(ctx, id, domain.ReviewRejected, &reason, payment.URL)
	}
	if err != nil {
		return nil, notFoundOr(err, "payment", id)
	}

	payload := events.PaymentReviewedPayload{
		PaymentID: updated.ID,
		OwnerID:   updated.UserID,
		OwnerName: "Alumno",
		Amount:    updated.Amount,
		Date:      updated.Date,
		Status:    updated.Status,
		Reason:    reason,
	}
	if owner, err := s.users.GetByID(ctx, updated.UserID); err == nil {
		payload.OwnerEmail = owner.Email
		payload.OwnerName = owner.GivenName()
	} else {
		s.logger.Warn("load payment owner", zap.String("payment_id", id), zap.Error(err))
	}

	s.metrics.RecordReview("payment", string(status))
	_ = s.dispatcher.Publish(ctx, events.New(events.EventPaymentReviewed, updated.ID, actor.UserID, payload))
	s.cache.InvalidateAggregates(ctx)
	return updated, nil
}

// ApprovePayment is the one-click approval shortcut.
func (s *ReviewService) ApprovePayment(ctx context.Context, actor domain.Actor, id string) (*domain.Payment, error) {
	return s.ReviewPayment(ctx, actor, id, domain.ReviewApproved, "")
}

// ApproveAllPendingDocuments approves every pending document of a user and
// returns how many rows changed. Stored files are deleted in parallel and a
// failed delete never blocks the approval.
func (s *ReviewService) ApproveAllPendingDocuments(ctx context.Context, actor domain.Actor, userID string) (int64, error) {
	if !actor.HasRole(domain.BulkApproveRoles...) {
		return 0, apperrors.NewForbidden("insufficient role")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, notFoundOr(err, "user", userID)
	}

	pending, err := s.documents.ListByUserAndStatus(ctx, userID, domain.ReviewPending)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(blobDeleteConcurrency)
	ids := make([]string, 0, len(pending))
	for _, doc := range pending {
		ids = append(ids, doc.ID)
		if !doc.FileAvailable() {
			continue
		}
		url := *doc.URL
		g.Go(func() error {
			if !s.deleteBlob(ctx, url, "document_blob_delete") {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	approved, err := s.documents.ApproveByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("bulk approved documents",
		zap.String("user_id", userID),
		zap.Int64("approved", approved),
		zap.Int64("blob_failures", failed.Load()))

	if _, err := s.progress.UpdateDocumentsCompletion(ctx, userID); err != nil {
		s.logger.Warn("re-evaluate documents completion", zap.String("user_id", userID), zap.Error(err))
	}
	s.cache.InvalidateAggregates(ctx)
	return approved, nil
}

// DeleteDocument removes any document and its file. Students delete their own
// documents through DocumentService.DeleteOwn.
func (s *ReviewService) DeleteDocument(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.HasRole(domain.FileDeleteRoles...) {
		return apperrors.NewForbidden("insufficient role")
	}
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "document", id)
	}

	if doc.FileAvailable() {
		s.deleteBlob(ctx, *doc.URL, "document_blob_delete")
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return notFoundOr(err, "document", id)
	}
	if _, err := s.progress.UpdateDocumentsCompletion(ctx, doc.UserID); err != nil {
		s.logger.Warn("re-evaluate documents completion", zap.String("user_id", doc.UserID), zap.Error(err))
	}
	s.cache.InvalidateAggregates(ctx)
	return nil
}

// DeletePayment removes a payment and its proof file.
func (s *ReviewService) DeletePayment(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.HasRole(domain.ReviewRoles...) {
		return apperrors.NewForbidden("insufficient role")
	}
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "payment", id)
	}
	if payment.FileAvailable() {
		s.deleteBlob(ctx, *payment.URL, "payment_blob_delete")
	}
	if err := s.payments.Delete(ctx, id); err != nil {
		return notFoundOr(err, "payment", id)
	}
	s.cache.InvalidateAggregates(ctx)
	return nil
}

// CorrectPayment edits the amount or date of a recorded payment.
func (s *ReviewService) CorrectPayment(ctx context.Context, actor domain.Actor, id string, correction repository.PaymentCorrection) (*domain.Payment, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	if correction.Amount == nil && correction.Date == nil {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}
	if correction.Amount != nil && !correction.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount must be greater than zero", nil)
	}
	updated, err := s.payments.Correct(ctx, id, correction)
	if err != nil {
		return nil, notFoundOr(err, "payment", id)
	}
	s.cache.InvalidateAggregates(ctx)
	return updated, nil
}

// deleteBlob removes a stored file and reports success. Failures are logged only.
func (s *ReviewService) deleteBlob(ctx context.Context, url, effect string) bool {
	if err := s.store.Delete(ctx, url); err != nil {
		s.logger.Warn("delete stored file", zap.String("url", url), zap.Error(err))
		s.metrics.RecordSideEffectFailure(effect)
		return false
	}
	return true
}
