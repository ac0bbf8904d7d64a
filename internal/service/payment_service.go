package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/storage"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// PaymentSubmission is a payment reported by a student.
type PaymentSubmission struct {
	Amount    decimal.Decimal
	Date      time.Time
	Location  string
	Method    string
	PayerName string
	File      *FileUpload
}

// PaymentService handles student payment submissions and listings.
type PaymentService struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	progress *ProgressService
	store    storage.ObjectStore
	cache    cache.Invalidator
	folder   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService builds the service. Proof files are stored under folder.
func NewPaymentService(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	progress *ProgressService,
	store storage.ObjectStore,
	invalidator cache.Invalidator,
	folder string,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		users:    users,
		progress: progress,
		store:    store,
		cache:    invalidator,
		folder:   folder,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit records a payment for the caller. Both earlier stages must be complete.
func (s *PaymentService) Submit(ctx context.Context, actor domain.Actor, in PaymentSubmission) (*domain.Payment, error) {
	if err := validateSubmission(in); err != nil {
		return nil, err
	}

	progress, err := s.progress.GetUserProgress(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !progress.CanAccessPayments {
		return nil, apperrors.NewForbidden("complete your profile and documents before submitting payments")
	}

	payment := &domain.Payment{
		UserID:   actor.UserID,
		Amount:   in.Amount.Round(2),
		Date:     in.Date,
		Location: strings.TrimSpace(in.Location),
		Method:   strings.TrimSpace(in.Method),
		Status:   domain.ReviewPending,
	}
	if name := strings.TrimSpace(in.PayerName); name != "" {
		payment.PayerName = &name
	}

	if in.File != nil && len(in.File.Data) > 0 {
		user, err := s.users.GetByID(ctx, actor.UserID)
		if err != nil {
			return nil, notFoundOr(err, "user", actor.UserID)
		}
		url, err := storeFile(ctx, s.store, s.folder, "pago", user.DisplayName(), *in.File, s.now())
		if err != nil {
			return nil, err
		}
		payment.URL = &url
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		if payment.URL != nil {
			if delErr := s.store.Delete(ctx, *payment.URL); delErr != nil {
				s.logger.Warn("remove orphaned upload", zap.String("url", *payment.URL), zap.Error(delErr))
			}
		}
		return nil, err
	}
	s.cache.InvalidateAggregates(ctx)
	return payment, nil
}

func validateSubmission(in PaymentSubmission) error {
	details := map[string]any{}
	if !in.Amount.IsPositive() {
		details["amount"] = "must be greater than zero"
	}
	if in.Date.IsZero() {
		details["date"] = "is required"
	}
	if strings.TrimSpace(in.Location) == "" {
		details["location"] = "is required"
	}
	if strings.TrimSpace(in.Method) == "" {
		details["method"] = "is required"
	}
	if domain.MethodRequiresProof(in.Method) && (in.File == nil || len(in.File.Data) == 0) {
		details["file"] = "proof of payment is required for this method"
	}
	if domain.MethodRequiresPayerName(in.Method) && strings.TrimSpace(in.PayerName) == "" {
		details["payer_name"] = "is required for cash payments"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid payment", details)
	}
	return nil
}

// ListOwn returns the caller's payments, newest first.
func (s *PaymentService) ListOwn(ctx context.Context, actor domain.Actor) ([]domain.Payment, error) {
	return s.payments.ListByUser(ctx, actor.UserID)
}

// List returns payments across students for reviewers.
func (s *PaymentService) List(ctx context.Context, filter repository.PaymentFilter) ([]repository.PaymentWithOwner, error) {
	if filter.Status != nil && *filter.Status != domain.ReviewPending && !filter.Status.IsTerminalDecision() {
		return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": *filter.Status})
	}
	return s.payments.List(ctx, filter)
}
