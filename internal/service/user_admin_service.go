package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/enrollment-portal/internal/auth"
	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/storage"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

const defaultUserPageSize = 50

// UserQuery is an admin listing request.
type UserQuery struct {
	Search           string
	Role             *domain.Role
	ProfileCompleted *bool
	Page             int
	Limit            int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total int `json:"total"`
	Pages int `json:"pages"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// UserPage is one page of users.
type UserPage struct {
	Users      []domain.User
	Pagination Pagination
}

// UserFinancialSummary is the payment overview shown on the user detail page.
type UserFinancialSummary struct {
	TotalCost    decimal.Decimal     `json:"total_cost"`
	TotalPaid    decimal.Decimal     `json:"total_paid"`
	Percent      decimal.Decimal     `json:"percent"`
	FullyPaid    bool                `json:"fully_paid"`
	Installments InstallmentProgress `json:"installments"`
}

// UserDetail is everything an administrator sees about one user.
type UserDetail struct {
	User          *domain.User
	Progress      domain.UserProgress
	Documents     []domain.Document
	Payments      []domain.Payment
	Notifications []domain.Notification
	Financial     UserFinancialSummary
}

// UserUpdate is an administrator's edit of an account. Nil fields are unchanged;
// an empty CohortID detaches the user from its cohort.
type UserUpdate struct {
	Email    *string
	Role     *domain.Role
	CohortID *string
	Password *string
	Profile  *domain.Profile
}

// UserAdminService backs the admin user pages.
type UserAdminService struct {
	users         repository.UserRepository
	documents     repository.DocumentRepository
	payments      repository.PaymentRepository
	notifications repository.NotificationRepository
	progress      *ProgressService
	finance       *FinanceService
	store         storage.ObjectStore
	hasher        *auth.PasswordHasher
	cache         cache.Invalidator
	logger        *zap.Logger
}

// UserAdminDependencies bundles collaborators for the admin user service.
type UserAdminDependencies struct {
	Users         repository.UserRepository
	Documents     repository.DocumentRepository
	Payments      repository.PaymentRepository
	Notifications repository.NotificationRepository
	Progress      *ProgressService
	Finance       *FinanceService
	Store         storage.ObjectStore
	Hasher        *auth.PasswordHasher
	Cache         cache.Invalidator
	Logger        *zap.Logger
}

// NewUserAdminService builds the service.
func NewUserAdminService(deps UserAdminDependencies) *UserAdminService {
	return &UserAdminService{
		users:         deps.Users,
		documents:     deps.Documents,
		payments:      deps.Payments,
		notifications: deps.Notifications,
		progress:      deps.Progress,
		finance:       deps.Finance,
		store:         deps.Store,
		hasher:        deps.Hasher,
		cache:         deps.Cache,
		logger:        deps.Logger,
	}
}

// List returns one page of users, newest first.
func (s *UserAdminService) List(ctx context.Context, q UserQuery) (*UserPage, error) {
	if q.Limit <= 0 {
		q.Limit = defaultUserPageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Role != nil && !q.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role filter", map[string]any{"role": *q.Role})
	}
	users, total, err := s.users.List(ctx, repository.UserFilter{
		Search:           strings.TrimSpace(q.Search),
		Role:             q.Role,
		ProfileCompleted: q.ProfileCompleted,
		Limit:            q.Limit,
		Offset:           (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &UserPage{
		Users: users,
		Pagination: Pagination{
			Total: total,
			Pages: (total + q.Limit - 1) / q.Limit,
			Page:  q.Page,
			Limit: q.Limit,
		},
	}, nil
}

// Detail loads a user with documents, payments, latest notifications and totals.
func (s *UserAdminService) Detail(ctx context.Context, id string) (*UserDetail, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user", id)
	}

	detail := &UserDetail{
		User:     user,
		Progress: domain.NewUserProgress(user.ProfileCompleted, user.DocumentsCompleted),
	}
	var totalCost decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		detail.Documents, err = s.documents.ListByUser(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		detail.Payments, err = s.payments.ListByUser(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		detail.Notifications, err = s.notifications.ListLatest(gctx, id, latestNotificationsLimit)
		return err
	})
	g.Go(func() (err error) {
		totalCost, err = s.finance.TotalCost(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paid := TotalPaid(detail.Payments)
	detail.Financial = UserFinancialSummary{
		TotalCost:    totalCost,
		TotalPaid:    paid,
		Percent:      percentOf(paid, totalCost),
		FullyPaid:    s.finance.IsFullyPaid(paid, totalCost),
		Installments: s.finance.InstallmentProgress(paid, totalCost),
	}
	return detail, nil
}

// Update applies an administrator's edit. Profile edits recompute profile completion.
func (s *UserAdminService) Update(ctx context.Context, actor domain.Actor, id string, in UserUpdate) (*domain.User, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user", id)
	}

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email == "" {
			return nil, apperrors.NewValidationError("email cannot be empty", nil)
		}
		user.Email = email
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *in.Role})
		}
		user.Role = *in.Role
	}
	if in.CohortID != nil {
		user.CohortID = optionalString(*in.CohortID)
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if in.Profile != nil {
		user.Profile.Merge(*in.Profile)
	}

	if err := s.users.Update(ctx, user); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		if apperrors.IsForeignKeyViolation(err) {
			return nil, apperrors.NewValidationError("unknown cohort", map[string]any{"cohort_id": deref(user.CohortID)})
		}
		return nil, notFoundOr(err, "user", id)
	}
	if in.Profile != nil {
		completed, err := s.progress.UpdateProfileCompletion(ctx, id)
		if err != nil {
			return nil, err
		}
		user.ProfileCompleted = completed
	}
	s.cache.InvalidateAggregates(ctx)
	return user, nil
}

// Delete removes a user. Stored files go first, best-effort; the row delete
// cascades to documents, payments and notifications.
func (s *UserAdminService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.HasRole(domain.ReviewRoles...) {
		return apperrors.NewForbidden("insufficient role")
	}
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return notFoundOr(err, "user", id)
	}

	docs, err := s.documents.ListByUser(ctx, id)
	if err != nil {
		return err
	}
	payments, err := s.payments.ListByUser(ctx, id)
	if err != nil {
		return err
	}
	var urls []string
	for i := range docs {
		if docs[i].FileAvailable() {
			urls = append(urls, *docs[i].URL)
		}
	}
	for i := range payments {
		if payments[i].FileAvailable() {
			urls = append(urls, *payments[i].URL)
		}
	}

	var g errgroup.Group
	g.SetLimit(blobDeleteConcurrency)
	for _, u := range urls {
		g.Go(func() error {
			if err := s.store.Delete(ctx, u); err != nil {
				s.logger.Warn("delete stored file", zap.String("user_id", id), zap.String("url", u), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.users.Delete(ctx, id); err != nil {
		return notFoundOr(err, "user", id)
	}
	s.cache.InvalidateAggregates(ctx)
	return nil
}
