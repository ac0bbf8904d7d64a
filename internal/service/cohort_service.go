package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// CohortInput describes a cohort to create or replace.
type CohortInput struct {
	Code      string
	StartDate time.Time
	EndDate   time.Time
}

// CohortService manages cohorts. Renames and deletes invalidate the cached
// aggregates.
type CohortService struct {
	cohorts     repository.CohortRepository
	invalidator cache.Invalidator
}

// NewCohortService builds the service.
func NewCohortService(cohorts repository.CohortRepository, invalidator cache.Invalidator) *CohortService {
	return &CohortService{cohorts: cohorts, invalidator: invalidator}
}

// List returns every cohort.
func (s *CohortService) List(ctx context.Context) ([]domain.Cohort, error) {
	return s.cohorts.List(ctx)
}

func validateCohort(in CohortInput) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return "", apperrors.NewValidationError("code is required", nil)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return "", apperrors.NewValidationError("start and end dates are required", nil)
	}
	if in.EndDate.Before(in.StartDate) {
		return "", apperrors.NewValidationError("end date must not precede start date", nil)
	}
	return code, nil
}

// Create adds a cohort. Duplicate codes are a conflict.
func (s *CohortService) Create(ctx context.Context, actor domain.Actor, in CohortInput) (*domain.Cohort, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	code, err := validateCohort(in)
	if err != nil {
		return nil, err
	}
	cohort := &domain.Cohort{Code: code, StartDate: in.StartDate, EndDate: in.EndDate}
	if err := s.cohorts.Create(ctx, cohort); err != nil {
		return nil, cohortWriteError(err, code)
	}
	return cohort, nil
}

// Update replaces a cohort's code and dates.
func (s *CohortService) Update(ctx context.Context, actor domain.Actor, id string, in CohortInput) (*domain.Cohort, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	code, err := validateCohort(in)
	if err != nil {
		return nil, err
	}
	cohort, err := s.cohorts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "cohort", id)
	}
	cohort.Code = code
	cohort.StartDate = in.StartDate
	cohort.EndDate = in.EndDate
	if err := s.cohorts.Update(ctx, cohort); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, notFoundOr(err, "cohort", id)
		}
		return nil, cohortWriteError(err, code)
	}
	s.invalidator.InvalidateAggregates(ctx)
	return cohort, nil
}

// Delete removes a cohort. Its students stay, without a cohort.
func (s *CohortService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.HasRole(domain.ReviewRoles...) {
		return apperrors.NewForbidden("insufficient role")
	}
	if err := s.cohorts.Delete(ctx, id); err != nil {
		return notFoundOr(err, "cohort", id)
	}
	s.invalidator.InvalidateAggregates(ctx)
	return nil
}

func cohortWriteError(err error, code string) error {
	if apperrors.IsUniqueViolation(err) {
		return apperrors.NewConflict("cohort code already exists", map[string]any{"code": code})
	}
	return err
}
