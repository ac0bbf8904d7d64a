package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/config"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// InstallmentState classifies how far a student is through paying the diploma.
type InstallmentState string

const (
	InstallmentsFull    InstallmentState = "FULL"
	InstallmentsPartial InstallmentState = "INSTALLMENTS"
	InstallmentsUnpaid  InstallmentState = "UNPAID"
)

var (
	// Amounts below this with no whole installment count as unpaid.
	unpaidThreshold = decimal.NewFromInt(50)
	// Roster tolerance for calling a student fully paid.
	rosterFullTolerance = decimal.NewFromInt(10)
	hundred             = decimal.NewFromInt(100)
)

// InstallmentProgress is the presentational projection of a total onto fixed installments.
type InstallmentProgress struct {
	State InstallmentState `json:"state"`
	Paid  int              `json:"paid"`
	Total int              `json:"total"`
}

// DistributionRates is the per-student amount owed to each channel.
type DistributionRates struct {
	UFLP       decimal.Decimal `json:"uflp"`
	ECOA       decimal.Decimal `json:"ecoa"`
	Commission decimal.Decimal `json:"commission"`
}

// DistributionRollup is count(PAID) × rate per channel.
type DistributionRollup struct {
	UFLPCount       int             `json:"uflp_count"`
	UFLPTotal       decimal.Decimal `json:"uflp_total"`
	ECOACount       int             `json:"ecoa_count"`
	ECOATotal       decimal.Decimal `json:"ecoa_total"`
	CommissionCount int             `json:"commission_count"`
	CommissionTotal decimal.Decimal `json:"commission_total"`
}

// FinancialRecord is one student's row in the financial listing.
type FinancialRecord struct {
	UserID       string              `json:"user_id"`
	Email        string              `json:"email"`
	Name         string              `json:"name"`
	TotalPaid    decimal.Decimal     `json:"total_paid"`
	Percent      decimal.Decimal     `json:"percent"`
	FullyPaid    bool                `json:"fully_paid"`
	Distribution domain.Distribution `json:"distribution"`
}

// FinancialRecords is the financial listing with its totals.
type FinancialRecords struct {
	TotalCost decimal.Decimal    `json:"total_cost"`
	Records   []FinancialRecord  `json:"records"`
	Rollup    DistributionRollup `json:"rollup"`
	Rates     DistributionRates  `json:"rates"`
}

// StudentSummary is the student's own payment overview.
type StudentSummary struct {
	TotalCost    decimal.Decimal     `json:"total_cost"`
	TotalPaid    decimal.Decimal     `json:"total_paid"`
	Remaining    decimal.Decimal     `json:"remaining"`
	FullyPaid    bool                `json:"fully_paid"`
	Installments InstallmentProgress `json:"installments"`
	Payments     []domain.Payment    `json:"payments"`
}

// DistributionUpdate sets a student's distribution statuses and dates.
type DistributionUpdate struct {
	UFLP           *domain.DistributionStatus
	UFLPDate       *time.Time
	ECOA           *domain.DistributionStatus
	ECOADate       *time.Time
	Commission     *domain.DistributionStatus
	CommissionDate *time.Time
}

type financeDefaults struct {
	totalCost        decimal.Decimal
	epsilon          decimal.Decimal
	installmentPrice decimal.Decimal
	installmentCount int
	rates            DistributionRates
}

// FinanceService derives payment totals on read. Nothing it computes is persisted.
type FinanceService struct {
	settings repository.SettingRepository
	users    repository.UserRepository
	payments repository.PaymentRepository
	cache    cache.Invalidator
	defaults financeDefaults
	logger   *zap.Logger
}

// NewFinanceService parses the configured money defaults and builds the service.
func NewFinanceService(
	cfg config.FinanceConfig,
	settings repository.SettingRepository,
	users repository.UserRepository,
	payments repository.PaymentRepository,
	invalidator cache.Invalidator,
	logger *zap.Logger,
) (*FinanceService, error) {
	parse := func(name, raw string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid finance %s %q: %w", name, raw, err)
		}
		return d, nil
	}

	var defaults financeDefaults
	var err error
	if defaults.totalCost, err = parse("total cost", cfg.DefaultTotalCost); err != nil {
		return nil, err
	}
	if defaults.epsilon, err = parse("epsilon", cfg.PaidEpsilon); err != nil {
		return nil, err
	}
	if defaults.installmentPrice, err = parse("installment price", cfg.InstallmentPrice); err != nil {
		return nil, err
	}
	if !defaults.installmentPrice.IsPositive() {
		return nil, fmt.Errorf("finance installment price must be positive")
	}
	if defaults.rates.UFLP, err = parse("UFLP rate", cfg.DefaultDistributionUFLP); err != nil {
		return nil, err
	}
	if defaults.rates.ECOA, err = parse("ECOA rate", cfg.DefaultDistributionECOA); err != nil {
		return nil, err
	}
	if defaults.rates.Commission, err = parse("commission rate", cfg.DefaultDistributionCommission); err != nil {
		return nil, err
	}
	defaults.installmentCount = cfg.InstallmentCount
	if defaults.installmentCount <= 0 {
		defaults.installmentCount = 3
	}

	return &FinanceService{
		settings: settings,
		users:    users,
		payments: payments,
		cache:    invalidator,
		defaults: defaults,
		logger:   logger,
	}, nil
}

// TotalPaid sums the APPROVED payments. Pending and rejected payments count as zero.
func TotalPaid(payments []domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == domain.ReviewApproved {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// IsFullyPaid reports whether totalPaid covers totalCost within the configured epsilon.
func (s *FinanceService) IsFullyPaid(totalPaid, totalCost decimal.Decimal) bool {
	return totalPaid.GreaterThanOrEqual(totalCost.Sub(s.defaults.epsilon))
}

// TotalCost reads the diploma cost setting, falling back to the configured default
// when it is missing or unparseable.
func (s *FinanceService) TotalCost(ctx context.Context) (decimal.Decimal, error) {
	values, err := s.settings.GetMany(ctx, domain.SettingDiplomaTotalCost)
	if err != nil {
		return decimal.Zero, err
	}
	return s.settingOr(values, domain.SettingDiplomaTotalCost, s.defaults.totalCost), nil
}

// Rates reads the per-channel distribution amounts.
func (s *FinanceService) Rates(ctx context.Context) (DistributionRates, error) {
	values, err := s.settings.GetMany(ctx,
		domain.SettingDistributionUFLP,
		domain.SettingDistributionECOA,
		domain.SettingDistributionCommission,
	)
	if err != nil {
		return DistributionRates{}, err
	}
	return DistributionRates{
		UFLP:       s.settingOr(values, domain.SettingDistributionUFLP, s.defaults.rates.UFLP),
		ECOA:       s.settingOr(values, domain.SettingDistributionECOA, s.defaults.rates.ECOA),
		Commission: s.settingOr(values, domain.SettingDistributionCommission, s.defaults.rates.Commission),
	}, nil
}

func (s *FinanceService) settingOr(values map[string]string, key string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := values[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		s.logger.Warn("unparseable money setting", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return d
}

// DistributionRollup multiplies the number of PAID students per channel by the
// channel rate.
func (s *FinanceService) DistributionRollup(ctx context.Context) (DistributionRollup, error) {
	rates, err := s.Rates(ctx)
	if err != nil {
		return DistributionRollup{}, err
	}
	counts, err := s.users.CountDistributionPaid(ctx)
	if err != nil {
		return DistributionRollup{}, err
	}
	return rollup(counts, rates), nil
}

func rollup(counts repository.DistributionCounts, rates DistributionRates) DistributionRollup {
	return DistributionRollup{
		UFLPCount:       counts.UFLP,
		UFLPTotal:       rates.UFLP.Mul(decimal.NewFromInt(int64(counts.UFLP))),
		ECOACount:       counts.ECOA,
		ECOATotal:       rates.ECOA.Mul(decimal.NewFromInt(int64(counts.ECOA))),
		CommissionCount: counts.Commission,
		CommissionTotal: rates.Commission.Mul(decimal.NewFromInt(int64(counts.Commission))),
	}
}

// InstallmentProgress projects totalPaid onto the fixed installment plan by integer
// division. It is presentational only.
func (s *FinanceService) InstallmentProgress(totalPaid, totalCost decimal.Decimal) InstallmentProgress {
	total := s.defaults.installmentCount
	if totalPaid.GreaterThanOrEqual(totalCost.Sub(rosterFullTolerance)) {
		return InstallmentProgress{State: InstallmentsFull, Paid: total, Total: total}
	}
	paid := int(totalPaid.Div(s.defaults.installmentPrice).Floor().IntPart())
	if paid > total {
		paid = total
	}
	if paid == 0 && totalPaid.LessThan(unpaidThreshold) {
		return InstallmentProgress{State: InstallmentsUnpaid, Paid: 0, Total: total}
	}
	return InstallmentProgress{State: InstallmentsPartial, Paid: paid, Total: total}
}

// FinancialRecords lists students with at least one payment and their totals.
func (s *FinanceService) FinancialRecords(ctx context.Context, filter repository.FinancialFilter) (*FinancialRecords, error) {
	totalCost, err := s.TotalCost(ctx)
	if err != nil {
		return nil, err
	}
	rates, err := s.Rates(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListWithPayments(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	payments, err := s.payments.ListByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string][]domain.Payment, len(users))
	for _, p := range payments {
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	result := &FinancialRecords{TotalCost: totalCost, Rates: rates, Records: make([]FinancialRecord, 0, len(users))}
	var counts repository.DistributionCounts
	for i := range users {
		u := &users[i]
		paid := TotalPaid(byUser[u.ID])
		result.Records = append(result.Records, FinancialRecord{
			UserID:       u.ID,
			Email:        u.Email,
			Name:         u.DisplayName(),
			TotalPaid:    paid,
			Percent:      percentOf(paid, totalCost),
			FullyPaid:    s.IsFullyPaid(paid, totalCost),
			Distribution: u.Distribution(),
		})
		if u.DistributionUFLP == domain.DistributionPaid {
			counts.UFLP++
		}
		if u.DistributionECOA == domain.DistributionPaid {
			counts.ECOA++
		}
		if u.DistributionCommission == domain.DistributionPaid {
			counts.Commission++
		}
	}
	result.Rollup = rollup(counts, rates)
	return result, nil
}

func percentOf(paid, cost decimal.Decimal) decimal.Decimal {
	if !cost.IsPositive() {
		return decimal.Zero
	}
	pct := paid.Div(cost).Mul(hundred).Round(2)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// StudentSummary builds the caller's own payment overview.
func (s *FinanceService) StudentSummary(ctx context.Context, actor domain.Actor) (*StudentSummary, error) {
	totalCost, err := s.TotalCost(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	paid := TotalPaid(payments)
	remaining := totalCost.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &StudentSummary{
		TotalCost:    totalCost,
		TotalPaid:    paid,
		Remaining:    remaining,
		FullyPaid:    s.IsFullyPaid(paid, totalCost),
		Installments: s.InstallmentProgress(paid, totalCost),
		Payments:     payments,
	}, nil
}

// UpdateUserFinancials sets a student's distribution statuses and dates. Fields
// left nil keep their current value.
func (s *FinanceService) UpdateUserFinancials(ctx context.Context, actor domain.Actor, userID string, update DistributionUpdate) (domain.Distribution, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return domain.Distribution{}, apperrors.NewForbidden("insufficient role")
	}
	for _, st := range []*domain.DistributionStatus{update.UFLP, update.ECOA, update.Commission} {
		if st != nil && !st.Valid() {
			return domain.Distribution{}, apperrors.NewValidationError("invalid distribution status", map[string]any{"status": *st})
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.Distribution{}, notFoundOr(err, "user", userID)
	}
	d := user.Distribution()
	if update.UFLP != nil {
		d.UFLP = *update.UFLP
	}
	if update.UFLPDate != nil {
		d.UFLPDate = update.UFLPDate
	}
	if update.ECOA != nil {
		d.ECOA = *update.ECOA
	}
	if update.ECOADate != nil {
		d.ECOADate = update.ECOADate
	}
	if update.Commission != nil {
		d.Commission = *update.Commission
	}
	if update.CommissionDate != nil {
		d.CommissionDate = update.CommissionDate
	}

	if err := s.users.UpdateDistribution(ctx, userID, d); err != nil {
		return domain.Distribution{}, notFoundOr(err, "user", userID)
	}
	s.cache.InvalidateAggregates(ctx)
	return d, nil
}
