package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

var moneySettings = map[string]bool{
	domain.SettingDiplomaTotalCost:       true,
	domain.SettingDistributionUFLP:       true,
	domain.SettingDistributionECOA:       true,
	domain.SettingDistributionCommission: true,
}

// PublicSettings is what any signed-in user may read.
type PublicSettings struct {
	DiplomaTotalCost decimal.Decimal `json:"diploma_total_cost"`
}

// SettingsService reads and writes system settings.
type SettingsService struct {
	settings repository.SettingRepository
	finance  *FinanceService
	cache    cache.Invalidator
}

// NewSettingsService builds the service.
func NewSettingsService(settings repository.SettingRepository, finance *FinanceService, invalidator cache.Invalidator) *SettingsService {
	return &SettingsService{settings: settings, finance: finance, cache: invalidator}
}

// Public returns the settings exposed to students.
func (s *SettingsService) Public(ctx context.Context) (PublicSettings, error) {
	cost, err := s.finance.TotalCost(ctx)
	if err != nil {
		return PublicSettings{}, err
	}
	return PublicSettings{DiplomaTotalCost: cost}, nil
}

// List returns every stored setting.
func (s *SettingsService) List(ctx context.Context) ([]domain.SystemSetting, error) {
	return s.settings.List(ctx)
}

// Upsert stores a setting. Money settings must be non-negative amounts.
func (s *SettingsService) Upsert(ctx context.Context, actor domain.Actor, key, value string, description *string) (*domain.SystemSetting, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return nil, apperrors.NewValidationError("key is required", nil)
	}
	if moneySettings[key] {
		amount, err := decimal.NewFromString(value)
		if err != nil || amount.IsNegative() {
			return nil, apperrors.NewValidationError("value must be a non-negative amount", map[string]any{"key": key})
		}
		value = amount.StringFixed(2)
	}

	setting := &domain.SystemSetting{Key: key, Value: value, Description: description}
	if err := s.settings.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	s.cache.InvalidateAggregates(ctx)
	return setting, nil
}
