package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTotalPaid(t *testing.T) {
	t.Run("Should sum approved payments only", func(t *testing.T) {
		payments := []domain.Payment{
			{Amount: dec("130"), Status: domain.ReviewApproved},
			{Amount: dec("130"), Status: domain.ReviewPending},
			{Amount: dec("99.50"), Status: domain.ReviewRejected},
			{Amount: dec("129.90"), Status: domain.ReviewApproved},
		}
		assert.True(t, TotalPaid(payments).Equal(dec("259.90")))
		assert.True(t, TotalPaid(nil).IsZero())
	})
}

func TestFinanceService(t *testing.T) {
	ctx := context.Background()

	t.Run("Should treat totals within the epsilon as fully paid", func(t *testing.T) {
		h := newHarness(t)
		cost := dec("390")
		assert.True(t, h.finance.IsFullyPaid(dec("390"), cost))
		assert.True(t, h.finance.IsFullyPaid(dec("389.90"), cost))
		assert.False(t, h.finance.IsFullyPaid(dec("389.89"), cost))
		assert.True(t, h.finance.IsFullyPaid(dec("500"), cost))
	})

	t.Run("Should project totals onto three installments of 130", func(t *testing.T) {
		h := newHarness(t)
		cost := dec("390")
		cases := []struct {
			paid  string
			state InstallmentState
			count int
		}{
			{"0", InstallmentsUnpaid, 0},
			{"49.99", InstallmentsUnpaid, 0},
			{"50", InstallmentsPartial, 0},
			{"130", InstallmentsPartial, 1},
			{"259.99", InstallmentsPartial, 1},
			{"260", InstallmentsPartial, 2},
			{"379.99", InstallmentsPartial, 2},
			{"380", InstallmentsFull, 3},
		}
		for _, tc := range cases {
			got := h.finance.InstallmentProgress(dec(tc.paid), cost)
			assert.Equal(t, tc.state, got.State, tc.paid)
			assert.Equal(t, tc.count, got.Paid, tc.paid)
			assert.Equal(t, 3, got.Total)
		}
	})

	t.Run("Should read the total cost setting and fall back on bad values", func(t *testing.T) {
		h := newHarness(t)
		cost, err := h.finance.TotalCost(ctx)
		require.NoError(t, err)
		assert.True(t, cost.Equal(dec("390")))

		require.NoError(t, memSettings{h.db}.Upsert(ctx, &domain.SystemSetting{Key: domain.SettingDiplomaTotalCost, Value: "450.00"}))
		cost, err = h.finance.TotalCost(ctx)
		require.NoError(t, err)
		assert.True(t, cost.Equal(dec("450")))

		require.NoError(t, memSettings{h.db}.Upsert(ctx, &domain.SystemSetting{Key: domain.SettingDiplomaTotalCost, Value: "abc"}))
		cost, err = h.finance.TotalCost(ctx)
		require.NoError(t, err)
		assert.True(t, cost.Equal(dec("390")))
	})

	t.Run("Should multiply paid distributions by their rate", func(t *testing.T) {
		h := newHarness(t)
		settings := memSettings{h.db}
		require.NoError(t, settings.Upsert(ctx, &domain.SystemSetting{Key: domain.SettingDistributionUFLP, Value: "100"}))
		require.NoError(t, settings.Upsert(ctx, &domain.SystemSetting{Key: domain.SettingDistributionECOA, Value: "50.50"}))
		h.db.addUser(domain.User{Email: "a@x", DistributionUFLP: domain.DistributionPaid, DistributionECOA: domain.DistributionPaid, DistributionCommission: domain.DistributionPending})
		h.db.addUser(domain.User{Email: "b@x", DistributionUFLP: domain.DistributionPaid, DistributionECOA: domain.DistributionInProcess, DistributionCommission: domain.DistributionPaid})

		r, err := h.finance.DistributionRollup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, r.UFLPCount)
		assert.True(t, r.UFLPTotal.Equal(dec("200")))
		assert.Equal(t, 1, r.ECOACount)
		assert.True(t, r.ECOATotal.Equal(dec("50.50")))
		assert.Equal(t, 1, r.CommissionCount)
		assert.True(t, r.CommissionTotal.Equal(dec("50")))
	})

	t.Run("Should fall back to the default rates when settings are unset", func(t *testing.T) {
		h := newHarness(t)
		h.db.addUser(domain.User{Email: "a@x", DistributionUFLP: domain.DistributionPaid, DistributionECOA: domain.DistributionPaid, DistributionCommission: domain.DistributionPaid})

		rates, err := h.finance.Rates(ctx)
		require.NoError(t, err)
		assert.True(t, rates.UFLP.Equal(dec("110")))
		assert.True(t, rates.ECOA.Equal(dec("230")))
		assert.True(t, rates.Commission.Equal(dec("50")))

		r, err := h.finance.DistributionRollup(ctx)
		require.NoError(t, err)
		assert.True(t, r.UFLPTotal.Equal(dec("110")))
		assert.True(t, r.ECOATotal.Equal(dec("230")))
		assert.True(t, r.CommissionTotal.Equal(dec("50")))
	})

	t.Run("Should list students with payments and their percentages", func(t *testing.T) {
		h := newHarness(t)
		ana := h.student("Ana", "García")
		luis := h.student("Luis", "Pérez")
		h.student("Sin", "Pagos")
		h.db.addPayment(domain.Payment{UserID: ana.UserID, Amount: dec("390"), Status: domain.ReviewApproved, Date: time.Now()})
		h.db.addPayment(domain.Payment{UserID: luis.UserID, Amount: dec("130"), Status: domain.ReviewApproved, Date: time.Now()})
		h.db.addPayment(domain.Payment{UserID: luis.UserID, Amount: dec("130"), Status: domain.ReviewPending, Date: time.Now()})

		out, err := h.finance.FinancialRecords(ctx, repository.FinancialFilter{})
		require.NoError(t, err)
		require.Len(t, out.Records, 2)
		byUser := map[string]FinancialRecord{}
		for _, r := range out.Records {
			byUser[r.UserID] = r
		}
		assert.True(t, byUser[ana.UserID].FullyPaid)
		assert.True(t, byUser[ana.UserID].Percent.Equal(dec("100")))
		assert.False(t, byUser[luis.UserID].FullyPaid)
		assert.True(t, byUser[luis.UserID].TotalPaid.Equal(dec("130")))
		assert.True(t, byUser[luis.UserID].Percent.Equal(dec("33.33")))
	})

	t.Run("Should summarise a student's own payments", func(t *testing.T) {
		h := newHarness(t)
		ana := h.student("Ana", "García")
		h.db.addPayment(domain.Payment{UserID: ana.UserID, Amount: dec("260"), Status: domain.ReviewApproved})

		s, err := h.finance.StudentSummary(ctx, ana)
		require.NoError(t, err)
		assert.True(t, s.Remaining.Equal(dec("130")))
		assert.False(t, s.FullyPaid)
		assert.Equal(t, 2, s.Installments.Paid)
		assert.Len(t, s.Payments, 1)
	})

	t.Run("Should update distributions for super admins only", func(t *testing.T) {
		h := newHarness(t)
		ana := h.student("Ana", "García")
		paid := domain.DistributionPaid
		when := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

		_, err := h.finance.UpdateUserFinancials(ctx, auditor, ana.UserID, DistributionUpdate{UFLP: &paid})
		assert.Equal(t, http.StatusForbidden, statusOf(err))

		bogus := domain.DistributionStatus("DONE")
		_, err = h.finance.UpdateUserFinancials(ctx, superAdmin, ana.UserID, DistributionUpdate{UFLP: &bogus})
		assert.Equal(t, http.StatusBadRequest, statusOf(err))

		d, err := h.finance.UpdateUserFinancials(ctx, superAdmin, ana.UserID, DistributionUpdate{UFLP: &paid, UFLPDate: &when})
		require.NoError(t, err)
		assert.Equal(t, domain.DistributionPaid, d.UFLP)
		assert.Equal(t, domain.DistributionPending, d.ECOA)
		stored := h.db.user(ana.UserID)
		assert.Equal(t, domain.DistributionPaid, stored.DistributionUFLP)
		require.NotNil(t, stored.DistributionUFLPDate)
		assert.True(t, stored.DistributionUFLPDate.Equal(when))
		assert.Equal(t, 1, h.invalidator.count())
	})
}
