package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-portal/internal/domain"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

func TestUserAdminService(t *testing.T) {
	ctx := context.Background()

	t.Run("Should page users newest first", func(t *testing.T) {
		h := newHarness(t)
		for _, name := range []string{"Ana", "Luis", "Sara"} {
			h.student(name, "García")
		}
		student := domain.RoleStudent

		page, err := h.userAdmin.List(ctx, UserQuery{Role: &student, Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, Pagination{Total: 3, Pages: 2, Page: 2, Limit: 2}, page.Pagination)
		require.Len(t, page.Users, 1)
		assert.Equal(t, "Ana@example.com", page.Users[0].Email)

		bogus := domain.Role("ROOT")
		_, err = h.userAdmin.List(ctx, UserQuery{Role: &bogus})
		assert.Equal(t, http.StatusBadRequest, statusOf(err))
	})

	t.Run("Should assemble the user detail", func(t *testing.T) {
		h := newHarness(t)
		st := h.student("Ana", "García")
		h.db.addDocument(domain.Document{UserID: st.UserID, Type: domain.DocumentIDPhoto})
		h.db.addPayment(domain.Payment{UserID: st.UserID, Amount: dec("390"), Status: domain.ReviewApproved})

		detail, err := h.userAdmin.Detail(ctx, st.UserID)
		require.NoError(t, err)
		assert.Len(t, detail.Documents, 1)
		assert.Len(t, detail.Payments, 1)
		assert.True(t, detail.Progress.CanAccessDocuments)
		assert.True(t, detail.Financial.FullyPaid)
		assert.Equal(t, InstallmentsFull, detail.Financial.Installments.State)

		_, err = h.userAdmin.Detail(ctx, "missing")
		assert.Equal(t, http.StatusNotFound, statusOf(err))
	})

	t.Run("Should update accounts and recompute completion on profile edits", func(t *testing.T) {
		h := newHarness(t)
		st := h.student("Ana", "García")

		_, err := h.userAdmin.Update(ctx, auditor, st.UserID, UserUpdate{})
		assert.Equal(t, http.StatusForbidden, statusOf(err))

		role := domain.RoleAuditor
		updated, err := h.userAdmin.Update(ctx, superAdmin, st.UserID, UserUpdate{
			Email:   strPtr(" NEW@Example.com"),
			Role:    &role,
			Profile: &domain.Profile{Address: strPtr("")},
		})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", updated.Email)
		assert.Equal(t, domain.RoleAuditor, updated.Role)
		assert.False(t, updated.ProfileCompleted)
		assert.False(t, h.db.user(st.UserID).ProfileCompleted)
	})

	t.Run("Should reject an unknown cohort as a validation error", func(t *testing.T) {
		h := newHarness(t)
		st := h.student("Ana", "García")

		_, err := h.userAdmin.Update(ctx, superAdmin, st.UserID, UserUpdate{CohortID: strPtr("cohort-missing")})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, statusOf(err))
		assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
		assert.Nil(t, h.db.user(st.UserID).CohortID)
		assert.Zero(t, h.invalidator.count())
	})

	t.Run("Should delete files best-effort before the account", func(t *testing.T) {
		h := newHarness(t)
		st := h.student("Ana", "García")
		h.db.addDocument(domain.Document{UserID: st.UserID, Type: domain.DocumentIDPhoto, URL: strPtr("https://files.test/a")})
		h.db.addDocument(domain.Document{UserID: st.UserID, Type: domain.DocumentCurriculum, URL: strPtr("https://files.test/b")})
		h.db.addPayment(domain.Payment{UserID: st.UserID, URL: strPtr("https://files.test/c")})
		h.store.failDeletes["https://files.test/b"] = true

		assert.Equal(t, http.StatusForbidden, statusOf(h.userAdmin.Delete(ctx, admin, st.UserID)))
		require.NoError(t, h.userAdmin.Delete(ctx, superAdmin, st.UserID))
		assert.ElementsMatch(t, []string{"https://files.test/a", "https://files.test/c"}, h.store.deletedURLs())
		_, err := memUsers{h.db}.GetByID(ctx, st.UserID)
		assert.Error(t, err)
		assert.Equal(t, http.StatusNotFound, statusOf(h.userAdmin.Delete(ctx, superAdmin, st.UserID)))
	})
}

func TestCohortService(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 6, 0)

	t.Run("Should create cohorts with upper-case unique codes", func(t *testing.T) {
		h := newHarness(t)
		c, err := h.cohorts.Create(ctx, superAdmin, CohortInput{Code: " c1-2024 ", StartDate: start, EndDate: end})
		require.NoError(t, err)
		assert.Equal(t, "C1-2024", c.Code)

		_, err = h.cohorts.Create(ctx, superAdmin, CohortInput{Code: "C1-2024", StartDate: start, EndDate: end})
		assert.Equal(t, http.StatusConflict, statusOf(err))

		_, err = h.cohorts.Create(ctx, auditor, CohortInput{Code: "C2", StartDate: start, EndDate: end})
		assert.Equal(t, http.StatusForbidden, statusOf(err))

		_, err = h.cohorts.Create(ctx, superAdmin, CohortInput{Code: "C2", StartDate: end, EndDate: start})
		assert.Equal(t, http.StatusBadRequest, statusOf(err))

		list, err := h.cohorts.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Should update and delete cohorts", func(t *testing.T) {
		h := newHarness(t)
		c, err := h.cohorts.Create(ctx, superAdmin, CohortInput{Code: "C1", StartDate: start, EndDate: end})
		require.NoError(t, err)
		other, err := h.cohorts.Create(ctx, superAdmin, CohortInput{Code: "C2", StartDate: start, EndDate: end})
		require.NoError(t, err)

		_, err = h.cohorts.Update(ctx, superAdmin, other.ID, CohortInput{Code: "c1", StartDate: start, EndDate: end})
		assert.Equal(t, http.StatusConflict, statusOf(err))

		updated, err := h.cohorts.Update(ctx, superAdmin, c.ID, CohortInput{Code: "c1b", StartDate: start, EndDate: end})
		require.NoError(t, err)
		assert.Equal(t, "C1B", updated.Code)

		_, err = h.cohorts.Update(ctx, superAdmin, "missing", CohortInput{Code: "X", StartDate: start, EndDate: end})
		assert.Equal(t, http.StatusNotFound, statusOf(err))

		require.NoError(t, h.cohorts.Delete(ctx, superAdmin, c.ID))
		assert.Equal(t, http.StatusNotFound, statusOf(h.cohorts.Delete(ctx, superAdmin, c.ID)))
	})

	t.Run("Should invalidate aggregates only after a successful rename or delete", func(t *testing.T) {
		h := newHarness(t)
		c, err := h.cohorts.Create(ctx, superAdmin, CohortInput{Code: "C1", StartDate: start, EndDate: end})
		require.NoError(t, err)
		assert.Zero(t, h.invalidator.count())

		_, err = h.cohorts.Update(ctx, superAdmin, "missing", CohortInput{Code: "X", StartDate: start, EndDate: end})
		require.Error(t, err)
		assert.Zero(t, h.invalidator.count())

		_, err = h.cohorts.Update(ctx, superAdmin, c.ID, CohortInput{Code: "C2", StartDate: start, EndDate: end})
		require.NoError(t, err)
		assert.Equal(t, 1, h.invalidator.count())

		require.NoError(t, h.cohorts.Delete(ctx, superAdmin, c.ID))
		assert.Equal(t, 2, h.invalidator.count())
	})

	t.Run("Should show the renamed cohort on the dashboard", func(t *testing.T) {
		h := newHarness(t)
		cohorts := NewCohortService(memCohorts{h.db}, h.aggregates)
		c, err := cohorts.Create(ctx, superAdmin, CohortInput{Code: "C1", StartDate: start, EndDate: end})
		require.NoError(t, err)
		ana := h.student("Ana", "García")
		h.db.mu.Lock()
		h.db.users[ana.UserID].CohortID = &c.ID
		h.db.mu.Unlock()

		before, err := h.analytics.Dashboard(ctx)
		require.NoError(t, err)
		require.Len(t, before, 1)
		require.NotNil(t, before[0].Cohort)
		assert.Equal(t, "C1", *before[0].Cohort)

		_, err = cohorts.Update(ctx, superAdmin, c.ID, CohortInput{Code: "C2", StartDate: start, EndDate: end})
		require.NoError(t, err)
		renamed, err := h.analytics.Dashboard(ctx)
		require.NoError(t, err)
		require.NotNil(t, renamed[0].Cohort)
		assert.Equal(t, "C2", *renamed[0].Cohort)

		require.NoError(t, cohorts.Delete(ctx, superAdmin, c.ID))
		deleted, err := h.analytics.Dashboard(ctx)
		require.NoError(t, err)
		assert.Nil(t, deleted[0].Cohort)
	})
}

func TestSettingsService(t *testing.T) {
	ctx := context.Background()

	t.Run("Should normalise money settings and invalidate aggregates", func(t *testing.T) {
		h := newHarness(t)
		s, err := h.settings.Upsert(ctx, superAdmin, domain.SettingDiplomaTotalCost, "420", nil)
		require.NoError(t, err)
		assert.Equal(t, "420.00", s.Value)
		assert.Equal(t, 1, h.invalidator.count())

		public, err := h.settings.Public(ctx)
		require.NoError(t, err)
		assert.True(t, public.DiplomaTotalCost.Equal(dec("420")))
	})

	t.Run("Should reject negative amounts and non super admins", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.settings.Upsert(ctx, superAdmin, domain.SettingDistributionUFLP, "-1", nil)
		assert.Equal(t, http.StatusBadRequest, statusOf(err))
		_, err = h.settings.Upsert(ctx, superAdmin, domain.SettingDistributionUFLP, "abc", nil)
		assert.Equal(t, http.StatusBadRequest, statusOf(err))
		_, err = h.settings.Upsert(ctx, auditor, domain.SettingDistributionUFLP, "10", nil)
		assert.Equal(t, http.StatusForbidden, statusOf(err))

		s, err := h.settings.Upsert(ctx, superAdmin, "welcome_banner", " Hola ", strPtr("texto libre"))
		require.NoError(t, err)
		assert.Equal(t, "Hola", s.Value)
	})
}

func TestNotificationInbox(t *testing.T) {
	ctx := context.Background()

	t.Run("Should mark only the caller's own notifications", func(t *testing.T) {
		h := newHarness(t)
		ana := h.student("Ana", "García")
		luis := h.student("Luis", "Pérez")

		note, err := h.notifications.Create(ctx, superAdmin, NotificationInput{UserID: ana.UserID, Title: "Hola", Message: "Bienvenida"})
		require.NoError(t, err)
		assert.Equal(t, domain.NotificationInfo, note.Type)

		assert.Equal(t, http.StatusNotFound, statusOf(h.notifications.MarkRead(ctx, luis, note.ID)))
		require.NoError(t, h.notifications.MarkRead(ctx, ana, note.ID))

		latest, err := h.notifications.ListLatest(ctx, ana)
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.True(t, latest[0].Read)
	})

	t.Run("Should return the latest twenty", func(t *testing.T) {
		h := newHarness(t)
		ana := h.student("Ana", "García")
		for i := 0; i < 25; i++ {
			_, err := h.notifications.Create(ctx, superAdmin, NotificationInput{UserID: ana.UserID, Title: "n", Message: "m"})
			require.NoError(t, err)
		}
		latest, err := h.notifications.ListLatest(ctx, ana)
		require.NoError(t, err)
		assert.Len(t, latest, 20)
	})

	t.Run("Should validate ad-hoc notifications", func(t *testing.T) {
		h := newHarness(t)
		ana := h.student("Ana", "García")
		_, err := h.notifications.Create(ctx, auditor, NotificationInput{UserID: ana.UserID})
		assert.Equal(t, http.StatusForbidden, statusOf(err))
		_, err = h.notifications.Create(ctx, superAdmin, NotificationInput{UserID: ana.UserID, Type: "LOUD"})
		assert.Equal(t, http.StatusBadRequest, statusOf(err))
		_, err = h.notifications.Create(ctx, superAdmin, NotificationInput{UserID: "missing"})
		assert.Equal(t, http.StatusNotFound, statusOf(err))
	})
}
