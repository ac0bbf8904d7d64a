package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/enrollment-portal/internal/auth"
	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/config"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/events"
)

var (
	superAdmin = domain.Actor{UserID: "admin-1", Role: domain.RoleSuperAdmin}
	auditor    = domain.Actor{UserID: "auditor-1", Role: domain.RoleAuditor}
	admin      = domain.Actor{UserID: "admin-2", Role: domain.RoleAdmin}
)

func testFinanceConfig() config.FinanceConfig {
	return config.FinanceConfig{
		DefaultTotalCost:              "390.00",
		PaidEpsilon:                   "0.10",
		InstallmentPrice:              "130",
		InstallmentCount:              3,
		DefaultDistributionUFLP:       "110.00",
		DefaultDistributionECOA:       "230.00",
		DefaultDistributionCommission: "50.00",
	}
}

// harness wires every service over one in-memory store with the real
// synchronous dispatcher, so event side effects are observable.
type harness struct {
	db          *memStore
	store       *fakeStore
	mailer      *fakeMailer
	invalidator *fakeInvalidator
	recorder    *fakeRecorder
	dispatcher  events.Dispatcher

	progress      *ProgressService
	notifications *NotificationService
	review        *ReviewService
	finance       *FinanceService
	documents     *DocumentService
	payments      *PaymentService
	profiles      *ProfileService
	analytics     *AnalyticsService
	reports       *ReportService
	userAdmin     *UserAdminService
	cohorts       *CohortService
	settings      *SettingsService
	auth          *AuthService
	aggregates    *cache.Cache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	db := newMemStore()
	h := &harness{
		db:          db,
		store:       &fakeStore{failDeletes: map[string]bool{}},
		mailer:      &fakeMailer{},
		invalidator: &fakeInvalidator{},
		recorder:    &fakeRecorder{},
	}
	users, documents, payments := memUsers{db}, memDocuments{db}, memPayments{db}
	h.dispatcher = events.NewInMemoryDispatcher(logger, h.recorder)

	h.progress = NewProgressService(users, documents, h.dispatcher, logger)
	h.notifications = NewNotificationService(memNotifications{db}, users, h.mailer, logger)
	h.notifications.Register(h.dispatcher)

	finance, err := NewFinanceService(testFinanceConfig(), memSettings{db}, users, payments, h.invalidator, logger)
	require.NoError(t, err)
	h.finance = finance

	h.review = NewReviewService(ReviewDependencies{
		Documents:  documents,
		Payments:   payments,
		Users:      users,
		Progress:   h.progress,
		Store:      h.store,
		Dispatcher: h.dispatcher,
		Cache:      h.invalidator,
		Metrics:    h.recorder,
		Logger:     logger,
	})
	h.documents = NewDocumentService(documents, users, h.progress, h.store, h.invalidator, "documents", logger)
	h.payments = NewPaymentService(payments, users, h.progress, h.store, h.invalidator, "payments", logger)
	h.profiles = NewProfileService(users, h.progress, h.invalidator, logger)

	h.aggregates = cache.New(cache.NewLocalStore(16, time.Minute), time.Minute, logger)
	h.analytics = NewAnalyticsService(users, documents, payments, h.finance, h.aggregates)
	h.reports = NewReportService(users, documents, payments, 5*time.Second, logger)

	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	h.userAdmin = NewUserAdminService(UserAdminDependencies{
		Users:         users,
		Documents:     documents,
		Payments:      payments,
		Notifications: memNotifications{db},
		Progress:      h.progress,
		Finance:       h.finance,
		Store:         h.store,
		Hasher:        hasher,
		Cache:         h.invalidator,
		Logger:        logger,
	})
	h.cohorts = NewCohortService(memCohorts{db}, h.invalidator)
	h.settings = NewSettingsService(memSettings{db}, h.finance, h.invalidator)

	cfg := config.Config{
		App:  config.AppConfig{PublicBaseURL: "https://portal.test"},
		Auth: config.AuthConfig{PasswordResetTTLMinutes: 60},
	}
	h.auth = NewAuthService(cfg, AuthDependencies{
		UserRepo:          users,
		PasswordResetRepo: memResets{db},
		Tokens:            auth.NewTokenManager("test-secret", 60),
		Hasher:            hasher,
		Mailer:            h.mailer,
		Cache:             h.invalidator,
		Logger:            logger,
	})
	return h
}

// student adds a student with a complete profile and returns its actor.
func (h *harness) student(first, paterno string) domain.Actor {
	u := h.db.addUser(domain.User{
		Email:            first + "@example.com",
		Role:             domain.RoleStudent,
		ProfileCompleted: true,
		Profile:          completeProfile(first, paterno),
	})
	return domain.Actor{UserID: u.ID, Role: u.Role}
}

// staff adds a reviewer account with the given role.
func (h *harness) staff(email string, role domain.Role) *domain.User {
	return h.db.addUser(domain.User{Email: email, Role: role})
}

// uploadAllButOne stores every required document except the last one and
// returns the created ids.
func (h *harness) uploadAllButOne(userID string) []string {
	var ids []string
	for _, t := range domain.RequiredDocumentTypes[:len(domain.RequiredDocumentTypes)-1] {
		d := h.db.addDocument(domain.Document{UserID: userID, Type: t, URL: strPtr("https://files.test/" + userID + "/" + string(t))})
		ids = append(ids, d.ID)
	}
	return ids
}
