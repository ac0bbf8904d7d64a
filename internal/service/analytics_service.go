package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

const (
	recentItemsLimit  = 10
	searchResultLimit = 20
	// DocumentMissing marks a required type the student never uploaded.
	DocumentMissing = "MISSING"
)

// StatusCounts is a per-status tally.
type StatusCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// UserCounts is a per-role tally.
type UserCounts struct {
	Total       int `json:"total"`
	Students    int `json:"students"`
	Auditors    int `json:"auditors"`
	SuperAdmins int `json:"superadmins"`
	Admins      int `json:"admins"`
}

// UserSummary is a user without credentials or profile detail.
type UserSummary struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// RecentDocument is a pending document in the analytics feed.
type RecentDocument struct {
	ID         string              `json:"id"`
	Type       domain.DocumentType `json:"type"`
	OwnerEmail string              `json:"owner_email"`
	OwnerName  string              `json:"owner_name"`
	CreatedAt  time.Time           `json:"created_at"`
}

// RecentPayment is a pending payment in the analytics feed.
type RecentPayment struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	OwnerEmail string          `json:"owner_email"`
	OwnerName  string          `json:"owner_name"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Analytics is the admin overview.
type Analytics struct {
	Users           UserCounts         `json:"users"`
	Documents       StatusCounts       `json:"documents"`
	Payments        StatusCounts       `json:"payments"`
	Distribution    DistributionRollup `json:"distribution"`
	RecentUsers     []UserSummary      `json:"recent_users"`
	RecentDocuments []RecentDocument   `json:"recent_documents"`
	RecentPayments  []RecentPayment    `json:"recent_payments"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// DashboardRow is one student on the review dashboard.
type DashboardRow struct {
	UserID    string              `json:"user_id"`
	Email     string              `json:"email"`
	Name      string              `json:"name"`
	Surname   string              `json:"surname"`
	Cohort    *string             `json:"cohort"`
	Documents map[string]string   `json:"documents"`
	TotalPaid decimal.Decimal     `json:"total_paid"`
	Payment   InstallmentProgress `json:"payment"`
	Priority  int                 `json:"priority"`
}

// SearchResults groups free-text matches by kind.
type SearchResults struct {
	Users     []UserSummary                  `json:"users"`
	Documents []repository.DocumentWithOwner `json:"documents"`
	Payments  []repository.PaymentWithOwner  `json:"payments"`
}

// AnalyticsService computes the cached admin aggregates and runs searches.
type AnalyticsService struct {
	users     repository.UserRepository
	documents repository.DocumentRepository
	payments  repository.PaymentRepository
	finance   *FinanceService
	cache     *cache.Cache
	now       func() time.Time
}

// NewAnalyticsService builds the service.
func NewAnalyticsService(
	users repository.UserRepository,
	documents repository.DocumentRepository,
	payments repository.PaymentRepository,
	finance *FinanceService,
	aggregates *cache.Cache,
) *AnalyticsService {
	return &AnalyticsService{
		users:     users,
		documents: documents,
		payments:  payments,
		finance:   finance,
		cache:     aggregates,
		now:       time.Now,
	}
}

// Analytics returns the overview, from cache when fresh.
func (s *AnalyticsService) Analytics(ctx context.Context) (*Analytics, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.KeyAnalytics, s.computeAnalytics)
}

func (s *AnalyticsService) computeAnalytics(ctx context.Context) (*Analytics, error) {
	var (
		roles       map[domain.Role]int
		docCounts   map[domain.ReviewStatus]int
		payCounts   map[domain.ReviewStatus]int
		rollup      DistributionRollup
		recentUsers []domain.User
		recentDocs  []repository.DocumentWithOwner
		recentPays  []repository.PaymentWithOwner
	)
	pending := domain.ReviewPending

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { roles, err = s.users.CountByRole(gctx); return err })
	g.Go(func() (err error) { docCounts, err = s.documents.CountByStatus(gctx); return err })
	g.Go(func() (err error) { payCounts, err = s.payments.CountByStatus(gctx); return err })
	g.Go(func() (err error) { rollup, err = s.finance.DistributionRollup(gctx); return err })
	g.Go(func() (err error) { recentUsers, err = s.users.ListRecent(gctx, recentItemsLimit); return err })
	g.Go(func() (err error) {
		recentDocs, err = s.documents.List(gctx, repository.DocumentFilter{Status: &pending, Limit: recentItemsLimit})
		return err
	})
	g.Go(func() (err error) {
		recentPays, err = s.payments.List(gctx, repository.PaymentFilter{Status: &pending, Limit: recentItemsLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Analytics{
		Users: UserCounts{
			Students:    roles[domain.RoleStudent],
			Auditors:    roles[domain.RoleAuditor],
			SuperAdmins: roles[domain.RoleSuperAdmin],
			Admins:      roles[domain.RoleAdmin],
		},
		Documents:       statusCounts(docCounts),
		Payments:        statusCounts(payCounts),
		Distribution:    rollup,
		RecentUsers:     make([]UserSummary, 0, len(recentUsers)),
		RecentDocuments: make([]RecentDocument, 0, len(recentDocs)),
		RecentPayments:  make([]RecentPayment, 0, len(recentPays)),
		GeneratedAt:     s.now().UTC(),
	}
	for _, n := range roles {
		out.Users.Total += n
	}
	for i := range recentUsers {
		out.RecentUsers = append(out.RecentUsers, summarizeUser(&recentUsers[i]))
	}
	for _, d := range recentDocs {
		out.RecentDocuments = append(out.RecentDocuments, RecentDocument{
			ID:         d.ID,
			Type:       d.Type,
			OwnerEmail: d.OwnerEmail,
			OwnerName:  ownerName(d.Owner),
			CreatedAt:  d.CreatedAt,
		})
	}
	for _, p := range recentPays {
		out.RecentPayments = append(out.RecentPayments, RecentPayment{
			ID:         p.ID,
			Amount:     p.Amount,
			Method:     p.Method,
			OwnerEmail: p.OwnerEmail,
			OwnerName:  ownerName(p.Owner),
			CreatedAt:  p.CreatedAt,
		})
	}
	return out, nil
}

func statusCounts(counts map[domain.ReviewStatus]int) StatusCounts {
	out := StatusCounts{
		Pending:  counts[domain.ReviewPending],
		Approved: counts[domain.ReviewApproved],
		Rejected: counts[domain.ReviewRejected],
	}
	for _, n := range counts {
		out.Total += n
	}
	return out
}

func summarizeUser(u *domain.User) UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email, Name: u.DisplayName(), Role: u.Role, CreatedAt: u.CreatedAt}
}

func ownerName(o repository.Owner) string {
	var parts []string
	for _, p := range []*string{o.OwnerFirstName, o.OwnerLastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) == 0 {
		return o.OwnerEmail
	}
	return strings.Join(parts, " ")
}

// Dashboard returns every student with per-type document state, payment state and
// a review priority, most urgent first. Results come from cache when fresh.
func (s *AnalyticsService) Dashboard(ctx context.Context) ([]DashboardRow, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.KeyDashboard, s.computeDashboard)
}

func (s *AnalyticsService) computeDashboard(ctx context.Context) ([]DashboardRow, error) {
	students, err := s.users.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	totalCost, err := s.finance.TotalCost(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(students))
	for i := range students {
		ids[i] = students[i].ID
	}

	var docs []domain.Document
	var payments []domain.Payment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { docs, err = s.documents.ListByUsers(gctx, ids); return err })
	g.Go(func() (err error) { payments, err = s.payments.ListByUsers(gctx, ids); return err })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Documents arrive newest first, so the first one seen per type is the latest.
	docStatus := make(map[string]map[domain.DocumentType]domain.ReviewStatus, len(students))
	for _, d := range docs {
		byType, ok := docStatus[d.UserID]
		if !ok {
			byType = make(map[domain.DocumentType]domain.ReviewStatus)
			docStatus[d.UserID] = byType
		}
		if _, seen := byType[d.Type]; !seen {
			byType[d.Type] = d.Status
		}
	}
	paymentsByUser := make(map[string][]domain.Payment, len(students))
	for _, p := range payments {
		paymentsByUser[p.UserID] = append(paymentsByUser[p.UserID], p)
	}

	rows := make([]DashboardRow, 0, len(students))
	for i := range students {
		st := &students[i]
		row := DashboardRow{
			UserID:    st.ID,
			Email:     st.Email,
			Name:      st.DisplayName(),
			Surname:   st.Surname(),
			Cohort:    st.CohortCode,
			Documents: make(map[string]string, len(domain.RequiredDocumentTypes)),
		}
		needsAttention := false
		for _, t := range domain.RequiredDocumentTypes {
			status, ok := docStatus[st.ID][t]
			if !ok {
				row.Documents[string(t)] = DocumentMissing
				needsAttention = true
				continue
			}
			row.Documents[string(t)] = string(status)
			if status == domain.ReviewRejected {
				needsAttention = true
			}
		}
		row.TotalPaid = TotalPaid(paymentsByUser[st.ID])
		row.Payment = s.finance.InstallmentProgress(row.TotalPaid, totalCost)
		row.Priority = dashboardPriority(needsAttention, row.Payment.State)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Priority != rows[j].Priority {
			return rows[i].Priority < rows[j].Priority
		}
		return strings.ToLower(rows[i].Surname) < strings.ToLower(rows[j].Surname)
	})
	return rows, nil
}

// dashboardPriority is 1 for missing or rejected documents or no payment, 2 for
// partial payment and 3 when nothing is outstanding.
func dashboardPriority(docsNeedAttention bool, state InstallmentState) int {
	switch {
	case docsNeedAttention || state == InstallmentsUnpaid:
		return 1
	case state == InstallmentsPartial:
		return 2
	default:
		return 3
	}
}

// Search matches users, documents and payments against term. kind narrows the
// search to one of "users", "documents" or "payments".
func (s *AnalyticsService) Search(ctx context.Context, term, kind string) (*SearchResults, error) {
	term = strings.TrimSpace(term)
	out := &SearchResults{
		Users:     []UserSummary{},
		Documents: []repository.DocumentWithOwner{},
		Payments:  []repository.PaymentWithOwner{},
	}
	switch kind {
	case "", "users", "documents", "payments":
	default:
		return nil, apperrors.NewValidationError("invalid search type", map[string]any{"type": kind})
	}
	if term == "" && kind == "" {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if kind == "" || kind == "users" {
		g.Go(func() error {
			users, err := s.users.Search(gctx, term, searchResultLimit)
			if err != nil {
				return err
			}
			for i := range users {
				out.Users = append(out.Users, summarizeUser(&users[i]))
			}
			return nil
		})
	}
	if kind == "" || kind == "documents" {
		g.Go(func() error {
			docs, err := s.documents.Search(gctx, term, searchResultLimit)
			if err == nil && docs != nil {
				out.Documents = docs
			}
			return err
		})
	}
	if kind == "" || kind == "payments" {
		g.Go(func() error {
			payments, err := s.payments.Search(gctx, term, searchResultLimit)
			if err == nil && payments != nil {
				out.Payments = payments
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
