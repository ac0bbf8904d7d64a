package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/mail"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/storage"
)

// memStore backs every fake repository with the same tables so services that
// share repositories see each other's writes.
type memStore struct {
	mu            sync.Mutex
	seq           int
	clock         time.Time
	users         map[string]*domain.User
	cohorts       map[string]*domain.Cohort
	documents     map[string]*domain.Document
	payments      map[string]*domain.Payment
	notifications []domain.Notification
	settings      map[string]domain.SystemSetting
	resets        map[string]*repository.PasswordResetToken
}

func newMemStore() *memStore {
	return &memStore{
		clock:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		users:     map[string]*domain.User{},
		cohorts:   map[string]*domain.Cohort{},
		documents: map[string]*domain.Document{},
		payments:  map[string]*domain.Payment{},
		settings:  map[string]domain.SystemSetting{},
		resets:    map[string]*repository.PasswordResetToken{},
	}
}

// tick returns a strictly increasing timestamp. Callers hold mu.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) addUser(u domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = m.nextID("user")
	}
	if u.Role == "" {
		u.Role = domain.RoleStudent
	}
	if u.DistributionUFLP == "" {
		u.DistributionUFLP = domain.DistributionPending
		u.DistributionECOA = domain.DistributionPending
		u.DistributionCommission = domain.DistributionPending
	}
	u.CreatedAt = m.tick()
	m.users[u.ID] = &u
	return &u
}

func (m *memStore) addDocument(d domain.Document) *domain.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = m.nextID("doc")
	}
	if d.Status == "" {
		d.Status = domain.ReviewPending
	}
	d.CreatedAt = m.tick()
	m.documents[d.ID] = &d
	return &d
}

func (m *memStore) addPayment(p domain.Payment) *domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.nextID("pay")
	}
	if p.Status == "" {
		p.Status = domain.ReviewPending
	}
	p.CreatedAt = m.tick()
	m.payments[p.ID] = &p
	return &p
}

func (m *memStore) user(id string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memStore) document(id string) (domain.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return domain.Document{}, false
	}
	return *d, true
}

func (m *memStore) payment(id string) domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payments[id]
}

func (m *memStore) notificationsFor(userID string) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (m *memStore) notificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

func (m *memStore) ownerOf(userID string) repository.Owner {
	u, ok := m.users[userID]
	if !ok {
		return repository.Owner{}
	}
	return repository.Owner{OwnerEmail: u.Email, OwnerFirstName: u.FirstName, OwnerLastName: u.LastNamePaterno}
}

func matches(u *domain.User, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(u.Email), term) {
		return true
	}
	for _, p := range []*string{u.FirstName, u.LastNamePaterno, u.LastNameMaterno} {
		if p != nil && strings.Contains(strings.ToLower(*p), term) {
			return true
		}
	}
	return false
}

type memUsers struct{ *memStore }

func (r memUsers) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return uniqueViolation()
		}
	}
	user.ID = r.nextID("user")
	user.DistributionUFLP = domain.DistributionPending
	user.DistributionECOA = domain.DistributionPending
	user.DistributionCommission = domain.DistributionPending
	user.CreatedAt = r.tick()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.users[cp.ID] = &cp
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memUsers) mutate(id string, fn func(u *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(u)
	u.UpdatedAt = r.tick()
	return nil
}

func (r memUsers) Update(_ context.Context, user *domain.User) error {
	if user.CohortID != nil {
		r.mu.Lock()
		_, ok := r.cohorts[*user.CohortID]
		r.mu.Unlock()
		if !ok {
			return &pgconn.PgError{Code: "23503", ConstraintName: "users_cohort_id_fkey"}
		}
	}
	return r.mutate(user.ID, func(u *domain.User) {
		u.Email = user.Email
		u.Role = user.Role
		u.CohortID = user.CohortID
		u.PasswordHash = user.PasswordHash
		u.Profile = user.Profile
	})
}

func (r memUsers) UpdateProfile(_ context.Context, id string, profile domain.Profile) error {
	return r.mutate(id, func(u *domain.User) { u.Profile = profile })
}

func (r memUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.mutate(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

func (r memUsers) UpdateRole(_ context.Context, id string, role domain.Role) error {
	return r.mutate(id, func(u *domain.User) { u.Role = role })
}

func (r memUsers) SetProfileCompleted(_ context.Context, id string, completed bool) error {
	return r.mutate(id, func(u *domain.User) { u.ProfileCompleted = completed })
}

func (r memUsers) SetDocumentsCompleted(_ context.Context, id string, completed bool) (bool, error) {
	changed := false
	err := r.mutate(id, func(u *domain.User) {
		changed = u.DocumentsCompleted != completed
		u.DocumentsCompleted = completed
	})
	return changed, err
}

func (r memUsers) UpdateDistribution(_ context.Context, id string, d domain.Distribution) error {
	return r.mutate(id, func(u *domain.User) {
		u.DistributionUFLP, u.DistributionUFLPDate = d.UFLP, d.UFLPDate
		u.DistributionECOA, u.DistributionECOADate = d.ECOA, d.ECOADate
		u.DistributionCommission, u.DistributionCommissionDate = d.Commission, d.CommissionDate
	})
}

func (r memUsers) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.users, id)
	for docID, d := range r.documents {
		if d.UserID == id {
			delete(r.documents, docID)
		}
	}
	for payID, p := range r.payments {
		if p.UserID == id {
			delete(r.payments, payID)
		}
	}
	return nil
}

func (r memUsers) sorted(keep func(u *domain.User) bool) []domain.User {
	var out []domain.User
	for _, u := range r.users {
		if keep(u) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r memUsers) List(_ context.Context, filter repository.UserFilter) ([]domain.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(func(u *domain.User) bool {
		if filter.Role != nil && u.Role != *filter.Role {
			return false
		}
		if filter.ProfileCompleted != nil && u.ProfileCompleted != *filter.ProfileCompleted {
			return false
		}
		return filter.Search == "" || matches(u, filter.Search)
	})
	total := len(all)
	if filter.Offset >= len(all) {
		return []domain.User{}, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (r memUsers) ListByRoles(_ context.Context, roles ...domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(u *domain.User) bool {
		for _, role := range roles {
			if u.Role == role {
				return true
			}
		}
		return false
	}), nil
}

func (r memUsers) ListStudents(_ context.Context) ([]repository.StudentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.StudentRecord
	for _, u := range r.users {
		if u.Role != domain.RoleStudent {
			continue
		}
		rec := repository.StudentRecord{User: *u}
		if u.CohortID != nil {
			if c, ok := r.cohorts[*u.CohortID]; ok {
				code := c.Code
				rec.CohortCode = &code
			}
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := deref(out[i].CohortCode), deref(out[j].CohortCode)
		if ci != cj {
			if ci == "" || cj == "" {
				return cj == ""
			}
			return ci < cj
		}
		return out[i].Surname() < out[j].Surname()
	})
	return out, nil
}

func (r memUsers) ListWithPayments(_ context.Context, filter repository.FinancialFilter) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	paid := map[string]bool{}
	for _, p := range r.payments {
		if filter.DateFrom != nil && p.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && p.Date.After(*filter.DateTo) {
			continue
		}
		paid[p.UserID] = true
	}
	return r.sorted(func(u *domain.User) bool {
		return u.Role == domain.RoleStudent && paid[u.ID] && (filter.Search == "" || matches(u, filter.Search))
	}), nil
}

func (r memUsers) ListRecent(_ context.Context, limit int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sorted(func(*domain.User) bool { return true })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memUsers) Search(_ context.Context, term string, limit int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sorted(func(u *domain.User) bool { return matches(u, term) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memUsers) CountByRole(_ context.Context) (map[domain.Role]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.Role]int{}
	for _, u := range r.users {
		counts[u.Role]++
	}
	return counts, nil
}

func (r memUsers) CountDistributionPaid(_ context.Context) (repository.DistributionCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c repository.DistributionCounts
	for _, u := range r.users {
		if u.Role != domain.RoleStudent {
			continue
		}
		if u.DistributionUFLP == domain.DistributionPaid {
			c.UFLP++
		}
		if u.DistributionECOA == domain.DistributionPaid {
			c.ECOA++
		}
		if u.DistributionCommission == domain.DistributionPaid {
			c.Commission++
		}
	}
	return c, nil
}

type memDocuments struct{ *memStore }

func (r memDocuments) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.ID = r.nextID("doc")
	doc.CreatedAt = r.tick()
	doc.UpdatedAt = doc.CreatedAt
	cp := *doc
	r.documents[cp.ID] = &cp
	return nil
}

func (r memDocuments) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

// newestFirst returns copies of the matching documents ordered by created_at DESC.
func (r memDocuments) newestFirst(keep func(d *domain.Document) bool) []domain.Document {
	var out []domain.Document
	for _, d := range r.documents {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r memDocuments) ListByUser(_ context.Context, userID string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newestFirst(func(d *domain.Document) bool { return d.UserID == userID }), nil
}

func (r memDocuments) ListByUserAndStatus(_ context.Context, userID string, status domain.ReviewStatus) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newestFirst(func(d *domain.Document) bool { return d.UserID == userID && d.Status == status }), nil
}

func (r memDocuments) ListByUsers(_ context.Context, userIDs []string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range userIDs {
		wanted[id] = true
	}
	return r.newestFirst(func(d *domain.Document) bool { return wanted[d.UserID] }), nil
}

func (r memDocuments) withOwner(docs []domain.Document) []repository.DocumentWithOwner {
	out := make([]repository.DocumentWithOwner, 0, len(docs))
	for _, d := range docs {
		out = append(out, repository.DocumentWithOwner{Document: d, Owner: r.ownerOf(d.UserID)})
	}
	return out
}

func (r memDocuments) List(_ context.Context, filter repository.DocumentFilter) ([]repository.DocumentWithOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.newestFirst(func(d *domain.Document) bool {
		if filter.UserID != "" && d.UserID != filter.UserID {
			return false
		}
		if filter.Status != nil && d.Status != *filter.Status {
			return false
		}
		return filter.Type == nil || d.Type == *filter.Type
	})
	if filter.Limit > 0 && len(docs) > filter.Limit {
		docs = docs[:filter.Limit]
	}
	return r.withOwner(docs), nil
}

func (r memDocuments) Search(_ context.Context, term string, limit int) ([]repository.DocumentWithOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.newestFirst(func(d *domain.Document) bool {
		if strings.Contains(strings.ToLower(string(d.Type)), strings.ToLower(term)) {
			return true
		}
		u, ok := r.users[d.UserID]
		return ok && matches(u, term)
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return r.withOwner(docs), nil
}

func (r memDocuments) DistinctTypes(_ context.Context, userID string) ([]domain.DocumentType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[domain.DocumentType]bool{}
	var out []domain.DocumentType
	for _, d := range r.documents {
		if d.UserID == userID && !seen[d.Type] {
			seen[d.Type] = true
			out = append(out, d.Type)
		}
	}
	return out, nil
}

func (r memDocuments) UpdateReview(_ context.Context, id string, status domain.ReviewStatus, reason, url *string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	d.Status, d.RejectionReason, d.URL = status, reason, url
	d.UpdatedAt = r.tick()
	cp := *d
	return &cp, nil
}

func (r memDocuments) ApproveByIDs(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		d, ok := r.documents[id]
		if !ok || d.Status != domain.ReviewPending {
			continue
		}
		d.Status, d.RejectionReason, d.URL = domain.ReviewApproved, nil, nil
		n++
	}
	return n, nil
}

func (r memDocuments) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.documents, id)
	return nil
}

func (r memDocuments) CountByStatus(_ context.Context) (map[domain.ReviewStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.ReviewStatus]int{}
	for _, d := range r.documents {
		counts[d.Status]++
	}
	return counts, nil
}

type memPayments struct{ *memStore }

func (r memPayments) Create(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.ID = r.nextID("pay")
	payment.CreatedAt = r.tick()
	payment.UpdatedAt = payment.CreatedAt
	cp := *payment
	r.payments[cp.ID] = &cp
	return nil
}

func (r memPayments) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (r memPayments) byDate(keep func(p *domain.Payment) bool) []domain.Payment {
	var out []domain.Payment
	for _, p := range r.payments {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (r memPayments) ListByUser(_ context.Context, userID string) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byDate(func(p *domain.Payment) bool { return p.UserID == userID }), nil
}

func (r memPayments) ListByUsers(_ context.Context, userIDs []string) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range userIDs {
		wanted[id] = true
	}
	return r.byDate(func(p *domain.Payment) bool { return wanted[p.UserID] }), nil
}

func (r memPayments) withOwner(payments []domain.Payment) []repository.PaymentWithOwner {
	out := make([]repository.PaymentWithOwner, 0, len(payments))
	for _, p := range payments {
		out = append(out, repository.PaymentWithOwner{Payment: p, Owner: r.ownerOf(p.UserID)})
	}
	return out
}

func (r memPayments) List(_ context.Context, filter repository.PaymentFilter) ([]repository.PaymentWithOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payments := r.byDate(func(p *domain.Payment) bool {
		if filter.UserID != "" && p.UserID != filter.UserID {
			return false
		}
		return filter.Status == nil || p.Status == *filter.Status
	})
	if filter.Limit > 0 && len(payments) > filter.Limit {
		payments = payments[:filter.Limit]
	}
	return r.withOwner(payments), nil
}

func (r memPayments) Search(_ context.Context, term string, limit int) ([]repository.PaymentWithOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payments := r.byDate(func(p *domain.Payment) bool {
		if strings.Contains(strings.ToLower(p.Method), strings.ToLower(term)) {
			return true
		}
		u, ok := r.users[p.UserID]
		return ok && matches(u, term)
	})
	if len(payments) > limit {
		payments = payments[:limit]
	}
	return r.withOwner(payments), nil
}

func (r memPayments) UpdateReview(_ context.Context, id string, status domain.ReviewStatus, reason, url *string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	p.Status, p.RejectionReason, p.URL = status, reason, url
	p.UpdatedAt = r.tick()
	cp := *p
	return &cp, nil
}

func (r memPayments) Correct(_ context.Context, id string, correction repository.PaymentCorrection) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if correction.Amount != nil {
		p.Amount = *correction.Amount
	}
	if correction.Date != nil {
		p.Date = *correction.Date
	}
	cp := *p
	return &cp, nil
}

func (r memPayments) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.payments, id)
	return nil
}

func (r memPayments) CountByStatus(_ context.Context) (map[domain.ReviewStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.ReviewStatus]int{}
	for _, p := range r.payments {
		counts[p.Status]++
	}
	return counts, nil
}

type memNotifications struct{ *memStore }

func (r memNotifications) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = r.nextID("note")
	n.CreatedAt = r.tick()
	r.notifications = append(r.notifications, *n)
	return nil
}

func (r memNotifications) CreateMany(ctx context.Context, items []domain.Notification) error {
	for i := range items {
		if err := r.Create(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r memNotifications) ListLatest(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for i := len(r.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if r.notifications[i].UserID == userID {
			out = append(out, r.notifications[i])
		}
	}
	return out, nil
}

func (r memNotifications) MarkRead(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == id && r.notifications[i].UserID == userID {
			r.notifications[i].Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

type memCohorts struct{ *memStore }

func (r memCohorts) Create(_ context.Context, cohort *domain.Cohort) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cohorts {
		if c.Code == cohort.Code {
			return uniqueViolation()
		}
	}
	cohort.ID = r.nextID("cohort")
	cohort.CreatedAt = r.tick()
	cp := *cohort
	r.cohorts[cp.ID] = &cp
	return nil
}

func (r memCohorts) Update(_ context.Context, cohort *domain.Cohort) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cohorts[cohort.ID]; !ok {
		return pgx.ErrNoRows
	}
	for _, c := range r.cohorts {
		if c.Code == cohort.Code && c.ID != cohort.ID {
			return uniqueViolation()
		}
	}
	cp := *cohort
	r.cohorts[cp.ID] = &cp
	return nil
}

func (r memCohorts) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cohorts[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.cohorts, id)
	for _, u := range r.users {
		if u.CohortID != nil && *u.CohortID == id {
			u.CohortID = nil
		}
	}
	return nil
}

func (r memCohorts) GetByID(_ context.Context, id string) (*domain.Cohort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cohorts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (r memCohorts) List(_ context.Context) ([]domain.Cohort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Cohort
	for _, c := range r.cohorts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type memSettings struct{ *memStore }

func (r memSettings) Get(_ context.Context, key string) (*domain.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (r memSettings) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]string{}
	for _, k := range keys {
		if s, ok := r.settings[k]; ok {
			out[k] = s.Value
		}
	}
	return out, nil
}

func (r memSettings) List(_ context.Context) ([]domain.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SystemSetting
	for _, s := range r.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r memSettings) Upsert(_ context.Context, setting *domain.SystemSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	setting.UpdatedAt = r.tick()
	r.settings[setting.Key] = *setting
	return nil
}

type memResets struct{ *memStore }

func (r memResets) Create(_ context.Context, token *repository.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.ID = r.nextID("reset")
	token.CreatedAt = r.tick()
	cp := *token
	r.resets[cp.Token] = &cp
	return nil
}

func (r memResets) GetByToken(_ context.Context, token string) (*repository.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.resets[token]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (r memResets) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.resets {
		if t.ID == id {
			now := r.tick()
			t.UsedAt = &now
			return nil
		}
	}
	return pgx.ErrNoRows
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

// fakeStore records uploads and deletes; deletes of URLs in failDeletes fail.
type fakeStore struct {
	mu          sync.Mutex
	uploads     []storage.Object
	deleted     []string
	failDeletes map[string]bool
	uploadErr   error
}

func (s *fakeStore) Upload(_ context.Context, obj storage.Object) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploads = append(s.uploads, obj)
	return "https://files.test/" + obj.Folder + "/" + obj.Name + ".pdf", nil
}

func (s *fakeStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes[url] {
		return errors.New("storage unavailable")
	}
	s.deleted = append(s.deleted, url)
	return nil
}

func (s *fakeStore) deletedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInvalidator) InvalidateAggregates(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu       sync.Mutex
	reviews  []string
	failures []string
}

func (r *fakeRecorder) RecordReview(subject, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews = append(r.reviews, subject+":"+status)
}

func (r *fakeRecorder) RecordSideEffectFailure(effect string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, effect)
}

func strPtr(s string) *string { return &s }

// completeProfile returns a profile that satisfies every required field.
func completeProfile(first, paterno string) domain.Profile {
	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	return domain.Profile{
		FirstName:       strPtr(first),
		LastNamePaterno: strPtr(paterno),
		LastNameMaterno: strPtr("López"),
		DOB:             &dob,
		Sex:             strPtr("F"),
		BirthPlace:      strPtr("Rosario"),
		Address:         strPtr("Calle 1"),
		City:            strPtr("Rosario"),
		State:           strPtr("Santa Fe"),
		Country:         strPtr("Argentina"),
		ZipCode:         strPtr("2000"),
		Phone:           strPtr("3410000000"),
		Profession:      strPtr("Entrenadora"),
		EducationLevel:  strPtr("Universitario"),
		Institution:     strPtr("UNR"),
	}
}
