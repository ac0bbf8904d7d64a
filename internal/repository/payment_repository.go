package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

var paymentColumns = []string{
	"id", "user_id", "amount", "date", "location", "method", "payer_name",
	"url", "status", "rejection_reason", "created_at", "updated_at",
}

// PaymentWithOwner is a payment joined with its owner for admin listings.
type PaymentWithOwner struct {
	domain.Payment
	Owner
}

// PaymentFilter narrows admin payment listings.
type PaymentFilter struct {
	UserID string
	Status *domain.ReviewStatus
	Search string
	Limit  int
	Offset int
}

// PaymentCorrection edits the amount or date of a recorded payment.
type PaymentCorrection struct {
	Amount *decimal.Decimal
	Date   *time.Time
}

// PaymentRepository manages payment records.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Payment, error)
	ListByUsers(ctx context.Context, userIDs []string) ([]domain.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]PaymentWithOwner, error)
	Search(ctx context.Context, term string, limit int) ([]PaymentWithOwner, error)
	UpdateReview(ctx context.Context, id string, status domain.ReviewStatus, reason, url *string) (*domain.Payment, error)
	Correct(ctx context.Context, id string, correction PaymentCorrection) (*domain.Payment, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int, error)
}

type paymentRepository struct {
	db DBInterface
}

// NewPaymentRepository constructs repository.
func NewPaymentRepository(db DBInterface) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	const query = `
        INSERT INTO payments (user_id, amount, date, location, method, payer_name, url, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at`
	if payment.Status == "" {
		payment.Status = domain.ReviewPending
	}
	return r.db.QueryRow(ctx, query,
		payment.UserID,
		payment.Amount,
		payment.Date,
		payment.Location,
		payment.Method,
		payment.PayerName,
		payment.URL,
		payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + columnList(paymentColumns) + ` FROM payments WHERE id=$1`
	return r.getOne(ctx, query, id)
}

func (r *paymentRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Payment, error) {
	var payment domain.Payment
	if err := pgxscan.Get(ctx, r.db, &payment, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	return r.selectPayments(ctx, psql.Select(paymentColumns...).From("payments").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("date DESC"))
}

func (r *paymentRepository) ListByUsers(ctx context.Context, userIDs []string) ([]domain.Payment, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.selectPayments(ctx, psql.Select(paymentColumns...).From("payments").
		Where(squirrel.Eq{"user_id": userIDs}).
		OrderBy("date DESC"))
}

func (r *paymentRepository) selectPayments(ctx context.Context, qb squirrel.SelectBuilder) ([]domain.Payment, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment query: %w", err)
	}
	var payments []domain.Payment
	if err := pgxscan.Select(ctx, r.db, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) List(ctx context.Context, filter PaymentFilter) ([]PaymentWithOwner, error) {
	qb := psql.Select(append(prefixed("p", paymentColumns), ownerColumns...)...).
		From("payments p").
		Join("users u ON u.id = p.user_id").
		OrderBy("p.date DESC")
	if filter.UserID != "" {
		qb = qb.Where(squirrel.Eq{"p.user_id": filter.UserID})
	}
	if filter.Status != nil {
		qb = qb.Where(squirrel.Eq{"p.status": *filter.Status})
	}
	if filter.Search != "" {
		qb = qb.Where(userSearchCondition("u", filter.Search))
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}
	return r.selectWithOwner(ctx, qb)
}

func (r *paymentRepository) Search(ctx context.Context, term string, limit int) ([]PaymentWithOwner, error) {
	pattern := likePattern(term)
	qb := psql.Select(append(prefixed("p", paymentColumns), ownerColumns...)...).
		From("payments p").
		Join("users u ON u.id = p.user_id").
		Where(squirrel.Or{
			squirrel.ILike{"p.method": pattern},
			squirrel.ILike{"p.location": pattern},
			squirrel.ILike{"p.payer_name": pattern},
			userSearchCondition("u", term),
		}).
		OrderBy("p.date DESC").
		Limit(uint64(limit))
	return r.selectWithOwner(ctx, qb)
}

func (r *paymentRepository) selectWithOwner(ctx context.Context, qb squirrel.SelectBuilder) ([]PaymentWithOwner, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment query: %w", err)
	}
	var payments []PaymentWithOwner
	if err := pgxscan.Select(ctx, r.db, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) UpdateReview(ctx context.Context, id string, status domain.ReviewStatus, reason, url *string) (*domain.Payment, error) {
	query := `
        UPDATE payments SET status=$2, rejection_reason=$3, url=$4, updated_at=NOW()
        WHERE id=$1
        RETURNING ` + columnList(paymentColumns)
	return r.getOne(ctx, query, id, status, reason, url)
}

func (r *paymentRepository) Correct(ctx context.Context, id string, correction PaymentCorrection) (*domain.Payment, error) {
	b := psql.Update("payments").Set("updated_at", squirrel.Expr("NOW()"))
	if correction.Amount != nil {
		b = b.Set("amount", *correction.Amount)
	}
	if correction.Date != nil {
		b = b.Set("date", *correction.Date)
	}
	query, args, err := b.Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + columnList(paymentColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment correction: %w", err)
	}
	return r.getOne(ctx, query, args...)
}

func (r *paymentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM payments WHERE id=$1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *paymentRepository) CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int, error) {
	return countByStatus(ctx, r.db, `SELECT status, COUNT(*) FROM payments GROUP BY status`)
}
