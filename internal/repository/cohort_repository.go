package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

var cohortColumns = []string{"id", "code", "start_date", "end_date", "created_at", "updated_at"}

// CohortRepository manages cohorts.
type CohortRepository interface {
	Create(ctx context.Context, cohort *domain.Cohort) error
	Update(ctx context.Context, cohort *domain.Cohort) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Cohort, error)
	List(ctx context.Context) ([]domain.Cohort, error)
}

type cohortRepository struct {
	db DBInterface
}

// NewCohortRepository constructs repository.
func NewCohortRepository(db DBInterface) CohortRepository {
	return &cohortRepository{db: db}
}

func (r *cohortRepository) Create(ctx context.Context, cohort *domain.Cohort) error {
	const query = `
        INSERT INTO cohorts (code, start_date, end_date)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query, cohort.Code, cohort.StartDate, cohort.EndDate).
		Scan(&cohort.ID, &cohort.CreatedAt, &cohort.UpdatedAt)
}

func (r *cohortRepository) Update(ctx context.Context, cohort *domain.Cohort) error {
	const query = `
        UPDATE cohorts SET code=$2, start_date=$3, end_date=$4, updated_at=NOW()
        WHERE id=$1
        RETURNING updated_at`
	return r.db.QueryRow(ctx, query, cohort.ID, cohort.Code, cohort.StartDate, cohort.EndDate).
		Scan(&cohort.UpdatedAt)
}

func (r *cohortRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM cohorts WHERE id=$1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *cohortRepository) GetByID(ctx context.Context, id string) (*domain.Cohort, error) {
	query := `SELECT ` + columnList(cohortColumns) + ` FROM cohorts WHERE id=$1`
	var cohort domain.Cohort
	if err := pgxscan.Get(ctx, r.db, &cohort, query, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan cohort: %w", err)
	}
	return &cohort, nil
}

func (r *cohortRepository) List(ctx context.Context) ([]domain.Cohort, error) {
	query := `SELECT ` + columnList(cohortColumns) + ` FROM cohorts ORDER BY start_date DESC, code`
	var cohorts []domain.Cohort
	if err := pgxscan.Select(ctx, r.db, &cohorts, query); err != nil {
		return nil, fmt.Errorf("scan cohorts: %w", err)
	}
	return cohorts, nil
}
