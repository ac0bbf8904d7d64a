package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

var profileColumns = []string{
	"first_name", "last_name_paterno", "last_name_materno", "dob", "sex", "age",
	"birth_place", "address", "city", "state", "country", "zip_code", "phone",
	"landline", "alternative_email", "profession", "education_level", "institution",
	"current_occupation", "sede_nombre", "entrenador_nombre", "entrenador_celular",
}

var userColumns = append([]string{
	"id", "email", "password_hash", "role", "profile_completed", "documents_completed", "cohort_id",
	"distribution_uflp", "distribution_uflp_date", "distribution_ecoa", "distribution_ecoa_date",
	"distribution_commission", "distribution_commission_date", "created_at", "updated_at",
}, profileColumns...)

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search           string
	Role             *domain.Role
	ProfileCompleted *bool
	Limit            int
	Offset           int
}

// FinancialFilter narrows the per-student financial listing.
type FinancialFilter struct {
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
}

// DistributionCounts is the number of students whose channel is PAID.
type DistributionCounts struct {
	UFLP       int `db:"uflp"`
	ECOA       int `db:"ecoa"`
	Commission int `db:"commission"`
}

// StudentRecord is a student row joined with its cohort code.
type StudentRecord struct {
	domain.User
	CohortCode *string `db:"cohort_code"`
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateProfile(ctx context.Context, id string, profile domain.Profile) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	SetProfileCompleted(ctx context.Context, id string, completed bool) error
	SetDocumentsCompleted(ctx context.Context, id string, completed bool) (bool, error)
	UpdateDistribution(ctx context.Context, id string, d domain.Distribution) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter) ([]domain.User, int, error)
	ListByRoles(ctx context.Context, roles ...domain.Role) ([]domain.User, error)
	ListStudents(ctx context.Context) ([]StudentRecord, error)
	ListWithPayments(ctx context.Context, filter FinancialFilter) ([]domain.User, error)
	ListRecent(ctx context.Context, limit int) ([]domain.User, error)
	Search(ctx context.Context, term string, limit int) ([]domain.User, error)
	CountByRole(ctx context.Context) (map[domain.Role]int, error)
	CountDistributionPaid(ctx context.Context) (DistributionCounts, error)
}

type userRepository struct {
	db DBInterface
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBInterface) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, password_hash, role, first_name, last_name_paterno, last_name_materno)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, profile_completed, documents_completed, distribution_uflp,
                  distribution_ecoa, distribution_commission, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastNamePaterno,
		user.LastNameMaterno,
	).Scan(
		&user.ID,
		&user.ProfileCompleted,
		&user.DocumentsCompleted,
		&user.DistributionUFLP,
		&user.DistributionECOA,
		&user.DistributionCommission,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}
	return r.getOne(ctx, query, args...)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where("lower(email) = lower(?)", email).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}
	return r.getOne(ctx, query, args...)
}

func (r *userRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := pgxscan.Get(ctx, r.db, &user, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// Update persists account fields and the profile. Completion flags are owned by the
// progress engine and are not written here.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query, args, err := profileSetters(psql.Update("users"), user.Profile).
		Set("email", user.Email).
		Set("password_hash", user.PasswordHash).
		Set("role", user.Role).
		Set("cohort_id", user.CohortID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build user update: %w", err)
	}
	return r.execOne(ctx, query, args...)
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, profile domain.Profile) error {
	query, args, err := profileSetters(psql.Update("users"), profile).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build profile update: %w", err)
	}
	return r.execOne(ctx, query, args...)
}

func profileSetters(b squirrel.UpdateBuilder, p domain.Profile) squirrel.UpdateBuilder {
	return b.
		Set("first_name", p.FirstName).
		Set("last_name_paterno", p.LastNamePaterno).
		Set("last_name_materno", p.LastNameMaterno).
		Set("dob", p.DOB).
		Set("sex", p.Sex).
		Set("age", p.Age).
		Set("birth_place", p.BirthPlace).
		Set("address", p.Address).
		Set("city", p.City).
		Set("state", p.State).
		Set("country", p.Country).
		Set("zip_code", p.ZipCode).
		Set("phone", p.Phone).
		Set("landline", p.Landline).
		Set("alternative_email", p.AlternativeEmail).
		Set("profession", p.Profession).
		Set("education_level", p.EducationLevel).
		Set("institution", p.Institution).
		Set("current_occupation", p.CurrentOccupation).
		Set("sede_nombre", p.SedeNombre).
		Set("entrenador_nombre", p.EntrenadorNombre).
		Set("entrenador_celular", p.EntrenadorCelular)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	return r.execOne(ctx, query, id, passwordHash)
}

func (r *userRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	const query = `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`
	return r.execOne(ctx, query, id, role)
}

func (r *userRepository) SetProfileCompleted(ctx context.Context, id string, completed bool) error {
	const query = `UPDATE users SET profile_completed=$2, updated_at=NOW() WHERE id=$1`
	_, err := r.db.Exec(ctx, query, id, completed)
	return err
}

// SetDocumentsCompleted stores the flag and reports whether the stored value changed.
// The comparison and the write happen in one row update, so two concurrent callers
// cannot both observe the same transition.
func (r *userRepository) SetDocumentsCompleted(ctx context.Context, id string, completed bool) (bool, error) {
	const query = `
        UPDATE users SET documents_completed=$2, updated_at=NOW()
        WHERE id=$1 AND documents_completed IS DISTINCT FROM $2`
	cmd, err := r.db.Exec(ctx, query, id, completed)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *userRepository) UpdateDistribution(ctx context.Context, id string, d domain.Distribution) error {
	const query = `
        UPDATE users SET distribution_uflp=$2, distribution_uflp_date=$3,
                         distribution_ecoa=$4, distribution_ecoa_date=$5,
                         distribution_commission=$6, distribution_commission_date=$7,
                         updated_at=NOW()
        WHERE id=$1`
	return r.execOne(ctx, query, id,
		d.UFLP, d.UFLPDate,
		d.ECOA, d.ECOADate,
		d.Commission, d.CommissionDate,
	)
}

// Delete removes the account; documents, payments and notifications cascade.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id=$1`
	return r.execOne(ctx, query, id)
}

func (r *userRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, int, error) {
	where := squirrel.And{}
	if filter.Search != "" {
		where = append(where, userSearchCondition("", filter.Search))
	}
	if filter.Role != nil {
		where = append(where, squirrel.Eq{"role": *filter.Role})
	}
	if filter.ProfileCompleted != nil {
		where = append(where, squirrel.Eq{"profile_completed": *filter.ProfileCompleted})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("users").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build user count: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	qb := psql.Select(userColumns...).From("users").Where(where).OrderBy("created_at DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build user list: %w", err)
	}
	var users []domain.User
	if err := pgxscan.Select(ctx, r.db, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("scan users: %w", err)
	}
	return users, total, nil
}

func userSearchCondition(alias, term string) squirrel.Sqlizer {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	pattern := likePattern(term)
	return squirrel.Or{
		squirrel.ILike{col("email"): pattern},
		squirrel.ILike{col("first_name"): pattern},
		squirrel.ILike{col("last_name_paterno"): pattern},
		squirrel.ILike{col("last_name_materno"): pattern},
	}
}

func (r *userRepository) ListByRoles(ctx context.Context, roles ...domain.Role) ([]domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").
		Where(squirrel.Eq{"role": roles}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role query: %w", err)
	}
	var users []domain.User
	if err := pgxscan.Select(ctx, r.db, &users, query, args...); err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func (r *userRepository) ListStudents(ctx context.Context) ([]StudentRecord, error) {
	columns := append(prefixed("u", userColumns), "c.code AS cohort_code")
	query, args, err := psql.Select(columns...).
		From("users u").
		LeftJoin("cohorts c ON c.id = u.cohort_id").
		Where(squirrel.Eq{"u.role": domain.RoleStudent}).
		OrderBy("c.code ASC NULLS LAST", "u.last_name_paterno ASC", "u.first_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build student query: %w", err)
	}
	var students []StudentRecord
	if err := pgxscan.Select(ctx, r.db, &students, query, args...); err != nil {
		return nil, fmt.Errorf("scan students: %w", err)
	}
	return students, nil
}

func (r *userRepository) ListWithPayments(ctx context.Context, filter FinancialFilter) ([]domain.User, error) {
	where := squirrel.And{squirrel.Expr("EXISTS (SELECT 1 FROM payments p WHERE p.user_id = u.id)")}
	if filter.Search != "" {
		where = append(where, userSearchCondition("u", filter.Search))
	}
	if filter.DateFrom != nil || filter.DateTo != nil {
		dateRange := squirrel.Or{}
		for _, col := range []string{"u.distribution_uflp_date", "u.distribution_ecoa_date", "u.distribution_commission_date"} {
			cond := squirrel.And{}
			if filter.DateFrom != nil {
				cond = append(cond, squirrel.GtOrEq{col: *filter.DateFrom})
			}
			if filter.DateTo != nil {
				cond = append(cond, squirrel.LtOrEq{col: *filter.DateTo})
			}
			dateRange = append(dateRange, cond)
		}
		where = append(where, dateRange)
	}
	query, args, err := psql.Select(prefixed("u", userColumns)...).
		From("users u").
		Where(where).
		OrderBy("u.last_name_paterno ASC", "u.email ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build financial query: %w", err)
	}
	var users []domain.User
	if err := pgxscan.Select(ctx, r.db, &users, query, args...); err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func (r *userRepository) ListRecent(ctx context.Context, limit int) ([]domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent users: %w", err)
	}
	var users []domain.User
	if err := pgxscan.Select(ctx, r.db, &users, query, args...); err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func (r *userRepository) Search(ctx context.Context, term string, limit int) ([]domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").
		Where(userSearchCondition("", term)).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user search: %w", err)
	}
	var users []domain.User
	if err := pgxscan.Select(ctx, r.db, &users, query, args...); err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func (r *userRepository) CountByRole(ctx context.Context) (map[domain.Role]int, error) {
	const query = `SELECT role, COUNT(*) FROM users GROUP BY role`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Role]int)
	for rows.Next() {
		var role domain.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

func (r *userRepository) CountDistributionPaid(ctx context.Context) (DistributionCounts, error) {
	const query = `
        SELECT COUNT(*) FILTER (WHERE distribution_uflp = 'PAID')       AS uflp,
               COUNT(*) FILTER (WHERE distribution_ecoa = 'PAID')       AS ecoa,
               COUNT(*) FILTER (WHERE distribution_commission = 'PAID') AS commission
        FROM users`
	var counts DistributionCounts
	err := r.db.QueryRow(ctx, query).Scan(&counts.UFLP, &counts.ECOA, &counts.Commission)
	return counts, err
}
