package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

var documentColumns = []string{"id", "user_id", "type", "url", "status", "rejection_reason", "created_at", "updated_at"}

var ownerColumns = []string{
	"u.email AS owner_email",
	"u.first_name AS owner_first_name",
	"u.last_name_paterno AS owner_last_name",
}

// Owner carries the identifying fields of the user a record belongs to.
type Owner struct {
	OwnerEmail     string  `db:"owner_email"`
	OwnerFirstName *string `db:"owner_first_name"`
	OwnerLastName  *string `db:"owner_last_name"`
}

// DocumentWithOwner is a document joined with its owner for admin listings.
type DocumentWithOwner struct {
	domain.Document
	Owner
}

// DocumentFilter narrows admin document listings.
type DocumentFilter struct {
	UserID string
	Status *domain.ReviewStatus
	Type   *domain.DocumentType
	Search string
	Limit  int
	Offset int
}

// DocumentRepository manages stored document records.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Document, error)
	ListByUserAndStatus(ctx context.Context, userID string, status domain.ReviewStatus) ([]domain.Document, error)
	ListByUsers(ctx context.Context, userIDs []string) ([]domain.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]DocumentWithOwner, error)
	Search(ctx context.Context, term string, limit int) ([]DocumentWithOwner, error)
	DistinctTypes(ctx context.Context, userID string) ([]domain.DocumentType, error)
	UpdateReview(ctx context.Context, id string, status domain.ReviewStatus, reason, url *string) (*domain.Document, error)
	ApproveByIDs(ctx context.Context, ids []string) (int64, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int, error)
}

type documentRepository struct {
	db DBInterface
}

// NewDocumentRepository constructs repository.
func NewDocumentRepository(db DBInterface) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	const query = `
        INSERT INTO documents (user_id, type, url, status)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at`
	if doc.Status == "" {
		doc.Status = domain.ReviewPending
	}
	return r.db.QueryRow(ctx, query,
		doc.UserID,
		doc.Type,
		doc.URL,
		doc.Status,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + columnList(documentColumns) + ` FROM documents WHERE id=$1`
	var doc domain.Document
	if err := pgxscan.Get(ctx, r.db, &doc, query, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *documentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Document, error) {
	return r.selectDocuments(ctx, psql.Select(documentColumns...).From("documents").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC"))
}

func (r *documentRepository) ListByUserAndStatus(ctx context.Context, userID string, status domain.ReviewStatus) ([]domain.Document, error) {
	return r.selectDocuments(ctx, psql.Select(documentColumns...).From("documents").
		Where(squirrel.Eq{"user_id": userID, "status": status}).
		OrderBy("created_at"))
}

func (r *documentRepository) ListByUsers(ctx context.Context, userIDs []string) ([]domain.Document, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.selectDocuments(ctx, psql.Select(documentColumns...).From("documents").
		Where(squirrel.Eq{"user_id": userIDs}).
		OrderBy("created_at DESC"))
}

func (r *documentRepository) selectDocuments(ctx context.Context, qb squirrel.SelectBuilder) ([]domain.Document, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build document query: %w", err)
	}
	var docs []domain.Document
	if err := pgxscan.Select(ctx, r.db, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return docs, nil
}

func (r *documentRepository) List(ctx context.Context, filter DocumentFilter) ([]DocumentWithOwner, error) {
	qb := psql.Select(append(prefixed("d", documentColumns), ownerColumns...)...).
		From("documents d").
		Join("users u ON u.id = d.user_id").
		OrderBy("d.created_at DESC")
	if filter.UserID != "" {
		qb = qb.Where(squirrel.Eq{"d.user_id": filter.UserID})
	}
	if filter.Status != nil {
		qb = qb.Where(squirrel.Eq{"d.status": *filter.Status})
	}
	if filter.Type != nil {
		qb = qb.Where(squirrel.Eq{"d.type": *filter.Type})
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

func (r *documentRepository) Search(ctx context.Context, term string, limit int) ([]DocumentWithOwner, error) {
	pattern := likePattern(term)
	qb := psql.Select(append(prefixed("d", documentColumns), ownerColumns...)...).
		From("documents d").
		Join("users u ON u.id = d.user_id").
		Where(squirrel.Or{
			squirrel.ILike{"d.type": pattern},
			userSearchCondition("u", term),
		}).
		OrderBy("d.created_at DESC").
		Limit(uint64(limit))
	return r.selectWithOwner(ctx, qb)
}

func (r *documentRepository) selectWithOwner(ctx context.Context, qb squirrel.SelectBuilder) ([]DocumentWithOwner, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build document query: %w", err)
	}
	var docs []DocumentWithOwner
	if err := pgxscan.Select(ctx, r.db, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return docs, nil
}

func (r *documentRepository) DistinctTypes(ctx context.Context, userID string) ([]domain.DocumentType, error) {
	const query = `SELECT DISTINCT type FROM documents WHERE user_id=$1`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.DocumentType
	for rows.Next() {
		var t domain.DocumentType
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *documentRepository) UpdateReview(ctx context.Context, id string, status domain.ReviewStatus, reason, url *string) (*domain.Document, error) {
	query := `
        UPDATE documents SET status=$2, rejection_reason=$3, url=$4, updated_at=NOW()
        WHERE id=$1
        RETURNING ` + columnList(documentColumns)
	var doc domain.Document
	if err := pgxscan.Get(ctx, r.db, &doc, query, id, status, reason, url); err != nil {
		if pgxscan.NotFound(err) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("update document review: %w", err)
	}
	return &doc, nil
}

// ApproveByIDs approves exactly the given documents, clearing file and reason.
// Rows that stopped being PENDING in the meantime are left alone.
func (r *documentRepository) ApproveByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := psql.Update("documents").
		Set("status", domain.ReviewApproved).
		Set("rejection_reason", nil).
		Set("url", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": ids, "status": domain.ReviewPending}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build bulk approve: %w", err)
	}
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id=$1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *documentRepository) CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int, error) {
	return countByStatus(ctx, r.db, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
}

func countByStatus(ctx context.Context, db DBInterface, query string) (map[domain.ReviewStatus]int, error) {
	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ReviewStatus]int)
	for rows.Next() {
		var status domain.ReviewStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
