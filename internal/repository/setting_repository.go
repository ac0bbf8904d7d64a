package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

// SettingRepository stores system settings.
type SettingRepository interface {
	Get(ctx context.Context, key string) (*domain.SystemSetting, error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	List(ctx context.Context) ([]domain.SystemSetting, error)
	Upsert(ctx context.Context, setting *domain.SystemSetting) error
}

type settingRepository struct {
	db DBInterface
}

// NewSettingRepository constructs repository.
func NewSettingRepository(db DBInterface) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(ctx context.Context, key string) (*domain.SystemSetting, error) {
	const query = `SELECT key, value, description, updated_at FROM system_settings WHERE key=$1`
	var setting domain.SystemSetting
	if err := pgxscan.Get(ctx, r.db, &setting, query, key); err != nil {
		if pgxscan.NotFound(err) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan setting: %w", err)
	}
	return &setting, nil
}

// GetMany returns the values of the requested keys that exist.
func (r *settingRepository) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	query, args, err := psql.Select("key", "value", "description", "updated_at").
		From("system_settings").
		Where(squirrel.Eq{"key": keys}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build settings query: %w", err)
	}
	var settings []domain.SystemSetting
	if err := pgxscan.Select(ctx, r.db, &settings, query, args...); err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	out := make(map[string]string, len(settings))
	for _, s := range settings {
		out[s.Key] = s.Value
	}
	return out, nil
}

func (r *settingRepository) List(ctx context.Context) ([]domain.SystemSetting, error) {
	const query = `SELECT key, value, description, updated_at FROM system_settings ORDER BY key`
	var settings []domain.SystemSetting
	if err := pgxscan.Select(ctx, r.db, &settings, query); err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	return settings, nil
}

func (r *settingRepository) Upsert(ctx context.Context, setting *domain.SystemSetting) error {
	const query = `
        INSERT INTO system_settings (key, value, description)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE
        SET value = EXCLUDED.value,
            description = COALESCE(EXCLUDED.description, system_settings.description),
            updated_at = NOW()
        RETURNING description, updated_at`
	return r.db.QueryRow(ctx, query, setting.Key, setting.Value, setting.Description).
		Scan(&setting.Description, &setting.UpdatedAt)
}
