package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/settings/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, branchID *snowflake.ID, provider domain.Provider) (*domain.SettingRecord, error)
	Upsert(ctx context.Context, db *gorm.DB, record *domain.SettingRecord) error
	ListTenants(ctx context.Context, db *gorm.DB, provider domain.Provider) ([]domain.Tenant, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, branchID *snowflake.ID, provider domain.Provider) (*domain.SettingRecord, error) {
	var item domain.SettingRecord
	query := `SELECT id, org_id, branch_id, provider, config, is_active, created_at, updated_at
		 FROM provider_settings
		 WHERE org_id = ? AND provider = ? AND is_active = TRUE`
	args := []any{orgID, provider}
	if branchID != nil {
		query += ` AND branch_id = ?`
		args = append(args, *branchID)
	} else {
		query += ` AND branch_id IS NULL`
	}
	query += ` LIMIT 1`

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.SettingRecord) error {
	existing, err := r.Find(ctx, db, record.OrgID, record.BranchID, record.Provider)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.WithContext(ctx).Exec(
			`INSERT INTO provider_settings (
				id, org_id, branch_id, provider, config, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			record.OrgID,
			record.BranchID,
			record.Provider,
			record.Config,
			record.IsActive,
			record.CreatedAt,
			record.UpdatedAt,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE provider_settings
		 SET config = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		record.Config,
		record.IsActive,
		record.UpdatedAt,
		existing.ID,
	).Error
}

func (r *repo) ListTenants(ctx context.Context, db *gorm.DB, provider domain.Provider) ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT org_id, branch_id
		 FROM provider_settings
		 WHERE provider = ? AND is_active = TRUE
		 ORDER BY org_id`,
		provider,
	).Scan(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}
