package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/types"
)

type QueryRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, record *types.QueryRecord) (*types.QueryRecord, error)
	SetSelectedAsset(ctx context.Context, tx *gorm.DB, id uuid.UUID, assetID uuid.UUID) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.QueryRecord, error)
}

type queryRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueryRecordRepo(db *gorm.DB, baseLog *logger.Logger) QueryRecordRepo {
	return &queryRecordRepo{db: db, log: baseLog.With("repo", "QueryRecordRepo")}
}

func (r *queryRecordRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *queryRecordRepo) Create(ctx context.Context, tx *gorm.DB, record *types.QueryRecord) (*types.QueryRecord, error) {
	if err := r.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *queryRecordRepo) SetSelectedAsset(ctx context.Context, tx *gorm.DB, id uuid.UUID, assetID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.QueryRecord{}).
		Where("id = ?", id).
		Update("selected_asset_id", assetID).Error
}

func (r *queryRecordRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.QueryRecord, error) {
	var results []*types.QueryRecord
	if err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
