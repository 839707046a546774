package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/types"
)

type VectorReferenceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, ref *types.VectorReference) (*types.VectorReference, error)
	GetByEntity(ctx context.Context, tx *gorm.DB, entityType types.EntityType, entityID uuid.UUID) ([]*types.VectorReference, error)
	GetByVectorID(ctx context.Context, tx *gorm.DB, vectorID string) (*types.VectorReference, error)
	ListByParentAsset(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.VectorReference, error)
}

type vectorReferenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVectorReferenceRepo(db *gorm.DB, baseLog *logger.Logger) VectorReferenceRepo {
	return &vectorReferenceRepo{db: db, log: baseLog.With("repo", "VectorReferenceRepo")}
}

func (r *vectorReferenceRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *vectorReferenceRepo) Create(ctx context.Context, tx *gorm.DB, ref *types.VectorReference) (*types.VectorReference, error) {
	if err := r.conn(tx).WithContext(ctx).Create(ref).Error; err != nil {
		return nil, err
	}
	return ref, nil
}

func (r *vectorReferenceRepo) GetByEntity(ctx context.Context, tx *gorm.DB, entityType types.EntityType, entityID uuid.UUID) ([]*types.VectorReference, error) {
	var results []*types.VectorReference
	if err := r.conn(tx).WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *vectorReferenceRepo) GetByVectorID(ctx context.Context, tx *gorm.DB, vectorID string) (*types.VectorReference, error) {
	var ref types.VectorReference
	if err := r.conn(tx).WithContext(ctx).First(&ref, "vector_id = ?", vectorID).Error; err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *vectorReferenceRepo) ListByParentAsset(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.VectorReference, error) {
	var results []*types.VectorReference
	if err := r.conn(tx).WithContext(ctx).
		Where("parent_asset_id = ?", assetID).
		Order("keyframe_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
