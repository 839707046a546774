package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/types"
)

type KeyframeRepo interface {
	// ReplaceForAsset drops any previously extracted keyframes for the asset
	// and inserts the new set. Re-running extraction re-samples, it never
	// resumes, so the old rows are dead weight.
	ReplaceForAsset(ctx context.Context, tx *gorm.DB, assetID uuid.UUID, frames []*types.Keyframe) ([]*types.Keyframe, error)
	GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Keyframe, error)
	SetVectorID(ctx context.Context, tx *gorm.DB, id uuid.UUID, vectorID string) error
}

type keyframeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKeyframeRepo(db *gorm.DB, baseLog *logger.Logger) KeyframeRepo {
	return &keyframeRepo{db: db, log: baseLog.With("repo", "KeyframeRepo")}
}

func (r *keyframeRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *keyframeRepo) ReplaceForAsset(ctx context.Context, tx *gorm.DB, assetID uuid.UUID, frames []*types.Keyframe) ([]*types.Keyframe, error) {
	conn := r.conn(tx)
	err := conn.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Where("asset_id = ?", assetID).Delete(&types.Keyframe{}).Error; err != nil {
			return err
		}
		if len(frames) == 0 {
			return nil
		}
		return inner.Create(&frames).Error
	})
	if err != nil {
		return nil, err
	}
	return frames, nil
}

func (r *keyframeRepo) GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Keyframe, error) {
	var results []*types.Keyframe
	if err := r.conn(tx).WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("frame_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *keyframeRepo) SetVectorID(ctx context.Context, tx *gorm.DB, id uuid.UUID, vectorID string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Keyframe{}).
		Where("id = ?", id).
		Update("vector_id", vectorID).Error
}
