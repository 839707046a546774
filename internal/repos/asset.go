package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/types"
)

type AssetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, asset *types.Asset) (*types.Asset, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Asset, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Asset, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.AssetStatus, errorMessage string) error

	// SearchLexical is the deterministic fallback for text queries: a
	// case-insensitive substring scan across title, description and tags of
	// ready assets, newest first.
	SearchLexical(ctx context.Context, tx *gorm.DB, query string, tags []string, userID *uuid.UUID, limit, offset int) ([]*types.Asset, error)
	ListReadyByTags(ctx context.Context, tx *gorm.DB, tags []string, userID *uuid.UUID, limit, offset int) ([]*types.Asset, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]*types.Asset, error)
	ListPopular(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Asset, error)

	IncrementViewCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	IncrementDownloadCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *assetRepo) Create(ctx context.Context, tx *gorm.DB, asset *types.Asset) (*types.Asset, error) {
	if err := r.conn(tx).WithContext(ctx).Create(asset).Error; err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *assetRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Asset, error) {
	var asset types.Asset
	if err := r.conn(tx).WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Asset, error) {
	var results []*types.Asset
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.Asset{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *assetRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.AssetStatus, errorMessage string) error {
	return r.UpdateFields(ctx, tx, id, map[string]any{
		"status":        status,
		"error_message": errorMessage,
	})
}

func (r *assetRepo) SearchLexical(ctx context.Context, tx *gorm.DB, query string, tags []string, userID *uuid.UUID, limit, offset int) ([]*types.Asset, error) {
	q := r.conn(tx).WithContext(ctx).
		Model(&types.Asset{}).
		Where("status = ?", types.StatusReady)

	needle := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	q = q.Where(
		"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(CAST(tags AS TEXT)) LIKE ?",
		needle, needle, needle,
	)
	q = applyTagFilter(q, tags)
	q = applyVisibility(q, userID)

	var results []*types.Asset
	if err := q.Order("created_at DESC").Limit(normalizeLimit(limit)).Offset(offset).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) ListReadyByTags(ctx context.Context, tx *gorm.DB, tags []string, userID *uuid.UUID, limit, offset int) ([]*types.Asset, error) {
	q := r.conn(tx).WithContext(ctx).
		Model(&types.Asset{}).
		Where("status = ?", types.StatusReady)
	q = applyTagFilter(q, tags)
	q = applyVisibility(q, userID)

	var results []*types.Asset
	if err := q.Order("created_at DESC").Limit(normalizeLimit(limit)).Offset(offset).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]*types.Asset, error) {
	var results []*types.Asset
	if err := r.conn(tx).WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(normalizeLimit(limit)).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) ListPopular(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Asset, error) {
	var results []*types.Asset
	if err := r.conn(tx).WithContext(ctx).
		Where("status = ? AND is_public = ? AND access_level = ?", types.StatusReady, true, types.VisibilityPublic).
		Order("view_count DESC").
		Limit(normalizeLimit(limit)).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) IncrementViewCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Asset{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (r *assetRepo) IncrementDownloadCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Asset{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

// applyVisibility narrows a metadata query to what the caller may see:
// public assets, plus the caller's own when authenticated. Vector-search
// paths apply the equivalent filter in memory after rank resolution.
func applyVisibility(q *gorm.DB, userID *uuid.UUID) *gorm.DB {
	if userID == nil {
		return q.Where("is_public = ? AND access_level = ?", true, types.VisibilityPublic)
	}
	return q.Where(
		"owner_id = ? OR (is_public = ? AND access_level = ?)",
		*userID, true, types.VisibilityPublic,
	)
}

func applyTagFilter(q *gorm.DB, tags []string) *gorm.DB {
	if len(tags) == 0 {
		return q
	}
	// Tags are stored as a JSON array; substring match per tag keeps the
	// filter portable across postgres and the sqlite test driver.
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		q = q.Where("LOWER(CAST(tags AS TEXT)) LIKE ?", "%"+strings.ToLower(tag)+"%")
	}
	return q
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
