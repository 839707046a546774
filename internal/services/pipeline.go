package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/repos"
	"github.com/pixelseek/pixelseek/internal/types"
)

// Stage failure messages persisted on the asset row. Clients key off these.
const (
	msgKeyframeExtractionFailed = "keyframe extraction failed"
	msgVectorIndexingFailed     = "vector indexing failed"
)

var (
	ErrAssetNotFound     = errors.New("asset not found")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// VideoPipelineService drives an uploaded asset through keyframe extraction
// and vector indexing. Process is safe to re-run on the same asset: each run
// re-extracts from scratch and the status row records exactly one stage at a
// time, persisted before the stage executes.
type VideoPipelineService interface {
	Process(ctx context.Context, assetID uuid.UUID) error
}

type videoPipelineService struct {
	log        *logger.Logger
	db         *gorm.DB
	assets     repos.AssetRepo
	keyframes  repos.KeyframeRepo
	vectorRefs repos.VectorReferenceRepo
	media      MediaToolsService
	index      VideoIndexService

	// frameRoot is where extracted frame images land, one subdir per asset.
	frameRoot string
	maxFrames int
	colorK    int
}

func NewVideoPipelineService(
	log *logger.Logger,
	db *gorm.DB,
	assets repos.AssetRepo,
	keyframes repos.KeyframeRepo,
	vectorRefs repos.VectorReferenceRepo,
	media MediaToolsService,
	index VideoIndexService,
	frameRoot string,
) VideoPipelineService {
	if frameRoot == "" {
		frameRoot = "/tmp/pixelseek-frames"
	}
	return &videoPipelineService{
		log:        log.With("service", "VideoPipelineService"),
		db:         db,
		assets:     assets,
		keyframes:  keyframes,
		vectorRefs: vectorRefs,
		media:      media,
		index:      index,
		frameRoot:  frameRoot,
		maxFrames:  defaultMaxFrames,
		colorK:     defaultColorClusters,
	}
}

func (s *videoPipelineService) Process(ctx context.Context, assetID uuid.UUID) (err error) {
	asset, err := s.assets.GetByID(ctx, nil, assetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
		}
		return fmt.Errorf("load asset %s: %w", assetID, err)
	}
	log := s.log.With("asset_id", assetID.String())

	// A panic anywhere below must not leave the asset stuck mid-stage.
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panicked", "panic", r)
			_ = s.assets.UpdateStatus(context.WithoutCancel(ctx), nil, assetID, types.StatusError, fmt.Sprintf("pipeline panic: %v", r))
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	if err := s.transition(ctx, asset, types.StatusExtractingKeyframes); err != nil {
		return err
	}

	frames, err := s.extract(ctx, asset)
	if err != nil {
		return s.fail(ctx, log, assetID, msgKeyframeExtractionFailed, err)
	}

	if err := s.transition(ctx, asset, types.StatusIndexingVectors); err != nil {
		return err
	}

	if err := s.indexAll(ctx, log, asset, frames); err != nil {
		return s.fail(ctx, log, assetID, msgVectorIndexingFailed, err)
	}

	if err := s.transition(ctx, asset, types.StatusReady); err != nil {
		return err
	}
	log.Info("asset ready", "keyframes", len(frames))
	return nil
}

// transition validates the status move against the state machine, persists
// it, and advances the in-memory copy.
func (s *videoPipelineService) transition(ctx context.Context, asset *types.Asset, next types.AssetStatus) error {
	if !asset.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s for asset %s", ErrIllegalTransition, asset.Status, next, asset.ID)
	}
	if err := s.assets.UpdateStatus(ctx, nil, asset.ID, next, ""); err != nil {
		return fmt.Errorf("persist status %s: %w", next, err)
	}
	asset.Status = next
	return nil
}

func (s *videoPipelineService) fail(ctx context.Context, log *logger.Logger, assetID uuid.UUID, message string, cause error) error {
	log.Error("pipeline stage failed", "message", message, "error", cause)
	// The failure record must land even when the caller's context is gone.
	if uerr := s.assets.UpdateStatus(context.WithoutCancel(ctx), nil, assetID, types.StatusError, message); uerr != nil {
		log.Error("could not persist error status", "error", uerr)
	}
	return fmt.Errorf("%s: %w", message, cause)
}

// extract runs keyframe extraction and replaces the asset's keyframe rows
// with the fresh set. Zero usable frames is a stage failure.
func (s *videoPipelineService) extract(ctx context.Context, asset *types.Asset) ([]*types.Keyframe, error) {
	outDir := filepath.Join(s.frameRoot, asset.ID.String())
	frames, err := s.media.ExtractKeyframes(ctx, asset.FilePath, outDir, KeyframeOptions{
		Strategy:  StrategyContent,
		MaxFrames: s.maxFrames,
	})
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no keyframes extracted from %s", asset.FilePath)
	}

	rows := make([]*types.Keyframe, len(frames))
	for i, f := range frames {
		rows[i] = &types.Keyframe{
			AssetID:   asset.ID,
			FilePath:  f.Path,
			Timestamp: f.Timestamp,
			Index:     f.Index,
		}
	}
	if _, err := s.keyframes.ReplaceForAsset(ctx, nil, asset.ID, rows); err != nil {
		return nil, fmt.Errorf("persist keyframes: %w", err)
	}
	if err := s.assets.UpdateFields(ctx, nil, asset.ID, map[string]any{
		"keyframes_extracted": true,
		"keyframe_count":      len(rows),
	}); err != nil {
		return nil, fmt.Errorf("update keyframe bookkeeping: %w", err)
	}
	return rows, nil
}

// indexAll writes the asset point, then keyframe and color points. The
// asset point is mandatory; keyframes and colors are indexed tolerantly so
// one bad frame does not sink the whole asset.
func (s *videoPipelineService) indexAll(ctx context.Context, log *logger.Logger, asset *types.Asset, frames []*types.Keyframe) error {
	meta := AssetMeta{
		AssetID:     asset.ID,
		OwnerID:     asset.OwnerID,
		Title:       asset.Title,
		Description: asset.Description,
		Tags:        asset.Tags,
		IsPublic:    asset.IsPublic,
		AccessLevel: string(asset.Visibility),
	}

	thumbPath := asset.ThumbnailPath
	if thumbPath == "" {
		thumbPath = frames[0].FilePath
	}
	thumbnail, err := s.media.ReadImageBytes(thumbPath)
	if err != nil {
		return fmt.Errorf("read thumbnail: %w", err)
	}
	colors := s.media.DominantColors(thumbPath, s.colorK)

	externalID, err := s.index.IndexVideo(ctx, meta, thumbnail)
	if err != nil {
		return err
	}

	// Vector id and its reference row commit together so the metadata store
	// never claims a point that was not recorded, or vice versa.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.assets.UpdateFields(ctx, tx, asset.ID, map[string]any{
			"vector_id": externalID,
			"colors":    datatypes.NewJSONSlice(colors),
		}); err != nil {
			return err
		}
		_, err := s.vectorRefs.Create(ctx, tx, &types.VectorReference{
			EntityType: types.EntityAsset,
			EntityID:   asset.ID,
			VectorID:   externalID,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("commit asset vector id: %w", err)
	}

	keyframeVectorIDs := s.indexKeyframes(ctx, log, meta, frames)
	if err := s.assets.UpdateFields(ctx, nil, asset.ID, map[string]any{
		"keyframe_vector_ids": datatypes.NewJSONSlice(keyframeVectorIDs),
	}); err != nil {
		return fmt.Errorf("update keyframe vector ids: %w", err)
	}

	s.indexColors(ctx, log, meta, colors)
	return nil
}

func (s *videoPipelineService) indexKeyframes(ctx context.Context, log *logger.Logger, meta AssetMeta, frames []*types.Keyframe) []string {
	ids := make([]string, 0, len(frames))
	for _, frame := range frames {
		data, err := s.media.ReadImageBytes(frame.FilePath)
		if err != nil {
			log.Warn("skipping unreadable keyframe", "frame_index", frame.Index, "error", err)
			continue
		}
		externalID, err := s.index.IndexKeyframe(ctx, meta, data, frame.Timestamp, frame.Index)
		if err != nil {
			log.Warn("keyframe indexing failed", "frame_index", frame.Index, "error", err)
			continue
		}

		frameID := frame.ID
		idx := frame.Index
		ts := frame.Timestamp
		parent := meta.AssetID
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.keyframes.SetVectorID(ctx, tx, frameID, externalID); err != nil {
				return err
			}
			_, err := s.vectorRefs.Create(ctx, tx, &types.VectorReference{
				EntityType:    types.EntityKeyframe,
				EntityID:      frameID,
				VectorID:      externalID,
				ParentAssetID: &parent,
				KeyframeIndex: &idx,
				Timestamp:     &ts,
			})
			return err
		})
		if err != nil {
			log.Warn("could not record keyframe vector id", "frame_index", frame.Index, "error", err)
			continue
		}
		ids = append(ids, externalID)
	}
	return ids
}

func (s *videoPipelineService) indexColors(ctx context.Context, log *logger.Logger, meta AssetMeta, colors []types.ColorShare) {
	for _, share := range colors {
		externalID, err := s.index.IndexColor(ctx, meta, share.Color, share.Percentage)
		if err != nil {
			log.Warn("color indexing failed", "color", share.Color, "error", err)
			continue
		}
		if _, err := s.vectorRefs.Create(ctx, nil, &types.VectorReference{
			EntityType:    types.EntityColor,
			EntityID:      meta.AssetID,
			VectorID:      externalID,
			ParentAssetID: &meta.AssetID,
		}); err != nil {
			log.Warn("could not record color vector id", "color", share.Color, "error", err)
		}
	}
}
