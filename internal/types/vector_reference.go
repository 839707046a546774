package types

import (
	"time"

	"github.com/google/uuid"
)

// EntityType discriminates what a VectorReference points at.
type EntityType string

const (
	EntityAsset    EntityType = "asset"
	EntityKeyframe EntityType = "keyframe"
	EntityColor    EntityType = "color"
)

// VectorReference maps a metadata-store entity to its point in the external
// vector store. One row per vectorized artifact, written in the same
// transaction as the entity's vector id so the two never diverge. Rows are
// never updated; re-indexing creates fresh rows and the old ones remain as
// audit history.
type VectorReference struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType EntityType `gorm:"not null;index:idx_vector_ref_entity,priority:1" json:"entity_type"`
	EntityID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_vector_ref_entity,priority:2" json:"entity_id"`
	VectorID   string     `gorm:"column:vector_id;not null;index" json:"vector_id"`

	// Keyframe context. Null for asset- and color-level rows.
	ParentAssetID *uuid.UUID `gorm:"type:uuid;index" json:"parent_asset_id,omitempty"`
	KeyframeIndex *int       `json:"keyframe_index,omitempty"`
	Timestamp     *float64   `json:"timestamp,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (VectorReference) TableName() string { return "vector_reference" }
