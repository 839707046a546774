package types

import (
	"time"

	"github.com/google/uuid"
)

// Keyframe is a frame image extracted from an asset. Rows are immutable once
// written, except for VectorID which is filled in by the indexing stage.
type Keyframe struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	Asset   *Asset    `gorm:"constraint:OnDelete:CASCADE;foreignKey:AssetID;references:ID" json:"asset,omitempty"`

	FilePath  string  `gorm:"column:file_path;not null" json:"file_path"`
	Timestamp float64 `gorm:"not null" json:"timestamp"`
	Index     int     `gorm:"column:frame_index;not null" json:"index"`

	VectorID string `gorm:"column:vector_id" json:"vector_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Keyframe) TableName() string { return "keyframe" }
