package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssetStatus is the persisted processing state of an Asset. The pipeline
// drives assets forward through the chain processing -> extracting_keyframes
// -> indexing_vectors -> ready; any state may drop to error, which is
// terminal until an operator intervenes.
type AssetStatus string

const (
	StatusProcessing          AssetStatus = "processing"
	StatusExtractingKeyframes AssetStatus = "extracting_keyframes"
	StatusIndexingVectors     AssetStatus = "indexing_vectors"
	StatusReady               AssetStatus = "ready"
	StatusError               AssetStatus = "error"
)

// CanTransition reports whether moving from s to next is a legal status
// transition. Re-entry into extracting_keyframes from any non-terminal state
// is allowed so that at-least-once task delivery and reprocessing of ready
// assets stay idempotent at stage granularity.
func (s AssetStatus) CanTransition(next AssetStatus) bool {
	if next == StatusError {
		return true
	}
	switch next {
	case StatusExtractingKeyframes:
		return s == StatusProcessing || s == StatusExtractingKeyframes ||
			s == StatusIndexingVectors || s == StatusReady
	case StatusIndexingVectors:
		return s == StatusExtractingKeyframes
	case StatusReady:
		return s == StatusIndexingVectors
	default:
		return false
	}
}

// Terminal reports whether the status admits no further pipeline work.
func (s AssetStatus) Terminal() bool {
	return s == StatusError
}

type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
	VisibilityPrivate    Visibility = "private"
)

// ColorShare is one dominant color of an asset thumbnail.
type ColorShare struct {
	Color      string  `json:"color"`
	Percentage float64 `json:"percentage"`
}

type Asset struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Description string    `gorm:"size:2000" json:"description"`

	FilePath      string  `gorm:"column:file_path" json:"file_path"`
	ThumbnailPath string  `gorm:"column:thumbnail_path" json:"thumbnail_path"`
	Duration      float64 `json:"duration"`
	FileSize      int64   `json:"file_size"`
	Format        string  `json:"format"`
	Resolution    string  `json:"resolution"`

	KeyframesExtracted bool `gorm:"not null;default:false" json:"keyframes_extracted"`
	KeyframeCount      int  `gorm:"not null;default:0" json:"keyframe_count"`

	OwnerID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner      *User      `gorm:"constraint:OnDelete:CASCADE;foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	IsPublic   bool       `gorm:"not null;default:true" json:"is_public"`
	Visibility Visibility `gorm:"column:access_level;not null;index" json:"access_level"`

	Tags   datatypes.JSONSlice[string]     `json:"tags"`
	Colors datatypes.JSONSlice[ColorShare] `json:"colors"`

	// External vector-store identifiers. VectorID is the asset-level point;
	// KeyframeVectorIDs hold one id per successfully indexed keyframe.
	VectorID          string                      `gorm:"column:vector_id" json:"vector_id"`
	KeyframeVectorIDs datatypes.JSONSlice[string] `gorm:"column:keyframe_vector_ids" json:"keyframe_vector_ids"`

	ViewCount     int64 `gorm:"not null;default:0" json:"view_count"`
	DownloadCount int64 `gorm:"not null;default:0" json:"download_count"`
	LikeCount     int64 `gorm:"not null;default:0" json:"like_count"`

	Status       AssetStatus `gorm:"not null;default:'processing';index" json:"status"`
	ErrorMessage string      `gorm:"column:error_message" json:"error_message,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Asset) TableName() string { return "asset" }

// VisibleTo reports whether the asset may be returned to the given caller.
// A nil userID is an unauthenticated caller.
func (a *Asset) VisibleTo(userID *uuid.UUID) bool {
	if a.IsPublic && a.Visibility == VisibilityPublic {
		return true
	}
	return userID != nil && *userID == a.OwnerID
}
