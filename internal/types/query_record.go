package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QueryKind discriminates search intents.
type QueryKind string

const (
	QueryText     QueryKind = "text"
	QueryImage    QueryKind = "image"
	QueryColor    QueryKind = "color"
	QueryKeyframe QueryKind = "keyframe"
	QueryTagOnly  QueryKind = "tag"
)

// QueryRecord is a write-only audit row for every dispatched search.
type QueryRecord struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`

	QueryType QueryKind      `gorm:"not null;index" json:"query_type"`
	Query     datatypes.JSON `json:"query"`

	ResultCount     int        `gorm:"not null;default:0" json:"result_count"`
	SelectedAssetID *uuid.UUID `gorm:"type:uuid" json:"selected_asset_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (QueryRecord) TableName() string { return "query_record" }
