package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	SourceRef     string         `gorm:"column:source_ref;not null" json:"source_ref"`
	Published     bool           `gorm:"column:published;not null;default:false;index" json:"published"`
	PublishedAt   *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	IsSegmented   bool           `gorm:"column:is_segmented;not null;default:false" json:"is_segmented"`
	TotalSegments int            `gorm:"column:total_segments;not null;default:0" json:"total_segments"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }
