package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SegmentPending    = "pending"
	SegmentProcessing = "processing"
	SegmentCompleted  = "completed"
	SegmentFailed     = "failed"
)

type Segment struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Course         *Course        `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"course,omitempty"`
	Index          int            `gorm:"column:index;not null" json:"index"`
	StartSec       float64        `gorm:"column:start_sec;not null" json:"start_sec"`
	EndSec         float64        `gorm:"column:end_sec;not null" json:"end_sec"`
	Text           string         `gorm:"column:text;not null" json:"text"`
	Status         string         `gorm:"column:status;not null;index" json:"status"` // pending|processing|completed|failed
	PlannedCount   int            `gorm:"column:planned_count;not null;default:0" json:"planned_count"`
	GeneratedCount int            `gorm:"column:generated_count;not null;default:0" json:"generated_count"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Segment) TableName() string { return "segment" }

func (s *Segment) Duration() float64 { return s.EndSec - s.StartSec }
