package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StageInitialization = "initialization"
	StageSegmenting     = "segmenting"
	StagePlanning       = "planning"
	StageGenerating     = "generating"
	StageVerifying      = "verifying"
	StageCompleted      = "completed"
	StageFailed         = "failed"
)

func StageTerminal(stage string) bool {
	return stage == StageCompleted || stage == StageFailed
}

// ProcessingProgress is the single progress row per (course, session). It is
// upserted on every stage transition; OverallFraction never regresses within
// a session, and only a completed session reaches 1.
type ProcessingProgress struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_progress_course_session;index" json:"course_id"`
	SessionID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_progress_course_session" json:"session_id"`
	Stage           string         `gorm:"column:stage;not null;index" json:"stage"` // initialization|segmenting|planning|generating|verifying|completed|failed
	StageFraction   float64        `gorm:"column:stage_fraction;not null;default:0" json:"stage_fraction"`
	OverallFraction float64        `gorm:"column:overall_fraction;not null;default:0" json:"overall_fraction"`
	Detail          datatypes.JSON `gorm:"type:jsonb;column:detail" json:"detail"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (ProcessingProgress) TableName() string { return "processing_progress" }
