package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeTrueFalse      = "true_false"
	QuestionTypeHotspot        = "hotspot"
	QuestionTypeMatching       = "matching"
	QuestionTypeSequencing     = "sequencing"
)

// QuestionTypes lists every supported type in the order the planner cycles
// through them. The set is closed; new types are a schema change, not a
// plugin.
var QuestionTypes = []string{
	QuestionTypeMultipleChoice,
	QuestionTypeTrueFalse,
	QuestionTypeHotspot,
	QuestionTypeMatching,
	QuestionTypeSequencing,
}

func ValidQuestionType(t string) bool {
	for _, qt := range QuestionTypes {
		if qt == t {
			return true
		}
	}
	return false
}

const (
	PlanPlanned    = "planned"
	PlanGenerating = "generating"
	PlanCompleted  = "completed"
	PlanFailed     = "failed"
)

func PlanTerminal(status string) bool {
	return status == PlanCompleted || status == PlanFailed
}

// QuestionPlan is the lightweight specification for one question, created by
// the planner before any content synthesis occurs. Status is the only field
// that mutates after creation.
type QuestionPlan struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SegmentID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"segment_id"`
	Segment      *Segment       `gorm:"constraint:OnDelete:CASCADE;foreignKey:SegmentID;references:ID" json:"segment,omitempty"`
	Type         string         `gorm:"column:type;not null;index" json:"type"`
	TimestampSec float64        `gorm:"column:timestamp_sec;not null" json:"timestamp_sec"`
	Objective    string         `gorm:"column:objective" json:"objective"`
	KeyConcepts  datatypes.JSON `gorm:"type:jsonb;column:key_concepts" json:"key_concepts"`
	ContextText  string         `gorm:"column:context_text" json:"context_text"`
	Status       string         `gorm:"column:status;not null;index" json:"status"` // planned|generating|completed|failed
	ErrorMessage string         `gorm:"column:error_message" json:"error_message"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	ClaimedAt    *time.Time     `gorm:"column:claimed_at;index" json:"claimed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (QuestionPlan) TableName() string { return "question_plan" }
