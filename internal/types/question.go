package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Question is the realized artifact for a completed plan. Exactly one of the
// type-specific child sets is populated, matching Type; the shapes live in
// their own tables so each payload stays statically checkable instead of a
// free-form metadata blob.
type Question struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"plan_id"`
	Plan         *QuestionPlan  `gorm:"constraint:OnDelete:CASCADE;foreignKey:PlanID;references:ID" json:"plan,omitempty"`
	SegmentID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"segment_id"`
	Type         string         `gorm:"column:type;not null;index" json:"type"`
	Prompt       string         `gorm:"column:prompt;not null" json:"prompt"`
	Explanation  string         `gorm:"column:explanation" json:"explanation"`
	TimestampSec float64        `gorm:"column:timestamp_sec;not null" json:"timestamp_sec"`
	Options      []*QuestionOption `gorm:"foreignKey:QuestionID;references:ID" json:"options,omitempty"`
	Boxes        []*BoundingBox    `gorm:"foreignKey:QuestionID;references:ID" json:"boxes,omitempty"`
	Pairs        []*MatchingPair   `gorm:"foreignKey:QuestionID;references:ID" json:"pairs,omitempty"`
	Items        []*SequenceItem   `gorm:"foreignKey:QuestionID;references:ID" json:"items,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Question) TableName() string { return "question" }

// QuestionOption is one answer option of a multiple-choice or true/false
// question, ordered by Position.
type QuestionOption struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	Position   int       `gorm:"column:position;not null" json:"position"`
	Text       string    `gorm:"column:text;not null" json:"text"`
	IsCorrect  bool      `gorm:"column:is_correct;not null" json:"is_correct"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (QuestionOption) TableName() string { return "question_option" }

// BoundingBox is one spatial region of a hotspot question, normalized to the
// frame (x, y, width, height in [0,1]). Exactly one box per question carries
// IsCorrect.
type BoundingBox struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	Label      string    `gorm:"column:label;not null" json:"label"`
	X          float64   `gorm:"column:x;not null" json:"x"`
	Y          float64   `gorm:"column:y;not null" json:"y"`
	Width      float64   `gorm:"column:width;not null" json:"width"`
	Height     float64   `gorm:"column:height;not null" json:"height"`
	Confidence float64   `gorm:"column:confidence;not null;default:0" json:"confidence"`
	IsCorrect  bool      `gorm:"column:is_correct;not null" json:"is_correct"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (BoundingBox) TableName() string { return "bounding_box" }

type MatchingPair struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	Position   int       `gorm:"column:position;not null" json:"position"`
	Left       string    `gorm:"column:left_text;not null" json:"left"`
	Right      string    `gorm:"column:right_text;not null" json:"right"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (MatchingPair) TableName() string { return "matching_pair" }

// SequenceItem is one entry of a sequencing question; Position is the
// canonical (correct) order.
type SequenceItem struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	Position   int       `gorm:"column:position;not null" json:"position"`
	Text       string    `gorm:"column:text;not null" json:"text"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (SequenceItem) TableName() string { return "sequence_item" }
