package types

import (
	"time"

	"github.com/google/uuid"
)

// QualityMetric annotates one generated question with rubric scores. It never
// blocks pipeline completion; low scores are a curation concern downstream.
type QualityMetric struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"question_id"`
	Question              *Question `gorm:"constraint:OnDelete:CASCADE;foreignKey:QuestionID;references:ID" json:"question,omitempty"`
	EducationalValue      float64   `gorm:"column:educational_value;not null" json:"educational_value"`
	Clarity               float64   `gorm:"column:clarity;not null" json:"clarity"`
	CognitiveLevel        float64   `gorm:"column:cognitive_level;not null" json:"cognitive_level"`
	BloomAlignment        float64   `gorm:"column:bloom_alignment;not null" json:"bloom_alignment"`
	MisconceptionHandling float64   `gorm:"column:misconception_handling;not null" json:"misconception_handling"`
	ExplanationQuality    float64   `gorm:"column:explanation_quality;not null" json:"explanation_quality"`
	OverallScore          float64   `gorm:"column:overall_score;not null" json:"overall_score"`
	MeetsThreshold        bool      `gorm:"column:meets_threshold;not null" json:"meets_threshold"`
	CreatedAt             time.Time `gorm:"not null" json:"created_at"`
}

func (QualityMetric) TableName() string { return "quality_metric" }
