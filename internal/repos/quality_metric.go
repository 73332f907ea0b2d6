package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type QualityMetricRepo interface {
	// Create writes at most one metric per question; a repeated verification
	// pass keeps the first annotation.
	Create(ctx context.Context, tx *gorm.DB, m *types.QualityMetric) (bool, error)
	GetByQuestionIDs(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID) ([]*types.QualityMetric, error)
}

type qualityMetricRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQualityMetricRepo(db *gorm.DB, baseLog *logger.Logger) QualityMetricRepo {
	return &qualityMetricRepo{db: db, log: baseLog.With("repo", "QualityMetricRepo")}
}

func (r *qualityMetricRepo) Create(ctx context.Context, tx *gorm.DB, m *types.QualityMetric) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_id"}},
		DoNothing: true,
	}).Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *qualityMetricRepo) GetByQuestionIDs(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID) ([]*types.QualityMetric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QualityMetric
	if len(questionIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("question_id IN ?", questionIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
