package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type QuestionRepo interface {
	// CreateWithPayload inserts the question and its type-specific child rows
	// in one transaction. The insert is keyed on plan_id: if a question for
	// the plan already exists (two orchestrators raced), nothing is written
	// and created=false; the caller treats losing the race as success.
	CreateWithPayload(ctx context.Context, tx *gorm.DB, q *types.Question) (created bool, err error)

	GetByPlanIDs(ctx context.Context, tx *gorm.DB, planIDs []uuid.UUID) ([]*types.Question, error)
	GetBySegmentIDs(ctx context.Context, tx *gorm.DB, segmentIDs []uuid.UUID) ([]*types.Question, error)
	CountByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (r *questionRepo) CreateWithPayload(ctx context.Context, tx *gorm.DB, q *types.Question) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	created := false
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		options := q.Options
		boxes := q.Boxes
		pairs := q.Pairs
		items := q.Items
		q.Options, q.Boxes, q.Pairs, q.Items = nil, nil, nil, nil

		res := txx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plan_id"}},
			DoNothing: true,
		}).Create(q)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race; the winner already persisted the payload.
			return nil
		}
		created = true

		if len(options) > 0 {
			if err := txx.Create(&options).Error; err != nil {
				return err
			}
		}
		if len(boxes) > 0 {
			if err := txx.Create(&boxes).Error; err != nil {
				return err
			}
		}
		if len(pairs) > 0 {
			if err := txx.Create(&pairs).Error; err != nil {
				return err
			}
		}
		if len(items) > 0 {
			if err := txx.Create(&items).Error; err != nil {
				return err
			}
		}
		q.Options, q.Boxes, q.Pairs, q.Items = options, boxes, pairs, items
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *questionRepo) GetByPlanIDs(ctx context.Context, tx *gorm.DB, planIDs []uuid.UUID) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Question
	if len(planIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Preload("Options").
		Preload("Boxes").
		Preload("Pairs").
		Preload("Items").
		Where("plan_id IN ?", planIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *questionRepo) GetBySegmentIDs(ctx context.Context, tx *gorm.DB, segmentIDs []uuid.UUID) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Question
	if len(segmentIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Preload("Options").
		Preload("Boxes").
		Preload("Pairs").
		Preload("Items").
		Where("segment_id IN ?", segmentIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *questionRepo) CountByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.Question{}).
		Joins("JOIN segment ON segment.id = question.segment_id").
		Where("segment.course_id = ?", courseID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
