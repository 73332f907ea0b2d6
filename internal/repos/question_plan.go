package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type QuestionPlanRepo interface {
	Create(ctx context.Context, tx *gorm.DB, plans []*types.QuestionPlan) ([]*types.QuestionPlan, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.QuestionPlan, error)
	GetBySegmentIDs(ctx context.Context, tx *gorm.DB, segmentIDs []uuid.UUID) ([]*types.QuestionPlan, error)

	// GetRunnable returns plans eligible for (re-)dispatch: freshly planned,
	// stuck in generating past the staleness cutoff, or failed with attempts
	// left.
	GetRunnable(ctx context.Context, tx *gorm.DB, segmentIDs []uuid.UUID, staleBefore time.Time, maxAttempts int) ([]*types.QuestionPlan, error)

	// Claim moves one runnable plan to generating. Only one caller wins: the
	// transition is a conditional single-row update, so a lost race simply
	// reports claimed=false.
	Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, staleBefore time.Time, maxAttempts int) (bool, error)

	// MarkCompleted / MarkFailed are the only transitions out of generating,
	// guarded on the current status so a plan reaches exactly one terminal
	// state per claim.
	MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error)
}

type questionPlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionPlanRepo(db *gorm.DB, baseLog *logger.Logger) QuestionPlanRepo {
	return &questionPlanRepo{db: db, log: baseLog.With("repo", "QuestionPlanRepo")}
}

func (r *questionPlanRepo) Create(ctx context.Context, tx *gorm.DB, plans []*types.QuestionPlan) ([]*types.QuestionPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(plans) == 0 {
		return []*types.QuestionPlan{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *questionPlanRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.QuestionPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QuestionPlan
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *questionPlanRepo) GetBySegmentIDs(ctx context.Context, tx *gorm.DB, segmentIDs []uuid.UUID) ([]*types.QuestionPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QuestionPlan
	if len(segmentIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("segment_id IN ?", segmentIDs).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func runnableWhere(q *gorm.DB, staleBefore time.Time, maxAttempts int) *gorm.DB {
	return q.Where(`
		status = ?
		OR (status = ? AND claimed_at IS NOT NULL AND claimed_at < ?)
		OR (status = ? AND attempts < ?)
	`, types.PlanPlanned, types.PlanGenerating, staleBefore, types.PlanFailed, maxAttempts)
}

func (r *questionPlanRepo) GetRunnable(ctx context.Context, tx *gorm.DB, segmentIDs []uuid.UUID, staleBefore time.Time, maxAttempts int) ([]*types.QuestionPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QuestionPlan
	if len(segmentIDs) == 0 {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("segment_id IN ?", segmentIDs)
	if err := runnableWhere(q, staleBefore, maxAttempts).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *questionPlanRepo) Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, staleBefore time.Time, maxAttempts int) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	q := transaction.WithContext(ctx).
		Model(&types.QuestionPlan{}).
		Where("id = ?", id)
	res := runnableWhere(q, staleBefore, maxAttempts).
		Updates(map[string]interface{}{
			"status":     types.PlanGenerating,
			"attempts":   gorm.Expr("attempts + 1"),
			"claimed_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *questionPlanRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.QuestionPlan{}).
		Where("id = ? AND status = ?", id, types.PlanGenerating).
		Updates(map[string]interface{}{
			"status":        types.PlanCompleted,
			"error_message": "",
			"claimed_at":    nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *questionPlanRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.QuestionPlan{}).
		Where("id = ? AND status = ?", id, types.PlanGenerating).
		Updates(map[string]interface{}{
			"status":        types.PlanFailed,
			"error_message": reason,
			"claimed_at":    nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
