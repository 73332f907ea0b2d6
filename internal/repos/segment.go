package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type SegmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, segments []*types.Segment) ([]*types.Segment, error)
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Segment, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Segment, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error

	// IncrementGenerated bumps generated_count, guarded so it can never pass
	// planned_count even under concurrent workers.
	IncrementGenerated(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	// CountNotCompleted is the publication gate's denominator check.
	CountNotCompleted(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error)
}

type segmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSegmentRepo(db *gorm.DB, baseLog *logger.Logger) SegmentRepo {
	return &segmentRepo{db: db, log: baseLog.With("repo", "SegmentRepo")}
}

func (r *segmentRepo) Create(ctx context.Context, tx *gorm.DB, segments []*types.Segment) ([]*types.Segment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(segments) == 0 {
		return []*types.Segment{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&segments).Error; err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *segmentRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Segment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Segment
	if courseID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order(`"index" ASC`).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *segmentRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Segment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Segment
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

func (r *segmentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *segmentRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"status": status})
}

func (r *segmentRepo) IncrementGenerated(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Where("id = ? AND generated_count < planned_count", id).
		Updates(map[string]interface{}{
			"generated_count": gorm.Expr("generated_count + 1"),
			"updated_at":      time.Now(),
		}).Error
}

func (r *segmentRepo) CountNotCompleted(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Where("course_id = ? AND status <> ?", courseID, types.SegmentCompleted).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
