package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type CourseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Course, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	// MarkSegmented records the stable segment denominator before any
	// generation starts.
	MarkSegmented(ctx context.Context, tx *gorm.DB, id uuid.UUID, totalSegments int) error

	// MarkPublished flips published exactly once; re-running against an
	// already published course is a no-op and reports false.
	MarkPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)

	// GetUnpublishedIDs lists courses the recovery sweeper should look at.
	GetUnpublishedIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(courses) == 0 {
		return []*types.Course{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Course
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

func (r *courseRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *courseRepo) MarkSegmented(ctx context.Context, tx *gorm.DB, id uuid.UUID, totalSegments int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_segmented":   true,
			"total_segments": totalSegments,
			"updated_at":     time.Now(),
		}).Error
}

func (r *courseRepo) MarkPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ? AND published = ?", id, false).
		Updates(map[string]interface{}{
			"published":    true,
			"published_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *courseRepo) GetUnpublishedIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("published = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
