package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type ProgressRepo interface {
	// Upsert writes the single progress row for (course, session). Within a
	// session overall_fraction is clamped so concurrent workers reporting out
	// of order can never make it regress; a failing session therefore keeps
	// the highest fraction it reached.
	Upsert(ctx context.Context, tx *gorm.DB, p *types.ProcessingProgress) (*types.ProcessingProgress, error)

	GetBySession(ctx context.Context, tx *gorm.DB, courseID, sessionID uuid.UUID) (*types.ProcessingProgress, error)
	GetLatestByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.ProcessingProgress, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{db: db, log: baseLog.With("repo", "ProgressRepo")}
}

func (r *progressRepo) Upsert(ctx context.Context, tx *gorm.DB, p *types.ProcessingProgress) (*types.ProcessingProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var existing types.ProcessingProgress
		qErr := txx.
			Where("course_id = ? AND session_id = ?", p.CourseID, p.SessionID).
			Limit(1).
			Find(&existing).Error
		if qErr != nil {
			return qErr
		}
		if existing.ID != uuid.Nil {
			// Terminal rows are never overwritten by stragglers.
			if types.StageTerminal(existing.Stage) {
				*p = existing
				return nil
			}
			if p.OverallFraction < existing.OverallFraction {
				p.OverallFraction = existing.OverallFraction
			}
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		now := time.Now()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now

		return txx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "course_id"}, {Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stage", "stage_fraction", "overall_fraction", "detail", "updated_at",
			}),
		}).Create(p).Error
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *progressRepo) GetBySession(ctx context.Context, tx *gorm.DB, courseID, sessionID uuid.UUID) (*types.ProcessingProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var p types.ProcessingProgress
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND session_id = ?", courseID, sessionID).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *progressRepo) GetLatestByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.ProcessingProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil, nil
	}
	var p types.ProcessingProgress
	err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("updated_at DESC").
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}
