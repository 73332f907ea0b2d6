package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vidcourse/vidcourse-backend/internal/cache"
	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/sse"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// stageOrder is the fixed sequence the pipeline moves through. Overall
// progress is the summed weight of every earlier stage plus the weighted
// fraction of the current one.
var stageOrder = []string{
	types.StageInitialization,
	types.StageSegmenting,
	types.StagePlanning,
	types.StageGenerating,
	types.StageVerifying,
}

type ProgressService interface {
	// SetStage records a stage transition or an in-stage fraction update for
	// a session, fans it out over SSE and refreshes the cache. Updates against
	// a session already in a terminal stage are dropped.
	SetStage(ctx context.Context, courseID, sessionID uuid.UUID, stage string, stageFraction float64, detail map[string]any) error
	// Fail moves the session to the failed stage, preserving the stage the
	// failure happened in inside the detail payload. The overall fraction
	// freezes at whatever the session had reached; only completed sessions
	// ever report 1.
	Fail(ctx context.Context, courseID, sessionID uuid.UUID, failedStage string, reason string) error
	// Complete moves the session to completed at overall fraction 1.
	Complete(ctx context.Context, courseID, sessionID uuid.UUID) error
	// GetStatus returns the freshest progress row for a course, preferring
	// the cache and falling back to the latest database row.
	GetStatus(ctx context.Context, courseID uuid.UUID) (*types.ProcessingProgress, error)
	GetSession(ctx context.Context, courseID, sessionID uuid.UUID) (*types.ProcessingProgress, error)
}

type progressService struct {
	log *logger.Logger
	cfg *config.PipelineConfig

	progressRepo repos.ProgressRepo
	cache        cache.ProgressCache
	hub          *sse.SSEHub
}

// NewProgressService builds the tracker. cache and hub may be nil; both are
// best-effort fan-out surfaces, the database row is the source of truth.
func NewProgressService(baseLog *logger.Logger, cfg *config.PipelineConfig, progressRepo repos.ProgressRepo, progressCache cache.ProgressCache, hub *sse.SSEHub) ProgressService {
	return &progressService{
		log:          baseLog.With("service", "ProgressService"),
		cfg:          cfg,
		progressRepo: progressRepo,
		cache:        progressCache,
		hub:          hub,
	}
}

func (s *progressService) SetStage(ctx context.Context, courseID, sessionID uuid.UUID, stage string, stageFraction float64, detail map[string]any) error {
	return s.record(ctx, courseID, sessionID, stage, stageFraction, detail, sse.SSEEventCourseProcessingProgress)
}

func (s *progressService) Fail(ctx context.Context, courseID, sessionID uuid.UUID, failedStage string, reason string) error {
	detail := map[string]any{
		"failed_stage": failedStage,
		"reason":       reason,
	}
	return s.record(ctx, courseID, sessionID, types.StageFailed, 0, detail, sse.SSEEventCourseProcessingFailed)
}

func (s *progressService) Complete(ctx context.Context, courseID, sessionID uuid.UUID) error {
	return s.record(ctx, courseID, sessionID, types.StageCompleted, 1, nil, sse.SSEEventCourseProcessingDone)
}

func (s *progressService) record(ctx context.Context, courseID, sessionID uuid.UUID, stage string, stageFraction float64, detail map[string]any, event sse.SSEEvent) error {
	if stageFraction < 0 {
		stageFraction = 0
	}
	if stageFraction > 1 {
		stageFraction = 1
	}

	row := &types.ProcessingProgress{
		ID:              uuid.New(),
		CourseID:        courseID,
		SessionID:       sessionID,
		Stage:           stage,
		StageFraction:   stageFraction,
		OverallFraction: s.overallFraction(stage, stageFraction),
		UpdatedAt:       time.Now(),
	}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal progress detail: %w", err)
		}
		row.Detail = datatypes.JSON(raw)
	}

	saved, err := s.progressRepo.Upsert(ctx, nil, row)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, saved); err != nil {
			s.log.Warn("Progress cache write failed", "course_id", courseID, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(sse.SSEMessage{
			Channel: sse.CourseChannel(courseID),
			Event:   event,
			Data:    saved,
		})
	}
	return nil
}

func (s *progressService) overallFraction(stage string, stageFraction float64) float64 {
	if stage == types.StageCompleted {
		return 1
	}
	if stage == types.StageFailed {
		// The upsert clamp keeps the highest fraction the session reached;
		// 1 is reserved for completed sessions.
		return 0
	}
	weights := s.cfg.Progress.StageWeights
	var overall float64
	for _, st := range stageOrder {
		if st == stage {
			overall += weights[st] * stageFraction
			break
		}
		overall += weights[st]
	}
	if overall > 1 {
		overall = 1
	}
	return overall
}

func (s *progressService) GetStatus(ctx context.Context, courseID uuid.UUID) (*types.ProcessingProgress, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, courseID)
		if err != nil {
			s.log.Warn("Progress cache read failed", "course_id", courseID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}
	return s.progressRepo.GetLatestByCourseID(ctx, nil, courseID)
}

func (s *progressService) GetSession(ctx context.Context, courseID, sessionID uuid.UUID) (*types.ProcessingProgress, error) {
	return s.progressRepo.GetBySession(ctx, nil, courseID, sessionID)
}
