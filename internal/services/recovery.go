package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// RecoveryService re-drives a course's pipeline from whatever state it is in.
// Every step is idempotent: the segmenter returns existing segments, planning
// skips planned segments, dispatch requires winning a per-plan claim, and the
// publication flip is a conditional update. Repeated invocations converge on
// a published course or a terminal failure, never on duplicate artifacts.
type RecoveryService interface {
	// RecoverCourse runs one full pass of the state machine for a course
	// under the given processing session.
	RecoverCourse(ctx context.Context, courseID, sessionID uuid.UUID) error
	// StartSweeper runs recovery passes for unpublished courses on a fixed
	// interval until ctx is cancelled.
	StartSweeper(ctx context.Context)
}

type recoveryService struct {
	db  *gorm.DB
	log *logger.Logger
	cfg *config.PipelineConfig

	courseRepo  repos.CourseRepo
	segmentRepo repos.SegmentRepo
	planRepo    repos.QuestionPlanRepo

	transcripts TranscriptProvider
	segmenter   SegmenterService
	planner     PlannerService
	pool        *GeneratorPool
	quality     QualityService
	progress    ProgressService
	publication PublicationService
}

func NewRecoveryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg *config.PipelineConfig,
	courseRepo repos.CourseRepo,
	segmentRepo repos.SegmentRepo,
	planRepo repos.QuestionPlanRepo,
	transcripts TranscriptProvider,
	segmenter SegmenterService,
	planner PlannerService,
	pool *GeneratorPool,
	quality QualityService,
	progress ProgressService,
	publication PublicationService,
) RecoveryService {
	return &recoveryService{
		db:          db,
		log:         baseLog.With("service", "RecoveryService"),
		cfg:         cfg,
		courseRepo:  courseRepo,
		segmentRepo: segmentRepo,
		planRepo:    planRepo,
		transcripts: transcripts,
		segmenter:   segmenter,
		planner:     planner,
		pool:        pool,
		quality:     quality,
		progress:    progress,
		publication: publication,
	}
}

func (s *recoveryService) RecoverCourse(ctx context.Context, courseID, sessionID uuid.UUID) error {
	courses, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}
	if len(courses) == 0 {
		return fmt.Errorf("course %s not found", courseID)
	}
	course := courses[0]
	if course.Published {
		return nil
	}

	if err := s.progress.SetStage(ctx, courseID, sessionID, types.StageInitialization, 1, nil); err != nil {
		s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
	}

	// Step 1: segments.
	segments, err := s.ensureSegments(ctx, course, sessionID)
	if err != nil {
		return err
	}

	// Step 2: plans.
	if err := s.ensurePlans(ctx, courseID, sessionID, segments); err != nil {
		return err
	}

	// Step 3: re-dispatch runnable plans.
	if err := s.driveGeneration(ctx, courseID, sessionID, segments); err != nil {
		return err
	}

	// Step 4: recompute segment statuses from plan terminal states.
	allSettled, anyFailed, err := s.recomputeSegments(ctx, segments)
	if err != nil {
		return fmt.Errorf("recompute segments: %w", err)
	}

	// Step 5: verification and publication.
	if allSettled && s.cfg.Quality.Enabled && s.quality != nil {
		if err := s.verify(ctx, courseID, sessionID); err != nil {
			s.log.Warn("Quality verification failed", "course_id", courseID, "error", err)
		}
	}

	published, err := s.publication.PublishIfComplete(ctx, courseID)
	if err != nil {
		return fmt.Errorf("publication check: %w", err)
	}
	if published {
		return s.progress.Complete(ctx, courseID, sessionID)
	}

	if allSettled && anyFailed {
		// Nothing left runnable and at least one segment ended without a
		// single successful plan. The session is not going to converge.
		if err := s.progress.Fail(ctx, courseID, sessionID, types.StageGenerating, "one or more segments produced no questions after exhausting retries"); err != nil {
			s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
		}
		return nil
	}

	// Still work in flight or retries pending; the next pass picks it up.
	return nil
}

func (s *recoveryService) ensureSegments(ctx context.Context, course *types.Course, sessionID uuid.UUID) ([]*types.Segment, error) {
	segments, err := s.segmentRepo.GetByCourseID(ctx, nil, course.ID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	if course.IsSegmented && len(segments) > 0 {
		return segments, nil
	}

	if err := s.progress.SetStage(ctx, course.ID, sessionID, types.StageSegmenting, 0, nil); err != nil {
		s.log.Warn("Progress update failed", "course_id", course.ID, "error", err)
	}

	transcript, err := s.transcripts.Fetch(ctx, course.SourceRef)
	if err != nil {
		return nil, s.failSession(ctx, course.ID, sessionID, types.StageSegmenting, fmt.Errorf("fetch transcript: %w", err))
	}
	segments, err = s.segmenter.SegmentCourse(ctx, course.ID, transcript)
	if err != nil {
		return nil, s.failSession(ctx, course.ID, sessionID, types.StageSegmenting, err)
	}

	if err := s.progress.SetStage(ctx, course.ID, sessionID, types.StageSegmenting, 1, map[string]any{"total_segments": len(segments)}); err != nil {
		s.log.Warn("Progress update failed", "course_id", course.ID, "error", err)
	}
	return segments, nil
}

func (s *recoveryService) ensurePlans(ctx context.Context, courseID, sessionID uuid.UUID, segments []*types.Segment) error {
	var unplanned []*types.Segment
	for _, seg := range segments {
		if seg.PlannedCount == 0 && seg.Status != types.SegmentCompleted {
			unplanned = append(unplanned, seg)
		}
	}
	if len(unplanned) == 0 {
		return nil
	}

	for i, seg := range unplanned {
		if err := s.progress.SetStage(ctx, courseID, sessionID, types.StagePlanning, float64(i)/float64(len(unplanned)), map[string]any{"segment_index": seg.Index}); err != nil {
			s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
		}
		plans, err := s.planner.PlanSegment(ctx, seg)
		if err != nil {
			return s.failSession(ctx, courseID, sessionID, types.StagePlanning, err)
		}
		seg.PlannedCount = len(plans)
	}
	if err := s.progress.SetStage(ctx, courseID, sessionID, types.StagePlanning, 1, nil); err != nil {
		s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
	}
	return nil
}

func (s *recoveryService) driveGeneration(ctx context.Context, courseID, sessionID uuid.UUID, segments []*types.Segment) error {
	segmentIDs := make([]uuid.UUID, 0, len(segments))
	for _, seg := range segments {
		segmentIDs = append(segmentIDs, seg.ID)
	}

	allPlans, err := s.planRepo.GetBySegmentIDs(ctx, nil, segmentIDs)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}
	settled := 0
	for _, p := range allPlans {
		if types.PlanTerminal(p.Status) {
			settled++
		}
	}

	staleBefore := time.Now().Add(-s.cfg.StalenessWindow())
	runnable, err := s.planRepo.GetRunnable(ctx, nil, segmentIDs, staleBefore, s.cfg.Generation.MaxAttemptsPerPlan)
	if err != nil {
		return fmt.Errorf("load runnable plans: %w", err)
	}
	if len(runnable) == 0 {
		return nil
	}

	total := len(allPlans)
	if err := s.progress.SetStage(ctx, courseID, sessionID, types.StageGenerating, fractionOf(settled, total), map[string]any{"settled": settled, "total": total}); err != nil {
		s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
	}

	return s.pool.GenerateForPlans(ctx, runnable, func(done, _ int) {
		if err := s.progress.SetStage(ctx, courseID, sessionID, types.StageGenerating, fractionOf(settled+done, total), map[string]any{"settled": settled + done, "total": total}); err != nil {
			s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
		}
	})
}

// recomputeSegments derives each segment's status from its plans. A segment
// settles only once every plan is terminal with no retries left; whether it
// settles completed or failed follows the completion policy. Completed
// segments are never touched.
func (s *recoveryService) recomputeSegments(ctx context.Context, segments []*types.Segment) (allSettled, anyFailed bool, err error) {
	allSettled = true
	for _, seg := range segments {
		if seg.Status == types.SegmentCompleted {
			continue
		}
		plans, err := s.planRepo.GetBySegmentIDs(ctx, nil, []uuid.UUID{seg.ID})
		if err != nil {
			return false, false, err
		}
		if len(plans) == 0 {
			allSettled = false
			continue
		}

		terminal, succeeded := 0, 0
		for _, p := range plans {
			if types.PlanTerminal(p.Status) {
				terminal++
			}
			if p.Status == types.PlanCompleted {
				succeeded++
			}
		}
		// A failed plan with attempts left is still runnable, so the segment
		// is not settled yet no matter how many siblings already succeeded.
		if terminal < len(plans) || s.hasRetriablePlan(plans) {
			allSettled = false
			continue
		}

		completed := succeeded > 0
		if s.cfg.Recovery.CompletionPolicy == config.CompletionPolicyAll {
			completed = succeeded == len(plans)
		}
		status := types.SegmentCompleted
		if !completed {
			status = types.SegmentFailed
			anyFailed = true
		}
		if status != seg.Status {
			if err := s.segmentRepo.SetStatus(ctx, nil, seg.ID, status); err != nil {
				return false, false, err
			}
			seg.Status = status
		}
	}
	return allSettled, anyFailed, nil
}

func (s *recoveryService) hasRetriablePlan(plans []*types.QuestionPlan) bool {
	for _, p := range plans {
		if p.Status == types.PlanFailed && p.Attempts < s.cfg.Generation.MaxAttemptsPerPlan {
			return true
		}
	}
	return false
}

func (s *recoveryService) verify(ctx context.Context, courseID, sessionID uuid.UUID) error {
	if err := s.progress.SetStage(ctx, courseID, sessionID, types.StageVerifying, 0, nil); err != nil {
		s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
	}
	return s.quality.VerifyCourse(ctx, courseID, func(done, total int) {
		if err := s.progress.SetStage(ctx, courseID, sessionID, types.StageVerifying, fractionOf(done, total), nil); err != nil {
			s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
		}
	})
}

func fractionOf(done, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(done) / float64(total)
}

func (s *recoveryService) failSession(ctx context.Context, courseID, sessionID uuid.UUID, stage string, cause error) error {
	if err := s.progress.Fail(ctx, courseID, sessionID, stage, cause.Error()); err != nil {
		s.log.Warn("Progress update failed", "course_id", courseID, "error", err)
	}
	return cause
}

func (s *recoveryService) StartSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval()
	s.log.Info("Recovery sweeper started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Recovery sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *recoveryService) sweepOnce(ctx context.Context) {
	ids, err := s.courseRepo.GetUnpublishedIDs(ctx, nil, 50)
	if err != nil {
		s.log.Warn("Sweep listing failed", "error", err)
		return
	}
	for _, id := range ids {
		latest, err := s.progress.GetStatus(ctx, id)
		if err != nil {
			latest = nil
		}
		sessionID, ok := nextSweepSession(latest)
		if !ok {
			continue
		}
		if err := s.RecoverCourse(ctx, id, sessionID); err != nil {
			s.log.Warn("Sweep recovery pass failed", "course_id", id, "error", err)
		}
	}
}

// nextSweepSession picks the session a sweep pass should run under. An active
// session is resumed; a terminal one must not be reused because its progress
// row is frozen and would swallow all updates from the new pass.
func nextSweepSession(latest *types.ProcessingProgress) (uuid.UUID, bool) {
	if latest == nil {
		return uuid.New(), true
	}
	if latest.Stage == types.StageFailed {
		// Failed sessions are only revived by an explicit retry.
		return uuid.Nil, false
	}
	if types.StageTerminal(latest.Stage) {
		return uuid.New(), true
	}
	return latest.SessionID, true
}
