package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// CourseDetail is the assembled read model for one course.
type CourseDetail struct {
	Course    *types.Course     `json:"course"`
	Segments  []*types.Segment  `json:"segments"`
	Questions []*types.Question `json:"questions"`
}

type ProcessingService interface {
	// StartProcessing creates the course row and kicks off an asynchronous
	// pipeline pass under a fresh session. The returned session id is the
	// handle callers poll progress with.
	StartProcessing(ctx context.Context, title, sourceRef string) (*types.Course, uuid.UUID, error)
	// RetryCourse starts a fresh session for an existing unpublished course
	// and re-drives it. Published courses are rejected.
	RetryCourse(ctx context.Context, courseID uuid.UUID) (uuid.UUID, error)
	// GetCourse returns the course with its segments and questions.
	GetCourse(ctx context.Context, courseID uuid.UUID) (*CourseDetail, error)
}

type processingService struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo   repos.CourseRepo
	segmentRepo  repos.SegmentRepo
	questionRepo repos.QuestionRepo
	recovery     RecoveryService
}

func NewProcessingService(db *gorm.DB, baseLog *logger.Logger, courseRepo repos.CourseRepo, segmentRepo repos.SegmentRepo, questionRepo repos.QuestionRepo, recovery RecoveryService) ProcessingService {
	return &processingService{
		db:           db,
		log:          baseLog.With("service", "ProcessingService"),
		courseRepo:   courseRepo,
		segmentRepo:  segmentRepo,
		questionRepo: questionRepo,
		recovery:     recovery,
	}
}

func (s *processingService) StartProcessing(ctx context.Context, title, sourceRef string) (*types.Course, uuid.UUID, error) {
	title = strings.TrimSpace(title)
	sourceRef = strings.TrimSpace(sourceRef)
	if title == "" || sourceRef == "" {
		return nil, uuid.Nil, fmt.Errorf("title and source_ref are required")
	}

	now := time.Now()
	course := &types.Course{
		ID:        uuid.New(),
		Title:     title,
		SourceRef: sourceRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.courseRepo.Create(ctx, nil, []*types.Course{course}); err != nil {
		return nil, uuid.Nil, fmt.Errorf("create course: %w", err)
	}

	sessionID := uuid.New()
	s.runAsync(course.ID, sessionID)
	return course, sessionID, nil
}

func (s *processingService) RetryCourse(ctx context.Context, courseID uuid.UUID) (uuid.UUID, error) {
	courses, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return uuid.Nil, fmt.Errorf("load course: %w", err)
	}
	if len(courses) == 0 {
		return uuid.Nil, fmt.Errorf("course %s not found", courseID)
	}
	if courses[0].Published {
		return uuid.Nil, fmt.Errorf("course %s is already published", courseID)
	}

	sessionID := uuid.New()
	s.runAsync(courseID, sessionID)
	return sessionID, nil
}

// runAsync detaches the pipeline pass from the request. The pass carries its
// own context; an abandoned request never cancels generation mid-flight, the
// staleness window handles truly dead passes.
func (s *processingService) runAsync(courseID, sessionID uuid.UUID) {
	go func() {
		ctx := context.Background()
		if err := s.recovery.RecoverCourse(ctx, courseID, sessionID); err != nil {
			s.log.Error("Pipeline pass failed", "course_id", courseID, "session_id", sessionID, "error", err)
		}
	}()
}

func (s *processingService) GetCourse(ctx context.Context, courseID uuid.UUID) (*CourseDetail, error) {
	courses, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("course %s not found", courseID)
	}

	segments, err := s.segmentRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	segmentIDs := make([]uuid.UUID, 0, len(segments))
	for _, seg := range segments {
		segmentIDs = append(segmentIDs, seg.ID)
	}
	questions, err := s.questionRepo.GetBySegmentIDs(ctx, nil, segmentIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	return &CourseDetail{
		Course:    courses[0],
		Segments:  segments,
		Questions: questions,
	}, nil
}
