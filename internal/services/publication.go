package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/sse"
)

type PublicationService interface {
	// PublishIfComplete flips the course live when every readiness condition
	// holds: segmentation finished with at least one segment, every segment
	// completed, and at least one question exists. Returns true only for the
	// caller that performed the flip; a course that is already published or
	// not yet ready returns false with no error.
	PublishIfComplete(ctx context.Context, courseID uuid.UUID) (bool, error)
}

type publicationService struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo   repos.CourseRepo
	segmentRepo  repos.SegmentRepo
	questionRepo repos.QuestionRepo
	hub          *sse.SSEHub
}

func NewPublicationService(db *gorm.DB, baseLog *logger.Logger, courseRepo repos.CourseRepo, segmentRepo repos.SegmentRepo, questionRepo repos.QuestionRepo, hub *sse.SSEHub) PublicationService {
	return &publicationService{
		db:           db,
		log:          baseLog.With("service", "PublicationService"),
		courseRepo:   courseRepo,
		segmentRepo:  segmentRepo,
		questionRepo: questionRepo,
		hub:          hub,
	}
}

func (s *publicationService) PublishIfComplete(ctx context.Context, courseID uuid.UUID) (bool, error) {
	courses, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return false, fmt.Errorf("load course: %w", err)
	}
	if len(courses) == 0 {
		return false, fmt.Errorf("course %s not found", courseID)
	}
	course := courses[0]
	if course.Published {
		return false, nil
	}
	if !course.IsSegmented || course.TotalSegments == 0 {
		return false, nil
	}

	notCompleted, err := s.segmentRepo.CountNotCompleted(ctx, nil, courseID)
	if err != nil {
		return false, fmt.Errorf("count segments: %w", err)
	}
	if notCompleted > 0 {
		return false, nil
	}

	questionCount, err := s.questionRepo.CountByCourseID(ctx, nil, courseID)
	if err != nil {
		return false, fmt.Errorf("count questions: %w", err)
	}
	if questionCount == 0 {
		return false, nil
	}

	// Conditional update; only one of any concurrent callers wins.
	flipped, err := s.courseRepo.MarkPublished(ctx, nil, courseID)
	if err != nil {
		return false, fmt.Errorf("publish course: %w", err)
	}
	if !flipped {
		return false, nil
	}

	s.log.Info("Course published", "course_id", courseID, "segments", course.TotalSegments, "questions", questionCount)
	if s.hub != nil {
		s.hub.Broadcast(sse.SSEMessage{
			Channel: sse.CourseChannel(courseID),
			Event:   sse.SSEEventCoursePublished,
			Data: map[string]any{
				"course_id":      courseID,
				"total_segments": course.TotalSegments,
				"question_count": questionCount,
			},
		})
	}
	return true, nil
}
