package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type SegmenterService interface {
	// SegmentCourse splits the transcript into contiguous pending segments
	// and marks the course segmented with its final segment count. It runs at
	// most once per course: if segments already exist they are returned
	// unchanged.
	SegmentCourse(ctx context.Context, courseID uuid.UUID, transcript types.Transcript) ([]*types.Segment, error)
}

type segmenterService struct {
	db  *gorm.DB
	log *logger.Logger
	cfg *config.PipelineConfig

	courseRepo  repos.CourseRepo
	segmentRepo repos.SegmentRepo
}

func NewSegmenterService(db *gorm.DB, baseLog *logger.Logger, cfg *config.PipelineConfig, courseRepo repos.CourseRepo, segmentRepo repos.SegmentRepo) SegmenterService {
	return &segmenterService{
		db:          db,
		log:         baseLog.With("service", "SegmenterService"),
		cfg:         cfg,
		courseRepo:  courseRepo,
		segmentRepo: segmentRepo,
	}
}

func (s *segmenterService) SegmentCourse(ctx context.Context, courseID uuid.UUID, transcript types.Transcript) ([]*types.Segment, error) {
	existing, err := s.segmentRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	windows, err := splitTranscript(transcript, s.cfg.Segmenter)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	segments := make([]*types.Segment, 0, len(windows))
	for i, w := range windows {
		segments = append(segments, &types.Segment{
			ID:        uuid.New(),
			CourseID:  courseID,
			Index:     i,
			StartSec:  w.start,
			EndSec:    w.end,
			Text:      w.text,
			Status:    types.SegmentPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.segmentRepo.Create(ctx, tx, segments); err != nil {
			return fmt.Errorf("create segments: %w", err)
		}
		// Denominator is fixed before any generation starts so the
		// publication gate always has a stable total.
		if err := s.courseRepo.MarkSegmented(ctx, tx, courseID, len(segments)); err != nil {
			return fmt.Errorf("mark course segmented: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Course segmented", "course_id", courseID, "segments", len(segments))
	return segments, nil
}

type window struct {
	start float64
	end   float64
	text  string
}

func splitTranscript(transcript types.Transcript, cfg config.SegmenterConfig) ([]window, error) {
	cleaned := make(types.Transcript, 0, len(transcript))
	for _, ch := range transcript {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		cleaned = append(cleaned, ch)
	}
	if len(cleaned) == 0 {
		return nil, &StructuralError{Stage: types.StageSegmenting, Reason: "transcript is empty"}
	}
	if cleaned.DurationSec() < cfg.MinSeconds {
		return nil, &StructuralError{
			Stage:  types.StageSegmenting,
			Reason: fmt.Sprintf("transcript too short: %.1fs < %.1fs minimum", cleaned.DurationSec(), cfg.MinSeconds),
		}
	}

	var windows []window
	cur := window{start: cleaned[0].StartSec, end: cleaned[0].StartSec}
	var parts []string

	flush := func() {
		if len(parts) == 0 {
			return
		}
		cur.text = strings.Join(parts, " ")
		windows = append(windows, cur)
		parts = nil
	}

	for _, ch := range cleaned {
		if len(parts) > 0 && (ch.EndSec-cur.start) > cfg.MaxSeconds {
			flush()
			cur = window{start: ch.StartSec}
		}
		parts = append(parts, strings.TrimSpace(ch.Text))
		cur.end = ch.EndSec
		if cur.end-cur.start >= cfg.TargetSeconds {
			flush()
			cur = window{start: ch.EndSec}
		}
	}
	flush()

	// A short tail folds into the previous window rather than producing a
	// segment below the minimum.
	if n := len(windows); n > 1 && windows[n-1].end-windows[n-1].start < cfg.MinSeconds {
		tail := windows[n-1]
		windows = windows[:n-1]
		last := &windows[n-2]
		last.end = tail.end
		last.text = last.text + " " + tail.text
	}

	for _, w := range windows {
		if w.end <= w.start {
			return nil, &StructuralError{Stage: types.StageSegmenting, Reason: "zero-length segment produced"}
		}
	}
	return windows, nil
}
