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

// qualityDimensions in rubric order. The overall score is their mean.
var qualityDimensions = []string{
	"educational_value",
	"clarity",
	"cognitive_level",
	"bloom_alignment",
	"misconception_handling",
	"explanation_quality",
}

type QualityService interface {
	// ScoreQuestion runs the rubric against one question and records the
	// metric. Scoring is advisory: a low score is persisted, never blocks.
	// A question that already has a metric is skipped.
	ScoreQuestion(ctx context.Context, q *types.Question) (*types.QualityMetric, error)
	// VerifyCourse scores every unscored question on the course. Per-question
	// scoring errors are logged and skipped so one bad rubric call never
	// stalls publication.
	VerifyCourse(ctx context.Context, courseID uuid.UUID, onDone func(done, total int)) error
}

type qualityService struct {
	db  *gorm.DB
	log *logger.Logger
	cfg *config.PipelineConfig
	ai  SynthesisClient

	segmentRepo repos.SegmentRepo
	questionRep repos.QuestionRepo
	metricRepo  repos.QualityMetricRepo
}

func NewQualityService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg *config.PipelineConfig,
	ai SynthesisClient,
	segmentRepo repos.SegmentRepo,
	questionRepo repos.QuestionRepo,
	metricRepo repos.QualityMetricRepo,
) QualityService {
	return &qualityService{
		db:          db,
		log:         baseLog.With("service", "QualityService"),
		cfg:         cfg,
		ai:          ai,
		segmentRepo: segmentRepo,
		questionRep: questionRepo,
		metricRepo:  metricRepo,
	}
}

func (s *qualityService) ScoreQuestion(ctx context.Context, q *types.Question) (*types.QualityMetric, error) {
	props := map[string]any{}
	for _, dim := range qualityDimensions {
		props[dim] = map[string]any{"type": "number"}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             qualityDimensions,
		"additionalProperties": false,
	}

	user := fmt.Sprintf(
		"Question type: %s\nPrompt: %s\nExplanation: %s\n\nScore each rubric dimension from 0 to 1.",
		q.Type, q.Prompt, q.Explanation,
	)
	out, err := s.ai.GenerateJSON(ctx,
		"You are an instructional-design reviewer. Score the question on each rubric dimension in [0,1].",
		user,
		"question_quality_scores",
		schema,
	)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(qualityDimensions))
	var sum float64
	for _, dim := range qualityDimensions {
		v := floatFromAny(out[dim], -1)
		if v < 0 || v > 1 {
			return nil, errInvalidArtifact("rubric score %s=%v out of [0,1]", dim, out[dim])
		}
		scores[dim] = v
		sum += v
	}
	overall := sum / float64(len(qualityDimensions))

	m := &types.QualityMetric{
		ID:                    uuid.New(),
		QuestionID:            q.ID,
		EducationalValue:      scores["educational_value"],
		Clarity:               scores["clarity"],
		CognitiveLevel:        scores["cognitive_level"],
		BloomAlignment:        scores["bloom_alignment"],
		MisconceptionHandling: scores["misconception_handling"],
		ExplanationQuality:    scores["explanation_quality"],
		OverallScore:          overall,
		MeetsThreshold:        overall >= s.cfg.Quality.Threshold,
		CreatedAt:             time.Now(),
	}
	created, err := s.metricRepo.Create(ctx, nil, m)
	if err != nil {
		return nil, fmt.Errorf("persist quality metric: %w", err)
	}
	if !created {
		// Another pass scored it first.
		existing, err := s.metricRepo.GetByQuestionIDs(ctx, nil, []uuid.UUID{q.ID})
		if err != nil || len(existing) == 0 {
			return m, nil
		}
		return existing[0], nil
	}
	return m, nil
}

func (s *qualityService) VerifyCourse(ctx context.Context, courseID uuid.UUID, onDone func(done, total int)) error {
	segments, err := s.segmentRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		return fmt.Errorf("load segments: %w", err)
	}
	segmentIDs := make([]uuid.UUID, 0, len(segments))
	for _, seg := range segments {
		segmentIDs = append(segmentIDs, seg.ID)
	}
	questions, err := s.questionRep.GetBySegmentIDs(ctx, nil, segmentIDs)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil
	}

	questionIDs := make([]uuid.UUID, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
	}
	existing, err := s.metricRepo.GetByQuestionIDs(ctx, nil, questionIDs)
	if err != nil {
		return fmt.Errorf("load quality metrics: %w", err)
	}
	scored := make(map[uuid.UUID]bool, len(existing))
	for _, m := range existing {
		scored[m.QuestionID] = true
	}

	total := len(questions)
	done := len(existing)
	if onDone != nil {
		onDone(done, total)
	}
	for _, q := range questions {
		if scored[q.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.ScoreQuestion(ctx, q); err != nil {
			s.log.Warn("Question scoring failed", "question_id", q.ID, "error", err)
		}
		done++
		if onDone != nil {
			onDone(done, total)
		}
	}
	return nil
}
