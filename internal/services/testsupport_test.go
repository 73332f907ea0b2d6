package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/db"
	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func testConfig() *config.PipelineConfig {
	cfg := config.Default()
	cfg.Segmenter.TargetSeconds = 60
	cfg.Segmenter.MinSeconds = 10
	cfg.Segmenter.MaxSeconds = 90
	cfg.Generation.DispatchDelayMillis = 0
	cfg.Generation.SynthesisTimeoutSecs = 5
	// Shared-cache sqlite allows a single writer; concurrent workers
	// trip "database table is locked" under load.
	cfg.Generation.Workers = 1
	return cfg
}

// fakeSynthesis answers every schema with a minimal valid payload. Failures
// are injected per schema name: the first failBefore[name] calls error out.
type fakeSynthesis struct {
	mu         sync.Mutex
	calls      map[string]int
	failBefore map[string]int
}

func newFakeSynthesis() *fakeSynthesis {
	return &fakeSynthesis{
		calls:      make(map[string]int),
		failBefore: make(map[string]int),
	}
}

func (f *fakeSynthesis) callCount(schemaName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schemaName]
}

func (f *fakeSynthesis) GenerateJSON(_ context.Context, _, _, schemaName string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls[schemaName]++
	n := f.calls[schemaName]
	limit := f.failBefore[schemaName]
	f.mu.Unlock()

	if n <= limit {
		return nil, fmt.Errorf("synthetic provider outage for %s (call %d)", schemaName, n)
	}

	switch schemaName {
	case "multiple_choice_question":
		return map[string]any{
			"prompt":        "Which concept was introduced?",
			"options":       []any{"alpha", "beta", "gamma", "delta"},
			"correct_index": float64(1),
			"explanation":   "Beta was the focus of this part.",
		}, nil
	case "true_false_question":
		return map[string]any{
			"statement":   "The narrator defines the key term.",
			"is_true":     true,
			"explanation": "The definition appears in this part.",
		}, nil
	case "hotspot_question":
		return map[string]any{
			"prompt":       "Click the highlighted diagram.",
			"explanation":  "The diagram is shown at this timestamp.",
			"target_label": "diagram",
			"boxes": []any{
				map[string]any{
					"label": "diagram", "x": 0.1, "y": 0.2, "width": 0.3, "height": 0.3,
					"confidence": 0.95, "is_correct": true,
				},
				map[string]any{
					"label": "caption", "x": 0.5, "y": 0.7, "width": 0.2, "height": 0.1,
					"confidence": 0.6, "is_correct": false,
				},
			},
		}, nil
	case "matching_question":
		return map[string]any{
			"prompt":      "Match each term to its definition.",
			"explanation": "All pairs come from this part.",
			"pairs": []any{
				map[string]any{"left": "term one", "right": "definition one"},
				map[string]any{"left": "term two", "right": "definition two"},
				map[string]any{"left": "term three", "right": "definition three"},
			},
		}, nil
	case "sequencing_question":
		return map[string]any{
			"prompt":      "Order the steps as presented.",
			"explanation": "The narrator walks through them in order.",
			"items":       []any{"first step", "second step", "third step"},
		}, nil
	case "question_quality_scores":
		return map[string]any{
			"educational_value":      0.9,
			"clarity":                0.8,
			"cognitive_level":        0.85,
			"bloom_alignment":        0.75,
			"misconception_handling": 0.7,
			"explanation_quality":    0.9,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected schema %q", schemaName)
	}
}

type fakeTranscripts struct {
	transcript types.Transcript
	err        error
}

func (f *fakeTranscripts) Fetch(context.Context, string) (types.Transcript, error) {
	return f.transcript, f.err
}

// flatTranscript yields chunks of chunkSec seconds covering totalSec.
func flatTranscript(totalSec, chunkSec float64) types.Transcript {
	var out types.Transcript
	for start := 0.0; start < totalSec; start += chunkSec {
		end := start + chunkSec
		if end > totalSec {
			end = totalSec
		}
		out = append(out, types.TranscriptChunk{
			StartSec: start,
			EndSec:   end,
			Text:     fmt.Sprintf("narration covering seconds %.0f to %.0f of the lecture", start, end),
		})
	}
	return out
}

type pipelineHarness struct {
	db  *gorm.DB
	cfg *config.PipelineConfig
	ai  *fakeSynthesis

	courseRepo   repos.CourseRepo
	segmentRepo  repos.SegmentRepo
	planRepo     repos.QuestionPlanRepo
	questionRepo repos.QuestionRepo
	metricRepo   repos.QualityMetricRepo
	progressRepo repos.ProgressRepo

	segmenter   SegmenterService
	planner     PlannerService
	pool        *GeneratorPool
	quality     QualityService
	progress    ProgressService
	publication PublicationService
	recovery    RecoveryService

	course    *types.Course
	sessionID uuid.UUID
}

func newHarness(t *testing.T, transcript types.Transcript, cfg *config.PipelineConfig) *pipelineHarness {
	return newHarnessWith(t, transcript, cfg, nil)
}

// newHarnessWith optionally wraps the synthesis fake, letting a test inject
// failures that target specific calls rather than whole schemas.
func newHarnessWith(t *testing.T, transcript types.Transcript, cfg *config.PipelineConfig, wrap func(SynthesisClient) SynthesisClient) *pipelineHarness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	gdb := openTestDB(t)
	log := testLogger(t)
	ai := newFakeSynthesis()
	var synth SynthesisClient = ai
	if wrap != nil {
		synth = wrap(ai)
	}

	h := &pipelineHarness{
		db:           gdb,
		cfg:          cfg,
		ai:           ai,
		courseRepo:   repos.NewCourseRepo(gdb, log),
		segmentRepo:  repos.NewSegmentRepo(gdb, log),
		planRepo:     repos.NewQuestionPlanRepo(gdb, log),
		questionRepo: repos.NewQuestionRepo(gdb, log),
		metricRepo:   repos.NewQualityMetricRepo(gdb, log),
		progressRepo: repos.NewProgressRepo(gdb, log),
		sessionID:    uuid.New(),
	}

	h.segmenter = NewSegmenterService(gdb, log, cfg, h.courseRepo, h.segmentRepo)
	h.planner = NewPlannerService(gdb, log, cfg, h.segmentRepo, h.planRepo)
	generators := DefaultGenerators(log, synth, nil, "")
	h.pool = NewGeneratorPool(gdb, log, cfg, h.planRepo, h.questionRepo, h.segmentRepo, generators)
	h.quality = NewQualityService(gdb, log, cfg, synth, h.segmentRepo, h.questionRepo, h.metricRepo)
	h.progress = NewProgressService(log, cfg, h.progressRepo, nil, nil)
	h.publication = NewPublicationService(gdb, log, h.courseRepo, h.segmentRepo, h.questionRepo, nil)
	h.recovery = NewRecoveryService(
		gdb, log, cfg,
		h.courseRepo, h.segmentRepo, h.planRepo,
		&fakeTranscripts{transcript: transcript},
		h.segmenter, h.planner, h.pool, h.quality, h.progress, h.publication,
	)

	now := time.Now()
	h.course = &types.Course{
		ID:        uuid.New(),
		Title:     "Intro Lecture",
		SourceRef: "videos/intro.mp4",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := h.courseRepo.Create(context.Background(), nil, []*types.Course{h.course}); err != nil {
		t.Fatalf("create course: %v", err)
	}
	return h
}

func (h *pipelineHarness) reloadCourse(t *testing.T) *types.Course {
	t.Helper()
	courses, err := h.courseRepo.GetByIDs(context.Background(), nil, []uuid.UUID{h.course.ID})
	if err != nil || len(courses) == 0 {
		t.Fatalf("reload course: %v", err)
	}
	return courses[0]
}

func (h *pipelineHarness) segments(t *testing.T) []*types.Segment {
	t.Helper()
	segs, err := h.segmentRepo.GetByCourseID(context.Background(), nil, h.course.ID)
	if err != nil {
		t.Fatalf("load segments: %v", err)
	}
	return segs
}

func (h *pipelineHarness) questionCount(t *testing.T) int64 {
	t.Helper()
	n, err := h.questionRepo.CountByCourseID(context.Background(), nil, h.course.ID)
	if err != nil {
		t.Fatalf("count questions: %v", err)
	}
	return n
}

func (h *pipelineHarness) progressRow(t *testing.T) *types.ProcessingProgress {
	t.Helper()
	row, err := h.progressRepo.GetBySession(context.Background(), nil, h.course.ID, h.sessionID)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	return row
}
