package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type staticSynthesis struct {
	payload map[string]any
	err     error
}

func (s *staticSynthesis) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return s.payload, s.err
}

func testPlan(qType string) *types.QuestionPlan {
	concepts, _ := json.Marshal([]string{"gradients", "weights"})
	return &types.QuestionPlan{
		ID:           uuid.New(),
		SegmentID:    uuid.New(),
		Type:         qType,
		TimestampSec: 42,
		Objective:    "Assess understanding of gradients",
		KeyConcepts:  datatypes.JSON(concepts),
		ContextText:  "the lecture explains gradients and weights",
		Status:       types.PlanPlanned,
	}
}

func TestMCQGenerator_BuildsValidQuestion(t *testing.T) {
	log := testLogger(t)
	ai := newFakeSynthesis()
	gen := &mcqGenerator{log: log, ai: ai}

	q, err := gen.Generate(context.Background(), testPlan(types.QuestionTypeMultipleChoice))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := validateQuestion(q); err != nil {
		t.Fatalf("generated question invalid: %v", err)
	}
	if len(q.Options) != 4 {
		t.Fatalf("got %d options, want 4", len(q.Options))
	}
	correct := -1
	for i, o := range q.Options {
		if o.Position != i {
			t.Fatalf("option %d has position %d", i, o.Position)
		}
		if o.IsCorrect {
			correct = i
		}
	}
	if correct != 1 {
		t.Fatalf("correct option at %d, want 1", correct)
	}
	if q.TimestampSec != 42 {
		t.Fatalf("timestamp not carried from plan: %v", q.TimestampSec)
	}
}

func TestMCQGenerator_RejectsOutOfRangeCorrectIndex(t *testing.T) {
	gen := &mcqGenerator{log: testLogger(t), ai: &staticSynthesis{payload: map[string]any{
		"prompt":        "Q?",
		"options":       []any{"a", "b"},
		"correct_index": float64(5),
		"explanation":   "e",
	}}}
	_, err := gen.Generate(context.Background(), testPlan(types.QuestionTypeMultipleChoice))
	if !IsInvalidArtifact(err) {
		t.Fatalf("expected invalid artifact, got %v", err)
	}
}

func TestTrueFalseGenerator_MapsBooleanToOptions(t *testing.T) {
	gen := &trueFalseGenerator{log: testLogger(t), ai: &staticSynthesis{payload: map[string]any{
		"statement":   "Water boils at 100C at sea level.",
		"is_true":     false,
		"explanation": "Context dependent.",
	}}}
	q, err := gen.Generate(context.Background(), testPlan(types.QuestionTypeTrueFalse))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := validateQuestion(q); err != nil {
		t.Fatalf("generated question invalid: %v", err)
	}
	if q.Options[0].IsCorrect || !q.Options[1].IsCorrect {
		t.Fatalf("false statement should mark the False option correct: %+v", q.Options)
	}
}

func TestHotspotGenerator_NormalizesTarget(t *testing.T) {
	gen := &hotspotGenerator{log: testLogger(t), ai: newFakeSynthesis()}
	q, err := gen.Generate(context.Background(), testPlan(types.QuestionTypeHotspot))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := validateQuestion(q); err != nil {
		t.Fatalf("generated question invalid: %v", err)
	}
	correct := 0
	for _, b := range q.Boxes {
		if b.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		t.Fatalf("got %d correct boxes, want 1", correct)
	}
}

func TestHotspotGenerator_NoBoxesAndNoAnnotatorFails(t *testing.T) {
	gen := &hotspotGenerator{log: testLogger(t), ai: &staticSynthesis{payload: map[string]any{
		"prompt":       "Click it.",
		"explanation":  "e",
		"target_label": "thing",
		"boxes":        []any{},
	}}}
	_, err := gen.Generate(context.Background(), testPlan(types.QuestionTypeHotspot))
	if !IsInvalidArtifact(err) {
		t.Fatalf("expected invalid artifact, got %v", err)
	}
}

func TestHotspotGenerator_DropsMalformedBoxes(t *testing.T) {
	boxes := parseBoxes([]any{
		map[string]any{"label": "ok", "x": 0.1, "y": 0.1, "width": 0.2, "height": 0.2, "confidence": 0.9, "is_correct": true},
		map[string]any{"label": "negative", "x": -0.5, "y": 0.1, "width": 0.2, "height": 0.2},
		map[string]any{"label": "flat", "x": 0.1, "y": 0.1, "width": 0.0, "height": 0.2},
	}, uuid.New())
	if len(boxes) != 1 || boxes[0].Label != "ok" {
		t.Fatalf("malformed boxes not filtered: %+v", boxes)
	}
}

func TestSequencingGenerator_PreservesOrder(t *testing.T) {
	gen := &sequencingGenerator{log: testLogger(t), ai: newFakeSynthesis()}
	q, err := gen.Generate(context.Background(), testPlan(types.QuestionTypeSequencing))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := validateQuestion(q); err != nil {
		t.Fatalf("generated question invalid: %v", err)
	}
	want := []string{"first step", "second step", "third step"}
	for i, it := range q.Items {
		if it.Text != want[i] || it.Position != i {
			t.Fatalf("item %d out of order: %+v", i, it)
		}
	}
}

func TestParsingHelpers(t *testing.T) {
	if got := intFromAny(float64(3), -1); got != 3 {
		t.Fatalf("intFromAny(3.0) = %d", got)
	}
	if got := intFromAny("x", -1); got != -1 {
		t.Fatalf("intFromAny fallback = %d", got)
	}
	if got := floatFromAny(2, -1); got != 2 {
		t.Fatalf("floatFromAny(2) = %v", got)
	}
	ss := toStringSlice([]any{"a", 1, true})
	if len(ss) != 3 || ss[0] != "a" || ss[1] != "1" {
		t.Fatalf("toStringSlice = %v", ss)
	}
	if got := toStringSlice(nil); len(got) != 0 {
		t.Fatalf("toStringSlice(nil) = %v", got)
	}
}
