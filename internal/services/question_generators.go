package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// DefaultGenerators wires one generator per supported question type.
// frameURL may be empty and annotator nil; only the hotspot generator uses
// them, as a fallback box source.
func DefaultGenerators(log *logger.Logger, ai SynthesisClient, annotator FrameAnnotator, frameURLTemplate string) []QuestionGenerator {
	return []QuestionGenerator{
		&mcqGenerator{log: log.With("generator", "mcq"), ai: ai},
		&trueFalseGenerator{log: log.With("generator", "true_false"), ai: ai},
		&hotspotGenerator{log: log.With("generator", "hotspot"), ai: ai, annotator: annotator, frameURLTemplate: frameURLTemplate},
		&matchingGenerator{log: log.With("generator", "matching"), ai: ai},
		&sequencingGenerator{log: log.With("generator", "sequencing"), ai: ai},
	}
}

func basePrompt(plan *types.QuestionPlan) string {
	var concepts []string
	_ = json.Unmarshal(plan.KeyConcepts, &concepts)
	return fmt.Sprintf(
		"Learning objective: %s\nKey concepts: %s\nTarget timestamp: %.0fs\n\nTranscript excerpt:\n%s\n\n",
		plan.Objective, strings.Join(concepts, ", "), plan.TimestampSec, plan.ContextText,
	)
}

func newQuestion(plan *types.QuestionPlan, prompt, explanation string) *types.Question {
	now := time.Now()
	return &types.Question{
		ID:           uuid.New(),
		PlanID:       plan.ID,
		SegmentID:    plan.SegmentID,
		Type:         plan.Type,
		Prompt:       prompt,
		Explanation:  explanation,
		TimestampSec: plan.TimestampSec,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ---- multiple choice ----

type mcqGenerator struct {
	log *logger.Logger
	ai  SynthesisClient
}

func (g *mcqGenerator) Type() string { return types.QuestionTypeMultipleChoice }

func (g *mcqGenerator) Generate(ctx context.Context, plan *types.QuestionPlan) (*types.Question, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":        map[string]any{"type": "string"},
			"options":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"correct_index": map[string]any{"type": "integer"},
			"explanation":   map[string]any{"type": "string"},
		},
		"required":             []string{"prompt", "options", "correct_index", "explanation"},
		"additionalProperties": false,
	}

	out, err := g.ai.GenerateJSON(ctx,
		"You write fair multiple-choice questions grounded strictly in the provided transcript excerpt.",
		basePrompt(plan)+"Write one multiple-choice question with exactly 4 plausible options.",
		"multiple_choice_question",
		schema,
	)
	if err != nil {
		return nil, err
	}

	opts := toStringSlice(out["options"])
	correct := intFromAny(out["correct_index"], -1)
	if correct < 0 || correct >= len(opts) {
		return nil, errInvalidArtifact("correct_index %d out of range for %d options", correct, len(opts))
	}

	q := newQuestion(plan, fmt.Sprint(out["prompt"]), fmt.Sprint(out["explanation"]))
	for i, opt := range opts {
		q.Options = append(q.Options, &types.QuestionOption{
			ID:         uuid.New(),
			QuestionID: q.ID,
			Position:   i,
			Text:       opt,
			IsCorrect:  i == correct,
		})
	}
	return q, nil
}

// ---- true / false ----

type trueFalseGenerator struct {
	log *logger.Logger
	ai  SynthesisClient
}

func (g *trueFalseGenerator) Type() string { return types.QuestionTypeTrueFalse }

func (g *trueFalseGenerator) Generate(ctx context.Context, plan *types.QuestionPlan) (*types.Question, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"statement":   map[string]any{"type": "string"},
			"is_true":     map[string]any{"type": "boolean"},
			"explanation": map[string]any{"type": "string"},
		},
		"required":             []string{"statement", "is_true", "explanation"},
		"additionalProperties": false,
	}

	out, err := g.ai.GenerateJSON(ctx,
		"You write true/false statements grounded strictly in the provided transcript excerpt. Avoid trick phrasing.",
		basePrompt(plan)+"Write one true-or-false statement about the content.",
		"true_false_question",
		schema,
	)
	if err != nil {
		return nil, err
	}

	isTrue, ok := out["is_true"].(bool)
	if !ok {
		return nil, errInvalidArtifact("is_true missing or not boolean")
	}

	q := newQuestion(plan, fmt.Sprint(out["statement"]), fmt.Sprint(out["explanation"]))
	q.Options = []*types.QuestionOption{
		{ID: uuid.New(), QuestionID: q.ID, Position: 0, Text: "True", IsCorrect: isTrue},
		{ID: uuid.New(), QuestionID: q.ID, Position: 1, Text: "False", IsCorrect: !isTrue},
	}
	return q, nil
}

// ---- hotspot ----

type hotspotGenerator struct {
	log              *logger.Logger
	ai               SynthesisClient
	annotator        FrameAnnotator
	frameURLTemplate string
}

func (g *hotspotGenerator) Type() string { return types.QuestionTypeHotspot }

func (g *hotspotGenerator) Generate(ctx context.Context, plan *types.QuestionPlan) (*types.Question, error) {
	boxSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label":      map[string]any{"type": "string"},
			"x":          map[string]any{"type": "number"},
			"y":          map[string]any{"type": "number"},
			"width":      map[string]any{"type": "number"},
			"height":     map[string]any{"type": "number"},
			"confidence": map[string]any{"type": "number"},
			"is_correct": map[string]any{"type": "boolean"},
		},
		"required":             []string{"label", "x", "y", "width", "height", "confidence", "is_correct"},
		"additionalProperties": false,
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":       map[string]any{"type": "string"},
			"explanation":  map[string]any{"type": "string"},
			"target_label": map[string]any{"type": "string"},
			"boxes":        map[string]any{"type": "array", "items": boxSchema},
		},
		"required":             []string{"prompt", "explanation", "target_label", "boxes"},
		"additionalProperties": false,
	}

	out, err := g.ai.GenerateJSON(ctx,
		"You design visual hotspot questions for a video frame. Boxes use normalized coordinates in [0,1]. Exactly one box is the correct target.",
		basePrompt(plan)+"Write one hotspot question asking the learner to click a region of the frame at the target timestamp.",
		"hotspot_question",
		schema,
	)
	if err != nil {
		return nil, err
	}

	q := newQuestion(plan, fmt.Sprint(out["prompt"]), fmt.Sprint(out["explanation"]))
	boxes := parseBoxes(out["boxes"], q.ID)

	if len(boxes) == 0 && g.annotator != nil && g.frameURLTemplate != "" {
		boxes = g.proposeBoxes(ctx, plan, q.ID, fmt.Sprint(out["target_label"]))
	}
	if len(boxes) == 0 {
		return nil, errInvalidArtifact("hotspot question has no bounding boxes")
	}
	ensureOneCorrect(boxes, fmt.Sprint(out["target_label"]))

	q.Boxes = boxes
	return q, nil
}

func parseBoxes(v any, questionID uuid.UUID) []*types.BoundingBox {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []*types.BoundingBox
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b := &types.BoundingBox{
			ID:         uuid.New(),
			QuestionID: questionID,
			Label:      fmt.Sprint(m["label"]),
			X:          floatFromAny(m["x"], -1),
			Y:          floatFromAny(m["y"], -1),
			Width:      floatFromAny(m["width"], 0),
			Height:     floatFromAny(m["height"], 0),
			Confidence: floatFromAny(m["confidence"], 0),
		}
		if correct, ok := m["is_correct"].(bool); ok {
			b.IsCorrect = correct
		}
		if b.X < 0 || b.Y < 0 || b.X > 1 || b.Y > 1 || b.Width <= 0 || b.Height <= 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (g *hotspotGenerator) proposeBoxes(ctx context.Context, plan *types.QuestionPlan, questionID uuid.UUID, targetLabel string) []*types.BoundingBox {
	frameURI := fmt.Sprintf(g.frameURLTemplate, int(plan.TimestampSec))
	proposed, err := g.annotator.LocalizeObjects(ctx, frameURI)
	if err != nil {
		g.log.Warn("Frame localization failed", "plan_id", plan.ID, "error", err)
		return nil
	}
	var out []*types.BoundingBox
	for _, p := range proposed {
		out = append(out, &types.BoundingBox{
			ID:         uuid.New(),
			QuestionID: questionID,
			Label:      p.Label,
			X:          p.X,
			Y:          p.Y,
			Width:      p.Width,
			Height:     p.Height,
			Confidence: p.Confidence,
			IsCorrect:  strings.EqualFold(strings.TrimSpace(p.Label), strings.TrimSpace(targetLabel)),
		})
	}
	return out
}

// ensureOneCorrect normalizes the is_correct flags so exactly one box is the
// target: prefer the label match, else the highest-confidence box.
func ensureOneCorrect(boxes []*types.BoundingBox, targetLabel string) {
	correctIdx := -1
	for i, b := range boxes {
		if b.IsCorrect && correctIdx == -1 {
			correctIdx = i
		}
		b.IsCorrect = false
	}
	if correctIdx == -1 && targetLabel != "" {
		for i, b := range boxes {
			if strings.EqualFold(strings.TrimSpace(b.Label), strings.TrimSpace(targetLabel)) {
				correctIdx = i
				break
			}
		}
	}
	if correctIdx == -1 {
		best := 0
		for i, b := range boxes {
			if b.Confidence > boxes[best].Confidence {
				best = i
			}
		}
		correctIdx = best
	}
	boxes[correctIdx].IsCorrect = true
}

// ---- matching ----

type matchingGenerator struct {
	log *logger.Logger
	ai  SynthesisClient
}

func (g *matchingGenerator) Type() string { return types.QuestionTypeMatching }

func (g *matchingGenerator) Generate(ctx context.Context, plan *types.QuestionPlan) (*types.Question, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":      map[string]any{"type": "string"},
			"explanation": map[string]any{"type": "string"},
			"pairs": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"left":  map[string]any{"type": "string"},
						"right": map[string]any{"type": "string"},
					},
					"required":             []string{"left", "right"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"prompt", "explanation", "pairs"},
		"additionalProperties": false,
	}

	out, err := g.ai.GenerateJSON(ctx,
		"You write matching exercises grounded strictly in the provided transcript excerpt.",
		basePrompt(plan)+"Write one matching question with 3 to 5 pairs of related items.",
		"matching_question",
		schema,
	)
	if err != nil {
		return nil, err
	}

	q := newQuestion(plan, fmt.Sprint(out["prompt"]), fmt.Sprint(out["explanation"]))
	raw, _ := out["pairs"].([]any)
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		left := strings.TrimSpace(fmt.Sprint(m["left"]))
		right := strings.TrimSpace(fmt.Sprint(m["right"]))
		if left == "" || right == "" {
			continue
		}
		q.Pairs = append(q.Pairs, &types.MatchingPair{
			ID:         uuid.New(),
			QuestionID: q.ID,
			Position:   i,
			Left:       left,
			Right:      right,
		})
	}
	return q, nil
}

// ---- sequencing ----

type sequencingGenerator struct {
	log *logger.Logger
	ai  SynthesisClient
}

func (g *sequencingGenerator) Type() string { return types.QuestionTypeSequencing }

func (g *sequencingGenerator) Generate(ctx context.Context, plan *types.QuestionPlan) (*types.Question, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":      map[string]any{"type": "string"},
			"explanation": map[string]any{"type": "string"},
			"items":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"prompt", "explanation", "items"},
		"additionalProperties": false,
	}

	out, err := g.ai.GenerateJSON(ctx,
		"You write ordering exercises grounded strictly in the provided transcript excerpt. Items must be listed in the correct canonical order.",
		basePrompt(plan)+"Write one sequencing question with 3 to 6 steps in their correct order.",
		"sequencing_question",
		schema,
	)
	if err != nil {
		return nil, err
	}

	q := newQuestion(plan, fmt.Sprint(out["prompt"]), fmt.Sprint(out["explanation"]))
	for i, item := range toStringSlice(out["items"]) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		q.Items = append(q.Items, &types.SequenceItem{
			ID:         uuid.New(),
			QuestionID: q.ID,
			Position:   i,
			Text:       item,
		})
	}
	return q, nil
}

// ---- shared parsing helpers ----

func toStringSlice(v any) []string {
	if v == nil {
		return []string{}
	}
	a, ok := v.([]any)
	if !ok {
		if ss, ok2 := v.([]string); ok2 {
			return ss
		}
		return []string{}
	}
	out := make([]string, 0, len(a))
	for _, x := range a {
		out = append(out, fmt.Sprint(x))
	}
	return out
}

func intFromAny(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case json.Number:
		i, _ := t.Int64()
		return int(i)
	default:
		return def
	}
}

func floatFromAny(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return def
	}
}
