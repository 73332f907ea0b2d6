package services

import (
	"strings"

	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// validateQuestion enforces the structural rules a question must satisfy
// before it is persisted. A question that fails here is treated as a failed
// generation attempt, never written to the database.
func validateQuestion(q *types.Question) error {
	if q == nil {
		return errInvalidArtifact("question is nil")
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return errInvalidArtifact("empty prompt")
	}
	if !types.ValidQuestionType(q.Type) {
		return errInvalidArtifact("unknown question type %q", q.Type)
	}

	switch q.Type {
	case types.QuestionTypeMultipleChoice:
		return validateOptions(q, 2)
	case types.QuestionTypeTrueFalse:
		return validateOptions(q, 2)
	case types.QuestionTypeHotspot:
		return validateBoxes(q)
	case types.QuestionTypeMatching:
		if len(q.Pairs) == 0 {
			return errInvalidArtifact("matching question has no pairs")
		}
		for _, p := range q.Pairs {
			if strings.TrimSpace(p.Left) == "" || strings.TrimSpace(p.Right) == "" {
				return errInvalidArtifact("matching pair has an empty side")
			}
		}
	case types.QuestionTypeSequencing:
		if len(q.Items) < 2 {
			return errInvalidArtifact("sequencing question needs at least 2 items, got %d", len(q.Items))
		}
		for _, it := range q.Items {
			if strings.TrimSpace(it.Text) == "" {
				return errInvalidArtifact("sequence item has empty text")
			}
		}
	}
	return nil
}

func validateOptions(q *types.Question, min int) error {
	if len(q.Options) < min {
		return errInvalidArtifact("question needs at least %d options, got %d", min, len(q.Options))
	}
	correct := 0
	for _, o := range q.Options {
		if strings.TrimSpace(o.Text) == "" {
			return errInvalidArtifact("option has empty text")
		}
		if o.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return errInvalidArtifact("expected exactly 1 correct option, got %d", correct)
	}
	return nil
}

func validateBoxes(q *types.Question) error {
	if len(q.Boxes) == 0 {
		return errInvalidArtifact("hotspot question has no bounding boxes")
	}
	correct := 0
	for _, b := range q.Boxes {
		if b.X < 0 || b.Y < 0 || b.X > 1 || b.Y > 1 {
			return errInvalidArtifact("box origin out of [0,1]: (%f, %f)", b.X, b.Y)
		}
		if b.Width <= 0 || b.Height <= 0 {
			return errInvalidArtifact("box has non-positive dimensions")
		}
		if b.X+b.Width > 1.0001 || b.Y+b.Height > 1.0001 {
			return errInvalidArtifact("box extends past the frame edge")
		}
		if b.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return errInvalidArtifact("expected exactly 1 correct box, got %d", correct)
	}
	return nil
}
