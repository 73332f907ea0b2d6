package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/vidcourse/vidcourse-backend/internal/types"
)

func TestMixCounts_LargestRemainderSumsToMax(t *testing.T) {
	mix := map[string]float64{
		types.QuestionTypeMultipleChoice: 0.4,
		types.QuestionTypeTrueFalse:      0.2,
		types.QuestionTypeHotspot:        0.2,
		types.QuestionTypeMatching:       0.1,
		types.QuestionTypeSequencing:     0.1,
	}
	counts := mixCounts(mix, 5)

	var total int
	for _, n := range counts {
		total += n
	}
	if total != 5 {
		t.Fatalf("counts sum to %d, want 5", total)
	}
	if counts[types.QuestionTypeMultipleChoice] != 2 {
		t.Fatalf("mcq count %d, want 2", counts[types.QuestionTypeMultipleChoice])
	}
	// Equal remainders break ties in the fixed type order, so matching beats
	// sequencing for the last slot.
	if counts[types.QuestionTypeMatching] != 1 || counts[types.QuestionTypeSequencing] != 0 {
		t.Fatalf("tie-break wrong: matching=%d sequencing=%d",
			counts[types.QuestionTypeMatching], counts[types.QuestionTypeSequencing])
	}

	// Deterministic across invocations.
	again := mixCounts(mix, 5)
	for qt, n := range counts {
		if again[qt] != n {
			t.Fatalf("counts not deterministic for %s: %d vs %d", qt, n, again[qt])
		}
	}
}

func TestMixCounts_EmptyMixFallsBackToMultipleChoice(t *testing.T) {
	counts := mixCounts(nil, 4)
	if counts[types.QuestionTypeMultipleChoice] != 4 {
		t.Fatalf("expected all slots to default to multiple choice, got %+v", counts)
	}
}

func TestKeyConcepts_RanksByFrequency(t *testing.T) {
	text := "gradient descent updates weights, gradient descent repeats, weights converge eventually"
	concepts := keyConcepts(text, 3)
	if len(concepts) == 0 {
		t.Fatalf("expected concepts from non-trivial text")
	}
	if concepts[0] != "gradient" && concepts[0] != "descent" {
		t.Fatalf("top concept %q, want a repeated term", concepts[0])
	}
	for _, c := range concepts {
		if len(c) < 4 {
			t.Fatalf("short concept %q slipped through", c)
		}
	}
}

func TestPlanSegment_CreatesBoundedDeterministicBatch(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	segs, err := h.segmenter.SegmentCourse(ctx, h.course.ID, flatTranscript(60, 30))
	if err != nil {
		t.Fatalf("segment: %v", err)
	}

	plans, err := h.planner.PlanSegment(ctx, segs[0])
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plans) != h.cfg.Planner.MaxQuestionsPerSegment {
		t.Fatalf("planned %d, want %d", len(plans), h.cfg.Planner.MaxQuestionsPerSegment)
	}
	for _, p := range plans {
		if p.Status != types.PlanPlanned {
			t.Fatalf("fresh plan status %q, want planned", p.Status)
		}
		if p.TimestampSec <= segs[0].StartSec || p.TimestampSec >= segs[0].EndSec {
			t.Fatalf("timestamp %.1f outside segment [%.1f, %.1f]", p.TimestampSec, segs[0].StartSec, segs[0].EndSec)
		}
		if p.ContextText == "" || p.Objective == "" {
			t.Fatalf("plan missing generation context")
		}
		var concepts []string
		if err := json.Unmarshal(p.KeyConcepts, &concepts); err != nil {
			t.Fatalf("key concepts not valid JSON: %v", err)
		}
	}

	seg := h.segments(t)[0]
	if seg.PlannedCount != len(plans) {
		t.Fatalf("planned_count %d, want %d", seg.PlannedCount, len(plans))
	}
	if seg.Status != types.SegmentProcessing {
		t.Fatalf("segment status %q, want processing", seg.Status)
	}
}

func TestPlanSegment_IsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	segs, err := h.segmenter.SegmentCourse(ctx, h.course.ID, flatTranscript(60, 30))
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	first, err := h.planner.PlanSegment(ctx, segs[0])
	if err != nil {
		t.Fatalf("first plan: %v", err)
	}
	second, err := h.planner.PlanSegment(ctx, segs[0])
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("plan count changed: %d -> %d", len(first), len(second))
	}
	seen := make(map[string]bool, len(first))
	for _, p := range first {
		seen[p.ID.String()] = true
	}
	for _, p := range second {
		if !seen[p.ID.String()] {
			t.Fatalf("second call invented plan %s", p.ID)
		}
	}
}
