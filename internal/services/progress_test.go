package services

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/vidcourse/vidcourse-backend/internal/types"
)

func TestProgress_OverallFractionIsWeightedByStage(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	if err := h.progress.SetStage(ctx, h.course.ID, h.sessionID, types.StageGenerating, 0.5, nil); err != nil {
		t.Fatalf("set stage: %v", err)
	}

	row := h.progressRow(t)
	if row == nil {
		t.Fatalf("no progress row")
	}
	// init .05 + segmenting .05 + planning .10 + half of generating .70
	want := 0.05 + 0.05 + 0.10 + 0.35
	if math.Abs(row.OverallFraction-want) > 1e-9 {
		t.Fatalf("overall %v, want %v", row.OverallFraction, want)
	}
	if row.Stage != types.StageGenerating || row.StageFraction != 0.5 {
		t.Fatalf("stage row wrong: %+v", row)
	}
}

func TestProgress_OverallNeverRegressesWithinSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	if err := h.progress.SetStage(ctx, h.course.ID, h.sessionID, types.StageGenerating, 0.5, nil); err != nil {
		t.Fatalf("set stage: %v", err)
	}
	before := h.progressRow(t).OverallFraction

	// A stale out-of-order update from an earlier stage.
	if err := h.progress.SetStage(ctx, h.course.ID, h.sessionID, types.StagePlanning, 0, nil); err != nil {
		t.Fatalf("stale update: %v", err)
	}
	row := h.progressRow(t)
	if row.OverallFraction < before {
		t.Fatalf("overall regressed: %v -> %v", before, row.OverallFraction)
	}
}

func TestProgress_TerminalRowIsFrozen(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	if err := h.progress.Fail(ctx, h.course.ID, h.sessionID, types.StageSegmenting, "transcript unavailable"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := h.progress.SetStage(ctx, h.course.ID, h.sessionID, types.StageGenerating, 0.9, nil); err != nil {
		t.Fatalf("straggler update: %v", err)
	}

	row := h.progressRow(t)
	if row.Stage != types.StageFailed {
		t.Fatalf("terminal row overwritten, stage now %q", row.Stage)
	}
}

func TestProgress_SessionsAreIndependent(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	otherSession := uuid.New()

	if err := h.progress.Fail(ctx, h.course.ID, h.sessionID, types.StageGenerating, "gave up"); err != nil {
		t.Fatalf("fail first session: %v", err)
	}
	if err := h.progress.SetStage(ctx, h.course.ID, otherSession, types.StageSegmenting, 1, nil); err != nil {
		t.Fatalf("start second session: %v", err)
	}

	fresh, err := h.progress.GetSession(ctx, h.course.ID, otherSession)
	if err != nil || fresh == nil {
		t.Fatalf("load second session: %v", err)
	}
	if fresh.Stage != types.StageSegmenting {
		t.Fatalf("second session stage %q", fresh.Stage)
	}

	// The latest row for the course reflects the newer session.
	latest, err := h.progress.GetStatus(ctx, h.course.ID)
	if err != nil || latest == nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.SessionID != otherSession {
		t.Fatalf("latest row from session %s, want %s", latest.SessionID, otherSession)
	}
}

func TestProgress_RepeatedUpdatesKeepOneRowPerSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	stages := []string{types.StageInitialization, types.StageSegmenting, types.StagePlanning, types.StageGenerating}
	for _, st := range stages {
		if err := h.progress.SetStage(ctx, h.course.ID, h.sessionID, st, 1, nil); err != nil {
			t.Fatalf("set %s: %v", st, err)
		}
	}

	var n int64
	if err := h.db.Model(&types.ProcessingProgress{}).
		Where("course_id = ?", h.course.ID).
		Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single upserted row, got %d", n)
	}
}

func TestProgress_FailedSessionKeepsReachedFraction(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	if err := h.progress.SetStage(ctx, h.course.ID, h.sessionID, types.StageGenerating, 0.5, nil); err != nil {
		t.Fatalf("set stage: %v", err)
	}
	reached := h.progressRow(t).OverallFraction

	if err := h.progress.Fail(ctx, h.course.ID, h.sessionID, types.StageGenerating, "provider outage"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	row := h.progressRow(t)
	if row.Stage != types.StageFailed {
		t.Fatalf("stage %q, want failed", row.Stage)
	}
	if math.Abs(row.OverallFraction-reached) > 1e-9 {
		t.Fatalf("failed session overall %v, want the reached fraction %v", row.OverallFraction, reached)
	}
	if row.OverallFraction >= 1 {
		t.Fatalf("failed session reports overall %v; 1 belongs to completed sessions only", row.OverallFraction)
	}
}
