package services

import (
	"context"
	"testing"

	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

func splitCfg(target, min, max float64) config.SegmenterConfig {
	return config.SegmenterConfig{TargetSeconds: target, MinSeconds: min, MaxSeconds: max}
}

func TestSplitTranscript_EmptyTranscriptIsStructural(t *testing.T) {
	_, err := splitTranscript(types.Transcript{}, splitCfg(60, 10, 90))
	if !IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}

	// Whitespace-only chunks count as empty.
	_, err = splitTranscript(types.Transcript{{StartSec: 0, EndSec: 10, Text: "   "}}, splitCfg(60, 10, 90))
	if !IsStructural(err) {
		t.Fatalf("expected structural error for blank chunks, got %v", err)
	}
}

func TestSplitTranscript_TooShortIsStructural(t *testing.T) {
	_, err := splitTranscript(flatTranscript(5, 5), splitCfg(60, 10, 90))
	if !IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestSplitTranscript_PacksToTargetDuration(t *testing.T) {
	windows, err := splitTranscript(flatTranscript(180, 30), splitCfg(60, 10, 90))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	for i, w := range windows {
		if w.end-w.start != 60 {
			t.Fatalf("window %d spans %.0fs, want 60s", i, w.end-w.start)
		}
		if w.text == "" {
			t.Fatalf("window %d has no text", i)
		}
	}
	// Contiguous coverage, in order.
	if windows[0].start != 0 || windows[2].end != 180 {
		t.Fatalf("windows do not cover the transcript: %+v", windows)
	}
	for i := 1; i < len(windows); i++ {
		if windows[i].start < windows[i-1].end {
			t.Fatalf("windows overlap at %d", i)
		}
	}
}

func TestSplitTranscript_ShortTailFoldsIntoPreviousWindow(t *testing.T) {
	// 150s at 30s chunks with target 60 gives 60+60+30; a 40s minimum folds
	// the 30s tail into the second window.
	windows, err := splitTranscript(flatTranscript(150, 30), splitCfg(60, 40, 120))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows after folding, got %d", len(windows))
	}
	if got := windows[1].end - windows[1].start; got != 90 {
		t.Fatalf("folded window spans %.0fs, want 90s", got)
	}
}

func TestSplitTranscript_LongChunkClosesAtMax(t *testing.T) {
	transcript := types.Transcript{
		{StartSec: 0, EndSec: 50, Text: "intro"},
		{StartSec: 50, EndSec: 120, Text: "deep dive"},
		{StartSec: 120, EndSec: 180, Text: "wrap up"},
	}
	windows, err := splitTranscript(transcript, splitCfg(60, 10, 90))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for i, w := range windows {
		if w.end <= w.start {
			t.Fatalf("window %d is empty", i)
		}
	}
	// The 70s chunk cannot join the first window without blowing past max.
	if windows[0].end != 50 {
		t.Fatalf("first window ends at %.0f, want 50", windows[0].end)
	}
}

func TestSegmentCourse_IsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	transcript := flatTranscript(180, 30)

	first, err := h.segmenter.SegmentCourse(ctx, h.course.ID, transcript)
	if err != nil {
		t.Fatalf("first segmentation: %v", err)
	}
	second, err := h.segmenter.SegmentCourse(ctx, h.course.ID, transcript)
	if err != nil {
		t.Fatalf("second segmentation: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("segment count changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("segment %d identity changed across calls", i)
		}
	}

	course := h.reloadCourse(t)
	if !course.IsSegmented || course.TotalSegments != len(first) {
		t.Fatalf("course not marked segmented: segmented=%v total=%d", course.IsSegmented, course.TotalSegments)
	}

	for i, seg := range second {
		if seg.Index != i {
			t.Fatalf("segment order broken at %d (index %d)", i, seg.Index)
		}
		if seg.Status != types.SegmentPending {
			t.Fatalf("fresh segment status %q, want pending", seg.Status)
		}
	}
}
