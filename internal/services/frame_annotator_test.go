package services

import (
	"math"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

func TestBoxesFromLocalizedObjects(t *testing.T) {
	annotations := []*visionpb.LocalizedObjectAnnotation{
		{
			Name:  "Laptop",
			Score: 0.91,
			BoundingPoly: &visionpb.BoundingPoly{
				NormalizedVertices: []*visionpb.NormalizedVertex{
					{X: 0.1, Y: 0.2},
					{X: 0.5, Y: 0.2},
					{X: 0.5, Y: 0.6},
					{X: 0.1, Y: 0.6},
				},
			},
		},
		nil,
		{Name: "NoPoly", Score: 0.8},
		{
			Name:  "Degenerate",
			Score: 0.7,
			BoundingPoly: &visionpb.BoundingPoly{
				NormalizedVertices: []*visionpb.NormalizedVertex{
					{X: 0.3, Y: 0.3},
					{X: 0.3, Y: 0.3},
				},
			},
		},
	}

	boxes := boxesFromLocalizedObjects(annotations)
	if len(boxes) != 1 {
		t.Fatalf("expected 1 usable box, got %d", len(boxes))
	}

	b := boxes[0]
	if b.Label != "Laptop" {
		t.Fatalf("unexpected label %q", b.Label)
	}
	approx := func(got, want float64) bool { return math.Abs(got-want) < 1e-6 }
	if !approx(b.X, 0.1) || !approx(b.Y, 0.2) || !approx(b.Width, 0.4) || !approx(b.Height, 0.4) {
		t.Fatalf("unexpected box geometry: %+v", b)
	}
	if !approx(b.Confidence, float64(float32(0.91))) {
		t.Fatalf("unexpected confidence %v", b.Confidence)
	}
}

func TestBoxesFromLocalizedObjects_Empty(t *testing.T) {
	if boxes := boxesFromLocalizedObjects(nil); len(boxes) != 0 {
		t.Fatalf("expected no boxes, got %d", len(boxes))
	}
}
