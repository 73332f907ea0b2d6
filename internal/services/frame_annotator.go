package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
)

// ProposedBox is a candidate hotspot region detected in a video frame,
// normalized to [0,1] frame coordinates.
type ProposedBox struct {
	Label      string
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Confidence float64
}

// FrameAnnotator proposes bounding boxes for a frame image. The hotspot
// generator uses it as a fallback when the synthesis provider returns a
// hotspot question without usable spatial data. Deployments without GCP
// credentials run with a nil annotator and simply fail such plans instead.
type FrameAnnotator interface {
	LocalizeObjects(ctx context.Context, imageURI string) ([]ProposedBox, error)
	Close() error
}

type gcpFrameAnnotator struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewFrameAnnotator(log *logger.Logger) (FrameAnnotator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "FrameAnnotator")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	ctx := context.Background()

	var (
		client *vision.ImageAnnotatorClient
		err    error
	)
	if creds != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(creds))
	} else {
		// ADC (GKE/Cloud Run w/ attached SA)
		client, err = vision.NewImageAnnotatorClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &gcpFrameAnnotator{log: slog, client: client}, nil
}

func (a *gcpFrameAnnotator) LocalizeObjects(ctx context.Context, imageURI string) ([]ProposedBox, error) {
	if strings.TrimSpace(imageURI) == "" {
		return nil, fmt.Errorf("missing frame image uri")
	}

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{
			Source: &visionpb.ImageSource{ImageUri: imageURI},
		},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_OBJECT_LOCALIZATION},
		},
	}

	br := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}}
	resp, err := a.client.BatchAnnotateImages(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	boxes := boxesFromLocalizedObjects(r0.LocalizedObjectAnnotations)
	a.log.Debug("Frame localization finished", "image_uri", imageURI, "boxes", len(boxes))
	return boxes, nil
}

// boxesFromLocalizedObjects collapses each annotation's normalized bounding
// poly into an axis-aligned box. Annotations without a usable poly are skipped.
func boxesFromLocalizedObjects(annotations []*visionpb.LocalizedObjectAnnotation) []ProposedBox {
	boxes := make([]ProposedBox, 0, len(annotations))
	for _, ann := range annotations {
		if ann == nil || ann.BoundingPoly == nil {
			continue
		}
		verts := ann.BoundingPoly.NormalizedVertices
		if len(verts) == 0 {
			continue
		}
		minX, minY := 1.0, 1.0
		maxX, maxY := 0.0, 0.0
		for _, v := range verts {
			if v == nil {
				continue
			}
			x, y := float64(v.X), float64(v.Y)
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
		if maxX <= minX || maxY <= minY {
			continue
		}
		boxes = append(boxes, ProposedBox{
			Label:      ann.Name,
			X:          minX,
			Y:          minY,
			Width:      maxX - minX,
			Height:     maxY - minY,
			Confidence: float64(ann.Score),
		})
	}
	return boxes
}

func (a *gcpFrameAnnotator) Close() error {
	return a.client.Close()
}
