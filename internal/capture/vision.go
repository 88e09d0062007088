package capture

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/pkg/logger"
)

// likelihoodWeight maps Vision likelihood buckets onto [0,1].
var likelihoodWeight = map[visionpb.Likelihood]float64{
	visionpb.Likelihood_UNKNOWN:       0,
	visionpb.Likelihood_VERY_UNLIKELY: 0,
	visionpb.Likelihood_UNLIKELY:      0.25,
	visionpb.Likelihood_POSSIBLE:      0.5,
	visionpb.Likelihood_LIKELY:        0.75,
	visionpb.Likelihood_VERY_LIKELY:   1,
}

// VisionClassifier classifies frames with Google Cloud Vision face detection.
type VisionClassifier struct {
	client *vision.ImageAnnotatorClient
	log    *logger.Logger
}

func NewVisionClassifier(ctx context.Context, log *logger.Logger, opts ...option.ClientOption) (*VisionClassifier, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionClassifier{client: client, log: log.With("service", "capture.VisionClassifier")}, nil
}

func (c *VisionClassifier) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *VisionClassifier) Classify(ctx context.Context, frame Frame) (domain.EmotionScores, bool, error) {
	if len(frame.Data) == 0 {
		return nil, false, nil
	}
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: frame.Data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_FACE_DETECTION, MaxResults: 4}},
		}},
	}
	resp, err := c.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, false, nil
	}
	r := resp.GetResponses()[0]
	if r.GetError() != nil && r.GetError().GetMessage() != "" {
		return nil, false, fmt.Errorf("vision face detection: %s", r.GetError().GetMessage())
	}
	face := mostConfidentFace(r.GetFaceAnnotations())
	if face == nil {
		return nil, false, nil
	}
	return scoresFromFace(face), true, nil
}

func mostConfidentFace(faces []*visionpb.FaceAnnotation) *visionpb.FaceAnnotation {
	var best *visionpb.FaceAnnotation
	for _, f := range faces {
		if best == nil || f.GetDetectionConfidence() > best.GetDetectionConfidence() {
			best = f
		}
	}
	return best
}

// scoresFromFace converts likelihood buckets to percentages over the fixed
// label set. Vision has no fear or disgust signal; neutral takes whatever the
// strongest expression leaves.
func scoresFromFace(face *visionpb.FaceAnnotation) domain.EmotionScores {
	raw := domain.EmotionScores{
		"happy":    likelihoodWeight[face.GetJoyLikelihood()],
		"sad":      likelihoodWeight[face.GetSorrowLikelihood()],
		"angry":    likelihoodWeight[face.GetAngerLikelihood()],
		"surprise": likelihoodWeight[face.GetSurpriseLikelihood()],
	}
	strongest := 0.0
	for _, v := range raw {
		strongest = max(strongest, v)
	}
	raw["neutral"] = 1 - strongest

	total := 0.0
	for _, v := range raw {
		total += v
	}
	out := raw.Normalize()
	if total == 0 {
		return out
	}
	for label, v := range out {
		out[label] = v / total * 100
	}
	return out
}
