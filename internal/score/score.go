// Package score combines partial detector results into a single quality
// score in [0, 1].
package score

import (
	"errors"
	"fmt"
	"math"

	"photosweep/internal/detect"
	"photosweep/internal/models"
)

// Weights controls how much each signal contributes to the quality score
type Weights struct {
	Sharpness  float64 `yaml:"sharpness" json:"sharpness"`
	Face       float64 `yaml:"face" json:"face"`
	Screenshot float64 `yaml:"screenshot" json:"screenshot"`
}

// DefaultWeights returns the standard 0.5 / 0.3 / 0.2 split
func DefaultWeights() Weights {
	return Weights{
		Sharpness:  0.5,
		Face:       0.3,
		Screenshot: 0.2,
	}
}

// Validate rejects negative or non-finite weights
func (w Weights) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s weight must be finite, got %v", name, v)
		}
		if v < 0 {
			return fmt.Errorf("%s weight must not be negative, got %v", name, v)
		}
		return nil
	}
	return errors.Join(
		check("sharpness", w.Sharpness),
		check("face", w.Face),
		check("screenshot", w.Screenshot),
	)
}

// Scorer computes quality scores. It is stateless and safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer with the given weights
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	return &Scorer{weights: w}, nil
}

// DefaultScorer returns a Scorer using DefaultWeights
func DefaultScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// Weights returns the configured weights
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score averages the signals that are present. A nil argument means the
// detector failed or was skipped and contributes to neither the weighted
// sum nor the total weight. With no usable signal the score is
// models.NeutralScore.
func (s *Scorer) Score(blur *detect.BlurResult, faces *detect.FaceResult, shot *detect.ScreenshotResult) float64 {
	var sum, total float64

	if blur != nil {
		sharpness := 1 - models.Clamp01(blur.Score)
		sum += sharpness * s.weights.Sharpness
		total += s.weights.Sharpness
	}

	if faces != nil && faces.Count() > 0 {
		sum += models.Clamp01(faces.Best()) * s.weights.Face
		total += s.weights.Face
	}

	if shot != nil {
		penalty := 1.0
		if shot.IsScreenshot {
			penalty = 0
		}
		sum += penalty * s.weights.Screenshot
		total += s.weights.Screenshot
	}

	if total == 0 {
		return models.NeutralScore
	}
	return models.Clamp01(sum / total)
}
