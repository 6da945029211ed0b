// Package detect defines the per-asset detector capabilities consumed by
// the analyzer and ships one concrete adapter for each of them.
//
// Every detector receives the same decoded Source and either succeeds with
// a typed partial result or fails on its own. Callers treat a failure as
// "signal unavailable"; detectors never need to know how their output is
// combined.
package detect

import (
	"context"
	"errors"
	"image"

	"github.com/rwcarlsen/goexif/exif"

	"photosweep/internal/models"
)

var (
	// ErrUnavailable marks a detector that could not produce a result
	ErrUnavailable = errors.New("detector unavailable")

	// ErrNoImage is returned by detectors that need decoded pixels
	ErrNoImage = errors.New("source has no decoded image")

	// ErrTimeout is returned when a detector exceeds its time budget
	ErrTimeout = errors.New("detector timed out")
)

// Source is an asset decoded once and shared read-only by all detectors
type Source struct {
	Asset  models.AssetRef
	Image  image.Image
	Format string
	Exif   *exif.Exif // nil when the file has no EXIF block
}

// Size returns the pixel dimensions of the decoded image
func (s *Source) Size() (width, height int) {
	if s == nil || s.Image == nil {
		return 0, 0
	}
	b := s.Image.Bounds()
	return b.Dx(), b.Dy()
}

// FeatureResult carries an opaque visual fingerprint
type FeatureResult struct {
	Hash []byte
}

// Face is one detected face
type Face struct {
	Confidence float64
	Angle      *models.FaceAngle // nil when pose data is unavailable
	Area       float64           // fraction of the frame covered by the face box
}

// FaceResult lists the faces found in an asset
type FaceResult struct {
	Faces []Face
}

// Count returns the number of faces
func (r FaceResult) Count() int {
	return len(r.Faces)
}

// Scores returns the confidence of each face in detection order
func (r FaceResult) Scores() []float64 {
	scores := make([]float64, len(r.Faces))
	for i, f := range r.Faces {
		scores[i] = f.Confidence
	}
	return scores
}

// Angles returns the poses that are known. It may be shorter than Faces.
func (r FaceResult) Angles() []models.FaceAngle {
	var angles []models.FaceAngle
	for _, f := range r.Faces {
		if f.Angle != nil {
			angles = append(angles, *f.Angle)
		}
	}
	return angles
}

// Best returns the highest face confidence, or 0 without faces
func (r FaceResult) Best() float64 {
	best := 0.0
	for _, f := range r.Faces {
		if f.Confidence > best {
			best = f.Confidence
		}
	}
	return best
}

// LargestArea returns the largest face box as a fraction of the frame
func (r FaceResult) LargestArea() float64 {
	largest := 0.0
	for _, f := range r.Faces {
		if f.Area > largest {
			largest = f.Area
		}
	}
	return largest
}

// BlurResult is a blur estimate in [0, 1]; 1 is fully blurred
type BlurResult struct {
	Score float64
}

// ScreenshotResult reports whether the asset looks like a screen capture
type ScreenshotResult struct {
	IsScreenshot bool
}

// StatsResult holds global exposure and colour statistics in [0, 1]
type StatsResult struct {
	Brightness float64
	Contrast   float64
	Saturation float64
}

// Loader resolves an asset into a decoded Source
type Loader interface {
	Load(ctx context.Context, asset models.AssetRef) (*Source, error)
}

// FeatureExtractor computes a similarity fingerprint
type FeatureExtractor interface {
	Extract(ctx context.Context, src *Source) (FeatureResult, error)
}

// FaceDetector finds faces
type FaceDetector interface {
	DetectFaces(ctx context.Context, src *Source) (FaceResult, error)
}

// BlurDetector estimates blur
type BlurDetector interface {
	DetectBlur(ctx context.Context, src *Source) (BlurResult, error)
}

// ScreenshotDetector classifies screen captures
type ScreenshotDetector interface {
	DetectScreenshot(ctx context.Context, src *Source) (ScreenshotResult, error)
}

// StatsProvider computes brightness, contrast and saturation
type StatsProvider interface {
	Stats(ctx context.Context, src *Source) (StatsResult, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, asset models.AssetRef) (*Source, error)

func (f LoaderFunc) Load(ctx context.Context, asset models.AssetRef) (*Source, error) {
	return f(ctx, asset)
}

// FeatureExtractorFunc adapts a function to FeatureExtractor
type FeatureExtractorFunc func(ctx context.Context, src *Source) (FeatureResult, error)

func (f FeatureExtractorFunc) Extract(ctx context.Context, src *Source) (FeatureResult, error) {
	return f(ctx, src)
}

// FaceDetectorFunc adapts a function to FaceDetector
type FaceDetectorFunc func(ctx context.Context, src *Source) (FaceResult, error)

func (f FaceDetectorFunc) DetectFaces(ctx context.Context, src *Source) (FaceResult, error) {
	return f(ctx, src)
}

// BlurDetectorFunc adapts a function to BlurDetector
type BlurDetectorFunc func(ctx context.Context, src *Source) (BlurResult, error)

func (f BlurDetectorFunc) DetectBlur(ctx context.Context, src *Source) (BlurResult, error) {
	return f(ctx, src)
}

// ScreenshotDetectorFunc adapts a function to ScreenshotDetector
type ScreenshotDetectorFunc func(ctx context.Context, src *Source) (ScreenshotResult, error)

func (f ScreenshotDetectorFunc) DetectScreenshot(ctx context.Context, src *Source) (ScreenshotResult, error) {
	return f(ctx, src)
}

// StatsProviderFunc adapts a function to StatsProvider
type StatsProviderFunc func(ctx context.Context, src *Source) (StatsResult, error)

func (f StatsProviderFunc) Stats(ctx context.Context, src *Source) (StatsResult, error) {
	return f(ctx, src)
}

// Set bundles the detectors used for one analysis run. Nil members are
// skipped.
type Set struct {
	Features   FeatureExtractor
	Faces      FaceDetector
	Blur       BlurDetector
	Screenshot ScreenshotDetector
	Stats      StatsProvider
}

// DefaultSet returns the built-in detectors. There is no built-in face
// detector; callers plug one in through Set.Faces.
func DefaultSet() Set {
	return Set{
		Features:   NewPHashExtractor(),
		Blur:       NewLaplacianBlur(),
		Screenshot: NewScreenshotHeuristic(),
		Stats:      NewImageStats(),
	}
}
