// Package analyze runs the detector set against assets and turns the
// partial results into AnalysisResult values, one asset at a time or as a
// bounded concurrent batch.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"photosweep/internal/detect"
	"photosweep/internal/models"
	"photosweep/internal/score"
)

// ErrUnreadable is returned when an asset cannot be loaded at all
var ErrUnreadable = errors.New("asset unreadable")

// DefaultSelfieFaceArea is the smallest face box, as a fraction of the
// frame, that makes a one or two face photo count as a selfie
const DefaultSelfieFaceArea = 0.15

// Analyzer analyzes a single asset. It holds no per-call state and may be
// shared between goroutines.
type Analyzer struct {
	loader     detect.Loader
	detectors  detect.Set
	scorer     *score.Scorer
	logger     *log.Logger
	now        func() time.Time
	selfieArea float64
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLoader sets how assets are decoded
func WithLoader(l detect.Loader) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.loader = l
		}
	}
}

// WithDetectors replaces the detector set. Nil members are skipped.
func WithDetectors(s detect.Set) Option {
	return func(a *Analyzer) {
		a.detectors = s
	}
}

// WithScorer sets the quality scorer
func WithScorer(s *score.Scorer) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.scorer = s
		}
	}
}

// WithLogger sets the logger used for detector failures
func WithLogger(l *log.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the analysis timestamp source
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithSelfieFaceArea sets the face area threshold for selfie detection
func WithSelfieFaceArea(area float64) Option {
	return func(a *Analyzer) {
		if area > 0 && area <= 1 {
			a.selfieArea = area
		}
	}
}

// NewAnalyzer creates an Analyzer with the file loader and default detectors
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		loader:     detect.NewFileLoader(),
		detectors:  detect.DefaultSet(),
		scorer:     score.DefaultScorer(),
		logger:     log.New(io.Discard, "", 0),
		now:        time.Now,
		selfieArea: DefaultSelfieFaceArea,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// slot receives the output of one detector goroutine
type slot[T any] struct {
	value T
	ok    bool
}

func (s *slot[T]) get() *T {
	if s == nil || !s.ok {
		return nil
	}
	return &s.value
}

// launch runs fn on its own goroutine. A returned error or a panic leaves
// the slot empty and is passed to report.
func launch[T any](wg *sync.WaitGroup, name string, report func(string, error), fn func() (T, error)) *slot[T] {
	s := &slot[T]{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				report(name, fmt.Errorf("panic: %v", r))
			}
		}()
		v, err := fn()
		if err != nil {
			report(name, err)
			return
		}
		s.value, s.ok = v, true
	}()
	return s
}

// Analyze loads the asset once and runs every configured detector against
// it concurrently. A failing detector only removes its own signal; a load
// failure fails the whole asset with ErrUnreadable.
func (a *Analyzer) Analyze(ctx context.Context, asset models.AssetRef) (models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, err
	}

	src, err := a.loader.Load(ctx, asset)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, asset.ID, err)
	}
	if src == nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %s: loader returned no source", ErrUnreadable, asset.ID)
	}

	report := func(name string, err error) {
		a.logger.Printf("%v: %s on %s: %v", detect.ErrUnavailable, name, asset.ID, err)
	}

	var (
		wg         sync.WaitGroup
		features   *slot[detect.FeatureResult]
		faces      *slot[detect.FaceResult]
		blur       *slot[detect.BlurResult]
		screenshot *slot[detect.ScreenshotResult]
		stats      *slot[detect.StatsResult]
		d          = a.detectors
	)

	if d.Features != nil {
		features = launch(&wg, "features", report, func() (detect.FeatureResult, error) {
			return d.Features.Extract(ctx, src)
		})
	}
	if d.Faces != nil {
		faces = launch(&wg, "faces", report, func() (detect.FaceResult, error) {
			return d.Faces.DetectFaces(ctx, src)
		})
	}
	if d.Blur != nil {
		blur = launch(&wg, "blur", report, func() (detect.BlurResult, error) {
			return d.Blur.DetectBlur(ctx, src)
		})
	}
	if d.Screenshot != nil {
		screenshot = launch(&wg, "screenshot", report, func() (detect.ScreenshotResult, error) {
			return d.Screenshot.DetectScreenshot(ctx, src)
		})
	}
	if d.Stats != nil {
		stats = launch(&wg, "stats", report, func() (detect.StatsResult, error) {
			return d.Stats.Stats(ctx, src)
		})
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, err
	}

	fields := models.AnalysisFields{
		AssetID:         asset.ID,
		AnalyzedAt:      a.now(),
		BrightnessScore: models.NeutralScore,
		ContrastScore:   models.NeutralScore,
		SaturationScore: models.NeutralScore,
	}

	if f := features.get(); f != nil {
		fields.FeatureVectorHash = f.Hash
	}
	if b := blur.get(); b != nil {
		fields.BlurScore = b.Score
	}
	if fr := faces.get(); fr != nil {
		fields.FaceCount = fr.Count()
		fields.FaceQualityScores = fr.Scores()
		fields.FaceAngles = fr.Angles()
	}
	if s := screenshot.get(); s != nil {
		fields.IsScreenshot = s.IsScreenshot
	}
	if st := stats.get(); st != nil {
		fields.BrightnessScore = st.Brightness
		fields.ContrastScore = st.Contrast
		fields.SaturationScore = st.Saturation
	}

	fields.IsSelfie = a.isSelfie(asset, src, faces.get())
	fields.QualityScore = a.scorer.Score(blur.get(), faces.get(), screenshot.get())

	return models.NewAnalysisResult(fields), nil
}

// isSelfie trusts a front camera flag first, then falls back to one or two
// faces filling a large part of the frame
func (a *Analyzer) isSelfie(asset models.AssetRef, src *detect.Source, faces *detect.FaceResult) bool {
	if asset.FrontCamera || detect.IsFrontCamera(src.Exif) {
		return true
	}
	if faces == nil {
		return false
	}
	n := faces.Count()
	return n >= 1 && n <= 2 && faces.LargestArea() >= a.selfieArea
}
