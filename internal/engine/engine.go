// Package engine is the entry point for analysis and grouping. An Engine
// composes the analyzer, the batch orchestrator and the grouping
// coordinator behind five operations and is safe for concurrent use.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"photosweep/internal/analyze"
	"photosweep/internal/detect"
	"photosweep/internal/group"
	"photosweep/internal/match"
	"photosweep/internal/models"
	"photosweep/internal/score"
)

// Config holds the collaborators of an Engine. Zero values select the
// built-in implementations.
type Config struct {
	// Detectors replaces detect.DefaultSet when non-nil. The engine sets
	// no time limits; wrap the set with detect.Set.WithTimeout for that.
	Detectors *detect.Set
	Loader    detect.Loader
	Weights   *score.Weights

	// Concurrency is the batch in-flight ceiling, default 12
	Concurrency int

	// OnAnalysisFailure is called for every asset AnalyzeMany degraded
	OnAnalysisFailure func(asset models.AssetRef, err error)

	// Clusterer replaces the perceptual hash clusterer
	Clusterer match.Clusterer

	// DuplicateClusterer replaces the SHA256 clusterer
	DuplicateClusterer match.Clusterer
	DisableDuplicates  bool

	BestShot   match.BestShotSelector
	Repository group.Repository
	Analyses   group.AnalysisSource

	Logger *log.Logger
	Clock  func() time.Time
}

// Engine analyzes and groups assets. All fields are set once by New.
type Engine struct {
	analyzer   *analyze.Analyzer
	batch      *analyze.Batch
	clusterer  match.Clusterer
	duplicates match.Clusterer
	bestShot   match.BestShotSelector
	repo       group.Repository
	analyses   group.AnalysisSource
	logger     *log.Logger
	clock      func() time.Time
}

// New builds an Engine from cfg
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	scorer := score.DefaultScorer()
	if cfg.Weights != nil {
		s, err := score.NewScorer(*cfg.Weights)
		if err != nil {
			return nil, fmt.Errorf("failed to create scorer: %w", err)
		}
		scorer = s
	}

	detectors := detect.DefaultSet()
	if cfg.Detectors != nil {
		detectors = *cfg.Detectors
	}

	opts := []analyze.Option{
		analyze.WithDetectors(detectors),
		analyze.WithScorer(scorer),
		analyze.WithLogger(logger),
		analyze.WithClock(clock),
	}
	if cfg.Loader != nil {
		opts = append(opts, analyze.WithLoader(cfg.Loader))
	}
	analyzer := analyze.NewAnalyzer(opts...)

	e := &Engine{
		analyzer: analyzer,
		batch: analyze.NewBatch(analyzer,
			analyze.WithConcurrency(cfg.Concurrency),
			analyze.WithBatchLogger(logger),
			analyze.WithBatchClock(clock),
			analyze.WithFailureHandler(cfg.OnAnalysisFailure),
		),
		clusterer:  cfg.Clusterer,
		duplicates: cfg.DuplicateClusterer,
		bestShot:   cfg.BestShot,
		repo:       cfg.Repository,
		analyses:   cfg.Analyses,
		logger:     logger,
		clock:      clock,
	}
	if e.duplicates == nil && !cfg.DisableDuplicates {
		e.duplicates = match.NewExactClusterer(logger)
	}
	if cfg.DisableDuplicates {
		e.duplicates = nil
	}
	return e, nil
}

// AnalyzeOne analyzes a single asset. Unlike AnalyzeMany it returns an
// error wrapping ErrAssetUnreadable when the asset cannot be loaded.
func (e *Engine) AnalyzeOne(ctx context.Context, asset models.AssetRef) (models.AnalysisResult, error) {
	return e.analyzer.Analyze(ctx, asset)
}

// AnalyzeMany analyzes assets concurrently and returns one result per
// asset in input order. See analyze.Batch.Run.
func (e *Engine) AnalyzeMany(ctx context.Context, assets []models.AssetRef, onProgress func(float64)) ([]models.AnalysisResult, error) {
	return e.batch.Run(ctx, assets, onProgress)
}

// GroupMany groups assets using the configured analysis source
func (e *Engine) GroupMany(ctx context.Context, assets []models.AssetRef, opts models.GroupingOptions) ([]models.Group, error) {
	return e.coordinator(e.analyses).GroupMany(ctx, assets, opts)
}

// GroupResults groups assets using analyses from a previous AnalyzeMany
// call instead of the configured source
func (e *Engine) GroupResults(ctx context.Context, assets []models.AssetRef, results []models.AnalysisResult, opts models.GroupingOptions) ([]models.Group, error) {
	return e.coordinator(match.NewMapSource(results)).GroupMany(ctx, assets, opts)
}

// SelectBestShot returns the index of the member to keep, or nil when no
// member is clearly best
func (e *Engine) SelectBestShot(ctx context.Context, g models.Group) (*int, error) {
	return e.coordinator(e.analyses).SelectBestShot(ctx, g)
}

// FindSimilarGroups returns only visually similar groups with default
// options
func (e *Engine) FindSimilarGroups(ctx context.Context, assets []models.AssetRef) ([]models.Group, error) {
	return e.coordinator(e.analyses).FindSimilarGroups(ctx, assets)
}

// coordinator assembles a Coordinator for one call. It is cheap and holds
// no state, so building one per call keeps the Engine itself immutable.
func (e *Engine) coordinator(source group.AnalysisSource) *group.Coordinator {
	clusterer := e.clusterer
	if clusterer == nil && source != nil {
		clusterer = match.NewPerceptualClusterer(source)
	}

	opts := []group.Option{
		group.WithLogger(e.logger),
		group.WithClock(e.clock),
	}
	if source != nil {
		opts = append(opts, group.WithAnalysisSource(source))
	}
	if e.duplicates != nil {
		opts = append(opts, group.WithDuplicateClusterer(e.duplicates))
	}
	if e.bestShot != nil {
		opts = append(opts, group.WithBestShotSelector(e.bestShot))
	}
	if e.repo != nil {
		opts = append(opts, group.WithRepository(e.repo))
	}
	return group.NewCoordinator(clusterer, opts...)
}
