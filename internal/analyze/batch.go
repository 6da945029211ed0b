package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"photosweep/internal/detect"
	"photosweep/internal/models"
)

// ErrCancelled is returned when a batch is stopped before every asset was
// analyzed. Partial results are discarded.
var ErrCancelled = errors.New("analysis cancelled")

// ErrPanicked is reported to the failure handler when analyzing an asset
// panicked
var ErrPanicked = errors.New("analysis panicked")

// DefaultConcurrency is the number of assets analyzed at once
const DefaultConcurrency = 12

// AssetAnalyzer analyzes one asset. *Analyzer is the production
// implementation.
type AssetAnalyzer interface {
	Analyze(ctx context.Context, asset models.AssetRef) (models.AnalysisResult, error)
}

// Batch analyzes collections of assets with bounded parallelism
type Batch struct {
	analyzer    AssetAnalyzer
	concurrency int
	logger      *log.Logger
	onFailure   func(asset models.AssetRef, err error)
	now         func() time.Time
}

// BatchOption configures a Batch
type BatchOption func(*Batch)

// WithConcurrency sets the maximum number of in-flight analyses
func WithConcurrency(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithBatchLogger sets the logger used for per-asset failures
func WithBatchLogger(l *log.Logger) BatchOption {
	return func(b *Batch) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithFailureHandler sets a func called for every asset that got a
// degraded result. It may be called from several goroutines at once.
func WithFailureHandler(fn func(asset models.AssetRef, err error)) BatchOption {
	return func(b *Batch) {
		b.onFailure = fn
	}
}

// WithBatchClock overrides the timestamp of degraded results
func WithBatchClock(now func() time.Time) BatchOption {
	return func(b *Batch) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBatch creates a Batch around a single-asset analyzer
func NewBatch(analyzer AssetAnalyzer, opts ...BatchOption) *Batch {
	b := &Batch{
		analyzer:    analyzer,
		concurrency: DefaultConcurrency,
		logger:      log.New(io.Discard, "", 0),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Concurrency returns the configured in-flight ceiling
func (b *Batch) Concurrency() int {
	return b.concurrency
}

type indexedResult struct {
	index  int
	result models.AnalysisResult
}

// Run analyzes every asset and returns one result per asset in input order.
// An asset whose analysis fails or panics gets models.DegradedResult.
//
// onProgress, when set, receives the completed fraction after each asset.
// Calls happen on a single goroutine in increasing order and never block
// the workers. All calls have been made by the time Run returns.
//
// A detector call abandoned by a timeout keeps its asset's slot until it
// returns, so the ceiling bounds running detector work.
//
// Cancellation is checked before each asset is submitted. A cancelled run
// waits for in-flight assets, then returns an error wrapping both
// ErrCancelled and ctx.Err().
func (b *Batch) Run(ctx context.Context, assets []models.AssetRef, onProgress func(float64)) ([]models.AnalysisResult, error) {
	if len(assets) == 0 {
		return []models.AnalysisResult{}, nil
	}

	var (
		total     = len(assets)
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		collected = make([]indexedResult, 0, total)
		sem       = make(chan struct{}, b.concurrency)
		progress  chan float64
		delivered chan struct{}
		cancelErr error
	)

	if onProgress != nil {
		// Sized so a send under mu can never block
		progress = make(chan float64, total)
		delivered = make(chan struct{})
		go func() {
			defer close(delivered)
			for fraction := range progress {
				onProgress(fraction)
			}
		}()
	}

submit:
	for i, asset := range assets {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			cancelErr = ctx.Err()
			break submit
		}

		wg.Add(1)
		go func(i int, asset models.AssetRef) {
			defer wg.Done()
			defer func() { <-sem }()

			tracked, settle := detect.TrackCalls(ctx)
			result := b.analyzeOne(tracked, asset)

			mu.Lock()
			collected = append(collected, indexedResult{index: i, result: result})
			completed++
			if progress != nil {
				progress <- float64(completed) / float64(total)
			}
			mu.Unlock()

			settle()
		}(i, asset)
	}

	wg.Wait()

	if progress != nil {
		close(progress)
		<-delivered
	}

	if cancelErr == nil {
		cancelErr = ctx.Err()
	}
	if cancelErr != nil {
		return nil, fmt.Errorf("%w after %d of %d assets: %w", ErrCancelled, completed, total, cancelErr)
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].index < collected[j].index
	})

	results := make([]models.AnalysisResult, total)
	for i, c := range collected {
		results[i] = c.result
	}
	return results, nil
}

// analyzeOne never fails: errors and panics become a degraded result
func (b *Batch) analyzeOne(ctx context.Context, asset models.AssetRef) (result models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("analysis of %s panicked: %v", asset.ID, r)
			b.failed(asset, fmt.Errorf("%w: %v", ErrPanicked, r))
			result = models.DegradedResult(asset.ID, b.now())
		}
	}()

	res, err := b.analyzer.Analyze(ctx, asset)
	if err != nil {
		b.logger.Printf("analysis of %s failed, using degraded result: %v", asset.ID, err)
		b.failed(asset, err)
		return models.DegradedResult(asset.ID, b.now())
	}
	return res
}

func (b *Batch) failed(asset models.AssetRef, err error) {
	if b.onFailure != nil {
		b.onFailure(asset, err)
	}
}
