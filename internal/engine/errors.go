package engine

import (
	"context"
	"errors"

	"photosweep/internal/analyze"
	"photosweep/internal/detect"
	"photosweep/internal/group"
)

// Error taxonomy. Detector and asset failures are absorbed into degraded
// results; the rest reach the caller.
var (
	// ErrDetectorUnavailable is logged when one detector fails for an asset
	ErrDetectorUnavailable = detect.ErrUnavailable

	// ErrAssetUnreadable is returned by AnalyzeOne when the asset cannot be
	// loaded. AnalyzeMany substitutes a degraded result instead.
	ErrAssetUnreadable = analyze.ErrUnreadable

	// ErrClustering is returned when a clustering capability fails
	ErrClustering = group.ErrClustering

	// ErrBestShot is returned when best-shot selection fails
	ErrBestShot = group.ErrBestShot

	// ErrCancelled is returned when a batch is stopped by its context
	ErrCancelled = analyze.ErrCancelled
)

// IsCancelled reports whether err means the caller stopped the operation,
// as opposed to something breaking
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
