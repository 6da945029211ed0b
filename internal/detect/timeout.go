package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type trackerKey struct{}

// TrackCalls returns a context under which detector calls abandoned by a
// timeout stay accounted for, and a func that blocks until every such
// call has returned. The func must be called after the calls started.
func TrackCalls(ctx context.Context) (context.Context, func()) {
	wg := new(sync.WaitGroup)
	return context.WithValue(ctx, trackerKey{}, wg), wg.Wait
}

// callWithTimeout runs fn with a deadline. The result channel is buffered
// so a detector that ignores ctx does not leak a blocked goroutine.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	tracker, _ := ctx.Value(trackerKey{}).(*sync.WaitGroup)
	if tracker != nil {
		tracker.Add(1)
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		if tracker != nil {
			defer tracker.Done()
		}
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			var zero T
			return zero, fmt.Errorf("%w after %s: %v", ErrTimeout, d, o.err)
		}
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w after %s: %v", ErrTimeout, d, ctx.Err())
	}
}

type timeoutFeatures struct {
	inner FeatureExtractor
	d     time.Duration
}

func (t timeoutFeatures) Extract(ctx context.Context, src *Source) (FeatureResult, error) {
	return callWithTimeout(ctx, t.d, func(ctx context.Context) (FeatureResult, error) {
		return t.inner.Extract(ctx, src)
	})
}

type timeoutFaces struct {
	inner FaceDetector
	d     time.Duration
}

func (t timeoutFaces) DetectFaces(ctx context.Context, src *Source) (FaceResult, error) {
	return callWithTimeout(ctx, t.d, func(ctx context.Context) (FaceResult, error) {
		return t.inner.DetectFaces(ctx, src)
	})
}

type timeoutBlur struct {
	inner BlurDetector
	d     time.Duration
}

func (t timeoutBlur) DetectBlur(ctx context.Context, src *Source) (BlurResult, error) {
	return callWithTimeout(ctx, t.d, func(ctx context.Context) (BlurResult, error) {
		return t.inner.DetectBlur(ctx, src)
	})
}

type timeoutScreenshot struct {
	inner ScreenshotDetector
	d     time.Duration
}

func (t timeoutScreenshot) DetectScreenshot(ctx context.Context, src *Source) (ScreenshotResult, error) {
	return callWithTimeout(ctx, t.d, func(ctx context.Context) (ScreenshotResult, error) {
		return t.inner.DetectScreenshot(ctx, src)
	})
}

type timeoutStats struct {
	inner StatsProvider
	d     time.Duration
}

func (t timeoutStats) Stats(ctx context.Context, src *Source) (StatsResult, error) {
	return callWithTimeout(ctx, t.d, func(ctx context.Context) (StatsResult, error) {
		return t.inner.Stats(ctx, src)
	})
}

// WithTimeout wraps every configured detector so that a call running longer
// than d fails with ErrTimeout. The abandoned call keeps running until the
// detector returns; see TrackCalls. A non-positive d returns s unchanged.
func (s Set) WithTimeout(d time.Duration) Set {
	if d <= 0 {
		return s
	}
	out := s
	if s.Features != nil {
		out.Features = timeoutFeatures{inner: s.Features, d: d}
	}
	if s.Faces != nil {
		out.Faces = timeoutFaces{inner: s.Faces, d: d}
	}
	if s.Blur != nil {
		out.Blur = timeoutBlur{inner: s.Blur, d: d}
	}
	if s.Screenshot != nil {
		out.Screenshot = timeoutScreenshot{inner: s.Screenshot, d: d}
	}
	if s.Stats != nil {
		out.Stats = timeoutStats{inner: s.Stats, d: d}
	}
	return out
}
