package detect

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// LaplacianBlur estimates blur from the variance of the Laplacian of a
// downscaled grayscale copy. Low variance means few edges, i.e. blur.
type LaplacianBlur struct {
	maxDimension int
	reference    float64 // variance that maps to a blur score of 0.5
}

// BlurOption configures a LaplacianBlur
type BlurOption func(*LaplacianBlur)

// WithMaxDimension sets the size the image is reduced to before filtering
func WithMaxDimension(n int) BlurOption {
	return func(d *LaplacianBlur) {
		if n >= 3 {
			d.maxDimension = n
		}
	}
}

// WithReferenceVariance sets the Laplacian variance scored as 0.5
func WithReferenceVariance(v float64) BlurOption {
	return func(d *LaplacianBlur) {
		if v > 0 {
			d.reference = v
		}
	}
}

// NewLaplacianBlur creates a blur detector
func NewLaplacianBlur(opts ...BlurOption) *LaplacianBlur {
	d := &LaplacianBlur{
		maxDimension: 512,
		reference:    150,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectBlur returns reference / (reference + variance)
func (d *LaplacianBlur) DetectBlur(ctx context.Context, src *Source) (BlurResult, error) {
	if src == nil || src.Image == nil {
		return BlurResult{}, ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return BlurResult{}, err
	}

	small := imaging.Fit(src.Image, d.maxDimension, d.maxDimension, imaging.Box)
	gray := imaging.Grayscale(small)

	variance, err := laplacianVariance(gray)
	if err != nil {
		return BlurResult{}, err
	}

	return BlurResult{Score: d.reference / (d.reference + variance)}, nil
}

// laplacianVariance applies the 4-neighbour Laplacian kernel and returns
// the variance of the response
func laplacianVariance(gray *image.NRGBA) (float64, error) {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w < 3 || h < 3 {
		return 0, fmt.Errorf("image too small for blur detection: %dx%d", w, h)
	}

	at := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
			n++
		}
	}

	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean, nil
}
