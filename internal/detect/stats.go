package detect

import (
	"context"
	"math"

	"github.com/disintegration/imaging"

	"photosweep/internal/models"
)

// ImageStats computes global brightness, contrast and saturation
type ImageStats struct {
	sampleSize int
}

// NewImageStats creates an ImageStats that samples a 256px thumbnail
func NewImageStats() *ImageStats {
	return &ImageStats{sampleSize: 256}
}

// Stats returns mean luma, scaled luma deviation and mean HSV saturation
func (p *ImageStats) Stats(ctx context.Context, src *Source) (StatsResult, error) {
	if src == nil || src.Image == nil {
		return StatsResult{}, ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return StatsResult{}, err
	}

	thumb := imaging.Fit(src.Image, p.sampleSize, p.sampleSize, imaging.Box)
	w, h := thumb.Rect.Dx(), thumb.Rect.Dy()
	if w == 0 || h == 0 {
		return StatsResult{}, ErrNoImage
	}

	var lumSum, lumSq, satSum float64
	for y := 0; y < h; y++ {
		row := thumb.Pix[y*thumb.Stride : y*thumb.Stride+w*4]
		for x := 0; x < w; x++ {
			r := float64(row[x*4]) / 255
			g := float64(row[x*4+1]) / 255
			b := float64(row[x*4+2]) / 255

			lum := 0.299*r + 0.587*g + 0.114*b
			lumSum += lum
			lumSq += lum * lum

			hi := math.Max(r, math.Max(g, b))
			lo := math.Min(r, math.Min(g, b))
			if hi > 0 {
				satSum += (hi - lo) / hi
			}
		}
	}

	n := float64(w * h)
	mean := lumSum / n
	stddev := math.Sqrt(math.Max(0, lumSq/n-mean*mean))

	// Luma deviation tops out at 0.5 for a black/white split
	return StatsResult{
		Brightness: models.Clamp01(mean),
		Contrast:   models.Clamp01(stddev * 2),
		Saturation: models.Clamp01(satSum / n),
	}, nil
}
