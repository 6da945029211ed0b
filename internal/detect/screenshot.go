package detect

import (
	"context"
	"strings"
)

// Common device screen resolutions in portrait orientation
var defaultScreenSizes = [][2]int{
	{640, 1136}, {750, 1334}, {828, 1792}, {1080, 1920}, {1080, 2340},
	{1080, 2400}, {1125, 2436}, {1170, 2532}, {1179, 2556}, {1242, 2208},
	{1242, 2688}, {1284, 2778}, {1290, 2796}, {1440, 2560}, {1440, 3040},
	{1440, 3200}, {1536, 2048}, {1620, 2160}, {1668, 2388}, {2048, 2732},
	{1366, 768}, {1920, 1080}, {2560, 1440}, {2560, 1600}, {2880, 1800},
	{3024, 1964}, {3456, 2234}, {3840, 2160},
}

// ScreenshotHeuristic classifies screen captures from file name, EXIF and
// pixel dimensions. Camera EXIF always wins over geometry.
type ScreenshotHeuristic struct {
	sizes map[[2]int]bool
}

// NewScreenshotHeuristic creates a detector with the built-in screen sizes
func NewScreenshotHeuristic(extra ...[2]int) *ScreenshotHeuristic {
	d := &ScreenshotHeuristic{sizes: make(map[[2]int]bool)}
	for _, s := range append(defaultScreenSizes, extra...) {
		d.sizes[s] = true
		d.sizes[[2]int{s[1], s[0]}] = true
	}
	return d
}

func (d *ScreenshotHeuristic) DetectScreenshot(ctx context.Context, src *Source) (ScreenshotResult, error) {
	if src == nil {
		return ScreenshotResult{}, ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return ScreenshotResult{}, err
	}

	name := strings.ToLower(src.Asset.Name())
	if strings.Contains(name, "screenshot") || strings.Contains(name, "screen shot") ||
		strings.HasPrefix(name, "screen_") || strings.HasPrefix(name, "scr_") {
		return ScreenshotResult{IsScreenshot: true}, nil
	}

	if isScreenshotComment(src.Exif) {
		return ScreenshotResult{IsScreenshot: true}, nil
	}

	if HasCameraInfo(src.Exif) {
		return ScreenshotResult{IsScreenshot: false}, nil
	}

	w, h := src.Size()
	lossless := src.Format == "png" || src.Format == "bmp"
	if d.sizes[[2]int{w, h}] && (lossless || src.Exif == nil) {
		return ScreenshotResult{IsScreenshot: true}, nil
	}

	return ScreenshotResult{IsScreenshot: false}, nil
}
