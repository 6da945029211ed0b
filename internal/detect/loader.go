package detect

import (
	"context"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"photosweep/internal/models"
)

// FileLoader decodes assets from the local filesystem
type FileLoader struct {
	autoOrient bool
}

// NewFileLoader creates a FileLoader that applies EXIF orientation
func NewFileLoader() *FileLoader {
	return &FileLoader{autoOrient: true}
}

// Load decodes the asset's image and EXIF block
func (l *FileLoader) Load(ctx context.Context, asset models.AssetRef) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if asset.IsVideo() {
		return nil, fmt.Errorf("cannot decode video %s", asset.Path)
	}
	if !IsSupportedImage(asset.Path) {
		return nil, fmt.Errorf("unsupported image format: %s", asset.Path)
	}

	// Read EXIF first; a missing block is not an error
	x, _ := ReadExif(asset.Path)

	img, err := imaging.Open(asset.Path, imaging.AutoOrientation(l.autoOrient))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return &Source{
		Asset:  asset,
		Image:  img,
		Format: models.FormatOf(asset.Path),
		Exif:   x,
	}, nil
}
