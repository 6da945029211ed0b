package group

import (
	"context"
	"errors"
	"fmt"

	"photosweep/internal/models"
)

// ErrAssetNotFound is returned by AssetIndex for unknown IDs
var ErrAssetNotFound = errors.New("asset not found")

// AssetIndex is an in-memory Repository over a slice of AssetRefs
type AssetIndex map[string]models.AssetRef

// NewAssetIndex indexes assets by ID
func NewAssetIndex(assets []models.AssetRef) AssetIndex {
	idx := make(AssetIndex, len(assets))
	for _, a := range assets {
		idx[a.ID] = a
	}
	return idx
}

func (idx AssetIndex) Resolve(ctx context.Context, assetID string) (models.AssetRef, error) {
	a, ok := idx[assetID]
	if !ok {
		return models.AssetRef{}, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return a, nil
}

func (idx AssetIndex) FileSize(ctx context.Context, assetID string) (int64, error) {
	a, err := idx.Resolve(ctx, assetID)
	if err != nil {
		return 0, err
	}
	return a.FileSize, nil
}
