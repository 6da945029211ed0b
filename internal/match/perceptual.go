package match

import (
	"context"
	"fmt"

	"photosweep/internal/detect"
	"photosweep/internal/models"
)

// PerceptualClusterer groups photos whose perceptual hashes are close.
// Hashes come from stored analyses; assets without one are skipped.
type PerceptualClusterer struct {
	source AnalysisSource
}

// NewPerceptualClusterer creates a clusterer reading hashes from source
func NewPerceptualClusterer(source AnalysisSource) *PerceptualClusterer {
	return &PerceptualClusterer{source: source}
}

// FindClusters links every pair within detect.MaxDistance(threshold) and
// returns the connected components. Uses a BK-tree so the average case is
// O(n log n) instead of O(n²).
func (c *PerceptualClusterer) FindClusters(ctx context.Context, assets []models.AssetRef, threshold float64) ([]Cluster, error) {
	var (
		hashed []models.AssetRef
		hashes []uint64
	)
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if asset.IsVideo() {
			continue
		}
		r, ok, err := c.source.Analysis(ctx, asset.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load analysis for %s: %w", asset.ID, err)
		}
		if !ok {
			continue
		}
		h, ok := detect.DecodeHash(r.FeatureVectorHash)
		if !ok {
			continue
		}
		hashed = append(hashed, asset)
		hashes = append(hashes, h)
	}

	if len(hashed) < 2 {
		return nil, nil
	}

	maxDist := detect.MaxDistance(threshold)
	uf := newUnionFind(len(hashed))
	tree := newBKTree(detect.HammingDistance)

	for i, h := range hashes {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, j := range tree.findWithinDistance(h, maxDist) {
			uf.union(i, j)
		}
		tree.insert(h, i)
	}

	return buildClusters(hashed, uf.buckets(), func(members []int) float64 {
		return meanSimilarity(hashes, members)
	}), nil
}

// meanSimilarity averages detect.Similarity over every pair of members
func meanSimilarity(hashes []uint64, members []int) float64 {
	var sum float64
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += detect.Similarity(hashes[members[i]], hashes[members[j]])
			pairs++
		}
	}
	if pairs == 0 {
		return 1
	}
	return sum / float64(pairs)
}
