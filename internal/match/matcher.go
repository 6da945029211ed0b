// Package match provides the clustering and best-shot capabilities the
// grouping coordinator delegates to.
package match

import (
	"context"
	"sort"

	"photosweep/internal/models"
)

// Cluster is a set of related assets with a similarity score in [0, 1]
type Cluster struct {
	MemberIDs  []string
	Similarity float64
}

// Clusterer is the interface for similarity clustering strategies
type Clusterer interface {
	FindClusters(ctx context.Context, assets []models.AssetRef, threshold float64) ([]Cluster, error)
}

// BestShotSelector picks the member of a group to keep. A nil index means
// no member is clearly best.
type BestShotSelector interface {
	SelectBest(ctx context.Context, group models.Group, analyses map[string]models.AnalysisResult) (*int, error)
}

// AnalysisSource looks up a stored analysis by asset ID. ok is false when
// the asset has not been analyzed.
type AnalysisSource interface {
	Analysis(ctx context.Context, assetID string) (result models.AnalysisResult, ok bool, err error)
}

// ClustererFunc adapts a function to Clusterer
type ClustererFunc func(ctx context.Context, assets []models.AssetRef, threshold float64) ([]Cluster, error)

func (f ClustererFunc) FindClusters(ctx context.Context, assets []models.AssetRef, threshold float64) ([]Cluster, error) {
	return f(ctx, assets, threshold)
}

// BestShotFunc adapts a function to BestShotSelector
type BestShotFunc func(ctx context.Context, group models.Group, analyses map[string]models.AnalysisResult) (*int, error)

func (f BestShotFunc) SelectBest(ctx context.Context, group models.Group, analyses map[string]models.AnalysisResult) (*int, error) {
	return f(ctx, group, analyses)
}

// MapSource is an in-memory AnalysisSource
type MapSource map[string]models.AnalysisResult

// NewMapSource indexes results by asset ID
func NewMapSource(results []models.AnalysisResult) MapSource {
	m := make(MapSource, len(results))
	for _, r := range results {
		m[r.AssetID] = r
	}
	return m
}

func (m MapSource) Analysis(ctx context.Context, assetID string) (models.AnalysisResult, bool, error) {
	r, ok := m[assetID]
	return r, ok, nil
}

// buildClusters turns buckets of input indices into clusters, dropping
// singletons. Members keep input order and clusters are ordered by their
// first member.
func buildClusters(assets []models.AssetRef, buckets map[int][]int, similarity func(members []int) float64) []Cluster {
	var keys [][]int
	for _, members := range buckets {
		if len(members) < 2 {
			continue
		}
		sort.Ints(members)
		keys = append(keys, members)
	}

	// Sort clusters by first member for consistent output
	sort.Slice(keys, func(i, j int) bool {
		return keys[i][0] < keys[j][0]
	})

	clusters := make([]Cluster, 0, len(keys))
	for _, members := range keys {
		ids := make([]string, len(members))
		for i, idx := range members {
			ids[i] = assets[idx].ID
		}
		clusters = append(clusters, Cluster{
			MemberIDs:  ids,
			Similarity: models.Clamp01(similarity(members)),
		})
	}
	return clusters
}
