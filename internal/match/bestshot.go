package match

import (
	"context"
	"sort"

	"photosweep/internal/models"
)

// QualityBestShot keeps the member with the best analysis
type QualityBestShot struct{}

// NewQualityBestShot creates a QualityBestShot
func NewQualityBestShot() *QualityBestShot {
	return &QualityBestShot{}
}

type candidate struct {
	index    int
	analysis models.AnalysisResult
	size     int64
}

// SelectBest ranks members that have an analysis by quality score (higher
// is better), then sharpness, then best face quality, then file size
// (larger keeps more information). It returns nil when no member was
// analyzed or when the top two are equal on every key.
func (s *QualityBestShot) SelectBest(ctx context.Context, group models.Group, analyses map[string]models.AnalysisResult) (*int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []candidate
	for i, id := range group.MemberIDs {
		r, ok := analyses[id]
		if !ok {
			continue
		}
		c := candidate{index: i, analysis: r}
		if i < len(group.FileSizes) {
			c.size = group.FileSizes[i]
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return compareCandidates(candidates[i], candidates[j]) > 0
	})

	if len(candidates) > 1 && compareCandidates(candidates[0], candidates[1]) == 0 {
		return nil, nil
	}

	best := candidates[0].index
	return &best, nil
}

// compareCandidates returns a positive number when a ranks above b
func compareCandidates(a, b candidate) int {
	keys := [][2]float64{
		// Primary: quality score
		{a.analysis.QualityScore, b.analysis.QualityScore},
		// Secondary: sharpness
		{a.analysis.Sharpness(), b.analysis.Sharpness()},
		// Tertiary: best face
		{a.analysis.BestFaceQuality(), b.analysis.BestFaceQuality()},
		// Fallback: file size
		{float64(a.size), float64(b.size)},
	}
	for _, k := range keys {
		switch {
		case k[0] > k[1]:
			return 1
		case k[0] < k[1]:
			return -1
		}
	}
	return 0
}
