package match

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"photosweep/internal/detect"
	"photosweep/internal/models"
)

// hashed builds assets and a MapSource from raw 64-bit hashes
func hashed(hashes ...uint64) ([]models.AssetRef, MapSource) {
	assets := make([]models.AssetRef, len(hashes))
	src := make(MapSource)
	for i, h := range hashes {
		id := fmt.Sprintf("img-%d", i)
		assets[i] = models.AssetRef{ID: id, MediaType: models.MediaPhoto}
		src[id] = models.NewAnalysisResult(models.AnalysisFields{AssetID: id, FeatureVectorHash: detect.EncodeHash(h)})
	}
	return assets, src
}

func TestPerceptualClusterer_Empty(t *testing.T) {
	c := NewPerceptualClusterer(MapSource{})
	clusters, err := c.FindClusters(context.Background(), nil, 0.85)
	if err != nil || clusters != nil {
		t.Errorf("expected nil for empty input, got %v, %v", clusters, err)
	}
}

func TestPerceptualClusterer_NoDuplicates(t *testing.T) {
	assets, src := hashed(0, 0xFFFFFFFF)
	clusters, err := NewPerceptualClusterer(src).FindClusters(context.Background(), assets, 0.85)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 0 {
		t.Errorf("expected no clusters for distant images, got %d", len(clusters))
	}
}

func TestPerceptualClusterer_SimilarImages(t *testing.T) {
	// Threshold 0.97 allows a distance of 1
	assets, src := hashed(
		0b00000000,
		0b00000001, // distance 1 from a
		0b00000011, // distance 1 from b, so chained in
		0b11111111, // far away
	)
	clusters, err := NewPerceptualClusterer(src).FindClusters(context.Background(), assets, 0.97)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}

	want := []string{"img-0", "img-1", "img-2"}
	if fmt.Sprint(clusters[0].MemberIDs) != fmt.Sprint(want) {
		t.Errorf("MemberIDs = %v, want %v", clusters[0].MemberIDs, want)
	}

	// Pair distances 1, 2, 1 over 64 bits
	wantSim := (3 - 4.0/64) / 3
	if diff := clusters[0].Similarity - wantSim; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Similarity = %v, want %v", clusters[0].Similarity, wantSim)
	}
}

func TestPerceptualClusterer_MultipleClusters(t *testing.T) {
	assets, src := hashed(
		0x0000000000000000,
		0xFFFFFFFFFFFFFFFF,
		0x0000000000000001,
		0xFFFFFFFFFFFFFFFE,
	)
	clusters, err := NewPerceptualClusterer(src).FindClusters(context.Background(), assets, 0.97)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if clusters[0].MemberIDs[0] != "img-0" || clusters[1].MemberIDs[0] != "img-1" {
		t.Errorf("clusters not ordered by first member: %v", clusters)
	}
}

func TestPerceptualClusterer_SkipsUnhashedAndVideos(t *testing.T) {
	assets, src := hashed(0, 0, 0)
	assets[1].MediaType = models.MediaVideo
	src["img-2"] = models.NewAnalysisResult(models.AnalysisFields{AssetID: "img-2"})
	assets = append(assets, models.AssetRef{ID: "never-analyzed"})

	clusters, err := NewPerceptualClusterer(src).FindClusters(context.Background(), assets, 0.85)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 0 {
		t.Errorf("expected no clusters, got %v", clusters)
	}
}

type failingSource struct{}

func (failingSource) Analysis(ctx context.Context, id string) (models.AnalysisResult, bool, error) {
	return models.AnalysisResult{}, false, errors.New("database is locked")
}

func TestPerceptualClusterer_SourceError(t *testing.T) {
	assets, _ := hashed(0, 1)
	if _, err := NewPerceptualClusterer(failingSource{}).FindClusters(context.Background(), assets, 0.85); err == nil {
		t.Error("expected error from failing source")
	}
}

func TestPerceptualClusterer_Cancelled(t *testing.T) {
	assets, src := hashed(0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPerceptualClusterer(src).FindClusters(ctx, assets, 0.85); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// The BK-tree must find the same components as comparing every pair
func TestPerceptualClusterer_EquivalenceWithBruteForce(t *testing.T) {
	raw := make([]uint64, 60)
	for i := range raw {
		raw[i] = uint64(i * 7)
	}
	assets, src := hashed(raw...)

	threshold := 0.92
	maxDist := detect.MaxDistance(threshold)

	clusters, err := NewPerceptualClusterer(src).FindClusters(context.Background(), assets, threshold)
	if err != nil {
		t.Fatal(err)
	}

	uf := newUnionFind(len(raw))
	for i := 0; i < len(raw); i++ {
		for j := i + 1; j < len(raw); j++ {
			if detect.HammingDistance(raw[i], raw[j]) <= maxDist {
				uf.union(i, j)
			}
		}
	}
	expected := 0
	for _, members := range uf.buckets() {
		if len(members) >= 2 {
			expected++
		}
	}

	if len(clusters) != expected {
		t.Errorf("BK-tree found %d clusters, brute force found %d", len(clusters), expected)
	}
}

func BenchmarkPerceptualClusterer_5000(b *testing.B) {
	raw := make([]uint64, 5000)
	for i := range raw {
		raw[i] = uint64(i * 12345)
	}
	assets, src := hashed(raw...)
	c := NewPerceptualClusterer(src)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.FindClusters(context.Background(), assets, 0.85)
	}
}
