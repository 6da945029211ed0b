package match

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"photosweep/internal/models"
)

func TestExactClusterer_Empty(t *testing.T) {
	clusters, err := NewExactClusterer(nil).FindClusters(context.Background(), nil, 0)
	if err != nil || clusters != nil {
		t.Errorf("expected nil for empty input, got %v, %v", clusters, err)
	}
}

func TestExactClusterer_NoDuplicates(t *testing.T) {
	assets := []models.AssetRef{
		{ID: "a", FileHash: "abc123"},
		{ID: "b", FileHash: "def456"},
	}
	clusters, err := NewExactClusterer(nil).FindClusters(context.Background(), assets, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 0 {
		t.Errorf("expected no clusters, got %d", len(clusters))
	}
}

func TestExactClusterer_Duplicates(t *testing.T) {
	assets := []models.AssetRef{
		{ID: "a", FileHash: "abc123"},
		{ID: "b", FileHash: "abc123"}, // same hash
		{ID: "c", FileHash: "def456"},
	}
	clusters, err := NewExactClusterer(nil).FindClusters(context.Background(), assets, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].Similarity != 1 {
		t.Errorf("Similarity = %v, want 1", clusters[0].Similarity)
	}
	if len(clusters[0].MemberIDs) != 2 || clusters[0].MemberIDs[0] != "a" {
		t.Errorf("MemberIDs = %v, want [a b]", clusters[0].MemberIDs)
	}
}

func TestExactClusterer_HashesOnDemand(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) models.AssetRef {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return models.AssetRef{ID: name, Path: path, FileSize: int64(len(content))}
	}

	assets := []models.AssetRef{
		write("a.jpg", "same bytes"),
		write("b.jpg", "same bytes"),
		write("c.jpg", "diff bytes"), // same size, different content
		write("d.jpg", "unique size file"),
	}

	c := NewExactClusterer(nil)
	hashed := map[string]bool{}
	inner := c.hashFile
	c.hashFile = func(path string) (string, error) {
		hashed[filepath.Base(path)] = true
		return inner(path)
	}

	clusters, err := c.FindClusters(context.Background(), assets, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 1 || len(clusters[0].MemberIDs) != 2 {
		t.Fatalf("expected one cluster of a and b, got %v", clusters)
	}
	if hashed["d.jpg"] {
		t.Error("a file with a unique size should not be hashed")
	}
	if !hashed["c.jpg"] {
		t.Error("a file sharing its size should be hashed")
	}
}

func TestExactClusterer_UnreadableFileSkipped(t *testing.T) {
	assets := []models.AssetRef{
		{ID: "a", Path: "/nonexistent/a.jpg", FileSize: 10},
		{ID: "b", Path: "/nonexistent/b.jpg", FileSize: 10},
	}
	clusters, err := NewExactClusterer(nil).FindClusters(context.Background(), assets, 0)
	if err != nil {
		t.Fatalf("unreadable files should be skipped, got %v", err)
	}
	if len(clusters) != 0 {
		t.Errorf("expected no clusters, got %v", clusters)
	}
}

func TestExactClusterer_EmptyFilesSkipped(t *testing.T) {
	dir := t.TempDir()
	var assets []models.AssetRef
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
		assets = append(assets, models.AssetRef{ID: name, Path: path})
	}
	// Precomputed hashes of empty files are ignored too
	assets = append(assets,
		models.AssetRef{ID: "d", FileHash: emptyFileHash},
		models.AssetRef{ID: "e", FileHash: emptyFileHash},
	)

	c := NewExactClusterer(nil)
	c.hashFile = func(path string) (string, error) {
		t.Errorf("empty file %s should not be hashed", filepath.Base(path))
		return "", nil
	}

	clusters, err := c.FindClusters(context.Background(), assets, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 0 {
		t.Errorf("expected no clusters for empty files, got %v", clusters)
	}
}
