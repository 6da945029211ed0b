package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photosweep/internal/detect"
	"photosweep/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStorage(t *testing.T) {
	store := newTestStorage(t)
	if store.db == nil {
		t.Error("db should not be nil")
	}
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed to create directories: %v", err)
	}
	defer store.Close()

	if store.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", store.Path(), dbPath)
	}
}

func TestSaveAssets_AndAssets(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	taken := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mod := time.Date(2024, 6, 2, 8, 30, 0, 0, time.UTC)
	assets := []models.AssetRef{
		{
			ID:          "b",
			Path:        "/photos/b.jpg",
			MediaType:   models.MediaPhoto,
			FileSize:    1024000,
			ModTime:     mod,
			CreatedAt:   taken,
			FrontCamera: true,
			FileHash:    "abc123",
		},
		{
			ID:        "a",
			Path:      "/photos/a.mov",
			MediaType: models.MediaVideo,
			FileSize:  512000,
			ModTime:   mod,
		},
	}

	if err := store.SaveAssets(ctx, assets); err != nil {
		t.Fatalf("SaveAssets failed: %v", err)
	}

	got, err := store.Assets(ctx)
	if err != nil {
		t.Fatalf("Assets failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d assets, want 2", len(got))
	}

	// ordered by path
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = [%s %s], want [a b]", got[0].ID, got[1].ID)
	}

	b := got[1]
	if b.MediaType != models.MediaPhoto || b.FileSize != 1024000 || b.FileHash != "abc123" || !b.FrontCamera {
		t.Errorf("asset b = %+v", b)
	}
	if !b.ModTime.Equal(mod) || !b.CreatedAt.Equal(taken) {
		t.Errorf("times = (%v, %v), want (%v, %v)", b.ModTime, b.CreatedAt, mod, taken)
	}
	if !got[0].CreatedAt.IsZero() {
		t.Errorf("unknown capture time should stay zero, got %v", got[0].CreatedAt)
	}
	if !got[0].IsVideo() {
		t.Error("a.mov should be stored as a video")
	}
}

func TestSaveAssets_Upsert(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	asset := models.AssetRef{ID: "x", Path: "/x.jpg", MediaType: models.MediaPhoto, FileSize: 100, ModTime: time.Now()}
	if err := store.SaveAssets(ctx, []models.AssetRef{asset}); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	asset.FileSize = 200
	asset.FileHash = "updated"
	if err := store.SaveAssets(ctx, []models.AssetRef{asset}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := store.Assets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 asset after upsert, got %d", len(got))
	}
	if got[0].FileSize != 200 || got[0].FileHash != "updated" {
		t.Errorf("upsert did not update: %+v", got[0])
	}
}

func TestResolve_AndFileSize(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	asset := models.AssetRef{ID: "x", Path: "/x.jpg", MediaType: models.MediaPhoto, FileSize: 4096, ModTime: time.Now()}
	if err := store.SaveAssets(ctx, []models.AssetRef{asset}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Resolve(ctx, "x")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Path != "/x.jpg" {
		t.Errorf("Path = %q, want /x.jpg", got.Path)
	}

	size, err := store.FileSize(ctx, "x")
	if err != nil || size != 4096 {
		t.Errorf("FileSize = %d, %v; want 4096", size, err)
	}

	if _, err := store.Resolve(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := store.FileSize(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FileSize(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSaveAnalyses_AndAnalysis(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	at := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	want := models.NewAnalysisResult(models.AnalysisFields{
		AssetID:           "x",
		AnalyzedAt:        at,
		QualityScore:      0.75,
		BlurScore:         0.1,
		BrightnessScore:   0.6,
		ContrastScore:     0.4,
		SaturationScore:   0.3,
		FaceCount:         2,
		FaceQualityScores: []float64{0.9, 0.5},
		FaceAngles:        []models.FaceAngle{{Yaw: 10}, {Pitch: -5, Roll: 2}},
		IsSelfie:          true,
		FeatureVectorHash: detect.EncodeHash(0xDEADBEEF),
	})

	if err := store.SaveAnalyses(ctx, []models.AnalysisResult{want}); err != nil {
		t.Fatalf("SaveAnalyses failed: %v", err)
	}

	got, ok, err := store.Analysis(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("Analysis = %v, %v", ok, err)
	}
	if got.QualityScore != 0.75 || got.BlurScore != 0.1 || got.FaceCount != 2 || !got.IsSelfie || got.IsScreenshot {
		t.Errorf("scores did not round-trip: %+v", got)
	}
	if !got.AnalyzedAt.Equal(at) {
		t.Errorf("AnalyzedAt = %v, want %v", got.AnalyzedAt, at)
	}
	if len(got.FaceQualityScores) != 2 || got.FaceQualityScores[0] != 0.9 {
		t.Errorf("FaceQualityScores = %v", got.FaceQualityScores)
	}
	if len(got.FaceAngles) != 2 || got.FaceAngles[0].Yaw != 10 || got.FaceAngles[1].Pitch != -5 {
		t.Errorf("FaceAngles = %v", got.FaceAngles)
	}
	if h, ok := detect.DecodeHash(got.FeatureVectorHash); !ok || h != 0xDEADBEEF {
		t.Errorf("hash = %x, %v", h, ok)
	}

	_, ok, err = store.Analysis(ctx, "never-analyzed")
	if err != nil || ok {
		t.Errorf("Analysis(never-analyzed) = %v, %v; want false, nil", ok, err)
	}
}

func TestAnalysis_NoFaces(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	degraded := models.DegradedResult("x", time.Now())
	if err := store.SaveAnalyses(ctx, []models.AnalysisResult{degraded}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Analysis(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("Analysis = %v, %v", ok, err)
	}
	if got.FaceQualityScores != nil || got.FaceAngles != nil || got.HasFeatureVector() {
		t.Errorf("degraded result gained data: %+v", got)
	}
	if got.BrightnessScore != models.NeutralScore {
		t.Errorf("BrightnessScore = %v, want neutral", got.BrightnessScore)
	}
}

func TestStaleAssets(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assets := []models.AssetRef{
		{ID: "fresh", Path: "/fresh.jpg", MediaType: models.MediaPhoto, FileSize: 1, ModTime: t0},
		{ID: "changed", Path: "/changed.jpg", MediaType: models.MediaPhoto, FileSize: 1, ModTime: t0.Add(48 * time.Hour)},
		{ID: "new", Path: "/new.jpg", MediaType: models.MediaPhoto, FileSize: 1, ModTime: t0},
	}
	if err := store.SaveAssets(ctx, assets); err != nil {
		t.Fatal(err)
	}

	analyses := []models.AnalysisResult{
		models.NewAnalysisResult(models.AnalysisFields{AssetID: "fresh", AnalyzedAt: t0.Add(time.Hour)}),
		models.NewAnalysisResult(models.AnalysisFields{AssetID: "changed", AnalyzedAt: t0.Add(time.Hour)}),
	}
	if err := store.SaveAnalyses(ctx, analyses); err != nil {
		t.Fatal(err)
	}

	stale, err := store.StaleAssets(ctx)
	if err != nil {
		t.Fatalf("StaleAssets failed: %v", err)
	}
	if len(stale) != 2 || stale[0].ID != "changed" || stale[1].ID != "new" {
		t.Errorf("stale = %v, want [changed new]", stale)
	}
}

func TestDeleteAsset(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	assets := []models.AssetRef{
		{ID: "keep", Path: "/keep.jpg", MediaType: models.MediaPhoto, FileSize: 100, ModTime: time.Now()},
		{ID: "delete", Path: "/delete.jpg", MediaType: models.MediaPhoto, FileSize: 100, ModTime: time.Now()},
	}
	if err := store.SaveAssets(ctx, assets); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveAnalyses(ctx, []models.AnalysisResult{models.DegradedResult("delete", time.Now())}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteAsset(ctx, "delete"); err != nil {
		t.Fatalf("DeleteAsset failed: %v", err)
	}

	got, err := store.Assets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "keep" {
		t.Errorf("remaining = %v, want [keep]", got)
	}
	if _, ok, _ := store.Analysis(ctx, "delete"); ok {
		t.Error("analysis of deleted asset should be gone")
	}
}

func TestPruneMissing(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	existing := filepath.Join(t.TempDir(), "here.jpg")
	if err := os.WriteFile(existing, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	assets := []models.AssetRef{
		{ID: "here", Path: existing, MediaType: models.MediaPhoto, FileSize: 1, ModTime: time.Now()},
		{ID: "gone", Path: filepath.Join(t.TempDir(), "gone.jpg"), MediaType: models.MediaPhoto, FileSize: 1, ModTime: time.Now()},
	}
	if err := store.SaveAssets(ctx, assets); err != nil {
		t.Fatal(err)
	}

	removed, err := store.PruneMissing(ctx)
	if err != nil {
		t.Fatalf("PruneMissing failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := store.Resolve(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("gone should be pruned, got %v", err)
	}
}

func TestRecordScan(t *testing.T) {
	store := newTestStorage(t)

	err := store.RecordScan(context.Background(), "/path/to/folder", 100, 90, 3)
	if err != nil {
		t.Fatalf("RecordScan failed: %v", err)
	}

	// Verify by querying directly
	var folder string
	var total, analyzed, failed int
	err = store.db.QueryRow("SELECT folder, total_assets, total_analyzed, total_failed FROM scan_history LIMIT 1").Scan(&folder, &total, &analyzed, &failed)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if folder != "/path/to/folder" {
		t.Errorf("folder = %q, want /path/to/folder", folder)
	}
	if total != 100 || analyzed != 90 || failed != 3 {
		t.Errorf("stats = (%d, %d, %d), want (100, 90, 3)", total, analyzed, failed)
	}
}

func TestCounts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	assets, analyzed, err := store.Counts(ctx)
	if err != nil || assets != 0 || analyzed != 0 {
		t.Fatalf("initial Counts = %d, %d, %v", assets, analyzed, err)
	}

	refs := []models.AssetRef{
		{ID: "a", Path: "/a.jpg", MediaType: models.MediaPhoto, FileSize: 1, ModTime: time.Now()},
		{ID: "b", Path: "/b.jpg", MediaType: models.MediaPhoto, FileSize: 1, ModTime: time.Now()},
	}
	if err := store.SaveAssets(ctx, refs); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveAnalyses(ctx, []models.AnalysisResult{models.DegradedResult("a", time.Now())}); err != nil {
		t.Fatal(err)
	}

	assets, analyzed, err = store.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if assets != 2 || analyzed != 1 {
		t.Errorf("Counts = (%d, %d), want (2, 1)", assets, analyzed)
	}
}

func TestMigrations(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	// Check schema version
	version := store.getSchemaVersion()
	if version != schemaVersion {
		t.Errorf("schema version = %d, want %d", version, schemaVersion)
	}

	// Check file_hash column exists
	if !store.columnExists("assets", "file_hash") {
		t.Error("file_hash column should exist after migrations")
	}

	store.Close()

	// Reopen - should not fail
	store2, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("second NewStorage failed: %v", err)
	}
	defer store2.Close()

	version2 := store2.getSchemaVersion()
	if version2 != schemaVersion {
		t.Errorf("schema version after reopen = %d, want %d", version2, schemaVersion)
	}
}
