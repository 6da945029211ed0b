package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photosweep/internal/detect"
	"photosweep/internal/match"
	"photosweep/internal/models"
	"photosweep/internal/score"
)

// library is a fake photo library: per-asset hash and blur, plus assets
// that fail to load
type library struct {
	hashes map[string]uint64
	blur   map[string]float64
	broken map[string]bool
}

func (l library) config() Config {
	set := detect.Set{
		Features: detect.FeatureExtractorFunc(func(ctx context.Context, src *detect.Source) (detect.FeatureResult, error) {
			h, ok := l.hashes[src.Asset.ID]
			if !ok {
				return detect.FeatureResult{}, errors.New("no hash")
			}
			return detect.FeatureResult{Hash: detect.EncodeHash(h)}, nil
		}),
		Blur: detect.BlurDetectorFunc(func(ctx context.Context, src *detect.Source) (detect.BlurResult, error) {
			return detect.BlurResult{Score: l.blur[src.Asset.ID]}, nil
		}),
	}
	return Config{
		Detectors: &set,
		Loader: detect.LoaderFunc(func(ctx context.Context, asset models.AssetRef) (*detect.Source, error) {
			if l.broken[asset.ID] {
				return nil, errors.New("truncated file")
			}
			return &detect.Source{Asset: asset}, nil
		}),
		Concurrency: 3,
	}
}

func refs(ids ...string) []models.AssetRef {
	out := make([]models.AssetRef, len(ids))
	for i, id := range ids {
		out[i] = models.AssetRef{ID: id, MediaType: models.MediaPhoto, FileSize: 1000}
	}
	return out
}

func TestEngine_AnalyzeThenGroup(t *testing.T) {
	lib := library{
		hashes: map[string]uint64{"a": 0b0000, "b": 0b0001, "c": 0b0011, "far": 0xFFFFFFFFFFFFFFFF},
		blur:   map[string]float64{"a": 0.3, "b": 0.05, "c": 0.2, "far": 0.1},
		broken: map[string]bool{"bad": true},
	}
	e, err := New(lib.config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	assets := refs("a", "b", "c", "far", "bad")
	results, err := e.AnalyzeMany(context.Background(), assets, nil)
	if err != nil {
		t.Fatalf("AnalyzeMany failed: %v", err)
	}
	if len(results) != len(assets) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(assets))
	}
	if results[4].AssetID != "bad" || results[4].QualityScore != 0 {
		t.Errorf("broken asset should be degraded, got %+v", results[4])
	}

	groups, err := e.GroupResults(context.Background(), assets, results, models.DefaultGroupingOptions().Only(models.GroupSimilar))
	if err != nil {
		t.Fatalf("GroupResults failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 similar group, got %d: %v", len(groups), groups)
	}
	g := groups[0]
	if fmt.Sprint(g.MemberIDs) != "[a b c]" {
		t.Errorf("MemberIDs = %v, want [a b c]", g.MemberIDs)
	}
	if id, ok := g.BestShotID(); !ok || id != "b" {
		t.Errorf("BestShotID() = %q, %v; want the sharpest member b", id, ok)
	}
	if g.ReclaimableSize()+g.FileSizes[*g.BestShotIndex] != g.TotalSize() {
		t.Error("reclaimable size plus best shot size must equal total size")
	}
}

func TestEngine_GroupManyUsesConfiguredSource(t *testing.T) {
	src := match.NewMapSource([]models.AnalysisResult{
		models.NewAnalysisResult(models.AnalysisFields{AssetID: "x", FeatureVectorHash: detect.EncodeHash(7), QualityScore: 0.4}),
		models.NewAnalysisResult(models.AnalysisFields{AssetID: "y", FeatureVectorHash: detect.EncodeHash(7), QualityScore: 0.8}),
	})
	e, err := New(Config{Analyses: src, DisableDuplicates: true})
	if err != nil {
		t.Fatal(err)
	}

	groups, err := e.FindSimilarGroups(context.Background(), refs("x", "y"))
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}

	idx, err := e.SelectBestShot(context.Background(), groups[0].WithBestShot(nil))
	if err != nil {
		t.Fatal(err)
	}
	if idx == nil || *idx != 1 {
		t.Errorf("SelectBestShot() = %v, want 1", idx)
	}

	all, err := e.GroupMany(context.Background(), refs("x", "y"), models.DefaultGroupingOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("GroupMany returned %d groups, want 1", len(all))
	}
}

func TestEngine_EmptyInputs(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	results, err := e.AnalyzeMany(context.Background(), nil, func(float64) { calls++ })
	if err != nil || len(results) != 0 || calls != 0 {
		t.Errorf("AnalyzeMany(nil) = %v, %v with %d callbacks", results, err, calls)
	}

	groups, err := e.GroupMany(context.Background(), nil, models.DefaultGroupingOptions())
	if err != nil || groups == nil || len(groups) != 0 {
		t.Errorf("GroupMany(nil) = %v, %v", groups, err)
	}
}

func TestEngine_AnalyzeOneUnreadable(t *testing.T) {
	lib := library{broken: map[string]bool{"bad": true}}
	e, err := New(lib.config())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AnalyzeOne(context.Background(), models.AssetRef{ID: "bad"}); !errors.Is(err, ErrAssetUnreadable) {
		t.Errorf("expected ErrAssetUnreadable, got %v", err)
	}
}

func TestEngine_InvalidWeights(t *testing.T) {
	if _, err := New(Config{Weights: &score.Weights{Sharpness: -1}}); err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestEngine_ClusteringFailure(t *testing.T) {
	e, err := New(Config{
		DisableDuplicates: true,
		Clusterer: match.ClustererFunc(func(ctx context.Context, assets []models.AssetRef, threshold float64) ([]match.Cluster, error) {
			return nil, errors.New("out of memory")
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.GroupMany(context.Background(), refs("a", "b"), models.DefaultGroupingOptions())
	if !errors.Is(err, ErrClustering) {
		t.Errorf("expected ErrClustering, got %v", err)
	}
	if IsCancelled(err) {
		t.Error("a clustering failure is not a cancellation")
	}
}

func TestEngine_Cancellation(t *testing.T) {
	lib := library{}
	e, err := New(lib.config())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.AnalyzeMany(ctx, refs("a", "b"), nil)
	if !errors.Is(err, ErrCancelled) || !IsCancelled(err) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	lib := library{
		hashes: map[string]uint64{"a": 1, "b": 1},
		blur:   map[string]float64{"a": 0.1, "b": 0.2},
	}
	e, err := New(lib.config())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assets := refs("a", "b")
			results, err := e.AnalyzeMany(context.Background(), assets, nil)
			if err != nil {
				errs <- err
				return
			}
			groups, err := e.GroupResults(context.Background(), assets, results, models.DefaultGroupingOptions())
			if err != nil {
				errs <- err
				return
			}
			if len(groups) != 1 {
				errs <- fmt.Errorf("got %d groups, want 1", len(groups))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestEngine_ConcurrencyCeilingWithDetectorTimeout(t *testing.T) {
	var inFlight, peak int32
	set := detect.Set{
		Blur: detect.BlurDetectorFunc(func(ctx context.Context, src *detect.Source) (detect.BlurResult, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(40 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return detect.BlurResult{Score: 0.1}, nil
		}),
	}.WithTimeout(5 * time.Millisecond)

	cfg := library{}.config()
	cfg.Detectors = &set
	cfg.Concurrency = 2
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	results, err := e.AnalyzeMany(context.Background(), refs("a", "b", "c", "d", "e", "f", "g", "h", "i", "j"), nil)
	if err != nil {
		t.Fatalf("AnalyzeMany failed: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("len(results) = %d, want 10", len(results))
	}
	if peak > 2 {
		t.Errorf("peak in-flight detector calls = %d, want <= 2", peak)
	}
}

func TestEngine_OnAnalysisFailure(t *testing.T) {
	lib := library{
		hashes: map[string]uint64{"a": 1},
		broken: map[string]bool{"bad": true},
	}
	var failed []string
	var mu sync.Mutex
	cfg := lib.config()
	cfg.OnAnalysisFailure = func(asset models.AssetRef, err error) {
		if !errors.Is(err, ErrAssetUnreadable) {
			t.Errorf("failure for %s = %v, want ErrAssetUnreadable", asset.ID, err)
		}
		mu.Lock()
		failed = append(failed, asset.ID)
		mu.Unlock()
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// "b" has no hash and no blur, so it scores low but is not a failure
	if _, err := e.AnalyzeMany(context.Background(), refs("a", "b", "bad"), nil); err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Errorf("failed = %v, want [bad]", failed)
	}
}
