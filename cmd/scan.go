package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"photosweep/internal/engine"
	"photosweep/internal/models"
	"photosweep/internal/scan"
	"photosweep/internal/storage"
)

var (
	scanPrune bool
	scanForce bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Scan and analyze a folder",
	Long: `Scan a folder recursively for photos and videos and analyze them.

The scan will:
1. Find all supported photos (jpg, png, gif, webp, etc.) and videos
2. Read EXIF capture time and camera details
3. Analyze new or changed photos for sharpness, exposure and faces
4. Store results in the database so 'groups' runs without re-analyzing

Example:
  photosweep scan ./photos
  photosweep scan /path/to/photos --prune --workers 4`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanPrune, "prune", false, "Forget stored files that no longer exist")
	scanCmd.Flags().BoolVar(&scanForce, "force", false, "Re-analyze every photo, not only new or changed ones")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	folder := args[0]

	// Resolve absolute path
	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Check folder exists
	info, err := os.Stat(absFolder)
	if err != nil {
		return fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absFolder)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("Scanning: %s\n", absFolder)
	fmt.Printf("Workers: %d\n\n", cfg.Scan.Workers)

	// Initialize storage
	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if scanPrune {
		removed, err := store.PruneMissing(ctx)
		if err != nil {
			return fmt.Errorf("failed to prune: %w", err)
		}
		if removed > 0 {
			fmt.Printf("Pruned: %d missing files\n", removed)
		}
	}

	walkBar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Reading files"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	s := scan.NewScanner(
		scan.WithWorkers(cfg.Scan.Workers),
		scan.WithHidden(cfg.Scan.Hidden),
		scan.WithFileHash(cfg.Scan.HashFiles),
		scan.WithProgress(func(scanned, total int, current string) {
			walkBar.Add(1)
		}),
	)

	assets, err := s.ScanFolder(ctx, absFolder)
	walkBar.Finish()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Printf("Found: %d files\n", len(assets))
	if len(assets) == 0 {
		fmt.Println("No photos or videos found.")
		return nil
	}

	// Save assets to database
	if err := store.SaveAssets(ctx, assets); err != nil {
		return fmt.Errorf("failed to save assets: %w", err)
	}

	pending := assets
	if !scanForce {
		stale, err := store.StaleAssets(ctx)
		if err != nil {
			return err
		}
		pending = inScan(stale, assets)
	}
	var photos []models.AssetRef
	for _, a := range pending {
		if !a.IsVideo() {
			photos = append(photos, a)
		}
	}

	analyzed, failed, err := analyzePhotos(ctx, store, photos)
	if err != nil {
		return err
	}

	// Group everything under this folder, including photos analyzed earlier
	e, err := newEngine(store)
	if err != nil {
		return err
	}
	groups, err := e.GroupMany(ctx, assets, cfg.GroupingOptions())
	if err != nil {
		return fmt.Errorf("failed to group: %w", err)
	}

	// Record scan history
	if err := store.RecordScan(ctx, absFolder, len(assets), analyzed, failed); err != nil {
		logger.Printf("failed to record scan: %v", err)
	}

	// Print summary
	fmt.Println()
	fmt.Println("=== Scan Complete ===")
	fmt.Printf("Total files:      %d\n", len(assets))
	fmt.Printf("Analyzed:         %d\n", analyzed)
	if failed > 0 {
		fmt.Printf("Failed:           %d\n", failed)
	}
	fmt.Printf("Groups found:     %d\n", len(groups))
	count, size := reclaimable(groups)
	fmt.Printf("Reclaimable:      %d files, %s\n", count, formatSize(size))

	if len(groups) > 0 {
		fmt.Println()
		fmt.Println("Run 'photosweep groups' to see the groups")
	}

	return nil
}

// analyzePhotos analyzes photos with a progress bar and stores the
// results. Photos the engine had to degrade are counted as failed.
func analyzePhotos(ctx context.Context, store *storage.Storage, photos []models.AssetRef) (analyzed, failed int, err error) {
	if len(photos) == 0 {
		fmt.Println("Nothing new to analyze.")
		return 0, 0, nil
	}

	var unreadable atomic.Int64
	ec := engineConfig(nil)
	ec.OnAnalysisFailure = func(asset models.AssetRef, err error) {
		unreadable.Add(1)
		logger.Printf("%s: %v", asset.Path, err)
	}
	e, err := engine.New(ec)
	if err != nil {
		return 0, 0, err
	}

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	results, err := e.AnalyzeMany(ctx, photos, func(fraction float64) {
		bar.Set(int(fraction*float64(len(photos)) + 0.5))
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return 0, 0, err
	}

	if err := store.SaveAnalyses(ctx, results); err != nil {
		return 0, 0, fmt.Errorf("failed to save analyses: %w", err)
	}
	return len(results), int(unreadable.Load()), nil
}

// inScan keeps the stored assets that belong to the current scan
func inScan(stored, scanned []models.AssetRef) []models.AssetRef {
	ids := make(map[string]bool, len(scanned))
	for _, a := range scanned {
		ids[a.ID] = true
	}
	var out []models.AssetRef
	for _, a := range stored {
		if ids[a.ID] {
			out = append(out, a)
		}
	}
	return out
}
