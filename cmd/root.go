package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"photosweep/internal/config"
	"photosweep/internal/detect"
	"photosweep/internal/engine"
	"photosweep/internal/storage"
)

var (
	cfgPath   string
	dbPath    string
	threshold float64
	workers   int
	verbose   bool

	cfg    *config.Config
	logger = log.New(io.Discard, "", 0)
)

var rootCmd = &cobra.Command{
	Use:   "photosweep",
	Short: "Find redundant and low-value photos",
	Long: `photosweep is a CLI tool for cleaning up photo collections.

It analyzes every photo for sharpness, exposure, faces and screenshot
traits, then groups near-duplicates, exact duplicates, blurry shots,
screenshots, selfies and large videos. Similar groups get a recommended
best shot to keep. photosweep never deletes anything itself.

Example usage:
  photosweep scan ./photos          # Scan and analyze a folder
  photosweep groups                 # List all groups
  photosweep groups -t duplicate    # Only exact duplicates
  photosweep analyze ./img.jpg      # Analyze a single file`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if engine.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "Cancelled.")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ~/.photosweep/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (default ~/.photosweep/photos.db)")
	rootCmd.PersistentFlags().Float64Var(&threshold, "threshold", 0, "Similarity threshold (0-1, higher = stricter)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Number of parallel workers")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log detector failures and skipped files")
}

// loadConfig merges the config file, environment and flags. Flags win.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		c.Database.Path = dbPath
	}
	if flags.Changed("threshold") {
		c.Grouping.SimilarityThreshold = threshold
	}
	if flags.Changed("workers") {
		c.Scan.Workers = workers
		c.Analysis.Concurrency = workers
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if verbose {
		logger = log.New(os.Stderr, "photosweep: ", log.Ltime)
	}
	cfg = c
	return nil
}

// openStorage opens the configured database
func openStorage() (*storage.Storage, error) {
	store, err := storage.NewStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// engineConfig builds the engine settings from the loaded config. Every
// detector is bounded by the configured timeout.
func engineConfig(store *storage.Storage) engine.Config {
	detectors := detect.DefaultSet().WithTimeout(cfg.Analysis.DetectorTimeout)
	ec := engine.Config{
		Detectors:   &detectors,
		Weights:     &cfg.Analysis.Weights,
		Concurrency: cfg.Analysis.Concurrency,
		Logger:      logger,
	}
	if store != nil {
		ec.Repository = store
		ec.Analyses = store
	}
	return ec
}

// newEngine builds an engine from the loaded config backed by store
func newEngine(store *storage.Storage) (*engine.Engine, error) {
	return engine.New(engineConfig(store))
}
