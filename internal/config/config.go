// Package config loads photosweep settings from a YAML file, a .env file
// and PHOTOSWEEP_* environment variables, in that order.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"photosweep/internal/models"
	"photosweep/internal/score"
)

// DefaultConfigYAML is the commented config written by WriteDefault
//
//go:embed default.yaml
var DefaultConfigYAML []byte

// Config is the full photosweep configuration
type Config struct {
	Database Database `yaml:"database"`
	Scan     Scan     `yaml:"scan"`
	Analysis Analysis `yaml:"analysis"`
	Grouping Grouping `yaml:"grouping"`
}

// Database locates the sqlite file. An empty path in YAML selects the
// default under Dir.
type Database struct {
	Path string `yaml:"path"`
}

// Scan configures folder walking
type Scan struct {
	Workers   int  `yaml:"workers"`
	Hidden    bool `yaml:"hidden"`
	HashFiles bool `yaml:"hash_files"`
}

// Analysis configures photo analysis. DetectorTimeout bounds every
// detector call; zero disables it.
type Analysis struct {
	Concurrency     int           `yaml:"concurrency"`
	DetectorTimeout time.Duration `yaml:"detector_timeout"`
	Weights         score.Weights `yaml:"weights"`
}

// Grouping holds the defaults for grouping options
type Grouping struct {
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	MinimumGroupSize    int      `yaml:"minimum_group_size"`
	LargeVideoMB        int64    `yaml:"large_video_mb"`
	AutoSelectBestShot  bool     `yaml:"auto_select_best_shot"`
	Types               []string `yaml:"types"`
}

// Dir returns the photosweep directory in the user's home
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".photosweep"
	}
	return filepath.Join(home, ".photosweep")
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Database: Database{Path: filepath.Join(Dir(), "photos.db")},
		Scan:     Scan{Workers: 8},
		Analysis: Analysis{
			Concurrency:     12,
			DetectorTimeout: 30 * time.Second,
			Weights:         score.DefaultWeights(),
		},
		Grouping: Grouping{
			SimilarityThreshold: models.DefaultSimilarityThreshold,
			MinimumGroupSize:    models.DefaultMinimumGroupSize,
			LargeVideoMB:        models.DefaultLargeVideoThreshold / (1024 * 1024),
			AutoSelectBestShot:  true,
		},
	}
}

// Load reads the config file at path, then applies .env and environment
// overrides. A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = Default().Database.Path
	}
	return cfg, nil
}

// applyEnv overrides fields from PHOTOSWEEP_* variables
func (c *Config) applyEnv(getenv func(string) string) error {
	if s := getenv("PHOTOSWEEP_DB"); s != "" {
		c.Database.Path = s
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PHOTOSWEEP_WORKERS", &c.Scan.Workers},
		{"PHOTOSWEEP_CONCURRENCY", &c.Analysis.Concurrency},
		{"PHOTOSWEEP_MIN_GROUP_SIZE", &c.Grouping.MinimumGroupSize},
	}
	for _, v := range ints {
		s := getenv(v.key)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s: %w", v.key, err)
		}
		*v.dst = n
	}

	if s := getenv("PHOTOSWEEP_THRESHOLD"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("PHOTOSWEEP_THRESHOLD: %w", err)
		}
		c.Grouping.SimilarityThreshold = f
	}
	if s := getenv("PHOTOSWEEP_DETECTOR_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("PHOTOSWEEP_DETECTOR_TIMEOUT: %w", err)
		}
		c.Analysis.DetectorTimeout = d
	}
	return nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is empty"))
	}
	if c.Scan.Workers < 1 {
		errs = append(errs, fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers))
	}
	if c.Analysis.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("analysis.concurrency must be positive, got %d", c.Analysis.Concurrency))
	}
	if c.Analysis.DetectorTimeout < 0 {
		errs = append(errs, fmt.Errorf("analysis.detector_timeout must not be negative, got %s", c.Analysis.DetectorTimeout))
	}
	if err := c.Analysis.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analysis.weights: %w", err))
	}
	if t := c.Grouping.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("grouping.similarity_threshold must be in [0, 1], got %v", t))
	}
	for _, name := range c.Grouping.Types {
		if _, err := models.ParseGroupType(name); err != nil {
			errs = append(errs, fmt.Errorf("grouping.types: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GroupingOptions converts the grouping section into engine options
func (c *Config) GroupingOptions() models.GroupingOptions {
	g := c.Grouping
	largeVideo := g.LargeVideoMB * 1024 * 1024
	opts := models.NewGroupingOptions(models.GroupingOptionsParams{
		SimilarityThreshold: &g.SimilarityThreshold,
		MinimumGroupSize:    &g.MinimumGroupSize,
		LargeVideoThreshold: &largeVideo,
		AutoSelectBestShot:  &g.AutoSelectBestShot,
	})
	if len(g.Types) == 0 {
		return opts
	}
	types := make([]models.GroupType, 0, len(g.Types))
	for _, name := range g.Types {
		if t, err := models.ParseGroupType(name); err == nil {
			types = append(types, t)
		}
	}
	return opts.Only(types...)
}

// WriteDefault writes the default config file to path unless it exists
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, DefaultConfigYAML, 0644)
}
