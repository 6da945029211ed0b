package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photosweep/internal/models"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Database.Path != Default().Database.Path {
		t.Errorf("expected default database path, got %q", cfg.Database.Path)
	}
	if cfg.Analysis.Concurrency != 12 {
		t.Errorf("expected concurrency 12, got %d", cfg.Analysis.Concurrency)
	}
	if cfg.Analysis.DetectorTimeout != 30*time.Second {
		t.Errorf("expected detector timeout 30s, got %s", cfg.Analysis.DetectorTimeout)
	}
	if cfg.Analysis.Weights.Sharpness != 0.5 || cfg.Analysis.Weights.Face != 0.3 || cfg.Analysis.Weights.Screenshot != 0.2 {
		t.Errorf("unexpected weights %+v", cfg.Analysis.Weights)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
database:
  path: /tmp/photos.db
grouping:
  similarity_threshold: 0.9
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Database.Path != "/tmp/photos.db" {
		t.Errorf("expected path /tmp/photos.db, got %q", cfg.Database.Path)
	}
	if cfg.Grouping.SimilarityThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", cfg.Grouping.SimilarityThreshold)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Scan.Workers != 8 {
		t.Errorf("expected default workers 8, got %d", cfg.Scan.Workers)
	}
	if !cfg.Grouping.AutoSelectBestShot {
		t.Error("expected auto best shot to default to true")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := parse([]byte("analysis: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("PHOTOSWEEP_DB", "")
	t.Setenv("PHOTOSWEEP_CONCURRENCY", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("analysis:\n  concurrency: 4\n  detector_timeout: 2s\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analysis.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Analysis.Concurrency)
	}
	if cfg.Analysis.DetectorTimeout != 2*time.Second {
		t.Errorf("detector timeout = %s, want 2s", cfg.Analysis.DetectorTimeout)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("scan:\n  workers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PHOTOSWEEP_DB", filepath.Join(dir, "env.db"))
	t.Setenv("PHOTOSWEEP_CONCURRENCY", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != filepath.Join(dir, "env.db") {
		t.Errorf("database path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Analysis.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Analysis.Concurrency)
	}
	if cfg.Scan.Workers != 2 {
		t.Errorf("workers = %d, want 2 from file", cfg.Scan.Workers)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(*Config) bool
		wantErr bool
	}{
		{
			name:  "threshold",
			env:   map[string]string{"PHOTOSWEEP_THRESHOLD": "0.95"},
			check: func(c *Config) bool { return c.Grouping.SimilarityThreshold == 0.95 },
		},
		{
			name:  "timeout",
			env:   map[string]string{"PHOTOSWEEP_DETECTOR_TIMEOUT": "1m"},
			check: func(c *Config) bool { return c.Analysis.DetectorTimeout == time.Minute },
		},
		{
			name:  "min group size",
			env:   map[string]string{"PHOTOSWEEP_MIN_GROUP_SIZE": "3"},
			check: func(c *Config) bool { return c.Grouping.MinimumGroupSize == 3 },
		},
		{
			name:    "bad int",
			env:     map[string]string{"PHOTOSWEEP_WORKERS": "many"},
			wantErr: true,
		},
		{
			name:    "bad duration",
			env:     map[string]string{"PHOTOSWEEP_DETECTOR_TIMEOUT": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) string { return tt.env[k] })
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("override not applied: %+v", cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Scan.Workers = 0
	cfg.Analysis.Concurrency = -1
	cfg.Analysis.Weights.Face = -2
	cfg.Grouping.SimilarityThreshold = 1.5
	cfg.Grouping.Types = []string{"similar", "memes"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"scan.workers", "analysis.concurrency", "analysis.weights", "similarity_threshold", "memes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestGroupingOptions(t *testing.T) {
	cfg := Default()
	cfg.Grouping.SimilarityThreshold = 0.9
	cfg.Grouping.MinimumGroupSize = 3
	cfg.Grouping.LargeVideoMB = 50
	cfg.Grouping.AutoSelectBestShot = false

	opts := cfg.GroupingOptions()
	if opts.SimilarityThreshold != 0.9 || opts.MinimumGroupSize != 3 {
		t.Errorf("opts = %s", opts)
	}
	if opts.LargeVideoThreshold != 50*1024*1024 {
		t.Errorf("LargeVideoThreshold = %d, want 50 MiB", opts.LargeVideoThreshold)
	}
	if opts.AutoSelectBestShot {
		t.Error("AutoSelectBestShot should be false")
	}
	for _, gt := range models.AllGroupTypes() {
		if !opts.Includes(gt) {
			t.Errorf("empty types should include %s", gt)
		}
	}

	cfg.Grouping.Types = []string{"duplicate", "blurry"}
	opts = cfg.GroupingOptions()
	if !opts.Includes(models.GroupDuplicate) || !opts.Includes(models.GroupBlurry) || opts.Includes(models.GroupSimilar) {
		t.Errorf("types filter not applied: %s", opts)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parse(data); err != nil {
		t.Errorf("written config does not parse: %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Error("expected error when config already exists")
	}
}
