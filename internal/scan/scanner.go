// Package scan walks folders and turns supported photo and video files
// into asset references.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"photosweep/internal/detect"
	"photosweep/internal/models"
)

// Scanner scans folders for photos and videos
type Scanner struct {
	workers    int
	hashFiles  bool
	hidden     bool
	progressFn func(scanned, total int, current string)
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFileHash computes the SHA256 of every file while scanning
func WithFileHash(enabled bool) Option {
	return func(s *Scanner) {
		s.hashFiles = enabled
	}
}

// WithHidden includes dot files and dot directories
func WithHidden(enabled bool) Option {
	return func(s *Scanner) {
		s.hidden = enabled
	}
}

// WithProgress sets a progress callback
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		workers: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssetID derives a stable ID from the absolute path of a file
func AssetID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

func mediaTypeOf(path string) (models.MediaType, bool) {
	switch {
	case detect.IsSupportedImage(path):
		return models.MediaPhoto, true
	case detect.IsSupportedVideo(path):
		return models.MediaVideo, true
	default:
		return "", false
	}
}

// collect walks folder and returns the supported files
func (s *Scanner) collect(ctx context.Context, folder string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == folder {
				return err
			}
			return nil // Skip unreadable entries
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.hidden && path != folder && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := mediaTypeOf(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}
	return paths, nil
}

// Describe builds the AssetRef for a single supported file
func Describe(path string) (models.AssetRef, error) {
	if _, ok := mediaTypeOf(path); !ok {
		return models.AssetRef{}, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	return NewScanner().describe(path)
}

// describe builds the AssetRef for one file
func (s *Scanner) describe(path string) (models.AssetRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.AssetRef{}, err
	}
	if info.IsDir() {
		return models.AssetRef{}, fmt.Errorf("%s is a directory", path)
	}
	mediaType, _ := mediaTypeOf(path)

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	asset := models.AssetRef{
		ID:        AssetID(abs),
		Path:      abs,
		MediaType: mediaType,
		FileSize:  info.Size(),
		ModTime:   info.ModTime(),
	}

	if mediaType == models.MediaPhoto {
		// Missing EXIF is normal for PNGs and screenshots
		if x, err := detect.ReadExif(path); err == nil {
			if t, ok := detect.CaptureTime(x); ok {
				asset.CreatedAt = t
			}
			asset.FrontCamera = detect.IsFrontCamera(x)
		}
	}

	if s.hashFiles {
		fileHash, err := detect.ComputeFileHash(path)
		if err != nil {
			return models.AssetRef{}, err
		}
		asset.FileHash = fileHash
	}

	return asset, nil
}

// ScanFolder scans a folder and returns its assets ordered by path.
// Files that cannot be read are skipped.
func (s *Scanner) ScanFolder(ctx context.Context, folder string) ([]models.AssetRef, error) {
	// First, collect all media paths
	paths, err := s.collect(ctx, folder)
	if err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		return nil, nil
	}

	// Process files in parallel
	var (
		results   []models.AssetRef
		resultsMu sync.Mutex
		wg        sync.WaitGroup
		scanned   int64
		total     = len(paths)
	)

	// Create work channel
	work := make(chan string, len(paths))
	for _, p := range paths {
		work <- p
	}
	close(work)

	// Start workers
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				if ctx.Err() != nil {
					return
				}
				asset, err := s.describe(path)
				n := atomic.AddInt64(&scanned, 1)
				if err == nil {
					resultsMu.Lock()
					results = append(results, asset)
					resultsMu.Unlock()
				}
				if s.progressFn != nil {
					s.progressFn(int(n), total, path)
				}
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	return results, nil
}

// ScanFolders scans multiple folders. A file reachable from two folders
// is returned once.
func (s *Scanner) ScanFolders(ctx context.Context, folders []string) ([]models.AssetRef, error) {
	var allResults []models.AssetRef
	seen := make(map[string]bool)
	for _, folder := range folders {
		results, err := s.ScanFolder(ctx, folder)
		if err != nil {
			return nil, err
		}
		for _, a := range results {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			allResults = append(allResults, a)
		}
	}
	return allResults, nil
}
