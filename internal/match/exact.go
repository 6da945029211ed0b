package match

import (
	"context"
	"io"
	"log"

	"photosweep/internal/detect"
	"photosweep/internal/models"
)

// emptyFileHash is the SHA256 of zero bytes
const emptyFileHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// ExactClusterer finds assets with identical file contents
type ExactClusterer struct {
	hashFile func(path string) (string, error)
	logger   *log.Logger
}

// NewExactClusterer creates an ExactClusterer that hashes with SHA256
func NewExactClusterer(logger *log.Logger) *ExactClusterer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ExactClusterer{
		hashFile: detect.ComputeFileHash,
		logger:   logger,
	}
}

// FindClusters groups assets by file hash. The threshold is ignored and
// every cluster has similarity 1. Assets without a FileHash are hashed on
// demand, but only when another asset has the same non-zero size. Empty
// files are never duplicates.
func (c *ExactClusterer) FindClusters(ctx context.Context, assets []models.AssetRef, _ float64) ([]Cluster, error) {
	if len(assets) < 2 {
		return nil, nil
	}

	sizes := make(map[int64]int)
	for _, a := range assets {
		if a.FileSize > 0 {
			sizes[a.FileSize]++
		}
	}

	// Group by file hash
	byHash := make(map[string]int)
	buckets := make(map[int][]int)
	for i, a := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h := a.FileHash
		if h == "" {
			if a.Path == "" || a.FileSize <= 0 || sizes[a.FileSize] < 2 {
				continue
			}
			var err error
			h, err = c.hashFile(a.Path)
			if err != nil {
				c.logger.Printf("skipping %s for exact matching: %v", a.ID, err)
				continue
			}
		}
		if h == emptyFileHash {
			continue
		}

		key, ok := byHash[h]
		if !ok {
			key = len(byHash)
			byHash[h] = key
		}
		buckets[key] = append(buckets[key], i)
	}

	return buildClusters(assets, buckets, func([]int) float64 { return 1 }), nil
}
