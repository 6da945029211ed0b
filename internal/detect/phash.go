package detect

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/corona10/goimagehash"
)

// HashBits is the width of a perceptual hash
const HashBits = 64

// PHashExtractor computes a 64-bit DCT perceptual hash as the feature vector
type PHashExtractor struct{}

// NewPHashExtractor creates a new PHashExtractor
func NewPHashExtractor() *PHashExtractor {
	return &PHashExtractor{}
}

// Extract computes the perceptual hash of the decoded image
func (e *PHashExtractor) Extract(ctx context.Context, src *Source) (FeatureResult, error) {
	if src == nil || src.Image == nil {
		return FeatureResult{}, ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return FeatureResult{}, err
	}

	hash, err := goimagehash.PerceptionHash(src.Image)
	if err != nil {
		return FeatureResult{}, fmt.Errorf("failed to compute hash: %w", err)
	}

	return FeatureResult{Hash: EncodeHash(hash.GetHash())}, nil
}

// EncodeHash serializes a 64-bit hash big-endian
func EncodeHash(h uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)
	return b
}

// DecodeHash parses a hash produced by EncodeHash
func DecodeHash(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

// HammingDistance calculates the Hamming distance between two hashes
func HammingDistance(hash1, hash2 uint64) int {
	d, err := goimagehash.NewImageHash(hash1, goimagehash.PHash).
		Distance(goimagehash.NewImageHash(hash2, goimagehash.PHash))
	if err != nil {
		// Only possible for mismatched kinds
		return HashBits
	}
	return d
}

// Similarity maps Hamming distance onto [0, 1]; identical hashes score 1
func Similarity(hash1, hash2 uint64) float64 {
	return 1 - float64(HammingDistance(hash1, hash2))/HashBits
}

// MaxDistance converts a similarity threshold into the largest Hamming
// distance that still satisfies it
func MaxDistance(threshold float64) int {
	if threshold <= 0 {
		return HashBits
	}
	if threshold >= 1 {
		return 0
	}
	return int((1 - threshold) * HashBits)
}
