// Package models holds the data types shared by the analysis and grouping packages.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// MediaType distinguishes photos from videos
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

// AssetRef identifies a single photo or video and carries the metadata
// known about it before any analysis runs
type AssetRef struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	MediaType   MediaType `json:"media_type"`
	FileSize    int64     `json:"file_size"`
	ModTime     time.Time `json:"mod_time"`
	CreatedAt   time.Time `json:"created_at,omitempty"` // EXIF capture time when present
	FrontCamera bool      `json:"front_camera,omitempty"`
	FileHash    string    `json:"file_hash,omitempty"` // SHA256 hash for exact matching
}

// TakenAt returns the capture time, falling back to the modification time
func (a AssetRef) TakenAt() time.Time {
	if !a.CreatedAt.IsZero() {
		return a.CreatedAt
	}
	return a.ModTime
}

// IsVideo reports whether the asset is a video
func (a AssetRef) IsVideo() bool {
	return a.MediaType == MediaVideo
}

// Name returns the base file name of the asset
func (a AssetRef) Name() string {
	if a.Path == "" {
		return a.ID
	}
	return filepath.Base(a.Path)
}

// FormatOf returns the lowercased file extension without the dot
func FormatOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

// Clamp01 limits v to the closed unit interval. NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
