// Package group turns clustering output and stored analyses into Group
// values.
package group

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"

	"photosweep/internal/match"
	"photosweep/internal/models"
)

var (
	// ErrClustering wraps failures of a clustering capability
	ErrClustering = errors.New("clustering failed")

	// ErrBestShot wraps failures of best-shot selection
	ErrBestShot = errors.New("best shot selection failed")
)

// Repository resolves asset metadata by ID
type Repository interface {
	FileSize(ctx context.Context, assetID string) (int64, error)
	Resolve(ctx context.Context, assetID string) (models.AssetRef, error)
}

// AnalysisSource looks up stored analyses by asset ID
type AnalysisSource = match.AnalysisSource

// Coordinator builds groups. It has no mutable state after construction.
type Coordinator struct {
	similar    match.Clusterer
	duplicates match.Clusterer
	bestShot   match.BestShotSelector
	repo       Repository
	analyses   AnalysisSource
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithDuplicateClusterer enables duplicate groups
func WithDuplicateClusterer(c match.Clusterer) Option {
	return func(co *Coordinator) {
		co.duplicates = c
	}
}

// WithBestShotSelector replaces the default quality based selector
func WithBestShotSelector(s match.BestShotSelector) Option {
	return func(co *Coordinator) {
		if s != nil {
			co.bestShot = s
		}
	}
}

// WithRepository sets where file sizes are resolved. Without one the
// sizes carried by the input AssetRefs are used.
func WithRepository(r Repository) Option {
	return func(co *Coordinator) {
		co.repo = r
	}
}

// WithAnalysisSource enables category groups and best-shot selection
func WithAnalysisSource(s AnalysisSource) Option {
	return func(co *Coordinator) {
		co.analyses = s
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// WithClock overrides the group creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(co *Coordinator) {
		if now != nil {
			co.now = now
		}
	}
}

// WithIDGenerator overrides uuid group IDs
func WithIDGenerator(fn func() string) Option {
	return func(co *Coordinator) {
		if fn != nil {
			co.newID = fn
		}
	}
}

// NewCoordinator creates a Coordinator that clusters similar photos with
// similar
func NewCoordinator(similar match.Clusterer, opts ...Option) *Coordinator {
	c := &Coordinator{
		similar:  similar,
		bestShot: match.NewQualityBestShot(),
		logger:   log.New(io.Discard, "", 0),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pending is a group before sizes and best shot are resolved
type pending struct {
	kind       models.GroupType
	members    []string
	similarity *float64
}

// GroupMany produces duplicate, similar and category groups for assets.
// Clustering failures are returned wrapped in ErrClustering; a failing
// size lookup only zeroes that member's size. Duplicate groups always
// keep one copy, even when best-shot selection finds no winner.
func (c *Coordinator) GroupMany(ctx context.Context, assets []models.AssetRef, opts models.GroupingOptions) ([]models.Group, error) {
	if len(assets) == 0 {
		return []models.Group{}, nil
	}

	assets = filterByDate(assets, opts.DateRange)
	if len(assets) == 0 {
		return []models.Group{}, nil
	}

	var photos []models.AssetRef
	for _, a := range assets {
		if !a.IsVideo() {
			photos = append(photos, a)
		}
	}

	var found []pending

	var duplicateSets [][]string
	if opts.Includes(models.GroupDuplicate) && c.duplicates != nil {
		clusters, err := c.duplicates.FindClusters(ctx, assets, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: duplicates: %w", ErrClustering, err)
		}
		for _, cl := range clusters {
			duplicateSets = append(duplicateSets, cl.MemberIDs)
			found = append(found, newPending(models.GroupDuplicate, cl))
		}
	}

	if opts.Includes(models.GroupSimilar) && c.similar != nil && len(photos) > 0 {
		clusters, err := c.similar.FindClusters(ctx, photos, opts.SimilarityThreshold)
		if err != nil {
			return nil, fmt.Errorf("%w: similar: %w", ErrClustering, err)
		}
		for _, cl := range clusters {
			if sameMembers(cl.MemberIDs, duplicateSets) {
				continue
			}
			found = append(found, newPending(models.GroupSimilar, cl))
		}
	}

	categories, err := c.categoryGroups(ctx, assets, opts)
	if err != nil {
		return nil, err
	}
	found = append(found, categories...)

	repo := c.repo
	if repo == nil {
		repo = NewAssetIndex(assets)
	}

	// A group needs two members whatever the options say
	minSize := max(opts.MinimumGroupSize, models.DefaultMinimumGroupSize)

	groups := make([]models.Group, 0, len(found))
	for _, p := range found {
		if len(p.members) < minSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g := models.NewGroup(models.GroupParams{
			ID:              c.newID(),
			Type:            p.kind,
			MemberIDs:       p.members,
			FileSizes:       c.fileSizes(ctx, repo, p.members),
			CreatedAt:       c.now(),
			SimilarityScore: p.similarity,
		})

		if opts.AutoSelectBestShot && g.Type.Policy().NeedsBestShotSelection {
			idx, err := c.SelectBestShot(ctx, g)
			if err != nil {
				return nil, err
			}
			if idx == nil && g.Type == models.GroupDuplicate {
				idx = c.firstCopy(ctx, repo, g)
			}
			g = g.WithBestShot(idx)
		}

		groups = append(groups, g)
	}

	return groups, nil
}

// FindSimilarGroups runs GroupMany with default options restricted to
// similar groups
func (c *Coordinator) FindSimilarGroups(ctx context.Context, assets []models.AssetRef) ([]models.Group, error) {
	return c.GroupMany(ctx, assets, models.DefaultGroupingOptions().Only(models.GroupSimilar))
}

// SelectBestShot asks the best-shot capability for a member to keep. A nil
// index means no member is clearly best and none should be auto-deleted.
func (c *Coordinator) SelectBestShot(ctx context.Context, g models.Group) (*int, error) {
	analyses := make(map[string]models.AnalysisResult, g.Count())
	if c.analyses != nil {
		for _, id := range g.MemberIDs {
			r, ok, err := c.analyses.Analysis(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("%w: loading analysis for %s: %w", ErrBestShot, id, err)
			}
			if ok {
				analyses[id] = r
			}
		}
	}

	idx, err := c.bestShot.SelectBest(ctx, g, analyses)
	if err != nil {
		return nil, fmt.Errorf("%w: group %s: %w", ErrBestShot, g.ID, err)
	}
	if idx != nil && (*idx < 0 || *idx >= g.Count()) {
		return nil, fmt.Errorf("%w: group %s: index %d out of range", ErrBestShot, g.ID, *idx)
	}
	return idx, nil
}

// firstCopy picks the copy of a duplicate to keep when analyses cannot
// tell the copies apart: earliest capture time, then lowest path.
// Unresolvable members are never kept unless nothing resolves.
func (c *Coordinator) firstCopy(ctx context.Context, repo Repository, g models.Group) *int {
	keep := 0
	var kept *models.AssetRef
	for i, id := range g.MemberIDs {
		ref, err := repo.Resolve(ctx, id)
		if err != nil {
			c.logger.Printf("duplicate %s unresolved: %v", id, err)
			continue
		}
		if kept == nil || keepBefore(ref, *kept) {
			keep, kept = i, &ref
		}
	}
	return &keep
}

func keepBefore(a, b models.AssetRef) bool {
	ta, tb := a.TakenAt(), b.TakenAt()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.Path < b.Path
}

// ResolveMembers returns the AssetRef of every member in order. A missing
// asset is an error.
func (c *Coordinator) ResolveMembers(ctx context.Context, g models.Group) ([]models.AssetRef, error) {
	if c.repo == nil {
		return nil, errors.New("no asset repository configured")
	}
	refs := make([]models.AssetRef, 0, g.Count())
	for _, id := range g.MemberIDs {
		ref, err := c.repo.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", id, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// categoryGroups builds at most one group per category type
func (c *Coordinator) categoryGroups(ctx context.Context, assets []models.AssetRef, opts models.GroupingOptions) ([]pending, error) {
	var screenshots, selfies, blurry, videos []string

	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if a.IsVideo() {
			if opts.Includes(models.GroupLargeVideo) && a.FileSize >= opts.LargeVideoThreshold {
				videos = append(videos, a.ID)
			}
			continue
		}

		if c.analyses == nil {
			continue
		}
		if !opts.Includes(models.GroupScreenshot) && !opts.Includes(models.GroupSelfie) && !opts.Includes(models.GroupBlurry) {
			continue
		}

		r, ok, err := c.analyses.Analysis(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load analysis for %s: %w", a.ID, err)
		}
		if !ok {
			continue
		}

		if opts.Includes(models.GroupScreenshot) && r.IsScreenshot {
			screenshots = append(screenshots, a.ID)
		}
		if opts.Includes(models.GroupSelfie) && r.IsSelfie {
			selfies = append(selfies, a.ID)
		}
		if opts.Includes(models.GroupBlurry) && r.IsBlurry() {
			blurry = append(blurry, a.ID)
		}
	}

	var out []pending
	for _, p := range []pending{
		{kind: models.GroupScreenshot, members: screenshots},
		{kind: models.GroupSelfie, members: selfies},
		{kind: models.GroupBlurry, members: blurry},
		{kind: models.GroupLargeVideo, members: videos},
	} {
		if len(p.members) > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// fileSizes looks up each member's size. Size is advisory, so a failed
// lookup becomes 0.
func (c *Coordinator) fileSizes(ctx context.Context, repo Repository, ids []string) []int64 {
	sizes := make([]int64, len(ids))
	for i, id := range ids {
		size, err := repo.FileSize(ctx, id)
		if err != nil {
			c.logger.Printf("file size of %s unavailable: %v", id, err)
			continue
		}
		sizes[i] = size
	}
	return sizes
}

func newPending(kind models.GroupType, cl match.Cluster) pending {
	sim := cl.Similarity
	return pending{kind: kind, members: cl.MemberIDs, similarity: &sim}
}

func filterByDate(assets []models.AssetRef, r *models.DateRange) []models.AssetRef {
	if r == nil {
		return assets
	}
	var out []models.AssetRef
	for _, a := range assets {
		if r.Contains(a.TakenAt()) {
			out = append(out, a)
		}
	}
	return out
}

// sameMembers reports whether ids has the same members as any of sets
func sameMembers(ids []string, sets [][]string) bool {
	sorted := slices.Sorted(slices.Values(ids))
	for _, s := range sets {
		if len(s) != len(ids) {
			continue
		}
		if slices.Equal(sorted, slices.Sorted(slices.Values(s))) {
			return true
		}
	}
	return false
}
