package models

import (
	"fmt"
	"time"
)

// GroupType tags the reason assets were grouped together
type GroupType string

const (
	GroupSimilar    GroupType = "similar"
	GroupSelfie     GroupType = "selfie"
	GroupScreenshot GroupType = "screenshot"
	GroupBlurry     GroupType = "blurry"
	GroupLargeVideo GroupType = "largeVideo"
	GroupDuplicate  GroupType = "duplicate"
)

// GroupPolicy is the per-type behaviour attached to a GroupType
type GroupPolicy struct {
	AutoDeleteRecommended  bool
	NeedsBestShotSelection bool
	UsesSimilarity         bool
	DisplayName            string
}

var groupPolicies = map[GroupType]GroupPolicy{
	GroupSimilar:    {AutoDeleteRecommended: false, NeedsBestShotSelection: true, UsesSimilarity: true, DisplayName: "Similar Photos"},
	GroupDuplicate:  {AutoDeleteRecommended: true, NeedsBestShotSelection: true, UsesSimilarity: true, DisplayName: "Duplicates"},
	GroupSelfie:     {AutoDeleteRecommended: false, NeedsBestShotSelection: false, UsesSimilarity: false, DisplayName: "Selfies"},
	GroupScreenshot: {AutoDeleteRecommended: true, NeedsBestShotSelection: false, UsesSimilarity: false, DisplayName: "Screenshots"},
	GroupBlurry:     {AutoDeleteRecommended: true, NeedsBestShotSelection: false, UsesSimilarity: false, DisplayName: "Blurry Photos"},
	GroupLargeVideo: {AutoDeleteRecommended: false, NeedsBestShotSelection: false, UsesSimilarity: false, DisplayName: "Large Videos"},
}

// AllGroupTypes lists every group type in display order
func AllGroupTypes() []GroupType {
	return []GroupType{GroupDuplicate, GroupSimilar, GroupBlurry, GroupScreenshot, GroupSelfie, GroupLargeVideo}
}

// ParseGroupType converts a name into a GroupType
func ParseGroupType(s string) (GroupType, error) {
	t := GroupType(s)
	if _, ok := groupPolicies[t]; !ok {
		return "", fmt.Errorf("unknown group type %q", s)
	}
	return t, nil
}

// Policy returns the behaviour table entry for t
func (t GroupType) Policy() GroupPolicy {
	return groupPolicies[t]
}

func (t GroupType) String() string {
	return string(t)
}

// Valid reports whether t is a known group type
func (t GroupType) Valid() bool {
	_, ok := groupPolicies[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (t GroupType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *GroupType) UnmarshalText(b []byte) error {
	parsed, err := ParseGroupType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// GroupParams are the inputs to NewGroup
type GroupParams struct {
	ID              string
	Type            GroupType
	MemberIDs       []string
	FileSizes       []int64
	BestShotIndex   *int
	IsSelected      bool
	CreatedAt       time.Time
	SimilarityScore *float64
	CustomName      string
}

// Group is a cluster of related assets. Groups are snapshots: every
// change goes through a With* method that returns a new value.
type Group struct {
	ID              string    `json:"id"`
	Type            GroupType `json:"type"`
	MemberIDs       []string  `json:"member_ids"`
	FileSizes       []int64   `json:"file_sizes"`
	BestShotIndex   *int      `json:"best_shot_index,omitempty"`
	IsSelected      bool      `json:"is_selected"`
	CreatedAt       time.Time `json:"created_at"`
	SimilarityScore *float64  `json:"similarity_score,omitempty"`
	CustomName      string    `json:"custom_name,omitempty"`
}

// NewGroup builds a Group, padding FileSizes with zeros to the member
// count, dropping an out of range best shot and clamping similarity.
func NewGroup(p GroupParams) Group {
	members := append([]string(nil), p.MemberIDs...)

	sizes := make([]int64, len(members))
	copy(sizes, p.FileSizes)

	g := Group{
		ID:         p.ID,
		Type:       p.Type,
		MemberIDs:  members,
		FileSizes:  sizes,
		IsSelected: p.IsSelected,
		CreatedAt:  p.CreatedAt,
		CustomName: p.CustomName,
	}

	if p.BestShotIndex != nil && *p.BestShotIndex >= 0 && *p.BestShotIndex < len(members) {
		idx := *p.BestShotIndex
		g.BestShotIndex = &idx
	}

	if p.SimilarityScore != nil && p.Type.Policy().UsesSimilarity {
		s := Clamp01(*p.SimilarityScore)
		g.SimilarityScore = &s
	}

	return g
}

func (g Group) params() GroupParams {
	return GroupParams{
		ID:              g.ID,
		Type:            g.Type,
		MemberIDs:       g.MemberIDs,
		FileSizes:       g.FileSizes,
		BestShotIndex:   g.BestShotIndex,
		IsSelected:      g.IsSelected,
		CreatedAt:       g.CreatedAt,
		SimilarityScore: g.SimilarityScore,
		CustomName:      g.CustomName,
	}
}

// Count returns the number of members
func (g Group) Count() int {
	return len(g.MemberIDs)
}

// IsValid reports whether the group can back a deletion recommendation
func (g Group) IsValid() bool {
	return len(g.MemberIDs) >= 2
}

// HasBestShot reports whether a best shot has been selected
func (g Group) HasBestShot() bool {
	return g.BestShotIndex != nil
}

// BestShotID returns the member id of the best shot
func (g Group) BestShotID() (string, bool) {
	if g.BestShotIndex == nil {
		return "", false
	}
	return g.MemberIDs[*g.BestShotIndex], true
}

// TotalSize is the sum of all member file sizes
func (g Group) TotalSize() int64 {
	var total int64
	for _, s := range g.FileSizes {
		total += s
	}
	return total
}

// ReclaimableSize is the space freed by deleting everything but the best shot
func (g Group) ReclaimableSize() int64 {
	total := g.TotalSize()
	if g.BestShotIndex == nil {
		return total
	}
	return total - g.FileSizes[*g.BestShotIndex]
}

// ReclaimableCount is the number of members that would be deleted
func (g Group) ReclaimableCount() int {
	if g.BestShotIndex == nil {
		return len(g.MemberIDs)
	}
	return len(g.MemberIDs) - 1
}

// DeletionCandidateIDs returns all members except the best shot
func (g Group) DeletionCandidateIDs() []string {
	ids := make([]string, 0, len(g.MemberIDs))
	for i, id := range g.MemberIDs {
		if g.BestShotIndex != nil && i == *g.BestShotIndex {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// DisplayName returns the custom name or the type's display name
func (g Group) DisplayName() string {
	if g.CustomName != "" {
		return g.CustomName
	}
	return g.Type.Policy().DisplayName
}

// WithBestShot returns a copy with the best shot set. A nil or out of
// range index clears it.
func (g Group) WithBestShot(idx *int) Group {
	p := g.params()
	p.BestShotIndex = idx
	return NewGroup(p)
}

// WithSelection returns a copy with IsSelected set
func (g Group) WithSelection(selected bool) Group {
	p := g.params()
	p.IsSelected = selected
	return NewGroup(p)
}

// WithName returns a copy with a custom display name
func (g Group) WithName(name string) Group {
	p := g.params()
	p.CustomName = name
	return NewGroup(p)
}

// WithMember returns a copy with id appended. Adding an existing member
// returns an unchanged copy.
func (g Group) WithMember(id string, size int64) Group {
	p := g.params()
	for _, m := range g.MemberIDs {
		if m == id {
			return NewGroup(p)
		}
	}
	p.MemberIDs = append(append([]string(nil), g.MemberIDs...), id)
	p.FileSizes = append(append([]int64(nil), g.FileSizes...), size)
	return NewGroup(p)
}

// WithoutMember returns a copy without id. Removing the best shot clears
// it; removing an earlier member shifts the index down.
func (g Group) WithoutMember(id string) Group {
	p := g.params()
	removed := -1
	for i, m := range g.MemberIDs {
		if m == id {
			removed = i
			break
		}
	}
	if removed < 0 {
		return NewGroup(p)
	}

	members := make([]string, 0, len(g.MemberIDs)-1)
	sizes := make([]int64, 0, len(g.MemberIDs)-1)
	for i := range g.MemberIDs {
		if i == removed {
			continue
		}
		members = append(members, g.MemberIDs[i])
		sizes = append(sizes, g.FileSizes[i])
	}
	p.MemberIDs = members
	p.FileSizes = sizes

	if g.BestShotIndex != nil {
		switch best := *g.BestShotIndex; {
		case best == removed:
			p.BestShotIndex = nil
		case best > removed:
			shifted := best - 1
			p.BestShotIndex = &shifted
		}
	}
	return NewGroup(p)
}
