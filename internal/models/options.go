package models

import (
	"fmt"
	"time"
)

// Grouping defaults
const (
	DefaultSimilarityThreshold = 0.85
	DefaultMinimumGroupSize    = 2
	DefaultLargeVideoThreshold = 100 * 1024 * 1024
)

// DateRange restricts grouping to assets taken in [Start, End). A zero
// bound is open.
type DateRange struct {
	Start time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// GroupingOptionsParams are the raw inputs to NewGroupingOptions. Nil
// pointers select the default.
type GroupingOptionsParams struct {
	SimilarityThreshold *float64
	MinimumGroupSize    *int
	Include             map[GroupType]bool
	LargeVideoThreshold *int64
	AutoSelectBestShot  *bool
	DateRange           *DateRange
}

// GroupingOptions configures GroupMany. Values built by NewGroupingOptions
// are always valid.
type GroupingOptions struct {
	SimilarityThreshold float64
	MinimumGroupSize    int
	LargeVideoThreshold int64
	AutoSelectBestShot  bool
	DateRange           *DateRange

	include map[GroupType]bool
}

// DefaultGroupingOptions returns options with every group type enabled
func DefaultGroupingOptions() GroupingOptions {
	return NewGroupingOptions(GroupingOptionsParams{})
}

// NewGroupingOptions validates and clamps p
func NewGroupingOptions(p GroupingOptionsParams) GroupingOptions {
	o := GroupingOptions{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MinimumGroupSize:    DefaultMinimumGroupSize,
		LargeVideoThreshold: DefaultLargeVideoThreshold,
		AutoSelectBestShot:  true,
		include:             make(map[GroupType]bool, len(groupPolicies)),
	}

	if p.SimilarityThreshold != nil {
		o.SimilarityThreshold = Clamp01(*p.SimilarityThreshold)
	}
	if p.MinimumGroupSize != nil && *p.MinimumGroupSize > DefaultMinimumGroupSize {
		o.MinimumGroupSize = *p.MinimumGroupSize
	}
	if p.LargeVideoThreshold != nil && *p.LargeVideoThreshold > 0 {
		o.LargeVideoThreshold = *p.LargeVideoThreshold
	}
	if p.AutoSelectBestShot != nil {
		o.AutoSelectBestShot = *p.AutoSelectBestShot
	}
	if p.DateRange != nil {
		r := *p.DateRange
		if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
			r.Start, r.End = r.End, r.Start
		}
		o.DateRange = &r
	}

	for t := range groupPolicies {
		o.include[t] = true
	}
	for t, on := range p.Include {
		if t.Valid() {
			o.include[t] = on
		}
	}

	return o
}

// Includes reports whether groups of type t should be produced
func (o GroupingOptions) Includes(t GroupType) bool {
	if o.include == nil {
		return true
	}
	return o.include[t]
}

// Only returns a copy of o that produces only the given group types
func (o GroupingOptions) Only(types ...GroupType) GroupingOptions {
	out := o
	out.include = make(map[GroupType]bool, len(groupPolicies))
	for t := range groupPolicies {
		out.include[t] = false
	}
	for _, t := range types {
		out.include[t] = true
	}
	return out
}

func (o GroupingOptions) String() string {
	var enabled []GroupType
	for _, t := range AllGroupTypes() {
		if o.Includes(t) {
			enabled = append(enabled, t)
		}
	}
	return fmt.Sprintf("threshold=%.2f min=%d types=%v", o.SimilarityThreshold, o.MinimumGroupSize, enabled)
}
