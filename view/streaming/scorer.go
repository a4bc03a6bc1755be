package streaming

import (
	"fmt"
	"sort"

	"github.com/distview/distview/view/geom"
)

// Scorer computes the view-dependent priority of a block.
// Higher scores are fetched first. Implementations MUST NOT modify the block
// and MUST be pure functions of their inputs: every rank scores the same
// blocks and must arrive at the same order.
type Scorer interface {
	Score(b Block, f geom.Frustum) float64
}

// ScreenSpaceScorer favours blocks that are visible, large on screen and
// coarse.
//
// Formula: coverage * (1 + diagonal/(1 + nearDistance)) / (1 + RefinementWeight*refinement)
//
// coverage is the fraction of the block inside the frustum, so blocks outside
// the view score 0. diagonal/(1+nearDistance) approximates projected size.
type ScreenSpaceScorer struct {
	RefinementWeight float64
}

func (s *ScreenSpaceScorer) Score(b Block, f geom.Frustum) float64 {
	coverage := f.Coverage(b.Bounds)
	if coverage == 0 {
		return 0
	}
	projected := b.Bounds.Diagonal() / (1 + f.NearDistance(b.Bounds.Center()))
	return coverage * (1 + projected) / (1 + s.RefinementWeight*float64(b.Refinement))
}

// CoarseFirstScorer ignores the camera: priority is 1/(1+refinement). This is
// also the priority every block receives from Initialize.
type CoarseFirstScorer struct{}

func (CoarseFirstScorer) Score(b Block, _ geom.Frustum) float64 {
	return coarsePriority(b.Refinement)
}

func coarsePriority(refinement int) float64 {
	return 1 / (1 + float64(refinement))
}

// validScorers is the set of recognized scorer names.
var validScorers = map[string]bool{"": true, "screen-space": true, "coarse-first": true}

// IsValidScorer returns true if name is a recognized scorer.
func IsValidScorer(name string) bool {
	return validScorers[name]
}

// ValidScorerNames returns the non-empty scorer names, sorted.
func ValidScorerNames() []string {
	names := make([]string, 0, len(validScorers))
	for n := range validScorers {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// NewScorer creates a Scorer by name.
// Empty string defaults to screen-space.
// Panics on unrecognized names.
func NewScorer(name string) Scorer {
	if !IsValidScorer(name) {
		panic(fmt.Sprintf("unknown streaming scorer %q", name))
	}
	switch name {
	case "", "screen-space":
		return &ScreenSpaceScorer{RefinementWeight: 1}
	case "coarse-first":
		return CoarseFirstScorer{}
	default:
		panic(fmt.Sprintf("unhandled streaming scorer %q", name))
	}
}
