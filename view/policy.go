package view

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// RedistributionPolicy is the set of redistribution flags a representation
// declares for one pass.
type RedistributionPolicy uint8

const (
	PolicyNone RedistributionPolicy = 0
	// PolicyUseBoundsForRedistribution marks a representation whose existing
	// per-rank partitioning is authoritative: other redistributable data is
	// moved to match it.
	PolicyUseBoundsForRedistribution RedistributionPolicy = 0x01
	// PolicyRedistributable marks a representation whose elements may be
	// moved between render ranks.
	PolicyRedistributable RedistributionPolicy = 0x02
	// PolicyUseForLoadBalancing marks a representation whose element
	// distribution drives the shared spatial partition.
	PolicyUseForLoadBalancing RedistributionPolicy = 0x40
)

// Has reports whether every flag in f is set.
func (p RedistributionPolicy) Has(f RedistributionPolicy) bool { return p&f == f && f != 0 }

// Normalize resolves the Redistributable / UseBoundsForRedistribution
// conflict in favor of Redistributable and logs a warning naming rep.
func (p RedistributionPolicy) Normalize(rep string) RedistributionPolicy {
	if p.conflicting() {
		logrus.Warnf("representation %q declares both redistributable and use-bounds-for-redistribution; treating it as redistributable", rep)
	}
	return p.normalized()
}

func (p RedistributionPolicy) conflicting() bool {
	return p.Has(PolicyRedistributable) && p.Has(PolicyUseBoundsForRedistribution)
}

func (p RedistributionPolicy) normalized() RedistributionPolicy {
	if p.conflicting() {
		return p &^ PolicyUseBoundsForRedistribution
	}
	return p
}

func (p RedistributionPolicy) String() string {
	if p == PolicyNone {
		return "none"
	}
	var parts []string
	if p.Has(PolicyRedistributable) {
		parts = append(parts, "redistributable")
	}
	if p.Has(PolicyUseBoundsForRedistribution) {
		parts = append(parts, "use-bounds")
	}
	if p.Has(PolicyUseForLoadBalancing) {
		parts = append(parts, "load-balancing")
	}
	return strings.Join(parts, "|")
}

// ParsePolicy converts flag names ("redistributable", "use-bounds",
// "load-balancing") into a policy.
func ParsePolicy(names []string) (RedistributionPolicy, error) {
	var p RedistributionPolicy
	for _, n := range names {
		switch n {
		case "redistributable":
			p |= PolicyRedistributable
		case "use-bounds":
			p |= PolicyUseBoundsForRedistribution
		case "load-balancing":
			p |= PolicyUseForLoadBalancing
		default:
			return PolicyNone, fmt.Errorf("unknown redistribution flag %q; valid: redistributable, use-bounds, load-balancing", n)
		}
	}
	return p, nil
}

// RedistributionMode says what happens to elements that straddle partition
// region boundaries.
type RedistributionMode int

const (
	// SplitBoundary clips a straddling element into one part per region.
	SplitBoundary RedistributionMode = iota
	// DuplicateBoundary sends a straddling element whole to every region it overlaps.
	DuplicateBoundary
	// UniquelyAssignBoundary sends every element to the region owning its centre.
	UniquelyAssignBoundary
)

var modeNames = map[RedistributionMode]string{
	SplitBoundary:          "split",
	DuplicateBoundary:      "duplicate",
	UniquelyAssignBoundary: "unique",
}

func (m RedistributionMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("RedistributionMode(%d)", int(m))
}

// ParseRedistributionMode accepts "split" (or ""), "duplicate" and "unique".
func ParseRedistributionMode(name string) (RedistributionMode, error) {
	switch name {
	case "", "split":
		return SplitBoundary, nil
	case "duplicate":
		return DuplicateBoundary, nil
	case "unique":
		return UniquelyAssignBoundary, nil
	}
	return SplitBoundary, fmt.Errorf("unknown redistribution mode %q; valid: split, duplicate, unique", name)
}
