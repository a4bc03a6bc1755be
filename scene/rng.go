package scene

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SceneKey uniquely identifies a reproducible scene build.
// Two builds with the same SceneKey and identical spec MUST produce
// bit-for-bit identical geometry on every rank.
type SceneKey int64

// SubsystemGeometry returns the subsystem name for one representation's
// geometry on one rank.
func SubsystemGeometry(rep string, rank int) string {
	return fmt.Sprintf("geometry/%s/rank_%d", rep, rank)
}

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. Each rank builds its own.
type PartitionedRNG struct {
	key        SceneKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SceneKey.
func NewPartitionedRNG(key SceneKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SceneKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SceneKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
