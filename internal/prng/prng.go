// Package prng provides the engine's seeded deterministic randomness. A
// single root seed is split into named sub-streams by domain-separated
// hashing so that reordering unrelated components never perturbs another
// component's draws.
package prng

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// Required sub-stream names.
const (
	StreamSchedule     = "schedule"
	StreamGenerator    = "generator"
	StreamSelection    = "selection"
	StreamScenarioInit = "scenario_init"
)

// Streams holds the named sub-streams derived from one root seed. Each
// sub-stream is a single-reader *rand.Rand; callers must not share a
// Stream across goroutines.
type Streams struct {
	rootSeed int64
	cache    map[string]*rand.Rand
}

// New derives the required named sub-streams from rootSeed.
func New(rootSeed int64) *Streams {
	return &Streams{
		rootSeed: rootSeed,
		cache:    make(map[string]*rand.Rand, 4),
	}
}

// Stream returns the named sub-stream, deriving it on first use via
// SHA-256(rootSeed || name). The same name always yields a generator
// seeded identically for a fixed root seed, regardless of call order.
func (s *Streams) Stream(name string) *rand.Rand {
	if r, ok := s.cache[name]; ok {
		return r
	}
	r := rand.New(rand.NewSource(deriveSeed(s.rootSeed, name)))
	s.cache[name] = r
	return r
}

// deriveSeed hashes the root seed with a stream name to produce a
// domain-separated 63-bit seed for math/rand.NewSource.
func deriveSeed(rootSeed int64, name string) int64 {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(rootSeed))
	h.Write(buf[:])
	h.Write([]byte(name))
	sum := h.Sum(nil)
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	if seed < 0 {
		seed = -seed
	}
	return seed
}

// WeightedIndex samples an index into weights with probability
// proportional to weight, using r. Weights must sum to > 0. Ties among
// zero-weight entries never win. Iteration is over the slice in order, so
// callers that need declaration-order tie-breaking get it for free from
// slice order.
func WeightedIndex(r *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return -1
	}
	target := r.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Uniform samples a float64 in [min, max).
func Uniform(r *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.Float64()*(max-min)
}
