package rng

import (
	"context"
	"hash/fnv"
	"math/rand"
)

// SeededAdapter implements ports.RNGPort with deterministic, independent
// streams. Each named stream (and each trial substream) gets its own
// generator, so concurrent consumers never share mutable random state.
type SeededAdapter struct{}

// NewSeededAdapter creates the RNG adapter.
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// SeededStream creates a deterministic generator for a named operation.
// The name is mixed into the seed so distinct operations with the same base
// seed do not correlate.
func (a *SeededAdapter) SeededStream(_ context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(mix(seed, name))), nil
}

// TrialStream derives one independent substream per permutation trial
// index. Trials can then run concurrently in any order and still reproduce
// bit-identically from the run's base seed.
func (a *SeededAdapter) TrialStream(_ context.Context, baseSeed int64, trial int) (*rand.Rand, error) {
	sub := splitmix(uint64(baseSeed) ^ (uint64(trial)+1)*0x9e3779b97f4a7c15)
	return rand.New(rand.NewSource(int64(sub))), nil
}

// mix folds a stream name into a base seed.
func mix(seed int64, name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(splitmix(uint64(seed) ^ h.Sum64()))
}

// splitmix is the SplitMix64 finalizer, used to decorrelate nearby seeds.
func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
