package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// TrialStream creates an independent deterministic stream for one
	// permutation trial, derived from the run's base seed and the trial
	// index. Streams for distinct trials are independent, so trials may be
	// executed concurrently and still reproduce bit-identically.
	TrialStream(ctx context.Context, baseSeed int64, trial int) (*rand.Rand, error)
}
