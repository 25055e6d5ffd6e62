package solver

import "math/rand"

// SeedGeneratorFnType produces a fresh seed when a Solver is constructed
// without an explicit one. Grounded on the teacher's vars.go
// (SeedGeneratorFnType / SeedGeneratorFn) — the core never reaches for an
// entropy source directly, keeping the RNG source pluggable as required by
// spec.md §1 ("random-number generator source" is an external collaborator).
type SeedGeneratorFnType func() int64

var seedGeneratorFn SeedGeneratorFnType = func() int64 {
	// Deliberately not time-seeded by default: determinism (spec.md §5,
	// §8 "Determinism") requires callers that care about reproducibility to
	// pass an explicit seed via Config.SetSeed. This default only exists so
	// a Solver constructed with a zero Config still runs.
	return 1
}

// SetSeedGeneratorFn overrides the default seed source used when a Solver
// is constructed without Config.SetSeed.
func SetSeedGeneratorFn(f SeedGeneratorFnType) {
	if f != nil {
		seedGeneratorFn = f
	}
}

// newRand constructs the single *rand.Rand a Solver owns for its entire
// lifetime: root particle selection, Step's resampling, and the RandSource
// handed to Heuristics and Choosers all draw from it in a fixed order so
// that a fixed seed reproduces an identical tree (spec.md §5). Ties in
// action selection are broken by iteration order, not by a draw.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
