package solver

import "time"

// Config holds every option spec.md §6 names. Builder-pattern chained
// setters are adapted from the teacher's Limits/DefaultLimits
// (pkg/mcts/limits.go). Unlike the teacher's Limits, NewSolver keeps the
// *Config it is given rather than copying it (only Seed is resolved once,
// via resolvedSeed): every field but Seed is read live off s.config for the
// life of the Solver, so mutating a Config after NewSolver changes that
// Solver's behavior immediately. Give each Solver its own Config, or copy
// one with a struct literal before handing it to a second Solver, if that
// sharing isn't what you want.
type Config struct {
	DiscountFactor                   float64
	SimulationBudget                 uint32 // 0 means unbounded (movetime governs instead)
	SearchMovetimeMs                 int    // -1 means unbounded
	ParticleCount                    int
	UCBCoefficient                   float64
	Horizon                          int
	MinimumParticleCount             int
	HeuristicTimeout                 time.Duration
	ApproximateObservationThreshold  float64
	Seed                             int64
	seedSet                          bool
}

// DefaultConfig mirrors the teacher's DefaultLimits(): sensible values that
// make a Solver usable out of the box, with every budget effectively
// unbounded until the caller opts into a limit.
func DefaultConfig() *Config {
	return &Config{
		DiscountFactor:                  0.95,
		SimulationBudget:                0,
		SearchMovetimeMs:                -1,
		ParticleCount:                   1000,
		UCBCoefficient:                  1.0,
		Horizon:                         100,
		MinimumParticleCount:            50,
		HeuristicTimeout:                0,
		ApproximateObservationThreshold: 0,
	}
}

func (c *Config) SetDiscountFactor(gamma float64) *Config {
	c.DiscountFactor = gamma
	return c
}

// SetSearchBudget sets the per-step simulation count (spec.md §6
// "searchBudget (simulations per step or millisecond deadline)"); a budget
// of 0 means "governed by movetime instead."
func (c *Config) SetSearchBudget(simulations uint32) *Config {
	c.SimulationBudget = simulations
	return c
}

func (c *Config) SetSearchMovetime(ms int) *Config {
	c.SearchMovetimeMs = ms
	return c
}

func (c *Config) SetParticleCount(n int) *Config {
	c.ParticleCount = n
	return c
}

func (c *Config) SetUCBCoefficient(v float64) *Config {
	c.UCBCoefficient = v
	return c
}

func (c *Config) SetHorizon(depth int) *Config {
	c.Horizon = depth
	return c
}

func (c *Config) SetMinimumParticleCount(n int) *Config {
	c.MinimumParticleCount = n
	return c
}

func (c *Config) SetHeuristicTimeout(d time.Duration) *Config {
	c.HeuristicTimeout = d
	return c
}

func (c *Config) SetApproximateObservationThreshold(tau float64) *Config {
	c.ApproximateObservationThreshold = tau
	return c
}

func (c *Config) SetSeed(seed int64) *Config {
	c.Seed = seed
	c.seedSet = true
	return c
}

func (c *Config) resolvedSeed() int64 {
	if c.seedSet {
		return c.Seed
	}
	return seedGeneratorFn()
}
