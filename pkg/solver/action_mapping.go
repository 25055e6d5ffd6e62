package solver

import "math"

// ActionMapping holds the outgoing action edges of a BeliefNode (spec.md
// §3). Concrete variants are DiscretizedActionMapping and
// ContinuousActionMapping; both are built by the Model's ActionPool so the
// Core never chooses a variant itself.
type ActionMapping interface {
	// NumberOfEntries returns the number of entries created so far
	// (visited or not, for variants that pre-allocate slots).
	NumberOfEntries() int
	// NumberOfVisitedEntries returns the number of entries with a positive
	// visit count.
	NumberOfVisitedEntries() int
	// TotalVisitCount is the sum of every entry's visit count (§8.1).
	TotalVisitCount() int64
	// GetEntry looks up the entry for a, or nil if none exists yet.
	GetEntry(a Action) ActionMappingEntry
	// GetOrCreateEntry returns the existing entry for a, creating (and
	// marking legal) a fresh one with a new ActionNode if absent. The bool
	// reports whether a new entry was created (ActionNode.CreateOrGetChild
	// parity, SPEC_FULL §3).
	GetOrCreateEntry(a Action) (ActionMappingEntry, bool)
	// GetNextActionToTry pops the next untried action from the mapping's
	// try-queue, or returns (nil, false) once nothing remains untried
	// (spec.md §4.2 "try each bin once before bandit selection").
	GetNextActionToTry() (Action, bool)
	// Entries visits every created entry in a stable, deterministic order
	// (spec.md §5 "insertion-order iteration"), for both bandit selection
	// and serialization.
	Entries(visit func(ActionMappingEntry))
}

// ActionMappingEntry is the shared abstraction over one outgoing action
// edge, regardless of mapping variant (spec.md §3 "(Shared abstraction)").
type ActionMappingEntry interface {
	Action() Action
	ActionNode() *ActionNode
	VisitCount() int64
	TotalQ() float64
	MeanQ() float64
	IsLegal() bool
	SetLegal(legal bool)
	// Update applies a (Δvisits, ΔtotalQ) delta (spec.md §4.2 updateValue).
	Update(deltaN int64, deltaQ float64)
}

// negInf is the sentinel meanQ for an unvisited entry (spec.md §9
// "Numerical care"): any visited legal entry beats it under UCB1 without a
// special case for zero visits.
var negInf = math.Inf(-1)

// ucb1Select runs the deterministic UCB1 rule (spec.md §4.2) over entries
// supplied by visit-order iteration, skipping illegal entries, and returns
// the winner. totalVisits is the parent's TotalVisitCount. Ties break by
// the entry appearing earlier in iteration order, which callers arrange to
// be the stable key order (bin index, construction fingerprint insertion
// order).
func ucb1Select(entries []ActionMappingEntry, totalVisits int64, c float64) ActionMappingEntry {
	if totalVisits < 1 {
		totalVisits = 1
	}
	lnTotal := math.Log(float64(totalVisits))

	var best ActionMappingEntry
	bestScore := negInf
	for _, e := range entries {
		if !e.IsLegal() || e.VisitCount() == 0 {
			continue
		}
		score := e.MeanQ() + c*math.Sqrt(lnTotal/float64(e.VisitCount()))
		if score > bestScore {
			bestScore = score
			best = e
		}
	}
	return best
}
