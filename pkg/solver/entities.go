// Package solver implements the belief-tree search engine: the polymorphic
// belief/action node tree, the particle filter backing every belief, the
// MCTS simulation/backup loop, and the structure-preserving edit that runs
// when the model changes mid-search.
package solver

// State is an opaque value sampled from the model's state space. Every
// State must support structural equality, a stable hash, and a deep copy;
// the State Pool relies on all three to deduplicate particles.
type State interface {
	Equals(other State) bool
	Hash() uint64
	Copy() State
}

// Action is an opaque value proposed by an action space. Actions drawn from
// a discretized space additionally implement BinIndexed; actions drawn from
// a continuous space additionally implement ConstructionVectored.
type Action interface {
	Equals(other Action) bool
	Hash() uint64
	Copy() Action
}

// BinIndexed is implemented by actions drawn from a discretized action
// space (§4.2); the bin index is the key under which the action's entry is
// stored in a DiscretizedActionMapping.
type BinIndexed interface {
	BinIndex() int64
}

// ConstructionVectored is implemented by actions drawn from a continuous
// action space (§4.3); the ContinuousActionMapping turns the vector into
// ConstructionData via the Model to key its entries.
type ConstructionVectored interface {
	ConstructionVector() []float64
}

// Observation is an opaque value returned by a model transition.
type Observation interface {
	Equals(other Observation) bool
	Hash() uint64
	Copy() Observation
}

// ApproximateObservation is implemented by observations routed through an
// ApproximateObservationMapping (§4.5); Distance must be a metric (or at
// least a pseudometric: non-negative, symmetric, zero on equal values).
type ApproximateObservation interface {
	Observation
	Distance(other Observation) float64
}

// HistoryEntry is the immutable record of a single simulated transition:
// the particle occupying the belief before the step, the action taken, the
// observation received, the immediate reward, and the belief the sequence
// moved into. Entries are chained into a HistorySequence (spec.md §3).
type HistoryEntry struct {
	Sequence     *HistorySequence
	Depth        int
	StartBelief  *BeliefNode
	State        *StateInfo
	Action       Action
	Entry        ActionMappingEntry // the action edge this entry passed through
	Observation  Observation
	Reward       float64
	NextState    *StateInfo // the particle occupying ResultBelief after this step
	ResultBelief *BeliefNode
	Terminal     bool
	stale        bool
}

// Stale reports whether this entry was flagged by change propagation and
// needs resimulation (§4.8).
func (e *HistoryEntry) Stale() bool { return e.stale }

// HistorySequence is the chain of HistoryEntry records produced by one
// simulation, from the root belief down to the leaf reached at depth,
// terminal-state, or early-cutoff. Sequences persist between solver steps
// so that statistics gathered in prior steps remain amortized (spec.md §3).
type HistorySequence struct {
	ID      uint64
	Entries []*HistoryEntry
	Deleted bool
}

func (s *HistorySequence) last() *HistoryEntry {
	if len(s.Entries) == 0 {
		return nil
	}
	return s.Entries[len(s.Entries)-1]
}
