package solver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// branchState is stepModel's state: the shared, non-terminal root value
// (branch == "") or one of two terminal branch values reached after a
// single step. Root and branch values hash/compare distinctly, so each
// occupies its own StateInfo in the pool — unlike trivialmdp's single
// recurring state, this lets a discard test observe eviction directly.
type branchState struct{ branch string }

func (s branchState) Equals(other State) bool {
	o, ok := other.(branchState)
	return ok && o.branch == s.branch
}
func (s branchState) Hash() uint64 {
	h := uint64(1469598103934665603)
	for _, c := range s.branch {
		h = (h ^ uint64(c)) * 1099511628211
	}
	return h
}
func (s branchState) Copy() State { return s }

type branchAction struct{}

func (branchAction) Equals(other Action) bool { _, ok := other.(branchAction); return ok }
func (branchAction) Hash() uint64             { return 0 }
func (branchAction) Copy() Action             { return branchAction{} }
func (branchAction) BinIndex() int64          { return 0 }

type branchObservation struct{ label string }

func (o branchObservation) Equals(other Observation) bool {
	p, ok := other.(branchObservation)
	return ok && p.label == o.label
}
func (o branchObservation) Hash() uint64 {
	h := uint64(1469598103934665603)
	for _, c := range o.label {
		h = (h ^ uint64(c)) * 1099511628211
	}
	return h
}
func (o branchObservation) Copy() Observation { return o }

// stepModel is a one-step, single-bin model that alternates deterministically
// between two branches ("A"/"B") on every call to SampleNext, whichever
// component calls it — ordinary search or Step's rejection-sampling
// repopulate. Both call sites share the same counter, so either one can be
// driven by a caller that wants a specific sequence of branches.
type stepModel struct {
	calls    int
	sequence []string // cycled through on every SampleNext call
}

func (m *stepModel) nextBranch() string {
	b := m.sequence[m.calls%len(m.sequence)]
	m.calls++
	return b
}

func (m *stepModel) SampleInitialState() State { return branchState{} }

func (m *stepModel) SampleNext(s State, a Action) (State, Observation, float64, bool) {
	b := m.nextBranch()
	return branchState{branch: b}, branchObservation{label: b}, 0, true
}

func (m *stepModel) IsTerminal(s State) bool        { return s.(branchState).branch != "" }
func (m *stepModel) HeuristicValue(s State) float64 { return 0 }
func (m *stepModel) DiscountFactor() float64        { return 0.9 }
func (m *stepModel) CreateActionPool() ActionPool   { return DiscretizedActionPool{Model: m} }
func (m *stepModel) CreateObservationPool() ObservationPool {
	return DiscreteObservationPool{}
}
func (m *stepModel) NumberOfBins() int64                  { return 1 }
func (m *stepModel) SampleAction(bin int64) Action        { return branchAction{} }
func (m *stepModel) BinSequence(h []*HistoryEntry) []int64 { return []int64{0} }

func newStepSolver(seq []string, minParticles int) (*Solver, *stepModel) {
	model := &stepModel{sequence: seq}
	cfg := DefaultConfig().
		SetDiscountFactor(model.DiscountFactor()).
		SetHorizon(1).
		SetParticleCount(20).
		SetSearchBudget(20).
		SetMinimumParticleCount(minParticles).
		SetSeed(21)
	s := NewSolver(model, cfg)
	s.Initialize()
	return s, model
}

// TestStepRejectsActionNotAtRoot is spec.md §4.7: Step requires the given
// action to already have an entry at the current root.
func TestStepRejectsActionNotAtRoot(t *testing.T) {
	s, _ := newStepSolver([]string{"A", "B"}, 0)
	err := s.Step(branchAction{}, branchObservation{label: "A"})
	require.Error(t, err)
	ce, ok := err.(*ContractError)
	require.True(t, ok)
	require.Equal(t, ModelContractViolation, ce.Kind)
}

// TestStepAdvancesRootToExistingChildAndDiscardsSiblings exercises spec.md
// §4.7's step/discard contract: after ImprovePolicy has visited both
// branches, Step(a, "A") must move the root to the already-existing "A"
// child, and discardUnreachable must release every particle the sibling
// "B" branch and the old root held — driving branchState{"B"}'s and
// branchState{""}'s canonical StateInfo refcounts to zero (spec.md §5
// "Resource release"), since nothing else in this one-step tree references
// them.
func TestStepAdvancesRootToExistingChildAndDiscardsSiblings(t *testing.T) {
	s, _ := newStepSolver([]string{"A", "B"}, 0)
	require.NoError(t, s.ImprovePolicy())

	entry := s.tree.root.Mapping().GetEntry(branchAction{})
	require.NotNil(t, entry)
	actionNode := entry.ActionNode()
	childA, ok := actionNode.Mapping().GetBelief(branchObservation{label: "A"})
	require.True(t, ok, "both branches must have been visited by the search budget")
	childB, ok := actionNode.Mapping().GetBelief(branchObservation{label: "B"})
	require.True(t, ok)
	require.NotSame(t, childA, childB)

	wantParticles := childA.NParticles()
	sizeBefore := s.pool.Size()
	require.Equal(t, 3, sizeBefore, "root branch plus A and B branches are each a distinct canonical state")

	require.NoError(t, s.Step(branchAction{}, branchObservation{label: "A"}))

	require.Same(t, childA, s.tree.root, "Step must move the root to the existing A child")
	require.Equal(t, wantParticles, s.tree.root.NParticles(), "MinimumParticleCount of 0 must not trigger repopulate")
	require.Equal(t, 1, s.pool.Size(), "the discarded B branch and the superseded root state must both be evicted")
}

// TestStepRepopulatesBelowMinimumParticleCount is spec.md §4.7's resampling
// clause: when the landed-on child has fewer particles than
// MinimumParticleCount, Step draws more via rejection sampling from the old
// root under (a, o) until the minimum is met.
func TestStepRepopulatesBelowMinimumParticleCount(t *testing.T) {
	s, _ := newStepSolver([]string{"A", "B"}, 25)
	require.NoError(t, s.ImprovePolicy())

	entry := s.tree.root.Mapping().GetEntry(branchAction{})
	require.NotNil(t, entry)
	childA, ok := entry.ActionNode().Mapping().GetBelief(branchObservation{label: "A"})
	require.True(t, ok)
	require.Less(t, childA.NParticles(), 25, "only half the 20-particle budget should have reached branch A")

	require.NoError(t, s.Step(branchAction{}, branchObservation{label: "A"}))

	require.GreaterOrEqual(t, s.tree.root.NParticles(), 25, "repopulate must top the new root up to MinimumParticleCount")
}

// TestStepCreatesChildAndRepopulatesWhenObservationUnvisited covers Step's
// other branch: an (a, o) pair search never reached yet still must produce
// a populated child, entirely through repopulate's rejection sampling
// against the old root (spec.md §4.7 "If no child exists yet").
func TestStepCreatesChildAndRepopulatesWhenObservationUnvisited(t *testing.T) {
	// Horizon 1 with a single always-"A" sequence means the search never
	// creates a "B" child, so Step must create one from scratch.
	s, model := newStepSolver([]string{"A"}, 10)
	require.NoError(t, s.ImprovePolicy())

	entry := s.tree.root.Mapping().GetEntry(branchAction{})
	require.NotNil(t, entry)
	_, existed := entry.ActionNode().Mapping().GetBelief(branchObservation{label: "B"})
	require.False(t, existed, "search never visited branch B")

	// Switch the shared counter to always answer "B" so Step's repopulate
	// calls, which reuse the same SampleNext, can actually satisfy the
	// observation match it's resampling for.
	model.sequence = []string{"B"}

	require.NoError(t, s.Step(branchAction{}, branchObservation{label: "B"}))

	require.GreaterOrEqual(t, s.tree.root.NParticles(), 10, "a freshly created child must still be repopulated to the minimum")
}

// TestStepFiltersSequencesToSurvivingSubtree is spec.md §3 "persist between
// solver steps": only sequences whose first entry led into the new root
// remain after Step; everything else belonged to a discarded branch.
func TestStepFiltersSequencesToSurvivingSubtree(t *testing.T) {
	s, _ := newStepSolver([]string{"A", "B"}, 0)
	require.NoError(t, s.ImprovePolicy())
	require.NotEmpty(t, s.sequences)

	require.NoError(t, s.Step(branchAction{}, branchObservation{label: "A"}))

	newRoot := s.tree.root
	for _, seq := range s.sequences {
		require.NotEmpty(t, seq.Entries)
		require.Same(t, newRoot, seq.Entries[0].ResultBelief,
			"every surviving sequence's first entry must land on the new root")
	}
}
