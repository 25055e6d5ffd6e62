package solver_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abt-go/abt/pkg/solver"
)

// clusterState is clusterModel's state: the non-terminal initial state, or
// the terminal state every step moves to.
type clusterState struct{ term bool }

func (s clusterState) Equals(other solver.State) bool {
	o, ok := other.(clusterState)
	return ok && o.term == s.term
}
func (s clusterState) Hash() uint64 {
	if s.term {
		return 1
	}
	return 0
}
func (s clusterState) Copy() solver.State { return s }

type clusterAction struct{}

func (a clusterAction) Equals(other solver.Action) bool { _, ok := other.(clusterAction); return ok }
func (a clusterAction) Hash() uint64                    { return 0 }
func (a clusterAction) Copy() solver.Action             { return a }
func (a clusterAction) BinIndex() int64                 { return 0 }

// clusterObservation is a scalar wrapped as an ApproximateObservation: its
// Distance is plain absolute difference, so a threshold picks out which
// values fall in the same cluster.
type clusterObservation struct{ v float64 }

func (o clusterObservation) Equals(other solver.Observation) bool {
	p, ok := other.(clusterObservation)
	return ok && p.v == o.v
}
func (o clusterObservation) Hash() uint64 { return uint64(o.v * 1000) }
func (o clusterObservation) Copy() solver.Observation { return o }
func (o clusterObservation) Distance(other solver.Observation) float64 {
	p := other.(clusterObservation)
	d := o.v - p.v
	if d < 0 {
		d = -d
	}
	return d
}

// clusterModel emits an observation drawn from one of two widely separated
// clusters (around 0.1 and around 10.1), cycling through values, backed by an
// ApproximateObservationMapping with Threshold 0.5: near-0.1 values must
// land in one cluster, near-10.1 values in another, regardless of how many
// times each is visited.
type clusterModel struct {
	calls  int
	values []float64
}

func (m *clusterModel) SampleInitialState() solver.State { return clusterState{} }

func (m *clusterModel) SampleNext(s solver.State, a solver.Action) (solver.State, solver.Observation, float64, bool) {
	v := m.values[m.calls%len(m.values)]
	m.calls++
	return clusterState{term: true}, clusterObservation{v: v}, 0, true
}

func (m *clusterModel) IsTerminal(s solver.State) bool         { return s.(clusterState).term }
func (m *clusterModel) HeuristicValue(s solver.State) float64  { return 0 }
func (m *clusterModel) DiscountFactor() float64                { return 0.9 }
func (m *clusterModel) CreateActionPool() solver.ActionPool    { return solver.DiscretizedActionPool{Model: m} }
func (m *clusterModel) CreateObservationPool() solver.ObservationPool {
	return solver.ApproximateObservationPool{Threshold: 0.5}
}
func (m *clusterModel) NumberOfBins() int64            { return 1 }
func (m *clusterModel) SampleAction(bin int64) solver.Action { return clusterAction{} }
func (m *clusterModel) BinSequence(history []*solver.HistoryEntry) []int64 { return []int64{0} }

func (m *clusterModel) SerializeState(s solver.State) string {
	if s.(clusterState).term {
		return "1"
	}
	return "0"
}
func (m *clusterModel) DeserializeState(text string) (solver.State, error) {
	return clusterState{term: text == "1"}, nil
}
func (m *clusterModel) SerializeAction(a solver.Action) string { return "0" }
func (m *clusterModel) DeserializeAction(text string) (solver.Action, error) {
	return clusterAction{}, nil
}
func (m *clusterModel) SerializeObservation(o solver.Observation) string {
	return strconv.FormatFloat(o.(clusterObservation).v, 'g', -1, 64)
}
func (m *clusterModel) DeserializeObservation(text string) (solver.Observation, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, err
	}
	return clusterObservation{v: v}, nil
}

// TestApproximateObservationMappingClustersWithinThreshold is spec.md §4.5:
// observations within Threshold of an existing cluster's representative
// route to that cluster's child belief rather than allocating a new one.
func TestApproximateObservationMappingClustersWithinThreshold(t *testing.T) {
	model := &clusterModel{values: []float64{0.1, 10.1, 0.2, 10.0, 0.15}}
	cfg := solver.DefaultConfig().
		SetDiscountFactor(model.DiscountFactor()).
		SetHorizon(1).
		SetParticleCount(len(model.values)).
		SetSearchBudget(uint32(len(model.values) * 3)).
		SetSeed(11)

	s := solver.NewSolver(model, cfg)
	s.Initialize()
	require.NoError(t, s.ImprovePolicy())

	entry := s.Tree().Root().Mapping().GetEntry(clusterAction{})
	require.NotNil(t, entry)
	require.Equal(t, 2, entry.ActionNode().Mapping().NumberOfEntries(),
		"values near 0.1 and values near 10.1 must merge into exactly two clusters")
}

// TestApproximateObservationMappingSerializeRoundTrip exercises the
// threshold/projectFn fidelity fix: a dumped-and-restored tree must still
// cluster a fresh observation the same way the original did, which only
// holds if Deserialize actually restores the mapping's threshold instead
// of defaulting it to zero.
func TestApproximateObservationMappingSerializeRoundTrip(t *testing.T) {
	model := &clusterModel{values: []float64{0.1, 10.1, 0.2, 10.0}}
	cfg := solver.DefaultConfig().
		SetDiscountFactor(model.DiscountFactor()).
		SetHorizon(1).
		SetParticleCount(len(model.values)).
		SetSearchBudget(uint32(len(model.values) * 3)).
		SetSeed(13)

	s := solver.NewSolver(model, cfg)
	s.Initialize()
	require.NoError(t, s.ImprovePolicy())

	dump, err := s.Serialize()
	require.NoError(t, err)
	require.Contains(t, dump, "threshold 0.5", "the mapping's threshold must appear in the dump")

	restored, err := solver.Deserialize(model, cfg, dump)
	require.NoError(t, err)

	entry := restored.Tree().Root().Mapping().GetEntry(clusterAction{})
	require.NotNil(t, entry)
	require.Equal(t, 2, entry.ActionNode().Mapping().NumberOfEntries(),
		"a restored mapping must still see exactly two clusters, not one per observation")

	fresh := clusterObservation{v: 0.3}
	origChild, ok := s.Tree().Root().Mapping().GetEntry(clusterAction{}).ActionNode().Mapping().GetBelief(fresh)
	require.True(t, ok, "0.3 is within the threshold of the 0.1 cluster")
	restoredChild, ok := entry.ActionNode().Mapping().GetBelief(fresh)
	require.True(t, ok, "the restored threshold must route 0.3 into the 0.1 cluster too")
	require.Equal(t, origChild.ID, restoredChild.ID)

	redump, err := restored.Serialize()
	require.NoError(t, err)
	require.Equal(t, dump, redump, "a round-tripped tree must re-serialize identically")
}
