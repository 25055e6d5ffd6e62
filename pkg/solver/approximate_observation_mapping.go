package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// approximateCluster is one observation cluster: a fixed representative
// fixed at creation time (spec.md §4.5 "the approximate mapping fixes the
// representative at cluster creation"), the child belief it routes to, and
// its own visit count.
type approximateCluster struct {
	id             int
	representative Observation
	projection     []float64
	child          *BeliefNode
	visitCount     int64
}

// ApproximateObservationMapping clusters observations under a similarity
// threshold τ rather than hashing them exactly (spec.md §4.5). Used when
// the observation space is large or continuous.
type ApproximateObservationMapping struct {
	owner     *ActionNode
	threshold float64
	projectFn func(Observation) []float64
	clusters  []*approximateCluster
	nextID    int
	total     int64
}

// ApproximateObservationPool is the ObservationPool that backs every
// ActionNode with an ApproximateObservationMapping. ProjectFn is used only
// for observations that do not implement ApproximateObservation directly;
// it is grounded on SPEC_FULL §2's gonum wiring (floats.Distance, L2) for
// the Euclidean fallback metric.
type ApproximateObservationPool struct {
	Threshold float64
	ProjectFn func(Observation) []float64
}

func (p ApproximateObservationPool) CreateObservationMapping(owner *ActionNode) ObservationMapping {
	return &ApproximateObservationMapping{owner: owner, threshold: p.Threshold, projectFn: p.ProjectFn}
}

func (m *ApproximateObservationMapping) distance(a, b Observation) float64 {
	if ao, ok := a.(ApproximateObservation); ok {
		return ao.Distance(b)
	}
	if m.projectFn == nil {
		// No metric available; treat as exact equality so the mapping
		// degrades to discrete-like behavior instead of panicking.
		if a.Equals(b) {
			return 0
		}
		return math.Inf(1)
	}
	return floats.Distance(m.projectFn(a), m.projectFn(b), 2)
}

// nearest returns the cluster whose representative is within threshold of
// o, breaking ties by lowest cluster id (earliest insertion), per
// spec.md §4.5.
func (m *ApproximateObservationMapping) nearest(o Observation) *approximateCluster {
	var best *approximateCluster
	bestDist := math.Inf(1)
	for _, c := range m.clusters {
		d := m.distance(c.representative, o)
		if d <= m.threshold && (best == nil || d < bestDist || (d == bestDist && c.id < best.id)) {
			best = c
			bestDist = d
		}
	}
	return best
}

func (m *ApproximateObservationMapping) GetBelief(o Observation) (*BeliefNode, bool) {
	if c := m.nearest(o); c != nil {
		return c.child, true
	}
	return nil, false
}

func (m *ApproximateObservationMapping) CreateBelief(o Observation) *BeliefNode {
	if c := m.nearest(o); c != nil {
		return c.child
	}
	child := m.owner.tree.newBelief(m.owner)
	c := &approximateCluster{id: m.nextID, representative: o.Copy(), child: child}
	if m.projectFn != nil {
		c.projection = m.projectFn(c.representative)
	}
	m.nextID++
	m.clusters = append(m.clusters, c)
	return child
}

// UpdateVisitCount routes o to its cluster exactly as GetBelief/CreateBelief
// would (spec.md §4.5 idempotence) and bumps that cluster's visit count.
func (m *ApproximateObservationMapping) UpdateVisitCount(o Observation, delta int64) {
	c := m.nearest(o)
	if c == nil {
		return
	}
	c.visitCount += delta
	m.total += delta
}

func (m *ApproximateObservationMapping) TotalVisitCount() int64 { return m.total }

func (m *ApproximateObservationMapping) NumberOfEntries() int { return len(m.clusters) }

func (m *ApproximateObservationMapping) Entries(visit func(Observation, *BeliefNode, int64)) {
	for _, c := range m.clusters {
		visit(c.representative, c.child, c.visitCount)
	}
}
