package solver

// discreteObservationEntry is one hash-mapped observation edge (spec.md
// §4.4): a child belief plus its own visit count.
type discreteObservationEntry struct {
	obs        Observation
	child      *BeliefNode
	visitCount int64
}

// DiscreteObservationMapping is the exact observation mapping variant: a
// hash map from Observation (by its own Equals/Hash) to ⟨child, visit
// count⟩ (spec.md §4.4). insertOrder preserves deterministic iteration for
// selection and serialization (spec.md §5) independently of map iteration.
type DiscreteObservationMapping struct {
	owner       *ActionNode
	byHash      map[uint64][]*discreteObservationEntry
	insertOrder []*discreteObservationEntry
	total       int64
}

// DiscreteObservationPool is the ObservationPool that backs every
// ActionNode with a DiscreteObservationMapping (spec.md §4.4).
type DiscreteObservationPool struct{}

func (DiscreteObservationPool) CreateObservationMapping(owner *ActionNode) ObservationMapping {
	return &DiscreteObservationMapping{owner: owner, byHash: make(map[uint64][]*discreteObservationEntry)}
}

func (m *DiscreteObservationMapping) find(o Observation) *discreteObservationEntry {
	for _, e := range m.byHash[o.Hash()] {
		if e.obs.Equals(o) {
			return e
		}
	}
	return nil
}

func (m *DiscreteObservationMapping) GetBelief(o Observation) (*BeliefNode, bool) {
	if e := m.find(o); e != nil {
		return e.child, true
	}
	return nil, false
}

func (m *DiscreteObservationMapping) CreateBelief(o Observation) *BeliefNode {
	if e := m.find(o); e != nil {
		return e.child
	}
	child := m.owner.tree.newBelief(m.owner)
	e := &discreteObservationEntry{obs: o, child: child}
	m.byHash[o.Hash()] = append(m.byHash[o.Hash()], e)
	m.insertOrder = append(m.insertOrder, e)
	return child
}

func (m *DiscreteObservationMapping) UpdateVisitCount(o Observation, delta int64) {
	e := m.find(o)
	if e == nil {
		return
	}
	e.visitCount += delta
	m.total += delta
}

func (m *DiscreteObservationMapping) TotalVisitCount() int64 { return m.total }

func (m *DiscreteObservationMapping) NumberOfEntries() int { return len(m.insertOrder) }

func (m *DiscreteObservationMapping) Entries(visit func(Observation, *BeliefNode, int64)) {
	for _, e := range m.insertOrder {
		visit(e.obs, e.child, e.visitCount)
	}
}
