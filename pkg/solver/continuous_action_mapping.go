package solver

// Chooser is the pluggable policy that proposes new continuous actions
// from existing mapping statistics (spec.md §4.3, §9 "Chooser state").
// A ContinuousActionMapping gets its Chooser from ContinuousActionPool's
// NewChooser function; the internal choosers package also keeps a
// tag-keyed registry of implementations. The Core treats a Chooser as an
// opaque collaborator.
type Chooser interface {
	// Tag identifies the chooser's registered constructor for
	// serialization round-tripping.
	Tag() string
	// Propose returns a new construction vector to try, or ok=false when
	// the chooser has nothing further to propose this call. entries is a
	// value snapshot (not the live ActionMappingEntry) so choosers never
	// need to import the solver package's node types.
	Propose(entries []ChooserEntryStats, rng RandSource) (vector []float64, ok bool)
	// SerializeState returns the chooser's persistent state as key/value
	// pairs in a stable order, for the serialization contract (spec.md §6).
	SerializeState() [][2]string
	// RestoreState re-hydrates state previously produced by SerializeState.
	RestoreState(kv [][2]string) error
}

// ChooserEntryStats is the read-only snapshot of one existing continuous
// entry a Chooser sees when proposing the next vector to try.
type ChooserEntryStats struct {
	Vector     []float64
	VisitCount int64
	MeanQ      float64
}

// RandSource is the minimal randomness surface a Chooser needs; it is
// satisfied by *rand.Rand so choosers never import math/rand directly and
// stay reproducible under the Solver's single owned generator (spec.md §5).
type RandSource interface {
	Float64() float64
	Intn(n int) int
}

type continuousEntry struct {
	data    ConstructionData
	action  Action
	node    *ActionNode
	legal   bool
	mapping *ContinuousActionMapping
}

func (e *continuousEntry) Action() Action          { return e.action }
func (e *continuousEntry) ActionNode() *ActionNode { return e.node }
func (e *continuousEntry) VisitCount() int64       { return e.node.VisitCount() }
func (e *continuousEntry) TotalQ() float64         { return e.node.TotalQ() }
func (e *continuousEntry) MeanQ() float64          { return e.node.MeanQ() }
func (e *continuousEntry) IsLegal() bool           { return e.legal }
func (e *continuousEntry) SetLegal(legal bool)     { e.legal = legal }

// Update satisfies ActionMappingEntry by delegating to the owning
// mapping's updateValue (spec.md §4.2 updateValue, shared across variants).
func (e *continuousEntry) Update(deltaN int64, deltaQ float64) {
	e.mapping.updateValue(e, deltaN, deltaQ)
}

func (e *continuousEntry) applyDelta(deltaN int64, deltaQ float64) {
	e.node.Update(deltaN, deltaQ)
}

// ContinuousActionMapping is the real-valued ActionMapping variant
// (spec.md §4.3): entries are keyed by a construction-data equivalence
// class; fixed "hybrid" actions are tried first, then a Chooser proposes
// further vectors on demand.
type ContinuousActionMapping struct {
	owner   *BeliefNode
	model   ContinuousModel
	byHash  map[uint64][]*continuousEntry
	order   []*continuousEntry
	fixed   []ConstructionData
	fixedIdx int
	chooser Chooser
	total   int64
	nVisited int
}

// ContinuousActionPool is the ActionPool backing every BeliefNode with a
// ContinuousActionMapping. NewChooser is invoked once per mapping so each
// BeliefNode gets its own chooser instance, as spec.md §4.3 requires
// ("the chooser's state is stored on the mapping").
type ContinuousActionPool struct {
	Model     ContinuousModel
	NewChooser func() Chooser
	Rand      RandSource
}

func (p ContinuousActionPool) CreateActionMapping(owner *BeliefNode) ActionMapping {
	m := &ContinuousActionMapping{
		owner:  owner,
		model:  p.Model,
		byHash: make(map[uint64][]*continuousEntry),
		fixed:  append([]ConstructionData(nil), p.Model.FixedActions()...),
	}
	if p.Model.RandomizeFixedActions() && len(m.fixed) > 1 && p.Rand != nil {
		for i := len(m.fixed) - 1; i > 0; i-- {
			j := p.Rand.Intn(i + 1)
			m.fixed[i], m.fixed[j] = m.fixed[j], m.fixed[i]
		}
	}
	if p.NewChooser != nil {
		m.chooser = p.NewChooser()
	}
	return m
}

func (m *ContinuousActionMapping) find(d ConstructionData) *continuousEntry {
	for _, e := range m.byHash[d.Hash()] {
		if e.data.Equal(d) {
			return e
		}
	}
	return nil
}

func (m *ContinuousActionMapping) NumberOfEntries() int         { return len(m.order) }
func (m *ContinuousActionMapping) NumberOfVisitedEntries() int  { return m.nVisited }
func (m *ContinuousActionMapping) TotalVisitCount() int64       { return m.total }

func (m *ContinuousActionMapping) GetEntry(a Action) ActionMappingEntry {
	cv, ok := a.(ConstructionVectored)
	if !ok {
		return nil
	}
	d := m.model.CreateConstructionData(cv.ConstructionVector())
	e := m.find(d)
	if e == nil {
		return nil
	}
	return e
}

func (m *ContinuousActionMapping) getOrCreate(d ConstructionData) (*continuousEntry, bool) {
	if e := m.find(d); e != nil {
		return e, false
	}
	action := m.model.CreateAction(d)
	e := &continuousEntry{
		data:    d,
		action:  action,
		node:    newActionNode(m.owner.tree, m.owner, action),
		legal:   true,
		mapping: m,
	}
	m.byHash[d.Hash()] = append(m.byHash[d.Hash()], e)
	m.order = append(m.order, e)
	return e, true
}

func (m *ContinuousActionMapping) GetOrCreateEntry(a Action) (ActionMappingEntry, bool) {
	cv, ok := a.(ConstructionVectored)
	if !ok {
		return nil, false
	}
	e, created := m.getOrCreate(m.model.CreateConstructionData(cv.ConstructionVector()))
	return e, created
}

// GetNextActionToTry first exhausts the fixed hybrid actions (spec.md
// §4.3 step 1), then asks the Chooser to propose a fresh construction
// vector (step 2), installing a new entry for it (step 3).
func (m *ContinuousActionMapping) GetNextActionToTry() (Action, bool) {
	for m.fixedIdx < len(m.fixed) {
		d := m.fixed[m.fixedIdx]
		m.fixedIdx++
		e, _ := m.getOrCreate(d)
		return e.action, true
	}
	if m.chooser == nil {
		return nil, false
	}
	entries := make([]ChooserEntryStats, len(m.order))
	for i, e := range m.order {
		entries[i] = ChooserEntryStats{Vector: e.data.Vector(), VisitCount: e.VisitCount(), MeanQ: e.MeanQ()}
	}
	vector, ok := m.chooser.Propose(entries, m.owner.tree.Rand())
	if !ok {
		return nil, false
	}
	d := m.model.CreateConstructionData(vector)
	e, _ := m.getOrCreate(d)
	return e.action, true
}

func (m *ContinuousActionMapping) Entries(visit func(ActionMappingEntry)) {
	for _, e := range m.order {
		visit(e)
	}
}

func (m *ContinuousActionMapping) updateValue(e *continuousEntry, deltaN int64, deltaQ float64) {
	wasZero := e.VisitCount() == 0
	e.applyDelta(deltaN, deltaQ)
	m.total += deltaN
	if wasZero && e.VisitCount() > 0 {
		m.nVisited++
	} else if !wasZero && e.VisitCount() == 0 {
		m.nVisited--
	}
}

// ChooserInstance exposes the mapping's chooser (nil when the pool had no
// NewChooser); Serialize does not write its state.
func (m *ContinuousActionMapping) ChooserInstance() Chooser { return m.chooser }
