package solver

// BinState is the three-state legality of a discretized action bin
// (SPEC_FULL §3, grounded on discretized_actions.hpp's "entries are
// illegal by default"): a bin starts illegal, becomes legal the first time
// it is visited, and may later be marked illegal again by the Model (e.g.
// a constraint discovered after the fact).
type BinState int

const (
	BinUnvisited BinState = iota
	BinLegal
	BinIllegal
)

// discretizedEntry is one numbered bin's slot in a DiscretizedActionMapping.
type discretizedEntry struct {
	bin     int64
	action  Action
	node    *ActionNode
	state   BinState
	mapping *DiscretizedActionMapping
}

func (e *discretizedEntry) Action() Action          { return e.action }
func (e *discretizedEntry) ActionNode() *ActionNode { return e.node }
func (e *discretizedEntry) VisitCount() int64 {
	if e.node == nil {
		return 0
	}
	return e.node.VisitCount()
}
func (e *discretizedEntry) TotalQ() float64 {
	if e.node == nil {
		return 0
	}
	return e.node.TotalQ()
}
func (e *discretizedEntry) MeanQ() float64 {
	if e.node == nil {
		return negInf
	}
	return e.node.MeanQ()
}
func (e *discretizedEntry) IsLegal() bool   { return e.state == BinLegal }
func (e *discretizedEntry) SetLegal(legal bool) {
	if legal {
		e.state = BinLegal
	} else {
		e.state = BinIllegal
	}
}
// Update satisfies ActionMappingEntry by delegating to the owning
// mapping's updateValue, which maintains numberOfVisitedEntries alongside
// the raw delta (spec.md §4.2 updateValue).
func (e *discretizedEntry) Update(deltaN int64, deltaQ float64) {
	e.mapping.updateValue(e, deltaN, deltaQ)
}

func (e *discretizedEntry) applyDelta(deltaN int64, deltaQ float64) {
	if e.node != nil {
		e.node.Update(deltaN, deltaQ)
	}
}

// DiscretizedActionMapping is the fixed-bin-count ActionMapping variant
// (spec.md §4.2). The try-queue drives "try each bin once before bandit
// selection"; it is initialized from the Model's BinSequence at
// construction and never refilled.
type DiscretizedActionMapping struct {
	owner   *BeliefNode
	model   DiscretizedModel
	entries []*discretizedEntry // indexed by bin
	tryQueue []int64
	tryHead int
	nVisited int
	total   int64
}

// DiscretizedActionPool is the ActionPool that backs every BeliefNode with
// a DiscretizedActionMapping, constructed from the Model's NumberOfBins and
// per-node BinSequence (spec.md §4.2). One pool instance is shared by the
// whole tree; the history BinSequence receives is derived fresh for each
// owner from the path that reached it, not fixed at pool construction.
type DiscretizedActionPool struct {
	Model DiscretizedModel
}

func (p DiscretizedActionPool) CreateActionMapping(owner *BeliefNode) ActionMapping {
	n := p.Model.NumberOfBins()
	m := &DiscretizedActionMapping{
		owner:   owner,
		model:   p.Model,
		entries: make([]*discretizedEntry, n),
	}
	m.tryQueue = p.Model.BinSequence(ancestorHistory(owner))
	return m
}

// ancestorHistory reconstructs the chain of actions taken to reach owner,
// root-first, as a minimal []*HistoryEntry for BinSequence (spec.md §4.2:
// "derived from the path taken to reach it"). Only Depth and Action are
// populated; a node's BinSequence has no legitimate use for a sibling's
// reward or observation, since those aren't on its own path.
func ancestorHistory(owner *BeliefNode) []*HistoryEntry {
	var chain []*HistoryEntry
	depth := 0
	for n := owner; n.parent != nil; n = n.parent.Parent() {
		depth++
	}
	for n := owner; n.parent != nil; n = n.parent.Parent() {
		depth--
		chain = append(chain, &HistoryEntry{Depth: depth, Action: n.parent.Action()})
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func (m *DiscretizedActionMapping) entryFor(bin int64) *discretizedEntry {
	e := m.entries[bin]
	if e == nil {
		e = &discretizedEntry{bin: bin, action: m.model.SampleAction(bin), state: BinUnvisited, mapping: m}
		m.entries[bin] = e
	}
	return e
}

func (m *DiscretizedActionMapping) NumberOfEntries() int {
	n := 0
	for _, e := range m.entries {
		if e != nil {
			n++
		}
	}
	return n
}

func (m *DiscretizedActionMapping) NumberOfVisitedEntries() int { return m.nVisited }
func (m *DiscretizedActionMapping) TotalVisitCount() int64      { return m.total }

func (m *DiscretizedActionMapping) GetEntry(a Action) ActionMappingEntry {
	bi, ok := a.(BinIndexed)
	if !ok {
		return nil
	}
	e := m.entries[bi.BinIndex()]
	if e == nil {
		return nil
	}
	return e
}

func (m *DiscretizedActionMapping) GetOrCreateEntry(a Action) (ActionMappingEntry, bool) {
	bi, ok := a.(BinIndexed)
	if !ok {
		return nil, false
	}
	e := m.entryFor(bi.BinIndex())
	created := e.node == nil
	if created {
		e.node = newActionNode(m.owner.tree, m.owner, e.action)
		e.state = BinLegal
	}
	return e, created
}

// GetNextActionToTry pops the bin-sequence queue (spec.md §4.2).
func (m *DiscretizedActionMapping) GetNextActionToTry() (Action, bool) {
	for m.tryHead < len(m.tryQueue) {
		bin := m.tryQueue[m.tryHead]
		m.tryHead++
		e := m.entryFor(bin)
		if e.state == BinIllegal {
			continue
		}
		return e.action, true
	}
	return nil, false
}

func (m *DiscretizedActionMapping) Entries(visit func(ActionMappingEntry)) {
	for _, e := range m.entries {
		if e != nil && e.node != nil {
			visit(e)
		}
	}
}

// updateValue is the spec.md §4.2 updateValue operation: when visitCount
// transitions from 0 to positive, numberOfVisitedEntries is incremented, and
// when it drops back to 0 (a deleted sequence), it is decremented.
func (m *DiscretizedActionMapping) updateValue(e *discretizedEntry, deltaN int64, deltaQ float64) {
	wasZero := e.VisitCount() == 0
	e.applyDelta(deltaN, deltaQ)
	m.total += deltaN
	if wasZero && e.VisitCount() > 0 {
		m.nVisited++
	} else if !wasZero && e.VisitCount() == 0 {
		m.nVisited--
	}
}
