package solver

// BeliefNode is a node in the belief tree (spec.md §3). It owns an
// ActionMapping and holds non-owning references into the State Pool for
// every particle currently occupying it. Back-links to the owning
// ActionNode are weak: a BeliefNode never keeps its parent alive.
type BeliefNode struct {
	ID       uint64
	tree     *BeliefTree
	parent   *ActionNode // weak; nil for the root
	mapping  ActionMapping
	particles []*StateInfo

	// nStartingSequences and nEndingSequences are the per-belief counters
	// spec.md §3 names alongside nParticles: how many HistorySequences began
	// or ended at this belief. search.go increments them at simulate's
	// start/end; they round-trip through Serialize/Deserialize.
	nStartingSequences int
	nEndingSequences   int
	cachedQ            float64
}

func newBeliefNode(tree *BeliefTree, parent *ActionNode, id uint64) *BeliefNode {
	return &BeliefNode{ID: id, tree: tree, parent: parent}
}

// Parent returns the owning ActionNode, or nil at the root.
func (b *BeliefNode) Parent() *ActionNode { return b.parent }

// Mapping returns the node's ActionMapping, creating it from the Model's
// ActionPool on first access.
func (b *BeliefNode) Mapping() ActionMapping {
	if b.mapping == nil {
		b.mapping = b.tree.actionPool.CreateActionMapping(b)
	}
	return b.mapping
}

// NParticles returns the number of particle references currently occupying
// this belief (spec.md §3 invariant: equals the sum, over sequences, of
// occupancy at this node).
func (b *BeliefNode) NParticles() int { return len(b.particles) }

// Particles exposes the non-owning particle references (read-only use;
// callers must not retain beyond the current simulation without Retain).
func (b *BeliefNode) Particles() []*StateInfo { return b.particles }

// AddParticle records a new occupant, retaining it in the State Pool.
func (b *BeliefNode) AddParticle(info *StateInfo) {
	b.tree.pool.Retain(info)
	b.particles = append(b.particles, info)
}

// RemoveParticle drops one occupant (by pointer identity) and releases the
// State Pool's retain, making the particle eligible for eviction once no
// other belief references it (spec.md §5 "Resource release").
func (b *BeliefNode) RemoveParticle(info *StateInfo) bool {
	for i, p := range b.particles {
		if p == info {
			b.particles = append(b.particles[:i], b.particles[i+1:]...)
			b.tree.pool.Release(info)
			return true
		}
	}
	return false
}

// Q returns the node's cached value estimate, maintained by the search
// loop's backup step (spec.md §4.6 step 3).
func (b *BeliefNode) Q() float64 { return b.cachedQ }

func (b *BeliefNode) setQ(v float64) { b.cachedQ = v }

// empty reports whether this belief has lost every particle
// mid-simulation (spec.md §7 EmptyBelief, non-fatal).
func (b *BeliefNode) empty() bool { return b.NParticles() == 0 }
