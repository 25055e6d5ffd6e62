package solver

import "math/rand"

// BeliefTree owns the root BeliefNode and the arena bookkeeping (spec.md
// §3 "the root BeliefNode is owned by the BeliefTree; the BeliefTree is
// owned by the Solver", §9 "Arena-backed tree"). Every BeliefNode receives
// a monotonically increasing id at creation, never reused even across
// Step's subtree discards, so weak references stay unambiguous for the
// lifetime of the process.
type BeliefTree struct {
	root             *BeliefNode
	pool             *StatePool
	actionPool       ActionPool
	observationPool  ObservationPool
	nextNodeID       uint64
	gamma            float64
	rng              *rand.Rand
}

func newBeliefTree(pool *StatePool, actionPool ActionPool, observationPool ObservationPool, gamma float64, rng *rand.Rand) *BeliefTree {
	t := &BeliefTree{pool: pool, actionPool: actionPool, observationPool: observationPool, gamma: gamma, rng: rng}
	t.root = t.newBelief(nil)
	return t
}

// newBelief allocates a fresh BeliefNode under parent (nil only for the
// root) with the next arena id.
func (t *BeliefTree) newBelief(parent *ActionNode) *BeliefNode {
	t.nextNodeID++
	return newBeliefNode(t, parent, t.nextNodeID)
}

// Root returns the tree's current root belief.
func (t *BeliefTree) Root() *BeliefNode { return t.root }

// Gamma returns the discount factor every backup in this tree uses.
func (t *BeliefTree) Gamma() float64 { return t.gamma }

// randSource adapts *rand.Rand to the Chooser-facing RandSource interface.
type randSource struct{ r *rand.Rand }

func (s randSource) Float64() float64 { return s.r.Float64() }
func (s randSource) Intn(n int) int   { return s.r.Intn(n) }

// Rand returns the tree's single owned random source as a RandSource, for
// choosers and other collaborators that must not import math/rand
// directly (spec.md §5, SPEC_FULL §2 seeding).
func (t *BeliefTree) Rand() RandSource { return randSource{t.rng} }

// setRoot replaces the tree's root, used by Solver.Step after advancing
// past an (action, observation) pair (spec.md §4.7).
func (t *BeliefTree) setRoot(newRoot *BeliefNode) {
	newRoot.parent = nil
	t.root = newRoot
}
