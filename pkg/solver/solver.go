package solver

import (
	"math/rand"
	"sort"
)

// Solver is the facade spec.md §4.7 describes: it owns the Model, the
// State Pool, the BeliefTree, the Heuristic, and the single random source
// every simulation draws from, and is mutated only by the currently
// running simulation (spec.md §5 "Shared resources").
type Solver struct {
	model     Model
	config    *Config
	pool      *StatePool
	tree      *BeliefTree
	heuristic Heuristic
	rng       *rand.Rand
	sequences []*HistorySequence
	nextSeqID uint64
	lastSeed  int64
}

// NewSolver constructs a Solver for model under config (a nil config uses
// DefaultConfig()). The tree is empty until Initialize is called.
func NewSolver(model Model, config *Config) *Solver {
	if config == nil {
		config = DefaultConfig()
	}
	seed := config.resolvedSeed()
	s := &Solver{
		model:     model,
		config:    config,
		heuristic: modelHeuristic{model: model},
		rng:       newRand(seed),
		lastSeed:  seed,
	}
	if csm, ok := model.(ContinuousStateModel); ok {
		s.pool = NewStatePool(csm.StateVariableCount(), csm.Project)
	} else {
		s.pool = NewStatePool(0, nil)
	}
	return s
}

// SetHeuristic overrides the leaf-value estimator (default: the Model's
// own HeuristicValue).
func (s *Solver) SetHeuristic(h Heuristic) { s.heuristic = h }

// Config returns the Solver's configuration (read-only use expected).
func (s *Solver) Config() *Config { return s.config }

// Tree exposes the belief tree, primarily for serialization and tests.
func (s *Solver) Tree() *BeliefTree { return s.tree }

// Initialize constructs the root belief from ParticleCount draws of
// SampleInitialState (spec.md §4.7).
func (s *Solver) Initialize() {
	s.tree = newBeliefTree(s.pool, s.model.CreateActionPool(), s.model.CreateObservationPool(), s.model.DiscountFactor(), s.rng)
	for i := 0; i < s.config.ParticleCount; i++ {
		info := s.pool.AddOrGetCanonical(s.model.SampleInitialState())
		s.tree.root.AddParticle(info)
	}
}

// ImprovePolicy runs simulations from the current root until the
// configured budget is exhausted: a fixed simulation count, a wall-clock
// deadline, or both, whichever the Config selects (spec.md §4.6 "Simulation
// budget", §5 "blocking call"). Non-fatal errors are logged and the loop
// continues; a fatal error aborts immediately.
func (s *Solver) ImprovePolicy() error {
	dl := newDeadline()
	if s.config.SearchMovetimeMs >= 0 {
		dl.Movetime(s.config.SearchMovetimeMs)
		dl.Reset()
	}

	ran := uint32(0)
	for {
		if s.config.SimulationBudget > 0 && ran >= s.config.SimulationBudget {
			return nil
		}
		if dl.IsSet() && dl.Expired() {
			return nil
		}
		if len(s.tree.root.Particles()) == 0 {
			return nil
		}

		particle := s.tree.root.Particles()[s.rng.Intn(len(s.tree.root.Particles()))]
		seq, err := s.simulate(s.tree.root, particle)
		ran++
		if seq != nil && !seq.Deleted {
			s.sequences = append(s.sequences, seq)
		}
		if err != nil {
			if ce, ok := err.(*ContractError); ok && !ce.Kind.Fatal() {
				log.Warn().Err(err).Msg("solver: non-fatal simulation error")
				continue
			}
			return err
		}
	}
}

// RecommendAction returns the root action with the highest meanQ among
// legal, visited entries, ties broken by higher visit count, then by
// smallest bin/fingerprint insertion order (spec.md §4.7).
func (s *Solver) RecommendAction() (Action, bool) {
	entries := collectEntries(s.tree.root.Mapping())
	var best ActionMappingEntry
	for _, e := range entries {
		if !e.IsLegal() || e.VisitCount() == 0 {
			continue
		}
		if best == nil || better(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Action(), true
}

func better(a, b ActionMappingEntry) bool {
	if a.MeanQ() != b.MeanQ() {
		return a.MeanQ() > b.MeanQ()
	}
	return a.VisitCount() > b.VisitCount()
}

// Step advances the root to the child belief reached under (a, o),
// discarding subtrees no longer reachable (spec.md §4.7). If no child
// exists yet for (a, o), a fresh belief is populated by resampling from
// the particle filter conditioned on (a, o): particles are drawn from the
// old root, stepped under a, and kept when the resulting observation
// matches o (or, for an approximate observation space, falls within the
// configured threshold), until MinimumParticleCount particles are
// collected or the resampling budget is exhausted.
func (s *Solver) Step(a Action, o Observation) error {
	entry := s.tree.root.Mapping().GetEntry(a)
	if entry == nil {
		return &ContractError{Kind: ModelContractViolation, Seed: s.lastSeed, Detail: "step: action has no entry at the current root"}
	}
	actionNode := entry.ActionNode()

	newRoot, existed := actionNode.Mapping().GetBelief(o)
	if !existed {
		newRoot = actionNode.Mapping().CreateBelief(o)
	}

	if newRoot.NParticles() < s.config.MinimumParticleCount {
		s.repopulate(newRoot, actionNode, a, o)
	}

	s.discardUnreachable(s.tree.root, actionNode, newRoot)
	s.tree.setRoot(newRoot)
	s.sequences = filterSequences(s.sequences, newRoot)
	return nil
}

// repopulate draws additional particles for newRoot by rejection sampling
// from the prior root conditioned on (a, o), per spec.md §4.7.
func (s *Solver) repopulate(newRoot *BeliefNode, actionNode *ActionNode, a Action, o Observation) {
	oldRoot := actionNode.Parent()
	if oldRoot == nil || len(oldRoot.Particles()) == 0 {
		return
	}

	const maxAttempts = 10000
	attempts := 0
	for newRoot.NParticles() < s.config.MinimumParticleCount && attempts < maxAttempts {
		attempts++
		src := oldRoot.Particles()[s.rng.Intn(len(oldRoot.Particles()))]
		next, obs, _, _ := s.model.SampleNext(src.Value, a)
		if !observationMatches(obs, o, s.config.ApproximateObservationThreshold) {
			continue
		}
		newRoot.AddParticle(s.pool.AddOrGetCanonical(next))
	}
}

func observationMatches(candidate, target Observation, threshold float64) bool {
	if ao, ok := candidate.(ApproximateObservation); ok && threshold > 0 {
		return ao.Distance(target) <= threshold
	}
	return candidate.Equals(target)
}

// discardUnreachable releases every particle owned by subtrees of oldRoot
// other than the path leading to newRoot, per spec.md §5 "Resource
// release": a subtree discarded by Step releases all its owned memory
// before Step returns.
func (s *Solver) discardUnreachable(oldRoot *BeliefNode, keepAction *ActionNode, keepBelief *BeliefNode) {
	for _, e := range collectEntries(oldRoot.Mapping()) {
		node := e.ActionNode()
		if node == keepAction {
			node.Mapping().Entries(func(_ Observation, child *BeliefNode, _ int64) {
				if child != keepBelief {
					releaseSubtree(child, s.pool)
				}
			})
			continue
		}
		node.Mapping().Entries(func(_ Observation, child *BeliefNode, _ int64) {
			releaseSubtree(child, s.pool)
		})
	}
	for _, p := range oldRoot.Particles() {
		s.pool.Release(p)
	}
}

func releaseSubtree(b *BeliefNode, pool *StatePool) {
	for _, p := range b.Particles() {
		pool.Release(p)
	}
	if b.mapping == nil {
		return
	}
	b.mapping.Entries(func(entry ActionMappingEntry) {
		node := entry.ActionNode()
		node.Mapping().Entries(func(_ Observation, child *BeliefNode, _ int64) {
			releaseSubtree(child, pool)
		})
	})
}

// filterSequences keeps only the sequences whose first entry's ResultBelief
// is the new root — everything else belonged to a discarded subtree or to the
// old root's now-irrelevant other branches (spec.md §3 "persist between
// solver steps").
func filterSequences(sequences []*HistorySequence, newRoot *BeliefNode) []*HistorySequence {
	kept := sequences[:0]
	for _, seq := range sequences {
		if len(seq.Entries) > 0 && seq.Entries[0].ResultBelief == newRoot {
			kept = append(kept, seq)
		}
	}
	return kept
}

// sortedActionKeys returns a's entries sorted by a stable key (bin index
// or construction-vector fingerprint) for the serialization contract
// (spec.md §6 "Order-independent").
func sortedActionKeys(m ActionMapping) []ActionMappingEntry {
	entries := collectEntries(m)
	sort.SliceStable(entries, func(i, j int) bool {
		return stableActionKey(entries[i]) < stableActionKey(entries[j])
	})
	return entries
}

func stableActionKey(e ActionMappingEntry) uint64 {
	if bi, ok := e.Action().(BinIndexed); ok {
		return uint64(bi.BinIndex())
	}
	return e.Action().Hash()
}
