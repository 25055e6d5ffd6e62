package solver

// ModelChange describes one mutation the Model has undergone since the
// tree was last grown (spec.md §4.8): either a spatial region (for
// continuous-state models) or a purely qualitative category affecting
// every particle. EntityID is used only for diagnostics: it is logged and
// listed in ChangeSummary.Skipped when the change's spatial query fails
// (ChangeUnapplicable).
type ModelChange struct {
	EntityID              string
	LowCorner, HighCorner []float64 // nil means "applies to every particle"
	Flags                 ChangeFlags
}

// ChangeSummary reports what ApplyChanges did, for callers that want to
// log or assert on the repair (spec.md §8 "Idempotent change replay").
type ChangeSummary struct {
	EntriesResimulated int
	SequencesDeleted   int
	Skipped            []string // EntityIDs that hit ChangeUnapplicable
}

// ApplyChanges repairs the tree in place rather than discarding it
// (spec.md §4.8): it flags affected particles via a spatial query, sweeps
// every HistorySequence back-to-front re-simulating stale entries, and
// deletes sequences whose very first state becomes invalid.
func (s *Solver) ApplyChanges(changes []ModelChange) (ChangeSummary, error) {
	var summary ChangeSummary

	for _, ch := range changes {
		if ch.LowCorner == nil {
			s.flagAllParticles(ch.Flags)
			continue
		}
		err := s.pool.SpatialQuery(ch.LowCorner, ch.HighCorner, func(info *StateInfo) {
			s.pool.Flag(info, ch.Flags)
		})
		if err != nil {
			log.Warn().Str("entity_id", ch.EntityID).Err(err).Msg("solver: ChangeUnapplicable, skipping")
			summary.Skipped = append(summary.Skipped, ch.EntityID)
		}
	}

	gamma := s.tree.Gamma()
	remaining := s.sequences[:0]
	for _, seq := range s.sequences {
		deleted, resimulated := s.repairSequence(seq, gamma)
		summary.EntriesResimulated += resimulated
		if deleted {
			summary.SequencesDeleted++
			continue
		}
		remaining = append(remaining, seq)
	}
	s.sequences = remaining

	for _, info := range s.collectFlaggedInfos() {
		s.pool.ClearFlags(info)
	}
	return summary, nil
}

func (s *Solver) flagAllParticles(flags ChangeFlags) {
	b := s.tree.root
	for _, p := range b.Particles() {
		s.pool.Flag(p, flags)
	}
	walkBeliefs(b, func(n *BeliefNode) {
		for _, p := range n.Particles() {
			s.pool.Flag(p, flags)
		}
	})
}

func walkBeliefs(b *BeliefNode, visit func(*BeliefNode)) {
	if b.mapping == nil {
		return
	}
	b.mapping.Entries(func(e ActionMappingEntry) {
		e.ActionNode().Mapping().Entries(func(_ Observation, child *BeliefNode, _ int64) {
			visit(child)
			walkBeliefs(child, visit)
		})
	})
}

func (s *Solver) collectFlaggedInfos() []*StateInfo {
	var flagged []*StateInfo
	seen := map[uint64]bool{}
	note := func(info *StateInfo) {
		if info != nil && info.Flags() != 0 && !seen[info.ID] {
			seen[info.ID] = true
			flagged = append(flagged, info)
		}
	}
	for _, p := range s.tree.root.Particles() {
		note(p)
	}
	for _, seq := range s.sequences {
		for _, e := range seq.Entries {
			note(e.State)
			note(e.NextState)
		}
	}
	return flagged
}

// repairSequence walks seq back-to-front (spec.md §4.8 step 3): any entry
// whose state, next-state, observation, or reward is flagged is
// resimulated under the (already-mutated) Model, and the Q delta is
// applied to every ancestor edge via Update(ΔN=0, ΔQ=Q_new−Q_old). If the
// sequence's very first state becomes invalid, the whole sequence is
// deleted and its contribution removed from every ancestor (step 4).
func (s *Solver) repairSequence(seq *HistorySequence, gamma float64) (deleted bool, resimulated int) {
	if len(seq.Entries) == 0 {
		return false, 0
	}

	first := seq.Entries[0]
	if first.State.Flags().Has(ChangeDeleted) {
		s.deleteSequence(seq)
		return true, 0
	}

	// The sequence's leaf carries the same live-bootstrap convention as
	// backup() (spec.md §4.6 steps 2-3): when the leaf is non-terminal, its
	// ResultBelief's cached Q seeds the return. ResultBelief itself is never
	// replaced by resimulation, only its occupying particle is, so the same
	// node's Q is the right bootstrap both before and after.
	leaf := seq.Entries[len(seq.Entries)-1]

	oldG := make([]float64, len(seq.Entries))
	g := 0.0
	if !leaf.Terminal {
		g = leaf.ResultBelief.Q()
	}
	for i := len(seq.Entries) - 1; i >= 0; i-- {
		g = seq.Entries[i].Reward + gamma*g
		oldG[i] = g
	}

	for i := len(seq.Entries) - 1; i >= 0; i-- {
		e := seq.Entries[i]
		if !entryStale(e) {
			continue
		}
		e.stale = true
		resimulated++

		next, obs, reward, terminal := s.model.SampleNext(e.State.Value, e.Action)
		e.Observation = obs
		e.Reward = reward
		e.Terminal = terminal
		// The tree structure is preserved (spec.md §4.8: "the tree is
		// indistinguishable from one grown afresh... to within Monte Carlo
		// noise"): the entry keeps its existing ResultBelief rather than
		// being re-routed through the observation mapping, and only the
		// canonical state backing the next step is refreshed.
		e.NextState = s.pool.AddOrGetCanonical(next)
	}

	newG := make([]float64, len(seq.Entries))
	g = 0.0
	if !leaf.Terminal {
		g = leaf.ResultBelief.Q()
	}
	for i := len(seq.Entries) - 1; i >= 0; i-- {
		g = seq.Entries[i].Reward + gamma*g
		newG[i] = g
	}

	for i, e := range seq.Entries {
		delta := newG[i] - oldG[i]
		if delta != 0 {
			e.Entry.Update(0, delta)
			e.StartBelief.recomputeQ()
		}
	}

	return false, resimulated
}

// entryStale reports whether any of an entry's state, next-state, or
// reward are flagged by change propagation (spec.md §4.8 step 3);
// observations carry no StateInfo of their own in this model, so a flagged
// endpoint state is what drives resimulation.
func entryStale(e *HistoryEntry) bool {
	return e.State.Flags() != 0 || (e.NextState != nil && e.NextState.Flags() != 0)
}

// deleteSequence undoes every ActionNode contribution the sequence made
// and marks it deleted (spec.md §4.8 step 4).
func (s *Solver) deleteSequence(seq *HistorySequence) {
	seq.Deleted = true
	g := 0.0
	gamma := s.tree.Gamma()
	for i := len(seq.Entries) - 1; i >= 0; i-- {
		e := seq.Entries[i]
		g = e.Reward + gamma*g
		e.Entry.Update(-1, -g)
		e.Entry.ActionNode().Mapping().UpdateVisitCount(e.Observation, -1)
		e.StartBelief.recomputeQ()
	}
	if len(seq.Entries) > 0 {
		last := seq.Entries[len(seq.Entries)-1]
		last.ResultBelief.RemoveParticle(last.NextState)
	}
}
