package solver

import "math"

// collectEntries gathers a mapping's entries in its own stable iteration
// order, for UCB1 selection and for recomputing a belief's cached value.
func collectEntries(m ActionMapping) []ActionMappingEntry {
	entries := make([]ActionMappingEntry, 0, m.NumberOfEntries())
	m.Entries(func(e ActionMappingEntry) { entries = append(entries, e) })
	return entries
}

// recomputeQ sets b's cached Q to the best legal, visited action entry's
// meanQ — a belief's value is the value of its best action (spec.md §3
// "cached Q-value"). Left untouched when the mapping has no visited legal
// entries (e.g. a freshly seeded leaf, whose Q comes from the Heuristic).
func (b *BeliefNode) recomputeQ() {
	if b.mapping == nil {
		return
	}
	best := negInf
	for _, e := range collectEntries(b.mapping) {
		if e.IsLegal() && e.VisitCount() > 0 && e.MeanQ() > best {
			best = e.MeanQ()
		}
	}
	if best != negInf {
		b.cachedQ = best
	}
}

// selectAction implements spec.md §4.6 step 1's action choice: try every
// untried action once (§4.2 getNextActionToTry), then fall back to UCB1
// over legal visited entries (§4.2/§4.3).
func (s *Solver) selectAction(b *BeliefNode) (Action, ActionMappingEntry, error) {
	m := b.Mapping()
	if a, ok := m.GetNextActionToTry(); ok {
		entry, _ := m.GetOrCreateEntry(a)
		return a, entry, nil
	}
	entries := collectEntries(m)
	best := ucb1Select(entries, m.TotalVisitCount(), s.config.UCBCoefficient)
	if best == nil {
		// No legal, visited action to hand the bandit rule; treat the
		// belief as exhausted for this simulation (spec.md §7 EmptyBelief:
		// non-fatal, that simulation terminates early).
		return nil, nil, newContractError(EmptyBelief, s.lastSeed, "no legal action available for bandit selection")
	}
	return best.Action(), best, nil
}

// simulate runs one trajectory from startBelief/startParticle to the
// horizon, a terminal state, or an early cutoff (spec.md §4.6), recording
// a fresh HistorySequence and backing statistics up the visited path.
// Returns the sequence, or an error for the non-fatal EmptyBelief and the
// fatal ModelContractViolation/NumericDegeneracy kinds (spec.md §7).
func (s *Solver) simulate(startBelief *BeliefNode, startParticle *StateInfo) (*HistorySequence, error) {
	s.nextSeqID++
	seq := &HistorySequence{ID: s.nextSeqID}

	b := startBelief
	state := startParticle.Value
	stateInfo := startParticle
	b.nStartingSequences++

	for depth := 0; depth < s.config.Horizon; depth++ {
		if b.empty() {
			log.Warn().Uint64("belief_id", b.ID).Msg("solver: empty belief mid-simulation")
			return seq, &ContractError{Kind: EmptyBelief, Seed: s.lastSeed, Detail: "belief has zero particles"}
		}

		action, entry, err := s.selectAction(b)
		if err != nil {
			return seq, err
		}

		next, obs, reward, terminal := s.model.SampleNext(state, action)
		if obs == nil || action == nil {
			return seq, &ContractError{Kind: ModelContractViolation, Seed: s.lastSeed, Detail: "model returned a nil action or observation"}
		}
		if math.IsInf(reward, 0) || math.IsNaN(reward) {
			return seq, &ContractError{Kind: ModelContractViolation, Seed: s.lastSeed, Detail: "model returned a non-finite reward"}
		}

		nextInfo := s.pool.AddOrGetCanonical(next)
		actionNode := entry.ActionNode()
		childBelief, created := actionNode.CreateOrGetChild(obs)
		actionNode.Mapping().UpdateVisitCount(obs, 1)
		childBelief.AddParticle(nextInfo)

		he := &HistoryEntry{
			Sequence:     seq,
			Depth:        depth,
			StartBelief:  b,
			State:        stateInfo,
			Action:       action,
			Entry:        entry,
			Observation:  obs,
			Reward:       reward,
			NextState:    nextInfo,
			ResultBelief: childBelief,
			Terminal:     terminal,
		}
		seq.Entries = append(seq.Entries, he)

		if created {
			leafValue := s.heuristic.Evaluate(next, s.tree.Rand())
			if math.IsInf(leafValue, 0) || math.IsNaN(leafValue) {
				return seq, &ContractError{Kind: NumericDegeneracy, Seed: s.lastSeed, Detail: "heuristic produced a non-finite value"}
			}
			childBelief.setQ(leafValue)
		}

		b, state, stateInfo = childBelief, next, nextInfo
		if terminal {
			break
		}
	}

	b.nEndingSequences++

	// The horizon-cutoff leaf's V̂ is only seeded once, at creation
	// (childBelief.setQ(leafValue) above), but every simulation that reaches
	// it afterward must still read that estimate back to bootstrap its own
	// backup (spec.md §4.6 steps 2-3) — it's the node's cachedQ, kept current
	// by recomputeQ as the leaf itself gets explored further.
	g := 0.0
	if last := seq.last(); last != nil && !last.Terminal {
		g = last.ResultBelief.Q()
	}
	s.backup(seq, g)
	return seq, nil
}

// backup walks seq's entries in reverse, accumulating the discounted
// return and applying it to every ActionNode touched (spec.md §4.6 step
// 3): actionEntry.update(ΔN=+1, ΔQ=+G) at each edge, then recomputing the
// traversed belief's cached Q so the next ancestor sees an up-to-date
// child value.
func (s *Solver) backup(seq *HistorySequence, g float64) {
	gamma := s.tree.Gamma()
	for i := len(seq.Entries) - 1; i >= 0; i-- {
		e := seq.Entries[i]
		g = e.Reward + gamma*g
		e.Entry.Update(1, g)
		e.StartBelief.recomputeQ()
	}
}
