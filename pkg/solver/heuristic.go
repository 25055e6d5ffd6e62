package solver

import "time"

// Heuristic estimates the value of a leaf state without expanding the tree
// further (spec.md §4.6 step 2, GLOSSARY "Rollout / Heuristic"). The
// Solver invokes it exactly once per tree-extension event.
type Heuristic interface {
	Evaluate(s State, rng RandSource) float64
}

// modelHeuristic is the default Heuristic: it simply asks the Model for
// its own estimate (spec.md §6 heuristicValue(s)). This is the
// zero-configuration behavior; a rollout-based Heuristic is an opt-in
// alternative for models too cheap-to-simulate not to roll out.
type modelHeuristic struct{ model Model }

func (h modelHeuristic) Evaluate(s State, _ RandSource) float64 {
	return h.model.HeuristicValue(s)
}

// RolloutHeuristic estimates a leaf's value by simulating forward under a
// fixed policy until the horizon, a terminal state, or heuristicTimeout
// elapses (spec.md §6 heuristicTimeout), discounting rewards by the
// Model's own DiscountFactor. Policy proposes the next action to simulate;
// with a nil Policy no rollout is run and Evaluate returns the Model's
// HeuristicValue(s). Callers that want pure random rollout provide a
// Policy that does so.
type RolloutHeuristic struct {
	Model    Model
	Policy   func(s State, rng RandSource) Action
	MaxDepth int
	Timeout  time.Duration
}

func (h *RolloutHeuristic) Evaluate(s State, rng RandSource) float64 {
	if h.Policy == nil {
		return h.Model.HeuristicValue(s)
	}
	deadline := newDeadline()
	if h.Timeout > 0 {
		deadline.Movetime(int(h.Timeout.Milliseconds()))
		deadline.Reset()
	}

	gamma := h.Model.DiscountFactor()
	total := 0.0
	discount := 1.0
	cur := s
	for depth := 0; h.MaxDepth <= 0 || depth < h.MaxDepth; depth++ {
		if h.Model.IsTerminal(cur) {
			break
		}
		if deadline.IsSet() && deadline.Expired() {
			break
		}
		a := h.Policy(cur, rng)
		next, _, reward, terminal := h.Model.SampleNext(cur, a)
		total += discount * reward
		discount *= gamma
		cur = next
		if terminal {
			break
		}
	}
	return total
}
