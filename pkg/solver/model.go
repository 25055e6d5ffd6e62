package solver

// Model is the narrow contract the Core consumes from a concrete problem
// model (spec.md §6). Concrete models — navigation, pursuit, the package's
// own examples/trivialmdp — are external collaborators; the Core never
// imports one.
type Model interface {
	// SampleInitialState draws one particle from the initial belief.
	SampleInitialState() State
	// SampleNext steps the model from s under a, returning the resulting
	// state, the observation the agent receives, the immediate reward, and
	// whether the resulting state is terminal.
	SampleNext(s State, a Action) (next State, o Observation, reward float64, terminal bool)
	// IsTerminal reports whether s has no further transitions.
	IsTerminal(s State) bool
	// HeuristicValue estimates the value of a leaf state when no Heuristic
	// override is installed on the Solver (see heuristic.go).
	HeuristicValue(s State) float64
	// DiscountFactor returns γ, in (0, 1].
	DiscountFactor() float64

	CreateActionPool() ActionPool
	CreateObservationPool() ObservationPool
}

// ActionPool builds the ActionMapping variant for each BeliefNode (spec.md
// §6 createActionPool). The mappings themselves construct Action values
// through the Model (SampleAction or CreateAction).
type ActionPool interface {
	// CreateActionMapping builds the ActionMapping variant this pool backs
	// for a freshly created BeliefNode.
	CreateActionMapping(owner *BeliefNode) ActionMapping
}

// ObservationPool constructs the ObservationMapping variant an ActionNode
// uses for its outgoing edges.
type ObservationPool interface {
	CreateObservationMapping(owner *ActionNode) ObservationMapping
}

// DiscretizedModel is implemented by models whose action space is a fixed
// set of numbered bins (spec.md §4.2, §6).
type DiscretizedModel interface {
	Model
	NumberOfBins() int64
	SampleAction(bin int64) Action
	// BinSequence returns the order in which untried bins at this node
	// should be tried, derived from the path taken to reach it. A nil or
	// empty history is passed for the root.
	BinSequence(history []*HistoryEntry) []int64
}

// ContinuousModel is implemented by models whose action space is
// parameterized by a real vector (spec.md §4.3, §6).
type ContinuousModel interface {
	Model
	CreateConstructionData(vector []float64) ConstructionData
	CreateAction(data ConstructionData) Action
	// FixedActions returns hybrid discrete actions the chooser should try
	// before proposing new ones; nil or empty means "no fixed actions."
	FixedActions() []ConstructionData
	// RandomizeFixedActions reports whether FixedActions' order should be
	// shuffled per mapping rather than tried in the given order.
	RandomizeFixedActions() bool
}

// ContinuousStateModel is implemented by models with bounded continuous
// state, enabling the State Pool's spatial query (spec.md §4.1, §6).
type ContinuousStateModel interface {
	Model
	StateVariableCount() int
	Project(s State) []float64
}

// ConstructionData is the equivalence class key for a continuous action's
// real-valued construction vector (spec.md §3, §4.3): the model supplies
// Hash/Equal on it so entries keyed by construction data compare by value,
// not by pointer or by float64 slice identity.
type ConstructionData interface {
	Vector() []float64
	Hash() uint64
	Equal(other ConstructionData) bool
}
