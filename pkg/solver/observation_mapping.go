package solver

// ObservationMapping holds the outgoing observation edges of an ActionNode
// (spec.md §3). Concrete variants are DiscreteObservationMapping and
// ApproximateObservationMapping.
type ObservationMapping interface {
	// GetBelief returns the child belief routed to by o, if one has been
	// created. This models a lookup miss as (nil, false) rather than a
	// thrown-and-caught exception (spec.md §9 "Open questions").
	GetBelief(o Observation) (*BeliefNode, bool)
	// CreateBelief routes o to a (possibly new) child belief. Approximate
	// variants may route o into an existing cluster instead of creating one.
	CreateBelief(o Observation) *BeliefNode
	// UpdateVisitCount adjusts the entry for o (and the mapping's
	// aggregate) by delta (spec.md §4.4).
	UpdateVisitCount(o Observation, delta int64)
	// TotalVisitCount is the sum of every entry's visit count (§8.2).
	TotalVisitCount() int64
	// NumberOfEntries returns the number of distinct children created.
	NumberOfEntries() int
	// Entries visits every entry in stable insertion order (spec.md §5).
	Entries(visit func(o Observation, child *BeliefNode, visitCount int64))
}
