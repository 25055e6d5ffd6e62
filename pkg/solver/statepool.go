package solver

import (
	"fmt"
	"sort"
)

// ChangeFlags is a bitset of pending change reasons attached to a StateInfo
// by change propagation (spec.md §4.1, §4.8).
type ChangeFlags uint32

const (
	ChangeDeleted           ChangeFlags = 1 << 0
	ChangeTransitionBefore  ChangeFlags = 1 << 1
	ChangeObservationBefore ChangeFlags = 1 << 2
	ChangeRewardBefore      ChangeFlags = 1 << 3
)

func (f ChangeFlags) Has(flag ChangeFlags) bool { return f&flag == flag }

// StateInfo is the canonical, State-Pool-owned record for one distinct
// sampled state. Every other component holds non-owning references to a
// StateInfo; the pool is the only owner (spec.md §3 "Ownership summary").
type StateInfo struct {
	ID      uint64
	Value   State
	flags   ChangeFlags
	// refCount tracks how many belief particle slots currently reference
	// this StateInfo (BeliefNode.AddParticle retains; RemoveParticle and
	// Step's discard release); it reaches zero when no belief holds this
	// particle, at which point it is evicted (spec.md §5 "Resource release").
	refCount int
	// projection caches the Model's vector<double> view of this state, used
	// by spatialQuery; nil when the Model has no continuous-state variables.
	projection []float64
}

func (si *StateInfo) Flags() ChangeFlags { return si.flags }

// StatePool is the process-wide store of sampled states with
// deduplication by hash/equality (spec.md §4.1). Two states a, b with
// a.Equals(b) always share a single StateInfo.
type StatePool struct {
	byHash        map[uint64][]*StateInfo
	nextID        uint64
	continuous    bool
	projectFn     func(State) []float64
	stateVarCount int
}

// NewStatePool constructs an empty pool. projectFn and stateVarCount may be
// nil/0 when the Model has no bounded continuous state; spatialQuery then
// fails with ErrStateNotFound-style ModelContractViolation, per spec.md §4.1.
func NewStatePool(stateVarCount int, projectFn func(State) []float64) *StatePool {
	return &StatePool{
		byHash:        make(map[uint64][]*StateInfo),
		continuous:    stateVarCount > 0 && projectFn != nil,
		projectFn:     projectFn,
		stateVarCount: stateVarCount,
	}
}

// AddOrGetCanonical returns the canonical StateInfo for value, creating one
// if no equal state has been seen before. The caller does not own the
// returned pointer (spec.md §4.1).
func (p *StatePool) AddOrGetCanonical(value State) *StateInfo {
	h := value.Hash()
	for _, existing := range p.byHash[h] {
		if existing.Value.Equals(value) {
			return existing
		}
	}

	p.nextID++
	info := &StateInfo{ID: p.nextID, Value: value}
	if p.continuous {
		info.projection = p.projectFn(value)
	}
	p.byHash[h] = append(p.byHash[h], info)
	return info
}

// Retain/Release implement the reference-counted eviction discipline of
// spec.md §5: a particle no belief holds is evicted from the pool the
// instant its refcount drops to zero.
func (p *StatePool) Retain(info *StateInfo) {
	info.refCount++
}

func (p *StatePool) Release(info *StateInfo) {
	info.refCount--
	if info.refCount <= 0 {
		p.evict(info)
	}
}

func (p *StatePool) evict(info *StateInfo) {
	h := info.Value.Hash()
	bucket := p.byHash[h]
	for i, other := range bucket {
		if other == info {
			p.byHash[h] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(p.byHash[h]) == 0 {
		delete(p.byHash, h)
	}
}

// Size returns the number of distinct canonical states currently retained.
func (p *StatePool) Size() int {
	n := 0
	for _, bucket := range p.byHash {
		n += len(bucket)
	}
	return n
}

// Flag attaches changeFlags to stateInfo's pending-change bitset, used by
// change propagation (spec.md §4.1, §4.8).
func (p *StatePool) Flag(info *StateInfo, changeFlags ChangeFlags) {
	info.flags |= changeFlags
}

// ClearFlags resets a StateInfo's pending-change bitset once it has been
// repaired.
func (p *StatePool) ClearFlags(info *StateInfo) {
	info.flags = 0
}

// errStateNotFound's message is the Detail of the ModelContractViolation
// SpatialQuery returns when called on a pool the Model never declared
// continuous state variables for (spec.md §4.1); it is not wrapped.
var errStateNotFound = fmt.Errorf("state pool has no continuous projection configured")

// SpatialQuery walks every canonical state whose projection falls inside
// the axis-aligned box [lowCorner, highCorner] and invokes visitor on each.
// It is a brute-force scan, sorted by StateInfo.ID for deterministic
// iteration order (spec.md §5 "insertion-order iteration"); a real spatial
// index is an external collaborator per spec.md §1 — this default is
// sufficient for the state-counts a belief tree's particle sets reach.
func (p *StatePool) SpatialQuery(lowCorner, highCorner []float64, visitor func(*StateInfo)) error {
	if !p.continuous {
		return newContractError(ModelContractViolation, 0, errStateNotFound.Error())
	}

	all := make([]*StateInfo, 0, p.Size())
	for _, bucket := range p.byHash {
		all = append(all, bucket...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	for _, info := range all {
		if boxContains(info.projection, lowCorner, highCorner) {
			visitor(info)
		}
	}
	return nil
}

func boxContains(point, lowCorner, highCorner []float64) bool {
	for i := range point {
		if i >= len(lowCorner) || i >= len(highCorner) {
			break
		}
		if point[i] < lowCorner[i] || point[i] > highCorner[i] {
			return false
		}
	}
	return true
}
