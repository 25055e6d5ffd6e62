package solver

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TextCodec lets a Model opt into the serialization contract (spec.md §6):
// the Core never interprets State/Action/Observation payloads itself, so a
// Model that wants Solver.Serialize/Deserialize to round-trip its opaque
// values implements this. A Model that doesn't implement it can still run
// an in-memory search; only the text dump/restore is unavailable.
type TextCodec interface {
	SerializeState(State) string
	DeserializeState(string) (State, error)
	SerializeAction(Action) string
	DeserializeAction(string) (Action, error)
	SerializeObservation(Observation) string
	DeserializeObservation(string) (Observation, error)
}

const (
	mappingDiscretized = "discretized"
	mappingContinuous  = "continuous"
	obsDiscrete        = "discrete"
	obsApproximate     = "approximate"
)

// Serialize emits the whole tree as a stable textual dump (spec.md §6):
// one section per BeliefNode, one per ActionNode, one per mapping, each
// self-describing its child count and closing with `}`. Entries within a
// section are sorted by a stable key first, so two dumps of the same tree
// are byte-identical regardless of map iteration order (spec.md §8.6).
func (s *Solver) Serialize() (string, error) {
	codec, ok := s.model.(TextCodec)
	if !ok {
		return "", fmt.Errorf("solver: serialize requires the Model to implement TextCodec")
	}
	var sb strings.Builder
	w := &serWriter{sb: &sb, codec: codec}
	w.writeBelief(s.tree.root)
	return sb.String(), nil
}

type serWriter struct {
	sb    *strings.Builder
	codec TextCodec
}

func (w *serWriter) line(depth int, format string, args ...any) {
	w.sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func (w *serWriter) writeBelief(b *BeliefNode) {
	w.line(0, "BeliefNode %d {", b.ID)
	w.line(1, "nParticles %d", b.NParticles())
	w.line(1, "cachedQ %s", formatFloat(b.Q()))
	w.line(1, "nStartingSequences %d", b.nStartingSequences)
	w.line(1, "nEndingSequences %d", b.nEndingSequences)
	for _, p := range b.Particles() {
		w.line(1, "particle %s", w.codec.SerializeState(p.Value))
	}
	if b.mapping != nil {
		w.writeActionMapping(b.mapping)
	}
	w.line(0, "}")

	if b.mapping == nil {
		return
	}
	for _, e := range sortedActionKeys(b.mapping) {
		w.writeActionNode(e.ActionNode())
	}
}

func (w *serWriter) writeActionMapping(m ActionMapping) {
	entries := sortedActionKeys(m)
	switch m.(type) {
	case *DiscretizedActionMapping:
		w.line(1, "ActionMapping %s {", mappingDiscretized)
	default:
		w.line(1, "ActionMapping %s {", mappingContinuous)
	}
	w.line(2, "numberOfEntries %d", len(entries))
	for _, e := range entries {
		w.line(2, "entry action=%s visits=%d totalQ=%s legal=%t node=%d",
			w.codec.SerializeAction(e.Action()), e.VisitCount(), formatFloat(e.TotalQ()), e.IsLegal(), actionNodeID(e.ActionNode()))
	}
	w.line(1, "}")
}

func (w *serWriter) writeActionNode(n *ActionNode) {
	w.line(0, "ActionNode %d {", actionNodeID(n))
	w.line(1, "nParticles %d", n.VisitCount())
	w.line(1, "totalQ %s", formatFloat(n.TotalQ()))
	if n.mapping != nil {
		w.writeObservationMapping(n.mapping)
	}
	w.line(0, "}")

	if n.mapping == nil {
		return
	}
	children := sortedObservationChildren(n.mapping, w.codec)
	for _, child := range children {
		w.writeBelief(child)
	}
}

func (w *serWriter) writeObservationMapping(m ObservationMapping) {
	type row struct {
		obsText string
		child   *BeliefNode
		visits  int64
	}
	var rows []row
	m.Entries(func(o Observation, child *BeliefNode, visits int64) {
		rows = append(rows, row{w.codec.SerializeObservation(o), child, visits})
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].obsText < rows[j].obsText })

	kind := obsDiscrete
	if _, ok := m.(*ApproximateObservationMapping); ok {
		kind = obsApproximate
	}
	w.line(1, "ObservationMapping %s {", kind)
	w.line(2, "totalVisitCount %d", m.TotalVisitCount())
	w.line(2, "numberOfEntries %d", len(rows))
	if am, ok := m.(*ApproximateObservationMapping); ok {
		w.line(2, "threshold %s", formatFloat(am.threshold))
	}
	for _, r := range rows {
		w.line(2, "entry obs=%s child=%d visits=%d", r.obsText, r.child.ID, r.visits)
	}
	w.line(1, "}")
}

func sortedObservationChildren(m ObservationMapping, codec TextCodec) []*BeliefNode {
	type row struct {
		key   string
		child *BeliefNode
	}
	var rows []row
	m.Entries(func(o Observation, child *BeliefNode, _ int64) {
		rows = append(rows, row{codec.SerializeObservation(o), child})
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	out := make([]*BeliefNode, len(rows))
	for i, r := range rows {
		out[i] = r.child
	}
	return out
}

// actionNodeID derives a stable id for an ActionNode from its parent
// belief's id and its position among the parent's sorted entries, since
// ActionNodes (unlike BeliefNodes) are not separately arena-allocated.
func actionNodeID(n *ActionNode) uint64 {
	if n == nil || n.parent == nil {
		return 0
	}
	for i, e := range sortedActionKeys(n.parent.mapping) {
		if e.ActionNode() == n {
			return n.parent.ID*1_000_003 + uint64(i)
		}
	}
	return n.parent.ID * 1_000_003
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Deserialize parses a dump produced by Serialize back into a fresh
// Solver's tree, failing with SerializationMismatch on any malformed input
// or forward reference (spec.md §7). The Model must implement TextCodec.
func Deserialize(model Model, config *Config, text string) (*Solver, error) {
	codec, ok := model.(TextCodec)
	if !ok {
		return nil, fmt.Errorf("solver: deserialize requires the Model to implement TextCodec")
	}
	s := NewSolver(model, config)
	s.tree = newBeliefTree(s.pool, model.CreateActionPool(), model.CreateObservationPool(), model.DiscountFactor(), s.rng)

	p := &parser{scanner: bufio.NewScanner(strings.NewReader(text)), codec: codec, model: model, beliefs: map[uint64]*BeliefNode{}}
	p.scanner.Buffer(make([]byte, 1<<20), 1<<20)
	root, err := p.parseBelief(s.tree, nil)
	if err != nil {
		return nil, &ContractError{Kind: SerializationMismatch, Detail: err.Error()}
	}
	s.tree.root = root
	return s, nil
}

type parser struct {
	scanner *bufio.Scanner
	codec   TextCodec
	model   Model
	beliefs map[uint64]*BeliefNode
}

func (p *parser) nextLine() (string, bool) {
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func (p *parser) parseBelief(tree *BeliefTree, parent *ActionNode) (*BeliefNode, error) {
	line, ok := p.nextLine()
	if !ok || !strings.HasPrefix(line, "BeliefNode ") {
		return nil, fmt.Errorf("expected BeliefNode section, got %q", line)
	}
	var id uint64
	if _, err := fmt.Sscanf(line, "BeliefNode %d {", &id); err != nil {
		return nil, fmt.Errorf("malformed BeliefNode header %q: %w", line, err)
	}

	b := newBeliefNode(tree, parent, id)
	if id > tree.nextNodeID {
		tree.nextNodeID = id
	}
	p.beliefs[id] = b

	for {
		line, ok = p.nextLine()
		if !ok {
			return nil, fmt.Errorf("unterminated BeliefNode %d", id)
		}
		if line == "}" {
			break
		}
		switch {
		case strings.HasPrefix(line, "nParticles "):
		case strings.HasPrefix(line, "cachedQ "):
			var v string
			fmt.Sscanf(line, "cachedQ %s", &v)
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed cachedQ: %w", err)
			}
			b.cachedQ = f
		case strings.HasPrefix(line, "nStartingSequences "):
			fmt.Sscanf(line, "nStartingSequences %d", &b.nStartingSequences)
		case strings.HasPrefix(line, "nEndingSequences "):
			fmt.Sscanf(line, "nEndingSequences %d", &b.nEndingSequences)
		case strings.HasPrefix(line, "particle "):
			st, err := p.codec.DeserializeState(strings.TrimPrefix(line, "particle "))
			if err != nil {
				return nil, fmt.Errorf("particle deserialization failed: %w", err)
			}
			b.AddParticle(tree.pool.AddOrGetCanonical(st))
		case strings.HasPrefix(line, "ActionMapping "):
			if err := p.parseActionMapping(line, b); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unexpected line in BeliefNode %d: %q", id, line)
		}
	}

	// Child ActionNode sections, one per entry created above, in the same
	// sorted order Serialize wrote them.
	if b.mapping != nil {
		for _, e := range sortedActionKeys(b.mapping) {
			if err := p.parseActionNode(tree, e.ActionNode()); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func (p *parser) parseActionMapping(header string, b *BeliefNode) error {
	var kind string
	if _, err := fmt.Sscanf(header, "ActionMapping %s {", &kind); err != nil {
		return fmt.Errorf("malformed ActionMapping header %q: %w", header, err)
	}
	kind = strings.TrimSuffix(kind, "{")

	switch kind {
	case mappingDiscretized:
		dm, _ := p.model.(DiscretizedModel)
		dam := &DiscretizedActionMapping{owner: b, model: dm}
		if dm != nil {
			dam.entries = make([]*discretizedEntry, dm.NumberOfBins())
		}
		b.mapping = dam
	default:
		cm, _ := p.model.(ContinuousModel)
		cam := &ContinuousActionMapping{owner: b, model: cm, byHash: map[uint64][]*continuousEntry{}}
		if cm != nil {
			cam.fixed = append([]ConstructionData(nil), cm.FixedActions()...)
		}
		if pool, ok := p.model.CreateActionPool().(ContinuousActionPool); ok && pool.NewChooser != nil {
			cam.chooser = pool.NewChooser()
		}
		b.mapping = cam
	}

	for {
		line, ok := p.nextLine()
		if !ok {
			return fmt.Errorf("unterminated ActionMapping")
		}
		if line == "}" {
			break
		}
		if strings.HasPrefix(line, "numberOfEntries ") {
			continue
		}
		if !strings.HasPrefix(line, "entry ") {
			return fmt.Errorf("unexpected line in ActionMapping: %q", line)
		}
		if err := p.parseActionEntry(line, b, kind); err != nil {
			return err
		}
	}

	// A discretized mapping's try-queue isn't part of the dump; rebuild it
	// from the Model so any bin never visited before serialization is still
	// offered, in the Model's preferred order, skipping bins an entry
	// already exists for (spec.md §4.2).
	if dm, ok := b.mapping.(*DiscretizedActionMapping); ok && dm.model != nil {
		for _, bin := range dm.model.BinSequence(ancestorHistory(b)) {
			if int64(len(dm.entries)) > bin && dm.entries[bin] != nil {
				continue
			}
			dm.tryQueue = append(dm.tryQueue, bin)
		}
	}
	// A continuous mapping's fixed-action cursor isn't part of the dump
	// either; skip past whichever fixed actions already have an entry so
	// GetNextActionToTry resumes with the rest instead of repeating them.
	// The chooser's own proposal state is not restored: the registry that
	// knows how to rehydrate a Chooser by tag lives in
	// pkg/solver/internal/choosers, which imports this package and so
	// cannot be imported back. The mapping instead gets a fresh chooser from
	// the Model's ContinuousActionPool.NewChooser (set above), if it has one.
	if cam, ok := b.mapping.(*ContinuousActionMapping); ok {
		for cam.fixedIdx < len(cam.fixed) && cam.find(cam.fixed[cam.fixedIdx]) != nil {
			cam.fixedIdx++
		}
	}
	return nil
}

func (p *parser) parseActionEntry(line string, b *BeliefNode, kind string) error {
	var actionText string
	var visits int64
	var totalQ string
	var legal bool
	var nodeID uint64
	_, err := fmt.Sscanf(line, "entry action=%s visits=%d totalQ=%s legal=%t node=%d", &actionText, &visits, &totalQ, &legal, &nodeID)
	if err != nil {
		return fmt.Errorf("malformed entry line %q: %w", line, err)
	}
	action, err := p.codec.DeserializeAction(actionText)
	if err != nil {
		return fmt.Errorf("action deserialization failed: %w", err)
	}
	q, err := strconv.ParseFloat(totalQ, 64)
	if err != nil {
		return fmt.Errorf("malformed totalQ %q: %w", totalQ, err)
	}

	node := newActionNode(b.tree, b, action)
	node.nParticles = visits
	node.totalQ = q

	switch m := b.mapping.(type) {
	case *DiscretizedActionMapping:
		bi, ok := action.(BinIndexed)
		if !ok {
			return fmt.Errorf("deserialized action is not BinIndexed for a discretized mapping")
		}
		if int64(len(m.entries)) <= bi.BinIndex() {
			grown := make([]*discretizedEntry, bi.BinIndex()+1)
			copy(grown, m.entries)
			m.entries = grown
		}
		e := &discretizedEntry{bin: bi.BinIndex(), action: action, node: node, mapping: m}
		if legal {
			e.state = BinLegal
		} else {
			e.state = BinIllegal
		}
		m.entries[bi.BinIndex()] = e
		m.total += visits
		if visits > 0 {
			m.nVisited++
		}
	case *ContinuousActionMapping:
		cv, ok := action.(ConstructionVectored)
		if !ok {
			return fmt.Errorf("deserialized action is not ConstructionVectored for a continuous mapping")
		}
		data := m.model.CreateConstructionData(cv.ConstructionVector())
		e := &continuousEntry{data: data, action: action, node: node, legal: legal, mapping: m}
		m.byHash[data.Hash()] = append(m.byHash[data.Hash()], e)
		m.order = append(m.order, e)
		m.total += visits
		if visits > 0 {
			m.nVisited++
		}
	}
	return nil
}

func (p *parser) parseActionNode(tree *BeliefTree, n *ActionNode) error {
	line, ok := p.nextLine()
	if !ok || !strings.HasPrefix(line, "ActionNode ") {
		return fmt.Errorf("expected ActionNode section, got %q", line)
	}

	for {
		line, ok = p.nextLine()
		if !ok {
			return fmt.Errorf("unterminated ActionNode")
		}
		if line == "}" {
			break
		}
		switch {
		case strings.HasPrefix(line, "nParticles "):
		case strings.HasPrefix(line, "totalQ "):
		case strings.HasPrefix(line, "ObservationMapping "):
			if err := p.parseObservationMapping(line, n); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected line in ActionNode: %q", line)
		}
	}

	if n.mapping == nil {
		return nil
	}

	// Child BeliefNode sections follow immediately, one per pending
	// observation entry, in the same sorted order Serialize wrote them
	// (sortedObservationChildren uses the same obs-text sort key as
	// parseObservationMapping's entry lines).
	pending := n.pendingObsEntries
	n.pendingObsEntries = nil
	for _, pe := range pending {
		child, err := p.parseBelief(tree, n)
		if err != nil {
			return err
		}
		attachObservationChild(n.mapping, pe, child)
	}
	return nil
}

// pendingObsEntry is a parsed "entry obs=... visits=..." line whose child
// BeliefNode has not been read yet (it follows as the next section).
type pendingObsEntry struct {
	obs        Observation
	visitCount int64
}

func (p *parser) parseObservationMapping(header string, n *ActionNode) error {
	var kind string
	if _, err := fmt.Sscanf(header, "ObservationMapping %s {", &kind); err != nil {
		return fmt.Errorf("malformed ObservationMapping header %q: %w", header, err)
	}
	kind = strings.TrimSuffix(kind, "{")

	switch kind {
	case obsApproximate:
		am := &ApproximateObservationMapping{owner: n}
		// projectFn is a closure, not text; it is re-obtained from the
		// Model's own pool configuration rather than stored in the dump,
		// the same way a ContinuousActionMapping re-derives FixedActions
		// from the Model instead of serializing them.
		if pool, ok := p.model.CreateObservationPool().(ApproximateObservationPool); ok {
			am.projectFn = pool.ProjectFn
		}
		n.mapping = am
	default:
		n.mapping = &DiscreteObservationMapping{owner: n, byHash: map[uint64][]*discreteObservationEntry{}}
	}

	for {
		line, ok := p.nextLine()
		if !ok {
			return fmt.Errorf("unterminated ObservationMapping")
		}
		if line == "}" {
			return nil
		}
		if strings.HasPrefix(line, "totalVisitCount ") || strings.HasPrefix(line, "numberOfEntries ") {
			continue
		}
		if strings.HasPrefix(line, "threshold ") {
			am, ok := n.mapping.(*ApproximateObservationMapping)
			if !ok {
				return fmt.Errorf("unexpected threshold line for a %s ObservationMapping", kind)
			}
			var v string
			fmt.Sscanf(line, "threshold %s", &v)
			t, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("malformed threshold %q: %w", v, err)
			}
			am.threshold = t
			continue
		}
		if !strings.HasPrefix(line, "entry ") {
			return fmt.Errorf("unexpected line in ObservationMapping: %q", line)
		}
		pe, err := p.parseObservationEntry(line)
		if err != nil {
			return err
		}
		n.pendingObsEntries = append(n.pendingObsEntries, pe)
		switch m := n.mapping.(type) {
		case *DiscreteObservationMapping:
			m.total += pe.visitCount
		case *ApproximateObservationMapping:
			m.total += pe.visitCount
		}
	}
}

func (p *parser) parseObservationEntry(line string) (pendingObsEntry, error) {
	var obsText string
	var childID uint64
	var visits int64
	if _, err := fmt.Sscanf(line, "entry obs=%s child=%d visits=%d", &obsText, &childID, &visits); err != nil {
		return pendingObsEntry{}, fmt.Errorf("malformed observation entry %q: %w", line, err)
	}
	obs, err := p.codec.DeserializeObservation(obsText)
	if err != nil {
		return pendingObsEntry{}, fmt.Errorf("observation deserialization failed: %w", err)
	}
	return pendingObsEntry{obs: obs, visitCount: visits}, nil
}

func attachObservationChild(mapping ObservationMapping, pe pendingObsEntry, child *BeliefNode) {
	switch m := mapping.(type) {
	case *DiscreteObservationMapping:
		e := &discreteObservationEntry{obs: pe.obs, child: child, visitCount: pe.visitCount}
		m.byHash[pe.obs.Hash()] = append(m.byHash[pe.obs.Hash()], e)
		m.insertOrder = append(m.insertOrder, e)
	case *ApproximateObservationMapping:
		id := len(m.clusters)
		c := &approximateCluster{id: id, representative: pe.obs, child: child, visitCount: pe.visitCount}
		if m.projectFn != nil {
			c.projection = m.projectFn(c.representative)
		}
		m.clusters = append(m.clusters, c)
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}
}
