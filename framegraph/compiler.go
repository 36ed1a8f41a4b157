// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import "github.com/gviegas/framegraph/device"

// versionKey identifies one (handle id, version) pair, i.e. a single
// produced or consumed value of a resource.
type versionKey struct {
	id      uint64
	version uint32
}

// compile turns b's recorded resources and passes into a deterministic
// execution Plan, implementing spec §4.2(a)-(f) in sequence: liveness
// pruning, dependency-graph construction, topological ordering, queue
// assignment, submit batching and plan emission.
func compile(b *Builder, cfg QueueConfig) (*Plan, error) {
	producerOf := buildProducerMap(b)

	live, livePasses := pruneLiveness(b, producerOf)
	var liveOrder []int
	for fi := range b.passes {
		if livePasses[fi] {
			liveOrder = append(liveOrder, fi)
		}
	}

	edges := buildDependencyEdges(b, liveOrder, producerOf)

	order, err := topoSort(liveOrder, edges)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		resources: make(map[uint64]*resourceEntry, len(live)),
		queueCfg:  cfg,
	}
	for id := 0; id < b.resources.Len(); id++ {
		if !live[uint64(id)] {
			continue
		}
		re := b.resources.Get(id)
		plan.resources[uint64(id)] = re
		plan.order = append(plan.order, uint64(id))
	}

	if err := validateHandles(b, order, plan.resources); err != nil {
		return nil, err
	}

	emitPlan(b, plan, cfg, order)

	return plan, nil
}

// buildProducerMap scans b's passes in declaration order and records,
// for every write or read-write access, the pass that produced the
// resulting (id, version) pair.
func buildProducerMap(b *Builder) map[versionKey]int {
	m := make(map[versionKey]int)
	for i, p := range b.passes {
		for _, a := range p.accesses {
			if a.kind == accessWrite {
				m[versionKey{a.handle.id, a.handle.version}] = i
			}
		}
	}
	return m
}

// pruneLiveness implements spec §4.2(a): a resource is live iff it is
// external or reachable by read/write from a live pass; a pass is live
// iff it produces a live resource. Returns the set of live resource ids
// and the full-index set of live passes.
func pruneLiveness(b *Builder, producerOf map[versionKey]int) (liveRes map[uint64]bool, livePasses map[int]bool) {
	liveRes = make(map[uint64]bool)
	livePasses = make(map[int]bool)

	var queue []int
	enqueuePass := func(idx int) {
		if !livePasses[idx] {
			livePasses[idx] = true
			queue = append(queue, idx)
		}
	}

	for id := 0; id < b.resources.Len(); id++ {
		if !b.resources.Live(id) {
			continue
		}
		if b.resources.Get(id).source.external {
			liveRes[uint64(id)] = true
		}
	}
	for i, p := range b.passes {
		for _, a := range p.accesses {
			if a.kind == accessWrite && liveRes[a.handle.id] {
				enqueuePass(i)
				break
			}
		}
	}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		p := b.passes[idx]
		for _, a := range p.accesses {
			liveRes[a.handle.id] = true
			if prod, ok := producerOf[versionKey{a.handle.id, a.handle.version}]; ok {
				enqueuePass(prod)
			}
		}
	}

	return liveRes, livePasses
}

// buildDependencyEdges implements spec §4.2(b): read-after-write edges
// derived from producer versions, write-after-write edges from every
// earlier live pass writing the same resource, plus explicit DependsOn
// edges.
// edges[i] holds the set of live-pass indices (into liveOrder) that
// must precede liveOrder[i].
func buildDependencyEdges(b *Builder, liveOrder []int, producerOf map[versionKey]int) [][]int {
	fullToLive := make(map[int]int, len(liveOrder))
	for li, fi := range liveOrder {
		fullToLive[fi] = li
	}

	// Most recent full-index of a pass declared under a given name,
	// resolved over the whole builder so DependsOn may name a pass
	// declared later than the dependent one (a prerequisite for the
	// cycle case: two passes naming each other via DependsOn).
	lastNamed := make(map[string]int, len(b.passes))
	for fi, p := range b.passes {
		lastNamed[p.name] = fi
	}

	edges := make([][]int, len(liveOrder))
	for li, fi := range liveOrder {
		p := b.passes[fi]

		writesHere := make(map[uint64]bool)
		for _, a := range p.accesses {
			if a.kind == accessWrite {
				writesHere[a.handle.id] = true
			}
		}

		seen := make(map[int]bool)
		for _, a := range p.accesses {
			if a.kind == accessRead && writesHere[a.handle.id] {
				// Subsumed by this pass' own write edge.
				continue
			}
			if a.kind == accessWrite {
				for pli, pfi := range liveOrder[:li] {
					for _, pa := range b.passes[pfi].accesses {
						if pa.kind == accessWrite && pa.handle.id == a.handle.id && !seen[pli] {
							seen[pli] = true
							edges[li] = append(edges[li], pli)
						}
					}
				}
				continue
			}
			prod, ok := producerOf[versionKey{a.handle.id, a.handle.version}]
			if !ok || prod == fi {
				continue
			}
			predLi, ok := fullToLive[prod]
			if !ok || seen[predLi] {
				continue
			}
			seen[predLi] = true
			edges[li] = append(edges[li], predLi)
		}

		for _, dep := range p.deps {
			predFi, ok := lastNamed[dep]
			if !ok {
				continue
			}
			predLi, ok := fullToLive[predFi]
			if !ok || seen[predLi] {
				continue
			}
			seen[predLi] = true
			edges[li] = append(edges[li], predLi)
		}
	}

	return edges
}

// topoSort runs Kahn's algorithm over the live-pass subgraph, breaking
// ties by declaration order (liveOrder is already declaration-ordered,
// so scanning it left to right each round yields a deterministic
// result). Returns the full-index order the compiled plan executes
// passes in.
func topoSort(liveOrder []int, edges [][]int) ([]int, error) {
	n := len(liveOrder)
	indegree := make([]int, n)
	// indegree[i] counts edges pointing INTO i; edges[i] lists i's
	// predecessors, so indegree[i] = len(edges[i]).
	for i := range edges {
		indegree[i] = len(edges[i])
	}
	// successors[j] lists nodes that depend on j, for decrementing.
	successors := make([][]int, n)
	for i, preds := range edges {
		for _, j := range preds {
			successors[j] = append(successors[j], i)
		}
	}

	done := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		picked := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			return nil, newCompileError(ErrCycle, "")
		}
		done[picked] = true
		order = append(order, liveOrder[picked])
		for _, j := range successors[picked] {
			indegree[j]--
		}
	}
	return order, nil
}

// validateHandles confirms every access in the scheduled order refers
// to a resource present in the plan's (live) resource table.
func validateHandles(b *Builder, order []int, resources map[uint64]*resourceEntry) error {
	for _, fi := range order {
		for _, a := range b.passes[fi].accesses {
			if _, ok := resources[a.handle.id]; !ok {
				return newCompileError(ErrUnknownHandle, b.passes[fi].name)
			}
		}
	}
	return nil
}

// queueAssignment is the (family, index) pair a pass is scheduled on.
type queueAssignment struct {
	family device.QueueFamily
	index  int
}

// assignFamily implements spec §4.2(d)'s queue-family assignment rule,
// including the dedicated-queue fallback ladder.
func assignFamily(p *passEntry, cfg QueueConfig) device.QueueFamily {
	if !p.asyncPreferred {
		return device.QGraphics
	}
	switch p.kind {
	case PassCompute:
		if cfg.Compute > 0 {
			return device.QCompute
		}
		return device.QGraphics
	case PassTransfer:
		if cfg.Transfer > 0 {
			return device.QTransfer
		}
		if cfg.Compute > 0 {
			return device.QCompute
		}
		return device.QGraphics
	default:
		return device.QGraphics
	}
}

// roundRobin hands out queue indices within a family in round-robin
// order, so passes assigned to the same family spread across its
// configured queue count.
type roundRobin struct {
	next map[device.QueueFamily]int
}

func (r *roundRobin) assign(family device.QueueFamily, count int) int {
	if r.next == nil {
		r.next = make(map[device.QueueFamily]int)
	}
	if count <= 0 {
		count = 1
	}
	idx := r.next[family] % count
	r.next[family]++
	return idx
}

func queueCount(family device.QueueFamily, cfg QueueConfig) int {
	switch family {
	case device.QCompute:
		return cfg.Compute
	case device.QTransfer:
		return cfg.Transfer
	default:
		return cfg.Graphics
	}
}

// compileUsage tracks the most recent queue and accumulated access
// mask for a resource as the plan-emission pass walks scheduled
// passes in order.
type compileUsage struct {
	family      device.QueueFamily
	index       int
	submission  int
	stages      device.Stage
	access      device.Access
	layout      device.Layout
}

// futureUsageEvent records one resource access at its scheduled
// position, used by the reverse walk below to compute each hand-off's
// destination-side aggregate stages/access/layout (spec §4.2(f)).
type futureUsageEvent struct {
	rid    uint64
	pos    int
	assign queueAssignment
	stages device.Stage
	access device.Access
	layout device.Layout
}

// tdKey identifies the transfer descriptor that hands a resource off
// into the run of same-queue accesses starting at pos.
type tdKey struct {
	rid uint64
	pos int
}

// futureUsageRun accumulates the same-queue accesses seen so far while
// walking backward through a resource's run of uses.
type futureUsageRun struct {
	assign   queueAssignment
	stages   device.Stage
	access   device.Access
	layout   device.Layout
	startPos int
}

// emitPlan implements spec §4.2(e)-(f): submit batching at cross-queue
// boundaries, and plan emission with release/acquire ownership-transfer
// descriptors carrying fresh per-handoff timeline offsets.
//
// A hand-off's destination fields are set twice: first, during the
// forward pass below, to the single access that triggered the
// hand-off (sufficient to schedule the submission); then, in the
// reverse walk that follows, widened to the union of every same-queue
// access to that resource up to its next hand-off, so the acquire-side
// barrier synchronizes against all of the queue's future uses instead
// of only the first (grounded on the distillation's future_usage_map
// construction in original_source/projects/graphics/src/frame_graph.cpp).
func emitPlan(b *Builder, plan *Plan, cfg QueueConfig, order []int) {
	queueOffset := make(map[queueAssignment]uint64)
	lastUsage := make(map[uint64]*compileUsage)
	rr := &roundRobin{}

	var events []futureUsageEvent
	tdByStart := make(map[tdKey]*transferDescriptor)

	var cur *Submission
	curIdx := -1

	for pos, fi := range order {
		p := b.passes[fi]
		family := assignFamily(p, cfg)

		needNew := cur == nil || cur.Family != family
		if !needNew {
			for _, a := range p.accesses {
				if u, ok := lastUsage[a.handle.id]; ok && (u.family != family || u.index != cur.QueueIndex) {
					needNew = true
					break
				}
			}
		}

		if needNew {
			idx := rr.assign(family, queueCount(family, cfg))
			cur = &Submission{Family: family, QueueIndex: idx}
			plan.submissions = append(plan.submissions, cur)
			curIdx = len(plan.submissions) - 1
		}

		cur.passes = append(cur.passes, p)
		assigned := queueAssignment{family: cur.Family, index: cur.QueueIndex}

		for _, a := range p.accesses {
			rid := a.handle.id
			events = append(events, futureUsageEvent{
				rid: rid, pos: pos, assign: assigned,
				stages: a.stages, access: a.access, layout: a.layout,
			})

			u, ok := lastUsage[rid]
			switch {
			case !ok:
				lastUsage[rid] = &compileUsage{
					family: assigned.family, index: assigned.index, submission: curIdx,
					stages: a.stages, access: a.access, layout: a.layout,
				}
			case u.family == assigned.family && u.index == assigned.index:
				u.stages |= a.stages
				u.access |= a.access
				u.layout = a.layout
				u.submission = curIdx
			default:
				srcKey := queueAssignment{family: u.family, index: u.index}
				queueOffset[srcKey]++
				value := queueOffset[srcKey]

				srcSub := plan.submissions[u.submission]
				srcSub.signals = append(srcSub.signals, planSignal{
					family: u.family, index: u.index, value: value, stages: u.stages,
				})

				isBuffer := handleIsBuffer(plan, rid)
				td := &transferDescriptor{
					handle:      a.handle,
					srcFamily:   u.family,
					dstFamily:   assigned.family,
					srcStages:   u.stages,
					dstStages:   a.stages,
					srcAccess:   u.access,
					dstAccess:   a.access,
					srcLayout:   u.layout,
					dstLayout:   a.layout,
					signalValue: value,
					isBuffer:    isBuffer,
				}
				srcSub.released = append(srcSub.released, td)
				cur.waits = append(cur.waits, planWait{
					family: u.family, index: u.index, value: value, stages: a.stages,
				})
				cur.acquired = append(cur.acquired, td)
				tdByStart[tdKey{rid: rid, pos: pos}] = td

				lastUsage[rid] = &compileUsage{
					family: assigned.family, index: assigned.index, submission: curIdx,
					stages: a.stages, access: a.access, layout: a.layout,
				}
			}
		}
	}

	applyFutureUsage(events, tdByStart)
}

// applyFutureUsage walks events backward, accumulating per-resource the
// union of stages/access across each run of consecutive same-queue
// accesses, and widens the transfer descriptor that hands the resource
// into that run to cover the whole union rather than just the access
// that triggered the hand-off.
func applyFutureUsage(events []futureUsageEvent, tdByStart map[tdKey]*transferDescriptor) {
	runs := make(map[uint64]*futureUsageRun)
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		run, ok := runs[e.rid]
		if !ok {
			runs[e.rid] = &futureUsageRun{assign: e.assign, stages: e.stages, access: e.access, layout: e.layout, startPos: e.pos}
			continue
		}
		if run.assign == e.assign {
			run.stages |= e.stages
			run.access |= e.access
			run.layout = e.layout
			run.startPos = e.pos
			continue
		}
		if td, ok := tdByStart[tdKey{rid: e.rid, pos: run.startPos}]; ok {
			td.dstStages = run.stages
			td.dstAccess = run.access
			td.dstLayout = run.layout
		}
		runs[e.rid] = &futureUsageRun{assign: e.assign, stages: e.stages, access: e.access, layout: e.layout, startPos: e.pos}
	}
}

func handleIsBuffer(plan *Plan, id uint64) bool {
	re, ok := plan.resources[id]
	if !ok {
		return false
	}
	return re.handle.typ == HBuffer
}
