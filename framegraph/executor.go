// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import (
	"errors"
	"fmt"
	"log"

	"github.com/gviegas/framegraph/device"
)

const bufferAlign = int64(256)

func alignUp(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

func maxInt(n, floor int) int {
	if n < floor {
		return floor
	}
	return n
}

func viewTypeFor(desc ImageDesc) device.ViewType {
	if desc.Layers > 1 {
		return device.IView2DArray
	}
	return device.IView2D
}

// execResource is the Executor's persistent, cross-frame record of the
// concrete device objects backing one declared resource.
type execResource struct {
	entry *resourceEntry

	bufSlots    []device.Buffer // len 1; per-frame buffers are one larger buffer sliced by frameStride
	frameStride int64

	imgSlots []device.Image      // len 1, or framesInFlight for a per-frame image
	imgViews []device.ImageView

	surf device.Surface
}

// usageState is the Executor's running, execution-time record of the
// most recent access to a resource, used to derive same-queue barriers
// (spec §4.3's last-usage/write-barrier-ledger tracking). It is reset
// at the start of every frame.
type usageState struct {
	queue  queueAssignment
	kind   accessKind
	stages device.Stage
	access device.Access
	layout device.Layout

	// writeStages/writeAccess are the stage/access mask of the most
	// recent buffer write on this queue; readUnionStages/readUnionAccess
	// accumulate the union of every buffer read observed since that
	// write, reset whenever a new write occurs. Only used for buffers:
	// images keep a single-entry ledger since their barriers are also
	// gated on layout, which a read never changes.
	writeStages     device.Stage
	writeAccess     device.Access
	readUnionStages device.Stage
	readUnionAccess device.Access
}

// Executor installs a compiled Plan against a device.Device and drives
// it frame by frame (spec §4.3).
type Executor struct {
	dev            device.Device
	framesInFlight int
	plan           *Plan

	resources map[uint64]*execResource
	live      map[uint64]*liveResource

	timelineSem  map[queueAssignment]device.TimelineSemaphore
	timelineBase map[queueAssignment]uint64

	fenceSlots []map[device.QueueFamily]device.Fence

	frameCount uint64
}

// NewExecutor creates an Executor bound to dev, ready to Install a
// Plan. framesInFlight must be at least 1.
func NewExecutor(dev device.Device, framesInFlight int) *Executor {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	return &Executor{dev: dev, framesInFlight: framesInFlight}
}

// Install allocates device resources for every internal resource the
// plan declares, and prepares the per-queue timeline semaphores the
// plan's cross-queue hand-offs reference. It replaces any previously
// installed plan; call Teardown first if resources from a prior plan
// must be released.
func (ex *Executor) Install(plan *Plan) error {
	ex.plan = plan
	ex.resources = make(map[uint64]*execResource, len(plan.order))

	for _, id := range plan.order {
		re := plan.resources[id]
		er := &execResource{entry: re}

		if re.source.external {
			switch re.handle.Type() {
			case HBuffer:
				er.bufSlots = []device.Buffer{re.source.extBuffer}
			case HImage:
				v, err := re.source.extImage.NewView(device.IView2D, 0, 1, 0, 1)
				if err != nil {
					return err
				}
				er.imgSlots = []device.Image{re.source.extImage}
				er.imgViews = []device.ImageView{v}
			case HRenderSurface:
				er.surf = re.source.extSurface
			}
			ex.resources[id] = er
			continue
		}

		switch re.handle.Type() {
		case HBuffer:
			slots := 1
			if re.perFrame {
				slots = ex.framesInFlight
			}
			stride := alignUp(re.source.bufDesc.Size, bufferAlign)
			total := re.source.bufDesc.Size
			if re.perFrame {
				total = stride * int64(slots)
			}
			buf, err := ex.dev.NewBuffer(total, true, re.source.bufDesc.Usage)
			if err != nil {
				return fmt.Errorf("framegraph: creating buffer %q: %w", re.name, err)
			}
			er.bufSlots = []device.Buffer{buf}
			er.frameStride = stride

		case HImage:
			slots := 1
			if re.perFrame {
				slots = ex.framesInFlight
			}
			desc := re.source.imgDesc
			layers := maxInt(desc.Layers, 1)
			levels := maxInt(desc.Levels, 1)
			samples := maxInt(desc.Samples, 1)
			for i := 0; i < slots; i++ {
				img, err := ex.dev.NewImage(desc.Format, desc.Size, layers, levels, samples, desc.Usage)
				if err != nil {
					return fmt.Errorf("framegraph: creating image %q: %w", re.name, err)
				}
				view, err := img.NewView(viewTypeFor(desc), 0, layers, 0, levels)
				if err != nil {
					return fmt.Errorf("framegraph: creating view for image %q: %w", re.name, err)
				}
				er.imgSlots = append(er.imgSlots, img)
				er.imgViews = append(er.imgViews, view)
			}
		}
		ex.resources[id] = er
	}

	ex.timelineSem = make(map[queueAssignment]device.TimelineSemaphore)
	ex.timelineBase = make(map[queueAssignment]uint64)
	for _, sub := range plan.submissions {
		key := queueAssignment{family: sub.Family, index: sub.QueueIndex}
		if _, ok := ex.timelineSem[key]; ok {
			continue
		}
		sem, err := ex.dev.NewTimelineSemaphore(0)
		if err != nil {
			return fmt.Errorf("framegraph: creating timeline semaphore: %w", err)
		}
		ex.timelineSem[key] = sem
		ex.timelineBase[key] = 0
	}

	ex.fenceSlots = make([]map[device.QueueFamily]device.Fence, ex.framesInFlight)
	ex.frameCount = 0
	return nil
}

// Teardown destroys every device resource and synchronization object
// the Executor owns. It does not destroy externally-imported resources.
func (ex *Executor) Teardown() {
	for _, er := range ex.resources {
		if er.entry.source.external {
			continue
		}
		for _, v := range er.imgViews {
			v.Destroy()
		}
		for _, img := range er.imgSlots {
			img.Destroy()
		}
		for _, buf := range er.bufSlots {
			buf.Destroy()
		}
	}
	for _, sem := range ex.timelineSem {
		sem.Destroy()
	}
	for _, fences := range ex.fenceSlots {
		for _, f := range fences {
			f.Destroy()
		}
	}
	ex.resources = nil
	ex.timelineSem = nil
	ex.timelineBase = nil
	ex.fenceSlots = nil
	ex.plan = nil
}

func (ex *Executor) queue(family device.QueueFamily, index int) device.WorkQueue {
	qs := ex.dev.Queues(family)
	return qs[index]
}

// ExecuteFrame drives one frame of the installed plan: it waits for
// the frame slot framesInFlight frames ago to complete, acquires
// every presentable surface, submits every submission in topological
// order with barriers derived from their declared accesses, and
// presents every surface that was successfully acquired (spec §4.3).
func (ex *Executor) ExecuteFrame() error {
	if ex.plan == nil {
		panic("framegraph: ExecuteFrame called with no plan installed")
	}

	slot := int(ex.frameCount % uint64(ex.framesInFlight))

	if fences := ex.fenceSlots[slot]; fences != nil {
		for _, f := range fences {
			if err := f.Wait(-1); err != nil {
				return err
			}
			if err := f.Reset(); err != nil {
				return err
			}
		}
	}
	ex.fenceSlots[slot] = make(map[device.QueueFamily]device.Fence)

	ex.live = make(map[uint64]*liveResource, len(ex.resources))
	for id, er := range ex.resources {
		lr := &liveResource{entry: er.entry}
		switch er.entry.handle.Type() {
		case HBuffer:
			lr.buf = er.bufSlots[0]
			if er.entry.perFrame {
				lr.frameOff = int64(slot) * er.frameStride
			}
		case HImage:
			idx := 0
			if er.entry.perFrame {
				idx = slot
			}
			lr.img = er.imgSlots[idx]
			lr.iview = er.imgViews[idx]
		case HRenderSurface:
			lr.surf = er.surf
		}
		ex.live[id] = lr
	}

	type acquiredSurface struct {
		image    device.SwapchainImage
		acquire  device.BinarySemaphore
		complete device.BinarySemaphore
	}
	acquired := make(map[uint64]*acquiredSurface)
	skipped := make(map[uint64]bool)

	for id, er := range ex.resources {
		if er.entry.handle.Type() != HRenderSurface {
			continue
		}
		win := er.surf.Window()
		if !win.Visible() || win.Minimized() {
			skipped[id] = true
			continue
		}
		img, accSem, compSem, err := er.surf.AcquireNext()
		switch {
		case errors.Is(err, device.ErrOutOfDate):
			log.Printf("framegraph: surface %q out of date, recreating", er.entry.name)
			if rerr := er.surf.Recreate(); rerr != nil {
				return rerr
			}
			skipped[id] = true
			continue
		case errors.Is(err, device.ErrSurfaceLost):
			log.Printf("framegraph: surface %q lost, evicting for this frame", er.entry.name)
			skipped[id] = true
			continue
		case err != nil:
			log.Printf("framegraph: device lost acquiring surface %q: %v", er.entry.name, err)
			return err
		}
		acquired[id] = &acquiredSurface{image: img, acquire: accSem, complete: compSem}
		ex.live[id].iview = img.View
	}

	firstTouch := make(map[uint64]int)
	lastTouch := make(map[uint64]int)
	for i, sub := range ex.plan.submissions {
		for _, p := range sub.passes {
			for _, a := range p.accesses {
				if _, ok := acquired[a.handle.id]; !ok {
					continue
				}
				if _, ok := firstTouch[a.handle.id]; !ok {
					firstTouch[a.handle.id] = i
				}
				lastTouch[a.handle.id] = i
			}
		}
	}

	execLastUsage := make(map[uint64]*usageState)
	emittedSignal := make(map[queueAssignment]map[uint64]bool)
	queueMaxThisFrame := make(map[queueAssignment]uint64)
	lastIncludedByFamily := make(map[device.QueueFamily]int)

	included := make([]bool, len(ex.plan.submissions))
	for i, sub := range ex.plan.submissions {
		for _, p := range sub.passes {
			if passSkipped(p, skipped) {
				continue
			}
			included[i] = true
			lastIncludedByFamily[sub.Family] = i
		}
	}

	for i, sub := range ex.plan.submissions {
		if !included[i] {
			continue
		}
		key := queueAssignment{family: sub.Family, index: sub.QueueIndex}

		q := ex.queue(sub.Family, sub.QueueIndex)
		cmd, err := q.NewCmdList()
		if err != nil {
			return err
		}
		if err := cmd.Begin(); err != nil {
			return err
		}

		ex.emitAcquireTransfers(cmd, sub)
		for _, td := range sub.acquired {
			kind := accessRead
			if td.dstAccess&(device.AColorWrite|device.ADSWrite|device.AResolveWrite|device.ACopyWrite|device.AShaderWrite|device.AAnyWrite) != 0 {
				kind = accessWrite
			}
			st := &usageState{queue: key, kind: kind, stages: td.dstStages, access: td.dstAccess, layout: td.dstLayout}
			if kind == accessWrite {
				st.writeStages = td.dstStages
				st.writeAccess = td.dstAccess
			} else {
				st.readUnionStages = td.dstStages
				st.readUnionAccess = td.dstAccess
			}
			execLastUsage[td.handle.id] = st
		}

		for _, p := range sub.passes {
			if passSkipped(p, skipped) {
				continue
			}
			ex.emitAccessBarriers(cmd, key, p, execLastUsage)
			dispatchPass(ex, cmd, sub.Family, slot, p)
		}

		ex.emitReleaseTransfers(cmd, sub)
		ex.emitPresentTransitions(cmd, i, lastTouch, execLastUsage)

		if err := cmd.End(); err != nil {
			return err
		}

		var waits []device.SemaphoreWait
		for _, w := range sub.waits {
			wkey := queueAssignment{family: w.family, index: w.index}
			if !emittedSignal[wkey][w.value] {
				continue
			}
			waits = append(waits, device.SemaphoreWait{
				Sem:    ex.timelineSem[wkey],
				Value:  ex.timelineBase[wkey] + w.value,
				Stages: w.stages,
			})
		}
		var signals []device.SemaphoreSignal
		for _, s := range sub.signals {
			signals = append(signals, device.SemaphoreSignal{
				Sem:    ex.timelineSem[key],
				Value:  ex.timelineBase[key] + s.value,
				Stages: s.stages,
			})
			if emittedSignal[key] == nil {
				emittedSignal[key] = make(map[uint64]bool)
			}
			emittedSignal[key][s.value] = true
			if s.value > queueMaxThisFrame[key] {
				queueMaxThisFrame[key] = s.value
			}
		}

		for id, touch := range firstTouch {
			if touch == i {
				waits = append(waits, device.SemaphoreWait{Sem: acquired[id].acquire, Stages: device.SColorOutput})
			}
		}
		for id, touch := range lastTouch {
			if touch == i {
				signals = append(signals, device.SemaphoreSignal{Sem: acquired[id].complete, Stages: device.SColorOutput})
			}
		}

		var fence device.Fence
		if lastIncludedByFamily[sub.Family] == i {
			f, err := ex.dev.NewFence(false)
			if err != nil {
				return err
			}
			ex.fenceSlots[slot][sub.Family] = f
			fence = f
		}

		if err := q.Submit(device.SubmitInfo{
			CmdLists: []device.CmdList{cmd},
			Waits:    waits,
			Signals:  signals,
			Fence:    fence,
		}); err != nil {
			return err
		}
	}

	for key, max := range queueMaxThisFrame {
		ex.timelineBase[key] += max
	}

	for id, as := range acquired {
		er := ex.resources[id]
		outcome, err := er.surf.Present(as.image.Index, as.complete)
		if err != nil {
			log.Printf("framegraph: present failed for surface %q: %v", er.entry.name, err)
			return err
		}
		if outcome == device.OutcomeSuboptimal {
			log.Printf("framegraph: surface %q suboptimal, recreating", er.entry.name)
			if rerr := er.surf.Recreate(); rerr != nil {
				return rerr
			}
		}
	}

	ex.frameCount++
	return nil
}

// passSkipped reports whether p writes to a render surface that was
// not acquired this frame, in which case its output would be lost and
// it is dropped from its submission rather than executed.
func passSkipped(p *passEntry, skipped map[uint64]bool) bool {
	for _, a := range p.accesses {
		if a.kind == accessWrite && skipped[a.handle.id] {
			return true
		}
	}
	return false
}

// emitAccessBarriers derives and records the same-queue barriers a
// pass' accesses require against the executor's running per-resource
// usage ledger, then updates the ledger (spec §4.3's barrier
// derivation). Cross-queue ownership transfers are handled separately
// by emitAcquireTransfers/emitReleaseTransfers using the plan's
// precomputed descriptors.
func (ex *Executor) emitAccessBarriers(cmd device.CmdList, key queueAssignment, p *passEntry, ledger map[uint64]*usageState) {
	var imgBarriers []device.ImageBarrier
	var bufBarriers []device.BufferBarrier

	for _, a := range p.accesses {
		lr := ex.live[a.handle.id]
		isImage := a.handle.Type() != HBuffer
		prev, ok := ledger[a.handle.id]

		switch {
		case !ok:
			if isImage {
				imgBarriers = append(imgBarriers, device.ImageBarrier{
					Barrier:      device.Barrier{SyncBefore: device.SNone, SyncAfter: a.stages, AccessBefore: device.ANone, AccessAfter: a.access},
					LayoutBefore: device.LUndefined,
					LayoutAfter:  a.layout,
					IView:        lr.iview,
				})
			}
		case prev.queue == key:
			if isImage {
				bothRead := prev.kind == accessRead && a.kind == accessRead
				if prev.layout != a.layout || !bothRead {
					imgBarriers = append(imgBarriers, device.ImageBarrier{
						Barrier:      device.Barrier{SyncBefore: prev.stages, SyncAfter: a.stages, AccessBefore: prev.access, AccessAfter: a.access},
						LayoutBefore: prev.layout,
						LayoutAfter:  a.layout,
						IView:        lr.iview,
					})
				}
			} else if a.kind == accessWrite {
				bufBarriers = append(bufBarriers, device.BufferBarrier{
					Barrier: device.Barrier{SyncBefore: prev.writeStages | prev.readUnionStages, SyncAfter: a.stages, AccessBefore: prev.writeAccess | prev.readUnionAccess, AccessAfter: a.access},
					Buf:     lr.buf,
					Off:     0,
					Size:    lr.buf.Cap(),
				})
			} else {
				covered := prev.readUnionStages&a.stages == a.stages && prev.readUnionAccess&a.access == a.access
				if !covered {
					bufBarriers = append(bufBarriers, device.BufferBarrier{
						Barrier: device.Barrier{SyncBefore: prev.writeStages, SyncAfter: a.stages, AccessBefore: prev.writeAccess, AccessAfter: a.access},
						Buf:     lr.buf,
						Off:     0,
						Size:    lr.buf.Cap(),
					})
				}
			}
		default:
			// Cross-queue: handled by the plan's release/acquire
			// descriptors, not here.
		}

		next := &usageState{queue: key, kind: a.kind, stages: a.stages, access: a.access, layout: a.layout}
		if !isImage {
			if ok && prev.queue == key {
				next.writeStages, next.writeAccess = prev.writeStages, prev.writeAccess
				next.readUnionStages, next.readUnionAccess = prev.readUnionStages, prev.readUnionAccess
			}
			if a.kind == accessWrite {
				next.writeStages, next.writeAccess = a.stages, a.access
				next.readUnionStages, next.readUnionAccess = 0, 0
			} else {
				next.readUnionStages |= a.stages
				next.readUnionAccess |= a.access
			}
		}
		ledger[a.handle.id] = next
	}

	if len(imgBarriers) > 0 {
		cmd.Transition(imgBarriers)
	}
	if len(bufBarriers) > 0 {
		cmd.BufferTransition(bufBarriers)
	}
}

// emitPresentTransitions implements spec §4.3(g): on the final
// submission that touched an acquired swapchain image this frame,
// transition it back to the present layout and clear its last-usage
// ledger entry, so next frame's first use of the (recycled) slot sees
// no stale state.
func (ex *Executor) emitPresentTransitions(cmd device.CmdList, subIdx int, lastTouch map[uint64]int, ledger map[uint64]*usageState) {
	var barriers []device.ImageBarrier
	for id, touch := range lastTouch {
		if touch != subIdx {
			continue
		}
		lr := ex.live[id]
		layoutBefore := device.LUndefined
		before := device.Barrier{SyncBefore: device.SNone, SyncAfter: device.SNone, AccessBefore: device.ANone, AccessAfter: device.ANone}
		if prev, ok := ledger[id]; ok {
			layoutBefore = prev.layout
			before.SyncBefore = prev.stages
			before.AccessBefore = prev.access
		}
		barriers = append(barriers, device.ImageBarrier{
			Barrier:      before,
			LayoutBefore: layoutBefore,
			LayoutAfter:  device.LPresent,
			IView:        lr.iview,
		})
		delete(ledger, id)
	}
	if len(barriers) > 0 {
		cmd.Transition(barriers)
	}
}

func (ex *Executor) emitAcquireTransfers(cmd device.CmdList, sub *Submission) {
	var imgBarriers []device.ImageBarrier
	var bufBarriers []device.BufferBarrier
	for _, td := range sub.acquired {
		if td.isBuffer {
			lr := ex.live[td.handle.id]
			bufBarriers = append(bufBarriers, device.BufferBarrier{
				Barrier:    device.Barrier{SyncBefore: td.srcStages, SyncAfter: td.dstStages, AccessBefore: td.srcAccess, AccessAfter: td.dstAccess},
				Buf:        lr.buf,
				Off:        0,
				Size:       lr.buf.Cap(),
				SrcQueue:   td.srcFamily,
				DstQueue:   td.dstFamily,
				CrossQueue: true,
			})
		} else {
			lr := ex.live[td.handle.id]
			imgBarriers = append(imgBarriers, device.ImageBarrier{
				Barrier:      device.Barrier{SyncBefore: td.srcStages, SyncAfter: td.dstStages, AccessBefore: td.srcAccess, AccessAfter: td.dstAccess},
				LayoutBefore: td.srcLayout,
				LayoutAfter:  td.dstLayout,
				IView:        lr.iview,
				SrcQueue:     td.srcFamily,
				DstQueue:     td.dstFamily,
				CrossQueue:   true,
			})
		}
	}
	if len(imgBarriers) > 0 {
		cmd.Transition(imgBarriers)
	}
	if len(bufBarriers) > 0 {
		cmd.BufferTransition(bufBarriers)
	}
}

func (ex *Executor) emitReleaseTransfers(cmd device.CmdList, sub *Submission) {
	var imgBarriers []device.ImageBarrier
	var bufBarriers []device.BufferBarrier
	for _, td := range sub.released {
		if td.isBuffer {
			lr := ex.live[td.handle.id]
			bufBarriers = append(bufBarriers, device.BufferBarrier{
				Barrier:    device.Barrier{SyncBefore: td.srcStages, SyncAfter: td.dstStages, AccessBefore: td.srcAccess, AccessAfter: td.dstAccess},
				Buf:        lr.buf,
				Off:        0,
				Size:       lr.buf.Cap(),
				SrcQueue:   td.srcFamily,
				DstQueue:   td.dstFamily,
				CrossQueue: true,
			})
		} else {
			lr := ex.live[td.handle.id]
			imgBarriers = append(imgBarriers, device.ImageBarrier{
				Barrier:      device.Barrier{SyncBefore: td.srcStages, SyncAfter: td.dstStages, AccessBefore: td.srcAccess, AccessAfter: td.dstAccess},
				LayoutBefore: td.srcLayout,
				LayoutAfter:  td.dstLayout,
				IView:        lr.iview,
				SrcQueue:     td.srcFamily,
				DstQueue:     td.dstFamily,
				CrossQueue:   true,
			})
		}
	}
	if len(imgBarriers) > 0 {
		cmd.Transition(imgBarriers)
	}
	if len(bufBarriers) > 0 {
		cmd.BufferTransition(bufBarriers)
	}
}

// dispatchPass invokes a pass' type-erased execution callable with the
// execution context matching its kind (spec §4.4).
func dispatchPass(ex *Executor, cmd device.CmdList, family device.QueueFamily, frame int, p *passEntry) {
	base := execContext{ex: ex, cmd: cmd, family: family, frame: frame, passName: p.name}
	switch p.kind {
	case PassGraphics:
		p.exec.(GraphicsFunc)(&GraphicsContext{execContext: base})
	case PassCompute:
		p.exec.(ComputeFunc)(&ComputeContext{execContext: base})
	case PassTransfer:
		p.exec.(TransferFunc)(&TransferContext{execContext: base})
	}
}
