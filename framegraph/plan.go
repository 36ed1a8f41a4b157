// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import "github.com/gviegas/framegraph/device"

// transferDescriptor describes one side of a cross-queue ownership
// transfer for a single resource (spec §3's "released_resources"/
// "acquired_resources"). The same instance is referenced from both the
// source submission's Released slice and the destination submission's
// Acquired slice.
type transferDescriptor struct {
	handle Handle

	srcFamily, dstFamily device.QueueFamily

	srcStages, dstStages device.Stage
	srcAccess, dstAccess device.Access
	srcLayout, dstLayout device.Layout // LUndefined on both sides for buffers

	// signalValue is the timeline offset, local to the source queue,
	// that the source submission signals and the destination
	// submission waits on. Offsets are relative to the queue's value
	// at plan-install time; the Executor adds the frame's running
	// base value when it actually submits.
	signalValue uint64

	isBuffer bool
}

// planWait is one wait operation in a Submission's wait set, scoped to
// a specific queue's timeline offset (spec §3's "submission.waits").
type planWait struct {
	family device.QueueFamily
	index  int
	value  uint64
	stages device.Stage
}

// planSignal is one signal operation in a Submission's signal set.
type planSignal struct {
	family device.QueueFamily
	index  int
	value  uint64
	stages device.Stage
}

// Submission is a contiguous batch of passes targeting one work queue,
// submitted together with a single wait set and signal set (spec §3's
// "Scheduled pass / submission").
type Submission struct {
	Family     device.QueueFamily
	QueueIndex int

	passes []*passEntry

	waits   []planWait
	signals []planSignal

	released []*transferDescriptor
	acquired []*transferDescriptor
}

// Plan is the deterministic, optimized execution plan produced by
// Builder.Compile (spec §4.2's "Plan emission"). It is installed into
// an Executor, which is responsible for allocating concrete device
// resources and driving submissions frame by frame.
type Plan struct {
	resources map[uint64]*resourceEntry
	order     []uint64 // resource ids in ascending allocation order, for deterministic iteration
	queueCfg  QueueConfig

	submissions []*Submission
}

// Resources returns the number of live resources referenced by the
// plan.
func (p *Plan) Resources() int { return len(p.order) }

// Submissions returns the number of submissions in the plan.
func (p *Plan) Submissions() int { return len(p.submissions) }
