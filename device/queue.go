// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package device

// WorkQueue is the interface that defines a single GPU queue belonging
// to a QueueFamily. A Device exposes Queues(family) queues of a kind;
// framegraph addresses a specific one by (family, index).
type WorkQueue interface {
	// Family returns the queue family this queue belongs to.
	Family() QueueFamily

	// Index returns the index of this queue within its family.
	Index() int

	// NewCmdList creates a new command list valid for submission on
	// this queue.
	NewCmdList() (CmdList, error)

	// Submit submits a batch of command lists for execution. Waits
	// and signals defined in info apply to the batch as a whole, so
	// CmdLists order within a single SubmitInfo is meaningful.
	// Submit does not block; completion is observed through info's
	// timeline signals and/or Fence.
	Submit(info SubmitInfo) error
}

// BinarySemaphore is a semaphore with only two states (signalled and
// unsignalled), used to order swapchain acquire/present against queue
// submissions.
type BinarySemaphore interface {
	Destroyer
}

// TimelineSemaphore is a monotonically increasing, u64-valued
// semaphore supporting waits/signals at specific values. It is the
// sole mechanism framegraph uses for cross-queue ordering.
type TimelineSemaphore interface {
	Destroyer

	// Value returns the semaphore's last known value. It may block
	// until the underlying implementation has an up-to-date value
	// available.
	Value() (uint64, error)

	// Wait blocks the host until the semaphore reaches at least
	// value, or the timeout elapses.
	Wait(value uint64, timeoutNS int64) error
}

// Fence is a host-waitable completion signal associated with a batch
// of work submitted to a single queue family.
type Fence interface {
	Destroyer

	// Wait blocks the host until the fence is signalled, or the
	// timeout elapses. A negative timeout waits indefinitely.
	Wait(timeoutNS int64) error

	// Reset clears the fence back to the unsignalled state. It must
	// only be called once the fence is known to be signalled.
	Reset() error

	// Signalled reports whether the fence is currently signalled,
	// without blocking.
	Signalled() (bool, error)
}

// SemaphoreWait/SemaphoreSignal pair a semaphore with the pipeline
// stages the wait/signal applies to, and — for timeline semaphores —
// the value being waited on or signalled.

// Semaphore is the union of the two semaphore kinds a SubmitInfo may
// reference. Concrete values are either a BinarySemaphore or a
// TimelineSemaphore.
type Semaphore interface {
	Destroyer
}

// SemaphoreWait describes a single wait operation in a SubmitInfo.
// Value is ignored for BinarySemaphore waits.
type SemaphoreWait struct {
	Sem    Semaphore
	Value  uint64
	Stages Stage
}

// SemaphoreSignal describes a single signal operation in a
// SubmitInfo. Value is the new value for a TimelineSemaphore signal
// and is ignored for BinarySemaphore signals.
type SemaphoreSignal struct {
	Sem    Semaphore
	Value  uint64
	Stages Stage
}

// SubmitInfo describes a single submission to a WorkQueue.
type SubmitInfo struct {
	CmdLists []CmdList
	Waits    []SemaphoreWait
	Signals  []SemaphoreSignal
	// Fence, if non-nil, is signalled once every command list in
	// CmdLists has completed execution.
	Fence Fence
}
