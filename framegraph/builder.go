// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import (
	"github.com/gviegas/framegraph/device"
	"github.com/gviegas/framegraph/internal/idpool"
)

// QueueConfig describes the queue families available to the compiler
// when assigning passes, and is consumed by Compile (spec §4.1). It
// is a thin alias of device.QueueConfig so callers need not import
// both packages to build one.
type QueueConfig = device.QueueConfig

// Builder collects resource declarations and pass declarations for a
// single frame graph. A Builder is single-use: Compile consumes it and
// any further use of the Builder or of a TaskBuilder obtained from it
// is invalid.
type Builder struct {
	resources idpool.Pool[resourceEntry]
	passes    []*passEntry
	consumed  bool
}

// NewBuilder creates an empty Builder ready to record resource and
// pass declarations.
func NewBuilder() *Builder {
	b := &Builder{}
	// Burn slot 0 so that the zero Handle (invalidHandle) never
	// aliases a real resource.
	b.resources.Alloc()
	return b
}

func (b *Builder) checkNotConsumed() {
	if b.consumed {
		panic("framegraph: builder already compiled")
	}
}

func (b *Builder) addPass(name string, kind PassKind, build func(*TaskBuilder), exec any) {
	b.checkNotConsumed()
	pe := &passEntry{
		name:      name,
		kind:      kind,
		declIndex: len(b.passes),
		exec:      exec,
	}
	b.passes = append(b.passes, pe)
	if build != nil {
		build(&TaskBuilder{b: b, pass: pe})
	}
}

// AddGraphicsPass declares a graphics pass. build populates the task
// builder with the pass' resource accesses and ordering constraints;
// exec is invoked by the Executor once the pass is scheduled.
func (b *Builder) AddGraphicsPass(name string, build func(*TaskBuilder), exec GraphicsFunc) {
	b.addPass(name, PassGraphics, build, exec)
}

// AddComputePass declares a compute pass.
func (b *Builder) AddComputePass(name string, build func(*TaskBuilder), exec ComputeFunc) {
	b.addPass(name, PassCompute, build, exec)
}

// AddTransferPass declares a transfer pass.
func (b *Builder) AddTransferPass(name string, build func(*TaskBuilder), exec TransferFunc) {
	b.addPass(name, PassTransfer, build, exec)
}

// Compile consumes the Builder and produces an optimized, deterministic
// execution Plan (spec §4.2). After Compile returns, the Builder must
// not be used again.
func (b *Builder) Compile(cfg QueueConfig) (*Plan, error) {
	b.checkNotConsumed()
	b.consumed = true
	if cfg.Graphics <= 0 && cfg.Compute <= 0 && cfg.Transfer <= 0 {
		return nil, newCompileError(ErrEmptyQueueConfig, "")
	}
	return compile(b, cfg)
}
