// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import "github.com/gviegas/framegraph/device"

// PassKind identifies the kind of work a pass records.
type PassKind int

// Pass kinds.
const (
	PassGraphics PassKind = iota
	PassCompute
	PassTransfer
)

// String implements fmt.Stringer.
func (k PassKind) String() string {
	switch k {
	case PassGraphics:
		return "graphics"
	case PassCompute:
		return "compute"
	case PassTransfer:
		return "transfer"
	default:
		return "invalid"
	}
}

// accessKind distinguishes a read access from a write access. A
// read_write declaration on the task builder expands into one of each
// (spec §3: "For read-writes the builder emits two records (read then
// write)").
type accessKind int

const (
	accessRead accessKind = iota
	accessWrite
)

// accessRecord is the builder-side record of a single typed resource
// access (spec §3's "Access record").
type accessRecord struct {
	handle Handle
	kind   accessKind
	stages device.Stage
	access device.Access
	layout device.Layout
}

// AccessOption customizes a single read/write/read_write declaration
// on a TaskBuilder. The zero value of every option field means
// "unset"; unset fields fall back to the defaults spec.md §4.1
// describes.
type AccessOption func(*accessRecord)

// Stages overrides the pipeline stage mask of a single access. If
// omitted, the default is device.SAll.
func Stages(s device.Stage) AccessOption {
	return func(a *accessRecord) { a.stages = s }
}

// AccessMask overrides the memory access mask of a single access. If
// omitted, the default is the union of all read (or write) access
// kinds appropriate to the resource, or — for images — the mask
// implied by Layout.
func AccessMask(m device.Access) AccessOption {
	return func(a *accessRecord) { a.access = m }
}

// Layout overrides the image layout of a single access. It has no
// effect on buffer accesses, whose layout is always device.LUndefined.
func Layout(l device.Layout) AccessOption {
	return func(a *accessRecord) { a.layout = l }
}

// GraphicsContext, ComputeContext and TransferContext are the
// kind-specific facades passed to a pass's execution callable (spec
// §4.4). They are defined in context.go.

// GraphicsFunc is the deferred execution callable for a graphics pass.
type GraphicsFunc func(*GraphicsContext)

// ComputeFunc is the deferred execution callable for a compute pass.
type ComputeFunc func(*ComputeContext)

// TransferFunc is the deferred execution callable for a transfer pass.
type TransferFunc func(*TransferContext)

// passEntry is the builder-side record of a single declared pass
// (spec §3's "Pass entry").
type passEntry struct {
	name           string
	kind           PassKind
	asyncPreferred bool
	accesses       []accessRecord
	deps           []string
	declIndex      int

	// exec holds one of GraphicsFunc, ComputeFunc or TransferFunc,
	// matching kind. It is type-asserted by the executor immediately
	// before invocation (spec §4.4's "type-erased callbacks").
	exec any
}

// TaskBuilder records typed resource accesses and ordering
// constraints for a single pass. A TaskBuilder is handed to the
// callback passed to AddGraphicsPass/AddComputePass/AddTransferPass;
// calls made on it after that callback returns still record into the
// same pass.
type TaskBuilder struct {
	b    *Builder
	pass *passEntry
}

// resourceOf returns the resourceEntry backing h, panicking if the
// handle was not declared on this builder — the same contract the
// teacher applies to out-of-range indices into its internal slices
// (see e.g. engine/mesh/storage.go), since this is a programmer error
// at build time, not a runtime/recoverable condition.
func (b *Builder) resourceOf(h Handle) *resourceEntry {
	if h.id >= uint64(b.resources.Len()) || !b.resources.Live(int(h.id)) {
		panic("framegraph: handle not declared on this builder")
	}
	return b.resources.Get(int(h.id))
}

func resolveAccess(handleType HandleType, kind accessKind, opts []AccessOption) accessRecord {
	a := accessRecord{kind: kind, stages: device.SAll, layout: device.LUndefined}
	switch {
	case handleType == HBuffer:
		// Layout stays LUndefined; access defaults are resolved below
		// once stages/layout overrides (if any) are applied, since a
		// caller may still override AccessMask explicitly.
	default:
		if kind == accessWrite {
			a.layout = device.LCommon
		} else {
			a.layout = device.LShaderRead
		}
	}
	for _, opt := range opts {
		opt(&a)
	}
	if handleType == HBuffer {
		a.layout = device.LUndefined
	}
	if a.access == device.ANone {
		if handleType == HBuffer {
			if kind == accessRead {
				a.access = device.AVertexBufRead | device.AIndexBufRead | device.AShaderRead | device.ACopyRead | device.AAnyRead
			} else {
				a.access = device.AShaderWrite | device.ACopyWrite | device.AAnyWrite
			}
		} else {
			a.access = accessForLayout(a.layout)
		}
	}
	return a
}

// accessForLayout returns the memory access mask implied by an image
// layout, used when a read/write declaration supplies a layout but no
// explicit access mask.
func accessForLayout(l device.Layout) device.Access {
	switch l {
	case device.LColorTarget:
		return device.AColorRead | device.AColorWrite
	case device.LDSTarget:
		return device.ADSRead | device.ADSWrite
	case device.LDSRead:
		return device.ADSRead
	case device.LShaderRead:
		return device.AShaderRead
	case device.LCopySrc:
		return device.ACopyRead
	case device.LCopyDst:
		return device.ACopyWrite
	case device.LResolveSrc:
		return device.AResolveRead
	case device.LResolveDst:
		return device.AResolveWrite
	case device.LPresent:
		return device.ANone
	default:
		return device.AAnyRead | device.AAnyWrite
	}
}

// Read declares a read access to h.
func (t *TaskBuilder) Read(h Handle, opts ...AccessOption) Handle {
	re := t.b.resourceOf(h)
	a := resolveAccess(re.handle.typ, accessRead, opts)
	a.handle = h
	t.pass.accesses = append(t.pass.accesses, a)
	return h
}

// Write declares a write access to h. It returns a new Handle with the
// version bumped, which subsequent accesses must use to observe the
// write (spec §3's read-after-write disambiguation).
func (t *TaskBuilder) Write(h Handle, opts ...AccessOption) Handle {
	re := t.b.resourceOf(h)
	nh := h.nextVersion()
	re.handle = nh
	a := resolveAccess(re.handle.typ, accessWrite, opts)
	a.handle = nh
	t.pass.accesses = append(t.pass.accesses, a)
	return nh
}

// ReadWrite declares a read-write access to h: a read of the
// pre-write value followed by a write. It emits both an
// accessRead and an accessWrite record and returns the post-write
// Handle.
func (t *TaskBuilder) ReadWrite(h Handle, opts ...AccessOption) Handle {
	re := t.b.resourceOf(h)
	ra := resolveAccess(re.handle.typ, accessRead, opts)
	ra.handle = h
	t.pass.accesses = append(t.pass.accesses, ra)
	nh := h.nextVersion()
	re.handle = nh
	wa := resolveAccess(re.handle.typ, accessWrite, opts)
	wa.handle = nh
	t.pass.accesses = append(t.pass.accesses, wa)
	return nh
}

// DependsOn adds an explicit ordering edge from the named pass to the
// pass currently being built, independent of any resource access. The
// name is resolved against the whole builder at Compile time, so it
// may name a pass declared earlier or later in the same builder; if
// more than one pass shares the name, the last one declared wins. Two
// passes that DependsOn each other form a cycle and fail Compile with
// ErrCycle.
func (t *TaskBuilder) DependsOn(passName string) {
	t.pass.deps = append(t.pass.deps, passName)
}

// PreferAsync marks the pass as eligible for scheduling on a
// dedicated queue of a compatible family, rather than forcing it onto
// the graphics queue (spec §4.2(d)).
func (t *TaskBuilder) PreferAsync() {
	t.pass.asyncPreferred = true
}
