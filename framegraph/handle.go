// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package framegraph implements the frame-graph subsystem of a
// real-time rendering engine: a Builder that collects a declarative
// description of per-frame GPU work, a Compiler that turns it into an
// optimized, deterministic execution Plan, and an Executor that drives
// the Plan against a device.Device every frame.
package framegraph

import "fmt"

// HandleType identifies the kind of GPU resource a Handle refers to.
type HandleType int

// Handle kinds.
const (
	HBuffer HandleType = iota
	HImage
	HRenderSurface
)

// String implements fmt.Stringer.
func (t HandleType) String() string {
	switch t {
	case HBuffer:
		return "buffer"
	case HImage:
		return "image"
	case HRenderSurface:
		return "render_surface"
	default:
		return "invalid"
	}
}

// Handle is a typed, versioned identifier for a graph resource.
// Handle values are freely copied. The same ID with differing
// versions refers to the same underlying resource observed at
// different points in the builder's declaration order, used to
// disambiguate a read from before a write from a read after it.
type Handle struct {
	id      uint64
	version uint32
	typ     HandleType
}

// ID returns the stable identifier of the resource the handle refers
// to. It does not change across versions of the same resource.
func (h Handle) ID() uint64 { return h.id }

// Version returns the handle's version. Writes bump the version of
// the handle they produce.
func (h Handle) Version() uint32 { return h.version }

// Type returns the kind of resource the handle refers to.
func (h Handle) Type() HandleType { return h.typ }

// nextVersion returns a copy of h with the version incremented, as
// produced by a write access.
func (h Handle) nextVersion() Handle {
	h.version++
	return h
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("%s#%d@%d", h.typ, h.id, h.version)
}

// invalidHandle is the zero Handle; no valid resource ever receives
// id 0, since the builder's idpool.Pool hands out ids starting at 0 but
// the builder reserves index 0 as a sentinel by allocating a throwaway
// slot for it at construction (see NewBuilder).
var invalidHandle = Handle{}
