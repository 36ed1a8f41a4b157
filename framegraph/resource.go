// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import "github.com/gviegas/framegraph/device"

// BufferDesc describes an internally-created buffer resource.
type BufferDesc struct {
	Size  int64
	Usage device.Usage
}

// ImageDesc describes an internally-created image resource.
type ImageDesc struct {
	Format  device.PixelFmt
	Size    device.Dim3D
	Layers  int
	Levels  int
	Samples int
	Usage   device.Usage
}

// resourceSource is a tagged variant: either the resource was
// imported from a pre-existing device handle, or it must be created
// by the executor from a buffer/image description.
type resourceSource struct {
	external bool

	extBuffer  device.Buffer
	extImage   device.Image
	extSurface device.Surface

	bufDesc BufferDesc
	imgDesc ImageDesc
}

// resourceEntry is the builder-side record of a single declared
// resource (spec §3's "Resource entry").
type resourceEntry struct {
	name   string
	handle Handle
	source resourceSource

	perFrame     bool
	temporal     bool
	renderTarget bool
	presentable  bool
}

// newResourceHandle allocates a fresh resource slot and returns the
// Handle identifying it, recording e into the builder's resource
// table under that id.
func (b *Builder) newResourceHandle(typ HandleType, e resourceEntry) Handle {
	id := b.resources.Alloc()
	h := Handle{id: uint64(id), version: 0, typ: typ}
	e.handle = h
	*b.resources.Get(id) = e
	return h
}

// ImportBuffer declares an externally-owned buffer. The device handle
// must already exist and must outlive the Executor that installs the
// resulting Plan.
func (b *Builder) ImportBuffer(name string, buf device.Buffer) Handle {
	return b.newResourceHandle(HBuffer, resourceEntry{
		name:   name,
		source: resourceSource{external: true, extBuffer: buf},
	})
}

// ImportImage declares an externally-owned image.
func (b *Builder) ImportImage(name string, img device.Image) Handle {
	return b.newResourceHandle(HImage, resourceEntry{
		name:   name,
		source: resourceSource{external: true, extImage: img},
	})
}

// ImportRenderSurface declares an externally-owned, presentable
// render surface backed by a swapchain.
func (b *Builder) ImportRenderSurface(name string, surf device.Surface) Handle {
	return b.newResourceHandle(HRenderSurface, resourceEntry{
		name:        name,
		source:      resourceSource{external: true, extSurface: surf},
		presentable: true,
		renderTarget: true,
	})
}

// CreateBuffer declares an internal, transient buffer created and
// destroyed by the Executor together with the Plan that references
// it.
func (b *Builder) CreateBuffer(name string, desc BufferDesc) Handle {
	return b.newResourceHandle(HBuffer, resourceEntry{
		name:   name,
		source: resourceSource{bufDesc: desc},
	})
}

// CreateImage declares an internal, transient image.
func (b *Builder) CreateImage(name string, desc ImageDesc) Handle {
	return b.newResourceHandle(HImage, resourceEntry{
		name:   name,
		source: resourceSource{imgDesc: desc},
	})
}

// CreatePerFrameBuffer declares an internal buffer whose storage is
// multiplied by the executor's frames-in-flight count and rotated
// each frame (spec §3/§5's per-frame resource).
func (b *Builder) CreatePerFrameBuffer(name string, desc BufferDesc) Handle {
	return b.newResourceHandle(HBuffer, resourceEntry{
		name:     name,
		source:   resourceSource{bufDesc: desc},
		perFrame: true,
	})
}

// CreatePerFrameImage declares an internal image multiplied by
// frames-in-flight.
func (b *Builder) CreatePerFrameImage(name string, desc ImageDesc) Handle {
	return b.newResourceHandle(HImage, resourceEntry{
		name:     name,
		source:   resourceSource{imgDesc: desc},
		perFrame: true,
	})
}

// CreateTemporalBuffer declares an internal buffer expected to live
// across frames without being recycled between them.
func (b *Builder) CreateTemporalBuffer(name string, desc BufferDesc) Handle {
	return b.newResourceHandle(HBuffer, resourceEntry{
		name:     name,
		source:   resourceSource{bufDesc: desc},
		temporal: true,
	})
}

// CreateTemporalImage declares an internal image expected to live
// across frames without being recycled between them.
func (b *Builder) CreateTemporalImage(name string, desc ImageDesc) Handle {
	return b.newResourceHandle(HImage, resourceEntry{
		name:     name,
		source:   resourceSource{imgDesc: desc},
		temporal: true,
	})
}

// CreateRenderTarget declares an internal image usable as a color or
// depth/stencil attachment.
func (b *Builder) CreateRenderTarget(name string, desc ImageDesc) Handle {
	return b.newResourceHandle(HImage, resourceEntry{
		name:         name,
		source:       resourceSource{imgDesc: desc},
		renderTarget: true,
	})
}
