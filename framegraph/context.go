// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import "github.com/gviegas/framegraph/device"

// liveResource is the Executor-side counterpart of a resourceEntry:
// the concrete device objects backing one resource, refreshed each
// time a per-frame resource rotates to its next slot.
type liveResource struct {
	entry *resourceEntry

	buf   device.Buffer
	img   device.Image
	iview device.ImageView
	surf  device.Surface

	frameOff int64 // current frame's byte offset into buf, for per-frame buffers
}

// execContext carries the state common to every pass kind: the
// command list the pass records into, and resolved access to the
// resources it declared.
type execContext struct {
	ex       *Executor
	cmd      device.CmdList
	family   device.QueueFamily
	frame    int
	passName string
}

func (c *execContext) resource(h Handle) *liveResource {
	lr := c.ex.live[h.id]
	if lr == nil {
		panic("framegraph: pass " + c.passName + " accessed an undeclared handle")
	}
	return lr
}

// Buffer resolves h to the device buffer it names. For a per-frame
// buffer, it returns the whole backing buffer shared by every frame
// slot; the current frame's slice starts at BufferOffset(h).
func (c *execContext) Buffer(h Handle) device.Buffer { return c.resource(h).buf }

// BufferOffset returns the byte offset, within Buffer(h), that the
// current frame's slice of a per-frame buffer starts at. It is zero
// for buffers that are not per-frame.
func (c *execContext) BufferOffset(h Handle) int64 { return c.resource(h).frameOff }

// Image resolves h to the device image it names.
func (c *execContext) Image(h Handle) device.Image { return c.resource(h).img }

// ImageView resolves h to a full-resource view of the device image it
// names, or of the currently acquired swapchain image for a render
// surface handle.
func (c *execContext) ImageView(h Handle) device.ImageView { return c.resource(h).iview }

// QueueFamily reports which queue family the pass was scheduled on.
func (c *execContext) QueueFamily() device.QueueFamily { return c.family }

// FrameIndex reports the current frame-in-flight slot, in
// [0, framesInFlight).
func (c *execContext) FrameIndex() int { return c.frame }

// PushDescriptors pushes inline descriptor data without going through
// a DescHeap/DescTable.
func (c *execContext) PushDescriptors(stages device.ShaderStage, nr int, data []byte) {
	c.cmd.PushDescriptors(stages, nr, data)
}

// PushConstants pushes inline constant data visible to stages.
func (c *execContext) PushConstants(stages device.ShaderStage, off int, data []byte) {
	c.cmd.PushConstants(stages, off, data)
}

// GraphicsContext is passed to a graphics pass's execution callable.
// It exposes only the render-pass-scoped subset of device.CmdList a
// graphics pass needs (spec §4.4); a compute or transfer pass has no
// way to reach Draw/Dispatch/copy commands that don't belong to it.
type GraphicsContext struct {
	execContext
}

// BeginPass begins the first subpass of pass, rendering into fb.
func (c *GraphicsContext) BeginPass(pass device.RenderPass, fb device.Framebuf, clear []device.ClearValue) {
	c.cmd.BeginPass(pass, fb, clear)
}

// NextSubpass ends the current subpass and begins the next one.
func (c *GraphicsContext) NextSubpass() { c.cmd.NextSubpass() }

// EndPass ends the current render pass.
func (c *GraphicsContext) EndPass() { c.cmd.EndPass() }

// SetPipeline sets the graphics pipeline, including its rasterization
// state (fill/cull mode is baked into the pipeline, not set per draw).
func (c *GraphicsContext) SetPipeline(pl device.Pipeline) { c.cmd.SetPipeline(pl) }

// SetViewport sets the bounds of one or more viewports.
func (c *GraphicsContext) SetViewport(vp []device.Viewport) { c.cmd.SetViewport(vp) }

// SetScissor sets the rectangles of one or more viewport scissors.
func (c *GraphicsContext) SetScissor(sciss []device.Scissor) { c.cmd.SetScissor(sciss) }

// SetVertexBuf binds one or more vertex buffers, applying each
// handle's current per-frame offset on top of off.
func (c *GraphicsContext) SetVertexBuf(start int, h []Handle, off []int64) {
	bufs := make([]device.Buffer, len(h))
	offs := make([]int64, len(h))
	for i, hh := range h {
		bufs[i] = c.Buffer(hh)
		offs[i] = c.BufferOffset(hh) + off[i]
	}
	c.cmd.SetVertexBuf(start, bufs, offs)
}

// SetIndexBuf binds the index buffer, applying h's current per-frame
// offset on top of off.
func (c *GraphicsContext) SetIndexBuf(format device.IndexFmt, h Handle, off int64) {
	c.cmd.SetIndexBuf(format, c.Buffer(h), c.BufferOffset(h)+off)
}

// BindDescriptors sets a descriptor table range for the graphics
// pipeline binding point.
func (c *GraphicsContext) BindDescriptors(table device.DescTable, start int, heapCopy []int) {
	c.cmd.SetDescTableGraph(table, start, heapCopy)
}

// Draw draws primitives.
func (c *GraphicsContext) Draw(vertCount, instCount, baseVert, baseInst int) {
	c.cmd.Draw(vertCount, instCount, baseVert, baseInst)
}

// DrawIndexed draws indexed primitives.
func (c *GraphicsContext) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	c.cmd.DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst)
}

// DrawIndirect draws primitives using parameters sourced from h,
// applying h's current per-frame offset on top of off.
func (c *GraphicsContext) DrawIndirect(h Handle, off int64, drawCount, stride int) {
	c.cmd.DrawIndirect(c.Buffer(h), c.BufferOffset(h)+off, drawCount, stride)
}

// ComputeContext is passed to a compute pass's execution callable. It
// exposes only pipeline binding and dispatch (spec §4.4).
type ComputeContext struct {
	execContext
}

// BeginWork begins compute work.
func (c *ComputeContext) BeginWork() { c.cmd.BeginWork() }

// EndWork ends the current compute work.
func (c *ComputeContext) EndWork() { c.cmd.EndWork() }

// SetPipeline sets the compute pipeline.
func (c *ComputeContext) SetPipeline(pl device.Pipeline) { c.cmd.SetPipeline(pl) }

// BindDescriptors sets a descriptor table range for the compute
// pipeline binding point.
func (c *ComputeContext) BindDescriptors(table device.DescTable, start int, heapCopy []int) {
	c.cmd.SetDescTableComp(table, start, heapCopy)
}

// Dispatch dispatches compute thread groups.
func (c *ComputeContext) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	c.cmd.Dispatch(grpCountX, grpCountY, grpCountZ)
}

// TransferContext is passed to a transfer pass's execution callable.
// It exposes only copy/fill/clear/blit commands (spec §4.4); a
// transfer pass cannot bind a pipeline or issue draws/dispatches.
type TransferContext struct {
	execContext
}

// ClearColor clears a color image/surface view to a constant value.
func (c *TransferContext) ClearColor(iv device.ImageView, layout device.Layout, color [4]float32) {
	c.cmd.ClearColor(iv, layout, color)
}

// CopyBufferToBuffer copies size bytes from from to to, applying each
// handle's current per-frame offset on top of its respective off.
func (c *TransferContext) CopyBufferToBuffer(from Handle, fromOff int64, to Handle, toOff int64, size int64) {
	c.cmd.CopyBuffer(&device.BufferCopy{
		From:    c.Buffer(from),
		FromOff: c.BufferOffset(from) + fromOff,
		To:      c.Buffer(to),
		ToOff:   c.BufferOffset(to) + toOff,
		Size:    size,
	})
}

// FillBuffer fills a range of h with copies of value, applying h's
// current per-frame offset on top of off.
func (c *TransferContext) FillBuffer(h Handle, off int64, value byte, size int64) {
	c.cmd.Fill(c.Buffer(h), c.BufferOffset(h)+off, value, size)
}

// Blit copies and optionally scales/filters image data between two
// image views, or between an image view and a surface image (find the
// views themselves through ImageView).
func (c *TransferContext) Blit(param *device.BlitParam) { c.cmd.Blit(param) }
