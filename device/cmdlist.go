// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package device

// CmdList is the interface that defines a command list. Commands are
// recorded into a CmdList and later submitted to a WorkQueue for
// execution. Recording is split into logical blocks containing either
// rendering, compute or copy commands. The usage is as follows:
//
// First, call Begin to prepare the command list for recording. Then,
// if it succeeds:
//
// To record commands for a render pass:
//  1. call BeginPass
//  2. call Set* methods to configure rendering state
//  3. call Draw* commands
//  4. call NextSubpass (if using multiple subpasses)
//  5. repeat 2-4 as needed
//  6. call EndPass
//
// To record compute commands:
//  1. call BeginWork
//  2. call Set* methods to configure compute state
//  3. call Dispatch commands
//  4. repeat 2-3 as needed
//  5. call EndWork
//
// Copy/fill/blit commands need no Begin*/End* pair; they may be
// recorded directly between Begin and End. framegraph decides batch
// boundaries on the caller's behalf, so CmdList itself does not nest
// a separate copy scope the way the teacher driver package did.
//
// Finally, call End and, if it succeeds, submit the CmdList through a
// WorkQueue. Begin* commands must not be nested and must always be
// ended before another call to Begin* and prior to the final End call.
type CmdList interface {
	Destroyer

	// Begin prepares the command list for recording.
	Begin() error

	// BeginPass begins the first subpass of a given render pass.
	BeginPass(pass RenderPass, fb Framebuf, clear []ClearValue)

	// NextSubpass ends the current subpass and begins the next one.
	NextSubpass()

	// EndPass ends the current render pass.
	EndPass()

	// BeginWork begins compute work.
	BeginWork()

	// EndWork ends the current compute work.
	EndWork()

	// SetPipeline sets the pipeline. There is a separate binding
	// point for each type of pipeline.
	SetPipeline(pl Pipeline)

	// SetViewport sets the bounds of one or more viewports.
	SetViewport(vp []Viewport)

	// SetScissor sets the rectangles of one or more viewport
	// scissors.
	SetScissor(sciss []Scissor)

	// SetBlendColor sets the constant blend color.
	SetBlendColor(r, g, b, a float32)

	// SetStencilRef sets the stencil reference value.
	SetStencilRef(value uint32)

	// SetVertexBuf sets one or more vertex buffers.
	SetVertexBuf(start int, buf []Buffer, off []int64)

	// SetIndexBuf sets the index buffer.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// SetDescTableGraph sets a descriptor table range for graphics
	// pipelines.
	SetDescTableGraph(table DescTable, start int, heapCopy []int)

	// SetDescTableComp sets a descriptor table range for compute
	// pipelines.
	SetDescTableComp(table DescTable, start int, heapCopy []int)

	// PushDescriptors pushes inline descriptor data without going
	// through a DescHeap/DescTable.
	PushDescriptors(stages ShaderStage, nr int, data []byte)

	// PushConstants pushes inline constant data visible to stages.
	PushConstants(stages ShaderStage, off int, data []byte)

	// Draw draws primitives. It must only be called during a render
	// pass.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawIndexed draws indexed primitives. It must only be called
	// during a render pass.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)

	// DrawIndirect draws primitives using parameters sourced from buf.
	// It must only be called during a render pass.
	DrawIndirect(buf Buffer, off int64, drawCount int, stride int)

	// Dispatch dispatches compute thread groups. It must only be
	// called during compute work.
	Dispatch(grpCountX, grpCountY, grpCountZ int)

	// ClearColor clears a color image/surface view to a constant
	// value.
	ClearColor(iv ImageView, layout Layout, color [4]float32)

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// CopyImage copies data between images.
	CopyImage(param *ImageCopy)

	// CopyBufToImg copies data from a buffer to an image.
	CopyBufToImg(param *BufImgCopy)

	// CopyImgToBuf copies data from an image to a buffer.
	CopyImgToBuf(param *BufImgCopy)

	// Fill fills a buffer range with copies of a byte value. Off and
	// size must be aligned to 4 bytes.
	Fill(buf Buffer, off int64, value byte, size int64)

	// Blit copies and optionally scales/filters image data between
	// two image views, or between an image view and a surface image.
	Blit(param *BlitParam)

	// Barrier inserts a number of global barriers in the command
	// list.
	Barrier(b []Barrier)

	// Transition inserts a number of image layout transitions and/or
	// ownership transfers in the command list.
	Transition(t []ImageBarrier)

	// BufferTransition inserts a number of buffer barriers and/or
	// ownership transfers in the command list.
	BufferTransition(t []BufferBarrier)

	// End ends command recording and prepares the command list for
	// submission. Upon failure, the command list is reset.
	End() error

	// Reset discards all recorded commands from the command list.
	Reset() error
}

// BufferCopy describes the parameters of a copy command that copies
// data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// ImageCopy describes the parameters of a copy command that copies
// data from one image to another.
type ImageCopy struct {
	From      Image
	FromOff   Off3D
	FromLayer int
	FromLevel int
	To        Image
	ToOff     Off3D
	ToLayer   int
	ToLevel   int
	Size      Dim3D
	Layers    int
}

// BufImgCopy describes the parameters of a copy command that copies
// data between a buffer and an image. BufOff must be aligned to 512
// bytes. Stride[0] must be aligned to 256 bytes.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	// Stride specifies the addressing of image data in the buffer,
	// given in pixels. Stride[0] is the row length, Stride[1] is the
	// image height.
	Stride    [2]int64
	Img       Image
	ImgOff    Off3D
	Layer     int
	Level     int
	Size      Dim3D
	DepthCopy bool
}

// BlitParam describes the parameters of an image blit. To may refer
// to either an Image or the currently acquired image of a Surface, so
// it is expressed as an ImageView in both cases — callers obtain the
// current frame's surface view through framegraph's execution context
// resource lookup.
type BlitParam struct {
	From      ImageView
	FromLayout Layout
	FromOff   Off3D
	FromSize  Dim3D
	To        ImageView
	ToLayout  Layout
	ToOff     Off3D
	ToSize    Dim3D
	Filter    Filter
}
