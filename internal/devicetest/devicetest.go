// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package devicetest implements an in-memory device.Driver with no
// real GPU behind it, for exercising package framegraph in tests. The
// corpus this module descends from only ever backed device.Driver
// with cgo bindings to a real Vulkan implementation (driver/vk); this
// package fills the role driver/common_test.go plays against that real
// backend, minus the GPU.
//
// Submission is synchronous: WorkQueue.Submit checks every timeline
// wait, then applies every timeline signal and the fence before
// returning, so tests never need to poll. Commands are logged as they
// are recorded into a CmdList, not at submission.
package devicetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gviegas/framegraph/device"
)

func init() {
	device.Register(&Driver{})
}

// Driver is the devicetest device.Driver. The zero value is ready to
// use.
type Driver struct {
	mu  sync.Mutex
	dev *Device
}

// Open implements device.Driver.
func (d *Driver) Open(cfg device.QueueConfig) (device.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		return d.dev, nil
	}
	dev := &Device{drv: d, cfg: cfg}
	for i := 0; i < cfg.Graphics; i++ {
		dev.graphics = append(dev.graphics, &WorkQueue{family: device.QGraphics, index: i})
	}
	for i := 0; i < cfg.Compute; i++ {
		dev.compute = append(dev.compute, &WorkQueue{family: device.QCompute, index: i})
	}
	for i := 0; i < cfg.Transfer; i++ {
		dev.transfer = append(dev.transfer, &WorkQueue{family: device.QTransfer, index: i})
	}
	d.dev = dev
	return dev, nil
}

// Name implements device.Driver.
func (d *Driver) Name() string { return "devicetest" }

// Close implements device.Driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dev = nil
}

// New opens a fresh devicetest Device directly, without going through
// the device.Drivers() registry. It is the usual entry point for
// tests.
func New(cfg device.QueueConfig) *Device {
	dev, _ := (&Driver{}).Open(cfg)
	return dev.(*Device)
}

// Device is the devicetest device.Device.
type Device struct {
	drv *Driver
	cfg device.QueueConfig

	graphics, compute, transfer []device.WorkQueue
}

// Driver implements device.Device.
func (d *Device) Driver() device.Driver { return d.drv }

// Queues implements device.Device.
func (d *Device) Queues(family device.QueueFamily) []device.WorkQueue {
	switch family {
	case device.QGraphics:
		return d.graphics
	case device.QCompute:
		return d.compute
	case device.QTransfer:
		return d.transfer
	default:
		return nil
	}
}

func (d *Device) NewRenderPass(att []device.Attachment, sub []device.Subpass) (device.RenderPass, error) {
	return &renderPass{}, nil
}

func (d *Device) NewShaderCode(data []byte) (device.ShaderCode, error) { return &destroyable{}, nil }

func (d *Device) NewDescHeap(ds []device.Descriptor) (device.DescHeap, error) {
	return &descHeap{}, nil
}

func (d *Device) NewDescTable(dh []device.DescHeap) (device.DescTable, error) {
	return &destroyable{}, nil
}

func (d *Device) NewPipeline(state any) (device.Pipeline, error) { return &destroyable{}, nil }

func (d *Device) NewBuffer(size int64, visible bool, usg device.Usage) (device.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("devicetest: invalid buffer size %d", size)
	}
	buf := &Buffer{visible: visible, usage: usg}
	if visible {
		buf.data = make([]byte, size)
	} else {
		buf.size = size
	}
	return buf, nil
}

func (d *Device) NewImage(pf device.PixelFmt, size device.Dim3D, layers, levels, samples int, usg device.Usage) (device.Image, error) {
	return &Image{format: pf, size: size, layers: layers, levels: levels, samples: samples, usage: usg}, nil
}

func (d *Device) NewSampler(spln *device.Sampling) (device.Sampler, error) { return &destroyable{}, nil }

func (d *Device) NewBinarySemaphore() (device.BinarySemaphore, error) { return &destroyable{}, nil }

func (d *Device) NewTimelineSemaphore(initValue uint64) (device.TimelineSemaphore, error) {
	return &TimelineSemaphore{value: initValue}, nil
}

func (d *Device) NewFence(signalled bool) (device.Fence, error) {
	return &Fence{signalled: signalled}, nil
}

func (d *Device) NewSurface(win device.Window, imageCount int) (device.Surface, error) {
	if imageCount <= 0 {
		imageCount = 2
	}
	s := &Surface{win: win, imageCount: imageCount}
	for i := 0; i < imageCount; i++ {
		s.images = append(s.images, &Image{format: device.RGBA8un, size: device.Dim3D{Width: 1, Height: 1, Depth: 1}, layers: 1, levels: 1, samples: 1, usage: device.URenderTarget})
	}
	return s, nil
}

func (d *Device) Limits() device.Limits {
	return device.Limits{
		MaxImage2D: 8192, MaxLayers: 2048,
		MaxDescHeaps: 16, MaxDBuffer: 16, MaxDImage: 16, MaxDConstant: 16, MaxDTexture: 16, MaxDSampler: 16,
		MaxDBufferRange: 1 << 28, MaxDConstantRange: 1 << 16,
		MaxColorTargets: 8, MaxFBSize: [2]int{8192, 8192}, MaxFBLayers: 2048, MaxPointSize: 64, MaxViewports: 16,
		MaxVertexIn: 32, MaxFragmentIn: 32,
		MaxDispatch: [3]int{65535, 65535, 65535},
	}
}

// destroyable is a no-op implementation of Destroy, embedded by the
// fake resource types whose interface requires nothing else.
type destroyable struct{}

func (*destroyable) Destroy() {}

type renderPass struct{ destroyable }

func (*renderPass) NewFB(iv []device.ImageView, width, height, layers int) (device.Framebuf, error) {
	return &destroyable{}, nil
}

type descHeap struct {
	destroyable
	n int
}

func (h *descHeap) New(n int) error          { h.n = n; return nil }
func (h *descHeap) SetBuffer(cpy, nr, start int, buf []device.Buffer, off, size []int64) {}
func (h *descHeap) SetImage(cpy, nr, start int, iv []device.ImageView)                   {}
func (h *descHeap) SetSampler(cpy, nr, start int, splr []device.Sampler)                 {}
func (h *descHeap) Count() int                                                           { return h.n }

// Buffer is a fake buffer. A host-visible one is backed by a plain
// byte slice; a non-visible one keeps only its size.
type Buffer struct {
	destroyable
	visible bool
	usage   device.Usage
	data    []byte
	size    int64
}

func (b *Buffer) Visible() bool  { return b.visible }
func (b *Buffer) Bytes() []byte  { return b.data }
func (b *Buffer) Cap() int64 {
	if b.visible {
		return int64(len(b.data))
	}
	return b.size
}

// Image is a fake image carrying only its creation parameters.
type Image struct {
	destroyable
	format  device.PixelFmt
	size    device.Dim3D
	layers  int
	levels  int
	samples int
	usage   device.Usage
}

func (img *Image) NewView(typ device.ViewType, layer, layers, level, levels int) (device.ImageView, error) {
	return &destroyable{}, nil
}

// TimelineSemaphore is a fake timeline semaphore. Since Submit applies
// signals synchronously, Wait never actually blocks: it either already
// holds the requested value or reports a wait on a value nothing in
// the test ever signalled.
type TimelineSemaphore struct {
	destroyable
	value uint64
}

func (s *TimelineSemaphore) Value() (uint64, error) { return s.value, nil }

func (s *TimelineSemaphore) Wait(value uint64, timeoutNS int64) error {
	if s.value < value {
		return fmt.Errorf("devicetest: timeline semaphore wait for %d, have %d", value, s.value)
	}
	return nil
}

// Fence is a fake fence, signalled synchronously by Submit.
type Fence struct {
	destroyable
	signalled bool
}

func (f *Fence) Wait(timeoutNS int64) error {
	if !f.signalled {
		return errors.New("devicetest: fence never signalled")
	}
	return nil
}

func (f *Fence) Reset() error {
	f.signalled = false
	return nil
}

func (f *Fence) Signalled() (bool, error) { return f.signalled, nil }

// WorkQueue is a fake work queue. Submit is synchronous: it checks
// every wait, then applies every signal and the fence immediately.
type WorkQueue struct {
	family device.QueueFamily
	index  int
}

func (q *WorkQueue) Family() device.QueueFamily { return q.family }
func (q *WorkQueue) Index() int                 { return q.index }

func (q *WorkQueue) NewCmdList() (device.CmdList, error) { return &CmdList{}, nil }

func (q *WorkQueue) Submit(info device.SubmitInfo) error {
	for _, w := range info.Waits {
		if ts, ok := w.Sem.(*TimelineSemaphore); ok {
			if err := ts.Wait(w.Value, 0); err != nil {
				return err
			}
		}
	}
	for _, s := range info.Signals {
		if ts, ok := s.Sem.(*TimelineSemaphore); ok {
			if s.Value > ts.value {
				ts.value = s.Value
			}
		}
	}
	if info.Fence != nil {
		info.Fence.(*Fence).signalled = true
	}
	return nil
}

// CmdList is a fake command list. It records the name of every method
// called on it, in order, so tests can assert on the recorded
// sequence without a real GPU to observe.
type CmdList struct {
	Log []string
}

func (c *CmdList) Destroy() {}

func (c *CmdList) Begin() error { c.Log = append(c.Log, "Begin"); return nil }

func (c *CmdList) BeginPass(pass device.RenderPass, fb device.Framebuf, clear []device.ClearValue) {
	c.Log = append(c.Log, "BeginPass")
}
func (c *CmdList) NextSubpass() { c.Log = append(c.Log, "NextSubpass") }
func (c *CmdList) EndPass()     { c.Log = append(c.Log, "EndPass") }
func (c *CmdList) BeginWork()   { c.Log = append(c.Log, "BeginWork") }
func (c *CmdList) EndWork()     { c.Log = append(c.Log, "EndWork") }

func (c *CmdList) SetPipeline(pl device.Pipeline)                { c.Log = append(c.Log, "SetPipeline") }
func (c *CmdList) SetViewport(vp []device.Viewport)              { c.Log = append(c.Log, "SetViewport") }
func (c *CmdList) SetScissor(sciss []device.Scissor)             { c.Log = append(c.Log, "SetScissor") }
func (c *CmdList) SetBlendColor(r, g, b, a float32)              { c.Log = append(c.Log, "SetBlendColor") }
func (c *CmdList) SetStencilRef(value uint32)                    { c.Log = append(c.Log, "SetStencilRef") }
func (c *CmdList) SetVertexBuf(start int, buf []device.Buffer, off []int64) {
	c.Log = append(c.Log, "SetVertexBuf")
}
func (c *CmdList) SetIndexBuf(format device.IndexFmt, buf device.Buffer, off int64) {
	c.Log = append(c.Log, "SetIndexBuf")
}
func (c *CmdList) SetDescTableGraph(table device.DescTable, start int, heapCopy []int) {
	c.Log = append(c.Log, "SetDescTableGraph")
}
func (c *CmdList) SetDescTableComp(table device.DescTable, start int, heapCopy []int) {
	c.Log = append(c.Log, "SetDescTableComp")
}
func (c *CmdList) PushDescriptors(stages device.ShaderStage, nr int, data []byte) {
	c.Log = append(c.Log, "PushDescriptors")
}
func (c *CmdList) PushConstants(stages device.ShaderStage, off int, data []byte) {
	c.Log = append(c.Log, "PushConstants")
}
func (c *CmdList) Draw(vertCount, instCount, baseVert, baseInst int) {
	c.Log = append(c.Log, "Draw")
}
func (c *CmdList) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	c.Log = append(c.Log, "DrawIndexed")
}
func (c *CmdList) DrawIndirect(buf device.Buffer, off int64, drawCount int, stride int) {
	c.Log = append(c.Log, "DrawIndirect")
}
func (c *CmdList) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	c.Log = append(c.Log, "Dispatch")
}
func (c *CmdList) ClearColor(iv device.ImageView, layout device.Layout, color [4]float32) {
	c.Log = append(c.Log, "ClearColor")
}
func (c *CmdList) CopyBuffer(param *device.BufferCopy) { c.Log = append(c.Log, "CopyBuffer") }
func (c *CmdList) CopyImage(param *device.ImageCopy)   { c.Log = append(c.Log, "CopyImage") }
func (c *CmdList) CopyBufToImg(param *device.BufImgCopy) {
	c.Log = append(c.Log, "CopyBufToImg")
}
func (c *CmdList) CopyImgToBuf(param *device.BufImgCopy) {
	c.Log = append(c.Log, "CopyImgToBuf")
}
func (c *CmdList) Fill(buf device.Buffer, off int64, value byte, size int64) {
	c.Log = append(c.Log, "Fill")
}
func (c *CmdList) Blit(param *device.BlitParam) { c.Log = append(c.Log, "Blit") }
func (c *CmdList) Barrier(b []device.Barrier)   { c.Log = append(c.Log, "Barrier") }
func (c *CmdList) Transition(t []device.ImageBarrier) {
	c.Log = append(c.Log, fmt.Sprintf("Transition(%d)", len(t)))
}
func (c *CmdList) BufferTransition(t []device.BufferBarrier) {
	c.Log = append(c.Log, fmt.Sprintf("BufferTransition(%d)", len(t)))
}

func (c *CmdList) End() error { c.Log = append(c.Log, "End"); return nil }

func (c *CmdList) Reset() error { c.Log = nil; return nil }

// Window is a fake window with directly settable visibility state, for
// exercising the minimized/invisible skip path of framegraph.Executor.
type Window struct {
	VisibleState   bool
	MinimizedState bool
}

func (w *Window) Visible() bool   { return w.VisibleState }
func (w *Window) Minimized() bool { return w.MinimizedState }

// Surface is a fake presentation surface. OutOfDate can be set by a
// test to force the next AcquireNext to return device.ErrOutOfDate.
type Surface struct {
	win        device.Window
	imageCount int
	images     []*Image
	next       int

	OutOfDate bool
}

func (s *Surface) Destroy() {}

func (s *Surface) AcquireNext() (device.SwapchainImage, device.BinarySemaphore, device.BinarySemaphore, error) {
	if s.OutOfDate {
		s.OutOfDate = false
		return device.SwapchainImage{}, nil, nil, device.ErrOutOfDate
	}
	idx := s.next
	s.next = (s.next + 1) % len(s.images)
	view, _ := s.images[idx].NewView(device.IView2D, 0, 1, 0, 1)
	return device.SwapchainImage{View: view, Index: idx}, &destroyable{}, &destroyable{}, nil
}

func (s *Surface) Present(index int, waitSem device.BinarySemaphore) (device.Outcome, error) {
	return device.OutcomeOK, nil
}

func (s *Surface) Recreate() error { return nil }

func (s *Surface) Format() device.PixelFmt { return device.RGBA8un }

func (s *Surface) ImageCount() int { return s.imageCount }

func (s *Surface) Window() device.Window { return s.win }
