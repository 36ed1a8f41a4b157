// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import (
	"testing"

	"github.com/gviegas/framegraph/device"
	"github.com/gviegas/framegraph/internal/devicetest"
)

// cmdLog extracts the devicetest command log recorded so far on cmd,
// for assertions that don't otherwise have a way to observe what the
// Executor emitted.
func cmdLog(cmd device.CmdList) []string {
	return cmd.(*devicetest.CmdList).Log
}

// TestExecuteTriangle exercises S1: a single graphics pass writing
// directly to an imported, presentable render surface.
func TestExecuteTriangle(t *testing.T) {
	cfg := device.QueueConfig{Graphics: 1}
	dev := devicetest.New(cfg)
	win := &devicetest.Window{VisibleState: true}
	surf, err := dev.NewSurface(win, 2)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	rt := b.ImportRenderSurface("backbuffer", surf)

	var log []string
	b.AddGraphicsPass("triangle", func(tb *TaskBuilder) {
		tb.Write(rt, Layout(device.LColorTarget))
	}, func(c *GraphicsContext) {
		c.Draw(3, 1, 0, 0)
		log = cmdLog(c.cmd)
	})

	plan, err := b.Compile(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ex := NewExecutor(dev, 2)
	if err := ex.Install(plan); err != nil {
		t.Fatal(err)
	}
	defer ex.Teardown()

	if err := ex.ExecuteFrame(); err != nil {
		t.Fatal(err)
	}
	if len(log) == 0 {
		t.Fatal("triangle pass never recorded any commands")
	}
	var sawDraw bool
	for _, l := range log {
		if l == "Draw" {
			sawDraw = true
		}
	}
	if !sawDraw {
		t.Fatalf("command log = %v, want a Draw call", log)
	}
}

// TestExecuteAsyncUpload exercises S2: a transfer pass uploads into a
// buffer on a dedicated transfer queue, and a graphics pass consumes
// it, forcing a cross-queue ownership transfer and a second
// submission. The graphics pass renders into an imported surface,
// which is what keeps both passes live.
func TestExecuteAsyncUpload(t *testing.T) {
	cfg := device.QueueConfig{Graphics: 1, Transfer: 1}
	dev := devicetest.New(cfg)
	surf, err := dev.NewSurface(&devicetest.Window{VisibleState: true}, 2)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	vbuf := b.CreateBuffer("vertices", BufferDesc{Size: 1024, Usage: device.UVertexData | device.UCopyDst})
	rt := b.ImportRenderSurface("backbuffer", surf)

	var uploaded, consumed bool
	b.AddTransferPass("upload", func(tb *TaskBuilder) {
		tb.PreferAsync()
		vbuf = tb.Write(vbuf, AccessMask(device.ACopyWrite))
	}, func(c *TransferContext) {
		uploaded = true
	})

	b.AddGraphicsPass("draw", func(tb *TaskBuilder) {
		tb.Read(vbuf, AccessMask(device.AVertexBufRead))
		tb.Write(rt, Layout(device.LColorTarget))
	}, func(c *GraphicsContext) {
		consumed = true
	})

	plan, err := b.Compile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n := plan.Submissions(); n != 2 {
		t.Fatalf("Submissions() = %d, want 2 (one per queue family)", n)
	}

	ex := NewExecutor(dev, 1)
	if err := ex.Install(plan); err != nil {
		t.Fatal(err)
	}
	defer ex.Teardown()

	if err := ex.ExecuteFrame(); err != nil {
		t.Fatal(err)
	}
	if !uploaded || !consumed {
		t.Fatalf("uploaded=%v consumed=%v, want both true", uploaded, consumed)
	}
}

// TestExecuteComputeToGraphics exercises S3: an async compute pass
// writes a storage image on the dedicated compute queue, and a
// graphics pass reads it, so the image changes layout through a
// cross-queue release/acquire pair. The graphics pass renders into an
// imported surface, which is what keeps both passes live.
func TestExecuteComputeToGraphics(t *testing.T) {
	cfg := device.QueueConfig{Graphics: 1, Compute: 1}
	dev := devicetest.New(cfg)
	surf, err := dev.NewSurface(&devicetest.Window{VisibleState: true}, 2)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	rt := b.ImportRenderSurface("backbuffer", surf)
	img := b.CreateImage("ssao", ImageDesc{
		Format: device.R8un,
		Size:   device.Dim3D{Width: 256, Height: 256, Depth: 1},
		Usage:  device.UShaderWrite | device.UShaderRead,
	})

	b.AddComputePass("ssao-gen", func(tb *TaskBuilder) {
		tb.PreferAsync()
		img = tb.Write(img, Layout(device.LCommon))
	}, func(c *ComputeContext) {
		c.Dispatch(16, 16, 1)
	})

	var barriered []string
	b.AddGraphicsPass("composite", func(tb *TaskBuilder) {
		tb.Read(img, Layout(device.LShaderRead))
		tb.Write(rt, Layout(device.LColorTarget))
	}, func(c *GraphicsContext) {
		barriered = cmdLog(c.cmd)
	})

	plan, err := b.Compile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n := plan.Submissions(); n != 2 {
		t.Fatalf("Submissions() = %d, want 2 (compute queue, then graphics)", n)
	}

	ex := NewExecutor(dev, 1)
	if err := ex.Install(plan); err != nil {
		t.Fatal(err)
	}
	defer ex.Teardown()

	if err := ex.ExecuteFrame(); err != nil {
		t.Fatal(err)
	}
	var sawTransition bool
	for _, l := range barriered {
		if l == "Transition(1)" {
			sawTransition = true
		}
	}
	if !sawTransition {
		t.Fatalf("composite pass log = %v, want an acquire-side Transition(1)", barriered)
	}
}

// TestExecutePerFrameBuffer exercises S4: a per-frame uniform buffer
// rotates to a fresh byte offset every frame, cycling back once
// framesInFlight frames have elapsed. The pass renders into an
// imported surface, which is what keeps it live.
func TestExecutePerFrameBuffer(t *testing.T) {
	cfg := device.QueueConfig{Graphics: 1}
	dev := devicetest.New(cfg)
	surf, err := dev.NewSurface(&devicetest.Window{VisibleState: true}, 2)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	ubuf := b.CreatePerFrameBuffer("camera", BufferDesc{Size: 64, Usage: device.UShaderConst})
	rt := b.ImportRenderSurface("backbuffer", surf)

	var offsets []int64
	b.AddGraphicsPass("draw", func(tb *TaskBuilder) {
		tb.Read(ubuf, AccessMask(device.AShaderRead))
		tb.Write(rt, Layout(device.LColorTarget))
	}, func(c *GraphicsContext) {
		offsets = append(offsets, c.BufferOffset(ubuf))
	})

	plan, err := b.Compile(cfg)
	if err != nil {
		t.Fatal(err)
	}

	const framesInFlight = 2
	ex := NewExecutor(dev, framesInFlight)
	if err := ex.Install(plan); err != nil {
		t.Fatal(err)
	}
	defer ex.Teardown()

	for i := 0; i < framesInFlight*2; i++ {
		if err := ex.ExecuteFrame(); err != nil {
			t.Fatal(err)
		}
	}

	if len(offsets) != framesInFlight*2 {
		t.Fatalf("got %d recorded offsets, want %d", len(offsets), framesInFlight*2)
	}
	if offsets[0] != 0 {
		t.Fatalf("offsets[0] = %d, want 0", offsets[0])
	}
	if offsets[1] == offsets[0] {
		t.Fatalf("offsets[1] == offsets[0] (%d): per-frame buffer did not rotate", offsets[0])
	}
	if offsets[2] != offsets[0] {
		t.Fatalf("offsets[2] = %d, want %d (slot should repeat after framesInFlight frames)", offsets[2], offsets[0])
	}
}

// TestExecuteTwoWindowsSkipsMinimized exercises S6: a minimized
// window's render surface is skipped for the frame, and any pass whose
// only write targets it is dropped from execution, while an unrelated
// surface's pass still runs.
func TestExecuteTwoWindowsSkipsMinimized(t *testing.T) {
	cfg := device.QueueConfig{Graphics: 1}
	dev := devicetest.New(cfg)

	winA := &devicetest.Window{VisibleState: true}
	surfA, err := dev.NewSurface(winA, 2)
	if err != nil {
		t.Fatal(err)
	}
	winB := &devicetest.Window{VisibleState: true, MinimizedState: true}
	surfB, err := dev.NewSurface(winB, 2)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	rtA := b.ImportRenderSurface("window-a", surfA)
	rtB := b.ImportRenderSurface("window-b", surfB)

	var ranA, ranB bool
	b.AddGraphicsPass("draw-a", func(tb *TaskBuilder) {
		tb.Write(rtA, Layout(device.LColorTarget))
	}, func(c *GraphicsContext) { ranA = true })

	b.AddGraphicsPass("draw-b", func(tb *TaskBuilder) {
		tb.Write(rtB, Layout(device.LColorTarget))
	}, func(c *GraphicsContext) { ranB = true })

	plan, err := b.Compile(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ex := NewExecutor(dev, 1)
	if err := ex.Install(plan); err != nil {
		t.Fatal(err)
	}
	defer ex.Teardown()

	if err := ex.ExecuteFrame(); err != nil {
		t.Fatal(err)
	}
	if !ranA {
		t.Fatal("draw-a (visible window) was skipped, want it to run")
	}
	if ranB {
		t.Fatal("draw-b (minimized window) ran, want it skipped")
	}
}
