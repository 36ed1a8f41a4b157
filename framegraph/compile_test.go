// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import (
	"errors"
	"testing"

	"github.com/gviegas/framegraph/device"
	"github.com/gviegas/framegraph/internal/devicetest"
)

func TestCompileEmptyQueueConfig(t *testing.T) {
	b := NewBuilder()
	_, err := b.Compile(QueueConfig{})
	var cerr *CompileError
	if !errors.As(err, &cerr) || cerr.Kind != ErrEmptyQueueConfig {
		t.Fatalf("Compile with empty QueueConfig: got %v, want ErrEmptyQueueConfig", err)
	}
}

// TestCompileCycle exercises S5: two passes whose DependsOn name each
// other have no valid topological order.
func TestCompileCycle(t *testing.T) {
	b := NewBuilder()
	// Imported (external) buffers are always live, regardless of
	// whether anything reads them, so both passes below stay in the
	// live set purely on their own writes and the cycle is exercised
	// independent of liveness pruning.
	bufA := b.ImportBuffer("a-buf", nil)
	bufB := b.ImportBuffer("b-buf", nil)

	b.AddTransferPass("a", func(t *TaskBuilder) {
		t.DependsOn("b")
		t.Write(bufA)
	}, func(*TransferContext) {})

	b.AddTransferPass("b", func(t *TaskBuilder) {
		t.DependsOn("a")
		t.Write(bufB)
	}, func(*TransferContext) {})

	_, err := b.Compile(QueueConfig{Transfer: 1})
	var cerr *CompileError
	if !errors.As(err, &cerr) || cerr.Kind != ErrCycle {
		t.Fatalf("Compile with mutually-dependent passes: got %v, want ErrCycle", err)
	}
}

// TestCompilePrunesDeadResources exercises spec §4.2(a): a pass that
// only writes a resource nothing ever reads, and that resource is not
// external, is pruned along with its producer pass.
func TestCompilePrunesDeadResources(t *testing.T) {
	dev := devicetest.New(device.QueueConfig{Graphics: 1})
	win := &devicetest.Window{VisibleState: true}
	surf, err := dev.NewSurface(win, 2)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	rt := b.ImportRenderSurface("backbuffer", surf)
	b.AddGraphicsPass("present", func(tb *TaskBuilder) {
		tb.Write(rt)
	}, func(*GraphicsContext) {})

	// Dead: nothing reads or imports this buffer.
	orphan := b.CreateBuffer("orphan", BufferDesc{Size: 64, Usage: device.UShaderRead})
	b.AddTransferPass("fill-orphan", func(tb *TaskBuilder) {
		tb.Write(orphan)
	}, func(*TransferContext) {})

	plan, err := b.Compile(QueueConfig{Graphics: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Only the presentable surface survives liveness pruning; the
	// orphan buffer and its unrelated pass are dropped.
	if n := plan.Resources(); n != 1 {
		t.Fatalf("Resources() = %d, want 1", n)
	}
	if n := plan.Submissions(); n != 1 {
		t.Fatalf("Submissions() = %d, want 1", n)
	}
}

// TestCompileUnknownHandlePanics confirms that accessing a handle not
// declared on the builder panics at declaration time rather than
// surfacing as a compile error, since the builder has no way to
// produce a dangling handle through its own API.
func TestCompileUnknownHandlePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for handle from a foreign builder")
		}
	}()
	b1 := NewBuilder()
	foreign := b1.CreateBuffer("foreign", BufferDesc{Size: 4})

	b2 := NewBuilder()
	b2.AddTransferPass("bad", func(tb *TaskBuilder) {
		tb.Read(foreign)
	}, func(*TransferContext) {})
}

// TestAssignFamilyGraphicsOnlyWhenNotAsync exercises spec §4.2(d): a
// compute-kind pass that does not prefer async scheduling always lands
// on the graphics family, even when dedicated compute queues exist.
func TestAssignFamilyGraphicsOnlyWhenNotAsync(t *testing.T) {
	cfg := QueueConfig{Graphics: 1, Compute: 2}
	p := &passEntry{kind: PassCompute}
	if f := assignFamily(p, cfg); f != device.QGraphics {
		t.Fatalf("assignFamily(non-async compute) = %v, want QGraphics", f)
	}
	p.asyncPreferred = true
	if f := assignFamily(p, cfg); f != device.QCompute {
		t.Fatalf("assignFamily(async compute, Compute>0) = %v, want QCompute", f)
	}
}

// TestAssignFamilyFallbackLadder exercises the async transfer pass'
// fallback: transfer queue, else compute, else graphics.
func TestAssignFamilyFallbackLadder(t *testing.T) {
	p := &passEntry{kind: PassTransfer, asyncPreferred: true}

	if f := assignFamily(p, QueueConfig{Graphics: 1, Compute: 1, Transfer: 1}); f != device.QTransfer {
		t.Fatalf("fallback ladder with Transfer>0: got %v, want QTransfer", f)
	}
	if f := assignFamily(p, QueueConfig{Graphics: 1, Compute: 1}); f != device.QCompute {
		t.Fatalf("fallback ladder with Transfer=0, Compute>0: got %v, want QCompute", f)
	}
	if f := assignFamily(p, QueueConfig{Graphics: 1}); f != device.QGraphics {
		t.Fatalf("fallback ladder with only Graphics>0: got %v, want QGraphics", f)
	}
}
