// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package device defines a set of interfaces encompassing common GPU
// functionality: buffers, images, pipelines, command lists, work queues
// and presentation surfaces.
//
// It is the abstraction that package framegraph programs against. It
// does not implement a concrete backend; platform-specific
// implementations register themselves with Register, in the same
// manner as the driver package this one descends from.
package device

import (
	"errors"
	"log"
	"sync"
)

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may hold external memory that is
// not managed by GC, so Destroy must be called explicitly to ensure
// such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// Device is the main interface to an underlying driver implementation.
// It is used to create resources and to obtain the work queues used to
// submit command lists for execution. A Device is obtained from a call
// to Driver.Open.
type Device interface {
	// Driver returns the Driver that owns the Device.
	Driver() Driver

	// Queues returns the work queues configured for the given family.
	// The slice is empty if the family is not supported or was not
	// requested when the Device was opened.
	Queues(family QueueFamily) []WorkQueue

	// NewRenderPass creates a new render pass.
	NewRenderPass(att []Attachment, sub []Subpass) (RenderPass, error)

	// NewShaderCode creates a new shader code.
	NewShaderCode(data []byte) (ShaderCode, error)

	// NewDescHeap creates a new descriptor heap.
	NewDescHeap(ds []Descriptor) (DescHeap, error)

	// NewDescTable creates a new descriptor table.
	NewDescTable(dh []DescHeap) (DescTable, error)

	// NewPipeline creates a new pipeline.
	// The state parameter must be a pointer to a GraphState or a
	// pointer to a CompState.
	NewPipeline(state any) (Pipeline, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new image.
	NewImage(pf PixelFmt, size Dim3D, layers, levels, samples int, usg Usage) (Image, error)

	// NewSampler creates a new sampler.
	NewSampler(spln *Sampling) (Sampler, error)

	// NewBinarySemaphore creates a new binary semaphore, used to order
	// a swapchain acquire/present against a queue submission.
	NewBinarySemaphore() (BinarySemaphore, error)

	// NewTimelineSemaphore creates a new timeline semaphore with the
	// given initial value, used for cross-queue ordering.
	NewTimelineSemaphore(initValue uint64) (TimelineSemaphore, error)

	// NewFence creates a new fence, optionally created already
	// signalled.
	NewFence(signalled bool) (Fence, error)

	// NewSurface creates a presentation surface bound to the given
	// window, requesting imageCount swapchain images.
	NewSurface(win Window, imageCount int) (Surface, error)

	// Limits returns the implementation limits. They are immutable
	// for the lifetime of the Device.
	Limits() Limits
}

// Driver is the interface that provides methods for loading and
// unloading an underlying implementation.
type Driver interface {
	// Open initializes the driver for the given queue configuration.
	// If it succeeds, further calls with the same receiver and the
	// same configuration have no effect and must return the same
	// Device instance. Callers should assume that Open is not safe
	// for parallel execution.
	Open(cfg QueueConfig) (Device, error)

	// Name returns the name of the driver. It must not cause the
	// driver to be opened.
	Name() string

	// Close deinitializes the driver. Closing a driver that is not
	// open has no effect. Callers should assume that Close is not
	// safe for parallel execution.
	Close()
}

// QueueConfig describes the number of work queues to create per
// queue family when opening a Device.
type QueueConfig struct {
	Graphics int
	Compute  int
	Transfer int
}

// Sentinel errors. These mirror the driver package's taxonomy of
// failure classes common to every backend.
var (
	ErrNotInstalled  = errors.New("device: missing required library")
	ErrNoDevice      = errors.New("device: no suitable device found")
	ErrNoHostMemory  = errors.New("device: out of host memory")
	ErrNoDeviceMemory = errors.New("device: out of device memory")
	ErrFatal         = errors.New("device: fatal error")
)

// Drivers returns the registered Drivers.
// Client code imports specific driver packages and calls this function
// from init. Drivers that do not register themselves on init are not
// considered for selection.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Register registers a Driver. Driver implementations are expected to
// call Register exactly once, from an init function. If a driver with
// the same name has already been registered, it is replaced by drv.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			log.Printf("[!] driver '%s' replaced", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
	log.Printf("driver '%s' registered", drv.Name())
}

var (
	mu      sync.Mutex
	drivers []Driver = make([]Driver, 0, 1)
)
