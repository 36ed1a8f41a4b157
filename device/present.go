// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package device

import "errors"

// Window is the minimal surface-owning window interface framegraph
// needs: enough to decide whether a presentable surface should be
// acquired this frame. It is deliberately narrower than a full
// windowing package's Window type (input/resize/title are out of
// scope here) — any window type that can answer these two questions
// satisfies it.
type Window interface {
	// Visible reports whether the window is currently mapped/shown.
	Visible() bool

	// Minimized reports whether the window is iconified. A minimized
	// window is skipped during swapchain acquire even if Visible
	// reports true.
	Minimized() bool
}

// Sentinel errors related to presentation.
var (
	// ErrCannotPresent means that the driver and/or device do not
	// support presentation.
	ErrCannotPresent = errors.New("device: presentation not supported")

	// ErrOutOfDate means a Surface's current configuration no longer
	// matches its window (e.g. after a resize) and must be recreated
	// before it can be used again. It corresponds to spec kind
	// runtime.swapchain_out_of_date and is handled by recreating the
	// surface and skipping the frame, never surfaced to the caller.
	ErrOutOfDate = errors.New("device: surface out of date")

	// ErrSurfaceLost means a Surface's window or compositor entered a
	// state from which presentation cannot recover without dropping
	// the surface entirely. It corresponds to spec kind
	// runtime.swapchain_error.
	ErrSurfaceLost = errors.New("device: surface lost")

	// ErrDeviceLost means the Device itself is unrecoverable. It
	// corresponds to spec kind runtime.device_lost.
	ErrDeviceLost = errors.New("device: device lost")
)

// SwapchainImage identifies one image of a Surface's swapchain,
// acquired for the current frame.
type SwapchainImage struct {
	View  ImageView
	Index int
}

// Outcome reports the result of a Surface.Present call.
type Outcome int

// Present outcomes.
const (
	// OutcomeOK means the image presented normally.
	OutcomeOK Outcome = iota
	// OutcomeSuboptimal means the image presented but the surface
	// should be recreated before the next acquire for best results.
	OutcomeSuboptimal
)

// Surface is the interface that defines a presentable swapchain bound
// to a Window. Acquire/present take effect only once the accompanying
// command list(s)/semaphores are submitted to a WorkQueue, mirroring
// the teacher's Swapchain contract.
type Surface interface {
	Destroyer

	// AcquireNext acquires the next writable swapchain image. It
	// returns the image, a binary semaphore that will be signalled
	// once the image is safe to write, and a binary semaphore that
	// the eventual Present call must wait on. If the surface's
	// current configuration is stale, it returns ErrOutOfDate — the
	// caller recreates the surface and skips the frame (spec §4.3
	// step 2). A hard failure returns ErrSurfaceLost;
	// framegraph.Executor then skips the surface for the current frame
	// only and does not remove it, so acquire is attempted again on
	// the next frame.
	AcquireNext() (image SwapchainImage, acquireSem BinarySemaphore, renderCompleteSem BinarySemaphore, err error)

	// Present presents the image identified by index, waiting on
	// waitSem (typically the renderCompleteSem from AcquireNext).
	// framegraph.Executor signals that semaphore directly from the
	// last submission that touches the surface in the frame; it does
	// not submit a separate timeline-to-binary fan-out.
	Present(index int, waitSem BinarySemaphore) (Outcome, error)

	// Recreate recreates the surface in response to ErrOutOfDate.
	Recreate() error

	// Format returns the pixel format of the surface's images.
	Format() PixelFmt

	// ImageCount returns the number of images in the surface's
	// swapchain.
	ImageCount() int

	// Window returns the window the surface is bound to.
	Window() Window
}
