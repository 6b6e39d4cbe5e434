// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wsi

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/vkgraph/render"
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// Window binds one GLFW window to a Vulkan surface and swapchain and
// implements render.Window.
type Window struct {
	device *render.Device
	glfw   *glfw.Window

	surface vk.Surface

	// locked claims the window for a single renderer attachment.
	locked atomic.Bool

	// mu guards the swapchain state below; acquisition and recreation
	// run on the renderer thread, Extent/Images readers may not.
	mu        sync.Mutex
	swapchain vk.Swapchain
	images    []vk.Image
	format    vk.SurfaceFormat
	extent    vk.Extent2D

	recreate bool
	// stale swapchains retire here until PurgeStale.
	stale []vk.Swapchain
}

// noImage mirrors the render package's "no image acquired" sentinel.
const noImage = ^uint32(0)

// CreateWindow creates a GLFW window without a client API and wraps it.
// Must run on the main OS thread.
func CreateWindow(device *render.Device, width, height int, title string) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("wsi: could not create window: %w", err)
	}
	w, err := NewWindow(device, win)
	if err != nil {
		win.Destroy()
		return nil, err
	}
	return w, nil
}

// NewWindow wraps an existing GLFW window, creating its Vulkan surface.
func NewWindow(device *render.Device, win *glfw.Window) (*Window, error) {
	instance := device.Instance()
	surfacePtr, err := win.CreateWindowSurface(&instance, nil)
	if err != nil {
		return nil, fmt.Errorf("wsi: could not create window surface: %w", err)
	}

	w := &Window{
		device:  device,
		glfw:    win,
		surface: vk.SurfaceFromPointer(surfacePtr),
	}

	if err := w.recreateSwapchain(); err != nil {
		vk.DestroySurface(instance, w.surface, nil)
		return nil, err
	}
	return w, nil
}

// Handle returns the underlying GLFW window.
func (w *Window) Handle() *glfw.Window { return w.glfw }

// ShouldClose reports whether the user asked the window to close.
func (w *Window) ShouldClose() bool { return w.glfw.ShouldClose() }

// TryLock claims the window for one renderer attachment.
func (w *Window) TryLock() bool { return w.locked.CompareAndSwap(false, true) }

// Unlock releases the window for another attachment.
func (w *Window) Unlock() { w.locked.Store(false) }

// Format returns the swapchain image format.
func (w *Window) Format() vk.Format {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.format.Format
}

// Extent returns the current swapchain extent.
func (w *Window) Extent() (uint32, uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.extent.Width, w.extent.Height
}

// Images returns the current swapchain images.
func (w *Window) Images() []vk.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.images
}

// Swapchain returns the current swapchain handle for presentation.
func (w *Window) Swapchain() vk.Swapchain {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.swapchain
}

// Acquire acquires the next swapchain image, recreating the swapchain
// first when a previous operation required it. The availability semaphore
// is signaled when the image is ready.
func (w *Window) Acquire(available vk.Semaphore) (uint32, types.RecreateFlags, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var flags types.RecreateFlags
	if w.recreate || w.swapchain == vk.NullSwapchain {
		fl, err := w.recreateLocked()
		if err != nil {
			return noImage, fl, err
		}
		flags |= fl
	}
	if w.swapchain == vk.NullSwapchain {
		// Zero-area surface (e.g. minimized); nothing to acquire.
		return noImage, flags, nil
	}

	for attempt := 0; ; attempt++ {
		var index uint32
		result := vk.AcquireNextImage(w.device.Handle(), w.swapchain,
			^uint64(0), available, vk.NullFence, &index)

		switch result {
		case vk.Success, vk.Suboptimal:
			return index, flags, nil
		case vk.ErrorOutOfDate:
			if attempt > 0 {
				return noImage, flags, render.ErrSkip
			}
			fl, err := w.recreateLocked()
			if err != nil {
				return noImage, flags | fl, err
			}
			flags |= fl
			if w.swapchain == vk.NullSwapchain {
				return noImage, flags, nil
			}
		default:
			return noImage, flags, fmt.Errorf("wsi: vkAcquireNextImageKHR failed: %d", result)
		}
	}
}

// PresentResult folds one present result into the window's state; the
// actual recreation happens on the next acquire, after the renderer has
// stalled its frames.
func (w *Window) PresentResult(result vk.Result) types.RecreateFlags {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch result {
	case vk.ErrorOutOfDate, vk.Suboptimal:
		w.recreate = true
		return types.Recreate
	}
	return 0
}

// PurgeStale destroys retired swapchains. The renderer calls this once all
// frames that could reference their images have completed.
func (w *Window) PurgeStale() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sc := range w.stale {
		vk.DestroySwapchain(w.device.Handle(), sc, nil)
	}
	w.stale = w.stale[:0]
}

// Destroy releases the swapchain, surface and GLFW window.
// All rendering against the window must have completed.
func (w *Window) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()

	dev := w.device.Handle()
	for _, sc := range w.stale {
		vk.DestroySwapchain(dev, sc, nil)
	}
	w.stale = nil
	if w.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(dev, w.swapchain, nil)
		w.swapchain = vk.NullSwapchain
	}
	vk.DestroySurface(w.device.Instance(), w.surface, nil)
	w.glfw.Destroy()
}

// recreateSwapchain rebuilds the swapchain outside an acquire.
func (w *Window) recreateSwapchain() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.recreateLocked()
	return err
}

// recreateLocked rebuilds the swapchain, retiring the old one, and reports
// what changed. A zero-area surface leaves the window without a swapchain.
func (w *Window) recreateLocked() (types.RecreateFlags, error) {
	w.recreate = false

	physical := w.device.Physical()
	dev := w.device.Handle()

	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(
		physical, w.surface, &caps); res != vk.Success {
		return 0, fmt.Errorf("wsi: vkGetPhysicalDeviceSurfaceCapabilitiesKHR failed: %d", res)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	oldFormat := w.format
	oldExtent := w.extent

	// Pick a surface format; prefer 8-bit BGRA, else take the first.
	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(physical, w.surface, &formatCount, nil)
	if formatCount == 0 {
		return 0, fmt.Errorf("wsi: no surface formats available")
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(physical, w.surface, &formatCount, formats)

	format := formats[0]
	format.Deref()
	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm ||
			formats[i].Format == vk.FormatB8g8r8a8Srgb {
			format = formats[i]
			break
		}
	}

	// Resolve the extent; zero area means no swapchain at all.
	extent := caps.CurrentExtent
	if extent.Width == ^uint32(0) {
		fbw, fbh := w.glfw.GetFramebufferSize()
		extent = vk.Extent2D{
			Width:  clamp(uint32(fbw), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clamp(uint32(fbh), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}

	flags := types.Recreate
	if extent.Width != oldExtent.Width || extent.Height != oldExtent.Height {
		flags |= types.Resize
	}
	if format.Format != oldFormat.Format {
		flags |= types.Reformat
	}

	if extent.Width == 0 || extent.Height == 0 {
		w.retireLocked()
		w.extent = extent
		return flags, nil
	}

	// Determine the number of images; FIFO support is guaranteed by Vulkan.
	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	preTransform := caps.CurrentTransform
	if vk.SurfaceTransformFlags(caps.SupportedTransforms)&
		vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit) != 0 {
		preTransform = vk.SurfaceTransformIdentityBit
	}

	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          w.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     preTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		OldSwapchain:     w.swapchain,
	}

	var swapchain vk.Swapchain
	if res := vk.CreateSwapchain(dev, &scci, nil, &swapchain); res != vk.Success {
		return flags, fmt.Errorf("wsi: vkCreateSwapchainKHR failed: %d", res)
	}

	w.retireLocked()
	w.swapchain = swapchain
	w.format = format
	w.extent = extent

	var count uint32
	vk.GetSwapchainImages(dev, swapchain, &count, nil)
	w.images = make([]vk.Image, count)
	vk.GetSwapchainImages(dev, swapchain, &count, w.images)

	return flags, nil
}

// retireLocked moves the current swapchain to the stale list; its images
// may still be referenced by in-flight frames.
func (w *Window) retireLocked() {
	if w.swapchain != vk.NullSwapchain {
		w.stale = append(w.stale, w.swapchain)
		w.swapchain = vk.NullSwapchain
	}
	w.images = nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi != 0 && v > hi {
		return hi
	}
	return v
}
