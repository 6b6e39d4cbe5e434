// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// Window is the swapchain collaborator a window attachment binds to.
// The wsi package provides the GLFW-backed implementation; anything exposing
// a VkSwapchainKHR can satisfy it.
//
// A window can be attached to at most one attachment index of one renderer
// at a time; the renderer claims it with TryLock.
type Window interface {
	// Acquire acquires the next swapchain image, signalling available when
	// it is ready, recreating the swapchain first if a previous operation
	// required it. The returned flags report what was recreated.
	Acquire(available vk.Semaphore) (image uint32, flags types.RecreateFlags, err error)

	// Swapchain returns the current swapchain handle for presentation.
	Swapchain() vk.Swapchain

	// PresentResult folds one vkQueuePresentKHR result for this window
	// into its state; returned flags are applied before the next acquire.
	PresentResult(result vk.Result) types.RecreateFlags

	// PurgeStale destroys retired swapchains whose images are no longer
	// referenced by any in-flight frame.
	PurgeStale()

	// TryLock claims the window for a single attachment; Unlock releases.
	TryLock() bool
	Unlock()

	// Format returns the swapchain image format.
	Format() vk.Format
	// Extent returns the current swapchain extent.
	Extent() (width, height uint32)
	// Images returns the current swapchain images.
	Images() []vk.Image
}
