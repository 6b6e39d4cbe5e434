// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"errors"

	vk "github.com/vulkan-go/vulkan"
)

// Common renderer errors. Frame recording and submission report failures
// through these; a failed frame is abandoned, subsequent acquires still
// succeed but submit nothing useful.
var (
	// ErrOutOfMemory indicates an allocation returned null; partial inserts
	// are unwound before it is returned.
	ErrOutOfMemory = errors.New("render: out of memory")

	// ErrDeviceLost indicates the GPU device has been lost.
	// The device cannot be recovered; destroy the renderer.
	ErrDeviceLost = errors.New("render: device lost")

	// ErrQueueSubmitFailed indicates vkQueueSubmit failed.
	// The current frame is abandoned; destroy the renderer.
	ErrQueueSubmitFailed = errors.New("render: queue submission failed")

	// ErrCacheCreate indicates Vulkan object creation failed inside the
	// cache. The lookup returns a nil element; the caller decides whether
	// the missing entry is fatal.
	ErrCacheCreate = errors.New("render: cached object creation failed")

	// ErrIncompatible indicates pipeline-cache blob validation failed.
	// The load is skipped; not fatal.
	ErrIncompatible = errors.New("render: pipeline cache incompatible")

	// ErrGraphInvalid indicates user-visible misuse of the render graph:
	// missing windows, mismatched renderer parents, out-of-range attachment
	// indices. Rejected at mutation time.
	ErrGraphInvalid = errors.New("render: invalid graph mutation")

	// ErrSkip marks the transient non-error case of a zero-extent
	// framebuffer (e.g. minimized window). Logged at debug level only.
	ErrSkip = errors.New("render: pass skipped")

	// ErrSamplerLimit indicates the device's sampler allocation limit
	// has been reached.
	ErrSamplerLimit = errors.New("render: sampler allocation limit reached")

	// ErrDepPending indicates a dependency object still holds pending
	// signals and cannot be destroyed.
	ErrDepPending = errors.New("render: dependency object has pending signals")
)

// vkError wraps a non-success vk.Result with the operation that produced it.
type vkError struct {
	code vk.Result
	op   string
}

func (e *vkError) Error() string {
	return "render: " + e.op + " failed: " + vkResultString(e.code)
}

// Unwrap maps fatal result codes onto the package sentinels so callers can
// test with errors.Is.
func (e *vkError) Unwrap() error {
	switch e.code {
	case vk.ErrorDeviceLost:
		return ErrDeviceLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return ErrOutOfMemory
	}
	return nil
}

func vkCheck(result vk.Result, op string) error {
	if result == vk.Success {
		return nil
	}
	return &vkError{code: result, op: op}
}

func vkResultString(r vk.Result) string {
	switch r {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	default:
		return "VK_ERROR_UNKNOWN"
	}
}
