// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package render implements a Vulkan render-graph executor: passes declare
// how they consume attachments, and the renderer derives image layouts,
// load/store operations, framebuffers and inter-pass barriers from those
// declarations, recording and submitting batched work across a bounded ring
// of in-flight virtual frames.
//
// # Structure
//
// A [Renderer] owns its attachments, passes, virtual frames, a
// content-addressed cache of GPU state objects and a block-allocated
// descriptor pool. [Pass] values form a DAG (parents must exist at
// construction, so the graph is acyclic by construction) and consume
// attachments by index. [Dependency] objects carry explicit
// synchronization between passes, queues and submissions.
//
// The per-frame control flow is: [Renderer.Acquire] waits on the frame's
// fences, resets its command pools, acquires swapchain images and rebuilds
// whatever a resize or reformat invalidated; [Frame.Submit] records all
// passes in submission order, submits to the graphics and compute queues
// and presents every swapchain in one batched call.
//
// # Concurrency
//
// A renderer is not safe for concurrent mutation; every thread touching it
// must be its sole owner. Dependency objects are thread-safe. The object
// cache and descriptor pool serve concurrent readers; their mutable tiers
// promote to lock-free immutable tiers at end-of-frame flushes.
package render
