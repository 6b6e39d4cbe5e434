// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	vk "github.com/vulkan-go/vulkan"
)

// RecordFunc emits draw or dispatch commands for one pass into the frame's
// command buffer. For render passes it runs inside the pass's render pass
// instance; for compute passes no render pass instance is active.
type RecordFunc func(frame *Frame, cmd vk.CommandBuffer)

// Recorder is a recording callback registration bound to a renderer.
// Every recorder owns a descriptor pool subordinate, making descriptor set
// resolution during its callbacks safe alongside other recorders.
//
// Recording of frames is driven by the renderer; a recorder's callbacks run
// on the submitting thread, once per pass they are registered on, in
// submission order.
type Recorder struct {
	renderer *Renderer
	sub      *PoolSub

	// fns maps each pass to its callbacks, in registration order.
	fns   map[*Pass][]RecordFunc
	frame *Frame
}

// AddRecorder registers a new recorder with the renderer.
func (r *Renderer) AddRecorder() *Recorder {
	rec := &Recorder{
		renderer: r,
		sub:      r.pool.sub(),
		fns:      make(map[*Pass][]RecordFunc),
	}
	r.recorders = append(r.recorders, rec)
	return rec
}

// Destroy removes the recorder from its renderer, flushing its descriptor
// subordinate. Stalls all frames.
func (rec *Recorder) Destroy() {
	r := rec.renderer
	if err := r.syncFrames(); err != nil {
		return
	}
	r.pool.unsub(rec.sub)

	for i, other := range r.recorders {
		if other == rec {
			r.recorders = append(r.recorders[:i], r.recorders[i+1:]...)
			break
		}
	}
	rec.renderer = nil
}

// OnPass registers a callback to run whenever the given pass records.
func (rec *Recorder) OnPass(pass *Pass, fn RecordFunc) error {
	if pass.renderer != rec.renderer {
		Logger().Warn("recorder callbacks must target passes of the same renderer")
		return ErrGraphInvalid
	}
	rec.fns[pass] = append(rec.fns[pass], fn)
	return nil
}

// reset clears per-frame state; invoked by frame synchronization before
// command pools are reused.
func (rec *Recorder) reset() {
	rec.frame = nil
}

// record invokes the callbacks registered for the pass at the given
// submission order.
func (rec *Recorder) record(order int, cmd vk.CommandBuffer) {
	r := rec.renderer
	if order >= len(r.graph.passes) {
		return
	}
	pass := r.graph.passes[order]
	for _, fn := range rec.fns[pass] {
		fn(r.frame, cmd)
	}
}
