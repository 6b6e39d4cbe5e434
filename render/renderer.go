// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"io"

	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// RendererOptions configure a renderer. Zero values get defaults.
type RendererOptions struct {
	// Frames is the number of virtual frames in flight. Default 2.
	Frames int
	// PoolFlushes is the number of frame flushes a descriptor set
	// survives unused before it is recycled. Default 64.
	PoolFlushes uint32
	// DescriptorBlockSets is the per-block descriptor set capacity.
	// Default 1000.
	DescriptorBlockSets uint32
}

// staleRes is a Vulkan handle pair enqueued for destruction once the last
// in-flight frame using it completes.
type staleRes struct {
	framebuffer vk.Framebuffer
	view        vk.ImageView
}

// Renderer owns the backing attachments, the render graph, the virtual
// frame ring, the object cache and the descriptor pool, and coordinates
// rebuilds on resize and reformat.
//
// A renderer is not safe for concurrent mutation; every thread touching it
// must be its sole owner.
type Renderer struct {
	device *Device

	cache *cache
	pool  *pool

	attachs []attach
	graph   graph

	frames    []Frame
	nextFrame int
	// frame is the currently acquired frame, nil between submit and
	// the next acquire.
	frame *Frame
	// recording blocks graph mutation while a frame is acquired.
	recording bool

	recorders []*Recorder
	techs     []*Technique

	stale []staleRes
}

// New creates a renderer with the given number of virtual frames.
func New(device *Device, opts RendererOptions) (*Renderer, error) {
	frames := opts.Frames
	if frames <= 0 {
		frames = 2
	}
	flushes := opts.PoolFlushes
	if flushes == 0 {
		flushes = 64
	}

	r := &Renderer{device: device}

	c, err := newCache(device)
	if err != nil {
		Logger().Error("could not create a new renderer", "err", err)
		return nil, err
	}
	r.cache = c
	r.pool = newPool(device, flushes, opts.DescriptorBlockSets)

	r.frames = make([]Frame, frames)
	for i := range r.frames {
		if err := r.frames[i].init(r, i); err != nil {
			Logger().Error("could not create virtual frame", "err", err)
			for j := 0; j < i; j++ {
				r.frames[j].clear(r)
			}
			r.cache.clear()
			return nil, err
		}
	}

	return r, nil
}

// Destroy forcefully submits any acquired frame, blocks until rendering is
// done, and releases every resource the renderer owns.
func (r *Renderer) Destroy() {
	if r.frame != nil {
		_ = r.frame.Submit()
	}
	r.syncFramesNoReset()

	r.graph.destroyPasses()

	for i := range r.frames {
		r.frames[i].clear(r)
	}
	r.frames = nil

	// Windows unlock for another attachment; image backings die.
	for i := range r.attachs {
		at := &r.attachs[i]
		switch at.typ {
		case attachWindow:
			at.window.Unlock()
		case attachImage:
			r.destroyAttachBacking(at)
		}
		at.typ = attachEmpty
	}

	r.purgeStale()

	for _, t := range r.techs {
		t.destroy()
	}
	r.techs = nil

	r.pool.clear()
	r.cache.clear()
}

// Device returns the device the renderer executes against.
func (r *Renderer) Device() *Device { return r.device }

// Frames returns the number of virtual frames.
func (r *Renderer) Frames() int { return len(r.frames) }

// Attach describes the image attachment at index, overwriting any previous
// description. If any consumer depends on its prior form, all frames stall
// before replacement.
func (r *Renderer) Attach(index int, desc types.Attachment) error {
	if r.recording {
		Logger().Warn("attachment edits are illegal while recording a frame")
		return ErrGraphInvalid
	}
	if index < 0 {
		return ErrGraphInvalid
	}

	r.growAttachs(index)
	at := &r.attachs[index]

	if at.typ == attachWindow {
		Logger().Warn("cannot describe a window attachment of a renderer",
			"index", index)
		return ErrGraphInvalid
	}

	if at.typ == attachImage {
		if at.desc == desc {
			return nil
		}
		// Redescribing; anything built against the old form dies.
		if err := r.syncFrames(); err != nil {
			return err
		}
		r.destroyAttachBacking(at)
		r.graph.invalidate(r)
	}

	at.typ = attachImage
	at.desc = desc
	if desc.Empty() {
		at.typ = attachEmpty
	}
	r.graph.invalidate(r)
	return nil
}

// AttachWindow binds a window to the attachment at index. Fails if the
// window is already attached elsewhere.
func (r *Renderer) AttachWindow(index int, w Window) error {
	if r.recording {
		Logger().Warn("attachment edits are illegal while recording a frame")
		return ErrGraphInvalid
	}
	if index < 0 || w == nil {
		return ErrGraphInvalid
	}

	r.growAttachs(index)
	at := &r.attachs[index]

	if at.typ == attachImage {
		Logger().Warn("cannot attach a window to an already described "+
			"attachment index of a renderer", "index", index)
		return ErrGraphInvalid
	}
	if at.typ == attachWindow && at.window == w {
		return nil
	}

	if !w.TryLock() {
		Logger().Warn("a window can only be attached to one attachment " +
			"index of one renderer at a time")
		return ErrGraphInvalid
	}

	if at.typ == attachWindow {
		// Swapping windows; wait until rendering is done.
		if err := r.syncFrames(); err != nil {
			w.Unlock()
			return err
		}
		at.window.Unlock()
	}

	at.typ = attachWindow
	at.window = w
	at.pending = 0
	r.graph.invalidate(r)
	return nil
}

// Detach empties the attachment at index: undescribed if an image,
// detached if a window. Stalls all frames before destroying resources.
func (r *Renderer) Detach(index int) {
	if r.recording {
		Logger().Warn("attachment edits are illegal while recording a frame")
		return
	}
	at := r.attachAt(index)
	if at == nil || at.typ == attachEmpty {
		return
	}

	if err := r.syncFrames(); err != nil {
		return
	}

	switch at.typ {
	case attachWindow:
		at.window.Unlock()
		at.window = nil
	case attachImage:
		r.destroyAttachBacking(at)
	}
	at.typ = attachEmpty
	at.desc = types.Attachment{}
	r.graph.invalidate(r)
}

// Attachment returns the description at index; empty if none attached.
func (r *Renderer) Attachment(index int) types.Attachment {
	at := r.attachAt(index)
	if at == nil || at.typ != attachImage {
		return types.Attachment{}
	}
	return at.desc
}

// Window returns the window at index, or nil if none attached.
func (r *Renderer) Window(index int) Window {
	at := r.attachAt(index)
	if at == nil || at.typ != attachWindow {
		return nil
	}
	return at.window
}

func (r *Renderer) growAttachs(index int) {
	for len(r.attachs) <= index {
		r.attachs = append(r.attachs, attach{typ: attachEmpty})
	}
}

// AddPass adds a render pass after the given parents in submission order.
func (r *Renderer) AddPass(parents ...*Pass) (*Pass, error) {
	if r.recording {
		Logger().Warn("graph edits are illegal while recording a frame")
		return nil, ErrGraphInvalid
	}
	return r.graph.addPass(r, PassRender, parents)
}

// AddComputePass adds an asynchronous compute pass, submitted to the
// compute queue after all render passes.
func (r *Renderer) AddComputePass(parents ...*Pass) (*Pass, error) {
	if r.recording {
		Logger().Warn("graph edits are illegal while recording a frame")
		return nil, ErrGraphInvalid
	}
	return r.graph.addPass(r, PassComputeAsync, parents)
}

// Warmup builds the Vulkan render pass of every render pass without
// allocating framebuffers, so first-frame pipeline creation does not stall.
// Must not run concurrently with frame recording.
func (r *Renderer) Warmup() error {
	return r.graph.warmup(r)
}

// NumTargets returns the number of target passes (passes without a child).
func (r *Renderer) NumTargets() int { return len(r.graph.targets) }

// Target returns the target pass at the given index. Target indices may
// change as passes are added, but their order stays fixed.
func (r *Renderer) Target(i int) *Pass { return r.graph.targets[i] }

// Acquire returns the next virtual frame, blocking until its resources are
// available. An un-submitted previously acquired frame is submitted first.
//
// The renderer must not be mutated between Acquire and Frame.Submit.
func (r *Renderer) Acquire() *Frame {
	if r.frame != nil {
		_ = r.frame.Submit()
	}

	f := &r.frames[r.nextFrame]
	r.nextFrame = (r.nextFrame + 1) % len(r.frames)

	if err := f.sync(r, true); err == nil {
		if err := f.acquire(r); err != nil {
			Logger().Error("acquisition of virtual frame failed",
				"err", err, "fatal", true)
		}
	}

	r.frame = f
	// No mutation of the renderer or its passes until the frame submits.
	r.recording = true
	return f
}

// syncFrames stalls until every frame completes, then destroys resources
// that went stale.
func (r *Renderer) syncFrames() error {
	for i := range r.frames {
		if err := r.frames[i].sync(r, false); err != nil {
			return err
		}
	}
	r.purgeStale()
	return nil
}

func (r *Renderer) syncFramesNoReset() {
	for i := range r.frames {
		r.frames[i].wait(r)
	}
	r.purgeStale()
}

// pushStale enqueues handles for destruction once no in-flight frame can
// reference them anymore.
func (r *Renderer) pushStale(res staleRes) {
	r.stale = append(r.stale, res)
}

// purgeStale destroys all stale resources. Only safe when every frame has
// completed.
func (r *Renderer) purgeStale() {
	dev := r.device.device
	for _, res := range r.stale {
		if res.framebuffer != vk.NullFramebuffer {
			vk.DestroyFramebuffer(dev, res.framebuffer, nil)
		}
		if res.view != vk.NullImageView {
			vk.DestroyImageView(dev, res.view, nil)
		}
	}
	r.stale = r.stale[:0]
}

// StorePipelineCache serializes the pipeline cache blob.
func (r *Renderer) StorePipelineCache(w io.Writer) error {
	return r.cache.Store(w)
}

// LoadPipelineCache merges a previously stored blob into the live cache.
// Incompatible blobs are skipped with ErrIncompatible, never fatal.
func (r *Renderer) LoadPipelineCache(rd io.Reader) error {
	return r.cache.Load(rd)
}
