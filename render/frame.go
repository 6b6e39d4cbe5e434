// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"errors"

	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// noImage marks a window with no acquired swapchain image this frame.
const noImage = ^uint32(0)

// submitted flag bits, recording which queues a frame actually submitted on.
const (
	frameGraphics uint8 = 1 << iota
	frameCompute
)

// frameSync is the per-window synchronization state of one frame: the
// acquired image index and the availability semaphore the graphics
// submission waits on.
type frameSync struct {
	window    Window
	backing   int
	image     uint32
	available vk.Semaphore
}

// frameQueue is one queue's recording state within a frame.
type frameQueue struct {
	pool vk.CommandPool
	cmd  vk.CommandBuffer
	done vk.Fence
}

// Frame is one slot of the renderer's in-flight ring. Its command buffers,
// fences and semaphores are reused only after its fences signal, which
// acquire waits for.
type Frame struct {
	renderer *Renderer
	index    int

	submitted uint8

	// refs maps attachment index to an index into syncs, or -1.
	refs  []int
	syncs []frameSync

	rendered vk.Semaphore
	graphics frameQueue
	compute  frameQueue
}

// Index identifies the frame within [0, frames) of its renderer.
func (f *Frame) Index() int { return f.index }

func (f *Frame) init(r *Renderer, index int) error {
	f.renderer = r
	f.index = index

	dev := r.device.device

	sci := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if err := vkCheck(vk.CreateSemaphore(
		dev, &sci, nil, &f.rendered), "vkCreateSemaphore"); err != nil {
		return err
	}

	fci := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if err := vkCheck(vk.CreateFence(
		dev, &fci, nil, &f.graphics.done), "vkCreateFence"); err != nil {
		f.clear(r)
		return err
	}
	if err := vkCheck(vk.CreateFence(
		dev, &fci, nil, &f.compute.done), "vkCreateFence"); err != nil {
		f.clear(r)
		return err
	}

	// Transient pools; the buffers are reset and re-recorded every frame.
	for _, q := range []struct {
		fq     *frameQueue
		family uint32
	}{
		{&f.graphics, r.device.graphics.Family},
		{&f.compute, r.device.compute.Family},
	} {
		cpci := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
			QueueFamilyIndex: q.family,
		}
		if err := vkCheck(vk.CreateCommandPool(
			dev, &cpci, nil, &q.fq.pool), "vkCreateCommandPool"); err != nil {
			f.clear(r)
			return err
		}

		cbai := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        q.fq.pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}
		cmds := make([]vk.CommandBuffer, 1)
		if err := vkCheck(vk.AllocateCommandBuffers(
			dev, &cbai, cmds), "vkAllocateCommandBuffers"); err != nil {
			f.clear(r)
			return err
		}
		q.fq.cmd = cmds[0]
	}

	return nil
}

// clear waits for the frame and destroys its resources.
func (f *Frame) clear(r *Renderer) {
	dev := r.device.device

	f.wait(r)

	vk.DestroySemaphore(dev, f.rendered, nil)
	vk.DestroyCommandPool(dev, f.graphics.pool, nil)
	vk.DestroyFence(dev, f.graphics.done, nil)
	vk.DestroyCommandPool(dev, f.compute.pool, nil)
	vk.DestroyFence(dev, f.compute.done, nil)

	f.freeSyncs(r, len(f.syncs))
	f.refs = nil
}

// fences returns the fences of the queues the frame submitted on.
func (f *Frame) fences() []vk.Fence {
	var fences []vk.Fence
	if f.submitted&frameGraphics != 0 {
		fences = append(fences, f.graphics.done)
	}
	if f.submitted&frameCompute != 0 {
		fences = append(fences, f.compute.done)
	}
	return fences
}

// wait blocks until the frame's submissions complete. Infinite timeout;
// device loss here is non-recoverable.
func (f *Frame) wait(r *Renderer) {
	fences := f.fences()
	if len(fences) == 0 {
		return
	}
	if err := vkCheck(vk.WaitForFences(
		r.device.device, uint32(len(fences)), fences, vk.True, noTimeout), "vkWaitForFences"); err != nil {
		Logger().Error("synchronization of virtual frame failed",
			"err", err, "fatal", true)
	}
}

// sync waits for the frame to be done so all its resources are available
// for reuse, and, when reset is set, resets its fences, command pools and
// every recorder's private pools.
func (f *Frame) sync(r *Renderer, reset bool) error {
	dev := r.device.device

	fences := f.fences()
	if len(fences) > 0 {
		if err := vkCheck(vk.WaitForFences(
			dev, uint32(len(fences)), fences, vk.True, noTimeout), "vkWaitForFences"); err != nil {
			Logger().Error("synchronization of virtual frame failed",
				"err", err, "fatal", true)
			return err
		}

		if reset {
			if err := vkCheck(vk.ResetFences(
				dev, uint32(len(fences)), fences), "vkResetFences"); err != nil {
				return err
			}
			// The fences cannot be waited on again.
			f.submitted = 0
		}
	}

	if reset {
		if err := vkCheck(vk.ResetCommandPool(
			dev, f.graphics.pool, 0), "vkResetCommandPool"); err != nil {
			return err
		}
		if err := vkCheck(vk.ResetCommandPool(
			dev, f.compute.pool, 0), "vkResetCommandPool"); err != nil {
			return err
		}
		for _, rec := range r.recorders {
			rec.reset()
		}
	}

	return nil
}

// freeSyncs destroys the last num sync objects.
func (f *Frame) freeSyncs(r *Renderer, num int) {
	num = min(num, len(f.syncs))
	for i := 0; i < num; i++ {
		sync := &f.syncs[len(f.syncs)-i-1]
		vk.DestroySemaphore(r.device.device, sync.available, nil)
	}
	f.syncs = f.syncs[:len(f.syncs)-num]
}

// allocSyncs makes sure num sync objects exist, each with an availability
// semaphore.
func (f *Frame) allocSyncs(r *Renderer, num int) error {
	sci := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	for len(f.syncs) < num {
		var sem vk.Semaphore
		if err := vkCheck(vk.CreateSemaphore(
			r.device.device, &sci, nil, &sem), "vkCreateSemaphore"); err != nil {
			Logger().Error("could not allocate synchronization objects of a virtual frame",
				"err", err)
			return err
		}
		f.syncs = append(f.syncs, frameSync{available: sem})
	}
	return nil
}

// swapchainIndex returns the swapchain image index acquired for the window
// attachment at index, or noImage.
func (f *Frame) swapchainIndex(index int) uint32 {
	if index < 0 || index >= len(f.refs) {
		return noImage
	}
	s := f.refs[index]
	if s < 0 || s >= len(f.syncs) {
		return noImage
	}
	return f.syncs[s].image
}

// acquire readies the frame: acquires all swapchain images, handles
// recreation, and makes sure backing and graph are built.
func (f *Frame) acquire(r *Renderer) error {
	// One sync object per window attachment.
	numSyncs := 0
	for i := range r.attachs {
		if r.attachs[i].typ == attachWindow {
			numSyncs++
		}
	}
	if len(f.syncs) > numSyncs {
		f.freeSyncs(r, len(f.syncs)-numSyncs)
	} else if err := f.allocSyncs(r, numSyncs); err != nil {
		return err
	}

	f.refs = f.refs[:0]

	// Acquiring swapchain images is pointless without render passes.
	acquireSwap := r.graph.numRender > 0

	var allFlags types.RecreateFlags

	s := 0
	for i := range r.attachs {
		at := &r.attachs[i]
		if at.typ != attachWindow {
			f.refs = append(f.refs, -1)
			continue
		}
		f.refs = append(f.refs, s)

		sync := &f.syncs[s]
		sync.window = at.window
		sync.backing = i
		s++

		var flags types.RecreateFlags
		if acquireSwap {
			image, fl, err := at.window.Acquire(sync.available)
			switch {
			case errors.Is(err, ErrSkip):
				Logger().Debug("swapchain image acquisition skipped")
				image = noImage
			case err != nil:
				Logger().Error("swapchain image acquisition failed", "err", err)
				image = noImage
			}
			sync.image = image
			flags = fl
		} else {
			sync.image = noImage
		}

		// Carry over flags stashed by the previous frame's present.
		allFlags |= flags | at.pending
		at.pending = 0
	}

	// Recreate swapchain-dependent resources per recreate flags.
	if allFlags&types.Recreate != 0 {
		if err := r.syncFrames(); err != nil {
			return err
		}

		// Only a resize recreates referenceable attachments; reset the
		// descriptor pool, nothing may reference them anymore.
		if allFlags&types.Resize != 0 {
			r.pool.reset()
		}

		r.rebuildBacking(allFlags)
		r.graph.rebuild(r, allFlags)

		for i := range f.syncs {
			f.syncs[i].window.PurgeStale()
		}
	}

	// Everything needs to be built before we record; these are no-ops
	// when not necessary.
	if err := r.buildBacking(); err != nil {
		return err
	}
	return r.graph.build(r)
}

// record records all passes in [first, first+num) of the submission order
// into cmd: dependency catches, consumption barriers, the render pass
// itself, all live recorders, then dependency prepares.
func (f *Frame) record(cmd vk.CommandBuffer, first, num int, inj *injection) error {
	r := f.renderer

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vkCheck(vk.BeginCommandBuffer(cmd, &cbbi), "vkBeginCommandBuffer"); err != nil {
		return err
	}

	for p := first; p < first+num; p++ {
		pass := r.graph.passes[p]
		inj.pass = pass

		// Inject wait commands.
		for i := range pass.injects {
			c := &pass.injects[i]
			if c.typ == injectWait {
				c.dep.catch(inj, c)
			}
		}

		// Inject consumption barriers.
		for _, con := range pass.consumes {
			if con.prev != nil {
				f.pushConsumeBarrier(con, inj)
			}
		}
		inj.flush(cmd)

		record := true
		if pass.typ == PassRender {
			if pass.vkPass == vk.NullRenderPass {
				record = false
			} else if fb := pass.framebuffer(f); fb == vk.NullFramebuffer {
				record = false
			} else {
				rpbi := vk.RenderPassBeginInfo{
					SType:           vk.StructureTypeRenderPassBeginInfo,
					RenderPass:      pass.vkPass,
					Framebuffer:     fb,
					ClearValueCount: uint32(len(pass.clears)),
					PClearValues:    pass.clears,
					RenderArea: vk.Rect2D{
						Extent: vk.Extent2D{
							Width:  pass.fWidth,
							Height: pass.fHeight,
						},
					},
				}
				vk.CmdBeginRenderPass(cmd, &rpbi, vk.SubpassContentsInline)

				vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{{
					Width:    float32(pass.fWidth),
					Height:   float32(pass.fHeight),
					MinDepth: 0, MaxDepth: 1,
				}})
				vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{
					Extent: vk.Extent2D{Width: pass.fWidth, Height: pass.fHeight},
				}})
			}
		}

		if record {
			for _, rec := range r.recorders {
				rec.record(pass.order, cmd)
			}
		}

		if pass.typ == PassRender && record {
			vk.CmdEndRenderPass(cmd)
		}

		// Inject signal commands.
		for i := range pass.injects {
			c := &pass.injects[i]
			if c.typ == injectSignal {
				if err := c.dep.prepare(inj, c); err != nil {
					return err
				}
			}
		}
	}

	return vkCheck(vk.EndCommandBuffer(cmd), "vkEndCommandBuffer")
}

// pushConsumeBarrier buffers the barrier between a consumption and its
// predecessor: an execution barrier when the predecessor did not write and
// the layouts agree, a full image memory barrier otherwise.
func (f *Frame) pushConsumeBarrier(con *consume, inj *injection) {
	r := f.renderer
	prev := con.prev

	// Windows analyze under the empty format: non-depth/stencil access
	// flags and stages, which is what swapchain images want.
	fmt := r.attachmentFormat(con.view.Index)

	srcStages := modStageFlags(
		pipelineStageFlags(prev.mask, prev.stage, fmt), inj.queue, r.device)
	dstStages := modStageFlags(
		pipelineStageFlags(con.mask, con.stage, fmt), inj.queue, r.device)

	if !prev.mask.Writes() && prev.final == con.initial {
		inj.push(srcStages, dstStages, nil, nil)
		return
	}

	image := r.attachmentImage(f, con.view.Index)
	if image == vk.NullImage {
		// Silently ignore non-existent swapchain images.
		return
	}

	rng := prev.view.Range.Union(con.view.Range)
	aspect := rng.Aspect & fmt.Aspect()
	if aspect == 0 {
		aspect = fmt.Aspect()
	}

	imb := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       accessFlags(prev.mask, fmt),
		DstAccessMask:       accessFlags(con.mask, fmt),
		OldLayout:           prev.final,
		NewLayout:           con.initial,
		SrcQueueFamilyIndex: queueFamilyIgnored,
		DstQueueFamilyIndex: queueFamilyIgnored,
		Image:               image,
		SubresourceRange:    subresourceRange(aspect, rng),
	}
	inj.push(srcStages, dstStages, nil, &imb)
}

// Submit records and submits the frame: one submission to the graphics
// queue for all render passes, one to the compute queue for async-compute
// passes, then a single batched present of all swapchains.
//
// Must be called exactly once per Acquire; the frame is invalid afterwards.
// Failure during submission cannot be recovered from and is logged.
func (f *Frame) Submit() error {
	r := f.renderer
	if r.frame != f {
		Logger().Warn("frame submitted out of order, ignored")
		return ErrGraphInvalid
	}

	err := f.submit(r)
	r.recording = false
	r.frame = nil

	// Post submission: promote the mutable caches so other threads read
	// lock-free next frame. The pool is flushed only here, never after
	// mid-frame synchronization.
	r.cache.flush()
	r.pool.flush()

	if err != nil {
		Logger().Error("submission of virtual frame failed",
			"err", err, "fatal", true)
	}
	return err
}

func (f *Frame) submit(r *Renderer) error {
	numRender := r.graph.numRender
	numCompute := len(r.graph.passes) - numRender

	deps := f.collectDeps(r)

	// Record & submit to the graphics queue.
	if numRender > 0 {
		inj := newInjection(r, f, &r.device.graphics)

		if err := f.record(f.graphics.cmd, 0, numRender, inj); err != nil {
			f.finalize(r, deps, false)
			return err
		}

		// Wait on the availability semaphore of every presentable
		// swapchain; images are only written as color attachments.
		var (
			presentWindows []Window
			presentIndices []uint32
			presentBacking []int
		)
		for i := range f.syncs {
			sync := &f.syncs[i]
			if sync.image == noImage {
				continue
			}
			inj.addWait(sync.available,
				vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
			presentWindows = append(presentWindows, sync.window)
			presentIndices = append(presentIndices, sync.image)
			presentBacking = append(presentBacking, sync.backing)
		}

		sigs := inj.sigs
		if len(presentWindows) > 0 {
			sigs = append(sigs, f.rendered)
		}

		si := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(inj.waits)),
			PWaitSemaphores:      inj.waits,
			PWaitDstStageMask:    inj.waitStages,
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{f.graphics.cmd},
			SignalSemaphoreCount: uint32(len(sigs)),
			PSignalSemaphores:    sigs,
		}

		q := &r.device.graphics
		q.Lock()
		err := vkCheck(vk.QueueSubmit(
			q.Queue, 1, []vk.SubmitInfo{si}, f.graphics.done), "vkQueueSubmit")
		q.Unlock()
		if err != nil {
			f.finalize(r, deps, false)
			return err
		}

		f.submitted |= frameGraphics

		// Present all swapchains in one batched call, capturing per-window
		// recreate flags into the attachments' pending flags.
		if len(presentWindows) > 0 {
			f.present(r, presentWindows, presentIndices, presentBacking)
		}
	}

	// Record & submit to the compute queue.
	if numCompute > 0 {
		inj := newInjection(r, f, &r.device.compute)

		if err := f.record(f.compute.cmd, numRender, numCompute, inj); err != nil {
			f.finalize(r, deps, false)
			return err
		}

		si := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(inj.waits)),
			PWaitSemaphores:      inj.waits,
			PWaitDstStageMask:    inj.waitStages,
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{f.compute.cmd},
			SignalSemaphoreCount: uint32(len(inj.sigs)),
			PSignalSemaphores:    inj.sigs,
		}

		q := &r.device.compute
		q.Lock()
		err := vkCheck(vk.QueueSubmit(
			q.Queue, 1, []vk.SubmitInfo{si}, f.compute.done), "vkQueueSubmit")
		q.Unlock()
		if err != nil {
			f.finalize(r, deps, false)
			return err
		}

		f.submitted |= frameCompute
	}

	f.finalize(r, deps, true)
	return nil
}

// present issues one batched present and stashes the per-window recreate
// flags so the next acquire rebuilds before acquisition.
func (f *Frame) present(r *Renderer, windows []Window, indices []uint32, backing []int) {
	swapchains := make([]vk.Swapchain, len(windows))
	for i, w := range windows {
		swapchains[i] = w.Swapchain()
	}
	results := make([]vk.Result, len(windows))

	pi := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{f.rendered},
		SwapchainCount:     uint32(len(swapchains)),
		PSwapchains:        swapchains,
		PImageIndices:      indices,
		PResults:           results,
	}

	q := &r.device.graphics
	q.Lock()
	result := vk.QueuePresent(q.Queue, &pi)
	q.Unlock()

	if result != vk.Success && result != vk.Suboptimal {
		Logger().Error("presentation failed", "result", vkResultString(result))
	}

	for i, w := range windows {
		flags := w.PresentResult(results[i])
		if at := r.attachAt(backing[i]); at != nil {
			at.pending = flags
		}
	}
}

// collectDeps gathers the distinct dependency objects referenced by any
// pass injection this frame.
func (f *Frame) collectDeps(r *Renderer) []*Dependency {
	var deps []*Dependency
	seen := make(map[*Dependency]bool)
	for _, pass := range r.graph.passes {
		for i := range pass.injects {
			if dep := pass.injects[i].dep; dep != nil && !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
	}
	return deps
}

// finalize completes or unwinds all dependency injections and drains every
// pass's injection list, keeping capacity for repeated injection.
func (f *Frame) finalize(r *Renderer, deps []*Dependency, success bool) {
	for _, dep := range deps {
		if success {
			dep.finish()
		} else {
			dep.abort()
		}
	}
	for _, pass := range r.graph.passes {
		pass.injects = pass.injects[:0]
	}
}
