// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	vk "github.com/vulkan-go/vulkan"
)

// injection buffers the synchronization output of one queue submission while
// its passes record: pipeline barriers to flush before the next command, and
// the semaphores the submission must wait on and signal.
type injection struct {
	renderer *Renderer
	pass     *Pass
	frame    *Frame
	queue    *Queue

	// Buffered barriers, flushed in one vkCmdPipelineBarrier.
	srcStages   vk.PipelineStageFlags
	dstStages   vk.PipelineStageFlags
	memBarriers []vk.MemoryBarrier
	bufBarriers []vk.BufferMemoryBarrier
	imgBarriers []vk.ImageMemoryBarrier

	// Submission metadata.
	waits      []vk.Semaphore
	waitStages []vk.PipelineStageFlags
	sigs       []vk.Semaphore
}

func newInjection(r *Renderer, f *Frame, q *Queue) *injection {
	return &injection{renderer: r, frame: f, queue: q}
}

// push buffers an execution barrier, optionally with a buffer or image
// memory barrier attached.
func (inj *injection) push(src, dst vk.PipelineStageFlags,
	buf *vk.BufferMemoryBarrier, img *vk.ImageMemoryBarrier) {

	inj.srcStages |= src
	inj.dstStages |= dst
	if buf != nil {
		inj.bufBarriers = append(inj.bufBarriers, *buf)
	}
	if img != nil {
		inj.imgBarriers = append(inj.imgBarriers, *img)
	}
}

// flush executes all buffered barriers in a single call and resets the
// buffers for the next pass.
func (inj *injection) flush(cmd vk.CommandBuffer) {
	if inj.srcStages == 0 && inj.dstStages == 0 &&
		len(inj.memBarriers) == 0 && len(inj.bufBarriers) == 0 && len(inj.imgBarriers) == 0 {
		return
	}

	src := inj.srcStages
	if src == 0 {
		src = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	dst := inj.dstStages
	if dst == 0 {
		dst = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}

	vk.CmdPipelineBarrier(cmd, src, dst, 0,
		uint32(len(inj.memBarriers)), inj.memBarriers,
		uint32(len(inj.bufBarriers)), inj.bufBarriers,
		uint32(len(inj.imgBarriers)), inj.imgBarriers)

	inj.srcStages = 0
	inj.dstStages = 0
	inj.memBarriers = inj.memBarriers[:0]
	inj.bufBarriers = inj.bufBarriers[:0]
	inj.imgBarriers = inj.imgBarriers[:0]
}

// addWait appends a semaphore wait to the submission.
func (inj *injection) addWait(sem vk.Semaphore, stages vk.PipelineStageFlags) {
	inj.waits = append(inj.waits, sem)
	inj.waitStages = append(inj.waitStages, stages)
}

// addSig appends a semaphore signal to the submission.
func (inj *injection) addSig(sem vk.Semaphore) {
	inj.sigs = append(inj.sigs, sem)
}
