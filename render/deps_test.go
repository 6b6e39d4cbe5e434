// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"testing"

	"github.com/gogpu/vkgraph/types"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestDepMatchingRule(t *testing.T) {
	buf := RefBuffer(vk.Buffer(testHandle(1)))
	other := RefBuffer(vk.Buffer(testHandle(2)))

	sig := &depSignal{
		ref:   buf,
		mask:  types.AccessStorageWrite,
		stage: types.StageCompute,
	}

	// A nil wait reference matches any resource.
	wait := Wait(nil, types.AccessVertexRead, types.StageVertex)
	require.True(t, matches(sig, &wait))

	// The same reference matches; another resource does not.
	wait = WaitRef(nil, types.AccessVertexRead, types.StageVertex, buf)
	require.True(t, matches(sig, &wait))
	wait = WaitRef(nil, types.AccessVertexRead, types.StageVertex, other)
	require.False(t, matches(sig, &wait))

	// Disjoint ranges do not pair; zero ranges span the whole resource.
	sig.rng = types.Range{Offset: 0, Size: 64}
	wait = WaitRange(nil, types.AccessVertexRead, types.StageVertex, buf,
		types.Range{Offset: 64, Size: 64})
	require.False(t, matches(sig, &wait))
	wait = WaitRange(nil, types.AccessVertexRead, types.StageVertex, buf,
		types.Range{Offset: 32, Size: 64})
	require.True(t, matches(sig, &wait))

	// Async modifiers must agree on both sides.
	sig.rng = types.Range{}
	sig.mask = types.AccessStorageWrite | types.AccessComputeAsync
	wait = WaitRef(nil, types.AccessVertexRead, types.StageVertex, buf)
	require.False(t, matches(sig, &wait))
	wait = WaitRef(nil, types.AccessVertexRead|types.AccessComputeAsync,
		types.StageVertex, buf)
	require.True(t, matches(sig, &wait))

	// Read-after-read with disjoint access is no hazard; nothing pairs.
	sig.mask = types.AccessSampledRead
	wait = WaitRef(nil, types.AccessVertexRead, types.StageVertex, buf)
	require.False(t, matches(sig, &wait))
}

func TestDepCatchEmitsBufferBarrier(t *testing.T) {
	dev := testDevice()
	dep := NewDependency(dev)
	buf := RefBuffer(vk.Buffer(testHandle(7)))

	inj := newInjection(nil, nil, &dev.graphics)

	// Record the signal as pass A's prepare would (same queue family,
	// so no semaphore is created).
	sigCmd := SigRef(dep, types.AccessStorageWrite, types.StageCompute, buf)
	require.NoError(t, dep.prepare(inj, &sigCmd))
	require.Len(t, inj.sigs, 0)

	// Pass C waits; exactly one buffer memory barrier must be buffered.
	waitCmd := WaitRef(dep, types.AccessVertexRead, types.StageVertex, buf)
	dep.catch(inj, &waitCmd)

	require.Len(t, inj.bufBarriers, 1)
	b := inj.bufBarriers[0]
	require.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), b.SrcAccessMask)
	require.Equal(t, vk.AccessFlags(vk.AccessVertexAttributeReadBit), b.DstAccessMask)
	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), inj.srcStages)
	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), inj.dstStages)

	// The signal was consumed; a second wait finds nothing.
	inj2 := newInjection(nil, nil, &dev.graphics)
	dep.catch(inj2, &waitCmd)
	require.Len(t, inj2.bufBarriers, 0)

	// Finishing removes the caught record; destruction is legal.
	dep.finish()
	require.NoError(t, dep.Destroy())
}

func TestDepUnpairedWaitIsNotAnError(t *testing.T) {
	dev := testDevice()
	dep := NewDependency(dev)

	inj := newInjection(nil, nil, &dev.graphics)
	waitCmd := Wait(dep, types.AccessVertexRead, types.StageVertex)
	dep.catch(inj, &waitCmd)

	// No signal ever paired; the barrier is simply omitted.
	require.Len(t, inj.bufBarriers, 0)
	require.Len(t, inj.imgBarriers, 0)
	require.Equal(t, vk.PipelineStageFlags(0), inj.srcStages)
}

func TestDepDestroyWithPendingSignals(t *testing.T) {
	dev := testDevice()
	dep := NewDependency(dev)

	inj := newInjection(nil, nil, &dev.graphics)
	sigCmd := Sig(dep, types.AccessTransferWrite, 0)
	require.NoError(t, dep.prepare(inj, &sigCmd))
	dep.finish()

	// A pending signal still references its resources.
	require.ErrorIs(t, dep.Destroy(), ErrDepPending)

	// Aborting is not possible anymore (the record is pending), but a
	// matching wait drains it.
	inj2 := newInjection(nil, nil, &dev.graphics)
	waitCmd := Wait(dep, types.AccessTransferRead, 0)
	dep.catch(inj2, &waitCmd)
	dep.finish()
	require.NoError(t, dep.Destroy())
}

func TestDepAbortDropsProvisional(t *testing.T) {
	dev := testDevice()
	dep := NewDependency(dev)

	inj := newInjection(nil, nil, &dev.graphics)
	sigCmd := Sig(dep, types.AccessTransferWrite, 0)
	require.NoError(t, dep.prepare(inj, &sigCmd))

	// Submission failed; the provisional record unwinds.
	dep.abort()
	require.NoError(t, dep.Destroy())
}

// testHandle fabricates a non-dispatchable handle value for tests.
func testHandle(v uint64) uint64 { return v }
