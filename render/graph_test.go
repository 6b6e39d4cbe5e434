// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"testing"

	"github.com/gogpu/vkgraph/types"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestGraphLevelsAndOrder(t *testing.T) {
	r := testRenderer()

	a, err := r.AddPass()
	require.NoError(t, err)
	b, err := r.AddPass(a)
	require.NoError(t, err)
	c, err := r.AddPass(a)
	require.NoError(t, err)
	d, err := r.AddPass(b, c)
	require.NoError(t, err)

	require.Equal(t, 0, a.Level())
	require.Equal(t, 1, b.Level())
	require.Equal(t, 1, c.Level())
	require.Equal(t, 2, d.Level())

	// Stable topological order: by level, insertion order within a level.
	require.Equal(t, []*Pass{a, b, c, d}, r.graph.passes)
	require.Equal(t, 4, r.graph.numRender)

	// Only d has no child.
	require.Equal(t, 1, r.NumTargets())
	require.Equal(t, d, r.Target(0))
}

func TestGraphComputePartition(t *testing.T) {
	r := testRenderer()

	render1, _ := r.AddPass()
	comp1, err := r.AddComputePass()
	require.NoError(t, err)
	render2, _ := r.AddPass(render1)
	comp2, err := r.AddComputePass(comp1)
	require.NoError(t, err)

	// Render passes sort before async-compute passes; numRender counts
	// the graphics-queue prefix.
	require.Equal(t, []*Pass{render1, render2, comp1, comp2}, r.graph.passes)
	require.Equal(t, 2, r.graph.numRender)

	// Async-compute parentage cannot mix with render passes.
	_, err = r.AddComputePass(render1)
	require.ErrorIs(t, err, ErrGraphInvalid)
	_, err = r.AddPass(comp1)
	require.ErrorIs(t, err, ErrGraphInvalid)
}

func TestGraphRejectsForeignParents(t *testing.T) {
	r1 := testRenderer()
	r2 := testRenderer()

	p, err := r1.AddPass()
	require.NoError(t, err)
	_, err = r2.AddPass(p)
	require.ErrorIs(t, err, ErrGraphInvalid)
}

func TestGraphAnalyzeLinksAndLayouts(t *testing.T) {
	r := testRenderer()
	require.NoError(t, r.Attach(0, types.Attachment{
		Type:   types.Image2D,
		Format: types.FormatB8G8R8A8Unorm,
		Layers: 1,
		Width:  64, Height: 64, Depth: 1,
	}))

	a, _ := r.AddPass()
	require.NoError(t, a.Consume(0, types.AccessAttachmentWrite, types.StageFragment))
	b, _ := r.AddPass(a)
	require.NoError(t, b.Consume(0, types.AccessSampledRead, types.StageFragment))

	r.graph.analyze(r)

	conA := a.consumes[0]
	conB := b.consumes[0]

	// First use: contents undefined; later use links back to it.
	require.Nil(t, conA.prev)
	require.Equal(t, vk.ImageLayoutUndefined, conA.initial)
	require.Equal(t, vk.ImageLayoutColorAttachmentOptimal, conA.final)

	require.Equal(t, conA, conB.prev)
	require.Equal(t, a, conB.prevPass)
	require.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, conB.initial)
	require.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, conB.final)

	require.Equal(t, 0, a.order)
	require.Equal(t, 1, b.order)
}

func TestConsumeReplacePreservesClear(t *testing.T) {
	r := testRenderer()
	p, _ := r.AddPass()

	require.NoError(t, p.Consume(0, types.AccessAttachmentWrite, types.StageFragment))
	p.SetClear(0, types.AspectColor, types.Clear{Color: [4]float32{1, 0, 0, 1}})
	p.SetResolve(0, 0)

	// Re-consuming replaces the record but keeps clear/blend/resolve.
	require.NoError(t, p.Consume(0,
		types.AccessAttachmentWrite|types.AccessAttachmentRead, types.StageFragment))

	con := p.consumes[0]
	require.Equal(t, types.AspectColor, con.cleared)
	require.Equal(t, [4]float32{1, 0, 0, 1}, con.clear.Color)
	require.Equal(t, 0, con.resolve)
	require.Len(t, p.consumes, 1)
}

func TestConsumeDropsHostAccess(t *testing.T) {
	r := testRenderer()
	p, _ := r.AddPass()

	require.NoError(t, p.Consume(0,
		types.AccessAttachmentWrite|types.AccessHostRead|types.AccessHostWrite,
		types.StageFragment))
	require.Equal(t, types.AccessAttachmentWrite, p.consumes[0].mask)
}

func TestConsumeRejectedWhileRecording(t *testing.T) {
	r := testRenderer()
	p, _ := r.AddPass()

	r.recording = true
	require.ErrorIs(t,
		p.Consume(0, types.AccessAttachmentWrite, types.StageFragment),
		ErrGraphInvalid)
	r.recording = false

	require.NoError(t, p.Consume(0, types.AccessAttachmentWrite, types.StageFragment))
	p.Release(0)
	require.Len(t, p.consumes, 0)
}

func TestAttachDescribeAndDetach(t *testing.T) {
	r := testRenderer()

	desc := types.Attachment{
		Type:   types.Image2D,
		Format: types.FormatD24UnormS8,
		Layers: 1,
		Width:  32, Height: 32, Depth: 1,
	}
	require.NoError(t, r.Attach(3, desc))
	require.Equal(t, desc, r.Attachment(3))

	// Indices below grow as empty slots.
	require.True(t, r.Attachment(1).Empty())

	r.Detach(3)
	require.True(t, r.Attachment(3).Empty())
}

func TestAttachWindowExclusive(t *testing.T) {
	r := testRenderer()
	w := &fakeWindow{}

	require.NoError(t, r.AttachWindow(0, w))
	require.Equal(t, w, r.Window(0))

	// Describing over a window attachment is rejected.
	require.ErrorIs(t, r.Attach(0, types.Attachment{Width: 1, Height: 1, Depth: 1}),
		ErrGraphInvalid)

	// A locked window cannot attach a second time.
	r2 := testRenderer()
	require.ErrorIs(t, r2.AttachWindow(0, w), ErrGraphInvalid)

	// Re-attaching the same window to the same slot is idempotent.
	require.NoError(t, r.AttachWindow(0, w))
}

// fakeWindow satisfies Window without any Vulkan state.
type fakeWindow struct {
	locked bool
}

func (w *fakeWindow) Acquire(vk.Semaphore) (uint32, types.RecreateFlags, error) {
	return 0, 0, nil
}
func (w *fakeWindow) Swapchain() vk.Swapchain { return vk.NullSwapchain }
func (w *fakeWindow) PresentResult(vk.Result) types.RecreateFlags {
	return 0
}
func (w *fakeWindow) PurgeStale() {}
func (w *fakeWindow) TryLock() bool {
	if w.locked {
		return false
	}
	w.locked = true
	return true
}
func (w *fakeWindow) Unlock()                  { w.locked = false }
func (w *fakeWindow) Format() vk.Format        { return vk.FormatB8g8r8a8Unorm }
func (w *fakeWindow) Extent() (uint32, uint32) { return 64, 64 }
func (w *fakeWindow) Images() []vk.Image       { return nil }
