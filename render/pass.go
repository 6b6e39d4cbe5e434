// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// PassType discriminates render from asynchronous compute passes.
type PassType uint8

const (
	PassRender PassType = iota
	PassComputeAsync
)

type consumeFlags uint8

const (
	consumeViewed consumeFlags = 1 << iota
	consumeBlend
)

// consume is one pass's declared use of one attachment.
type consume struct {
	flags consumeFlags
	mask  types.AccessMask
	stage types.ShaderStage
	view  types.View

	cleared types.ImageAspect
	clear   types.Clear
	color   types.BlendOpState
	alpha   types.BlendOpState
	// resolve is the attachment index the consumption resolves to,
	// or -1 when unused.
	resolve int

	// Graph analysis output.
	initial vk.ImageLayout
	final   vk.ImageLayout
	prev    *consume
	// prevPass is the pass holding prev.
	prevPass *Pass
}

// viewElem is one filtered framebuffer attachment of a render pass; the
// image view stays null for swapchain backings, those are created per
// swapchain image.
type viewElem struct {
	consume *consume
	view    vk.ImageView
}

// frameElem is one framebuffer of a render pass, together with the
// swapchain image view it references (null when not window-backed).
type frameElem struct {
	view   vk.ImageView
	buffer vk.Framebuffer
}

// passState is the fixed-function state of a render pass.
type passState struct {
	raster  types.RasterState
	blend   types.BlendState
	depth   types.DepthState
	stencil types.StencilState

	samples      vk.SampleCountFlagBits
	depthEnabled bool
	stencEnabled bool
}

// Pass is a node in the render graph. Parents must exist at construction,
// which keeps the graph acyclic by construction; level is the depth in the
// DAG and drives the stable topological order.
type Pass struct {
	typ      PassType
	renderer *Renderer

	level  int
	order  int
	childs int

	parents  []*Pass
	consumes []*consume
	injects  []Inject

	// Render pass build state.
	gen     uint32
	state   passState
	backing int
	fWidth  uint32
	fHeight uint32
	fLayers uint32

	buildPass *cacheElem
	vkPass    vk.RenderPass
	clears    []vk.ClearValue
	blends    []vk.PipelineColorBlendAttachmentState
	views     []*viewElem
	frames    []frameElem
}

// Type returns the pass type.
func (p *Pass) Type() PassType { return p.typ }

// Level returns the pass's depth in the graph.
func (p *Pass) Level() int { return p.level }

// NumParents returns the number of parents of the pass.
func (p *Pass) NumParents() int { return len(p.parents) }

// Parent returns the parent at the given index.
func (p *Pass) Parent(i int) *Pass { return p.parents[i] }

// Generation identifies the pass build; pipelines referencing the pass are
// invalidated whenever it changes.
func (p *Pass) Generation() uint32 { return p.gen }

// bumpGen invalidates any pipeline that references this pass.
func (p *Pass) bumpGen() {
	p.gen++
	if p.gen == 0 {
		Logger().Warn("pass build generation overflowed; " +
			"old renderables may not be invalidated")
	}
}

func newPass(r *Renderer, typ PassType, parents []*Pass) *Pass {
	p := &Pass{
		typ:      typ,
		renderer: r,
		parents:  parents,
		backing:  -1,
	}
	for _, parent := range parents {
		if parent.level >= p.level {
			p.level = parent.level + 1
		}
		parent.childs++
	}

	if typ == PassRender {
		p.state = passState{
			raster: types.RasterState{
				Mode:    types.RasterFill,
				Front:   types.FrontFaceCW,
				Cull:    types.CullBack,
				Topo:    types.TopoTriangleList,
				Samples: 1,
			},
			blend: types.BlendState{
				Color: types.BlendOpState{SrcFactor: types.FactorOne, DstFactor: types.FactorZero},
				Alpha: types.BlendOpState{SrcFactor: types.FactorOne, DstFactor: types.FactorZero},
			},
			depth: types.DepthState{
				Flags: types.DepthWrite,
				Cmp:   types.CompareLess,
			},
			samples: vk.SampleCount1Bit,
		}
	}
	return p
}

// Consume declares that the pass consumes the whole attachment at index
// with the given access and stages. Re-consuming replaces the declaration
// but preserves any clear, blend and resolve settings.
func (p *Pass) Consume(index int, mask types.AccessMask, stage types.ShaderStage) error {
	return p.consume(&consume{
		mask:  mask,
		stage: stage,
		view: types.View{
			Index: index,
			// All aspect flags; filtered to the format's aspects later.
			Range: types.Range{Aspect: types.AspectAny},
		},
	})
}

// ConsumeRange consumes a range (area) of an attachment.
func (p *Pass) ConsumeRange(index int, mask types.AccessMask, stage types.ShaderStage, rng types.Range) error {
	return p.consume(&consume{
		mask:  mask,
		stage: stage,
		view:  types.View{Index: index, Range: rng},
	})
}

// ConsumeView consumes an attachment with a specific view override.
func (p *Pass) ConsumeView(index int, mask types.AccessMask, stage types.ShaderStage, view types.View) error {
	view.Index = index
	return p.consume(&consume{
		flags: consumeViewed,
		mask:  mask,
		stage: stage,
		view:  view,
	})
}

func (p *Pass) consume(con *consume) error {
	if p.renderer.recording {
		Logger().Warn("consumption edits are illegal while recording a frame")
		return ErrGraphInvalid
	}

	// Images cannot be mapped; host access is meaningless here.
	con.mask &^= types.AccessHostRead | types.AccessHostWrite

	for _, old := range p.consumes {
		if old.view.Index == con.view.Index {
			// Keep old clear, blend & resolve values.
			flags := con.flags | (old.flags & consumeBlend)
			cleared, clear := old.cleared, old.clear
			color, alpha := old.color, old.alpha
			resolve := old.resolve

			*old = *con
			old.flags = flags
			old.cleared, old.clear = cleared, clear
			old.color, old.alpha = color, alpha
			old.resolve = resolve

			p.invalidate(old)
			return nil
		}
	}

	con.resolve = -1
	p.consumes = append(p.consumes, con)
	p.invalidate(con)
	return nil
}

func (p *Pass) invalidate(con *consume) {
	con.initial = vk.ImageLayoutUndefined
	con.final = vk.ImageLayoutUndefined
	con.prev = nil
	con.prevPass = nil

	// Changed a pass, the graph is invalidated.
	p.renderer.graph.invalidate(p.renderer)
}

// Release removes any consumption of the attachment at index, and clears
// any resolve pointing at it.
func (p *Pass) Release(index int) {
	if p.renderer.recording {
		Logger().Warn("consumption edits are illegal while recording a frame")
		return
	}

	for _, con := range p.consumes {
		if con.resolve == index {
			con.resolve = -1
			p.renderer.graph.invalidate(p.renderer)
		}
	}
	for i, con := range p.consumes {
		if con.view.Index == index {
			p.consumes = append(p.consumes[:i], p.consumes[i+1:]...)
			p.renderer.graph.invalidate(p.renderer)
			return
		}
	}
}

// SetClear sets the clear value of the consumed attachment at index for the
// given aspect. Clearing color cannot be combined with depth/stencil.
func (p *Pass) SetClear(index int, aspect types.ImageAspect, value types.Clear) {
	if p.renderer.recording {
		Logger().Warn("consumption edits are illegal while recording a frame")
		return
	}
	if aspect&types.AspectColor != 0 && aspect != types.AspectColor {
		Logger().Warn("cannot clear color combined with depth/stencil")
		return
	}

	for _, con := range p.consumes {
		if con.view.Index != index {
			continue
		}
		// Preserve the other half if only one of depth/stencil is set.
		if aspect == types.AspectDepth {
			value.Stencil = con.clear.Stencil
		} else if aspect == types.AspectStencil {
			value.Depth = con.clear.Depth
		}
		con.cleared = aspect
		con.clear = value
		p.renderer.graph.invalidate(p.renderer)
		return
	}
}

// SetBlend sets per-attachment blend state, overriding the pass state.
func (p *Pass) SetBlend(index int, color, alpha types.BlendOpState) {
	if p.renderer.recording {
		Logger().Warn("consumption edits are illegal while recording a frame")
		return
	}

	if color.Op == types.BlendNoOp {
		color.SrcFactor, color.DstFactor = types.FactorOne, types.FactorZero
	}
	if alpha.Op == types.BlendNoOp {
		alpha.SrcFactor, alpha.DstFactor = types.FactorOne, types.FactorZero
	}

	for _, con := range p.consumes {
		if con.view.Index != index {
			continue
		}
		con.flags |= consumeBlend
		con.color = color
		con.alpha = alpha
		p.renderer.graph.invalidate(p.renderer)
		return
	}
}

// SetResolve makes the consumption at index resolve into the consumed
// attachment at resolve. No-op if resolve is not consumed by the pass.
func (p *Pass) SetResolve(index, resolve int) {
	if p.renderer.recording {
		Logger().Warn("consumption edits are illegal while recording a frame")
		return
	}

	found := false
	for _, con := range p.consumes {
		if con.view.Index == resolve {
			found = true
			break
		}
	}
	if !found {
		return
	}
	for _, con := range p.consumes {
		if con.view.Index == index {
			con.resolve = resolve
			p.renderer.graph.invalidate(p.renderer)
			return
		}
	}
}

// SetState overrides the fixed-function state of a render pass. Nil fields
// keep the current state. No-op on compute passes.
func (p *Pass) SetState(state types.RenderState) {
	if p.typ != PassRender {
		return
	}

	// New blend operations update the per-attachment blend vector, which
	// is derived state; handled by graph invalidation.
	newBlends := false
	if state.Blend != nil {
		newBlends = p.state.blend != *state.Blend
		p.state.blend = *state.Blend
	}

	gen := newBlends
	if state.Raster != nil {
		gen = gen || p.state.raster != *state.Raster
		p.state.raster = *state.Raster
	}
	if state.Depth != nil {
		gen = gen || p.state.depth != *state.Depth
		p.state.depth = *state.Depth
	}
	if state.Stencil != nil {
		gen = gen || p.state.stencil != *state.Stencil
		p.state.stencil = *state.Stencil
	}

	if newBlends {
		p.renderer.graph.invalidate(p.renderer)
	} else if gen {
		p.bumpGen()
	}
}

// State returns the current fixed-function state of a render pass,
// or zero state for compute passes.
func (p *Pass) State() types.RenderState {
	if p.typ != PassRender {
		return types.RenderState{}
	}
	return types.RenderState{
		Raster:  &p.state.raster,
		Blend:   &p.state.blend,
		Depth:   &p.state.depth,
		Stencil: &p.state.stencil,
	}
}

// Inject appends dependency injection commands to be processed around the
// pass during the next submission. The list drains after every submit.
func (p *Pass) Inject(injs ...Inject) {
	p.injects = append(p.injects, injs...)
}

// destroy releases all derived Vulkan state of the pass.
func (p *Pass) destroy() {
	p.destructPartial(types.RecreateAll)
	p.backing = -1
	p.clears = nil
	p.blends = nil
	p.views = nil
	p.frames = nil

	for _, parent := range p.parents {
		parent.childs--
	}
}
