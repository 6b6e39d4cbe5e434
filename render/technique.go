// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// Binding declares one shader resource binding of a technique. SPIR-V is
// consumed opaquely, so the interface is declared rather than reflected.
type Binding struct {
	Set     int
	Binding int
	Type    vk.DescriptorType
	Count   uint32
	Stages  types.ShaderStage
}

// Technique bundles the shaders of one pipeline together with its resource
// interface; its set layouts and pipeline layout resolve through the object
// cache, so structurally identical techniques share the same handles.
type Technique struct {
	renderer *Renderer
	shaders  []*Shader
	bindings []Binding

	// Per (set, binding) overrides, applied before locking.
	samplers map[[2]int]*cacheElem
	dynamic  map[[2]int]bool

	// Derived cache elements, fixed once locked.
	locked     bool
	setLayouts []*cacheElem
	layout     *cacheElem
	pushSize   uint32
	pushStages types.ShaderStage
}

// AddTechnique adds a technique to the renderer. Every shader must carry
// valid SPIR-V bytecode; bindings declare the descriptor interface.
func (r *Renderer) AddTechnique(shaders []*Shader, bindings []Binding) (*Technique, error) {
	if len(shaders) == 0 {
		Logger().Warn("a technique needs at least one shader")
		return nil, ErrGraphInvalid
	}

	t := &Technique{
		renderer: r,
		shaders:  shaders,
		bindings: bindings,
		samplers: make(map[[2]int]*cacheElem),
		dynamic:  make(map[[2]int]bool),
	}
	r.techs = append(r.techs, t)
	return t, nil
}

// SetPushConstants declares the push constant range of the technique.
// No-op once the technique was used to render or create sets.
func (t *Technique) SetPushConstants(size uint32, stages types.ShaderStage) {
	if t.locked {
		return
	}
	t.pushSize = size
	t.pushStages = stages
}

// SetSamplers sets immutable samplers of the technique. Samplers whose
// binding does not hold a sampler-typed descriptor are ignored.
// No-op once the technique was used to render or create sets.
func (t *Technique) SetSamplers(set int, samplers []types.Sampler) {
	if t.locked {
		return
	}

	for _, s := range samplers {
		ok := false
		for _, b := range t.bindings {
			if b.Set == set && b.Binding == s.Binding &&
				(b.Type == vk.DescriptorTypeSampler ||
					b.Type == vk.DescriptorTypeCombinedImageSampler) {
				ok = true
				break
			}
		}
		if !ok {
			Logger().Warn("immutable sampler ignored, binding is not a sampler",
				"set", set, "binding", s.Binding)
			continue
		}

		elem := t.renderer.cache.getSampler(s)
		if elem == nil {
			continue
		}
		t.samplers[[2]int{set, s.Binding}] = elem
	}
}

// SetDynamic makes a buffer binding dynamic. Ignored if the binding is not
// a uniform or storage buffer. No-op once the technique is locked.
func (t *Technique) SetDynamic(set, binding int) {
	if t.locked {
		return
	}
	for _, b := range t.bindings {
		if b.Set == set && b.Binding == binding &&
			(b.Type == vk.DescriptorTypeUniformBuffer ||
				b.Type == vk.DescriptorTypeStorageBuffer) {
			t.dynamic[[2]int{set, binding}] = true
			return
		}
	}
}

// lock derives the set layouts and pipeline layout through the cache.
// After locking, the technique's interface is immutable.
func (t *Technique) lock() error {
	if t.locked {
		return nil
	}

	numSets := 0
	for _, b := range t.bindings {
		if b.Set+1 > numSets {
			numSets = b.Set + 1
		}
	}

	t.setLayouts = make([]*cacheElem, numSets)
	for set := 0; set < numSets; set++ {
		var info setLayoutInfo
		for _, b := range t.bindings {
			if b.Set != set {
				continue
			}

			typ := b.Type
			if t.dynamic[[2]int{set, b.Binding}] {
				switch typ {
				case vk.DescriptorTypeUniformBuffer:
					typ = vk.DescriptorTypeUniformBufferDynamic
				case vk.DescriptorTypeStorageBuffer:
					typ = vk.DescriptorTypeStorageBufferDynamic
				}
			}

			bind := setLayoutBinding{
				binding: uint32(b.Binding),
				typ:     typ,
				count:   max(1, b.Count),
				stages:  shaderStageFlags(b.Stages),
			}
			if s, ok := t.samplers[[2]int{set, b.Binding}]; ok {
				for i := uint32(0); i < bind.count; i++ {
					bind.immutable = append(bind.immutable, s)
				}
			}
			info.bindings = append(info.bindings, bind)
		}

		elem := t.renderer.cache.getSetLayout(info)
		if elem == nil {
			return ErrCacheCreate
		}
		t.setLayouts[set] = elem
	}

	var push []vk.PushConstantRange
	if t.pushSize > 0 {
		push = append(push, vk.PushConstantRange{
			StageFlags: shaderStageFlags(t.pushStages),
			Size:       t.pushSize,
		})
	}

	t.layout = t.renderer.cache.getPipelineLayout(pipelineLayoutInfo{
		setLayouts:    t.setLayouts,
		pushConstants: push,
	})
	if t.layout == nil {
		return ErrCacheCreate
	}

	t.locked = true
	return nil
}

// NumSets returns the number of descriptor sets of the technique.
func (t *Technique) NumSets() int {
	if err := t.lock(); err != nil {
		return 0
	}
	return len(t.setLayouts)
}

// Layout returns the Vulkan pipeline layout of the technique.
func (t *Technique) Layout() vk.PipelineLayout {
	if err := t.lock(); err != nil {
		return vk.NullPipelineLayout
	}
	return t.layout.layout
}

// Pipeline resolves the graphics pipeline of the technique against a render
// pass through the cache, creating it on first use. vertex describes the
// vertex input interface.
func (t *Technique) Pipeline(pass *Pass, vertex vk.PipelineVertexInputStateCreateInfo) (vk.Pipeline, error) {
	info, handles, err := t.pipelineInfo(pass, &vertex)
	if err != nil {
		return vk.NullPipeline, err
	}
	elem := t.renderer.cache.getGraphicsPipeline(info, handles)
	if elem == nil {
		return vk.NullPipeline, ErrCacheCreate
	}
	return elem.pipeline, nil
}

// Warmup pre-builds the graphics pipeline straight into the immutable
// cache tier. Must not run concurrently with pipeline lookups.
func (t *Technique) Warmup(pass *Pass, vertex vk.PipelineVertexInputStateCreateInfo) error {
	info, handles, err := t.pipelineInfo(pass, &vertex)
	if err != nil {
		return err
	}
	return t.renderer.cache.warmupGraphicsPipeline(info, handles)
}

// pipelineInfo assembles the pipeline descriptor and its key handles.
func (t *Technique) pipelineInfo(pass *Pass, vertex *vk.PipelineVertexInputStateCreateInfo) (*vk.GraphicsPipelineCreateInfo, []uint64, error) {
	if pass.typ != PassRender {
		return nil, nil, ErrGraphInvalid
	}
	if err := t.lock(); err != nil {
		return nil, nil, err
	}
	if err := pass.warmup(); err != nil {
		return nil, nil, err
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(t.shaders))
	handles := make([]uint64, 0, len(t.shaders)+2)
	for i, s := range t.shaders {
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(shaderStageFlags(s.stage)),
			Module: s.module,
			PName:  "main\x00",
		}
		handles = append(handles, s.index)
	}

	state := &pass.state
	viewports := []vk.Viewport{{
		Width:    float32(max(1, pass.fWidth)),
		Height:   float32(max(1, pass.fHeight)),
		MinDepth: 0, MaxDepth: 1,
	}}
	scissors := []vk.Rect2D{{
		Extent: vk.Extent2D{Width: max(1, pass.fWidth), Height: max(1, pass.fHeight)},
	}}

	ia := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: topology(state.raster.Topo),
	}
	vp := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    viewports,
		ScissorCount:  1,
		PScissors:     scissors,
	}
	rs := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: polygonMode(state.raster.Mode),
		CullMode:    cullMode(state.raster.Cull),
		FrontFace:   frontFace(state.raster.Front),
		LineWidth:   1,
	}
	ms := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: state.samples,
		MinSampleShading:     1,
	}
	ds := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vkBool(state.depthEnabled),
		DepthWriteEnable:  vkBool(state.depthEnabled && state.depth.Flags&types.DepthWrite != 0),
		DepthCompareOp:    compareOp(state.depth.Cmp),
		StencilTestEnable: vkBool(state.stencEnabled),
		Front:             stencilOpState(state.stencil.Front),
		Back:              stencilOpState(state.stencil.Back),
		MinDepthBounds:    state.depth.MinDepth,
		MaxDepthBounds:    state.depth.MaxDepth,
	}
	if state.depth.Flags&types.DepthBounded != 0 {
		ds.DepthBoundsTestEnable = vk.True
	}
	// Viewport and scissor are dynamic; the frame sets them to the pass
	// extent each record, so resizes do not invalidate pipelines.
	dyn := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: 2,
		PDynamicStates: []vk.DynamicState{
			vk.DynamicStateViewport,
			vk.DynamicStateScissor,
		},
	}
	cb := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vkBool(state.blend.Logic != types.LogicNoOp),
		LogicOp:         logicOp(state.blend.Logic),
		AttachmentCount: uint32(len(pass.blends)),
		PAttachments:    pass.blends,
		BlendConstants:  state.blend.Constants,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   vertex,
		PInputAssemblyState: &ia,
		PViewportState:      &vp,
		PRasterizationState: &rs,
		PMultisampleState:   &ms,
		PDepthStencilState:  &ds,
		PColorBlendState:    &cb,
		PDynamicState:       &dyn,
		Layout:              t.layout.layout,
		RenderPass:          pass.vkPass,
		Subpass:             0,
	}

	// The pass generation folds into the render pass handle slot so stale
	// pipelines die with a rebuild of the pass.
	handles = append(handles, t.layout.index,
		pass.buildPass.index<<16|uint64(pass.gen))

	return &info, handles, nil
}

// ComputePipeline resolves the compute pipeline of the technique.
// The technique must consist of a single compute shader.
func (t *Technique) ComputePipeline() (vk.Pipeline, error) {
	if len(t.shaders) != 1 || t.shaders[0].stage != types.StageCompute {
		Logger().Warn("compute pipelines need exactly one compute shader")
		return vk.NullPipeline, ErrGraphInvalid
	}
	if err := t.lock(); err != nil {
		return vk.NullPipeline, err
	}

	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: t.shaders[0].module,
			PName:  "main\x00",
		},
		Layout: t.layout.layout,
	}

	handles := []uint64{t.shaders[0].index, t.layout.index}
	elem := t.renderer.cache.getComputePipeline(&info, handles)
	if elem == nil {
		return vk.NullPipeline, ErrCacheCreate
	}
	return elem.pipeline, nil
}

// destroy drops references; the cache owns every derived Vulkan object.
func (t *Technique) destroy() {
	t.setLayouts = nil
	t.layout = nil
	t.renderer = nil
}

func stencilOpState(s types.StencilOpState) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      stencilOp(s.Fail),
		PassOp:      stencilOp(s.Pass),
		DepthFailOp: stencilOp(s.DepthFail),
		CompareOp:   compareOp(s.Cmp),
		CompareMask: s.CmpMask,
		WriteMask:   s.WriteMask,
		Reference:   s.Reference,
	}
}
