// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"unsafe"

	"github.com/gogpu/vkgraph/internal/hashkey"
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// Key type tags. Pushed first so keys of different object kinds can never
// collide byte-wise.
const (
	keyTagSetLayout uint32 = iota + 1
	keyTagPipelineLayout
	keyTagSampler
	keyTagRenderPass
	keyTagGraphicsPipeline
	keyTagComputePipeline
)

// setLayoutBinding is one binding of a descriptor-set layout descriptor.
type setLayoutBinding struct {
	binding uint32
	typ     vk.DescriptorType
	count   uint32
	stages  vk.ShaderStageFlags

	// immutable holds cached sampler elements, one per descriptor,
	// or nil for mutable samplers.
	immutable []*cacheElem
}

// setLayoutInfo describes a descriptor-set layout to the cache.
type setLayoutInfo struct {
	flags    vk.DescriptorSetLayoutCreateFlags
	bindings []setLayoutBinding
}

// pipelineLayoutInfo describes a pipeline layout to the cache.
type pipelineLayoutInfo struct {
	setLayouts    []*cacheElem
	pushConstants []vk.PushConstantRange
}

// The key builders below push every field that distinguishes a cache object,
// in a fixed order, and nothing else. Opaque handles are replaced by the
// stable index of the referenced cache element so keys are deterministic
// across runs. Extension flags that do not affect caching (pipeline-layout
// flags, render-pass flags, subpass flags, per-stage flags, entry-point
// strings) are dropped. Optional sub-structures get a leading presence byte;
// arrays get their length first.

func keySetLayout(info setLayoutInfo) hashkey.Key {
	b := hashkey.NewBuilder(64)
	b.PushUint32(keyTagSetLayout)
	b.PushUint32(uint32(info.flags))
	b.PushLen(len(info.bindings))

	for _, bind := range info.bindings {
		b.PushUint32(bind.binding)
		b.PushUint32(uint32(bind.typ))
		b.PushUint32(bind.count)
		b.PushUint32(uint32(bind.stages))

		b.PushBool(bind.count > 0 && bind.immutable != nil)
		for _, s := range bind.immutable {
			b.PushHandle(s.index)
		}
	}
	return b.Key()
}

func keyPipelineLayout(info pipelineLayoutInfo) hashkey.Key {
	b := hashkey.NewBuilder(64)
	b.PushUint32(keyTagPipelineLayout)
	b.PushLen(len(info.setLayouts))
	for _, l := range info.setLayouts {
		b.PushHandle(l.index)
	}

	b.PushLen(len(info.pushConstants))
	for _, p := range info.pushConstants {
		b.PushUint32(uint32(p.StageFlags))
		b.PushUint32(p.Offset)
		b.PushUint32(p.Size)
	}
	return b.Key()
}

// keySampler pushes the sampler parameters; the binding and array index of
// the description address a technique, not the sampler object, and are
// excluded. The reduction mode is the one pNext extension the key keeps.
func keySampler(s types.Sampler) hashkey.Key {
	b := hashkey.NewBuilder(64)
	b.PushUint32(keyTagSampler)

	b.PushBool(s.Mode != types.FilterModeAverage)
	if s.Mode != types.FilterModeAverage {
		b.PushUint32(uint32(s.Mode))
	}

	b.PushUint32(uint32(filter(s.MagFilter)))
	b.PushUint32(uint32(filter(s.MinFilter)))
	b.PushUint32(uint32(mipmapMode(s.MipFilter)))
	b.PushUint32(uint32(addressMode(s.WrapU)))
	b.PushUint32(uint32(addressMode(s.WrapV)))
	b.PushUint32(uint32(addressMode(s.WrapW)))
	b.PushFloat32(s.MipLodBias)
	b.PushBool(s.Flags&types.SamplerAnisotropy != 0)
	b.PushFloat32(s.MaxAnisotropy)
	b.PushBool(s.Flags&types.SamplerCompare != 0)
	b.PushUint32(uint32(compareOp(s.Cmp)))
	b.PushFloat32(s.MinLod)
	b.PushFloat32(s.MaxLod)
	b.PushBool(s.Flags&types.SamplerUnnormalized != 0)
	return b.Key()
}

func keyRenderPass(info *vk.RenderPassCreateInfo) hashkey.Key {
	b := hashkey.NewBuilder(256)
	b.PushUint32(keyTagRenderPass)

	b.PushLen(len(info.PAttachments))
	for _, a := range info.PAttachments {
		b.PushUint32(uint32(a.Flags))
		b.PushUint32(uint32(a.Format))
		b.PushUint32(uint32(a.Samples))
		b.PushUint32(uint32(a.LoadOp))
		b.PushUint32(uint32(a.StoreOp))
		b.PushUint32(uint32(a.StencilLoadOp))
		b.PushUint32(uint32(a.StencilStoreOp))
		b.PushUint32(uint32(a.InitialLayout))
		b.PushUint32(uint32(a.FinalLayout))
	}

	b.PushLen(len(info.PSubpasses))
	for i := range info.PSubpasses {
		sd := &info.PSubpasses[i]
		b.PushUint32(uint32(sd.PipelineBindPoint))

		b.PushLen(len(sd.PInputAttachments))
		for _, r := range sd.PInputAttachments {
			b.PushUint32(r.Attachment)
			b.PushUint32(uint32(r.Layout))
		}

		b.PushLen(len(sd.PColorAttachments))
		for _, r := range sd.PColorAttachments {
			b.PushUint32(r.Attachment)
			b.PushUint32(uint32(r.Layout))
		}

		b.PushBool(len(sd.PResolveAttachments) > 0)
		for _, r := range sd.PResolveAttachments {
			b.PushUint32(r.Attachment)
			b.PushUint32(uint32(r.Layout))
		}

		b.PushBool(sd.PDepthStencilAttachment != nil)
		if sd.PDepthStencilAttachment != nil {
			b.PushUint32(sd.PDepthStencilAttachment.Attachment)
			b.PushUint32(uint32(sd.PDepthStencilAttachment.Layout))
		}

		b.PushLen(len(sd.PPreserveAttachments))
		for _, p := range sd.PPreserveAttachments {
			b.PushUint32(p)
		}
	}

	b.PushLen(len(info.PDependencies))
	for _, d := range info.PDependencies {
		b.PushUint32(d.SrcSubpass)
		b.PushUint32(d.DstSubpass)
		b.PushUint32(uint32(d.SrcStageMask))
		b.PushUint32(uint32(d.DstStageMask))
		b.PushUint32(uint32(d.SrcAccessMask))
		b.PushUint32(uint32(d.DstAccessMask))
		b.PushUint32(uint32(d.DependencyFlags))
	}
	return b.Key()
}

// pushStage pushes one shader stage, substituting the module handle with the
// next caller-supplied index. Returns the number of handles consumed.
func pushStage(b *hashkey.Builder, s *vk.PipelineShaderStageCreateInfo, handles []uint64) int {
	b.PushUint32(uint32(s.Stage))
	b.PushHandle(handles[0])

	b.PushBool(s.PSpecializationInfo != nil)
	if si := s.PSpecializationInfo; si != nil {
		b.PushLen(len(si.PMapEntries))
		for _, e := range si.PMapEntries {
			b.PushUint32(e.ConstantID)
			b.PushUint32(e.Offset)
			b.PushUint64(uint64(e.Size))
		}
		b.PushUint64(uint64(si.DataSize))
		if si.DataSize > 0 && si.PData != nil {
			b.PushBytes(unsafe.Slice((*byte)(si.PData), si.DataSize))
		}
	}
	return 1
}

// keyGraphicsPipeline consumes handles in order: one per shader stage, then
// the pipeline layout, then the render pass.
func keyGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo, handles []uint64) hashkey.Key {
	b := hashkey.NewBuilder(512)
	b.PushUint32(keyTagGraphicsPipeline)
	b.PushUint32(uint32(info.Flags))

	b.PushLen(len(info.PStages))
	h := 0
	for i := range info.PStages {
		h += pushStage(b, &info.PStages[i], handles[h:])
	}

	vi := info.PVertexInputState
	b.PushLen(len(vi.PVertexBindingDescriptions))
	for _, d := range vi.PVertexBindingDescriptions {
		b.PushUint32(d.Binding)
		b.PushUint32(d.Stride)
		b.PushUint32(uint32(d.InputRate))
	}
	b.PushLen(len(vi.PVertexAttributeDescriptions))
	for _, d := range vi.PVertexAttributeDescriptions {
		b.PushUint32(d.Location)
		b.PushUint32(d.Binding)
		b.PushUint32(uint32(d.Format))
		b.PushUint32(d.Offset)
	}

	ia := info.PInputAssemblyState
	b.PushUint32(uint32(ia.Topology))
	b.PushUint32(uint32(ia.PrimitiveRestartEnable))

	b.PushBool(info.PTessellationState != nil)
	if ts := info.PTessellationState; ts != nil {
		b.PushUint32(ts.PatchControlPoints)
	}

	b.PushBool(info.PViewportState != nil)
	if vs := info.PViewportState; vs != nil {
		b.PushUint32(vs.ViewportCount)
		b.PushBool(len(vs.PViewports) > 0)
		for _, v := range vs.PViewports {
			b.PushFloat32(v.X)
			b.PushFloat32(v.Y)
			b.PushFloat32(v.Width)
			b.PushFloat32(v.Height)
			b.PushFloat32(v.MinDepth)
			b.PushFloat32(v.MaxDepth)
		}
		b.PushUint32(vs.ScissorCount)
		b.PushBool(len(vs.PScissors) > 0)
		for _, s := range vs.PScissors {
			b.PushUint32(uint32(s.Offset.X))
			b.PushUint32(uint32(s.Offset.Y))
			b.PushUint32(s.Extent.Width)
			b.PushUint32(s.Extent.Height)
		}
	}

	rs := info.PRasterizationState
	b.PushUint32(uint32(rs.DepthClampEnable))
	b.PushUint32(uint32(rs.RasterizerDiscardEnable))
	b.PushUint32(uint32(rs.PolygonMode))
	b.PushUint32(uint32(rs.CullMode))
	b.PushUint32(uint32(rs.FrontFace))
	b.PushUint32(uint32(rs.DepthBiasEnable))
	b.PushFloat32(rs.DepthBiasConstantFactor)
	b.PushFloat32(rs.DepthBiasClamp)
	b.PushFloat32(rs.DepthBiasSlopeFactor)
	b.PushFloat32(rs.LineWidth)

	b.PushBool(info.PMultisampleState != nil)
	if ms := info.PMultisampleState; ms != nil {
		b.PushUint32(uint32(ms.RasterizationSamples))
		b.PushUint32(uint32(ms.SampleShadingEnable))
		b.PushFloat32(ms.MinSampleShading)
		// Sample masks are ignored.
		b.PushUint32(uint32(ms.AlphaToCoverageEnable))
		b.PushUint32(uint32(ms.AlphaToOneEnable))
	}

	b.PushBool(info.PDepthStencilState != nil)
	if ds := info.PDepthStencilState; ds != nil {
		b.PushUint32(uint32(ds.DepthTestEnable))
		b.PushUint32(uint32(ds.DepthWriteEnable))
		b.PushUint32(uint32(ds.DepthCompareOp))
		b.PushUint32(uint32(ds.DepthBoundsTestEnable))
		b.PushUint32(uint32(ds.StencilTestEnable))
		pushStencilOpState(b, ds.Front)
		pushStencilOpState(b, ds.Back)
		b.PushFloat32(ds.MinDepthBounds)
		b.PushFloat32(ds.MaxDepthBounds)
	}

	b.PushBool(info.PColorBlendState != nil)
	if cb := info.PColorBlendState; cb != nil {
		b.PushUint32(uint32(cb.LogicOpEnable))
		b.PushUint32(uint32(cb.LogicOp))
		b.PushLen(len(cb.PAttachments))
		for _, a := range cb.PAttachments {
			b.PushUint32(uint32(a.BlendEnable))
			b.PushUint32(uint32(a.SrcColorBlendFactor))
			b.PushUint32(uint32(a.DstColorBlendFactor))
			b.PushUint32(uint32(a.ColorBlendOp))
			b.PushUint32(uint32(a.SrcAlphaBlendFactor))
			b.PushUint32(uint32(a.DstAlphaBlendFactor))
			b.PushUint32(uint32(a.AlphaBlendOp))
			b.PushUint32(uint32(a.ColorWriteMask))
		}
		for _, c := range cb.BlendConstants {
			b.PushFloat32(c)
		}
	}

	b.PushBool(info.PDynamicState != nil)
	if dy := info.PDynamicState; dy != nil {
		b.PushLen(len(dy.PDynamicStates))
		for _, d := range dy.PDynamicStates {
			b.PushUint32(uint32(d))
		}
	}

	b.PushHandle(handles[h])   // Pipeline layout.
	b.PushHandle(handles[h+1]) // Render pass.
	b.PushUint32(info.Subpass)
	// Base pipeline and index are ignored.
	return b.Key()
}

// keyComputePipeline consumes handles in order: shader module, then layout.
func keyComputePipeline(info *vk.ComputePipelineCreateInfo, handles []uint64) hashkey.Key {
	b := hashkey.NewBuilder(128)
	b.PushUint32(keyTagComputePipeline)
	b.PushUint32(uint32(info.Flags))

	h := pushStage(b, &info.Stage, handles)
	b.PushHandle(handles[h]) // Pipeline layout.
	// Base pipeline and index are ignored.
	return b.Key()
}

func pushStencilOpState(b *hashkey.Builder, s vk.StencilOpState) {
	b.PushUint32(uint32(s.FailOp))
	b.PushUint32(uint32(s.PassOp))
	b.PushUint32(uint32(s.DepthFailOp))
	b.PushUint32(uint32(s.CompareOp))
	b.PushUint32(s.CompareMask)
	b.PushUint32(s.WriteMask)
	b.PushUint32(s.Reference)
}
