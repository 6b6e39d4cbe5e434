// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// Special Vulkan values the binding does not name.
const (
	attachmentUnused     = ^uint32(0)
	queueFamilyIgnored   = ^uint32(0)
	remainingMipLevels   = ^uint32(0)
	remainingArrayLayers = ^uint32(0)
	noTimeout            = ^uint64(0)
	wholeSize            = ^uint64(0)
)

// accessFlags expands an access mask into Vulkan access flags.
// Depth/stencil attachment bits are only produced when the format has a
// depth or stencil component; host accesses are dropped for images, they
// cannot be mapped.
func accessFlags(mask types.AccessMask, fmt types.Format) vk.AccessFlags {
	ds := fmt.HasDepthOrStencil()
	var f vk.AccessFlagBits

	if mask&types.AccessVertexRead != 0 {
		f |= vk.AccessVertexAttributeReadBit
	}
	if mask&types.AccessIndexRead != 0 {
		f |= vk.AccessIndexReadBit
	}
	if mask&types.AccessUniformRead != 0 {
		f |= vk.AccessUniformReadBit
	}
	if mask&types.AccessIndirectRead != 0 {
		f |= vk.AccessIndirectCommandReadBit
	}
	if mask&(types.AccessSampledRead|types.AccessStorageRead) != 0 {
		f |= vk.AccessShaderReadBit
	}
	if mask&types.AccessStorageWrite != 0 {
		f |= vk.AccessShaderWriteBit
	}
	if mask&types.AccessAttachmentInput != 0 {
		f |= vk.AccessInputAttachmentReadBit
	}
	if mask&types.AccessAttachmentRead != 0 {
		if ds {
			f |= vk.AccessDepthStencilAttachmentReadBit
		} else {
			f |= vk.AccessColorAttachmentReadBit
		}
	}
	if mask&(types.AccessAttachmentWrite|types.AccessAttachmentResolve) != 0 {
		if ds {
			f |= vk.AccessDepthStencilAttachmentWriteBit
		} else {
			f |= vk.AccessColorAttachmentWriteBit
		}
	}
	if mask&types.AccessTransferRead != 0 {
		f |= vk.AccessTransferReadBit
	}
	if mask&types.AccessTransferWrite != 0 {
		f |= vk.AccessTransferWriteBit
	}

	return vk.AccessFlags(f)
}

// pipelineStageFlags expands an access mask plus shader stages into the
// pipeline stages that may perform those accesses, per the Vulkan
// "supported pipeline stages" table.
func pipelineStageFlags(mask types.AccessMask, stage types.ShaderStage, fmt types.Format) vk.PipelineStageFlags {
	ds := fmt.HasDepthOrStencil()
	var f vk.PipelineStageFlagBits

	shader := func() vk.PipelineStageFlagBits {
		var s vk.PipelineStageFlagBits
		if stage == 0 || stage&types.StageVertex != 0 {
			s |= vk.PipelineStageVertexShaderBit
		}
		if stage == 0 || stage&types.StageTessControl != 0 {
			s |= vk.PipelineStageTessellationControlShaderBit
		}
		if stage == 0 || stage&types.StageTessEvaluation != 0 {
			s |= vk.PipelineStageTessellationEvaluationShaderBit
		}
		if stage == 0 || stage&types.StageGeometry != 0 {
			s |= vk.PipelineStageGeometryShaderBit
		}
		if stage == 0 || stage&types.StageFragment != 0 {
			s |= vk.PipelineStageFragmentShaderBit
		}
		if stage == 0 || stage&types.StageCompute != 0 {
			s |= vk.PipelineStageComputeShaderBit
		}
		return s
	}

	if mask&(types.AccessVertexRead|types.AccessIndexRead) != 0 {
		f |= vk.PipelineStageVertexInputBit
	}
	if mask&types.AccessIndirectRead != 0 {
		f |= vk.PipelineStageDrawIndirectBit
	}
	if mask&(types.AccessUniformRead|types.AccessSampledRead|
		types.AccessStorageRead|types.AccessStorageWrite) != 0 {
		f |= shader()
	}
	if mask&types.AccessAttachmentInput != 0 {
		f |= vk.PipelineStageFragmentShaderBit
	}
	if mask&(types.AccessAttachmentRead|types.AccessAttachmentWrite|
		types.AccessAttachmentResolve) != 0 {
		if ds {
			f |= vk.PipelineStageEarlyFragmentTestsBit |
				vk.PipelineStageLateFragmentTestsBit
		} else {
			f |= vk.PipelineStageColorAttachmentOutputBit
		}
	}
	if mask&(types.AccessTransferRead|types.AccessTransferWrite) != 0 {
		f |= vk.PipelineStageTransferBit
	}
	if mask&(types.AccessHostRead|types.AccessHostWrite) != 0 {
		f |= vk.PipelineStageHostBit
	}

	if f == 0 {
		f = vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageFlags(f)
}

// modStageFlags clamps pipeline stages to what the recording queue supports:
// the compute queue cannot wait on or signal graphics-only stages.
func modStageFlags(stages vk.PipelineStageFlags, q *Queue, d *Device) vk.PipelineStageFlags {
	if q.Family != d.compute.Family || q.Family == d.graphics.Family {
		return stages
	}
	graphicsOnly := vk.PipelineStageFlags(
		vk.PipelineStageVertexInputBit |
			vk.PipelineStageVertexShaderBit |
			vk.PipelineStageTessellationControlShaderBit |
			vk.PipelineStageTessellationEvaluationShaderBit |
			vk.PipelineStageGeometryShaderBit |
			vk.PipelineStageFragmentShaderBit |
			vk.PipelineStageEarlyFragmentTestsBit |
			vk.PipelineStageLateFragmentTestsBit |
			vk.PipelineStageColorAttachmentOutputBit)
	stages &^= graphicsOnly
	if stages == 0 {
		stages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return stages
}

// imageLayout picks the image layout implied by an access mask and format.
func imageLayout(mask types.AccessMask, fmt types.Format) vk.ImageLayout {
	ds := fmt.HasDepthOrStencil()

	switch {
	case mask&(types.AccessAttachmentWrite|types.AccessAttachmentResolve) != 0:
		if ds {
			return vk.ImageLayoutDepthStencilAttachmentOptimal
		}
		return vk.ImageLayoutColorAttachmentOptimal

	case mask&types.AccessAttachmentRead != 0:
		if ds {
			return vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		return vk.ImageLayoutColorAttachmentOptimal

	case mask&(types.AccessAttachmentInput|types.AccessSampledRead) != 0:
		if ds {
			return vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		return vk.ImageLayoutShaderReadOnlyOptimal

	case mask&(types.AccessStorageRead|types.AccessStorageWrite) != 0:
		return vk.ImageLayoutGeneral

	case mask&types.AccessTransferRead != 0:
		return vk.ImageLayoutTransferSrcOptimal

	case mask&types.AccessTransferWrite != 0:
		return vk.ImageLayoutTransferDstOptimal
	}

	return vk.ImageLayoutGeneral
}

// aspectFlags converts image aspects.
func aspectFlags(a types.ImageAspect) vk.ImageAspectFlags {
	var f vk.ImageAspectFlagBits
	if a&types.AspectColor != 0 {
		f |= vk.ImageAspectColorBit
	}
	if a&types.AspectDepth != 0 {
		f |= vk.ImageAspectDepthBit
	}
	if a&types.AspectStencil != 0 {
		f |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(f)
}

// shaderStageFlags converts shader stages.
func shaderStageFlags(s types.ShaderStage) vk.ShaderStageFlags {
	var f vk.ShaderStageFlagBits
	if s&types.StageVertex != 0 {
		f |= vk.ShaderStageVertexBit
	}
	if s&types.StageTessControl != 0 {
		f |= vk.ShaderStageTessellationControlBit
	}
	if s&types.StageTessEvaluation != 0 {
		f |= vk.ShaderStageTessellationEvaluationBit
	}
	if s&types.StageGeometry != 0 {
		f |= vk.ShaderStageGeometryBit
	}
	if s&types.StageFragment != 0 {
		f |= vk.ShaderStageFragmentBit
	}
	if s&types.StageCompute != 0 {
		f |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(f)
}

// viewType converts an interpreted view dimensionality.
func viewType(t types.ViewType) vk.ImageViewType {
	switch t {
	case types.View1D:
		return vk.ImageViewType1d
	case types.View1DArray:
		return vk.ImageViewType1dArray
	case types.View2DArray:
		return vk.ImageViewType2dArray
	case types.ViewCube:
		return vk.ImageViewTypeCube
	case types.ViewCubeArray:
		return vk.ImageViewTypeCubeArray
	case types.View3D:
		return vk.ImageViewType3d
	default:
		return vk.ImageViewType2d
	}
}

// imageViewType translates an image type to its natural view type.
func imageViewType(t types.ImageType) vk.ImageViewType {
	switch t {
	case types.Image1D:
		return vk.ImageViewType1d
	case types.Image3D:
		return vk.ImageViewType3d
	case types.ImageCube:
		return vk.ImageViewTypeCube
	default:
		return vk.ImageViewType2d
	}
}

func vkImageType(t types.ImageType) vk.ImageType {
	switch t {
	case types.Image1D:
		return vk.ImageType1d
	case types.Image3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

// imageUsageFlags derives Vulkan usage from a description's usage and
// format; attachment usage is always included, the renderer owns these
// images to render into them.
func imageUsageFlags(usage types.ImageUsage, fmt types.Format) vk.ImageUsageFlags {
	var f vk.ImageUsageFlagBits
	if fmt.HasDepthOrStencil() {
		f |= vk.ImageUsageDepthStencilAttachmentBit
	} else {
		f |= vk.ImageUsageColorAttachmentBit
	}
	if usage&types.ImageSampled != 0 {
		f |= vk.ImageUsageSampledBit | vk.ImageUsageInputAttachmentBit
	}
	if usage&types.ImageStorage != 0 {
		f |= vk.ImageUsageStorageBit
	}
	if usage&types.ImageTransferSrc != 0 {
		f |= vk.ImageUsageTransferSrcBit
	}
	if usage&types.ImageTransferDst != 0 {
		f |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(f)
}

func compareOp(c types.CompareOp) vk.CompareOp {
	switch c {
	case types.CompareLess:
		return vk.CompareOpLess
	case types.CompareLessEqual:
		return vk.CompareOpLessOrEqual
	case types.CompareGreater:
		return vk.CompareOpGreater
	case types.CompareGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	case types.CompareEqual:
		return vk.CompareOpEqual
	case types.CompareNotEqual:
		return vk.CompareOpNotEqual
	case types.CompareAlways:
		return vk.CompareOpAlways
	default:
		return vk.CompareOpNever
	}
}

func blendFactor(f types.BlendFactor) vk.BlendFactor {
	switch f {
	case types.FactorOne:
		return vk.BlendFactorOne
	case types.FactorSrcColor:
		return vk.BlendFactorSrcColor
	case types.FactorOneMinusSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case types.FactorDstColor:
		return vk.BlendFactorDstColor
	case types.FactorOneMinusDstColor:
		return vk.BlendFactorOneMinusDstColor
	case types.FactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case types.FactorOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case types.FactorDstAlpha:
		return vk.BlendFactorDstAlpha
	case types.FactorOneMinusDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case types.FactorConstant:
		return vk.BlendFactorConstantColor
	case types.FactorOneMinusConstant:
		return vk.BlendFactorOneMinusConstantColor
	default:
		return vk.BlendFactorZero
	}
}

func blendOp(o types.BlendOp) vk.BlendOp {
	switch o {
	case types.BlendSubtract:
		return vk.BlendOpSubtract
	case types.BlendReverseSubtract:
		return vk.BlendOpReverseSubtract
	case types.BlendMin:
		return vk.BlendOpMin
	case types.BlendMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

func logicOp(o types.LogicOp) vk.LogicOp {
	switch o {
	case types.LogicClear:
		return vk.LogicOpClear
	case types.LogicAnd:
		return vk.LogicOpAnd
	case types.LogicOr:
		return vk.LogicOpOr
	case types.LogicXor:
		return vk.LogicOpXor
	case types.LogicCopy:
		return vk.LogicOpCopy
	default:
		return vk.LogicOpNoOp
	}
}

func stencilOp(o types.StencilOp) vk.StencilOp {
	switch o {
	case types.StencilZero:
		return vk.StencilOpZero
	case types.StencilReplace:
		return vk.StencilOpReplace
	case types.StencilIncrementClamp:
		return vk.StencilOpIncrementAndClamp
	case types.StencilDecrementClamp:
		return vk.StencilOpDecrementAndClamp
	case types.StencilInvert:
		return vk.StencilOpInvert
	case types.StencilIncrementWrap:
		return vk.StencilOpIncrementAndWrap
	case types.StencilDecrementWrap:
		return vk.StencilOpDecrementAndWrap
	default:
		return vk.StencilOpKeep
	}
}

func topology(t types.Topology) vk.PrimitiveTopology {
	switch t {
	case types.TopoPointList:
		return vk.PrimitiveTopologyPointList
	case types.TopoLineList:
		return vk.PrimitiveTopologyLineList
	case types.TopoLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case types.TopoTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case types.TopoTriangleFan:
		return vk.PrimitiveTopologyTriangleFan
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func cullMode(c types.CullMode) vk.CullModeFlags {
	switch c {
	case types.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case types.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

func polygonMode(m types.RasterMode) vk.PolygonMode {
	switch m {
	case types.RasterLine:
		return vk.PolygonModeLine
	case types.RasterPoint:
		return vk.PolygonModePoint
	default:
		return vk.PolygonModeFill
	}
}

func frontFace(f types.FrontFace) vk.FrontFace {
	if f == types.FrontFaceCCW {
		return vk.FrontFaceCounterClockwise
	}
	return vk.FrontFaceClockwise
}

func sampleCount(samples uint32) vk.SampleCountFlagBits {
	switch {
	case samples >= 64:
		return vk.SampleCount64Bit
	case samples >= 32:
		return vk.SampleCount32Bit
	case samples >= 16:
		return vk.SampleCount16Bit
	case samples >= 8:
		return vk.SampleCount8Bit
	case samples >= 4:
		return vk.SampleCount4Bit
	case samples >= 2:
		return vk.SampleCount2Bit
	default:
		return vk.SampleCount1Bit
	}
}

func filter(f types.Filter) vk.Filter {
	if f == types.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func mipmapMode(f types.Filter) vk.SamplerMipmapMode {
	if f == types.FilterLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func addressMode(w types.Wrapping) vk.SamplerAddressMode {
	switch w {
	case types.WrapRepeatMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case types.WrapClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case types.WrapClampToEdgeMirror:
		return vk.SamplerAddressModeMirrorClampToEdge
	case types.WrapClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	default:
		return vk.SamplerAddressModeRepeat
	}
}
