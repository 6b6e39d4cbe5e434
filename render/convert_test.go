// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"testing"

	"github.com/gogpu/vkgraph/types"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestAccessFlagsExpansion(t *testing.T) {
	color := types.FormatB8G8R8A8Unorm
	depth := types.FormatD32Sfloat

	// Attachment access splits on the format's aspects.
	require.Equal(t,
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		accessFlags(types.AccessAttachmentWrite, color))
	require.Equal(t,
		vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		accessFlags(types.AccessAttachmentWrite, depth))
	require.Equal(t,
		vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit),
		accessFlags(types.AccessAttachmentRead, depth))

	require.Equal(t,
		vk.AccessFlags(vk.AccessShaderReadBit),
		accessFlags(types.AccessSampledRead, color))
	require.Equal(t,
		vk.AccessFlags(vk.AccessShaderReadBit|vk.AccessShaderWriteBit),
		accessFlags(types.AccessStorageRead|types.AccessStorageWrite, color))

	// Host accesses cannot be expressed on images and are dropped.
	require.Equal(t, vk.AccessFlags(0),
		accessFlags(types.AccessHostRead|types.AccessHostWrite, color))
}

func TestPipelineStageExpansion(t *testing.T) {
	color := types.FormatB8G8R8A8Unorm
	depth := types.FormatD24UnormS8

	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		pipelineStageFlags(types.AccessVertexRead, types.StageVertex, color))

	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		pipelineStageFlags(types.AccessAttachmentWrite, types.StageFragment, color))

	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit|
			vk.PipelineStageLateFragmentTestsBit),
		pipelineStageFlags(types.AccessAttachmentWrite, types.StageFragment, depth))

	// Shader accesses narrow to the declared stages.
	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		pipelineStageFlags(types.AccessStorageWrite, types.StageCompute, color))
	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit|
			vk.PipelineStageFragmentShaderBit),
		pipelineStageFlags(types.AccessUniformRead,
			types.StageVertex|types.StageFragment, color))

	// An empty expansion falls back to top-of-pipe.
	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		pipelineStageFlags(0, 0, color))
}

func TestImageLayoutSelection(t *testing.T) {
	color := types.FormatB8G8R8A8Unorm
	depth := types.FormatD32Sfloat

	require.Equal(t, vk.ImageLayoutColorAttachmentOptimal,
		imageLayout(types.AccessAttachmentWrite, color))
	require.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal,
		imageLayout(types.AccessAttachmentWrite, depth))
	require.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal,
		imageLayout(types.AccessSampledRead, color))
	require.Equal(t, vk.ImageLayoutDepthStencilReadOnlyOptimal,
		imageLayout(types.AccessSampledRead, depth))
	require.Equal(t, vk.ImageLayoutGeneral,
		imageLayout(types.AccessStorageWrite, color))
	require.Equal(t, vk.ImageLayoutTransferSrcOptimal,
		imageLayout(types.AccessTransferRead, color))
	require.Equal(t, vk.ImageLayoutTransferDstOptimal,
		imageLayout(types.AccessTransferWrite, color))
}

func TestComputeQueueStageClamp(t *testing.T) {
	d := testDevice()

	// Graphics-only stages cannot be waited on from the compute queue.
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
		vk.PipelineStageComputeShaderBit)
	clamped := modStageFlags(stages, &d.compute, d)
	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), clamped)

	// Clamping everything away degrades to top-of-pipe.
	onlyGfx := vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	require.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		modStageFlags(onlyGfx, &d.compute, d))

	// The graphics queue passes through untouched.
	require.Equal(t, stages, modStageFlags(stages, &d.graphics, d))
}

func TestSubresourceRangeRemaining(t *testing.T) {
	r := subresourceRange(types.AspectColor, types.Range{})
	require.Equal(t, remainingMipLevels, r.LevelCount)
	require.Equal(t, remainingArrayLayers, r.LayerCount)

	r = subresourceRange(types.AspectDepth, types.Range{
		Mipmap: 1, NumMipmaps: 2, Layer: 3, NumLayers: 4,
	})
	require.Equal(t, uint32(1), r.BaseMipLevel)
	require.Equal(t, uint32(2), r.LevelCount)
	require.Equal(t, uint32(3), r.BaseArrayLayer)
	require.Equal(t, uint32(4), r.LayerCount)
	require.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), r.AspectMask)
}
