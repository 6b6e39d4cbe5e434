// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"testing"

	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestKeySetLayoutNormalization(t *testing.T) {
	sampler := &cacheElem{typ: elemSampler, index: 9}

	info := setLayoutInfo{
		bindings: []setLayoutBinding{
			{binding: 0, typ: vk.DescriptorTypeUniformBuffer, count: 1,
				stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
			{binding: 1, typ: vk.DescriptorTypeCombinedImageSampler, count: 1,
				stages:    vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
				immutable: []*cacheElem{sampler}},
		},
	}

	// Identical structural contents map to identical keys regardless of
	// value identity.
	again := setLayoutInfo{
		bindings: []setLayoutBinding{
			{binding: 0, typ: vk.DescriptorTypeUniformBuffer, count: 1,
				stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
			{binding: 1, typ: vk.DescriptorTypeCombinedImageSampler, count: 1,
				stages:    vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
				immutable: []*cacheElem{{typ: elemSampler, index: 9}}},
		},
	}
	require.True(t, keySetLayout(info).Equal(keySetLayout(again)))

	// A different sampler handle index must produce a different key.
	again.bindings[1].immutable = []*cacheElem{{typ: elemSampler, index: 10}}
	require.False(t, keySetLayout(info).Equal(keySetLayout(again)))
}

func TestKeyPipelineLayoutHandles(t *testing.T) {
	a := pipelineLayoutInfo{setLayouts: []*cacheElem{{index: 1}, {index: 2}}}
	b := pipelineLayoutInfo{setLayouts: []*cacheElem{{index: 1}, {index: 2}}}
	require.True(t, keyPipelineLayout(a).Equal(keyPipelineLayout(b)))

	b.setLayouts[1] = &cacheElem{index: 3}
	require.False(t, keyPipelineLayout(a).Equal(keyPipelineLayout(b)))

	// Push constant ranges are keyed.
	a.pushConstants = []vk.PushConstantRange{{Offset: 0, Size: 16}}
	b.setLayouts[1] = &cacheElem{index: 2}
	require.False(t, keyPipelineLayout(a).Equal(keyPipelineLayout(b)))
}

func TestKeyRenderPassFieldOrder(t *testing.T) {
	mk := func(loadOp vk.AttachmentLoadOp) *vk.RenderPassCreateInfo {
		color := []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
		return &vk.RenderPassCreateInfo{
			SType: vk.StructureTypeRenderPassCreateInfo,
			PAttachments: []vk.AttachmentDescription{{
				Format:        vk.FormatB8g8r8a8Unorm,
				Samples:       vk.SampleCount1Bit,
				LoadOp:        loadOp,
				StoreOp:       vk.AttachmentStoreOpStore,
				InitialLayout: vk.ImageLayoutUndefined,
				FinalLayout:   vk.ImageLayoutPresentSrc,
			}},
			PSubpasses: []vk.SubpassDescription{{
				PipelineBindPoint:    vk.PipelineBindPointGraphics,
				ColorAttachmentCount: 1,
				PColorAttachments:    color,
			}},
		}
	}

	require.True(t, keyRenderPass(mk(vk.AttachmentLoadOpClear)).
		Equal(keyRenderPass(mk(vk.AttachmentLoadOpClear))))
	require.False(t, keyRenderPass(mk(vk.AttachmentLoadOpClear)).
		Equal(keyRenderPass(mk(vk.AttachmentLoadOpLoad))))
}

func TestKeySamplerExcludesBinding(t *testing.T) {
	s := samplerFixture()
	k1 := keySampler(s)

	// Binding and array index address a technique, not the sampler object.
	s.Binding = 3
	s.Index = 1
	require.True(t, k1.Equal(keySampler(s)))

	s.MaxAnisotropy = 8
	require.False(t, k1.Equal(keySampler(s)))
}

func TestKeyTagsNeverCollide(t *testing.T) {
	// An empty set layout and an empty pipeline layout push the same
	// amount of data; the leading tag must keep them apart.
	k1 := keySetLayout(setLayoutInfo{})
	k2 := keyPipelineLayout(pipelineLayoutInfo{})
	require.False(t, k1.Equal(k2))
}
