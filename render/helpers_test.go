// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/types"
)

// samplerFixture returns a representative sampler description.
func samplerFixture() types.Sampler {
	return types.Sampler{
		Flags:     types.SamplerAnisotropy,
		MinFilter: types.FilterLinear,
		MagFilter: types.FilterLinear,
		MipFilter: types.FilterNearest,
		WrapU:     types.WrapRepeat,
		WrapV:     types.WrapClampToEdge,
		WrapW:     types.WrapRepeat,
		MaxLod:    12,

		MaxAnisotropy: 4,
	}
}

// testDevice builds a Device with queue metadata only; enough for every
// code path that never dereferences the Vulkan handles.
func testDevice() *Device {
	d := &Device{}
	d.graphics = Queue{Family: 0}
	d.compute = Queue{Family: 1}
	return d
}

// testRenderer builds a Renderer around a handle-less device, with no
// virtual frames; graph and attachment bookkeeping work, Vulkan paths
// must not be reached.
func testRenderer() *Renderer {
	return &Renderer{
		device: testDevice(),
		pool:   newPool(testDevice(), 2, 8),
	}
}
