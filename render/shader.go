// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"sync/atomic"

	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// Shader wraps one SPIR-V module. The bytecode is consumed opaquely; no
// reflection or translation happens here.
type Shader struct {
	device *Device
	stage  types.ShaderStage
	module vk.ShaderModule

	// index substitutes the module handle in pipeline cache keys.
	index uint64
}

// shaderIndex hands out stable per-process shader indices.
var shaderIndex atomic.Uint64

// NewShader creates a shader module from SPIR-V words.
func NewShader(device *Device, stage types.ShaderStage, spirv []uint32) (*Shader, error) {
	s := &Shader{device: device, stage: stage}

	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv)) * 4,
		PCode:    spirv,
	}
	if err := vkCheck(vk.CreateShaderModule(
		device.device, &smci, nil, &s.module), "vkCreateShaderModule"); err != nil {
		Logger().Error("could not create shader module", "err", err)
		return nil, err
	}

	s.index = shaderIndex.Add(1)
	return s, nil
}

// Stage returns the stage the shader executes at.
func (s *Shader) Stage() types.ShaderStage { return s.stage }

// Destroy releases the module. The device must not be executing any
// pipeline created from it.
func (s *Shader) Destroy() {
	if s.module != vk.NullShaderModule {
		vk.DestroyShaderModule(s.device.device, s.module, nil)
		s.module = vk.NullShaderModule
	}
}
