// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package types

// AccessMask declares how an operation accesses a resource.
// Masks combine; a consumption or dependency signal carries the union of
// every access it performs.
type AccessMask uint32

const (
	AccessVertexRead AccessMask = 1 << iota
	AccessIndexRead
	AccessUniformRead
	AccessIndirectRead
	AccessSampledRead
	AccessStorageRead
	AccessStorageWrite
	AccessAttachmentInput
	// AccessAttachmentRead is necessary for blending.
	AccessAttachmentRead
	// AccessAttachmentWrite is necessary for depth/stencil testing.
	AccessAttachmentWrite
	AccessAttachmentResolve
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite

	// Modifiers, meaningless without other flags.
	AccessComputeAsync
	AccessTransferAsync
	// AccessDiscard marks contents that may be discarded after the operation.
	AccessDiscard
)

// AccessModifiers is the set of modifier bits that qualify, rather than
// describe, an access.
const AccessModifiers = AccessComputeAsync | AccessTransferAsync | AccessDiscard

const accessWrites = AccessStorageWrite | AccessAttachmentWrite |
	AccessAttachmentResolve | AccessTransferWrite | AccessHostWrite

const accessAttachment = AccessAttachmentInput | AccessAttachmentRead |
	AccessAttachmentWrite | AccessAttachmentResolve

// Writes reports whether the mask contains any writing access.
func (m AccessMask) Writes() bool { return m&accessWrites != 0 }

// Reads reports whether the mask contains any reading access.
func (m AccessMask) Reads() bool { return m&^(accessWrites|AccessModifiers) != 0 }

// Attachment reports whether the mask accesses a resource as a framebuffer
// attachment (input, read, write or resolve).
func (m AccessMask) Attachment() bool { return m&accessAttachment != 0 }

// Async reports the async-queue modifiers of the mask.
func (m AccessMask) Async() AccessMask {
	return m & (AccessComputeAsync | AccessTransferAsync)
}

// ShaderStage declares the shader stages that perform an access.
type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageTessControl
	StageTessEvaluation
	StageGeometry
	StageFragment
	StageCompute
)

// StageAny matches every shader stage.
const StageAny = StageVertex | StageTessControl | StageTessEvaluation |
	StageGeometry | StageFragment | StageCompute
