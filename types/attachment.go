// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package types

// ImageType is the dimensionality of an image attachment.
type ImageType uint32

const (
	Image1D ImageType = iota
	Image2D
	Image3D
	ImageCube
)

// MemoryFlags describe the desired memory properties of an attachment.
type MemoryFlags uint32

const (
	MemoryDeviceLocal MemoryFlags = 1 << iota
	MemoryHostVisible
)

// ImageUsage describes the non-attachment usages an image must support.
type ImageUsage uint32

const (
	ImageSampled ImageUsage = 1 << iota
	ImageStorage
	ImageTransferSrc
	ImageTransferDst
)

// SizeClass selects absolute or relative attachment sizing.
type SizeClass uint32

const (
	SizeAbsolute SizeClass = iota
	// SizeRelative sizes the attachment as scale factors of another
	// attachment's resolved size.
	SizeRelative
)

// Attachment describes an image attachment of a renderer.
//
// With SizeAbsolute, Width/Height/Depth are taken verbatim. With
// SizeRelative, XScale/YScale/ZScale multiply the resolved size of the
// attachment at index Ref.
type Attachment struct {
	Type   ImageType
	Flags  MemoryFlags
	Usage  ImageUsage
	Format Format
	Layers uint32

	Size SizeClass
	// Ref is the index of the attachment the size is relative to.
	Ref int

	Width  uint32
	Height uint32
	Depth  uint32

	XScale float32
	YScale float32
	ZScale float32
}

// Empty reports whether the attachment description is the empty (dead) slot.
func (a Attachment) Empty() bool {
	return a == Attachment{}
}

// Format identifies a pixel format. Values alias VkFormat so descriptions
// round-trip through Vulkan without a translation table; the named constants
// below cover the formats the renderer itself inspects.
type Format uint32

// Formats the render package special-cases for aspect derivation.
// Values match the Vulkan format enumeration.
const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatB8G8R8A8Unorm Format = 44
	FormatB8G8R8A8Srgb  Format = 50
	FormatD16Unorm      Format = 124
	FormatX8D24Unorm    Format = 125
	FormatD32Sfloat     Format = 126
	FormatS8Uint        Format = 127
	FormatD16UnormS8    Format = 128
	FormatD24UnormS8    Format = 129
	FormatD32SfloatS8   Format = 130
)

// HasDepth reports whether the format carries a depth component.
func (f Format) HasDepth() bool {
	switch f {
	case FormatD16Unorm, FormatX8D24Unorm, FormatD32Sfloat,
		FormatD16UnormS8, FormatD24UnormS8, FormatD32SfloatS8:
		return true
	}
	return false
}

// HasStencil reports whether the format carries a stencil component.
func (f Format) HasStencil() bool {
	switch f {
	case FormatS8Uint, FormatD16UnormS8, FormatD24UnormS8, FormatD32SfloatS8:
		return true
	}
	return false
}

// HasDepthOrStencil reports whether the format is a depth/stencil format.
func (f Format) HasDepthOrStencil() bool {
	return f.HasDepth() || f.HasStencil()
}

// Aspect returns the full aspect set of the format.
func (f Format) Aspect() ImageAspect {
	if !f.HasDepthOrStencil() {
		return AspectColor
	}
	var a ImageAspect
	if f.HasDepth() {
		a |= AspectDepth
	}
	if f.HasStencil() {
		a |= AspectStencil
	}
	return a
}
