// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

type attachKind uint8

const (
	attachEmpty attachKind = iota
	attachImage
	attachWindow
)

// attach is one attachment slot of a renderer: empty, a described image, or
// a bound window.
type attach struct {
	typ  attachKind
	desc types.Attachment

	window Window
	// pending recreate flags captured from the previous present.
	pending types.RecreateFlags

	// Built image backing.
	image    vk.Image
	memory   vk.DeviceMemory
	vkFormat vk.Format
	width    uint32
	height   uint32
	depth    uint32
}

func (r *Renderer) attachAt(index int) *attach {
	if index < 0 || index >= len(r.attachs) {
		return nil
	}
	return &r.attachs[index]
}

// attachmentFormat resolves the format the graph analyzes an attachment
// with; windows yield the undefined (color) format, which produces the
// non-depth/stencil access flags and stages they need.
func (r *Renderer) attachmentFormat(index int) types.Format {
	at := r.attachAt(index)
	if at == nil || at.typ != attachImage {
		return types.FormatUndefined
	}
	return at.desc.Format
}

// attachmentImage resolves the Vulkan image behind an attachment; for
// windows this is the swapchain image acquired by the given frame.
func (r *Renderer) attachmentImage(f *Frame, index int) vk.Image {
	at := r.attachAt(index)
	if at == nil {
		return vk.NullImage
	}
	switch at.typ {
	case attachImage:
		return at.image
	case attachWindow:
		if f == nil {
			return vk.NullImage
		}
		image := f.swapchainIndex(index)
		images := at.window.Images()
		if image == noImage || int(image) >= len(images) {
			return vk.NullImage
		}
		return images[image]
	}
	return vk.NullImage
}

// resolveSize resolves the absolute size of an attachment description,
// following relative references through the attachment vector.
func (r *Renderer) resolveSize(desc types.Attachment) (w, h, d uint32) {
	if desc.Size == types.SizeAbsolute {
		return max(1, desc.Width), max(1, desc.Height), max(1, desc.Depth)
	}

	var rw, rh, rd uint32 = 1, 1, 1
	if ref := r.attachAt(desc.Ref); ref != nil {
		switch ref.typ {
		case attachImage:
			rw, rh, rd = ref.width, ref.height, ref.depth
			if rw == 0 {
				rw, rh, rd = r.resolveSize(ref.desc)
			}
		case attachWindow:
			rw, rh = ref.window.Extent()
			rd = 1
		}
	}

	scale := func(base uint32, s float32) uint32 {
		return max(1, uint32(math32.Round(float32(base)*s)))
	}
	return scale(rw, desc.XScale), scale(rh, desc.YScale), scale(rd, desc.ZScale)
}

// buildBacking creates Vulkan images for all described attachments that do
// not have one yet. No-op when everything is built.
func (r *Renderer) buildBacking() error {
	for i := range r.attachs {
		at := &r.attachs[i]
		if at.typ != attachImage || at.image != vk.NullImage {
			continue
		}
		if err := r.buildAttach(at); err != nil {
			return err
		}
	}
	return nil
}

// buildAttach creates and binds the image of one attachment slot.
func (r *Renderer) buildAttach(at *attach) error {
	dev := r.device.device

	at.width, at.height, at.depth = r.resolveSize(at.desc)
	at.vkFormat = vk.Format(at.desc.Format)

	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vkImageType(at.desc.Type),
		Format:    at.vkFormat,
		Extent: vk.Extent3D{
			Width:  at.width,
			Height: at.height,
			Depth:  at.depth,
		},
		MipLevels:     1,
		ArrayLayers:   max(1, at.desc.Layers),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsageFlags(at.desc.Usage, at.desc.Format),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	if err := vkCheck(vk.CreateImage(
		dev, &ici, nil, &at.image), "vkCreateImage"); err != nil {
		Logger().Error("could not build attachment backing", "err", err)
		return err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, at.image, &req)
	req.Deref()

	// Images cannot be mapped; host visibility is ignored.
	index := r.memoryTypeIndex(req.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: index,
	}
	if err := vkCheck(vk.AllocateMemory(
		dev, &mai, nil, &at.memory), "vkAllocateMemory"); err != nil {
		vk.DestroyImage(dev, at.image, nil)
		at.image = vk.NullImage
		Logger().Error("could not build attachment backing", "err", err)
		return err
	}

	if err := vkCheck(vk.BindImageMemory(
		dev, at.image, at.memory, 0), "vkBindImageMemory"); err != nil {
		r.destroyAttachBacking(at)
		Logger().Error("could not build attachment backing", "err", err)
		return err
	}
	return nil
}

// memoryTypeIndex picks a memory type matching the filter and properties,
// falling back to any type the filter allows.
func (r *Renderer) memoryTypeIndex(typeFilter uint32, properties vk.MemoryPropertyFlags) uint32 {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(r.device.physical, &memProperties)
	memProperties.Deref()

	for i := uint32(0); i < memProperties.MemoryTypeCount; i++ {
		memProperties.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 &&
			memProperties.MemoryTypes[i].PropertyFlags&properties == properties {
			return i
		}
	}
	for i := uint32(0); i < memProperties.MemoryTypeCount; i++ {
		if typeFilter&(1<<i) != 0 {
			return i
		}
	}
	return 0
}

// destroyAttachBacking releases the image backing of one slot.
func (r *Renderer) destroyAttachBacking(at *attach) {
	dev := r.device.device
	if at.image != vk.NullImage {
		vk.DestroyImage(dev, at.image, nil)
		at.image = vk.NullImage
	}
	if at.memory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, at.memory, nil)
		at.memory = vk.NullDeviceMemory
	}
	at.width, at.height, at.depth = 0, 0, 0
}

// rebuildBacking recreates image backings per the recreate flags; relative
// sized attachments follow window resizes here.
func (r *Renderer) rebuildBacking(flags types.RecreateFlags) {
	if flags&types.Resize == 0 {
		return
	}
	for i := range r.attachs {
		at := &r.attachs[i]
		if at.typ != attachImage || at.desc.Size != types.SizeRelative {
			continue
		}
		r.destroyAttachBacking(at)
		if err := r.buildAttach(at); err != nil {
			Logger().Error("attachment rebuild failed", "index", i, "err", err)
		}
	}
}
