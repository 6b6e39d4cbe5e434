// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/internal/hashkey"
	vk "github.com/vulkan-go/vulkan"
)

// Resource binds one descriptor of a set to a buffer or image view.
type Resource struct {
	Binding int
	// Index is the binding array index.
	Index int

	Buffer vk.Buffer
	Offset uint64
	Size   uint64

	View vk.ImageView
	// Layout the image is in while bound; zero means shader-read-only.
	Layout vk.ImageLayout

	// Sampler pairs with View for combined image samplers; the handle is
	// written into the descriptor as given.
	Sampler vk.Sampler
}

// Set resolves a technique's descriptor set number against concrete
// resources. Resolution goes through the descriptor pool: structurally
// identical sets share one descriptor set until recycled.
type Set struct {
	renderer  *Renderer
	technique *Technique
	setIndex  int
	resources []Resource

	key hashkey.Key
}

// AddSet creates a set for descriptor set number setIndex of the
// technique, locking the technique's interface.
func (r *Renderer) AddSet(t *Technique, setIndex int, resources ...Resource) (*Set, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	if setIndex < 0 || setIndex >= len(t.setLayouts) {
		Logger().Warn("set number out of range", "set", setIndex)
		return nil, ErrGraphInvalid
	}

	s := &Set{
		renderer:  r,
		technique: t,
		setIndex:  setIndex,
		resources: resources,
	}
	s.buildKey()
	return s, nil
}

// buildKey composes the pool key: the set-layout element index first (the
// recycling prefix), then every bound resource in the order it is stored.
func (s *Set) buildKey() {
	layout := s.technique.setLayouts[s.setIndex]

	b := hashkey.NewBuilder(64)
	b.PushHandle(layout.index)
	for _, res := range s.resources {
		b.PushUint32(uint32(res.Binding))
		b.PushUint32(uint32(res.Index))
		b.PushUint64(uint64(res.Buffer))
		b.PushUint64(res.Offset)
		b.PushUint64(res.Size)
		b.PushUint64(uint64(res.View))
		b.PushUint32(uint32(res.Layout))
		b.PushUint64(uint64(res.Sampler))
	}
	s.key = b.Key()
}

// SetResources replaces bound resources (matched by binding and index) and
// re-keys the set.
func (s *Set) SetResources(resources ...Resource) {
	for _, res := range resources {
		replaced := false
		for i := range s.resources {
			if s.resources[i].Binding == res.Binding && s.resources[i].Index == res.Index {
				s.resources[i] = res
				replaced = true
				break
			}
		}
		if !replaced {
			s.resources = append(s.resources, res)
		}
	}
	s.buildKey()
}

// Recycle flags the descriptor sets previously resolved for this set's key
// for reuse by any structurally compatible future resolution.
// Requires all frames stalled; the renderer takes care of that.
func (s *Set) Recycle() {
	if err := s.renderer.syncFrames(); err != nil {
		return
	}
	s.renderer.pool.recycle(s.key)
}

// Resolve returns the Vulkan descriptor set for the current resources,
// allocating and writing it through the recorder's pool subordinate when
// no structurally identical set exists.
func (s *Set) Resolve(rec *Recorder) (vk.DescriptorSet, error) {
	layout := s.technique.setLayouts[s.setIndex]
	tmpl := layout.template
	if tmpl == nil {
		Logger().Warn("set layout has no writable bindings")
		return vk.NullDescriptorSet, ErrGraphInvalid
	}

	writes := s.buildWrites(tmpl)
	elem := rec.sub.get(layout, s.key, writes)
	if elem == nil {
		return vk.NullDescriptorSet, ErrOutOfMemory
	}
	return elem.set, nil
}

// buildWrites translates bound resources into descriptor writes following
// the layout's update template.
func (s *Set) buildWrites(tmpl *updateTemplate) []vk.WriteDescriptorSet {
	var writes []vk.WriteDescriptorSet

	for _, entry := range tmpl.entries {
		for arr := uint32(0); arr < entry.count; arr++ {
			res := s.findResource(int(entry.binding), int(arr))
			if res == nil {
				continue
			}

			w := vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstBinding:      entry.binding,
				DstArrayElement: arr,
				DescriptorCount: 1,
				DescriptorType:  entry.typ,
			}

			switch entry.typ {
			case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer,
				vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBufferDynamic:
				size := res.Size
				if size == 0 {
					size = wholeSize
				}
				w.PBufferInfo = []vk.DescriptorBufferInfo{{
					Buffer: res.Buffer,
					Offset: vk.DeviceSize(res.Offset),
					Range:  vk.DeviceSize(size),
				}}

			default:
				layout := res.Layout
				if layout == vk.ImageLayoutUndefined {
					layout = vk.ImageLayoutShaderReadOnlyOptimal
				}
				w.PImageInfo = []vk.DescriptorImageInfo{{
					Sampler:     res.Sampler,
					ImageView:   res.View,
					ImageLayout: layout,
				}}
			}

			writes = append(writes, w)
		}
	}
	return writes
}

func (s *Set) findResource(binding, index int) *Resource {
	for i := range s.resources {
		if s.resources[i].Binding == binding && s.resources[i].Index == index {
			return &s.resources[i]
		}
	}
	return nil
}
