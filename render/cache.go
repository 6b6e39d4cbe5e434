// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/vkgraph/internal/hashkey"
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// cacheElemType discriminates the Vulkan object a cache element holds.
type cacheElemType uint32

const (
	elemSetLayout cacheElemType = iota
	elemPipelineLayout
	elemSampler
	elemRenderPass
	elemGraphicsPipeline
	elemComputePipeline
)

// cacheElem is one content-addressed GPU state object. The index is a
// stable handle substitute used when the element is referenced inside
// another element's key; it never changes after insertion.
type cacheElem struct {
	typ   cacheElemType
	index uint64

	setLayout vk.DescriptorSetLayout
	template  *updateTemplate
	layout    vk.PipelineLayout
	sampler   vk.Sampler
	pass      vk.RenderPass
	pipeline  vk.Pipeline
}

// updateTemplate mirrors a descriptor update template: one entry per
// non-empty binding, updating the set as a whole.
type updateTemplate struct {
	entries []updateEntry
}

// updateEntry is one binding's slot in the update data of a set.
type updateEntry struct {
	binding uint32
	typ     vk.DescriptorType
	count   uint32
	// offset is the index of the binding's first descriptor in the
	// flattened update data.
	offset uint32
}

// descriptors returns the total descriptor count covered by the template.
func (t *updateTemplate) descriptors() uint32 {
	var n uint32
	for _, e := range t.entries {
		n += e.count
	}
	return n
}

// cache is the content-addressed store of GPU state objects.
//
// Three tables share one instance. simple holds non-pipeline objects, under
// simpleLock. Pipelines start in mutable (lookupLock) and move to immutable
// on flush; immutable is read without any lock, which is sound because it is
// only written while the renderer has all frames stalled (flush, warmup,
// clear).
type cache struct {
	device  *Device
	vkCache vk.PipelineCache

	nextIndex atomic.Uint64

	simpleLock sync.Mutex
	simple     map[string]*cacheElem

	immutable map[string]*cacheElem

	// createLock serializes pipeline creation; lookupLock guards mutable.
	// Creation happens outside lookupLock so concurrent readers are not
	// blocked on the driver.
	createLock sync.Mutex
	lookupLock sync.Mutex
	mutable    map[string]*cacheElem
}

func newCache(device *Device) (*cache, error) {
	c := &cache{
		device:    device,
		simple:    make(map[string]*cacheElem),
		immutable: make(map[string]*cacheElem),
		mutable:   make(map[string]*cacheElem),
	}

	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if err := vkCheck(vk.CreatePipelineCache(
		device.device, &pcci, nil, &c.vkCache), "vkCreatePipelineCache"); err != nil {
		return nil, err
	}
	return c, nil
}

// clear destroys every cached object and the Vulkan pipeline cache.
// The device must be idle.
func (c *cache) clear() {
	for _, elem := range c.mutable {
		c.destroyElem(elem)
	}
	for _, elem := range c.immutable {
		c.destroyElem(elem)
	}
	for _, elem := range c.simple {
		c.destroyElem(elem)
	}
	c.simple = make(map[string]*cacheElem)
	c.immutable = make(map[string]*cacheElem)
	c.mutable = make(map[string]*cacheElem)

	vk.DestroyPipelineCache(c.device.device, c.vkCache, nil)
	c.vkCache = vk.NullPipelineCache
}

// flush moves every entry from mutable to immutable. Requires exclusive
// access to the cache; after it returns, every previously mutable element is
// readable without taking any lock.
func (c *cache) flush() {
	if len(c.mutable) == 0 {
		return
	}
	for k, v := range c.mutable {
		c.immutable[k] = v
	}
	c.mutable = make(map[string]*cacheElem)
}

// getSimple resolves a non-pipeline element, creating it on a miss.
// Returns nil if creation failed; the caller decides if that is fatal.
func (c *cache) getSimple(key hashkey.Key, create func(*cacheElem) error) *cacheElem {
	k := key.String()

	c.simpleLock.Lock()
	defer c.simpleLock.Unlock()

	if elem, ok := c.simple[k]; ok {
		return elem
	}

	elem := &cacheElem{index: c.nextIndex.Add(1)}
	if err := create(elem); err != nil {
		Logger().Error("could not create cached Vulkan object", "err", err)
		return nil
	}
	c.simple[k] = elem
	return elem
}

// getPipeline resolves a pipeline element: immutable without a lock, then
// mutable under lookupLock, then create under createLock with a double
// check. The Vulkan pipeline is created outside lookupLock so concurrent
// readers are never blocked on driver compilation.
func (c *cache) getPipeline(key hashkey.Key, create func(*cacheElem) error) *cacheElem {
	k := key.String()

	if elem, ok := c.immutable[k]; ok {
		return elem
	}

	c.lookupLock.Lock()
	elem, ok := c.mutable[k]
	c.lookupLock.Unlock()
	if ok {
		return elem
	}

	c.createLock.Lock()
	defer c.createLock.Unlock()

	c.lookupLock.Lock()
	elem, ok = c.mutable[k]
	c.lookupLock.Unlock()
	if ok {
		return elem
	}

	elem = &cacheElem{index: c.nextIndex.Add(1)}
	if err := create(elem); err != nil {
		Logger().Error("could not create cached Vulkan pipeline", "err", err)
		return nil
	}

	c.lookupLock.Lock()
	c.mutable[k] = elem
	c.lookupLock.Unlock()
	return elem
}

// warmup pre-populates the immutable table directly, never touching
// mutable. It reuses lookupLock as a writer lock for immutable and must not
// run concurrently with pipeline lookups.
func (c *cache) warmup(key hashkey.Key, create func(*cacheElem) error) error {
	k := key.String()

	c.lookupLock.Lock()
	if _, ok := c.immutable[k]; ok {
		c.lookupLock.Unlock()
		return nil
	}
	elem := &cacheElem{index: c.nextIndex.Add(1)}
	c.immutable[k] = elem
	c.lookupLock.Unlock()

	if err := create(elem); err != nil {
		c.lookupLock.Lock()
		delete(c.immutable, k)
		c.lookupLock.Unlock()

		Logger().Error("pipeline warmup failed", "err", err)
		return err
	}
	return nil
}

// Typed lookups. Each builds the normalized key, then resolves through the
// appropriate table.

func (c *cache) getSetLayout(info setLayoutInfo) *cacheElem {
	return c.getSimple(keySetLayout(info), func(elem *cacheElem) error {
		elem.typ = elemSetLayout
		return c.createSetLayout(elem, info)
	})
}

func (c *cache) getPipelineLayout(info pipelineLayoutInfo) *cacheElem {
	return c.getSimple(keyPipelineLayout(info), func(elem *cacheElem) error {
		elem.typ = elemPipelineLayout
		return c.createPipelineLayout(elem, info)
	})
}

func (c *cache) getSampler(s types.Sampler) *cacheElem {
	return c.getSimple(keySampler(s), func(elem *cacheElem) error {
		elem.typ = elemSampler
		return c.createSampler(elem, s)
	})
}

func (c *cache) getRenderPass(info *vk.RenderPassCreateInfo) *cacheElem {
	return c.getSimple(keyRenderPass(info), func(elem *cacheElem) error {
		elem.typ = elemRenderPass
		return vkCheck(vk.CreateRenderPass(
			c.device.device, info, nil, &elem.pass), "vkCreateRenderPass")
	})
}

func (c *cache) getGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo, handles []uint64) *cacheElem {
	return c.getPipeline(keyGraphicsPipeline(info, handles), func(elem *cacheElem) error {
		elem.typ = elemGraphicsPipeline
		return c.createGraphicsPipeline(elem, info)
	})
}

func (c *cache) getComputePipeline(info *vk.ComputePipelineCreateInfo, handles []uint64) *cacheElem {
	return c.getPipeline(keyComputePipeline(info, handles), func(elem *cacheElem) error {
		elem.typ = elemComputePipeline
		return c.createComputePipeline(elem, info)
	})
}

func (c *cache) warmupGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo, handles []uint64) error {
	return c.warmup(keyGraphicsPipeline(info, handles), func(elem *cacheElem) error {
		elem.typ = elemGraphicsPipeline
		return c.createGraphicsPipeline(elem, info)
	})
}

// Element creation.

func (c *cache) createSetLayout(elem *cacheElem, info setLayoutInfo) error {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(info.bindings))
	for i, bind := range info.bindings {
		var immutable []vk.Sampler
		for _, s := range bind.immutable {
			immutable = append(immutable, s.sampler)
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:            bind.binding,
			DescriptorType:     bind.typ,
			DescriptorCount:    bind.count,
			StageFlags:         bind.stages,
			PImmutableSamplers: immutable,
		}
	}

	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		Flags:        info.flags,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := vkCheck(vk.CreateDescriptorSetLayout(
		c.device.device, &dslci, nil, &elem.setLayout), "vkCreateDescriptorSetLayout"); err != nil {
		return err
	}

	// Build the update template inline: one entry per binding, skipping
	// empty bindings and immutable-sampler-only bindings. Sets are always
	// updated as a whole.
	tmpl := &updateTemplate{}
	var offset uint32
	for _, bind := range info.bindings {
		if bind.count == 0 ||
			(bind.immutable != nil && bind.typ == vk.DescriptorTypeSampler) {
			continue
		}
		tmpl.entries = append(tmpl.entries, updateEntry{
			binding: bind.binding,
			typ:     bind.typ,
			count:   bind.count,
			offset:  offset,
		})
		offset += bind.count
	}
	if len(tmpl.entries) > 0 {
		elem.template = tmpl
	}
	return nil
}

func (c *cache) createPipelineLayout(elem *cacheElem, info pipelineLayoutInfo) error {
	layouts := make([]vk.DescriptorSetLayout, len(info.setLayouts))
	for i, l := range info.setLayouts {
		layouts[i] = l.setLayout
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(info.pushConstants)),
		PPushConstantRanges:    info.pushConstants,
	}
	return vkCheck(vk.CreatePipelineLayout(
		c.device.device, &plci, nil, &elem.layout), "vkCreatePipelineLayout")
}

func (c *cache) createSampler(elem *cacheElem, s types.Sampler) error {
	// Check against the device's sampler allocation limit before creating.
	if err := c.device.claimSampler(); err != nil {
		return err
	}

	if s.Mode != types.FilterModeAverage {
		// Min/max reduction needs VK_EXT_sampler_filter_minmax, which the
		// binding does not expose; the mode stays in the key so a future
		// redescription does not alias.
		Logger().Warn("sampler reduction mode unsupported, using average",
			"mode", s.Mode)
	}

	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter(s.MagFilter),
		MinFilter:               filter(s.MinFilter),
		MipmapMode:              mipmapMode(s.MipFilter),
		AddressModeU:            addressMode(s.WrapU),
		AddressModeV:            addressMode(s.WrapV),
		AddressModeW:            addressMode(s.WrapW),
		MipLodBias:              s.MipLodBias,
		AnisotropyEnable:        vkBool(s.Flags&types.SamplerAnisotropy != 0),
		MaxAnisotropy:           s.MaxAnisotropy,
		CompareEnable:           vkBool(s.Flags&types.SamplerCompare != 0),
		CompareOp:               compareOp(s.Cmp),
		MinLod:                  s.MinLod,
		MaxLod:                  s.MaxLod,
		BorderColor:             vk.BorderColorFloatTransparentBlack,
		UnnormalizedCoordinates: vkBool(s.Flags&types.SamplerUnnormalized != 0),
	}
	if err := vkCheck(vk.CreateSampler(
		c.device.device, &sci, nil, &elem.sampler), "vkCreateSampler"); err != nil {
		c.device.releaseSampler()
		return err
	}
	return nil
}

func (c *cache) createGraphicsPipeline(elem *cacheElem, info *vk.GraphicsPipelineCreateInfo) error {
	pipelines := make([]vk.Pipeline, 1)
	if err := vkCheck(vk.CreateGraphicsPipelines(
		c.device.device, c.vkCache, 1,
		[]vk.GraphicsPipelineCreateInfo{*info}, nil, pipelines), "vkCreateGraphicsPipelines"); err != nil {
		return err
	}
	elem.pipeline = pipelines[0]
	return nil
}

func (c *cache) createComputePipeline(elem *cacheElem, info *vk.ComputePipelineCreateInfo) error {
	pipelines := make([]vk.Pipeline, 1)
	if err := vkCheck(vk.CreateComputePipelines(
		c.device.device, c.vkCache, 1,
		[]vk.ComputePipelineCreateInfo{*info}, nil, pipelines), "vkCreateComputePipelines"); err != nil {
		return err
	}
	elem.pipeline = pipelines[0]
	return nil
}

func (c *cache) destroyElem(elem *cacheElem) {
	dev := c.device.device
	switch elem.typ {
	case elemSetLayout:
		vk.DestroyDescriptorSetLayout(dev, elem.setLayout, nil)
	case elemPipelineLayout:
		vk.DestroyPipelineLayout(dev, elem.layout, nil)
	case elemSampler:
		vk.DestroySampler(dev, elem.sampler, nil)
		c.device.releaseSampler()
	case elemRenderPass:
		vk.DestroyRenderPass(dev, elem.pass, nil)
	case elemGraphicsPipeline, elemComputePipeline:
		vk.DestroyPipeline(dev, elem.pipeline, nil)
	}
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
